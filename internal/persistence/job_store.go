package persistence

import (
	"context"
	"fmt"

	"github.com/MimeLyc/mythos-studio/internal/jobs"
)

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.VideoJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, topic, user_id, status, error,
		        video_path, total_scenes, succeeded_scenes, captions_path, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.VideoJob, 0)
	for rows.Next() {
		var item jobs.VideoJob
		var status string
		var result jobs.JobResult
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.Topic,
			&item.Payload.UserID,
			&status,
			&item.Error,
			&result.VideoPath,
			&result.TotalScenes,
			&result.SucceededScenes,
			&result.CaptionsPath,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		if result.VideoPath != "" {
			item.Result = &result
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.VideoJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	var result jobs.JobResult
	if job.Result != nil {
		result = *job.Result
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, topic, user_id, status, error,
			video_path, total_scenes, succeeded_scenes, captions_path, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			topic=excluded.topic,
			user_id=excluded.user_id,
			status=excluded.status,
			error=excluded.error,
			video_path=excluded.video_path,
			total_scenes=excluded.total_scenes,
			succeeded_scenes=excluded.succeeded_scenes,
			captions_path=excluded.captions_path,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.Topic,
		job.Payload.UserID,
		string(job.Status),
		job.Error,
		result.VideoPath,
		result.TotalScenes,
		result.SucceededScenes,
		result.CaptionsPath,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}
