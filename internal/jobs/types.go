package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the job will not run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

type JobPayload struct {
	Topic string `json:"topic"`
	// UserID is the raw quota identity. It is persisted for restart recovery
	// but never served over the API.
	UserID string `json:"-"`
}

// JobResult describes a finished video.
type JobResult struct {
	VideoPath       string `json:"video_path"`
	TotalScenes     int    `json:"total_scenes"`
	SucceededScenes int    `json:"succeeded_scenes"`
	CaptionsPath    string `json:"captions_path,omitempty"`
}

type VideoJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	// DedupeKey embeds the raw identity and stays server side.
	DedupeKey string     `json:"-"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Result    *JobResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DedupeKey collapses repeated submissions of the same topic by the same identity.
func DedupeKey(userID, topic string) string {
	return userID + "|" + topic
}
