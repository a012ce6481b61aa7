// Package studio runs a video job end to end: quota, script, scene
// rendering, assembly.
package studio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/mythos-studio/internal/cache"
	"github.com/MimeLyc/mythos-studio/internal/media"
	"github.com/MimeLyc/mythos-studio/internal/pipeline"
	"github.com/MimeLyc/mythos-studio/internal/provider"
	"github.com/MimeLyc/mythos-studio/internal/ratelimit"
	"github.com/MimeLyc/mythos-studio/internal/retry"
	"github.com/MimeLyc/mythos-studio/internal/subtitle"
	"github.com/MimeLyc/mythos-studio/pkg/file"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

type ScriptProvider interface {
	GenerateScript(ctx context.Context, topic string) ([]pipeline.Scene, error)
}

type ImageProvider interface {
	GenerateImage(ctx context.Context, req provider.ImageRequest) (string, error)
}

type SpeechProvider interface {
	GenerateAudio(ctx context.Context, req provider.SpeechRequest) (string, error)
}

type VoiceSelector interface {
	Voice(text string) string
}

type Assembler interface {
	OverlaySubtitles(ctx context.Context, imagePath, text string) (string, error)
	BuildClip(ctx context.Context, imagePath, audioPath string) (media.Clip, error)
	Concatenate(ctx context.Context, clips []media.Clip, output string) (string, error)
}

// ReferenceResolver maps scene text to a character reference image.
type ReferenceResolver interface {
	Resolve(text string) (string, bool)
}

// Dependencies are the collaborators of an Orchestrator. References is optional.
type Dependencies struct {
	Script     ScriptProvider
	Images     ImageProvider
	Speech     SpeechProvider
	Voices     VoiceSelector
	Assembler  Assembler
	References ReferenceResolver
	Cache      *cache.Cache
	Limiter    *ratelimit.Limiter
	Processor  *pipeline.Processor
}

type Config struct {
	// OutputDir holds <job-id>/ work files and the final <job-id>.mp4.
	OutputDir   string
	ImagePolicy retry.Policy
	AudioPolicy retry.Policy
	// KeepWorkDir keeps per-scene files after a successful job.
	KeepWorkDir bool
}

type Request struct {
	JobID  string
	Topic  string
	UserID string
}

// Report describes a finished video.
type Report struct {
	JobID           string `json:"job_id"`
	VideoPath       string `json:"video_path"`
	TotalScenes     int    `json:"total_scenes"`
	SucceededScenes int    `json:"succeeded_scenes"`
	DroppedScenes   int    `json:"dropped_scenes"`
	Remaining       int    `json:"remaining"`
	CaptionsPath    string `json:"captions_path,omitempty"`
}

type Orchestrator struct {
	deps Dependencies
	cfg  Config

	// inflight collapses identical cache misses across concurrent jobs.
	inflight singleflight.Group
}

func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Script == nil:
		return nil, fmt.Errorf("script provider is required")
	case deps.Images == nil:
		return nil, fmt.Errorf("image provider is required")
	case deps.Speech == nil:
		return nil, fmt.Errorf("speech provider is required")
	case deps.Voices == nil:
		return nil, fmt.Errorf("voice selector is required")
	case deps.Assembler == nil:
		return nil, fmt.Errorf("assembler is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("cache is required")
	case deps.Limiter == nil:
		return nil, fmt.Errorf("rate limiter is required")
	}
	if deps.Processor == nil {
		deps.Processor = pipeline.NewProcessor(pipeline.Options{})
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.ImagePolicy.MaxRetries == 0 {
		cfg.ImagePolicy = retry.ImagePolicy()
	}
	if cfg.AudioPolicy.MaxRetries == 0 {
		cfg.AudioPolicy = retry.AudioPolicy()
	}

	return &Orchestrator{deps: deps, cfg: cfg}, nil
}

// Limiter exposes the quota gate so callers can pre-check before enqueueing.
func (o *Orchestrator) Limiter() *ratelimit.Limiter {
	return o.deps.Limiter
}

// Cache exposes the artifact cache for stats and maintenance.
func (o *Orchestrator) Cache() *cache.Cache {
	return o.deps.Cache
}

// Run produces one video. Quota is consumed only when a video is written.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	if err := ValidateTopic(req.Topic); err != nil {
		return nil, err
	}
	topic := strings.TrimSpace(req.Topic)
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	reservation, status, err := o.deps.Limiter.Reserve(ctx, o.deps.Limiter.UserKey(req.UserID))
	if errors.Is(err, ratelimit.ErrLimitReached) {
		return nil, NewErrorWithCause(ErrQuota, "daily video limit reached", err).
			WithContext("count", status.Count).
			WithContext("max", status.Max)
	}
	if err != nil {
		return nil, NewErrorWithCause(ErrStorage, "failed to check quota", err)
	}
	defer reservation.Release()

	log.Info("Job %s: writing script for %q", jobID, topic)
	scenes, err := o.deps.Script.GenerateScript(ctx, topic)
	if err != nil {
		return nil, NewErrorWithCause(ErrScript, "script generation failed", err).WithContext("job_id", jobID)
	}
	if len(scenes) == 0 {
		return nil, NewError(ErrScript, "script has no scenes").WithContext("job_id", jobID)
	}

	workDir := filepath.Join(o.cfg.OutputDir, jobID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, NewErrorWithCause(ErrStorage, "failed to create work directory", err)
	}

	log.Info("Job %s: rendering %d scenes", jobID, len(scenes))
	results := o.deps.Processor.ProcessScenes(ctx, scenes,
		o.imageGenerator(workDir, topic),
		o.audioGenerator(workDir))

	clips, narrations := o.buildClips(ctx, jobID, results)
	if len(clips) == 0 {
		return nil, NewError(ErrAssembly, "no scenes generated successfully").
			WithContext("job_id", jobID).
			WithContext("total_scenes", len(scenes))
	}

	output := filepath.Join(o.cfg.OutputDir, jobID+".mp4")
	videoPath, err := o.deps.Assembler.Concatenate(ctx, clips, output)
	if err != nil {
		return nil, NewErrorWithCause(ErrAssembly, "failed to assemble final video", err).WithContext("job_id", jobID)
	}

	report := &Report{
		JobID:           jobID,
		VideoPath:       videoPath,
		TotalScenes:     len(scenes),
		SucceededScenes: len(clips),
		DroppedScenes:   len(scenes) - len(clips),
	}

	captions := file.ReplaceExt(videoPath, ".srt")
	if err := writeCaptions(captions, clips, narrations); err != nil {
		log.Warn("Job %s: failed to write captions: %v", jobID, err)
	} else {
		report.CaptionsPath = captions
	}

	committed, err := reservation.Commit(ctx)
	if err != nil {
		log.Error("Job %s: video written but quota update failed: %v", jobID, err)
	} else {
		report.Remaining = committed.Remaining
	}

	if !o.cfg.KeepWorkDir {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("Job %s: failed to remove work directory: %v", jobID, err)
		}
	}

	log.Info("Job %s: %d/%d scenes in %s", jobID, report.SucceededScenes, report.TotalScenes, videoPath)
	return report, nil
}

// reference tries the image prompt, then the narration, then the topic.
func (o *Orchestrator) reference(scene pipeline.Scene, topic string) string {
	if o.deps.References == nil {
		return ""
	}
	for _, text := range []string{scene.ImagePrompt, scene.Narration, topic} {
		if ref, ok := o.deps.References.Resolve(text); ok {
			return ref
		}
	}
	return ""
}

func (o *Orchestrator) imageGenerator(workDir, topic string) pipeline.Generator {
	return func(ctx context.Context, scene pipeline.Scene, index int) pipeline.Artifact {
		ref := o.reference(scene, topic)
		out := filepath.Join(workDir, fmt.Sprintf("scene_%d.png", index))
		req := provider.ImageRequest{
			Prompt:     scene.ImagePrompt,
			Reference:  ref,
			SceneIndex: index,
			OutputPath: out,
		}
		return o.materialize(ctx, cache.ImageDescriptor(scene.ImagePrompt, ref, index), out, o.cfg.ImagePolicy,
			func(ctx context.Context) (string, error) {
				return o.deps.Images.GenerateImage(ctx, req)
			})
	}
}

func (o *Orchestrator) audioGenerator(workDir string) pipeline.Generator {
	return func(ctx context.Context, scene pipeline.Scene, index int) pipeline.Artifact {
		voice := o.deps.Voices.Voice(scene.Narration)
		out := filepath.Join(workDir, fmt.Sprintf("audio_%d.mp3", index))
		req := provider.SpeechRequest{
			Text:       scene.Narration,
			Voice:      voice,
			SceneIndex: index,
			OutputPath: out,
		}
		return o.materialize(ctx, cache.AudioDescriptor(scene.Narration, voice), out, o.cfg.AudioPolicy,
			func(ctx context.Context) (string, error) {
				return o.deps.Speech.GenerateAudio(ctx, req)
			})
	}
}

// materialize places the artifact for d at out, from the cache when possible.
// A miss runs generate under the retry policy and stores the result.
func (o *Orchestrator) materialize(
	ctx context.Context,
	d cache.Descriptor,
	out string,
	policy retry.Policy,
	generate func(context.Context) (string, error),
) pipeline.Artifact {
	if cached, ok := o.deps.Cache.Lookup(d); ok {
		err := file.CopyFile(cached, out)
		if err == nil {
			log.Debug("Cache hit for %s %s", d.Kind, filepath.Base(out))
			return pipeline.Succeeded(out)
		}
		log.Warn("Failed to copy cached %s, regenerating: %v", d.Kind, err)
	}

	v, err, _ := o.inflight.Do(d.Key(), func() (any, error) {
		path, err := retry.Do(ctx, policy, generate)
		if err != nil {
			return "", err
		}
		stored, err := o.deps.Cache.Store(d, path)
		if err != nil {
			log.Warn("Failed to cache %s: %v", d.Kind, err)
			return path, nil
		}
		return stored, nil
	})
	if err != nil {
		return pipeline.Failed(err)
	}

	src := v.(string)
	if src != out {
		if err := file.CopyFile(src, out); err != nil {
			return pipeline.Failed(fmt.Errorf("failed to place %s: %w", d.Kind, err))
		}
	}
	return pipeline.Succeeded(out)
}

// buildClips keeps complete scenes and turns each into a clip. Scenes whose
// clip cannot be built are dropped. The narration of each kept clip is
// returned alongside it.
func (o *Orchestrator) buildClips(ctx context.Context, jobID string, results []pipeline.SceneResult) ([]media.Clip, []string) {
	clips := make([]media.Clip, 0, len(results))
	narrations := make([]string, 0, len(results))
	for _, r := range results {
		if !r.Complete() {
			log.Warn("Job %s: scene %d dropped (image: %s, audio: %s)",
				jobID, r.Index, orOK(r.Image.Error()), orOK(r.Audio.Error()))
			continue
		}

		image := r.Image.Path
		if subbed, err := o.deps.Assembler.OverlaySubtitles(ctx, image, r.Scene.Narration); err != nil {
			log.Warn("Job %s: subtitles for scene %d failed, using raw image: %v", jobID, r.Index, err)
		} else {
			image = subbed
		}

		clip, err := o.deps.Assembler.BuildClip(ctx, image, r.Audio.Path)
		if err != nil {
			log.Warn("Job %s: clip for scene %d failed: %v", jobID, r.Index, err)
			continue
		}
		clips = append(clips, clip)
		narrations = append(narrations, r.Scene.Narration)
	}
	return clips, narrations
}

func writeCaptions(path string, clips []media.Clip, narrations []string) error {
	durations := make([]time.Duration, len(clips))
	for i, c := range clips {
		durations[i] = c.Duration
	}
	return subtitle.Write(path, subtitle.Sequence(narrations, durations))
}

func orOK(s string) string {
	if s == "" {
		return "ok"
	}
	return s
}
