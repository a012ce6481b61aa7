package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Scene is one narrated beat of a script.
type Scene struct {
	Index       int    `json:"index"`
	Narration   string `json:"narration"`
	ImagePrompt string `json:"image_prompt"`
}

// Validate reports whether the scene can be rendered.
func (s Scene) Validate() error {
	if strings.TrimSpace(s.Narration) == "" {
		return fmt.Errorf("scene %d has no narration", s.Index)
	}
	if strings.TrimSpace(s.ImagePrompt) == "" {
		return fmt.Errorf("scene %d has no image prompt", s.Index)
	}
	return nil
}

// Artifact is the outcome of one generation unit: a file path on success,
// the reason otherwise.
type Artifact struct {
	Path string `json:"path,omitempty"`
	Err  error  `json:"-"`
}

func Succeeded(path string) Artifact {
	return Artifact{Path: path}
}

func Failed(err error) Artifact {
	if err == nil {
		err = fmt.Errorf("unknown failure")
	}
	return Artifact{Err: err}
}

// OK reports whether the artifact carries a usable path.
func (a Artifact) OK() bool {
	return a.Err == nil && a.Path != ""
}

// Error returns the failure reason, or "" on success.
func (a Artifact) Error() string {
	if a.Err != nil {
		return a.Err.Error()
	}
	if a.Path == "" {
		return "no artifact produced"
	}
	return ""
}

// SceneResult pairs the image and audio outcome of one scene.
type SceneResult struct {
	Index int
	Scene Scene
	Image Artifact
	Audio Artifact
}

// Complete reports whether both artifacts succeeded.
func (r SceneResult) Complete() bool {
	return r.Image.OK() && r.Audio.OK()
}

// Generator produces one artifact for a scene. index is the scene's position
// in the submitted slice.
type Generator func(ctx context.Context, scene Scene, index int) Artifact
