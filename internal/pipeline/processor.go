// Package pipeline runs per-scene image and audio generation on a bounded pool.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/MimeLyc/mythos-studio/pkg/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxWorkers   = 2
	DefaultImageTimeout = 120 * time.Second
	DefaultAudioTimeout = 60 * time.Second
)

type Options struct {
	MaxWorkers   int
	ImageTimeout time.Duration
	AudioTimeout time.Duration
}

type Processor struct {
	maxWorkers   int
	imageTimeout time.Duration
	audioTimeout time.Duration
}

func NewProcessor(opts Options) *Processor {
	p := &Processor{
		maxWorkers:   opts.MaxWorkers,
		imageTimeout: opts.ImageTimeout,
		audioTimeout: opts.AudioTimeout,
	}
	if p.maxWorkers <= 0 {
		p.maxWorkers = DefaultMaxWorkers
	}
	if p.imageTimeout <= 0 {
		p.imageTimeout = DefaultImageTimeout
	}
	if p.audioTimeout <= 0 {
		p.audioTimeout = DefaultAudioTimeout
	}
	return p
}

// ProcessScenes generates the image and audio of every valid scene. Each
// scene contributes two independent units to a shared pool of MaxWorkers.
// A unit that errors, panics or outlives its timeout yields a failed
// artifact for its slot only. Results come back in ascending scene index;
// invalid scenes are skipped.
func (p *Processor) ProcessScenes(ctx context.Context, scenes []Scene, imageGen, audioGen Generator) []SceneResult {
	results := make([]SceneResult, 0, len(scenes))
	for i, scene := range scenes {
		if err := scene.Validate(); err != nil {
			log.Warn("Skipping scene %d: %v", i, err)
			continue
		}
		results = append(results, SceneResult{Index: i, Scene: scene})
	}
	if len(results) == 0 {
		return results
	}

	log.Info("Processing %d scenes with %d workers", len(results), p.maxWorkers)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(p.maxWorkers)

	for i := range results {
		slot := &results[i]
		g.Go(func() error {
			slot.Image = p.runUnit(ctx, "image", p.imageTimeout, imageGen, slot.Scene, slot.Index)
			return nil
		})
		g.Go(func() error {
			slot.Audio = p.runUnit(ctx, "audio", p.audioTimeout, audioGen, slot.Scene, slot.Index)
			return nil
		})
	}
	_ = g.Wait()

	complete := 0
	for _, r := range results {
		if r.Complete() {
			complete++
		}
	}
	log.Info("Scene processing finished in %s: %d/%d complete", time.Since(start).Round(time.Millisecond), complete, len(results))
	return results
}

// runUnit bounds one generator call by timeout. The timer starts when the
// unit gets a worker, not when it is submitted. The generator sees the
// deadline through its context; if it ignores it, its result is discarded,
// but the worker stays occupied until the call returns so no more than
// MaxWorkers generator calls are ever in flight.
func (p *Processor) runUnit(ctx context.Context, kind string, timeout time.Duration, gen Generator, scene Scene, index int) Artifact {
	if gen == nil {
		return Failed(fmt.Errorf("no %s generator configured", kind))
	}

	unitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Artifact, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("%s generation for scene %d panicked: %v\n%s", kind, index, r, debug.Stack())
				done <- Failed(fmt.Errorf("%s generation panicked: %v", kind, r))
			}
		}()
		done <- gen(unitCtx, scene, index)
	}()

	select {
	case artifact := <-done:
		if !artifact.OK() {
			log.Warn("%s for scene %d failed: %s", kind, index, artifact.Error())
			if artifact.Err == nil {
				artifact.Err = fmt.Errorf("%s generator returned no path", kind)
			}
		}
		return artifact
	case <-unitCtx.Done():
		log.Warn("%s for scene %d timed out after %s", kind, index, timeout)
		failed := Failed(fmt.Errorf("%s generation for scene %d: %w", kind, index, unitCtx.Err()))
		<-done
		return failed
	}
}
