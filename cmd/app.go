package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/mythos-studio/internal/cache"
	"github.com/MimeLyc/mythos-studio/internal/character"
	"github.com/MimeLyc/mythos-studio/internal/config"
	"github.com/MimeLyc/mythos-studio/internal/jobs"
	"github.com/MimeLyc/mythos-studio/internal/llm"
	"github.com/MimeLyc/mythos-studio/internal/media"
	"github.com/MimeLyc/mythos-studio/internal/persistence"
	"github.com/MimeLyc/mythos-studio/internal/pipeline"
	"github.com/MimeLyc/mythos-studio/internal/provider"
	"github.com/MimeLyc/mythos-studio/internal/ratelimit"
	"github.com/MimeLyc/mythos-studio/internal/retry"
	"github.com/MimeLyc/mythos-studio/internal/script"
	"github.com/MimeLyc/mythos-studio/internal/studio"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// stores holds the persistent state shared by every command.
type stores struct {
	db      *persistence.SQLiteStore
	limiter *ratelimit.Limiter
	blobs   *cache.Cache
	closers []func() error
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	db, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, studio.NewErrorWithCause(studio.ErrStorage, "failed to open database", err)
	}
	s.db = db
	s.closers = append(s.closers, db.Close)

	var usage ratelimit.Store
	switch cfg.Quota.Backend {
	case "redis":
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.Quota.RedisAddr, cfg.Quota.RedisPassword, cfg.Quota.RedisDB)
		if err != nil {
			s.Close()
			return nil, studio.NewErrorWithCause(studio.ErrStorage, "failed to connect quota backend", err)
		}
		s.closers = append(s.closers, rdb.Close)
		usage = ratelimit.NewRedisStore(rdb)
	case "memory":
		usage = ratelimit.NewMemoryStore()
	default:
		usage = db
	}
	s.limiter = ratelimit.New(usage, cfg.Quota.MaxPerDay)

	blobs, err := cache.New(cfg.Storage.CacheDir)
	if err != nil {
		s.Close()
		return nil, studio.NewErrorWithCause(studio.ErrStorage, "failed to open cache", err)
	}
	s.blobs = blobs

	log.Info("Using %s quota backend, %d videos per day", cfg.Quota.Backend, cfg.Quota.MaxPerDay)
	return s, nil
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn("Failed to close store: %v", err)
		}
	}
	s.closers = nil
}

func newLLMClient(cfg config.LLMConfig) (*llm.Client, error) {
	return llm.NewClient(&llm.Config{
		APIKey:      cfg.APIKey,
		APIURL:      cfg.APIURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		SiteURL:     cfg.SiteURL,
		AppName:     cfg.AppName,
	})
}

func loadCharacters(cfg *config.Config) (*character.Catalog, error) {
	if cfg.Storage.CharactersFile != "" {
		return character.Load(cfg.Storage.CharactersFile)
	}
	return character.Default(cfg.Storage.CharactersDir), nil
}

// buildOrchestrator wires the providers around the shared stores. The script
// generator is returned too so runtime settings can swap its client.
func buildOrchestrator(cfg *config.Config, s *stores) (*studio.Orchestrator, *script.Generator, error) {
	if err := cfg.RequireProviders(); err != nil {
		return nil, nil, studio.NewErrorWithCause(studio.ErrConfig, "missing provider credentials", err)
	}

	chat, err := newLLMClient(cfg.LLM)
	if err != nil {
		return nil, nil, studio.NewErrorWithCause(studio.ErrConfig, "failed to create LLM client", err)
	}
	generator := script.NewGenerator(chat, cfg.Pipeline.SceneCount)

	catalog, err := loadCharacters(cfg)
	if err != nil {
		return nil, nil, studio.NewErrorWithCause(studio.ErrConfig, "failed to load characters", err)
	}

	providerCfg := provider.Config{
		APIKey:  cfg.Media.APIKey,
		BaseURL: cfg.Media.BaseURL,
		Timeout: cfg.Media.Timeout,
	}
	httpClient := &http.Client{Timeout: cfg.Media.Timeout + 10*time.Second}

	images, err := provider.NewImageClient(providerCfg, cfg.Media.ImageModel,
		provider.WithCharacters(catalog),
		provider.WithEditModel(cfg.Media.EditModel),
		provider.WithImageSize(cfg.Media.ImageSize),
		provider.WithImageHTTPClient(httpClient),
	)
	if err != nil {
		return nil, nil, studio.NewErrorWithCause(studio.ErrConfig, "failed to create image client", err)
	}
	speech, err := provider.NewSpeechClient(providerCfg, cfg.Media.SpeechModel, httpClient)
	if err != nil {
		return nil, nil, studio.NewErrorWithCause(studio.ErrConfig, "failed to create speech client", err)
	}

	assembler := media.NewAssembler(media.Options{
		FFmpegPath:  cfg.Video.FFmpegPath,
		FFprobePath: cfg.Video.FFprobePath,
		FontFile:    cfg.Video.FontFile,
		FontSize:    cfg.Video.FontSize,
		WrapWidth:   cfg.Video.WrapWidth,
		FPS:         cfg.Video.FPS,
	})
	if err := assembler.Available(); err != nil {
		log.Warn("Video assembly will fail: %v", err)
	}

	orch, err := studio.New(studio.Config{
		OutputDir: cfg.Storage.OutputDir,
		ImagePolicy: retry.Policy{
			Name:         "image",
			MaxRetries:   cfg.Pipeline.ImageRetries,
			InitialDelay: cfg.Pipeline.ImageRetryDelay,
			Multiplier:   cfg.Pipeline.RetryMultiplier,
		},
		AudioPolicy: retry.Policy{
			Name:         "audio",
			MaxRetries:   cfg.Pipeline.AudioRetries,
			InitialDelay: cfg.Pipeline.AudioRetryDelay,
			Multiplier:   cfg.Pipeline.RetryMultiplier,
		},
		KeepWorkDir: cfg.Pipeline.KeepWorkFiles,
	}, studio.Dependencies{
		Script:     generator,
		Images:     images,
		Speech:     speech,
		Voices:     provider.NewVoiceSelector(cfg.Media.Voices, cfg.Media.DefaultVoice),
		Assembler:  assembler,
		References: catalog,
		Cache:      s.blobs,
		Limiter:    s.limiter,
		Processor: pipeline.NewProcessor(pipeline.Options{
			MaxWorkers:   cfg.Pipeline.MaxWorkers,
			ImageTimeout: cfg.Pipeline.ImageTimeout,
			AudioTimeout: cfg.Pipeline.AudioTimeout,
		}),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}
	return orch, generator, nil
}

// videoRunner is the part of the orchestrator the job executor needs.
type videoRunner interface {
	Run(ctx context.Context, req studio.Request) (*studio.Report, error)
}

func videoExecutor(orch videoRunner) jobs.Executor {
	return func(ctx context.Context, job *jobs.VideoJob) (*jobs.JobResult, error) {
		report, err := orch.Run(ctx, studio.Request{
			JobID:  job.ID,
			Topic:  job.Payload.Topic,
			UserID: job.Payload.UserID,
		})
		if err != nil {
			studio.LogError(err)
			return nil, err
		}
		return &jobs.JobResult{
			VideoPath:       report.VideoPath,
			TotalScenes:     report.TotalScenes,
			SucceededScenes: report.SucceededScenes,
			CaptionsPath:    report.CaptionsPath,
		}, nil
	}
}
