package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/mythos-studio/internal/config"
	"github.com/MimeLyc/mythos-studio/internal/httpapi"
	"github.com/MimeLyc/mythos-studio/internal/jobs"
	"github.com/MimeLyc/mythos-studio/internal/script"
	"github.com/MimeLyc/mythos-studio/internal/service"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule() error
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpRunner interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job workers and the topic scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			orch, generator, err := buildOrchestrator(cfg, s)
			if err != nil {
				return err
			}

			queue := jobs.NewQueue(cfg.Jobs.Workers, s.db)
			queue.Start(videoExecutor(orch))
			defer queue.Stop()

			cronEngine := cron.New()
			sched := service.NewScheduler(cronEngine, queue, cfg.Schedule.CronExpr, cfg.Schedule.Topics)

			opts := []httpapi.Option{
				httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
				httpapi.WithQuota(s.limiter),
				httpapi.WithCache(s.blobs),
				httpapi.WithSchedule(sched),
				httpapi.WithTrustedProxyHeaders(cfg.HTTP.TrustProxyHeaders),
			}
			settings, err := config.NewRuntimeSettingsStore(config.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
			if err != nil {
				log.Warn("Runtime settings are read-only: %v", err)
			} else {
				opts = append(opts,
					httpapi.WithRuntimeSettingsStore(settings),
					httpapi.WithRuntimeSettingsApplier(settingsApplier(*cfg, generator, sched)),
				)
			}

			return runWithComponents(ctx, cfg, sched, cronEngine, httpapi.NewServer(queue, opts...))
		},
	}
}

// settingsApplier swaps the script model and the schedule without a restart.
func settingsApplier(base config.Config, generator *script.Generator, sched *service.Scheduler) func(config.RuntimeSettings) error {
	return func(next config.RuntimeSettings) error {
		cfg := base
		config.WithRuntimeSettings(next)(&cfg)

		client, err := newLLMClient(cfg.LLM)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}
		generator.SetClient(client)

		if err := sched.ApplyRuntimeSettings(next); err != nil {
			return err
		}
		log.Info("Applied runtime settings (model %s, cron %q)", cfg.LLM.Model, next.CronExpr)
		return nil
	}
}

func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler,
	cronEngine cronRunner,
	httpSrv httpRunner,
) error {
	if err := sched.Schedule(); err != nil {
		return fmt.Errorf("failed to schedule topics: %w", err)
	}
	cronEngine.Start()
	defer func() {
		select {
		case <-cronEngine.Stop().Done():
		case <-time.After(shutdownTimeout):
			log.Warn("Timed out waiting for scheduled runs to finish")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}
