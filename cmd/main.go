package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/mythos-studio/internal/config"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "mythos-studio",
		Short:         "Turn a mythology topic into a narrated short video",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var envFile string
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFile)
	}

	root.AddCommand(
		newServeCmd(),
		newGenerateCmd(),
		newCacheCmd(),
		newQuotaCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, overlays the runtime settings file when
// one exists and installs the configured logger. The returned func closes
// the log file, if any.
func loadConfig() (*config.Config, func(), error) {
	var opts []config.Option
	settingsPath := config.RuntimeSettingsFilePath()
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	switch {
	case err == nil:
		opts = append(opts, config.WithRuntimeSettings(settings))
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, nil, fmt.Errorf("failed to load %s: %w", settingsPath, err)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Log.File == "" {
		log.InitLogger(cfg.Log.Level)
		return cfg, func() {}, nil
	}
	fileLogger, err := log.NewFileLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	log.SetLogger(fileLogger.Logger)
	return cfg, func() { _ = fileLogger.Close() }, nil
}
