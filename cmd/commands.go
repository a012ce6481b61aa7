package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/mythos-studio/internal/studio"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newGenerateCmd() *cobra.Command {
	var topic, user string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Produce one video in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			orch, _, err := buildOrchestrator(cfg, s)
			if err != nil {
				return err
			}

			report, err := orch.Run(cmd.Context(), studio.Request{
				JobID:  uuid.NewString(),
				Topic:  topic,
				UserID: user,
			})
			if err != nil {
				return fmt.Errorf("%w\n%s", err, studio.Advice(err))
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "mythology topic to narrate")
	cmd.Flags().StringVar(&user, "user", "cli", "identity charged against the daily quota")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the image and audio cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.blobs.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Images: %d\nAudio:  %d\nSize:   %.2f MB\n",
				stats.ImageCount, stats.AudioCount, float64(stats.TotalSizeBytes)/(1024*1024))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached image and audio file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.blobs.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

func newQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect daily video usage",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show today's usage across all identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.limiter.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Users today:  %d\nVideos today: %d\nLimit:        %d per user\n",
				stats.UniqueUsersToday, stats.TotalVideosToday, s.limiter.MaxPerDay())
			return nil
		},
	}

	var user string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Show the remaining videos for one identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			status, err := s.limiter.CheckLimit(cmd.Context(), s.limiter.UserKey(user))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	checkCmd.Flags().StringVar(&user, "user", "cli", "identity to check")

	cmd.AddCommand(statsCmd, checkCmd)
	return cmd
}
