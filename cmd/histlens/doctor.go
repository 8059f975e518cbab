package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"histlens/internal/analyzer"
	"histlens/internal/config"
	"histlens/internal/logging"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration and environment issues",
	Long: `Check that git is available, the repository and storage directory are
usable, the configuration validates, and the analysis service answers.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type check struct {
	name string
	run  func() error
}

func runDoctor(cmd *cobra.Command, args []string) error {
	repoRoot := mustGetRepoRoot()
	logger := logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.ErrorLevel})

	cfg, cfgErr := config.LoadConfig(repoRoot)

	checks := []check{
		{"git binary", func() error {
			_, err := exec.LookPath("git")
			return err
		}},
		{"git repository", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			out := exec.CommandContext(ctx, "git", "-C", repoRoot, "rev-parse", "--is-inside-work-tree")
			if err := out.Run(); err != nil {
				return fmt.Errorf("%s is not a git repository", repoRoot)
			}
			return nil
		}},
		{"configuration", func() error {
			if cfgErr != nil {
				return cfgErr
			}
			return cfg.Validate()
		}},
		{"storage directory", func() error {
			dir := config.StorageDir(repoRoot)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			probe := filepath.Join(dir, ".doctor-probe")
			if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
				return err
			}
			return os.Remove(probe)
		}},
		{"analysis service", func() error {
			if cfgErr != nil {
				return fmt.Errorf("skipped: configuration failed")
			}
			if !cfg.Analysis.Enabled {
				return fmt.Errorf("analysis disabled in configuration")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return analyzer.New(cfg.Analysis, logger).Health(ctx)
		}},
	}

	failures := 0
	for _, c := range checks {
		if err := c.run(); err != nil {
			failures++
			fmt.Printf("  FAIL  %-20s %v\n", c.name, err)
			continue
		}
		fmt.Printf("  ok    %s\n", c.name)
	}

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	fmt.Println("\nAll checks passed")
	return nil
}
