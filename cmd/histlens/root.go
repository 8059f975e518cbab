package main

import (
	"os"

	"github.com/spf13/cobra"

	"histlens/internal/version"
)

var (
	// repoFlag is the CLI --repo flag value
	repoFlag string
)

var rootCmd = &cobra.Command{
	Use:   "histlens",
	Short: "HistLens - AI-assisted repository history viewer",
	Long: `HistLens inspects a git repository's history and enriches commits,
comparisons and file histories with AI analysis. Repository data is always
returned immediately; the AI summary arrives asynchronously and is cached
so repeat views are instant.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("histlens version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "",
		"Repository root (default: current directory)")
}

// mustGetRepoRoot resolves the repository root from the --repo flag or
// the working directory.
func mustGetRepoRoot() string {
	if repoFlag != "" {
		return repoFlag
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
