package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and size",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached analysis results",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	if eng.cache == nil {
		fmt.Println("Cache is disabled in the configuration")
		return nil
	}

	stats := eng.cache.Stats()
	fmt.Printf("Fast tier entries:       %d\n", stats.FastTierCount)
	fmt.Printf("Persistent tier entries: %d\n", stats.PersistentTierCount)
	fmt.Printf("Approximate size:        %d bytes\n", stats.ApproximateByteSize)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	if eng.cache == nil {
		fmt.Println("Cache is disabled in the configuration")
		return nil
	}

	eng.cache.Clear()
	fmt.Println("Cache cleared")
	return nil
}
