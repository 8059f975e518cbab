package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var metricsWindowHours int

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregated analysis metrics",
	RunE:  runMetrics,
}

func init() {
	metricsCmd.Flags().IntVar(&metricsWindowHours, "window", 24, "Window in hours")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	aggregates, err := eng.db.GetAggregates(time.Now().Add(-time.Duration(metricsWindowHours) * time.Hour))
	if err != nil {
		return err
	}
	if len(aggregates) == 0 {
		fmt.Printf("No analysis requests in the last %dh\n", metricsWindowHours)
		return nil
	}

	kinds := make([]string, 0, len(aggregates))
	for kind := range aggregates {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	fmt.Printf("Last %dh:\n\n", metricsWindowHours)
	fmt.Printf("%-14s  %8s  %8s  %8s  %10s  %10s\n",
		"KIND", "REQUESTS", "HITS", "FAILED", "TOKENS", "AVG MS")
	for _, kind := range kinds {
		agg := aggregates[kind]
		fmt.Printf("%-14s  %8d  %8d  %8d  %10d  %10.0f\n",
			agg.AnalysisKind, agg.RequestCount, agg.CacheHits, agg.Failures,
			agg.TotalTokens, agg.AvgLatencyMs())
	}
	return nil
}
