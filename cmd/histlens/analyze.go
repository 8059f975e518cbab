package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"histlens/internal/analyzer"
	"histlens/internal/gitsource"
	"histlens/internal/prompt"
	"histlens/internal/routing"
)

var (
	analyzeFormat  string
	analyzeWaitSec int
	historyLimit   int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze commits, comparisons and file histories",
	Long: `Analyze repository history with AI assistance.

The repository data prints immediately; the AI summary follows when the
analysis service responds (or a cached result is found).

Examples:
  histlens analyze commit HEAD
  histlens analyze compare v1.2.0 v1.3.0
  histlens analyze compare HEAD            # against the working tree
  histlens analyze file-history internal/server.go
  histlens analyze file-compare internal/server.go v1.2.0 v1.3.0`,
}

var analyzeCommitCmd = &cobra.Command{
	Use:   "commit <hash>",
	Short: "Analyze a single commit",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyzeCommit,
}

var analyzeCompareCmd = &cobra.Command{
	Use:   "compare <from> [to]",
	Short: "Analyze the differences between two versions",
	Long: `Analyze the differences between two commits. With a single
argument the comparison runs against the working tree.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAnalyzeCompare,
}

var analyzeFileHistoryCmd = &cobra.Command{
	Use:   "file-history <path>",
	Short: "Analyze the evolution of one file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyzeFileHistory,
}

var analyzeFileCompareCmd = &cobra.Command{
	Use:   "file-compare <path> <from> [to]",
	Short: "Analyze one file between two versions",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runAnalyzeFileCompare,
}

func init() {
	analyzeCmd.PersistentFlags().StringVar(&analyzeFormat, "format", "human", "Output format (json, human)")
	analyzeCmd.PersistentFlags().IntVar(&analyzeWaitSec, "wait", 60, "Seconds to wait for the AI result (0 skips waiting)")
	analyzeFileHistoryCmd.Flags().IntVar(&historyLimit, "limit", 50, "Number of commits to inspect")

	analyzeCmd.AddCommand(analyzeCommitCmd)
	analyzeCmd.AddCommand(analyzeCompareCmd)
	analyzeCmd.AddCommand(analyzeFileHistoryCmd)
	analyzeCmd.AddCommand(analyzeFileCompareCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// terminalWaiter collects the terminal event for one request.
type terminalWaiter struct {
	requestID string
	ch        chan routing.Event
}

func newTerminalWaiter() *terminalWaiter {
	return &terminalWaiter{ch: make(chan routing.Event, 16)}
}

func (w *terminalWaiter) Deliver(event routing.Event) {
	select {
	case w.ch <- event:
	default:
	}
}

func (w *terminalWaiter) wait(timeout time.Duration) (routing.Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case event := <-w.ch:
			if event.RequestID == w.requestID && event.Terminal() {
				return event, true
			}
		case <-deadline:
			return routing.Event{}, false
		}
	}
}

func runAnalyzeCommit(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	commitHash := args[0]
	waiter := newTerminalWaiter()
	token := eng.router.Attach(routing.Identity{Kind: routing.TargetCommit, CommitHash: commitHash}, waiter)
	defer eng.router.Detach(token)

	data, err := eng.orch.AnalyzeCommit(context.Background(), commitHash)
	if err != nil {
		return err
	}
	waiter.requestID = data.RequestID

	if analyzeFormat == "json" {
		printJSON(data)
	} else {
		fmt.Printf("commit %s\n", data.Details.Hash)
		fmt.Printf("Author:  %s <%s>\n", data.Details.Author, data.Details.Email)
		fmt.Printf("Subject: %s\n", data.Details.Subject)
		printChanges(data.Changes, data.Stats)
	}

	return awaitAnalysis(waiter)
}

func runAnalyzeCompare(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	fromHash := args[0]
	toHash := ""
	if len(args) > 1 {
		toHash = args[1]
	}

	waiter := newTerminalWaiter()
	token := eng.router.Attach(routing.Identity{
		Kind: routing.TargetComparison, CommitHash: fromHash, CompareWith: toHash,
	}, waiter)
	defer eng.router.Detach(token)

	data, err := eng.orch.AnalyzeComparison(context.Background(), fromHash, toHash)
	if err != nil {
		return err
	}
	waiter.requestID = data.RequestID

	if analyzeFormat == "json" {
		printJSON(data)
	} else {
		toLabel := toHash
		if toLabel == "" {
			toLabel = "working tree"
		}
		fmt.Printf("Comparing %s -> %s\n", fromHash, toLabel)
		printChanges(data.Changes, data.Stats)
	}

	return awaitAnalysis(waiter)
}

func runAnalyzeFileHistory(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	filePath := args[0]
	waiter := newTerminalWaiter()
	token := eng.router.Attach(routing.Identity{Kind: routing.TargetFileHistory, FilePath: filePath}, waiter)
	defer eng.router.Detach(token)

	data, err := eng.orch.AnalyzeFileHistory(context.Background(), filePath, historyLimit)
	if err != nil {
		return err
	}
	waiter.requestID = data.RequestID

	if analyzeFormat == "json" {
		printJSON(data)
	} else {
		fmt.Printf("History of %s (%d commits)\n\n", filePath, len(data.History))
		for _, entry := range data.History {
			fmt.Printf("  %.8s  %-20s  +%d/-%d  %s\n",
				entry.Hash, entry.Author, entry.Additions, entry.Deletions, entry.Message)
		}
	}

	return awaitAnalysis(waiter)
}

func runAnalyzeFileCompare(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(mustGetRepoRoot())
	if err != nil {
		return err
	}
	defer eng.close()

	filePath, fromHash := args[0], args[1]
	toHash := ""
	if len(args) > 2 {
		toHash = args[2]
	}

	waiter := newTerminalWaiter()
	token := eng.router.Attach(routing.Identity{
		Kind: routing.TargetFileCompare, CommitHash: fromHash, CompareWith: toHash, FilePath: filePath,
	}, waiter)
	defer eng.router.Detach(token)

	data, err := eng.orch.AnalyzeFileCompare(context.Background(), filePath, fromHash, toHash)
	if err != nil {
		return err
	}
	waiter.requestID = data.RequestID

	if analyzeFormat == "json" {
		printJSON(data)
	} else {
		fmt.Printf("Diff of %s\n\n%s\n", filePath, data.Diff)
	}

	return awaitAnalysis(waiter)
}

// awaitAnalysis blocks for the terminal event and prints the result.
func awaitAnalysis(waiter *terminalWaiter) error {
	if analyzeWaitSec <= 0 {
		return nil
	}
	if analyzeFormat != "json" {
		fmt.Println("\nWaiting for AI analysis...")
	}

	event, ok := waiter.wait(time.Duration(analyzeWaitSec) * time.Second)
	if !ok {
		fmt.Fprintln(os.Stderr, "AI analysis did not finish in time; it may still complete in the background")
		return nil
	}

	if analyzeFormat == "json" {
		printJSON(event)
		if event.Type == routing.EventFailed {
			os.Exit(1)
		}
		return nil
	}

	if event.Type == routing.EventFailed {
		return fmt.Errorf("%s (%s)", event.Message, event.ErrorKind)
	}

	fmt.Println("\nAI analysis:")
	switch payload := event.Payload.(type) {
	case string:
		fmt.Println(indent(payload))
	case *analyzer.Insights:
		printInsights(payload)
	default:
		printJSON(payload)
	}
	return nil
}

func printInsights(insights *analyzer.Insights) {
	fmt.Println(indent(insights.Summary))
	if insights.EvolutionPattern != "" {
		fmt.Printf("\nEvolution pattern:\n%s\n", indent(insights.EvolutionPattern))
	}
	if insights.ChangeType != "" {
		fmt.Printf("\nChange type: %s\n", insights.ChangeType)
	}
	if insights.ImpactAnalysis != "" {
		fmt.Printf("\nImpact:\n%s\n", indent(insights.ImpactAnalysis))
	}
	printList("Key changes", insights.KeyChanges)
	printList("Key modifications", insights.KeyModifications)
	printList("Recommendations", insights.Recommendations)
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func printChanges(changes []gitsource.FileChange, stats gitsource.ChangeStats) {
	fmt.Printf("\n%s\n\n", prompt.StatsLine(stats, false))
	for _, change := range changes {
		if change.OldPath != "" {
			fmt.Printf("  %s  %s <- %s\n", change.Type, change.Path, change.OldPath)
			continue
		}
		fmt.Printf("  %s  %s\n", change.Type, change.Path)
	}
}

func printJSON(payload interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(payload)
}

func indent(text string) string {
	return "  " + text
}
