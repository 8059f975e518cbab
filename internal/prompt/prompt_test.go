package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"histlens/internal/gitsource"
	"histlens/internal/tokens"
)

func TestSingleDiff(t *testing.T) {
	b := NewBuilder("gpt-4.1-mini", nil)
	out := b.SingleDiff("src/app/main.go", "+added line\n-removed line\n")

	if !strings.Contains(out, "src/app/main.go") {
		t.Error("prompt missing file path")
	}
	if !strings.Contains(out, "Name: main.go") {
		t.Error("prompt missing base name")
	}
	if !strings.Contains(out, "+added line") {
		t.Error("prompt missing diff content")
	}
}

func TestSingleDiffOverride(t *testing.T) {
	b := NewBuilder("gpt-4.1-mini", &Overrides{Diff: "Summarize {{path}}:\n{{diff}}"})
	out := b.SingleDiff("a.go", "+x\n")

	if out != "Summarize a.go:\n+x\n" {
		t.Errorf("override not applied, got %q", out)
	}
}

func TestCommitAnalysis(t *testing.T) {
	b := NewBuilder("gpt-4.1-mini", nil)
	details := &gitsource.CommitDetails{
		Hash:    "abcdef1234567890",
		Author:  "dev",
		Subject: "add retry logic",
	}
	files := []tokens.FilePayload{
		{Path: "retry.go", ChangeType: "added", Diff: "+func Retry() {}\n"},
	}
	stats := gitsource.ChangeStats{Added: 1}

	out := b.CommitAnalysis(details, files, stats)
	for _, want := range []string{"abcdef12", "add retry logic", "retry.go", "1 added", "main purpose"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestComparisonAnalysisWorkingTree(t *testing.T) {
	b := NewBuilder("gpt-4.1-mini", nil)
	out := b.ComparisonAnalysis("abcdef1234567890", "", nil, gitsource.ChangeStats{Modified: 2, Untracked: 1})

	if !strings.Contains(out, "working tree") {
		t.Error("working-tree comparison should be labelled")
	}
	if !strings.Contains(out, "1 untracked") {
		t.Error("untracked count should appear for comparisons")
	}
}

func TestFileHistoryAnalysisRequestsJSON(t *testing.T) {
	b := NewBuilder("gpt-4.1-mini", nil)
	history := []gitsource.HistoryEntry{
		{Hash: "aaa", Author: "alice", AuthorDate: time.Now(), Message: "initial\nbody", Additions: 100, Deletions: 0},
		{Hash: "bbb", Author: "bob", AuthorDate: time.Now(), Message: "fix", Additions: 5, Deletions: 3},
		{Hash: "ccc", Author: "alice", AuthorDate: time.Now(), Message: "refactor", Additions: 20, Deletions: 30},
	}

	out := b.FileHistoryAnalysis("pkg/core.go", history)
	for _, want := range []string{"pkg/core.go", "Commits: 3", "alice (2 commits)", `"evolutionPattern"`, `"keyChanges"`} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(out, "initial\nbody") {
		t.Error("multi-line commit messages should be reduced to the first line")
	}
}

func TestFileCompareAnalysis(t *testing.T) {
	b := NewBuilder("gpt-4.1-mini", nil)
	out := b.FileCompareAnalysis("a.go", "1111111111", "2222222222", "+x\n-y\n", "old body", "new body")

	for _, want := range []string{"11111111", "22222222", `"changeType"`, `"impactAnalysis"`, "old body"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestStatsLine(t *testing.T) {
	line := StatsLine(gitsource.ChangeStats{Added: 2, Deleted: 1}, false)
	if line != "This commit touches 3 files: 2 added, 1 deleted." {
		t.Errorf("unexpected stats line %q", line)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.toml")
	content := "diff = \"custom {{path}}\"\ncommit = \"custom commit intro\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	overrides, err := LoadOverrides(path)
	if err != nil {
		t.Fatal(err)
	}
	if overrides.Diff != "custom {{path}}" || overrides.Commit != "custom commit intro" {
		t.Errorf("unexpected overrides %+v", overrides)
	}

	empty, err := LoadOverrides(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if empty.Diff != "" {
		t.Error("missing file should yield empty overrides")
	}
}
