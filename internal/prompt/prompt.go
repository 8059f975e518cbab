// Package prompt assembles the analyzer prompts for each analysis
// kind, applying the token budget to file payloads before rendering.
package prompt

import (
	"fmt"
	"strings"

	"histlens/internal/gitsource"
	"histlens/internal/tokens"
)

// Builder renders prompts within a model's token budget.
type Builder struct {
	budget    *tokens.Budget
	overrides *Overrides
}

// NewBuilder creates a builder for a model. overrides may be nil.
func NewBuilder(model string, overrides *Overrides) *Builder {
	if overrides == nil {
		overrides = &Overrides{}
	}
	return &Builder{
		budget:    tokens.NewBudget(model),
		overrides: overrides,
	}
}

// ChangeTypeDescription maps a change type to prose.
func ChangeTypeDescription(t gitsource.ChangeType) string {
	switch t {
	case gitsource.Added:
		return "added"
	case gitsource.Modified:
		return "modified"
	case gitsource.Deleted:
		return "deleted"
	case gitsource.Renamed:
		return "renamed"
	case gitsource.Untracked:
		return "untracked"
	default:
		return "changed"
	}
}

// StatsLine summarizes a change list for the prompt header.
func StatsLine(stats gitsource.ChangeStats, comparison bool) string {
	var parts []string
	if stats.Added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", stats.Added))
	}
	if stats.Modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", stats.Modified))
	}
	if stats.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", stats.Deleted))
	}
	if stats.Renamed > 0 {
		parts = append(parts, fmt.Sprintf("%d renamed", stats.Renamed))
	}
	if comparison && stats.Untracked > 0 {
		parts = append(parts, fmt.Sprintf("%d untracked", stats.Untracked))
	}

	noun := "This commit"
	if comparison {
		noun = "This comparison"
	}
	total := stats.Total()
	if !comparison {
		total -= stats.Untracked
	}
	return fmt.Sprintf("%s touches %d files: %s.", noun, total, strings.Join(parts, ", "))
}

// SingleDiff builds the prompt for one file's diff.
func (b *Builder) SingleDiff(filePath, diff string) string {
	if custom := b.overrides.Diff; custom != "" {
		return renderOverride(custom, filePath, diff)
	}

	fileName := baseName(filePath)
	return fmt.Sprintf(`Analyze the following git diff and provide a concise summary.

File information:
- Path: %s
- Name: %s

Diff:
`+"```diff\n%s\n```"+`

Answer in the format (at most 80 words):
%s: [brief file purpose]. [main functional impact of the change].

Requirements:
1. State the file's purpose briefly first.
2. Focus on functional impact, not low-level mechanics.
3. Avoid filler phrases like "this file".`,
		filePath, fileName, diff, fileName)
}

// CommitAnalysis builds the comprehensive prompt for a single commit.
func (b *Builder) CommitAnalysis(details *gitsource.CommitDetails, files []tokens.FilePayload, stats gitsource.ChangeStats) string {
	files = b.budget.OptimizeFiles(files)

	var sb strings.Builder
	if custom := b.overrides.Commit; custom != "" {
		sb.WriteString(custom)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Provide a holistic analysis of the following git commit.\n\n")
	}

	body := details.Body
	if body == "" {
		body = details.Subject
	}
	fmt.Fprintf(&sb, "Commit information:\n- Hash: %.8s\n- Author: %s\n- Message: %s\n- %s\n\nMain file changes:\n",
		details.Hash, details.Author, truncate(body, 100), StatsLine(stats, false))

	writeFileSections(&sb, files)

	sb.WriteString(`
Cover, in under 150 words:
1. The main purpose and intent of the commit.
2. The core features or modules involved.
3. Technical impact and business value.
4. Code quality and architecture observations.`)
	return sb.String()
}

// ComparisonAnalysis builds the comprehensive prompt for a
// commit-to-commit (or commit-to-working-tree) comparison.
func (b *Builder) ComparisonAnalysis(fromHash, toHash string, files []tokens.FilePayload, stats gitsource.ChangeStats) string {
	files = b.budget.OptimizeFiles(files)

	var sb strings.Builder
	if custom := b.overrides.Comparison; custom != "" {
		sb.WriteString(custom)
		sb.WriteString("\n\n")
	} else if toHash == "" {
		sb.WriteString("Provide a holistic analysis of the following uncommitted working-tree changes, including whether they look ready to commit.\n\n")
	} else {
		sb.WriteString("Provide a holistic analysis of the differences between two repository versions.\n\n")
	}

	if toHash == "" {
		fmt.Fprintf(&sb, "Comparison: %.8s against the working tree\n- %s\n\nMain file changes:\n", fromHash, StatsLine(stats, true))
	} else {
		fmt.Fprintf(&sb, "Comparison: %.8s → %.8s\n- %s\n\nMain file changes:\n", fromHash, toHash, StatsLine(stats, true))
	}

	writeFileSections(&sb, files)

	sb.WriteString(`
Cover, in under 150 words:
1. The main differences and direction of evolution between the versions.
2. The core functional changes.
3. Architectural or design improvements.
4. Potential impact and risks.`)
	return sb.String()
}

// FileHistoryAnalysis builds the prompt for a whole-file evolution
// analysis. The response is requested as structured JSON.
func (b *Builder) FileHistoryAnalysis(filePath string, history []gitsource.HistoryEntry) string {
	var sb strings.Builder
	if custom := b.overrides.FileHistory; custom != "" {
		sb.WriteString(custom)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Analyze the evolution of the following file across its commit history.\n\n")
	}

	totalAdd, totalDel := 0, 0
	authorCounts := map[string]int{}
	for _, entry := range history {
		totalAdd += entry.Additions
		totalDel += entry.Deletions
		authorCounts[entry.Author]++
	}

	fmt.Fprintf(&sb, "File: %s\nCommits: %d\nLines added: %d\nLines deleted: %d\nTop contributors: %s\n\nRecent history:\n",
		filePath, len(history), totalAdd, totalDel, topAuthors(authorCounts, 3))

	limit := len(history)
	if limit > 10 {
		limit = 10
	}
	for i, entry := range history[:limit] {
		fmt.Fprintf(&sb, "%d. [%s] %s\n   %s (+%d/-%d)\n",
			i+1, entry.AuthorDate.Format("2006-01-02"), entry.Author,
			truncate(firstLine(entry.Message), 100), entry.Additions, entry.Deletions)
	}

	sb.WriteString(`
Return strictly valid JSON with exactly these fields and no other text:
{
  "summary": "overall evolution of the file, under 80 words",
  "evolutionPattern": "development activity and change-frequency pattern, under 80 words",
  "keyChanges": ["up to three key change points, each under 35 words"],
  "recommendations": ["up to three improvement suggestions, each under 35 words"]
}
Do not wrap the JSON in a code fence.`)
	return sb.String()
}

// FileCompareAnalysis builds the prompt for a file version comparison.
func (b *Builder) FileCompareAnalysis(filePath, fromHash, toHash, diff, contentBefore, contentAfter string) string {
	diff = tokens.CompressDiff(diff, b.budget.Available/2, false)

	var sb strings.Builder
	if custom := b.overrides.FileCompare; custom != "" {
		sb.WriteString(custom)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Analyze the following comparison between two versions of one file.\n\n")
	}

	toLabel := toHash
	if toLabel == "" {
		toLabel = "working tree"
	}
	fmt.Fprintf(&sb, "File: %s\nFrom version: %.8s\nTo version: %.8s\n\nDiff:\n```diff\n%s\n```\n",
		filePath, fromHash, toLabel, diff)

	if contentBefore != "" && contentAfter != "" {
		fmt.Fprintf(&sb, "\nBefore (first 200 chars):\n```\n%s\n```\n\nAfter (first 200 chars):\n```\n%s\n```\n",
			truncate(contentBefore, 200), truncate(contentAfter, 200))
	}

	sb.WriteString(`
Return strictly valid JSON with exactly these fields and no other text:
{
  "summary": "brief summary of the change, under 100 words",
  "changeType": "kind of change (feature, bug fix, refactoring, ...)",
  "impactAnalysis": "impact on the system, users and performance",
  "keyModifications": ["up to three key modification points, each under 50 words"],
  "recommendations": ["up to two suggestions or cautions, each under 50 words"]
}`)
	return sb.String()
}

func writeFileSections(sb *strings.Builder, files []tokens.FilePayload) {
	for i, file := range files {
		fmt.Fprintf(sb, "\n%d. File: %s\n   Change: %s\n\n   Diff:\n```diff\n%s\n```\n",
			i+1, file.Path, file.ChangeType, file.Diff)
	}
}

func topAuthors(counts map[string]int, n int) string {
	type authorCount struct {
		name  string
		count int
	}
	var list []authorCount
	for name, count := range counts {
		list = append(list, authorCount{name, count})
	}
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if list[j].count > list[i].count {
				list[i], list[j] = list[j], list[i]
			}
		}
	}
	if len(list) > n {
		list = list[:n]
	}
	var parts []string
	for _, a := range list {
		parts = append(parts, fmt.Sprintf("%s (%d commits)", a.name, a.count))
	}
	return strings.Join(parts, ", ")
}

func renderOverride(template, filePath, diff string) string {
	out := strings.ReplaceAll(template, "{{path}}", filePath)
	return strings.ReplaceAll(out, "{{diff}}", diff)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func baseName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
