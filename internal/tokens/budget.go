// Package tokens keeps analyzer payloads inside a model's context
// window. Estimation is a cheap character-ratio heuristic; precision
// does not matter, staying under the limit does.
package tokens

import (
	"fmt"
	"strings"
)

// modelLimits maps known model names to their context window size.
var modelLimits = map[string]int{
	"deepseek-v3":  32768,
	"deepseek-r1":  32768,
	"gpt-4":        8192,
	"gpt-4-32k":    32768,
	"gpt-4.1":      1047576,
	"gpt-4.1-mini": 1047576,
}

const (
	defaultLimit = 32768
	// responseReserve is withheld from the window for the reply.
	responseReserve = 800
	// largeModelReserve applies above largeContextThreshold.
	largeModelReserve     = 2000
	largeContextThreshold = 100000
	// basePromptReserve approximates the prompt scaffolding around
	// the file payloads.
	basePromptReserve = 300
)

// Budget tracks the usable token window for one model.
type Budget struct {
	Model     string
	Max       int
	Available int
}

// NewBudget creates a budget for a model, falling back to a
// conservative default window for unknown names.
func NewBudget(model string) *Budget {
	max, ok := modelLimits[model]
	if !ok {
		max = defaultLimit
	}
	reserve := responseReserve
	if max > largeContextThreshold {
		reserve = largeModelReserve
	}
	return &Budget{
		Model:     model,
		Max:       max,
		Available: max - reserve,
	}
}

// Estimate approximates the token count of text. Code averages about
// one token per 3 characters, prose about one per 4.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	if isCodeContent(text) {
		return len(text) / 3
	}
	return len(text) / 4
}

var codeIndicators = []string{
	"```", "function", "class ", "def ", "import ", "require",
	"{}", "[]", "()", "=>", "->", "::",
	"+++", "---", "@@", "diff",
}

func isCodeContent(text string) bool {
	count := 0
	for _, indicator := range codeIndicators {
		if strings.Contains(text, indicator) {
			count++
			if count >= 2 {
				return true
			}
		}
	}
	return false
}

// FilePayload is one file's contribution to an analyzer prompt.
type FilePayload struct {
	Path       string
	ChangeType string
	Diff       string
}

func (p FilePayload) estimate() int {
	// Path plus a small fixed overhead for the change-type line.
	return Estimate(p.Path) + 10 + Estimate(p.Diff)
}

// OptimizeFiles fits the payload list into the budget: diffs are
// compressed rather than files dropped, and only when even an
// aggressively compressed file cannot fit is the tail cut off.
func (b *Budget) OptimizeFiles(files []FilePayload) []FilePayload {
	if len(files) == 0 {
		return nil
	}

	available := b.Available - basePromptReserve
	if available < 100 {
		return nil
	}

	var optimized []FilePayload
	used := 0
	for _, file := range files {
		remaining := available - used
		if remaining < 50 {
			break
		}

		if cost := file.estimate(); cost > remaining {
			file.Diff = CompressDiff(file.Diff, remaining-30, false)
		}

		cost := file.estimate()
		if used+cost <= available {
			optimized = append(optimized, file)
			used += cost
			continue
		}

		if remaining > 50 {
			file.Diff = CompressDiff(file.Diff, remaining-20, true)
			if cost := file.estimate(); used+cost <= available {
				optimized = append(optimized, file)
				used += cost
			}
		}
		break
	}
	return optimized
}

// Fits reports whether a fully assembled prompt is inside the budget,
// along with its estimated size.
func (b *Budget) Fits(prompt string) (bool, int) {
	estimated := Estimate(prompt)
	return estimated <= b.Available, estimated
}

// CompressDiff shrinks a diff toward targetTokens. Regular mode keeps
// all +/-/@@ lines and as much context as fits; aggressive mode keeps
// only a capped sample of changed lines with counts for the rest.
func CompressDiff(diff string, targetTokens int, aggressive bool) string {
	if diff == "" || targetTokens <= 0 {
		return ""
	}
	if Estimate(diff) <= targetTokens {
		return diff
	}
	if aggressive {
		return aggressiveCompress(diff, targetTokens)
	}
	return regularCompress(diff, targetTokens)
}

func regularCompress(diff string, targetTokens int) string {
	lines := strings.Split(diff, "\n")

	var important, context []string
	for _, line := range lines {
		if strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "+++") ||
			strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+") ||
			strings.HasPrefix(line, "-") {
			important = append(important, line)
		} else {
			context = append(context, line)
		}
	}

	targetChars := targetTokens * 3
	result := important
	currentChars := joinedLen(result)
	for _, line := range context {
		if currentChars+len(line)+1 > targetChars {
			break
		}
		result = append(result, line)
		currentChars += len(line) + 1
	}

	text := strings.Join(result, "\n")
	if len(text) > targetChars {
		text = text[:targetChars] + "\n...[truncated]"
	}
	return text
}

const sampleLines = 3

func aggressiveCompress(diff string, targetTokens int) string {
	var added, removed, headers []string
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			headers = append(headers, line)
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			added = append(added, line)
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			removed = append(removed, line)
		}
	}

	var parts []string
	if len(headers) > 0 {
		parts = append(parts, headers[0])
	}
	parts = appendSample(parts, added, "added")
	parts = appendSample(parts, removed, "removed")

	text := strings.Join(parts, "\n")
	targetChars := targetTokens * 4
	if len(text) > targetChars {
		text = text[:targetChars] + "\n...[heavily truncated]"
	}
	return text
}

func appendSample(parts, lines []string, label string) []string {
	if len(lines) == 0 {
		return parts
	}
	parts = append(parts, fmt.Sprintf("[%d lines %s]", len(lines), label))
	n := sampleLines
	if len(lines) < n {
		n = len(lines)
	}
	parts = append(parts, lines[:n]...)
	if len(lines) > n {
		parts = append(parts, fmt.Sprintf("...[%d more lines %s]", len(lines)-n, label))
	}
	return parts
}

func joinedLen(lines []string) int {
	total := 0
	for _, line := range lines {
		total += len(line) + 1
	}
	return total
}
