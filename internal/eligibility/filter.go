// Package eligibility decides, per file, whether the file's content is
// worth sending to the external analyzer. The decision is an ordered
// pipeline of predicates; the first definite answer wins.
package eligibility

import (
	"context"
	"path/filepath"
	"strings"

	"histlens/internal/config"
	"histlens/internal/logging"
)

// Decision is the outcome of one pipeline predicate.
type Decision int

const (
	// Undecided defers to the next predicate in the pipeline
	Undecided Decision = iota
	// Eligible marks the file as analyzable text
	Eligible
	// Ineligible excludes the file from analysis
	Ineligible
)

// SampleSize is how many bytes of a file's head the deep sniff reads.
const SampleSize = 512

// ContentReader supplies file heads for deep inspection. Implemented
// by the VCS data source; nil when no accessor is available.
type ContentReader interface {
	// ReadHead returns up to maxBytes from the start of the file and
	// the file's total size in bytes.
	ReadHead(ctx context.Context, path string, maxBytes int) ([]byte, int64, error)
}

// Filter runs the eligibility pipeline.
type Filter struct {
	allowExt map[string]bool
	denyExt  map[string]bool

	deepInspection bool
	maxFileSize    int64

	reader ContentReader
	logger *logging.Logger

	cfg config.FilterConfig
}

// New builds a filter from configuration. Extra allow/deny extensions
// from the config (and its optional policy file) extend the built-in
// lists.
func New(cfg config.FilterConfig, reader ContentReader, logger *logging.Logger) *Filter {
	f := &Filter{
		allowExt:       make(map[string]bool, len(defaultAllowExtensions)),
		denyExt:        make(map[string]bool, len(defaultDenyExtensions)),
		deepInspection: cfg.DeepInspection,
		maxFileSize:    cfg.MaxFileSizeBytes,
		reader:         reader,
		logger:         logger,
		cfg:            cfg,
	}
	if f.maxFileSize <= 0 {
		f.maxFileSize = 1 << 20
	}

	for _, ext := range defaultAllowExtensions {
		f.allowExt[ext] = true
	}
	for _, ext := range defaultDenyExtensions {
		f.denyExt[ext] = true
	}
	for _, ext := range cfg.AllowExtensions {
		f.allowExt[normalizeExt(ext)] = true
	}
	for _, ext := range cfg.DenyExtensions {
		f.denyExt[normalizeExt(ext)] = true
	}

	return f
}

// IsEligible runs the pipeline for a single file path.
func (f *Filter) IsEligible(ctx context.Context, path string) bool {
	ext := normalizeExt(filepath.Ext(path))

	if f.denyExt[ext] {
		return false
	}
	if ext != "" && f.allowExt[ext] {
		return true
	}

	// Without deep inspection (or an accessor) fall back to filename
	// heuristics; anything still undecided is excluded.
	if !f.deepInspection || f.reader == nil {
		return filenameHeuristic(path) == Eligible
	}
	if d := filenameHeuristic(path); d == Eligible {
		return true
	}

	switch f.deepSniff(ctx, path) {
	case Eligible:
		return true
	default:
		return false
	}
}

// deepSniff reads the file head and applies byte-level heuristics.
// Any read failure is treated as ineligible.
func (f *Filter) deepSniff(ctx context.Context, path string) Decision {
	sample, totalSize, err := f.reader.ReadHead(ctx, path, SampleSize)
	if err != nil {
		f.logger.Debug("Eligibility content read failed", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return Ineligible
	}

	if totalSize > f.maxFileSize {
		return Ineligible
	}
	return SniffContent(sample)
}

// SniffContent classifies a head sample as text worth analyzing.
// Exported for direct testing against raw byte sequences.
func SniffContent(sample []byte) Decision {
	if len(sample) == 0 {
		return Ineligible
	}

	if hasInterpreterMarker(sample) {
		return Eligible
	}
	for _, b := range sample {
		if b == 0 {
			return Ineligible
		}
	}
	if printableFraction(sample) < 0.7 {
		return Ineligible
	}
	if hasStructuralCues(sample) {
		return Eligible
	}
	return Ineligible
}

func hasInterpreterMarker(sample []byte) bool {
	if len(sample) < 3 || sample[0] != '#' || sample[1] != '!' {
		return false
	}
	firstLine := string(sample)
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	for _, interp := range []string{"sh", "bash", "zsh", "python", "node", "perl", "ruby", "env"} {
		if strings.Contains(firstLine, interp) {
			return true
		}
	}
	return false
}

func printableFraction(sample []byte) float64 {
	printable := 0
	for _, b := range sample {
		if b == '\t' || b == '\n' || b == '\r' || (b >= 0x20 && b < 0x7f) || b >= 0x80 {
			printable++
		}
	}
	return float64(printable) / float64(len(sample))
}

var structuralKeywords = []string{
	"function", "func ", "class ", "def ", "import ", "package ",
	"const ", "var ", "return", "public ", "private ", "module",
	"#include", "require", "struct ", "interface ",
}

func hasStructuralCues(sample []byte) bool {
	text := string(sample)

	// Markup tags.
	if strings.Contains(text, "</") || strings.Contains(text, "<!") {
		return true
	}
	if idx := strings.IndexByte(text, '<'); idx >= 0 && idx+1 < len(text) {
		c := text[idx+1]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}

	// Structured-data openers.
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return true
	}

	// key: value / key = value lines.
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			// Comment lines still indicate text config/source.
			if line != "" {
				return true
			}
			continue
		}
		if idx := strings.IndexAny(line, ":="); idx > 0 && idx < len(line)-1 {
			return true
		}
	}

	for _, kw := range structuralKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// filenameHeuristic recognizes well-known text files that carry no
// useful extension.
func filenameHeuristic(path string) Decision {
	name := filepath.Base(path)
	upper := strings.ToUpper(name)

	for _, prefix := range []string{"README", "LICENSE", "CHANGELOG", "CONTRIBUTING", "AUTHORS", "NOTICE", "TODO", "COPYING"} {
		if strings.HasPrefix(upper, prefix) {
			return Eligible
		}
	}
	switch name {
	case "Makefile", "makefile", "GNUmakefile", "Dockerfile", "Jenkinsfile",
		"Rakefile", "Gemfile", "Procfile", "Vagrantfile", "Brewfile", "Justfile":
		return Eligible
	}
	switch name {
	case ".gitignore", ".gitattributes", ".gitmodules", ".editorconfig",
		".dockerignore", ".npmrc", ".nvmrc", ".prettierrc", ".eslintrc",
		".babelrc", ".env", ".env.example":
		return Eligible
	}
	return Undecided
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
