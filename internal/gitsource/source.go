// Package gitsource supplies commit, diff and file-content data by
// shelling out to git. It is a thin glue layer: failures are wrapped
// and passed through, never retried.
package gitsource

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"histlens/internal/logging"
)

// Source reads repository data from a local git checkout.
type Source struct {
	repoRoot string
	logger   *logging.Logger
}

// New creates a source rooted at repoRoot.
func New(repoRoot string, logger *logging.Logger) *Source {
	return &Source{repoRoot: repoRoot, logger: logger}
}

// RepoRoot returns the repository root the source reads from.
func (s *Source) RepoRoot() string {
	return s.repoRoot
}

// git runs a git command in the repo root and returns trimmed stdout.
func (s *Source) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", s.repoRoot}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// CommitDetails returns the metadata for a single commit.
func (s *Source) CommitDetails(ctx context.Context, hash string) (*CommitDetails, error) {
	format := strings.Join([]string{"%H", "%an", "%ae", "%at", "%s", "%b"}, fieldSep)
	out, err := s.git(ctx, "show", "-s", "--format="+format, hash)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(out, fieldSep, 6)
	if len(parts) < 6 {
		return nil, fmt.Errorf("unexpected git show output for %s", hash)
	}

	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse author date for %s: %w", hash, err)
	}

	return &CommitDetails{
		Hash:       parts[0],
		Author:     parts[1],
		Email:      parts[2],
		AuthorDate: time.Unix(ts, 0),
		Subject:    parts[4],
		Body:       strings.TrimSpace(parts[5]),
	}, nil
}

// CommitChanges returns the file-change list for a single commit.
func (s *Source) CommitChanges(ctx context.Context, hash string) ([]FileChange, error) {
	out, err := s.git(ctx, "show", "--name-status", "--format=", hash)
	if err != nil {
		return nil, err
	}
	return parseNameStatus(out), nil
}

// CompareChanges returns the file changes between two commits. An
// empty toHash compares fromHash against the working tree, including
// untracked files.
func (s *Source) CompareChanges(ctx context.Context, fromHash, toHash string) ([]FileChange, error) {
	var out string
	var err error
	if toHash == "" {
		out, err = s.git(ctx, "diff", "--name-status", fromHash)
		if err != nil {
			return nil, err
		}
		changes := parseNameStatus(out)

		untracked, uerr := s.git(ctx, "ls-files", "--others", "--exclude-standard")
		if uerr != nil {
			return nil, uerr
		}
		for _, path := range strings.Split(untracked, "\n") {
			if path != "" {
				changes = append(changes, FileChange{Path: path, Type: Untracked})
			}
		}
		return changes, nil
	}

	out, err = s.git(ctx, "diff", "--name-status", fromHash, toHash)
	if err != nil {
		return nil, err
	}
	return parseNameStatus(out), nil
}

// CommitFileDiff returns the unified diff for one file in a commit.
func (s *Source) CommitFileDiff(ctx context.Context, hash, path string) (string, error) {
	return s.git(ctx, "show", "--format=", hash, "--", path)
}

// CompareFileDiff returns the unified diff for one file between two
// commits, in the order given. An empty toHash diffs against the
// working tree.
func (s *Source) CompareFileDiff(ctx context.Context, fromHash, toHash, path string) (string, error) {
	if toHash == "" {
		return s.git(ctx, "diff", fromHash, "--", path)
	}
	return s.git(ctx, "diff", fromHash, toHash, "--", path)
}

// FileAtRevision returns a file's full content at a revision. An empty
// revision reads the working-tree file.
func (s *Source) FileAtRevision(ctx context.Context, revision, path string) (string, error) {
	if revision == "" {
		data, err := os.ReadFile(filepath.Join(s.repoRoot, path))
		if err != nil {
			return "", fmt.Errorf("read working tree file %s: %w", path, err)
		}
		return string(data), nil
	}
	return s.git(ctx, "show", revision+":"+path)
}

// FileHistory returns up to limit commits touching a file, newest
// first, with per-commit line stats.
func (s *Source) FileHistory(ctx context.Context, path string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	format := "%H" + fieldSep + "%an" + fieldSep + "%at" + fieldSep + "%s" + recordSep
	out, err := s.git(ctx, "log", "--follow", "--numstat",
		"--format="+format, "-n", strconv.Itoa(limit), "--", path)
	if err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}

		// First line(s) up to the numstat block are the header fields;
		// numstat lines follow as "added\tdeleted\tpath".
		var header string
		var additions, deletions int
		for _, line := range strings.Split(record, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.Contains(line, fieldSep) {
				header = line
				continue
			}
			cols := strings.Split(line, "\t")
			if len(cols) >= 2 {
				// Binary files report "-"; treat as zero.
				if a, err := strconv.Atoi(cols[0]); err == nil {
					additions += a
				}
				if d, err := strconv.Atoi(cols[1]); err == nil {
					deletions += d
				}
			}
		}
		if header == "" {
			continue
		}

		parts := strings.SplitN(header, fieldSep, 4)
		if len(parts) < 4 {
			continue
		}
		ts, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			Hash:       parts[0],
			Author:     parts[1],
			AuthorDate: time.Unix(ts, 0),
			Message:    parts[3],
			Additions:  additions,
			Deletions:  deletions,
		})
	}
	return entries, nil
}

// ReadHead implements eligibility.ContentReader against the working
// tree.
func (s *Source) ReadHead(ctx context.Context, path string, maxBytes int) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	full := filepath.Join(s.repoRoot, path)
	info, err := os.Stat(full)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, maxBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, err
	}
	return buf[:n], info.Size(), nil
}

// parseNameStatus parses `git diff --name-status` output.
func parseNameStatus(out string) []FileChange {
	var changes []FileChange
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			continue
		}

		status := cols[0]
		switch {
		case strings.HasPrefix(status, "R"):
			if len(cols) >= 3 {
				changes = append(changes, FileChange{Path: cols[2], OldPath: cols[1], Type: Renamed})
			}
		case strings.HasPrefix(status, "C"):
			if len(cols) >= 3 {
				changes = append(changes, FileChange{Path: cols[2], OldPath: cols[1], Type: Added})
			}
		case status == "A":
			changes = append(changes, FileChange{Path: cols[1], Type: Added})
		case status == "D":
			changes = append(changes, FileChange{Path: cols[1], Type: Deleted})
		default:
			changes = append(changes, FileChange{Path: cols[1], Type: Modified})
		}
	}
	return changes
}
