package gitsource

import "time"

// ChangeType is the single-letter git status of a file change.
type ChangeType string

const (
	// Added file
	Added ChangeType = "A"
	// Modified file
	Modified ChangeType = "M"
	// Deleted file
	Deleted ChangeType = "D"
	// Renamed file
	Renamed ChangeType = "R"
	// Untracked file (working-tree comparisons only)
	Untracked ChangeType = "U"
)

// CommitDetails holds the cheap metadata for a single commit.
type CommitDetails struct {
	Hash       string    `json:"hash"`
	Author     string    `json:"author"`
	Email      string    `json:"email"`
	AuthorDate time.Time `json:"authorDate"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
}

// FileChange is one changed file within a commit or comparison.
type FileChange struct {
	Path    string     `json:"path"`
	OldPath string     `json:"oldPath,omitempty"` // set for renames
	Type    ChangeType `json:"type"`
}

// ChangeStats aggregates a change list by type.
type ChangeStats struct {
	Added     int `json:"added"`
	Modified  int `json:"modified"`
	Deleted   int `json:"deleted"`
	Renamed   int `json:"renamed"`
	Untracked int `json:"untracked"`
}

// Total returns the total number of changed files.
func (s ChangeStats) Total() int {
	return s.Added + s.Modified + s.Deleted + s.Renamed + s.Untracked
}

// StatsFor aggregates a change list.
func StatsFor(changes []FileChange) ChangeStats {
	var stats ChangeStats
	for _, c := range changes {
		switch c.Type {
		case Added:
			stats.Added++
		case Modified:
			stats.Modified++
		case Deleted:
			stats.Deleted++
		case Renamed:
			stats.Renamed++
		case Untracked:
			stats.Untracked++
		}
	}
	return stats
}

// HistoryEntry is one commit in a single file's history.
type HistoryEntry struct {
	Hash       string    `json:"hash"`
	Author     string    `json:"author"`
	AuthorDate time.Time `json:"authorDate"`
	Message    string    `json:"message"`
	Additions  int       `json:"additions"`
	Deletions  int       `json:"deletions"`
}
