package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Kind identifies which analysis shape a cache key belongs to.
type Kind string

const (
	// KindCommit is a single-commit analysis
	KindCommit Kind = "commit"
	// KindComparison is a commit-to-commit comparison analysis
	KindComparison Kind = "comparison"
	// KindFileHistory is a whole-file evolution analysis
	KindFileHistory Kind = "file-history"
	// KindFileCompare is a file-version-to-file-version analysis
	KindFileCompare Kind = "file-compare"
)

// WorkingTree is the sentinel used in place of a commit hash when a
// request targets uncommitted working-tree content.
const WorkingTree = "working-tree"

// Key computes the content-addressed cache key for an analysis
// request. Fields are length-prefixed before hashing so that adjacent
// values can never collide by concatenation ("ab","c" vs "a","bc").
// Empty fields encode as "0:". Output is lowercase SHA-256 hex.
func Key(kind Kind, fields ...string) string {
	var builder strings.Builder

	builder.WriteString(strconv.Itoa(len(kind)))
	builder.WriteByte(':')
	builder.WriteString(string(kind))

	for _, field := range fields {
		builder.WriteString(strconv.Itoa(len(field)))
		builder.WriteByte(':')
		builder.WriteString(field)
	}

	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:])
}

// CommitKey returns the key for a single-commit analysis.
func CommitKey(commitHash string, fileCount int) string {
	return Key(KindCommit, commitHash, strconv.Itoa(fileCount))
}

// ComparisonKey returns the key for a commit comparison analysis.
// The hashes are taken in the order the user chose them; comparing
// A to B and B to A are distinct logical requests.
func ComparisonKey(commitHash, compareWithHash string, fileCount int) string {
	if compareWithHash == "" {
		compareWithHash = WorkingTree
	}
	return Key(KindComparison, commitHash, compareWithHash, strconv.Itoa(fileCount))
}

// FileHistoryKey returns the key for a whole-file evolution analysis.
func FileHistoryKey(filePath string, commitCount int) string {
	return Key(KindFileHistory, filePath, strconv.Itoa(commitCount))
}

// FileCompareKey returns the key for a file version comparison.
func FileCompareKey(filePath, fromHash, toHash string) string {
	if toHash == "" {
		toHash = WorkingTree
	}
	return Key(KindFileCompare, filePath, fromHash, toHash)
}
