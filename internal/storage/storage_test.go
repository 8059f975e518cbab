package storage

import (
	"io"
	"testing"
	"time"

	"histlens/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: io.Discard}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndAggregate(t *testing.T) {
	db := testDB(t)

	records := []MetricRecord{
		{RequestID: "r1", AnalysisKind: "commit", FilesExamined: 8, FilesAnalyzed: 5, EstimatedTokens: 1200, LatencyMs: 900, Outcome: "completed"},
		{RequestID: "r2", AnalysisKind: "commit", FilesExamined: 3, FilesAnalyzed: 3, CacheHit: true, LatencyMs: 4, Outcome: "completed"},
		{RequestID: "r3", AnalysisKind: "fileHistory", FilesAnalyzed: 1, LatencyMs: 1500, Outcome: "failed", ErrorKind: "timeout"},
	}
	for _, rec := range records {
		if err := db.RecordAnalysis(rec); err != nil {
			t.Fatal(err)
		}
	}

	aggs, err := db.GetAggregates(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	commit := aggs["commit"]
	if commit == nil || commit.RequestCount != 2 {
		t.Fatalf("unexpected commit aggregate %+v", commit)
	}
	if commit.CacheHits != 1 || commit.CacheHitRate() != 0.5 {
		t.Errorf("unexpected cache hit rate %v", commit.CacheHitRate())
	}
	if commit.TotalTokens != 1200 {
		t.Errorf("unexpected token total %d", commit.TotalTokens)
	}

	history := aggs["fileHistory"]
	if history == nil || history.Failures != 1 {
		t.Fatalf("unexpected history aggregate %+v", history)
	}
}

func TestAggregateWindow(t *testing.T) {
	db := testDB(t)
	if err := db.RecordAnalysis(MetricRecord{RequestID: "r1", AnalysisKind: "commit", Outcome: "completed"}); err != nil {
		t.Fatal(err)
	}

	aggs, err := db.GetAggregates(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(aggs) != 0 {
		t.Errorf("future window should exclude all records, got %d", len(aggs))
	}
}

func TestGetRecentRecords(t *testing.T) {
	db := testDB(t)
	for _, kind := range []string{"commit", "comparison", "commit"} {
		if err := db.RecordAnalysis(MetricRecord{RequestID: "r", AnalysisKind: kind, Outcome: "completed"}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.GetRecentRecords(10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	commits, err := db.GetRecentRecords(10, "commit")
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Errorf("expected 2 commit records, got %d", len(commits))
	}

	limited, err := db.GetRecentRecords(1, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 record with limit, got %d", len(limited))
	}
}

func TestPruneMetrics(t *testing.T) {
	db := testDB(t)
	if err := db.RecordAnalysis(MetricRecord{RequestID: "r1", AnalysisKind: "commit", Outcome: "completed"}); err != nil {
		t.Fatal(err)
	}

	removed, err := db.PruneMetrics(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("expected 1 pruned record, got %d", removed)
	}

	rest, err := db.GetRecentRecords(10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Errorf("expected no records after prune, got %d", len(rest))
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: io.Discard})

	db, err := Open(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.GetRecentRecords(1, ""); err != nil {
		t.Fatal(err)
	}
}
