package storage

import (
	"time"
)

// MetricRecord is one finished analysis request.
type MetricRecord struct {
	ID              int64
	RequestID       string
	AnalysisKind    string
	FilesExamined   int
	FilesAnalyzed   int
	CacheHit        bool
	EstimatedTokens int
	LatencyMs       int64
	Outcome         string
	ErrorKind       string
	RecordedAt      time.Time
}

// MetricAggregate represents aggregated stats for one analysis kind
type MetricAggregate struct {
	AnalysisKind string `json:"analysisKind"`
	RequestCount int64  `json:"requestCount"`
	CacheHits    int64  `json:"cacheHits"`
	Failures     int64  `json:"failures"`
	TotalFiles   int64  `json:"totalFilesAnalyzed"`
	TotalTokens  int64  `json:"totalEstimatedTokens"`
	TotalMs      int64  `json:"totalLatencyMs"`
}

// CacheHitRate returns the fraction of requests served from cache
func (a *MetricAggregate) CacheHitRate() float64 {
	if a.RequestCount == 0 {
		return 0
	}
	return float64(a.CacheHits) / float64(a.RequestCount)
}

// AvgLatencyMs returns the average latency in milliseconds
func (a *MetricAggregate) AvgLatencyMs() float64 {
	if a.RequestCount == 0 {
		return 0
	}
	return float64(a.TotalMs) / float64(a.RequestCount)
}

// RecordAnalysis persists one finished analysis request
func (db *DB) RecordAnalysis(rec MetricRecord) error {
	cacheHit := 0
	if rec.CacheHit {
		cacheHit = 1
	}
	_, err := db.Exec(`
		INSERT INTO analysis_metrics (
			request_id, analysis_kind, files_examined, files_analyzed,
			cache_hit, estimated_tokens, latency_ms, outcome, error_kind, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RequestID, rec.AnalysisKind, rec.FilesExamined, rec.FilesAnalyzed,
		cacheHit, rec.EstimatedTokens, rec.LatencyMs, rec.Outcome, rec.ErrorKind,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetAggregates returns aggregated metrics per analysis kind within the time window
func (db *DB) GetAggregates(since time.Time) (map[string]*MetricAggregate, error) {
	rows, err := db.Query(`
		SELECT
			analysis_kind,
			COUNT(*) as request_count,
			SUM(cache_hit) as cache_hits,
			SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END) as failures,
			SUM(files_analyzed) as total_files,
			SUM(estimated_tokens) as total_tokens,
			SUM(latency_ms) as total_ms
		FROM analysis_metrics
		WHERE recorded_at >= ?
		GROUP BY analysis_kind
		ORDER BY request_count DESC
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]*MetricAggregate)
	for rows.Next() {
		var agg MetricAggregate
		if err := rows.Scan(
			&agg.AnalysisKind,
			&agg.RequestCount,
			&agg.CacheHits,
			&agg.Failures,
			&agg.TotalFiles,
			&agg.TotalTokens,
			&agg.TotalMs,
		); err != nil {
			return nil, err
		}
		result[agg.AnalysisKind] = &agg
	}
	return result, rows.Err()
}

// GetRecentRecords returns recent records, optionally filtered by kind
func (db *DB) GetRecentRecords(limit int, kindFilter string) ([]MetricRecord, error) {
	query := `
		SELECT id, request_id, analysis_kind, files_examined, files_analyzed,
		       cache_hit, estimated_tokens, latency_ms, outcome,
		       COALESCE(error_kind, ''), recorded_at
		FROM analysis_metrics
	`
	args := []interface{}{}
	if kindFilter != "" {
		query += " WHERE analysis_kind = ?"
		args = append(args, kindFilter)
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MetricRecord
	for rows.Next() {
		var rec MetricRecord
		var cacheHit int
		var recordedAt string
		if err := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.AnalysisKind, &rec.FilesExamined,
			&rec.FilesAnalyzed, &cacheHit, &rec.EstimatedTokens, &rec.LatencyMs,
			&rec.Outcome, &rec.ErrorKind, &recordedAt,
		); err != nil {
			return nil, err
		}
		rec.CacheHit = cacheHit != 0
		rec.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PruneMetrics deletes records older than the cutoff and returns the
// number removed
func (db *DB) PruneMetrics(before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM analysis_metrics WHERE recorded_at < ?`,
		before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
