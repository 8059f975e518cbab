package eligibility

import (
	"context"
	"time"
)

// BatchResult reports the outcome of a deadline-bounded batch filter.
type BatchResult struct {
	// Eligible holds the paths that passed the filter, in input order.
	Eligible []string
	// Examined is how many candidates were actually checked before the
	// budget ran out. Unexamined candidates are excluded, not assumed
	// eligible.
	Examined int
	// Truncated is true when the budget expired before every candidate
	// was checked.
	Truncated bool
}

// FilterBatch checks candidates in order under an overall wall-clock
// budget. A candidate whose individual check exceeds perFileTimeout is
// treated as ineligible without aborting the batch.
func (f *Filter) FilterBatch(ctx context.Context, paths []string, budget, perFileTimeout time.Duration) BatchResult {
	if budget <= 0 {
		budget = 10 * time.Second
	}
	if perFileTimeout <= 0 {
		perFileTimeout = time.Second
	}

	deadline := time.Now().Add(budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result := BatchResult{}
	for _, path := range paths {
		if time.Now().After(deadline) || ctx.Err() != nil {
			result.Truncated = true
			break
		}

		if f.checkWithTimeout(ctx, path, perFileTimeout) {
			result.Eligible = append(result.Eligible, path)
		}
		result.Examined++
	}

	if result.Examined < len(paths) {
		result.Truncated = true
		f.logger.Debug("Eligibility batch truncated by budget", map[string]interface{}{
			"examined": result.Examined,
			"total":    len(paths),
		})
	}
	return result
}

// checkWithTimeout runs one eligibility check, bounding it with its
// own timeout. A check that overruns resolves to ineligible; the
// straggling goroutine is left to finish on its own since ReadHead
// honors context cancellation.
func (f *Filter) checkWithTimeout(ctx context.Context, path string, timeout time.Duration) bool {
	fileCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		done <- f.IsEligible(fileCtx, path)
	}()

	select {
	case eligible := <-done:
		return eligible
	case <-fileCtx.Done():
		return false
	}
}
