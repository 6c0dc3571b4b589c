package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

const outcomeCommitted = "committed"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// inventoryCheck сверяет прирост остатка. Заявка, упавшая по таймауту ctx, могла
// успеть закоммититься, поэтому допустим прирост от ExpectedDelta до MaxDelta.
type inventoryCheck struct {
	Before        int64 `json:"before"`
	After         int64 `json:"after"`
	ExpectedDelta int64 `json:"expected_delta"`
	MaxDelta      int64 `json:"max_delta"`
	OK            bool  `json:"ok"`
}

func newInventoryCheck(before, after, success, uncertain, receivedPerOrder int64) inventoryCheck {
	expected := success * receivedPerOrder
	maxDelta := (success + uncertain) * receivedPerOrder
	delta := after - before
	return inventoryCheck{
		Before:        before,
		After:         after,
		ExpectedDelta: expected,
		MaxDelta:      maxDelta,
		OK:            delta >= expected && delta <= maxDelta,
	}
}

type report struct {
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	Total           int64            `json:"total"`
	Success         int64            `json:"success"`
	Failed          int64            `json:"failed"`
	ErrorRate       float64          `json:"error_rate"`
	RPS             float64          `json:"rps"`
	Retries         int64            `json:"retries"`
	Uncertain       int64            `json:"uncertain"`
	Outcomes        map[string]int64 `json:"outcomes"`
	LatencyMs       latencySummary   `json:"latency_ms"`
	Inventory       inventoryCheck   `json:"inventory"`
}

type collector struct {
	mu        sync.Mutex
	total     int64
	success   int64
	retries   int64
	uncertain int64
	outcomes  map[string]int64
	latencies []float64
}

func newCollector() *collector {
	return &collector{outcomes: make(map[string]int64)}
}

// record учитывает одну заявку: исход по виду ошибки и лишние попытки.
func (c *collector) record(latency time.Duration, attempts int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	outcome := outcomeCommitted
	if err != nil {
		outcome = string(domain.KindOf(err))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.uncertain++
		}
		var exhausted *domain.RetryExhaustedError
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
		}
	} else {
		c.success++
	}
	if attempts > 1 {
		c.retries += int64(attempts - 1)
	}
	c.outcomes[outcome]++
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcomes := make(map[string]int64, len(c.outcomes))
	for k, v := range c.outcomes {
		outcomes[k] = v
	}

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Total:           c.total,
		Success:         c.success,
		Failed:          c.total - c.success,
		ErrorRate:       ratio(c.total-c.success, c.total),
		Retries:         c.retries,
		Uncertain:       c.uncertain,
		Outcomes:        outcomes,
		LatencyMs:       buildLatencySummary(c.latencies),
	}
	if duration > 0 {
		result.RPS = float64(result.Total) / duration.Seconds()
	}
	return result
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	fmt.Fprintln(out, "Load test summary")
	fmt.Fprintf(out, "warehouse=%d part=%d concurrency=%d total=%d success=%d failed=%d error_rate=%.4f retries=%d\n",
		cfg.warehouseID, cfg.partID, cfg.concurrency,
		result.Total, result.Success, result.Failed, result.ErrorRate, result.Retries,
	)
	fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Fprintf(out, "latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.LatencyMs.Min, result.LatencyMs.Avg, result.LatencyMs.P50,
		result.LatencyMs.P95, result.LatencyMs.P99, result.LatencyMs.Max,
	)

	names := make([]string, 0, len(result.Outcomes))
	for name := range result.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s: %d\n", name, result.Outcomes[name])
	}

	status := "OK"
	if !result.Inventory.OK {
		status = "MISMATCH"
	}
	fmt.Fprintf(out, "inventory %s: before=%d after=%d expected_delta=%d\n",
		status, result.Inventory.Before, result.Inventory.After, result.Inventory.ExpectedDelta)
	if result.Uncertain > 0 {
		fmt.Fprintf(out, "timed out=%d (commit may have landed), max_delta=%d\n",
			result.Uncertain, result.Inventory.MaxDelta)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
