package runner

import (
	"sort"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/visreg/compare"
	"github.com/hairizuan-noorazman/visreg/testcase"
)

// Status is the terminal state of a single test case instance.
type Status string

const (
	// StatusPassed means the instance was captured and matched its baseline,
	// or was captured successfully in update mode.
	StatusPassed Status = "passed"

	// StatusFailed means the comparison stage rejected the instance.
	StatusFailed Status = "failed"

	// StatusCaptureFailed means the screenshot could never be taken, so the
	// comparison stage was not attempted.
	StatusCaptureFailed Status = "capture-failed"
)

// IsValid checks if the status is one of the known terminal states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusCaptureFailed:
		return true
	}
	return false
}

// CaptureResult records how the capture stage ended for one instance.
// A non-nil Err means the instance is terminal at capture-failed and
// never reaches the compare stage.
type CaptureResult struct {
	Instance testcase.Instance
	Elapsed  time.Duration
	Err      error
}

// CompareRecord records one comparison performed against the stored
// screenshots. Filename keys it back to the instance. Err holds the
// engine error when the comparison could not run; Result.Reason is
// already classified in that case.
type CompareRecord struct {
	Filename string
	Result   compare.Result
	Elapsed  time.Duration
	Err      error
}

// Detail is the per-instance record retained in the run outcome.
type Detail struct {
	ID             string         `json:"id"`
	Status         Status         `json:"status"`
	Reason         compare.Reason `json:"reason,omitempty"`
	DiffPercentage float64        `json:"diff_percentage,omitempty"`
	CaptureMs      int64          `json:"capture_ms,omitempty"`
	CompareMs      int64          `json:"compare_ms,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Outcome aggregates every instance's terminal status for one run.
// Total always equals the sum of the six counts: each instance lands in
// exactly one of them.
type Outcome struct {
	Total                int      `json:"total"`
	Passed               int      `json:"passed"`
	FailedDiffs          int      `json:"failed_diffs"`
	FailedMissingCurrent int      `json:"failed_missing_current"`
	FailedMissingBase    int      `json:"failed_missing_base"`
	FailedErrors         int      `json:"failed_errors"`
	CaptureFailures      int      `json:"capture_failures"`
	Details              []Detail `json:"details"`
}

// Success reports whether the run passed: no failed comparisons and no
// capture failures. An empty run counts as success.
func (o Outcome) Success() bool {
	return o.FailedDiffs == 0 && o.FailedMissingCurrent == 0 &&
		o.FailedMissingBase == 0 && o.FailedErrors == 0 && o.CaptureFailures == 0
}

// ExitCode maps the outcome to the process exit code: 0 on success, 1
// on any failure.
func (o Outcome) ExitCode() int {
	if o.Success() {
		return 0
	}
	return 1
}

// Aggregate reduces capture results and compare records into a single
// outcome. Failed captures become capture-failed details. Compare
// records become passed or failed details, keyed by filename; the id is
// recovered by stripping the extension, which also covers stale files
// that no longer correspond to a discovered instance. Successful
// captures no comparison consumed (update mode runs none) pass on the
// capture alone. Details are sorted by id so listing order never depends
// on completion order.
func Aggregate(captures []CaptureResult, records []CompareRecord) Outcome {
	captured := make(map[string]CaptureResult, len(captures))
	for _, c := range captures {
		if c.Err == nil {
			captured[c.Instance.Filename()] = c
		}
	}

	var o Outcome
	details := make([]Detail, 0, len(captures)+len(records))

	for _, c := range captures {
		if c.Err == nil {
			continue
		}
		o.CaptureFailures++
		details = append(details, Detail{
			ID:        c.Instance.ID,
			Status:    StatusCaptureFailed,
			CaptureMs: c.Elapsed.Milliseconds(),
			Error:     c.Err.Error(),
		})
	}

	compared := make(map[string]bool, len(records))
	for _, rec := range records {
		compared[rec.Filename] = true

		d := Detail{
			ID:             strings.TrimSuffix(rec.Filename, ".png"),
			Reason:         rec.Result.Reason,
			DiffPercentage: rec.Result.DiffPercentage,
			CompareMs:      rec.Elapsed.Milliseconds(),
		}
		if c, ok := captured[rec.Filename]; ok {
			d.CaptureMs = c.Elapsed.Milliseconds()
		}
		if rec.Err != nil {
			d.Error = rec.Err.Error()
		}

		if rec.Result.Match {
			d.Status = StatusPassed
			o.Passed++
		} else {
			d.Status = StatusFailed
			switch rec.Result.Reason {
			case compare.ReasonPixelDiff:
				o.FailedDiffs++
			case compare.ReasonMissingCurrent:
				o.FailedMissingCurrent++
			case compare.ReasonMissingBase:
				o.FailedMissingBase++
			default:
				o.FailedErrors++
			}
		}
		details = append(details, d)
	}

	for _, c := range captures {
		if c.Err != nil || compared[c.Instance.Filename()] {
			continue
		}
		o.Passed++
		details = append(details, Detail{
			ID:        c.Instance.ID,
			Status:    StatusPassed,
			CaptureMs: c.Elapsed.Milliseconds(),
		})
	}

	sort.Slice(details, func(i, j int) bool { return details[i].ID < details[j].ID })
	o.Details = details
	o.Total = len(details)
	return o
}
