package probe

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TrialResult records the transport-level outcome of one executed
// strategy. It never says whether the fixture actually lit up; that
// ground truth comes from the out-of-band oracle watching the device.
// Immutable after creation.
type TrialResult struct {
	ID       uuid.UUID
	Priority int // catalog position, 0 is highest
	Strategy Strategy

	OK          bool
	FramesSent  int
	FramesAcked int

	FailedState State // state the trial failed in; StateCompleted if OK
	Err         error

	// Warning carries a recoverable claim-time condition, typically a
	// kernel driver that could not be detached.
	Warning error

	Elapsed time.Duration
}

func (r TrialResult) String() string {
	if r.OK {
		return fmt.Sprintf("OK   %-28s frames=%d/%d elapsed=%v",
			r.Strategy.Name, r.FramesAcked, r.FramesSent, r.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("FAIL %-28s in %s: %v",
		r.Strategy.Name, r.FailedState, r.Err)
}

// Report accumulates trial results for one discovery run. Append-only,
// in-memory, emitted once per run.
type Report struct {
	RunID     uuid.UUID
	StartedAt time.Time

	results []TrialResult
}

// NewReport starts an empty report with a fresh run identifier.
func NewReport() *Report {
	return &Report{RunID: uuid.New(), StartedAt: time.Now()}
}

// Record appends a result. Results are never mutated afterwards.
func (r *Report) Record(res TrialResult) {
	r.results = append(r.results, res)
}

// Results returns the recorded results in execution order.
func (r *Report) Results() []TrialResult {
	return append([]TrialResult(nil), r.results...)
}

// Len reports the number of recorded results.
func (r *Report) Len() int { return len(r.results) }

// OKCount reports how many trials succeeded at the transport level.
func (r *Report) OKCount() int {
	n := 0
	for _, res := range r.results {
		if res.OK {
			n++
		}
	}
	return n
}

// Ranked returns results ordered for operator review: transport
// successes first, ties broken by frames acknowledged descending, then
// by catalog priority.
func (r *Report) Ranked() []TrialResult {
	ranked := r.Results()
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.OK != b.OK {
			return a.OK
		}
		if a.FramesAcked != b.FramesAcked {
			return a.FramesAcked > b.FramesAcked
		}
		return a.Priority < b.Priority
	})
	return ranked
}

// Summarize renders a human-presentable digest of the run.
func (r *Report) Summarize() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Discovery run %s (%d trials, %d transport-ok)\n",
		r.RunID, r.Len(), r.OKCount())
	fmt.Fprintf(&sb, "Started %s\n", r.StartedAt.Format(time.RFC3339))
	if r.Len() == 0 {
		sb.WriteString("No trials executed.\n")
		return sb.String()
	}
	sb.WriteString("Ranked outcomes (confirm against the fixture):\n")
	for i, res := range r.Ranked() {
		fmt.Fprintf(&sb, "%3d. %s\n", i+1, res)
	}
	return sb.String()
}
