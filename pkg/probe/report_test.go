package probe

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func resultNamed(name string, priority int, ok bool, acked int) TrialResult {
	res := TrialResult{
		ID:       uuid.New(),
		Priority: priority,
		Strategy: Strategy{Name: name},
		OK:       ok,
	}
	if ok {
		res.FramesSent = acked
		res.FramesAcked = acked
		res.FailedState = StateCompleted
	} else {
		res.FailedState = StateTransmitting
		res.Err = errors.New("write rejected")
	}
	return res
}

func TestRankedOrdering(t *testing.T) {
	r := NewReport()
	r.Record(resultNamed("fail-early", 0, false, 0))
	r.Record(resultNamed("ok-few-acks", 1, true, 10))
	r.Record(resultNamed("ok-many-acks", 4, true, 200))
	r.Record(resultNamed("ok-tie-low-priority", 3, true, 50))
	r.Record(resultNamed("ok-tie-high-priority", 2, true, 50))
	r.Record(resultNamed("fail-late", 5, false, 0))

	ranked := r.Ranked()
	wantOrder := []string{
		"ok-many-acks",
		"ok-tie-high-priority",
		"ok-tie-low-priority",
		"ok-few-acks",
		"fail-early",
		"fail-late",
	}
	if len(ranked) != len(wantOrder) {
		t.Fatalf("ranked results = %d, want %d", len(ranked), len(wantOrder))
	}
	for i, want := range wantOrder {
		if ranked[i].Strategy.Name != want {
			t.Errorf("rank %d = %q, want %q", i, ranked[i].Strategy.Name, want)
		}
	}

	// Execution order is preserved in Results.
	if r.Results()[0].Strategy.Name != "fail-early" {
		t.Error("Results() should preserve execution order")
	}
}

func TestOKCount(t *testing.T) {
	r := NewReport()
	if r.OKCount() != 0 {
		t.Errorf("empty report OKCount = %d", r.OKCount())
	}
	r.Record(resultNamed("a", 0, true, 1))
	r.Record(resultNamed("b", 1, false, 0))
	r.Record(resultNamed("c", 2, true, 1))
	if got := r.OKCount(); got != 2 {
		t.Errorf("OKCount = %d, want 2", got)
	}
}

func TestSummarize(t *testing.T) {
	r := NewReport()
	r.Record(resultNamed("cdc-break-hold/ep1/513", 0, true, 200))
	r.Record(resultNamed("forced-ep2/513", 1, false, 0))

	digest := r.Summarize()
	for _, want := range []string{
		r.RunID.String(),
		"2 trials",
		"1 transport-ok",
		"cdc-break-hold/ep1/513",
		"forced-ep2/513",
	} {
		if !strings.Contains(digest, want) {
			t.Errorf("digest missing %q:\n%s", want, digest)
		}
	}
}

func TestSummarizeEmptyReport(t *testing.T) {
	digest := NewReport().Summarize()
	if !strings.Contains(digest, "No trials executed") {
		t.Errorf("empty digest = %q", digest)
	}
}

func TestReportRunIDsUnique(t *testing.T) {
	if NewReport().RunID == NewReport().RunID {
		t.Error("expected distinct run identifiers")
	}
}
