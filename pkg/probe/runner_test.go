package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asoronow/laser-controller/pkg/dmx"
	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

func newTestRunner(sess usbdmx.Session) *Runner {
	timer, _ := newTestTimer()
	cfg := DefaultConfig()
	cfg.SettleDelay = time.Millisecond
	return NewRunner(sess, timer, cfg)
}

// strictSession returns a simulator that accepts writes only to EP 0x01
// and only for 513-byte payloads starting with the DMX start code.
func strictSession() *usbdmx.SimSession {
	sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
	sess.OnWrite = func(op usbdmx.WriteOp) (int, error) {
		if op.Target.Address == 0x01 && len(op.Payload) == 513 && op.Payload[0] == 0x00 {
			return len(op.Payload), nil
		}
		return 0, &usbdmx.TransferError{Kind: usbdmx.TransferIO, Op: "bulk write", Err: errors.New("device rejected payload")}
	}
	return sess
}

func TestRunFindsStartCodeProtocol(t *testing.T) {
	sess := strictSession()
	runner := newTestRunner(sess)

	report, err := runner.Run(context.Background(), DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Len() != DefaultCatalog().Len() {
		t.Fatalf("recorded %d results, want %d", report.Len(), DefaultCatalog().Len())
	}

	okCount := 0
	for _, res := range report.Results() {
		if res.OK {
			okCount++
			if res.Strategy.Layout.Kind != dmx.LayoutStartCode513 {
				t.Errorf("transport-ok trial %q uses layout %s, want startcode-513", res.Strategy.Name, res.Strategy.Layout)
			}
			if res.Strategy.Endpoint.Address != 0x01 || res.Strategy.Endpoint.Forced {
				t.Errorf("transport-ok trial %q uses %s, want declared EP 0x01", res.Strategy.Name, res.Strategy.Endpoint)
			}
			if res.FramesAcked != res.Strategy.Frames {
				t.Errorf("trial %q acked %d frames, want %d", res.Strategy.Name, res.FramesAcked, res.Strategy.Frames)
			}
		} else if res.Err == nil {
			t.Errorf("failed trial %q has no error", res.Strategy.Name)
		}
	}
	if okCount == 0 {
		t.Fatal("expected at least one transport-ok result")
	}

	// The ranked view puts a working start-code strategy first.
	best := report.Ranked()[0]
	if !best.OK || best.Strategy.Layout.Kind != dmx.LayoutStartCode513 {
		t.Errorf("top ranked result = %v", best)
	}
}

func TestRunClaimAlwaysFails(t *testing.T) {
	sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
	sess.ClaimErr = errors.New("interface busy")
	runner := newTestRunner(sess)

	report, err := runner.Run(context.Background(), DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, res := range report.Results() {
		if res.OK {
			t.Errorf("trial %q succeeded despite claim failure", res.Strategy.Name)
		}
		if res.FailedState != StateActivating {
			t.Errorf("trial %q failed in %s, want Activating", res.Strategy.Name, res.FailedState)
		}
		var cerr *usbdmx.ClaimError
		if !errors.As(res.Err, &cerr) {
			t.Errorf("trial %q error = %v, want *ClaimError", res.Strategy.Name, res.Err)
		}
	}
	if sess.ClaimCount() != report.Len() {
		t.Errorf("claim attempts = %d, want %d", sess.ClaimCount(), report.Len())
	}
	if sess.ReleaseCount() != sess.ClaimCount() {
		t.Errorf("release calls = %d, claim attempts = %d; partial claim leaked", sess.ReleaseCount(), sess.ClaimCount())
	}
}

func TestReleaseBalancedOnEveryExitPath(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		name string
		rig  func(*usbdmx.SimSession)
	}{
		{"all succeed", func(s *usbdmx.SimSession) {}},
		{"claim fails", func(s *usbdmx.SimSession) {
			s.ClaimErr = errors.New("busy")
		}},
		{"activation control fails", func(s *usbdmx.SimSession) {
			s.OnControl = func(op usbdmx.ControlOp) (int, error) {
				return 0, &usbdmx.TransferError{Kind: usbdmx.TransferStall, Op: "control"}
			}
		}},
		{"first write fails", func(s *usbdmx.SimSession) {
			s.OnWrite = func(op usbdmx.WriteOp) (int, error) {
				return 0, &usbdmx.TransferError{Kind: usbdmx.TransferIO, Op: "bulk write"}
			}
		}},
		{"write times out mid-trial", func(s *usbdmx.SimSession) {
			n := 0
			s.OnWrite = func(op usbdmx.WriteOp) (int, error) {
				n++
				if n > 3 {
					return 0, &usbdmx.TransferError{Kind: usbdmx.TransferTimeout, Op: "bulk write"}
				}
				return len(op.Payload), nil
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
			tt.rig(sess)
			runner := newTestRunner(sess)

			report, err := runner.Run(context.Background(), catalog, nil)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if report.Len() != catalog.Len() {
				t.Errorf("recorded %d results, want %d", report.Len(), catalog.Len())
			}
			if sess.ClaimCount() != catalog.Len() {
				t.Errorf("claims = %d, want %d", sess.ClaimCount(), catalog.Len())
			}
			if sess.ReleaseCount() != sess.ClaimCount() {
				t.Errorf("releases = %d, claims = %d", sess.ReleaseCount(), sess.ClaimCount())
			}
			if sess.Claimed() {
				t.Error("session left claimed after run")
			}
		})
	}
}

func TestCancellationDuringTransmitting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
	writes := 0
	sess.OnWrite = func(op usbdmx.WriteOp) (int, error) {
		writes++
		if writes == 5 {
			cancel()
		}
		return len(op.Payload), nil
	}

	runner := newTestRunner(sess)
	entry := DefaultCatalog().Entries()[0]
	catalog, err := NewCatalog([]Strategy{entry})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	report, runErr := runner.Run(ctx, catalog, nil)
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", runErr)
	}

	// Bookkeeping for the in-flight trial is skipped, but the session is
	// still released and the partial frame count stays in bounds.
	if report.Len() != 0 {
		t.Errorf("recorded %d results for a cancelled first trial, want 0", report.Len())
	}
	if sess.Claimed() {
		t.Error("session left claimed after cancellation")
	}
	if sess.ReleaseCount() != sess.ClaimCount() {
		t.Errorf("releases = %d, claims = %d", sess.ReleaseCount(), sess.ClaimCount())
	}
	if writes > entry.Frames {
		t.Errorf("wrote %d frames after cancel, configured %d", writes, entry.Frames)
	}
}

func TestCancellationPreservesRecordedResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
	runner := newTestRunner(sess)

	entries := DefaultCatalog().Entries()[:3]
	catalog, err := NewCatalog(entries)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	// Cancel once the second trial starts transmitting.
	trialWrites := 0
	sess.OnWrite = func(op usbdmx.WriteOp) (int, error) {
		trialWrites++
		if trialWrites == entries[0].Frames+1 {
			cancel()
		}
		return len(op.Payload), nil
	}

	report, runErr := runner.Run(ctx, catalog, nil)
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", runErr)
	}
	if report.Len() != 1 {
		t.Fatalf("recorded %d results, want the 1 completed before cancel", report.Len())
	}
	if !report.Results()[0].OK {
		t.Error("first trial should have completed OK")
	}
}

func TestUnvalidatedEndpointClassification(t *testing.T) {
	sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
	runner := newTestRunner(sess)

	base := DefaultCatalog().Entries()[0]

	unforced := base
	unforced.Name = "undeclared-unforced"
	unforced.Endpoint = usbdmx.EndpointTarget{Address: 0x05}

	forced := base
	forced.Name = "undeclared-forced"
	forced.Endpoint = usbdmx.EndpointTarget{Address: 0x05, Forced: true}

	after := base
	after.Name = "declared-after"

	catalog, err := NewCatalog([]Strategy{unforced, forced, after})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	report, runErr := runner.Run(context.Background(), catalog, nil)
	if runErr != nil {
		t.Fatalf("Run failed: %v", runErr)
	}
	results := report.Results()
	if len(results) != 3 {
		t.Fatalf("recorded %d results, want 3", len(results))
	}

	for _, res := range results[:2] {
		if res.OK {
			t.Errorf("trial %q succeeded against an undeclared endpoint", res.Strategy.Name)
		}
		var terr *usbdmx.TransferError
		if !errors.As(res.Err, &terr) || terr.Kind != usbdmx.TransferUnsupportedEndpoint {
			t.Errorf("trial %q error = %v, want UNSUPPORTED_ENDPOINT", res.Strategy.Name, res.Err)
		}
	}

	// The unforced trial is refused before any transfer; the forced one
	// must actually attempt the write.
	if results[0].FramesSent != 0 {
		t.Errorf("unforced trial sent %d frames, want 0", results[0].FramesSent)
	}
	if results[1].FramesSent == 0 {
		t.Error("forced trial never attempted the transfer")
	}

	// The run continues past undeclared-endpoint failures.
	if !results[2].OK {
		t.Errorf("following trial failed: %v", results[2].Err)
	}
}

func TestRunProgressReporting(t *testing.T) {
	sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
	runner := newTestRunner(sess)

	entries := DefaultCatalog().Entries()[:2]
	catalog, err := NewCatalog(entries)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	progress := make(chan Progress, 8)
	if _, err := runner.Run(context.Background(), catalog, progress); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	close(progress)

	var phases []string
	for p := range progress {
		phases = append(phases, p.Phase)
	}
	want := []string{"trial", "trial", "done"}
	if len(phases) != len(want) {
		t.Fatalf("progress updates = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %q, want %q", i, phases[i], want[i])
		}
	}
}

func TestTrialRecordsDetachWarning(t *testing.T) {
	sess := usbdmx.NewSimSession(usbdmx.ReferenceIdentity())
	sess.DetachWarn = usbdmx.ErrDriverDetachFailed

	runner := newTestRunner(sess)
	catalog, err := NewCatalog(DefaultCatalog().Entries()[:1])
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	report, runErr := runner.Run(context.Background(), catalog, nil)
	if runErr != nil {
		t.Fatalf("Run failed: %v", runErr)
	}
	res := report.Results()[0]
	if !res.OK {
		t.Fatalf("trial failed: %v", res.Err)
	}
	if !errors.Is(res.Warning, usbdmx.ErrDriverDetachFailed) {
		t.Errorf("warning = %v, want ErrDriverDetachFailed", res.Warning)
	}
}
