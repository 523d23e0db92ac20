package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asoronow/laser-controller/pkg/dmx"
	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

// State names the trial state machine positions.
type State int

const (
	StateIdle State = iota
	StateActivating
	StateTransmitting
	StateObserving
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateActivating:
		return "Activating"
	case StateTransmitting:
		return "Transmitting"
	case StateObserving:
		return "Observing"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Idle"
	}
}

// Progress reports the runner's position to an observer channel.
type Progress struct {
	Phase    string // "trial", "done"
	Trial    int    // 0-based index of the current trial
	Total    int
	OK       int // transport-ok count so far
	Strategy string
}

// Config holds the run-wide parameters shared by every trial.
type Config struct {
	// Interface and AltSetting select what to claim for each trial.
	Interface  int
	AltSetting int

	// Pattern is the channel-value mapping transmitted during trials.
	// The same pattern is used for every trial so the oracle compares
	// like with like.
	Pattern dmx.Channels

	// WriteTimeout bounds each bulk write.
	WriteTimeout time.Duration

	// SettleDelay is the observation window after a trial's frames.
	// Zero derives a bounded delay from the trial's refresh interval.
	SettleDelay time.Duration
}

// DefaultConfig returns run parameters for the reference device:
// configuration 1, interface 0, alt 0, and the channel pattern the
// field notes used (dimmer up, manual mode, red, centered position) so
// any accepted frame produces an unmissable effect.
func DefaultConfig() Config {
	return Config{
		Interface:    0,
		AltSetting:   0,
		Pattern:      DefaultTestPattern(),
		WriteTimeout: 500 * time.Millisecond,
	}
}

// DefaultTestPattern is the high-visibility channel mapping from the
// reference fixture's channel map.
func DefaultTestPattern() dmx.Channels {
	return dmx.Channels{
		1:  255, // master dimmer
		2:  225, // manual mode
		5:  255, // red
		9:  128, // x position center
		10: 128, // y position center
	}
}

const (
	minSettle = 100 * time.Millisecond
	maxSettle = 2 * time.Second
)

// Runner executes catalog entries one at a time against a single
// session. Trials are strictly sequential: the device is an exclusively
// owned, stateful resource, and concurrent access would corrupt
// timing-sensitive activation sequences and confound outcome
// attribution.
type Runner struct {
	sess  usbdmx.Session
	timer *SignalTimer
	cfg   Config
}

// NewRunner wires a runner to an opened, configured session.
func NewRunner(sess usbdmx.Session, timer *SignalTimer, cfg Config) *Runner {
	if timer == nil {
		timer = NewSignalTimer()
	}
	return &Runner{sess: sess, timer: timer, cfg: cfg}
}

// Run executes every catalog entry in priority order and returns the
// report. Trial failures are expected and informative: they are
// recorded and the run continues. Only cancellation stops the loop
// early; the in-flight trial's session is released, its bookkeeping is
// skipped, and already-recorded results are preserved in the returned
// report.
func (r *Runner) Run(ctx context.Context, catalog *Catalog, progress chan<- Progress) (*Report, error) {
	report := NewReport()
	entries := catalog.Entries()

	for i, s := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if progress != nil {
			progress <- Progress{Phase: "trial", Trial: i, Total: len(entries), OK: report.OKCount(), Strategy: s.Name}
		}

		res, err := r.runTrial(ctx, i, s)
		if err != nil {
			return report, err
		}
		report.Record(res)
	}

	if progress != nil {
		progress <- Progress{Phase: "done", Trial: len(entries), Total: len(entries), OK: report.OKCount()}
	}
	return report, nil
}

// runTrial drives one strategy through the state machine:
// Idle -> Activating -> Transmitting -> Observing -> Completed, with
// Failed reachable from any non-terminal state. The session claim is
// released exactly once, on every exit path. A non-nil error return
// means cancellation: the result carries the partial state but the
// caller skips recording it.
func (r *Runner) runTrial(ctx context.Context, priority int, s Strategy) (TrialResult, error) {
	start := time.Now()
	res := TrialResult{ID: uuid.New(), Priority: priority, Strategy: s}

	fail := func(st State, err error) TrialResult {
		res.OK = false
		res.FailedState = st
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}

	// Guaranteed teardown: one release per trial regardless of outcome,
	// including a failed claim attempt.
	defer r.sess.Release()

	// Activating: claim, then replay the activation sequence. One
	// attempt, no retry.
	if err := r.sess.Claim(r.cfg.Interface, r.cfg.AltSetting); err != nil {
		return fail(StateActivating, err), nil
	}
	res.Warning = r.sess.DetachWarning()

	if !s.Endpoint.Forced && !r.sess.HasEndpoint(s.Endpoint.Address) {
		err := &usbdmx.TransferError{
			Kind: usbdmx.TransferUnsupportedEndpoint,
			Op:   fmt.Sprintf("target %s", s.Endpoint),
		}
		return fail(StateActivating, err), nil
	}

	if err := s.Activation.replay(r.sess, s.Endpoint, r.cfg.WriteTimeout); err != nil {
		return fail(StateActivating, err), nil
	}

	if err := ctx.Err(); err != nil {
		return fail(StateActivating, err), err
	}

	// Transmitting: break cycle + frame write + refresh wait, for the
	// configured number of frames. A single failure aborts the trial;
	// partial success is not meaningful for protocol discovery.
	frame := dmx.Build(s.Layout, r.cfg.Pattern)
	for i := 0; i < s.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return fail(StateTransmitting, err), err
		}
		if err := r.timer.EmitBreakCycle(r.sess, s.Break, s.Timing); err != nil {
			return fail(StateTransmitting, err), nil
		}
		n, err := r.sess.BulkWrite(s.Endpoint, frame, r.cfg.WriteTimeout)
		res.FramesSent++
		if err != nil {
			return fail(StateTransmitting, err), nil
		}
		if n == len(frame) {
			res.FramesAcked++
		}
		r.timer.WaitRefresh(s.Timing)
	}

	if err := ctx.Err(); err != nil {
		return fail(StateTransmitting, err), err
	}

	// Observing: hold still so the oracle can register any effect. This
	// state produces no data for the harness itself.
	r.timer.WaitSettle(r.settleFor(s))

	if err := ctx.Err(); err != nil {
		return fail(StateObserving, err), err
	}

	res.OK = true
	res.FailedState = StateCompleted
	res.Elapsed = time.Since(start)
	return res, nil
}

// settleFor bounds the observation window to the order of the refresh
// interval.
func (r *Runner) settleFor(s Strategy) time.Duration {
	if r.cfg.SettleDelay > 0 {
		return r.cfg.SettleDelay
	}
	d := 4 * s.Timing.RefreshInterval
	if d < minSettle {
		d = minSettle
	}
	if d > maxSettle {
		d = maxSettle
	}
	return d
}
