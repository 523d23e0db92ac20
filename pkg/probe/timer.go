package probe

import (
	"fmt"
	"time"

	"github.com/asoronow/laser-controller/pkg/dmx"
	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

// BreakMethod selects how a trial signals the DMX break/MAB boundary
// before each frame write.
type BreakMethod int

const (
	// BreakNone sends data with no break signaling at all; some
	// transmitters regenerate the break themselves.
	BreakNone BreakMethod = iota
	// BreakCDCHold asserts an indefinite CDC SEND_BREAK, waits the break
	// duration, releases it, then waits the MAB.
	BreakCDCHold
	// BreakCDCTimed issues a single timed SEND_BREAK and waits for it to
	// elapse plus the MAB.
	BreakCDCTimed
	// BreakDTRToggle drops and re-raises DTR as an improvised break.
	BreakDTRToggle
	// BreakRTSToggle raises and drops RTS as an improvised break.
	BreakRTSToggle
)

func (m BreakMethod) String() string {
	switch m {
	case BreakCDCHold:
		return "cdc-hold"
	case BreakCDCTimed:
		return "cdc-timed"
	case BreakDTRToggle:
		return "dtr-toggle"
	case BreakRTSToggle:
		return "rts-toggle"
	default:
		return "none"
	}
}

// SignalTimer produces DMX-conformant break/MAB/refresh timing against
// whatever signaling primitive the active strategy specifies. Transfer
// failures propagate to the caller: activation-sequence correctness is
// exactly what is under test, so a failed break assert must fail the
// trial rather than be ignored.
type SignalTimer struct {
	// ControlTimeout bounds each break-related control transfer.
	ControlTimeout time.Duration

	// sleep is replaceable so tests run without real time passing.
	sleep func(time.Duration)
}

// NewSignalTimer returns a timer using real sleeps and the default
// control timeout.
func NewSignalTimer() *SignalTimer {
	return &SignalTimer{
		ControlTimeout: usbdmx.DefaultControlTimeout,
		sleep:          time.Sleep,
	}
}

func (t *SignalTimer) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	if t.sleep != nil {
		t.sleep(d)
	} else {
		time.Sleep(d)
	}
}

// EmitBreakCycle drives one break plus mark-after-break on the session
// using the given method, then returns control to the caller for the
// data write.
func (t *SignalTimer) EmitBreakCycle(sess usbdmx.Session, method BreakMethod, profile dmx.TimingProfile) error {
	switch method {
	case BreakNone:
		return nil

	case BreakCDCHold:
		if err := t.sendBreak(sess, usbdmx.BreakIndefinite); err != nil {
			return err
		}
		t.wait(profile.Break)
		if err := t.sendBreak(sess, usbdmx.BreakOff); err != nil {
			return err
		}
		t.wait(profile.MarkAfterBreak)
		return nil

	case BreakCDCTimed:
		ms := profile.Break.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		if ms > int64(usbdmx.BreakIndefinite)-1 {
			ms = int64(usbdmx.BreakIndefinite) - 1
		}
		if err := t.sendBreak(sess, uint16(ms)); err != nil {
			return err
		}
		t.wait(time.Duration(ms) * time.Millisecond)
		t.wait(profile.MarkAfterBreak)
		return nil

	case BreakDTRToggle:
		return t.toggleLine(sess, profile, false, false, true, false)

	case BreakRTSToggle:
		return t.toggleLine(sess, profile, true, true, true, false)

	default:
		return fmt.Errorf("probe: unknown break method %d", method)
	}
}

// toggleLine holds the "break" line state for the break duration, then
// the "mark" state for the MAB.
func (t *SignalTimer) toggleLine(sess usbdmx.Session, profile dmx.TimingProfile, breakDTR, breakRTS, markDTR, markRTS bool) error {
	if err := t.setLineState(sess, breakDTR, breakRTS); err != nil {
		return err
	}
	t.wait(profile.Break)
	if err := t.setLineState(sess, markDTR, markRTS); err != nil {
		return err
	}
	t.wait(profile.MarkAfterBreak)
	return nil
}

func (t *SignalTimer) sendBreak(sess usbdmx.Session, duration uint16) error {
	_, err := sess.ControlTransfer(
		usbdmx.RequestTypeClassInterfaceOut,
		usbdmx.RequestSendBreak,
		duration, 0, nil, t.ControlTimeout)
	return err
}

func (t *SignalTimer) setLineState(sess usbdmx.Session, dtr, rts bool) error {
	_, err := sess.ControlTransfer(
		usbdmx.RequestTypeClassInterfaceOut,
		usbdmx.RequestSetControlLineState,
		usbdmx.LineStateValue(dtr, rts), 0, nil, t.ControlTimeout)
	return err
}

// WaitRefresh sleeps the configured inter-frame gap after a frame write.
func (t *SignalTimer) WaitRefresh(profile dmx.TimingProfile) {
	t.wait(profile.RefreshInterval)
}

// WaitSettle sleeps the observation window after a trial's last frame.
func (t *SignalTimer) WaitSettle(d time.Duration) {
	t.wait(d)
}
