package dmx

import (
	"fmt"
	"time"
)

// TimingProfile holds the signal timing for one refresh cycle: the
// break, the mark-after-break recovery gap, and the interval between
// successive frames.
type TimingProfile struct {
	Break           time.Duration
	MarkAfterBreak  time.Duration
	RefreshInterval time.Duration
}

// Validate checks the profile invariants: break and MAB non-negative,
// refresh interval strictly positive.
func (p TimingProfile) Validate() error {
	if p.Break < 0 {
		return fmt.Errorf("dmx: break duration %v is negative", p.Break)
	}
	if p.MarkAfterBreak < 0 {
		return fmt.Errorf("dmx: mark-after-break %v is negative", p.MarkAfterBreak)
	}
	if p.RefreshInterval <= 0 {
		return fmt.Errorf("dmx: refresh interval %v is not positive", p.RefreshInterval)
	}
	return nil
}

func (p TimingProfile) String() string {
	return fmt.Sprintf("break=%v mab=%v refresh=%v", p.Break, p.MarkAfterBreak, p.RefreshInterval)
}

// SpecTiming follows DMX512 line timing at a ~40Hz refresh: 100us
// break, 12us MAB, 23ms between frames.
func SpecTiming() TimingProfile {
	return TimingProfile{
		Break:           100 * time.Microsecond,
		MarkAfterBreak:  12 * time.Microsecond,
		RefreshInterval: 23 * time.Millisecond,
	}
}

// MillisecondBreakTiming uses a 1ms break, the shortest duration a CDC
// SEND_BREAK wValue field can express.
func MillisecondBreakTiming() TimingProfile {
	return TimingProfile{
		Break:           time.Millisecond,
		MarkAfterBreak:  time.Millisecond,
		RefreshInterval: 23 * time.Millisecond,
	}
}

// VendorCadenceTiming matches the 5ms inter-frame gap observed from the
// vendor application, with no explicit break signaling.
func VendorCadenceTiming() TimingProfile {
	return TimingProfile{
		Break:           0,
		MarkAfterBreak:  0,
		RefreshInterval: 5 * time.Millisecond,
	}
}
