package probe

import (
	"fmt"

	"github.com/asoronow/laser-controller/pkg/dmx"
	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

// Strategy is one candidate (activation, transport, framing, timing)
// combination. Immutable once enumerated; its position in the catalog
// is its trial priority.
type Strategy struct {
	Name       string
	Activation Activation
	Break      BreakMethod
	Endpoint   usbdmx.EndpointTarget
	Layout     dmx.Layout
	Timing     dmx.TimingProfile
	Frames     int
}

func (s Strategy) String() string {
	return fmt.Sprintf("%s: act=%s break=%s %s %s frames=%d",
		s.Name, s.Activation, s.Break, s.Endpoint, s.Layout, s.Frames)
}

// Validate checks that the strategy is executable.
func (s Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("probe: strategy has no name")
	}
	if s.Frames <= 0 {
		return fmt.Errorf("probe: strategy %q: frame count %d is not positive", s.Name, s.Frames)
	}
	if err := s.Timing.Validate(); err != nil {
		return fmt.Errorf("probe: strategy %q: %w", s.Name, err)
	}
	return nil
}

// Catalog is a finite, ordered set of strategies. Enumeration is
// deterministic and restartable: two calls yield identical sequences.
type Catalog struct {
	entries []Strategy
}

// NewCatalog builds a catalog from entries in priority order.
func NewCatalog(entries []Strategy) (*Catalog, error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return &Catalog{entries: append([]Strategy(nil), entries...)}, nil
}

// Entries returns the strategies in priority order.
func (c *Catalog) Entries() []Strategy {
	return append([]Strategy(nil), c.entries...)
}

// Len reports the number of strategies.
func (c *Catalog) Len() int { return len(c.entries) }

// Candidate data sinks on the reference device. EP 0x01 is declared in
// its descriptors; EP 0x02 is not, but the vendor driver is suspected
// of using it, so it is probed in forced mode.
var (
	epDeclared = usbdmx.EndpointTarget{Address: 0x01}
	epHidden   = usbdmx.EndpointTarget{Address: 0x02, Forced: true}
)

const defaultTrialFrames = 200

// DefaultCatalog enumerates the harness's accumulated hypotheses in
// decreasing order of prior likelihood, so an operator watching for a
// physical side effect sees the strongest guesses earliest. The
// contents are hypotheses, not verified constants: nothing in the
// reference material confirms which entry, if any, is correct.
func DefaultCatalog() *Catalog {
	spec := dmx.SpecTiming()
	msBreak := dmx.MillisecondBreakTiming()
	vendorCadence := dmx.VendorCadenceTiming()

	sc513 := dmx.Layout{Kind: dmx.LayoutStartCode513}
	raw512 := dmx.Layout{Kind: dmx.LayoutRaw512}
	vendor514 := dmx.Layout{Kind: dmx.LayoutVendor514, TrailerValue: 0xFF}

	dtrOn := LineStateActivation(true, false)

	entries := []Strategy{
		{
			Name:       "cdc-break-hold/ep1/513",
			Activation: dtrOn,
			Break:      BreakCDCHold,
			Endpoint:   epDeclared,
			Layout:     sc513,
			Timing:     spec,
			Frames:     defaultTrialFrames,
		},
		{
			Name:       "cdc-break-timed/ep1/513",
			Activation: dtrOn,
			Break:      BreakCDCTimed,
			Endpoint:   epDeclared,
			Layout:     sc513,
			Timing:     msBreak,
			Frames:     defaultTrialFrames,
		},
		{
			Name:       "cdc-break-hold/ep1/512",
			Activation: dtrOn,
			Break:      BreakCDCHold,
			Endpoint:   epDeclared,
			Layout:     raw512,
			Timing:     spec,
			Frames:     defaultTrialFrames,
		},
		{
			Name:       "cdc-break-hold/ep1/514",
			Activation: dtrOn,
			Break:      BreakCDCHold,
			Endpoint:   epDeclared,
			Layout:     vendor514,
			Timing:     spec,
			Frames:     defaultTrialFrames,
		},
		{
			Name:       "dtr-toggle/ep1/513",
			Activation: dtrOn,
			Break:      BreakDTRToggle,
			Endpoint:   epDeclared,
			Layout:     sc513,
			Timing:     spec,
			Frames:     defaultTrialFrames,
		},
		{
			Name:       "rts-toggle/ep1/513",
			Activation: dtrOn,
			Break:      BreakRTSToggle,
			Endpoint:   epDeclared,
			Layout:     sc513,
			Timing:     spec,
			Frames:     defaultTrialFrames,
		},
		{
			Name:       "continuous/ep1/514",
			Activation: LineStateActivation(true, true),
			Break:      BreakNone,
			Endpoint:   epDeclared,
			Layout:     vendor514,
			Timing:     vendorCadence,
			Frames:     defaultTrialFrames,
		},
		{
			Name:       "line-coding/ep1/513",
			Activation: LineCodingActivation(),
			Break:      BreakCDCHold,
			Endpoint:   epDeclared,
			Layout:     sc513,
			Timing:     spec,
			Frames:     defaultTrialFrames,
		},
		{
			Name:       "preamble-01/ep1/514",
			Activation: PreambleActivation([]byte{0x01}),
			Break:      BreakNone,
			Endpoint:   epDeclared,
			Layout:     vendor514,
			Timing:     vendorCadence,
			Frames:     30,
		},
		{
			Name:       "preamble-ff/ep1/514",
			Activation: PreambleActivation([]byte{0xFF}),
			Break:      BreakNone,
			Endpoint:   epDeclared,
			Layout:     vendor514,
			Timing:     vendorCadence,
			Frames:     30,
		},
		{
			Name:       "preamble-zeros64/ep1/514",
			Activation: PreambleActivation(make([]byte, 64)),
			Break:      BreakNone,
			Endpoint:   epDeclared,
			Layout:     vendor514,
			Timing:     vendorCadence,
			Frames:     30,
		},
		{
			Name:       "forced-ep2/513",
			Activation: dtrOn,
			Break:      BreakCDCHold,
			Endpoint:   epHidden,
			Layout:     sc513,
			Timing:     spec,
			Frames:     50,
		},
		{
			Name:       "forced-ep2/514",
			Activation: dtrOn,
			Break:      BreakNone,
			Endpoint:   epHidden,
			Layout:     vendor514,
			Timing:     vendorCadence,
			Frames:     50,
		},
	}

	// Bounded vendor control sweep: the brute-force request/value nests
	// from the field scripts, flattened into explicit inspectable
	// entries. Values beyond these never produced a distinct response.
	for _, req := range []uint8{0x00, 0x01, 0x02} {
		for _, val := range []uint16{0x0000, 0x0001} {
			entries = append(entries, Strategy{
				Name:       fmt.Sprintf("vendor-ctrl-%02x-%04x/ep1/514", req, val),
				Activation: VendorControlActivation(req, val),
				Break:      BreakNone,
				Endpoint:   epDeclared,
				Layout:     vendor514,
				Timing:     vendorCadence,
				Frames:     30,
			})
		}
	}

	c, err := NewCatalog(entries)
	if err != nil {
		// The built-in catalog is static data; a validation failure here
		// is a programming error.
		panic(err)
	}
	return c
}
