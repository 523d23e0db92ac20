package probe

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asoronow/laser-controller/pkg/dmx"
	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

// The catalog contents are configurable hypotheses, not verified
// constants, so operators can feed the harness new guesses from a YAML
// file without rebuilding.

type catalogFile struct {
	Strategies []strategyConfig `yaml:"strategies"`
}

type strategyConfig struct {
	Name       string           `yaml:"name"`
	Activation activationConfig `yaml:"activation"`
	Break      string           `yaml:"break"`
	Endpoint   endpointConfig   `yaml:"endpoint"`
	Layout     layoutConfig     `yaml:"layout"`
	Timing     timingConfig     `yaml:"timing"`
	Frames     int              `yaml:"frames"`
}

type activationConfig struct {
	Kind     string          `yaml:"kind"`
	DTR      bool            `yaml:"dtr"`
	RTS      bool            `yaml:"rts"`
	Preamble []string        `yaml:"preamble"` // hex-encoded blocks
	Requests []requestConfig `yaml:"requests"`
}

type requestConfig struct {
	RequestType uint8  `yaml:"request_type"`
	Request     uint8  `yaml:"request"`
	Value       uint16 `yaml:"value"`
	Index       uint16 `yaml:"index"`
	Payload     string `yaml:"payload"` // hex-encoded
}

type endpointConfig struct {
	Address uint8 `yaml:"address"`
	Forced  bool  `yaml:"forced"`
}

type layoutConfig struct {
	Kind         string `yaml:"kind"`
	TrailerValue uint8  `yaml:"trailer_value"`
}

type timingConfig struct {
	BreakUS   int64 `yaml:"break_us"`
	MABUS     int64 `yaml:"mab_us"`
	RefreshUS int64 `yaml:"refresh_us"`
}

// LoadCatalog reads a strategy catalog from a YAML hypotheses file.
// File order is trial priority order.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("probe: read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog builds a catalog from YAML bytes.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("probe: parse catalog: %w", err)
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("probe: catalog has no strategies")
	}

	entries := make([]Strategy, 0, len(file.Strategies))
	for i, sc := range file.Strategies {
		s, err := sc.toStrategy()
		if err != nil {
			return nil, fmt.Errorf("probe: catalog entry %d: %w", i, err)
		}
		entries = append(entries, s)
	}
	return NewCatalog(entries)
}

func (sc strategyConfig) toStrategy() (Strategy, error) {
	act, err := sc.Activation.toActivation()
	if err != nil {
		return Strategy{}, err
	}
	brk, err := parseBreakMethod(sc.Break)
	if err != nil {
		return Strategy{}, err
	}
	layout, err := sc.Layout.toLayout()
	if err != nil {
		return Strategy{}, err
	}

	return Strategy{
		Name:       sc.Name,
		Activation: act,
		Break:      brk,
		Endpoint:   usbdmx.EndpointTarget{Address: sc.Endpoint.Address, Forced: sc.Endpoint.Forced},
		Layout:     layout,
		Timing: dmx.TimingProfile{
			Break:           time.Duration(sc.Timing.BreakUS) * time.Microsecond,
			MarkAfterBreak:  time.Duration(sc.Timing.MABUS) * time.Microsecond,
			RefreshInterval: time.Duration(sc.Timing.RefreshUS) * time.Microsecond,
		},
		Frames: sc.Frames,
	}, nil
}

func (ac activationConfig) toActivation() (Activation, error) {
	switch ac.Kind {
	case "", "none":
		return Activation{Kind: ActivationNone}, nil
	case "line-state":
		return LineStateActivation(ac.DTR, ac.RTS), nil
	case "raw-bytes":
		blocks := make([][]byte, 0, len(ac.Preamble))
		for _, h := range ac.Preamble {
			b, err := hex.DecodeString(h)
			if err != nil {
				return Activation{}, fmt.Errorf("preamble block %q: %w", h, err)
			}
			blocks = append(blocks, b)
		}
		return PreambleActivation(blocks...), nil
	case "control":
		reqs := make([]ControlRequest, 0, len(ac.Requests))
		for _, rc := range ac.Requests {
			var payload []byte
			if rc.Payload != "" {
				b, err := hex.DecodeString(rc.Payload)
				if err != nil {
					return Activation{}, fmt.Errorf("request payload %q: %w", rc.Payload, err)
				}
				payload = b
			}
			reqs = append(reqs, ControlRequest{
				RequestType: rc.RequestType,
				Request:     rc.Request,
				Value:       rc.Value,
				Index:       rc.Index,
				Payload:     payload,
			})
		}
		return Activation{Kind: ActivationControl, Requests: reqs}, nil
	default:
		return Activation{}, fmt.Errorf("unknown activation kind %q", ac.Kind)
	}
}

func parseBreakMethod(s string) (BreakMethod, error) {
	switch s {
	case "", "none":
		return BreakNone, nil
	case "cdc-hold":
		return BreakCDCHold, nil
	case "cdc-timed":
		return BreakCDCTimed, nil
	case "dtr-toggle":
		return BreakDTRToggle, nil
	case "rts-toggle":
		return BreakRTSToggle, nil
	default:
		return BreakNone, fmt.Errorf("unknown break method %q", s)
	}
}

func (lc layoutConfig) toLayout() (dmx.Layout, error) {
	switch lc.Kind {
	case "raw-512":
		return dmx.Layout{Kind: dmx.LayoutRaw512}, nil
	case "", "startcode-513":
		return dmx.Layout{Kind: dmx.LayoutStartCode513}, nil
	case "vendor-514":
		return dmx.Layout{Kind: dmx.LayoutVendor514, TrailerValue: lc.TrailerValue}, nil
	default:
		return dmx.Layout{}, fmt.Errorf("unknown layout kind %q", lc.Kind)
	}
}
