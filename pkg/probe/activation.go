// Package probe is the protocol discovery engine: a catalog of
// candidate activation/transport/framing hypotheses, a trial runner
// that executes them one at a time against a USB session, and a report
// that ranks the observed outcomes for an external oracle to confirm.
package probe

import (
	"fmt"
	"time"

	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

// ActivationKind tags the variants of an activation sequence.
type ActivationKind int

const (
	// ActivationNone sends nothing before transmission.
	ActivationNone ActivationKind = iota
	// ActivationRawBytes writes byte blocks to the data endpoint before
	// transmission, probing for a magic wake-up preamble.
	ActivationRawBytes
	// ActivationControl replays a list of control transfers.
	ActivationControl
	// ActivationLineState asserts a DTR/RTS combination.
	ActivationLineState
)

func (k ActivationKind) String() string {
	switch k {
	case ActivationRawBytes:
		return "raw-bytes"
	case ActivationControl:
		return "control"
	case ActivationLineState:
		return "line-state"
	default:
		return "none"
	}
}

// ControlRequest is a pure description of one control transfer to
// replay during activation.
type ControlRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Payload     []byte
}

func (r ControlRequest) String() string {
	return fmt.Sprintf("ctrl 0x%02X/0x%02X val=0x%04X idx=%d len=%d",
		r.RequestType, r.Request, r.Value, r.Index, len(r.Payload))
}

// Activation is a tagged description of the sequence hypothesized to
// switch the device from idle to transmit-ready. It is pure data,
// replayed by the trial runner.
type Activation struct {
	Kind ActivationKind

	// Preamble blocks for ActivationRawBytes, written in order.
	Preamble [][]byte

	// Requests for ActivationControl, replayed in order.
	Requests []ControlRequest

	// Line state for ActivationLineState.
	DTR bool
	RTS bool
}

func (a Activation) String() string {
	switch a.Kind {
	case ActivationRawBytes:
		return fmt.Sprintf("raw-bytes x%d", len(a.Preamble))
	case ActivationControl:
		return fmt.Sprintf("control x%d", len(a.Requests))
	case ActivationLineState:
		return fmt.Sprintf("line-state dtr=%t rts=%t", a.DTR, a.RTS)
	default:
		return "none"
	}
}

// LineStateActivation describes a plain SET_CONTROL_LINE_STATE assert.
func LineStateActivation(dtr, rts bool) Activation {
	return Activation{Kind: ActivationLineState, DTR: dtr, RTS: rts}
}

// LineCodingActivation configures the CDC line for DMX UART timing
// (250000 baud 8N2) and then raises DTR, the closest-to-spec serial
// bring-up sequence.
func LineCodingActivation() Activation {
	return Activation{
		Kind: ActivationControl,
		Requests: []ControlRequest{
			{
				RequestType: usbdmx.RequestTypeClassInterfaceOut,
				Request:     usbdmx.RequestSetLineCoding,
				Payload:     usbdmx.DMXLineCoding(),
			},
			{
				RequestType: usbdmx.RequestTypeClassInterfaceOut,
				Request:     usbdmx.RequestSetControlLineState,
				Value:       usbdmx.LineStateValue(true, false),
			},
		},
	}
}

// VendorControlActivation describes a single vendor-specific OUT
// request with no payload.
func VendorControlActivation(request uint8, value uint16) Activation {
	return Activation{
		Kind: ActivationControl,
		Requests: []ControlRequest{
			{
				RequestType: usbdmx.RequestTypeVendorOut,
				Request:     request,
				Value:       value,
			},
		},
	}
}

// PreambleActivation describes raw byte blocks written to the data
// endpoint before transmission.
func PreambleActivation(blocks ...[]byte) Activation {
	return Activation{Kind: ActivationRawBytes, Preamble: blocks}
}

// replay drives the activation sequence against the session. Raw blocks
// go to the trial's data endpoint. One attempt, no retry.
func (a Activation) replay(sess usbdmx.Session, endpoint usbdmx.EndpointTarget, timeout time.Duration) error {
	switch a.Kind {
	case ActivationNone:
		return nil
	case ActivationRawBytes:
		for _, block := range a.Preamble {
			if _, err := sess.BulkWrite(endpoint, block, timeout); err != nil {
				return err
			}
		}
		return nil
	case ActivationControl:
		for _, req := range a.Requests {
			if _, err := sess.ControlTransfer(req.RequestType, req.Request, req.Value, req.Index, req.Payload, timeout); err != nil {
				return err
			}
		}
		return nil
	case ActivationLineState:
		_, err := sess.ControlTransfer(
			usbdmx.RequestTypeClassInterfaceOut,
			usbdmx.RequestSetControlLineState,
			usbdmx.LineStateValue(a.DTR, a.RTS), 0, nil, timeout)
		return err
	default:
		return fmt.Errorf("probe: unknown activation kind %d", a.Kind)
	}
}
