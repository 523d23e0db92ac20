package usbdmx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// DefaultControlTimeout bounds control transfers that carry no explicit
// per-call timeout.
const DefaultControlTimeout = 200 * time.Millisecond

// USBSession is the gousb-backed Session implementation.
type USBSession struct {
	identity DeviceIdentity

	ctx *gousb.Context
	dev *gousb.Device
	cfg *gousb.Config

	intf      *gousb.Interface
	endpoints []EndpointInfo
	epOut     map[uint8]*gousb.OutEndpoint

	detachWarning error
	closed        bool
}

// Open locates the device by identity and opens a handle. No interface
// is claimed yet. A missing device fails with ErrDeviceNotFound.
func Open(identity DeviceIdentity) (*USBSession, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(identity.VendorID), gousb.ID(identity.ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usbdmx: open %s: %w", identity, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usbdmx: open %s: %w", identity, ErrDeviceNotFound)
	}
	dev.ControlTimeout = DefaultControlTimeout

	return &USBSession{identity: identity, ctx: ctx, dev: dev}, nil
}

func (s *USBSession) Identity() DeviceIdentity { return s.identity }

// Configure selects the device's active configuration.
func (s *USBSession) Configure(configNum int) error {
	if s.dev == nil {
		return &ConfigurationError{Config: configNum, Err: ErrSessionReleased}
	}
	cfg, err := s.dev.Config(configNum)
	if err != nil {
		return &ConfigurationError{Config: configNum, Err: err}
	}
	if s.cfg != nil {
		s.cfg.Close()
	}
	s.cfg = cfg
	return nil
}

// Claim takes exclusive ownership of an interface and captures its
// endpoint descriptor set. A conflicting kernel driver is detached via
// libusb auto-detach; detach failure is recorded as a warning and the
// claim proceeds, since detach failure does not always prevent
// transfers.
func (s *USBSession) Claim(interfaceNum, altSetting int) error {
	if s.dev == nil {
		return &ClaimError{Interface: interfaceNum, AltSetting: altSetting, Err: ErrSessionReleased}
	}
	if s.cfg == nil {
		return &ClaimError{Interface: interfaceNum, AltSetting: altSetting,
			Err: fmt.Errorf("usbdmx: no active configuration")}
	}

	s.detachWarning = nil
	if err := s.dev.SetAutoDetach(true); err != nil {
		s.detachWarning = fmt.Errorf("%w: %v", ErrDriverDetachFailed, err)
	}

	intf, err := s.cfg.Interface(interfaceNum, altSetting)
	if err != nil {
		return &ClaimError{Interface: interfaceNum, AltSetting: altSetting, Err: err}
	}
	s.intf = intf
	s.epOut = make(map[uint8]*gousb.OutEndpoint)

	s.endpoints = s.endpoints[:0]
	for _, ep := range intf.Setting.Endpoints {
		s.endpoints = append(s.endpoints, EndpointInfo{
			Address:       uint8(ep.Address),
			Number:        ep.Number,
			Out:           ep.Direction == gousb.EndpointDirectionOut,
			TransferType:  ep.TransferType.String(),
			MaxPacketSize: ep.MaxPacketSize,
		})
	}
	return nil
}

func (s *USBSession) Claimed() bool { return s.intf != nil }

func (s *USBSession) Endpoints() []EndpointInfo {
	out := make([]EndpointInfo, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}

func (s *USBSession) HasEndpoint(address uint8) bool {
	for _, ep := range s.endpoints {
		if ep.Address == address && ep.Out {
			return true
		}
	}
	return false
}

func (s *USBSession) DetachWarning() error { return s.detachWarning }

// ControlTransfer performs a synchronous control transfer on endpoint 0.
func (s *USBSession) ControlTransfer(requestType, request uint8, value, index uint16, payload []byte, timeout time.Duration) (int, error) {
	if s.dev == nil {
		return 0, &TransferError{Kind: TransferIO, Op: "control", Err: ErrSessionReleased}
	}
	if timeout > 0 {
		s.dev.ControlTimeout = timeout
	} else {
		s.dev.ControlTimeout = DefaultControlTimeout
	}
	n, err := s.dev.Control(requestType, request, value, index, payload)
	if err != nil {
		op := fmt.Sprintf("control 0x%02X/0x%02X", requestType, request)
		return n, classifyTransfer(op, err)
	}
	return n, nil
}

// BulkWrite writes payload to the given OUT endpoint. An unforced
// target absent from the descriptor set fails with UNSUPPORTED_ENDPOINT
// without touching the device. A forced target is attempted regardless;
// libusb refuses an address its descriptors never declared, and that
// refusal is reported the same way so the trial record still captures
// the observation.
func (s *USBSession) BulkWrite(target EndpointTarget, payload []byte, timeout time.Duration) (int, error) {
	op := fmt.Sprintf("bulk write %s", target)
	if s.intf == nil {
		return 0, &TransferError{Kind: TransferIO, Op: op, Err: ErrSessionReleased}
	}
	if !target.Forced && !s.HasEndpoint(target.Address) {
		return 0, &TransferError{Kind: TransferUnsupportedEndpoint, Op: op,
			Err: fmt.Errorf("endpoint not in descriptor set")}
	}

	ep, ok := s.epOut[target.Address]
	if !ok {
		opened, err := s.intf.OutEndpoint(int(target.Address & 0x0F))
		if err != nil {
			return 0, &TransferError{Kind: TransferUnsupportedEndpoint, Op: op, Err: err}
		}
		ep = opened
		s.epOut[target.Address] = ep
	}

	wctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(wctx, timeout)
		defer cancel()
	}
	n, err := ep.WriteContext(wctx, payload)
	if err != nil {
		if wctx.Err() != nil {
			return n, &TransferError{Kind: TransferTimeout, Op: op, Err: err}
		}
		return n, classifyTransfer(op, err)
	}
	return n, nil
}

// Release drops the interface claim. Idempotent.
func (s *USBSession) Release() {
	if s.intf != nil {
		s.intf.Close()
		s.intf = nil
	}
	s.epOut = nil
}

// Close releases everything, in reverse acquisition order. Idempotent.
func (s *USBSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.Release()
	if s.cfg != nil {
		s.cfg.Close()
		s.cfg = nil
	}
	if s.dev != nil {
		s.dev.Close()
		s.dev = nil
	}
	if s.ctx != nil {
		s.ctx.Close()
		s.ctx = nil
	}
}
