package usbdmx

import (
	"fmt"
	"time"
)

// ControlOp records one control transfer made against a SimSession.
type ControlOp struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Payload     []byte
}

// WriteOp records one bulk write made against a SimSession.
type WriteOp struct {
	Target  EndpointTarget
	Payload []byte
}

// ControlHook lets a test decide the outcome of a control transfer.
type ControlHook func(op ControlOp) (int, error)

// WriteHook lets a test decide the outcome of a bulk write.
type WriteHook func(op WriteOp) (int, error)

// SimSession is an in-memory Session useful for unit tests and for
// exercising the harness without hardware. It records every operation
// and can inject failures at each lifecycle step.
type SimSession struct {
	IdentityVal DeviceIdentity
	EndpointSet []EndpointInfo

	ConfigureErr error
	ClaimErr     error
	DetachWarn   error

	OnControl ControlHook
	OnWrite   WriteHook

	controls []ControlOp
	writes   []WriteOp

	configured bool
	claimed    bool
	closed     bool

	claims   int
	releases int
}

// NewSimSession constructs a simulator that declares a single bulk OUT
// endpoint 0x01, matching the reference device's visible descriptors.
func NewSimSession(identity DeviceIdentity) *SimSession {
	return &SimSession{
		IdentityVal: identity,
		EndpointSet: []EndpointInfo{
			{Address: 0x01, Number: 1, Out: true, TransferType: "bulk", MaxPacketSize: 64},
			{Address: 0x81, Number: 1, Out: false, TransferType: "bulk", MaxPacketSize: 64},
		},
	}
}

func (s *SimSession) Identity() DeviceIdentity { return s.IdentityVal }

func (s *SimSession) Configure(configNum int) error {
	if s.ConfigureErr != nil {
		return &ConfigurationError{Config: configNum, Err: s.ConfigureErr}
	}
	s.configured = true
	return nil
}

func (s *SimSession) Claim(interfaceNum, altSetting int) error {
	s.claims++
	if s.ClaimErr != nil {
		return &ClaimError{Interface: interfaceNum, AltSetting: altSetting, Err: s.ClaimErr}
	}
	s.claimed = true
	return nil
}

func (s *SimSession) Claimed() bool { return s.claimed }

func (s *SimSession) Endpoints() []EndpointInfo {
	out := make([]EndpointInfo, len(s.EndpointSet))
	copy(out, s.EndpointSet)
	return out
}

func (s *SimSession) HasEndpoint(address uint8) bool {
	for _, ep := range s.EndpointSet {
		if ep.Address == address && ep.Out {
			return true
		}
	}
	return false
}

func (s *SimSession) DetachWarning() error { return s.DetachWarn }

func (s *SimSession) ControlTransfer(requestType, request uint8, value, index uint16, payload []byte, timeout time.Duration) (int, error) {
	op := ControlOp{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Payload:     append([]byte(nil), payload...),
	}
	s.controls = append(s.controls, op)
	if s.OnControl != nil {
		return s.OnControl(op)
	}
	return len(payload), nil
}

func (s *SimSession) BulkWrite(target EndpointTarget, payload []byte, timeout time.Duration) (int, error) {
	op := WriteOp{Target: target, Payload: append([]byte(nil), payload...)}
	s.writes = append(s.writes, op)
	if !target.Forced && !s.HasEndpoint(target.Address) {
		return 0, &TransferError{Kind: TransferUnsupportedEndpoint,
			Op:  fmt.Sprintf("bulk write %s", target),
			Err: fmt.Errorf("endpoint not in descriptor set")}
	}
	if s.OnWrite != nil {
		return s.OnWrite(op)
	}
	if !s.HasEndpoint(target.Address) {
		return 0, &TransferError{Kind: TransferUnsupportedEndpoint,
			Op:  fmt.Sprintf("bulk write %s", target),
			Err: fmt.Errorf("no such endpoint")}
	}
	return len(payload), nil
}

func (s *SimSession) Release() {
	if s.claimed {
		s.claimed = false
	}
	s.releases++
}

func (s *SimSession) Close() {
	s.Release()
	s.closed = true
}

// ClaimCount reports how many Claim attempts were made.
func (s *SimSession) ClaimCount() int { return s.claims }

// ReleaseCount reports how many Release calls were made.
func (s *SimSession) ReleaseCount() int { return s.releases }

// Controls returns a copy of the recorded control transfers.
func (s *SimSession) Controls() []ControlOp {
	return append([]ControlOp(nil), s.controls...)
}

// Writes returns a copy of the recorded bulk writes.
func (s *SimSession) Writes() []WriteOp {
	return append([]WriteOp(nil), s.writes...)
}

// ResetOps clears the recorded operation log, keeping counters.
func (s *SimSession) ResetOps() {
	s.controls = nil
	s.writes = nil
}
