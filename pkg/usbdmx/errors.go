package usbdmx

import (
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// ErrDeviceNotFound indicates that no attached USB device matched the
// requested vendor/product identity. Fatal at harness startup: no trial
// can proceed without a session.
var ErrDeviceNotFound = errors.New("usbdmx: device not found")

// ErrDriverDetachFailed is a recoverable warning: a conflicting kernel
// driver held the interface and could not be detached. Transfers may
// still succeed, so claiming proceeds regardless.
var ErrDriverDetachFailed = errors.New("usbdmx: kernel driver detach failed")

// ErrSessionReleased is returned by device operations invoked after the
// session's interface claim has been released.
var ErrSessionReleased = errors.New("usbdmx: session released")

// ConfigurationError indicates the device refused the requested
// configuration. Fatal at harness startup.
type ConfigurationError struct {
	Config int
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("usbdmx: set configuration %d failed: %v", e.Config, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ClaimError indicates an interface could not be claimed for exclusive
// use. Terminates the current trial only.
type ClaimError struct {
	Interface  int
	AltSetting int
	Err        error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("usbdmx: claim interface %d alt %d failed: %v", e.Interface, e.AltSetting, e.Err)
}

func (e *ClaimError) Unwrap() error { return e.Err }

// TransferKind classifies a failed control or bulk transfer.
type TransferKind int

const (
	TransferIO TransferKind = iota
	TransferStall
	TransferTimeout
	TransferUnsupportedEndpoint
)

func (k TransferKind) String() string {
	switch k {
	case TransferStall:
		return "STALL"
	case TransferTimeout:
		return "TIMEOUT"
	case TransferUnsupportedEndpoint:
		return "UNSUPPORTED_ENDPOINT"
	default:
		return "IO"
	}
}

// TransferError wraps a failed device transfer with its classification.
// A STALL is itself informative during discovery: it proves the device
// decoded and rejected the request.
type TransferError struct {
	Kind TransferKind
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("usbdmx: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("usbdmx: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// classifyTransfer maps a gousb/libusb error to the harness taxonomy.
func classifyTransfer(op string, err error) *TransferError {
	kind := TransferIO
	switch {
	case errors.Is(err, gousb.ErrorPipe):
		kind = TransferStall
	case errors.Is(err, gousb.ErrorTimeout):
		kind = TransferTimeout
	case errors.Is(err, gousb.ErrorNotFound):
		kind = TransferUnsupportedEndpoint
	}
	return &TransferError{Kind: kind, Op: op, Err: err}
}
