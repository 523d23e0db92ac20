package usbdmx

import (
	"fmt"
	"time"
)

// DeviceIdentity locates a physical device by its fixed USB identifiers.
type DeviceIdentity struct {
	VendorID  uint16
	ProductID uint16
}

func (id DeviceIdentity) String() string {
	return fmt.Sprintf("%04X:%04X", id.VendorID, id.ProductID)
}

// EndpointInfo describes one endpoint captured from the claimed
// interface's descriptors.
type EndpointInfo struct {
	Address       uint8 // full address including direction bit
	Number        int
	Out           bool
	TransferType  string
	MaxPacketSize int
}

// EndpointTarget names the sink of a bulk write. Forced marks a target
// that may be absent from the descriptor set: the session must still
// attempt the transfer, because a device whose working endpoint is not
// declared in its own descriptors is exactly what discovery is for.
type EndpointTarget struct {
	Address uint8
	Forced  bool
}

func (t EndpointTarget) String() string {
	if t.Forced {
		return fmt.Sprintf("EP 0x%02X (forced)", t.Address)
	}
	return fmt.Sprintf("EP 0x%02X", t.Address)
}

// Session owns one open USB connection. All methods that touch the
// device are side-effecting and non-idempotent in device state; callers
// must serialize access, with one trial holding the session at a time.
type Session interface {
	// Identity reports the vendor/product pair the session was opened for.
	Identity() DeviceIdentity

	// Configure selects the device's active configuration. Fails with
	// *ConfigurationError.
	Configure(configNum int) error

	// Claim takes exclusive ownership of an interface, detaching a
	// conflicting kernel driver first when possible. Fails with
	// *ClaimError; detach trouble is recorded as a DetachWarning, not a
	// failure. The endpoint descriptor set is captured here.
	Claim(interfaceNum, altSetting int) error

	// Claimed reports whether an interface claim is currently held.
	Claimed() bool

	// Endpoints returns the descriptor set captured at claim time.
	Endpoints() []EndpointInfo

	// HasEndpoint reports whether an OUT endpoint with the given full
	// address appears in the captured descriptor set.
	HasEndpoint(address uint8) bool

	// ControlTransfer performs a synchronous control transfer. Direction
	// is encoded in bit 7 of requestType, as on the wire; for IN
	// transfers payload is the receive buffer. Returns bytes moved, or
	// a *TransferError.
	ControlTransfer(requestType, request uint8, value, index uint16, payload []byte, timeout time.Duration) (int, error)

	// BulkWrite performs a synchronous bulk/interrupt OUT transfer.
	// Unforced targets are validated against the descriptor set before
	// the device is touched. Returns bytes written, or a *TransferError.
	BulkWrite(target EndpointTarget, payload []byte, timeout time.Duration) (int, error)

	// DetachWarning returns the recoverable driver-detach problem from
	// the most recent Claim, or nil.
	DetachWarning() error

	// Release drops the interface claim. Idempotent; invoked on trial
	// teardown on every exit path.
	Release()

	// Close releases any claim and closes the underlying handle.
	// Idempotent.
	Close()
}

// CDC class request constants. These are the candidate activation
// primitives observed to be handled by the reference device.
const (
	RequestTypeClassInterfaceOut uint8 = 0x21
	RequestTypeClassInterfaceIn  uint8 = 0xA1
	RequestTypeVendorOut         uint8 = 0x40
	RequestTypeVendorIn          uint8 = 0xC0

	RequestSetLineCoding       uint8 = 0x20
	RequestGetLineCoding       uint8 = 0x21
	RequestSetControlLineState uint8 = 0x22
	RequestSendBreak           uint8 = 0x23

	// SEND_BREAK wValue semantics: duration in ms, 0 ends an open-ended
	// break, 0xFFFF holds the break until told to stop.
	BreakOff        uint16 = 0x0000
	BreakIndefinite uint16 = 0xFFFF
)

// LineStateValue packs DTR/RTS flags into a SET_CONTROL_LINE_STATE wValue.
func LineStateValue(dtr, rts bool) uint16 {
	var v uint16
	if dtr {
		v |= 0x01
	}
	if rts {
		v |= 0x02
	}
	return v
}

// LineCoding builds a 7-byte CDC line coding block (little-endian baud,
// stop bits, parity, data bits). DMX512 on a UART is 250000 baud 8N2.
func LineCoding(baud uint32, stopBits, parity, dataBits byte) []byte {
	return []byte{
		byte(baud), byte(baud >> 8), byte(baud >> 16), byte(baud >> 24),
		stopBits, parity, dataBits,
	}
}

// DMXLineCoding is the SET_LINE_CODING payload for DMX512 UART timing.
func DMXLineCoding() []byte {
	return LineCoding(250000, 2, 0, 8)
}
