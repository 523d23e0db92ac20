// Package dmx builds DMX512 frame payloads and timing profiles for the
// protocol discovery harness. The layouts here are the candidate wire
// formats the reference device might accept; which one it actually
// wants is what the harness exists to find out.
package dmx

import "fmt"

// ChannelCount is the number of channel slots in a DMX512 universe.
const ChannelCount = 512

// StartCode is the DMX512 null start code preceding dimmer data.
const StartCode = 0x00

// LayoutKind selects one candidate payload shape.
type LayoutKind int

const (
	// LayoutRaw512 is 512 channel bytes with no start code.
	LayoutRaw512 LayoutKind = iota
	// LayoutStartCode513 is the DMX start code followed by 512 channels.
	LayoutStartCode513
	// LayoutVendor514 is 512 channels followed by two trailer bytes, the
	// observed vendor convention.
	LayoutVendor514
)

func (k LayoutKind) String() string {
	switch k {
	case LayoutRaw512:
		return "raw-512"
	case LayoutStartCode513:
		return "startcode-513"
	case LayoutVendor514:
		return "vendor-514"
	default:
		return fmt.Sprintf("layout(%d)", int(k))
	}
}

// VendorTrailerLen is the trailer length of the vendor 514-byte format.
const VendorTrailerLen = 2

// Layout describes one candidate frame shape. TrailerValue applies to
// LayoutVendor514 only; the reference traffic showed 0xFF there.
type Layout struct {
	Kind         LayoutKind
	TrailerValue byte
}

// Size returns the fixed byte length of frames in this layout.
func (l Layout) Size() int {
	switch l.Kind {
	case LayoutStartCode513:
		return ChannelCount + 1
	case LayoutVendor514:
		return ChannelCount + VendorTrailerLen
	default:
		return ChannelCount
	}
}

func (l Layout) String() string {
	if l.Kind == LayoutVendor514 {
		return fmt.Sprintf("%s trailer=0x%02X", l.Kind, l.TrailerValue)
	}
	return l.Kind.String()
}

// channelOffset returns the byte offset of channel 1 within a frame.
func (l Layout) channelOffset() int {
	if l.Kind == LayoutStartCode513 {
		return 1
	}
	return 0
}

// Channels maps 1-based DMX channel numbers to intensity values.
type Channels map[int]byte

// Build produces a frame of exactly l.Size() bytes from the channel
// mapping. Unset channels are zero; channel numbers outside 1..512 are
// ignored, so Build is total over any mapping including the empty one.
func Build(l Layout, channels Channels) []byte {
	frame := make([]byte, l.Size())
	if l.Kind == LayoutStartCode513 {
		frame[0] = StartCode
	}
	off := l.channelOffset()
	for ch, val := range channels {
		if ch < 1 || ch > ChannelCount {
			continue
		}
		frame[off+ch-1] = val
	}
	if l.Kind == LayoutVendor514 {
		for i := ChannelCount; i < ChannelCount+VendorTrailerLen; i++ {
			frame[i] = l.TrailerValue
		}
	}
	return frame
}

// Blackout produces an all-zero frame of the layout's size. The vendor
// trailer is zeroed too: a blackout should quench the status LEDs the
// trailer bytes are believed to drive.
func Blackout(l Layout) []byte {
	zero := l
	zero.TrailerValue = 0
	return Build(zero, nil)
}
