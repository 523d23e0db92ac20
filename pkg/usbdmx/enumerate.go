package usbdmx

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// SoundSwitch Micro DMX transmitter, the reference device for the
// discovery harness.
const (
	VendorIDSoundSwitch = 0x15E4
	ProductIDMicroDMX   = 0x0053
)

// ReferenceIdentity returns the identity of the reference transmitter.
func ReferenceIdentity() DeviceIdentity {
	return DeviceIdentity{VendorID: VendorIDSoundSwitch, ProductID: ProductIDMicroDMX}
}

// DeviceInfo describes a discovered candidate device.
type DeviceInfo struct {
	Identity     DeviceIdentity
	Manufacturer string
	Product      string
	SerialNumber string
	Description  string
}

// Label returns a user-friendly description for the device.
func (d DeviceInfo) Label() string {
	if d.Product != "" {
		return fmt.Sprintf("%s (%s)", d.Product, d.Identity)
	}
	if d.Description != "" {
		return fmt.Sprintf("%s (%s)", d.Description, d.Identity)
	}
	return fmt.Sprintf("Device %s", d.Identity)
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownDMXVIDPIDs = []knownUSBDevice{
	{VendorID: VendorIDSoundSwitch, ProductID: ProductIDMicroDMX, Description: "SoundSwitch Micro DMX"},
	{VendorID: 0x0403, ProductID: 0x6001, Description: "FTDI FT232 (Enttec-style DMX)"},
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (DeviceInfo, bool) {
	for _, known := range knownDMXVIDPIDs {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return DeviceInfo{
				Identity:    DeviceIdentity{VendorID: known.VendorID, ProductID: known.ProductID},
				Description: known.Description,
			}, true
		}
	}
	return DeviceInfo{}, false
}

// Enumerate lists attached USB devices matching known DMX transmitter
// VID/PID pairs, with string descriptors where readable.
func Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	var results []DeviceInfo
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		_, ok := classifyUSBDevice(desc)
		return ok
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, fmt.Errorf("usbdmx: enumerate: %w", err)
	}

	for _, dev := range devs {
		info, _ := classifyUSBDevice(dev.Desc)
		info.Manufacturer, _ = dev.Manufacturer()
		info.Product, _ = dev.Product()
		info.SerialNumber, _ = dev.SerialNumber()
		results = append(results, info)
		dev.Close()
	}
	return results, nil
}
