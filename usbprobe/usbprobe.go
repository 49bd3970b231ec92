/*Package usbprobe enumerates cameras on the USB bus.

The vendor SDK identifies cameras by index, which shifts when devices
come and go.  Probing the bus directly gives stable identification
(bus, address, serial) that servers can log at startup and operators can
use to pick the right camera.
*/
package usbprobe

import (
	"fmt"

	"github.com/google/gousb"
)

// DefaultVID is the USB vendor ID matched when none is given.
const DefaultVID = 0x03C3

// Entry describes one camera found on the bus.
type Entry struct {
	// Bus and Address locate the device on the host
	Bus     int
	Address int

	// VID and PID are the USB vendor and product IDs
	VID uint16
	PID uint16

	// Product and Serial are the device's descriptor strings; either
	// may be empty if the descriptor read fails
	Product string
	Serial  string
}

func (e Entry) String() string {
	return fmt.Sprintf("bus %d addr %d %04x:%04x %s serial=%s",
		e.Bus, e.Address, e.VID, e.PID, e.Product, e.Serial)
}

// Probe scans the bus for devices with the given vendor ID, zero for
// DefaultVID.  Devices that cannot be opened are skipped rather than
// failing the scan.
func Probe(vid uint16) ([]Entry, error) {
	if vid == 0 {
		vid = DefaultVID
	}
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == vid
	})
	// OpenDevices returns the devices it could open even on error
	entries := make([]Entry, 0, len(devs))
	for _, dev := range devs {
		desc := dev.Desc
		e := Entry{
			Bus:     desc.Bus,
			Address: desc.Address,
			VID:     uint16(desc.Vendor),
			PID:     uint16(desc.Product),
		}
		e.Product, _ = dev.Product()
		e.Serial, _ = dev.SerialNumber()
		entries = append(entries, e)
		dev.Close()
	}
	if len(entries) > 0 {
		return entries, nil
	}
	return entries, err
}
