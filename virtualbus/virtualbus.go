// Package virtualbus assigns USB/IP bus identities to the dongle's emulated devices.
package virtualbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/losdos/motionglove/usb"
	"github.com/losdos/motionglove/usbip"
)

const basepath = "/sys/devices/pci0000:00/0000:00:08.1/0000:00:04:00.3/usb"

// ErrDuplicate is returned when a device is added to the same bus twice.
var ErrDuplicate = errors.New("device already registered on this bus")

// VirtualBus holds the emulated devices exported by one USB/IP server.
type VirtualBus struct {
	mutex     sync.Mutex
	busId     uint32
	nextDevID uint32
	devices   []DeviceMeta
}

// DeviceMeta exposes a registered device and its export metadata.
type DeviceMeta struct {
	Dev  usb.Device
	Meta usbip.ExportMeta
}

// New creates a bus with the given number; zero selects bus 1.
func New(busId uint32) *VirtualBus {
	if busId == 0 {
		busId = 1
	}
	return &VirtualBus{busId: busId}
}

// Add registers dev and returns its export metadata. Device ids start at 1
// and are never reused for the lifetime of the bus.
func (vb *VirtualBus) Add(dev usb.Device) (usbip.ExportMeta, error) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	for _, d := range vb.devices {
		if d.Dev == dev {
			return usbip.ExportMeta{}, ErrDuplicate
		}
	}
	vb.nextDevID++
	devID := vb.nextDevID

	busDevID := fmt.Sprintf("%d-%d", vb.busId, devID)
	path := fmt.Sprintf("%s%d/%s", basepath, vb.busId, busDevID)

	var meta usbip.ExportMeta
	copy(meta.Path[:], path)
	copy(meta.USBBusId[:], busDevID)
	meta.BusId = vb.busId
	meta.DevId = devID

	vb.devices = append(vb.devices, DeviceMeta{Dev: dev, Meta: meta})
	return meta, nil
}

// Lookup returns the device exported under the given bus id string ("1-2").
func (vb *VirtualBus) Lookup(busID string) (DeviceMeta, bool) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for _, d := range vb.devices {
		if d.Meta.BusIDString() == busID {
			return d, true
		}
	}
	return DeviceMeta{}, false
}

// GetAllDeviceMetas returns a copy of all registered devices with their export metadata.
func (vb *VirtualBus) GetAllDeviceMetas() []DeviceMeta {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	return append([]DeviceMeta(nil), vb.devices...)
}

// BusID returns the bus number.
func (vb *VirtualBus) BusID() uint32 {
	return vb.busId
}

// Remove unregisters a device from the bus.
func (vb *VirtualBus) Remove(dev usb.Device) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for i, d := range vb.devices {
		if d.Dev == dev {
			vb.devices = append(vb.devices[:i], vb.devices[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("device not found on bus %d", vb.busId)
}
