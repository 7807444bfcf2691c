package mouse

import (
	"sync"

	"github.com/losdos/motionglove/device"
	"github.com/losdos/motionglove/usb"
	"github.com/losdos/motionglove/usbip"
)

// ProductID is the default USB product id of the emulated mouse.
const ProductID = 0xCAFE

// Mouse is an emulated 5-button HID mouse with vertical and horizontal wheels.
// Reports pushed by the replay side are handed out one per interrupt IN poll.
type Mouse struct {
	queue      *device.ReportQueue
	mu         sync.Mutex
	held       uint8
	descriptor usb.Descriptor
}

// New returns a new Mouse device.
func New(o *device.CreateOptions) *Mouse {
	vid, pid := o.IDs(ProductID)
	return &Mouse{
		queue: device.NewReportQueue(o.Limit()),
		descriptor: usb.Descriptor{
			Device: usb.DeviceDescriptor{
				BcdUSB:             0x0200,
				BMaxPacketSize0:    0x40,
				IDVendor:           vid,
				IDProduct:          pid,
				BcdDevice:          0x0100,
				IManufacturer:      0x01,
				IProduct:           0x02,
				ISerialNumber:      0x03,
				BNumConfigurations: 0x01,
				Speed:              2, // Full speed
			},
			Interfaces: []usb.InterfaceConfig{
				usb.HIDInterface(usb.SubClassBoot, usb.ProtocolMouse, ReportDescriptor, 8, 0, o.Poll()),
			},
			Strings: map[uint8]string{
				0: "\x04\x09", // LangID: en-US (0x0409)
				1: device.DefaultManufacturer,
				2: "MotionGlove Mouse",
				3: device.DefaultSerial,
			},
		},
	}
}

// Push queues a report for the host.
func (m *Mouse) Push(r Report) error {
	return m.queue.Push(r.BuildReport())
}

// HandleTransfer implements interrupt IN for Mouse. With nothing queued the
// buttons of the last report stay held and the deltas are zero.
func (m *Mouse) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	if dir != usbip.DirIn || ep != 1 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.queue.Pop(); ok {
		m.held = b[0]
		return b
	}
	return Report{Buttons: m.held}.BuildReport()
}

func (m *Mouse) GetDescriptor() *usb.Descriptor {
	return &m.descriptor
}

// ReportDescriptor is the HID report descriptor for a 5-button mouse with
// vertical wheel and AC Pan. Boot protocol compatible.
var ReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x02, // Usage (Mouse)
	0xA1, 0x01, // Collection (Application)
	0x09, 0x01, //   Usage (Pointer)
	0xA1, 0x00, //   Collection (Physical)
	0x05, 0x09, //     Usage Page (Button)
	0x19, 0x01, //     Usage Minimum (Button 1)
	0x29, 0x05, //     Usage Maximum (Button 5)
	0x15, 0x00, //     Logical Minimum (0)
	0x25, 0x01, //     Logical Maximum (1)
	0x95, 0x05, //     Report Count (5)
	0x75, 0x01, //     Report Size (1)
	0x81, 0x02, //     Input (Data, Variable, Absolute)
	0x95, 0x01, //     Report Count (1)
	0x75, 0x03, //     Report Size (3)
	0x81, 0x01, //     Input (Constant)
	0x05, 0x01, //     Usage Page (Generic Desktop)
	0x09, 0x30, //     Usage (X)
	0x09, 0x31, //     Usage (Y)
	0x09, 0x38, //     Usage (Wheel)
	0x15, 0x81, //     Logical Minimum (-127)
	0x25, 0x7F, //     Logical Maximum (127)
	0x75, 0x08, //     Report Size (8)
	0x95, 0x03, //     Report Count (3)
	0x81, 0x06, //     Input (Data, Variable, Relative)
	0x05, 0x0C, //     Usage Page (Consumer)
	0x0A, 0x38, 0x02, // Usage (AC Pan)
	0x15, 0x81, //     Logical Minimum (-127)
	0x25, 0x7F, //     Logical Maximum (127)
	0x75, 0x08, //     Report Size (8)
	0x95, 0x01, //     Report Count (1)
	0x81, 0x06, //     Input (Data, Variable, Relative)
	0xC0, //   End Collection
	0xC0, // End Collection
}
