package media

import (
	"sync"

	"github.com/losdos/motionglove/device"
	"github.com/losdos/motionglove/usb"
	"github.com/losdos/motionglove/usbip"
)

// ProductID is the default USB product id of the emulated media keyboard.
const ProductID = 0xCB00

// Keys is an emulated consumer-control device.
type Keys struct {
	queue      *device.ReportQueue
	mu         sync.Mutex
	last       []byte
	descriptor usb.Descriptor
}

// New returns a new media key device.
func New(o *device.CreateOptions) *Keys {
	vid, pid := o.IDs(ProductID)
	return &Keys{
		queue: device.NewReportQueue(o.Limit()),
		last:  make([]byte, ReportSize),
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
				Speed:              2,
			},
			Interfaces: []usb.InterfaceConfig{
				usb.HIDInterface(usb.SubClassNone, usb.ProtocolNone, ReportDescriptor, ReportSize, 0, o.Poll()),
			},
			Strings: map[uint8]string{
				0: "\x04\x09",
				1: device.DefaultManufacturer,
				2: "MotionGlove Media Keys",
				3: device.DefaultSerial,
			},
		},
	}
}

// Push queues a report for the host.
func (m *Keys) Push(r Report) error {
	return m.queue.Push(r.BuildReport())
}

// HandleTransfer implements interrupt IN; idle polls repeat the last usage.
func (m *Keys) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	if dir != usbip.DirIn || ep != 1 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.queue.Pop(); ok {
		m.last = b
	}
	return append([]byte(nil), m.last...)
}

func (m *Keys) GetDescriptor() *usb.Descriptor {
	return &m.descriptor
}

// ReportDescriptor is a consumer-control collection with one 16-bit usage slot.
var ReportDescriptor = []byte{
	0x05, 0x0C, // Usage Page (Consumer)
	0x09, 0x01, // Usage (Consumer Control)
	0xA1, 0x01, // Collection (Application)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xFF, 0x03, // Logical Maximum (1023)
	0x19, 0x00, //   Usage Minimum (0)
	0x2A, 0xFF, 0x03, // Usage Maximum (1023)
	0x75, 0x10, //   Report Size (16)
	0x95, 0x01, //   Report Count (1)
	0x81, 0x00, //   Input (Data, Array)
	0xC0, // End Collection
}
