package keyboard

import (
	"sync"

	"github.com/losdos/motionglove/device"
	"github.com/losdos/motionglove/usb"
	"github.com/losdos/motionglove/usbip"
)

// ProductID is the default USB product id of the emulated keyboard.
const ProductID = 0xCAFF

// Keyboard is an emulated boot keyboard with LED output support.
type Keyboard struct {
	queue       *device.ReportQueue
	stateMu     sync.Mutex
	last        []byte
	ledState    uint8
	ledCallback func(LEDState)
	descriptor  usb.Descriptor
}

// New returns a new Keyboard device.
func New(o *device.CreateOptions) *Keyboard {
	vid, pid := o.IDs(ProductID)
	return &Keyboard{
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
				usb.HIDInterface(usb.SubClassBoot, usb.ProtocolKeyboard, ReportDescriptor, 8, 1, o.Poll()),
			},
			Strings: map[uint8]string{
				0: "\x04\x09",
				1: device.DefaultManufacturer,
				2: "MotionGlove Keyboard",
				3: device.DefaultSerial,
			},
		},
	}
}

// SetLEDCallback sets a callback invoked when the host writes the LED report.
func (k *Keyboard) SetLEDCallback(f func(LEDState)) {
	k.stateMu.Lock()
	defer k.stateMu.Unlock()
	k.ledCallback = f
}

// LEDs returns the LED bitmask last written by the host.
func (k *Keyboard) LEDs() uint8 {
	k.stateMu.Lock()
	defer k.stateMu.Unlock()
	return k.ledState
}

// Push queues a report for the host.
func (k *Keyboard) Push(r Report) error {
	return k.queue.Push(r.BuildReport())
}

// HandleTransfer implements interrupt IN/OUT. Keyboard reports are level
// state, so an idle poll repeats the last report handed out.
func (k *Keyboard) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	if ep != 1 {
		return nil
	}
	if dir == usbip.DirIn {
		k.stateMu.Lock()
		defer k.stateMu.Unlock()
		if b, ok := k.queue.Pop(); ok {
			k.last = b
		}
		return append([]byte(nil), k.last...)
	}
	if len(out) < 1 {
		return nil
	}
	k.stateMu.Lock()
	k.ledState = out[0]
	cb := k.ledCallback
	k.stateMu.Unlock()
	if cb != nil {
		var st LEDState
		_ = st.UnmarshalBinary(out)
		cb(st)
	}
	return nil
}

func (k *Keyboard) GetDescriptor() *usb.Descriptor {
	return &k.descriptor
}

// ReportDescriptor is the standard boot keyboard report descriptor: modifier
// byte, reserved byte, six key array slots and a 5-bit LED output report.
var ReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x06, // Usage (Keyboard)
	0xA1, 0x01, // Collection (Application)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0xE0, //   Usage Minimum (Left Control)
	0x29, 0xE7, //   Usage Maximum (Right GUI)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x01, //   Input (Constant)
	0x05, 0x08, //   Usage Page (LEDs)
	0x19, 0x01, //   Usage Minimum (Num Lock)
	0x29, 0x05, //   Usage Maximum (Kana)
	0x95, 0x05, //   Report Count (5)
	0x75, 0x01, //   Report Size (1)
	0x91, 0x02, //   Output (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x03, //   Report Size (3)
	0x91, 0x01, //   Output (Constant)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0x00, //   Usage Minimum (0)
	0x29, 0xFF, //   Usage Maximum (255)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xFF, 0x00, // Logical Maximum (255)
	0x95, 0x06, //   Report Count (6)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x00, //   Input (Data, Array)
	0xC0, // End Collection
}
