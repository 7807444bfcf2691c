// Package usb contains helpers for building USB descriptors for the emulated HID devices.
package usb

import (
	"bytes"
	"encoding/binary"
)

// USB descriptor type constants
const (
	DeviceDescType    = 0x01
	ConfigDescType    = 0x02
	StringDescType    = 0x03
	InterfaceDescType = 0x04
	EndpointDescType  = 0x05
	HIDDescType       = 0x21
	ReportDescType    = 0x22
)

// Descriptor lengths in bytes
const (
	DeviceDescLen    = 18
	ConfigDescLen    = 9
	InterfaceDescLen = 9
	EndpointDescLen  = 7
	HIDDescLen       = 9
)

// HID interface class codes.
const (
	ClassHID         = 0x03
	SubClassNone     = 0x00
	SubClassBoot     = 0x01
	ProtocolNone     = 0x00
	ProtocolKeyboard = 0x01
	ProtocolMouse    = 0x02
)

// Descriptor holds all static descriptor data for a device.
type Descriptor struct {
	Device     DeviceDescriptor
	Interfaces []InterfaceConfig
	Strings    map[uint8]string
}

// InterfaceConfig holds all descriptors for a single interface.
type InterfaceConfig struct {
	Descriptor    InterfaceDescriptor
	Endpoints     []EndpointDescriptor
	HIDDescriptor []byte // HID class descriptor (0x21)
	HIDReport     []byte // HID report descriptor (0x22)
}

// DeviceDescriptor is the standard USB device descriptor.
// BLength and BDescriptorType are implied.
type DeviceDescriptor struct {
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
	Speed              uint32 // 1=low, 2=full, 3=high, 4=super
}

// Bytes returns the wire form of the device descriptor (little-endian fields).
func (d Descriptor) Bytes() []byte {
	var b bytes.Buffer
	b.WriteByte(DeviceDescLen)
	b.WriteByte(DeviceDescType)
	_ = binary.Write(&b, binary.LittleEndian, d.Device.BcdUSB)
	b.WriteByte(d.Device.BDeviceClass)
	b.WriteByte(d.Device.BDeviceSubClass)
	b.WriteByte(d.Device.BDeviceProtocol)
	b.WriteByte(d.Device.BMaxPacketSize0)
	_ = binary.Write(&b, binary.LittleEndian, d.Device.IDVendor)
	_ = binary.Write(&b, binary.LittleEndian, d.Device.IDProduct)
	_ = binary.Write(&b, binary.LittleEndian, d.Device.BcdDevice)
	b.WriteByte(d.Device.IManufacturer)
	b.WriteByte(d.Device.IProduct)
	b.WriteByte(d.Device.ISerialNumber)
	b.WriteByte(d.Device.BNumConfigurations)
	return b.Bytes()
}

// ConfigBytes renders the full configuration descriptor: header, then for each
// interface its descriptor, HID class descriptor and endpoints.
func (d Descriptor) ConfigBytes(attributes, maxPower uint8) []byte {
	var b bytes.Buffer
	b.WriteByte(ConfigDescLen)
	b.WriteByte(ConfigDescType)
	b.Write([]byte{0, 0}) // wTotalLength, patched below
	b.WriteByte(uint8(len(d.Interfaces)))
	b.WriteByte(1) // bConfigurationValue
	b.WriteByte(0) // iConfiguration
	b.WriteByte(attributes)
	b.WriteByte(maxPower)
	for _, iface := range d.Interfaces {
		iface.Descriptor.Write(&b)
		b.Write(iface.HIDDescriptor)
		for _, ep := range iface.Endpoints {
			ep.Write(&b)
		}
	}
	data := b.Bytes()
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(data)))
	return data
}

// InterfaceDescriptor (9 bytes).
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

func (i InterfaceDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(InterfaceDescLen)
	b.WriteByte(InterfaceDescType)
	b.WriteByte(i.BInterfaceNumber)
	b.WriteByte(i.BAlternateSetting)
	b.WriteByte(i.BNumEndpoints)
	b.WriteByte(i.BInterfaceClass)
	b.WriteByte(i.BInterfaceSubClass)
	b.WriteByte(i.BInterfaceProtocol)
	b.WriteByte(i.IInterface)
}

// EndpointDescriptor (7 bytes).
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

func (e EndpointDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(EndpointDescLen)
	b.WriteByte(EndpointDescType)
	b.WriteByte(e.BEndpointAddress)
	b.WriteByte(e.BMAttributes)
	_ = binary.Write(b, binary.LittleEndian, e.WMaxPacketSize)
	b.WriteByte(e.BInterval)
}

// HIDClassDescriptor builds the 9-byte HID class descriptor (bcdHID 1.11) that
// announces one report descriptor of the given length.
func HIDClassDescriptor(reportLen int) []byte {
	return []byte{
		HIDDescLen,
		HIDDescType,
		0x11, 0x01, // bcdHID 1.11
		0x00, // bCountryCode
		0x01, // bNumDescriptors
		ReportDescType,
		byte(reportLen), byte(reportLen >> 8),
	}
}

// HIDInterface describes a single-interface HID function with one interrupt IN
// endpoint (0x81) and, when outPacket > 0, one interrupt OUT endpoint (0x01).
func HIDInterface(subClass, protocol uint8, report []byte, inPacket, outPacket uint16, interval uint8) InterfaceConfig {
	eps := []EndpointDescriptor{{
		BEndpointAddress: 0x81,
		BMAttributes:     0x03, // Interrupt
		WMaxPacketSize:   inPacket,
		BInterval:        interval,
	}}
	if outPacket > 0 {
		eps = append(eps, EndpointDescriptor{
			BEndpointAddress: 0x01,
			BMAttributes:     0x03,
			WMaxPacketSize:   outPacket,
			BInterval:        interval,
		})
	}
	return InterfaceConfig{
		Descriptor: InterfaceDescriptor{
			BNumEndpoints:      uint8(len(eps)),
			BInterfaceClass:    ClassHID,
			BInterfaceSubClass: subClass,
			BInterfaceProtocol: protocol,
		},
		Endpoints:     eps,
		HIDDescriptor: HIDClassDescriptor(len(report)),
		HIDReport:     report,
	}
}

// EncodeStringDescriptor converts a UTF-8 string to a USB string descriptor
// (bLength, 0x03, UTF-16LE code units).
func EncodeStringDescriptor(s string) []byte {
	runes := []rune(s)
	buf := make([]byte, 2+len(runes)*2)
	buf[0] = uint8(len(buf))
	buf[1] = StringDescType
	for i, r := range runes {
		buf[2+i*2] = uint8(r)
		buf[2+i*2+1] = uint8(r >> 8)
	}
	return buf
}
