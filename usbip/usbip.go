// Package usbip implements the subset of the USB/IP wire protocol needed to
// export the dongle's emulated HID devices: device listing, import and the
// URB submit/unlink stream. All multi-byte fields are big-endian.
package usbip

import (
	"encoding/binary"
	"io"
)

const (
	Version = 0x0111

	// Management commands
	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003

	// URB commands
	CmdSubmitCode = 0x00000001
	CmdUnlinkCode = 0x00000002
	RetSubmitCode = 0x00000003
	RetUnlinkCode = 0x00000004

	DirOut = 0x00000000
	DirIn  = 0x00000001

	// URB headers are always 0x30 bytes on the wire.
	URBHeaderSize = 0x30
)

// MgmtHeader is the 8-byte header for management ops (devlist/import).
type MgmtHeader struct {
	Version uint16
	Command uint16
	Status  uint32
}

func (h *MgmtHeader) Write(w io.Writer) error {
	var buf [8]byte
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	binary.BigEndian.PutUint16(buf[2:4], h.Command)
	binary.BigEndian.PutUint32(buf[4:8], h.Status)
	_, err := w.Write(buf[:])
	return err
}

// ExportMeta carries USB/IP bus identity for an emulated device.
type ExportMeta struct {
	Path     [256]byte
	USBBusId [32]byte
	BusId    uint32
	DevId    uint32
}

// BusIDString returns USBBusId without its NUL padding.
func (m *ExportMeta) BusIDString() string {
	for i, b := range m.USBBusId {
		if b == 0 {
			return string(m.USBBusId[:i])
		}
	}
	return string(m.USBBusId[:])
}

// InterfaceDesc is the class triple advertised for each interface in a devlist reply.
type InterfaceDesc struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

// ExportedDevice describes one exported device in devlist/import replies.
type ExportedDevice struct {
	ExportMeta
	Speed uint32

	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8

	Interfaces []InterfaceDesc
}

// exportedDeviceSize is the fixed part shared by devlist and import replies.
const exportedDeviceSize = 256 + 32 + 4*3 + 2*3 + 6

func (d *ExportedDevice) fixed() []byte {
	b := make([]byte, exportedDeviceSize)
	copy(b[0:256], d.Path[:])
	copy(b[256:288], d.USBBusId[:])
	binary.BigEndian.PutUint32(b[288:292], d.BusId)
	binary.BigEndian.PutUint32(b[292:296], d.DevId)
	binary.BigEndian.PutUint32(b[296:300], d.Speed)
	binary.BigEndian.PutUint16(b[300:302], d.IDVendor)
	binary.BigEndian.PutUint16(b[302:304], d.IDProduct)
	binary.BigEndian.PutUint16(b[304:306], d.BcdDevice)
	b[306] = d.BDeviceClass
	b[307] = d.BDeviceSubClass
	b[308] = d.BDeviceProtocol
	b[309] = d.BConfigurationValue
	b[310] = d.BNumConfigurations
	b[311] = d.BNumInterfaces
	return b
}

// WriteDevlist writes the device entry for OP_REP_DEVLIST, including one
// 4-byte class/subclass/protocol/pad entry per interface.
func (d *ExportedDevice) WriteDevlist(w io.Writer) error {
	b := d.fixed()
	for _, iface := range d.Interfaces {
		b = append(b, iface.Class, iface.SubClass, iface.Protocol, 0)
	}
	_, err := w.Write(b)
	return err
}

// WriteImport writes the device entry for OP_REP_IMPORT (ends at bNumInterfaces).
func (d *ExportedDevice) WriteImport(w io.Writer) error {
	_, err := w.Write(d.fixed())
	return err
}

// HeaderBasic is common to all URB commands and replies.
type HeaderBasic struct {
	Command uint32
	Seqnum  uint32
	Devid   uint32
	Dir     uint32
	Ep      uint32
}

func (h HeaderBasic) put(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], h.Command)
	binary.BigEndian.PutUint32(b[4:8], h.Seqnum)
	binary.BigEndian.PutUint32(b[8:12], h.Devid)
	binary.BigEndian.PutUint32(b[12:16], h.Dir)
	binary.BigEndian.PutUint32(b[16:20], h.Ep)
}

// ParseHeaderBasic reads the first 20 bytes of a URB header.
func ParseHeaderBasic(b []byte) HeaderBasic {
	return HeaderBasic{
		Command: binary.BigEndian.Uint32(b[0:4]),
		Seqnum:  binary.BigEndian.Uint32(b[4:8]),
		Devid:   binary.BigEndian.Uint32(b[8:12]),
		Dir:     binary.BigEndian.Uint32(b[12:16]),
		Ep:      binary.BigEndian.Uint32(b[16:20]),
	}
}

// CmdSubmit is USBIP_CMD_SUBMIT as sent by the importing host.
type CmdSubmit struct {
	Basic             HeaderBasic
	TransferFlags     uint32
	TransferBufferLen uint32
	StartFrame        uint32
	NumberOfPackets   uint32
	Interval          uint32
	Setup             [8]byte
}

// ParseCmdSubmit decodes a full 0x30-byte submit header.
func ParseCmdSubmit(b []byte) CmdSubmit {
	c := CmdSubmit{
		Basic:             ParseHeaderBasic(b),
		TransferFlags:     binary.BigEndian.Uint32(b[20:24]),
		TransferBufferLen: binary.BigEndian.Uint32(b[24:28]),
		StartFrame:        binary.BigEndian.Uint32(b[28:32]),
		NumberOfPackets:   binary.BigEndian.Uint32(b[32:36]),
		Interval:          binary.BigEndian.Uint32(b[36:40]),
	}
	copy(c.Setup[:], b[40:48])
	return c
}

func (c *CmdSubmit) Write(w io.Writer) error {
	var b [URBHeaderSize]byte
	c.Basic.put(b[:])
	binary.BigEndian.PutUint32(b[20:24], c.TransferFlags)
	binary.BigEndian.PutUint32(b[24:28], c.TransferBufferLen)
	binary.BigEndian.PutUint32(b[28:32], c.StartFrame)
	binary.BigEndian.PutUint32(b[32:36], c.NumberOfPackets)
	binary.BigEndian.PutUint32(b[36:40], c.Interval)
	copy(b[40:48], c.Setup[:])
	_, err := w.Write(b[:])
	return err
}

// RetSubmit is USBIP_RET_SUBMIT; the transfer payload follows it on the wire.
type RetSubmit struct {
	Basic           HeaderBasic
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
}

func (r *RetSubmit) Write(w io.Writer) error {
	var b [URBHeaderSize]byte
	r.Basic.put(b[:])
	binary.BigEndian.PutUint32(b[20:24], uint32(r.Status))
	binary.BigEndian.PutUint32(b[24:28], r.ActualLength)
	binary.BigEndian.PutUint32(b[28:32], r.StartFrame)
	binary.BigEndian.PutUint32(b[32:36], r.NumberOfPackets)
	binary.BigEndian.PutUint32(b[36:40], r.ErrorCount)
	_, err := w.Write(b[:])
	return err
}

// RetUnlink is USBIP_RET_UNLINK.
type RetUnlink struct {
	Basic  HeaderBasic
	Status int32
}

func (r *RetUnlink) Write(w io.Writer) error {
	var b [URBHeaderSize]byte
	r.Basic.put(b[:])
	binary.BigEndian.PutUint32(b[20:24], uint32(r.Status))
	_, err := w.Write(b[:])
	return err
}

// ReadExactly fills buf from r or returns the first read error.
func ReadExactly(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
