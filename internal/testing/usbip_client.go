package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/losdos/motionglove/usbip"
)

// USBIPClient speaks the host side of USB-IP against a test server.
type USBIPClient struct {
	address string
	seq     atomic.Uint32
}

// ExportedDevice is one entry of a devlist or import reply.
type ExportedDevice struct {
	BusID      string
	BusNum     uint32
	DeviceNum  uint32
	IDVendor   uint16
	IDProduct  uint16
	NumIfaces  uint8
	Interfaces []usbip.InterfaceDesc
}

func NewUSBIPClient(addr string) *USBIPClient {
	return &USBIPClient{address: addr}
}

// ListDevices sends OP_REQ_DEVLIST.
func (c *USBIPClient) ListDevices() ([]ExportedDevice, error) {
	conn, err := net.DialTimeout("tcp", c.address, time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(time.Second))

	if err := (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}).Write(conn); err != nil {
		return nil, err
	}
	var hdr [12]byte
	if err := usbip.ReadExactly(conn, hdr[:]); err != nil {
		return nil, err
	}
	if cmd := binary.BigEndian.Uint16(hdr[2:4]); cmd != usbip.OpRepDevlist {
		return nil, fmt.Errorf("unexpected reply command %x", cmd)
	}
	n := binary.BigEndian.Uint32(hdr[8:12])
	devices := make([]ExportedDevice, 0, n)
	for range n {
		dev, err := readExportedDevice(conn, true)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Attach imports busID and returns the connection carrying its URB stream.
func (c *USBIPClient) Attach(busID string) (net.Conn, ExportedDevice, error) {
	conn, err := net.DialTimeout("tcp", c.address, time.Second)
	if err != nil {
		return nil, ExportedDevice{}, err
	}
	fail := func(err error) (net.Conn, ExportedDevice, error) {
		_ = conn.Close()
		return nil, ExportedDevice{}, err
	}
	_ = conn.SetDeadline(time.Now().Add(time.Second))
	if err := (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqImport}).Write(conn); err != nil {
		return fail(err)
	}
	var bus [32]byte
	copy(bus[:], busID)
	if _, err := conn.Write(bus[:]); err != nil {
		return fail(err)
	}
	var hdr [8]byte
	if err := usbip.ReadExactly(conn, hdr[:]); err != nil {
		return fail(err)
	}
	if cmd := binary.BigEndian.Uint16(hdr[2:4]); cmd != usbip.OpRepImport {
		return fail(fmt.Errorf("unexpected reply command %x", cmd))
	}
	if status := binary.BigEndian.Uint32(hdr[4:8]); status != 0 {
		return fail(fmt.Errorf("import refused with status %d", status))
	}
	dev, err := readExportedDevice(conn, false)
	if err != nil {
		return fail(err)
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, dev, nil
}

func readExportedDevice(conn net.Conn, withIfaces bool) (ExportedDevice, error) {
	var base [312]byte
	if err := usbip.ReadExactly(conn, base[:]); err != nil {
		return ExportedDevice{}, err
	}
	busField := base[256:288]
	busEnd := bytes.IndexByte(busField, 0)
	if busEnd == -1 {
		busEnd = len(busField)
	}
	dev := ExportedDevice{
		BusID:     string(busField[:busEnd]),
		BusNum:    binary.BigEndian.Uint32(base[288:292]),
		DeviceNum: binary.BigEndian.Uint32(base[292:296]),
		IDVendor:  binary.BigEndian.Uint16(base[300:302]),
		IDProduct: binary.BigEndian.Uint16(base[302:304]),
		NumIfaces: base[311],
	}
	if withIfaces && dev.NumIfaces > 0 {
		buf := make([]byte, int(dev.NumIfaces)*4)
		if err := usbip.ReadExactly(conn, buf); err != nil {
			return ExportedDevice{}, err
		}
		for i := 0; i < len(buf); i += 4 {
			dev.Interfaces = append(dev.Interfaces, usbip.InterfaceDesc{Class: buf[i], SubClass: buf[i+1], Protocol: buf[i+2]})
		}
	}
	return dev, nil
}

// Submit sends one CMD_SUBMIT and returns the IN payload of its reply.
func (c *USBIPClient) Submit(conn net.Conn, dir, ep uint32, setup [8]byte, bufLen uint32) ([]byte, error) {
	cmd := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: c.seq.Add(1), Dir: dir, Ep: ep},
		TransferBufferLen: bufLen,
		Setup:             setup,
	}
	_ = conn.SetDeadline(time.Now().Add(time.Second))
	defer conn.SetDeadline(time.Time{})
	if err := cmd.Write(conn); err != nil {
		return nil, err
	}
	if dir == usbip.DirOut && bufLen > 0 {
		if _, err := conn.Write(make([]byte, bufLen)); err != nil {
			return nil, err
		}
	}
	var ret [usbip.URBHeaderSize]byte
	if err := usbip.ReadExactly(conn, ret[:]); err != nil {
		return nil, err
	}
	if got := binary.BigEndian.Uint32(ret[0:4]); got != usbip.RetSubmitCode {
		return nil, fmt.Errorf("unexpected ret cmd %x", got)
	}
	if status := int32(binary.BigEndian.Uint32(ret[20:24])); status != 0 {
		return nil, fmt.Errorf("ret status %d", status)
	}
	actual := binary.BigEndian.Uint32(ret[24:28])
	if dir != usbip.DirIn || actual == 0 {
		return nil, nil
	}
	data := make([]byte, actual)
	if err := usbip.ReadExactly(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadInputReport polls interrupt IN endpoint 1 once.
func (c *USBIPClient) ReadInputReport(conn net.Conn) ([]byte, error) {
	return c.Submit(conn, usbip.DirIn, 1, [8]byte{}, 64)
}

// GetDescriptor issues a standard GET_DESCRIPTOR on EP0.
func (c *USBIPClient) GetDescriptor(conn net.Conn, bmRequestType, descType, index uint8, length uint16) ([]byte, error) {
	setup := [8]byte{bmRequestType, 0x06, index, descType, 0, 0, byte(length), byte(length >> 8)}
	return c.Submit(conn, usbip.DirIn, 0, setup, uint32(length))
}
