// Package usbip exports the dongle's mouse, keyboard and media keys as
// USB-IP devices, so any Linux or Windows host can attach them over the
// network with `usbip attach`.
package usbip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/losdos/motionglove/internal/log"
	"github.com/losdos/motionglove/internal/util"
	"github.com/losdos/motionglove/usb"
	pusbip "github.com/losdos/motionglove/usbip"
	"github.com/losdos/motionglove/virtualbus"
)

const (
	// USB standard request codes
	usbReqSetAddress       = 0x05
	usbReqGetDescriptor    = 0x06
	usbReqGetConfiguration = 0x08
	usbReqSetConfiguration = 0x09
	usbReqSetIdle          = 0x0A
	usbReqSetProtocol      = 0x0B

	// USB descriptor types
	usbDescTypeDevice        = 0x01
	usbDescTypeConfiguration = 0x02
	usbDescTypeString        = 0x03
	usbDescTypeHID           = 0x21
	usbDescTypeHIDReport     = 0x22

	// USB request types (bmRequestType)
	usbReqTypeStandardToDevice    = 0x00
	usbReqTypeStandardFromDevice  = 0x80
	usbReqTypeStandardToInterface = 0x81
	usbReqTypeClassToInterface    = 0x21

	usbConfigValueDefault   = 1
	usbConfigAttrBusPowered = 0x80
	usbConfigMaxPower100mA  = 50 // In units of 2mA

	urbHdrOffsetUnlink = 0x14

	headerPeekSize = 8
	busIDSize      = 32

	errConnReset = -104 // -ECONNRESET
)

// Config configures the USB-IP server.
type Config struct {
	Addr              string        `help:"USB-IP server listen address" default:":3241" env:"MOTIONGLOVE_USBIP_ADDR"`
	BusID             uint32        `help:"Virtual bus number; devices are exported as <bus>-1..3" default:"1" env:"MOTIONGLOVE_USBIP_BUS_ID"`
	ConnectionTimeout time.Duration `help:"Time a new client has to send its first request" default:"10s" env:"MOTIONGLOVE_USBIP_CONNECTION_TIMEOUT"`
	QueueLimit        int           `help:"Reports buffered per device while the host catches up" default:"64" env:"MOTIONGLOVE_USBIP_QUEUE_LIMIT"`
}

// Server answers USB-IP devlist and import requests for one virtual bus and
// then serves the URB stream of the imported device.
type Server struct {
	config    Config
	logger    *slog.Logger
	rawLogger log.RawLogger
	bus       *virtualbus.VirtualBus

	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	attached map[usb.Device]int
}

// New returns a server exporting the devices of bus.
func New(config Config, bus *virtualbus.VirtualBus, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if rawLogger == nil {
		rawLogger = log.NewRaw(nil)
	}
	return &Server{
		config:    config,
		logger:    logger,
		rawLogger: rawLogger,
		bus:       bus,
		ready:     make(chan struct{}),
		conns:     make(map[net.Conn]struct{}),
		attached:  make(map[usb.Device]int),
	}
}

// Bus returns the exported bus.
func (s *Server) Bus() *virtualbus.VirtualBus { return s.bus }

// ListenAndServe binds the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts clients on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("USBIP server listening", "addr", ln.Addr())
	for {
		c, err := ln.Accept()
		if err != nil {
			if util.IsClosed(err) {
				s.logger.Info("USBIP server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", c.RemoteAddr())
		s.track(c, true)
		go func() {
			defer s.track(c, false)
			if err := s.handleConn(c); err != nil {
				if util.IsClientDisconnect(err) || util.IsClosed(err) {
					s.logger.Info("Client disconnected", "remote", c.RemoteAddr(), "error", err)
				} else {
					s.logger.Error("Connection handler error", "remote", c.RemoteAddr(), "error", err)
				}
			}
		}()
	}
}

// Ready is closed once the server is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting and drops every client.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	return err
}

// Attached reports whether a host currently imports dev.
func (s *Server) Attached(dev usb.Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached[dev] > 0
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) attach(dev usb.Device, delta int) {
	s.mu.Lock()
	s.attached[dev] += delta
	s.mu.Unlock()
}

// --

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	conn = &logConn{Conn: conn, raw: s.rawLogger}
	if s.config.ConnectionTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
			s.logger.Warn("Failed to set deadline", "error", err)
		}
	}

	var hdrBuf [headerPeekSize]byte
	if err := pusbip.ReadExactly(conn, hdrBuf[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	ver := binary.BigEndian.Uint16(hdrBuf[0:2])
	code := binary.BigEndian.Uint16(hdrBuf[2:4])
	if ver != pusbip.Version {
		return fmt.Errorf("unsupported USB-IP version %#04x", ver)
	}

	switch code {
	case pusbip.OpReqDevlist:
		s.logger.Info("OP_REQ_DEVLIST")
		return s.handleDevList(conn)
	case pusbip.OpReqImport:
		s.logger.Info("OP_REQ_IMPORT")
		dev, err := s.handleImport(conn)
		if err != nil {
			return fmt.Errorf("handle import: %w", err)
		}
		s.attach(dev, 1)
		defer s.attach(dev, -1)
		return s.handleUrbStream(conn, dev)
	}
	return fmt.Errorf("protocol violation: client sent URB data without OP_REQ_IMPORT")
}

func exportedDevice(m virtualbus.DeviceMeta) pusbip.ExportedDevice {
	desc := m.Dev.GetDescriptor()
	exp := pusbip.ExportedDevice{
		ExportMeta:          m.Meta,
		Speed:               desc.Device.Speed,
		IDVendor:            desc.Device.IDVendor,
		IDProduct:           desc.Device.IDProduct,
		BcdDevice:           desc.Device.BcdDevice,
		BDeviceClass:        desc.Device.BDeviceClass,
		BDeviceSubClass:     desc.Device.BDeviceSubClass,
		BDeviceProtocol:     desc.Device.BDeviceProtocol,
		BConfigurationValue: usbConfigValueDefault,
		BNumConfigurations:  desc.Device.BNumConfigurations,
		BNumInterfaces:      uint8(len(desc.Interfaces)),
	}
	for _, iface := range desc.Interfaces {
		exp.Interfaces = append(exp.Interfaces, pusbip.InterfaceDesc{
			Class:    iface.Descriptor.BInterfaceClass,
			SubClass: iface.Descriptor.BInterfaceSubClass,
			Protocol: iface.Descriptor.BInterfaceProtocol,
		})
	}
	return exp
}

func (s *Server) handleDevList(conn net.Conn) error {
	var buf bytes.Buffer
	rep := pusbip.MgmtHeader{Version: pusbip.Version, Command: pusbip.OpRepDevlist}
	_ = rep.Write(&buf)
	metas := s.bus.GetAllDeviceMetas()
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(metas)))
	for _, m := range metas {
		exp := exportedDevice(m)
		_ = exp.WriteDevlist(&buf)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write devlist: %w", err)
	}
	return nil
}

func (s *Server) handleImport(conn net.Conn) (usb.Device, error) {
	var rest [busIDSize]byte
	if err := pusbip.ReadExactly(conn, rest[:]); err != nil {
		return nil, fmt.Errorf("read import busid: %w", err)
	}
	reqBus := string(rest[:])
	if i := bytes.IndexByte(rest[:], 0); i >= 0 {
		reqBus = string(rest[:i])
	}
	s.logger.Info("Import request", "busid", reqBus)

	var buf bytes.Buffer
	m, ok := s.bus.Lookup(reqBus)
	if !ok {
		rep := pusbip.MgmtHeader{Version: pusbip.Version, Command: pusbip.OpRepImport, Status: 1}
		_ = rep.Write(&buf)
		_, _ = conn.Write(buf.Bytes())
		return nil, fmt.Errorf("no device matches busid %s", reqBus)
	}
	rep := pusbip.MgmtHeader{Version: pusbip.Version, Command: pusbip.OpRepImport}
	_ = rep.Write(&buf)
	exp := exportedDevice(m)
	_ = exp.WriteImport(&buf)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write import reply failed: %w", err)
	}
	return m.Dev, nil
}

type logConn struct {
	net.Conn
	raw log.RawLogger
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 {
		lc.raw.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 {
		lc.raw.Log(false, p[:n])
	}
	return n, err
}

// handleUrbStream answers submits until the client goes away. Interrupt IN
// replies are paced at the endpoint's bInterval, as a host controller would
// poll them.
func (s *Server) handleUrbStream(conn net.Conn, dev usb.Device) error {
	_ = conn.SetDeadline(time.Time{})
	interval := pollInterval(dev.GetDescriptor())
	var nextIn time.Time

	for {
		var hdr [pusbip.URBHeaderSize]byte
		if err := pusbip.ReadExactly(conn, hdr[:]); err != nil {
			return fmt.Errorf("read URB header: %w", err)
		}
		basic := pusbip.ParseHeaderBasic(hdr[:])
		if basic.Command == pusbip.CmdUnlinkCode {
			unlinkSeq := binary.BigEndian.Uint32(hdr[urbHdrOffsetUnlink : urbHdrOffsetUnlink+4])
			s.logger.Debug("USBIP_CMD_UNLINK", "seq", basic.Seqnum, "unlink", unlinkSeq)
			ret := pusbip.RetUnlink{Basic: pusbip.HeaderBasic{Command: pusbip.RetUnlinkCode, Seqnum: basic.Seqnum}, Status: errConnReset}
			if err := ret.Write(conn); err != nil {
				return fmt.Errorf("write RET_UNLINK: %w", err)
			}
			continue
		}
		if basic.Command != pusbip.CmdSubmitCode {
			return fmt.Errorf("unsupported cmd %d (seq=%d, devid=%d)", basic.Command, basic.Seqnum, basic.Devid)
		}
		cmd := pusbip.ParseCmdSubmit(hdr[:])

		var outPayload []byte
		if basic.Dir == pusbip.DirOut && cmd.TransferBufferLen > 0 {
			outPayload = make([]byte, cmd.TransferBufferLen)
			if err := pusbip.ReadExactly(conn, outPayload); err != nil {
				return fmt.Errorf("read OUT payload: %w", err)
			}
		}

		if basic.Ep != 0 && basic.Dir == pusbip.DirIn && interval > 0 {
			if wait := time.Until(nextIn); wait > 0 {
				time.Sleep(wait)
			}
			nextIn = time.Now().Add(interval)
		}

		respData := s.processSubmit(dev, basic.Ep, basic.Dir, cmd.Setup[:], outPayload)
		if basic.Dir == pusbip.DirOut {
			respData = nil
		}
		ret := pusbip.RetSubmit{
			Basic:        pusbip.HeaderBasic{Command: pusbip.RetSubmitCode, Seqnum: basic.Seqnum},
			ActualLength: uint32(len(respData)),
		}
		if basic.Dir == pusbip.DirOut {
			ret.ActualLength = uint32(len(outPayload))
		}
		var out bytes.Buffer
		if err := ret.Write(&out); err != nil {
			return fmt.Errorf("build RET_SUBMIT header: %w", err)
		}
		out.Write(respData)
		if _, err := conn.Write(out.Bytes()); err != nil {
			return fmt.Errorf("write RET_SUBMIT: %w", err)
		}
	}
}

// langIDs is string descriptor zero: US English only.
var langIDs = []byte{4, usbDescTypeString, 0x09, 0x04}

// pollInterval returns the bInterval of the first interrupt IN endpoint.
func pollInterval(desc *usb.Descriptor) time.Duration {
	for _, iface := range desc.Interfaces {
		for _, ep := range iface.Endpoints {
			if ep.BEndpointAddress&0x80 != 0 {
				return time.Duration(ep.BInterval) * time.Millisecond
			}
		}
	}
	return 0
}

// processSubmit answers enumeration on EP0 from the descriptor and hands
// every other endpoint to the device.
func (s *Server) processSubmit(dev usb.Device, ep uint32, dir uint32, setup []byte, out []byte) []byte {
	if ep != 0 {
		return dev.HandleTransfer(ep, dir, out)
	}
	if len(setup) != 8 {
		return nil
	}
	bm := setup[0]
	breq := setup[1]
	wValue := binary.LittleEndian.Uint16(setup[2:4])
	wIndex := binary.LittleEndian.Uint16(setup[4:6])
	wLength := binary.LittleEndian.Uint16(setup[6:8])

	switch {
	case bm == usbReqTypeStandardToDevice && (breq == usbReqSetAddress || breq == usbReqSetConfiguration):
		return nil
	case bm == usbReqTypeClassToInterface && (breq == usbReqSetIdle || breq == usbReqSetProtocol):
		return nil
	case bm == usbReqTypeStandardFromDevice && breq == usbReqGetConfiguration:
		return []byte{usbConfigValueDefault}
	}

	desc := dev.GetDescriptor()
	var data []byte
	switch {
	case breq == usbReqGetDescriptor && bm == usbReqTypeStandardFromDevice:
		dindex := uint8(wValue & 0xff)
		switch uint8(wValue >> 8) {
		case usbDescTypeDevice:
			data = desc.Bytes()
		case usbDescTypeConfiguration:
			data = desc.ConfigBytes(usbConfigAttrBusPowered, usbConfigMaxPower100mA)
		case usbDescTypeString:
			if dindex == 0 {
				data = langIDs
			} else if str, ok := desc.Strings[dindex]; ok {
				data = usb.EncodeStringDescriptor(str)
			}
		}
	case breq == usbReqGetDescriptor && bm == usbReqTypeStandardToInterface:
		iface := int(wIndex & 0xff)
		if iface < len(desc.Interfaces) {
			switch uint8(wValue >> 8) {
			case usbDescTypeHID:
				data = desc.Interfaces[iface].HIDDescriptor
			case usbDescTypeHIDReport:
				data = desc.Interfaces[iface].HIDReport
			}
		}
	default:
		s.logger.Debug("Unhandled control request", "bmRequestType", bm, "bRequest", breq, "wValue", wValue)
	}
	if int(wLength) < len(data) {
		return data[:wLength]
	}
	return data
}
