package usbip_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device"
	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/hidout/usbip"
	th "github.com/losdos/motionglove/internal/testing"
	"github.com/losdos/motionglove/usb"
)

func startServer(t *testing.T) (*usbip.Sink, *usbip.Server, *th.USBIPClient) {
	t.Helper()
	cfg := usbip.Config{Addr: "127.0.0.1:0", BusID: 1, ConnectionTimeout: time.Second, QueueLimit: 16}
	sink, srv, err := usbip.NewSink(cfg, 1, th.NewLogger(t), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()
	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server failed: %v", err)
	}
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		assert.NoError(t, <-done)
	})
	return sink, srv, th.NewUSBIPClient(srv.Addr().String())
}

func TestDevList(t *testing.T) {
	_, _, client := startServer(t)

	devs, err := client.ListDevices()
	require.NoError(t, err)
	require.Len(t, devs, 3)

	wantPIDs := []uint16{mouse.ProductID, keyboard.ProductID, media.ProductID}
	for i, d := range devs {
		assert.Equal(t, []string{"1-1", "1-2", "1-3"}[i], d.BusID)
		assert.Equal(t, uint16(device.DefaultVendorID), d.IDVendor)
		assert.Equal(t, wantPIDs[i], d.IDProduct)
		require.Len(t, d.Interfaces, 1)
		assert.Equal(t, uint8(usb.ClassHID), d.Interfaces[0].Class)
	}
}

func TestMouseReportsInOrder(t *testing.T) {
	sink, srv, client := startServer(t)

	require.NoError(t, sink.WriteMouse(mouse.Report{X: 9}), "writes before attach are discarded")

	conn, dev, err := client.Attach("1-1")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, uint32(1), dev.DeviceNum)
	require.Eventually(t, func() bool { return srv.Attached(sink.Mouse) }, time.Second, time.Millisecond)

	require.NoError(t, sink.WriteMouse(mouse.Report{X: 5, Y: -2}))
	require.NoError(t, sink.WriteMouse(mouse.Report{Buttons: mouse.BtnLeft}))

	for _, want := range [][]byte{
		{0, 5, 0xFE, 0, 0},
		{1, 0, 0, 0, 0},
		{1, 0, 0, 0, 0},
	} {
		got, err := client.ReadInputReport(conn)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !srv.Attached(sink.Mouse) }, time.Second, time.Millisecond)
}

func TestKeyboardPressAndRelease(t *testing.T) {
	sink, srv, client := startServer(t)
	conn, _, err := client.Attach("1-2")
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Attached(sink.Keyboard) }, time.Second, time.Millisecond)

	require.NoError(t, sink.WriteKeyboard(keyboard.Press(0, 0x04)))
	require.NoError(t, sink.WriteKeyboard(keyboard.Release))

	got, err := client.ReadInputReport(conn)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0x04, 0, 0, 0, 0, 0}, got)
	got, err = client.ReadInputReport(conn)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, keyboard.ReportSize), got)
}

func TestEnumeration(t *testing.T) {
	_, _, client := startServer(t)
	conn, _, err := client.Attach("1-3")
	require.NoError(t, err)
	defer conn.Close()

	desc, err := client.GetDescriptor(conn, 0x80, 0x01, 0, 64)
	require.NoError(t, err)
	require.Len(t, desc, 18)
	assert.Equal(t, uint16(media.ProductID), binary.LittleEndian.Uint16(desc[10:12]))

	head, err := client.GetDescriptor(conn, 0x80, 0x02, 0, 9)
	require.NoError(t, err)
	require.Len(t, head, 9)
	total := binary.LittleEndian.Uint16(head[2:4])
	full, err := client.GetDescriptor(conn, 0x80, 0x02, 0, total)
	require.NoError(t, err)
	assert.Len(t, full, int(total))

	report, err := client.GetDescriptor(conn, 0x81, 0x22, 0, 256)
	require.NoError(t, err)
	assert.Equal(t, media.ReportDescriptor, report)

	langs, err := client.GetDescriptor(conn, 0x80, 0x03, 0, 255)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 3, 0x09, 0x04}, langs)
}

func TestImportUnknownBusID(t *testing.T) {
	_, _, client := startServer(t)
	_, _, err := client.Attach("7-7")
	assert.Error(t, err)
}
