package mouse_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device"
	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/usbip"
)

func TestBuildReport(t *testing.T) {
	r := mouse.Report{Buttons: 0xFF, X: -1, Y: 5, Wheel: -127, Pan: 127}
	assert.Equal(t, []byte{0x1F, 0xFF, 0x05, 0x81, 0x7F}, r.BuildReport())
}

func TestUnmarshalShort(t *testing.T) {
	var r mouse.Report
	assert.ErrorIs(t, r.UnmarshalBinary([]byte{1, 2}), io.ErrUnexpectedEOF)
}

func TestMarshalUnmarshal(t *testing.T) {
	in := mouse.Report{Buttons: mouse.BtnRight, X: -3, Y: 4, Wheel: 1, Pan: -1}
	b, err := in.MarshalBinary()
	require.NoError(t, err)

	var out mouse.Report
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestHandleTransferDrainsQueue(t *testing.T) {
	m := mouse.New(&device.CreateOptions{QueueLimit: 4})

	require.NoError(t, m.Push(mouse.Report{Buttons: mouse.BtnLeft, X: 10}))
	require.NoError(t, m.Push(mouse.Report{Buttons: mouse.BtnLeft, Y: -2}))

	assert.Equal(t, []byte{0x01, 10, 0, 0, 0}, m.HandleTransfer(1, usbip.DirIn, nil))
	assert.Equal(t, []byte{0x01, 0, 0xFE, 0, 0}, m.HandleTransfer(1, usbip.DirIn, nil))
	// Idle: button stays held, no motion.
	assert.Equal(t, []byte{0x01, 0, 0, 0, 0}, m.HandleTransfer(1, usbip.DirIn, nil))
	assert.Nil(t, m.HandleTransfer(2, usbip.DirIn, nil))
	assert.Nil(t, m.HandleTransfer(1, usbip.DirOut, []byte{1}))
}

func TestDescriptor(t *testing.T) {
	m := mouse.New(&device.CreateOptions{IDProduct: 0x1111, PollMS: 2})
	d := m.GetDescriptor()
	assert.Equal(t, uint16(device.DefaultVendorID), d.Device.IDVendor)
	assert.Equal(t, uint16(0x1111), d.Device.IDProduct)
	require.Len(t, d.Interfaces, 1)
	assert.Equal(t, mouse.ReportDescriptor, d.Interfaces[0].HIDReport)
	assert.Equal(t, uint8(2), d.Interfaces[0].Endpoints[0].BInterval)
}
