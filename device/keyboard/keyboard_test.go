package keyboard_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/usbip"
)

func TestPressAndRelease(t *testing.T) {
	r := keyboard.Press(keyboard.ModLeftShift, keyboard.KeyA, 0x05)
	assert.True(t, r.Pressed())
	assert.Equal(t, []byte{0x02, 0, 0x04, 0x05, 0, 0, 0, 0}, r.BuildReport())

	assert.False(t, keyboard.Release.Pressed())
	assert.Equal(t, make([]byte, keyboard.ReportSize), keyboard.Release.BuildReport())
}

func TestPressIgnoresExtraKeys(t *testing.T) {
	r := keyboard.Press(0, 1, 2, 3, 4, 5, 6, 7)
	assert.Equal(t, [6]uint8{1, 2, 3, 4, 5, 6}, r.Keycodes)
}

func TestMarshalUnmarshal(t *testing.T) {
	in := keyboard.Report{Modifier: 1, Reserved: 2, LEDs: 3, Keycodes: [6]uint8{4, 5, 6, 7, 8, 9}}
	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, 9)

	var out keyboard.Report
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)

	assert.ErrorIs(t, out.UnmarshalBinary(b[:8]), io.ErrUnexpectedEOF)
}

func TestName(t *testing.T) {
	tests := map[uint8]string{
		keyboard.KeyA:     "A",
		keyboard.KeyZ:     "Z",
		keyboard.Key1:     "1",
		keyboard.Key0:     "0",
		keyboard.KeyF1:    "F1",
		keyboard.KeyF12:   "F12",
		keyboard.KeyEnter: "Enter",
		0x99:              "0x99",
	}
	for code, want := range tests {
		assert.Equal(t, want, keyboard.Name(code))
	}
}

func TestHandleTransfer(t *testing.T) {
	k := keyboard.New(nil)

	require.NoError(t, k.Push(keyboard.Press(0, keyboard.KeyA)))
	require.NoError(t, k.Push(keyboard.Release))

	assert.Equal(t, byte(keyboard.KeyA), k.HandleTransfer(1, usbip.DirIn, nil)[2])
	assert.Equal(t, make([]byte, 8), k.HandleTransfer(1, usbip.DirIn, nil))
	assert.Equal(t, make([]byte, 8), k.HandleTransfer(1, usbip.DirIn, nil))
}

func TestHandleTransferHeldKeyRepeats(t *testing.T) {
	k := keyboard.New(nil)
	require.NoError(t, k.Push(keyboard.Press(0, keyboard.KeyUp)))

	first := k.HandleTransfer(1, usbip.DirIn, nil)
	assert.Equal(t, first, k.HandleTransfer(1, usbip.DirIn, nil))
}

func TestLEDOutput(t *testing.T) {
	k := keyboard.New(nil)
	got := make(chan keyboard.LEDState, 1)
	k.SetLEDCallback(func(st keyboard.LEDState) { got <- st })

	assert.Nil(t, k.HandleTransfer(1, usbip.DirOut, []byte{keyboard.LEDCapsLock | keyboard.LEDNumLock}))
	st := <-got
	assert.True(t, st.CapsLock)
	assert.True(t, st.NumLock)
	assert.False(t, st.ScrollLock)
	assert.Equal(t, uint8(0x03), k.LEDs())
}
