package wire_test

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/wire"
)

func TestEncodeLayout(t *testing.T) {
	in := wire.Instruction{
		Mouse:    mouse.Report{Buttons: 1, X: 5, Y: -3},
		Keyboard: keyboard.Report{},
		Media:    media.Report{UsageID: 0x00CD},
	}
	f := wire.Encode(in)
	want := wire.Frame{0x01, 0x05, 0xFD, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x00, 0xCD}
	assert.Equal(t, want, f)
	assert.Equal(t, in, wire.Decode(f))
}

func TestEncodeAllFields(t *testing.T) {
	in := wire.Instruction{
		Mouse:    mouse.Report{Buttons: 0x1F, X: -128, Y: 127, Wheel: -1, Pan: 2},
		Keyboard: keyboard.Report{Modifier: 0x22, Reserved: 0x33, LEDs: 0x44, Keycodes: [6]uint8{1, 2, 3, 4, 5, 6}},
		Media:    media.Report{UsageID: 0xABCD},
	}
	f := wire.Encode(in)
	want := wire.Frame{0x1F, 0x80, 0x7F, 0xFF, 0x02, 0x22, 0x33, 0x44, 1, 2, 3, 4, 5, 6, 0xAB, 0xCD}
	assert.Equal(t, want, f)
}

func TestRoundTripRandomFrames(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		var f wire.Frame
		r.Read(f[:])
		assert.Equal(t, f, wire.Encode(wire.Decode(f)))
	}
}

func TestUnmarshalBinary(t *testing.T) {
	in := wire.Instruction{Mouse: mouse.Report{Buttons: mouse.BtnRight, Wheel: 4}}
	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, wire.FrameSize)

	var out wire.Instruction
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
	assert.ErrorIs(t, out.UnmarshalBinary(b[:15]), io.ErrUnexpectedEOF)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		frames int
		rest   int
	}{
		{"empty", 0, 0, 0},
		{"partial only", 15, 0, 15},
		{"one", 16, 1, 0},
		{"two and partial", 37, 2, 5},
		{"many", 4096, 256, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, tt.n)
			for i := range b {
				b[i] = byte(i)
			}
			frames, rest := wire.Split(b)
			assert.Len(t, frames, tt.frames)
			assert.Len(t, rest, tt.rest)
			if tt.frames > 1 {
				assert.Equal(t, byte(16), frames[1][0])
			}
		})
	}
}

func TestDecodeKeycodeFrame(t *testing.T) {
	f := wire.Frame{0, 5, 3, 0, 0, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0}
	in := wire.Decode(f)
	assert.Equal(t, mouse.Report{X: 5, Y: 3}, in.Mouse)
	assert.Equal(t, uint8(4), in.Keyboard.Keycodes[0])
	assert.Equal(t, uint16(0), in.Media.UsageID)
}
