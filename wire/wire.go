// Package wire implements the fixed 16-byte frame exchanged between the glove
// and the dongle. Each frame carries one complete set of mouse, keyboard and
// media reports. Multi-byte fields are big-endian.
//
//	0      buttons
//	1..4   x, y, wheel, pan (int8)
//	5      modifier
//	6      reserved
//	7      leds
//	8..13  keycodes
//	14..15 media usage id
package wire

import (
	"encoding/binary"
	"io"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
)

// FrameSize is the length of one encoded Instruction.
const FrameSize = 16

// Frame is one encoded Instruction.
type Frame [FrameSize]byte

// Instruction is the unit of data flowing through the pipeline: one report
// for each emulated HID device.
type Instruction struct {
	Mouse    mouse.Report    `json:"mouse"`
	Keyboard keyboard.Report `json:"keyboard"`
	Media    media.Report    `json:"media"`
}

// Encode lays out in as a Frame.
func Encode(in Instruction) Frame {
	var f Frame
	f[0] = in.Mouse.Buttons
	f[1] = byte(in.Mouse.X)
	f[2] = byte(in.Mouse.Y)
	f[3] = byte(in.Mouse.Wheel)
	f[4] = byte(in.Mouse.Pan)
	f[5] = in.Keyboard.Modifier
	f[6] = in.Keyboard.Reserved
	f[7] = in.Keyboard.LEDs
	copy(f[8:14], in.Keyboard.Keycodes[:])
	binary.BigEndian.PutUint16(f[14:16], in.Media.UsageID)
	return f
}

// Decode is the inverse of Encode. Every byte pattern decodes.
func Decode(f Frame) Instruction {
	var in Instruction
	in.Mouse.Buttons = f[0]
	in.Mouse.X = int8(f[1])
	in.Mouse.Y = int8(f[2])
	in.Mouse.Wheel = int8(f[3])
	in.Mouse.Pan = int8(f[4])
	in.Keyboard.Modifier = f[5]
	in.Keyboard.Reserved = f[6]
	in.Keyboard.LEDs = f[7]
	copy(in.Keyboard.Keycodes[:], f[8:14])
	in.Media.UsageID = binary.BigEndian.Uint16(f[14:16])
	return in
}

// MarshalBinary encodes Instruction to its 16-byte frame.
func (in Instruction) MarshalBinary() ([]byte, error) {
	f := Encode(in)
	return f[:], nil
}

// UnmarshalBinary decodes the first 16 bytes of data.
func (in *Instruction) UnmarshalBinary(data []byte) error {
	if len(data) < FrameSize {
		return io.ErrUnexpectedEOF
	}
	*in = Decode(Frame(data[:FrameSize]))
	return nil
}

// Split cuts b into whole frames. Bytes past the last whole frame are
// returned as rest; callers decide whether to keep or drop them.
func Split(b []byte) (frames []Frame, rest []byte) {
	n := len(b) / FrameSize
	frames = make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, Frame(b[i*FrameSize:(i+1)*FrameSize]))
	}
	return frames, b[n*FrameSize:]
}
