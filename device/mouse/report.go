// Package mouse provides the HID mouse report and its emulated USB device.
package mouse

import (
	"io"
)

// Button bit masks for Report.Buttons.
const (
	BtnLeft    = 0x01
	BtnRight   = 0x02
	BtnMiddle  = 0x04
	BtnBack    = 0x08
	BtnForward = 0x10
)

// ReportSize is the length of an encoded mouse report.
const ReportSize = 5

// Report is a relative mouse report with vertical and horizontal wheels.
type Report struct {
	// Button bitfield: bit 0=Left, 1=Right, 2=Middle, 3=Back, 4=Forward
	Buttons uint8
	// Relative movement
	X, Y int8
	// Vertical scroll
	Wheel int8
	// Horizontal scroll (AC Pan)
	Pan int8
}

// BuildReport encodes the report as sent on the interrupt IN endpoint.
//
// Report layout (5 bytes):
//
//	Byte 0: Button bitfield (bits 5-7 padding)
//	Byte 1: X (int8)
//	Byte 2: Y (int8)
//	Byte 3: Wheel (int8)
//	Byte 4: Pan (int8)
func (r Report) BuildReport() []byte {
	b := make([]byte, ReportSize)
	b[0] = r.Buttons & 0x1F
	b[1] = byte(r.X)
	b[2] = byte(r.Y)
	b[3] = byte(r.Wheel)
	b[4] = byte(r.Pan)
	return b
}

// MarshalBinary encodes Report to 5 bytes without masking the buttons.
func (r *Report) MarshalBinary() ([]byte, error) {
	return []byte{r.Buttons, byte(r.X), byte(r.Y), byte(r.Wheel), byte(r.Pan)}, nil
}

// UnmarshalBinary decodes 5 bytes into Report.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < ReportSize {
		return io.ErrUnexpectedEOF
	}
	r.Buttons = data[0]
	r.X = int8(data[1])
	r.Y = int8(data[2])
	r.Wheel = int8(data[3])
	r.Pan = int8(data[4])
	return nil
}
