// Package keyboard provides the boot keyboard report and its emulated USB device.
package keyboard

import (
	"io"
)

// ReportSize is the length of the boot keyboard input report.
const ReportSize = 8

// Report is a boot protocol keyboard report plus the LED byte carried on the
// glove link.
type Report struct {
	Modifier uint8 // LCtrl, LShift, LAlt, LGui, RCtrl, RShift, RAlt, RGui
	Reserved uint8
	LEDs     uint8
	Keycodes [6]uint8
}

// Release is the all-zero report that lifts every key and modifier.
var Release = Report{}

// Press returns a report with up to six keys held. Extra keys are ignored.
func Press(modifier uint8, keys ...uint8) Report {
	r := Report{Modifier: modifier}
	copy(r.Keycodes[:], keys)
	return r
}

// Pressed reports whether any key or modifier is held.
func (r Report) Pressed() bool {
	if r.Modifier != 0 {
		return true
	}
	for _, k := range r.Keycodes {
		if k != 0 {
			return true
		}
	}
	return false
}

// BuildReport encodes the report as sent on the interrupt IN endpoint.
//
// Report layout (8 bytes):
//
//	Byte 0: Modifiers
//	Byte 1: Reserved
//	Bytes 2-7: Keycodes
//
// LEDs are host-owned and travel in the OUT report, so they are not part of it.
func (r Report) BuildReport() []byte {
	b := make([]byte, ReportSize)
	b[0] = r.Modifier
	b[1] = r.Reserved
	copy(b[2:], r.Keycodes[:])
	return b
}

// MarshalBinary encodes Report to 9 bytes: modifier, reserved, leds, keycodes.
func (r *Report) MarshalBinary() ([]byte, error) {
	b := make([]byte, 9)
	b[0] = r.Modifier
	b[1] = r.Reserved
	b[2] = r.LEDs
	copy(b[3:], r.Keycodes[:])
	return b, nil
}

// UnmarshalBinary decodes 9 bytes into Report.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < 9 {
		return io.ErrUnexpectedEOF
	}
	r.Modifier = data[0]
	r.Reserved = data[1]
	r.LEDs = data[2]
	copy(r.Keycodes[:], data[3:9])
	return nil
}

// LEDState is the decoded host LED output report.
type LEDState struct {
	NumLock    bool
	CapsLock   bool
	ScrollLock bool
	Compose    bool
	Kana       bool
}

// UnmarshalBinary decodes a 1-byte LED bitmask into LEDState.
func (st *LEDState) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return io.ErrUnexpectedEOF
	}
	b := data[0]
	st.NumLock = b&LEDNumLock != 0
	st.CapsLock = b&LEDCapsLock != 0
	st.ScrollLock = b&LEDScrollLock != 0
	st.Compose = b&LEDCompose != 0
	st.Kana = b&LEDKana != 0
	return nil
}
