// Package media provides the consumer-control (media key) report and its
// emulated USB device.
package media

import (
	"encoding/binary"
	"io"
)

// Consumer page usages. Zero is "no key".
const (
	UsageNone          = 0x0000
	UsageNextTrack     = 0x00B5
	UsagePrevTrack     = 0x00B6
	UsageStop          = 0x00B7
	UsagePlayPause     = 0x00CD
	UsageMute          = 0x00E2
	UsageVolumeUp      = 0x00E9
	UsageVolumeDown    = 0x00EA
	UsageCalculator    = 0x0192
	UsageBrowserHome   = 0x0223
	UsageBrowserBack   = 0x0224
	UsageBrowserSearch = 0x0221
)

// ReportSize is the length of an encoded media report.
const ReportSize = 2

// Report carries a single consumer-control usage.
type Report struct {
	UsageID uint16
}

// Release is the zero-usage report that lifts the media key.
var Release = Report{}

// BuildReport encodes the report as sent on the interrupt IN endpoint (little-endian usage).
func (r Report) BuildReport() []byte {
	b := make([]byte, ReportSize)
	binary.LittleEndian.PutUint16(b, r.UsageID)
	return b
}

// MarshalBinary encodes Report to 2 bytes, little-endian like the HID report.
func (r *Report) MarshalBinary() ([]byte, error) {
	return r.BuildReport(), nil
}

// UnmarshalBinary decodes 2 little-endian bytes into Report.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < ReportSize {
		return io.ErrUnexpectedEOF
	}
	r.UsageID = binary.LittleEndian.Uint16(data)
	return nil
}

var usageNames = map[uint16]string{
	UsageNone:          "None",
	UsageNextTrack:     "NextTrack",
	UsagePrevTrack:     "PrevTrack",
	UsageStop:          "Stop",
	UsagePlayPause:     "PlayPause",
	UsageMute:          "Mute",
	UsageVolumeUp:      "VolumeUp",
	UsageVolumeDown:    "VolumeDown",
	UsageCalculator:    "Calculator",
	UsageBrowserHome:   "BrowserHome",
	UsageBrowserBack:   "BrowserBack",
	UsageBrowserSearch: "BrowserSearch",
}

// String returns the usage name when known.
func (r Report) String() string {
	if n, ok := usageNames[r.UsageID]; ok {
		return n
	}
	return "0x" + hex16(r.UsageID)
}

func hex16(v uint16) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[v>>12&0xF], digits[v>>8&0xF], digits[v>>4&0xF], digits[v&0xF]})
}
