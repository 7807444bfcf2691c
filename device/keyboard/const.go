package keyboard

import "fmt"

// Modifier key bitmasks
const (
	ModLeftCtrl   = 0x01
	ModLeftShift  = 0x02
	ModLeftAlt    = 0x04
	ModLeftGUI    = 0x08
	ModRightCtrl  = 0x10
	ModRightShift = 0x20
	ModRightAlt   = 0x40
	ModRightGUI   = 0x80
)

// LED bitmasks (host output report)
const (
	LEDNumLock    = 0x01
	LEDCapsLock   = 0x02
	LEDScrollLock = 0x04
	LEDCompose    = 0x08
	LEDKana       = 0x10
)

// HID usage codes (Keyboard/Keypad page). Letters A-Z are 0x04-0x1D and the
// top-row digits 1-9,0 are 0x1E-0x27.
const (
	KeyA = 0x04
	KeyZ = 0x1D
	Key1 = 0x1E
	Key0 = 0x27

	KeyEnter     = 0x28
	KeyEscape    = 0x29
	KeyBackspace = 0x2A
	KeyTab       = 0x2B
	KeySpace     = 0x2C

	KeyF1  = 0x3A
	KeyF12 = 0x45

	KeyPrintScreen = 0x46
	KeyHome        = 0x4A
	KeyPageUp      = 0x4B
	KeyDelete      = 0x4C
	KeyEnd         = 0x4D
	KeyPageDown    = 0x4E

	KeyRight = 0x4F
	KeyLeft  = 0x50
	KeyDown  = 0x51
	KeyUp    = 0x52
)

var specialNames = map[uint8]string{
	KeyEnter:       "Enter",
	KeyEscape:      "Escape",
	KeyBackspace:   "Backspace",
	KeyTab:         "Tab",
	KeySpace:       "Space",
	KeyPrintScreen: "PrintScreen",
	KeyHome:        "Home",
	KeyPageUp:      "PageUp",
	KeyDelete:      "Delete",
	KeyEnd:         "End",
	KeyPageDown:    "PageDown",
	KeyRight:       "Right",
	KeyLeft:        "Left",
	KeyDown:        "Down",
	KeyUp:          "Up",
}

// Name returns a human-readable name for a usage code, or its hex value.
func Name(code uint8) string {
	switch {
	case code >= KeyA && code <= KeyZ:
		return string(rune('A' + code - KeyA))
	case code >= Key1 && code < Key0:
		return string(rune('1' + code - Key1))
	case code == Key0:
		return "0"
	case code >= KeyF1 && code <= KeyF12:
		return fmt.Sprintf("F%d", code-KeyF1+1)
	}
	if n, ok := specialNames[code]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", code)
}
