//go:build linux

package hostd

// keyName maps a Linux evdev key code (linux/input-event-codes.h KEY_*) to
// the uppercase token name internal/hotkey matches hotkey strings against,
// the same vocabulary the Windows and macOS global hooks already produce.
// An empty return means the code has no hotkey-relevant name and is
// ignored.
func keyName(code uint32) string {
	switch code {
	case 29, 97:
		return "CTRL"
	case 56, 100:
		return "ALT"
	case 42, 54:
		return "SHIFT"
	case 125, 126:
		return "CMD"
	case 57:
		return "SPACE"
	case 28:
		return "ENTER"
	case 1:
		return "ESC"
	case 14:
		return "BACKSPACE"
	case 15:
		return "TAB"
	case 58:
		return "CAPSLOCK"
	case 104:
		return "PAGEUP"
	case 109:
		return "PAGEDOWN"
	case 107:
		return "END"
	case 102:
		return "HOME"
	case 105:
		return "LEFT"
	case 103:
		return "UP"
	case 106:
		return "RIGHT"
	case 108:
		return "DOWN"
	case 99:
		return "PRINTSCREEN"
	case 110:
		return "INSERT"
	case 111:
		return "DELETE"
	case 119:
		return "PAUSE"
	case 70:
		return "SCROLLLOCK"
	}

	if name, ok := letterKeyName(code); ok {
		return name
	}
	if name, ok := digitKeyName(code); ok {
		return name
	}
	if name, ok := functionKeyName(code); ok {
		return name
	}
	return ""
}

func letterKeyName(code uint32) (string, bool) {
	letters := map[uint32]string{
		30: "A", 48: "B", 46: "C", 32: "D", 18: "E", 33: "F", 34: "G",
		35: "H", 23: "I", 36: "J", 37: "K", 38: "L", 50: "M", 49: "N",
		24: "O", 25: "P", 16: "Q", 19: "R", 31: "S", 20: "T", 22: "U",
		47: "V", 17: "W", 45: "X", 21: "Y", 44: "Z",
	}
	name, ok := letters[code]
	return name, ok
}

func digitKeyName(code uint32) (string, bool) {
	digits := map[uint32]string{
		2: "1", 3: "2", 4: "3", 5: "4", 6: "5",
		7: "6", 8: "7", 9: "8", 10: "9", 11: "0",
	}
	name, ok := digits[code]
	return name, ok
}

func functionKeyName(code uint32) (string, bool) {
	switch {
	case code >= 59 && code <= 67:
		return "F" + string(rune('1'+code-59)), true
	case code == 68:
		return "F10", true
	case code == 87:
		return "F11", true
	case code == 88:
		return "F12", true
	}
	return "", false
}
