package devices

import "math"

// PS2Keyboard implements a PS/2 keyboard answering scancode set 2 (the
// BIOS reprograms nearly every PC to set 2 at POST and leaves it there
// for the life of the session), with typematic auto-repeat driven off
// the scheduler rather than a wall-clock timer so repeat timing stays
// reproducible.
type PS2Keyboard struct {
	scanSet    byte
	leds       byte
	typematic  byte
	enabled    bool
	awaitArg   byte // 0 = none, else the command waiting for its argument byte
	outQueue   []byte

	repeatCode    byte
	repeating     bool
	repeatLeft    int64
	repeatDelayCC int64
	repeatRateCC  int64
}


func NewPS2Keyboard() *PS2Keyboard {
	k := &PS2Keyboard{}
	k.Reset()
	return k
}

func (k *PS2Keyboard) Reset() {
	k.scanSet = 2
	k.leds = 0
	k.typematic = 0
	k.enabled = true
	k.awaitArg = 0
	k.outQueue = nil
	k.repeating = false
	k.repeatLeft = 0
	k.setTypematicTiming()
}

// typematicDelayMs maps the typematic byte's bits 5-6 to the
// documented 250/500/750/1000ms initial-repeat delay.
var typematicDelayMs = [4]int64{250, 500, 750, 1000}

// setTypematicTiming decodes the typematic register (bits 6-5 = delay
// index, bits 4-3 = B, bits 2-0 = D) into CPU-cycle counts per
// spec.md's repeat_rate_cc = (1<<B)*(D+8)/240s formula.
func (k *PS2Keyboard) setTypematicTiming() {
	delayMs := typematicDelayMs[(k.typematic>>5)&0x03]
	k.repeatDelayCC = ClockFreq * delayMs / 1000

	b := int64(k.typematic>>3) & 0x03
	d := int64(k.typematic) & 0x07
	k.repeatRateCC = ClockFreq * (int64(1) << uint(b)) * (d + 8) / 240
}

func (k *PS2Keyboard) NextEventCC() int64 {
	if !k.repeating {
		return math.MaxInt64
	}
	return k.repeatLeft
}

func (k *PS2Keyboard) Clock(cc int64) {
	if !k.repeating {
		return
	}
	k.repeatLeft -= cc
	if k.repeatLeft <= 0 {
		k.outQueue = append(k.outQueue, k.repeatCode)
		k.repeatLeft = k.repeatRateCC
	}
}

func (k *PS2Keyboard) EndIter() {}

func (k *PS2Keyboard) DrainOutput() []byte {
	out := k.outQueue
	k.outQueue = nil
	return out
}

// PressKey injects a scancode-set-2 make code and arms auto-repeat.
func (k *PS2Keyboard) PressKey(code byte) {
	if !k.enabled {
		return
	}
	k.outQueue = append(k.outQueue, code)
	k.repeatCode = code
	k.repeating = true
	k.repeatLeft = k.repeatDelayCC
}

// ReleaseKey injects the scancode-set-2 break sequence (0xF0 prefix)
// and disarms auto-repeat if it was repeating this key.
func (k *PS2Keyboard) ReleaseKey(code byte) {
	if !k.enabled {
		return
	}
	k.outQueue = append(k.outQueue, 0xF0, code)
	if k.repeating && k.repeatCode == code {
		k.repeating = false
	}
}

// HandleCommand processes a byte written to the data port while the
// controller is routing it to the keyboard, returning whatever
// response bytes should be queued back to the host.
func (k *PS2Keyboard) HandleCommand(b byte) []byte {
	if k.awaitArg != 0 {
		cmd := k.awaitArg
		k.awaitArg = 0
		switch cmd {
		case KbdCmdSetLEDs:
			k.leds = b & 0x07
			return []byte{PS2AckByte}
		case KbdCmdScanCodeSet:
			if b != 0 {
				k.scanSet = b
			}
			return []byte{PS2AckByte}
		case KbdCmdTypematic:
			k.typematic = b
			k.setTypematicTiming()
			return []byte{PS2AckByte}
		}
	}

	switch b {
	case KbdCmdSetLEDs, KbdCmdScanCodeSet, KbdCmdTypematic:
		k.awaitArg = b
		return []byte{PS2AckByte}
	case KbdCmdEcho:
		return []byte{KbdCmdEcho}
	case KbdCmdIdentify:
		return []byte{PS2AckByte, 0xAB, 0x83}
	case PS2DevEnable:
		k.enabled = true
		k.repeating = false
		return []byte{PS2AckByte}
	case PS2DevDisable:
		k.enabled = false
		k.repeating = false
		return []byte{PS2AckByte}
	case PS2DevSetDefault:
		k.scanSet = 2
		k.typematic = 0
		k.setTypematicTiming()
		return []byte{PS2AckByte}
	case PS2DevResend:
		return []byte{PS2AckByte}
	case PS2DevReset:
		k.Reset()
		return []byte{PS2AckByte, PS2SelfTestPass}
	default:
		return []byte{PS2AckByte}
	}
}
