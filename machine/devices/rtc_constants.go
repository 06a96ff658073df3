package devices

const (
	RTCPortIndex uint16 = 0x70
	RTCPortData  uint16 = 0x71
)

const (
	RTCRegSeconds      byte = 0x00
	RTCRegAlarmSeconds byte = 0x01
	RTCRegMinutes      byte = 0x02
	RTCRegAlarmMinutes byte = 0x03
	RTCRegHours        byte = 0x04
	RTCRegAlarmHours   byte = 0x05
	RTCRegDayOfWeek    byte = 0x06
	RTCRegDayOfMonth   byte = 0x07
	RTCRegMonth        byte = 0x08
	RTCRegYear         byte = 0x09
	RTCRegA            byte = 0x0A
	RTCRegB            byte = 0x0B
	RTCRegC            byte = 0x0C
	RTCRegD            byte = 0x0D
)

// Register A bits.
const (
	RTCAUIP byte = 0x80
	RTCARS  byte = 0x0F // rate-select bits for the periodic interrupt
)

// Register B bits.
const (
	RTCBSet  byte = 0x80
	RTCBPIE  byte = 0x40
	RTCBAIE  byte = 0x20
	RTCBUIE  byte = 0x10
	RTCBSQWE byte = 0x08
	RTCBDM   byte = 0x04 // 0=BCD, 1=binary
	RTCB2412 byte = 0x02 // 1=24-hour
	RTCBDSE  byte = 0x01
)

// Register C bits (cleared on read).
const (
	RTCCIRQF byte = 0x80
	RTCCPF   byte = 0x40
	RTCCAF   byte = 0x20
	RTCCUF   byte = 0x10
)

// Register D bits.
const RTCDVRT byte = 0x80

// periodicRateHz maps the RS3-0 field of register A to the periodic
// interrupt frequency it selects. Index 0 disables the periodic
// interrupt; indexes 1 and 2 repeat the 256Hz and 128Hz rates of
// indexes 8 and 9.
var periodicRateHz = [16]int64{
	0: 0, 1: 256, 2: 128, 3: 8192, 4: 4096, 5: 2048, 6: 1024, 7: 512,
	8: 256, 9: 128, 10: 64, 11: 32, 12: 16, 13: 8, 14: 4, 15: 2,
}
