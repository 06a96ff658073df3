package devices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeIRQ struct {
	raised map[uint8]int
	lowered map[uint8]int
}

func newFakeIRQ() *fakeIRQ {
	return &fakeIRQ{raised: map[uint8]int{}, lowered: map[uint8]int{}}
}
func (f *fakeIRQ) RaiseIRQ(irqLine uint8) { f.raised[irqLine]++ }
func (f *fakeIRQ) LowerIRQ(irqLine uint8) { f.lowered[irqLine]++ }

type fixedTime struct{ t time.Time }

func (f fixedTime) Now() time.Time { return f.t }

func rtcReadReg(r *RTCDevice, reg byte) byte {
	var idx, out [1]byte
	idx[0] = reg
	r.HandleIO(RTCPortIndex, IODirectionOut, 1, idx[:])
	r.HandleIO(RTCPortData, IODirectionIn, 1, out[:])
	return out[0]
}

func rtcWriteReg(r *RTCDevice, reg byte, val byte) {
	var idx, in [1]byte
	idx[0] = reg
	in[0] = val
	r.HandleIO(RTCPortIndex, IODirectionOut, 1, idx[:])
	r.HandleIO(RTCPortData, IODirectionOut, 1, in[:])
}

func seedTime() time.Time {
	return time.Date(2026, time.July, 29, 23, 59, 59, 0, time.UTC)
}

// advanceOneSecond drives the update cycle through both its phases: the
// first Clock call trips the once-a-second tick and latches UIP, the
// second runs out the update-cycle duration so finishUpdate actually
// commits the new date/time.
func advanceOneSecond(r *RTCDevice) {
	r.Clock(ClockFreq)
	r.Clock(ClockFreq*rtcUpdateDurationUs/1_000_000 + 1)
}

func TestRTCSeedsFromTimeSourceInBCD(t *testing.T) {
	irq := newFakeIRQ()
	r := NewRTCDevice(irq, fixedTime{seedTime()})

	require.Equal(t, byte(0x59), rtcReadReg(r, RTCRegSeconds))
	require.Equal(t, byte(0x59), rtcReadReg(r, RTCRegMinutes))
	require.Equal(t, byte(0x23), rtcReadReg(r, RTCRegHours))
	require.Equal(t, byte(0x29), rtcReadReg(r, RTCRegDayOfMonth))
	require.Equal(t, byte(0x07), rtcReadReg(r, RTCRegMonth))
}

func TestRTCOneSecondTickRollsOverMinuteHourDay(t *testing.T) {
	irq := newFakeIRQ()
	r := NewRTCDevice(irq, fixedTime{seedTime()}) // 23:59:59, Jul 29

	advanceOneSecond(r)

	require.Equal(t, byte(0x00), rtcReadReg(r, RTCRegSeconds))
	require.Equal(t, byte(0x00), rtcReadReg(r, RTCRegMinutes))
	require.Equal(t, byte(0x00), rtcReadReg(r, RTCRegHours))
	require.Equal(t, byte(0x30), rtcReadReg(r, RTCRegDayOfMonth))
}

func TestRTCUIPAssertsDuringUpdateWindow(t *testing.T) {
	irq := newFakeIRQ()
	r := NewRTCDevice(irq, fixedTime{seedTime()})

	r.Clock(ClockFreq)
	require.NotZero(t, rtcReadReg(r, RTCRegA)&RTCAUIP)
}

func TestRTCRegCClearsOnRead(t *testing.T) {
	irq := newFakeIRQ()
	r := NewRTCDevice(irq, fixedTime{seedTime()})
	advanceOneSecond(r)

	first := rtcReadReg(r, RTCRegC)
	require.NotZero(t, first&RTCCUF)

	second := rtcReadReg(r, RTCRegC)
	require.Zero(t, second)
}

func TestRTCAlarmWildcardMatchesAnyValue(t *testing.T) {
	irq := newFakeIRQ()
	r := NewRTCDevice(irq, fixedTime{seedTime()})

	rtcWriteReg(r, RTCRegAlarmSeconds, 0xC0) // don't-care
	rtcWriteReg(r, RTCRegAlarmMinutes, 0xC0)
	rtcWriteReg(r, RTCRegAlarmHours, 0xC0)
	rtcWriteReg(r, RTCRegB, RTCB2412|RTCBAIE)

	advanceOneSecond(r)

	status := rtcReadReg(r, RTCRegC)
	require.NotZero(t, status&RTCCAF, "wildcard alarm fields must match any rolled-over time")
	require.NotZero(t, irq.raised[IRQRTC])
}

func TestRTCBinaryModeSkipsBCDEncoding(t *testing.T) {
	irq := newFakeIRQ()
	r := NewRTCDevice(irq, fixedTime{seedTime()})

	rtcWriteReg(r, RTCRegB, RTCB2412|RTCBDM) // binary mode, 24-hour
	require.Equal(t, byte(59), rtcReadReg(r, RTCRegSeconds))
}

func TestRTCPeriodicInterruptFiresAtConfiguredRate(t *testing.T) {
	irq := newFakeIRQ()
	r := NewRTCDevice(irq, fixedTime{seedTime()})

	rtcWriteReg(r, RTCRegA, 0x26|0x06) // RS=6 -> 1024Hz
	rtcWriteReg(r, RTCRegB, RTCB2412|RTCBPIE)

	r.Clock(r.periodic.CyclesToNextTick())

	require.NotZero(t, rtcReadReg(r, RTCRegC)&RTCCPF)
}

func TestRTCLeapYearFebruary(t *testing.T) {
	require.Equal(t, byte(29), daysInMonth(2, 2028))
	require.Equal(t, byte(28), daysInMonth(2, 2027))
	require.Equal(t, byte(28), daysInMonth(2, 2100))
	require.Equal(t, byte(29), daysInMonth(2, 2000))
}
