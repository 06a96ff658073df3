package svga

import "example.com/pc430tx/machine/devices"

// crtcState is the scanout counters: a character-granularity
// horizontal position and a scanline-granularity vertical position,
// each independently comparing against the programmed CRTC
// start/end points to derive blanking and retrace.
type crtcState struct {
	h, v int

	hBlank, hRetrace bool
	vBlank, vRetrace bool

	blinkCounter byte
	screenStart  int // re-latched from CR0C/CR0D each time V wraps at vertical total
}

// vclkDefaults holds the four (numerator, denominator) pairs the misc
// register's VCLK-select bits choose between, off the 14.31818 MHz
// reference. They are the power-on values of SR0B-SR0E/SR1B-SR1E;
// guest writes to those sequencer registers are not stored, so the dot
// clock always comes from these fixed pairs.
var vclkDefaults = [4]struct{ num, den byte }{
	{0x4A, 0x2B}, // ~25.175 MHz (640x480 text/CGA-compatible default)
	{0x5B, 0x2F}, // ~28.3 MHz
	{0x45, 0x30}, // ~41.165 MHz ("Hi-1")
	{0x7E, 0x33}, // ~36.0 MHz
}

func vclkFreq(num, den byte) float64 {
	d := float64(den >> 1)
	if den&1 != 0 {
		d *= 2
	}
	return 14.31818e6 * float64(num&0x7F) / d
}

func (s *SVGADevice) currentVCLKHz() int64 {
	sel := s.regs.misc.vclkSelect
	pair := vclkDefaults[sel&3]
	hz := vclkFreq(pair.num, pair.den)
	if s.regs.SR.clockMode&0x08 != 0 {
		hz /= 2 // dot-clock/2 option
	}
	return int64(hz)
}

// rebuildVCLK reconstructs the cycle-domain rate converter whenever a
// register write could have changed the effective dot clock.
func (s *SVGADevice) rebuildVCLK() {
	hz := s.currentVCLKHz()
	if hz <= 0 {
		hz = 25175000
	}
	s.vclkRC = devices.NewRateConverter(devices.ClockFreq, hz)
}

// clockDots advances the scanout state machine by n dot-clock ticks,
// toggling blank/retrace flags and, at vertical-display-end and
// vertical-total, pushing a frame and re-latching the start address.
func (s *SVGADevice) clockDots(n int64) {
	c := &s.crtc
	htotal := s.regs.CR.horizTotal + 1
	if htotal <= 0 {
		htotal = 1
	}
	vtotal := s.regs.CR.vertTotal + 1
	if vtotal <= 0 {
		vtotal = 1
	}

	for i := int64(0); i < n; i++ {
		c.h++
		c.hBlank = c.h >= s.regs.CR.horizBlankStart && c.h < s.regs.CR.horizBlankEnd
		c.hRetrace = c.h >= s.regs.CR.horizRetraceStart && c.h < s.regs.CR.horizRetraceEnd

		if c.h >= htotal {
			c.h = 0
			c.v++
			c.vBlank = c.v >= s.regs.CR.vertBlankStart && c.v < s.regs.CR.vertBlankEnd
			c.vRetrace = c.v >= s.regs.CR.vertRetraceStart && c.v < s.regs.CR.vertRetraceEnd

			if c.v == s.regs.CR.vertDispEnd+1 {
				s.renderFrame()
			}
			if c.v >= vtotal {
				c.v = 0
				c.blinkCounter++
				c.screenStart = s.regs.CR.startAddr
			}
		}
	}
}
