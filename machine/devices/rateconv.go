package devices

import "math"

// ClockFreq is the CPU core clock rate in Hz the whole chipset's cycle
// counters (the Scheduled.NextEventCC/Clock/EndIter protocol) are
// derived from. All device-local clocks (SYSCLK, the PMTimer's
// 3.579545MHz, the 44.1kHz audio DACs) are Bresenham-converted off this
// rate rather than tracked with floating point, so playback stays
// sample-accurate across arbitrarily long runs.
const ClockFreq int64 = 33000000

// RateConverter performs exact-rational cycle-domain conversion between
// the machine's master clock and a device's own sample/tick rate,
// avoiding the drift a floating point accumulator would introduce over
// a long run. mul/div is the target-rate/source-rate fraction in lowest
// terms; residue carries the fractional remainder between calls.
type RateConverter struct {
	mul, div int64
	residue  int64
}

// NewRateConverter builds a converter from sourceHz to targetHz,
// reducing the fraction by repeated division the way the original
// emulator's speaker/PMTimer clocks do (dividing by small common
// factors rather than computing a full GCD, since the only divisors
// that matter for the frequencies this chipset uses are 2, 3, 5 and 7).
func NewRateConverter(sourceHz, targetHz int64) *RateConverter {
	mul, div := targetHz, sourceHz
	for _, d := range [...]int64{2, 3, 5, 7} {
		for mul%d == 0 && div%d == 0 {
			mul /= d
			div /= d
		}
	}
	return &RateConverter{mul: mul, div: div}
}

// Convert advances the converter by cc source-clock cycles and returns
// how many target-rate ticks elapsed.
func (r *RateConverter) Convert(cc int64) int64 {
	total := cc*r.mul + r.residue
	ticks := total / r.div
	r.residue = total % r.div
	return ticks
}

// CyclesToNextTick returns how many source cycles remain before the
// next target-rate tick fires, for use as a device's NextEventCC
// contribution.
func (r *RateConverter) CyclesToNextTick() int64 {
	if r.mul == 0 {
		return math.MaxInt64
	}
	remaining := r.div - r.residue
	cycles := remaining / r.mul
	if remaining%r.mul != 0 {
		cycles++
	}
	if cycles <= 0 {
		cycles = 1
	}
	return cycles
}

// Reset clears accumulated fractional state, used when a device's
// Reset() zeroes its own counters too.
func (r *RateConverter) Reset() {
	r.residue = 0
}
