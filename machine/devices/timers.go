package devices

import (
	"fmt"
	"sync"
)

// PIT ports.
const (
	PITCounter0 uint16 = 0x40 // system timer, IRQ0
	PITCounter1 uint16 = 0x41 // legacy RAM refresh
	PITCounter2 uint16 = 0x42 // speaker tone source
	PITCommand  uint16 = 0x43
)

// Read/write latch modes (command register bits 4-5).
const (
	PITAccessLatch byte = 0
	PITAccessLSB   byte = 1
	PITAccessMSB   byte = 2
	PITAccessLoHi  byte = 3
)

type pitCounter struct {
	mode    byte
	access  byte
	bcd     bool
	reload  uint16
	value   uint16
	latched bool
	latch   uint16
	loHiLow bool // next LoHi byte read or written is the low one

	gate  bool
	out   bool
	armed bool // counting has been loaded at least once
}

// PITDevice implements the three-counter 8254 driving IRQ0 (counter 0,
// mode 2 rate generator in the common BIOS configuration), the unused
// RAM-refresh counter (counter 1, clocked but otherwise inert here) and
// the PC speaker's tone source (counter 2, gated by port 0x61 bit 0 and
// observed by speaker.go through Counter2Output).
type PITDevice struct {
	lock      sync.Mutex
	irqRaiser InterruptRaiser
	counters  [3]pitCounter

	// rc converts CPU cycles into 1.193182MHz PIT ticks.
	rc *RateConverter
}

const pitFreq int64 = 1193182

// NewPITDevice creates a reset 8254 wired to irqRaiser for counter 0's
// IRQ0 output.
func NewPITDevice(irqRaiser InterruptRaiser) *PITDevice {
	p := &PITDevice{irqRaiser: irqRaiser, rc: NewRateConverter(ClockFreq, pitFreq)}
	p.Reset()
	return p
}

func (p *PITDevice) Reset() {
	p.lock.Lock()
	defer p.lock.Unlock()
	for i := range p.counters {
		p.counters[i] = pitCounter{access: PITAccessLoHi, gate: true}
	}
	p.rc.Reset()
}

func (p *PITDevice) NextEventCC() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.rc.CyclesToNextTick()
}

func (p *PITDevice) Clock(cc int64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	ticks := p.rc.Convert(cc)
	for i := int64(0); i < ticks; i++ {
		p.tickAll()
	}
}

func (p *PITDevice) EndIter() {}

// tickAll advances every counter by one 1.193182MHz cycle.
func (p *PITDevice) tickAll() {
	for i := range p.counters {
		p.tickCounter(i)
	}
}

func (p *PITDevice) tickCounter(i int) {
	c := &p.counters[i]
	if !c.gate && c.mode != 0 {
		return
	}
	if !c.armed {
		return
	}

	prevOut := c.out
	switch c.mode {
	case 0: // interrupt on terminal count
		if c.value == 0 {
			c.out = true
			return
		}
		c.value--
		if c.value == 0 {
			c.out = true
		}
	case 1: // hardware retriggerable one-shot
		if c.value > 0 {
			c.value--
			c.out = c.value != 0
		}
	case 2: // rate generator
		if c.value <= 1 {
			c.value = c.reload
			c.out = false
		} else {
			c.value--
			c.out = true
		}
		if c.value == c.reload {
			// Pulses low for exactly one tick at terminal count.
		}
	case 3: // square wave generator
		if c.value <= 2 {
			c.out = !c.out
			c.value = c.reload
		} else {
			c.value -= 2
		}
	case 4, 5: // software/hardware triggered strobe
		if c.value > 0 {
			c.value--
			if c.value == 0 {
				c.out = false
			} else {
				c.out = true
			}
		}
	}

	if i == 0 && !prevOut && c.out && p.irqRaiser != nil {
		p.irqRaiser.RaiseIRQ(IRQTimer)
	}
}

// Counter2Output reports the live state of counter 2's OUT pin, used
// by speaker.go as its tone source.
func (p *PITDevice) Counter2Output() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.counters[2].out
}

// SetCounter2Gate is called by port 0x61 bit 0 to gate counter 2.
func (p *PITDevice) SetCounter2Gate(level bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.counters[2].gate = level
}

func (p *PITDevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("PITDevice: I/O size %d not supported for port 0x%x", size, port)
	}

	val := byte(0)
	if direction == IODirectionOut {
		val = data[0]
	}

	switch port {
	case PITCounter0, PITCounter1, PITCounter2:
		idx := int(port - PITCounter0)
		if direction == IODirectionOut {
			p.writeCounter(idx, val)
		} else {
			data[0] = p.readCounter(idx)
		}
	case PITCommand:
		if direction == IODirectionOut {
			p.writeCommand(val)
		} else {
			return fmt.Errorf("PITDevice: read from command port 0x%x undefined", port)
		}
	default:
		return fmt.Errorf("PITDevice: unhandled I/O to port 0x%x", port)
	}
	return nil
}

func (p *PITDevice) writeCounter(idx int, val byte) {
	c := &p.counters[idx]
	switch c.access {
	case PITAccessLSB:
		c.reload = c.reload&0xFF00 | uint16(val)
		p.load(c)
	case PITAccessMSB:
		c.reload = c.reload&0x00FF | uint16(val)<<8
		p.load(c)
	case PITAccessLoHi:
		if c.loHiLow {
			c.reload = c.reload&0xFF00 | uint16(val)
			c.loHiLow = false
		} else {
			c.reload = c.reload&0x00FF | uint16(val)<<8
			c.loHiLow = true
			p.load(c)
		}
	}
}

// load latches a freshly written reload value into the active counter
// per the 8254's per-mode reload semantics (modes 2/3 reload
// immediately on the low byte of a LoHi write too, but this emulation
// keeps it simple and reloads once the full value is known).
func (p *PITDevice) load(c *pitCounter) {
	if c.access == PITAccessLoHi && c.loHiLow {
		return
	}
	c.value = c.reload
	c.armed = true
}

func (p *PITDevice) readCounter(idx int) byte {
	c := &p.counters[idx]
	src := c.value
	if c.latched {
		src = c.latch
	}
	switch c.access {
	case PITAccessLSB:
		c.latched = false
		return byte(src & 0xFF)
	case PITAccessMSB:
		c.latched = false
		return byte(src >> 8)
	default: // LoHi
		if c.loHiLow {
			c.loHiLow = false
			return byte(src & 0xFF)
		}
		c.loHiLow = true
		c.latched = false
		return byte(src >> 8)
	}
}

func (p *PITDevice) writeCommand(val byte) {
	sel := (val >> 6) & 0x3
	if sel == 3 {
		// Read-back command: not modeled, treated as a no-op.
		return
	}
	c := &p.counters[sel]
	access := (val >> 4) & 0x3
	if access == PITAccessLatch {
		c.latch = c.value
		c.latched = true
		c.loHiLow = true
		return
	}
	c.access = access
	c.mode = (val >> 1) & 0x7
	c.bcd = val&0x1 != 0
	c.loHiLow = true
	c.latched = false
}
