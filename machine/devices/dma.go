package devices

import (
	"fmt"
	"log"
	"sync"
)

// dreqFIFOSize bounds the per-controller DREQ-latency queue (spec.md
// §3/§9: "bounded FIFO of pending DREQ assertion events... do not
// promote these to unbounded queues"). dreqLatencyTicks is the
// request-to-service delay in SYSCLK ticks each queued assertion
// carries (spec.md §4.2: "~8 SYSCLK request-to-service latency").
const (
	dreqFIFOSize     = 8
	dreqLatencyTicks = 8
)

// dreqEvent is one pending DREQ assertion awaiting its request-to-
// service latency before it becomes visible to arbitration.
type dreqEvent struct {
	ch    int
	delay int64
}

// dmaChannel models one of a controller's four channels: the 16-bit
// current/base address and count register pairs (each split across two
// port writes via the controller's address flip-flop), the page
// register supplying the high address bits, and the live DREQ/mask/TC
// state the controller arbitrates over.
type dmaChannel struct {
	transferType byte
	autoInit     bool
	addrDecr     bool
	transferMode byte

	addr     uint16
	baseAddr uint16
	count    uint16
	baseCnt  uint16
	page     byte
	basePage byte

	masked bool
	dreq   bool
	tc     bool

	requester DMARequester
}

func (c *dmaChannel) writeMode(val byte) {
	c.transferType = (val & dmaModeTransferMask) >> 2
	c.autoInit = val&dmaModeAutoInit != 0
	c.addrDecr = val&dmaModeAddrDecr != 0
	c.transferMode = (val & dmaModeModeMask) >> 6
}

func (c *dmaChannel) reload() {
	c.addr = c.baseAddr
	c.count = c.baseCnt
	c.page = c.basePage
	c.tc = false
}

func (c *dmaChannel) step(wordSized bool) (phys uint32, done bool) {
	if wordSized {
		phys = uint32(c.page)<<16 | uint32(c.addr)<<1
	} else {
		phys = uint32(c.page)<<16 | uint32(c.addr)
	}
	if c.addrDecr {
		c.addr--
	} else {
		c.addr++
	}
	if c.count == 0 {
		c.tc = true
		if c.autoInit {
			c.addr = c.baseAddr
			c.count = c.baseCnt
		} else {
			c.masked = true
		}
		return phys, true
	}
	c.count--
	return phys, false
}

// dmaController models one 8237: four channels, the address/count
// flip-flop shared across all of them, and the controller-wide command
// register.
type dmaController struct {
	channels [4]dmaChannel
	flipFlop bool
	command  byte
	wordCtrl bool // true for the 16-bit (channels 4-7) controller

	pending []dreqEvent // bounded DREQ-latency FIFO, see dreqFIFOSize
}

func (ctl *dmaController) reset() {
	for i := range ctl.channels {
		ctl.channels[i] = dmaChannel{masked: true}
	}
	ctl.flipFlop = false
	ctl.command = 0
	ctl.pending = ctl.pending[:0]
}

// queueDREQ enqueues a new DREQ assertion for ch behind its request-to-
// service latency, dropping (with a warning) it if the bounded FIFO is
// already full.
func (ctl *dmaController) queueDREQ(ch int) {
	if len(ctl.pending) >= dreqFIFOSize {
		log.Printf("dma: DREQ latency FIFO full, dropping assertion for channel %d", ch)
		return
	}
	ctl.pending = append(ctl.pending, dreqEvent{ch: ch, delay: dreqLatencyTicks})
}

// cancelPending drops any not-yet-serviced DREQ assertion queued for
// ch; spec.md §4.2: "Deassertions take effect immediately and cancel
// pending asserts for the same channel."
func (ctl *dmaController) cancelPending(ch int) {
	kept := ctl.pending[:0]
	for _, e := range ctl.pending {
		if e.ch != ch {
			kept = append(kept, e)
		}
	}
	ctl.pending = kept
}

// tickPending advances every queued assertion's countdown by one
// SYSCLK tick, promoting any that reach zero to a live DREQ.
func (ctl *dmaController) tickPending() {
	if len(ctl.pending) == 0 {
		return
	}
	kept := ctl.pending[:0]
	for _, e := range ctl.pending {
		e.delay--
		if e.delay <= 0 {
			ctl.channels[e.ch].dreq = true
		} else {
			kept = append(kept, e)
		}
	}
	ctl.pending = kept
}

func (ctl *dmaController) writeAddr(ch int, val byte) {
	c := &ctl.channels[ch]
	if !ctl.flipFlop {
		c.baseAddr = c.baseAddr&0xFF00 | uint16(val)
	} else {
		c.baseAddr = c.baseAddr&0x00FF | uint16(val)<<8
	}
	c.addr = c.baseAddr
	ctl.flipFlop = !ctl.flipFlop
}

func (ctl *dmaController) readAddr(ch int) byte {
	c := &ctl.channels[ch]
	var v byte
	if !ctl.flipFlop {
		v = byte(c.addr & 0xFF)
	} else {
		v = byte(c.addr >> 8)
	}
	ctl.flipFlop = !ctl.flipFlop
	return v
}

func (ctl *dmaController) writeCount(ch int, val byte) {
	c := &ctl.channels[ch]
	if !ctl.flipFlop {
		c.baseCnt = c.baseCnt&0xFF00 | uint16(val)
	} else {
		c.baseCnt = c.baseCnt&0x00FF | uint16(val)<<8
	}
	c.count = c.baseCnt
	ctl.flipFlop = !ctl.flipFlop
}

func (ctl *dmaController) readCount(ch int) byte {
	c := &ctl.channels[ch]
	var v byte
	if !ctl.flipFlop {
		v = byte(c.count & 0xFF)
	} else {
		v = byte(c.count >> 8)
	}
	ctl.flipFlop = !ctl.flipFlop
	return v
}

// highestPriority returns the lowest-numbered unmasked channel with an
// asserted DREQ, implementing the 8237's fixed-priority (channel 0
// highest) arbitration.
func (ctl *dmaController) highestPriority() int {
	for i := range ctl.channels {
		c := &ctl.channels[i]
		if !c.masked && c.dreq {
			return i
		}
	}
	return -1
}

// DMADevice manages the dual 8237 pair (controller 1: channels 0-3,
// 8-bit; controller 2: channels 4-7, 16-bit, with channel 4 wired as
// the cascade input from controller 1) plus the page registers shared
// across both.
type DMADevice struct {
	lock sync.Mutex

	ctl [2]dmaController
	mem MemoryBus
	rc  *RateConverter
}

// NewDMADevice creates a reset DMA controller pair driven by mem for
// the actual memory-side byte transfers.
func NewDMADevice(mem MemoryBus) *DMADevice {
	d := &DMADevice{mem: mem}
	d.ctl[1].wordCtrl = true
	d.rc = NewRateConverter(ClockFreq, 7_500_000) // SYSCLK = PCICLK/4, PCICLK assumed 30MHz
	d.Reset()
	return d
}

func (d *DMADevice) Reset() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.ctl[0].reset()
	d.ctl[1].reset()
	d.rc.Reset()
}

func (d *DMADevice) NextEventCC() int64 {
	d.lock.Lock()
	defer d.lock.Unlock()
	active := d.ctl[0].highestPriority() >= 0 || d.ctl[1].highestPriority() >= 0
	pending := len(d.ctl[0].pending) > 0 || len(d.ctl[1].pending) > 0
	if !active && !pending {
		return 1 << 62
	}
	return d.rc.CyclesToNextTick()
}

// Clock advances SYSCLK by the elapsed cycles, servicing the
// highest-priority active DREQ on each controller once per SYSCLK tick.
func (d *DMADevice) Clock(cc int64) {
	d.lock.Lock()
	defer d.lock.Unlock()
	ticks := d.rc.Convert(cc)
	for i := int64(0); i < ticks; i++ {
		d.ctl[0].tickPending()
		d.ctl[1].tickPending()
		d.serviceController(0)
		d.serviceController(1)
	}
}

func (d *DMADevice) EndIter() {}

func (d *DMADevice) serviceController(idx int) {
	ctl := &d.ctl[idx]
	ch := ctl.highestPriority()
	if ch < 0 {
		return
	}
	c := &ctl.channels[ch]
	if c.requester == nil {
		return
	}

	channelNumber := ch
	if idx == 1 {
		channelNumber += 4
	}

	phys, atTC := c.step(ctl.wordCtrl)
	if c.transferMode == DMAModeSingle {
		c.dreq = false
	}

	// Requesters may call back into SetDREQ while handling a byte or the
	// terminal count, so the controller lock is not held across them.
	d.lock.Unlock()
	defer d.lock.Lock()

	switch c.transferType {
	case DMATransferWrite: // peripheral -> memory
		b, err := c.requester.DMAReadByte(channelNumber)
		if err == nil {
			d.mem.WritePhys(phys, b)
			if ctl.wordCtrl {
				b2, err2 := c.requester.DMAReadByte(channelNumber)
				if err2 == nil {
					d.mem.WritePhys(phys+1, b2)
				}
			}
		}
	case DMATransferRead: // memory -> peripheral
		b := d.mem.ReadPhys(phys)
		c.requester.DMAWriteByte(channelNumber, b)
		if ctl.wordCtrl {
			c.requester.DMAWriteByte(channelNumber, d.mem.ReadPhys(phys+1))
		}
	}

	if atTC {
		c.requester.DMATerminalCount(channelNumber)
	}
}

// AttachRequester registers the peripheral that services channel
// (0-7) when the controller needs to move a byte.
func (d *DMADevice) AttachRequester(channel int, r DMARequester) {
	d.lock.Lock()
	defer d.lock.Unlock()
	idx, ch := d.split(channel)
	d.ctl[idx].channels[ch].requester = r
}

// SetDREQ is called by a peripheral to assert or deassert its DMA
// request line. Assertions are queued behind the bounded request-to-
// service latency FIFO (spec.md §3/§4.2); deassertions take effect
// immediately and cancel any not-yet-serviced queued assertion for the
// same channel, aborting a demand-mode transfer in progress.
func (d *DMADevice) SetDREQ(channel int, level bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	idx, ch := d.split(channel)
	ctl := &d.ctl[idx]
	if !level {
		ctl.channels[ch].dreq = false
		ctl.cancelPending(ch)
		return
	}
	if ctl.channels[ch].dreq {
		return
	}
	ctl.queueDREQ(ch)
}

func (d *DMADevice) split(channel int) (idx, ch int) {
	if channel < 4 {
		return 0, channel
	}
	return 1, channel - 4
}

// HandleIO processes I/O operations for both controllers and the page
// register bank.
func (d *DMADevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("DMADevice: I/O size %d not supported for port 0x%x", size, port)
	}

	val := byte(0)
	if direction == IODirectionOut {
		val = data[0]
	}

	if pageCh, ok := d.pagePortChannel(port); ok {
		idx, ch := d.split(pageCh)
		if direction == IODirectionOut {
			d.ctl[idx].channels[ch].basePage = val
			d.ctl[idx].channels[ch].page = val
		} else {
			data[0] = d.ctl[idx].channels[ch].page
		}
		return nil
	}

	if port >= 0x00 && port <= 0x0F {
		return d.handleControllerIO(&d.ctl[0], 0, port-0x00, direction, val, data)
	}
	if port >= 0xC0 && port <= 0xDF {
		return d.handleControllerIO(&d.ctl[1], 0xC0, (port-0xC0)/2, direction, val, data)
	}
	return fmt.Errorf("DMADevice: unhandled I/O to port 0x%x", port)
}

func (d *DMADevice) pagePortChannel(port uint16) (int, bool) {
	for ch, p := range dmaPagePort {
		if p == port {
			return ch, true
		}
	}
	return 0, false
}

// handleControllerIO dispatches a register access within one
// controller's port block. base is the controller's port origin
// (0x00 or 0xC0); offset is the register/channel selector scaled to
// the controller's own port spacing (1 for controller 1, 2 for
// controller 2, already divided out by the caller for the channel
// registers).
func (d *DMADevice) handleControllerIO(ctl *dmaController, base uint16, offset uint16, direction uint8, val byte, data []byte) error {
	// Address/count registers occupy the first 8 register slots (2 per
	// channel): even slot = address, odd slot = count.
	if offset < 8 {
		ch := int(offset / 2)
		isAddr := offset%2 == 0
		if direction == IODirectionOut {
			if isAddr {
				ctl.writeAddr(ch, val)
			} else {
				ctl.writeCount(ch, val)
			}
		} else {
			if isAddr {
				data[0] = ctl.readAddr(ch)
			} else {
				data[0] = ctl.readCount(ch)
			}
		}
		return nil
	}

	switch offset {
	case 8: // command / status
		if direction == IODirectionOut {
			ctl.command = val
		} else {
			data[0] = d.statusRegister(ctl)
		}
	case 9: // request register
		if direction == IODirectionOut {
			ch := int(val & 0x03)
			ctl.channels[ch].dreq = val&0x04 != 0
		}
	case 10: // single mask register
		if direction == IODirectionOut {
			ch := int(val & 0x03)
			ctl.channels[ch].masked = val&0x04 != 0
		}
	case 11: // mode register
		if direction == IODirectionOut {
			ch := int(val & dmaModeChannelMask)
			ctl.channels[ch].writeMode(val)
		}
	case 12: // clear byte pointer flip-flop
		if direction == IODirectionOut {
			ctl.flipFlop = false
		}
	case 13: // master clear
		if direction == IODirectionOut {
			for i := range ctl.channels {
				ctl.channels[i].masked = true
			}
			ctl.flipFlop = false
			ctl.command = 0
		} else {
			data[0] = 0 // temporary register, unused by this emulation
		}
	case 14: // clear mask register (unmask all)
		if direction == IODirectionOut {
			for i := range ctl.channels {
				ctl.channels[i].masked = false
			}
		}
	case 15: // write all mask bits
		if direction == IODirectionOut {
			for i := range ctl.channels {
				ctl.channels[i].masked = val&(1<<i) != 0
			}
		}
	default:
		return fmt.Errorf("DMADevice: unhandled controller register offset %d", offset)
	}
	return nil
}

func (d *DMADevice) statusRegister(ctl *dmaController) byte {
	var status byte
	for i := range ctl.channels {
		if ctl.channels[i].tc {
			status |= 1 << i
		}
		if ctl.channels[i].dreq {
			status |= 1 << (i + 4)
		}
	}
	return status
}
