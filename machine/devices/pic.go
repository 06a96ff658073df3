package devices

import (
	"fmt"
	"log"
	"sync"
)

// picController models one 8259A: its command/data port state machine,
// the three interrupt registers, per-line priority order (so EOI
// rotation actually changes future arbitration) and the live input
// level used for level-triggered lines.
type picController struct {
	isMaster bool

	vectorBase uint8
	imr        uint8
	irr        uint8
	isr        uint8
	input      uint8 // current level of each IRQ input line

	icwStep   int // 0 = idle/OCW, 1..3 = awaiting ICW2/3/4
	modeFlags byte
	autoEOI   bool
	sfnm      bool

	specialMask bool
	readISR     bool // OCW3 register-read select: false=IRR, true=ISR

	priority [8]uint8 // priority[i] = IRQ number at priority slot i (0 = highest)
	lastIRQ  int       // IRQ serviced by the most recent ack, -1 if none
	out      bool
}

func newPICController(isMaster bool) *picController {
	pc := &picController{isMaster: isMaster, lastIRQ: -1}
	pc.reset()
	return pc
}

func (pc *picController) reset() {
	pc.vectorBase = 0
	pc.imr = 0xFF
	pc.irr = 0
	pc.isr = 0
	pc.input = 0
	pc.icwStep = 1
	pc.modeFlags = picICW1IC4
	pc.autoEOI = false
	pc.sfnm = false
	pc.specialMask = false
	pc.readISR = false
	for i := range pc.priority {
		pc.priority[i] = uint8(i)
	}
	pc.lastIRQ = -1
	pc.out = false
}

func (pc *picController) elcrLevel(elcr uint8, irq uint8) bool {
	return elcr&(1<<irq) != 0
}

// inputChanged latches a transition on one of the controller's eight
// IRQ inputs into IRR, honoring edge vs. level behavior per ELCR.
func (pc *picController) inputChanged(irq uint8, elcr uint8, level bool) {
	wasHigh := pc.input&(1<<irq) != 0
	if level {
		pc.input |= 1 << irq
	} else {
		pc.input &^= 1 << irq
	}
	if pc.elcrLevel(elcr, irq) {
		// Level-triggered: IRR tracks the input level directly.
		if level {
			pc.irr |= 1 << irq
		} else {
			pc.irr &^= 1 << irq
		}
	} else if level && !wasHigh {
		// Edge-triggered: only a rising edge latches a request.
		pc.irr |= 1 << irq
	}
}

// updateOut re-derives the controller's INTR/cascade output from IRR,
// IMR, ISR and priority order under fully-nested-mode arbitration.
func (pc *picController) updateOut() (irq int, vector uint8, ok bool) {
	pending := pc.irr &^ pc.imr
	for _, irqNum := range pc.priority {
		bit := uint8(1) << irqNum
		if pc.isr&bit != 0 && !pc.specialMask {
			// A higher- or equal-priority service is already in
			// progress and special mask mode isn't lifting the block.
			break
		}
		if pending&bit == 0 {
			continue
		}
		return int(irqNum), pc.vectorBase + irqNum, true
	}
	return -1, 0, false
}

func (pc *picController) writeCommandPort(val byte) {
	if val&picICW1Init != 0 {
		pc.irr = 0
		pc.isr = 0
		pc.imr = 0
		pc.modeFlags = val & (picICW1LTIM | picICW1SNGL | picICW1IC4)
		pc.autoEOI = false
		pc.sfnm = false
		pc.icwStep = 1
		for i := range pc.priority {
			pc.priority[i] = uint8(i)
		}
		return
	}
	if val&0x18 == 0x08 {
		pc.processOCW3(val)
	} else {
		pc.processOCW2(val)
	}
}

func (pc *picController) writeDataPort(val byte) {
	if pc.icwStep == 0 {
		pc.imr = val
		return
	}
	switch pc.icwStep {
	case 1: // ICW2
		pc.vectorBase = val &^ 0x07
		if pc.modeFlags&picICW1SNGL != 0 {
			if pc.modeFlags&picICW1IC4 == 0 {
				pc.icwStep = 0
			} else {
				pc.icwStep = 3
			}
		} else {
			pc.icwStep = 2
		}
	case 2: // ICW3 (cascade wiring, unused beyond accepting the byte)
		if pc.modeFlags&picICW1IC4 == 0 {
			pc.icwStep = 0
		} else {
			pc.icwStep = 3
		}
	case 3: // ICW4
		pc.autoEOI = val&picICW4AEOI != 0
		pc.sfnm = val&picICW4SFNM != 0
		pc.icwStep = 0
	}
}

func (pc *picController) readCommandPort() byte {
	if pc.readISR {
		return pc.isr
	}
	return pc.irr
}

// rotatePriority moves servicedIRQ to the lowest priority slot (behind
// every other line), as IS-rotate commands require.
func (pc *picController) rotatePriority(servicedIRQ uint8) {
	var rest [8]uint8
	n := 0
	for _, irq := range pc.priority {
		if irq != servicedIRQ {
			rest[n] = irq
			n++
		}
	}
	copy(pc.priority[:n], rest[:n])
	pc.priority[n] = servicedIRQ
}

func (pc *picController) processOCW2(val byte) {
	rotate := val&picOCW2Rotate != 0
	specific := val&picOCW2SL != 0
	isEOI := val&picOCW2EOI != 0

	switch {
	case isEOI && specific:
		irq := uint8(val & picOCW2Level)
		pc.isr &^= 1 << irq
		if rotate {
			pc.rotatePriority(irq)
		}
	case isEOI && !specific:
		for _, irq := range pc.priority {
			if pc.isr&(1<<irq) != 0 {
				pc.isr &^= 1 << irq
				if rotate {
					pc.rotatePriority(irq)
				}
				break
			}
		}
	case !isEOI && rotate:
		// Rotate-in-automatic-EOI mode: bits 7-5 = 100 sets it, 000
		// clears it. Not separately tracked beyond the AEOI flag
		// already carried from ICW4; the priority array is rotated by
		// rotateIfAuto when GetInterruptVector delivers the next vector.
	}
}

func (pc *picController) processOCW3(val byte) {
	if val&picOCW3Poll != 0 {
		return
	}
	if val&picOCW3RR != 0 {
		pc.readISR = val&picOCW3RIS != 0
	}
	if val&picOCW3ESMM != 0 {
		pc.specialMask = val&picOCW3SMM != 0
	}
}

// acknowledge commits the controller to servicing irq: clears it from
// IRR if edge-triggered and sets ISR unless in auto-EOI mode. It does
// not rotate priority; GetInterruptVector does that through
// rotateIfAuto after acknowledging.
func (pc *picController) acknowledge(irq uint8, elcr uint8) {
	if !pc.elcrLevel(elcr, irq) {
		pc.irr &^= 1 << irq
	}
	if !pc.autoEOI {
		pc.isr |= 1 << irq
	}
	pc.lastIRQ = int(irq)
}

// PICDevice manages the master/slave 8259A pair, the PIIX4 ELCR
// registers and PCI IRQ routing (PIRQA-D), and derives the CPU's INTR
// line from both controllers using fully-nested-mode arbitration with
// the master's cascade input (IRQ2) driven by the slave's output.
type PICDevice struct {
	lock sync.Mutex

	master picController
	slave  *picController

	elcr [2]uint8

	pirq [4]struct {
		reg     byte
		enabled bool
		irq     int
	}

	pendingVector uint8
	pendingValid  bool
}

// NewPICDevice creates a reset master/slave PIC pair.
func NewPICDevice() *PICDevice {
	p := &PICDevice{}
	p.master = *newPICController(true)
	p.slave = newPICController(false)
	p.resetPIRQ()
	return p
}

func (p *PICDevice) resetPIRQ() {
	for i := range p.pirq {
		p.pirq[i].reg = 0x80
		p.pirq[i].enabled = false
		p.pirq[i].irq = -1
	}
}

// NextEventCC, Clock, EndIter, Reset satisfy Scheduled/Device: the PIC
// has no cycle-driven behavior of its own, it only reacts to RaiseIRQ
// calls and register writes, so it never constrains the scheduler.
func (p *PICDevice) NextEventCC() int64 { return 1 << 62 }
func (p *PICDevice) Clock(cc int64)     {}
func (p *PICDevice) EndIter()           {}

func (p *PICDevice) Reset() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.master.reset()
	p.slave.reset()
	p.elcr = [2]uint8{}
	p.resetPIRQ()
}

// HandleIO processes I/O operations for both controllers plus the ELCR
// pair.
func (p *PICDevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("PICDevice: I/O size %d not supported for port 0x%x", size, port)
	}

	val := byte(0)
	if direction == IODirectionOut {
		val = data[0]
	}

	switch port {
	case PICMasterCmdPort:
		if direction == IODirectionOut {
			p.master.writeCommandPort(val)
		} else {
			data[0] = p.master.readCommandPort()
		}
	case PICMasterDataPort:
		if direction == IODirectionOut {
			p.master.writeDataPort(val)
		} else {
			data[0] = p.master.imr
		}
	case PICSlaveCmdPort:
		if direction == IODirectionOut {
			p.slave.writeCommandPort(val)
		} else {
			data[0] = p.slave.readCommandPort()
		}
	case PICSlaveDataPort:
		if direction == IODirectionOut {
			p.slave.writeDataPort(val)
		} else {
			data[0] = p.slave.imr
		}
	case ELCR0Port:
		if direction == IODirectionOut {
			p.writeELCR(0, val)
		} else {
			data[0] = p.elcr[0]
		}
	case ELCR1Port:
		if direction == IODirectionOut {
			p.writeELCR(1, val)
		} else {
			data[0] = p.elcr[1]
		}
	default:
		return fmt.Errorf("PICDevice: unhandled I/O to port 0x%x", port)
	}
	p.arbitrate()
	return nil
}

// writeELCR stores the edge/level selection, forcing the lines the
// PIIX4 hardwires to edge (IRQ0/1 on ELCR0, IRQ8/13 on ELCR1) back to
// edge regardless of what the guest asked for, matching the original
// chipset's validation.
func (p *PICDevice) writeELCR(index int, val byte) {
	fixedEdgeMask := byte(0x03)
	if index == 1 {
		fixedEdgeMask = 0x21
	}
	if val&fixedEdgeMask != 0 {
		log.Printf("PICDevice: ELCR%d write 0x%02x attempts to level-trigger a fixed-edge IRQ, forcing those bits back to edge", index, val)
	}
	p.elcr[index] = val &^ fixedEdgeMask
}

// SetPIRQRoute is called by the external PCI config mechanism when the
// guest writes one of the PIIX4's PIRQRC[A-D] registers (PCI config
// offsets 0x60-0x63, function 0 of the ISA bridge).
func (p *PICDevice) SetPIRQRoute(index int, data byte) {
	p.lock.Lock()
	defer p.lock.Unlock()

	reg := data & 0x8F
	enabled := data&0x80 == 0
	irq := int(data & 0x0F)
	if enabled && picIllegalPIRQTarget[irq] {
		log.Printf("PICDevice: PIRQ%c routed to illegal IRQ %d, disabling the line", 'A'+index, irq)
		enabled = false
		irq = -1
	}
	p.pirq[index].reg = reg
	p.pirq[index].enabled = enabled
	if enabled {
		p.pirq[index].irq = irq
	} else {
		p.pirq[index].irq = -1
	}
}

// PIRQRoute returns the raw PIRQRC register value for config-space
// reads.
func (p *PICDevice) PIRQRoute(index int) byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.pirq[index].reg
}

// RaisePIRQ drives PCI INTx line index (0=INTA .. 3=INTD) high, routed
// through whichever ISA IRQ the PIRQ register currently names.
func (p *PICDevice) RaisePIRQ(index int, level bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.pirq[index].enabled || p.pirq[index].irq < 0 {
		return
	}
	p.setLine(uint8(p.pirq[index].irq), level)
	p.arbitrate()
}

// RaiseIRQ and LowerIRQ implement InterruptRaiser for ISA devices
// driving a dedicated IRQ line directly.
func (p *PICDevice) RaiseIRQ(irqLine uint8) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.setLine(irqLine, true)
	p.arbitrate()
}

func (p *PICDevice) LowerIRQ(irqLine uint8) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.setLine(irqLine, false)
	p.arbitrate()
}

func (p *PICDevice) setLine(irqLine uint8, level bool) {
	if irqLine < 8 {
		p.master.inputChanged(irqLine, p.elcr[0], level)
		return
	}
	if irqLine < 16 {
		p.slave.inputChanged(irqLine-8, p.elcr[1], level)
		return
	}
	log.Printf("PICDevice: invalid IRQ line %d", irqLine)
}

// arbitrate re-derives both controllers' outputs under fully-nested
// mode, cascading the slave's output into the master's IRQ2 input.
func (p *PICDevice) arbitrate() {
	_, _, slaveOut := p.slave.updateOut()
	p.slave.out = slaveOut
	p.master.inputChanged(IRQCascade, p.elcr[0], slaveOut)

	_, vector, masterOut := p.master.updateOut()
	p.master.out = masterOut

	p.pendingValid = masterOut
	p.pendingVector = vector
}

// HasPendingInterrupts reports whether the CPU's INTR line is
// currently asserted.
func (p *PICDevice) HasPendingInterrupts() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.pendingValid
}

// GetInterruptVector commits the currently pending highest-priority
// interrupt (updating ISR/IRR/priority on both controllers as needed,
// cascading through the slave when the pending line is IRQ2) and
// returns its vector. Returns (0, false) if nothing is pending.
func (p *PICDevice) GetInterruptVector() (uint8, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.pendingValid {
		return 0, false
	}

	irq, vector, ok := p.master.updateOut()
	if !ok {
		p.pendingValid = false
		return 0, false
	}

	if irq == int(IRQCascade) {
		p.master.acknowledge(IRQCascade, p.elcr[0])
		slaveIRQ, slaveVector, slaveOK := p.slave.updateOut()
		if !slaveOK {
			p.arbitrate()
			return 0, false
		}
		p.slave.acknowledge(uint8(slaveIRQ), p.elcr[1])
		if p.master.autoEOI {
			p.master.rotateIfAuto()
		}
		if p.slave.autoEOI {
			p.slave.rotateIfAuto()
		}
		p.arbitrate()
		return slaveVector, true
	}

	p.master.acknowledge(uint8(irq), p.elcr[0])
	if p.master.autoEOI {
		p.master.rotateIfAuto()
	}
	p.arbitrate()
	return vector, true
}

// rotateIfAuto rotates priority behind the just-acknowledged line when
// the controller is in auto-EOI mode (8259A "rotate on automatic EOI"
// behavior is approximated here as always rotating in AEOI, which only
// matters when the guest also issued the rotate-enable OCW2).
func (pc *picController) rotateIfAuto() {
	if pc.lastIRQ >= 0 {
		pc.rotatePriority(uint8(pc.lastIRQ))
	}
}
