// Package machine wires the scheduler, the external CPU core and the
// chipset device registry (machine/devices) into a runnable 430TX/PIIX4
// class machine.
package machine

import "example.com/pc430tx/machine/devices"

// ClockFreq is the CPU core clock rate in Hz the whole chipset's cycle
// counters (the Device.NextEventCC/Clock/EndIter protocol) are derived
// from. It is the same master rate devices.RateConverter uses to derive
// every device-local clock, re-exported here so machine-level code
// never has to reach into the devices package just for the constant.
const ClockFreq = devices.ClockFreq

// CCPerInst is the fixed number of clock cycles the scheduler charges
// per CPU instruction when no real cycle-accurate CPU core is plugged
// in. A real CPUCore is free to report however many cycles an
// instruction actually took; the stub core in cpucore.go charges this
// per quantum, and Iter charges it for any quantum a core reports as
// consuming no cycles.
const CCPerInst int64 = 4

// Device is the scheduling contract every chipset peripheral
// implements. Each iteration the scheduler asks every device how many
// cycles it can run before it needs attention, picks the smallest
// answer as NextEventCC, lets the CPU core run that many cycles, then
// gives every device a Clock call describing how many cycles actually
// elapsed before finally calling EndIter so the device can latch
// whatever it computed (raise an IRQ, request DMA, emit a sample) once
// per iteration rather than on every intermediate Clock call.
//
// Every devices.Scheduled implementation (*devices.PICDevice,
// *devices.DMADevice, and the rest of the chipset) satisfies this
// interface structurally without either package importing the other's
// interface type.
type Device interface {
	NextEventCC() int64
	Clock(cc int64)
	EndIter()
	Reset()
}

// InterruptController is the narrow capability the scheduler needs out
// of the interrupt controller to drive the master-OUT -> CPU-INTR edge
// spec.md §2/§4.3 assigns to it: "the master's OUT drives the CPU's
// INTR pin". *devices.PICDevice satisfies this structurally.
type InterruptController interface {
	HasPendingInterrupts() bool
	GetInterruptVector() (uint8, bool)
}

// Scheduler drives the fixed-order device sweep described by the
// original machine's main iteration loop: compute the smallest
// NextEventCC across every device, run the CPU core for that many
// cycles, clock every device by the amount actually consumed, let every
// device close out its iteration, then deliver whatever the interrupt
// controller now has pending.
type Scheduler struct {
	devices []Device
	cpu     CPUCore
	pic     InterruptController

	// Clock is the number of cycles elapsed in the current iteration,
	// reset to 0 at the top of every pass through Iter's outer loop.
	Clock int64
	// NextEventCC is the cycle budget computed for the current
	// iteration: the CPU core runs until Clock >= NextEventCC.
	NextEventCC int64
}

// NewScheduler creates a scheduler over the given CPU core, interrupt
// controller and device list. Device order matters only for EndIter
// fan-out determinism (matching the original's fixed call order), not
// for correctness. pic may be nil for callers that only want to
// exercise devices with no interrupt delivery (e.g. a bare device unit
// test); a nil pic simply skips the delivery step below.
func NewScheduler(cpu CPUCore, pic InterruptController, devices []Device) *Scheduler {
	return &Scheduler{cpu: cpu, pic: pic, devices: devices}
}

// Reset resets the CPU core and every registered device.
func (s *Scheduler) Reset() {
	s.Clock = 0
	s.NextEventCC = 0
	s.cpu.Reset()
	for _, d := range s.devices {
		d.Reset()
	}
}

// Iter runs the machine for up to cc cycles, stopping early only if the
// CPU core reports it halted. It returns the number of cycles actually
// consumed.
func (s *Scheduler) Iter(cc int64) int64 {
	ccRemain := cc
	var ccTotal int64

	for ccRemain > 0 {
		nextEvent := ccRemain
		for _, d := range s.devices {
			if tmp := d.NextEventCC(); tmp < nextEvent {
				nextEvent = tmp
			}
		}
		if nextEvent <= 0 {
			nextEvent = 1
		}
		s.NextEventCC = nextEvent
		s.Clock = 0

		for s.Clock < s.NextEventCC {
			consumed, halted := s.cpu.RunQuantum(s.NextEventCC - s.Clock)
			if consumed <= 0 {
				consumed = CCPerInst
			}
			s.Clock += consumed
			for _, d := range s.devices {
				d.Clock(consumed)
			}
			if halted {
				break
			}
		}

		for _, d := range s.devices {
			d.EndIter()
		}

		if s.pic != nil {
			for s.pic.HasPendingInterrupts() {
				vector, ok := s.pic.GetInterruptVector()
				if !ok {
					break
				}
				s.cpu.DeliverInterrupt(vector)
			}
		}

		ccTotal += s.Clock
		ccRemain -= s.Clock
		s.Clock = 0
	}
	return ccTotal
}
