// Package devices implements the chipset peripherals wired onto the
// machine's port I/O bus: DMA, interrupt control, timers, RTC, PS/2,
// floppy and the PCI sound/video functions living in the sb16 and svga
// subpackages.
package devices

import "time"

// IODirection selects which way a port access goes on HandleIO.
const (
	IODirectionIn  uint8 = 0 // Reading from the device
	IODirectionOut uint8 = 1 // Writing to the device
)

// PioDevice is implemented by anything that answers port I/O.
type PioDevice interface {
	HandleIO(port uint16, direction uint8, size uint8, data []byte) error
}

// InterruptRaiser is the narrow capability devices need to drive an IRQ
// line. Satisfied by *PICDevice.
type InterruptRaiser interface {
	RaiseIRQ(irqLine uint8)
	LowerIRQ(irqLine uint8)
}

// Scheduled is implemented by every device the machine clocks each
// iteration: it reports how many cycles until it next needs attention,
// is stepped by Clock as the CPU core runs, and latches the iteration's
// side effects (interrupts, DMA requests) at EndIter.
type Scheduled interface {
	NextEventCC() int64
	Clock(cc int64)
	EndIter()
	Reset()
}

// DMARequester is implemented by devices that move data through the
// 8237 controllers (floppy, SB16 DSP). The DMA controller calls
// DMAReadByte/DMAWriteByte on the peripheral's behalf once per cycle it
// services the channel.
type DMARequester interface {
	DMAReadByte(channel int) (byte, error)
	DMAWriteByte(channel int, b byte) error
	DMATerminalCount(channel int)
}

// TimeSource supplies the RTC's initial date/time at reset. The host
// wall clock is an external collaborator; this is the narrow interface
// it satisfies. After seeding, the RTC advances its own date/time
// purely from emulated cycles, never consulting this interface again,
// so playback stays deterministic.
type TimeSource interface {
	Now() time.Time
}

// AudioSink receives finished stereo sample pairs from the speaker and
// SB16 mixer. The actual playback device is an external collaborator;
// this is the narrow interface it implements.
type AudioSink interface {
	PushSample(left, right int16)
}

// CDAudioSource is the narrow facade the SB16 mixer reads CD-audio
// input through. The real IDE/CD-ROM subsystem is out of scope; a
// no-op default (silence) satisfies it when no CD-ROM is attached.
type CDAudioSource interface {
	ReadSample() (left, right int16)
}

// MemoryBus is the narrow capability the DMA controller needs into
// guest physical memory. Guest memory itself is owned by the external
// CPU core/VMM, not this repository; this interface is what stands in
// for it.
type MemoryBus interface {
	ReadPhys(addr uint32) byte
	WritePhys(addr uint32, b byte)
}

// VideoSink receives finished frames from the SVGA renderer at each
// vertical-display-end. The actual display surface is an external
// collaborator; width/height/stride describe the RGBA8888 buf passed
// in, which the sink must copy before returning if it needs to retain
// it (the renderer reuses its backing array).
type VideoSink interface {
	PushFrame(buf []byte, width, height, stride int)
}
