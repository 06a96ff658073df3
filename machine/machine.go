package machine

import (
	"example.com/pc430tx/machine/devices"
	"example.com/pc430tx/machine/devices/sb16"
	"example.com/pc430tx/machine/devices/svga"
)

// ResetControlPort is the PIIX4 reset-control register; a write with
// bit 2 rising triggers a hard reset of every chipset device (the CPU
// core itself is reset last).
const ResetControlPort uint16 = 0xCF9

// PCIConfigAddrPort/PCIConfigDataPort are the 0xCF8/0xCFC
// configuration-mechanism-1 ports. The host bridge and its address
// decode into individual PCI functions' config spaces are an external
// collaborator; this machine forwards every enabled configuration
// access to the SVGA function, the only PCI device in scope here,
// without decoding the bus, device or function fields.
const (
	PCIConfigAddrPort uint16 = 0xCF8
	PCIConfigDataPort uint16 = 0xCFC
)

// Machine wires the scheduler, the I/O port bus, every chipset device
// and the external CPU core into a runnable 430TX/PIIX4 class machine.
type Machine struct {
	bus       *devices.IOBus
	scheduler *Scheduler

	dma     *devices.DMADevice
	pic     *devices.PICDevice
	pit     *devices.PITDevice
	pmtimer *devices.PMTimerDevice
	speaker *devices.SpeakerDevice
	rtc     *devices.RTCDevice
	ps2     *devices.PS2Controller
	kbd     *devices.PS2Keyboard
	mouse   *devices.PS2Mouse
	floppy  *devices.FloppyDevice
	sb16    *sb16.SB16Device
	svga    *svga.SVGADevice

	cpu CPUCore

	pciConfigAddr uint32
	resetLastBit2 bool
}

// Config bundles the external collaborators a Machine needs at
// construction time: guest memory, the CPU core, the wall clock and
// the audio/video/CD-ROM front-end facades. Any of the optional
// sinks/sources may be nil.
type Config struct {
	Memory  devices.MemoryBus
	CPU     CPUCore
	Clock   devices.TimeSource
	Audio   devices.AudioSink
	Video   devices.VideoSink
	CDAudio devices.CDAudioSource

	SB16Base uint16 // defaults to 0x220
}

// NewMachine constructs and wires every chipset device, registers the
// full I/O port map, and builds the scheduler's per-iteration device
// sweep in the documented end_iter order: timers, PMTimer, RTC, DMA,
// PS/2, floppy, speaker, SB16, then SVGA's own dot-clock pacing.
func NewMachine(cfg Config) *Machine {
	base := cfg.SB16Base
	if base == 0 {
		base = 0x220
	}

	m := &Machine{bus: devices.NewIOBus(), cpu: cfg.CPU}

	m.pic = devices.NewPICDevice()
	m.dma = devices.NewDMADevice(cfg.Memory)
	m.pit = devices.NewPITDevice(m.pic)
	m.pmtimer = devices.NewPMTimerDevice()
	m.speaker = devices.NewSpeakerDevice(m.pit, cfg.Audio)
	m.rtc = devices.NewRTCDevice(m.pic, cfg.Clock)
	m.kbd = devices.NewPS2Keyboard()
	m.mouse = devices.NewPS2Mouse()
	m.ps2 = devices.NewPS2Controller(m.pic, m.kbd, m.mouse)
	m.floppy = devices.NewFloppyDevice(m.pic, m.dma)
	m.sb16 = sb16.NewSB16Device(base, m.pic, m.dma, cfg.Audio, cfg.CDAudio)
	m.svga = svga.NewSVGADevice(cfg.Video)

	m.registerPorts(base)

	// end_iter sweep order: timers -> PMTimer -> RTC -> DMA -> PS/2 ->
	// floppy -> speaker -> SB16 -> SVGA's dot-clock pacing. The IDE and
	// PCI-bus-clock devices the original sweep also names are external
	// collaborators out of this repository's scope.
	m.scheduler = NewScheduler(m.cpu, m.pic, []Device{
		m.pit,
		m.pmtimer,
		m.rtc,
		m.dma,
		m.ps2,
		m.floppy,
		m.speaker,
		m.sb16,
		m.svga,
	})

	return m
}

func (m *Machine) registerPorts(sb16Base uint16) {
	m.bus.RegisterDevice(0x00, 0x0F, m.dma)
	m.bus.RegisterDevice(0x80, 0x8F, m.dma)
	m.bus.RegisterDevice(0xC0, 0xDF, m.dma)

	m.bus.RegisterDevice(devices.PICMasterCmdPort, devices.PICMasterCmdPort+1, m.pic)
	m.bus.RegisterDevice(devices.PICSlaveCmdPort, devices.PICSlaveCmdPort+1, m.pic)
	m.bus.RegisterDevice(devices.ELCR0Port, devices.ELCR1Port, m.pic)

	m.bus.RegisterDevice(devices.PITCounter0, devices.PITCommand, m.pit)
	m.bus.RegisterDevice(devices.Port61, devices.Port61, m.speaker)
	m.bus.RegisterDevice(devices.PMTimerPort, devices.PMTimerPort+3, m.pmtimer)

	m.bus.RegisterDevice(devices.RTCPortIndex, devices.RTCPortData, m.rtc)

	m.bus.RegisterDevice(devices.PS2PortData, devices.PS2PortData, m.ps2)
	m.bus.RegisterDevice(devices.PS2PortStatus, devices.PS2PortStatus, m.ps2)

	m.bus.RegisterDevice(devices.FDPortDOR, devices.FDPortDOR, m.floppy)
	m.bus.RegisterDevice(devices.FDPortMSR, devices.FDPortFIFO, m.floppy)
	m.bus.RegisterDevice(devices.FDPortDIR, devices.FDPortDIR, m.floppy)

	m.bus.RegisterDevice(sb16Base, sb16Base+0x0F, m.sb16)
	m.bus.RegisterDevice(sb16.BaseFMAddr, sb16.BaseFMData, m.sb16)

	m.bus.RegisterDevice(0x3B4, 0x3BA, m.svga)
	m.bus.RegisterDevice(0x3C0, 0x3CF, m.svga)
	m.bus.RegisterDevice(0x3D4, 0x3DA, m.svga)
}

// HandleIO is the single entry point the external CPU core drives port
// accesses through; it multiplexes the reset-control and PCI
// configuration-mechanism-1 ports (which answer across the whole
// chipset rather than one device) ahead of the per-device bus.
func (m *Machine) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	switch port {
	case ResetControlPort:
		return m.handleResetControl(direction, data)
	case PCIConfigAddrPort:
		return m.handlePCIConfigAddr(direction, data)
	case PCIConfigDataPort, PCIConfigDataPort + 1, PCIConfigDataPort + 2, PCIConfigDataPort + 3:
		return m.handlePCIConfigData(port, direction, data)
	}
	return m.bus.HandleIO(port, direction, size, data)
}

func (m *Machine) handleResetControl(direction uint8, data []byte) error {
	if direction != devices.IODirectionOut {
		data[0] = 0
		return nil
	}
	bit2 := data[0]&0x04 != 0
	if bit2 && !m.resetLastBit2 {
		m.HardReset()
	}
	m.resetLastBit2 = bit2
	return nil
}

// HardReset implements the documented port-0xCF9 reset order: DMA,
// floppy, interrupt controller, (the I/O decoder and memory controller
// are external collaborators with no reset state of their own), PS/2,
// timers, speaker, SB16, SVGA, then the CPU core last. PMTimer and RTC
// retain their state across a hard reset, per spec.
func (m *Machine) HardReset() {
	m.dma.Reset()
	m.floppy.Reset()
	m.pic.Reset()
	m.ps2.Reset()
	m.pit.Reset()
	m.speaker.Reset()
	m.sb16.Reset()
	m.svga.Reset()
	m.cpu.Reset()
}

// handlePCIConfigAddr latches the 0xCF8 config address; while its
// enable bit (31) is set, 0xCFC accesses reach the SVGA card (the sole
// PCI device in scope) whatever bus, device and function it names.
func (m *Machine) handlePCIConfigAddr(direction uint8, data []byte) error {
	if direction == devices.IODirectionOut {
		m.pciConfigAddr = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
		return nil
	}
	data[0] = byte(m.pciConfigAddr)
	data[1] = byte(m.pciConfigAddr >> 8)
	data[2] = byte(m.pciConfigAddr >> 16)
	data[3] = byte(m.pciConfigAddr >> 24)
	return nil
}

func (m *Machine) handlePCIConfigData(port uint16, direction uint8, data []byte) error {
	if m.pciConfigAddr&0x80000000 == 0 {
		return nil
	}
	reg := uint8((m.pciConfigAddr & 0xFC) >> 2)
	byteOffset := uint(port - PCIConfigDataPort)

	if direction == devices.IODirectionOut {
		v := m.svga.ReadConfig32(reg)
		shift := byteOffset * 8
		mask := uint32(0xFF) << shift
		v = (v &^ mask) | uint32(data[0])<<shift
		m.svga.WriteConfig32(reg, v)
		return nil
	}
	v := m.svga.ReadConfig32(reg)
	data[0] = byte(v >> (byteOffset * 8))
	return nil
}

// Reset resets every device through the scheduler's own (end_iter
// order) sweep, used for a fresh power-on rather than a guest-issued
// 0xCF9 hard reset.
func (m *Machine) Reset() {
	m.scheduler.Reset()
}

// Iter runs the machine for up to cc cycles and returns the number of
// cycles actually consumed.
func (m *Machine) Iter(cc int64) int64 {
	return m.scheduler.Iter(cc)
}

// InsertFloppy loads a disk image into the given drive (0-3).
func (m *Machine) InsertFloppy(drive int, image []byte, cyls, heads, sectorsPerTrack int) {
	m.floppy.InsertDisk(drive, image, cyls, heads, sectorsPerTrack)
}

// PressKey/ReleaseKey/MoveMouse forward host input events into the
// PS/2 subsystem.
func (m *Machine) PressKey(code byte)   { m.kbd.PressKey(code) }
func (m *Machine) ReleaseKey(code byte) { m.kbd.ReleaseKey(code) }
func (m *Machine) MoveMouse(dx, dy int, buttons byte) {
	m.mouse.MoveMouse(dx, dy, buttons)
}
