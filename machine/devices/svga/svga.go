// Package svga implements the CL-GD5446 PCI SVGA adapter: PCI config
// space, the VGA-core register banks (sequencer, graphics controller,
// CRTC, attribute controller), the DAC palette, 4 MiB of planar/linear
// video RAM, CRTC scanout timing and the per-mode rendering pipeline.
package svga

import (
	"sync"

	"example.com/pc430tx/machine/devices"
)

// Legacy VGA I/O ports. The CRTC and input-status-1 registers answer at
// 0x3D4-0x3DA when misc.ioAddrModeColor is set and at the 0x3B4-0x3BA
// mono-mode aliases when it is clear.
const (
	portAttrIndex  = 0x3C0
	portAttrData   = 0x3C1
	portMiscWrite  = 0x3C2
	portInputStat0 = 0x3C2
	portSeqIndex   = 0x3C4
	portSeqData    = 0x3C5
	portPixelMask  = 0x3C6
	portDACAddrR   = 0x3C7
	portDACAddrW   = 0x3C8
	portDACData    = 0x3C9
	portMiscRead   = 0x3CC
	portGrIndex    = 0x3CE
	portGrData     = 0x3CF
	portCRIndexC   = 0x3D4
	portCRDataC    = 0x3D5
	portInputStat1C = 0x3DA
	portCRIndexM   = 0x3B4
	portCRDataM    = 0x3B5
	portInputStat1M = 0x3BA
)

// SVGADevice is the top-level wiring of the register banks, DAC,
// video RAM and CRTC behind the legacy VGA port range plus the two
// PCI-programmable memory apertures.
type SVGADevice struct {
	lock sync.Mutex

	regs vgaRegs
	dac  dacDevice
	vram vramDevice
	crtc crtcState
	pci  pciRegs

	sink devices.VideoSink

	vclkRC   *devices.RateConverter
	frameBuf []byte
}

// NewSVGADevice creates an SVGA card pushing finished frames to sink
// (may be nil, in which case frames are computed and discarded).
func NewSVGADevice(sink devices.VideoSink) *SVGADevice {
	s := &SVGADevice{sink: sink}
	s.Reset()
	return s
}

func (s *SVGADevice) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.regs.reset()
	s.dac.reset()
	s.vram.reset()
	s.crtc = crtcState{}
	s.pci.reset()
	s.rebuildVCLK()
}

func (s *SVGADevice) NextEventCC() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.vclkRC.CyclesToNextTick()
}

func (s *SVGADevice) Clock(cc int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if dots := s.vclkRC.Convert(cc); dots > 0 {
		s.clockDots(dots)
	}
}

func (s *SVGADevice) EndIter() {}

// HandleIO dispatches the legacy VGA port range, honoring the misc
// register's color/mono CRTC address alias selection.
func (s *SVGADevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch port {
	case portCRIndexC, portCRDataC, portInputStat1C:
		if !s.regs.misc.ioAddrModeColor {
			return nil
		}
	case portCRIndexM, portCRDataM, portInputStat1M:
		if s.regs.misc.ioAddrModeColor {
			return nil
		}
	}

	switch port {
	case portAttrIndex, portAttrData:
		s.handleAR(port, direction, data)
	case portMiscWrite: // == portInputStat0; direction disambiguates
		if direction == devices.IODirectionOut {
			s.regs.misc.set(data[0])
			s.rebuildVCLK()
		} else {
			data[0] = 0 // input status 0: switch sense / CRT interrupt, unused
		}
	case portSeqIndex:
		if direction == devices.IODirectionOut {
			s.regs.srIndex = data[0]
		} else {
			data[0] = s.regs.srIndex
		}
	case portSeqData:
		s.handleSR(direction, data)
	case portPixelMask:
		if direction == devices.IODirectionOut {
			s.regs.hdr.writePixelMask(&s.regs, data[0])
		} else {
			data[0] = s.regs.hdr.readPixelMask(&s.regs)
		}
	case portDACAddrR:
		if direction == devices.IODirectionOut {
			s.regs.writeDACAddrR(data[0])
		}
	case portDACAddrW:
		if direction == devices.IODirectionOut {
			s.regs.writeDACAddrW(data[0])
		}
	case portDACData:
		if direction == devices.IODirectionOut {
			s.dac.writeData(&s.regs, data[0])
		} else {
			data[0] = s.dac.readData(&s.regs)
		}
	case portMiscRead:
		if direction == devices.IODirectionIn {
			data[0] = s.regs.misc.val
		}
	case portGrIndex:
		if direction == devices.IODirectionOut {
			s.regs.grIndex = data[0]
		} else {
			data[0] = s.regs.grIndex
		}
	case portGrData:
		s.handleGR(direction, data)
	case portCRIndexC, portCRIndexM:
		if direction == devices.IODirectionOut {
			s.regs.crIndex = data[0]
		} else {
			data[0] = s.regs.crIndex
		}
	case portCRDataC, portCRDataM:
		s.handleCR(direction, data)
	case portInputStat1C, portInputStat1M:
		if direction == devices.IODirectionIn {
			var v byte
			if s.crtc.vRetrace {
				v |= 0x08
			}
			if s.crtc.vBlank || s.crtc.hBlank {
				v |= 0x01
			}
			data[0] = v
			s.regs.AR.flipFlop = false // reading stat1 resets the AR flip-flop
		}
	}
	return nil
}

func (s *SVGADevice) handleAR(port uint16, direction uint8, data []byte) {
	if port == portAttrIndex {
		if direction == devices.IODirectionOut {
			if !s.regs.AR.flipFlop {
				s.regs.AR.index = data[0] & 0x3F
			} else {
				s.writeARData(data[0])
			}
			s.regs.AR.flipFlop = !s.regs.AR.flipFlop
		} else {
			data[0] = s.regs.AR.index
		}
		return
	}
	// portAttrData (0x3C1) always reads the currently indexed register.
	if direction == devices.IODirectionIn {
		data[0] = s.readARData()
	}
}

func (s *SVGADevice) writeARData(v byte) {
	idx := s.regs.AR.index
	switch {
	case idx < 0x10:
		s.regs.AR.palette[idx] = v & 0x3F
	case idx == 0x10:
		s.regs.AR.modeCtrl = v
	case idx == 0x11:
		s.regs.AR.overscan = v
	case idx == 0x12:
		s.regs.AR.planeEnable = v & 0x0F
	case idx == 0x13:
		s.regs.AR.pelPan = v & 0x0F
	case idx == 0x14:
		s.regs.AR.colorSelect = v & 0x0F
	}
}

func (s *SVGADevice) readARData() byte {
	idx := s.regs.AR.index
	switch {
	case idx < 0x10:
		return s.regs.AR.palette[idx]
	case idx == 0x10:
		return s.regs.AR.modeCtrl
	case idx == 0x11:
		return s.regs.AR.overscan
	case idx == 0x12:
		return s.regs.AR.planeEnable
	case idx == 0x13:
		return s.regs.AR.pelPan
	case idx == 0x14:
		return s.regs.AR.colorSelect
	}
	return 0
}

func (s *SVGADevice) handleSR(direction uint8, data []byte) {
	idx := s.regs.srIndex
	if direction == devices.IODirectionOut {
		v := data[0]
		switch idx {
		case 0x00:
			s.regs.SR.reset = v
		case 0x01:
			s.regs.SR.clockMode = v & 0x3D
			s.rebuildVCLK()
		case 0x02:
			s.regs.SR.planeMask = v & 0x0F
		case 0x03:
			s.regs.SR.charMapSel = v
		case 0x04:
			s.regs.SR.memMode = v & 0x0E
		case 0x17:
			s.regs.SR.mmioAddr = v&0x40 != 0
			s.regs.SR.mmioEnabled = v&0x04 != 0
		}
		return
	}
	switch idx {
	case 0x00:
		data[0] = s.regs.SR.reset
	case 0x01:
		data[0] = s.regs.SR.clockMode
	case 0x02:
		data[0] = s.regs.SR.planeMask
	case 0x03:
		data[0] = s.regs.SR.charMapSel
	case 0x04:
		data[0] = s.regs.SR.memMode
	default:
		data[0] = 0
	}
}

func (s *SVGADevice) handleGR(direction uint8, data []byte) {
	idx := s.regs.grIndex
	if direction == devices.IODirectionOut {
		v := data[0]
		switch idx {
		case 0x00:
			s.regs.GR.setReset = v & 0x0F
		case 0x01:
			s.regs.GR.enableSR = v & 0x0F
		case 0x02:
			s.regs.GR.colorCompare = v & 0x0F
		case 0x03:
			s.regs.GR.rotateCount = v & 0x07
			s.regs.GR.rotateFunc = (v >> 3) & 0x03
		case 0x04:
			s.regs.GR.readMapSel = v & 0x03
		case 0x05:
			s.regs.GR.writeMode = v & 0x03
			s.regs.GR.readMode1 = v&0x08 != 0
			s.regs.GR.oddEvenMode = v&0x10 != 0
			s.regs.GR.shiftReg1 = v&0x20 != 0
			s.regs.GR.color256 = v&0x40 != 0
		case 0x06:
			s.regs.GR.memMap = (v >> 2) & 0x03
		case 0x07:
			s.regs.GR.colorDontCare = v & 0x0F
		case 0x08:
			s.regs.GR.bitMask = v
		}
		return
	}
	switch idx {
	case 0x00:
		data[0] = s.regs.GR.setReset
	case 0x01:
		data[0] = s.regs.GR.enableSR
	case 0x02:
		data[0] = s.regs.GR.colorCompare
	case 0x03:
		data[0] = s.regs.GR.rotateCount | s.regs.GR.rotateFunc<<3
	case 0x04:
		data[0] = s.regs.GR.readMapSel
	case 0x05:
		data[0] = s.regs.GR.writeMode
	case 0x06:
		data[0] = s.regs.GR.memMap << 2
	case 0x07:
		data[0] = s.regs.GR.colorDontCare
	case 0x08:
		data[0] = s.regs.GR.bitMask
	}
}

func (s *SVGADevice) handleCR(direction uint8, data []byte) {
	idx := s.regs.crIndex
	if direction == devices.IODirectionOut {
		if idx < 8 && s.regs.CR.protect {
			return
		}
		v := data[0]
		if int(idx) < len(s.regs.CR.raw) {
			s.regs.CR.raw[idx] = v
		}
		switch idx {
		case 0x00:
			s.regs.CR.horizTotal = int(v)
		case 0x01:
			s.regs.CR.horizDispEnd = int(v)
		case 0x02:
			s.regs.CR.horizBlankStart = int(v)
		case 0x03:
			s.regs.CR.horizBlankEnd = int(v & 0x1F)
		case 0x04:
			s.regs.CR.horizRetraceStart = int(v)
		case 0x05:
			s.regs.CR.horizRetraceEnd = int(v & 0x1F)
		case 0x06:
			s.regs.CR.vertTotal = (s.regs.CR.vertTotal &^ 0xFF) | int(v)
		case 0x07:
			s.regs.CR.vertTotal = (s.regs.CR.vertTotal & 0xFF) | (int(v&0x01) << 8) | (int(v&0x20) << 4)
			s.regs.CR.vertDispEnd = (s.regs.CR.vertDispEnd & 0xFF) | (int(v&0x02) << 7) | (int(v&0x40) << 3)
			s.regs.CR.vertRetraceStart = (s.regs.CR.vertRetraceStart & 0xFF) | (int(v&0x04) << 6) | (int(v&0x80) << 2)
			s.regs.CR.vertBlankStart = (s.regs.CR.vertBlankStart & 0xFF) | (int(v&0x08) << 5)
		case 0x09:
			s.regs.CR.maxScanLine = int(v & 0x1F)
		case 0x0A:
			s.regs.CR.cursorStart = v
		case 0x0B:
			s.regs.CR.cursorEnd = v
		case 0x0C:
			s.regs.CR.startAddr = (s.regs.CR.startAddr &^ 0xFF00) | (int(v) << 8)
		case 0x0D:
			s.regs.CR.startAddr = (s.regs.CR.startAddr &^ 0x00FF) | int(v)
		case 0x11:
			s.regs.CR.vertRetraceEnd = int(v & 0x0F)
			s.regs.CR.protect = v&0x80 != 0
		case 0x12:
			s.regs.CR.vertDispEnd = (s.regs.CR.vertDispEnd &^ 0xFF) | int(v)
		case 0x13:
			s.regs.CR.offset = int(v)
		case 0x15:
			s.regs.CR.vertBlankStart = (s.regs.CR.vertBlankStart &^ 0xFF) | int(v)
		case 0x16:
			s.regs.CR.vertBlankEnd = int(v)
		case 0x17:
			s.regs.CR.timingEnabled = v&0x80 != 0
			s.regs.CR.byteWordMode = v&0x40 != 0
		}
		return
	}
	if int(idx) < len(s.regs.CR.raw) {
		data[0] = s.regs.CR.raw[idx]
	} else {
		data[0] = 0
	}
}

// ReadVGAWindow/WriteVGAWindow service the legacy 0xA0000-0xBFFFF
// memory-mapped window the machine's I/O decoder routes here whenever
// the current GR6 memory-map selection and address match.
func (s *SVGADevice) ReadVGAWindow(addr uint32) byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.regs.GR.color256 {
		// 256-color chain-4 mode aliases the legacy window directly
		// onto the low 64KB of the same flat VRAM the linear
		// framebuffer aperture addresses, rather than through the
		// plane-interleaved decode planar modes use: a real SVGA
		// card's linear aperture presents packed pixel bytes for this
		// mode, so the two views must agree byte-for-byte.
		return s.vram.ReadLinear(addr)
	}
	return s.vram.readPlanar(&s.regs, addr)
}

func (s *SVGADevice) WriteVGAWindow(addr uint32, b byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.regs.GR.color256 {
		s.vram.WriteLinear(addr, b)
		return
	}
	s.vram.writePlanar(&s.regs, addr, b)
}

// ReadLFB/WriteLFB service the PCI linear-framebuffer aperture
// (disp_mem_base_addr, a 4 MiB window addressing VRAM byte-for-byte).
func (s *SVGADevice) ReadLFB(addr uint32) byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.vram.ReadLinear(addr)
}

func (s *SVGADevice) WriteLFB(addr uint32, b byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.vram.WriteLinear(addr, b)
}

// MemDecodeEnabled/IODecodeEnabled expose the PCI command register's
// decode-enable bits to the machine's address-routing logic.
func (s *SVGADevice) MemDecodeEnabled() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pci.memDecodeEnabled()
}

func (s *SVGADevice) IODecodeEnabled() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pci.ioDecodeEnabled()
}

// LFBBase/MMIOBase expose the two programmed BAR addresses so the
// machine's memory router can test incoming addresses against them.
func (s *SVGADevice) LFBBase() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pci.dispMemBase
}

func (s *SVGADevice) MMIOBase() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pci.vgaBBBase
}
