package devices

import (
	"fmt"
	"sync"
)

// fdDrive holds per-drive media and head-position state. The media
// itself is a flat image the host attaches with InsertDisk; there is
// no write-back, matching a read-only boot floppy.
type fdDrive struct {
	image   []byte
	cyls    int
	heads   int
	spt     int
	present bool

	curCyl   int
	motorOn  bool
	seeking  bool
	seekLeft int64
	seekDest int
	recal    bool
}

// fdArgCounts gives the number of argument bytes that follow each
// command opcode (the command byte itself is not counted).
var fdArgCounts = map[byte]int{
	FDCmdSpecify:     2,
	FDCmdSenseIntr:   0,
	FDCmdRecalibrate: 1,
	FDCmdSeek:        2,
	FDCmdReadID:      1,
	FDCmdReadData:    8,
}

type fdPhase int

const (
	fdPhaseIdle fdPhase = iota
	fdPhaseArgs
	fdPhaseExec
	fdPhaseResult
)

// FloppyDevice implements the subset of the 82077AA's command set a
// BIOS and a real-mode boot sector exercise: SPECIFY, SENSE INTERRUPT
// STATUS, RECALIBRATE, SEEK, READ ID and DMA-driven READ DATA.
type FloppyDevice struct {
	lock sync.Mutex
	irq  InterruptRaiser
	dma  *DMADevice

	drives   [4]fdDrive
	dor      byte
	dsr      byte
	phase    fdPhase
	curCmd   byte
	cmdArgs  []byte
	argsWant int
	result   []byte
	resultPos int

	srt, hut, hlt byte
	nonDMA        bool

	intPending [4]bool // per-drive "seek/recalibrate ended, awaiting SENSE INTERRUPT STATUS"
	st0        [4]byte

	xfer struct {
		active    bool
		drive     int
		c, h, r, n byte
		eot       byte
		buf       [fdSectorSize]byte
		pos       int
		len       int
	}
}

// NewFloppyDevice creates a controller with drive 0 wired to dma
// channel 2 (the PIIX4's fixed floppy DMA assignment) and irq for
// IRQ6.
func NewFloppyDevice(irq InterruptRaiser, dma *DMADevice) *FloppyDevice {
	f := &FloppyDevice{irq: irq, dma: dma}
	f.Reset()
	dma.AttachRequester(FDDMAChannel, f)
	return f
}

// InsertDisk attaches a flat sector image to drive (0-3) with the given
// CHS geometry (a standard 1.44MB image is 80/2/18).
func (f *FloppyDevice) InsertDisk(drive int, image []byte, cyls, heads, sectorsPerTrack int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	d := &f.drives[drive]
	d.image = image
	d.cyls = cyls
	d.heads = heads
	d.spt = sectorsPerTrack
	d.present = true
}

func (f *FloppyDevice) Reset() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.dor = 0
	f.dsr = 2 // 250Kbps default
	f.phase = fdPhaseIdle
	f.cmdArgs = nil
	f.argsWant = 0
	f.result = nil
	f.resultPos = 0
	f.srt, f.hut, f.hlt = 0, 0, 0
	f.nonDMA = false
	for i := range f.drives {
		f.drives[i].curCyl = 0
		f.drives[i].seeking = false
		f.intPending[i] = false
	}
	f.xfer.active = false
}

func (f *FloppyDevice) NextEventCC() int64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	next := int64(1 << 62)
	for i := range f.drives {
		if f.drives[i].seeking && f.drives[i].seekLeft < next {
			next = f.drives[i].seekLeft
		}
	}
	return next
}

func (f *FloppyDevice) Clock(cc int64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for i := range f.drives {
		d := &f.drives[i]
		if !d.seeking {
			continue
		}
		d.seekLeft -= cc
		if d.seekLeft <= 0 {
			d.curCyl = d.seekDest
			d.seeking = false
			f.completeSeek(i)
		}
	}
}

func (f *FloppyDevice) EndIter() {}

// srtCycles converts the Step Rate Time nibble at the controller's
// current data rate into cycles, per the 82077AA's four data-rate
// timing tables.
func (f *FloppyDevice) srtCycles() int64 {
	var srtUs int
	switch f.dsr & 0x03 {
	case 0:
		srtUs = 16000 - 1000*int(f.srt)
	case 1:
		srtUs = int((26.7-float64(f.srt)*(26.7-1.67)/15)*1000 + 0.5)
	case 2:
		srtUs = 32000 - 2000*int(f.srt)
	case 3:
		srtUs = 8000 - 500*int(f.srt)
	}
	if srtUs < 1 {
		srtUs = 1
	}
	cc := ClockFreq * int64(srtUs) / 1_000_000
	if cc <= 0 {
		cc = 1
	}
	return cc
}

// startSeek begins a seek to destCyl, taking |Δcylinders| steps at one
// SRT interval each. SEEK and RECALIBRATE use it; READ DATA does not.
func (f *FloppyDevice) startSeek(drive int, destCyl int) {
	d := &f.drives[drive]
	delta := destCyl - d.curCyl
	if delta < 0 {
		delta = -delta
	}
	if delta == 0 {
		f.completeSeek(drive)
		return
	}
	d.seeking = true
	d.seekDest = destCyl
	d.seekLeft = f.srtCycles() * int64(delta)
}

func (f *FloppyDevice) completeSeek(drive int) {
	d := &f.drives[drive]
	st0 := byte(drive) & FDST0DriveSel
	st0 |= FDST0SeekEnd
	if d.recal && d.curCyl != 0 {
		st0 |= FDST0EquipCk
	}
	f.st0[drive] = st0
	d.recal = false
	f.intPending[drive] = true
	if f.irq != nil {
		f.irq.RaiseIRQ(IRQFloppy)
	}
}

func (f *FloppyDevice) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("FloppyDevice: I/O size %d not supported for port 0x%x", size, port)
	}

	val := byte(0)
	if direction == IODirectionOut {
		val = data[0]
	}

	switch port {
	case FDPortDOR:
		if direction == IODirectionOut {
			f.writeDOR(val)
		} else {
			data[0] = f.dor
		}
	case FDPortMSR: // DSR on write, MSR on read
		if direction == IODirectionOut {
			f.dsr = val & 0x03
		} else {
			data[0] = f.msr()
		}
	case FDPortFIFO:
		if direction == IODirectionOut {
			f.writeFIFO(val)
		} else {
			data[0] = f.readFIFO()
		}
	case FDPortDIR: // CCR on write, DIR on read
		if direction == IODirectionOut {
			// Low 2 bits select data rate, mirroring the DSR.
			f.dsr = val & 0x03
		} else {
			data[0] = 0 // disk-change line: no media-change tracking modeled
		}
	default:
		return fmt.Errorf("FloppyDevice: unhandled I/O to port 0x%x", port)
	}
	return nil
}

func (f *FloppyDevice) writeDOR(val byte) {
	wasReset := f.dor&FDDORReset == 0
	f.dor = val
	for i := 0; i < 4; i++ {
		f.drives[i].motorOn = val&(FDDORMotor0<<uint(i)) != 0
	}
	if wasReset && val&FDDORReset != 0 {
		// Reset line de-asserted: controller comes out of reset and
		// reports a polling interrupt per drive, same as real hardware
		// coming online.
		for i := 0; i < 4; i++ {
			f.st0[i] = byte(i) | FDST0ICReady
			f.intPending[i] = true
		}
		if f.irq != nil {
			f.irq.RaiseIRQ(IRQFloppy)
		}
	}
}

func (f *FloppyDevice) msr() byte {
	var m byte = FDMSRRQM
	switch f.phase {
	case fdPhaseResult:
		m |= FDMSRDIO | FDMSRCmdBusy
	case fdPhaseArgs, fdPhaseExec:
		m |= FDMSRCmdBusy
	}
	for i := range f.drives {
		if f.drives[i].seeking {
			m |= 1 << uint(i)
		}
	}
	return m
}

func (f *FloppyDevice) writeFIFO(val byte) {
	switch f.phase {
	case fdPhaseIdle:
		cmd := val & 0x1F
		n, known := fdArgCounts[cmd]
		if !known {
			f.st0[0] = FDST0ICInvalid
			f.result = []byte{FDST0ICInvalid}
			f.resultPos = 0
			f.phase = fdPhaseResult
			return
		}
		f.curCmd = cmd
		f.cmdArgs = f.cmdArgs[:0]
		f.argsWant = n
		if n == 0 {
			f.execute()
		} else {
			f.phase = fdPhaseArgs
		}
	case fdPhaseArgs:
		f.cmdArgs = append(f.cmdArgs, val)
		if len(f.cmdArgs) >= f.argsWant {
			f.execute()
		}
	default:
		// Ignore writes while busy executing or delivering a result.
	}
}

func (f *FloppyDevice) readFIFO() byte {
	if f.phase != fdPhaseResult || f.resultPos >= len(f.result) {
		return 0
	}
	b := f.result[f.resultPos]
	f.resultPos++
	if f.resultPos >= len(f.result) {
		f.phase = fdPhaseIdle
		f.result = nil
		// Reading the last result byte is what a real 82077AA's host
		// interface treats as acknowledging the command: INT drops here,
		// re-arming the edge for the next RaiseIRQ (SENSE INTERRUPT
		// STATUS result read for RECALIBRATE/SEEK, or the READ ID / READ
		// DATA result phase itself).
		if f.irq != nil {
			f.irq.LowerIRQ(IRQFloppy)
		}
	}
	return b
}

func (f *FloppyDevice) execute() {
	switch f.curCmd {
	case FDCmdSpecify:
		f.srt = f.cmdArgs[0] >> 4
		f.hut = f.cmdArgs[0] & 0x0F
		f.hlt = f.cmdArgs[1] >> 1
		f.nonDMA = f.cmdArgs[1]&0x01 != 0
		f.phase = fdPhaseIdle
	case FDCmdSenseIntr:
		drive := f.firstPendingInterrupt()
		if drive < 0 {
			f.result = []byte{FDST0ICInvalid}
		} else {
			f.intPending[drive] = false
			f.result = []byte{f.st0[drive], byte(f.drives[drive].curCyl)}
		}
		f.resultPos = 0
		f.phase = fdPhaseResult
	case FDCmdRecalibrate:
		drive := int(f.cmdArgs[0] & 0x03)
		f.drives[drive].recal = true
		f.startSeek(drive, 0)
		f.phase = fdPhaseIdle
	case FDCmdSeek:
		drive := int(f.cmdArgs[0] & 0x03)
		f.startSeek(drive, int(f.cmdArgs[1]))
		f.phase = fdPhaseIdle
	case FDCmdReadID:
		f.execReadID()
	case FDCmdReadData:
		f.execReadData()
	default:
		f.result = []byte{FDST0ICInvalid}
		f.resultPos = 0
		f.phase = fdPhaseResult
	}
}

func (f *FloppyDevice) firstPendingInterrupt() int {
	for i := range f.intPending {
		if f.intPending[i] {
			return i
		}
	}
	return -1
}

func (f *FloppyDevice) execReadID() {
	drive := int(f.cmdArgs[0] & 0x03)
	head := (f.cmdArgs[0] >> 2) & 0x01
	d := &f.drives[drive]
	st0 := byte(drive) | (head << 2)
	f.result = []byte{st0, 0, 0, byte(d.curCyl), head, 1, 2}
	f.resultPos = 0
	f.phase = fdPhaseResult
	if f.irq != nil {
		f.irq.RaiseIRQ(IRQFloppy)
	}
}

func (f *FloppyDevice) execReadData() {
	drive := int(f.cmdArgs[0] & 0x03)
	c := f.cmdArgs[1]
	h := f.cmdArgs[2]
	r := f.cmdArgs[3]
	n := f.cmdArgs[4]
	eot := f.cmdArgs[5]

	d := &f.drives[drive]
	if !d.present {
		f.result = []byte{FDST0ICAbnormal | byte(drive), 0x01, 0, c, h, r, n}
		f.resultPos = 0
		f.phase = fdPhaseResult
		return
	}

	offset := ((int(c)*d.heads + int(h)) * d.spt + (int(r) - 1)) * fdSectorSize
	if offset+fdSectorSize > len(d.image) {
		f.result = []byte{FDST0ICAbnormal | byte(drive), 0x04, 0, c, h, r, n}
		f.resultPos = 0
		f.phase = fdPhaseResult
		return
	}
	copy(f.xfer.buf[:], d.image[offset:offset+fdSectorSize])

	f.xfer.active = true
	f.xfer.drive = drive
	f.xfer.c, f.xfer.h, f.xfer.r, f.xfer.n = c, h, r, n
	f.xfer.eot = eot
	f.xfer.pos = 0
	f.xfer.len = fdSectorSize

	f.phase = fdPhaseExec
	f.dma.SetDREQ(FDDMAChannel, true)
}

// DMAReadByte is called by the DMA controller servicing channel 2 to
// pull the next sector byte off the disk.
func (f *FloppyDevice) DMAReadByte(channel int) (byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if !f.xfer.active || f.xfer.pos >= f.xfer.len {
		return 0, fmt.Errorf("FloppyDevice: DMA read with no active transfer")
	}
	b := f.xfer.buf[f.xfer.pos]
	f.xfer.pos++
	if f.xfer.pos >= f.xfer.len {
		f.advanceSector()
	}
	return b, nil
}

func (f *FloppyDevice) DMAWriteByte(channel int, b byte) error {
	return fmt.Errorf("FloppyDevice: write transfers not supported")
}

// advanceSector loads the next sector in the current track into the
// transfer buffer once the host has consumed the current one, per the
// MT/EOT multi-sector read semantics, or marks the transfer idle if
// past the requested end-of-track sector.
func (f *FloppyDevice) advanceSector() {
	d := &f.drives[f.xfer.drive]
	if int(f.xfer.r) >= int(f.xfer.eot) {
		return
	}
	f.xfer.r++
	offset := ((int(f.xfer.c)*d.heads + int(f.xfer.h)) * d.spt + (int(f.xfer.r) - 1)) * fdSectorSize
	if offset+fdSectorSize > len(d.image) {
		return
	}
	copy(f.xfer.buf[:], d.image[offset:offset+fdSectorSize])
	f.xfer.pos = 0
}

// DMATerminalCount is called by the DMA controller when the host's
// programmed byte count is exhausted, ending the READ DATA command.
func (f *FloppyDevice) DMATerminalCount(channel int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.xfer.active = false
	f.dma.SetDREQ(FDDMAChannel, false)

	drive := f.xfer.drive
	st0 := byte(drive) | FDST0ICNormal
	f.result = []byte{
		st0, 0, 0,
		f.xfer.c, f.xfer.h, f.xfer.r, f.xfer.n,
	}
	f.resultPos = 0
	f.phase = fdPhaseResult
	if f.irq != nil {
		f.irq.RaiseIRQ(IRQFloppy)
	}
}
