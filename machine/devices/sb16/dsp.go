package sb16

import (
	"fmt"
	"log"
	"sync"

	"example.com/pc430tx/machine/devices"
)

type dspPhase int

const (
	dspPhaseIdle dspPhase = iota
	dspPhaseArgs
)

const (
	dma8None = iota
	dma8Single
	dma8AutoInit
	dma8AutoInitFinish
)

// dmaRunState tracks one of the DSP's two independent DMA output
// paths (8-bit on channel 1, 16-bit on channel 5): which mode it's
// running in, how many bytes remain in the current/initial block, and
// whether it's paused or carrying a pending completion IRQ.
type dmaRunState struct {
	mode       int
	count      int
	initCount  int
	paused     bool
	pendingIRQ bool
	haveLeft   bool
	leftByte   byte
}

// sampleFormat describes how raw DMA bytes decode into PCM samples for
// one of the two DMA paths.
type sampleFormat struct {
	bits16 bool
	signed bool
	stereo bool
	rate   int64
}

// adpcmState carries the Creative ADPCM-8-to-4 decoder's adaptive step
// and running value across nibbles.
type adpcmState struct {
	step    int
	current int16
	started bool
}

// DSPDevice implements the Sound Blaster DSP command processor: the
// command/argument input FSM, the 8-bit and 16-bit auto-init DMA output
// paths (each independently resampled to 44.1kHz via a fractional-
// position rate converter into a render ring of at most AudioBufferSize
// samples; output arriving while the ring is full is dropped, and DREQ
// is not released for it), and Creative ADPCM-8-to-4 decoding.
type DSPDevice struct {
	lock sync.Mutex
	irq  devices.InterruptRaiser
	dma  *devices.DMADevice

	phase    dspPhase
	cmd      byte
	args     []byte
	argsWant int
	outFifo  []byte

	timeConstant byte
	fmt8         sampleFormat
	fmt16        sampleFormat
	blockSize    uint16

	dma8  dmaRunState
	dma16 dmaRunState
	rc8   *devices.RateConverter
	rc16  *devices.RateConverter

	adpcm       adpcmState
	adpcmActive bool

	ringL, ringR []int16

	testReg        byte
	speakerEnabled bool
}

func NewDSPDevice(irq devices.InterruptRaiser, dma *devices.DMADevice) *DSPDevice {
	d := &DSPDevice{irq: irq, dma: dma}
	d.Reset()
	dma.AttachRequester(DMA8Channel, d)
	dma.AttachRequester(DMA16Channel, d)
	return d
}

func (d *DSPDevice) Reset() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.phase = dspPhaseIdle
	d.args = nil
	d.argsWant = 0
	d.outFifo = nil
	d.timeConstant = 0
	d.fmt8 = sampleFormat{rate: 22050}
	d.fmt16 = sampleFormat{bits16: true, signed: true, rate: 44100}
	d.blockSize = 0
	d.dma8 = dmaRunState{}
	d.dma16 = dmaRunState{}
	d.rc8 = devices.NewRateConverter(d.fmt8.rate, 44100)
	d.rc16 = devices.NewRateConverter(d.fmt16.rate, 44100)
	d.adpcm = adpcmState{}
	d.adpcmActive = false
	d.ringL = nil
	d.ringR = nil
	d.testReg = 0
	d.speakerEnabled = false
}

// WriteCommand handles a byte written to the DSP write port (command
// while idle, argument while collecting one).
func (d *DSPDevice) WriteCommand(val byte) {
	d.lock.Lock()
	defer d.lock.Unlock()

	switch d.phase {
	case dspPhaseIdle:
		if n, ok := dspCmdArgCount[val]; ok {
			d.cmd = val
			d.args = d.args[:0]
			d.argsWant = n
			if n == 0 {
				d.execute()
			} else {
				d.phase = dspPhaseArgs
			}
			return
		}
		if val >= 0xB0 && val <= 0xBF || val >= 0xC0 && val <= 0xCF {
			d.cmd = val
			d.args = d.args[:0]
			d.argsWant = 3
			d.phase = dspPhaseArgs
			return
		}
		// Unrecognized command: warn and drop, per the recoverable-error
		// table (unsupported DSP commands are otherwise fatal only when
		// they reach a command this emulation claims to support).
		log.Printf("sb16: unsupported DSP command 0x%02x ignored", val)
	case dspPhaseArgs:
		d.args = append(d.args, val)
		if len(d.args) >= d.argsWant {
			d.execute()
		}
	}
}

// ReadData pops the next byte from the DSP's 4-byte output FIFO (used
// for identification/version/test-register responses).
func (d *DSPDevice) ReadData() byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.outFifo) == 0 {
		return 0
	}
	b := d.outFifo[0]
	d.outFifo = d.outFifo[1:]
	return b
}

// PushReadyByte queues the reset-acknowledge byte (0xAA) the DSP
// produces after a reset pulse.
func (d *DSPDevice) PushReadyByte(b byte) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.outFifo = append(d.outFifo, b)
}

func (d *DSPDevice) DataAvailable() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.outFifo) > 0
}

func (d *DSPDevice) execute() {
	d.phase = dspPhaseIdle
	switch {
	case d.cmd == dspCmdDMA8Single:
		d.startDMA8(dma8Single, d.args)
	case d.cmd == dspCmdDMA8AutoInit:
		d.startDMA8(dma8AutoInit, d.args)
	case d.cmd == dspCmdSetTimeConst:
		d.timeConstant = d.args[0]
		hz := 1_000_000 / (256 - int64(d.timeConstant))
		d.fmt8.rate = hz
		d.rc8 = devices.NewRateConverter(hz, 44100)
	case d.cmd == dspCmdSetOutRate:
		d.fmt16.rate = int64(d.args[0])<<8 | int64(d.args[1])
		d.rc16 = devices.NewRateConverter(d.fmt16.rate, 44100)
	case d.cmd == dspCmdSetInRate:
		// Recording path out of scope; accepted and stored only.
	case d.cmd == dspCmdSetBlockSize:
		d.blockSize = uint16(d.args[0]) | uint16(d.args[1])<<8
	case d.cmd == dspCmdADPCM4:
		d.startADPCM(d.args, false)
	case d.cmd == dspCmdADPCM4Ref:
		d.startADPCM(d.args, true)
	case d.cmd == dspCmdPauseDMA8:
		d.dma8.paused = true
	case d.cmd == dspCmdContinueDMA8:
		d.dma8.paused = false
	case d.cmd == dspCmdPauseDMA16:
		d.dma16.paused = true
	case d.cmd == dspCmdContinueDMA16:
		d.dma16.paused = false
	case d.cmd == dspCmdExitDMA8:
		d.dma8.mode = dma8AutoInitFinish
	case d.cmd == dspCmdExitDMA16:
		d.dma16.mode = dma8AutoInitFinish
	case d.cmd == dspCmdSpeakerOn:
		d.speakerEnabled = true
	case d.cmd == dspCmdSpeakerOff:
		d.speakerEnabled = false
	case d.cmd == dspCmdIdentify:
		d.outFifo = append(d.outFifo, ^d.args[0])
	case d.cmd == dspCmdVersion:
		d.outFifo = append(d.outFifo, 4, 4)
	case d.cmd == dspCmdWriteTest:
		d.testReg = d.args[0]
	case d.cmd == dspCmdReadTest:
		d.outFifo = append(d.outFifo, d.testReg)
	case d.cmd == dspCmdIRQRequest8:
		if d.irq != nil {
			d.irq.RaiseIRQ(SBIRQLine)
		}
	case d.cmd >= 0xC0 && d.cmd <= 0xCF:
		d.startDMA8FromFormatByte(d.cmd, d.args)
	case d.cmd >= 0xB0 && d.cmd <= 0xBF:
		d.startDMA16FromFormatByte(d.cmd, d.args)
	}
}

func (d *DSPDevice) startDMA8(mode int, args []byte) {
	count := (int(args[0]) | int(args[1])<<8) + 1
	d.dma8.mode = mode
	d.dma8.count = count
	d.dma8.initCount = count
	d.adpcmActive = false
	d.dma.SetDREQ(DMA8Channel, true)
}

func (d *DSPDevice) startDMA8FromFormatByte(cmd byte, args []byte) {
	fb := args[0]
	d.fmt8.stereo = fb&0x20 != 0
	d.fmt8.signed = fb&0x10 != 0
	d.fmt8.bits16 = false
	count := (int(args[1]) | int(args[2])<<8) + 1
	mode := dma8Single
	if cmd&0x04 != 0 {
		mode = dma8AutoInit
	}
	d.dma8.mode = mode
	d.dma8.count = count
	d.dma8.initCount = count
	d.adpcmActive = false
	d.dma.SetDREQ(DMA8Channel, true)
}

func (d *DSPDevice) startDMA16FromFormatByte(cmd byte, args []byte) {
	fb := args[0]
	d.fmt16.stereo = fb&0x20 != 0
	d.fmt16.signed = fb&0x10 != 0
	d.fmt16.bits16 = true
	count := (int(args[1]) | int(args[2])<<8) + 1
	mode := dma8Single
	if cmd&0x04 != 0 {
		mode = dma8AutoInit
	}
	d.dma16.mode = mode
	d.dma16.count = count
	d.dma16.initCount = count
	d.dma.SetDREQ(DMA16Channel, true)
}

func (d *DSPDevice) startADPCM(args []byte, reference bool) {
	count := (int(args[0]) | int(args[1])<<8) + 1
	d.fmt8.stereo = false
	d.fmt8.signed = true
	d.fmt8.bits16 = false
	d.dma8.mode = dma8Single
	d.dma8.count = count
	d.dma8.initCount = count
	d.adpcm = adpcmState{started: !reference}
	d.adpcmActive = true
	d.dma.SetDREQ(DMA8Channel, true)
}

// decodeADPCMNibble implements the Creative 8-to-4 ADPCM algorithm: a
// signed magnitude nibble scaled by an adaptive step, clamped into
// int16 range. Called only once the running value has been seeded
// (either by a reference byte or by starting cold at zero).
func (d *DSPDevice) decodeADPCMNibble(nibble byte) int16 {
	sign := nibble&0x08 != 0
	mag := nibble & 0x07
	delta := int32(mag) << (7 + d.adpcm.step)
	if sign {
		delta = -delta
	}
	v := int32(d.adpcm.current) + delta
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	d.adpcm.current = int16(v)

	if mag >= 5 {
		d.adpcm.step++
		if d.adpcm.step > 3 {
			d.adpcm.step = 3
		}
	} else if mag == 0 {
		d.adpcm.step--
		if d.adpcm.step < 0 {
			d.adpcm.step = 0
		}
	}
	return d.adpcm.current
}

// DMAReadByte: the DSP's DMA paths are playback-only (memory -> DSP),
// so a recording read is not supported by this emulation.
func (d *DSPDevice) DMAReadByte(channel int) (byte, error) {
	return 0, fmt.Errorf("sb16: DSP DMA read (recording) not supported")
}

// DMAWriteByte receives one DMA byte destined for the DSP: decodes it
// per the active sample format (or ADPCM state) and pushes the result
// into the resampled render ring.
func (d *DSPDevice) DMAWriteByte(channel int, b byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	switch channel {
	case DMA8Channel:
		if d.adpcmActive {
			if !d.adpcm.started {
				// The reference byte seeds the running value whole; it
				// carries no nibble split and produces exactly one
				// output sample, not two.
				d.adpcm.current = int16(int32(b)<<8 - 32768)
				d.adpcm.started = true
				d.pushResampled(&d.dma8, d.rc8, d.adpcm.current, d.adpcm.current)
				return nil
			}
			s0 := d.decodeADPCMNibble(b >> 4)
			d.pushResampled(&d.dma8, d.rc8, s0, s0)
			s1 := d.decodeADPCMNibble(b & 0x0F)
			d.pushResampled(&d.dma8, d.rc8, s1, s1)
			return nil
		}
		d.consumeFormatted(&d.fmt8, &d.dma8, d.rc8, b)
	case DMA16Channel:
		if !d.dma16.haveLeft {
			d.dma16.leftByte = b
			d.dma16.haveLeft = true
			return nil
		}
		d.dma16.haveLeft = false
		lo, hi := d.dma16.leftByte, b
		var s int16
		if d.fmt16.signed {
			s = int16(uint16(lo) | uint16(hi)<<8)
		} else {
			s = int16(int32(uint16(lo)|uint16(hi)<<8) - 32768)
		}
		d.pushResampled(&d.dma16, d.rc16, s, s)
	}
	return nil
}

// consumeFormatted decodes one 8-bit DMA byte (or, for stereo, pairs of
// bytes -- tracked via haveLeft) into a signed sample and pushes it
// into the render ring at the target rate.
func (d *DSPDevice) consumeFormatted(fmtC *sampleFormat, st *dmaRunState, rc *devices.RateConverter, b byte) {
	var s int16
	if fmtC.signed {
		s = int16(b) << 8
	} else {
		s = (int16(b) - 128) << 8
	}
	if fmtC.stereo {
		if !st.haveLeft {
			st.leftByte = b
			st.haveLeft = true
			return
		}
		st.haveLeft = false
		var l int16
		if fmtC.signed {
			l = int16(st.leftByte) << 8
		} else {
			l = (int16(st.leftByte) - 128) << 8
		}
		d.pushResampled(st, rc, l, s)
		return
	}
	d.pushResampled(st, rc, s, s)
}

// pushResampled duplicates one decoded source-rate sample into however
// many 44.1kHz output slots the rate converter says it spans, dropping
// spans once the ring has backed up past AudioBufferSize.
func (d *DSPDevice) pushResampled(st *dmaRunState, rc *devices.RateConverter, l, r int16) {
	ticks := rc.Convert(1)
	if ticks <= 0 {
		ticks = 1
	}
	for i := int64(0); i < ticks; i++ {
		if len(d.ringL) >= AudioBufferSize {
			break
		}
		d.ringL = append(d.ringL, l)
		d.ringR = append(d.ringR, r)
	}
	st.count--
	if st.count <= 0 {
		d.finishBlock(st)
	}
}

func (d *DSPDevice) finishBlock(st *dmaRunState) {
	channel := DMA8Channel
	if st == &d.dma16 {
		channel = DMA16Channel
	}
	switch st.mode {
	case dma8Single:
		st.mode = dma8None
		if channel == DMA8Channel {
			d.adpcmActive = false
		}
		d.dma.SetDREQ(channel, false)
		if d.irq != nil {
			d.irq.RaiseIRQ(SBIRQLine)
		}
	case dma8AutoInit:
		st.count = st.initCount
		if d.irq != nil {
			d.irq.RaiseIRQ(SBIRQLine)
		}
	case dma8AutoInitFinish:
		st.mode = dma8None
		if channel == DMA8Channel {
			d.adpcmActive = false
		}
		d.dma.SetDREQ(channel, false)
		if d.irq != nil {
			d.irq.RaiseIRQ(SBIRQLine)
		}
	}
}

// DMATerminalCount is driven by the DMA controller when the
// host-programmed byte count (independent of the DSP's own block-size
// bookkeeping) expires.
func (d *DSPDevice) DMATerminalCount(channel int) {
	d.lock.Lock()
	defer d.lock.Unlock()
	switch channel {
	case DMA8Channel:
		d.finishBlock(&d.dma8)
	case DMA16Channel:
		d.finishBlock(&d.dma16)
	}
}

// PopSample drains one resampled stereo pair from the render ring for
// the top-level mixdown; returns ok=false when empty.
func (d *DSPDevice) PopSample() (l, r int16, ok bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.ringL) == 0 {
		return 0, 0, false
	}
	l, r = d.ringL[0], d.ringR[0]
	d.ringL = d.ringL[1:]
	d.ringR = d.ringR[1:]
	return l, r, true
}

// RingBacklogged reports whether the render ring holds AudioBufferSize
// samples, the point past which pushResampled drops output. Nothing in
// this package calls it, and DREQ is not released when it is true.
func (d *DSPDevice) RingBacklogged() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.ringL) >= AudioBufferSize
}
