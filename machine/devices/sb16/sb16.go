// Package sb16 implements the Sound Blaster 16: the OPL3 FM
// synthesizer, the DSP command processor and its DMA-driven PCM/ADPCM
// output paths, and the mixer register file, all addressed through the
// 0x220-0x22F (plus 0x388/0x389 FM alias) I/O port block a PIIX4-era
// board wires the card up on.
package sb16

import (
	"sync"

	"example.com/pc430tx/machine/devices"
)

// Port offsets from the card's configured base (0x220 by default).
const (
	portFMAddr0      = 0x00
	portFMData0      = 0x01
	portMixerAddr    = 0x04
	portMixerData    = 0x05
	portDSPReset     = 0x06
	portFMAddr1      = 0x08
	portFMData1      = 0x09
	portDSPReadData  = 0x0A
	portDSPWriteCmd  = 0x0C
	portDSPWriteStat = 0x0C
	portDSPReadStat  = 0x0E
	portDSPIRQAck16  = 0x0F
)

// BaseFMAddr/BaseFMData are the legacy OPL2/OPL3 alias ports
// (0x388/0x389) that exist independent of the card's SB16 base.
const (
	BaseFMAddr = 0x388
	BaseFMData = 0x389
)

// SB16Device is the top-level wiring of the FM synthesizer, the DSP and
// the mixer behind one port-I/O block, plus the per-iteration pacing
// that renders FM samples and drains the DSP's resampled PCM ring into
// a single mixed stereo stream.
type SB16Device struct {
	lock sync.Mutex

	opl3   *OPL3Device
	dsp    *DSPDevice
	mixer  *MixerDevice
	sink   devices.AudioSink
	cdAudio devices.CDAudioSource

	base uint16

	resetLatch  int
	fmAddrBank0 byte
	fmAddrBank1 byte

	opl3RC  *devices.RateConverter
	mixRC   *devices.RateConverter
	lastFML int16
	lastFMR int16
}

// NewSB16Device wires an SB16 card at the given base I/O port (0x220 on
// a stock PIIX4 board). cd may be nil, in which case CD audio input is
// silence.
func NewSB16Device(base uint16, irq devices.InterruptRaiser, dma *devices.DMADevice, sink devices.AudioSink, cd devices.CDAudioSource) *SB16Device {
	s := &SB16Device{
		base:  base,
		opl3:  NewOPL3Device(),
		dsp:   NewDSPDevice(irq, dma),
		mixer: NewMixerDevice(),
		sink:  sink,
		cdAudio: cd,
	}
	s.Reset()
	return s
}

func (s *SB16Device) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.opl3.Reset()
	s.dsp.Reset()
	s.mixer.Reset()
	s.resetLatch = 0
	s.fmAddrBank0 = 0
	s.fmAddrBank1 = 0
	s.opl3RC = devices.NewRateConverter(devices.ClockFreq, NativeSampleRate)
	s.mixRC = devices.NewRateConverter(devices.ClockFreq, 44100)
	s.lastFML = 0
	s.lastFMR = 0
}

func (s *SB16Device) NextEventCC() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	a := s.opl3RC.CyclesToNextTick()
	b := s.mixRC.CyclesToNextTick()
	if a < b {
		return a
	}
	return b
}

func (s *SB16Device) Clock(cc int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if ticks := s.opl3RC.Convert(cc); ticks > 0 {
		for i := int64(0); i < ticks; i++ {
			s.lastFML, s.lastFMR = s.opl3.RenderSample()
		}
	}
	if ticks := s.mixRC.Convert(cc); ticks > 0 {
		for i := int64(0); i < ticks; i++ {
			s.flushSample()
		}
	}
}

func (s *SB16Device) EndIter() {}

// flushSample pops one DSP PCM sample (silence if the ring is empty),
// reads one CD-audio sample, and mixes both against the held FM output
// through the mixer's volume scaling before pushing to the sink.
func (s *SB16Device) flushSample() {
	pcmL, pcmR, _ := s.dsp.PopSample()
	var cdL, cdR int16
	if s.cdAudio != nil {
		cdL, cdR = s.cdAudio.ReadSample()
	}
	voiceL := avgSample(s.lastFML, pcmL)
	voiceR := avgSample(s.lastFMR, pcmR)
	l, r := s.mixer.Mix(voiceL, voiceR, cdL, cdR, 0)
	if s.sink != nil {
		s.sink.PushSample(l, r)
	}
}

func avgSample(a, b int16) int16 {
	return int16((int32(a) + int32(b)) / 2)
}

// HandleIO dispatches the card's native port block plus the legacy
// 0x388/0x389 FM alias, which answers regardless of the card's
// configured base.
func (s *SB16Device) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	if port == BaseFMAddr || port == BaseFMData {
		return s.handleFM(0, port == BaseFMData, direction, data)
	}

	if port < s.base || port > s.base+0x0F {
		return nil
	}
	offset := port - s.base

	switch offset {
	case portFMAddr0, portFMData0:
		return s.handleFM(0, offset == portFMData0, direction, data)
	case portFMAddr1, portFMData1:
		return s.handleFM(1, offset == portFMData1, direction, data)
	case portMixerAddr:
		return s.handleMixerAddr(direction, data)
	case portMixerData:
		return s.handleMixerData(direction, data)
	case portDSPReset:
		return s.handleDSPReset(direction, data)
	case portDSPReadData:
		if direction == devices.IODirectionIn {
			data[0] = s.dsp.ReadData()
		}
		return nil
	case portDSPWriteCmd:
		if direction == devices.IODirectionOut {
			s.dsp.WriteCommand(data[0])
		}
		return nil
	case portDSPReadStat:
		if direction == devices.IODirectionIn {
			if s.dsp.DataAvailable() {
				data[0] = 0x80
			} else {
				data[0] = 0x00
			}
		}
		return nil
	case portDSPIRQAck16:
		if direction == devices.IODirectionIn {
			data[0] = 0xFF
		}
		return nil
	}
	return nil
}

func (s *SB16Device) handleFM(bank int, isData bool, direction uint8, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	addrReg := &s.fmAddrBank0
	if bank == 1 {
		addrReg = &s.fmAddrBank1
	}
	if !isData {
		if direction == devices.IODirectionOut {
			*addrReg = data[0]
		} else {
			data[0] = 0 // FM status: always idle, no timers pending
		}
		return nil
	}
	if direction == devices.IODirectionOut {
		s.opl3.WriteRegister(bank, *addrReg, data[0])
	} else {
		data[0] = 0
	}
	return nil
}

func (s *SB16Device) handleMixerAddr(direction uint8, data []byte) error {
	if direction == devices.IODirectionOut {
		s.mixer.WriteIndex(data[0])
	} else {
		data[0] = s.mixer.ReadIndex()
	}
	return nil
}

func (s *SB16Device) handleMixerData(direction uint8, data []byte) error {
	if direction == devices.IODirectionOut {
		s.mixer.WriteData(data[0])
	} else {
		data[0] = s.mixer.ReadData()
	}
	return nil
}

// handleDSPReset implements the documented 1-then-0 write pulse on the
// reset port: a write of 1 followed by a write of 0 resets the DSP and
// queues the 0xAA ready byte for the next read-data access.
func (s *SB16Device) handleDSPReset(direction uint8, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if direction == devices.IODirectionOut {
		if data[0] != 0 {
			s.resetLatch = 1
		} else if s.resetLatch == 1 {
			s.dsp.Reset()
			s.resetLatch = 0
			s.dsp.PushReadyByte(0xAA)
		}
		return nil
	}
	data[0] = 0
	return nil
}
