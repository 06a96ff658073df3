package sb16

const AudioBufferSize = 1024

// DSP command opcodes (subset actually dispatched; everything else is
// acknowledged with a warning and otherwise ignored).
const (
	dspCmdDMA8Single     byte = 0x14
	dspCmdDMA8AutoInit   byte = 0x1C
	dspCmdSetTimeConst   byte = 0x40
	dspCmdSetOutRate     byte = 0x41
	dspCmdSetInRate      byte = 0x42
	dspCmdSetBlockSize   byte = 0x48
	dspCmdADPCM4         byte = 0x74
	dspCmdADPCM4Ref      byte = 0x75
	dspCmdPauseDMA8      byte = 0xD0
	dspCmdSpeakerOn      byte = 0xD1
	dspCmdSpeakerOff     byte = 0xD3
	dspCmdContinueDMA8   byte = 0xD4
	dspCmdPauseDMA16     byte = 0xD5
	dspCmdContinueDMA16  byte = 0xD6
	dspCmdExitDMA16      byte = 0xD9
	dspCmdExitDMA8       byte = 0xDA
	dspCmdIdentify       byte = 0xE0
	dspCmdVersion        byte = 0xE1
	dspCmdWriteTest      byte = 0xE4
	dspCmdReadTest       byte = 0xE8
	dspCmdIRQRequest8    byte = 0xF2
)

// dspCmdArgCount gives the number of argument bytes each recognized
// opcode takes before it executes; 16/8-bit DMA output commands
// (0xB0-0xBF, 0xC0-0xCF) are matched by range in the FSM instead since
// their low nibble carries format bits, not a distinct opcode.
var dspCmdArgCount = map[byte]int{
	dspCmdDMA8Single:    2,
	dspCmdDMA8AutoInit:  2,
	dspCmdSetTimeConst:  1,
	dspCmdSetOutRate:    2,
	dspCmdSetInRate:     2,
	dspCmdSetBlockSize:  2,
	dspCmdADPCM4:        2,
	dspCmdADPCM4Ref:     2,
	dspCmdPauseDMA8:     0,
	dspCmdSpeakerOn:     0,
	dspCmdSpeakerOff:    0,
	dspCmdContinueDMA8:  0,
	dspCmdPauseDMA16:    0,
	dspCmdContinueDMA16: 0,
	dspCmdExitDMA16:     0,
	dspCmdExitDMA8:      0,
	dspCmdIdentify:      1,
	dspCmdVersion:       0,
	dspCmdWriteTest:     1,
	dspCmdReadTest:      0,
	dspCmdIRQRequest8:   0,
}

// DMA8Channel/DMA16Channel are the hardcoded SB16 assignments a PIIX4
// board wires up; attempts to reprogram them through the mixer are
// rejected with a warning rather than honored.
const (
	DMA8Channel  = 1
	DMA16Channel = 5
	SBIRQLine    = 5
)
