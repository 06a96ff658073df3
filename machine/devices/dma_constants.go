package devices

// Controller 1 (8-bit, channels 0-3) port map.
const (
	DMA1AddrBase    uint16 = 0x00 // +2 per channel: addr regs for chan 0-3
	DMA1CountBase   uint16 = 0x01 // +2 per channel: count regs for chan 0-3
	DMA1Command     uint16 = 0x08
	DMA1Request     uint16 = 0x09
	DMA1SingleMask  uint16 = 0x0A
	DMA1Mode        uint16 = 0x0B
	DMA1ClearFF     uint16 = 0x0C
	DMA1MasterClear uint16 = 0x0D
	DMA1ClearMask   uint16 = 0x0E
	DMA1WriteMask   uint16 = 0x0F
)

// Controller 2 (16-bit, channels 4-7) port map: register spacing is
// doubled because the controller is wired to the upper address lines.
const (
	DMA2AddrBase    uint16 = 0xC0
	DMA2CountBase   uint16 = 0xC2
	DMA2Command     uint16 = 0xD0
	DMA2Request     uint16 = 0xD2
	DMA2SingleMask  uint16 = 0xD4
	DMA2Mode        uint16 = 0xD6
	DMA2ClearFF     uint16 = 0xD8
	DMA2MasterClear uint16 = 0xDA
	DMA2ClearMask   uint16 = 0xDC
	DMA2WriteMask   uint16 = 0xDE
)

// Page register ports (74LS612-style), one per channel except the
// 8-bit controller's own cascade channel 4.
var dmaPagePort = [8]uint16{
	0: 0x87,
	1: 0x83,
	2: 0x81,
	3: 0x82,
	4: 0x8F,
	5: 0x8B,
	6: 0x89,
	7: 0x8A,
}

// Mode register (0x0B/0xD6) field layout.
const (
	dmaModeChannelMask  byte = 0x03
	dmaModeTransferMask byte = 0x0C
	dmaModeAutoInit     byte = 0x10
	dmaModeAddrDecr     byte = 0x20
	dmaModeModeMask     byte = 0xC0
)

// Transfer type (mode bits 2-3).
const (
	DMATransferVerify byte = 0
	DMATransferWrite  byte = 1 // peripheral -> memory
	DMATransferRead   byte = 2 // memory -> peripheral
)

// Transfer mode (mode bits 6-7).
const (
	DMAModeDemand  byte = 0
	DMAModeSingle  byte = 1
	DMAModeBlock   byte = 2
	DMAModeCascade byte = 3
)
