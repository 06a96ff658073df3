package devices

// 8259A I/O port addresses.
const (
	PICMasterCmdPort  uint16 = 0x20
	PICMasterDataPort uint16 = 0x21
	PICSlaveCmdPort   uint16 = 0xA0
	PICSlaveDataPort  uint16 = 0xA1

	// ELCR0/ELCR1 are PIIX4-specific edge/level control registers, one
	// byte per controller, living outside the 8259A's own port pair.
	ELCR0Port uint16 = 0x4D0
	ELCR1Port uint16 = 0x4D1
)

// Common ISA IRQ line assignments used when wiring devices.
const (
	IRQTimer    uint8 = 0
	IRQKeyboard uint8 = 1
	IRQCascade  uint8 = 2
	IRQCOM2     uint8 = 3
	IRQCOM1     uint8 = 4
	IRQSB16     uint8 = 5
	IRQFloppy   uint8 = 6
	IRQLPT1     uint8 = 7
	IRQRTC      uint8 = 8
	IRQACPI     uint8 = 9
	IRQMouse    uint8 = 12
	IRQIDE1     uint8 = 14
	IRQIDE2     uint8 = 15
)

// ICW1 bits.
const (
	picICW1IC4  byte = 0x01
	picICW1SNGL byte = 0x02
	picICW1ADI  byte = 0x04
	picICW1LTIM byte = 0x08
	picICW1Init byte = 0x10
)

// ICW4 bits.
const (
	picICW4UPM  byte = 0x01
	picICW4AEOI byte = 0x02
	picICW4MS   byte = 0x04
	picICW4BUF  byte = 0x08
	picICW4SFNM byte = 0x10
)

// OCW2 bits.
const (
	picOCW2Level  byte = 0x07
	picOCW2EOI    byte = 0x20
	picOCW2SL     byte = 0x40
	picOCW2Rotate byte = 0x80
)

// OCW3 bits.
const (
	picOCW3RIS  byte = 0x01
	picOCW3RR   byte = 0x02
	picOCW3Poll byte = 0x04
	picOCW3ID   byte = 0x08
	picOCW3ESMM byte = 0x20
	picOCW3SMM  byte = 0x40
)

// PIRQ routing illegal targets: ISA-fixed IRQs that can never be handed
// to a PCI INTx line (timer, keyboard, cascade, RTC, floppy-DMA-adjacent
// FPU line). Matches the original chipset's PIRQRC validation.
var picIllegalPIRQTarget = map[int]bool{0: true, 1: true, 2: true, 8: true, 13: true}
