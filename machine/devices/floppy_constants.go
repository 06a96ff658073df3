package devices

// Standard 82077AA port assignments on the primary floppy controller.
const (
	FDPortDOR  uint16 = 0x3F2 // digital output register, r/w
	FDPortMSR  uint16 = 0x3F4 // main status register, read only
	FDPortDSR  uint16 = 0x3F4 // data rate select register, write only
	FDPortFIFO uint16 = 0x3F5 // data FIFO, r/w
	FDPortDIR  uint16 = 0x3F7 // digital input register, read only
	FDPortCCR  uint16 = 0x3F7 // configuration control register, write only
)

// DMA channel wired to the floppy controller on a PIIX4 board.
const FDDMAChannel = 2

// DOR bits.
const (
	FDDORDriveSel  byte = 0x03
	FDDORReset     byte = 0x04 // 0 = held in reset
	FDDORDMAEnable byte = 0x08
	FDDORMotor0    byte = 0x10
	FDDORMotor1    byte = 0x20
	FDDORMotor2    byte = 0x40
	FDDORMotor3    byte = 0x80
)

// MSR bits.
const (
	FDMSRDrv0Busy  byte = 0x01
	FDMSRDrv1Busy  byte = 0x02
	FDMSRDrv2Busy  byte = 0x04
	FDMSRDrv3Busy  byte = 0x08
	FDMSRCmdBusy   byte = 0x10
	FDMSRNonDMA    byte = 0x20
	FDMSRDIO       byte = 0x40 // 1 = controller expects the host to read
	FDMSRRQM       byte = 0x80 // data register ready
)

// Command opcodes (low 5 bits; the upper MT/MFM/SK bits on READ/WRITE
// DATA are masked off during dispatch).
const (
	FDCmdReadData      byte = 0x06
	FDCmdSpecify       byte = 0x03
	FDCmdSenseIntr     byte = 0x08
	FDCmdRecalibrate   byte = 0x07
	FDCmdSeek          byte = 0x0F
	FDCmdReadID        byte = 0x0A
)

// ST0 bits.
const (
	FDST0DriveSel  byte = 0x03
	FDST0Head      byte = 0x04
	FDST0NotReady  byte = 0x08
	FDST0EquipCk   byte = 0x10
	FDST0SeekEnd   byte = 0x20
	FDST0IntCode   byte = 0xC0
)

const (
	FDST0ICNormal   byte = 0x00
	FDST0ICAbnormal byte = 0x40
	FDST0ICInvalid  byte = 0x80
	FDST0ICReady    byte = 0xC0 // ready-line state change (polling)
)

const fdSectorSize = 512
