package machine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/pc430tx/machine/devices"
)

// fakeMemBus is a flat 1MB physical address space standing in for the
// guest memory a real CPU core would provide.
type fakeMemBus struct {
	mem [1 << 20]byte
}

func (m *fakeMemBus) ReadPhys(addr uint32) byte     { return m.mem[addr] }
func (m *fakeMemBus) WritePhys(addr uint32, b byte) { m.mem[addr] = b }

// initPIC programs the master 8259A's ICW1-4 sequence so IRQ lines 0-7
// map to vectors 0x08-0x0F, matching a real BIOS's early init (the
// default post-power-on state otherwise leaves vectorBase/priority
// undefined).
func initPIC(m *Machine) {
	m.HandleIO(devices.PICMasterCmdPort, devices.IODirectionOut, 1, []byte{0x11})
	m.HandleIO(devices.PICMasterDataPort, devices.IODirectionOut, 1, []byte{0x08}) // ICW2: vector base
	m.HandleIO(devices.PICMasterDataPort, devices.IODirectionOut, 1, []byte{0x04}) // ICW3: slave on IRQ2
	m.HandleIO(devices.PICMasterDataPort, devices.IODirectionOut, 1, []byte{0x01}) // ICW4: 8086 mode, no auto-EOI

	m.HandleIO(devices.PICSlaveCmdPort, devices.IODirectionOut, 1, []byte{0x11})
	m.HandleIO(devices.PICSlaveDataPort, devices.IODirectionOut, 1, []byte{0x70}) // ICW2: vector base
	m.HandleIO(devices.PICSlaveDataPort, devices.IODirectionOut, 1, []byte{0x02}) // ICW3: cascade identity
	m.HandleIO(devices.PICSlaveDataPort, devices.IODirectionOut, 1, []byte{0x01}) // ICW4
}

// sendEOI issues a non-specific end-of-interrupt to the master 8259A,
// the ISR handler's usual last act before IRET.
func sendEOI(m *Machine) {
	m.HandleIO(devices.PICMasterCmdPort, devices.IODirectionOut, 1, []byte{0x20})
}

func fdWriteFIFO(m *Machine, bytes ...byte) {
	for _, b := range bytes {
		m.HandleIO(devices.FDPortFIFO, devices.IODirectionOut, 1, []byte{b})
	}
}

func fdReadResult(m *Machine, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		var b [1]byte
		m.HandleIO(devices.FDPortFIFO, devices.IODirectionIn, 1, b[:])
		out[i] = b[0]
	}
	return out
}

// programFloppyDMA sets up DMA controller 1 channel 2 (the fixed
// floppy wiring) for a block-mode peripheral->memory transfer of
// sectorSize bytes into physical memory at addr.
func programFloppyDMA(m *Machine, addr uint32, sectorSize int) {
	m.HandleIO(devices.DMA1ClearFF, devices.IODirectionOut, 1, []byte{0})
	m.HandleIO(devices.DMA1AddrBase+4, devices.IODirectionOut, 1, []byte{byte(addr)})
	m.HandleIO(devices.DMA1AddrBase+4, devices.IODirectionOut, 1, []byte{byte(addr >> 8)})
	m.HandleIO(devices.DMA1ClearFF, devices.IODirectionOut, 1, []byte{0})
	count := uint16(sectorSize - 1)
	m.HandleIO(devices.DMA1CountBase+4, devices.IODirectionOut, 1, []byte{byte(count)})
	m.HandleIO(devices.DMA1CountBase+4, devices.IODirectionOut, 1, []byte{byte(count >> 8)})
	mode := byte(2) | devices.DMATransferWrite<<2 | devices.DMAModeBlock<<6
	m.HandleIO(devices.DMA1Mode, devices.IODirectionOut, 1, []byte{mode})
	m.HandleIO(devices.DMA1SingleMask, devices.IODirectionOut, 1, []byte{2})
}

// TestBootFloppySectorDeliversDataAndIRQ6 exercises the spec's "boot
// floppy sector" scenario end to end: a BIOS-style SPECIFY / RECALIBRATE
// / SEEK / READ DATA command sequence against drive 0, with the sector
// landing in guest memory via DMA channel 2 and the controller's
// completion interrupt actually reaching the CPU core through the
// master 8259A, exactly as real firmware would observe it.
func TestBootFloppySectorDeliversDataAndIRQ6(t *testing.T) {
	const fdSectorSize = 512
	const destAddr = 0x5000

	mem := &fakeMemBus{}
	cpu := NewStubCPUCore(0) // run forever
	m := NewMachine(Config{Memory: mem, CPU: cpu})

	image := make([]byte, 80*2*18*fdSectorSize)
	for i := 0; i < fdSectorSize; i++ {
		image[i] = byte(i)
	}
	m.InsertFloppy(0, image, 80, 2, 18)

	initPIC(m)

	// SPECIFY: SRT=8, HUT=0, HLT=0, DMA mode.
	fdWriteFIFO(m, devices.FDCmdSpecify, 0x80, 0x00)

	// RECALIBRATE drive 0. The drive is already at cylinder 0, so the
	// seek (and its completion interrupt) fires synchronously within
	// this HandleIO call, before any Iter is run.
	fdWriteFIFO(m, devices.FDCmdRecalibrate, 0x00)
	m.Iter(1000)

	require.Len(t, cpu.DeliveredVectors, 1, "RECALIBRATE's completion interrupt must reach the CPU as IRQ6's vector")
	require.Equal(t, byte(0x0E), cpu.DeliveredVectors[0]) // vector base 0x08 + IRQ6

	sendEOI(m)
	fdWriteFIFO(m, devices.FDCmdSenseIntr)
	senseResult := fdReadResult(m, 2)
	require.NotZero(t, senseResult[0]&devices.FDST0SeekEnd)
	require.Equal(t, byte(0), senseResult[1])

	// SEEK drive 0 to cylinder 0: again a zero-length seek, completing
	// synchronously and raising a second, independent IRQ6 edge -- only
	// possible because reading SENSE INTERRUPT STATUS' result above
	// dropped the controller's INT line back to idle.
	fdWriteFIFO(m, devices.FDCmdSeek, 0x00, 0x00)
	m.Iter(1000)

	require.Len(t, cpu.DeliveredVectors, 2, "SEEK's completion interrupt must reach the CPU as a fresh IRQ6 edge")
	require.Equal(t, byte(0x0E), cpu.DeliveredVectors[1])

	sendEOI(m)
	fdWriteFIFO(m, devices.FDCmdSenseIntr)
	fdReadResult(m, 2)

	programFloppyDMA(m, destAddr, fdSectorSize)

	// READ DATA: drive 0, C=0, H=0, R=1, N=2, EOT=1 (single sector).
	fdWriteFIFO(m, devices.FDCmdReadData, 0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0x00, 0xFF)

	// Drive the DMA-paced transfer to completion: the DREQ-latency FIFO
	// plus 512 bytes at roughly ClockFreq/7.5MHz SYSCLK ticks is well
	// under a few thousand CPU cycles; run generously past that.
	m.Iter(200000)

	for i := 0; i < fdSectorSize; i++ {
		require.Equal(t, byte(i), mem.mem[destAddr+i], "byte %d mismatched between image and DMA destination", i)
	}

	require.Len(t, cpu.DeliveredVectors, 3, "READ DATA's completion interrupt must reach the CPU as a third, independent IRQ6 edge")
	require.Equal(t, byte(0x0E), cpu.DeliveredVectors[2])

	result := fdReadResult(m, 7)
	require.Equal(t, devices.FDST0ICNormal, result[0]&devices.FDST0IntCode)
}
