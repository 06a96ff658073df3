package devices

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fdWriteFIFO(f *FloppyDevice, bytes ...byte) {
	for _, b := range bytes {
		f.HandleIO(FDPortFIFO, IODirectionOut, 1, []byte{b})
	}
}

func fdReadResult(f *FloppyDevice, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		var b [1]byte
		f.HandleIO(FDPortFIFO, IODirectionIn, 1, b[:])
		out[i] = b[0]
	}
	return out
}

func TestFloppyRecalibrateSeeksToCylinderZero(t *testing.T) {
	irq := newFakeIRQ()
	mem := &fakeMemBus{}
	dma := NewDMADevice(mem)
	f := NewFloppyDevice(irq, dma)
	f.drives[0].curCyl = 40

	fdWriteFIFO(f, FDCmdRecalibrate, 0x00)

	require.True(t, f.drives[0].seeking)
	f.Clock(f.NextEventCC())

	require.False(t, f.drives[0].seeking)
	require.Equal(t, 0, f.drives[0].curCyl)
	require.NotZero(t, irq.raised[IRQFloppy])

	fdWriteFIFO(f, FDCmdSenseIntr)
	result := fdReadResult(f, 2)
	require.NotZero(t, result[0]&FDST0SeekEnd)
	require.Equal(t, byte(0), result[1])
}

func TestFloppySeekMovesToRequestedCylinder(t *testing.T) {
	irq := newFakeIRQ()
	mem := &fakeMemBus{}
	dma := NewDMADevice(mem)
	f := NewFloppyDevice(irq, dma)

	fdWriteFIFO(f, FDCmdSeek, 0x00, 12)
	require.True(t, f.drives[0].seeking)

	f.Clock(f.NextEventCC())
	require.Equal(t, 12, f.drives[0].curCyl)

	fdWriteFIFO(f, FDCmdSenseIntr)
	result := fdReadResult(f, 2)
	require.Equal(t, byte(12), result[1])
}

func TestFloppyReadIDReturnsCurrentCylinder(t *testing.T) {
	irq := newFakeIRQ()
	mem := &fakeMemBus{}
	dma := NewDMADevice(mem)
	f := NewFloppyDevice(irq, dma)
	f.drives[0].curCyl = 5

	fdWriteFIFO(f, FDCmdReadID, 0x00)
	result := fdReadResult(f, 7)
	require.Equal(t, byte(5), result[3]) // cylinder field
	require.NotZero(t, irq.raised[IRQFloppy])
}

// programFloppyDMA sets up DMA controller 1 channel 2 (the fixed
// floppy wiring) for a block-mode peripheral->memory transfer of
// sectorSize bytes into physical memory at addr. Block mode is used
// because the floppy only asserts DREQ once per sector and relies on
// the controller to keep pulling bytes until terminal count, unlike
// single mode which would need DREQ re-asserted every byte.
func programFloppyDMA(d *DMADevice, addr uint16, sectorSize int) {
	d.HandleIO(DMA1ClearFF, IODirectionOut, 1, []byte{0})
	d.HandleIO(DMA1AddrBase+4, IODirectionOut, 1, []byte{byte(addr)})
	d.HandleIO(DMA1AddrBase+4, IODirectionOut, 1, []byte{byte(addr >> 8)})
	d.HandleIO(DMA1ClearFF, IODirectionOut, 1, []byte{0})
	count := uint16(sectorSize - 1)
	d.HandleIO(DMA1CountBase+4, IODirectionOut, 1, []byte{byte(count)})
	d.HandleIO(DMA1CountBase+4, IODirectionOut, 1, []byte{byte(count >> 8)})
	mode := byte(2) | DMATransferWrite<<2 | DMAModeBlock<<6
	d.HandleIO(DMA1Mode, IODirectionOut, 1, []byte{mode})
	d.HandleIO(DMA1SingleMask, IODirectionOut, 1, []byte{2})
}

func TestFloppyReadDataTransfersSectorViaDMA(t *testing.T) {
	irq := newFakeIRQ()
	mem := &fakeMemBus{}
	dma := NewDMADevice(mem)
	f := NewFloppyDevice(irq, dma)

	image := make([]byte, 80*2*18*fdSectorSize)
	for i := 0; i < fdSectorSize; i++ {
		image[i] = byte(i)
	}
	f.InsertDisk(0, image, 80, 2, 18)

	programFloppyDMA(dma, 0x5000, fdSectorSize)

	// READ DATA: drive 0, C=0, H=0, R=1, N=2, EOT=1 (single sector), GPL, DTL.
	fdWriteFIFO(f, FDCmdReadData, 0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0x00, 0xFF)

	// The floppy asserts DREQ once for the whole sector in block mode;
	// the first byte only becomes servicable after the DREQ-latency
	// FIFO's request-to-service delay elapses.
	for i := 0; i < fdSectorSize+dreqLatencyTicks; i++ {
		dma.Clock(dma.rc.CyclesToNextTick())
	}

	for i := 0; i < fdSectorSize; i++ {
		require.Equal(t, byte(i), mem.mem[0x5000+i], "byte %d mismatched between image and DMA destination", i)
	}

	result := fdReadResult(f, 7)
	require.Equal(t, FDST0ICNormal, result[0]&FDST0IntCode)
	require.NotZero(t, irq.raised[IRQFloppy])
}

func TestFloppyReadDataMissingMediaReportsAbnormalTermination(t *testing.T) {
	irq := newFakeIRQ()
	mem := &fakeMemBus{}
	dma := NewDMADevice(mem)
	f := NewFloppyDevice(irq, dma)

	fdWriteFIFO(f, FDCmdReadData, 0x00, 0x00, 0x00, 0x01, 0x02, 0x01, 0x00, 0xFF)

	result := fdReadResult(f, 7)
	require.Equal(t, FDST0ICAbnormal, result[0]&FDST0IntCode)
}
