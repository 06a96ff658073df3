package devices

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// initPIC runs the standard BIOS ICW sequence: master vectors at 0x08,
// slave at 0x70, cascade wired on IRQ2, both in 8086 mode with ICW4.
func initPIC(p *PICDevice) {
	p.HandleIO(PICMasterCmdPort, IODirectionOut, 1, []byte{0x11}) // ICW1: edge, cascade, ICW4 follows
	p.HandleIO(PICMasterDataPort, IODirectionOut, 1, []byte{0x08})
	p.HandleIO(PICMasterDataPort, IODirectionOut, 1, []byte{0x04}) // ICW3: slave on IRQ2
	p.HandleIO(PICMasterDataPort, IODirectionOut, 1, []byte{0x01}) // ICW4: 8086 mode

	p.HandleIO(PICSlaveCmdPort, IODirectionOut, 1, []byte{0x11})
	p.HandleIO(PICSlaveDataPort, IODirectionOut, 1, []byte{0x70})
	p.HandleIO(PICSlaveDataPort, IODirectionOut, 1, []byte{0x02})
	p.HandleIO(PICSlaveDataPort, IODirectionOut, 1, []byte{0x01})

	// Unmask everything.
	p.HandleIO(PICMasterDataPort, IODirectionOut, 1, []byte{0x00})
	p.HandleIO(PICSlaveDataPort, IODirectionOut, 1, []byte{0x00})
}

func TestPICMasterIRQVectorsAtConfiguredBase(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)

	p.RaiseIRQ(IRQKeyboard)
	require.True(t, p.HasPendingInterrupts())

	vec, ok := p.GetInterruptVector()
	require.True(t, ok)
	require.Equal(t, uint8(0x09), vec) // base 0x08 + line 1
}

func TestPICSlaveIRQCascadesThroughIRQ2(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)

	p.RaiseIRQ(IRQRTC) // line 8, handled by the slave
	require.True(t, p.HasPendingInterrupts())

	vec, ok := p.GetInterruptVector()
	require.True(t, ok)
	require.Equal(t, uint8(0x70), vec) // slave base 0x70 + line 0 (IRQ8-8)
}

func TestPICHigherPriorityLineWinsArbitration(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)

	p.RaiseIRQ(IRQFloppy) // line 6
	p.RaiseIRQ(IRQTimer)  // line 0, strictly higher priority

	vec, ok := p.GetInterruptVector()
	require.True(t, ok)
	require.Equal(t, uint8(0x08), vec) // timer wins
}

func TestPICMaskedLineNeverAsserts(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)

	p.HandleIO(PICMasterDataPort, IODirectionOut, 1, []byte{1 << IRQKeyboard})
	p.RaiseIRQ(IRQKeyboard)
	require.False(t, p.HasPendingInterrupts())
}

func TestPICEdgeTriggeredLineRequiresRisingEdge(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)

	// Default ELCR is all-edge. Raising then lowering without an
	// intervening ack must not leave a stale request latched differently
	// than a single rising edge would.
	p.RaiseIRQ(IRQCOM1)
	p.LowerIRQ(IRQCOM1)
	require.True(t, p.HasPendingInterrupts(), "edge-triggered IRQ latches until acknowledged even after the line drops")

	_, ok := p.GetInterruptVector()
	require.True(t, ok)
	require.False(t, p.HasPendingInterrupts())
}

func TestPICLevelTriggeredLineClearsWithInput(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)
	p.HandleIO(ELCR0Port, IODirectionOut, 1, []byte{1 << IRQCOM1})

	p.RaiseIRQ(IRQCOM1)
	p.LowerIRQ(IRQCOM1)
	require.False(t, p.HasPendingInterrupts(), "level-triggered IRR must track the input level directly")
}

func TestPICELCRRejectsFixedEdgeLines(t *testing.T) {
	p := NewPICDevice()
	p.HandleIO(ELCR0Port, IODirectionOut, 1, []byte{0xFF})
	var out [1]byte
	p.HandleIO(ELCR0Port, IODirectionIn, 1, out[:])
	require.Zero(t, out[0]&0x03, "IRQ0/IRQ1 must stay edge-triggered regardless of the guest's ELCR write")
}

func TestPICPIRQRoutingDrivesConfiguredIRQ(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)

	p.SetPIRQRoute(0, 10) // PIRQA -> IRQ10, enabled (bit7 clear)
	p.RaisePIRQ(0, true)

	require.True(t, p.HasPendingInterrupts())
	vec, ok := p.GetInterruptVector()
	require.True(t, ok)
	require.Equal(t, uint8(0x72), vec) // slave base 0x70 + line (10-8)=2
}

func TestPICPIRQDisabledBitSuppressesRouting(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)

	p.SetPIRQRoute(0, 0x80|5) // disabled
	p.RaisePIRQ(0, true)
	require.False(t, p.HasPendingInterrupts())
}

func TestPICIllegalPIRQTargetDisablesLine(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)
	p.SetPIRQRoute(1, 2) // IRQ2 (cascade) is an illegal PIRQ target
	p.RaisePIRQ(1, true)
	require.False(t, p.HasPendingInterrupts(), "an illegal PIRQ target must disable the line entirely")
}

func TestPICNonSpecificEOIReleasesLowerPriorityLine(t *testing.T) {
	p := NewPICDevice()
	initPIC(p)

	p.RaiseIRQ(IRQTimer)
	_, ok := p.GetInterruptVector()
	require.True(t, ok)

	p.RaiseIRQ(IRQKeyboard)
	require.False(t, p.HasPendingInterrupts(), "keyboard IRQ must stay blocked while the higher-priority timer is in service")

	// Non-specific EOI for the timer line.
	p.HandleIO(PICMasterCmdPort, IODirectionOut, 1, []byte{0x20})
	vec, ok := p.GetInterruptVector()
	require.True(t, ok)
	require.Equal(t, uint8(0x09), vec)
}
