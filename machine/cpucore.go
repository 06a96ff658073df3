package machine

// CPUCore is the external collaborator that actually fetches and
// executes IA-32 instructions against guest memory. The scheduler only
// needs to know how many cycles a quantum of execution consumed and
// whether the core came to a stop (HLT with interrupts disabled, or a
// triple fault) — everything else (decoding, protected-mode mechanics,
// paging) lives outside this repository.
type CPUCore interface {
	// RunQuantum asks the core to execute instructions worth no more
	// than budget cycles. It returns how many cycles were actually
	// consumed (at least one instruction's worth, even if that
	// overshoots budget) and whether the core is now halted.
	RunQuantum(budget int64) (consumed int64, halted bool)

	// DeliverInterrupt is called by the machine once per iteration when
	// the interrupt controller has a pending, unmasked, highest-priority
	// vector to inject.
	DeliverInterrupt(vector uint8)

	// Reset returns the core to its power-on state.
	Reset()
}

// StubCPUCore is a deterministic CPUCore used by tests and by callers
// that only want to exercise the chipset devices without a real IA-32
// interpreter attached. It never executes anything; it simply reports
// CCPerInst consumed per quantum until told to halt, and records
// delivered interrupt vectors for assertions.
type StubCPUCore struct {
	Halted            bool
	DeliveredVectors  []uint8
	InstructionsToRun int64
}

// NewStubCPUCore creates a stub core that reports itself runnable for
// instructions instructions before halting (0 means run forever).
func NewStubCPUCore(instructions int64) *StubCPUCore {
	return &StubCPUCore{InstructionsToRun: instructions}
}

func (c *StubCPUCore) RunQuantum(budget int64) (int64, bool) {
	if c.Halted {
		return budget, true
	}
	if c.InstructionsToRun > 0 {
		c.InstructionsToRun--
		if c.InstructionsToRun == 0 {
			c.Halted = true
		}
	}
	consumed := CCPerInst
	if consumed > budget {
		consumed = budget
	}
	if consumed <= 0 {
		consumed = 1
	}
	return consumed, c.Halted
}

func (c *StubCPUCore) DeliverInterrupt(vector uint8) {
	c.DeliveredVectors = append(c.DeliveredVectors, vector)
}

func (c *StubCPUCore) Reset() {
	c.Halted = false
	c.DeliveredVectors = nil
}
