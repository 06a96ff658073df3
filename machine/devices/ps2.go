package devices

import (
	"fmt"
	"sync"
)

// PS2Controller implements the 8042-style keyboard/auxiliary
// controller: a single output-buffer byte stream multiplexed between
// the keyboard and the PS/2 mouse, and the handful of controller-level
// commands (self test, enable/disable each
// port, read/write the configuration byte) a BIOS POST exercises before
// handing control to the OS. The configuration byte's translate bit is
// stored and read back, but no scancode translation is performed:
// keyboard bytes reach the output buffer unchanged.
type PS2Controller struct {
	lock sync.Mutex
	irq  InterruptRaiser

	kbd   *PS2Keyboard
	mouse *PS2Mouse

	config byte

	outBuf    []byte
	outIsAux  []bool
	awaitCfg  bool
	awaitLED  bool
	toMouse   bool
	kbdEnable bool
	auxEnable bool
}

// NewPS2Controller creates a controller wired to irq for IRQ1/IRQ12.
func NewPS2Controller(irq InterruptRaiser, kbd *PS2Keyboard, mouse *PS2Mouse) *PS2Controller {
	c := &PS2Controller{irq: irq, kbd: kbd, mouse: mouse}
	c.Reset()
	return c
}

func (c *PS2Controller) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.config = PS2CfgKbdIRQ | PS2CfgMouseIRQ | PS2CfgSystem
	c.outBuf = nil
	c.outIsAux = nil
	c.awaitCfg = false
	c.toMouse = false
	c.kbdEnable = true
	c.auxEnable = true
	c.kbd.Reset()
	c.mouse.Reset()
}

func (c *PS2Controller) NextEventCC() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	next := c.kbd.NextEventCC()
	if m := c.mouse.NextEventCC(); m < next {
		next = m
	}
	return next
}

func (c *PS2Controller) Clock(cc int64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.kbd.Clock(cc)
	c.mouse.Clock(cc)
}

func (c *PS2Controller) EndIter() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, b := range c.kbd.DrainOutput() {
		c.push(b, false)
	}
	for _, b := range c.mouse.DrainOutput() {
		c.push(b, true)
	}
	c.raiseIfPending()
}

func (c *PS2Controller) push(b byte, aux bool) {
	c.outBuf = append(c.outBuf, b)
	c.outIsAux = append(c.outIsAux, aux)
}

func (c *PS2Controller) raiseIfPending() {
	if len(c.outBuf) == 0 || c.irq == nil {
		return
	}
	if c.outIsAux[0] {
		if c.config&PS2CfgMouseIRQ != 0 {
			c.irq.RaiseIRQ(IRQMouse)
		}
		return
	}
	if c.config&PS2CfgKbdIRQ != 0 {
		c.irq.RaiseIRQ(IRQKeyboard)
	}
}

func (c *PS2Controller) HandleIO(port uint16, direction uint8, size uint8, data []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if size != 1 {
		return fmt.Errorf("PS2Controller: I/O size %d not supported for port 0x%x", size, port)
	}

	val := byte(0)
	if direction == IODirectionOut {
		val = data[0]
	}

	switch port {
	case PS2PortStatus:
		if direction == IODirectionOut {
			c.handleCommand(val)
		} else {
			data[0] = c.statusRegister()
		}
	case PS2PortData:
		if direction == IODirectionOut {
			c.handleData(val)
		} else {
			data[0] = c.popOutput()
		}
	default:
		return fmt.Errorf("PS2Controller: unhandled I/O to port 0x%x", port)
	}
	return nil
}

func (c *PS2Controller) statusRegister() byte {
	var s byte
	if len(c.outBuf) > 0 {
		s |= PS2StatusOutputFull
		if c.outIsAux[0] {
			s |= PS2StatusAuxFull
		}
	}
	s |= PS2StatusSystem
	return s
}

func (c *PS2Controller) popOutput() byte {
	if len(c.outBuf) == 0 {
		return 0
	}
	b := c.outBuf[0]
	c.outBuf = c.outBuf[1:]
	c.outIsAux = c.outIsAux[1:]
	return b
}

func (c *PS2Controller) handleCommand(cmd byte) {
	switch cmd {
	case PS2CmdReadConfig:
		c.push(c.config, false)
	case PS2CmdWriteConfig:
		c.awaitCfg = true
	case PS2CmdDisableMouse:
		c.auxEnable = false
	case PS2CmdEnableMouse:
		c.auxEnable = true
	case PS2CmdTestMouse:
		c.push(0x00, false)
	case PS2CmdSelfTest:
		c.push(PS2SelfTestPass, false)
	case PS2CmdTestKbdIface:
		c.push(0x00, false)
	case PS2CmdDisableKbd:
		c.kbdEnable = false
	case PS2CmdEnableKbd:
		c.kbdEnable = true
	case PS2CmdWriteToMouse:
		c.toMouse = true
	default:
		// Pulse-output and vendor-specific commands: acknowledged
		// silently, nothing in this chipset depends on them.
	}
}

func (c *PS2Controller) handleData(val byte) {
	if c.awaitCfg {
		c.config = val
		c.awaitCfg = false
		return
	}
	if c.toMouse {
		c.toMouse = false
		for _, b := range c.mouse.HandleCommand(val) {
			c.push(b, true)
		}
		return
	}
	for _, b := range c.kbd.HandleCommand(val) {
		c.push(b, false)
	}
}
