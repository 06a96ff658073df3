package devices

const (
	PS2PortData   uint16 = 0x60
	PS2PortStatus uint16 = 0x64 // read: status register. write: command register.
)

// Status register bits.
const (
	PS2StatusOutputFull byte = 0x01
	PS2StatusInputFull  byte = 0x02
	PS2StatusSystem     byte = 0x04
	PS2StatusCmdData    byte = 0x08 // 0 = last write was data (port 0x60), 1 = command (0x64)
	PS2StatusAuxFull    byte = 0x20 // output buffer byte came from the mouse, not the keyboard
	PS2StatusTimeout    byte = 0x40
	PS2StatusParity     byte = 0x80
)

// Controller command byte bits (read/written via 0x20/0x60 controller
// commands).
const (
	PS2CfgKbdIRQ    byte = 0x01
	PS2CfgMouseIRQ  byte = 0x02
	PS2CfgSystem    byte = 0x04
	PS2CfgKbdClkDis byte = 0x10
	PS2CfgMouseClkDis byte = 0x20
	PS2CfgTranslate byte = 0x40
)

// Controller commands (written to port 0x64).
const (
	PS2CmdReadConfig    byte = 0x20
	PS2CmdWriteConfig    byte = 0x60
	PS2CmdDisableMouse  byte = 0xA7
	PS2CmdEnableMouse   byte = 0xA8
	PS2CmdTestMouse     byte = 0xA9
	PS2CmdSelfTest      byte = 0xAA
	PS2CmdTestKbdIface  byte = 0xAB
	PS2CmdDisableKbd    byte = 0xAD
	PS2CmdEnableKbd     byte = 0xAE
	PS2CmdWriteToMouse  byte = 0xD4
	PS2CmdPulseOutput   byte = 0xFE // 0xF0-0xFF, low nibble selects which output lines to pulse
)

// Shared PS/2 device command set (keyboard and mouse both answer these
// the same way).
const (
	PS2DevReset     byte = 0xFF
	PS2DevResend    byte = 0xFE
	PS2DevSetDefault byte = 0xF6
	PS2DevDisable   byte = 0xF5
	PS2DevEnable    byte = 0xF4
	PS2DevEcho      byte = 0xEE
)

const (
	PS2AckByte      byte = 0xFA
	PS2ResendByte   byte = 0xFE
	PS2SelfTestPass byte = 0xAA
)

// Keyboard-specific commands.
const (
	KbdCmdSetLEDs      byte = 0xED
	KbdCmdEcho         byte = 0xEE
	KbdCmdScanCodeSet  byte = 0xF0
	KbdCmdIdentify     byte = 0xF2
	KbdCmdTypematic    byte = 0xF3
)

// Mouse-specific commands.
const (
	MouseCmdSetScaling1to1 byte = 0xE6
	MouseCmdSetScaling2to1 byte = 0xE7
	MouseCmdSetResolution  byte = 0xE8
	MouseCmdStatusRequest  byte = 0xE9
	MouseCmdSetStream      byte = 0xEA
	MouseCmdReadData       byte = 0xEB
	MouseCmdSetRemote      byte = 0xF0
	MouseCmdIdentify       byte = 0xF2
	MouseCmdSetSampleRate  byte = 0xF3
)
