package devices

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func enableMouseStreaming(m *PS2Mouse) {
	m.HandleCommand(PS2DevEnable)
}

func TestMousePacketScalesByResolutionAndInvertsY(t *testing.T) {
	m := NewPS2Mouse()
	enableMouseStreaming(m)

	// Resolution code 2 selects 4 counts/mm.
	m.HandleCommand(MouseCmdSetResolution)
	m.HandleCommand(2)

	m.MoveMouse(10, -5, 0)
	out := m.DrainOutput()
	require.Len(t, out, 3)

	// dx = 10*4 = 40, dy reported inverted and scaled: -(-5)*4 = 20.
	require.Equal(t, byte(40), out[1])
	require.Equal(t, byte(20), out[2])
	require.Zero(t, out[0]&0x10) // no negative-X overflow bit
	require.Zero(t, out[0]&0x20) // no negative-Y overflow bit
}

func TestMousePacketSignBits(t *testing.T) {
	m := NewPS2Mouse()
	enableMouseStreaming(m)
	m.MoveMouse(-3, 3, 0) // default resolution (code 2 -> scale 4)
	out := m.DrainOutput()
	require.Len(t, out, 3)
	require.NotZero(t, out[0]&0x10, "dx negative overflow/sign bit should be set")
	require.NotZero(t, out[0]&0x20, "dy negative overflow/sign bit should be set")
}

func TestMouseButtonBitsReportedInStatus(t *testing.T) {
	m := NewPS2Mouse()
	enableMouseStreaming(m)
	m.MoveMouse(0, 0, 0x05) // left + right button
	out := m.DrainOutput()
	require.Len(t, out, 3)
	require.Equal(t, byte(0x05), out[0]&0x07)
}

func TestMouseRemoteModeOnlyReportsOnPoll(t *testing.T) {
	m := NewPS2Mouse()
	enableMouseStreaming(m)
	m.HandleCommand(MouseCmdSetRemote)
	m.MoveMouse(5, 5, 0)
	require.Empty(t, m.DrainOutput(), "remote mode must not stream unsolicited packets")

	resp := m.HandleCommand(MouseCmdReadData)
	require.Len(t, resp, 4) // ack + 3-byte packet
	require.Equal(t, PS2AckByte, resp[0])
}

func TestMouseDisabledDropsMovement(t *testing.T) {
	m := NewPS2Mouse()
	m.HandleCommand(PS2DevDisable)
	m.MoveMouse(10, 10, 0)
	require.Empty(t, m.DrainOutput())
}
