package svga

import (
	"testing"

	"example.com/pc430tx/machine/devices"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	buf           []byte
	width, height int
}

func (c *captureSink) PushFrame(buf []byte, width, height, stride int) {
	c.buf = append([]byte(nil), buf...)
	c.width, c.height = width, height
}

func enableMode13h(s *SVGADevice) {
	// GR5: write mode 0, color256 (chain-4 packed) set.
	s.HandleIO(portGrIndex, devices.IODirectionOut, 1, []byte{0x05})
	s.HandleIO(portGrData, devices.IODirectionOut, 1, []byte{0x40})
	// SR4: chain-4 addressing enabled.
	s.HandleIO(portSeqIndex, devices.IODirectionOut, 1, []byte{0x04})
	s.HandleIO(portSeqData, devices.IODirectionOut, 1, []byte{0x08})
}

func TestVGAWindowAndLFBAgreeInMode13h(t *testing.T) {
	s := NewSVGADevice(nil)
	enableMode13h(s)

	// Both addr parameters are offsets already relative to their
	// respective aperture base, as the caller's address decode hands
	// them in (0xA0000-relative for the legacy window, BAR-relative for
	// the LFB): the two views must then agree on the same flat offset.
	s.WriteVGAWindow(0x0000, 0x42)
	s.WriteVGAWindow(0x0001, 0x43)

	require.Equal(t, byte(0x42), s.ReadLFB(0x0000))
	require.Equal(t, byte(0x43), s.ReadLFB(0x0001))
	require.Equal(t, byte(0x42), s.ReadVGAWindow(0x0000))

	s.WriteLFB(0x0002, 0x44)
	require.Equal(t, byte(0x44), s.ReadVGAWindow(0x0002))
}

func TestPlanarWriteModeZeroRoundTrip(t *testing.T) {
	s := NewSVGADevice(nil)
	// Default reset state is 16-color planar addressing (chain-4 off).
	s.regs.SR.planeMask = 0x0F
	s.regs.GR.bitMask = 0xFF

	s.WriteVGAWindow(0x1234, 0xAB)
	// Plane 0 select on read map.
	s.regs.GR.readMapSel = 0
	require.Equal(t, byte(0xAB), s.ReadVGAWindow(0x1234))
}

func TestPCIBARsGateDecodeAndAddress(t *testing.T) {
	s := NewSVGADevice(nil)
	require.False(t, s.MemDecodeEnabled())
	require.False(t, s.IODecodeEnabled())

	s.WriteConfig32(0x02, uint32(pciCmdMem|pciCmdIO))
	require.True(t, s.MemDecodeEnabled())
	require.True(t, s.IODecodeEnabled())

	s.WriteConfig32(0x04, 0xF0000000)
	require.Equal(t, uint32(0xF0000000), s.LFBBase())
}

func TestCRTCFrameCadenceMatchesVerticalTotal(t *testing.T) {
	s := NewSVGADevice(&captureSink{})
	sink := s.sink.(*captureSink)

	// Graphics mode, 256-color packed addressing: visibleDims reports
	// display-end+1 directly rather than scaling by dot-clock-per-char.
	s.regs.AR.modeCtrl = 0x01
	s.regs.GR.color256 = true

	// Program a small, fast-to-simulate mode: short horizontal/vertical totals.
	s.regs.CR.horizTotal = 9
	s.regs.CR.horizDispEnd = 7
	s.regs.CR.vertTotal = 19
	s.regs.CR.vertDispEnd = 15

	dotsPerFrame := int64(s.regs.CR.horizTotal+1) * int64(s.regs.CR.vertTotal+1)
	s.clockDots(dotsPerFrame)

	require.Equal(t, 8, sink.width)
	require.Equal(t, 16, sink.height)
}
