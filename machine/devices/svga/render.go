package svga

// renderFrame rasterizes the currently visible area into an RGBA8888
// buffer and hands it to the attached sink. Real hardware streams this
// scanline-by-scanline as the CRTC counters advance; this emulation
// renders the whole frame in one pass at vertical-display-end, which
// is externally indistinguishable for a sink that only observes
// complete frames.
func (s *SVGADevice) renderFrame() {
	if s.sink == nil {
		return
	}

	width, height := s.visibleDims()
	if width <= 0 || height <= 0 {
		return
	}
	stride := width * 4
	if cap(s.frameBuf) < stride*height {
		s.frameBuf = make([]byte, stride*height)
	}
	buf := s.frameBuf[:stride*height]

	switch {
	case !s.regs.AR.graphicsMode():
		s.renderText(buf, width, height, stride)
	case s.regs.GR.color256:
		s.renderPacked(buf, width, height, stride)
	default:
		s.renderPlanarGraphics(buf, width, height, stride)
	}

	s.sink.PushFrame(buf, width, height, stride)
}

// visibleDims derives the pixel dimensions of the current mode from
// the CRTC's programmed display-end points and the sequencer's
// dot-clock-per-character setting.
func (s *SVGADevice) visibleDims() (int, int) {
	dotsPerChar := 8
	if s.regs.SR.clockMode&0x01 == 0 {
		dotsPerChar = 9
	}
	width := (s.regs.CR.horizDispEnd + 1) * dotsPerChar
	if s.regs.GR.color256 || s.regs.hdr.allExtModes {
		width = s.regs.CR.horizDispEnd + 1
		if s.regs.CR.byteWordMode {
			width *= 2
		}
	}
	height := s.regs.CR.vertDispEnd + 1
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return width, height
}

func putRGBA(buf []byte, stride, x, y int, r, g, b byte) {
	off := y*stride + x*4
	if off+3 >= len(buf) {
		return
	}
	buf[off] = r
	buf[off+1] = g
	buf[off+2] = b
	buf[off+3] = 0xFF
}

// renderText draws character-cell text mode: plane 0 holds the
// character code, plane 1 the attribute byte, and plane 2 the glyph
// bitmap, each character cell `dotsPerChar` pixels wide and
// `maxScanLine+1` pixels tall.
func (s *SVGADevice) renderText(buf []byte, width, height, stride int) {
	glyphH := s.regs.CR.maxScanLine + 1
	if glyphH <= 0 {
		glyphH = 16
	}
	dotsPerChar := 8
	if s.regs.SR.clockMode&0x01 == 0 {
		dotsPerChar = 9
	}
	cols := width / dotsPerChar
	rows := height / glyphH
	pitch := (s.regs.CR.offset) * 2
	if pitch <= 0 {
		pitch = cols * 2
	}

	base := uint32(s.crtc.screenStart) * 2

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cellOff := base + uint32(row*pitch+col*2)
			ch := s.vram.planeByte(0, cellOff&planeMask)
			attr := s.vram.planeByte(1, (cellOff+1)&planeMask)
			fg := attr & 0x0F
			bg := (attr >> 4) & 0x07
			blinking := attr&0x80 != 0 && s.regs.AR.blinkEnabled()
			blinkOn := s.crtc.blinkCounter&0x10 == 0

			for line := 0; line < glyphH; line++ {
				glyphOff := uint32(ch)*32 + uint32(line)
				bits := s.vram.planeByte(2, glyphOff&planeMask)
				py := row*glyphH + line
				if py >= height {
					continue
				}
				for bit := 0; bit < 8; bit++ {
					px := col*dotsPerChar + bit
					if px >= width {
						continue
					}
					on := bits&(0x80>>uint(bit)) != 0
					if blinking && !blinkOn {
						on = false
					}
					idx := bg
					if on {
						idx = fg
					}
					r, g, b := s.paletteColor(idx)
					putRGBA(buf, stride, px, py, r, g, b)
				}
				if dotsPerChar == 9 && glyphH > 0 {
					px := col*dotsPerChar + 8
					if px < width {
						r, g, b := s.paletteColor(bg)
						putRGBA(buf, stride, px, py, r, g, b)
					}
				}
			}
		}
	}
}

// paletteColor resolves a 4-bit attribute index through the attribute
// controller's internal palette and then the DAC.
func (s *SVGADevice) paletteColor(idx byte) (r, g, b byte) {
	dacIdx := s.regs.AR.palette[idx&0x0F]
	e := s.dac.entries[dacIdx]
	return e[0], e[1], e[2]
}

// renderPlanarGraphics draws 4-bit-per-pixel planar graphics: each
// pixel's nibble is assembled one bit at a time from the corresponding
// bit position across all four planes.
func (s *SVGADevice) renderPlanarGraphics(buf []byte, width, height, stride int) {
	pitch := s.regs.CR.offset * 2
	if pitch <= 0 {
		pitch = (width / 8) * 1
	}
	base := uint32(s.crtc.screenStart)

	for y := 0; y < height; y++ {
		rowOff := base + uint32(y*pitch)
		for bx := 0; bx < width/8; bx++ {
			var planeBytes [4]byte
			for p := 0; p < 4; p++ {
				planeBytes[p] = s.vram.planeByte(p, (rowOff+uint32(bx))&planeMask)
			}
			for bit := 0; bit < 8; bit++ {
				var idx byte
				for p := 0; p < 4; p++ {
					if planeBytes[p]&(0x80>>uint(bit)) != 0 {
						idx |= 1 << p
					}
				}
				px := bx*8 + bit
				r, g, b := s.paletteColor(idx)
				putRGBA(buf, stride, px, y, r, g, b)
			}
		}
	}
}

// renderPacked draws 8-bit-per-pixel (and, under the HDR's extended
// modes, 15/16-bit truecolor) packed graphics straight out of linear
// VRAM.
func (s *SVGADevice) renderPacked(buf []byte, width, height, stride int) {
	pitch := s.regs.CR.offset * 2
	if pitch <= 0 {
		pitch = width
	}
	base := uint32(s.crtc.screenStart) * 4 // chain-4 byte offset

	bytesPerPixel := 1
	truecolor := s.regs.hdr.allExtModes && s.regs.hdr.control32k
	if truecolor {
		bytesPerPixel = 2
	}

	for y := 0; y < height; y++ {
		rowOff := base + uint32(y*pitch*bytesPerPixel)
		for x := 0; x < width; x++ {
			off := (rowOff + uint32(x*bytesPerPixel)) & vramMask
			if !truecolor {
				idx := s.vram.data[off]
				e := s.dac.entries[idx]
				putRGBA(buf, stride, x, y, e[0], e[1], e[2])
				continue
			}
			lo := s.vram.data[off]
			hi := s.vram.data[(off+1)&vramMask]
			word := uint16(lo) | uint16(hi)<<8
			var r, g, b byte
			if s.regs.hdr.mode555 {
				r = byte((word>>10)&0x1F) << 3
				g = byte((word>>5)&0x1F) << 3
				b = byte(word&0x1F) << 3
			} else {
				r = byte((word>>11)&0x1F) << 3
				g = byte((word>>5)&0x3F) << 2
				b = byte(word&0x1F) << 3
			}
			putRGBA(buf, stride, x, y, r, g, b)
		}
	}
}
