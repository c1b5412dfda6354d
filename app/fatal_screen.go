package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"smpboot/hal"
	"smpboot/kernel"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freemono"
)

var (
	fatalBackground = color.RGBA{R: 0x00, G: 0x00, B: 0xAA, A: 0xFF}
	fatalForeground = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

var _ drivers.Displayer = fbDisplay{}

// installFatalScreen logs the exception record and draws it on the display
// when the kernel panics.
func installFatalScreen(sys *kernel.System, h hal.HAL) {
	sys.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := fatalLines(info)
		if l := h.Logger(); l != nil {
			for _, line := range lines[1:] {
				l.WriteLineString("excinfo: " + line)
			}
		}

		disp := h.Display()
		if disp == nil {
			return
		}
		if fb := disp.Framebuffer(); fb != nil && fb.Buffer() != nil {
			drawFatalScreen(fb, lines)
		}
	})
}

// fatalLines is the text of the fatal screen: a title, then the exception
// record, or the panic message when no record was kept.
func fatalLines(info kernel.PanicInfo) []string {
	lines := []string{fmt.Sprintf("KERNEL PANIC (cpu%d)", info.Core)}
	record := string(info.Record)
	if record == "" {
		return append(lines, info.Message)
	}
	for _, line := range strings.Split(record, "\n") {
		line = strings.ReplaceAll(line, "\t", "  ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func drawFatalScreen(fb hal.Framebuffer, lines []string) {
	font := &freemono.Regular9pt7b
	fontHeight := int16(font.GetYAdvance())
	_, outboxWidth := tinyfont.LineWidth(font, "0")
	fontWidth := int16(outboxWidth)

	fb.ClearRGB(fatalBackground.R, fatalBackground.G, fatalBackground.B)
	if fontWidth <= 0 || fontHeight <= 0 {
		_ = fb.Present()
		return
	}

	d := fbDisplay{fb: fb}
	cols := int16(fb.Width()) / fontWidth
	if cols <= 0 {
		cols = 1
	}
	maxH := int16(fb.Height())

	y := int16(0)
	for _, line := range lines {
		for len(line) > 0 {
			if y+fontHeight > maxH {
				_ = fb.Present()
				return
			}
			chunk, rest := takeRunes(line, cols)
			tinyfont.WriteLine(d, font, 0, y+fontHeight*3/4, chunk, fatalForeground)
			y += fontHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	_ = fb.Present()
}

// fbDisplay draws into an RGB565 framebuffer.
type fbDisplay struct {
	fb hal.Framebuffer
}

func (d fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	if d.fb == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	buf := d.fb.Buffer()
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}

	pixel := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
	off := iy*d.fb.StrideBytes() + ix*2
	if off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d fbDisplay) Display() error { return nil }

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	var i int
	for count := int16(0); i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
