//go:build !tinygo && cgo

package hal

import (
	"context"
	"image"

	"smpboot/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow boots the machine and shows its framebuffer in a desktop window.
// It blocks until the window closes. After a halt the window stays open on
// the last presented frame.
func RunWindow(ctx context.Context, host HostConfig, newApp AppFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := NewHost(host).(*hostHAL)
	step := newApp(ctx, h)

	g := &hostGame{h: h, step: step}
	ebiten.SetWindowTitle("smpboot (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h       *hostHAL
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	frame   uint32
	drawn   bool
	step    func() error
	halted  bool
}

func (g *hostGame) Update() error {
	if g.halted || g.step == nil {
		return nil
	}
	if err := g.step(); err != nil {
		if IsHalted(err) {
			g.halted = true
			return nil
		}
		return err
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil || g.img.Bounds().Dx() != fb.width || g.img.Bounds().Dy() != fb.height {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
		g.drawn = false
	}

	if frame := fb.snapshotRGB565(g.scratch); !g.drawn || frame != g.frame {
		expandRGB565(g.img.Pix, g.scratch)
		g.fbImg.WritePixels(g.img.Pix)
		g.frame = frame
		g.drawn = true
	}
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
