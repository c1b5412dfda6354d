//go:build tinygo && !baremetal

package hal

import "runtime"

type tinyGoHostHAL struct {
	logger *tinyGoHostLogger
	fb     *tinyGoHostFramebuffer
	cores  *SimCores
}

// New returns a TinyGo-on-host HAL implementation.
//
// This is used by `tinygo run` targets like linux/wasm where there is no MCU
// pin mapping. Flash is unavailable, so exception records stay in RAM.
func New() HAL {
	l := &tinyGoHostLogger{}
	cores := NewSimCores(4, l)
	cores.Describe("simulated cortex-a9 (tinygo/"+runtime.GOOS+")", "GICv1 (simulated)")
	return &tinyGoHostHAL{
		logger: l,
		fb:     newTinyGoHostFramebuffer(320, 320),
		cores:  cores,
	}
}

func (h *tinyGoHostHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHostHAL) Display() Display { return tinyGoHostDisplay{fb: h.fb} }
func (h *tinyGoHostHAL) Flash() Flash     { return stubFlash{} }
func (h *tinyGoHostHAL) Cores() Cores     { return h.cores }

type tinyGoHostDisplay struct {
	fb Framebuffer
}

func (d tinyGoHostDisplay) Framebuffer() Framebuffer { return d.fb }

type tinyGoHostLogger struct{}

func (l *tinyGoHostLogger) WriteLineString(s string) {
	println(s)
}

func (l *tinyGoHostLogger) WriteLineBytes(b []byte) {
	println(string(b))
}
