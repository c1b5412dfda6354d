//go:build tinygo && baremetal

package hal

import (
	"machine"
)

type tinyGoHAL struct {
	logger *uartLogger
	fb     Framebuffer
	flash  Flash
	cores  *SimCores
}

// New returns a Pico 2 (RP2350) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// Both cores are modelled as goroutines on the TinyGo scheduler.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	logger := &uartLogger{uart: uart}
	cores := NewSimCores(2, logger)
	cores.Describe("rp2350 cortex-m33", "NVIC")
	return &tinyGoHAL{
		logger: logger,
		fb:     &stubFramebuffer{w: 320, h: 320, format: PixelFormatRGB565},
		flash:  newBoardFlash(),
		cores:  cores,
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) Display() Display { return tinyGoDisplay{fb: h.fb} }
func (h *tinyGoHAL) Flash() Flash     { return h.flash }
func (h *tinyGoHAL) Cores() Cores     { return h.cores }
