//go:build tinygo

package kernel

// TinyGo has no goroutine stack dump.
func captureStack() []byte { return nil }
