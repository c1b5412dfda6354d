//go:build !linux && !tinygo

package hal

import "runtime"

func pinThread(core int) error {
	_ = core
	runtime.LockOSThread()
	return nil
}
