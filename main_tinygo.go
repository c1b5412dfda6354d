//go:build tinygo

package main

import (
	"smpboot/app"
	"smpboot/hal"
)

func main() {
	app.Run(hal.New())
}
