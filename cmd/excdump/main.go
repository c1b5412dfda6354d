//go:build !tinygo

// Command excdump prints (or clears) the exception record a halted machine
// left in its host flash image.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"smpboot/hal"
	"smpboot/kernel"
)

const defaultRecordSize = 4096

func main() {
	var (
		flashPath string
		addr      uint
		size      uint
		erase     bool
	)
	flag.StringVar(&flashPath, "flash", "", "Flash image path (default $"+hal.FlashPathEnv+" or smpboot.flash).")
	flag.UintVar(&addr, "addr", 0, "Flash address of the exception record.")
	flag.UintVar(&size, "size", defaultRecordSize, "Exception buffer size (bytes).")
	flag.BoolVar(&erase, "erase", false, "Erase the record after printing it.")
	flag.Parse()

	if size == 0 || addr > uint(^uint32(0)) {
		fmt.Fprintln(os.Stderr, "error: invalid -addr or -size")
		os.Exit(2)
	}
	if err := run(os.Stdout, flashPath, uint32(addr), int(size), erase); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(w io.Writer, flashPath string, addr uint32, size int, erase bool) error {
	f, err := hal.OpenHostFlash(flashPath)
	if err != nil {
		return err
	}
	defer f.Close()

	exc := kernel.NewExcInfo(nil)
	if err := exc.Register(addr, make([]byte, size), kernel.NewFlashStore(f)); err != nil {
		return err
	}

	p := make([]byte, size)
	n, err := exc.ReadRecord(p)
	if err != nil {
		return fmt.Errorf("read record at %#x: %w", addr, err)
	}
	if n == 0 {
		fmt.Fprintln(w, "no exception record")
	} else {
		w.Write(p[:n])
		if p[n-1] != '\n' {
			fmt.Fprintln(w)
		}
	}

	if !erase {
		return nil
	}
	exc.SetOffset(0)
	if err := exc.Flush(); err != nil {
		return fmt.Errorf("erase record: %w", err)
	}
	fmt.Fprintln(w, "record cleared")
	return nil
}
