// Package kfmt is a bounded printf-style formatter for fatal-error paths.
//
// Output goes into a caller-supplied slice which is never grown; text that
// does not fit is cut at the end of the slice and reported as ErrOverflow.
// The verb set follows C printf closely enough that messages written for the
// C kernel keep working: %d %i %u %x %X %o %b %c %s %p %v %t and %%, with the
// flags "-0+ #", a width (or *) and a precision (or .*). C length modifiers
// (h, l, ll, z, j) are accepted and ignored.
package kfmt

import (
	"errors"
	"unicode/utf8"
)

// ErrOverflow is returned when the formatted text did not fit in dst.
var ErrOverflow = errors.New("kfmt: output truncated")

// Bprintf formats according to format and writes into dst.
// It returns the number of bytes written.
func Bprintf(dst []byte, format string, args ...any) (int, error) {
	return Bprintv(dst, format, args)
}

// Bprintv is Bprintf with an already-captured argument list.
func Bprintv(dst []byte, format string, args []any) (int, error) {
	w := writer{buf: dst}
	w.format(format, args)
	if w.overflow {
		return w.n, ErrOverflow
	}
	return w.n, nil
}

type spec struct {
	minus, zero, plus, space, sharp bool

	width   int
	prec    int
	hasPrec bool
}

type writer struct {
	buf      []byte
	n        int
	overflow bool
}

func (w *writer) writeByte(c byte) {
	if w.n >= len(w.buf) {
		w.overflow = true
		return
	}
	w.buf[w.n] = c
	w.n++
}

func (w *writer) writeString(s string) {
	for i := 0; i < len(s); i++ {
		if w.overflow {
			return
		}
		w.writeByte(s[i])
	}
}

func (w *writer) writeBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		if w.overflow {
			return
		}
		w.writeByte(b[i])
	}
}

func (w *writer) pad(c byte, n int) {
	for ; n > 0 && !w.overflow; n-- {
		w.writeByte(c)
	}
}

func (w *writer) format(format string, args []any) {
	argi := 0
	nextArg := func() (any, bool) {
		if argi >= len(args) {
			return nil, false
		}
		a := args[argi]
		argi++
		return a, true
	}

	for i := 0; i < len(format) && !w.overflow; i++ {
		c := format[i]
		if c != '%' {
			w.writeByte(c)
			continue
		}
		i++

		var sp spec
	flags:
		for ; i < len(format); i++ {
			switch format[i] {
			case '-':
				sp.minus = true
			case '0':
				sp.zero = true
			case '+':
				sp.plus = true
			case ' ':
				sp.space = true
			case '#':
				sp.sharp = true
			default:
				break flags
			}
		}

		if i < len(format) && format[i] == '*' {
			i++
			if a, ok := nextArg(); ok {
				if v, neg, ok := integer(a); ok {
					sp.width = int(v)
					sp.minus = sp.minus || neg
				}
			}
		} else {
			sp.width, i = atoi(format, i)
		}

		if i < len(format) && format[i] == '.' {
			i++
			if i < len(format) && format[i] == '*' {
				i++
				// A negative or non-integer precision argument means no precision.
				if a, ok := nextArg(); ok {
					if v, neg, ok := integer(a); ok && !neg {
						sp.prec = int(v)
						sp.hasPrec = true
					}
				}
			} else {
				sp.hasPrec = true
				sp.prec, i = atoi(format, i)
			}
		}

		for i < len(format) && isLengthModifier(format[i]) {
			i++
		}

		if i >= len(format) {
			w.writeString("%!(NOVERB)")
			return
		}

		verb := format[i]
		if verb == '%' {
			w.writeByte('%')
			continue
		}

		a, ok := nextArg()
		if !ok {
			w.writeByte('%')
			w.writeByte('!')
			w.writeByte(verb)
			w.writeString("(MISSING)")
			continue
		}
		w.arg(verb, a, sp)
	}
}

func (w *writer) arg(verb byte, a any, sp spec) {
	switch verb {
	case 'd', 'i':
		if u, neg, ok := integer(a); ok {
			w.integer(u, neg, 10, false, sp)
			return
		}
	case 'u':
		if u, neg, ok := integer(a); ok {
			if neg {
				u = -u
			}
			w.integer(u, false, 10, false, sp)
			return
		}
	case 'x', 'X':
		upper := verb == 'X'
		if u, neg, ok := integer(a); ok {
			w.integer(u, neg, 16, upper, sp)
			return
		}
		switch v := a.(type) {
		case string:
			hexString(w, v, upper, sp)
			return
		case []byte:
			hexString(w, v, upper, sp)
			return
		}
	case 'o':
		if u, neg, ok := integer(a); ok {
			w.integer(u, neg, 8, false, sp)
			return
		}
	case 'b':
		if u, neg, ok := integer(a); ok {
			w.integer(u, neg, 2, false, sp)
			return
		}
	case 'c':
		if u, _, ok := integer(a); ok {
			var tmp [utf8.UTFMax]byte
			n := utf8.EncodeRune(tmp[:], rune(u))
			w.padded(tmp[:n], sp)
			return
		}
	case 'p':
		if u, _, ok := integer(a); ok {
			sp.sharp = true
			w.integer(u, false, 16, false, sp)
			return
		}
	case 's':
		if b, ok := a.([]byte); ok {
			if sp.hasPrec && sp.prec < len(b) {
				b = b[:sp.prec]
			}
			w.padded(b, sp)
			return
		}
		if s, ok := stringOf(a); ok {
			if sp.hasPrec && sp.prec < len(s) {
				s = s[:sp.prec]
			}
			w.paddedString(s, sp)
			return
		}
	case 't':
		if b, ok := a.(bool); ok {
			w.paddedString(boolString(b), sp)
			return
		}
	case 'v':
		w.value(a, sp)
		return
	}

	w.writeByte('%')
	w.writeByte('!')
	w.writeByte(verb)
	w.writeByte('(')
	w.value(a, spec{})
	w.writeByte(')')
}

func (w *writer) value(a any, sp spec) {
	if a == nil {
		w.paddedString("<nil>", sp)
		return
	}
	if u, neg, ok := integer(a); ok {
		w.integer(u, neg, 10, false, sp)
		return
	}
	if b, ok := a.(bool); ok {
		w.paddedString(boolString(b), sp)
		return
	}
	if b, ok := a.([]byte); ok {
		w.padded(b, sp)
		return
	}
	if s, ok := stringOf(a); ok {
		w.paddedString(s, sp)
		return
	}
	w.writeString("?")
}

func (w *writer) integer(u uint64, neg bool, base uint64, upper bool, sp spec) {
	digits := "0123456789abcdef"
	if upper {
		digits = "0123456789ABCDEF"
	}

	var tmp [64]byte
	i := len(tmp)
	if u == 0 && !(sp.hasPrec && sp.prec == 0) {
		i--
		tmp[i] = '0'
	}
	for u > 0 {
		i--
		tmp[i] = digits[u%base]
		u /= base
	}
	if sp.hasPrec {
		for len(tmp)-i < sp.prec && i > 0 {
			i--
			tmp[i] = '0'
		}
	}
	body := tmp[i:]

	var pre [3]byte
	np := 0
	switch {
	case neg:
		pre[np] = '-'
		np++
	case sp.plus:
		pre[np] = '+'
		np++
	case sp.space:
		pre[np] = ' '
		np++
	}
	if sp.sharp {
		switch base {
		case 16:
			pre[np] = '0'
			pre[np+1] = 'x'
			if upper {
				pre[np+1] = 'X'
			}
			np += 2
		case 8:
			if len(body) == 0 || body[0] != '0' {
				pre[np] = '0'
				np++
			}
		case 2:
			pre[np] = '0'
			pre[np+1] = 'b'
			np += 2
		}
	}

	fill := sp.width - np - len(body)
	switch {
	case sp.minus:
		w.writeBytes(pre[:np])
		w.writeBytes(body)
		w.pad(' ', fill)
	case sp.zero && !sp.hasPrec:
		w.writeBytes(pre[:np])
		w.pad('0', fill)
		w.writeBytes(body)
	default:
		w.pad(' ', fill)
		w.writeBytes(pre[:np])
		w.writeBytes(body)
	}
}

func hexString[T ~string | ~[]byte](w *writer, s T, upper bool, sp spec) {
	digits := "0123456789abcdef"
	if upper {
		digits = "0123456789ABCDEF"
	}
	fill := sp.width - 2*len(s)
	if !sp.minus {
		w.pad(' ', fill)
	}
	for i := 0; i < len(s) && !w.overflow; i++ {
		w.writeByte(digits[s[i]>>4])
		w.writeByte(digits[s[i]&0x0F])
	}
	if sp.minus {
		w.pad(' ', fill)
	}
}

func (w *writer) padded(b []byte, sp spec) {
	fill := sp.width - len(b)
	if !sp.minus {
		w.pad(' ', fill)
	}
	w.writeBytes(b)
	if sp.minus {
		w.pad(' ', fill)
	}
}

func (w *writer) paddedString(s string, sp spec) {
	fill := sp.width - len(s)
	if !sp.minus {
		w.pad(' ', fill)
	}
	w.writeString(s)
	if sp.minus {
		w.pad(' ', fill)
	}
}

// integer returns the magnitude of an integer argument and whether it is negative.
func integer(a any) (u uint64, neg bool, ok bool) {
	var s int64
	switch v := a.(type) {
	case int:
		s = int64(v)
	case int8:
		s = int64(v)
	case int16:
		s = int64(v)
	case int32:
		s = int64(v)
	case int64:
		s = v
	case uint:
		return uint64(v), false, true
	case uint8:
		return uint64(v), false, true
	case uint16:
		return uint64(v), false, true
	case uint32:
		return uint64(v), false, true
	case uint64:
		return v, false, true
	case uintptr:
		return uint64(v), false, true
	default:
		return 0, false, false
	}
	if s < 0 {
		return uint64(-s), true, true
	}
	return uint64(s), false, true
}

type stringer interface {
	String() string
}

func stringOf(a any) (string, bool) {
	switch v := a.(type) {
	case string:
		return v, true
	case error:
		return v.Error(), true
	case stringer:
		return v.String(), true
	}
	return "", false
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func atoi(s string, i int) (int, int) {
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		if n < 1<<20 {
			n = n*10 + int(s[i]-'0')
		}
		i++
	}
	return n, i
}

func isLengthModifier(c byte) bool {
	switch c {
	case 'h', 'l', 'L', 'q', 'j', 'z':
		return true
	}
	return false
}
