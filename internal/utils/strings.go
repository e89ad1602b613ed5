package utils

import "strings"

const hexDigits = "0123456789ABCDEF"

// HexSpaced formats bytes as uppercase hex pairs separated by spaces
// (for example: "41 FF 00"). Output is meant for humans reading bus dumps.
func HexSpaced(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	buf := strings.Builder{}
	buf.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteByte(hexDigits[c>>4])
		buf.WriteByte(hexDigits[c&0xF])
	}
	return buf.String()
}
