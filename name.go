// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// nameReplacement substitutes non-ASCII runes when encoding names.
const nameReplacement = '?'

// EncodeName returns the fixed 24-byte NUL-padded directory name field.
// Non-ASCII runes become '?', the name is cut at the first NUL and
// truncated to 23 bytes so the terminator always fits.
func EncodeName(name string) [nameFieldSize]byte {
	var field [nameFieldSize]byte
	copy(field[:maxNameLen], asciiName(name))
	return field
}

// DecodeName reads a name from a directory name field up to the first NUL.
// Bytes outside ASCII decode to U+FFFD.
func DecodeName(field []byte) string {
	if idx := bytes.IndexByte(field, 0); idx >= 0 {
		field = field[:idx]
	}

	for _, b := range field {
		if b >= utf8.RuneSelf {
			return decodeNonASCIIName(field)
		}
	}

	return string(field)
}

// TruncateName returns the name exactly as it will be stored on disk and read back.
func TruncateName(name string) string {
	stored := asciiName(name)
	if len(stored) > maxNameLen {
		stored = stored[:maxNameLen]
	}

	return string(stored)
}

// asciiName maps a name to ASCII bytes cut at the first NUL.
func asciiName(name string) []byte {
	out := make([]byte, 0, len(name))
	for _, r := range name {
		if r == 0 {
			break
		}
		if r >= utf8.RuneSelf {
			out = append(out, nameReplacement)
			continue
		}

		out = append(out, byte(r))
	}

	return out
}

// decodeNonASCIIName decodes a name field that contains high bytes.
func decodeNonASCIIName(field []byte) string {
	var b strings.Builder
	b.Grow(len(field) + 8)
	for _, ch := range field {
		if ch >= utf8.RuneSelf {
			b.WriteRune(utf8.RuneError)
			continue
		}

		b.WriteByte(ch)
	}

	return b.String()
}

// nameKey returns case-insensitive lookup key for entry names.
func nameKey(name string) string {
	return strings.ToLower(name)
}
