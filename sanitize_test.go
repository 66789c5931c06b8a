// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"errors"
	"testing"
)

func TestSanitizePathSegment(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{in: "CON.txd", want: "_CON.txd"},
		{in: "  COM8.dff  ", want: "_COM8.dff"},
		{in: "..", want: "_"},
		{in: "plain.dff", want: "plain.dff"},
		{in: "a:b?.col", want: "a_b_.col"},
		{in: "name. ", want: "name"},
		{in: "AUX:", want: "_AUX_"},
		{in: "CLOCK$.ipl", want: "_CLOCK$.ipl"},
		{in: "a\x1b[31m.dff", want: "a_[31m.dff"},
		{in: "a\x7fb.txd", want: "a_b.txd"},
		{in: "caf\uFFFD.txd", want: "caf_.txd"},
	}

	for _, tc := range testCases {
		if got := sanitizePathSegment(tc.in); got != tc.want {
			t.Fatalf("sanitizePathSegment(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsReservedDeviceName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		want bool
	}{
		{name: "con", want: true},
		{name: "con.dff", want: true},
		{name: "AUX:", want: true},
		{name: "CLOCK$", want: true},
		{name: "nul.txd", want: true},
		{name: "infernus.dff", want: false},
		{name: "_con.dff", want: false},
	}

	for _, tc := range testCases {
		got := isReservedDeviceName(tc.name)
		if got != tc.want {
			t.Fatalf("isReservedDeviceName(%q)=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSanitizeEntryPathsCollision(t *testing.T) {
	t.Parallel()

	entries := []*Entry{
		{Name: "a:b.dff"},
		{Name: "a?b.dff"},
		{Name: "car.txd"},
		{Name: "CAR.TXD"},
		{Name: "car.TXD"},
	}

	got, err := sanitizeEntryPaths(entries)
	if err != nil {
		t.Fatalf("sanitizeEntryPaths: %v", err)
	}

	want := []string{"a_b.dff", "a_b~2.dff", "car.txd", "CAR~2.TXD", "car~3.TXD"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitizeEntryPathsMangledNames(t *testing.T) {
	t.Parallel()

	entries := []*Entry{
		{Name: `\\:\`},
		{Name: `..\evil.dff`},
		{Name: "models/CON.dff"},
		{Name: ""},
	}

	got, err := sanitizeEntryPaths(entries)
	if err != nil {
		t.Fatalf("sanitizeEntryPaths: %v", err)
	}

	want := []string{"_", "_/evil.dff", "models/_CON.dff", "_~2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	got, err := SanitizePath(`.\models\COM1.dff`)
	if err != nil {
		t.Fatalf("SanitizePath: %v", err)
	}
	if got != "models/_COM1.dff" {
		t.Fatalf("SanitizePath=%q, want models/_COM1.dff", got)
	}

	if got, err := SanitizePath(""); err != nil || got != "" {
		t.Fatalf("SanitizePath(empty)=%q err=%v", got, err)
	}
}

func TestNormalizeExtractEntryPath(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "/abs.dff", `\abs.dff`, "C:/x.dff", "../up.dff", "a\x00b"} {
		if _, err := normalizeExtractEntryPath(bad); !errors.Is(err, ErrInvalidExtractPath) {
			t.Fatalf("normalizeExtractEntryPath(%q) err=%v, want ErrInvalidExtractPath", bad, err)
		}
	}

	got, err := normalizeExtractEntryPath(`models\./cars//a.dff`)
	if err != nil || got != "models/cars/a.dff" {
		t.Fatalf("normalizeExtractEntryPath=%q err=%v", got, err)
	}
}
