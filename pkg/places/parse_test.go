// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package places

import "testing"

func TestExtractCoords(t *testing.T) {
	cases := []struct {
		text    string
		x, y, z int
		ok      bool
	}{
		{"the base is at x=120 y=64 z=-40", 120, 64, -40, true},
		{"x: 1, y: 2, z: 3", 1, 2, 3, true},
		{"remember the spot 120, 64, -40", 120, 64, -40, true},
		{"coords 120 64 -40 roughly", 120, 64, -40, true},
		{"no numbers here", 0, 0, 0, false},
		{"just one number 42", 0, 0, 0, false},
	}
	for _, tc := range cases {
		x, y, z, ok := ExtractCoords(tc.text)
		if ok != tc.ok || x != tc.x || y != tc.y || z != tc.z {
			t.Fatalf("%q: got (%d,%d,%d,%v), want (%d,%d,%d,%v)",
				tc.text, x, y, z, ok, tc.x, tc.y, tc.z, tc.ok)
		}
	}
}

func TestDetectIntentRemember(t *testing.T) {
	cases := []struct {
		text string
		name string
	}{
		{"remember this place as base 120, 64, -40", "base"},
		{"save the location home x=0 y=64 z=0", "home"},
		{"mark this spot called iron mine", "iron mine"},
	}
	for _, tc := range cases {
		intent, name := DetectIntent(tc.text)
		if intent != IntentRemember || name != tc.name {
			t.Fatalf("%q: got (%v, %q), want (remember, %q)", tc.text, intent, name, tc.name)
		}
	}
}

func TestDetectIntentWhere(t *testing.T) {
	for _, text := range []string{"where is the base?", "where's the base", "where is our base"} {
		intent, name := DetectIntent(text)
		if intent != IntentWhere || name != "base" {
			t.Fatalf("%q: got (%v, %q)", text, intent, name)
		}
	}
}

func TestDetectIntentForget(t *testing.T) {
	intent, name := DetectIntent("forget the place old camp")
	if intent != IntentForget || name != "old camp" {
		t.Fatalf("got (%v, %q)", intent, name)
	}
}

func TestDetectIntentNone(t *testing.T) {
	for _, text := range []string{"hello there", "go to the base", "what a nice day"} {
		if intent, _ := DetectIntent(text); intent != IntentNone {
			t.Fatalf("%q: expected no intent, got %v", text, intent)
		}
	}
}
