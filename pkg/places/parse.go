// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package places

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent classifies a chat line that addresses the place memory directly.
type Intent int

const (
	IntentNone Intent = iota
	// IntentRemember saves a named place, usually with inline coordinates.
	IntentRemember
	// IntentWhere asks for a known place.
	IntentWhere
	// IntentForget drops a known place.
	IntentForget
)

var (
	reXYZ = regexp.MustCompile(`(?i)x\s*[:=]?\s*(-?\d+)\s*[,;]?\s*y\s*[:=]?\s*(-?\d+)\s*[,;]?\s*z\s*[:=]?\s*(-?\d+)`)
	// Bare triple: "120 64 -40", "120, 64, -40".
	reTriple = regexp.MustCompile(`(-?\d+)\s*[,;]\s*(-?\d+)\s*[,;]\s*(-?\d+)|(-?\d+)\s+(-?\d+)\s+(-?\d+)`)

	reRemember = regexp.MustCompile(`(?i)\b(?:remember|save|mark)\s+(?:this\s+|that\s+|the\s+)?(?:place|spot|location)(?:\s+(?:as|called|named))?\s+(.+)$`)
	reWhere    = regexp.MustCompile(`(?i)\bwhere(?:'s|\s+is)\s+(?:the\s+|my\s+|our\s+)?(.+?)\s*\??$`)
	reForget   = regexp.MustCompile(`(?i)\bforget\s+(?:the\s+|about\s+)?(?:place\s+)?(.+)$`)
)

// ExtractCoords finds an x/y/z triple in text. Labeled coordinates win
// over a bare number triple.
func ExtractCoords(text string) (x, y, z int, ok bool) {
	if m := reXYZ.FindStringSubmatch(text); m != nil {
		return atoi3(m[1], m[2], m[3])
	}
	if m := reTriple.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			return atoi3(m[1], m[2], m[3])
		}
		return atoi3(m[4], m[5], m[6])
	}
	return 0, 0, 0, false
}

// DetectIntent classifies text as a place-memory request and extracts the
// place name. Inline coordinates and filler words are stripped from the
// name.
func DetectIntent(text string) (Intent, string) {
	if m := reRemember.FindStringSubmatch(text); m != nil {
		return IntentRemember, cleanName(m[1])
	}
	if m := reForget.FindStringSubmatch(text); m != nil {
		return IntentForget, cleanName(m[1])
	}
	if m := reWhere.FindStringSubmatch(text); m != nil {
		return IntentWhere, cleanName(m[1])
	}
	return IntentNone, ""
}

// cleanName strips coordinates and trailing connectives from a captured
// place name.
func cleanName(raw string) string {
	s := reXYZ.ReplaceAllString(raw, "")
	s = reTriple.ReplaceAllString(s, "")
	s = strings.Trim(s, ` "'.,:;`)
	for _, suffix := range []string{" is at", " at", " as", " here"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return NormalizeName(s)
}

func atoi3(a, b, c string) (int, int, int, bool) {
	x, errX := strconv.Atoi(a)
	y, errY := strconv.Atoi(b)
	z, errZ := strconv.Atoi(c)
	if errX != nil || errY != nil || errZ != nil {
		return 0, 0, 0, false
	}
	return x, y, z, true
}
