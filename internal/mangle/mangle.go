// Package mangle turns a hierarchical job identity into a short,
// collision-safe, filesystem-legal directory name.
//
// The name is a sanitized prefix joined to a fixed-width hash suffix:
//
//	stuff-dev_252Fflow.k7q0mz
//
// The prefix keeps the name recognizable for humans; the suffix carries the
// actual uniqueness. The suffix is derived from the raw, unescaped,
// untruncated full name, so two identities whose prefixes sanitize or
// truncate to the same string still get distinct names.
package mangle

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
)

const (
	// DefaultBudget is the default maximum mangled name length.
	DefaultBudget = 80

	// MinBudget is the smallest budget accepted by configuration when
	// mangling is enabled. Below this, prefixes degrade to the point of
	// being useless for operators browsing the workspace root.
	MinBudget = 54

	// SuffixLength is the fixed width of the hash suffix.
	SuffixLength = 6

	// segmentSeparator joins identity segments in the mangled prefix.
	segmentSeparator = "-"

	// escapeMarker introduces a hex-escaped code point in the prefix.
	escapeMarker = '_'
)

const base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// Name computes the mangled directory name for id under the given length
// budget. It is a pure function: the same identity and budget always yield
// the same name, within one process and across restarts and nodes.
//
// A budget of 0 disables mangling entirely and returns the raw slash-joined
// full name, restoring the nested-by-hierarchy layout for tooling that
// cannot tolerate escape markers.
func Name(id identity.Identity, budget int) string {
	if budget == 0 {
		return id.FullName()
	}

	sanitized := sanitize(strings.Join(id.Segments(), segmentSeparator))
	suffix := Suffix(id)

	maxPrefix := budget - 1 - SuffixLength
	if maxPrefix < 1 {
		// Budgets this small are rejected at configuration time; keep the
		// function total regardless.
		maxPrefix = 1
	}
	if len(sanitized) > maxPrefix {
		sanitized = sanitized[:maxPrefix]
	}

	return sanitized + "." + suffix
}

// Prefix returns the sanitized, untruncated prefix for id: segments joined
// with the hierarchy separator and escaped. The legacy allocation scheme
// built its directory names from this prefix plus a persisted counter.
func Prefix(id identity.Identity) string {
	return sanitize(strings.Join(id.Segments(), segmentSeparator))
}

// Suffix computes the fixed-width hash suffix for id: a blake3 digest of the
// raw full name, reduced to SuffixLength lowercase base-36 characters.
//
// blake3 is stable across processes and nodes and distributes uniformly;
// the suffix is a disambiguator, not a cryptographic commitment.
func Suffix(id identity.Identity) string {
	digest := blake3.Sum256([]byte(id.FullName()))
	value := binary.BigEndian.Uint64(digest[:8])

	var space uint64 = 1
	for i := 0; i < SuffixLength; i++ {
		space *= 36
	}
	value %= space

	buf := make([]byte, SuffixLength)
	for i := SuffixLength - 1; i >= 0; i-- {
		buf[i] = base36Digits[value%36]
		value /= 36
	}
	return string(buf)
}

// sanitize escapes every rune outside the safe set (ASCII letters, digits,
// hyphen, underscore, period) as the escape marker followed by the uppercase
// hex code point: at least two digits, more for runes above U+00FF
// ("€" becomes "_20AC"), and invalid UTF-8 decodes to "_FFFD". The
// percent sign used by the upstream encoding layer is the most common
// casualty: "dev%2Fflow" becomes "dev_252Fflow".
//
// The output is pure ASCII, so byte-wise truncation afterwards is safe.
func sanitize(joined string) string {
	var b strings.Builder
	b.Grow(len(joined))
	for _, r := range joined {
		if isSafe(r) {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "%c%02X", escapeMarker, r)
	}
	return b.String()
}

func isSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.':
		return true
	}
	return false
}
