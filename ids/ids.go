// Package ids implements the core's ID Generators: the PUID allocator used
// for virtual clients and legacy-protocol users that lack a real UID, and
// the TS6-style base36 counter used to mint SIDs/UIDs for virtual
// sub-servers and clients this daemon spawns.
package ids

import (
	"fmt"
	"sync"
)

// SID identifies a server: 2-3 opaque characters in TS6/UnrealIRCd, or the
// server's own name in ngIRCd.
type SID string

// UID identifies a user: protocol-native once introduced, or a PUID
// (format "<origin>@<counter>") for virtual/legacy-protocol users.
type UID string

// IsPUID reports whether uid is a synthesised pseudo-UID rather than a
// protocol-native one. A PUID's literal form always contains '@'; this is
// the entirety of the predicate, by design, so it stays a single cheap
// lookup on the outbound _expandPUID path.
func IsPUID(uid UID) bool {
	for i := 0; i < len(uid); i++ {
		if uid[i] == '@' {
			return true
		}
	}
	return false
}

// PUIDGenerator produces pseudo-UIDs of the form "<origin>@<n>", unique
// only within one Network's lifetime, matching the scheme PyLink's
// utils.PUIDGenerator uses for ngIRCd (which has no native UID at all) and
// for legacy UnrealIRCd 3.2 NICK introductions.
type PUIDGenerator struct {
	mu      sync.Mutex
	counter uint64
}

// Next returns the next PUID for the given origin (typically a nick).
func (g *PUIDGenerator) Next(origin string) UID {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.counter
	g.counter++
	return UID(fmt.Sprintf("%s@%d", origin, n))
}

// ts6Alphabet is the 36-symbol alphabet TS6 SIDs/UIDs are drawn from:
// letters first, then digits, matching what ircd-ratbox/charybdis-family
// genid implementations use and what the teacher's own makeTS6ID test
// table encodes (0 -> "AAAAAA", 25 -> "AAAAAZ", 26 -> "AAAAA0", 35 ->
// "AAAAA9", 36 -> "AAAABA").
const ts6Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxTS6Counter is the largest counter value that still fits a 6-char
// ID: 36^6 - 1 (rendered "999999").
const maxTS6Counter = 36*36*36*36*36*36 - 1

// MakeTS6ID renders a monotonic counter as a 6-character base36 ID over
// ts6Alphabet, most significant symbol first, wrapping low positions into
// higher ones exactly like an odometer. It returns an error once counter
// exceeds the 6-character space.
func MakeTS6ID(counter uint64) (string, error) {
	if counter > maxTS6Counter {
		return "", fmt.Errorf("ts6 id counter %d exceeds 6-character space", counter)
	}

	buf := make([]byte, 6)
	n := counter
	for i := 5; i >= 0; i-- {
		buf[i] = ts6Alphabet[n%36]
		n /= 36
	}
	return string(buf), nil
}

// TS6IDGenerator mints successive TS6-form UIDs: a 6-char suffix appended
// to the owning server's SID. SIDs come from SIDGenerator instead.
type TS6IDGenerator struct {
	mu      sync.Mutex
	counter uint64
}

// NextUID returns the next UID for the given server SID: the SID followed
// by a 6-character base36 counter.
func (g *TS6IDGenerator) NextUID(sid SID) (UID, error) {
	g.mu.Lock()
	n := g.counter
	g.counter++
	g.mu.Unlock()

	suffix, err := MakeTS6ID(n)
	if err != nil {
		return "", err
	}
	return UID(string(sid) + suffix), nil
}

// SIDGenerator allocates fresh SIDs from a configured sidrange template
// (e.g. "1##" where '#' positions are filled from the counter), used when
// the daemon spawns virtual sub-servers.
type SIDGenerator struct {
	// Template is the sidrange pattern; every '#' is replaced with a digit
	// or letter from the counter, least-significant '#' last.
	Template string

	mu      sync.Mutex
	counter uint64
}

// Next allocates the next SID from the generator's template.
func (g *SIDGenerator) Next() (SID, error) {
	g.mu.Lock()
	n := g.counter
	g.counter++
	g.mu.Unlock()

	numHashes := 0
	for _, c := range g.Template {
		if c == '#' {
			numHashes++
		}
	}
	if numHashes == 0 {
		return "", fmt.Errorf("sidrange template %q has no '#' placeholders", g.Template)
	}

	suffix, err := MakeTS6ID(n)
	if err != nil {
		return "", err
	}
	// Use the tail of the base36 rendering, one char per '#'.
	if numHashes > len(suffix) {
		numHashes = len(suffix)
	}
	fill := []byte(suffix[len(suffix)-numHashes:])

	out := make([]byte, 0, len(g.Template))
	fi := 0
	for _, c := range g.Template {
		if c == '#' {
			out = append(out, fill[fi])
			fi++
			continue
		}
		out = append(out, byte(c))
	}
	return SID(out), nil
}
