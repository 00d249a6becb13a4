// Package capability maps user-facing effect and palette names onto the
// numeric indices a device reported at connect time.
package capability

import "strings"

// Snapshot is the capability set reported by one device. Index position is
// the device-level identifier. A Snapshot is replaced wholesale on reconnect
// and never mutated in place.
type Snapshot struct {
	Effects  []string
	Palettes []string
}

// Empty reports whether no effect list is known.
func (s Snapshot) Empty() bool {
	return len(s.Effects) == 0
}

// Effect resolves an effect name to its index.
func (s Snapshot) Effect(name string) int {
	return Resolve(s.Effects, name)
}

// Palette resolves a palette name to its index.
func (s Snapshot) Palette(name string) int {
	return Resolve(s.Palettes, name)
}

// Resolve returns the index of target in list. Matching is case-insensitive
// and ignores surrounding whitespace: an exact match wins, otherwise the first
// entry containing target, otherwise 0. A miss is not an error; index 0 is the
// device's default entry.
func Resolve(list []string, target string) int {
	if len(list) == 0 {
		return 0
	}
	t := normalize(target)
	if t == "" {
		return 0
	}

	for i, entry := range list {
		if normalize(entry) == t {
			return i
		}
	}
	for i, entry := range list {
		if strings.Contains(normalize(entry), t) {
			return i
		}
	}
	return 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
