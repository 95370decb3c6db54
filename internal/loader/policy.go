package loader

import (
	"fmt"
	"strings"
)

// SkipMode decides which dropped rows engage skip-forward.
//
// Skip-forward assumes rows sharing a key are contiguous in the source. Once a
// row is dropped, following rows with the same key are skipped without a store
// round trip until the key changes.
type SkipMode int

const (
	// SkipMissing engages only when the referenced film is absent. The film
	// cannot appear later in the same load, so no valid row is lost.
	SkipMissing SkipMode = iota
	// SkipOff never skips.
	SkipOff
	// SkipAny also engages on constraint violations such as duplicate edges.
	// When the contiguity assumption does not hold, valid rows for a repeated
	// key later in the stream are dropped.
	SkipAny
)

// ParseSkipMode accepts "off", "missing" and "any". Empty means "missing".
func ParseSkipMode(s string) (SkipMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "missing":
		return SkipMissing, nil
	case "off", "none", "false":
		return SkipOff, nil
	case "any", "all", "true":
		return SkipAny, nil
	default:
		return SkipMissing, fmt.Errorf("unknown skip_forward mode %q (want off, missing or any)", s)
	}
}

func (m SkipMode) String() string {
	switch m {
	case SkipOff:
		return "off"
	case SkipAny:
		return "any"
	default:
		return "missing"
	}
}

func (m SkipMode) engagesOnMissing() bool { return m == SkipMissing || m == SkipAny }

func (m SkipMode) engagesOnConflict() bool { return m == SkipAny }
