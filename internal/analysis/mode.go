package analysis

import "fmt"

// Mode selects which filter policy the engine applies.
type Mode int

const (
	// ModeAuto picks Live or Position from the cleaned chain's total
	// volume. This is a heuristic proxy for "market currently active"
	// versus "closed/pre-market", not a real session check.
	ModeAuto Mode = iota
	// ModeLive forces volume-based filtering.
	ModeLive
	// ModePosition forces open-interest-based filtering.
	ModePosition
)

// autoVolumeThreshold is the cleaned-chain total volume above which auto
// mode trusts the volume signal (strictly greater).
const autoVolumeThreshold = 1000

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModePosition:
		return "position"
	default:
		return "auto"
	}
}

// ParseMode resolves the request's mode parameter. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "auto":
		return ModeAuto, nil
	case "live":
		return ModeLive, nil
	case "position":
		return ModePosition, nil
	}
	return ModeAuto, fmt.Errorf("unknown analysis mode %q", s)
}

// resolve collapses auto into a concrete policy for this chain.
func (m Mode) resolve(totalVolume int64) Mode {
	if m != ModeAuto {
		return m
	}
	if totalVolume > autoVolumeThreshold {
		return ModeLive
	}
	return ModePosition
}
