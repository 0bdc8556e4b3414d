package navigator

import (
	"fmt"
	"strings"
)

// EdgeKey identifies the directed path recorded from Start to End.
type EdgeKey struct {
	Start string
	End   string
}

// Valid is false for self-loops.
func (k EdgeKey) Valid() bool {
	return k.Start != k.End
}

// Reverse returns the edge in the opposite direction.
func (k EdgeKey) Reverse() EdgeKey {
	return EdgeKey{Start: k.End, End: k.Start}
}

func (k EdgeKey) String() string {
	return k.Start + "->" + k.End
}

// MarshalText renders the key as "A->B".
func (k EdgeKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// TraversalMode decides what happens to an edge once it has been flown.
type TraversalMode int

const (
	// OneWay drops each edge once flown and stops after the last.
	OneWay TraversalMode = iota
	// Patrol flies the waypoints forward, then back, and repeats.
	Patrol
	// Circle flies the waypoints forward, back to the first, and repeats.
	Circle
)

func (m TraversalMode) String() string {
	switch m {
	case OneWay:
		return "oneway"
	case Patrol:
		return "patrol"
	case Circle:
		return "circle"
	default:
		return fmt.Sprintf("TraversalMode(%d)", int(m))
	}
}

func (m TraversalMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseTraversalMode maps a command verb to its mode.
func ParseTraversalMode(s string) (TraversalMode, error) {
	switch strings.ToLower(s) {
	case "oneway":
		return OneWay, nil
	case "patrol":
		return Patrol, nil
	case "circle":
		return Circle, nil
	default:
		return 0, fmt.Errorf("unknown traversal mode %q", s)
	}
}
