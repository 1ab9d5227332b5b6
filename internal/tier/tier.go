// Package tier classifies data types by clinical urgency.
package tier

import (
	"fmt"
	"strings"
)

// Tier is the clinical urgency class of a data type. The set is closed.
type Tier int

const (
	Critical Tier = iota
	Default
	NonEssential
)

// All lists every tier in ascending order of allowed staleness.
var All = []Tier{Critical, Default, NonEssential}

func (t Tier) String() string {
	switch t {
	case Critical:
		return "critical"
	case Default:
		return "default"
	case NonEssential:
		return "nonEssential"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t >= Critical && t <= NonEssential
}

// Parse maps a tier name to a Tier. Matching is case-insensitive and
// accepts "non_essential" and "nonessential" for NonEssential.
func Parse(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return Critical, true
	case "default":
		return Default, true
	case "nonessential", "non_essential", "non-essential":
		return NonEssential, true
	default:
		return Default, false
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, ok := Parse(string(b))
	if !ok {
		return fmt.Errorf("unknown tier %q", string(b))
	}
	*t = parsed
	return nil
}
