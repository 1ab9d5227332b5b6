package tier

import (
	"sync"
	"sync/atomic"
)

// DefaultMapping is the built-in data type classification.
func DefaultMapping() map[string]Tier {
	return map[string]Tier{
		"vitals":          Critical,
		"medications":     Critical,
		"allergies":       Critical,
		"critical_alerts": Critical,
		"labs":            Default,
		"observations":    Default,
		"encounters":      Default,
		"appointments":    Default,
		"billing":         NonEssential,
		"demographics":    NonEssential,
		"documents":       NonEssential,
		"analytics":       NonEssential,
	}
}

// Classifier maps data type names to tiers. Reads load an immutable
// mapping; writes publish a fresh copy, so readers never see a partial update.
type Classifier struct {
	mapping atomic.Pointer[map[string]Tier]
	mu      sync.Mutex // serializes writers
}

// NewClassifier creates a Classifier seeded with a copy of mapping.
func NewClassifier(mapping map[string]Tier) *Classifier {
	c := &Classifier{}
	m := copyMapping(mapping)
	c.mapping.Store(&m)
	return c
}

// Classify returns the tier of dataType. Unknown types are Default.
func (c *Classifier) Classify(dataType string) Tier {
	if t, ok := (*c.mapping.Load())[dataType]; ok {
		return t
	}
	return Default
}

// Set assigns dataType to t.
func (c *Classifier) Set(dataType string, t Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := copyMapping(*c.mapping.Load())
	next[dataType] = t
	c.mapping.Store(&next)
}

// Clear removes an explicit assignment so dataType falls back to Default.
// It reports whether an assignment existed.
func (c *Classifier) Clear(dataType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.mapping.Load()
	if _, ok := cur[dataType]; !ok {
		return false
	}
	next := copyMapping(cur)
	delete(next, dataType)
	c.mapping.Store(&next)
	return true
}

// Replace swaps in a copy of mapping wholesale.
func (c *Classifier) Replace(mapping map[string]Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := copyMapping(mapping)
	c.mapping.Store(&next)
}

// Mapping returns a copy of the current mapping.
func (c *Classifier) Mapping() map[string]Tier {
	return copyMapping(*c.mapping.Load())
}

func copyMapping(m map[string]Tier) map[string]Tier {
	out := make(map[string]Tier, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
