package mode

import (
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/google/uuid"
)

// Transition records a mode change.
type Transition struct {
	ID      uuid.UUID `json:"id"`
	From    Kind      `json:"from"`
	To      Kind      `json:"to"`
	Reasons []string  `json:"reasons,omitempty"`
	At      time.Time `json:"at"`
}

type snapshot struct {
	mode  Mode
	since time.Time
}

// Controller publishes the current Mode. Only one mode is active at a
// time; entering a mode replaces whatever was active.
type Controller struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
	now     func() time.Time
}

// NewController starts in Normal mode. A nil clock uses time.Now.
func NewController(now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	c := &Controller{now: now}
	c.current.Store(&snapshot{mode: Normal{}, since: now()})
	return c
}

// Current returns the active mode.
func (c *Controller) Current() Mode {
	return c.current.Load().mode
}

// Since returns when the active mode was entered.
func (c *Controller) Since() time.Time {
	return c.current.Load().since
}

// EnterEmergency validates and activates an emergency.
func (c *Controller) EnterEmergency(reasons []string, overrides map[tier.Tier]uint64) (Transition, error) {
	m, err := NewEmergency(reasons, overrides)
	if err != nil {
		return Transition{}, err
	}
	return c.swap(m, m.Reasons()), nil
}

// ExitEmergency returns to Normal if an emergency is active.
func (c *Controller) ExitEmergency() (Transition, bool) {
	return c.exit(KindEmergency)
}

// EnterMaintenance validates and activates maintenance.
func (c *Controller) EnterMaintenance(multiplier float64, restrictedTypes []string) (Transition, error) {
	m, err := NewMaintenance(multiplier, restrictedTypes)
	if err != nil {
		return Transition{}, err
	}
	return c.swap(m, nil), nil
}

// ExitMaintenance returns to Normal if maintenance is active.
func (c *Controller) ExitMaintenance() (Transition, bool) {
	return c.exit(KindMaintenance)
}

// Restore activates an already validated mode, e.g. from an import.
func (c *Controller) Restore(m Mode) Transition {
	var reasons []string
	if e, ok := m.(Emergency); ok {
		reasons = e.Reasons()
	}
	return c.swap(m, reasons)
}

func (c *Controller) exit(k Kind) (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load().mode.Kind() != k {
		return Transition{}, false
	}
	return c.publish(Normal{}, nil), true
}

func (c *Controller) swap(m Mode, reasons []string) Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publish(m, reasons)
}

// publish must be called with mu held.
func (c *Controller) publish(m Mode, reasons []string) Transition {
	at := c.now()
	prev := c.current.Load()
	c.current.Store(&snapshot{mode: m, since: at})
	return Transition{
		ID:      uuid.New(),
		From:    prev.mode.Kind(),
		To:      m.Kind(),
		Reasons: reasons,
		At:      at,
	}
}
