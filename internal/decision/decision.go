// Package decision defines the audit record produced by every interval
// resolution.
package decision

import (
	"time"

	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/google/uuid"
)

// Factor names, in the order the calculator applies them.
const (
	FactorLoad        = "system_load"
	FactorCriticality = "patient_criticality"
	FactorUrgency     = "urgency"
	FactorDataSize    = "data_size"
	FactorFailures    = "failure_backoff"
	FactorMaintenance = "maintenance_multiplier"
)

// Factor is one multiplicative adjustment.
type Factor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Decision is the immutable outcome of one resolution. FinalMs is zero
// when Suspended is set.
type Decision struct {
	ID         uuid.UUID `json:"id"`
	DataType   string    `json:"data_type"`
	Tier       tier.Tier `json:"tier"`
	Mode       mode.Kind `json:"mode"`
	BaseMsUsed uint64    `json:"base_ms_used"`
	Factors    []Factor  `json:"factors_applied"`
	FinalMs    uint64    `json:"final_ms"`
	Clamped    bool      `json:"clamped"`
	Suspended  bool      `json:"suspended"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// Interval returns FinalMs as a duration.
func (d Decision) Interval() time.Duration {
	return time.Duration(d.FinalMs) * time.Millisecond
}

// Factor looks up an applied factor by name.
func (d Decision) Factor(name string) (float64, bool) {
	for _, f := range d.Factors {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// Clone returns a copy that shares no memory with d.
func (d Decision) Clone() Decision {
	d.Factors = append([]Factor(nil), d.Factors...)
	return d
}
