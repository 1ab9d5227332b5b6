package interval

import "strings"

// Criticality is the patient acuity hint. The zero value is neutral.
type Criticality int

const (
	CriticalityNone Criticality = iota
	CriticalityLow
	CriticalityMedium
	CriticalityHigh
)

func (c Criticality) String() string {
	switch c {
	case CriticalityLow:
		return "low"
	case CriticalityMedium:
		return "medium"
	case CriticalityHigh:
		return "high"
	default:
		return "none"
	}
}

// ParseCriticality never fails; unrecognised values are neutral.
func ParseCriticality(s string) Criticality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return CriticalityLow
	case "medium":
		return CriticalityMedium
	case "high":
		return CriticalityHigh
	default:
		return CriticalityNone
	}
}

func (c Criticality) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Criticality) UnmarshalText(b []byte) error {
	*c = ParseCriticality(string(b))
	return nil
}

// Urgency is the per-request urgency hint. The zero value is neutral.
type Urgency int

const (
	UrgencyNone Urgency = iota
	UrgencyRoutine
	UrgencyUrgent
	UrgencyEmergency
)

func (u Urgency) String() string {
	switch u {
	case UrgencyRoutine:
		return "routine"
	case UrgencyUrgent:
		return "urgent"
	case UrgencyEmergency:
		return "emergency"
	default:
		return "none"
	}
}

// ParseUrgency never fails; unrecognised values are neutral.
func ParseUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "routine":
		return UrgencyRoutine
	case "urgent":
		return UrgencyUrgent
	case "emergency":
		return UrgencyEmergency
	default:
		return UrgencyNone
	}
}

func (u Urgency) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *Urgency) UnmarshalText(b []byte) error {
	*u = ParseUrgency(string(b))
	return nil
}

// Context carries per-call hints. Every field defaults to neutral and
// out-of-range values are clamped rather than rejected.
type Context struct {
	SystemLoad         float64     `json:"system_load"`
	PatientCriticality Criticality `json:"patient_criticality"`
	RecentFailures     uint        `json:"recent_failures"`
	Urgency            Urgency     `json:"urgency"`
	DataSizeMb         float64     `json:"data_size_mb"`
}
