package models

import "time"

// VerdictKind is the outcome of evaluating one tab in a sweep.
type VerdictKind string

const (
	VerdictKeep  VerdictKind = "KEEP"
	VerdictWarn  VerdictKind = "WARN"
	VerdictClose VerdictKind = "CLOSE"
)

// Verdict is the per-tab decision. MinutesLeft is set only for WARN.
type Verdict struct {
	Kind        VerdictKind `json:"kind"`
	MinutesLeft int         `json:"minutesLeft,omitempty"`
}

// SweepReport summarizes one full evaluation pass over all open tabs.
type SweepReport struct {
	SweepID   string    `json:"sweepId"`
	StartedAt time.Time `json:"startedAt"`
	Evaluated int       `json:"evaluated"`
	Closed    int       `json:"closed"`
	Warned    int       `json:"warned"`
	Kept      int       `json:"kept"`
	Errors    int       `json:"errors"`
	Pruned    int       `json:"pruned"`
}

// TabVerdict pairs a tab with the verdict it would currently receive. Used by
// the dry-run inventory endpoint.
type TabVerdict struct {
	Tab     Tab     `json:"tab"`
	Verdict Verdict `json:"verdict"`
}
