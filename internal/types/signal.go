package types

import "time"

// Signal is one node of the causal trace recorded while an algo order makes decisions.
// Parent is the id of a signal created earlier by the same tracer, or nil for a root.
type Signal struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Parent    *int64         `json:"parent"`
	GID       int64          `json:"gid,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at"`
}

// IsRoot reports whether the signal has no parent.
func (s Signal) IsRoot() bool {
	return s.Parent == nil
}

// Ended reports whether End has been recorded.
func (s Signal) Ended() bool {
	return s.EndedAt != nil
}
