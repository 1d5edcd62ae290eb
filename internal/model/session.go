package model

import (
	"time"

	"github.com/alfredjeanlab/crossing/internal/safety"
)

// Phase is the negotiation state of a session.
type Phase string

const (
	PhaseConnected Phase = "connected"
	PhaseReserved  Phase = "reserved"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsValid checks whether the phase is a known value.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseConnected, PhaseReserved:
		return true
	}
	return false
}

// Session is one agent's connection lifecycle and, once granted, its
// reservation. Sessions are handed out by the store as copies.
type Session struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`

	ArrivalTime       time.Time `json:"arrival_time"`
	LatestReserveTime time.Time `json:"latest_reserve_time"`
	SessionTimeoutAt  time.Time `json:"session_timeout_at"`
	CreatedAt         time.Time `json:"created_at"`

	// Reserved is monotonic: it only ever flips from false to true.
	Reserved    bool         `json:"reserved"`
	Reservation *Reservation `json:"reservation,omitempty"`
}

// Phase returns the negotiation state derived from Reserved.
func (s *Session) Phase() Phase {
	if s.Reserved {
		return PhaseReserved
	}
	return PhaseConnected
}

// Expired reports whether the session has timed out at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.SessionTimeoutAt)
}

// Clone returns a copy that shares no mutable state with s. The safety tube
// is shared: tubes are never modified after analysis.
func (s *Session) Clone() *Session {
	c := *s
	if s.Reservation != nil {
		r := *s.Reservation
		c.Reservation = &r
	}
	return &c
}

// Reservation is a committed space-time window plus its safety tube.
// Entry and exit bounds are seconds relative to TimeRef.
type Reservation struct {
	TimeRef time.Time `json:"time_ref"`
	Entry   string    `json:"entry"`
	Exit    string    `json:"exit"`

	EarliestEntry float64 `json:"earliest_entry"`
	LatestEntry   float64 `json:"latest_entry"`
	EarliestExit  float64 `json:"earliest_exit"`
	LatestExit    float64 `json:"latest_exit"`

	Tube safety.Tube `json:"-"`
}

// Start returns the beginning of the reserved planning window.
func (r *Reservation) Start() time.Time { return r.TimeRef }

// End returns the end of the reserved planning window for the given horizon.
func (r *Reservation) End(horizon time.Duration) time.Time { return r.TimeRef.Add(horizon) }
