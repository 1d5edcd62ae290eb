package model

import "time"

// Response is the common envelope of every reply.
type Response struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
}

// ResponseFor builds the envelope for err.
func ResponseFor(err error) Response {
	if err == nil {
		return Response{Success: true, Code: CodeOK}
	}
	return Response{Code: Code(err), Reason: err.Error()}
}

// Err rebuilds the error carried by a failed response.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	return &RemoteError{Code: r.Code, Reason: r.Reason}
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Code   string
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason == "" {
		return e.Code
	}
	return e.Reason
}

// Unwrap exposes the taxonomy sentinel so errors.Is works across the wire.
func (e *RemoteError) Unwrap() error { return FromCode(e.Code) }

// ConnectRequest opens a session. ArrivalTime is RFC 3339.
type ConnectRequest struct {
	AgentID     string `json:"agent_id"`
	ArrivalTime string `json:"arrival_time"`
}

type ConnectResponse struct {
	Response
	SessionID         string  `json:"session_id,omitempty"`
	TransitTime       float64 `json:"transit_time,omitempty"`
	LatestReserveTime string  `json:"latest_reserve_time,omitempty"`
}

// NotifyRequest moves the announced arrival time of an unreserved session.
type NotifyRequest struct {
	SessionID   string `json:"session_id"`
	ArrivalTime string `json:"arrival_time"`
}

type NotifyResponse struct {
	Response
	TransitTime       float64 `json:"transit_time,omitempty"`
	LatestReserveTime string  `json:"latest_reserve_time,omitempty"`
}

// ReserveRequest asks for a crossing window. EarliestEntry and LatestEntry
// are seconds relative to TimeRef.
type ReserveRequest struct {
	SessionID     string  `json:"session_id"`
	Entry         string  `json:"entry"`
	Exit          string  `json:"exit"`
	TimeRef       string  `json:"time_ref"`
	EarliestEntry float64 `json:"earliest_entry"`
	LatestEntry   float64 `json:"latest_entry"`
}

type ReserveResponse struct {
	Response
	TimeRef       string  `json:"time_ref,omitempty"`
	EarliestEntry float64 `json:"earliest_entry"`
	LatestEntry   float64 `json:"latest_entry"`
	EarliestExit  float64 `json:"earliest_exit"`
	LatestExit    float64 `json:"latest_exit"`
}

// SessionsRequest lists sessions, optionally for one agent.
type SessionsRequest struct {
	AgentID string `json:"agent_id,omitempty"`
}

type SessionsResponse struct {
	Response
	Sessions []*Session `json:"sessions"`
}

// VehicleState is one kinematic sample reported by an agent.
type VehicleState struct {
	AgentID string    `json:"agent_id"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Heading float64   `json:"heading"`
	Speed   float64   `json:"speed"`
	Stamp   time.Time `json:"stamp"`
}

// Limits is the control envelope published to one agent. Bits packs a
// Rows x Cols row-major bitmap, least significant bit first.
type Limits struct {
	AgentID string    `json:"agent_id"`
	Stamp   time.Time `json:"stamp"`
	Index   int       `json:"index"`
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	Bits    []byte    `json:"bits"`
}

// PackBits packs a bool slice into bytes, least significant bit first.
func PackBits(v []bool) []byte {
	out := make([]byte, (len(v)+7)/8)
	for i, b := range v {
		if b {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// Allowed reports whether control cell (row, col) is allowed.
func (l *Limits) Allowed(row, col int) bool {
	i := row*l.Cols + col
	if row < 0 || col < 0 || row >= l.Rows || col >= l.Cols || i/8 >= len(l.Bits) {
		return false
	}
	return l.Bits[i/8]&(1<<(i%8)) != 0
}

// VehiclePresence is the roster entry of one agent that has reported state.
type VehiclePresence struct {
	AgentID   string    `json:"agent_id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Heading   float64   `json:"heading"`
	Speed     float64   `json:"speed"`
	Samples   int64     `json:"samples"`
	IdleSecs  float64   `json:"idle_secs"`
	Lost      bool      `json:"lost,omitempty"`
	LostAt    time.Time `json:"lost_at,omitempty"`
}

// RosterRequest lists vehicles seen within MaxIdle seconds (0 = all).
type RosterRequest struct {
	MaxIdle float64 `json:"max_idle,omitempty"`
}

type RosterResponse struct {
	Response
	Vehicles []VehiclePresence `json:"vehicles"`
}
