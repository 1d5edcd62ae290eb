package scheduler

import (
	"fmt"
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
)

// Deadline is the result of a priority scan.
type Deadline struct {
	// At is the last instant a reservation request may be submitted. It is
	// meaningless when Violation is set.
	At time.Time

	// Contenders counts unreserved sessions that arrive no later than ego
	// and within the horizon.
	Contenders int

	// Violation is set when a reserved session arrives strictly after ego:
	// ego can no longer be admitted ahead of it.
	Violation bool
	BlockedBy string
}

// Open reports whether a request made at now still meets the deadline.
func (d Deadline) Open(now time.Time) bool {
	return !d.Violation && d.At.After(now)
}

// check converts a closed deadline into an ErrExpired.
func (d Deadline) check(now time.Time) error {
	if d.Violation {
		return fmt.Errorf("%w: reserved session %q arrives after the requested arrival", model.ErrExpired, d.BlockedBy)
	}
	if !d.At.After(now) {
		return fmt.Errorf("%w: no time left, %.3fs too late", model.ErrExpired, now.Sub(d.At).Seconds())
	}
	return nil
}

// LatestReserveTime scans every session except egoID and the other
// sessions of egoAgent, and returns the deadline by which ego, arriving at
// egoArrival, must request its reservation.
//
// A reserved session arriving strictly later than ego is a violation. Reserved
// sessions arriving no later than ego, and unreserved sessions arriving later
// than ego or more than the horizon earlier, do not constrain ego. Each
// remaining unreserved session costs one compute slot, plus one for ego.
//
// Sessions of egoAgent are skipped entirely, so a reserved session of the
// same agent arriving later never triggers a violation and its unreserved
// sessions are never contenders.
func (s *Scheduler) LatestReserveTime(egoID, egoAgent string, egoArrival time.Time) Deadline {
	var d Deadline
	horizon := s.zone.TimeHorizon

	s.store.ForEachExcept(egoID, func(other *model.Session) {
		if d.Violation || (egoAgent != "" && other.AgentID == egoAgent) {
			return
		}
		later := other.ArrivalTime.After(egoArrival)
		switch {
		case other.Reserved && later:
			d.Violation = true
			d.BlockedBy = other.ID
		case other.Reserved:
			// holds an earlier slot already
		case later:
			// lower priority
		case egoArrival.Sub(other.ArrivalTime) > horizon:
			// too far ahead to matter
		default:
			d.Contenders++
		}
	})
	if d.Violation {
		return d
	}

	d.At = egoArrival.Add(-s.zone.ComputeTime * time.Duration(d.Contenders+1))
	return d
}
