package scheduler

import (
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
	"github.com/alfredjeanlab/crossing/internal/safety"
)

// Hazard is one reserved session's safety tube, re-indexed onto a candidate
// window.
type Hazard struct {
	SessionID string
	AgentID   string
	Field     safety.Field
}

// ResolveDangers returns, for every reserved session whose planning window
// overlaps [timeRef, timeRef+horizon), its tube spliced onto the timeline of
// a window starting at timeRef. Timesteps outside the overlap are free. An
// empty result means the zone is uncontested.
func (s *Scheduler) ResolveDangers(timeRef time.Time) map[string]Hazard {
	horizon := s.zone.TimeHorizon
	step := s.zone.TimeStep
	steps := s.zone.Steps()
	cells := s.zone.Grid.Cells()

	dangers := make(map[string]Hazard)
	s.store.ForEachReserved(func(other *model.Session) {
		r := other.Reservation
		if r == nil {
			return
		}
		earliest := later(timeRef, r.TimeRef)
		latest := earlier(timeRef.Add(horizon), r.TimeRef.Add(horizon))
		if latest.Sub(earliest) <= 0 {
			return
		}

		danger := safety.NewSafeField(steps, cells)
		tube := r.Tube.Field
		if timeRef.Before(earliest) {
			// other: [---j----)
			// ego:  [--i---)
			i := ceilSteps(earliest.Sub(timeRef), step)
			j := ceilSteps(latest.Sub(r.TimeRef), step)
			i = min(i, len(danger))
			copy(danger[i:], tube[:min(j, len(tube))])
		} else {
			// other: [--i---)
			// ego:      [---j----)
			i := ceilSteps(earliest.Sub(r.TimeRef), step)
			j := ceilSteps(latest.Sub(timeRef), step)
			i = min(i, len(tube))
			copy(danger[:min(j, len(danger))], tube[i:min(i+j, len(tube))])
		}
		dangers[other.ID] = Hazard{SessionID: other.ID, AgentID: other.AgentID, Field: danger}
	})

	if len(dangers) == 0 {
		s.logger.Debug("zone uncontested", "time_ref", timeRef)
	}
	return dangers
}

// ceilSteps returns d / step rounded up; non-positive d yields 0.
func ceilSteps(d, step time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + step - 1) / step)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
