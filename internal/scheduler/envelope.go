package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
	"github.com/alfredjeanlab/crossing/internal/safety"
)

// LimitsSink receives computed control envelopes.
type LimitsSink interface {
	PublishLimits(ctx context.Context, limits *model.Limits) error
}

// HandleState computes the control envelope for one vehicle-state sample and
// hands it to sink. It returns nil limits without error when the agent holds
// no active reservation or the sample falls outside the reserved tube.
func (s *Scheduler) HandleState(ctx context.Context, state model.VehicleState, sink LimitsSink) (*model.Limits, error) {
	at := state.Stamp
	if at.IsZero() {
		at = s.clock.Now()
	}

	res := s.activeReservation(state.AgentID, at)
	if res == nil {
		return nil, nil
	}

	index := int(at.Sub(res.TimeRef) / s.zone.TimeStep)
	if at.Before(res.TimeRef) || index < 0 || index >= res.Tube.Steps()-1 {
		s.logger.Debug("state sample outside tube",
			"agent_id", state.AgentID,
			"index", index,
			"steps", res.Tube.Steps())
		return nil, nil
	}

	bm, err := s.engine.ControlEnvelope(res.Tube, safety.State{
		X:       state.X,
		Y:       state.Y,
		Heading: state.Heading,
		Speed:   state.Speed,
	}, index)
	if err != nil {
		return nil, fmt.Errorf("control envelope for %s: %w", state.AgentID, err)
	}

	limits := &model.Limits{
		AgentID: state.AgentID,
		Stamp:   at,
		Index:   index,
		Rows:    bm.Rows,
		Cols:    bm.Cols,
		Bits:    model.PackBits(bm.Allowed),
	}
	if sink != nil {
		if err := sink.PublishLimits(ctx, limits); err != nil {
			return limits, fmt.Errorf("publishing limits for %s: %w", state.AgentID, err)
		}
	}
	return limits, nil
}

// activeReservation returns the agent's reservation with the latest TimeRef
// not after at.
func (s *Scheduler) activeReservation(agentID string, at time.Time) *model.Reservation {
	var best *model.Reservation
	s.store.ForEachReserved(func(sess *model.Session) {
		if sess.AgentID != agentID || sess.Reservation == nil {
			return
		}
		r := sess.Reservation
		if r.TimeRef.After(at) {
			return
		}
		if best == nil || r.TimeRef.After(best.TimeRef) {
			best = r
		}
	})
	return best
}
