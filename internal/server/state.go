package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/crossing/internal/events"
	"github.com/alfredjeanlab/crossing/internal/model"
)

// RunStateSubscriber consumes vehicle state samples and publishes a control
// envelope for every sample that falls inside its agent's reservation. It
// blocks until ctx is cancelled or the subscription closes.
func (s *Server) RunStateSubscriber(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(s.subject(events.TopicState))
	if err != nil {
		return fmt.Errorf("state: subscribe: %w", err)
	}
	defer cancel()

	s.logger.Info("state subscriber started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("state subscriber stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				s.logger.Info("state subscription closed")
				return nil
			}
			s.handleState(ctx, raw)
		}
	}
}

func (s *Server) handleState(ctx context.Context, raw []byte) {
	var st model.VehicleState
	if err := json.Unmarshal(raw, &st); err != nil {
		s.logger.Warn("bad state payload", "err", err)
		return
	}
	if st.AgentID == "" {
		s.logger.Warn("state sample without agent_id dropped")
		return
	}
	s.presence.Record(st)
	if _, err := s.sched.HandleState(ctx, st, s.limits); err != nil {
		s.logger.Warn("control envelope failed", "agent_id", st.AgentID, "err", err)
	}
}
