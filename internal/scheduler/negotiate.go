package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alfredjeanlab/crossing/internal/idgen"
	"github.com/alfredjeanlab/crossing/internal/model"
	"github.com/alfredjeanlab/crossing/internal/safety"
)

// ConnectResult is returned by a successful Connect.
type ConnectResult struct {
	Session     *model.Session
	TransitTime time.Duration
	Deadline    Deadline

	// Superseded holds the agent's older unreserved sessions removed by
	// this connect.
	Superseded []*model.Session
}

// Connect opens a session for agentID arriving at arrival.
func (s *Scheduler) Connect(ctx context.Context, agentID string, arrival time.Time) (*ConnectResult, error) {
	now := s.clock.Now()
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", model.ErrMalformedInput)
	}

	deadline := s.LatestReserveTime("", agentID, arrival)
	if err := deadline.check(now); err != nil {
		return nil, err
	}

	id, err := idgen.ForAgent(agentID)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	sess := &model.Session{
		ID:                id,
		AgentID:           agentID,
		ArrivalTime:       arrival,
		LatestReserveTime: deadline.At,
		SessionTimeoutAt:  arrival.Add(s.zone.SessionTimeout),
		CreatedAt:         now,
	}
	if err := s.store.Add(sess); err != nil {
		return nil, err
	}

	superseded := s.store.RemoveIf(func(other *model.Session) bool {
		return other.ID != id && other.AgentID == agentID && !other.Reserved
	})
	for _, old := range superseded {
		s.logger.Info("session superseded", "session_id", old.ID, "agent_id", agentID, "by", id)
	}

	s.logger.Info("session connected",
		"session_id", id,
		"agent_id", agentID,
		"arrival", arrival,
		"latest_reserve_time", deadline.At,
		"contenders", deadline.Contenders)

	return &ConnectResult{
		Session:     sess.Clone(),
		TransitTime: s.zone.TransitTime,
		Deadline:    deadline,
		Superseded:  superseded,
	}, nil
}

// Notify updates the arrival time of an unreserved session and returns the
// recomputed deadline.
func (s *Scheduler) Notify(ctx context.Context, id string, arrival time.Time) (*model.Session, Deadline, error) {
	now := s.clock.Now()
	cur, err := s.store.Get(id)
	if err != nil {
		return nil, Deadline{}, err
	}

	deadline := s.LatestReserveTime(id, cur.AgentID, arrival)
	if err := deadline.check(now); err != nil {
		return nil, deadline, err
	}
	if cur.Reserved {
		return nil, deadline, fmt.Errorf("%w: session %q", model.ErrAlreadyReserved, id)
	}

	updated, err := s.store.Mutate(id, func(sess *model.Session) error {
		if sess.Reserved {
			return fmt.Errorf("%w: session %q", model.ErrAlreadyReserved, id)
		}
		sess.ArrivalTime = arrival
		sess.SessionTimeoutAt = arrival.Add(s.zone.SessionTimeout)
		sess.LatestReserveTime = deadline.At
		return nil
	})
	if err != nil {
		return nil, deadline, err
	}

	s.logger.Debug("session notified",
		"session_id", id,
		"arrival", arrival,
		"latest_reserve_time", deadline.At)
	return updated, deadline, nil
}

// Reserve negotiates a crossing window for a session and commits it. The
// safety analysis runs without holding the store lock.
func (s *Scheduler) Reserve(ctx context.Context, args model.ReserveArgs) (*model.Session, error) {
	now := s.clock.Now()
	z := s.zone

	if args.Entry == args.Exit || !z.IsEntry(args.Entry) || !z.IsExit(args.Exit) || !z.Permitted(args.Entry, args.Exit) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrBadRoute, args.Entry, args.Exit)
	}

	cur, err := s.store.Get(args.SessionID)
	if err != nil {
		return nil, err
	}
	if cur.Reserved {
		return nil, fmt.Errorf("%w: session %q", model.ErrAlreadyReserved, cur.ID)
	}
	deadline := s.LatestReserveTime(cur.ID, cur.AgentID, cur.ArrivalTime)
	if err := deadline.check(now); err != nil {
		return nil, err
	}

	timeRef, ee, le, err := s.align(args.TimeRef, args.EarliestEntry, args.LatestEntry)
	if err != nil {
		return nil, err
	}
	maxWindow := math.Min(le-ee, z.MaxWindowEntry.Seconds())
	if maxWindow <= 0 {
		return nil, fmt.Errorf("%w: empty entry window [%g, %g]", model.ErrInvalidWindow, ee, le)
	}

	req, err := s.analysisRequest(cur, args, timeRef)
	if err != nil {
		return nil, err
	}
	req.EarliestEntry = ee
	req.MaxWindowEntry = maxWindow
	req.MinWindowEntry = math.Min(z.MinWindowEntry.Seconds(), maxWindow)

	start := s.clock.Now()
	analysis, err := s.engine.Analyze(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNegotiationFailed, err)
	}
	w, err := s.narrow(analysis.Window, ee, le)
	if err != nil {
		return nil, err
	}

	res := &model.Reservation{
		TimeRef:       timeRef,
		Entry:         args.Entry,
		Exit:          args.Exit,
		EarliestEntry: w.EarliestEntry,
		LatestEntry:   w.LatestEntry,
		EarliestExit:  w.EarliestExit,
		LatestExit:    w.LatestExit,
		Tube:          analysis.Tube,
	}
	committed, err := s.store.Mutate(cur.ID, func(sess *model.Session) error {
		if sess.Reserved {
			return fmt.Errorf("%w: session %q", model.ErrAlreadyReserved, sess.ID)
		}
		sess.Reserved = true
		sess.Reservation = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation granted",
		"session_id", committed.ID,
		"agent_id", committed.AgentID,
		"route", args.Entry+"->"+args.Exit,
		"time_ref", timeRef,
		"entry", fmt.Sprintf("[%g, %g]", w.EarliestEntry, w.LatestEntry),
		"exit", fmt.Sprintf("[%g, %g]", w.EarliestExit, w.LatestExit),
		"hazards", len(req.Hazards),
		"analysis", s.clock.Now().Sub(start))
	return committed, nil
}

// align clamps the entry bounds to the horizon and moves timeRef onto the
// TIME_STEP boundary at or below timeRef + earliestEntry. Boundaries are
// absolute (counted from the Unix epoch) so every stored TimeRef shares one
// grid. The shift can be negative by less than one step when timeRef is off
// the grid; latestEntry is then capped at the horizon.
func (s *Scheduler) align(timeRef time.Time, ee, le float64) (time.Time, float64, float64, error) {
	horizon := s.zone.TimeHorizon.Seconds()

	ee = clamp(ee, 0, horizon)
	le = clamp(le, 0, horizon)

	aligned := floorStep(timeRef.Add(seconds(ee)), s.zone.TimeStep)
	shift := aligned.Sub(timeRef).Seconds()
	ee = snap(ee - shift)
	le = math.Min(snap(le-shift), horizon)

	if !(0 <= ee && ee <= le && le <= horizon) {
		return aligned, ee, le, fmt.Errorf("%w: entry window [%g, %g] outside [0, %g]",
			model.ErrInvalidWindow, ee, le, horizon)
	}
	return aligned, ee, le, nil
}

// narrow intersects the engine's entry window with the requested [ee, le].
func (s *Scheduler) narrow(w safety.Window, ee, le float64) (safety.Window, error) {
	horizon := s.zone.TimeHorizon.Seconds()

	w.EarliestEntry = math.Max(w.EarliestEntry, ee)
	w.LatestEntry = math.Min(w.LatestEntry, le)
	if !(0 <= w.EarliestEntry && w.EarliestEntry < w.LatestEntry && w.LatestEntry <= horizon) {
		return w, fmt.Errorf("%w: no entry window left in [%g, %g]", model.ErrNegotiationFailed, ee, le)
	}
	if !(0 <= w.EarliestExit && w.EarliestExit <= w.LatestExit) {
		return w, fmt.Errorf("%w: engine returned exit window [%g, %g]",
			model.ErrNegotiationFailed, w.EarliestExit, w.LatestExit)
	}
	return w, nil
}

// floorStep rounds t down to a multiple of step since the Unix epoch.
func floorStep(t time.Time, step time.Duration) time.Time {
	rem := time.Duration(t.UnixNano() % int64(step))
	if rem < 0 {
		rem += step
	}
	return t.Add(-rem)
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}

// analysisRequest builds the masks and hazards for a candidate window,
// leaving out the agent's own chain.
func (s *Scheduler) analysisRequest(cur *model.Session, args model.ReserveArgs, timeRef time.Time) (safety.Request, error) {
	entry, ok := s.zone.Mask(args.Entry)
	if !ok {
		return safety.Request{}, fmt.Errorf("%w: no region for %q", model.ErrBadRoute, args.Entry)
	}
	exit, ok := s.zone.Mask(args.Exit)
	if !ok {
		return safety.Request{}, fmt.Errorf("%w: no region for %q", model.ErrBadRoute, args.Exit)
	}
	route, _ := s.zone.RouteMask(args.Entry, args.Exit)

	req := safety.Request{Entry: entry, Exit: exit, Route: route}
	for id, h := range s.ResolveDangers(timeRef) {
		if id == cur.ID || h.AgentID == cur.AgentID {
			continue
		}
		req.Hazards = append(req.Hazards, h.Field)
	}
	return req, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// snap rounds float noise around zero left over from alignment.
func snap(v float64) float64 {
	if math.Abs(v) < 1e-9 {
		return 0
	}
	return v
}
