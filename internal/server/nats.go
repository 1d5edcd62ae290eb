package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/crossing/internal/events"
	"github.com/alfredjeanlab/crossing/internal/journal"
	"github.com/alfredjeanlab/crossing/internal/model"
)

// RequestIDHeader carries the correlation id on every reply.
const RequestIDHeader = "Crossing-Request-Id"

// Serve subscribes the request/reply services on nc. Each request runs in its
// own goroutine so a slow reserve never holds up connect or notify.
func (s *Server) Serve(nc *nats.Conn) error {
	handlers := map[string]func(context.Context, []byte) any{
		events.TopicConnect:  s.handleConnect,
		events.TopicNotify:   s.handleNotify,
		events.TopicReserve:  s.handleReserve,
		events.TopicSessions: s.handleSessions,
		events.TopicRoster:   s.handleRoster,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, h := range handlers {
		sub, err := nc.Subscribe(s.subject(topic), s.dispatch(topic, h))
		if err != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("subscribing to %s: %w", s.subject(topic), err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := nc.Flush(); err != nil {
		s.unsubscribeLocked()
		return fmt.Errorf("flushing subscriptions: %w", err)
	}
	s.logger.Info("request services ready", "prefix", s.prefix)
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.unsubscribeLocked()
	s.mu.Unlock()
	s.inflight.Wait()
}

func (s *Server) unsubscribeLocked() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Server) dispatch(topic string, h func(context.Context, []byte) any) nats.MsgHandler {
	return func(msg *nats.Msg) {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.serveOne(topic, msg, h)
		}()
	}
}

func (s *Server) serveOne(topic string, msg *nats.Msg, h func(context.Context, []byte) any) {
	reqID := uuid.NewString()
	start := time.Now()
	logger := s.logger.With("request_id", reqID, "topic", topic)

	var resp any
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in request handler", "panic", fmt.Sprintf("%v", r))
				resp = model.Response{Code: model.CodeInternal, Reason: "internal server error"}
			}
		}()
		resp = h(context.Background(), msg.Data)
	}()

	if msg.Reply == "" {
		logger.Warn("request without reply subject dropped")
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("failed to marshal response", "err", err)
		return
	}
	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(RequestIDHeader, reqID)
	reply.Data = data
	if err := msg.RespondMsg(reply); err != nil {
		logger.Error("failed to send reply", "err", err)
		return
	}
	logger.Debug("request served", "duration", time.Since(start))
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedInput, err)
	}
	return nil
}

func (s *Server) handleConnect(ctx context.Context, data []byte) any {
	var req model.ConnectRequest
	if err := decode(data, &req); err != nil {
		return model.ConnectResponse{Response: model.ResponseFor(err)}
	}
	args, err := req.Validate()
	if err != nil {
		return model.ConnectResponse{Response: model.ResponseFor(err)}
	}

	res, err := s.sched.Connect(ctx, args.AgentID, args.ArrivalTime)
	if err != nil {
		s.logger.Info("connect rejected", "agent_id", args.AgentID, "err", err)
		return model.ConnectResponse{Response: model.ResponseFor(err)}
	}

	superseded := make([]string, 0, len(res.Superseded))
	for _, old := range res.Superseded {
		superseded = append(superseded, old.ID)
		s.evicted(ctx, old, "superseded by "+res.Session.ID)
	}
	s.recordAndPublish(ctx, events.TopicSessionConnected, events.SessionConnected{
		Session:           res.Session,
		LatestReserveTime: res.Deadline.At,
		Contenders:        res.Deadline.Contenders,
		Superseded:        superseded,
	}, nil)

	return model.ConnectResponse{
		Response:          model.ResponseFor(nil),
		SessionID:         res.Session.ID,
		TransitTime:       res.TransitTime.Seconds(),
		LatestReserveTime: model.FormatTime(res.Deadline.At),
	}
}

func (s *Server) handleNotify(ctx context.Context, data []byte) any {
	var req model.NotifyRequest
	if err := decode(data, &req); err != nil {
		return model.NotifyResponse{Response: model.ResponseFor(err)}
	}
	args, err := req.Validate()
	if err != nil {
		return model.NotifyResponse{Response: model.ResponseFor(err)}
	}

	sess, deadline, err := s.sched.Notify(ctx, args.SessionID, args.ArrivalTime)
	if err != nil {
		s.logger.Info("notify rejected", "session_id", args.SessionID, "err", err)
		return model.NotifyResponse{Response: model.ResponseFor(err)}
	}
	s.recordAndPublish(ctx, events.TopicSessionNotified, events.SessionNotified{
		Session:           sess,
		LatestReserveTime: deadline.At,
	}, nil)

	return model.NotifyResponse{
		Response:          model.ResponseFor(nil),
		TransitTime:       s.sched.Zone().TransitTime.Seconds(),
		LatestReserveTime: model.FormatTime(deadline.At),
	}
}

func (s *Server) handleReserve(ctx context.Context, data []byte) any {
	var req model.ReserveRequest
	if err := decode(data, &req); err != nil {
		return model.ReserveResponse{Response: model.ResponseFor(err)}
	}
	args, err := req.Validate()
	if err != nil {
		return model.ReserveResponse{Response: model.ResponseFor(err)}
	}

	sess, err := s.sched.Reserve(ctx, args)
	if err != nil {
		s.logger.Info("reserve rejected", "session_id", args.SessionID, "route", args.Entry+"->"+args.Exit, "err", err)
		return model.ReserveResponse{Response: model.ResponseFor(err)}
	}
	s.recordAndPublish(ctx, events.TopicSessionReserved, events.SessionReserved{Session: sess},
		journal.Reserved(sess, s.clock.Now()))

	r := sess.Reservation
	return model.ReserveResponse{
		Response:      model.ResponseFor(nil),
		TimeRef:       model.FormatTime(r.TimeRef),
		EarliestEntry: r.EarliestEntry,
		LatestEntry:   r.LatestEntry,
		EarliestExit:  r.EarliestExit,
		LatestExit:    r.LatestExit,
	}
}

func (s *Server) handleSessions(ctx context.Context, data []byte) any {
	var req model.SessionsRequest
	if len(data) > 0 {
		if err := decode(data, &req); err != nil {
			return model.SessionsResponse{Response: model.ResponseFor(err)}
		}
	}
	all := s.sched.Store().Snapshot()
	out := make([]*model.Session, 0, len(all))
	for _, sess := range all {
		if req.AgentID == "" || sess.AgentID == req.AgentID {
			out = append(out, sess)
		}
	}
	return model.SessionsResponse{Response: model.ResponseFor(nil), Sessions: out}
}

func (s *Server) handleRoster(ctx context.Context, data []byte) any {
	var req model.RosterRequest
	if len(data) > 0 {
		if err := decode(data, &req); err != nil {
			return model.RosterResponse{Response: model.ResponseFor(err)}
		}
	}
	maxIdle, err := req.Validate()
	if err != nil {
		return model.RosterResponse{Response: model.ResponseFor(err)}
	}
	return model.RosterResponse{Response: model.ResponseFor(nil), Vehicles: s.presence.Roster(maxIdle)}
}
