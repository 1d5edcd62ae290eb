// Package server exposes the scheduler over NATS request/reply, feeds vehicle
// state samples to the control-envelope publisher and reports health over
// gRPC.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/crossing/internal/clock"
	"github.com/alfredjeanlab/crossing/internal/events"
	"github.com/alfredjeanlab/crossing/internal/journal"
	"github.com/alfredjeanlab/crossing/internal/model"
	"github.com/alfredjeanlab/crossing/internal/presence"
	"github.com/alfredjeanlab/crossing/internal/scheduler"
)

// Config wires a Server.
type Config struct {
	Scheduler *scheduler.Scheduler
	Publisher events.Publisher
	Journal   journal.Journal
	Presence  *presence.Tracker
	Prefix    string
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Server is the scheduler's transport front end.
type Server struct {
	sched     *scheduler.Scheduler
	publisher events.Publisher
	limits    *events.LimitsPublisher
	journal   journal.Journal
	presence  *presence.Tracker
	prefix    string
	clock     clock.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	subs     []*nats.Subscription
	inflight sync.WaitGroup
}

// New returns a server. Nil collaborators fall back to no-op
// implementations.
func New(cfg Config) *Server {
	if cfg.Publisher == nil {
		cfg.Publisher = &events.NoopPublisher{}
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Noop{}
	}
	if cfg.Prefix == "" {
		cfg.Prefix = events.DefaultPrefix
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Presence == nil {
		cfg.Presence = presence.New(cfg.Clock, cfg.Logger)
	}
	return &Server{
		sched:     cfg.Scheduler,
		publisher: cfg.Publisher,
		limits:    &events.LimitsPublisher{Publisher: cfg.Publisher, Prefix: cfg.Prefix},
		journal:   cfg.Journal,
		presence:  cfg.Presence,
		prefix:    cfg.Prefix,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// subject returns the full subject for topic under the server's prefix.
func (s *Server) subject(topic string) string {
	return events.Subject(s.prefix, topic)
}

// recordAndPublish journals rec (when non-nil) and publishes event. Both are
// best effort; failures are logged and never reach the caller.
func (s *Server) recordAndPublish(ctx context.Context, topic string, event any, rec *journal.Record) {
	if rec != nil {
		if err := s.journal.Append(ctx, rec); err != nil {
			s.logger.Warn("failed to journal record", "kind", rec.Kind, "session_id", rec.SessionID, "err", err)
		}
	}
	if err := s.publisher.Publish(ctx, s.subject(topic), event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "err", err)
	}
}

// OnEvict is the reaper's eviction callback.
func (s *Server) OnEvict(sess *model.Session) {
	s.evicted(context.Background(), sess, "session timeout")
}

func (s *Server) evicted(ctx context.Context, sess *model.Session, reason string) {
	s.recordAndPublish(ctx, events.TopicSessionEvicted,
		events.SessionEvicted{Session: sess, Reason: reason},
		journal.Evicted(sess, reason, s.clock.Now()))
}

// OnVehicleLost is the presence reaper's callback.
func (s *Server) OnVehicleLost(agentID string, lastSeen time.Time) {
	s.recordAndPublish(context.Background(), events.TopicVehicleLost,
		events.VehicleLost{AgentID: agentID, LastSeen: lastSeen}, nil)
}
