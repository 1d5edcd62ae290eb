// Package events names the scheduler's NATS subjects and carries its
// outbound traffic: session lifecycle notifications and per-agent control
// envelopes.
package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "crossing"

// Topic suffixes, joined to the prefix with Subject.
const (
	// Request/reply services.
	TopicConnect  = "server.connect"
	TopicNotify   = "server.notify"
	TopicReserve  = "server.reserve"
	TopicSessions = "server.sessions"
	TopicRoster   = "server.roster"

	// Inbound vehicle state samples.
	TopicState = "server.state"

	TopicSessionConnected = "session.connected"
	TopicSessionNotified  = "session.notified"
	TopicSessionReserved  = "session.reserved"
	TopicSessionEvicted   = "session.evicted"
	TopicVehicleLost      = "vehicle.lost"

	// Per-agent control envelopes: <prefix>.limits.<agentID>
	TopicLimits = "limits"
)

// Subject joins prefix and topic into a NATS subject.
func Subject(prefix, topic string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + topic
}

// LimitsSubject returns the subject an agent's control envelopes are
// published on.
func LimitsSubject(prefix, agentID string) string {
	return Subject(prefix, TopicLimits+"."+agentID)
}

// Event types

type SessionConnected struct {
	Session           *model.Session `json:"session"`
	LatestReserveTime time.Time      `json:"latest_reserve_time"`
	Contenders        int            `json:"contenders"`
	Superseded        []string       `json:"superseded,omitempty"`
}

type SessionNotified struct {
	Session           *model.Session `json:"session"`
	LatestReserveTime time.Time      `json:"latest_reserve_time"`
}

type SessionReserved struct {
	Session *model.Session `json:"session"`
}

type SessionEvicted struct {
	Session *model.Session `json:"session"`
	Reason  string         `json:"reason"`
}

type VehicleLost struct {
	AgentID  string    `json:"agent_id"`
	LastSeen time.Time `json:"last_seen"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// Subscriber delivers raw payloads published on a subject. The returned
// cancel func unsubscribes and closes the channel.
type Subscriber interface {
	Subscribe(subject string) (<-chan []byte, func(), error)
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }

// LimitsPublisher routes control envelopes to their agent's subject.
type LimitsPublisher struct {
	Publisher Publisher
	Prefix    string
}

func (l *LimitsPublisher) PublishLimits(ctx context.Context, limits *model.Limits) error {
	return l.Publisher.Publish(ctx, LimitsSubject(l.Prefix, limits.AgentID), limits)
}
