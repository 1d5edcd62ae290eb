// Package scheduler arbitrates access to the zone. It decides admission
// deadlines from arrival-time priority, negotiates reservation windows with
// the safety engine and merges the safety tubes of competing reservations.
//
// Every operation captures the request time once, at entry, and evaluates
// all of its deadline checks against that single instant.
package scheduler

import (
	"log/slog"

	"github.com/alfredjeanlab/crossing/internal/clock"
	"github.com/alfredjeanlab/crossing/internal/safety"
	"github.com/alfredjeanlab/crossing/internal/session"
	"github.com/alfredjeanlab/crossing/internal/zone"
)

// Config wires the scheduler's collaborators.
type Config struct {
	Zone   *zone.Zone
	Engine safety.Engine
	Clock  clock.Clock
	Logger *slog.Logger
}

// Scheduler implements connect / notify / reserve over a session store.
type Scheduler struct {
	store  *session.Store
	zone   *zone.Zone
	engine safety.Engine
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a scheduler over store.
func New(store *session.Store, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		store:  store,
		zone:   cfg.Zone,
		engine: cfg.Engine,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
}

// Zone returns the zone the scheduler arbitrates.
func (s *Scheduler) Zone() *zone.Zone { return s.zone }

// Store returns the underlying session store.
func (s *Scheduler) Store() *session.Store { return s.store }
