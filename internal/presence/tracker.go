// Package presence keeps the live vehicle roster.
//
// Every vehicle state sample the scheduler receives updates the sender's
// entry. A background reaper marks vehicles that stop reporting as lost and
// later forgets them. The roster is observational: it never affects
// negotiation, which is governed by session timeouts alone.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/crossing/internal/clock"
	"github.com/alfredjeanlab/crossing/internal/model"
)

// ReaperConfig configures the background lost-vehicle reaper.
type ReaperConfig struct {
	// LostAfter is how long a vehicle may stay silent before it is marked
	// lost. Default: 5 seconds.
	LostAfter time.Duration

	// EvictAfter is how long a lost vehicle stays on the roster.
	// Default: 1 minute.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 1 second.
	SweepInterval time.Duration

	// OnLost is called for each vehicle newly marked lost, outside the lock.
	OnLost func(agentID string, lastSeen time.Time)
}

// Tracker maintains the in-memory vehicle roster.
type Tracker struct {
	mu       sync.RWMutex
	vehicles map[string]*vehicleState
	clock    clock.Clock
	logger   *slog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type vehicleState struct {
	firstSeen time.Time
	lastSeen  time.Time
	last      model.VehicleState
	samples   int64
	lost      bool
	lostAt    time.Time
}

// New creates a tracker. A nil clock uses the wall clock.
func New(clk clock.Clock, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		vehicles: make(map[string]*vehicleState),
		clock:    clk,
		logger:   logger,
	}
}

// Record updates the sender's entry from one state sample. Samples are
// stamped on receipt; the vehicle's own stamp is not trusted for liveness.
func (t *Tracker) Record(st model.VehicleState) {
	if st.AgentID == "" {
		return
	}

	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.vehicles[st.AgentID]
	if !ok {
		v = &vehicleState{firstSeen: now}
		t.vehicles[st.AgentID] = v
	}
	if v.lost {
		t.logger.Info("presence: vehicle reporting again", "agent_id", st.AgentID)
		v.lost = false
		v.lostAt = time.Time{}
	}
	v.lastSeen = now
	v.last = st
	v.samples++
}

// Roster returns every tracked vehicle, most recently heard first. A positive
// maxIdle excludes vehicles silent for longer.
func (t *Tracker) Roster(maxIdle time.Duration) []model.VehiclePresence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock.Now()
	out := make([]model.VehiclePresence, 0, len(t.vehicles))
	for id, v := range t.vehicles {
		idle := now.Sub(v.lastSeen)
		if maxIdle > 0 && idle > maxIdle {
			continue
		}
		out = append(out, model.VehiclePresence{
			AgentID:   id,
			FirstSeen: v.firstSeen,
			LastSeen:  v.lastSeen,
			X:         v.last.X,
			Y:         v.last.Y,
			Heading:   v.last.Heading,
			Speed:     v.last.Speed,
			Samples:   v.samples,
			IdleSecs:  idle.Seconds(),
			Lost:      v.lost,
			LostAt:    v.lostAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}

// StartReaper launches the background sweep. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg ReaperConfig) {
	if cfg.LostAfter <= 0 {
		cfg.LostAfter = 5 * time.Second
	}
	if cfg.EvictAfter <= 0 {
		cfg.EvictAfter = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})
	go t.reapLoop(cfg)
	t.logger.Info("presence: reaper started", "lost_after", cfg.LostAfter, "sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg ReaperConfig) {
	now := t.clock.Now()

	type lostVehicle struct {
		id       string
		lastSeen time.Time
	}
	var newlyLost []lostVehicle

	t.mu.Lock()
	for id, v := range t.vehicles {
		if v.lost {
			if now.Sub(v.lostAt) > cfg.EvictAfter {
				delete(t.vehicles, id)
			}
			continue
		}
		if now.Sub(v.lastSeen) > cfg.LostAfter {
			v.lost = true
			v.lostAt = now
			newlyLost = append(newlyLost, lostVehicle{id: id, lastSeen: v.lastSeen})
		}
	}
	t.mu.Unlock()

	for _, l := range newlyLost {
		t.logger.Info("presence: vehicle lost", "agent_id", l.id, "last_seen", l.lastSeen)
		if cfg.OnLost != nil {
			cfg.OnLost(l.id, l.lastSeen)
		}
	}
}
