package session

import (
	"log/slog"
	"time"

	"github.com/alfredjeanlab/crossing/internal/clock"
	"github.com/alfredjeanlab/crossing/internal/model"
)

// ReaperConfig configures the background session reaper.
type ReaperConfig struct {
	// SweepInterval is how often the reaper scans for timed-out sessions.
	// Default: 2 seconds.
	SweepInterval time.Duration

	// Clock supplies the sweep time. Default: clock.Real().
	Clock clock.Clock

	// OnEvict is called for each evicted session, outside the store lock.
	OnEvict func(sess *model.Session)
}

// Reaper periodically evicts sessions whose timeout has passed.
type Reaper struct {
	store  *Store
	cfg    ReaperConfig
	logger *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewReaper creates a reaper for store. Call Start to launch it.
func NewReaper(store *Store, cfg ReaperConfig, logger *slog.Logger) *Reaper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{store: store, cfg: cfg, logger: logger}
}

// Start launches the sweep goroutine. Call Stop to shut it down.
func (r *Reaper) Start() {
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop()
	r.logger.Info("session reaper started", "sweep_interval", r.cfg.SweepInterval)
}

// Stop shuts down the sweep goroutine and waits for it to exit.
func (r *Reaper) Stop() {
	if r.stop != nil {
		close(r.stop)
		<-r.done
		r.stop = nil
		r.done = nil
	}
}

func (r *Reaper) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Sweep(r.cfg.Clock.Now())
		}
	}
}

// Sweep evicts every session whose timeout is at or before now and returns
// the evicted sessions.
func (r *Reaper) Sweep(now time.Time) []*model.Session {
	evicted := r.store.RemoveIf(func(s *model.Session) bool {
		return s.Expired(now)
	})
	for _, sess := range evicted {
		r.logger.Info("session evicted",
			"session_id", sess.ID,
			"agent_id", sess.AgentID,
			"reserved", sess.Reserved,
			"timeout_at", sess.SessionTimeoutAt)
		if r.cfg.OnEvict != nil {
			r.cfg.OnEvict(sess)
		}
	}
	return evicted
}
