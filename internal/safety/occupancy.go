package safety

import (
	"context"
	"fmt"
	"math"
	"time"
)

// OccupancyConfig parameterizes the Occupancy engine.
type OccupancyConfig struct {
	Grid  Grid
	Step  time.Duration
	Steps int

	// Occupancy is how long a vehicle holds its corridor after entering.
	Occupancy time.Duration

	ControlRows int
	ControlCols int
	MinAccel    float64
	MaxAccel    float64
}

// Occupancy is a reference Engine that reasons about cell occupancy only. A
// vehicle claims the union of its entry, route and exit cells from the moment
// it may enter until it must have left.
type Occupancy struct {
	cfg OccupancyConfig
}

var _ Engine = (*Occupancy)(nil)

// NewOccupancy validates cfg and returns an engine.
func NewOccupancy(cfg OccupancyConfig) (*Occupancy, error) {
	if cfg.Grid.Cells() <= 0 {
		return nil, fmt.Errorf("safety: empty grid")
	}
	if cfg.Step <= 0 || cfg.Steps < 2 {
		return nil, fmt.Errorf("safety: invalid timeline (step=%s steps=%d)", cfg.Step, cfg.Steps)
	}
	if cfg.ControlRows <= 0 || cfg.ControlCols <= 0 {
		return nil, fmt.Errorf("safety: invalid control grid %dx%d", cfg.ControlRows, cfg.ControlCols)
	}
	if cfg.MinAccel > cfg.MaxAccel {
		return nil, fmt.Errorf("safety: min_accel %v > max_accel %v", cfg.MinAccel, cfg.MaxAccel)
	}
	return &Occupancy{cfg: cfg}, nil
}

func (o *Occupancy) stepsFor(seconds float64) int {
	return int(math.Ceil(seconds/o.cfg.Step.Seconds() - 1e-9))
}

func (o *Occupancy) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	cells := o.cfg.Grid.Cells()
	for i, h := range req.Hazards {
		if len(h) != o.cfg.Steps {
			return nil, fmt.Errorf("safety: hazard %d has %d steps, want %d", i, len(h), o.cfg.Steps)
		}
		for _, frame := range h {
			if len(frame) != cells {
				return nil, fmt.Errorf("safety: hazard %d frame has %d cells, want %d", i, len(frame), cells)
			}
		}
	}

	corridor := req.Route.Union(req.Entry).Union(req.Exit)
	if corridor.Count() == 0 {
		return nil, fmt.Errorf("safety: empty corridor")
	}

	last := o.cfg.Steps - 1
	hold := o.stepsFor(o.cfg.Occupancy.Seconds())
	first := o.stepsFor(req.EarliestEntry)
	end := int(math.Floor((req.EarliestEntry+req.MaxWindowEntry)/o.cfg.Step.Seconds() + 1e-9))
	end = min(end, last)

	feasible := func(k int) bool {
		for t := k; t <= min(k+hold, last); t++ {
			for _, h := range req.Hazards {
				if !h.Free(t, corridor) {
					return false
				}
			}
		}
		return true
	}

	start, stop := -1, -1
	for k := first; k <= end; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if feasible(k) {
			if start < 0 {
				start = k
			}
			stop = k
		} else if start >= 0 {
			break
		}
	}
	if start < 0 {
		return nil, ErrEmptyWindow
	}

	step := o.cfg.Step.Seconds()
	horizon := float64(last) * step
	w := Window{
		EarliestEntry: float64(start) * step,
		LatestEntry:   float64(stop) * step,
	}
	if w.LatestEntry-w.EarliestEntry < req.MinWindowEntry-1e-9 {
		return nil, ErrEmptyWindow
	}
	w.EarliestExit = math.Min(w.EarliestEntry+o.cfg.Occupancy.Seconds(), horizon)
	w.LatestExit = math.Min(w.LatestEntry+o.cfg.Occupancy.Seconds(), horizon)

	claimed := make(Frame, cells)
	for i := range claimed {
		claimed[i] = 1
		if i < len(corridor) && corridor[i] {
			claimed[i] = -1
		}
	}
	safe := SafeFrame(cells)
	tube := make(Field, o.cfg.Steps)
	for t := range tube {
		if t >= start && t <= min(stop+hold, last) {
			tube[t] = claimed
		} else {
			tube[t] = safe
		}
	}

	return &Analysis{Window: w, Tube: Tube{Field: tube, Corridor: corridor}}, nil
}

func (o *Occupancy) ControlEnvelope(tube Tube, state State, index int) (Bitmap, error) {
	if index < 0 || index >= tube.Steps() {
		return Bitmap{}, fmt.Errorf("safety: index %d outside tube of %d steps", index, tube.Steps())
	}
	rows, cols := o.cfg.ControlRows, o.cfg.ControlCols
	bm := Bitmap{Rows: rows, Cols: cols, Allowed: make([]bool, rows*cols)}

	unrestricted := true
	if cell, ok := o.cfg.Grid.CellAt(state.X, state.Y); ok {
		frame := tube.Field[index]
		unrestricted = cell < len(frame) && frame[cell] <= 0
	}

	for r := 0; r < rows; r++ {
		accel := o.cfg.MinAccel
		if rows > 1 {
			accel += float64(r) * (o.cfg.MaxAccel - o.cfg.MinAccel) / float64(rows-1)
		}
		allowed := unrestricted || accel <= 0
		for c := 0; c < cols; c++ {
			bm.Allowed[r*cols+c] = allowed
		}
	}
	return bm, nil
}
