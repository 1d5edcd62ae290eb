// Package safety defines the contract between the scheduler and the safety
// analysis that turns a requested crossing into a concrete entry/exit window
// and a per-timestep safety tube.
//
// A Field is a sequence of frames, one per timestep of the planning horizon.
// Each frame holds one value per zone cell: positive means free, zero or
// negative means claimed. Frames are shared between fields and must be
// treated as read-only once built.
package safety

import (
	"context"
	"errors"
	"math"
)

// ErrEmptyWindow is returned by Engine.Analyze when no entry window of the
// requested length is feasible.
var ErrEmptyWindow = errors.New("safety: no feasible entry window")

// Grid is the spatial discretization of the zone: Cols x Rows cells covering
// [MinX, MaxX] x [MinY, MaxY].
type Grid struct {
	Cols int
	Rows int
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Cells returns the number of cells in a frame.
func (g Grid) Cells() int { return g.Cols * g.Rows }

// CellAt returns the row-major index of the cell containing (x, y). ok is
// false when the point lies outside the grid.
func (g Grid) CellAt(x, y float64) (idx int, ok bool) {
	if g.Cols <= 0 || g.Rows <= 0 {
		return 0, false
	}
	if x < g.MinX || x > g.MaxX || y < g.MinY || y > g.MaxY {
		return 0, false
	}
	col := int(math.Floor((x - g.MinX) / (g.MaxX - g.MinX) * float64(g.Cols)))
	row := int(math.Floor((y - g.MinY) / (g.MaxY - g.MinY) * float64(g.Rows)))
	col = min(col, g.Cols-1)
	row = min(row, g.Rows-1)
	return row*g.Cols + col, true
}

// CellCenter returns the coordinates of the center of cell idx.
func (g Grid) CellCenter(idx int) (x, y float64) {
	col, row := idx%g.Cols, idx/g.Cols
	dx := (g.MaxX - g.MinX) / float64(g.Cols)
	dy := (g.MaxY - g.MinY) / float64(g.Rows)
	return g.MinX + (float64(col)+0.5)*dx, g.MinY + (float64(row)+0.5)*dy
}

// Mask marks a set of cells.
type Mask []bool

// Union returns a new mask holding the cells of m and o.
func (m Mask) Union(o Mask) Mask {
	out := make(Mask, max(len(m), len(o)))
	copy(out, m)
	for i, v := range o {
		out[i] = out[i] || v
	}
	return out
}

// Count returns the number of marked cells.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Frame is one timestep of a Field.
type Frame []float32

// Field is a time-indexed sequence of frames.
type Field []Frame

// SafeFrame returns a frame of the given size that is free everywhere.
func SafeFrame(cells int) Frame {
	f := make(Frame, cells)
	for i := range f {
		f[i] = 1
	}
	return f
}

// NewSafeField returns a field of steps frames, all free. Every row shares
// the same underlying frame.
func NewSafeField(steps, cells int) Field {
	safe := SafeFrame(cells)
	f := make(Field, steps)
	for i := range f {
		f[i] = safe
	}
	return f
}

// Free reports whether every cell of mask is free in frame t of f.
func (f Field) Free(t int, mask Mask) bool {
	frame := f[t]
	for i, on := range mask {
		if on && i < len(frame) && frame[i] <= 0 {
			return false
		}
	}
	return true
}

// Tube is the safety tube of one reservation. It is an opaque handle to the
// scheduler: only the engine interprets its contents.
type Tube struct {
	Field    Field
	Corridor Mask
}

// Steps returns the number of timesteps covered by the tube.
func (t Tube) Steps() int { return len(t.Field) }

// Window holds entry and exit bounds in seconds relative to a reservation's
// time reference.
type Window struct {
	EarliestEntry float64
	LatestEntry   float64
	EarliestExit  float64
	LatestExit    float64
}

// Request is the input of one analysis run.
type Request struct {
	Entry Mask
	Exit  Mask
	Route Mask

	// Hazards are the other reservations' fields, aligned to this request's
	// time reference.
	Hazards []Field

	EarliestEntry  float64
	MinWindowEntry float64
	MaxWindowEntry float64
}

// Analysis is the output of a successful analysis run.
type Analysis struct {
	Window Window
	Tube   Tube
}

// State is the kinematic state of a vehicle.
type State struct {
	X       float64
	Y       float64
	Heading float64
	Speed   float64
}

// Bitmap is a Rows x Cols grid over the control space, row-major. Rows span
// acceleration, columns span steering.
type Bitmap struct {
	Rows    int
	Cols    int
	Allowed []bool
}

// Engine is the safety analysis collaborator.
type Engine interface {
	// Analyze computes a refined window and a safety tube for a crossing.
	// It may take on the order of the configured compute time.
	Analyze(ctx context.Context, req Request) (*Analysis, error)

	// ControlEnvelope returns the controls allowed at timestep index of tube
	// for a vehicle in state.
	ControlEnvelope(tube Tube, state State, index int) (Bitmap, error)
}
