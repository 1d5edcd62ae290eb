// Package zone loads the static description of the arbitrated zone: timing
// constants, the entry and exit locations, the permitted-route table and the
// cell regions each location and route occupies.
package zone

import (
	_ "embed"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/crossing/internal/safety"
)

//go:embed default.toml
var defaultTOML string

// Duration is a time.Duration that decodes from strings like "200ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Rect is an axis-aligned rectangle in zone coordinates.
type Rect struct {
	MinX float64 `toml:"min_x"`
	MinY float64 `toml:"min_y"`
	MaxX float64 `toml:"max_x"`
	MaxY float64 `toml:"max_y"`
}

func (r Rect) contains(x, y float64) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// RouteSpec permits every (entry, exit) pair with entry != exit drawn from
// Entries x Exits, constraining the listed regions.
type RouteSpec struct {
	Entries []string `toml:"entries"`
	Exits   []string `toml:"exits"`
	Regions []string `toml:"regions"`
}

// EngineSpec parameterizes the reference safety engine.
type EngineSpec struct {
	Occupancy   Duration `toml:"occupancy"`
	ControlRows int      `toml:"control_rows"`
	ControlCols int      `toml:"control_cols"`
	MinAccel    float64  `toml:"min_accel"`
	MaxAccel    float64  `toml:"max_accel"`
}

// GridSpec is the spatial discretization.
type GridSpec struct {
	Cols int `toml:"cols"`
	Rows int `toml:"rows"`
	Rect
}

// File is the TOML layout of a zone file.
type File struct {
	TimeHorizon    Duration `toml:"time_horizon"`
	TimeStep       Duration `toml:"time_step"`
	MaxWindowEntry Duration `toml:"max_window_entry"`
	MinWindowEntry Duration `toml:"min_window_entry"`
	SessionTimeout Duration `toml:"session_timeout"`
	TransitTime    Duration `toml:"transit_time"`
	ComputeTime    Duration `toml:"compute_time"`

	EntryLocations []string        `toml:"entry_locations"`
	ExitLocations  []string        `toml:"exit_locations"`
	Routes         []RouteSpec     `toml:"routes"`
	Grid           GridSpec        `toml:"grid"`
	Regions        map[string]Rect `toml:"regions"`
	Engine         EngineSpec      `toml:"engine"`
}

type routeKey struct{ entry, exit string }

// Zone is a validated, immutable zone description.
type Zone struct {
	TimeHorizon    time.Duration
	TimeStep       time.Duration
	MaxWindowEntry time.Duration
	MinWindowEntry time.Duration
	SessionTimeout time.Duration
	TransitTime    time.Duration
	ComputeTime    time.Duration

	Grid   safety.Grid
	Engine EngineSpec

	entries []string
	exits   []string
	routes  map[routeKey][]string
	masks   map[string]safety.Mask
}

// Default returns the built-in zone.
func Default() (*Zone, error) {
	return Parse(defaultTOML)
}

// Load reads and validates a zone file. An empty path yields Default().
func Load(path string) (*Zone, error) {
	if path == "" {
		return Default()
	}
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("zone: decode %s: %w", path, err)
	}
	z, err := f.Build()
	if err != nil {
		return nil, fmt.Errorf("zone: %s: %w", path, err)
	}
	return z, nil
}

// Parse decodes and validates zone TOML held in memory.
func Parse(data string) (*Zone, error) {
	var f File
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("zone: decode: %w", err)
	}
	z, err := f.Build()
	if err != nil {
		return nil, fmt.Errorf("zone: %w", err)
	}
	return z, nil
}

// Build validates f and precomputes region masks.
func (f *File) Build() (*Zone, error) {
	for name, d := range map[string]Duration{
		"time_horizon":     f.TimeHorizon,
		"time_step":        f.TimeStep,
		"max_window_entry": f.MaxWindowEntry,
		"session_timeout":  f.SessionTimeout,
		"transit_time":     f.TransitTime,
		"compute_time":     f.ComputeTime,
	} {
		if d.Duration <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}
	if f.MinWindowEntry.Duration < 0 {
		return nil, fmt.Errorf("min_window_entry must not be negative")
	}
	if f.TimeHorizon.Duration%f.TimeStep.Duration != 0 {
		return nil, fmt.Errorf("time_horizon %s is not a multiple of time_step %s", f.TimeHorizon, f.TimeStep)
	}
	if f.Grid.Cols <= 0 || f.Grid.Rows <= 0 || f.Grid.MaxX <= f.Grid.MinX || f.Grid.MaxY <= f.Grid.MinY {
		return nil, fmt.Errorf("invalid grid %+v", f.Grid)
	}
	if len(f.EntryLocations) == 0 || len(f.ExitLocations) == 0 {
		return nil, fmt.Errorf("entry_locations and exit_locations must not be empty")
	}

	z := &Zone{
		TimeHorizon:    f.TimeHorizon.Duration,
		TimeStep:       f.TimeStep.Duration,
		MaxWindowEntry: f.MaxWindowEntry.Duration,
		MinWindowEntry: f.MinWindowEntry.Duration,
		SessionTimeout: f.SessionTimeout.Duration,
		TransitTime:    f.TransitTime.Duration,
		ComputeTime:    f.ComputeTime.Duration,
		Grid: safety.Grid{
			Cols: f.Grid.Cols, Rows: f.Grid.Rows,
			MinX: f.Grid.MinX, MinY: f.Grid.MinY,
			MaxX: f.Grid.MaxX, MaxY: f.Grid.MaxY,
		},
		Engine:  f.Engine,
		entries: slices.Clone(f.EntryLocations),
		exits:   slices.Clone(f.ExitLocations),
		routes:  make(map[routeKey][]string),
		masks:   make(map[string]safety.Mask),
	}

	for name, r := range f.Regions {
		z.masks[name] = z.rasterize(r)
	}
	for _, loc := range append(slices.Clone(z.entries), z.exits...) {
		if _, ok := z.masks[loc]; !ok {
			return nil, fmt.Errorf("location %q has no region", loc)
		}
	}

	for i, spec := range f.Routes {
		if len(spec.Regions) == 0 {
			return nil, fmt.Errorf("routes[%d]: no regions", i)
		}
		for _, reg := range spec.Regions {
			if _, ok := z.masks[reg]; !ok {
				return nil, fmt.Errorf("routes[%d]: unknown region %q", i, reg)
			}
		}
		for _, entry := range spec.Entries {
			if !slices.Contains(z.entries, entry) {
				return nil, fmt.Errorf("routes[%d]: %q is not an entry location", i, entry)
			}
			for _, exit := range spec.Exits {
				if !slices.Contains(z.exits, exit) {
					return nil, fmt.Errorf("routes[%d]: %q is not an exit location", i, exit)
				}
				if entry == exit {
					continue
				}
				z.routes[routeKey{entry, exit}] = slices.Clone(spec.Regions)
			}
		}
	}
	if len(z.routes) == 0 {
		return nil, fmt.Errorf("no permitted routes")
	}
	return z, nil
}

// rasterize marks every cell whose center lies inside r.
func (z *Zone) rasterize(r Rect) safety.Mask {
	m := make(safety.Mask, z.Grid.Cells())
	for i := range m {
		x, y := z.Grid.CellCenter(i)
		m[i] = r.contains(x, y)
	}
	return m
}

// Steps returns the number of timesteps in a safety tube: one per TimeStep
// across the horizon, both ends included.
func (z *Zone) Steps() int {
	return int(z.TimeHorizon/z.TimeStep) + 1
}

// IsEntry reports whether loc is a configured entry location.
func (z *Zone) IsEntry(loc string) bool { return slices.Contains(z.entries, loc) }

// IsExit reports whether loc is a configured exit location.
func (z *Zone) IsExit(loc string) bool { return slices.Contains(z.exits, loc) }

// Permitted reports whether the route entry -> exit is in the route table.
func (z *Zone) Permitted(entry, exit string) bool {
	_, ok := z.routes[routeKey{entry, exit}]
	return ok
}

// Mask returns the cells of a named region or location.
func (z *Zone) Mask(name string) (safety.Mask, bool) {
	m, ok := z.masks[name]
	return m, ok
}

// RouteMask returns the union of the regions constrained by entry -> exit.
func (z *Zone) RouteMask(entry, exit string) (safety.Mask, bool) {
	regions, ok := z.routes[routeKey{entry, exit}]
	if !ok {
		return nil, false
	}
	out := make(safety.Mask, z.Grid.Cells())
	for _, reg := range regions {
		out = out.Union(z.masks[reg])
	}
	return out, true
}

// Routes returns the permitted routes as "entry->exit" strings, sorted.
func (z *Zone) Routes() []string {
	out := make([]string, 0, len(z.routes))
	for k := range z.routes {
		out = append(out, k.entry+"->"+k.exit)
	}
	sort.Strings(out)
	return out
}

// OccupancyConfig returns the reference engine configuration for this zone.
func (z *Zone) OccupancyConfig() safety.OccupancyConfig {
	return safety.OccupancyConfig{
		Grid:        z.Grid,
		Step:        z.TimeStep,
		Steps:       z.Steps(),
		Occupancy:   z.Engine.Occupancy.Duration,
		ControlRows: z.Engine.ControlRows,
		ControlCols: z.Engine.ControlCols,
		MinAccel:    z.Engine.MinAccel,
		MaxAccel:    z.Engine.MaxAccel,
	}
}
