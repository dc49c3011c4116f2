package mapgrid

import (
	"math"

	"github.com/polonav/igpctl/internal/geometry"
)

// Pose is an agent pose in map frame: meters along columns (X) and
// rows (Y), heading in degrees.
type Pose struct {
	X, Y    float64
	Heading float64
}

// Delta is a relative pose change in the agent frame: meters forward
// and to the side, rotation in radians.
type Delta struct {
	Forward  float64
	Lateral  float64
	Rotation float64
}

// ComposePose applies a relative pose change to a pose and normalizes
// the heading.
func ComposePose(p Pose, d Delta) Pose {
	rad := p.Heading * math.Pi / 180.0
	out := Pose{
		X:       p.X + d.Forward*math.Cos(rad) - d.Lateral*math.Sin(rad),
		Y:       p.Y + d.Forward*math.Sin(rad) + d.Lateral*math.Cos(rad),
		Heading: NormalizeHeading(p.Heading + d.Rotation*180.0/math.Pi),
	}
	return out
}

// NormalizeHeading folds a heading in degrees into [-180, 180).
func NormalizeHeading(deg float64) float64 {
	deg = math.Mod(deg-180.0, 360.0) + 180.0
	return math.Mod(deg+180.0, 360.0) - 180.0
}

// Boundary is a half-open window into the global map:
// rows [RowStart, RowEnd), columns [ColStart, ColEnd).
type Boundary struct {
	RowStart, RowEnd int
	ColStart, ColEnd int
}

// State holds the local and global map stacks and the agent poses.
// Channel order follows the module's Layout.
type State struct {
	Local  []*geometry.Grid
	Global []*geometry.Grid

	LocalPose  Pose
	GlobalPose Pose

	// Origins is the offset of the local window in meters, so
	// GlobalPose = LocalPose + Origins.
	Origins Pose

	Bounds Boundary
}

// NewState allocates an empty map state with the agent at the center
// of the global map. Voxel channels start as empty markers.
func NewState(m *Module) *State {
	layout := m.layout
	st := &State{
		Global: make([]*geometry.Grid, layout.Channels),
		Local:  make([]*geometry.Grid, layout.Channels),
	}
	for ch := 0; ch < layout.Channels; ch++ {
		g := geometry.NewGrid(m.globalSize, m.globalSize)
		if ch >= layout.VoxelStart && ch < layout.NonSemantic {
			g.Fill(emptyVoxel())
		}
		st.Global[ch] = g
	}

	center := float64(m.p.MapSizeCM) / 100.0 / 2.0
	st.GlobalPose = Pose{X: center, Y: center}
	st.recenter(m)
	return st
}

// UpdateGlobal stitches the local window back into the global map,
// refreshes the global pose, and recenters the local window on the
// agent.
func (s *State) UpdateGlobal(m *Module) {
	for ch, local := range s.Local {
		global := s.Global[ch]
		for r := 0; r < local.H; r++ {
			gr := s.Bounds.RowStart + r
			copy(
				global.Data[gr*global.W+s.Bounds.ColStart:gr*global.W+s.Bounds.ColEnd],
				local.Data[r*local.W:(r+1)*local.W],
			)
		}
	}
	s.GlobalPose = Pose{
		X:       s.LocalPose.X + s.Origins.X,
		Y:       s.LocalPose.Y + s.Origins.Y,
		Heading: s.LocalPose.Heading,
	}
	s.recenter(m)
}

// recenter moves the local window onto the agent and re-extracts the
// local map from the global map.
func (s *State) recenter(m *Module) {
	row := int(s.GlobalPose.Y * 100.0 / float64(m.p.Resolution))
	col := int(s.GlobalPose.X * 100.0 / float64(m.p.Resolution))
	s.Bounds = m.windowAround(row, col)
	s.Origins = Pose{
		X: float64(s.Bounds.ColStart) * float64(m.p.Resolution) / 100.0,
		Y: float64(s.Bounds.RowStart) * float64(m.p.Resolution) / 100.0,
	}

	for ch, global := range s.Global {
		local := geometry.NewGrid(m.localSize, m.localSize)
		for r := 0; r < m.localSize; r++ {
			gr := s.Bounds.RowStart + r
			copy(
				local.Data[r*local.W:(r+1)*local.W],
				global.Data[gr*global.W+s.Bounds.ColStart:gr*global.W+s.Bounds.ColEnd],
			)
		}
		s.Local[ch] = local
	}

	s.LocalPose = Pose{
		X:       s.GlobalPose.X - s.Origins.X,
		Y:       s.GlobalPose.Y - s.Origins.Y,
		Heading: s.GlobalPose.Heading,
	}
}

// windowAround centers a local-map-sized window on a global cell,
// clamped to the global map bounds.
func (m *Module) windowAround(row, col int) Boundary {
	if m.p.GlobalDownscaling <= 1 {
		return Boundary{0, m.globalSize, 0, m.globalSize}
	}

	r1 := row - m.localSize/2
	c1 := col - m.localSize/2
	r2 := r1 + m.localSize
	c2 := c1 + m.localSize
	if r1 < 0 {
		r1, r2 = 0, m.localSize
	}
	if r2 > m.globalSize {
		r1, r2 = m.globalSize-m.localSize, m.globalSize
	}
	if c1 < 0 {
		c1, c2 = 0, m.localSize
	}
	if c2 > m.globalSize {
		c1, c2 = m.globalSize-m.localSize, m.globalSize
	}
	return Boundary{RowStart: r1, RowEnd: r2, ColStart: c1, ColEnd: c2}
}
