// Package mapgrid maintains the probabilistic semantic occupancy map:
// a stack of float32 grid channels updated from depth frames and
// object detections through projective geometry, with a log-odds
// probability layer and per-height voxel slices.
//
// Map layout follows Object Goal Navigation using Goal-Oriented
// Semantic Exploration (https://arxiv.org/pdf/2007.00643.pdf).
package mapgrid

import (
	"fmt"
	"math"

	"github.com/polonav/igpctl/internal/geometry"
)

// Log-odds bounds for the probability channels.
const (
	logOddsMin = -10.0
	logOddsMax = 10.0

	logitEps = 1e-6

	// Minimum detection score for per-instance extraction.
	defaultDetectionThreshold = 0.5
)

// Params configures the map module. Distances are in the units named
// per field; grid cells derive from Resolution.
type Params struct {
	FrameHeight int     // depth frame rows
	FrameWidth  int     // depth frame columns
	CameraHeight float64 // sensor height in meters
	HFOV        float64 // horizontal field of view in degrees

	NumCategories int // semantic categories mapped

	MapSizeCM         int // global map extent in cm
	Resolution        int // cm per cell (xy and height bins)
	VisionRange       int // egocentric window size in cells
	GlobalDownscaling int // global map extent over local map extent
	DuScale           int // depth frame subsampling factor

	// Point-count thresholds for binarizing projections.
	CatPredThreshold float64
	ExpPredThreshold float64
	MapPredThreshold float64

	MinDepth float64 // meters
	MaxDepth float64 // meters

	MinObsHeightCM int // obstacles below this height are ignored

	DilateObstacles bool
	DilateSize      int

	ProbabilityPrior   float64 // prior detection probability
	CloseRangeCM       int     // been-close band depth in cm
	DetectionThreshold float64 // min score for instance extraction
}

// DefaultParams returns the parameterization used by the project's
// evaluation configs.
func DefaultParams() Params {
	return Params{
		FrameHeight:        480,
		FrameWidth:         640,
		CameraHeight:       0.88,
		HFOV:               79,
		NumCategories:      16,
		MapSizeCM:          4800,
		Resolution:         5,
		VisionRange:        100,
		GlobalDownscaling:  2,
		DuScale:            4,
		CatPredThreshold:   5.0,
		ExpPredThreshold:   1.0,
		MapPredThreshold:   1.0,
		MinDepth:           0.2,
		MaxDepth:           5.0,
		MinObsHeightCM:     0,
		DilateObstacles:    true,
		DilateSize:         3,
		ProbabilityPrior:   0.2,
		CloseRangeCM:       150,
		DetectionThreshold: defaultDetectionThreshold,
	}
}

// Validate checks the parameter set for consistency.
func (p *Params) Validate() error {
	if p.FrameHeight <= 0 || p.FrameWidth <= 0 {
		return fmt.Errorf("frame size must be positive (got %dx%d)", p.FrameWidth, p.FrameHeight)
	}
	if p.HFOV <= 0 || p.HFOV >= 180 {
		return fmt.Errorf("hfov must be in (0, 180) degrees (got %v)", p.HFOV)
	}
	if p.NumCategories <= 0 {
		return fmt.Errorf("at least one semantic category is required")
	}
	if p.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive (got %d)", p.Resolution)
	}
	if p.GlobalDownscaling <= 0 {
		return fmt.Errorf("global downscaling must be positive (got %d)", p.GlobalDownscaling)
	}
	if p.MapSizeCM <= 0 || p.MapSizeCM%(p.Resolution*p.GlobalDownscaling) != 0 {
		return fmt.Errorf("map size %dcm must be a multiple of resolution x downscaling", p.MapSizeCM)
	}
	if p.VisionRange <= 0 || p.VisionRange%2 != 0 {
		return fmt.Errorf("vision range must be positive and even (got %d)", p.VisionRange)
	}
	local := p.MapSizeCM / p.GlobalDownscaling / p.Resolution
	if p.VisionRange > local {
		return fmt.Errorf("vision range %d exceeds local map size %d", p.VisionRange, local)
	}
	if p.DuScale <= 0 {
		return fmt.Errorf("du scale must be positive (got %d)", p.DuScale)
	}
	if p.MapPredThreshold <= 0 || p.ExpPredThreshold <= 0 || p.CatPredThreshold <= 0 {
		return fmt.Errorf("prediction thresholds must be positive")
	}
	if p.MaxDepth <= p.MinDepth {
		return fmt.Errorf("max depth %v must exceed min depth %v", p.MaxDepth, p.MinDepth)
	}
	if p.ProbabilityPrior <= 0 || p.ProbabilityPrior >= 1 {
		return fmt.Errorf("probability prior must be in (0, 1) (got %v)", p.ProbabilityPrior)
	}
	return nil
}

// Layout is the channel order of a map state. The non-semantic block
// ends with one channel per mapped voxel height bin; semantic category
// channels follow.
type Layout struct {
	Obstacle        int
	Explored        int
	CurrentLocation int
	Visited         int
	BeenClose       int
	Probability     int
	VoxelStart      int
	VoxelSlices     int
	NonSemantic     int
	Categories      int
	Channels        int
}

// Module performs frame updates against map states. It is stateless:
// all map data lives in State.
type Module struct {
	p   Params
	cam geometry.CameraMatrix

	layout     Layout
	localSize  int // local map cells per side
	globalSize int // global map cells per side

	minVoxelHeight int // height bin of the grid floor (negative)
	maxVoxelHeight int
	voxelDepth     int // total height bins

	minMappedHeight   int // first obstacle bin
	filteredMinHeight int // first bin above the ground band
	maxMappedHeight   int // one past the last mapped bin

	maxDepthCM    float64
	agentHeightCM float64
	priorLogit    float64
	closeRange    int // been-close band in cells
}

// New validates params and derives the grid geometry.
func New(p Params) (*Module, error) {
	if p.DetectionThreshold <= 0 {
		p.DetectionThreshold = defaultDetectionThreshold
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	m := &Module{
		p:             p,
		cam:           geometry.NewCameraMatrix(p.FrameWidth, p.FrameHeight, p.HFOV),
		localSize:     p.MapSizeCM / p.GlobalDownscaling / p.Resolution,
		globalSize:    p.MapSizeCM / p.Resolution,
		maxDepthCM:    p.MaxDepth * 100.0,
		agentHeightCM: p.CameraHeight * 100.0,
		priorLogit:    geometry.Logit(p.ProbabilityPrior, logitEps),
		closeRange:    p.CloseRangeCM / p.Resolution,
	}

	// The voxel grid spans -40cm to 360cm around the floor.
	m.maxVoxelHeight = int(360.0 / float64(p.Resolution))
	m.minVoxelHeight = int(-40.0 / float64(p.Resolution))
	m.voxelDepth = m.maxVoxelHeight - m.minVoxelHeight
	m.minMappedHeight = int(float64(p.MinObsHeightCM)/float64(p.Resolution) - float64(m.minVoxelHeight))
	m.filteredMinHeight = int(20.0/float64(p.Resolution) - float64(m.minVoxelHeight))
	m.maxMappedHeight = int((m.agentHeightCM+1.0)/float64(p.Resolution) - float64(m.minVoxelHeight))
	if m.maxMappedHeight > m.voxelDepth {
		m.maxMappedHeight = m.voxelDepth
	}

	m.layout = Layout{
		Obstacle:        0,
		Explored:        1,
		CurrentLocation: 2,
		Visited:         3,
		BeenClose:       4,
		Probability:     5,
		VoxelStart:      6,
		VoxelSlices:     m.maxMappedHeight,
		Categories:      p.NumCategories,
	}
	m.layout.NonSemantic = m.layout.VoxelStart + m.layout.VoxelSlices
	m.layout.Channels = m.layout.NonSemantic + p.NumCategories

	return m, nil
}

// Layout returns the channel layout derived from the params.
func (m *Module) Layout() Layout {
	return m.layout
}

// LocalSize returns the local map side length in cells.
func (m *Module) LocalSize() int {
	return m.localSize
}

// GlobalSize returns the global map side length in cells.
func (m *Module) GlobalSize() int {
	return m.globalSize
}

// CellSizeCM returns the map resolution in cm per cell.
func (m *Module) CellSizeCM() int {
	return m.p.Resolution
}

func clampLogOdds(v float64) float32 {
	return float32(geometry.Clamp(v, logOddsMin, logOddsMax))
}

func isEmptyVoxel(v float32) bool {
	return math.IsInf(float64(v), 1)
}

// emptyVoxel marks a never-observed voxel cell.
func emptyVoxel() float32 {
	return float32(math.Inf(1))
}
