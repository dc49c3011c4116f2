package mapgrid

import (
	"fmt"
	"math"

	"github.com/polonav/igpctl/internal/geometry"
)

// Observation is one frame of sensor data.
type Observation struct {
	Depth      []float32   // row-major FrameHeight x FrameWidth, meters
	Categories [][]float32 // per category, row-major scores in [0, 1]
	Detections []Detection
	Relevance  []float64 // per-category detection weight, nil for uniform

	Delta       Delta   // pose change since the previous frame
	CameraTilt  float64 // radians
	AgentHeight float64 // meters, 0 uses the configured camera height
}

// Detection is one instance mask from the object detector.
type Detection struct {
	Class int
	Score float64
	Mask  []float32 // row-major frame-sized, nonzero inside the instance
}

// Instance is a detected object footprint in global map cells.
type Instance struct {
	RowMin, RowMax int
	ColMin, ColMax int
	Center         [2]float64 // row, col
	Score          float64
	Class          int
}

// Update integrates one observation into the local map: composes the
// pose, projects the depth frame into the egocentric window, warps the
// window into the allocentric local map, and merges the channels.
// Detected instances above the detection threshold are returned as
// global-map footprints grouped by category.
func (m *Module) Update(st *State, obs *Observation) (map[int][]Instance, error) {
	if err := m.validateObservation(obs); err != nil {
		return nil, err
	}

	st.LocalPose = ComposePose(st.LocalPose, obs.Delta)

	points := m.projectDepth(obs)
	vox, confirmed := m.splatFrame(points, obs)

	layout := m.layout
	res := float64(m.p.Resolution)

	// Height-band projections over the egocentric window.
	fpExp := vox.ProjectSum(0, 0, m.voxelDepth)
	scaleGrid(fpExp, 1.0/m.p.ExpPredThreshold)

	fpMap := vox.ProjectSum(0, m.minMappedHeight, m.maxMappedHeight)
	scaleGrid(fpMap, 1.0/m.p.MapPredThreshold)
	if m.p.DilateObstacles {
		fpMap = fpMap.Dilate(m.p.DilateSize)
	}

	closeExp := fpExp.Clone()
	for r := m.closeRange; r < closeExp.H; r++ {
		for c := 0; c < closeExp.W; c++ {
			closeExp.Set(r, c, 0)
		}
	}

	probCh := 1 + len(obs.Categories)
	probMap := vox.ProjectMax(probCh, m.filteredMinHeight, m.maxMappedHeight)
	probLogit := geometry.NewGrid(probMap.H, probMap.W)
	for i, p := range probMap.Data {
		if fpExp.Data[i] == 0 {
			continue
		}
		probLogit.Data[i] = clampLogOdds(geometry.Logit(float64(p), logitEps) - m.priorLogit)
	}

	// Egocentric window placement in the local map: rows ahead of the
	// agent, columns centered on it.
	x1 := m.localSize/2 - m.p.VisionRange/2
	y1 := m.localSize / 2

	// Warp into the allocentric local frame: rotate about the map
	// center by 90 - heading, then shift the window onto the agent.
	center := float64(m.localSize / 2)
	sx := -(st.LocalPose.X*100.0/res - center) / center
	sy := -(st.LocalPose.Y*100.0/res - center) / center
	rot := geometry.Rotation(90.0 - st.LocalPose.Heading)
	trans := geometry.Translation(sx, sy)
	warp := func(g *geometry.Grid) *geometry.Grid {
		return m.embed(g, y1, x1).Warp(rot).Warp(trans)
	}

	obstacle := warp(fpMap)
	explored := warp(fpExp)
	beenClose := warp(closeExp)
	probability := warp(probLogit)
	for _, g := range []*geometry.Grid{obstacle, explored, beenClose} {
		g.ClampValues(0, 1)
	}

	maxMerge(st.Local[layout.Obstacle], obstacle)
	maxMerge(st.Local[layout.Explored], explored)
	maxMerge(st.Local[layout.BeenClose], beenClose)

	for c := 0; c < len(obs.Categories); c++ {
		proj := vox.ProjectSum(1+c, m.filteredMinHeight, m.maxMappedHeight)
		scaleGrid(proj, 1.0/m.p.CatPredThreshold)
		warped := warp(proj)
		warped.ClampValues(0, 1)
		maxMerge(st.Local[layout.NonSemantic+c], warped)
	}

	// Log-odds accumulate across frames; been-close cells become
	// confident empty.
	prob := st.Local[layout.Probability]
	been := st.Local[layout.BeenClose]
	for i := range prob.Data {
		prob.Data[i] = clampLogOdds(float64(prob.Data[i]) + float64(probability.Data[i]))
		if been.Data[i] >= 1 {
			prob.Data[i] = logOddsMin
		}
	}

	m.updateVoxels(st, vox, probCh, warp)
	m.stampLocation(st)

	return m.extractInstances(st, vox, confirmed, probCh+1, warp), nil
}

func (m *Module) validateObservation(obs *Observation) error {
	frame := m.p.FrameHeight * m.p.FrameWidth
	if len(obs.Depth) != frame {
		return fmt.Errorf("depth has %d values, expected %d", len(obs.Depth), frame)
	}
	if len(obs.Categories) != m.p.NumCategories {
		return fmt.Errorf("observation has %d category rasters, expected %d",
			len(obs.Categories), m.p.NumCategories)
	}
	for i, cat := range obs.Categories {
		if len(cat) != frame {
			return fmt.Errorf("category %d has %d values, expected %d", i, len(cat), frame)
		}
	}
	if obs.Relevance != nil && len(obs.Relevance) != m.p.NumCategories {
		return fmt.Errorf("relevance has %d weights, expected %d",
			len(obs.Relevance), m.p.NumCategories)
	}
	for i, det := range obs.Detections {
		if det.Class < 0 || det.Class >= m.p.NumCategories {
			return fmt.Errorf("detection %d has unknown class %d", i, det.Class)
		}
		if len(det.Mask) != frame {
			return fmt.Errorf("detection %d mask has %d values, expected %d",
				i, len(det.Mask), frame)
		}
	}
	return nil
}

// projectDepth lifts the depth frame into base-frame points in cm.
// Returns beyond max depth are dropped; dropped points collapse to the
// grid origin, which the splat discards.
func (m *Module) projectDepth(obs *Observation) []geometry.Point3 {
	depthCM := make([]float32, len(obs.Depth))
	for i, d := range obs.Depth {
		cm := d * 100.0
		if float64(cm) > m.maxDepthCM {
			cm = 0
		}
		depthCM[i] = cm
	}

	points := geometry.PointCloudFromDepth(depthCM, m.p.FrameHeight, m.p.FrameWidth, m.cam, m.p.DuScale)

	height := m.agentHeightCM
	if obs.AgentHeight > 0 {
		height = obs.AgentHeight * 100.0
	}
	return geometry.TransformCameraView(points, height, obs.CameraTilt*180.0/math.Pi)
}

// splatFrame builds the egocentric voxel grid: channel 0 counts
// points, then one channel per category score, one for the detection
// probability, and one per confirmed instance mask. Returns the grid
// and the confirmed detections in channel order.
func (m *Module) splatFrame(points []geometry.Point3, obs *Observation) (*geometry.Voxels, []Detection) {
	scale := m.p.DuScale
	h, w := m.p.FrameHeight, m.p.FrameWidth

	catFeats := make([][]float32, len(obs.Categories))
	for i, cat := range obs.Categories {
		catFeats[i] = geometry.AvgPool(cat, h, w, scale)
	}

	probFull := make([]float32, h*w)
	for _, det := range obs.Detections {
		weight := det.Score
		if obs.Relevance != nil {
			weight *= obs.Relevance[det.Class]
		}
		for i, v := range det.Mask {
			if p := v * float32(weight); p > probFull[i] {
				probFull[i] = p
			}
		}
	}
	probFeat := geometry.MaxPool(probFull, h, w, scale)

	var confirmed []Detection
	var instFeats [][]float32
	for _, det := range obs.Detections {
		if det.Score > m.p.DetectionThreshold {
			confirmed = append(confirmed, det)
			instFeats = append(instFeats, geometry.MaxPool(det.Mask, h, w, scale))
		}
	}

	probCh := 1 + len(catFeats)
	instCh := probCh + 1
	channels := instCh + len(confirmed)
	vox := geometry.NewVoxels(channels, m.p.VisionRange, m.p.VisionRange, m.voxelDepth)

	res := float64(m.p.Resolution)
	half := float64(m.p.VisionRange) / 2.0
	feats := make([]float32, channels)
	for i, pt := range points {
		feats[0] = 1
		for c := range catFeats {
			feats[1+c] = catFeats[c][i]
		}
		feats[probCh] = probFeat[i]
		for j := range instFeats {
			feats[instCh+j] = instFeats[j][i]
		}
		vox.Splat(pt.Y/res, pt.X/res+half, pt.Z/res-float64(m.minVoxelHeight), feats)
	}
	return vox, confirmed
}

// updateVoxels applies the per-height log-odds update: first
// observation assigns, later observations add the evidence over the
// prior, and been-close columns are forced to confident empty.
func (m *Module) updateVoxels(st *State, vox *geometry.Voxels, probCh int, warp func(*geometry.Grid) *geometry.Grid) {
	layout := m.layout
	been := st.Local[layout.BeenClose]

	for d := 0; d < layout.VoxelSlices; d++ {
		occupied := warp(vox.Slice(0, d))
		observed := warp(vox.Slice(probCh, d))
		slice := st.Local[layout.VoxelStart+d]

		for i := range slice.Data {
			if occupied.Data[i] > 0.5 {
				logit := geometry.Logit(float64(observed.Data[i]), logitEps)
				if isEmptyVoxel(slice.Data[i]) {
					slice.Data[i] = clampLogOdds(logit)
				} else {
					slice.Data[i] = clampLogOdds(float64(slice.Data[i]) + logit - m.priorLogit)
				}
			}
			if been.Data[i] >= 1 && !isEmptyVoxel(slice.Data[i]) {
				slice.Data[i] = logOddsMin
			}
		}
	}
}

// stampLocation clears the current-location channel and marks a 5x5
// block at the agent cell on both the location and visited channels.
func (m *Module) stampLocation(st *State) {
	layout := m.layout
	loc := st.Local[layout.CurrentLocation]
	visited := st.Local[layout.Visited]
	loc.Fill(0)

	res := float64(m.p.Resolution)
	col := int(st.LocalPose.X * 100.0 / res)
	row := int(st.LocalPose.Y * 100.0 / res)
	for r := row - 2; r <= row+2; r++ {
		for c := col - 2; c <= col+2; c++ {
			if r < 0 || r >= loc.H || c < 0 || c >= loc.W {
				continue
			}
			loc.Set(r, c, 1)
			visited.Set(r, c, 1)
		}
	}
}

// extractInstances projects each confirmed instance mask, warps it
// like the other channels, and reduces nonempty footprints to bounding
// boxes in global map cells.
func (m *Module) extractInstances(st *State, vox *geometry.Voxels, confirmed []Detection, instCh int, warp func(*geometry.Grid) *geometry.Grid) map[int][]Instance {
	if len(confirmed) == 0 {
		return nil
	}

	out := make(map[int][]Instance)
	for j, det := range confirmed {
		proj := vox.ProjectSum(instCh+j, m.filteredMinHeight, m.maxMappedHeight)
		warped := warp(proj)

		rMin, rMax := warped.H, -1
		cMin, cMax := warped.W, -1
		for r := 0; r < warped.H; r++ {
			for c := 0; c < warped.W; c++ {
				if warped.At(r, c) <= 0 {
					continue
				}
				if r < rMin {
					rMin = r
				}
				if r > rMax {
					rMax = r
				}
				if c < cMin {
					cMin = c
				}
				if c > cMax {
					cMax = c
				}
			}
		}
		if rMax < 0 {
			continue
		}

		out[det.Class] = append(out[det.Class], Instance{
			RowMin: rMin + st.Bounds.RowStart,
			RowMax: rMax + st.Bounds.RowStart,
			ColMin: cMin + st.Bounds.ColStart,
			ColMax: cMax + st.Bounds.ColStart,
			Center: [2]float64{
				float64(rMin+rMax)/2.0 + float64(st.Bounds.RowStart),
				float64(cMin+cMax)/2.0 + float64(st.Bounds.ColStart),
			},
			Score: det.Score,
			Class: det.Class,
		})
	}
	return out
}

// embed places an egocentric window grid into a zeroed local-map-sized
// grid at the given offset.
func (m *Module) embed(src *geometry.Grid, rowOff, colOff int) *geometry.Grid {
	out := geometry.NewGrid(m.localSize, m.localSize)
	for r := 0; r < src.H; r++ {
		copy(
			out.Data[(rowOff+r)*m.localSize+colOff:(rowOff+r)*m.localSize+colOff+src.W],
			src.Data[r*src.W:(r+1)*src.W],
		)
	}
	return out
}

func scaleGrid(g *geometry.Grid, factor float64) {
	f := float32(factor)
	for i := range g.Data {
		g.Data[i] *= f
	}
}

func maxMerge(dst, src *geometry.Grid) {
	for i, v := range src.Data {
		if v > dst.Data[i] {
			dst.Data[i] = v
		}
	}
}
