package mapgrid

import (
	"math"
	"testing"
)

func newTestState(t *testing.T) (*Module, *State) {
	t.Helper()
	m := newTestModule(t)
	return m, NewState(m)
}

func uniformDepth(v float32) []float32 {
	d := make([]float32, 64)
	for i := range d {
		d[i] = v
	}
	return d
}

func emptyCategories() [][]float32 {
	return [][]float32{make([]float32, 64), make([]float32, 64)}
}

// wallObservation is a flat wall 1.6m ahead of an 8x8 camera. With a
// 90 degree HFOV the frame rows land on exact 10cm height bins, so the
// projected cells are easy to predict.
func wallObservation() *Observation {
	return &Observation{
		Depth:      uniformDepth(1.6),
		Categories: emptyCategories(),
	}
}

func maskRows(rows ...int) []float32 {
	m := make([]float32, 64)
	for _, r := range rows {
		for c := 0; c < 8; c++ {
			m[r*8+c] = 1
		}
	}
	return m
}

func TestUpdate_WallAhead(t *testing.T) {
	m, st := newTestState(t)
	layout := m.Layout()

	// Heading 90 points the egocentric window straight down the rows,
	// so the warp is an identity placement.
	st.LocalPose.Heading = 90
	if _, err := m.Update(st, wallObservation()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	explored := st.Local[layout.Explored]
	obstacle := st.Local[layout.Obstacle]

	// The wall sits 16 cells ahead of the agent cell (24, 24).
	if got := explored.At(40, 14); got != 1 {
		t.Errorf("expected explored wall cell, got %v", got)
	}
	if got := obstacle.At(40, 14); got != 1 {
		t.Errorf("expected obstacle wall cell, got %v", got)
	}

	for r := 0; r < explored.H; r++ {
		for c := 0; c < explored.W; c++ {
			if explored.At(r, c) < 0.05 {
				continue
			}
			if r < 39 || r > 41 || c < 13 || c > 35 {
				t.Errorf("explored mass outside the wall band at (%d, %d)", r, c)
			}
		}
	}

	// Viewed without a detection drives the probability to the log-odds
	// floor; unexplored cells stay at zero.
	prob := st.Local[layout.Probability]
	if got := prob.At(40, 14); got > -9.9 {
		t.Errorf("expected confident-empty probability, got %v", got)
	}
	if got := prob.At(5, 5); got != 0 {
		t.Errorf("expected untouched probability, got %v", got)
	}

	// 1.6m is beyond the 1.5m close range.
	if got := st.Local[layout.BeenClose].At(40, 14); got != 0 {
		t.Errorf("expected wall beyond close range, got been-close %v", got)
	}
}

func TestUpdate_RotatesIntoHeading(t *testing.T) {
	m, st := newTestState(t)
	layout := m.Layout()

	// Heading 0 faces east: the wall lands on increasing columns.
	if _, err := m.Update(st, wallObservation()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	explored := st.Local[layout.Explored]
	cells := 0
	for r := 0; r < explored.H; r++ {
		for c := 0; c < explored.W; c++ {
			if explored.At(r, c) < 0.05 {
				continue
			}
			cells++
			if c < 39 || c > 41 || r < 12 || r > 34 {
				t.Errorf("explored mass not east of the agent at (%d, %d)", r, c)
			}
		}
	}
	if cells < 5 {
		t.Errorf("expected the wall east of the agent, found %d cells", cells)
	}
}

func TestUpdate_DetectionProbability(t *testing.T) {
	m, st := newTestState(t)
	layout := m.Layout()
	st.LocalPose.Heading = 90

	obs := wallObservation()
	obs.Detections = []Detection{{Class: 0, Score: 0.9, Mask: maskRows(4, 5)}}
	obs.Categories[1] = maskRows(4, 5)

	instances, err := m.Update(st, obs)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Rows 4 and 5 of the frame splat 0.8 of their weight onto mapped
	// height bins: max probability 0.72, logit 0.944, prior 2.331.
	prob := st.Local[layout.Probability].At(40, 14)
	if math.Abs(float64(prob)-2.3308) > 0.01 {
		t.Errorf("expected detection log-odds near 2.33, got %v", prob)
	}

	if got := st.Local[layout.NonSemantic+1].At(40, 14); got != 1 {
		t.Errorf("expected category 1 at the wall, got %v", got)
	}
	if got := st.Local[layout.NonSemantic].At(40, 14); got != 0 {
		t.Errorf("expected empty category 0 channel, got %v", got)
	}

	if len(instances) != 1 || len(instances[0]) != 1 {
		t.Fatalf("expected one instance of class 0, got %v", instances)
	}
	inst := instances[0][0]
	if inst.Class != 0 || inst.Score != 0.9 {
		t.Errorf("unexpected instance identity: %+v", inst)
	}
	// Global cells: the local window starts at (24, 24).
	if inst.RowMin < 62 || inst.RowMax > 66 {
		t.Errorf("instance rows outside the wall: %+v", inst)
	}
	if inst.ColMin < 36 || inst.ColMin > 39 || inst.ColMax < 57 || inst.ColMax > 60 {
		t.Errorf("instance columns outside the wall: %+v", inst)
	}
	if math.Abs(inst.Center[0]-64) > 1 || math.Abs(inst.Center[1]-48) > 2 {
		t.Errorf("instance center off the wall: %+v", inst)
	}
}

func TestUpdate_VoxelLogOdds(t *testing.T) {
	m, st := newTestState(t)
	layout := m.Layout()
	st.LocalPose.Heading = 90

	obs := wallObservation()
	obs.Detections = []Detection{{Class: 0, Score: 0.9, Mask: maskRows(4, 5)}}

	// Frame row 4 splats 0.8 of its weight into height bin 11 and 0.2
	// into bin 10: only bin 11 crosses the occupancy threshold.
	if _, err := m.Update(st, obs); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	assigned := st.Local[layout.VoxelStart+11]
	first := float64(assigned.At(40, 14))
	if math.Abs(first-0.9445) > 1e-3 {
		t.Errorf("expected assigned logit near 0.944, got %v", first)
	}
	if v := st.Local[layout.VoxelStart+10].At(40, 14); !math.IsInf(float64(v), 1) {
		t.Errorf("expected weakly-hit bin to stay empty, got %v", v)
	}
	if v := assigned.At(5, 5); !math.IsInf(float64(v), 1) {
		t.Errorf("expected unobserved voxel to stay empty, got %v", v)
	}

	// A second observation accumulates evidence over the prior.
	if _, err := m.Update(st, obs); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}
	second := float64(assigned.At(40, 14))
	if math.Abs(second-3.2753) > 1e-3 {
		t.Errorf("expected accumulated log-odds near 3.275, got %v", second)
	}
}

func TestUpdate_BeenCloseMarksConfidentEmpty(t *testing.T) {
	p := testParams()
	p.CloseRangeCM = 400
	m, err := New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	st := NewState(m)
	layout := m.Layout()
	st.LocalPose.Heading = 90

	obs := wallObservation()
	obs.Detections = []Detection{{Class: 0, Score: 0.9, Mask: maskRows(4, 5)}}
	if _, err := m.Update(st, obs); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if got := st.Local[layout.BeenClose].At(40, 14); got != 1 {
		t.Errorf("expected been-close at the wall, got %v", got)
	}
	// Been-close overrides the detection evidence.
	if got := st.Local[layout.Probability].At(40, 14); got != logOddsMin {
		t.Errorf("expected forced confident-empty, got %v", got)
	}
	if got := st.Local[layout.VoxelStart+11].At(40, 14); got != logOddsMin {
		t.Errorf("expected forced confident-empty voxel, got %v", got)
	}
}

func TestUpdate_StampsLocationAndVisited(t *testing.T) {
	m, st := newTestState(t)
	layout := m.Layout()

	still := &Observation{
		Depth:      make([]float32, 64),
		Categories: emptyCategories(),
		Delta:      Delta{Forward: 0.5},
	}

	if _, err := m.Update(st, still); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	loc := st.Local[layout.CurrentLocation]
	visited := st.Local[layout.Visited]
	if loc.At(24, 29) != 1 || visited.At(24, 29) != 1 {
		t.Error("expected agent stamp half a meter east of the start")
	}
	if loc.At(24, 24) != 0 {
		t.Error("expected no stamp at the start cell")
	}

	if _, err := m.Update(st, still); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}
	if math.Abs(st.LocalPose.X-3.4) > 1e-9 || math.Abs(st.LocalPose.Y-2.4) > 1e-9 {
		t.Errorf("unexpected pose %+v", st.LocalPose)
	}
	if loc.At(24, 34) != 1 {
		t.Error("expected current-location stamp at the new cell")
	}
	if loc.At(24, 29) != 0 {
		t.Error("expected previous stamp cleared")
	}
	if visited.At(24, 29) != 1 || visited.At(24, 34) != 1 {
		t.Error("expected visited trail to persist")
	}
}

func TestUpdate_ValidatesObservation(t *testing.T) {
	m, st := newTestState(t)

	tests := []struct {
		name   string
		mutate func(*Observation)
	}{
		{"truncated depth", func(o *Observation) { o.Depth = o.Depth[:10] }},
		{"missing category", func(o *Observation) { o.Categories = o.Categories[:1] }},
		{"short category raster", func(o *Observation) { o.Categories[0] = o.Categories[0][:3] }},
		{"unknown class", func(o *Observation) {
			o.Detections = []Detection{{Class: 2, Score: 0.9, Mask: make([]float32, 64)}}
		}},
		{"short mask", func(o *Observation) {
			o.Detections = []Detection{{Class: 0, Score: 0.9, Mask: make([]float32, 8)}}
		}},
		{"short relevance", func(o *Observation) { o.Relevance = []float64{1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := wallObservation()
			tt.mutate(obs)
			if _, err := m.Update(st, obs); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestUpdateGlobal_StitchAndRecenter(t *testing.T) {
	m, st := newTestState(t)
	layout := m.Layout()

	// Simulate drift east within the local window, with a mapped cell
	// ahead of the agent.
	st.Local[layout.Explored].Set(10, 40, 1)
	st.LocalPose = Pose{X: 4.1, Y: 2.4, Heading: 45}

	st.UpdateGlobal(m)

	if math.Abs(st.GlobalPose.X-6.5) > 1e-9 || math.Abs(st.GlobalPose.Y-4.8) > 1e-9 {
		t.Errorf("unexpected global pose %+v", st.GlobalPose)
	}
	if st.GlobalPose.Heading != 45 || st.LocalPose.Heading != 45 {
		t.Errorf("expected heading preserved, got %v/%v", st.GlobalPose.Heading, st.LocalPose.Heading)
	}

	want := Boundary{RowStart: 24, RowEnd: 72, ColStart: 41, ColEnd: 89}
	if st.Bounds != want {
		t.Errorf("expected window %+v, got %+v", want, st.Bounds)
	}
	if math.Abs(st.Origins.X-4.1) > 1e-9 || math.Abs(st.Origins.Y-2.4) > 1e-9 {
		t.Errorf("unexpected origins %+v", st.Origins)
	}
	if math.Abs(st.LocalPose.X-2.4) > 1e-9 || math.Abs(st.LocalPose.Y-2.4) > 1e-9 {
		t.Errorf("expected recentered local pose, got %+v", st.LocalPose)
	}

	// The stitched cell lands in the global map and survives the
	// re-extraction under the moved window.
	if got := st.Global[layout.Explored].At(34, 64); got != 1 {
		t.Errorf("expected stitched explored cell, got %v", got)
	}
	if got := st.Local[layout.Explored].At(10, 23); got != 1 {
		t.Errorf("expected re-extracted explored cell, got %v", got)
	}

	if v := st.Global[layout.VoxelStart].At(0, 0); !math.IsInf(float64(v), 1) {
		t.Errorf("expected untouched global voxel, got %v", v)
	}
	if v := st.Local[layout.VoxelStart].At(0, 0); !math.IsInf(float64(v), 1) {
		t.Errorf("expected empty voxel in the moved window, got %v", v)
	}
}
