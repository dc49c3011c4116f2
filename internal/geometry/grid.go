package geometry

import "math"

// Grid is a dense row-major float32 raster.
type Grid struct {
	H, W int
	Data []float32
}

// NewGrid allocates a zeroed grid.
func NewGrid(h, w int) *Grid {
	return &Grid{H: h, W: w, Data: make([]float32, h*w)}
}

// At returns the value at row r, column c.
func (g *Grid) At(r, c int) float32 {
	return g.Data[r*g.W+c]
}

// Set stores v at row r, column c.
func (g *Grid) Set(r, c int, v float32) {
	g.Data[r*g.W+c] = v
}

// Fill sets every cell to v.
func (g *Grid) Fill(v float32) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := NewGrid(g.H, g.W)
	copy(out.Data, g.Data)
	return out
}

// ClampValues limits every cell to [lo, hi].
func (g *Grid) ClampValues(lo, hi float32) {
	for i, v := range g.Data {
		if v < lo {
			g.Data[i] = lo
		} else if v > hi {
			g.Data[i] = hi
		}
	}
}

// Affine is a 2x3 matrix mapping normalized output coordinates to
// normalized source coordinates, with both axes spanning [-1, 1]
// across cell centers (align-corners convention).
type Affine struct {
	A11, A12, A13 float64
	A21, A22, A23 float64
}

// Rotation builds an affine rotation by the given angle in degrees
// about the grid center.
func Rotation(degrees float64) Affine {
	rad := degrees * math.Pi / 180.0
	sin, cos := math.Sin(rad), math.Cos(rad)
	return Affine{
		A11: cos, A12: -sin, A13: 0,
		A21: sin, A22: cos, A23: 0,
	}
}

// Translation builds an affine shift by (dx, dy) in normalized
// coordinates: dx along columns, dy along rows.
func Translation(dx, dy float64) Affine {
	return Affine{
		A11: 1, A12: 0, A13: dx,
		A21: 0, A22: 1, A23: dy,
	}
}

// Warp resamples the grid through the affine map with bilinear
// interpolation and zero padding outside the source.
func (g *Grid) Warp(m Affine) *Grid {
	out := NewGrid(g.H, g.W)
	if g.H < 2 || g.W < 2 {
		copy(out.Data, g.Data)
		return out
	}
	for r := 0; r < g.H; r++ {
		v := 2.0*float64(r)/float64(g.H-1) - 1.0
		for c := 0; c < g.W; c++ {
			u := 2.0*float64(c)/float64(g.W-1) - 1.0
			us := m.A11*u + m.A12*v + m.A13
			vs := m.A21*u + m.A22*v + m.A23
			sc := (us + 1.0) / 2.0 * float64(g.W-1)
			sr := (vs + 1.0) / 2.0 * float64(g.H-1)
			out.Data[r*g.W+c] = g.sampleBilinear(sr, sc)
		}
	}
	return out
}

func (g *Grid) sampleBilinear(r, c float64) float32 {
	r0 := math.Floor(r)
	c0 := math.Floor(c)
	dr := r - r0
	dc := c - c0

	var acc float64
	corners := [4]struct {
		r, c int
		w    float64
	}{
		{int(r0), int(c0), (1 - dr) * (1 - dc)},
		{int(r0), int(c0) + 1, (1 - dr) * dc},
		{int(r0) + 1, int(c0), dr * (1 - dc)},
		{int(r0) + 1, int(c0) + 1, dr * dc},
	}
	for _, p := range corners {
		if p.r < 0 || p.r >= g.H || p.c < 0 || p.c >= g.W {
			continue
		}
		acc += p.w * float64(g.Data[p.r*g.W+p.c])
	}
	return float32(acc)
}

// Dilate sums each cell's size x size neighborhood and clamps the
// result to [0, 1], a box dilation for soft occupancy rasters. The
// size is expected to be odd.
func (g *Grid) Dilate(size int) *Grid {
	if size <= 1 {
		return g.Clone()
	}
	half := size / 2
	out := NewGrid(g.H, g.W)
	for r := 0; r < g.H; r++ {
		for c := 0; c < g.W; c++ {
			var sum float32
			for i := -half; i <= half; i++ {
				for j := -half; j <= half; j++ {
					ri, ci := r+i, c+j
					if ri < 0 || ri >= g.H || ci < 0 || ci >= g.W {
						continue
					}
					sum += g.Data[ri*g.W+ci]
				}
			}
			if sum > 1 {
				sum = 1
			}
			out.Data[r*g.W+c] = sum
		}
	}
	return out
}
