package geometry

import "math"

// Voxels is a dense multi-channel voxel grid laid out as
// [channel][row][column][height bin].
type Voxels struct {
	Channels, H, W, D int
	Data              []float32
}

// NewVoxels allocates a zeroed voxel grid.
func NewVoxels(channels, h, w, d int) *Voxels {
	return &Voxels{
		Channels: channels,
		H:        h,
		W:        w,
		D:        d,
		Data:     make([]float32, channels*h*w*d),
	}
}

// At returns the value of one voxel.
func (v *Voxels) At(ch, r, c, d int) float32 {
	return v.Data[((ch*v.H+r)*v.W+c)*v.D+d]
}

// Splat accumulates per-channel feature values at a continuous voxel
// position, distributing each value over the eight surrounding bins
// with trilinear weights. Contributions that would land in bin zero or
// past the last bin of any axis are dropped, which also discards
// zero-depth points sitting at the grid origin.
func (v *Voxels) Splat(row, col, depth float64, feats []float32) {
	type lobe struct {
		idx int
		w   float64
	}
	dims := [3]int{v.H, v.W, v.D}
	pos := [3]float64{row, col, depth}

	var lobes [3][2]lobe
	for d := 0; d < 3; d++ {
		base := int(math.Floor(pos[d]))
		for i := 0; i < 2; i++ {
			idx := base + i
			w := 1.0 - math.Abs(pos[d]-float64(idx))
			if idx <= 0 || idx >= dims[d] {
				w = 0
			}
			lobes[d][i] = lobe{idx: idx, w: w}
		}
	}

	for _, lr := range lobes[0] {
		if lr.w == 0 {
			continue
		}
		for _, lc := range lobes[1] {
			if lc.w == 0 {
				continue
			}
			for _, ld := range lobes[2] {
				if ld.w == 0 {
					continue
				}
				weight := float32(lr.w * lc.w * ld.w)
				for ch, f := range feats {
					v.Data[((ch*v.H+lr.idx)*v.W+lc.idx)*v.D+ld.idx] += f * weight
				}
			}
		}
	}
}

// ProjectSum sums one channel over a height-bin range [from, to),
// producing a 2D grid.
func (v *Voxels) ProjectSum(ch, from, to int) *Grid {
	out := NewGrid(v.H, v.W)
	for r := 0; r < v.H; r++ {
		for c := 0; c < v.W; c++ {
			var sum float32
			base := ((ch*v.H+r)*v.W + c) * v.D
			for d := from; d < to; d++ {
				sum += v.Data[base+d]
			}
			out.Data[r*v.W+c] = sum
		}
	}
	return out
}

// ProjectMax takes the maximum of one channel over a height-bin range
// [from, to), producing a 2D grid.
func (v *Voxels) ProjectMax(ch, from, to int) *Grid {
	out := NewGrid(v.H, v.W)
	for r := 0; r < v.H; r++ {
		for c := 0; c < v.W; c++ {
			base := ((ch*v.H+r)*v.W + c) * v.D
			max := v.Data[base+from]
			for d := from + 1; d < to; d++ {
				if val := v.Data[base+d]; val > max {
					max = val
				}
			}
			out.Data[r*v.W+c] = max
		}
	}
	return out
}

// Slice extracts one height bin of one channel as a 2D grid.
func (v *Voxels) Slice(ch, d int) *Grid {
	out := NewGrid(v.H, v.W)
	for r := 0; r < v.H; r++ {
		for c := 0; c < v.W; c++ {
			out.Data[r*v.W+c] = v.Data[((ch*v.H+r)*v.W+c)*v.D+d]
		}
	}
	return out
}
