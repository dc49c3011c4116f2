// Package geometry provides the numeric kernels behind the semantic
// map: pinhole camera projection, rigid frame transforms, float32
// rasters with affine bilinear warping, and trilinear voxel splatting.
package geometry

import "math"

// CameraMatrix holds pinhole intrinsics derived from a horizontal
// field of view.
type CameraMatrix struct {
	F  float64 // focal length in pixels
	XC float64 // principal point, column
	ZC float64 // principal point, row
}

// NewCameraMatrix computes intrinsics for a frame of the given size
// and horizontal field of view in degrees.
func NewCameraMatrix(width, height int, hfovDegrees float64) CameraMatrix {
	return CameraMatrix{
		F:  (float64(width) / 2.0) / math.Tan(hfovDegrees/2.0*math.Pi/180.0),
		XC: (float64(width) - 1.0) / 2.0,
		ZC: (float64(height) - 1.0) / 2.0,
	}
}

// Point3 is a point in a right-handed frame: X right, Y forward, Z up.
type Point3 struct {
	X, Y, Z float64
}

// PointCloudFromDepth back-projects a row-major depth image into
// camera-frame points, subsampling rows and columns by scale. Depth
// units carry through unchanged. Zero-depth pixels yield zero points.
func PointCloudFromDepth(depth []float32, height, width int, cam CameraMatrix, scale int) []Point3 {
	if scale < 1 {
		scale = 1
	}
	rows := height / scale
	cols := width / scale
	points := make([]Point3, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			d := float64(depth[(r*scale)*width+c*scale])
			points = append(points, Point3{
				X: (float64(c*scale) - cam.XC) * d / cam.F,
				Y: d,
				Z: (cam.ZC - float64(r*scale)) * d / cam.F,
			})
		}
	}
	return points
}

// TransformCameraView rotates camera-frame points about the X axis by
// the camera tilt and lifts them to the sensor height, producing
// base-frame points. The tilt is in degrees, the height in the point
// units.
func TransformCameraView(points []Point3, sensorHeight, tiltDegrees float64) []Point3 {
	rad := tiltDegrees * math.Pi / 180.0
	sin, cos := math.Sin(rad), math.Cos(rad)
	out := make([]Point3, len(points))
	for i, p := range points {
		out[i] = Point3{
			X: p.X,
			Y: cos*p.Y - sin*p.Z,
			Z: sin*p.Y + cos*p.Z + sensorHeight,
		}
	}
	return out
}

// TransformPose rotates points about the Z axis by theta - pi/2 and
// then shifts them by (x, y). Theta is in radians.
func TransformPose(points []Point3, x, y, theta float64) []Point3 {
	sin, cos := math.Sin(theta-math.Pi/2.0), math.Cos(theta-math.Pi/2.0)
	out := make([]Point3, len(points))
	for i, p := range points {
		out[i] = Point3{
			X: cos*p.X - sin*p.Y + x,
			Y: sin*p.X + cos*p.Y + y,
			Z: p.Z,
		}
	}
	return out
}

// Logit returns ln(p / (1 - p)) with p clamped into [eps, 1-eps].
func Logit(p, eps float64) float64 {
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return math.Log(p / (1 - p))
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AvgPool downscales a row-major raster by an integer factor, averaging
// each scale x scale block.
func AvgPool(src []float32, height, width, scale int) []float32 {
	if scale <= 1 {
		out := make([]float32, len(src))
		copy(out, src)
		return out
	}
	rows := height / scale
	cols := width / scale
	out := make([]float32, rows*cols)
	norm := float32(scale * scale)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var sum float32
			for i := 0; i < scale; i++ {
				for j := 0; j < scale; j++ {
					sum += src[(r*scale+i)*width+c*scale+j]
				}
			}
			out[r*cols+c] = sum / norm
		}
	}
	return out
}

// MaxPool downscales a row-major raster by an integer factor, taking
// the maximum of each scale x scale block.
func MaxPool(src []float32, height, width, scale int) []float32 {
	if scale <= 1 {
		out := make([]float32, len(src))
		copy(out, src)
		return out
	}
	rows := height / scale
	cols := width / scale
	out := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			max := src[(r*scale)*width+c*scale]
			for i := 0; i < scale; i++ {
				for j := 0; j < scale; j++ {
					if v := src[(r*scale+i)*width+c*scale+j]; v > max {
						max = v
					}
				}
			}
			out[r*cols+c] = max
		}
	}
	return out
}
