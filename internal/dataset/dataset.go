// Package dataset reads recorded exploration episodes: one gzipped
// JSONL file per episode, one frame per line. Frames carry the depth
// image, the pose delta since the previous frame, and the detector
// output, which is everything the map pipeline needs to replay an
// episode offline.
package dataset

import (
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/mapgrid"
)

// FileSuffix is the episode file extension under a split directory.
const FileSuffix = ".jsonl.gz"

// Depth encodings accepted in frame records.
const (
	DtypeFloat16 = "float16"
	DtypeFloat32 = "float32"
)

// Frame is one recorded step of an episode.
type Frame struct {
	EpisodeID string `json:"episode_id"`
	Scene     string `json:"scene"`
	Step      int    `json:"step"`

	// Depth is the base64-encoded row-major depth image in meters.
	Depth      string `json:"depth"`
	DepthDtype string `json:"depth_dtype"`
	Height     int    `json:"height"`
	Width      int    `json:"width"`

	Delta        PoseDelta `json:"delta"`
	CameraTilt   float64   `json:"camera_tilt"`
	CameraHeight float64   `json:"camera_height"`

	Detections []FrameDetection `json:"detections,omitempty"`
	Goal       Goal             `json:"goal"`
}

// PoseDelta is the agent motion since the previous frame.
type PoseDelta struct {
	Forward  float64 `json:"forward"`  // meters
	Lateral  float64 `json:"lateral"`  // meters
	Rotation float64 `json:"rotation"` // radians
}

// FrameDetection is one detector instance. The mask is run-length
// encoded over the row-major frame, alternating zero and one runs and
// starting with zeros.
type FrameDetection struct {
	Class   int     `json:"class"`
	Score   float64 `json:"score"`
	MaskRLE []int   `json:"mask_rle"`
}

// Goal is the navigation target recorded with the episode.
type Goal struct {
	Category   string `json:"category"`
	CategoryID int    `json:"category_id"`
}

// EpisodeRef locates one episode file within a split.
type EpisodeRef struct {
	ID   string
	Path string
}

// Episode is a fully decoded frame sequence.
type Episode struct {
	ID     string
	Frames []Frame
}

// Scan lists the episodes of a split in ID order.
func Scan(dataDir, split string) ([]EpisodeRef, error) {
	dir := filepath.Join(dataDir, split)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.DataError(fmt.Sprintf("reading split %q", split), err)
	}

	var refs []EpisodeRef
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileSuffix) {
			continue
		}
		refs = append(refs, EpisodeRef{
			ID:   strings.TrimSuffix(entry.Name(), FileSuffix),
			Path: filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// ReadEpisode decodes every frame of an episode file. Frames are
// megabytes once the depth image is inlined, so this streams through
// a JSON decoder rather than a line scanner.
func ReadEpisode(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.DataError("opening episode", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.DataError(fmt.Sprintf("episode %s is not gzip", filepath.Base(path)), err)
	}
	defer gz.Close()

	var frames []Frame
	dec := json.NewDecoder(gz)
	for {
		var frame Frame
		if err := dec.Decode(&frame); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.DataError(
				fmt.Sprintf("episode %s frame %d", filepath.Base(path), len(frames)), err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// DepthValues decodes the depth image into row-major float32 meters.
func (f *Frame) DepthValues() ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(f.Depth)
	if err != nil {
		return nil, fmt.Errorf("decoding depth: %w", err)
	}

	n := f.Height * f.Width
	switch f.DepthDtype {
	case DtypeFloat16:
		if len(raw) != 2*n {
			return nil, fmt.Errorf("depth has %d bytes, expected %d", len(raw), 2*n)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = float16to32(binary.LittleEndian.Uint16(raw[2*i:]))
		}
		return out, nil
	case DtypeFloat32:
		if len(raw) != 4*n {
			return nil, fmt.Errorf("depth has %d bytes, expected %d", len(raw), 4*n)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown depth dtype %q", f.DepthDtype)
	}
}

// EncodeDepth inlines a depth image for writing frame records.
func EncodeDepth(depth []float32, dtype string) (string, error) {
	var raw []byte
	switch dtype {
	case DtypeFloat16:
		raw = make([]byte, 2*len(depth))
		for i, v := range depth {
			binary.LittleEndian.PutUint16(raw[2*i:], float32to16(v))
		}
	case DtypeFloat32:
		raw = make([]byte, 4*len(depth))
		for i, v := range depth {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
		}
	default:
		return "", fmt.Errorf("unknown depth dtype %q", dtype)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeMask expands the run-length mask to a row-major float raster.
func (d *FrameDetection) DecodeMask(height, width int) ([]float32, error) {
	out := make([]float32, height*width)
	pos := 0
	value := float32(0)
	for _, run := range d.MaskRLE {
		if run < 0 || pos+run > len(out) {
			return nil, fmt.Errorf("mask runs exceed %dx%d frame", height, width)
		}
		if value == 1 {
			for i := pos; i < pos+run; i++ {
				out[i] = 1
			}
		}
		pos += run
		value = 1 - value
	}
	if pos != len(out) {
		return nil, fmt.Errorf("mask runs cover %d of %d cells", pos, len(out))
	}
	return out, nil
}

// EncodeMask run-length encodes a binary raster.
func EncodeMask(mask []float32) []int {
	var runs []int
	value := float32(0)
	run := 0
	for _, v := range mask {
		bit := float32(0)
		if v != 0 {
			bit = 1
		}
		if bit == value {
			run++
			continue
		}
		runs = append(runs, run)
		value = bit
		run = 1
	}
	return append(runs, run)
}

// Observation converts the frame into a map module observation with
// the given number of semantic categories. Category rasters are
// rebuilt from the detection masks.
func (f *Frame) Observation(numCategories int) (*mapgrid.Observation, error) {
	depth, err := f.DepthValues()
	if err != nil {
		return nil, err
	}

	categories := make([][]float32, numCategories)
	for i := range categories {
		categories[i] = make([]float32, f.Height*f.Width)
	}

	detections := make([]mapgrid.Detection, 0, len(f.Detections))
	for i, det := range f.Detections {
		if det.Class < 0 || det.Class >= numCategories {
			return nil, fmt.Errorf("detection %d has class %d outside %d categories",
				i, det.Class, numCategories)
		}
		mask, err := det.DecodeMask(f.Height, f.Width)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		for j, v := range mask {
			if v > categories[det.Class][j] {
				categories[det.Class][j] = v
			}
		}
		detections = append(detections, mapgrid.Detection{
			Class: det.Class,
			Score: det.Score,
			Mask:  mask,
		})
	}

	return &mapgrid.Observation{
		Depth:      depth,
		Categories: categories,
		Detections: detections,
		Delta: mapgrid.Delta{
			Forward:  f.Delta.Forward,
			Lateral:  f.Delta.Lateral,
			Rotation: f.Delta.Rotation,
		},
		CameraTilt:  f.CameraTilt,
		AgentHeight: f.CameraHeight,
	}, nil
}

// float16to32 widens an IEEE 754 half-precision value.
func float16to32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	e := int32(h>>10) & 0x1f
	m := uint32(h) & 0x3ff

	switch {
	case e == 0 && m == 0:
		return math.Float32frombits(sign)
	case e == 0:
		e = 1
		for m&0x400 == 0 {
			m <<= 1
			e--
		}
		m &= 0x3ff
	case e == 0x1f:
		if m != 0 {
			return float32(math.NaN())
		}
		return math.Float32frombits(sign | 0x7f800000)
	}
	return math.Float32frombits(sign | uint32(e+112)<<23 | m<<13)
}

// float32to16 narrows to half precision, truncating the mantissa.
func float32to16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	e := int32(bits>>23&0xff) - 127 + 15
	m := bits & 0x7fffff

	switch {
	case e >= 0x1f:
		if bits>>23&0xff == 0xff && m != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case e <= 0:
		if e < -10 {
			return sign
		}
		m |= 0x800000
		return sign | uint16(m>>uint32(14-e))
	}
	return sign | uint16(e)<<10 | uint16(m>>13)
}
