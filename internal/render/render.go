// Package render turns map states into PNG snapshots and ANSI
// terminal previews.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/geometry"
	"github.com/polonav/igpctl/internal/mapgrid"
)

// View selects which map a snapshot shows.
type View int

const (
	ViewLocal View = iota
	ViewGlobal
)

var (
	colorUnknown  = color.RGBA{245, 245, 245, 255}
	colorFloor    = color.RGBA{219, 219, 219, 255}
	colorObstacle = color.RGBA{62, 62, 72, 255}
	colorVisited  = color.RGBA{126, 164, 219, 255}
	colorAgent    = color.RGBA{46, 160, 67, 255}
	colorTarget   = color.RGBA{214, 54, 54, 255}

	// Category hues cycle for maps with more categories than colors.
	categoryColors = []color.RGBA{
		{230, 126, 34, 255},
		{155, 89, 182, 255},
		{26, 188, 156, 255},
		{241, 196, 15, 255},
		{52, 152, 219, 255},
		{192, 57, 43, 255},
		{39, 174, 96, 255},
		{127, 140, 141, 255},
	}
)

// Image paints one pixel per map cell, upscaled by scale.
func Image(m *mapgrid.Module, st *mapgrid.State, view View, scale int) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	grids := st.Local
	if view == ViewGlobal {
		grids = st.Global
	}
	size := grids[0].H

	img := image.NewRGBA(image.Rect(0, 0, size*scale, size*scale))
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			px := cellColor(m, grids, r, c)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetRGBA(c*scale+dx, r*scale+dy, px)
				}
			}
		}
	}
	return img
}

// WritePNG encodes the snapshot to disk.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.DataError("creating snapshot", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return errors.DataError("encoding snapshot", err)
	}
	return nil
}

// Preview renders the map as half-block characters, two map rows per
// terminal row, downsampled to fit maxWidth columns.
func Preview(m *mapgrid.Module, st *mapgrid.State, view View, maxWidth int) string {
	if maxWidth < 8 {
		maxWidth = 8
	}
	grids := st.Local
	if view == ViewGlobal {
		grids = st.Global
	}
	size := grids[0].H

	step := (size + maxWidth - 1) / maxWidth
	if step < 1 {
		step = 1
	}

	var sb strings.Builder
	for r := 0; r+step < size; r += 2 * step {
		for c := 0; c < size; c += step {
			upper := cellColor(m, grids, r, c)
			lower := cellColor(m, grids, r+step, c)
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(hex(upper))).
				Background(lipgloss.Color(hex(lower)))
			sb.WriteString(style.Render("▀"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// PreviewImage renders a stored snapshot the same way, sampling pixels
// instead of map cells.
func PreviewImage(img image.Image, maxWidth int) string {
	if maxWidth < 8 {
		maxWidth = 8
	}
	b := img.Bounds()

	step := (b.Dx() + maxWidth - 1) / maxWidth
	if step < 1 {
		step = 1
	}

	var sb strings.Builder
	for y := b.Min.Y; y+step < b.Max.Y; y += 2 * step {
		for x := b.Min.X; x < b.Max.X; x += step {
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(hex(pixelAt(img, x, y)))).
				Background(lipgloss.Color(hex(pixelAt(img, x, y+step))))
			sb.WriteString(style.Render("▀"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func pixelAt(img image.Image, x, y int) color.RGBA {
	r, g, b, _ := img.At(x, y).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 255}
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// cellColor flattens the channel stack into one color. Later layers
// win: floor, category, trail, obstacle, detection heat, agent.
func cellColor(m *mapgrid.Module, grids []*geometry.Grid, r, c int) color.RGBA {
	layout := m.Layout()

	px := colorUnknown
	if grids[layout.Explored].At(r, c) > 0.5 {
		px = colorFloor
	}
	for i := 0; i < layout.Categories; i++ {
		if grids[layout.NonSemantic+i].At(r, c) > 0.5 {
			px = categoryColors[i%len(categoryColors)]
			break
		}
	}
	if grids[layout.Visited].At(r, c) > 0.5 {
		px = colorVisited
	}
	if grids[layout.Obstacle].At(r, c) > 0.5 {
		px = colorObstacle
	}

	// Blend detection heat over everything but the agent marker.
	if l := float64(grids[layout.Probability].At(r, c)); l > 0 {
		p := 1.0 / (1.0 + math.Exp(-l))
		px = blend(px, colorTarget, p)
	}

	if grids[layout.CurrentLocation].At(r, c) > 0.5 {
		px = colorAgent
	}
	return px
}

func blend(base, over color.RGBA, alpha float64) color.RGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(float64(a)*(1-alpha) + float64(b)*alpha)
	}
	return color.RGBA{mix(base.R, over.R), mix(base.G, over.G), mix(base.B, over.B), 255}
}
