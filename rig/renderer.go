package rig

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RasterRenderer draws a labelled skeleton preview into an image
type RasterRenderer struct {
	Rig    *Rig
	Height int // image height in pixels; width follows the aspect ratio
	Margin int
	Labels bool // label bones and attachment nodes with their names
}

// NewRasterRenderer creates a raster renderer with default settings
func NewRasterRenderer(r *Rig) *RasterRenderer {
	return &RasterRenderer{Rig: r, Height: 640, Margin: 40, Labels: true}
}

// Render draws the preview
func (r *RasterRenderer) Render() *image.RGBA {
	sk := ProjectSkeleton(r.Rig.Root)
	spanX := sk.Bound.Max[0] - sk.Bound.Min[0]
	spanY := sk.Bound.Max[1] - sk.Bound.Min[1]

	inner := float64(r.Height - 2*r.Margin)
	if inner < 1 {
		inner = 1
	}
	scale := inner
	if spanY > 0 {
		scale = inner / spanY
	} else if spanX > 0 {
		scale = inner / spanX
	}
	width := int(math.Ceil(spanX*scale)) + 2*r.Margin
	if width < 2*r.Margin+160 {
		width = 2*r.Margin + 160 // room for the legend
	}

	img := image.NewRGBA(image.Rect(0, 0, width, r.Height))
	white := color.RGBA{255, 255, 255, 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = white.R, white.G, white.B, white.A
	}

	// image rows grow downwards
	toPixel := func(x, y float64) (int, int) {
		px := int(math.Round((x-sk.Bound.Min[0])*scale)) + r.Margin
		py := r.Height - r.Margin - int(math.Round((y-sk.Bound.Min[1])*scale))
		return px, py
	}

	grey := color.RGBA{150, 150, 150, 255}
	for _, seg := range sk.Segments {
		x0, y0 := toPixel(seg.Line[0][0], seg.Line[0][1])
		x1, y1 := toPixel(seg.Line[1][0], seg.Line[1][1])
		drawLine(img, x0, y0, x1, y1, grey)
	}

	classifier := NewClassifier()
	for _, n := range sk.Order {
		kind := classifyJoint(n, classifier)
		p := sk.Joints[n]
		x, y := toPixel(p[0], p[1])
		radius := 3
		if kind == jointChain || kind == jointCollider {
			radius = 5
		}
		drawCircle(img, x, y, radius, jointColors[kind])
		if r.Labels && (kind == jointChain || kind == jointCollider) {
			drawText(img, x+radius+3, y+4, n.Name, color.RGBA{0, 0, 0, 255})
		}
	}

	drawLegend(img)
	return img
}

// RenderToPNG writes the preview as PNG to w
func (r *RasterRenderer) RenderToPNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG writes the preview to path
func (r *RasterRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating preview: %w", err)
	}
	defer f.Close()
	return r.RenderToPNG(f)
}

var legendEntries = []struct {
	kind  jointKind
	label string
}{
	{jointBone, "humanoid bone"},
	{jointChain, "bone chain"},
	{jointCollider, "collider"},
	{jointMesh, "mesh"},
	{jointOther, "other"},
}

// drawLegend adds the color key in the top-left corner
func drawLegend(img *image.RGBA) {
	y := 15
	for _, e := range legendEntries {
		c := jointColors[e.kind]
		for dy := 0; dy < 10; dy++ {
			for dx := 0; dx < 10; dx++ {
				img.Set(10+dx, y+dy-8, c)
			}
		}
		drawText(img, 26, y, e.label, color.RGBA{0, 0, 0, 255})
		y += 16
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	b := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < b.Max.X && y >= 0 && y < b.Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawLine draws a one pixel line (Bresenham)
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
