package rig

import (
	"image/color"
	"io"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"
)

// jointKind groups nodes for coloring in previews
type jointKind int

const (
	jointOther jointKind = iota
	jointBone
	jointChain
	jointCollider
	jointMesh
)

var jointColors = map[jointKind]color.RGBA{
	jointOther:    {90, 90, 90, 255},
	jointBone:     {40, 90, 200, 255},
	jointChain:    {30, 160, 70, 255},
	jointCollider: {210, 50, 50, 255},
	jointMesh:     {170, 170, 170, 255},
}

func classifyJoint(n *Node, c *Classifier) jointKind {
	switch {
	case IsMeshBearing(n):
		return jointMesh
	case HasComponent(n, KindBoneChain):
		return jointChain
	case HasComponent(n, KindCollider):
		return jointCollider
	case c.IsBone(n):
		return jointBone
	default:
		return jointOther
	}
}

// VectorRenderer draws a rig's front projection as an SVG
type VectorRenderer struct {
	Rig     *Rig
	Scale   float64 // world units to millimeters
	Padding float64 // millimeters
	Joint   float64 // joint radius in millimeters
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(r *Rig) *VectorRenderer {
	return &VectorRenderer{
		Rig:     r,
		Scale:   100.0, // 1 world unit = 10cm on the page
		Padding: 10.0,
		Joint:   1.2,
	}
}

// canvasRenderer is implemented by the canvas svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the skeleton preview as an SVG to w
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	sk := ProjectSkeleton(r.Rig.Root)
	width := (sk.Bound.Max[0]-sk.Bound.Min[0])*r.Scale + 2*r.Padding
	height := (sk.Bound.Max[1]-sk.Bound.Min[1])*r.Scale + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, sk, width, height)
	return svgRenderer.Close()
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, sk *Skeleton, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// canvas is y-up like the rig, so only offset and scale
	toCanvas := func(p orb.Point) (float64, float64) {
		return (p[0]-sk.Bound.Min[0])*r.Scale + r.Padding, (p[1]-sk.Bound.Min[1])*r.Scale + r.Padding
	}

	boneStyle := canvas.DefaultStyle
	boneStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	boneStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	boneStyle.StrokeWidth = 0.4

	for _, seg := range sk.Segments {
		path := &canvas.Path{}
		x0, y0 := toCanvas(seg.Line[0])
		x1, y1 := toCanvas(seg.Line[1])
		path.MoveTo(x0, y0)
		path.LineTo(x1, y1)
		renderer.RenderPath(path, boneStyle, canvas.Identity)
	}

	classifier := NewClassifier()
	for _, n := range sk.Order {
		kind := classifyJoint(n, classifier)
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: jointColors[kind]}
		style.Stroke = canvas.Paint{Color: canvas.Black}
		style.StrokeWidth = 0.1
		if !n.ActiveInHierarchy() {
			style.Fill = canvas.Paint{Color: canvas.Transparent}
		}

		radius := r.Joint
		if kind == jointChain || kind == jointCollider {
			radius *= 1.5
		}
		cx, cy := toCanvas(sk.Joints[n])
		renderer.RenderPath(canvas.Circle(radius).Translate(cx, cy), style, canvas.Identity)
	}
}
