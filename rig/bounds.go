package rig

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Segment is a parent to child link of a projected skeleton
type Segment struct {
	Parent *Node
	Child  *Node
	Line   orb.LineString
}

// Skeleton is a rig projected onto the front (XY) plane
type Skeleton struct {
	Joints   map[*Node]orb.Point
	Order    []*Node
	Segments []Segment
	Bound    orb.Bound
}

// ProjectSkeleton projects every node's world position onto the XY plane
func ProjectSkeleton(root *Node) *Skeleton {
	positions := worldPositions(root)
	sk := &Skeleton{Joints: make(map[*Node]orb.Point, len(positions))}

	first := true
	Walk(root, true, func(n *Node) bool {
		p := positions[n]
		pt := orb.Point{p[0], p[1]}
		sk.Joints[n] = pt
		sk.Order = append(sk.Order, n)
		if first {
			sk.Bound = pt.Bound()
			first = false
		} else {
			sk.Bound = sk.Bound.Extend(pt)
		}
		if n != root && n.parent != nil {
			if from, ok := sk.Joints[n.parent]; ok {
				sk.Segments = append(sk.Segments, Segment{
					Parent: n.parent,
					Child:  n,
					Line:   orb.LineString{from, pt},
				})
			}
		}
		return true
	})
	return sk
}

// Length is the summed projected length of all segments
func (s *Skeleton) Length() float64 {
	total := 0.0
	for _, seg := range s.Segments {
		total += planar.Length(seg.Line)
	}
	return total
}

// Summary describes a rig for the inspect command and the panel
type Summary struct {
	Name          string   `json:"name"`
	Asset         string   `json:"asset,omitempty"`
	Nodes         int      `json:"nodes"`
	Bones         int      `json:"bones"`
	Meshes        []string `json:"meshes"`
	Colliders     int      `json:"colliders"`
	BoneChains    int      `json:"boneChains"`
	Constraints   int      `json:"constraints"`
	HasDescriptor bool     `json:"hasDescriptor"`
	Width         float64  `json:"width"`
	Height        float64  `json:"height"`
	BoneLength    float64  `json:"boneLength"`
}

// Summarize counts a rig's nodes and attachments and measures its projection
func Summarize(r *Rig) Summary {
	s := Summary{Name: r.Root.Name, Asset: r.Asset, Meshes: MeshNames(r)}
	classifier := NewClassifier()

	Walk(r.Root, true, func(n *Node) bool {
		s.Nodes++
		if classifier.IsBone(n) {
			s.Bones++
		}
		s.Colliders += len(ComponentsOf[*Collider](n))
		s.BoneChains += len(ComponentsOf[*BoneChain](n))
		s.Constraints += len(ComponentsOf[*RotationConstraint](n))
		if HasComponent(n, KindAvatarDescriptor) {
			s.HasDescriptor = true
		}
		return true
	})

	sk := ProjectSkeleton(r.Root)
	s.Width = sk.Bound.Max[0] - sk.Bound.Min[0]
	s.Height = sk.Bound.Max[1] - sk.Bound.Min[1]
	s.BoneLength = sk.Length()
	return s
}
