package rig

import (
	"github.com/go-gl/mathgl/mgl64"
)

// LocalMatrix returns the node's local transform as translate * rotate * scale.
// Euler angles are applied Z, then X, then Y.
func LocalMatrix(t Transform) mgl64.Mat4 {
	q := mgl64.AnglesToQuat(
		mgl64.DegToRad(t.Rotation[1]),
		mgl64.DegToRad(t.Rotation[0]),
		mgl64.DegToRad(t.Rotation[2]),
		mgl64.YXZ,
	)
	translate := mgl64.Translate3D(t.Position[0], t.Position[1], t.Position[2])
	scale := mgl64.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2])
	return translate.Mul4(q.Mat4()).Mul4(scale)
}

// WorldMatrix composes the local transforms from the root down to n
func WorldMatrix(n *Node) mgl64.Mat4 {
	if n == nil {
		return mgl64.Ident4()
	}
	local := LocalMatrix(n.Transform)
	if n.parent == nil {
		return local
	}
	return WorldMatrix(n.parent).Mul4(local)
}

// WorldPosition returns the node's origin in world space
func WorldPosition(n *Node) Vec3 {
	p := WorldMatrix(n).Col(3)
	return Vec3{p[0], p[1], p[2]}
}

// worldPositions computes world positions for a whole subtree in one walk
func worldPositions(root *Node) map[*Node]Vec3 {
	out := make(map[*Node]Vec3)
	var visit func(n *Node, parent mgl64.Mat4)
	visit = func(n *Node, parent mgl64.Mat4) {
		m := parent.Mul4(LocalMatrix(n.Transform))
		p := m.Col(3)
		out[n] = Vec3{p[0], p[1], p[2]}
		for _, c := range n.children {
			visit(c, m)
		}
	}
	if root != nil {
		base := mgl64.Ident4()
		if root.parent != nil {
			base = WorldMatrix(root.parent)
		}
		visit(root, base)
	}
	return out
}
