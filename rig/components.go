package rig

import (
	"github.com/keboola/go-utils/pkg/deepcopy"
)

// ComponentKind tags a component variant. The value is the `type` field in rig documents.
type ComponentKind string

const (
	KindAnimator           ComponentKind = "animator"
	KindSkinnedMesh        ComponentKind = "skinnedMesh"
	KindMeshRenderer       ComponentKind = "meshRenderer"
	KindCamera             ComponentKind = "camera"
	KindLight              ComponentKind = "light"
	KindCollider           ComponentKind = "collider"
	KindBoneChain          ComponentKind = "boneChain"
	KindRotationConstraint ComponentKind = "rotationConstraint"
	KindAvatarDescriptor   ComponentKind = "avatarDescriptor"
)

// Component is an attachment record owned by exactly one node.
type Component interface {
	Kind() ComponentKind
	Owner() *Node
	Origin() Role

	setOwner(*Node)
	setOrigin(Role)
	// clone copies the component "as new": payloads are deep copied, node
	// references still point at whatever the original pointed at.
	clone() Component
}

type componentBase struct {
	owner  *Node
	origin Role
}

func (b *componentBase) Owner() *Node        { return b.owner }
func (b *componentBase) Origin() Role        { return b.origin }
func (b *componentBase) setOwner(n *Node)    { b.owner = n }
func (b *componentBase) setOrigin(role Role) { b.origin = role }

// Animator carries the humanoid descriptor: humanoid slot name -> bone node name.
type Animator struct {
	componentBase
	Humanoid map[string]string
}

func (a *Animator) Kind() ComponentKind { return KindAnimator }

func (a *Animator) clone() Component {
	c := &Animator{Humanoid: make(map[string]string, len(a.Humanoid))}
	for slot, bone := range a.Humanoid {
		c.Humanoid[slot] = bone
	}
	return c
}

// BoneSet returns the set of bone names referenced by the humanoid map
func (a *Animator) BoneSet() map[NodeKey]bool {
	set := make(map[NodeKey]bool, len(a.Humanoid))
	for _, bone := range a.Humanoid {
		if bone != "" {
			set[NodeKey(bone)] = true
		}
	}
	return set
}

// Blendshape is one blendshape channel of a skinned mesh
type Blendshape struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Bounds is an axis aligned box given by center and extents
type Bounds struct {
	Center  Vec3 `yaml:"center" json:"center"`
	Extents Vec3 `yaml:"extents" json:"extents"`
}

// SkinnedMesh marks a mesh-bearing node.
type SkinnedMesh struct {
	componentBase
	Mesh        string
	Materials   []string
	Blendshapes []Blendshape
	ProbeAnchor *Node
	Bounds      *Bounds
}

func (s *SkinnedMesh) Kind() ComponentKind { return KindSkinnedMesh }

func (s *SkinnedMesh) clone() Component {
	c := &SkinnedMesh{
		Mesh:        s.Mesh,
		Materials:   append([]string(nil), s.Materials...),
		Blendshapes: append([]Blendshape(nil), s.Blendshapes...),
		ProbeAnchor: s.ProbeAnchor,
	}
	if s.Bounds != nil {
		b := *s.Bounds
		c.Bounds = &b
	}
	return c
}

// BlendshapeWeight returns the weight of channel i
func (s *SkinnedMesh) BlendshapeWeight(i int) (float64, bool) {
	if i < 0 || i >= len(s.Blendshapes) {
		return 0, false
	}
	return s.Blendshapes[i].Weight, true
}

// MeshRenderer is a static mesh attachment
type MeshRenderer struct {
	componentBase
	Mesh      string
	Materials []string
}

func (m *MeshRenderer) Kind() ComponentKind { return KindMeshRenderer }

func (m *MeshRenderer) clone() Component {
	return &MeshRenderer{Mesh: m.Mesh, Materials: append([]string(nil), m.Materials...)}
}

// Camera is carried only so the synthesizer can exclude camera nodes
type Camera struct {
	componentBase
	Params map[string]any
}

func (c *Camera) Kind() ComponentKind { return KindCamera }
func (c *Camera) clone() Component    { return &Camera{Params: copyParams(c.Params)} }

// Light is carried only so the synthesizer can exclude light nodes
type Light struct {
	componentBase
	Params map[string]any
}

func (l *Light) Kind() ComponentKind { return KindLight }
func (l *Light) clone() Component    { return &Light{Params: copyParams(l.Params)} }

// Collider is a physics collision volume anchored at Root.
type Collider struct {
	componentBase
	Root  *Node
	Shape map[string]any
}

func (c *Collider) Kind() ComponentKind { return KindCollider }

func (c *Collider) clone() Component {
	return &Collider{Root: c.Root, Shape: copyParams(c.Shape)}
}

// BoneChain is a physics-driven bone chain anchored at Root.
// Colliders lists the colliders the chain interacts with, in order.
type BoneChain struct {
	componentBase
	Root      *Node
	Colliders []*Collider
	Params    map[string]any
}

func (b *BoneChain) Kind() ComponentKind { return KindBoneChain }

func (b *BoneChain) clone() Component {
	return &BoneChain{
		Root:      b.Root,
		Colliders: append([]*Collider(nil), b.Colliders...),
		Params:    copyParams(b.Params),
	}
}

// ConstraintSource is one weighted input of a rotation constraint
type ConstraintSource struct {
	Node   *Node
	Weight float64
}

// RotationConstraint drives its owner's rotation from a weighted blend of sources.
type RotationConstraint struct {
	componentBase
	Sources []ConstraintSource
	Params  map[string]any
}

func (r *RotationConstraint) Kind() ComponentKind { return KindRotationConstraint }

func (r *RotationConstraint) clone() Component {
	return &RotationConstraint{
		Sources: append([]ConstraintSource(nil), r.Sources...),
		Params:  copyParams(r.Params),
	}
}

// AvatarDescriptor is the avatar-level metadata record
type AvatarDescriptor struct {
	componentBase
	VisemeMesh *Node
	LeftEye    *Node
	RightEye   *Node
	Params     map[string]any
}

func (d *AvatarDescriptor) Kind() ComponentKind { return KindAvatarDescriptor }

func (d *AvatarDescriptor) clone() Component {
	return &AvatarDescriptor{
		VisemeMesh: d.VisemeMesh,
		LeftEye:    d.LeftEye,
		RightEye:   d.RightEye,
		Params:     copyParams(d.Params),
	}
}

func copyParams(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	return deepcopy.Copy(p).(map[string]any)
}

// CloneAsNew copies c onto target and returns the copy.
// The copy keeps every node reference of the original until it is remapped.
func CloneAsNew(c Component, target *Node, origin Role) Component {
	dup := c.clone()
	dup.setOrigin(origin)
	target.Attach(dup)
	return dup
}

// FirstComponent returns the first component of type T on n, or the zero value
func FirstComponent[T Component](n *Node) T {
	var zero T
	if n == nil {
		return zero
	}
	for _, c := range n.Components {
		if t, ok := c.(T); ok {
			return t
		}
	}
	return zero
}

// ComponentsOf returns every component of type T on n, in attachment order
func ComponentsOf[T Component](n *Node) []T {
	if n == nil {
		return nil
	}
	var out []T
	for _, c := range n.Components {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// HasComponent reports whether n carries a component of the given kind
func HasComponent(n *Node, kind ComponentKind) bool {
	if n == nil {
		return false
	}
	for _, c := range n.Components {
		if c.Kind() == kind {
			return true
		}
	}
	return false
}

// IsMeshBearing reports whether n carries a skinned mesh
func IsMeshBearing(n *Node) bool {
	return HasComponent(n, KindSkinnedMesh)
}
