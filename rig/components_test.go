package rig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneAsNew_KeepsReferencesUntilRemapped(t *testing.T) {
	src := NewNode("Src")
	anchor := NewNode("Anchor")
	col := &Collider{Root: anchor, Shape: map[string]any{"radius": 0.1, "offset": []any{0.0, 1.0, 0.0}}}
	src.Attach(col)

	target := NewNode("Target")
	dup := CloneAsNew(col, target, RoleBody).(*Collider)

	assert.Same(t, target, dup.Owner())
	assert.Equal(t, RoleBody, dup.Origin())
	assert.Same(t, anchor, dup.Root)
	require.Len(t, target.Components, 1)

	// nested payloads are deep copied
	dup.Shape["offset"].([]any)[1] = 5.0
	assert.Equal(t, 1.0, col.Shape["offset"].([]any)[1])
}

func TestCloneAsNew_AllKinds(t *testing.T) {
	n := NewNode("N")
	components := []Component{
		&Animator{Humanoid: map[string]string{"hips": "Hips"}},
		&SkinnedMesh{Mesh: "M", Materials: []string{"a"}, Blendshapes: []Blendshape{{Name: "x", Weight: 1}}, Bounds: &Bounds{}},
		&MeshRenderer{Mesh: "R"},
		&Camera{},
		&Light{Params: map[string]any{"range": 3}},
		&Collider{},
		&BoneChain{Colliders: []*Collider{{}}},
		&RotationConstraint{Sources: []ConstraintSource{{Weight: 1}}},
		&AvatarDescriptor{},
	}
	for _, c := range components {
		dup := CloneAsNew(c, n, RoleHead)
		assert.Equal(t, c.Kind(), dup.Kind())
		assert.NotSame(t, c, dup)
	}
	assert.Len(t, n.Components, len(components))

	sm := FirstComponent[*SkinnedMesh](n)
	sm.Materials[0] = "changed"
	sm.Bounds.Center = Vec3{1, 1, 1}
	orig := components[1].(*SkinnedMesh)
	assert.Equal(t, "a", orig.Materials[0])
	assert.Equal(t, Vec3{}, orig.Bounds.Center)
}

func TestDetach(t *testing.T) {
	n := NewNode("N")
	a, b := &Collider{}, &Collider{}
	n.Attach(a)
	n.Attach(b)

	assert.True(t, n.Detach(a))
	assert.Nil(t, a.Owner())
	assert.False(t, n.Detach(a))
	assert.Equal(t, []*Collider{b}, ComponentsOf[*Collider](n))
}

func TestComponentQueriesOnNil(t *testing.T) {
	assert.Nil(t, FirstComponent[*Collider](nil))
	assert.Nil(t, ComponentsOf[*Collider](nil))
	assert.False(t, HasComponent(nil, KindCollider))
	assert.False(t, IsMeshBearing(nil))
}

func TestRig_HumanoidBones(t *testing.T) {
	var nilRig *Rig
	assert.Empty(t, nilRig.HumanoidBones())

	root := NewNode("Avatar")
	assert.Empty(t, NewRig(RoleBody, root).HumanoidBones())

	root.Attach(&Animator{Humanoid: map[string]string{"hips": "Hips", "jaw": ""}})
	assert.Equal(t, map[NodeKey]bool{"Hips": true}, NewRig(RoleBody, root).HumanoidBones())
}
