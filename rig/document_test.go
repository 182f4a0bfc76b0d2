package rig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullDocument = `
name: Avatar
asset: avatar.fbx
components:
  - type: animator
    humanoid: {hips: Hips, head: Head}
  - type: avatarDescriptor
    visemeMesh: Face
    leftEye: Eye_L
    params: {lipSync: visemeBlendShape}
transform:
  position: [0, 0, 1]
  rotation: [0, 180, 0]
children:
  - name: Face
    components:
      - type: skinnedMesh
        mesh: FaceMesh
        materials: [skin]
        blendshapes:
          - {name: vrc.v_aa, weight: 0}
        probeAnchor: Hips
  - name: Hips
    children:
      - name: Head
        components:
          - type: collider
            root: Head
            shape: {radius: 0.1}
        children:
          - name: Eye_L
            active: false
          - name: Hair
            components:
              - type: boneChain
                root: Hair
                colliders: [Head]
                params: {pull: 0.2}
          - name: Twist
            components:
              - type: rotationConstraint
                sources:
                  - {node: Head, weight: 0.25}
`

func TestParseRig_FullDocument(t *testing.T) {
	r, err := ParseRig([]byte(fullDocument), RoleHead)
	require.NoError(t, err)

	assert.Equal(t, RoleHead, r.Role)
	assert.Equal(t, "avatar.fbx", r.Asset)
	assert.Equal(t, "Avatar", r.Root.Name)
	assert.Equal(t, Vec3{0, 180, 0}, r.Root.Transform.Rotation)
	assert.Equal(t, Vec3{1, 1, 1}, r.Root.Transform.Scale, "omitted scale defaults to one")

	face := FindByName(r.Root, "Face")
	sm := FirstComponent[*SkinnedMesh](face)
	require.NotNil(t, sm)
	assert.Equal(t, "FaceMesh", sm.Mesh)
	assert.Same(t, FindByName(r.Root, "Hips"), sm.ProbeAnchor)
	assert.Same(t, face, sm.Owner())

	head := FindByName(r.Root, "Head")
	chain := FirstComponent[*BoneChain](FindByName(r.Root, "Hair"))
	require.NotNil(t, chain)
	require.Len(t, chain.Colliders, 1)
	assert.Same(t, FirstComponent[*Collider](head), chain.Colliders[0])

	rc := FirstComponent[*RotationConstraint](FindByName(r.Root, "Twist"))
	require.Len(t, rc.Sources, 1)
	assert.Same(t, head, rc.Sources[0].Node)

	d := FirstComponent[*AvatarDescriptor](r.Root)
	require.NotNil(t, d)
	assert.Same(t, face, d.VisemeMesh)
	assert.Same(t, FindByName(r.Root, "Eye_L"), d.LeftEye)
	assert.Nil(t, d.RightEye)
	assert.False(t, FindByName(r.Root, "Eye_L").Active)

	for _, c := range []Component{sm, chain, rc, d} {
		assert.Equal(t, RoleHead, c.Origin())
	}
}

func TestParseRig_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing root name", "children: []", "no root name"},
		{"unknown component", "name: A\ncomponents:\n  - type: teleporter\n", "unknown component type"},
		{"missing component type", "name: A\ncomponents:\n  - mesh: x\n", "component type is required"},
		{"not yaml", "name: [unclosed", "parsing rig document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRig([]byte(tt.doc), RoleBody)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRig_AcceptsJSON(t *testing.T) {
	r, err := ParseRig([]byte(`{"name": "Root", "children": [{"name": "Hips", "components": [{"type": "collider", "root": "Hips"}]}]}`), RoleBody)
	require.NoError(t, err)
	hips := FindByName(r.Root, "Hips")
	assert.Same(t, hips, FirstComponent[*Collider](hips).Root)
}

func TestParseRig_UnknownReferenceIsEmpty(t *testing.T) {
	r, err := ParseRig([]byte(`
name: Root
components:
  - type: collider
    root: Nowhere
`), RoleBody)
	require.NoError(t, err)
	assert.Nil(t, FirstComponent[*Collider](r.Root).Root)
}

func TestMarshalRig_RoundTripKeepsStructure(t *testing.T) {
	r, err := ParseRig([]byte(fullDocument), RoleHead)
	require.NoError(t, err)

	data, err := MarshalRig(r)
	require.NoError(t, err)

	again, err := ParseRig(data, RoleMerged)
	require.NoError(t, err)

	before := BuildIndex(r.Root).Nodes()
	after := BuildIndex(again.Root).Nodes()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Path(), after[i].Path())
		assert.Equal(t, before[i].Active, after[i].Active)
		assert.Equal(t, before[i].Transform, after[i].Transform)
		assert.Len(t, after[i].Components, len(before[i].Components), before[i].Name)
	}

	// origins are written out, so a reloaded rig still knows where attachments came from
	assert.Equal(t, RoleHead, FirstComponent[*Collider](FindByName(again.Root, "Head")).Origin())
	assert.Equal(t, "Head", FirstComponent[*BoneChain](FindByName(again.Root, "Hair")).Colliders[0].Owner().Name)
}

func TestMarshalRig_Empty(t *testing.T) {
	_, err := MarshalRig(nil)
	assert.Error(t, err)
	_, err = MarshalRig(&Rig{})
	assert.Error(t, err)
}

func TestLoadRig_ResolvesAssetRelativeToDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avatar.rig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDocument), 0644))

	r, err := LoadRig(path, RoleBody)
	require.NoError(t, err)
	assert.Equal(t, path, r.Path)
	assert.True(t, filepath.IsAbs(r.Asset))
	assert.Equal(t, "avatar.fbx", filepath.Base(r.Asset))
	assert.Equal(t, filepath.Base(dir), filepath.Base(filepath.Dir(r.Asset)))
}

func TestLoadRig_Missing(t *testing.T) {
	_, err := LoadRig(filepath.Join(t.TempDir(), "none.rig.yaml"), RoleBody)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "rig document not found"))
}

func TestSaveRig_CreatesDirectories(t *testing.T) {
	r, err := ParseRig([]byte(fullDocument), RoleMerged)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "out.rig.yaml")
	require.NoError(t, SaveRig(path, r))

	loaded, err := LoadRig(path, RoleMerged)
	require.NoError(t, err)
	assert.Equal(t, "Avatar", loaded.Root.Name)
}
