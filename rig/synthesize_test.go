package rig

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const synthBody = `
name: BodyRig
components:
  - type: animator
    humanoid: {hips: Hips, spine: Spine, chest: Chest, upperChest: UpperChest}
children:
  - name: Hips
    children:
      - name: Spine
        children:
          - name: Chest
            children:
              - name: UpperChest
                components:
                  - type: collider
                    root: Chest
      - name: Skirt_Root
        components:
          - type: boneChain
            root: Hips
            colliders: [Skirt_Col]
      - name: Skirt_Col
        components:
          - type: collider
            root: Hips
  - name: Orphan
    components:
      - type: collider
        root: Ghost
  - name: Ghost
  - name: Cam
    components:
      - type: camera
      - type: collider
        root: Hips
  - name: Lamp
    components:
      - type: light
      - type: collider
        root: Hips
  - name: Prop
    components:
      - type: meshRenderer
      - type: collider
        root: Hips
`

const synthHead = `
name: HeadRig
components:
  - type: animator
    humanoid: {head: Head}
children:
  - name: Head
    children:
      - name: Skirt_Col
        components:
          - type: collider
            root: Head
      - name: Hood
        components:
          - type: boneChain
            root: Hips
`

const synthMerged = `
name: Merged
children:
  - name: Hips
    children:
      - name: Spine
        children:
          - name: Chest
            children:
              - name: Head
  - name: Body
    components:
      - type: skinnedMesh
`

func runSynthesis(t *testing.T) (*Rig, *Rig, *Rig, *MergeReport, *SynthesisOutput) {
	t.Helper()
	head := mustParse(t, RoleHead, synthHead)
	body := mustParse(t, RoleBody, synthBody)
	merged := mustParse(t, RoleMerged, synthMerged)
	report := &MergeReport{}
	out := NewMigrationContext(merged, head, body, report).Pass1().Pass2().Synthesize()
	return head, body, merged, report, out
}

func TestSynthesize_CreatesNeededNodesUnderRoot(t *testing.T) {
	_, _, merged, report, out := runSynthesis(t)

	if diff := cmp.Diff([]string{"Skirt_Root", "Skirt_Col"}, report.SynthesizedNodes); diff != "" {
		t.Errorf("synthesized nodes mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, out.Created, 2)
	for _, n := range out.Created {
		assert.Same(t, merged.Root, n.Parent(), "%s should be a direct child of the root", n.Name)
		assert.True(t, n.Active)
		assert.Equal(t, IdentityTransform(), n.Transform)
	}

	// created nodes are the last children of the root, in creation order
	children := merged.Root.Children()
	assert.Same(t, out.Created[0], children[len(children)-2])
	assert.Same(t, out.Created[1], children[len(children)-1])
}

func TestSynthesize_CreatedNodeGetsCollidersAndChains(t *testing.T) {
	_, _, merged, _, _ := runSynthesis(t)

	hips := FindByName(merged.Root, "Hips")
	col := FirstComponent[*Collider](FindByName(merged.Root, "Skirt_Col"))
	require.NotNil(t, col)
	assert.Same(t, hips, col.Root)
	assert.Equal(t, RoleBody, col.Origin())

	chains := ComponentsOf[*BoneChain](FindByName(merged.Root, "Skirt_Root"))
	require.Len(t, chains, 1)
	assert.Same(t, hips, chains[0].Root)
	// Skirt_Col was created after Skirt_Root; the chain still finds its collider
	require.Len(t, chains[0].Colliders, 1)
	assert.Same(t, col, chains[0].Colliders[0])
}

func TestSynthesize_SkipReasonsAreCounted(t *testing.T) {
	_, _, merged, report, _ := runSynthesis(t)

	// Orphan is anchored at Ghost and Ghost anchors nothing
	assert.Equal(t, 2, report.UnneededSkipped)
	// Hood would drive Hips, which the body skirt chain already drives
	assert.Equal(t, 1, report.ConflictsSkipped)

	for _, name := range []string{"Orphan", "Ghost", "Cam", "Lamp", "Prop", "Hood", "UpperChest", "BodyRig", "HeadRig"} {
		assert.Nil(t, FindByName(merged.Root, name), "%s should not be created", name)
	}
}

func TestSynthesize_NoDuplicateNames(t *testing.T) {
	_, _, merged, _, _ := runSynthesis(t)

	seen := map[string]int{}
	Walk(merged.Root, true, func(n *Node) bool {
		seen[n.Name]++
		return true
	})
	for name, count := range seen {
		assert.Equal(t, 1, count, "%s appears %d times", name, count)
	}
	// the head rig's Skirt_Col did not add a second collider to the body's node
	assert.Len(t, ComponentsOf[*Collider](FindByName(merged.Root, "Skirt_Col")), 1)
}

func TestSynthesize_NeverCreatesSourceBones(t *testing.T) {
	head, body, _, report, _ := runSynthesis(t)

	created := map[string]bool{}
	for _, name := range report.SynthesizedNodes {
		created[name] = true
	}
	classifier := NewClassifier()
	for _, src := range []*Rig{head, body} {
		Walk(src.Root, true, func(n *Node) bool {
			if classifier.IsBone(n) {
				assert.False(t, created[n.Name], "bone %s was synthesized", n.Name)
			}
			return true
		})
	}
}

func TestSynthesize_BodyRunsBeforeHead(t *testing.T) {
	head := mustParse(t, RoleHead, `
name: HeadRig
children:
  - name: Ribbon
    components:
      - type: collider
        root: Neck
`)
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Ribbon
    components:
      - type: collider
        root: Hips
`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Hips
    children:
      - name: Neck
`)

	report := &MergeReport{}
	out := NewMigrationContext(merged, head, body, report).Pass1().Pass2().Synthesize()

	require.Len(t, out.Created, 1)
	cols := ComponentsOf[*Collider](out.Created[0])
	require.Len(t, cols, 1)
	assert.Equal(t, RoleBody, cols[0].Origin())
	assert.Same(t, FindByName(merged.Root, "Hips"), cols[0].Root)
}

func TestSynthesize_InactiveSourceNodesAreCandidates(t *testing.T) {
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Spare
    active: false
    components:
      - type: collider
        root: Hips
`)
	head := mustParse(t, RoleHead, `name: HeadRig`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Hips
`)

	out := NewMigrationContext(merged, head, body, nil).Pass1().Pass2().Synthesize()

	require.Len(t, out.Created, 1)
	assert.Equal(t, "Spare", out.Created[0].Name)
	assert.True(t, out.Created[0].Active)
}

func TestSynthesize_BodyChainOnCreatedNodeBeatsHeadChain(t *testing.T) {
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Chest
    children:
      - name: Breast_L
  - name: PB_Breast_L
    components:
      - type: boneChain
        root: Breast_L
        params: {stiffness: 0.9}
`)
	head := mustParse(t, RoleHead, `
name: HeadRig
children:
  - name: Chest
    children:
      - name: Breast_L
        components:
          - type: boneChain
            root: Breast_L
            params: {stiffness: 0.1}
`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Chest
    children:
      - name: Breast_L
`)

	report := &MergeReport{}
	out := NewMigrationContext(merged, head, body, report).Pass1().Pass2().Synthesize()

	breast := FindByName(merged.Root, "Breast_L")
	assert.Empty(t, ComponentsOf[*BoneChain](breast), "head chain should not claim Breast_L")

	require.Len(t, out.Created, 1)
	assert.Equal(t, "PB_Breast_L", out.Created[0].Name)
	chains := ComponentsOf[*BoneChain](out.Created[0])
	require.Len(t, chains, 1)
	assert.Equal(t, RoleBody, chains[0].Origin())
	assert.Same(t, breast, chains[0].Root)
	assert.Equal(t, 0.9, chains[0].Params["stiffness"])

	assert.Equal(t, 1, report.ChainsCloned)
	assert.Equal(t, 1, report.EquivalentsSkipped)
	assert.Zero(t, report.ConflictsSkipped)
}

func TestSynthesize_RemovesCreatedNodeLeftEmpty(t *testing.T) {
	head := mustParse(t, RoleHead, `
name: HeadRig
children:
  - name: Breast_L
  - name: PB_A
    components:
      - type: boneChain
        root: Breast_L
  - name: PB_B
    components:
      - type: boneChain
        root: Breast_L
`)
	body := mustParse(t, RoleBody, `name: BodyRig`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Chest
    children:
      - name: Breast_L
`)

	report := &MergeReport{}
	out := NewMigrationContext(merged, head, body, report).Pass1().Pass2().Synthesize()

	require.Len(t, out.Created, 1)
	assert.Equal(t, "PB_A", out.Created[0].Name)
	assert.Nil(t, FindByName(merged.Root, "PB_B"))
	assert.False(t, out.Context().MergedIndex().Contains("PB_B"))
	if diff := cmp.Diff([]string{"PB_A"}, report.SynthesizedNodes); diff != "" {
		t.Errorf("synthesized nodes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, report.DiscardedNodes)
	assert.Equal(t, 1, report.ChainsCloned)
}

func TestSynthesize_KeepsEmptyCreatedNodeThatIsReferenced(t *testing.T) {
	head := mustParse(t, RoleHead, `
name: HeadRig
children:
  - name: Breast_L
  - name: PB_A
    components:
      - type: boneChain
        root: Breast_L
  - name: PB_B
    components:
      - type: boneChain
        root: Breast_L
  - name: PB_C
    components:
      - type: collider
        root: PB_B
`)
	body := mustParse(t, RoleBody, `name: BodyRig`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Breast_L
`)

	report := &MergeReport{}
	out := NewMigrationContext(merged, head, body, report).Pass1().Pass2().Synthesize()

	require.Len(t, out.Created, 3)
	pbB := FindByName(merged.Root, "PB_B")
	require.NotNil(t, pbB)
	assert.Empty(t, pbB.Components)
	col := FirstComponent[*Collider](FindByName(merged.Root, "PB_C"))
	require.NotNil(t, col)
	assert.Same(t, pbB, col.Root)
	assert.Zero(t, report.DiscardedNodes)
}
