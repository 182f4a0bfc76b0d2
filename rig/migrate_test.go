package rig

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func mustParse(t *testing.T, role Role, doc string) *Rig {
	t.Helper()
	r, err := ParseRig([]byte(doc), role)
	require.NoError(t, err)
	return r
}

// chainsUnder returns every bone chain owned by a node in region's subtree
func chainsUnder(region *Node) []*BoneChain {
	var out []*BoneChain
	Walk(region, true, func(n *Node) bool {
		out = append(out, ComponentsOf[*BoneChain](n)...)
		return true
	})
	return out
}

// inTree reports whether n belongs to the tree rooted at root
func inTree(root, n *Node) bool {
	return n != nil && root.IsAncestorOf(n)
}

// ---------------------------------------------------------------------------
// Pass 1: colliders and rotation constraints
// ---------------------------------------------------------------------------

func TestPass1_EyeColliderRemappedToMergedHead(t *testing.T) {
	head := mustParse(t, RoleHead, `
name: HeadRig
children:
  - name: Head
    children:
      - name: Eye_L
        components:
          - type: collider
            root: Head
            shape: {radius: 0.02}
`)
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Head
`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Head
    children:
      - name: Eye_L
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1()

	eye := FindByName(merged.Root, "Eye_L")
	colliders := ComponentsOf[*Collider](eye)
	require.Len(t, colliders, 1)
	assert.Same(t, FindByName(merged.Root, "Head"), colliders[0].Root)
	assert.Equal(t, RoleHead, colliders[0].Origin())
	assert.Equal(t, 0.02, colliders[0].Shape["radius"])
	assert.Equal(t, 1, report.CollidersCloned)
	assert.Zero(t, report.DroppedReferences)

	// the payload is a copy, not shared with the head rig
	colliders[0].Shape["radius"] = 1.0
	src := FirstComponent[*Collider](FindByName(head.Root, "Eye_L"))
	assert.Equal(t, 0.02, src.Shape["radius"])
}

func TestPass1_ConstraintKeepsOnlyResolvableSources(t *testing.T) {
	head := mustParse(t, RoleHead, `
name: HeadRig
children:
  - name: UpperArm_L
  - name: HeadOnlyHelper
  - name: Twist_L
    components:
      - type: rotationConstraint
        sources:
          - {node: UpperArm_L, weight: 0.5}
          - {node: HeadOnlyHelper, weight: 0.5}
`)
	body := mustParse(t, RoleBody, `name: BodyRig`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: UpperArm_L
  - name: Twist_L
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1()

	constraints := ComponentsOf[*RotationConstraint](FindByName(merged.Root, "Twist_L"))
	require.Len(t, constraints, 1)
	require.Len(t, constraints[0].Sources, 1)
	assert.Same(t, FindByName(merged.Root, "UpperArm_L"), constraints[0].Sources[0].Node)
	assert.Equal(t, 0.5, constraints[0].Sources[0].Weight)
	assert.Equal(t, 1, report.ConstraintsCloned)
	assert.Equal(t, 1, report.DroppedReferences)
}

func TestPass1_BodyColliderWinsOverEquivalentHeadCollider(t *testing.T) {
	src := `
name: %s
children:
  - name: Neck
    components:
      - type: collider
        root: Neck
`
	head := mustParse(t, RoleHead, fmt.Sprintf(src, "HeadRig"))
	body := mustParse(t, RoleBody, fmt.Sprintf(src, "BodyRig"))
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Neck
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1()

	colliders := ComponentsOf[*Collider](FindByName(merged.Root, "Neck"))
	require.Len(t, colliders, 1)
	assert.Equal(t, RoleBody, colliders[0].Origin())
	assert.Equal(t, 1, report.EquivalentsSkipped)
}

func TestPass1_SkipsMeshBearingAndInactiveNodes(t *testing.T) {
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Body
    components:
      - type: collider
        root: Body
  - name: Hidden
    components:
      - type: collider
        root: Hidden
`)
	head := mustParse(t, RoleHead, `name: HeadRig`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Body
    components:
      - type: skinnedMesh
  - name: Hidden
    active: false
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1()

	assert.Empty(t, ComponentsOf[*Collider](FindByName(merged.Root, "Body")))
	assert.Empty(t, ComponentsOf[*Collider](FindByName(merged.Root, "Hidden")))
	assert.Zero(t, report.CollidersCloned)
}

func TestPass1_UnresolvedRootIsDroppedNotFatal(t *testing.T) {
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Tail
    components:
      - type: collider
        root: TailBase
  - name: TailBase
`)
	head := mustParse(t, RoleHead, `name: HeadRig`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Tail
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1()

	colliders := ComponentsOf[*Collider](FindByName(merged.Root, "Tail"))
	require.Len(t, colliders, 1)
	assert.Nil(t, colliders[0].Root)
	assert.Equal(t, 1, report.DroppedReferences)
}

// ---------------------------------------------------------------------------
// Pass 2: bone chains
// ---------------------------------------------------------------------------

func TestPass2_ChainResolvesColliderOnLaterNode(t *testing.T) {
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Hair
    components:
      - type: boneChain
        root: Hair
        colliders: [HeadCollider]
  - name: HeadCollider
    components:
      - type: collider
        root: HeadCollider
`)
	head := mustParse(t, RoleHead, `name: HeadRig`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Hair
  - name: HeadCollider
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1().Pass2()

	chains := ComponentsOf[*BoneChain](FindByName(merged.Root, "Hair"))
	require.Len(t, chains, 1)
	require.Len(t, chains[0].Colliders, 1)
	collider := chains[0].Colliders[0]
	assert.Same(t, FindByName(merged.Root, "HeadCollider"), collider.Owner())
	assert.Same(t, FirstComponent[*Collider](FindByName(merged.Root, "HeadCollider")), collider)
	assert.Same(t, FindByName(merged.Root, "Hair"), chains[0].Root)
	assert.Equal(t, 1, report.ChainsCloned)
}

func TestPass2_BreastChainComesFromBodyOnly(t *testing.T) {
	src := `
name: %s
children:
  - name: Chest
    children:
      - name: Breast_L
        components:
          - type: boneChain
            root: Breast_L
            params: {stiffness: %s}
`
	head := mustParse(t, RoleHead, fmt.Sprintf(src, "HeadRig", "0.1"))
	body := mustParse(t, RoleBody, fmt.Sprintf(src, "BodyRig", "0.9"))
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Chest
    children:
      - name: Breast_L
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1().Pass2().Synthesize()

	chains := chainsUnder(FindByName(merged.Root, "Breast_L"))
	require.Len(t, chains, 1)
	assert.Equal(t, RoleBody, chains[0].Origin())
	assert.Equal(t, 0.9, chains[0].Params["stiffness"])
	assert.Equal(t, 1, report.ChainsCloned)
	assert.Equal(t, 1, report.EquivalentsSkipped)
}

func TestPass2_SkipsChainWhoseRegionHoldsOtherSourceChain(t *testing.T) {
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Skirt
    components:
      - type: boneChain
        root: Cape
  - name: Cape
`)
	head := mustParse(t, RoleHead, `
name: HeadRig
children:
  - name: Hips
    components:
      - type: boneChain
        root: Hips
`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Skirt
  - name: Hips
    children:
      - name: Cape
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1().Pass2()

	// the body chain on Skirt is rooted at Cape, which lies under Hips
	skirt := ComponentsOf[*BoneChain](FindByName(merged.Root, "Skirt"))
	require.Len(t, skirt, 1)
	assert.Same(t, FindByName(merged.Root, "Cape"), skirt[0].Root)
	assert.Empty(t, ComponentsOf[*BoneChain](FindByName(merged.Root, "Hips")))
	assert.Equal(t, 1, report.EquivalentsSkipped)
}

func TestPass2_SameSourceChainsAreNotDeduplicated(t *testing.T) {
	body := mustParse(t, RoleBody, `
name: BodyRig
children:
  - name: Hair
    components:
      - type: boneChain
        root: Hair
      - type: boneChain
        root: Hair
`)
	head := mustParse(t, RoleHead, `name: HeadRig`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Hair
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1().Pass2()

	assert.Len(t, ComponentsOf[*BoneChain](FindByName(merged.Root, "Hair")), 2)
}

// ---------------------------------------------------------------------------
// Reference closure
// ---------------------------------------------------------------------------

func TestMigration_ReferencesStayInsideMergedRig(t *testing.T) {
	head := mustParse(t, RoleHead, `
name: HeadRig
components:
  - type: animator
    humanoid: {head: Head, neck: Neck}
children:
  - name: Neck
    children:
      - name: Head
        components:
          - type: collider
            root: Head
        children:
          - name: Ears
            components:
              - type: boneChain
                root: Head
                colliders: [Head, Cheek]
          - name: Cheek
            components:
              - type: collider
                root: Head
          - name: Jaw_Twist
            components:
              - type: rotationConstraint
                sources:
                  - {node: Head, weight: 1}
                  - {node: HeadOnly, weight: 1}
          - name: HeadOnly
`)
	body := mustParse(t, RoleBody, `
name: BodyRig
components:
  - type: animator
    humanoid: {hips: Hips, neck: Neck}
children:
  - name: Hips
    children:
      - name: Neck
        components:
          - type: collider
            root: Hips
      - name: Tail
        components:
          - type: boneChain
            root: Tail
            colliders: [Neck, Missing]
      - name: Missing
        components:
          - type: collider
            root: Missing
`)
	merged := mustParse(t, RoleMerged, `
name: Merged
children:
  - name: Hips
    children:
      - name: Neck
        children:
          - name: Head
      - name: Tail
`)

	report := &MergeReport{}
	NewMigrationContext(merged, head, body, report).Pass1().Pass2().Synthesize()

	root := merged.Root
	Walk(root, true, func(n *Node) bool {
		for _, c := range ComponentsOf[*Collider](n) {
			if c.Root != nil {
				assert.True(t, inTree(root, c.Root), "collider on %s points outside", n.Name)
			}
		}
		for _, c := range ComponentsOf[*BoneChain](n) {
			if c.Root != nil {
				assert.True(t, inTree(root, c.Root), "bone chain on %s points outside", n.Name)
			}
			for _, col := range c.Colliders {
				assert.True(t, inTree(root, col.Owner()), "bone chain on %s lists a foreign collider", n.Name)
			}
		}
		for _, c := range ComponentsOf[*RotationConstraint](n) {
			for _, s := range c.Sources {
				if s.Node != nil {
					assert.True(t, inTree(root, s.Node), "constraint on %s points outside", n.Name)
				}
			}
		}
		return true
	})
	assert.NotZero(t, report.CollidersCloned)
	assert.NotZero(t, report.ChainsCloned)
}
