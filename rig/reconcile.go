package rig

import (
	"fmt"
	"log"
)

// BlendshapeRangeError reports a merged mesh with more blendshape channels than
// the source mesh its weights are copied from
type BlendshapeRangeError struct {
	Mesh        string
	Source      Role
	MergedCount int
	SourceCount int
}

func (e *BlendshapeRangeError) Error() string {
	return fmt.Sprintf("mesh %s: merged mesh has %d blendshape channels but %s source has only %d",
		e.Mesh, e.MergedCount, e.Source, e.SourceCount)
}

// meshSource is a source skinned mesh matched by node name
type meshSource struct {
	role Role
	mesh *SkinnedMesh
}

// skinnedMeshes returns the skinned meshes under root in pre-order.
// Only active nodes are considered, like the renderer enumeration of the host.
func skinnedMeshes(root *Node) []*SkinnedMesh {
	var out []*SkinnedMesh
	for _, n := range root.Descendants(false) {
		out = append(out, ComponentsOf[*SkinnedMesh](n)...)
	}
	return out
}

// meshesByName maps node name to the first skinned mesh carried by a node of that name
func meshesByName(root *Node) map[string]*SkinnedMesh {
	out := make(map[string]*SkinnedMesh)
	for _, sm := range skinnedMeshes(root) {
		if _, seen := out[sm.Owner().Name]; !seen {
			out[sm.Owner().Name] = sm
		}
	}
	return out
}

// matchSourceMesh finds the source mesh for a merged mesh: head first, then body
func matchSourceMesh(name string, head, body map[string]*SkinnedMesh) (meshSource, bool) {
	if sm, ok := head[name]; ok {
		return meshSource{role: RoleHead, mesh: sm}, true
	}
	if sm, ok := body[name]; ok {
		return meshSource{role: RoleBody, mesh: sm}, true
	}
	return meshSource{}, false
}

// CopyAvatarDescriptor clones the head rig's avatar descriptor onto the merged
// root and points its mesh and eye references at merged nodes. It reports
// whether a descriptor was copied.
//
// If either eye resolves both eyes are assigned, so one side can end up empty.
// If neither resolves both are cleared.
func CopyAvatarDescriptor(head, merged *Rig, report *MergeReport) bool {
	src := FirstComponent[*AvatarDescriptor](head.Root)
	if src == nil {
		return false
	}

	// the merged root keeps a single descriptor
	for _, old := range ComponentsOf[*AvatarDescriptor](merged.Root) {
		merged.Root.Detach(old)
	}
	dst := CloneAsNew(src, merged.Root, RoleHead).(*AvatarDescriptor)

	dst.VisemeMesh = nil
	if src.VisemeMesh != nil {
		for _, sm := range skinnedMeshes(merged.Root) {
			if sm.Owner().Name == src.VisemeMesh.Name {
				dst.VisemeMesh = sm.Owner()
				break
			}
		}
		if dst.VisemeMesh == nil {
			log.Printf("[MERGE] viseme mesh %s not found on merged rig", src.VisemeMesh.Name)
		}
	}

	idx := BuildIndex(merged.Root)
	left := idx.Resolve(src.LeftEye)
	right := idx.Resolve(src.RightEye)
	dst.LeftEye, dst.RightEye = left, right
	eyes := left != nil || right != nil

	if report != nil {
		report.DescriptorCopied = true
		report.EyesAssigned = eyes
	}
	return true
}

// CopyMaterials gives every merged skinned mesh the material list of the
// same-named head mesh, else the body mesh. Unmatched meshes are left alone.
// It returns the number of meshes assigned.
func CopyMaterials(head, body, merged *Rig) int {
	headMeshes := meshesByName(head.Root)
	bodyMeshes := meshesByName(body.Root)

	assigned := 0
	for _, sm := range skinnedMeshes(merged.Root) {
		src, ok := matchSourceMesh(sm.Owner().Name, headMeshes, bodyMeshes)
		if !ok {
			continue
		}
		sm.Materials = append([]string(nil), src.mesh.Materials...)
		assigned++
	}
	return assigned
}

// CopyBlendshapes copies blendshape weights by channel index from the same-named
// head mesh, else body mesh. Every mesh is checked before any weight is written;
// a merged mesh with more channels than its source fails the whole copy with a
// *BlendshapeRangeError. It returns the number of channels written.
func CopyBlendshapes(head, body, merged *Rig) (int, error) {
	headMeshes := meshesByName(head.Root)
	bodyMeshes := meshesByName(body.Root)

	type job struct {
		dst *SkinnedMesh
		src meshSource
	}
	var jobs []job
	for _, sm := range skinnedMeshes(merged.Root) {
		src, ok := matchSourceMesh(sm.Owner().Name, headMeshes, bodyMeshes)
		if !ok {
			continue
		}
		if len(sm.Blendshapes) > len(src.mesh.Blendshapes) {
			return 0, &BlendshapeRangeError{
				Mesh:        sm.Owner().Name,
				Source:      src.role,
				MergedCount: len(sm.Blendshapes),
				SourceCount: len(src.mesh.Blendshapes),
			}
		}
		jobs = append(jobs, job{dst: sm, src: src})
	}

	copied := 0
	for _, j := range jobs {
		for i := range j.dst.Blendshapes {
			w, _ := j.src.mesh.BlendshapeWeight(i)
			j.dst.Blendshapes[i].Weight = w
			copied++
		}
	}
	return copied, nil
}

// ApplyHumanoidSettings makes sure the merged root carries an animator whose
// humanoid map covers the merged skeleton. Slots come from the body rig first,
// then the head rig, keeping only bones present on the merged rig. An existing
// merged map is kept and only missing slots are filled. It returns the slot count.
func ApplyHumanoidSettings(head, body, merged *Rig) int {
	animator := FirstComponent[*Animator](merged.Root)
	if animator == nil {
		animator = &Animator{Humanoid: make(map[string]string)}
		animator.setOrigin(RoleMerged)
		merged.Root.Attach(animator)
	}
	if animator.Humanoid == nil {
		animator.Humanoid = make(map[string]string)
	}

	idx := BuildIndex(merged.Root)
	for _, src := range []*Rig{body, head} {
		a := FirstComponent[*Animator](src.Root)
		if a == nil {
			continue
		}
		for slot, bone := range a.Humanoid {
			if _, taken := animator.Humanoid[slot]; taken {
				continue
			}
			if idx.Contains(NodeKey(bone)) {
				animator.Humanoid[slot] = bone
			}
		}
	}
	return len(animator.Humanoid)
}

// probeAnchorNames lists the anchor candidates in order of preference
var probeAnchorNames = []string{"Chest", "Hips"}

// ApplyBoundsAndProbeAnchors sets the probe anchor of every merged skinned mesh
// to the Chest node, else Hips, and resets mesh bounds to a unit box.
// It returns the anchor name, or "" when neither node exists.
func ApplyBoundsAndProbeAnchors(merged *Rig) string {
	idx := BuildIndex(merged.Root)
	var anchor *Node
	for _, name := range probeAnchorNames {
		if anchor = idx.Find(name); anchor != nil {
			break
		}
	}

	for _, sm := range skinnedMeshes(merged.Root) {
		if anchor != nil {
			sm.ProbeAnchor = anchor
		}
		sm.Bounds = &Bounds{Extents: Vec3{1, 1, 1}}
	}
	if anchor == nil {
		return ""
	}
	return anchor.Name
}
