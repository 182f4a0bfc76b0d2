package rig

// Classifier decides whether a node belongs to a humanoid skeleton.
// Bone sets are cached per animator; classification never mutates the tree.
type Classifier struct {
	sets map[*Animator]map[NodeKey]bool
}

// NewClassifier creates a classifier with an empty cache
func NewClassifier() *Classifier {
	return &Classifier{sets: make(map[*Animator]map[NodeKey]bool)}
}

// IsBone reports whether n's name is in the humanoid bone set of the nearest
// animator found on n or one of its ancestors. A node with no reachable
// animator is not a bone.
func (c *Classifier) IsBone(n *Node) bool {
	if n == nil {
		return false
	}
	animator := nearestAnimator(n)
	if animator == nil {
		return false
	}
	set, ok := c.sets[animator]
	if !ok {
		set = animator.BoneSet()
		c.sets[animator] = set
	}
	return set[n.Key()]
}

// IsBone is the uncached form of Classifier.IsBone
func IsBone(n *Node) bool {
	animator := nearestAnimator(n)
	if animator == nil {
		return false
	}
	return animator.BoneSet()[n.Key()]
}

func nearestAnimator(n *Node) *Animator {
	for cur := n; cur != nil; cur = cur.parent {
		if a := FirstComponent[*Animator](cur); a != nil {
			return a
		}
	}
	return nil
}

// isExcludedFromSynthesis reports whether a source node can never be synthesized
// on the merged rig: mesh-bearing, camera, light, animator carrying, or a bone.
func (c *Classifier) isExcludedFromSynthesis(n *Node) bool {
	for _, comp := range n.Components {
		switch comp.Kind() {
		case KindSkinnedMesh, KindMeshRenderer, KindAnimator, KindCamera, KindLight:
			return true
		}
	}
	return c.IsBone(n)
}
