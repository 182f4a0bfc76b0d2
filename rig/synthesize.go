package rig

import "log"

// SynthesisOutput is the merged rig after missing auxiliary nodes were created
type SynthesisOutput struct {
	ctx     *MigrationContext
	Created []*Node
}

// Context returns the run's context
func (s *SynthesisOutput) Context() *MigrationContext {
	return s.ctx
}

// pendingNode pairs a synthesized node with the source node it was created for
type pendingNode struct {
	source *Node
	node   *Node
}

// Synthesize creates the auxiliary nodes that exist on a source rig, are absent
// from the merged rig, and still anchor something the merged rig can use.
// Body runs first, then head. Each created node is a direct child of the merged
// root and receives its colliders at once; bone chains follow in a second sub-pass
// once every node of that source rig exists.
func (p *Pass2Output) Synthesize() *SynthesisOutput {
	m := p.ctx
	out := &SynthesisOutput{ctx: m}
	for _, src := range m.sources() {
		out.Created = append(out.Created, m.synthesizeFrom(src)...)
	}
	return out
}

func (m *MigrationContext) synthesizeFrom(src sourceRig) []*Node {
	var pending []pendingNode

	for _, srcNode := range src.idx.Nodes() {
		if m.classifier.isExcludedFromSynthesis(srcNode) {
			continue
		}
		if m.mergedIdx.Contains(srcNode.Key()) {
			continue
		}
		if !m.isNeeded(srcNode) {
			m.Report.UnneededSkipped++
			continue
		}
		if m.wouldConflict(srcNode) {
			log.Printf("[MERGE] not creating %s from %s rig: its bone chain region is already driven", srcNode.Name, src.role)
			m.Report.ConflictsSkipped++
			continue
		}

		created := NewNode(srcNode.Name)
		m.Merged.Root.AddChild(created)
		m.mergedIdx.insert(created)
		m.Report.SynthesizedNodes = append(m.Report.SynthesizedNodes, created.Name)
		log.Printf("[MERGE] created %s under %s (from %s rig)", created.Name, m.Merged.Root.Name, src.role)

		for _, c := range ComponentsOf[*Collider](srcNode) {
			m.migrateCollider(c, created, src.role)
		}
		pending = append(pending, pendingNode{source: srcNode, node: created})
	}

	for _, pn := range pending {
		if !m.isNeeded(pn.source) || m.wouldConflict(pn.source) {
			continue
		}
		for _, chain := range ComponentsOf[*BoneChain](pn.source) {
			m.migrateChain(chain, pn.node, src.role)
		}
	}

	nodes := make([]*Node, 0, len(pending))
	for _, pn := range pending {
		if len(pn.node.Components) == 0 && !referencedBy(m.Merged.Root, pn.node) {
			m.discard(pn.node)
			continue
		}
		nodes = append(nodes, pn.node)
	}
	return nodes
}

// awaitsSynthesis reports whether n is a source node the synthesizer will try
// to create: not excluded, absent from the merged rig and needed
func (m *MigrationContext) awaitsSynthesis(n *Node) bool {
	return !m.classifier.isExcludedFromSynthesis(n) &&
		!m.mergedIdx.Contains(n.Key()) &&
		m.isNeeded(n)
}

// discard removes a created node that ended up with nothing attached
func (m *MigrationContext) discard(n *Node) {
	n.SetParent(nil)
	m.mergedIdx.remove(n)
	names := m.Report.SynthesizedNodes
	for i := len(names) - 1; i >= 0; i-- {
		if names[i] == n.Name {
			m.Report.SynthesizedNodes = append(names[:i:i], names[i+1:]...)
			break
		}
	}
	m.Report.DiscardedNodes++
	log.Printf("[MERGE] removed %s: every bone chain it was created for was rejected", n.Name)
}

// referencedBy reports whether a collider, bone chain or rotation constraint
// under root points at n
func referencedBy(root, n *Node) bool {
	found := false
	Walk(root, true, func(owner *Node) bool {
		for _, comp := range owner.Components {
			switch c := comp.(type) {
			case *Collider:
				found = c.Root == n
			case *BoneChain:
				found = c.Root == n
			case *RotationConstraint:
				for _, s := range c.Sources {
					if s.Node == n {
						found = true
					}
				}
			}
			if found {
				return false
			}
		}
		return true
	})
	return found
}

// isNeeded reports whether a collider or bone chain on n is anchored at a node
// that exists on the merged rig
func (m *MigrationContext) isNeeded(n *Node) bool {
	for _, comp := range n.Components {
		var root *Node
		switch c := comp.(type) {
		case *BoneChain:
			root = c.Root
		case *Collider:
			root = c.Root
		default:
			continue
		}
		if root != nil && m.mergedIdx.Resolve(root) != nil {
			return true
		}
	}
	return false
}

// wouldConflict reports whether one of n's bone chains is rooted at a merged node
// whose region already has a bone chain. Chains on synthesized nodes sit under
// the merged root, so they count through their root, not their owner.
func (m *MigrationContext) wouldConflict(n *Node) bool {
	for _, chain := range ComponentsOf[*BoneChain](n) {
		target := m.mergedIdx.Resolve(chain.Root)
		if target == nil {
			continue
		}
		if chainDrivingRegion(m.Merged.Root, target, nil) != nil {
			return true
		}
	}
	return false
}
