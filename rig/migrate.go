package rig

import "log"

// MigrationContext is the transient state of one migration run: the merged rig,
// the two source rigs and a name index for each, built once at the start.
type MigrationContext struct {
	Merged *Rig
	Head   *Rig
	Body   *Rig
	Report *MergeReport

	mergedIdx  *NameIndex
	headIdx    *NameIndex
	bodyIdx    *NameIndex
	classifier *Classifier

	// merged nodes that bone chains on body nodes awaiting synthesis will be
	// rooted at; set for the duration of Pass 2
	reserved []*Node
}

// sourceRig pairs a source rig with its index
type sourceRig struct {
	role Role
	rig  *Rig
	idx  *NameIndex
}

// NewMigrationContext indexes the three rigs. report may be nil.
func NewMigrationContext(merged, head, body *Rig, report *MergeReport) *MigrationContext {
	if report == nil {
		report = &MergeReport{}
	}
	return &MigrationContext{
		Merged:     merged,
		Head:       head,
		Body:       body,
		Report:     report,
		mergedIdx:  BuildIndex(merged.Root),
		headIdx:    BuildIndex(head.Root),
		bodyIdx:    BuildIndex(body.Root),
		classifier: NewClassifier(),
	}
}

// MergedIndex returns the merged rig's name index
func (m *MigrationContext) MergedIndex() *NameIndex {
	return m.mergedIdx
}

// sources returns the source rigs in precedence order: body first, then head
func (m *MigrationContext) sources() []sourceRig {
	return []sourceRig{
		{role: RoleBody, rig: m.Body, idx: m.bodyIdx},
		{role: RoleHead, rig: m.Head, idx: m.headIdx},
	}
}

// Pass1Output is the merged rig after colliders and rotation constraints were migrated.
// It is the only way to reach Pass 2.
type Pass1Output struct {
	ctx        *MigrationContext
	candidates []*Node
}

// Pass2Output is the merged rig after bone chains were migrated.
// It is the only way to reach the synthesizer.
type Pass2Output struct {
	ctx *MigrationContext
}

// Context returns the run's context
func (p *Pass2Output) Context() *MigrationContext {
	return p.ctx
}

// Pass1 clones every collider and rotation constraint found on same-named source
// nodes onto the merged rig's non mesh-bearing nodes.
func (m *MigrationContext) Pass1() *Pass1Output {
	var candidates []*Node
	for _, n := range m.Merged.Root.Descendants(false) {
		if !IsMeshBearing(n) {
			candidates = append(candidates, n)
		}
	}

	for _, target := range candidates {
		for _, src := range m.sources() {
			srcNode, ok := src.idx.Lookup(target.Key())
			if !ok {
				continue
			}
			for _, comp := range srcNode.Components {
				switch c := comp.(type) {
				case *Collider:
					m.migrateCollider(c, target, src.role)
				case *RotationConstraint:
					m.migrateConstraint(c, target, src.role)
				}
			}
		}
	}

	return &Pass1Output{ctx: m, candidates: candidates}
}

// Pass2 clones bone chains. Every collider from Pass 1 already exists, so a chain
// can pick up colliders on nodes visited after its own.
//
// Regions a synthesized body node will drive are reserved up front: the body
// chain is attached only after synthesis, and head chains must not claim those
// regions first.
func (p *Pass1Output) Pass2() *Pass2Output {
	m := p.ctx
	m.reserved = m.pendingBodyRegions()
	defer func() { m.reserved = nil }()

	for _, target := range p.candidates {
		for _, src := range m.sources() {
			srcNode, ok := src.idx.Lookup(target.Key())
			if !ok {
				continue
			}
			for _, chain := range ComponentsOf[*BoneChain](srcNode) {
				m.migrateChain(chain, target, src.role)
			}
		}
	}
	return &Pass2Output{ctx: m}
}

func (m *MigrationContext) migrateCollider(src *Collider, target *Node, role Role) *Collider {
	clone := remapCollider(src, m.mergedIdx)
	if src.Root != nil && clone.Root == nil {
		m.Report.DroppedReferences++
	}
	if hasEquivalentCollider(target, clone, role) {
		m.Report.EquivalentsSkipped++
		return nil
	}
	attachClone(target, clone, role)
	m.Report.CollidersCloned++
	return clone
}

func (m *MigrationContext) migrateConstraint(src *RotationConstraint, target *Node, role Role) *RotationConstraint {
	clone := remapConstraint(src, m.mergedIdx)
	m.Report.DroppedReferences += len(src.Sources) - len(clone.Sources)
	for _, existing := range ComponentsOf[*RotationConstraint](target) {
		if existing.Origin() != role {
			m.Report.EquivalentsSkipped++
			return nil
		}
	}
	attachClone(target, clone, role)
	m.Report.ConstraintsCloned++
	return clone
}

func (m *MigrationContext) migrateChain(src *BoneChain, target *Node, role Role) *BoneChain {
	clone := remapChain(src, m.mergedIdx)
	if src.Root != nil && clone.Root == nil {
		m.Report.DroppedReferences++
	}
	m.Report.DroppedReferences += countNonNil(src.Colliders) - len(clone.Colliders)

	region := clone.Root
	if region == nil {
		region = target
	}
	if role != RoleBody {
		if r := m.reservedRegion(target, clone.Root); r != nil {
			log.Printf("[MERGE] skipping %s bone chain on %s: region %s belongs to a body node awaiting synthesis",
				role, target.Name, r.Name)
			m.Report.EquivalentsSkipped++
			return nil
		}
	}
	if other := chainDrivingRegion(m.Merged.Root, region, func(c *BoneChain) bool { return c.Origin() != role }); other != nil {
		log.Printf("[MERGE] skipping %s bone chain on %s: region %s already driven from %s",
			role, target.Name, region.Name, other.Owner().Name)
		m.Report.EquivalentsSkipped++
		return nil
	}
	attachClone(target, clone, role)
	m.Report.ChainsCloned++
	return clone
}

// pendingBodyRegions returns the merged roots of the bone chains on body nodes
// the synthesizer will create
func (m *MigrationContext) pendingBodyRegions() []*Node {
	var regions []*Node
	for _, srcNode := range m.bodyIdx.Nodes() {
		if !m.awaitsSynthesis(srcNode) || m.wouldConflict(srcNode) {
			continue
		}
		for _, chain := range ComponentsOf[*BoneChain](srcNode) {
			if target := m.mergedIdx.Resolve(chain.Root); target != nil {
				regions = append(regions, target)
			}
		}
	}
	return regions
}

// reservedRegion returns the reserved region containing any of nodes, or nil
func (m *MigrationContext) reservedRegion(nodes ...*Node) *Node {
	for _, r := range m.reserved {
		for _, n := range nodes {
			if n != nil && r.IsAncestorOf(n) {
				return r
			}
		}
	}
	return nil
}

func attachClone(target *Node, c Component, role Role) {
	c.setOrigin(role)
	target.Attach(c)
}

// hasEquivalentCollider reports whether target already holds a collider from
// another rig anchored at the same merged node
func hasEquivalentCollider(target *Node, clone *Collider, role Role) bool {
	for _, existing := range ComponentsOf[*Collider](target) {
		if existing.Origin() != role && existing.Root == clone.Root {
			return true
		}
	}
	return false
}

// chainDrivingRegion returns the first bone chain under root that drives region:
// its owner or its root lies in region's subtree. match filters candidates.
func chainDrivingRegion(root, region *Node, match func(*BoneChain) bool) *BoneChain {
	var found *BoneChain
	Walk(root, true, func(n *Node) bool {
		for _, c := range ComponentsOf[*BoneChain](n) {
			if match != nil && !match(c) {
				continue
			}
			if region.IsAncestorOf(n) || (c.Root != nil && region.IsAncestorOf(c.Root)) {
				found = c
				return false
			}
		}
		return true
	})
	return found
}

// remapCollider returns an unattached copy of src whose root references the merged rig
func remapCollider(src *Collider, idx *NameIndex) *Collider {
	clone := src.clone().(*Collider)
	clone.Root = idx.Resolve(src.Root)
	return clone
}

// remapConstraint returns an unattached copy of src whose source list holds only
// the sources that resolve on the merged rig, in their original order
func remapConstraint(src *RotationConstraint, idx *NameIndex) *RotationConstraint {
	clone := src.clone().(*RotationConstraint)
	clone.Sources = clone.Sources[:0:0]
	for _, s := range src.Sources {
		if s.Node == nil {
			continue
		}
		if target := idx.Resolve(s.Node); target != nil {
			clone.Sources = append(clone.Sources, ConstraintSource{Node: target, Weight: s.Weight})
		}
	}
	return clone
}

// remapChain returns an unattached copy of src with its root and collider list
// moved onto the merged rig. Colliders are found through the node named like the
// collider's owner; a node without a collider drops the entry.
func remapChain(src *BoneChain, idx *NameIndex) *BoneChain {
	clone := src.clone().(*BoneChain)
	clone.Root = idx.Resolve(src.Root)
	if len(src.Colliders) == 0 {
		return clone
	}
	clone.Colliders = nil
	for _, c := range src.Colliders {
		if c == nil || c.Owner() == nil {
			continue
		}
		if merged := FirstComponent[*Collider](idx.Find(c.Owner().Name)); merged != nil {
			clone.Colliders = append(clone.Colliders, merged)
		}
	}
	return clone
}

func countNonNil(colliders []*Collider) int {
	n := 0
	for _, c := range colliders {
		if c != nil && c.Owner() != nil {
			n++
		}
	}
	return n
}
