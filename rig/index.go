package rig

// NameIndex maps node keys to nodes of one rig.
//
// The index is built by a pre-order walk over the whole tree, inactive nodes
// included. When several nodes share a key the first one visited wins, so a
// lookup returns the same node a linear pre-order search would.
type NameIndex struct {
	root  *Node
	nodes map[NodeKey]*Node
	order []*Node
}

// BuildIndex indexes every node under root
func BuildIndex(root *Node) *NameIndex {
	idx := &NameIndex{
		root:  root,
		nodes: make(map[NodeKey]*Node),
	}
	Walk(root, true, func(n *Node) bool {
		idx.order = append(idx.order, n)
		if _, seen := idx.nodes[n.Key()]; !seen {
			idx.nodes[n.Key()] = n
		}
		return true
	})
	return idx
}

// Root returns the indexed root
func (idx *NameIndex) Root() *Node {
	return idx.root
}

// Lookup returns the first node in pre-order whose key equals key
func (idx *NameIndex) Lookup(key NodeKey) (*Node, bool) {
	if idx == nil || key == "" {
		return nil, false
	}
	n, ok := idx.nodes[key]
	return n, ok
}

// Find is Lookup by plain name that returns nil on a miss
func (idx *NameIndex) Find(name string) *Node {
	n, _ := idx.Lookup(NodeKey(name))
	return n
}

// Resolve maps a node from another rig onto this rig by key.
// A nil node or a miss resolves to nil.
func (idx *NameIndex) Resolve(n *Node) *Node {
	if n == nil {
		return nil
	}
	return idx.Find(n.Name)
}

// Contains reports whether a node with key exists
func (idx *NameIndex) Contains(key NodeKey) bool {
	_, ok := idx.Lookup(key)
	return ok
}

// Nodes returns every indexed node in pre-order
func (idx *NameIndex) Nodes() []*Node {
	return idx.order
}

// Len returns the number of indexed nodes
func (idx *NameIndex) Len() int {
	return len(idx.order)
}

// insert records a node created after the index was built. Created nodes are
// appended as the last child of the root, which puts them last in pre-order,
// so an existing key keeps its current match.
func (idx *NameIndex) insert(n *Node) bool {
	idx.order = append(idx.order, n)
	if _, seen := idx.nodes[n.Key()]; seen {
		return false
	}
	idx.nodes[n.Key()] = n
	return true
}

// remove drops n from the index and lets the next node in pre-order with the
// same key take its place
func (idx *NameIndex) remove(n *Node) {
	for i, o := range idx.order {
		if o == n {
			idx.order = append(idx.order[:i:i], idx.order[i+1:]...)
			break
		}
	}
	if idx.nodes[n.Key()] != n {
		return
	}
	delete(idx.nodes, n.Key())
	for _, o := range idx.order {
		if o.Key() == n.Key() {
			idx.nodes[o.Key()] = o
			break
		}
	}
}

// FindByName walks root in pre-order, inactive nodes included, and returns the
// first node named name. It is the unindexed form of NameIndex.Find.
func FindByName(root *Node, name string) *Node {
	var found *Node
	Walk(root, true, func(n *Node) bool {
		if n.Name == name {
			found = n
			return false
		}
		return true
	})
	return found
}
