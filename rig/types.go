package rig

// NodeKey is the join key used to match nodes across rigs.
// Two nodes correspond when their keys are equal; nothing else is compared.
type NodeKey string

// Vec3 is an (x, y, z) triple. It serializes as a three element list.
type Vec3 [3]float64

// Transform is a node's local transform. Rotation holds Euler angles in degrees.
type Transform struct {
	Position Vec3 `yaml:"position" json:"position"`
	Rotation Vec3 `yaml:"rotation" json:"rotation"`
	Scale    Vec3 `yaml:"scale" json:"scale"`
}

// IdentityTransform returns a transform with unit scale and no offset
func IdentityTransform() Transform {
	return Transform{Scale: Vec3{1, 1, 1}}
}

// Role identifies which rig a node or component came from
type Role string

const (
	RoleHead   Role = "head"
	RoleBody   Role = "body"
	RoleMerged Role = "merged"
)

// Node is one element of a rig tree.
type Node struct {
	Name       string
	Active     bool
	Transform  Transform
	Components []Component

	parent   *Node
	children []*Node
}

// NewNode creates an active node with an identity transform
func NewNode(name string) *Node {
	return &Node{
		Name:      name,
		Active:    true,
		Transform: IdentityTransform(),
	}
}

// Key returns the node's join key
func (n *Node) Key() NodeKey {
	return NodeKey(n.Name)
}

// Parent returns the parent node, or nil for a root
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the ordered children. The slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// AddChild appends child as the last child of n, detaching it from any previous parent
func (n *Node) AddChild(child *Node) {
	child.SetParent(n)
}

// SetParent moves n under parent. A nil parent detaches n.
func (n *Node) SetParent(parent *Node) {
	if n.parent != nil {
		siblings := n.parent.children
		for i, c := range siblings {
			if c == n {
				n.parent.children = append(siblings[:i:i], siblings[i+1:]...)
				break
			}
		}
	}
	n.parent = parent
	if parent != nil {
		parent.children = append(parent.children, n)
	}
}

// ActiveInHierarchy reports whether n and all of its ancestors are active
func (n *Node) ActiveInHierarchy() bool {
	for cur := n; cur != nil; cur = cur.parent {
		if !cur.Active {
			return false
		}
	}
	return true
}

// Attach adds c to the node and records the node as its owner
func (n *Node) Attach(c Component) {
	c.setOwner(n)
	n.Components = append(n.Components, c)
}

// Detach removes c from the node. It reports whether c was found.
func (n *Node) Detach(c Component) bool {
	for i, existing := range n.Components {
		if existing == c {
			n.Components = append(n.Components[:i:i], n.Components[i+1:]...)
			c.setOwner(nil)
			return true
		}
	}
	return false
}

// Path returns the slash separated names from the root down to n
func (n *Node) Path() string {
	if n.parent == nil {
		return n.Name
	}
	return n.parent.Path() + "/" + n.Name
}

// Descendants returns n and every node below it in pre-order.
// Inactive subtrees are skipped unless includeInactive is set.
func (n *Node) Descendants(includeInactive bool) []*Node {
	var out []*Node
	Walk(n, includeInactive, func(node *Node) bool {
		out = append(out, node)
		return true
	})
	return out
}

// Walk visits root and its subtree in pre-order. Returning false from fn stops the walk.
func Walk(root *Node, includeInactive bool, fn func(*Node) bool) bool {
	if root == nil {
		return true
	}
	if !includeInactive && !root.Active {
		return true
	}
	if !fn(root) {
		return false
	}
	for _, c := range root.children {
		if !Walk(c, includeInactive, fn) {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether n is other or one of other's ancestors
func (n *Node) IsAncestorOf(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Rig is a rooted node tree together with the asset it was imported from.
type Rig struct {
	Role  Role
	Root  *Node
	Asset string
	Path  string // document path the rig was loaded from, if any
}

// NewRig wraps root as a rig with the given role
func NewRig(role Role, root *Node) *Rig {
	return &Rig{Role: role, Root: root}
}

// HumanoidBones returns the humanoid bone set of the rig's root animator.
// A rig without an animator has an empty set.
func (r *Rig) HumanoidBones() map[NodeKey]bool {
	if r == nil || r.Root == nil {
		return map[NodeKey]bool{}
	}
	if a := FirstComponent[*Animator](r.Root); a != nil {
		return a.BoneSet()
	}
	return map[NodeKey]bool{}
}
