package rig

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// nodeDoc is the serialized form of a node. The root may also carry the asset path.
type nodeDoc struct {
	Name       string         `yaml:"name" json:"name"`
	Asset      string         `yaml:"asset,omitempty" json:"asset,omitempty"`
	Active     *bool          `yaml:"active,omitempty" json:"active,omitempty"`
	Transform  *Transform     `yaml:"transform,omitempty" json:"transform,omitempty"`
	Components []componentDoc `yaml:"components,omitempty" json:"components,omitempty"`
	Children   []nodeDoc      `yaml:"children,omitempty" json:"children,omitempty"`
}

// componentDoc is the serialized form of every component variant, tagged by Type.
// Node references are stored as node names.
type componentDoc struct {
	Type   ComponentKind `yaml:"type" json:"type"`
	Origin Role          `yaml:"origin,omitempty" json:"origin,omitempty"`

	Humanoid map[string]string `yaml:"humanoid,omitempty" json:"humanoid,omitempty"`

	Mesh        string       `yaml:"mesh,omitempty" json:"mesh,omitempty"`
	Materials   []string     `yaml:"materials,omitempty" json:"materials,omitempty"`
	Blendshapes []Blendshape `yaml:"blendshapes,omitempty" json:"blendshapes,omitempty"`
	ProbeAnchor string       `yaml:"probeAnchor,omitempty" json:"probeAnchor,omitempty"`
	Bounds      *Bounds      `yaml:"bounds,omitempty" json:"bounds,omitempty"`

	Root      string      `yaml:"root,omitempty" json:"root,omitempty"`
	Colliders []string    `yaml:"colliders,omitempty" json:"colliders,omitempty"`
	Sources   []sourceDoc `yaml:"sources,omitempty" json:"sources,omitempty"`

	VisemeMesh string `yaml:"visemeMesh,omitempty" json:"visemeMesh,omitempty"`
	LeftEye    string `yaml:"leftEye,omitempty" json:"leftEye,omitempty"`
	RightEye   string `yaml:"rightEye,omitempty" json:"rightEye,omitempty"`

	Shape  map[string]any `yaml:"shape,omitempty" json:"shape,omitempty"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

type sourceDoc struct {
	Node   string  `yaml:"node" json:"node"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// ParseRig decodes a rig document. JSON documents are accepted as well.
func ParseRig(data []byte, role Role) (*Rig, error) {
	var doc nodeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rig document: %w", err)
	}
	if doc.Name == "" {
		return nil, errors.New("rig document has no root name")
	}

	var resolvers []func(idx *NameIndex)
	root, err := buildNode(&doc, role, &resolvers)
	if err != nil {
		return nil, err
	}

	idx := BuildIndex(root)
	for _, resolve := range resolvers {
		resolve(idx)
	}

	return &Rig{Role: role, Root: root, Asset: doc.Asset}, nil
}

// LoadRig reads and decodes a rig document. A relative asset path is resolved
// against the document's directory.
func LoadRig(path string, role Role) (*Rig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("rig document not found: %s", path)
		}
		return nil, fmt.Errorf("reading rig document: %w", err)
	}

	r, err := ParseRig(data, role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.Path = path
	if r.Asset != "" && !filepath.IsAbs(r.Asset) {
		r.Asset = filepath.Join(filepath.Dir(path), r.Asset)
	}
	if r.Asset != "" {
		if abs, err := filepath.Abs(r.Asset); err == nil {
			r.Asset = abs
		}
	}
	return r, nil
}

// MarshalRig encodes a rig as a YAML document
func MarshalRig(r *Rig) ([]byte, error) {
	if r == nil || r.Root == nil {
		return nil, errors.New("empty rig")
	}
	doc := encodeNode(r.Root)
	doc.Asset = r.Asset
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling rig document: %w", err)
	}
	return data, nil
}

// SaveRig writes a rig document to path
func SaveRig(path string, r *Rig) error {
	data, err := MarshalRig(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating rig directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing rig document: %w", err)
	}
	return nil
}

func buildNode(doc *nodeDoc, role Role, resolvers *[]func(*NameIndex)) (*Node, error) {
	n := NewNode(doc.Name)
	if doc.Active != nil {
		n.Active = *doc.Active
	}
	if doc.Transform != nil {
		n.Transform = *doc.Transform
		if n.Transform.Scale == (Vec3{}) {
			n.Transform.Scale = Vec3{1, 1, 1}
		}
	}

	for i := range doc.Components {
		cd := &doc.Components[i]
		c, err := decodeComponent(cd, n, resolvers)
		if err != nil {
			return nil, fmt.Errorf("node %s component %d: %w", doc.Name, i, err)
		}
		origin := cd.Origin
		if origin == "" {
			origin = role
		}
		c.setOrigin(origin)
		n.Attach(c)
	}

	for i := range doc.Children {
		child, err := buildNode(&doc.Children[i], role, resolvers)
		if err != nil {
			return nil, err
		}
		n.AddChild(child)
	}
	return n, nil
}

// ref returns a resolver step that assigns the node named name to *dst
func ref(owner *Node, field, name string, dst **Node) func(*NameIndex) {
	return func(idx *NameIndex) {
		if name == "" {
			return
		}
		*dst = idx.Find(name)
		if *dst == nil {
			log.Printf("Warning: %s.%s references unknown node %q", owner.Name, field, name)
		}
	}
}

func decodeComponent(cd *componentDoc, owner *Node, resolvers *[]func(*NameIndex)) (Component, error) {
	switch cd.Type {
	case KindAnimator:
		a := &Animator{Humanoid: make(map[string]string, len(cd.Humanoid))}
		for slot, bone := range cd.Humanoid {
			a.Humanoid[slot] = bone
		}
		return a, nil

	case KindSkinnedMesh:
		sm := &SkinnedMesh{
			Mesh:        cd.Mesh,
			Materials:   cd.Materials,
			Blendshapes: cd.Blendshapes,
			Bounds:      cd.Bounds,
		}
		if sm.Mesh == "" {
			sm.Mesh = owner.Name
		}
		*resolvers = append(*resolvers, ref(owner, "probeAnchor", cd.ProbeAnchor, &sm.ProbeAnchor))
		return sm, nil

	case KindMeshRenderer:
		return &MeshRenderer{Mesh: cd.Mesh, Materials: cd.Materials}, nil

	case KindCamera:
		return &Camera{Params: cd.Params}, nil

	case KindLight:
		return &Light{Params: cd.Params}, nil

	case KindCollider:
		c := &Collider{Shape: cd.Shape}
		*resolvers = append(*resolvers, ref(owner, "root", cd.Root, &c.Root))
		return c, nil

	case KindBoneChain:
		b := &BoneChain{Params: cd.Params}
		*resolvers = append(*resolvers, ref(owner, "root", cd.Root, &b.Root))
		names := cd.Colliders
		*resolvers = append(*resolvers, func(idx *NameIndex) {
			for _, name := range names {
				c := FirstComponent[*Collider](idx.Find(name))
				if c == nil {
					log.Printf("Warning: %s bone chain references %q which has no collider", owner.Name, name)
					continue
				}
				b.Colliders = append(b.Colliders, c)
			}
		})
		return b, nil

	case KindRotationConstraint:
		rc := &RotationConstraint{Params: cd.Params}
		sources := cd.Sources
		*resolvers = append(*resolvers, func(idx *NameIndex) {
			for _, s := range sources {
				n := idx.Find(s.Node)
				if n == nil {
					log.Printf("Warning: %s rotation constraint references unknown node %q", owner.Name, s.Node)
				}
				rc.Sources = append(rc.Sources, ConstraintSource{Node: n, Weight: s.Weight})
			}
		})
		return rc, nil

	case KindAvatarDescriptor:
		d := &AvatarDescriptor{Params: cd.Params}
		*resolvers = append(*resolvers,
			ref(owner, "visemeMesh", cd.VisemeMesh, &d.VisemeMesh),
			ref(owner, "leftEye", cd.LeftEye, &d.LeftEye),
			ref(owner, "rightEye", cd.RightEye, &d.RightEye),
		)
		return d, nil

	case "":
		return nil, errors.New("component type is required")
	default:
		return nil, fmt.Errorf("unknown component type %q", cd.Type)
	}
}

func nodeName(n *Node) string {
	if n == nil {
		return ""
	}
	return n.Name
}

func encodeNode(n *Node) nodeDoc {
	doc := nodeDoc{Name: n.Name}
	if !n.Active {
		inactive := false
		doc.Active = &inactive
	}
	if n.Transform != IdentityTransform() {
		t := n.Transform
		doc.Transform = &t
	}
	for _, c := range n.Components {
		doc.Components = append(doc.Components, encodeComponent(c))
	}
	for _, child := range n.children {
		doc.Children = append(doc.Children, encodeNode(child))
	}
	return doc
}

func encodeComponent(c Component) componentDoc {
	cd := componentDoc{Type: c.Kind(), Origin: c.Origin()}
	switch v := c.(type) {
	case *Animator:
		cd.Humanoid = v.Humanoid
	case *SkinnedMesh:
		cd.Mesh = v.Mesh
		cd.Materials = v.Materials
		cd.Blendshapes = v.Blendshapes
		cd.ProbeAnchor = nodeName(v.ProbeAnchor)
		cd.Bounds = v.Bounds
	case *MeshRenderer:
		cd.Mesh = v.Mesh
		cd.Materials = v.Materials
	case *Camera:
		cd.Params = v.Params
	case *Light:
		cd.Params = v.Params
	case *Collider:
		cd.Root = nodeName(v.Root)
		cd.Shape = v.Shape
	case *BoneChain:
		cd.Root = nodeName(v.Root)
		for _, col := range v.Colliders {
			if col != nil && col.Owner() != nil {
				cd.Colliders = append(cd.Colliders, col.Owner().Name)
			}
		}
		cd.Params = v.Params
	case *RotationConstraint:
		for _, s := range v.Sources {
			cd.Sources = append(cd.Sources, sourceDoc{Node: nodeName(s.Node), Weight: s.Weight})
		}
		cd.Params = v.Params
	case *AvatarDescriptor:
		cd.VisemeMesh = nodeName(v.VisemeMesh)
		cd.LeftEye = nodeName(v.LeftEye)
		cd.RightEye = nodeName(v.RightEye)
		cd.Params = v.Params
	}
	return cd
}
