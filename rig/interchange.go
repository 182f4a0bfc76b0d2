package rig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// InterchangeFileName is the interchange file written into the temp directory
const InterchangeFileName = "transform.json"

// XYZ is a vector in the interchange file's object form
type XYZ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func toXYZ(v Vec3) XYZ {
	return XYZ{X: v[0], Y: v[1], Z: v[2]}
}

// TransformData is the placement of one source rig handed to the merge tool
type TransformData struct {
	Position XYZ      `json:"position"`
	Rotation XYZ      `json:"rotation"`
	Scale    XYZ      `json:"scale"`
	Meshes   []string `json:"meshes"`
}

// AvatarsData is the interchange record read by the merge tool
type AvatarsData struct {
	HeadAvatarMetadata TransformData `json:"headAvatarMetadata"`
	BodyAvatarMetadata TransformData `json:"bodyAvatarMetadata"`
}

// DescribeRig records a rig's world position, Euler rotation, local scale and
// the shared mesh names of its active skinned meshes
func DescribeRig(r *Rig) TransformData {
	td := TransformData{
		Position: toXYZ(WorldPosition(r.Root)),
		Rotation: toXYZ(r.Root.Transform.Rotation),
		Scale:    toXYZ(r.Root.Transform.Scale),
		Meshes:   MeshNames(r),
	}
	return td
}

// MeshNames lists the mesh names of the active skinned meshes in pre-order
func MeshNames(r *Rig) []string {
	names := []string{}
	for _, sm := range skinnedMeshes(r.Root) {
		if sm.Mesh != "" {
			names = append(names, sm.Mesh)
		}
	}
	return names
}

// NewAvatarsData builds the interchange record for a head and body rig
func NewAvatarsData(head, body *Rig) AvatarsData {
	return AvatarsData{
		HeadAvatarMetadata: DescribeRig(head),
		BodyAvatarMetadata: DescribeRig(body),
	}
}

// WriteInterchange writes the interchange record as indented JSON
func WriteInterchange(path string, data AvatarsData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating interchange directory: %w", err)
	}

	payload, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling interchange data: %w", err)
	}

	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("writing interchange file: %w", err)
	}
	return nil
}

// ReadInterchange loads an interchange record
func ReadInterchange(path string) (*AvatarsData, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading interchange file: %w", err)
	}

	var data AvatarsData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("parsing interchange file: %w", err)
	}
	return &data, nil
}
