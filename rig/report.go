package rig

import "time"

// MergeReport summarizes one merge run
type MergeReport struct {
	StartedAt  time.Time `json:"startedAt"`
	Duration   float64   `json:"durationSeconds"`
	HeadAsset  string    `json:"headAsset"`
	BodyAsset  string    `json:"bodyAsset"`
	MergedPath string    `json:"mergedPath"`
	OutputPath string    `json:"outputPath,omitempty"`
	ExitCode   int       `json:"exitCode"`
	Error      string    `json:"error,omitempty"`

	CollidersCloned    int `json:"collidersCloned"`
	ConstraintsCloned  int `json:"constraintsCloned"`
	ChainsCloned       int `json:"chainsCloned"`
	EquivalentsSkipped int `json:"equivalentsSkipped"`
	DroppedReferences  int `json:"droppedReferences"`

	SynthesizedNodes  []string `json:"synthesizedNodes"`
	DiscardedNodes    int      `json:"discardedNodes"`
	UnneededSkipped   int      `json:"unneededSkipped"`
	ConflictsSkipped  int      `json:"conflictsSkipped"`
	MaterialsAssigned int      `json:"materialsAssigned"`
	BlendshapesCopied int      `json:"blendshapesCopied"`
	DescriptorCopied  bool     `json:"descriptorCopied"`
	EyesAssigned      bool     `json:"eyesAssigned"`
	ProbeAnchor       string   `json:"probeAnchor,omitempty"`
	HumanoidSlots     int      `json:"humanoidSlots"`
}

// Succeeded reports whether the run finished without an error
func (r *MergeReport) Succeeded() bool {
	return r != nil && r.Error == ""
}
