package rig

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
)

// Pipeline drives one head swap: interchange file, merge tool, output
// discovery, then reconciliation of the merged rig
type Pipeline struct {
	Config   *Config
	Tool     *MergeTool
	Importer Importer
}

// Result is the outcome of a pipeline run
type Result struct {
	Merged *Rig
	Report *MergeReport
}

// NewPipeline creates a pipeline. A nil importer reads rig documents.
func NewPipeline(config *Config, tool *MergeTool, importer Importer) *Pipeline {
	if importer == nil {
		importer = DocumentImporter{}
	}
	return &Pipeline{Config: config, Tool: tool, Importer: importer}
}

// LoadSources imports the head and body rigs
func (p *Pipeline) LoadSources(headPath, bodyPath string) (head, body *Rig, err error) {
	head, err = p.Importer.Import(headPath, RoleHead)
	if err != nil {
		return nil, nil, fmt.Errorf("loading head rig: %w", err)
	}
	body, err = p.Importer.Import(bodyPath, RoleBody)
	if err != nil {
		return nil, nil, fmt.Errorf("loading body rig: %w", err)
	}
	return head, body, nil
}

// WriteInterchange writes the interchange file for the two sources and returns its path
func (p *Pipeline) WriteInterchange(head, body *Rig) (string, error) {
	path := p.Config.InterchangePath()
	if err := WriteInterchange(path, NewAvatarsData(head, body)); err != nil {
		return "", err
	}
	log.Printf("[MERGE] Wrote interchange file %s", path)
	return path, nil
}

// Run performs the whole merge. Tool failures abort before the merged rig is
// touched. The report is returned even on failure.
func (p *Pipeline) Run(headPath, bodyPath string) (*Result, error) {
	report := &MergeReport{StartedAt: time.Now()}
	res := &Result{Report: report}
	defer func() { report.Duration = time.Since(report.StartedAt).Seconds() }()

	head, body, err := p.LoadSources(headPath, bodyPath)
	if err != nil {
		return res, p.fail(report, err)
	}
	report.HeadAsset = assetPath(head)
	report.BodyAsset = assetPath(body)

	if p.Tool == nil {
		return res, p.fail(report, &ConfigError{Field: "executable", Reason: "no merge tool configured"})
	}

	interchange, err := p.WriteInterchange(head, body)
	if err != nil {
		return res, p.fail(report, err)
	}

	if err := p.Tool.Run(report.HeadAsset, report.BodyAsset, interchange); err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			report.ExitCode = toolErr.ExitCode
		}
		return res, p.fail(report, err)
	}

	output, err := MostRecentOutput(p.Config.Paths.TempDir, p.Config.Paths.OutputPattern)
	if err != nil {
		return res, p.fail(report, err)
	}
	log.Printf("[MERGE] Using merged asset %s", output)

	merged, err := p.Importer.Import(output, RoleMerged)
	if err != nil {
		return res, p.fail(report, err)
	}
	res.Merged = merged

	if err := Reconcile(merged, head, body, report); err != nil {
		return res, p.fail(report, err)
	}
	if err := p.save(merged, output, report); err != nil {
		return res, p.fail(report, err)
	}
	return res, nil
}

// ReconcileFiles skips the merge tool and reconciles an existing merged rig
func (p *Pipeline) ReconcileFiles(mergedPath, headPath, bodyPath string) (*Result, error) {
	report := &MergeReport{StartedAt: time.Now()}
	res := &Result{Report: report}
	defer func() { report.Duration = time.Since(report.StartedAt).Seconds() }()

	head, body, err := p.LoadSources(headPath, bodyPath)
	if err != nil {
		return res, p.fail(report, err)
	}
	report.HeadAsset = assetPath(head)
	report.BodyAsset = assetPath(body)

	merged, err := p.Importer.Import(mergedPath, RoleMerged)
	if err != nil {
		return res, p.fail(report, err)
	}
	res.Merged = merged

	if err := Reconcile(merged, head, body, report); err != nil {
		return res, p.fail(report, err)
	}
	if err := p.save(merged, mergedPath, report); err != nil {
		return res, p.fail(report, err)
	}
	return res, nil
}

// Reconcile re-applies everything from the two source rigs onto merged.
// Stages run in a fixed order; the migration passes can only be reached
// through their predecessors' outputs.
func Reconcile(merged, head, body *Rig, report *MergeReport) error {
	if report == nil {
		report = &MergeReport{}
	}
	report.MergedPath = merged.Path

	report.HumanoidSlots = ApplyHumanoidSettings(head, body, merged)
	CopyAvatarDescriptor(head, merged, report)
	report.MaterialsAssigned = CopyMaterials(head, body, merged)

	ctx := NewMigrationContext(merged, head, body, report)
	synth := ctx.Pass1().Pass2().Synthesize()
	log.Printf("[MERGE] Migrated %d colliders, %d constraints, %d bone chains; created %d nodes",
		report.CollidersCloned, report.ConstraintsCloned, report.ChainsCloned, len(synth.Created))

	copied, err := CopyBlendshapes(head, body, merged)
	if err != nil {
		return err
	}
	report.BlendshapesCopied = copied

	report.ProbeAnchor = ApplyBoundsAndProbeAnchors(merged)
	if report.ProbeAnchor == "" {
		log.Printf("[MERGE] Warning: no Chest or Hips node on %s, probe anchors unchanged", merged.Root.Name)
	}
	return nil
}

// ResultPath is where the reconciled rig for a merged asset is written
func (p *Pipeline) ResultPath(mergedAsset string) string {
	if p.Config.Paths.MergedRig != "" {
		return p.Config.Paths.MergedRig
	}
	base := strings.TrimSuffix(SidecarPath(mergedAsset), DocumentSuffix)
	return base + ".swapped" + DocumentSuffix
}

func (p *Pipeline) save(merged *Rig, mergedAsset string, report *MergeReport) error {
	out := p.ResultPath(mergedAsset)
	if err := SaveRig(out, merged); err != nil {
		return err
	}
	merged.Path = out
	report.OutputPath = out
	log.Printf("[MERGE] Saved reconciled rig to %s", out)
	return nil
}

func (p *Pipeline) fail(report *MergeReport, err error) error {
	report.Error = err.Error()
	log.Printf("[MERGE] Error: %v", err)
	return err
}

func assetPath(r *Rig) string {
	p := r.Asset
	if p == "" {
		p = r.Path
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
