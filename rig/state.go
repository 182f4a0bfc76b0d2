package rig

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Selection is the control panel's current input
type Selection struct {
	Head       string `json:"head"`
	Body       string `json:"body"`
	Executable string `json:"executable,omitempty"`
}

// StateTracker holds the panel selection and the outcome of the last merge
type StateTracker struct {
	mu         sync.RWMutex
	selection  Selection
	lastMerged *Rig
	lastReport *MergeReport
	cachePath  string // last report is persisted here; empty disables persistence
}

// NewStateTracker creates an empty state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// NewStateTrackerWithCache creates a state tracker that persists the last report
// to cachePath and reloads it on creation
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := &StateTracker{cachePath: cachePath}
	if cachePath == "" {
		return st
	}
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return st
	}
	var report MergeReport
	if err := json.Unmarshal(data, &report); err != nil {
		log.Printf("Warning: ignoring unreadable report cache %s: %v", cachePath, err)
		return st
	}
	st.lastReport = &report
	return st
}

// SetSelection stores the panel input
func (st *StateTracker) SetSelection(sel Selection) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.selection = sel
}

// Selection returns the panel input
func (st *StateTracker) Selection() Selection {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.selection
}

// RecordResult stores a finished run. merged may be nil for failed runs, in
// which case the previous merged rig is kept for previews.
func (st *StateTracker) RecordResult(merged *Rig, report *MergeReport) {
	st.mu.Lock()
	if merged != nil && report != nil && report.Succeeded() {
		st.lastMerged = merged
	}
	st.lastReport = report
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" && report != nil {
		if err := saveReport(cachePath, report); err != nil {
			log.Printf("Warning: failed to persist report: %v", err)
		}
	}
}

// LastMerged returns the most recent successfully reconciled rig
func (st *StateTracker) LastMerged() *Rig {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.lastMerged
}

// LastReport returns a copy of the last report
func (st *StateTracker) LastReport() *MergeReport {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.lastReport == nil {
		return nil
	}
	r := *st.lastReport
	r.SynthesizedNodes = append([]string(nil), st.lastReport.SynthesizedNodes...)
	return &r
}

func saveReport(path string, report *MergeReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
