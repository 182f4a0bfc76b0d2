package rig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoMergedAsset is returned when the output directory holds no merged asset
var ErrNoMergedAsset = errors.New("no merged asset found")

// DocumentSuffix is the extension of rig documents and asset sidecars
const DocumentSuffix = ".rig.yaml"

// MostRecentOutput returns the most recently modified file in dir matching the
// glob pattern. The merge tool is expected to leave exactly one new file, but
// only the newest is taken.
func MostRecentOutput(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("matching %s: %w", pattern, err)
	}

	var newest string
	var newestInfo os.FileInfo
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if newestInfo == nil || info.ModTime().After(newestInfo.ModTime()) {
			newest, newestInfo = path, info
		}
	}
	if newest == "" {
		return "", fmt.Errorf("%w in %s (%s)", ErrNoMergedAsset, dir, pattern)
	}
	return newest, nil
}

// Importer turns an asset on disk into an in-memory rig
type Importer interface {
	Import(assetPath string, role Role) (*Rig, error)
}

// DocumentImporter imports rig documents directly and any other asset through
// its sidecar document next to it
type DocumentImporter struct{}

// SidecarPath returns the rig document describing assetPath
func SidecarPath(assetPath string) string {
	if strings.HasSuffix(assetPath, DocumentSuffix) {
		return assetPath
	}
	return strings.TrimSuffix(assetPath, filepath.Ext(assetPath)) + DocumentSuffix
}

// Import loads the rig for assetPath
func (DocumentImporter) Import(assetPath string, role Role) (*Rig, error) {
	doc := SidecarPath(assetPath)
	r, err := LoadRig(doc, role)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", assetPath, err)
	}
	if r.Asset == "" && doc != assetPath {
		if abs, err := filepath.Abs(assetPath); err == nil {
			r.Asset = abs
		} else {
			r.Asset = assetPath
		}
	}
	return r, nil
}
