// Package run records what an analyze invocation read and wrote.
package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
	"github.com/KaramelBytes/cplog-cli/internal/dataset"
	"github.com/KaramelBytes/cplog-cli/internal/utils"
)

const manifestFileName = "manifest.json"

// SkippedFile is a log left out of the run and why.
type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// LimitEntry is one merged limit as written to the manifest.
type LimitEntry struct {
	Parameter string   `json:"parameter"`
	Lower     *float64 `json:"lower"`
	Upper     *float64 `json:"upper"`
}

// Manifest describes one analyze run persisted next to its outputs.
type Manifest struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Inputs    []string      `json:"inputs"`
	Params    []string      `json:"params"`
	GroupBy   string        `json:"group_by"`
	Parsed    []string      `json:"parsed"`
	Skipped   []SkippedFile `json:"skipped"`
	Limits    []LimitEntry  `json:"limits"`
	Conflicts []string      `json:"conflicts"`
	Records   int           `json:"records"`
	RowErrors int           `json:"row_errors"`
	Outputs   []string      `json:"outputs"`
}

// New builds a manifest from a loaded batch and its summary.
func New(inputs []string, b *dataset.Batch, s *analysis.Summary) *Manifest {
	m := &Manifest{
		ID:        b.ID.String(),
		CreatedAt: time.Now().UTC(),
		Inputs:    inputs,
		GroupBy:   string(s.GroupBy),
		Parsed:    b.Parsed,
		Records:   s.Records,
		RowErrors: b.RowErrors,
	}
	for _, p := range s.Params {
		m.Params = append(m.Params, p.Parameter)
		m.Limits = append(m.Limits, LimitEntry{Parameter: p.Parameter, Lower: p.Limits.Lower, Upper: p.Limits.Upper})
	}
	for _, sk := range b.Skipped {
		m.Skipped = append(m.Skipped, SkippedFile{File: sk.File, Reason: sk.Err.Error()})
	}
	for _, c := range b.Conflicts {
		m.Conflicts = append(m.Conflicts, c.Error())
	}
	return m
}

// AddOutput records a file written by the run.
func (m *Manifest) AddOutput(path string) { m.Outputs = append(m.Outputs, path) }

// Save writes manifest.json into dir using an atomic write.
func (m *Manifest) Save(dir string) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("ensure dir: %w", err)
	}
	data, err := utils.PrettyJSON(m)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, manifestFileName)
	if err := utils.SafeWriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads manifest.json from dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("manifest not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
