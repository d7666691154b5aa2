// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/newsdesk/pkg/types"
)

// ExportEntry is a full session record with its cause as text.
type ExportEntry struct {
	types.SessionResult `yaml:",inline"`
	Cause               string `json:"cause,omitempty" yaml:"cause,omitempty"`
}

const exportLimit = 100000

// ExportYAML writes matching sessions to <dir>/export.yaml and returns the path.
func (s *Store) ExportYAML(ctx context.Context, opts ListOptions) (string, error) {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dir, "export.yaml")
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes matching sessions to <dir>/export.json and returns the path.
func (s *Store) ExportJSON(ctx context.Context, opts ListOptions) (string, error) {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dir, "export.json")
	return path, os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts ListOptions) ([]ExportEntry, error) {
	opts.Limit = exportLimit
	sums, err := s.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, 0, len(sums))
	for _, sum := range sums {
		res, err := s.Get(ctx, sum.ID)
		if err != nil {
			return nil, fmt.Errorf("loading session %s: %w", sum.ID, err)
		}
		entries = append(entries, ExportEntry{SessionResult: res, Cause: res.CauseMessage()})
	}
	return entries, nil
}
