// Package reporting persists experiment results and renders them as JUnit
// XML, plain-language summaries, run comparisons and archives.
package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spboyer/sqleval/internal/config"
	"github.com/spboyer/sqleval/internal/models"
)

// Artifact file names inside a run directory.
const (
	ConfigFile  = "config.yaml"
	ResultsFile = "results.json"
	JUnitFile   = "junit.xml"
)

// WriteRun writes config.yaml and results.json into dir and returns the
// results path.
func WriteRun(dir string, exp *config.Experiment, result *models.ExperimentResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}
	if err := exp.WriteYAML(filepath.Join(dir, ConfigFile)); err != nil {
		return "", err
	}

	data, err := EncodeResults(result)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ResultsFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing results: %w", err)
	}
	return path, nil
}

// EncodeResults renders results.json: two-space indentation and no HTML
// escaping so SQL operators stay readable.
func EncodeResults(result *models.ExperimentResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return nil, fmt.Errorf("encoding results: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadResults loads a results.json file.
func ReadResults(path string) (*models.ExperimentResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	var result models.ExperimentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &result, nil
}
