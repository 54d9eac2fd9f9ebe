// Package schema loads, saves, and structurally validates workflow
// definitions. Typing errors are deliberately deferred to the input
// resolver at run time; this package only guarantees that the document is
// shaped like a workflow and that every reference resolves.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/strandworks/strand/sdk"
)

// CurrentVersion is the highest schema version this build understands.
// The version is a monotonically increasing integer; readers reject
// documents from the future.
const CurrentVersion = 3

// Format selects the wire encoding. YAML is canonical; JSON is accepted on
// read for editor interoperability.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// StructuralError is returned when a document cannot be decoded or carries
// an unusable version. Validation issues that do not prevent loading are
// reported by Validate instead.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string { return "workflow schema: " + e.Reason }

// Parse decodes a workflow document in the given format and gates its
// version.
func Parse(data []byte, format Format) (*sdk.WorkflowSchema, error) {
	var schema sdk.WorkflowSchema

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, &StructuralError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &schema); err != nil {
			return nil, &StructuralError{Reason: fmt.Sprintf("invalid YAML: %v", err)}
		}
	default:
		return nil, &StructuralError{Reason: fmt.Sprintf("unknown format %q", format)}
	}

	if schema.Version < 1 {
		return nil, &StructuralError{Reason: fmt.Sprintf("missing or invalid version %d", schema.Version)}
	}
	if schema.Version > CurrentVersion {
		return nil, &StructuralError{Reason: fmt.Sprintf("unsupported schema version %d (this build reads up to %d)", schema.Version, CurrentVersion)}
	}

	return &schema, nil
}

// Serialize encodes a workflow document in the given format.
func Serialize(schema *sdk.WorkflowSchema, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to serialize workflow: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize workflow: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// FormatForPath guesses the encoding from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Load reads and parses a workflow file, picking the format from the
// extension.
func Load(path string) (*sdk.WorkflowSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", path, err)
	}
	return Parse(data, FormatForPath(path))
}
