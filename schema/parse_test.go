package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
version: 3
metadata:
  name: build
nodes:
  - id: t1
    data:
      nodeType: trigger
  - id: s1
    data:
      nodeType: shell
      script: echo hi
edges:
  - id: e1
    source: t1
    target: s1
`

func TestParseYAML(t *testing.T) {
	wf, err := Parse([]byte(minimalYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, 3, wf.Version)
	assert.Equal(t, "build", wf.Metadata.Name)
	require.Len(t, wf.Nodes, 2)
	assert.Equal(t, "shell", wf.Nodes[1].Kind())
	require.Len(t, wf.Edges, 1)
}

func TestParseJSON(t *testing.T) {
	doc := `{
		"version": 2,
		"metadata": {"name": "deploy"},
		"nodes": [{"id": "a", "data": {"nodeType": "constant", "valueType": "string", "value": "x"}}],
		"edges": []
	}`
	wf, err := Parse([]byte(doc), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "deploy", wf.Metadata.Name)
	assert.Equal(t, "constant", wf.Nodes[0].Kind())
}

func TestParseVersionGate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"current", "version: 3\nmetadata: {name: x}", false},
		{"older", "version: 1\nmetadata: {name: x}", false},
		{"future", "version: 4\nmetadata: {name: x}", true},
		{"missing", "metadata: {name: x}", true},
		{"negative", "version: -1\nmetadata: {name: x}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatYAML)
			if tt.wantErr {
				var serr *StructuralError
				require.ErrorAs(t, err, &serr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("{{{"), FormatYAML)
	require.Error(t, err)
	_, err = Parse([]byte("not json"), FormatJSON)
	require.Error(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	wf, err := Parse([]byte(minimalYAML), FormatYAML)
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatJSON} {
		data, err := Serialize(wf, format)
		require.NoError(t, err)
		back, err := Parse(data, format)
		require.NoError(t, err)
		assert.Equal(t, wf.Metadata.Name, back.Metadata.Name)
		assert.Len(t, back.Nodes, len(wf.Nodes))
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatForPath("wf.json"))
	assert.Equal(t, FormatYAML, FormatForPath("wf.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("wf.yml"))
	assert.Equal(t, FormatYAML, FormatForPath("noext"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	wf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "build", wf.Metadata.Name)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
