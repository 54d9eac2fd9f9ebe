package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHandle(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    Handle
		wantErr bool
	}{
		{
			name: "input",
			id:   "input:text",
			want: Handle{Kind: HandleInput, Name: "text"},
		},
		{
			name: "output",
			id:   "output:stdout",
			want: Handle{Kind: HandleOutput, Name: "stdout"},
		},
		{
			name: "input internal",
			id:   "input:items:internal",
			want: Handle{Kind: HandleInput, Name: "items", Internal: true},
		},
		{
			name: "dock prev",
			id:   "dock:state:prev",
			want: Handle{Kind: HandleDock, Name: "state", Role: DockRolePrev},
		},
		{
			name: "dock current",
			id:   "dock:state:current",
			want: Handle{Kind: HandleDock, Name: "state", Role: DockRoleCurrent},
		},
		{
			name: "array slot",
			id:   "input:files[2]",
			want: Handle{Kind: HandleInput, Name: "files[2]"},
		},
		{name: "empty", id: "", wantErr: true},
		{name: "unknown namespace", id: "port:foo", wantErr: true},
		{name: "dock missing role", id: "dock:state", wantErr: true},
		{name: "dock bad role", id: "dock:state:sideways", wantErr: true},
		{name: "input missing name", id: "input:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHandle(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleRoundTrip(t *testing.T) {
	for _, id := range []string{
		"input:text",
		"output:stdout",
		"input:items:internal",
		"dock:state:prev",
		"dock:continue:current",
	} {
		h, err := ParseHandle(id)
		require.NoError(t, err)
		assert.Equal(t, id, h.String())
	}
}

func TestIsFeedbackHandle(t *testing.T) {
	assert.True(t, IsFeedbackHandle("dock:state:current"))
	assert.True(t, IsFeedbackHandle("dock:state:input"))
	assert.False(t, IsFeedbackHandle("dock:state:prev"))
	assert.False(t, IsFeedbackHandle("dock:iteration:output"))
	assert.False(t, IsFeedbackHandle("input:text"))
	assert.False(t, IsFeedbackHandle(""))
}

func TestTargetInputName(t *testing.T) {
	assert.Equal(t, "text", TargetInputName("input:text"))
	assert.Equal(t, "items", TargetInputName("input:items:internal"))
	assert.Equal(t, "input", TargetInputName(""))
	assert.Equal(t, "state", TargetInputName("dock:state:current"))
	// Unparseable handles fall back to the raw id so errors surface with
	// the original text.
	assert.Equal(t, "bogus", TargetInputName("bogus"))
}

func TestSourceOutputName(t *testing.T) {
	assert.Equal(t, "stdout", SourceOutputName("output:stdout"))
	assert.Equal(t, "output", SourceOutputName(""))
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "build_and_test", NormalizeLabel("Build And Test"))
	assert.Equal(t, "deploy", NormalizeLabel("deploy"))
	assert.Equal(t, "a_b", NormalizeLabel("A\tB"))
}
