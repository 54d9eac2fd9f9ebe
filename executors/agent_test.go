package executors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandworks/strand/sdk"
)

// fakeRunner returns a canned result and records the config it was given.
type fakeRunner struct {
	result *sdk.AgentResult
	err    error
	gotCfg *sdk.AgentConfig
}

func (f *fakeRunner) Run(ctx context.Context, cfg *sdk.AgentConfig) (*sdk.AgentResult, error) {
	f.gotCfg = cfg
	return f.result, f.err
}

func agentNode(prompt string) *sdk.WorkflowNode {
	return &sdk.WorkflowNode{
		ID:   "a1",
		Data: sdk.NodeData{NodeType: sdk.NodeAgent, Runner: "fake", Prompt: prompt},
	}
}

func TestAgentSuccess(t *testing.T) {
	runner := &fakeRunner{result: &sdk.AgentResult{Success: true, Output: "done"}}
	agents := NewAgentRegistry()
	agents.Register("fake", runner)

	node := agentNode("summarize {{inputs.topic}}")
	req := newRequest(node)
	req.Bindings = map[string]any{"topic": "logs"}
	req.Yolo = true

	res, err := NewAgentExecutor(agents, nil).Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, sdk.StatusCompleted, res.Status)
	assert.Equal(t, "done", res.RawOutput)
	assert.Equal(t, map[string]any{"response": "done"}, res.Output)

	require.NotNil(t, runner.gotCfg)
	assert.Equal(t, "summarize logs", runner.gotCfg.Prompt)
	assert.True(t, runner.gotCfg.Yolo)
	assert.Equal(t, map[string]any{"topic": "logs"}, runner.gotCfg.Inputs)

	// The templated flag reflects the prompt text before resolution; the
	// resolved prompt no longer contains braces.
	assert.True(t, runner.gotCfg.PromptTemplated)
}

func TestAgentPlainPromptNotTemplated(t *testing.T) {
	runner := &fakeRunner{result: &sdk.AgentResult{Success: true, Output: "ok"}}
	agents := NewAgentRegistry()
	agents.Register("fake", runner)

	req := newRequest(agentNode("summarize the logs"))
	req.Bindings = map[string]any{"topic": "logs"}

	_, err := NewAgentExecutor(agents, nil).Execute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, runner.gotCfg)
	assert.False(t, runner.gotCfg.PromptTemplated)
}

func TestAgentUnknownRunner(t *testing.T) {
	node := agentNode("do it")
	node.Data.Runner = "ghost"

	res, err := NewAgentExecutor(NewAgentRegistry(), nil).Execute(context.Background(), newRequest(node))
	require.NoError(t, err)
	assert.Equal(t, sdk.StatusFailed, res.Status)
}

func TestAgentEmptyPrompt(t *testing.T) {
	agents := NewAgentRegistry()
	agents.Register("fake", &fakeRunner{result: &sdk.AgentResult{Success: true}})

	res, err := NewAgentExecutor(agents, nil).Execute(context.Background(), newRequest(agentNode("")))
	require.NoError(t, err)
	assert.Equal(t, sdk.StatusFailed, res.Status)
}

func TestAgentReportedFailure(t *testing.T) {
	agents := NewAgentRegistry()
	agents.Register("fake", &fakeRunner{result: &sdk.AgentResult{
		Success: false,
		Output:  "partial text",
		Error:   "backend refused",
	}})

	res, err := NewAgentExecutor(agents, nil).Execute(context.Background(), newRequest(agentNode("go")))
	require.NoError(t, err)
	assert.Equal(t, sdk.StatusFailed, res.Status)
	assert.Equal(t, "backend refused", res.Error)
	assert.Equal(t, "partial text", res.RawOutput)
}

func TestAgentSchemaValidation(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"score"},
		"properties": map[string]any{
			"score": map[string]any{"type": "number"},
		},
	}

	node := agentNode("rate it")
	node.Data.OutputSchema = schema

	agents := NewAgentRegistry()
	agents.Register("fake", &fakeRunner{result: &sdk.AgentResult{
		Success: true,
		Output:  `Here you go:` + "\n```json\n" + `{"score": 8}` + "\n```",
	}})

	res, err := NewAgentExecutor(agents, nil).Execute(context.Background(), newRequest(node))
	require.NoError(t, err)
	assert.Equal(t, sdk.StatusCompleted, res.Status)
	assert.Equal(t, map[string]any{"score": float64(8)}, res.StructuredOutput)
}

func TestAgentSchemaViolation(t *testing.T) {
	node := agentNode("rate it")
	node.Data.OutputSchema = map[string]any{
		"type":     "object",
		"required": []any{"score"},
	}

	agents := NewAgentRegistry()
	agents.Register("fake", &fakeRunner{result: &sdk.AgentResult{
		Success: true,
		Output:  `{"verdict": "fine"}`,
	}})

	res, err := NewAgentExecutor(agents, nil).Execute(context.Background(), newRequest(node))
	require.NoError(t, err)
	assert.Equal(t, sdk.StatusFailed, res.Status)
}

func TestParseAgentJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    any
		wantErr bool
	}{
		{"direct object", `{"a": 1}`, map[string]any{"a": float64(1)}, false},
		{"direct array", `[1, 2]`, []any{float64(1), float64(2)}, false},
		{"fenced", "result:\n```json\n{\"a\": 1}\n```\ndone", map[string]any{"a": float64(1)}, false},
		{"embedded in prose", `The plan is {"a": 1} as requested.`, map[string]any{"a": float64(1)}, false},
		{"no json", "just words", nil, true},
		{"unbalanced", `prefix {"a": `, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAgentJSON(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssemblePrompt(t *testing.T) {
	cfg := &sdk.AgentConfig{
		Prompt: "review this",
		Inputs: map[string]any{"file": "main.go"},
		OutputSchema: map[string]any{
			"type": "object",
		},
	}

	prompt, err := assemblePrompt(cfg)
	require.NoError(t, err)
	assert.Contains(t, prompt, "review this")
	assert.Contains(t, prompt, `"file": "main.go"`)
	assert.Contains(t, prompt, "Respond with JSON matching this schema")
}

func TestAssemblePromptSkipsInputsWhenTemplated(t *testing.T) {
	// The prompt arrives resolved; the flag carries whether it was built
	// from a template that already consumed the inputs.
	cfg := &sdk.AgentConfig{
		Prompt:          "review main.go",
		Inputs:          map[string]any{"file": "main.go"},
		PromptTemplated: true,
	}

	prompt, err := assemblePrompt(cfg)
	require.NoError(t, err)
	assert.NotContains(t, prompt, "Inputs:")
}
