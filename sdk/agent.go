package sdk

import "context"

// AgentConfig is the pre-resolved invocation handed to an AgentRunner.
// Prompt has already been through template resolution; Inputs carries the
// node's resolved input bindings for runners that forward them.
type AgentConfig struct {
	Runner       string         `json:"runner"`
	Model        string         `json:"model,omitempty"`
	Prompt       string         `json:"prompt"`
	PromptFiles  []string       `json:"promptFiles,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
	Cwd          string         `json:"cwd"`
	Inputs       map[string]any `json:"inputs,omitempty"`

	// PromptTemplated records whether the node's prompt text referenced
	// inputs through templates before resolution. Runners that inline the
	// inputs as JSON skip them when the prompt already consumed them.
	PromptTemplated bool `json:"promptTemplated,omitempty"`

	// Yolo skips the backend's permission prompts. Set from the CLI/server
	// --yolo flag, never from the workflow schema.
	Yolo bool `json:"yolo,omitempty"`
}

// AgentResult is the raw outcome of an agent invocation.
type AgentResult struct {
	Success          bool   `json:"success"`
	Output           string `json:"output"`
	StructuredOutput any    `json:"structuredOutput,omitempty"`
	Error            string `json:"error,omitempty"`
}

// AgentRunner is the consumed boundary to an agent backend. The core makes
// no assumptions about the implementation beyond this contract.
type AgentRunner interface {
	Run(ctx context.Context, cfg *AgentConfig) (*AgentResult, error)
}
