package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/strandworks/strand/sdk"
)

// AgentRegistry maps runner names to AgentRunner implementations.
type AgentRegistry struct {
	mu      sync.RWMutex
	runners map[string]sdk.AgentRunner
}

// NewAgentRegistry creates an empty agent registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{runners: make(map[string]sdk.AgentRunner)}
}

// DefaultAgentRegistry returns a registry with the CLI-backed runners.
func DefaultAgentRegistry() *AgentRegistry {
	r := NewAgentRegistry()
	r.Register("claude", &ClaudeRunner{})
	r.Register("codex", &CodexRunner{})
	return r
}

// Register adds or replaces the runner for a name.
func (r *AgentRegistry) Register(name string, runner sdk.AgentRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[name] = runner
}

// Get returns the runner registered under name.
func (r *AgentRegistry) Get(name string) (sdk.AgentRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[name]
	return runner, ok
}

// AgentExecutor delegates node execution to an AgentRunner selected by the
// node's runner field and, when an output schema is configured, validates
// the parsed response against it.
type AgentExecutor struct {
	agents *AgentRegistry
	logger Logger
}

// NewAgentExecutor creates an agent executor backed by the given registry.
func NewAgentExecutor(agents *AgentRegistry, logger Logger) *AgentExecutor {
	if agents == nil {
		agents = DefaultAgentRegistry()
	}
	return &AgentExecutor{agents: agents, logger: logger}
}

func (e *AgentExecutor) Kind() string { return sdk.NodeAgent }

func (e *AgentExecutor) Execute(ctx context.Context, req *Request) (*sdk.NodeResult, error) {
	res := newResult(req.Node.ID)

	name := req.Node.Data.Runner
	if name == "" {
		name = "claude"
	}
	runner, ok := e.agents.Get(name)
	if !ok {
		return failf(res, "unknown agent runner %q", name), nil
	}

	prompt := req.resolve(req.Node.Data.Prompt)
	if prompt == "" {
		return failf(res, "agent node has an empty prompt"), nil
	}

	cfg := &sdk.AgentConfig{
		Runner:          name,
		Model:           req.Node.Data.Model,
		Prompt:          prompt,
		PromptFiles:     req.resolveArgs(req.Node.Data.PromptFiles),
		OutputSchema:    req.Node.Data.OutputSchema,
		Cwd:             req.Cwd,
		Inputs:          req.Bindings,
		PromptTemplated: strings.Contains(req.Node.Data.Prompt, "{{"),
		Yolo:            req.Yolo,
	}

	if e.logger != nil {
		e.logger.Debug("invoking agent runner", "runner", name, "model", cfg.Model, "node_id", req.Node.ID)
	}

	out, err := runner.Run(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return failf(res, "agent runner failed: %v", err), nil
	}

	res.RawOutput = out.Output
	res.Output = map[string]any{"response": out.Output}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "agent reported failure"
		}
		return failf(res, "%s", msg), nil
	}

	structured := out.StructuredOutput
	if req.Node.Data.OutputSchema != nil {
		if structured == nil {
			structured, err = parseAgentJSON(out.Output)
			if err != nil {
				return failf(res, "agent output is not valid JSON: %v", err), nil
			}
		}
		if err := validateAgainstSchema(req.Node.Data.OutputSchema, structured); err != nil {
			return failf(res, "agent output failed schema validation: %v", err), nil
		}
	}
	res.StructuredOutput = structured
	return finish(res), nil
}

// parseAgentJSON extracts a JSON document from agent text. Models often wrap
// JSON in a fenced code block or prose, so after a direct parse fails it
// retries on the first balanced object or array in the text.
func parseAgentJSON(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
		return value, nil
	}

	if fenced := extractFence(trimmed); fenced != "" {
		if err := json.Unmarshal([]byte(fenced), &value); err == nil {
			return value, nil
		}
	}

	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON found in output")
	}
	dec := json.NewDecoder(strings.NewReader(trimmed[start:]))
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// extractFence returns the body of the first ``` fence, if any.
func extractFence(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return ""
	}
	body := text[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	end := strings.Index(body, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(body[:end])
}

// validateAgainstSchema checks value against an inline JSON Schema document.
func validateAgainstSchema(schemaDoc map[string]any, value any) error {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("invalid output schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid output schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("outputSchema.json", doc); err != nil {
		return fmt.Errorf("invalid output schema: %w", err)
	}
	schema, err := compiler.Compile("outputSchema.json")
	if err != nil {
		return fmt.Errorf("invalid output schema: %w", err)
	}
	return schema.Validate(value)
}

// ClaudeRunner invokes the claude CLI in non-interactive print mode.
type ClaudeRunner struct{}

func (r *ClaudeRunner) Run(ctx context.Context, cfg *sdk.AgentConfig) (*sdk.AgentResult, error) {
	args := []string{"-p"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.Yolo {
		args = append(args, "--dangerously-skip-permissions")
	}
	return runCLIAgent(ctx, "claude", args, cfg)
}

// CodexRunner invokes the codex CLI in exec mode.
type CodexRunner struct{}

func (r *CodexRunner) Run(ctx context.Context, cfg *sdk.AgentConfig) (*sdk.AgentResult, error) {
	args := []string{"exec"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.Yolo {
		args = append(args, "--full-auto")
	}
	return runCLIAgent(ctx, "codex", args, cfg)
}

// runCLIAgent pipes the assembled prompt to a CLI agent over stdin and
// captures its stdout as the response text. Prompt files are inlined into
// the prompt so the backend needs no filesystem coordination.
func runCLIAgent(ctx context.Context, bin string, args []string, cfg *sdk.AgentConfig) (*sdk.AgentResult, error) {
	prompt, err := assemblePrompt(cfg)
	if err != nil {
		return &sdk.AgentResult{Success: false, Error: err.Error()}, nil
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = cfg.Cwd
	cmd.Env = os.Environ()
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return &sdk.AgentResult{
			Success: false,
			Output:  strings.TrimSpace(stdout.String()),
			Error:   fmt.Sprintf("%s failed: %s", bin, msg),
		}, nil
	}
	return &sdk.AgentResult{
		Success: true,
		Output:  strings.TrimSpace(stdout.String()),
	}, nil
}

// assemblePrompt builds the final prompt text: the node prompt, then each
// prompt file inlined under a path header, then the inputs as JSON when the
// prompt did not reference them through templates.
func assemblePrompt(cfg *sdk.AgentConfig) (string, error) {
	var sb strings.Builder
	sb.WriteString(cfg.Prompt)

	for _, file := range cfg.PromptFiles {
		path := file
		if !filepath.IsAbs(path) && cfg.Cwd != "" {
			path = filepath.Join(cfg.Cwd, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", file, err)
		}
		sb.WriteString("\n\n--- ")
		sb.WriteString(file)
		sb.WriteString(" ---\n")
		sb.Write(data)
	}

	if len(cfg.Inputs) > 0 && !cfg.PromptTemplated {
		inputsJSON, err := json.MarshalIndent(cfg.Inputs, "", "  ")
		if err == nil {
			sb.WriteString("\n\nInputs:\n")
			sb.Write(inputsJSON)
		}
	}

	if cfg.OutputSchema != nil {
		schemaJSON, err := json.MarshalIndent(cfg.OutputSchema, "", "  ")
		if err == nil {
			sb.WriteString("\n\nRespond with JSON matching this schema:\n")
			sb.Write(schemaJSON)
		}
	}
	return sb.String(), nil
}
