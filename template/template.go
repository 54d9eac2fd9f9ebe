// Package template substitutes {{ ... }} references in workflow string
// fields. Resolution is a pure function over the current input bindings and
// the outputs computed so far; unknown references are left literally
// unchanged so that shell heredocs and agent prompts containing braces
// survive untouched.
package template

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Context is the lookup environment for template resolution. Outputs is
// keyed by node reference: the node id and, when the node carries a label,
// the normalized label (lowercased, whitespace replaced with "_").
type Context struct {
	Outputs map[string]map[string]any
}

// NewContext creates an empty resolution context.
func NewContext() *Context {
	return &Context{Outputs: make(map[string]map[string]any)}
}

// SetOutputs records a node's outputs under every reference that names it.
func (c *Context) SetOutputs(refs []string, outputs map[string]any) {
	for _, ref := range refs {
		if ref != "" {
			c.Outputs[ref] = outputs
		}
	}
}

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolve substitutes every {{ ... }} placeholder in text. Grammar:
//
//	{{ input }}            the entry named "input" in the bindings map
//	{{ inputs.<name> }}    the named entry in the bindings map
//	{{ <ref>.<port> }}     an already-computed output, <ref> a node id or
//	                       normalized label
//
// Unresolvable placeholders are left verbatim. Non-string values are
// JSON-encoded when substituted.
func Resolve(text string, ctx *Context, inputs map[string]any) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		expr := strings.TrimSpace(placeholder.FindStringSubmatch(match)[1])

		value, ok := lookup(expr, ctx, inputs)
		if !ok {
			return match
		}
		return stringify(value)
	})
}

// ResolveAll maps Resolve over a string slice.
func ResolveAll(texts []string, ctx *Context, inputs map[string]any) []string {
	if len(texts) == 0 {
		return texts
	}
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = Resolve(text, ctx, inputs)
	}
	return out
}

func lookup(expr string, ctx *Context, inputs map[string]any) (any, bool) {
	if expr == "input" {
		value, ok := inputs["input"]
		return value, ok
	}

	if name, found := strings.CutPrefix(expr, "inputs."); found {
		value, ok := inputs[name]
		return value, ok
	}

	// <ref>.<port>: the ref itself may contain no dots; port paths do not
	// nest (nested access goes through a port-level extract instead).
	ref, port, found := strings.Cut(expr, ".")
	if !found || ctx == nil {
		return nil, false
	}
	outputs, ok := ctx.Outputs[ref]
	if !ok {
		return nil, false
	}
	value, ok := outputs[port]
	return value, ok
}

// stringify renders a binding value for substitution into a string field.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
