package executors

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/strandworks/strand/sdk"
)

// BuildOutputValues maps a raw NodeResult onto the node's declared output
// ports. Each port takes, in order: a value the executor already bound
// under the port name, the port's extract applied to the raw text or
// structured payload, or the node kind's canonical source for that name.
// Ports that resolve to nothing are omitted so downstream defaults apply.
func BuildOutputValues(node *sdk.WorkflowNode, res *sdk.NodeResult) (map[string]any, error) {
	if len(node.Data.Outputs) == 0 {
		if res.Output != nil {
			return res.Output, nil
		}
		return map[string]any{}, nil
	}

	values := make(map[string]any)
	for i := range node.Data.Outputs {
		port := &node.Data.Outputs[i]

		if res.Output != nil {
			if v, ok := res.Output[port.Name]; ok {
				values[port.Name] = v
				continue
			}
		}
		if port.Extract != nil {
			v, err := applyExtract(port, res)
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", port.Name, err)
			}
			if v != nil {
				values[port.Name] = v
			}
			continue
		}
		if v, ok := canonicalSource(node.Kind(), port.Name, res); ok {
			values[port.Name] = v
		}
	}
	return values, nil
}

// canonicalSource resolves well-known output names per node kind.
func canonicalSource(kind, name string, res *sdk.NodeResult) (any, bool) {
	switch kind {
	case sdk.NodeShell, sdk.NodeScript:
		switch name {
		case "stdout", "output":
			return res.Stdout, true
		case "stderr":
			return res.Stderr, true
		case "exitCode":
			if res.ExitCode != nil {
				return *res.ExitCode, true
			}
			return nil, false
		}
	case sdk.NodeAgent:
		switch name {
		case "response", "output":
			return res.RawOutput, true
		case "structured":
			if res.StructuredOutput != nil {
				return res.StructuredOutput, true
			}
			return nil, false
		}
	}
	// Pure kinds (constant, trigger, workdir, function, interfaces) bind
	// their outputs directly; anything unmatched here falls back to the
	// whole raw text under the default name.
	if name == "output" && res.RawOutput != "" {
		return res.RawOutput, true
	}
	return nil, false
}

// applyExtract runs a port's extract spec against the result.
func applyExtract(port *sdk.PortDefinition, res *sdk.NodeResult) (any, error) {
	raw := extractSource(res)

	switch port.Extract.Kind {
	case sdk.ExtractFull:
		return raw, nil
	case sdk.ExtractRegex:
		re, err := compiledPattern(port.Extract.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid extract pattern: %w", err)
		}
		m := re.FindStringSubmatch(raw)
		if m == nil {
			return nil, nil
		}
		if len(m) > 1 {
			return m[1], nil
		}
		return m[0], nil
	case sdk.ExtractJSONPath:
		doc := raw
		if res.StructuredOutput != nil {
			enc, err := json.Marshal(res.StructuredOutput)
			if err == nil {
				doc = string(enc)
			}
		}
		v := gjson.Get(doc, port.Extract.Path)
		if !v.Exists() {
			return nil, nil
		}
		return v.Value(), nil
	default:
		return nil, fmt.Errorf("unknown extract type %q", port.Extract.Kind)
	}
}

// extractSource picks the text an extract runs against.
func extractSource(res *sdk.NodeResult) string {
	if res.Stdout != "" {
		return res.Stdout
	}
	return strings.TrimSpace(res.RawOutput)
}

var (
	patternMu    sync.RWMutex
	patternCache = make(map[string]*regexp.Regexp)
)

// compiledPattern caches compiled extract regexes; the same port spec runs
// once per loop iteration.
func compiledPattern(pattern string) (*regexp.Regexp, error) {
	patternMu.RLock()
	re, ok := patternCache[pattern]
	patternMu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternMu.Lock()
	patternCache[pattern] = re
	patternMu.Unlock()
	return re, nil
}
