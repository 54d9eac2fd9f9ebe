package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveInputPlaceholders(t *testing.T) {
	inputs := map[string]any{
		"input": "hello",
		"count": 3,
		"flags": []string{"-v", "-q"},
	}

	assert.Equal(t, "say hello", Resolve("say {{input}}", nil, inputs))
	assert.Equal(t, "say hello", Resolve("say {{ input }}", nil, inputs))
	assert.Equal(t, "n=3", Resolve("n={{inputs.count}}", nil, inputs))
	assert.Equal(t, `["-v","-q"]`, Resolve("{{inputs.flags}}", nil, inputs))
}

func TestResolveNodeOutputs(t *testing.T) {
	ctx := NewContext()
	ctx.SetOutputs([]string{"n1", "build_step"}, map[string]any{
		"stdout":   "ok\n",
		"exitCode": 0,
	})

	assert.Equal(t, "ok\n", Resolve("{{n1.stdout}}", ctx, nil))
	assert.Equal(t, "ok\n", Resolve("{{build_step.stdout}}", ctx, nil))
	assert.Equal(t, "code 0", Resolve("code {{n1.exitCode}}", ctx, nil))
}

func TestResolveUnknownLeftVerbatim(t *testing.T) {
	ctx := NewContext()
	assert.Equal(t, "{{ghost.out}}", Resolve("{{ghost.out}}", ctx, nil))
	assert.Equal(t, "{{inputs.missing}}", Resolve("{{inputs.missing}}", ctx, nil))
	// Shell parameter expansion and jq-style braces survive.
	assert.Equal(t, "echo ${HOME} {a: 1}", Resolve("echo ${HOME} {a: 1}", ctx, nil))
}

func TestResolveNilValue(t *testing.T) {
	inputs := map[string]any{"input": nil}
	assert.Equal(t, "null", Resolve("{{input}}", nil, inputs))
}

func TestResolveMultiplePlaceholders(t *testing.T) {
	ctx := NewContext()
	ctx.SetOutputs([]string{"a"}, map[string]any{"output": "left"})
	ctx.SetOutputs([]string{"b"}, map[string]any{"output": "right"})

	got := Resolve("{{a.output}} and {{b.output}}", ctx, nil)
	assert.Equal(t, "left and right", got)
}

func TestResolveAll(t *testing.T) {
	inputs := map[string]any{"input": "x"}
	got := ResolveAll([]string{"{{input}}", "plain"}, nil, inputs)
	assert.Equal(t, []string{"x", "plain"}, got)

	assert.Nil(t, ResolveAll(nil, nil, inputs))
}
