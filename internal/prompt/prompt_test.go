package prompt

import (
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		typ     string
		want    any
		wantErr bool
	}{
		{"string passes through", "hello", "string", "hello", false},
		{"untyped passes through", "hello", "", "hello", false},
		{"integer", "42", "integer", int64(42), false},
		{"integer with spaces", " 42 ", "integer", int64(42), false},
		{"bad integer", "4.5", "integer", nil, true},
		{"number", "1.5", "number", 1.5, false},
		{"bad number", "abc", "number", nil, true},
		{"boolean true", "true", "boolean", true, false},
		{"boolean shorthand", "1", "boolean", true, false},
		{"bad boolean", "maybe", "boolean", nil, true},
		{"array", `["a","b"]`, "array", []any{"a", "b"}, false},
		{"bad array", "a,b", "array", nil, true},
		{"object", `{"k":1}`, "object", map[string]any{"k": float64(1)}, false},
		{"bad object", "k=1", "object", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Coerce(tc.raw, tc.typ)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// scriptedAsker answers prompts by message prefix instead of a terminal.
func scriptedAsker(t *testing.T, answers map[string]any) AskFunc {
	return func(p survey.Prompt, response any, opts ...survey.AskOpt) error {
		var message string
		switch prompt := p.(type) {
		case *survey.Input:
			message = prompt.Message
		case *survey.Confirm:
			message = prompt.Message
		case *survey.Select:
			message = prompt.Message
		default:
			t.Fatalf("unexpected prompt type %T", p)
		}
		for key, answer := range answers {
			if len(message) >= len(key) && message[:len(key)] == key {
				switch out := response.(type) {
				case *string:
					*out = answer.(string)
				case *bool:
					*out = answer.(bool)
				}
				return nil
			}
		}
		t.Fatalf("no scripted answer for prompt %q", message)
		return nil
	}
}

func TestCollectRequiredThenOptional(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {Type: "string", Description: "search text"},
			"limit": {Type: "integer"},
			"exact": {Type: "boolean"},
		},
		Required: []string{"query"},
	}

	c := &Collector{ask: scriptedAsker(t, map[string]any{
		"query": "golang",
		"limit": "10",
		"exact": true,
	})}
	args, err := c.Collect(schema)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"query": "golang",
		"limit": int64(10),
		"exact": true,
	}, args)
}

func TestCollectSkipsEmptyOptional(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {Type: "string"},
			"limit": {Type: "integer"},
		},
		Required: []string{"query"},
	}

	c := &Collector{ask: scriptedAsker(t, map[string]any{
		"query": "golang",
		"limit": "",
	})}
	args, err := c.Collect(schema)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "golang"}, args)
}

func TestSelectAndInput(t *testing.T) {
	c := NewCollectorWith(scriptedAsker(t, map[string]any{
		"Pick one": "beta",
		"Name":     "typed answer",
	}))

	choice, err := c.Select("Pick one", []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, "beta", choice)

	answer, err := c.Input("Name:")
	require.NoError(t, err)
	assert.Equal(t, "typed answer", answer)
}

func TestCollectNilSchema(t *testing.T) {
	c := &Collector{ask: func(survey.Prompt, any, ...survey.AskOpt) error {
		t.Fatal("prompted with no schema")
		return nil
	}}
	args, err := c.Collect(nil)
	require.NoError(t, err)
	assert.Empty(t, args)
}
