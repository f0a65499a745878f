// Package prompt collects action arguments interactively, driven by the
// action's input schema.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/jsonschema-go/jsonschema"
)

// AskFunc abstracts survey.AskOne so callers can script answers.
type AskFunc func(p survey.Prompt, response any, opts ...survey.AskOpt) error

// Collector walks an input schema and asks for each declared property.
// Required properties are asked first and must be answered; optional ones
// may be skipped with an empty answer. It also carries the free-form
// Select/Input prompts the interactive menu is built from.
type Collector struct {
	ask AskFunc
}

// NewCollector returns a Collector backed by survey's terminal prompts.
func NewCollector() *Collector {
	return &Collector{ask: survey.AskOne}
}

// NewCollectorWith returns a Collector that asks through fn.
func NewCollectorWith(fn AskFunc) *Collector {
	return &Collector{ask: fn}
}

// Select asks the user to pick one of options.
func (c *Collector) Select(message string, options []string) (string, error) {
	var choice string
	if err := c.ask(&survey.Select{Message: message, Options: options}, &choice); err != nil {
		return "", err
	}
	return choice, nil
}

// Input asks a free-form question; empty answers are allowed.
func (c *Collector) Input(message string) (string, error) {
	var answer string
	if err := c.ask(&survey.Input{Message: message}, &answer); err != nil {
		return "", err
	}
	return answer, nil
}

// Collect prompts for every property of schema and returns the coerced
// argument map. A nil schema or one without properties yields an empty map.
func (c *Collector) Collect(schema *jsonschema.Schema) (map[string]any, error) {
	args := make(map[string]any)
	if schema == nil || len(schema.Properties) == 0 {
		return args, nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	var optional []string
	for name := range schema.Properties {
		if !required[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)

	for _, name := range schema.Required {
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		value, err := c.askProperty(name, prop, true)
		if err != nil {
			return nil, err
		}
		args[name] = value
	}
	for _, name := range optional {
		value, err := c.askProperty(name, schema.Properties[name], false)
		if err != nil {
			return nil, err
		}
		if value != nil {
			args[name] = value
		}
	}
	return args, nil
}

func (c *Collector) askProperty(name string, prop *jsonschema.Schema, required bool) (any, error) {
	typ := ""
	desc := ""
	if prop != nil {
		typ = prop.Type
		desc = prop.Description
	}

	if typ == "boolean" {
		confirm := &survey.Confirm{Message: promptMessage(name, desc, required)}
		var answer bool
		if err := c.ask(confirm, &answer); err != nil {
			return nil, fmt.Errorf("prompt %s: %w", name, err)
		}
		return answer, nil
	}

	input := &survey.Input{Message: promptMessage(name, desc, required)}
	var raw string
	opts := []survey.AskOpt{}
	if required {
		opts = append(opts, survey.WithValidator(survey.Required))
	}
	if err := c.ask(input, &raw, opts...); err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}
	if !required && strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return Coerce(raw, typ)
}

func promptMessage(name, desc string, required bool) string {
	var b strings.Builder
	b.WriteString(name)
	if desc != "" {
		b.WriteString(" (")
		b.WriteString(desc)
		b.WriteString(")")
	}
	if !required {
		b.WriteString(" [optional]")
	}
	b.WriteString(":")
	return b.String()
}

// Coerce converts a raw textual answer to the JSON value the schema type
// asks for. Unknown types pass the string through unchanged.
func Coerce(raw, typ string) (any, error) {
	switch typ {
	case "integer":
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", raw)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", raw)
		}
		return b, nil
	case "array":
		var v []any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("expected a JSON array, got %q", raw)
		}
		return v, nil
	case "object":
		var v map[string]any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("expected a JSON object, got %q", raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}
