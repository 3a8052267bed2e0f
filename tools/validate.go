package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/becomeliminal/nim-memory/memory"
)

// Validator checks tool arguments against a compiled JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles schema.
func NewValidator(schema map[string]interface{}) (*Validator, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	compiled, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate decodes input and checks it. Failures wrap
// memory.ErrInvalidArgument. Empty input is treated as {}.
func (v *Validator) Validate(input json.RawMessage) error {
	if len(strings.TrimSpace(string(input))) == 0 {
		input = json.RawMessage("{}")
	}

	var instance interface{}
	if err := json.Unmarshal(input, &instance); err != nil {
		return fmt.Errorf("%w: arguments are not valid JSON: %v", memory.ErrInvalidArgument, err)
	}

	result := v.schema.Validate(instance)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("%w: %s", memory.ErrInvalidArgument, describe(result.ToList()))
}

// Validate is a one-shot NewValidator + Validate.
func Validate(schema map[string]interface{}, input json.RawMessage) error {
	v, err := NewValidator(schema)
	if err != nil {
		return err
	}
	return v.Validate(input)
}

// describe flattens the validation output into "location: message" pairs.
func describe(list *jsonschema.List) string {
	var msgs []string
	var walk func(l jsonschema.List)
	walk = func(l jsonschema.List) {
		loc := l.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		for _, msg := range l.Errors {
			msgs = append(msgs, loc+": "+msg)
		}
		for _, d := range l.Details {
			walk(d)
		}
	}
	if list != nil {
		walk(*list)
	}
	if len(msgs) == 0 {
		return "arguments do not match the schema"
	}
	sort.Strings(msgs)
	return strings.Join(dedupe(msgs), "; ")
}

func dedupe(sorted []string) []string {
	var out []string
	for _, s := range sorted {
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}
