// Package schema validates caption events against their JSON Schema before
// they leave the service.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed caption_event.schema.json
var captionEventSchema []byte

const captionEventURL = "https://schemas.live-caption.local/caption_event.schema.json"

// Validator checks payloads against the caption event schema.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded caption event schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(captionEventURL, bytes.NewReader(captionEventSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := compiler.Compile(captionEventURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// MustNew is New for static setup; it panics if the embedded schema is broken.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate marshals event to JSON and validates the result.
func (v *Validator) Validate(event any) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return v.ValidateJSON(raw)
}

// ValidateJSON validates an already encoded payload.
func (v *Validator) ValidateJSON(raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return v.schema.Validate(payload)
}
