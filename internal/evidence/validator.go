package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks evidence strings against the Open Targets JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// LoadValidator compiles the schema at path (a file path or URL). Format
// assertions are enabled.
func LoadValidator(path string) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	schema, err := c.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile evidence schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks one JSON-encoded evidence string.
func (v *Validator) Validate(doc []byte) error {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var inst interface{}
	if err := dec.Decode(&inst); err != nil {
		return err
	}
	return v.schema.Validate(inst)
}
