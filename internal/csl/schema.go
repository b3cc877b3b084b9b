package csl

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaVersion is the CSL-JSON schema release bundled with the package.
const SchemaVersion = "1.0.1"

// SchemaURL is the canonical location of the bundled schema. It is only
// used as the resource name; nothing is downloaded.
const SchemaURL = "https://resource.citationstyles.org/schema/v1.0/input/json/csl-data.json"

//go:embed schema/csl-data.json
var bundledSchema []byte

// Schema is a compiled CSL-JSON schema. The document describes an array
// of items; single items are validated as a one-element array.
type Schema struct {
	compiled *jsonschema.Schema
	required []string
	fields   map[string]bool
	types    map[string]bool
}

// document is the part of the schema read outside the validator.
type document struct {
	Items struct {
		Required   []string `json:"required"`
		Properties map[string]struct {
			Enum []string `json:"enum"`
		} `json:"properties"`
	} `json:"items"`
}

// ParseSchema compiles a CSL-JSON schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse CSL schema: %w", err)
	}
	if len(doc.Items.Properties) == 0 {
		return nil, fmt.Errorf("parse CSL schema: no item properties")
	}

	raw, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse CSL schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(SchemaURL, raw); err != nil {
		return nil, fmt.Errorf("load CSL schema: %w", err)
	}
	compiled, err := c.Compile(SchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile CSL schema: %w", err)
	}

	s := &Schema{
		compiled: compiled,
		required: doc.Items.Required,
		fields:   make(map[string]bool, len(doc.Items.Properties)),
		types:    make(map[string]bool),
	}
	for name := range doc.Items.Properties {
		s.fields[name] = true
	}
	for _, t := range doc.Items.Properties["type"].Enum {
		s.types[t] = true
	}
	return s, nil
}

var defaultSchema = sync.OnceValues(func() (*Schema, error) {
	return ParseSchema(bundledSchema)
})

// DefaultSchema returns the bundled, version-pinned schema.
func DefaultSchema() *Schema {
	s, err := defaultSchema()
	if err != nil {
		panic(err)
	}
	return s
}

// Required returns the fields every item must carry.
func (s *Schema) Required() []string {
	return s.required
}

// HasField reports whether field is a known top-level CSL variable.
func (s *Schema) HasField(field string) bool {
	return s.fields[field]
}

// IsType reports whether t is a valid CSL item type.
func (s *Schema) IsType(t string) bool {
	return s.types[t]
}
