// Package ops describes the operations each pipeline stage exposes to
// callers: name, description, parameter map and required-parameter list.
// Dispatch inside the stages is plain method calls on a closed set; the
// catalog exists so the outer surface can validate call arguments and
// describe the available operations.
package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Param describes one operation parameter.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Spec describes one invocable operation.
type Spec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Params      map[string]Param `json:"parameters"`
	Required    []string         `json:"required"`
}

// SchemaMap returns the spec's parameter schema as a JSON-Schema document.
func (s Spec) SchemaMap() map[string]any {
	props := map[string]any{}
	for name, p := range s.Params {
		props[name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	doc := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	return doc
}

// Catalog is the closed set of operations one stage exposes.
type Catalog struct {
	Stage    string
	specs    map[string]Spec
	compiled map[string]*jsonschema.Schema
}

// NewCatalog compiles the parameter schema of every spec up front so that a
// malformed spec is caught at construction, not on the first call.
func NewCatalog(stage string, specs ...Spec) (*Catalog, error) {
	c := &Catalog{
		Stage:    stage,
		specs:    make(map[string]Spec, len(specs)),
		compiled: make(map[string]*jsonschema.Schema, len(specs)),
	}
	for _, s := range specs {
		if _, dup := c.specs[s.Name]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate op %q", stage, s.Name)
		}
		schema, err := compileSchema(s.SchemaMap())
		if err != nil {
			return nil, fmt.Errorf("catalog %s: op %q: %w", stage, s.Name, err)
		}
		c.specs[s.Name] = s
		c.compiled[s.Name] = schema
	}
	return c, nil
}

// MustCatalog is NewCatalog for package-level catalogs built from literals.
func MustCatalog(stage string, specs ...Spec) *Catalog {
	c, err := NewCatalog(stage, specs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Specs returns the operation specs sorted by name.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the spec for an operation name.
func (c *Catalog) Lookup(name string) (Spec, bool) {
	s, ok := c.specs[name]
	return s, ok
}

// Validate checks call arguments against the operation's parameter schema.
func (c *Catalog) Validate(name string, args map[string]any) error {
	schema, ok := c.compiled[name]
	if !ok {
		return fmt.Errorf("unknown op %q in stage %s", name, c.Stage)
	}
	// Round-trip through JSON so numeric types normalize the way callers
	// submitting JSON would see them.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("op %q: invalid arguments: %w", name, err)
	}
	return nil
}

func compileSchema(doc map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
