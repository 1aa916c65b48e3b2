package schema

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// RiskLevel classifies how dangerous a tool invocation is. It drives the
// approval workflow: low-risk calls may be auto-approved, high-risk calls
// always reach the approver.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

// String returns the wire name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Escalate returns the higher of two risk levels.
func (r RiskLevel) Escalate(other RiskLevel) RiskLevel {
	if other > r {
		return other
	}
	return r
}

// Category groups tools into classes the approval policy can target.
type Category string

const (
	CategoryRead     Category = "read"
	CategoryWrite    Category = "write"
	CategoryCommand  Category = "command"
	CategoryWorkflow Category = "workflow"
)

// ParamKind is the expected shape of a parameter value.
type ParamKind int

const (
	ParamScalar ParamKind = iota
	ParamList
	ParamObject
)

// String returns a human-readable kind name.
func (k ParamKind) String() string {
	switch k {
	case ParamScalar:
		return "scalar"
	case ParamList:
		return "list"
	case ParamObject:
		return "object"
	default:
		return "unknown"
	}
}

// ParamSpec declares one parameter of a tool.
type ParamSpec struct {
	Name          string
	Description   string
	Required      bool
	Kind          ParamKind
	AllowedValues []string
	// Path marks parameters that must pass workspace containment checks.
	Path bool
}

// Spec declares a tool: its parameter shapes, baseline risk, and whether
// execution is gated on approval.
type Spec struct {
	Name             string
	Description      string
	Params           []ParamSpec
	Risk             RiskLevel
	RequiresApproval bool
	Category         Category
}

// Param returns the named parameter spec.
func (s *Spec) Param(name string) (*ParamSpec, bool) {
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i], true
		}
	}
	return nil, false
}

// PathParams returns the names of all path-typed parameters.
func (s *Spec) PathParams() []string {
	var names []string
	for _, p := range s.Params {
		if p.Path {
			names = append(names, p.Name)
		}
	}
	return names
}

// Registry is the static catalog of known tools. It is populated at
// startup from the builtin manifest and read-only afterwards; lookups are
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	specs   map[string]*Spec
	order   []string
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:   make(map[string]*Spec),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool spec and compiles its JSON schema.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	js, err := compileSchema(spec)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	s := spec
	r.specs[spec.Name] = &s
	r.schemas[spec.Name] = js

	log.Debug().Str("tool", spec.Name).Str("risk", spec.Risk.String()).Msg("Tool registered")
	return nil
}

// Get returns the spec for a tool name.
func (r *Registry) Get(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Known reports whether the tool name is registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.specs[name]
	return ok
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Risk returns the baseline risk for a tool; unknown tools are high risk.
func (r *Registry) Risk(name string) RiskLevel {
	if s, ok := r.Get(name); ok {
		return s.Risk
	}
	return RiskHigh
}

// compileSchema builds a gojsonschema validator from the parameter specs,
// used as a cross-check behind the ordered field validation.
func compileSchema(spec Spec) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(spec.Params))
	required := []string{}

	for _, p := range spec.Params {
		var typ string
		switch p.Kind {
		case ParamList:
			typ = "array"
		case ParamObject:
			typ = "object"
		default:
			typ = "string"
		}
		prop := map[string]interface{}{
			"type":        typ,
			"description": p.Description,
		}
		if len(p.AllowedValues) > 0 {
			enum := make([]interface{}, len(p.AllowedValues))
			for i, v := range p.AllowedValues {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}
