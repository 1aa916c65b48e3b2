package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lbatista/gambit/pkg/toolcall"
)

// FieldError is one validation failure on one field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Verdict is the aggregated outcome of validating a call. It is built
// once and never mutated afterwards.
type Verdict struct {
	OK     bool
	Errors []FieldError
}

func (v *Verdict) add(field, reason string) {
	v.OK = false
	v.Errors = append(v.Errors, FieldError{Field: field, Reason: reason})
}

// Error describes a call that failed schema validation. Recoverable: the
// verdict is reported back to the model so it can revise the call.
type Error struct {
	Tool    string
	Verdict Verdict
}

// Error implements the error interface.
func (e *Error) Error() string {
	reasons := make([]string, len(e.Verdict.Errors))
	for i, fe := range e.Verdict.Errors {
		reasons[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Reason)
	}
	return fmt.Sprintf("schema validation failed for %s: %s", e.Tool, strings.Join(reasons, "; "))
}

// Validate checks a canonicalized call against its spec. Rule order per
// field: required-present, not-unknown, kind, allowed values; the first
// failing rule stops further checks on that field, but every field is
// still examined so the verdict aggregates across fields.
func (r *Registry) Validate(call *toolcall.ToolCall) Verdict {
	verdict := Verdict{OK: true}

	spec, ok := r.Get(call.Name)
	if !ok {
		verdict.add("", fmt.Sprintf("unknown tool: %s", call.Name))
		return verdict
	}

	// Required parameters present.
	for _, ps := range spec.Params {
		if !ps.Required {
			continue
		}
		if _, found := call.Param(ps.Name); !found {
			verdict.add(ps.Name, "required parameter missing")
		}
	}

	// Per-field checks on what was supplied.
	for _, p := range call.Params {
		ps, known := spec.Param(p.Name)
		if !known {
			verdict.add(p.Name, "parameter not in schema")
			continue
		}
		if !kindMatches(ps.Kind, p.Value.Kind) {
			verdict.add(p.Name, fmt.Sprintf("expected %s, got %s", ps.Kind, p.Value.Kind))
			continue
		}
		if len(ps.AllowedValues) > 0 && p.Value.Kind == toolcall.KindScalar {
			if !contains(ps.AllowedValues, p.Value.Scalar) {
				verdict.add(p.Name, fmt.Sprintf("value %q not in allowed set", p.Value.Scalar))
			}
		}
	}

	// Cross-check with the compiled JSON schema. Anything it catches that
	// the ordered checks missed is appended under a synthetic field.
	if verdict.OK {
		r.mu.RLock()
		js := r.schemas[call.Name]
		r.mu.RUnlock()
		if js != nil {
			result, err := js.Validate(gojsonschema.NewGoLoader(call.ParamMap()))
			if err != nil {
				verdict.add("", fmt.Sprintf("schema check failed: %v", err))
			} else if !result.Valid() {
				for _, desc := range result.Errors() {
					verdict.add(desc.Field(), desc.Description())
				}
			}
		}
	}

	return verdict
}

// ValidateErr is Validate returning a typed error on failure.
func (r *Registry) ValidateErr(call *toolcall.ToolCall) error {
	verdict := r.Validate(call)
	if verdict.OK {
		return nil
	}
	return &Error{Tool: call.Name, Verdict: verdict}
}

func kindMatches(spec ParamKind, got toolcall.ValueKind) bool {
	switch spec {
	case ParamScalar:
		return got == toolcall.KindScalar
	case ParamList:
		return got == toolcall.KindList
	case ParamObject:
		return got == toolcall.KindObject
	default:
		return false
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
