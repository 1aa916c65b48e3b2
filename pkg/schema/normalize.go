package schema

import (
	"github.com/lbatista/gambit/pkg/toolcall"
)

// argsWrapper is the reserved grouping element senders wrap parameters in.
const argsWrapper = "args"

// Canonicalize normalizes a parsed call to the one shape downstream
// components see: the args wrapper is unwrapped, and intermediate grouping
// elements the sender added (such as the file wrapper some emitters place
// around a path) are spliced out when their children are the real
// parameters. Canonicalizing an already-canonical call is the identity.
func (r *Registry) Canonicalize(call *toolcall.ToolCall) *toolcall.ToolCall {
	spec, ok := r.Get(call.Name)
	if !ok {
		return call
	}

	params := call.Params

	// Unwrap <args>...</args>. An args element is never a declared
	// parameter, so this cannot collide with a real one.
	if len(params) == 1 && params[0].Name == argsWrapper && params[0].Value.Kind == toolcall.KindObject {
		fields := params[0].Value.Fields
		params = make([]toolcall.Param, 0, len(fields))
		for _, f := range fields {
			params = append(params, toolcall.Param{Name: f.Name, Value: f.Value})
		}
	}

	// Splice out grouping elements: an object-valued parameter whose name
	// the spec does not know, but whose children are all declared
	// parameters, stands in for its children.
	out := make([]toolcall.Param, 0, len(params))
	for _, p := range params {
		if _, declared := spec.Param(p.Name); !declared && p.Value.Kind == toolcall.KindObject && allDeclared(spec, p.Value.Fields) {
			for _, f := range p.Value.Fields {
				out = append(out, toolcall.Param{Name: f.Name, Value: f.Value})
			}
			continue
		}
		out = append(out, p)
	}

	if !changed(call.Params, out) {
		return call
	}
	return call.WithParams(out)
}

func allDeclared(spec *Spec, fields []toolcall.Field) bool {
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if _, ok := spec.Param(f.Name); !ok {
			return false
		}
	}
	return true
}

func changed(before, after []toolcall.Param) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i].Name != after[i].Name {
			return true
		}
	}
	return false
}
