package toolcall

import (
	"fmt"
	"strings"
)

// ValueKind discriminates the variants of a parameter value.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindObject
	KindList
)

// String returns a human-readable kind name.
func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a tagged variant: scalar text, an ordered mapping of named
// children, or an ordered list of values. It mirrors the arbitrary
// nesting the wire markup allows.
type Value struct {
	Kind   ValueKind
	Scalar string
	Fields []Field
	Items  []Value
}

// Field is one named child of an object value. Order is preserved.
type Field struct {
	Name  string
	Value Value
}

// ScalarValue builds a scalar value.
func ScalarValue(s string) Value {
	return Value{Kind: KindScalar, Scalar: s}
}

// ObjectValue builds an object value from ordered fields.
func ObjectValue(fields ...Field) Value {
	return Value{Kind: KindObject, Fields: fields}
}

// ListValue builds a list value.
func ListValue(items ...Value) Value {
	return Value{Kind: KindList, Items: items}
}

// Get returns the named child of an object value.
func (v Value) Get(name string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Text returns the scalar content, or the empty string for non-scalars.
func (v Value) Text() string {
	if v.Kind == KindScalar {
		return v.Scalar
	}
	return ""
}

// Span marks a byte range in the source stream.
type Span struct {
	Start int
	End   int
}

// Param is one named parameter of a tool call. Order is preserved.
type Param struct {
	Name  string
	Value Value
}

// ToolCall is a parsed tool invocation. It is immutable once parsed;
// WithParams returns a copy rather than mutating in place.
type ToolCall struct {
	Name   string
	Params []Param
	Raw    Span
}

// Param returns the named parameter value.
func (c *ToolCall) Param(name string) (Value, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// ParamText returns the named parameter's scalar content.
func (c *ToolCall) ParamText(name string) string {
	v, ok := c.Param(name)
	if !ok {
		return ""
	}
	return v.Text()
}

// WithParams returns a copy of the call carrying replacement parameters.
// The original call is left untouched.
func (c *ToolCall) WithParams(params []Param) *ToolCall {
	cp := make([]Param, len(params))
	copy(cp, params)
	return &ToolCall{Name: c.Name, Params: cp, Raw: c.Raw}
}

// ParamMap flattens scalar parameters into a plain map. Nested values are
// rendered through String. Useful for logging and executor payloads.
func (c *ToolCall) ParamMap() map[string]interface{} {
	m := make(map[string]interface{}, len(c.Params))
	for _, p := range c.Params {
		m[p.Name] = valueToInterface(p.Value)
	}
	return m
}

func valueToInterface(v Value) interface{} {
	switch v.Kind {
	case KindScalar:
		return v.Scalar
	case KindObject:
		m := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			m[f.Name] = valueToInterface(f.Value)
		}
		return m
	case KindList:
		items := make([]interface{}, len(v.Items))
		for i, it := range v.Items {
			items[i] = valueToInterface(it)
		}
		return items
	default:
		return nil
	}
}

// String renders the call in its wire form, mainly for logs and audit
// records.
func (c *ToolCall) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>", c.Name)
	for _, p := range c.Params {
		writeValue(&b, p.Name, p.Value)
	}
	fmt.Fprintf(&b, "</%s>", c.Name)
	return b.String()
}

func writeValue(b *strings.Builder, name string, v Value) {
	switch v.Kind {
	case KindScalar:
		fmt.Fprintf(b, "<%s>%s</%s>", name, v.Scalar, name)
	case KindObject:
		fmt.Fprintf(b, "<%s>", name)
		for _, f := range v.Fields {
			writeValue(b, f.Name, f.Value)
		}
		fmt.Fprintf(b, "</%s>", name)
	case KindList:
		for _, it := range v.Items {
			writeValue(b, name, it)
		}
	}
}
