package toolcall

import (
	"fmt"
	"html"
	"strings"
	"unicode"
)

// ParseError describes malformed tool-call markup. It is recoverable: the
// caller reports it back to the model so the call can be re-emitted.
type ParseError struct {
	Position int
	Expected string
	Found    string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: expected %s, found %s", e.Position, e.Expected, e.Found)
}

// Parser parses a contiguous block of tool-call markup into a ToolCall.
// The known func reports whether a name is a registered tool; unknown
// parameter names are accepted here and left for schema validation, but
// an unknown top-level tag is a parse error.
type Parser struct {
	known func(string) bool
}

// NewParser creates a parser over the given tool-name predicate.
func NewParser(known func(string) bool) *Parser {
	return &Parser{known: known}
}

// Parse parses one complete tool call occupying the whole block.
func (p *Parser) Parse(block string) (*ToolCall, error) {
	return p.parseAt(block, 0)
}

// parseAt parses a call from src, reporting positions relative to base.
func (p *Parser) parseAt(src string, base int) (*ToolCall, error) {
	s := &scanState{src: src, base: base}

	s.skipSpace()
	start := s.pos
	name, err := s.openTag()
	if err != nil {
		return nil, err
	}
	if p.known != nil && !p.known(name) {
		return nil, &ParseError{Position: base + start, Expected: "registered tool name", Found: name}
	}

	body, err := s.element(name)
	if err != nil {
		return nil, err
	}
	s.skipSpace()
	if s.pos < len(s.src) {
		return nil, &ParseError{Position: base + s.pos, Expected: "end of input", Found: s.peekDesc()}
	}

	call := &ToolCall{Name: name, Raw: Span{Start: base + start, End: base + s.pos}}
	switch body.Kind {
	case KindObject:
		for _, f := range body.Fields {
			call.Params = append(call.Params, Param{Name: f.Name, Value: f.Value})
		}
	case KindScalar:
		if body.Scalar != "" {
			return nil, &ParseError{Position: base + start, Expected: "parameter elements", Found: "bare text"}
		}
	}
	return call, nil
}

type scanState struct {
	src  string
	pos  int
	base int
}

func (s *scanState) skipSpace() {
	for s.pos < len(s.src) && unicode.IsSpace(rune(s.src[s.pos])) {
		s.pos++
	}
}

func (s *scanState) peekDesc() string {
	if s.pos >= len(s.src) {
		return "end of input"
	}
	rest := s.src[s.pos:]
	if len(rest) > 16 {
		rest = rest[:16]
	}
	return fmt.Sprintf("%q", rest)
}

// openTag consumes "<name>" (attributes, if any, are skipped) and returns
// the tag name.
func (s *scanState) openTag() (string, error) {
	if s.pos >= len(s.src) || s.src[s.pos] != '<' {
		return "", &ParseError{Position: s.base + s.pos, Expected: "opening tag", Found: s.peekDesc()}
	}
	nameStart := s.pos + 1
	i := nameStart
	for i < len(s.src) && isNameByte(s.src[i]) {
		i++
	}
	if i == nameStart {
		return "", &ParseError{Position: s.base + s.pos, Expected: "tag name", Found: s.peekDesc()}
	}
	name := s.src[nameStart:i]
	// Skip attributes up to the closing bracket.
	for i < len(s.src) && s.src[i] != '>' {
		if s.src[i] == '<' {
			return "", &ParseError{Position: s.base + i, Expected: "'>'", Found: "'<'"}
		}
		i++
	}
	if i >= len(s.src) {
		return "", &ParseError{Position: s.base + s.pos, Expected: "'>'", Found: "end of input"}
	}
	s.pos = i + 1
	return name, nil
}

// element parses the content of an already-opened tag through its close
// tag. Content is either text (scalar) or nested child elements; repeated
// sibling names collapse into a list value.
func (s *scanState) element(name string) (Value, error) {
	var text strings.Builder
	var fields []Field
	sawText := false

	for {
		if s.pos >= len(s.src) {
			return Value{}, &ParseError{Position: s.base + s.pos, Expected: fmt.Sprintf("</%s>", name), Found: "end of input"}
		}
		if s.src[s.pos] != '<' {
			start := s.pos
			for s.pos < len(s.src) && s.src[s.pos] != '<' {
				s.pos++
			}
			chunk := s.src[start:s.pos]
			if strings.TrimSpace(chunk) != "" {
				sawText = true
			}
			text.WriteString(chunk)
			continue
		}
		// Close tag?
		if strings.HasPrefix(s.src[s.pos:], "</") {
			end := strings.IndexByte(s.src[s.pos:], '>')
			if end < 0 {
				return Value{}, &ParseError{Position: s.base + s.pos, Expected: fmt.Sprintf("</%s>", name), Found: "end of input"}
			}
			closing := strings.TrimSpace(s.src[s.pos+2 : s.pos+end])
			if closing != name {
				return Value{}, &ParseError{
					Position: s.base + s.pos,
					Expected: fmt.Sprintf("</%s>", name),
					Found:    fmt.Sprintf("</%s>", closing),
				}
			}
			s.pos += end + 1
			break
		}
		// Child element.
		childStart := s.pos
		childName, err := s.openTag()
		if err != nil {
			return Value{}, err
		}
		childVal, err := s.element(childName)
		if err != nil {
			return Value{}, err
		}
		if sawText {
			return Value{}, &ParseError{
				Position: s.base + childStart,
				Expected: "text content only",
				Found:    fmt.Sprintf("<%s>", childName),
			}
		}
		fields = appendField(fields, childName, childVal)
	}

	if len(fields) > 0 {
		if sawText {
			return Value{}, &ParseError{
				Position: s.base + s.pos,
				Expected: "child elements only",
				Found:    "mixed text",
			}
		}
		return Value{Kind: KindObject, Fields: fields}, nil
	}
	// Whitespace-only text nodes are dropped; everything else is kept
	// byte-for-byte apart from entity unescaping.
	content := text.String()
	if !sawText {
		content = ""
	}
	return ScalarValue(html.UnescapeString(content)), nil
}

// appendField adds a child, folding a repeated sibling name into a list.
func appendField(fields []Field, name string, v Value) []Field {
	for i := range fields {
		if fields[i].Name != name {
			continue
		}
		existing := fields[i].Value
		if existing.Kind == KindList {
			existing.Items = append(existing.Items, v)
		} else {
			existing = ListValue(existing, v)
		}
		fields[i].Value = existing
		return fields
	}
	return append(fields, Field{Name: name, Value: v})
}

func isNameByte(b byte) bool {
	return b == '_' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
