package toolcall

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Scanner extracts complete tool calls from an incrementally growing
// stream of model output. Plain prose flows through untouched; only
// regions opening with a registered tool tag are treated as markup.
//
// The scanner keeps a cursor past all confirmed-complete content so each
// Feed only examines the unconfirmed tail, never re-scanning calls it has
// already emitted.
type Scanner struct {
	parser *Parser
	known  func(string) bool

	buf     string
	base    int // stream offset of buf[0]
	scanned int // offset within buf below which no call can start
}

// NewScanner creates a scanner emitting calls for the given tool-name
// predicate.
func NewScanner(known func(string) bool) *Scanner {
	return &Scanner{parser: NewParser(known), known: known}
}

// Feed appends a chunk of model output and returns every tool call that
// became complete. A malformed call region yields a ParseError but does
// not stop the scan: calls after the broken region are still emitted, and
// the first error of the chunk is returned alongside them.
func (s *Scanner) Feed(chunk string) ([]*ToolCall, error) {
	s.buf += chunk

	var calls []*ToolCall
	var firstErr error
	for {
		start, name, ok := s.nextCandidate()
		if !ok {
			s.scanned = safeCut(s.buf, s.scanned)
			s.compact()
			return calls, firstErr
		}
		end, found := callEnd(s.buf[start:], name)
		if !found {
			// Incomplete: wait for more bytes, keep the candidate.
			s.scanned = start
			s.compact()
			return calls, firstErr
		}
		region := s.buf[start : start+end]
		call, err := s.parser.parseAt(region, s.base+start)
		s.scanned = start + end
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Debug().Str("tool", call.Name).Int("offset", call.Raw.Start).Msg("Tool call complete")
		calls = append(calls, call)
	}
}

// Pending reports whether the unconfirmed tail opens a tool call that has
// not yet seen its closing tag.
func (s *Scanner) Pending() bool {
	_, _, ok := s.nextCandidate()
	return ok
}

// Finish signals end of turn. An open, incomplete call at that point is a
// parse error; otherwise Finish is a no-op.
func (s *Scanner) Finish() error {
	start, name, ok := s.nextCandidate()
	if !ok {
		return nil
	}
	err := &ParseError{
		Position: s.base + start,
		Expected: "</" + name + ">",
		Found:    "end of turn",
	}
	s.scanned = len(s.buf)
	s.compact()
	return err
}

// Offset returns the absolute stream offset consumed so far.
func (s *Scanner) Offset() int {
	return s.base + len(s.buf)
}

// nextCandidate finds the next opening tag of a registered tool at or
// after the scan cursor.
func (s *Scanner) nextCandidate() (int, string, bool) {
	i := s.scanned
	for {
		rel := strings.IndexByte(s.buf[i:], '<')
		if rel < 0 {
			return 0, "", false
		}
		i += rel
		name, hasEnd := tagNameAt(s.buf, i)
		if name != "" && s.known != nil && s.known(name) {
			return i, name, true
		}
		if name == "" && !hasEnd && i+maxTagName >= len(s.buf) {
			// A '<' near the tail may still grow into a tool tag.
			return i, "", false
		}
		i++
	}
}

const maxTagName = 64

// tagNameAt reads a tag name opening at buf[i] (which must be '<').
// hasEnd reports whether the name was terminated within the buffer.
func tagNameAt(buf string, i int) (string, bool) {
	j := i + 1
	for j < len(buf) && isNameByte(buf[j]) && j-i <= maxTagName {
		j++
	}
	if j == i+1 {
		return "", j < len(buf)
	}
	if j >= len(buf) {
		return "", false
	}
	if buf[j] != '>' && !isSpaceByte(buf[j]) {
		return "", true
	}
	return buf[i+1 : j], true
}

// callEnd returns the length of the region closing the top-level tag,
// tracking nesting depth of same-named tags.
func callEnd(src string, name string) (int, bool) {
	openTag := "<" + name + ">"
	closeTag := "</" + name + ">"
	depth := 0
	i := 0
	for {
		rel := strings.IndexByte(src[i:], '<')
		if rel < 0 {
			return 0, false
		}
		i += rel
		switch {
		case strings.HasPrefix(src[i:], closeTag):
			if depth == 1 {
				return i + len(closeTag), true
			}
			depth--
			i += len(closeTag)
		case strings.HasPrefix(src[i:], openTag):
			depth++
			i += len(openTag)
		default:
			i++
		}
	}
}

// safeCut returns the largest cut point that cannot split a tag still
// being streamed in: a trailing '<'-prefixed run of name bytes is kept.
func safeCut(buf string, from int) int {
	tail := buf
	low := len(buf) - maxTagName - 2
	if low < from {
		low = from
	}
	for i := len(tail) - 1; i >= low; i-- {
		if tail[i] != '<' {
			continue
		}
		partial := true
		for j := i + 1; j < len(tail); j++ {
			if !isNameByte(tail[j]) {
				partial = false
				break
			}
		}
		if partial {
			return i
		}
	}
	return len(buf)
}

func (s *Scanner) compact() {
	keep := s.scanned
	if keep <= 0 {
		return
	}
	if keep > len(s.buf) {
		keep = len(s.buf)
	}
	s.base += keep
	s.buf = s.buf[keep:]
	s.scanned = 0
}
