package security

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// PathValidator enforces the workspace boundary: every path-typed
// parameter must resolve to a descendant of the workspace root and must
// not match an ignore pattern.
type PathValidator struct {
	root   string
	ignore *IgnoreSet
}

// NewPathValidator creates a validator rooted at the given workspace
// directory. The root must exist and be a directory; symlinks in the root
// itself are resolved up front so containment checks compare real paths.
func NewPathValidator(root string, ignore *IgnoreSet) (*PathValidator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("workspace root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", root)
	}
	return &PathValidator{root: resolved, ignore: ignore}, nil
}

// Root returns the resolved workspace root.
func (v *PathValidator) Root() string {
	return v.root
}

// Validate resolves input against the workspace root and returns the
// absolute path, or a PathTraversalError / IgnoredPathError.
func (v *PathValidator) Validate(input string) (string, error) {
	if err := checkSuspicious(input); err != nil {
		return "", err
	}

	p := input
	if !filepath.IsAbs(p) {
		p = filepath.Join(v.root, p)
	}
	p = filepath.Clean(p)

	resolved, err := resolveExisting(p)
	if err != nil {
		return "", &PathTraversalError{Path: input, Resolved: p, Root: v.root}
	}

	if resolved != v.root && !strings.HasPrefix(resolved, v.root+string(filepath.Separator)) {
		log.Warn().Str("path", input).Str("resolved", resolved).Msg("Path escapes workspace root")
		return "", &PathTraversalError{Path: input, Resolved: resolved, Root: v.root}
	}

	if v.ignore != nil {
		rel, relErr := filepath.Rel(v.root, resolved)
		if relErr == nil && rel != "." {
			if pattern, matched := v.ignore.Match(rel); matched {
				return "", &IgnoredPathError{Path: input, Pattern: pattern}
			}
		}
	}

	return resolved, nil
}

// Contains reports whether input stays inside the workspace without
// returning the resolved path.
func (v *PathValidator) Contains(input string) bool {
	_, err := v.Validate(input)
	return err == nil
}

// resolveExisting resolves symlinks for the deepest existing ancestor of
// p and rejoins the non-existent remainder, so targets that are about to
// be created still get containment-checked through any symlinked parents.
func resolveExisting(p string) (string, error) {
	var tail []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

// checkSuspicious rejects inputs carrying traversal sequences, Windows
// separators, or URL-encoded variants of either, before any resolution
// happens. Encoded forms are decoded repeatedly to catch double encoding.
func checkSuspicious(input string) error {
	candidates := []string{input}
	cur := input
	for i := 0; i < 3; i++ {
		decoded, err := url.QueryUnescape(cur)
		if err != nil || decoded == cur {
			break
		}
		candidates = append(candidates, decoded)
		cur = decoded
	}

	for _, c := range candidates {
		// Plain ".." segments are handled by resolution plus the
		// containment check; only disguised forms are rejected here.
		if strings.Contains(c, "\\") {
			return &PathTraversalError{Path: input, Resolved: c, Root: ""}
		}
		lower := strings.ToLower(c)
		for _, enc := range []string{"%2e%2e", "%252e%252e", "%c0%af", "%c0%5c"} {
			if strings.Contains(lower, enc) {
				return &PathTraversalError{Path: input, Resolved: c, Root: ""}
			}
		}
	}
	return nil
}
