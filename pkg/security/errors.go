package security

import "fmt"

// PathTraversalError reports a path that resolves outside the workspace
// root. Terminal for the call: never retried, never downgraded.
type PathTraversalError struct {
	Path     string
	Resolved string
	Root     string
}

// Error implements the error interface.
func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("path traversal detected: %q resolves outside workspace root %s", e.Path, e.Root)
}

// IgnoredPathError reports a path excluded by ignore patterns even though
// it lies inside the workspace.
type IgnoredPathError struct {
	Path    string
	Pattern string
}

// Error implements the error interface.
func (e *IgnoredPathError) Error() string {
	return fmt.Sprintf("access denied by ignore pattern %q: %s", e.Pattern, e.Path)
}

// CommandBlockedError reports a command matching the destructive
// blacklist or the configured deny list. It is final and never eligible
// for approval override.
type CommandBlockedError struct {
	Command string
	Pattern string
}

// Error implements the error interface.
func (e *CommandBlockedError) Error() string {
	return fmt.Sprintf("command blocked by security filter (%s): %s", e.Pattern, e.Command)
}

// IsHardRejection reports whether err is one of the security errors that
// bypass the approval workflow entirely.
func IsHardRejection(err error) bool {
	switch err.(type) {
	case *PathTraversalError, *IgnoredPathError, *CommandBlockedError:
		return true
	default:
		return false
	}
}
