package security

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// IgnoreFileName is the per-workspace ignore file, one glob per line.
const IgnoreFileName = ".gambitignore"

// defaultIgnorePatterns are always active regardless of the workspace
// ignore file.
var defaultIgnorePatterns = []string{
	".git",
	".git/**",
	"node_modules",
	"node_modules/**",
	"__pycache__",
	"__pycache__/**",
	"*.pyc",
	"*.pyo",
	".env",
	".env.*",
	"*.log",
	".DS_Store",
	"Thumbs.db",
}

// IgnoreSet holds the ordered glob patterns excluding paths from tool
// operations. It is a snapshot loaded at session start; Reload swaps the
// snapshot atomically when the ignore file changes.
type IgnoreSet struct {
	mu       sync.RWMutex
	root     string
	patterns []string
}

// LoadIgnoreSet builds the ignore set for a workspace root from the
// defaults, the workspace ignore file, and any extra configured patterns.
func LoadIgnoreSet(root string, extra []string) *IgnoreSet {
	s := &IgnoreSet{root: root}
	s.load(extra)
	return s
}

func (s *IgnoreSet) load(extra []string) {
	patterns := make([]string, 0, len(defaultIgnorePatterns)+len(extra))
	patterns = append(patterns, defaultIgnorePatterns...)
	patterns = append(patterns, extra...)
	patterns = append(patterns, readIgnoreFile(filepath.Join(s.root, IgnoreFileName))...)

	s.mu.Lock()
	s.patterns = patterns
	s.mu.Unlock()

	log.Debug().Str("root", s.root).Int("patterns", len(patterns)).Msg("Ignore patterns loaded")
}

// Reload re-reads the workspace ignore file, keeping the extras passed in.
func (s *IgnoreSet) Reload(extra []string) {
	s.load(extra)
}

// Patterns returns a copy of the active patterns in order.
func (s *IgnoreSet) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Match reports the first pattern matching the workspace-relative path.
// A pattern matches the path itself or any of its ancestor directories,
// so ignoring a directory ignores everything beneath it.
func (s *IgnoreSet) Match(rel string) (string, bool) {
	rel = filepath.ToSlash(rel)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pattern := range s.patterns {
		if globMatch(pattern, rel) {
			return pattern, true
		}
		parts := strings.Split(rel, "/")
		for i := 1; i < len(parts); i++ {
			if globMatch(pattern, strings.Join(parts[:i], "/")) {
				return pattern, true
			}
		}
	}
	return "", false
}

// globMatch matches one pattern against one slash-separated path. A
// trailing "/**" matches the directory's whole subtree; a bare pattern
// without a separator also matches against the path's base name.
func globMatch(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	if ok, err := filepath.Match(pattern, path); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := filepath.Match(pattern, filepath.Base(path)); err == nil && ok {
			return true
		}
	}
	return false
}

func readIgnoreFile(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", path).Msg("Failed to read ignore file")
		}
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}
