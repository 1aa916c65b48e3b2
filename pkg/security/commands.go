package security

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/schema"
)

// destructivePatterns match commands that are never allowed to run, no
// matter what an approver says.
var destructivePatterns = []string{
	// Filesystem destruction
	`rm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r|--recursive|--force)\s+(/|~|\$HOME)(\s|$)`,
	`dd\s+if=/dev/(zero|random|urandom)`,
	`mkfs\.`,
	`fdisk`,
	`parted`,
	// Fork bombs
	`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`,
	// Piping downloads straight into an interpreter
	`curl[^|]*\|\s*(sh|bash|zsh|python)`,
	`wget[^|]*\|\s*(sh|bash|zsh|python)`,
	`nc\s+.*-e`,
	`netcat\s+.*-e`,
	// Privilege escalation
	`sudo\s+(rm|dd|mkfs|fdisk|chmod|chown)`,
	`su\s+-`,
	// Killing init / everything
	`kill\s+-9\s+1(\s|$)`,
	`killall\s+-9`,
	// Opening up or redirecting over devices
	`chmod\s+777\s+/`,
	`>\s*/dev/sd[a-z]`,
}

// highRiskPatterns escalate risk without blocking.
var highRiskPatterns = []string{
	`^rm\s`,
	`^sudo\s`,
	`^chmod\s`,
	`^chown\s`,
	`npm\s+install`,
	`pip\s+install`,
}

// mediumRiskPatterns escalate to at least medium.
var mediumRiskPatterns = []string{
	`^git\s+(push|pull|checkout|reset)`,
	`^cargo\s+build`,
	`^npm\s+run`,
	`^python3?\s`,
	`^node\s`,
}

// defaultAllowedCommands are command names considered routine; anything
// not listed is escalated to high risk for the approval workflow rather
// than rejected.
var defaultAllowedCommands = []string{
	"ls", "cat", "head", "tail", "grep", "find", "pwd", "cd", "echo",
	"mkdir", "touch", "cp", "mv", "rm",
	"python", "python3", "node", "npm", "yarn", "pip", "cargo", "go",
	"gcc", "clang", "make", "tsc", "git",
	"uname", "whoami", "date", "uptime", "ps", "df", "free",
	"sort", "uniq", "awk", "sed", "cut", "wc",
	"tar", "zip", "unzip", "gzip", "gunzip",
}

// CommandFilter screens shell commands for command-executing tools: a
// destructive blacklist that rejects irrevocably, plus configurable
// allow/deny lists of command names feeding the risk classification.
type CommandFilter struct {
	blocked    []*regexp.Regexp
	highRisk   []*regexp.Regexp
	mediumRisk []*regexp.Regexp
	allowed    map[string]bool
	denied     map[string]bool
}

// CommandFilterConfig customizes the name lists. Empty Allow keeps the
// default allow list; Deny is always additive.
type CommandFilterConfig struct {
	Allow []string
	Deny  []string
}

// NewCommandFilter builds a filter from the builtin patterns and the
// given config.
func NewCommandFilter(cfg CommandFilterConfig) *CommandFilter {
	f := &CommandFilter{
		allowed: make(map[string]bool),
		denied:  make(map[string]bool),
	}
	for _, p := range destructivePatterns {
		f.blocked = append(f.blocked, regexp.MustCompile(`(?i)`+p))
	}
	for _, p := range highRiskPatterns {
		f.highRisk = append(f.highRisk, regexp.MustCompile(`(?i)`+p))
	}
	for _, p := range mediumRiskPatterns {
		f.mediumRisk = append(f.mediumRisk, regexp.MustCompile(`(?i)`+p))
	}

	allow := cfg.Allow
	if len(allow) == 0 {
		allow = defaultAllowedCommands
	}
	for _, name := range allow {
		f.allowed[name] = true
	}
	for _, name := range cfg.Deny {
		f.denied[name] = true
	}

	log.Debug().
		Int("blocked_patterns", len(f.blocked)).
		Int("allowed_names", len(f.allowed)).
		Int("denied_names", len(f.denied)).
		Msg("Command filter initialized")
	return f
}

// Check returns a CommandBlockedError when the command matches the
// destructive blacklist or a denied command name. Passing Check does not
// imply approval; it only means the command is eligible for the workflow.
func (f *CommandFilter) Check(command string) error {
	cleaned := strings.TrimSpace(command)
	if cleaned == "" {
		return &CommandBlockedError{Command: command, Pattern: "empty command"}
	}

	for _, re := range f.blocked {
		if re.MatchString(cleaned) {
			log.Warn().Str("pattern", re.String()).Msg("Command blocked by destructive pattern")
			return &CommandBlockedError{Command: command, Pattern: re.String()}
		}
	}

	tokens, err := Tokenize(cleaned)
	if err != nil {
		// Unbalanced quoting is treated as hostile.
		return &CommandBlockedError{Command: command, Pattern: fmt.Sprintf("unparseable command: %v", err)}
	}
	for _, name := range commandNames(tokens) {
		if f.denied[name] {
			log.Warn().Str("command", name).Msg("Command name on deny list")
			return &CommandBlockedError{Command: command, Pattern: "denied command: " + name}
		}
	}
	return nil
}

// Risk classifies a command that passed Check. Unknown command names are
// escalated to high so the approval workflow always sees them.
func (f *CommandFilter) Risk(command string) schema.RiskLevel {
	cleaned := strings.TrimSpace(command)

	risk := schema.RiskLow
	for _, re := range f.mediumRisk {
		if re.MatchString(cleaned) {
			risk = risk.Escalate(schema.RiskMedium)
		}
	}
	for _, re := range f.highRisk {
		if re.MatchString(cleaned) {
			risk = risk.Escalate(schema.RiskHigh)
		}
	}

	tokens, err := Tokenize(cleaned)
	if err != nil {
		return schema.RiskHigh
	}
	for _, name := range commandNames(tokens) {
		if !f.allowed[name] {
			risk = risk.Escalate(schema.RiskHigh)
		}
	}
	return risk
}

// commandNames extracts the command name of each pipeline/sequence stage.
func commandNames(tokens []string) []string {
	var names []string
	expectCmd := true
	for _, tok := range tokens {
		switch tok {
		case "|", "||", "&&", ";", "&":
			expectCmd = true
			continue
		}
		if expectCmd {
			name := tok
			if i := strings.LastIndexByte(name, '/'); i >= 0 {
				name = name[i+1:]
			}
			names = append(names, name)
			expectCmd = false
		}
	}
	return names
}

// Tokenize splits a command line the way a POSIX shell lexes words,
// keeping pipe/sequence operators as their own tokens. It returns an
// error on unbalanced quotes.
func Tokenize(command string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				cur.WriteByte(c)
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			} else {
				cur.WriteByte(c)
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == ' ' || c == '\t':
			flush()
		case c == '|' || c == ';' || c == '&':
			flush()
			op := string(c)
			if i+1 < len(command) && (command[i+1] == c) && c != ';' {
				op += string(command[i+1])
				i++
			}
			tokens = append(tokens, op)
		default:
			cur.WriteByte(c)
		}
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unbalanced quote")
	}
	flush()
	return tokens, nil
}
