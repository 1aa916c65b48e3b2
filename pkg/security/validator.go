package security

import (
	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/schema"
	"github.com/lbatista/gambit/pkg/toolcall"
)

// Validator runs both security checks over a canonicalized, schema-valid
// call: path containment for every path-typed parameter and command
// filtering for command-executing tools.
//
// A returned error is a hard rejection that bypasses the approval
// workflow entirely. Soft findings only raise the returned risk floor.
type Validator struct {
	registry *schema.Registry
	paths    *PathValidator
	commands *CommandFilter
}

// NewValidator wires the two checks for one workspace.
func NewValidator(registry *schema.Registry, paths *PathValidator, commands *CommandFilter) *Validator {
	return &Validator{registry: registry, paths: paths, commands: commands}
}

// Paths exposes the underlying path validator.
func (v *Validator) Paths() *PathValidator {
	return v.paths
}

// Check validates the call's security posture. On success it returns the
// risk floor the approval workflow must not go below; the tool's static
// baseline is escalated by per-parameter findings.
func (v *Validator) Check(call *toolcall.ToolCall) (schema.RiskLevel, error) {
	spec, ok := v.registry.Get(call.Name)
	if !ok {
		return schema.RiskHigh, nil
	}
	risk := spec.Risk

	for _, name := range spec.PathParams() {
		val, present := call.Param(name)
		if !present || val.Kind != toolcall.KindScalar {
			continue
		}
		if _, err := v.paths.Validate(val.Scalar); err != nil {
			log.Warn().
				Str("tool", call.Name).
				Str("param", name).
				Err(err).
				Msg("Security check rejected path")
			return risk, err
		}
	}

	if spec.Category == schema.CategoryCommand {
		command := call.ParamText("command")
		if err := v.commands.Check(command); err != nil {
			log.Warn().Str("tool", call.Name).Err(err).Msg("Security check blocked command")
			return risk, err
		}
		risk = risk.Escalate(v.commands.Risk(command))
	}

	return risk, nil
}
