package pipeline

import (
	"context"
	"fmt"

	"github.com/nexuscore/nexus/artifact"
	"github.com/nexuscore/nexus/sandbox"
)

// Validator runs the merged static+runtime validation pass for a
// module's current on-disk source.
type Validator struct {
	policy    sandbox.ExecutionPolicy
	runner    *sandbox.Runner
	allowedDirs []string
}

// NewValidator builds a Validator that applies policy in its static
// import check. allowedDirs is stored on the Validator, but Validate does
// not consult it and checks no file paths.
func NewValidator(policy sandbox.ExecutionPolicy, runner *sandbox.Runner, allowedDirs []string) *Validator {
	return &Validator{policy: policy, runner: runner, allowedDirs: allowedDirs}
}

// Validate runs static checks against adapterSrc and, when static
// checks pass, runs testBinaryPath under the sandbox and merges both
// into a Report with derived fix hints.
func (v *Validator) Validate(ctx context.Context, moduleID string, adapterSrc []byte, testBinaryPath string) artifact.Report {
	static := sandbox.StaticCheck(adapterSrc, v.policy)

	var runtime artifact.RuntimeResult
	if static.Passed && testBinaryPath != "" {
		runtime = v.runner.Run(ctx, testBinaryPath, nil)
	}

	hints := deriveFixHints(static, runtime)

	status := artifact.ValidationValidated
	if !static.Passed || runtime.Failed > 0 || runtime.Errored > 0 || runtime.TimedOut {
		status = artifact.ValidationFailed
	}

	return artifact.Report{
		Status:         status,
		ModuleID:       moduleID,
		StaticResults:  static,
		RuntimeResults: runtime,
		FixHints:       hints,
	}
}

func deriveFixHints(static artifact.StaticResult, runtime artifact.RuntimeResult) []artifact.FixHint {
	var hints []artifact.FixHint

	for _, v := range static.ForbiddenImports {
		hints = append(hints, artifact.FixHint{Category: artifact.CategoryImportViolation, Message: v})
	}
	for _, m := range static.MissingMethods {
		hints = append(hints, artifact.FixHint{
			Category: artifact.CategoryMissingMethod,
			Message:  fmt.Sprintf("missing required method or registration call: %s", m),
		})
	}
	for _, s := range static.SyntaxErrors {
		hints = append(hints, artifact.FixHint{Category: artifact.CategorySyntaxError, Message: s})
	}
	if runtime.Failed > 0 || runtime.Errored > 0 {
		hints = append(hints, artifact.FixHint{
			Category: artifact.CategoryTestFailure,
			Message:  fmt.Sprintf("%d failing, %d errored test line(s)", runtime.Failed, runtime.Errored),
		})
	}

	return hints
}
