// Package sandbox implements import-policy enforcement and
// resource-bounded execution for generated module adapters: a static
// AST-based import checker and a subprocess runner, neither of which
// ever imports or evaluates generated source inside the host process.
//
// Grounded on
// _examples/original_source/shared/sandbox/execution_policy.py and
// shared/sandbox/runner.py.
package sandbox

// ExecutionPolicy names a forbidden-import profile and, for the
// integration_test profile, an allowlist of external domains a test is
// permitted to reach.
type ExecutionPolicy struct {
	Name             string
	ForbiddenImports []string
	AllowedDomains   []string
	StrictEnforcement bool // kept through Merge; StaticCheck does not read it and matches forbidden imports by path, aliased or not
}

// DefaultPolicy forbids the classic code-execution/process escape hatches.
func DefaultPolicy() ExecutionPolicy {
	return ExecutionPolicy{
		Name:             "default",
		ForbiddenImports: []string{"os/exec", "syscall", "unsafe", "plugin"},
		StrictEnforcement: true,
	}
}

// ModuleValidationPolicy is used to run a generated adapter's own test
// file: a superset of default, additionally forbidding direct network
// and filesystem access so a module's test suite cannot reach outside
// its own fixtures.
func ModuleValidationPolicy() ExecutionPolicy {
	return ExecutionPolicy{
		Name: "module_validation",
		ForbiddenImports: []string{
			"os/exec", "syscall", "unsafe", "plugin",
			"net", "net/http", "os",
		},
		StrictEnforcement: true,
	}
}

// IntegrationTestPolicy permits network access but only to the named
// domains; enforcement of the domain allowlist itself happens at the
// runner's network layer (out of scope for the static checker, which
// only sees import statements).
func IntegrationTestPolicy(allowedDomains []string) ExecutionPolicy {
	return ExecutionPolicy{
		Name:             "integration_test",
		ForbiddenImports: []string{"os/exec", "syscall", "unsafe", "plugin"},
		AllowedDomains:   allowedDomains,
		StrictEnforcement: false,
	}
}

// Merge composes two policies: the forbidden-import lists union, the
// domain allowlist intersects (an empty result means "no network"
// rather than "unrestricted" — composing with a non-integration policy
// must not loosen it), and StrictEnforcement is true if either input is
// strict. This always produces the policy at least as restrictive as
// either input.
func Merge(a, b ExecutionPolicy) ExecutionPolicy {
	forbidden := make(map[string]struct{}, len(a.ForbiddenImports)+len(b.ForbiddenImports))
	for _, imp := range a.ForbiddenImports {
		forbidden[imp] = struct{}{}
	}
	for _, imp := range b.ForbiddenImports {
		forbidden[imp] = struct{}{}
	}
	merged := make([]string, 0, len(forbidden))
	for imp := range forbidden {
		merged = append(merged, imp)
	}

	domains := intersectDomains(a.AllowedDomains, b.AllowedDomains)

	return ExecutionPolicy{
		Name:              a.Name + "+" + b.Name,
		ForbiddenImports:  merged,
		AllowedDomains:    domains,
		StrictEnforcement: a.StrictEnforcement || b.StrictEnforcement,
	}
}

func intersectDomains(a, b []string) []string {
	if len(a) == 0 {
		return append([]string(nil), b...)
	}
	if len(b) == 0 {
		return append([]string(nil), a...)
	}
	set := make(map[string]struct{}, len(b))
	for _, d := range b {
		set[d] = struct{}{}
	}
	var out []string
	for _, d := range a {
		if _, ok := set[d]; ok {
			out = append(out, d)
		}
	}
	return out
}
