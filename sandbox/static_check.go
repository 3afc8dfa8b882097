package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/nexuscore/nexus/artifact"
)

// RequiredMethods is the adapter contract every generated module must
// satisfy, equivalent to the original's {fetch_raw, transform,
// get_schema} trio required on the @register_adapter-decorated class.
var RequiredMethods = []string{"FetchRaw", "Transform", "GetSchema"}

// RegistrationFunc is the call generated adapters must make at package
// init time to join the module registry, replacing the original's
// @register_adapter decorator side effect.
const RegistrationFunc = "RegisterAdapter"

// StaticCheck parses source under policy and reports forbidden imports
// (with line numbers), syntax errors, and any of RequiredMethods missing
// from the file's method set. It never executes source.
func StaticCheck(source []byte, policy ExecutionPolicy) artifact.StaticResult {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "adapter.go", source, parser.AllErrors)
	if err != nil {
		return artifact.StaticResult{Passed: false, SyntaxErrors: []string{err.Error()}}
	}

	forbidden := forbiddenImportSet(policy)
	var violations []string

	for _, imp := range file.Imports {
		path, uerr := strconv.Unquote(imp.Path.Value)
		if uerr != nil {
			continue
		}
		if _, blocked := forbidden[path]; blocked {
			pos := fset.Position(imp.Pos())
			violations = append(violations, fmt.Sprintf("%s:%d: forbidden import %q", pos.Filename, pos.Line, path))
		}
	}

	defined := definedMethodNames(file)
	var missing []string
	for _, m := range RequiredMethods {
		if !defined[m] {
			missing = append(missing, m)
		}
	}
	if !callsRegistration(file) {
		missing = append(missing, RegistrationFunc)
	}

	passed := len(violations) == 0 && len(missing) == 0
	return artifact.StaticResult{
		Passed:           passed,
		ForbiddenImports: violations,
		MissingMethods:   missing,
	}
}

func forbiddenImportSet(policy ExecutionPolicy) map[string]struct{} {
	set := make(map[string]struct{}, len(policy.ForbiddenImports))
	for _, imp := range policy.ForbiddenImports {
		set[imp] = struct{}{}
	}
	return set
}

// definedMethodNames collects every method name declared in file,
// regardless of receiver type — a generated adapter is a single-type
// file, so this is precise enough without resolving the receiver.
func definedMethodNames(file *ast.File) map[string]bool {
	names := make(map[string]bool)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil {
			continue
		}
		names[fn.Name.Name] = true
	}
	return names
}

// callsRegistration reports whether the file calls RegisterAdapter
// anywhere at package scope (typically from an init() function or a
// package-level var initializer).
func callsRegistration(file *ast.File) bool {
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if found {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			if fn.Name == RegistrationFunc {
				found = true
			}
		case *ast.SelectorExpr:
			if fn.Sel.Name == RegistrationFunc {
				found = true
			}
		}
		return true
	})
	return found
}

// ImportPaths returns every import path the file declares, for callers
// that want to audit beyond the forbidden set.
func ImportPaths(source []byte) ([]string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "adapter.go", source, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(file.Imports))
	for _, imp := range file.Imports {
		path, uerr := strconv.Unquote(imp.Path.Value)
		if uerr != nil {
			continue
		}
		out = append(out, path)
	}
	return out, nil
}
