package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// adapterTemplate is the scaffold for a new module's source file.
// {{.ClassName}}-style substitution is intentionally avoided in favor of
// fmt.Sprintf, matching the teacher's preference for explicit string
// building over text/template for short, fixed-shape generated files.
const adapterTemplate = `package %s

// %s adapts the %s platform for category %s.
type %s struct{}

func (a *%s) FetchRaw() ([]byte, error) {
	return nil, nil
}

func (a *%s) Transform(raw []byte) ([]byte, error) {
	return raw, nil
}

func (a *%s) GetSchema() string {
	return "{}"
}

func init() {
	RegisterAdapter(&%s{})
}
`

const testAdapterTemplate = `package %s

import "testing"

func TestAdapter_FetchRaw(t *testing.T) {
	a := &%s{}
	if _, err := a.FetchRaw(); err != nil {
		t.Fatalf("FetchRaw: %%v", err)
	}
}
`

// Workspace manages a module's on-disk scaffold: the directory
// modules/{category}/{platform}/ containing manifest.json, adapter.go,
// and adapter_test.go.
type Workspace struct {
	root string
}

// NewWorkspace roots a Workspace at baseDir (typically "modules").
func NewWorkspace(baseDir string) *Workspace {
	return &Workspace{root: baseDir}
}

func (w *Workspace) dir(category, platform string) string {
	return filepath.Join(w.root, category, platform)
}

// Exists reports whether a module directory has already been scaffolded.
func (w *Workspace) Exists(category, platform string) bool {
	_, err := os.Stat(w.dir(category, platform))
	return err == nil
}

// Build scaffolds a new module directory from spec. Returns an error if
// the module directory already exists.
func (w *Workspace) Build(spec BuildSpec) (Manifest, error) {
	if w.Exists(spec.Category, spec.Platform) {
		return Manifest{}, fmt.Errorf("pipeline: module %s/%s already exists", spec.Category, spec.Platform)
	}

	dir := w.dir(spec.Category, spec.Platform)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("pipeline: scaffold %s: %w", dir, err)
	}

	authType := spec.AuthType
	if authType == "" {
		if spec.RequiresAPIKey {
			authType = AuthAPIKey
		} else {
			authType = AuthNone
		}
	}

	pkg := spec.Platform
	className := "Adapter"

	manifest := Manifest{
		Name:         spec.Name,
		Category:     spec.Category,
		Platform:     spec.Platform,
		Version:      "0.1.0",
		EntryPoint:   "adapter.go",
		ClassName:    className,
		RequiresAuth: spec.RequiresAPIKey,
		AuthType:     authType,
		Status:       StatusPending,
		HealthStatus: HealthUnknown,
		Description:  spec.Description,
		APIBaseURL:   spec.APIBaseURL,
	}

	adapterSrc := fmt.Sprintf(adapterTemplate, pkg, className, spec.Platform, spec.Category, className, className, className, className, className)
	testSrc := fmt.Sprintf(testAdapterTemplate, pkg, className)

	if err := w.writeManifest(dir, manifest); err != nil {
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "adapter.go"), []byte(adapterSrc), 0o644); err != nil {
		return Manifest{}, fmt.Errorf("pipeline: write adapter.go: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "adapter_test.go"), []byte(testSrc), 0o644); err != nil {
		return Manifest{}, fmt.Errorf("pipeline: write adapter_test.go: %w", err)
	}

	return manifest, nil
}

// WriteCode replaces a module's adapter source (and optionally its test
// source), resetting the manifest back to pending. Source is neither
// parsed nor compiled here, and source with syntax errors is written as
// given: RepairLoop.Run calls WriteCode first and only afterwards runs
// Validator.Validate, whose sandbox.StaticCheck reports syntax errors.
func (w *Workspace) WriteCode(manifest *Manifest, adapterSrc string, testSrc string) error {
	dir := w.dir(manifest.Category, manifest.Platform)
	if err := os.WriteFile(filepath.Join(dir, "adapter.go"), []byte(adapterSrc), 0o644); err != nil {
		return fmt.Errorf("pipeline: write adapter.go: %w", err)
	}
	if testSrc != "" {
		if err := os.WriteFile(filepath.Join(dir, "adapter_test.go"), []byte(testSrc), 0o644); err != nil {
			return fmt.Errorf("pipeline: write adapter_test.go: %w", err)
		}
	}
	manifest.Status = StatusPending
	return w.writeManifest(dir, *manifest)
}

// ReadFiles returns the module's source files keyed by path, for bundle
// hashing and validation.
func (w *Workspace) ReadFiles(category, platform string) (map[string][]byte, error) {
	dir := w.dir(category, platform)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", dir, err)
	}
	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("pipeline: read %s: %w", path, rerr)
		}
		files[filepath.Join(category, platform, e.Name())] = content
	}
	return files, nil
}

func (w *Workspace) writeManifest(dir string, manifest Manifest) error {
	data, err := manifestJSON(manifest)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("pipeline: write manifest.json: %w", err)
	}
	return nil
}
