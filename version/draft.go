// Package version implements the dev-mode draft lifecycle
// (EDITING→VALIDATED→PROMOTED, sink DISCARDED) and the SQLite-backed
// version manager used for instant, pointer-only rollback.
//
// Grounded on _examples/original_source/tests/unit/test_draft_version_tools.py
// (the DraftManager/VersionManager surface) and shared/modules/versioning.py.
package version

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/nexus/artifact"
	"github.com/nexuscore/nexus/pipeline"
)

// DraftState is a draft's lifecycle state.
type DraftState string

const (
	DraftEditing   DraftState = "EDITING"
	DraftValidated DraftState = "VALIDATED"
	DraftPromoted  DraftState = "PROMOTED"
	DraftDiscarded DraftState = "DISCARDED"
)

// Draft is an in-progress, isolated copy of an installed module's files,
// edited independently of the live install until promoted or discarded.
type Draft struct {
	DraftID      string
	ModuleID     string
	State        DraftState
	CreatedAt    string
	CreatedBy    string
	BundleSHA256 string // set on successful validation
}

// DraftManager coordinates the create/edit/validate/promote/discard
// cycle for module drafts, isolated from the live pipeline.Workspace
// until promotion. It has no operation that diffs a draft against the
// installed module.
type DraftManager struct {
	draftsDir  string
	modulesDir string
	workspace  *pipeline.Workspace
	audit      *artifact.DevModeLog

	mu     sync.Mutex
	drafts map[string]*Draft
}

// NewDraftManager builds a DraftManager rooted at draftsDir, copying
// modules out of the pipeline.Workspace rooted at modulesDir.
func NewDraftManager(draftsDir, modulesDir string, workspace *pipeline.Workspace, audit *artifact.DevModeLog) *DraftManager {
	return &DraftManager{
		draftsDir:  draftsDir,
		modulesDir: modulesDir,
		workspace:  workspace,
		audit:      audit,
		drafts:     make(map[string]*Draft),
	}
}

// ErrDraftNotFound is returned by any operation on an unknown draft_id.
type ErrDraftNotFound struct{ DraftID string }

func (e *ErrDraftNotFound) Error() string { return fmt.Sprintf("version: draft %q not found", e.DraftID) }

// ErrInvalidDraftState is returned when an operation is attempted from a
// state that does not allow it.
type ErrInvalidDraftState struct {
	DraftID string
	State   DraftState
	Op      string
}

func (e *ErrInvalidDraftState) Error() string {
	return fmt.Sprintf("version: cannot %s in state %s (draft %s)", e.Op, e.State, e.DraftID)
}

func (m *DraftManager) draftDir(draftID string) string {
	return filepath.Join(m.draftsDir, draftID)
}

// CreateDraft copies module_id's currently installed files into a fresh
// draft workspace and returns it in state EDITING.
func (m *DraftManager) CreateDraft(moduleID, actor string) (*Draft, error) {
	category, platform, err := splitModuleID(moduleID)
	if err != nil {
		return nil, err
	}

	files, err := m.workspace.ReadFiles(category, platform)
	if err != nil {
		return nil, fmt.Errorf("version: create draft for %s: %w", moduleID, err)
	}

	draftID := "draft_" + uuid.New().String()[:8]
	dir := m.draftDir(draftID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("version: create draft dir: %w", err)
	}
	for path, content := range files {
		name := filepath.Base(path)
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return nil, fmt.Errorf("version: seed draft file %s: %w", name, err)
		}
	}

	d := &Draft{
		DraftID:   draftID,
		ModuleID:  moduleID,
		State:     DraftEditing,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		CreatedBy: actor,
	}

	m.mu.Lock()
	m.drafts[draftID] = d
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.LogAction(artifact.ActionDraftCreated, actor, moduleID, draftID, nil)
	}
	return d, nil
}

// EditFile overwrites path within a draft's workspace. Only allowed in
// EDITING.
func (m *DraftManager) EditFile(draftID, path, content, actor string) error {
	m.mu.Lock()
	d, ok := m.drafts[draftID]
	m.mu.Unlock()
	if !ok {
		return &ErrDraftNotFound{DraftID: draftID}
	}
	if d.State != DraftEditing {
		return &ErrInvalidDraftState{DraftID: draftID, State: d.State, Op: "edit"}
	}

	full := filepath.Join(m.draftDir(draftID), filepath.Clean(path))
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("version: edit %s in draft %s: %w", path, draftID, err)
	}

	if m.audit != nil {
		m.audit.LogAction(artifact.ActionDraftEdited, actor, d.ModuleID, draftID, map[string]string{"path": path})
	}
	return nil
}

// ReadFiles returns a draft's current file set, keyed by bare filename.
func (m *DraftManager) ReadFiles(draftID string) (map[string][]byte, error) {
	m.mu.Lock()
	_, ok := m.drafts[draftID]
	m.mu.Unlock()
	if !ok {
		return nil, &ErrDraftNotFound{DraftID: draftID}
	}

	dir := m.draftDir(draftID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("version: read draft %s: %w", draftID, err)
	}
	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files[e.Name()] = content
	}
	return files, nil
}

// Validator is the injected validation callback: it validates the
// draft's adapter source and returns a Report (status VALIDATED on
// success).
type Validator func(moduleID string, files map[string][]byte) artifact.Report

// ValidateDraft runs validator against the draft's current files. On
// success, state moves to VALIDATED and the bundle hash is recorded; on
// failure, state falls back to EDITING.
func (m *DraftManager) ValidateDraft(draftID, actor string, validate Validator) (artifact.Report, error) {
	m.mu.Lock()
	d, ok := m.drafts[draftID]
	m.mu.Unlock()
	if !ok {
		return artifact.Report{}, &ErrDraftNotFound{DraftID: draftID}
	}
	if d.State == DraftDiscarded {
		return artifact.Report{}, &ErrInvalidDraftState{DraftID: draftID, State: d.State, Op: "validate"}
	}

	files, err := m.ReadFiles(draftID)
	if err != nil {
		return artifact.Report{}, err
	}

	report := validate(d.ModuleID, files)

	m.mu.Lock()
	if report.Passed() {
		d.State = DraftValidated
		d.BundleSHA256 = artifact.BundleHash(files)
	} else {
		d.State = DraftEditing
		d.BundleSHA256 = ""
	}
	m.mu.Unlock()

	action := artifact.ActionDraftValidated
	if m.audit != nil {
		m.audit.LogAction(action, actor, d.ModuleID, draftID, map[string]string{"status": string(report.Status)})
	}
	return report, nil
}

// Installer is the subset of pipeline.Installer's contract PromoteDraft
// needs: promote a bundle hash under a given validation status.
type Installer interface {
	Install(manifest *pipeline.Manifest, attestation pipeline.Attestation) error
}

// PromoteDraft invokes installer with the draft's recorded bundle hash
// and VALIDATED status, moving state to PROMOTED on success. Allowed
// only from VALIDATED.
func (m *DraftManager) PromoteDraft(draftID, actor string, manifest *pipeline.Manifest, installer Installer) error {
	m.mu.Lock()
	d, ok := m.drafts[draftID]
	m.mu.Unlock()
	if !ok {
		return &ErrDraftNotFound{DraftID: draftID}
	}
	if d.State != DraftValidated {
		return &ErrInvalidDraftState{DraftID: draftID, State: d.State, Op: "promote"}
	}

	if err := installer.Install(manifest, pipeline.Attestation{BundleSHA256: d.BundleSHA256, Status: artifact.ValidationValidated}); err != nil {
		return fmt.Errorf("version: promote draft %s: %w", draftID, err)
	}

	m.mu.Lock()
	d.State = DraftPromoted
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.LogAction(artifact.ActionDraftPromoted, actor, d.ModuleID, draftID, map[string]string{"bundle_sha256": d.BundleSHA256})
	}
	return nil
}

// DiscardDraft moves a draft to DISCARDED. Always allowed; idempotent.
func (m *DraftManager) DiscardDraft(draftID, actor string) error {
	m.mu.Lock()
	d, ok := m.drafts[draftID]
	if ok {
		d.State = DraftDiscarded
	}
	m.mu.Unlock()
	if !ok {
		return &ErrDraftNotFound{DraftID: draftID}
	}

	if m.audit != nil {
		m.audit.LogAction(artifact.ActionDraftDiscarded, actor, d.ModuleID, draftID, nil)
	}
	return nil
}

// Get returns a draft's current state snapshot.
func (m *DraftManager) Get(draftID string) (Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return Draft{}, false
	}
	return *d, true
}

func splitModuleID(moduleID string) (category, platform string, err error) {
	category, platform, ok := strings.Cut(moduleID, "/")
	if !ok || category == "" || platform == "" {
		return "", "", fmt.Errorf("version: module id %q must be category/platform", moduleID)
	}
	return category, platform, nil
}
