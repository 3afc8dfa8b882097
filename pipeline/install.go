package pipeline

import (
	"fmt"
	"time"

	"github.com/nexuscore/nexus/artifact"
	"github.com/nexuscore/nexus/core"
)

// Attestation is the claim an installer presents for a module: the
// bundle hash it believes matches the validated source, and the
// validation status that hash was computed under.
type Attestation struct {
	BundleSHA256 string
	Status       artifact.ValidationStatus
}

// RejectionReason names why Install refused a module.
type RejectionReason string

const (
	ReasonNotValidated       RejectionReason = "not_validated"
	ReasonFailedValidation   RejectionReason = "failed_validation"
	ReasonHashMismatch       RejectionReason = "hash_mismatch"
	ReasonMissingAttestation RejectionReason = "missing_attestation_hash"
)

// InstallRejectedError reports why Install refused, with no side effect
// on the adapter registry.
type InstallRejectedError struct {
	ModuleID string
	Reason   RejectionReason
}

func (e *InstallRejectedError) Error() string {
	return fmt.Sprintf("pipeline: install rejected for %s: %s", e.ModuleID, e.Reason)
}

// Installer is the attestation-gated admission guard: a module is
// installed into the persistent Registry only when its manifest is
// validated, its recomputed bundle hash matches the attestation exactly,
// and the attestation itself carries VALIDATED status.
type Installer struct {
	registry  *Registry
	workspace *Workspace
	log       core.Logger
	auditDir  string
}

// NewInstaller builds an Installer backed by registry and workspace.
func NewInstaller(registry *Registry, workspace *Workspace, log core.Logger) *Installer {
	if log == nil {
		log = &core.NoOpLogger{}
	}
	return &Installer{registry: registry, workspace: workspace, log: log}
}

// SetAuditDir enables the install_success.jsonl / install_rejections.jsonl
// audit trail under dir. Skipped entirely when unset (the zero value).
func (in *Installer) SetAuditDir(dir string) {
	in.auditDir = dir
}

func (in *Installer) recordRejection(moduleID string, reason RejectionReason, bundleSHA256 string) {
	if in.auditDir == "" {
		return
	}
	_ = artifact.AppendInstallEvent(in.auditDir, "install_rejections.jsonl", artifact.InstallEvent{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		ModuleID:     moduleID,
		Action:       "install_rejected",
		BundleSHA256: bundleSHA256,
		Reason:       string(reason),
	})
}

// Install admits manifest into the registry if, and only if, all three
// attestation conditions hold. On rejection it never touches the
// registry; when SetAuditDir has been called, every outcome is also
// appended to install_success.jsonl or install_rejections.jsonl.
func (in *Installer) Install(manifest *Manifest, attestation Attestation) error {
	moduleID := manifest.ModuleID()

	if manifest.Status != StatusValidated {
		in.recordRejection(moduleID, ReasonNotValidated, attestation.BundleSHA256)
		return &InstallRejectedError{ModuleID: moduleID, Reason: ReasonNotValidated}
	}
	if attestation.BundleSHA256 == "" {
		in.recordRejection(moduleID, ReasonMissingAttestation, "")
		return &InstallRejectedError{ModuleID: moduleID, Reason: ReasonMissingAttestation}
	}
	if attestation.Status != artifact.ValidationValidated {
		in.recordRejection(moduleID, ReasonFailedValidation, attestation.BundleSHA256)
		return &InstallRejectedError{ModuleID: moduleID, Reason: ReasonFailedValidation}
	}

	files, err := in.workspace.ReadFiles(manifest.Category, manifest.Platform)
	if err != nil {
		return fmt.Errorf("pipeline: install %s: %w", moduleID, err)
	}
	recomputed := artifact.BundleHash(files)
	if recomputed != attestation.BundleSHA256 {
		in.recordRejection(moduleID, ReasonHashMismatch, recomputed)
		return &InstallRejectedError{ModuleID: moduleID, Reason: ReasonHashMismatch}
	}

	manifest.Status = StatusInstalled
	if err := in.registry.Install(*manifest); err != nil {
		return fmt.Errorf("pipeline: install %s: %w", moduleID, err)
	}
	in.log.Info("module installed", map[string]interface{}{"module_id": moduleID, "bundle_sha256": recomputed})
	if in.auditDir != "" {
		_ = artifact.AppendInstallEvent(in.auditDir, "install_success.jsonl", artifact.InstallEvent{
			Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
			ModuleID:     moduleID,
			Action:       "install_success",
			BundleSHA256: recomputed,
		})
	}
	return nil
}
