package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/nexus/artifact"
	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/gateway"
)

// MaxRepairAttempts bounds the repair loop regardless of thrash
// detection — a hard cap independent of the consecutive-fingerprint
// check.
const MaxRepairAttempts = 10

// RepairLoop drives the bounded build→validate→repair cycle for one
// module, requesting fixes from the provider gateway's repair lane when
// validation fails for a retryable reason, and stopping immediately on
// a terminal failure or detected thrash.
type RepairLoop struct {
	gw        *gateway.Gateway
	validator *Validator
	workspace *Workspace
	log       core.Logger
}

// NewRepairLoop builds a RepairLoop wired to gw for repair generations,
// validator for re-validation, and workspace for applying diffs.
func NewRepairLoop(gw *gateway.Gateway, validator *Validator, workspace *Workspace, log core.Logger) *RepairLoop {
	if log == nil {
		log = &core.NoOpLogger{}
	}
	return &RepairLoop{gw: gw, validator: validator, workspace: workspace, log: log}
}

// Run executes the repair loop for manifest, starting from an already
// failing report. It returns the completed BuildAuditLog; the caller
// inspects log.FinalStatus to learn the outcome.
func (r *RepairLoop) Run(ctx context.Context, jobID string, manifest *Manifest, initial artifact.Report, adapterSrc []byte, allowedDirs []string) *artifact.Log {
	buildLog := artifact.NewLog(jobID, manifest.ModuleID(), time.Now().UTC().Format(time.RFC3339Nano))
	report := initial
	attempt := 0

	for {
		failureType := artifact.ClassifyFailureType(report)
		fingerprint := artifact.FromValidationReport(report)

		if failureType.IsTerminal() {
			buildLog.AddAttempt(artifact.Record{
				AttemptNumber:      attempt + 1,
				Stage:              "validate",
				Status:             "failed",
				ValidationReport:   &report,
				FailureFingerprint: fingerprint.Hash(),
				FailureType:        failureType,
			})
			manifest.Status = StatusFailed
			buildLog.FinalStatus = "failed"
			r.log.Error("repair loop stopped: terminal failure", map[string]interface{}{"module_id": manifest.ModuleID(), "failure_type": string(failureType)})
			return buildLog
		}

		buildLog.AddAttempt(artifact.Record{
			AttemptNumber:      attempt + 1,
			Stage:              "validate",
			Status:             "failed",
			ValidationReport:   &report,
			FailureFingerprint: fingerprint.Hash(),
			FailureType:        failureType,
		})

		if buildLog.HasConsecutiveIdenticalFailures() {
			manifest.Status = StatusFailed
			buildLog.FinalStatus = "failed"
			r.log.Error("repair loop stopped: thrash detected", map[string]interface{}{"module_id": manifest.ModuleID()})
			return buildLog
		}

		attempt++
		if attempt >= MaxRepairAttempts {
			manifest.Status = StatusFailed
			buildLog.FinalStatus = "failed"
			r.log.Error("repair loop stopped: attempt budget exceeded", map[string]interface{}{"module_id": manifest.ModuleID()})
			return buildLog
		}

		contract, _, err := r.gw.Generate(ctx, gateway.PurposeRepair, repairMessages(manifest.ModuleID(), report), repairSchema(), allowedDirs, nil, 0.1, nil)
		if err != nil {
			buildLog.AddAttempt(artifact.Record{
				AttemptNumber: attempt + 1,
				Stage:         "repair",
				Status:        "error",
				Logs:          []string{err.Error()},
			})
			manifest.Status = StatusFailed
			buildLog.FinalStatus = "failed"
			r.log.Error("repair generation failed", map[string]interface{}{"error": err.Error()})
			return buildLog
		}

		newSrc := adapterSrc
		for _, f := range contract.ChangedFiles {
			newSrc = []byte(f.Content)
		}
		if err := r.workspace.WriteCode(manifest, string(newSrc), ""); err != nil {
			buildLog.FinalStatus = "failed"
			return buildLog
		}
		adapterSrc = newSrc

		report = r.validator.Validate(ctx, manifest.ModuleID(), adapterSrc, "")
		if report.Passed() {
			buildLog.AddAttempt(artifact.Record{
				AttemptNumber:    attempt + 1,
				Stage:            "validate",
				Status:           "success",
				ValidationReport: &report,
			})
			manifest.Status = StatusValidated
			buildLog.FinalStatus = "success"
			return buildLog
		}
	}
}

func repairMessages(moduleID string, report artifact.Report) []gateway.ChatMessage {
	return []gateway.ChatMessage{
		{Role: "system", Content: "You are repairing a generated module adapter. Emit a GeneratorResponseContract with the corrected file(s)."},
		{Role: "user", Content: fmt.Sprintf("Module %s failed validation with %d fix hint(s). Fix the issues and return the complete corrected source.", moduleID, len(report.FixHints))},
	}
}

func repairSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"required": []string{"stage", "module", "changed_files", "deleted_files"},
	}
}
