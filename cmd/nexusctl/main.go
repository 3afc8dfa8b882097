// nexusctl is the interactive dev-mode CLI: create/edit/validate/promote
// drafts and roll back installed module versions, without a full server
// running.
//
// Grounded on spec.md §4.5's draft/version tool surface; readline-driven
// REPL shape learned from chzyer/readline's own example loop (prompt,
// tokenize, dispatch, print error without exiting).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/nexuscore/nexus/artifact"
	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/gateway"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/sandbox"
	"github.com/nexuscore/nexus/telemetry"
	"github.com/nexuscore/nexus/version"
)

func main() {
	baseDir := envOr("NEXUS_DEV_BASE_DIR", "data/dev")
	modulesDir := envOr("NEXUS_MODULES_DIR", "data/modules")

	workspace := pipeline.NewWorkspace(modulesDir)

	audit, err := artifact.NewDevModeLog(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nexusctl: failed to open audit log: %v\n", err)
		os.Exit(1)
	}

	draftMgr := version.NewDraftManager(baseDir+"/drafts", modulesDir, workspace, audit)

	versionMgr, err := version.OpenManager(envOr("NEXUS_VERSION_DSN", baseDir+"/versions.db"), audit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nexusctl: failed to open version manager: %v\n", err)
		os.Exit(1)
	}
	defer versionMgr.Close()

	registry, err := pipeline.OpenRegistry(envOr("NEXUS_REGISTRY_DSN", baseDir+"/registry.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "nexusctl: failed to open registry: %v\n", err)
		os.Exit(1)
	}
	defer registry.Close()

	installer := pipeline.NewInstaller(registry, workspace, nil)
	installer.SetAuditDir(envOr("NEXUS_AUDIT_DIR", baseDir+"/audit"))

	logger := core.NewStructuredLogger()
	tel, err := telemetry.EnableTelemetry("nexusctl", envOr("NEXUS_OTLP_ENDPOINT", ""), logger)
	if err != nil {
		logger.Warn("telemetry disabled", map[string]interface{}{"error": err.Error()})
		tel = &core.NoOpTelemetry{}
	}

	repl := &repl{
		draftMgr:   draftMgr,
		versionMgr: versionMgr,
		installer:  installer,
		workspace:  workspace,
		validator:  pipeline.NewValidator(sandbox.ModuleValidationPolicy(), sandbox.NewRunner(sandbox.DefaultRunLimits()), []string{modulesDir}),
		repairLoop: buildRepairLoop(workspace, modulesDir, logger, tel),
		actor:      envOr("NEXUS_DEV_ACTOR", "dev"),
	}
	repl.run()
}

// buildRepairLoop wires a pipeline.RepairLoop to a gateway.Gateway over
// a single HTTPProvider, when NEXUS_LLM_BASE_URL is configured. Without
// it the "repair" command reports that no provider is configured rather
// than the REPL failing to start — draft create/edit/validate/promote
// don't need an LLM backend.
func buildRepairLoop(workspace *pipeline.Workspace, modulesDir string, log core.Logger, tel core.Telemetry) *pipeline.RepairLoop {
	baseURL := envOr("NEXUS_LLM_BASE_URL", "")
	if baseURL == "" {
		return nil
	}
	providerName := envOr("NEXUS_LLM_PROVIDER", "openai")
	model := envOr("NEXUS_LLM_MODEL", "gpt-4o-mini")
	provider := gateway.NewHTTPProvider(providerName, baseURL, envOr("NEXUS_LLM_API_KEY", ""))

	policy := gateway.RoutingPolicy{
		gateway.PurposeRepair: {{Provider: providerName, Model: model, Priority: 0}},
	}
	gw := gateway.New(map[string]gateway.Provider{providerName: provider}, policy, gateway.DefaultBudgetConfig(), log, tel)
	validator := pipeline.NewValidator(sandbox.ModuleValidationPolicy(), sandbox.NewRunner(sandbox.DefaultRunLimits()), []string{modulesDir})
	return pipeline.NewRepairLoop(gw, validator, workspace, log)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type repl struct {
	draftMgr   *version.DraftManager
	versionMgr *version.Manager
	installer  *pipeline.Installer
	workspace  *pipeline.Workspace
	validator  *pipeline.Validator
	repairLoop *pipeline.RepairLoop // nil unless NEXUS_LLM_BASE_URL is set
	actor      string
}

func (r *repl) run() {
	rl, err := readline.New("nexus> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "nexusctl: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "nexusctl: %v\n", err)
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if err := r.dispatch(fields[0], fields[1:]); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func (r *repl) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help":
		r.printHelp()
		return nil
	case "draft":
		return r.draftCommand(args)
	case "rollback":
		return r.rollbackCommand(args)
	case "versions":
		return r.versionsCommand(args)
	case "repair":
		return r.repairCommand(args)
	case "exit", "quit":
		os.Exit(0)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return nil
}

func (r *repl) printHelp() {
	fmt.Println(`commands:
  draft create <moduleID>
  draft edit <draftID> <path> <content...>
  draft validate <draftID>
  draft promote <draftID>
  draft discard <draftID>
  repair <category> <platform>
  versions <moduleID> [orgID]
  rollback <moduleID> <versionID> [orgID] [reason...]
  exit`)
}

func (r *repl) draftCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("draft requires a subcommand")
	}
	switch args[0] {
	case "create":
		if len(args) != 2 {
			return fmt.Errorf("usage: draft create <moduleID>")
		}
		d, err := r.draftMgr.CreateDraft(args[1], r.actor)
		if err != nil {
			return err
		}
		fmt.Printf("created draft %s for %s\n", d.DraftID, d.ModuleID)
		return nil

	case "edit":
		if len(args) < 4 {
			return fmt.Errorf("usage: draft edit <draftID> <path> <content...>")
		}
		content := strings.Join(args[3:], " ")
		return r.draftMgr.EditFile(args[1], args[2], content, r.actor)

	case "validate":
		if len(args) != 2 {
			return fmt.Errorf("usage: draft validate <draftID>")
		}
		report, err := r.draftMgr.ValidateDraft(args[1], r.actor, r.runValidator)
		if err != nil {
			return err
		}
		fmt.Printf("validation status: %s (%d fix hints)\n", report.Status, len(report.FixHints))
		for _, hint := range report.FixHints {
			fmt.Printf("  - [%s] %s\n", hint.Category, hint.Message)
		}
		return nil

	case "promote":
		if len(args) != 2 {
			return fmt.Errorf("usage: draft promote <draftID>")
		}
		draft, ok := r.draftMgr.Get(args[1])
		if !ok {
			return fmt.Errorf("draft %s not found", args[1])
		}
		manifest := pipeline.Manifest{
			Status:   pipeline.StatusValidated,
			Category: categoryFromModuleID(draft.ModuleID),
			Platform: platformFromModuleID(draft.ModuleID),
		}
		if err := r.draftMgr.PromoteDraft(args[1], r.actor, &manifest, r.installer); err != nil {
			return err
		}
		if _, err := r.versionMgr.RecordVersion(draft.ModuleID, draft.BundleSHA256, r.actor, "draft_promoted", "", nil); err != nil {
			return err
		}
		fmt.Printf("promoted draft %s\n", args[1])
		return nil

	case "discard":
		if len(args) != 2 {
			return fmt.Errorf("usage: draft discard <draftID>")
		}
		return r.draftMgr.DiscardDraft(args[1], r.actor)

	default:
		return fmt.Errorf("unknown draft subcommand %q", args[0])
	}
}

func (r *repl) runValidator(moduleID string, files map[string][]byte) artifact.Report {
	adapterSrc, ok := files["adapter.go"]
	if !ok {
		return artifact.Report{Status: artifact.ValidationFailed, ModuleID: moduleID}
	}
	return r.validator.Validate(context.Background(), moduleID, adapterSrc, "")
}

func (r *repl) versionsCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: versions <moduleID> [orgID]")
	}
	orgID := ""
	if len(args) > 1 {
		orgID = args[1]
	}
	versions, err := r.versionMgr.ListVersions(args[0], orgID)
	if err != nil {
		return err
	}
	active, err := r.versionMgr.GetActiveVersion(args[0], orgID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		marker := " "
		if active != nil && active.VersionID == v.VersionID {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %s\n", marker, v.VersionID, v.Status, v.CreatedAt)
	}
	return nil
}

func (r *repl) rollbackCommand(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: rollback <moduleID> <versionID> [orgID] [reason...]")
	}
	orgID, reason := "", ""
	if len(args) > 2 {
		orgID = args[2]
	}
	if len(args) > 3 {
		reason = strings.Join(args[3:], " ")
	}
	result, err := r.versionMgr.RollbackToVersion(args[0], args[1], r.actor, reason, orgID)
	if err != nil {
		return err
	}
	fmt.Printf("rolled back %s: %s -> %s\n", result.ModuleID, result.FromVersion, result.ToVersion)
	return nil
}

// repairCommand re-validates an installed module's current adapter
// source and, if validation fails for a non-terminal reason, drives it
// through the provider gateway's bounded repair loop in place.
func (r *repl) repairCommand(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: repair <category> <platform>")
	}
	if r.repairLoop == nil {
		return fmt.Errorf("no repair loop configured: set NEXUS_LLM_BASE_URL")
	}
	category, platform := args[0], args[1]

	files, err := r.workspace.ReadFiles(category, platform)
	if err != nil {
		return fmt.Errorf("read module files: %w", err)
	}
	adapterSrc, ok := files["adapter.go"]
	if !ok {
		return fmt.Errorf("module %s/%s has no adapter.go", category, platform)
	}

	report := r.runValidator(fmt.Sprintf("%s/%s", category, platform), files)
	if report.Passed() {
		fmt.Println("already passing validation, nothing to repair")
		return nil
	}

	manifest := pipeline.Manifest{Category: category, Platform: platform, Status: pipeline.StatusFailed}
	jobID := fmt.Sprintf("repair_%s_%s", category, platform)
	buildLog := r.repairLoop.Run(context.Background(), jobID, &manifest, report, adapterSrc, nil)

	fmt.Printf("repair finished: status=%s attempts=%d\n", buildLog.FinalStatus, len(buildLog.Attempts))
	return nil
}

func categoryFromModuleID(moduleID string) string {
	category, _, _ := strings.Cut(moduleID, "/")
	return category
}

func platformFromModuleID(moduleID string) string {
	_, platform, _ := strings.Cut(moduleID, "/")
	return platform
}
