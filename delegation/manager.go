package delegation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/routing"
)

const (
	maxDecomposeAttempts = 1 // decompose_task is a single LLM round-trip; failure falls back to one SubTask
)

// Manager is the Local Inference Delegation Manager: classify →
// decompose → route → execute → aggregate → verify, reconfigurable
// live via OnConfigChanged.
type Manager struct {
	pool      TierPool
	log       core.Logger
	telemetry core.Telemetry

	mu                   sync.RWMutex
	capabilityMap        map[string]routing.CategoryRouting
	complexityThreshold  float64
	consistencyThreshold float64
	maxSubTasks          int
}

// New builds a Manager seeded from cfg's capability map and performance
// thresholds. Later RoutingConfig updates flow in via OnConfigChanged.
// telemetry may be nil (a NoOpTelemetry is used).
func New(pool TierPool, log core.Logger, cfg routing.Config, telemetry core.Telemetry) *Manager {
	if log == nil {
		log = &core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	return &Manager{
		pool:                 pool,
		log:                  log,
		telemetry:            telemetry,
		capabilityMap:        cfg.Categories,
		complexityThreshold:  cfg.Performance.ComplexityThresholdDirect,
		consistencyThreshold: cfg.Performance.SelfConsistencyThreshold,
		maxSubTasks:          cfg.Performance.MaxSubTasks,
	}
}

// OnConfigChanged is a routing.Observer: it refreshes live thresholds
// and the capability map so the next classification uses the new
// values. Wire via routing.Manager.RegisterObserver(mgr.OnConfigChanged).
func (m *Manager) OnConfigChanged(cfg routing.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilityMap = cfg.Categories
	m.complexityThreshold = cfg.Performance.ComplexityThresholdDirect
	m.consistencyThreshold = cfg.Performance.SelfConsistencyThreshold
	m.maxSubTasks = cfg.Performance.MaxSubTasks
	m.log.Info("delegation manager reconfigured", map[string]interface{}{
		"complexity_threshold":  m.complexityThreshold,
		"consistency_threshold": m.consistencyThreshold,
		"max_sub_tasks":         m.maxSubTasks,
	})
}

func (m *Manager) thresholds() (complexity, consistency float64, maxSubTasks int, capMap map[string]routing.CategoryRouting) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.complexityThreshold, m.consistencyThreshold, m.maxSubTasks, m.capabilityMap
}

func newSubTaskID() string {
	return "st_" + uuid.New().String()[:6]
}

// AnalyzeAndRoute classifies query and produces an execution plan: a
// single direct SubTask for simple queries, or a decomposed plan with
// dependencies for complex ones.
func (m *Manager) AnalyzeAndRoute(ctx context.Context, query, queryContext string) (TaskDecomposition, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "delegation.analyze_and_route")
	defer span.End()

	complexityThreshold, _, maxSubTasks, capMap := m.thresholds()

	classification := m.classifyQuery(ctx, query)
	m.log.Info("delegation classification", map[string]interface{}{
		"task_type":    classification.TaskType,
		"complexity":   classification.Complexity,
		"capabilities": classification.Capabilities,
	})
	span.SetAttribute("task_type", classification.TaskType)
	span.SetAttribute("complexity", classification.Complexity)
	m.telemetry.RecordMetric("delegation.classification.complexity", classification.Complexity, map[string]string{"task_type": classification.TaskType})

	if classification.Complexity < complexityThreshold || len(classification.Capabilities) <= 1 {
		tier := routing.TierStandard
		if len(classification.Capabilities) > 0 {
			tier = routing.RequiredTier(capMap, classification.Capabilities)
		}
		sub := SubTask{
			ID:                   newSubTaskID(),
			Instruction:          query,
			RequiredCapabilities: classification.Capabilities,
			TargetTier:           string(tier),
			Status:               StatusPending,
		}
		span.SetAttribute("strategy", string(StrategyDirect))
		m.telemetry.RecordMetric("delegation.sub_tasks", 1, map[string]string{"strategy": string(StrategyDirect)})
		return TaskDecomposition{
			OriginalQuery:   query,
			SubTasks:        []SubTask{sub},
			Strategy:        StrategyDirect,
			ComplexityScore: classification.Complexity,
			TaskType:        classification.TaskType,
		}, nil
	}

	subTasks := m.decomposeTask(ctx, query, classification, maxSubTasks)
	m.resolveRouting(subTasks, capMap)

	span.SetAttribute("strategy", string(StrategyDecompose))
	m.telemetry.RecordMetric("delegation.sub_tasks", float64(len(subTasks)), map[string]string{"strategy": string(StrategyDecompose)})

	return TaskDecomposition{
		OriginalQuery:   query,
		SubTasks:        subTasks,
		Strategy:        StrategyDecompose,
		ComplexityScore: classification.Complexity,
		TaskType:        classification.TaskType,
	}, nil
}

func (m *Manager) classifyQuery(ctx context.Context, query string) Classification {
	prompt := fmt.Sprintf(`Analyze this query and respond with JSON only.

Query: %q

Respond with:
{"task_type": "one of: coding, reasoning, math, finance, multilingual, search, general",
 "capabilities": ["list of: coding, reasoning, analysis, verification, finance, multilingual, math, fast_response, search, deep_research"],
 "complexity": 0.0 to 1.0 (0=trivial, 1=very complex multi-step)}

JSON:`, query)

	fallback := Classification{TaskType: "general", Capabilities: []string{"fast_response"}, Complexity: 0.3}

	result, err := m.pool.Generate(ctx, GenerateRequest{
		Prompt: prompt, Tier: routing.TierStandard, MaxTokens: 256, Temperature: 0.1, JSONFormat: true,
	})
	if err != nil {
		m.log.Warn("classification failed, using defaults", map[string]interface{}{"error": err.Error()})
		return fallback
	}

	var parsed Classification
	if jerr := json.Unmarshal([]byte(result.Text), &parsed); jerr != nil {
		m.log.Warn("classification response unparseable, using defaults", map[string]interface{}{"error": jerr.Error()})
		return fallback
	}
	if parsed.TaskType == "" {
		parsed.TaskType = fallback.TaskType
	}
	if len(parsed.Capabilities) == 0 {
		parsed.Capabilities = fallback.Capabilities
	}
	return parsed
}

type decomposedItem struct {
	ID           string   `json:"id"`
	Instruction  string   `json:"instruction"`
	Capabilities []string `json:"capabilities"`
	DependsOn    []string `json:"depends_on"`
}

func (m *Manager) decomposeTask(ctx context.Context, query string, classification Classification, maxSubTasks int) []SubTask {
	fallback := []SubTask{{
		ID:                   "st_fallback",
		Instruction:          query,
		RequiredCapabilities: classification.Capabilities,
		Status:               StatusPending,
	}}

	prompt := fmt.Sprintf(`Break this complex query into 2-%d sub-tasks.

Query: %q
Required capabilities: %v

Respond with JSON array:
[{"id": "st_1", "instruction": "specific task description", "capabilities": ["needed_capabilities"], "depends_on": []}]

Keep sub-tasks focused and actionable. Use depends_on to reference earlier task IDs.

JSON:`, maxSubTasks, query, classification.Capabilities)

	result, err := m.pool.Generate(ctx, GenerateRequest{
		Prompt: prompt, Tier: routing.TierStandard, MaxTokens: 512, Temperature: 0.2, JSONFormat: true,
	})
	if err != nil {
		m.log.Warn("decomposition failed, using single task", map[string]interface{}{"error": err.Error()})
		return fallback
	}

	var items []decomposedItem
	if jerr := json.Unmarshal([]byte(result.Text), &items); jerr != nil {
		// tolerate a single object instead of an array
		var one decomposedItem
		if jerr2 := json.Unmarshal([]byte(result.Text), &one); jerr2 == nil {
			items = []decomposedItem{one}
		} else {
			m.log.Warn("decomposition response unparseable, using single task", map[string]interface{}{"error": jerr.Error()})
			return fallback
		}
	}

	if len(items) > maxSubTasks {
		items = items[:maxSubTasks]
	}

	subTasks := make([]SubTask, 0, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("st_%d", i+1)
		}
		caps := item.Capabilities
		if len(caps) == 0 {
			caps = []string{"fast_response"}
		}
		subTasks = append(subTasks, SubTask{
			ID:                   id,
			Instruction:          item.Instruction,
			RequiredCapabilities: caps,
			DependsOn:            item.DependsOn,
			Priority:             i + 1,
			Status:               StatusPending,
		})
	}

	if len(subTasks) == 0 {
		return fallback
	}
	return subTasks
}

func (m *Manager) resolveRouting(subTasks []SubTask, capMap map[string]routing.CategoryRouting) {
	for i := range subTasks {
		tier := routing.RequiredTier(capMap, subTasks[i].RequiredCapabilities)
		subTasks[i].TargetTier = string(tier)
		m.log.Debug("routed sub-task", map[string]interface{}{
			"task_id": subTasks[i].ID, "capabilities": subTasks[i].RequiredCapabilities, "tier": subTasks[i].TargetTier,
		})
	}
}
