package delegation

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/nexus/routing"
)

// ExecuteDelegation runs a TaskDecomposition's sub-tasks in dependency
// order using a bounded topological loop: up to len(sub_tasks)+2 rounds,
// each round executing every task whose dependencies are all complete.
// A round that executes nothing while tasks remain pending is a
// dependency deadlock — remaining tasks are marked failed and the loop
// stops. A single sub-task's failure never aborts the others.
func (m *Manager) ExecuteDelegation(ctx context.Context, decomposition *TaskDecomposition) ExecutionResult {
	completed := make(map[string]string)
	var subResults []SubTaskResult

	pending := make([]int, len(decomposition.SubTasks))
	for i := range pending {
		pending[i] = i
	}

	maxRounds := len(decomposition.SubTasks) + 2
	for round := 0; len(pending) > 0 && round < maxRounds; round++ {
		var executedThisRound []int
		var stillPending []int

		for _, idx := range pending {
			task := &decomposition.SubTasks[idx]
			if !depsSatisfied(task.DependsOn, completed) {
				stillPending = append(stillPending, idx)
				continue
			}

			depContext := ""
			for _, dep := range task.DependsOn {
				if result, ok := completed[dep]; ok && result != "" {
					depContext += fmt.Sprintf("\n[Previous result]: %s\n", result)
				}
			}

			task.Status = StatusRunning
			start := time.Now()

			prompt := task.Instruction
			if depContext != "" {
				prompt = depContext + "\n\n" + prompt
			}

			result, err := m.pool.Generate(ctx, GenerateRequest{
				Prompt: prompt, Tier: routing.Tier(task.TargetTier), MaxTokens: 1024,
			})
			if err != nil {
				m.log.Error("sub-task failed", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
				task.Result = "Error: " + err.Error()
				task.Status = StatusFailed
			} else {
				task.Result = result.Text
				task.Status = StatusCompleted
			}

			task.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
			completed[task.ID] = task.Result
			executedThisRound = append(executedThisRound, idx)

			subResults = append(subResults, SubTaskResult{
				TaskID: task.ID, Tier: task.TargetTier, Status: task.Status, DurationMs: task.DurationMs,
			})
			m.log.Info("sub-task finished", map[string]interface{}{
				"task_id": task.ID, "tier": task.TargetTier, "status": string(task.Status), "duration_ms": task.DurationMs,
			})
		}

		pending = stillPending

		if len(executedThisRound) == 0 && len(pending) > 0 {
			m.log.Error("dependency deadlock: no tasks could execute", nil)
			for _, idx := range pending {
				decomposition.SubTasks[idx].Status = StatusFailed
				decomposition.SubTasks[idx].Result = "Dependency deadlock"
			}
			break
		}
	}

	return ExecutionResult{SubResults: subResults, Completed: completed}
}

func depsSatisfied(dependsOn []string, completed map[string]string) bool {
	for _, dep := range dependsOn {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

// AggregateResults synthesizes the final answer from sub-task results.
// A single-task decomposition returns that task's result directly;
// otherwise the standard tier is asked to integrate every sub-task's
// (id, capabilities, result) into one coherent answer.
func (m *Manager) AggregateResults(ctx context.Context, query string, decomposition TaskDecomposition) (string, error) {
	if len(decomposition.SubTasks) == 1 {
		return decomposition.SubTasks[0].Result, nil
	}

	resultsText := ""
	for _, task := range decomposition.SubTasks {
		resultsText += fmt.Sprintf("\n[%s] (%v): %s\n", task.ID, task.RequiredCapabilities, task.Result)
	}

	prompt := fmt.Sprintf(`You are synthesizing results from multiple specialized analyses.

Original question: %s

Sub-task results:
%s

Provide a clear, unified answer that integrates all the sub-task findings.
Be direct and specific — include relevant details from each result.

Answer:`, query, resultsText)

	result, err := m.pool.Generate(ctx, GenerateRequest{Prompt: prompt, Tier: routing.TierStandard, MaxTokens: 1024})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
