package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunner_CountsOutcomeLines(t *testing.T) {
	runner := NewRunner(RunLimits{Timeout: 5 * time.Second})
	result := runner.Run(context.Background(), "/bin/echo", []string{"PASS: one\nFAIL: two\nERROR: three\nPASS: four"})
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Errored)
	assert.False(t, result.TimedOut)
	assert.Equal(t, 0, result.ExitCode)
}

func TestRunner_TimesOutLongRunningProcess(t *testing.T) {
	runner := NewRunner(RunLimits{Timeout: 50 * time.Millisecond})
	result := runner.Run(context.Background(), "/bin/sleep", []string{"5"})
	assert.True(t, result.TimedOut)
}

func TestRunner_NonZeroExitCodeCaptured(t *testing.T) {
	runner := NewRunner(RunLimits{Timeout: 5 * time.Second})
	result := runner.Run(context.Background(), "/bin/sh", []string{"-c", "exit 7"})
	assert.Equal(t, 7, result.ExitCode)
}

func TestRunner_MemoryLimitWrapsWithUlimit(t *testing.T) {
	runner := NewRunner(RunLimits{Timeout: 5 * time.Second, MaxMemoryMB: 64})
	cmd := runner.buildCommand(context.Background(), "/bin/echo", []string{"hi"})
	assert.Equal(t, "/bin/sh", cmd.Path)
	assert.Contains(t, cmd.Args[2], "ulimit -v 65536")
}
