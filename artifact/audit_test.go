package artifact

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RoundTripsThroughJSON(t *testing.T) {
	log := NewLog("job-1", "finance/plaid", "2026-01-01T00:00:00Z")
	log.AddAttempt(Record{AttemptNumber: 1, BundleSHA256: "abc", Stage: "scaffold", Status: AttemptSuccess})
	log.AddAttempt(Record{AttemptNumber: 2, BundleSHA256: "def", Stage: "repair", Status: AttemptFailed, FailureFingerprint: "fp1"})

	dir := t.TempDir()
	path, err := log.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job-1_audit.json"), path)

	loaded, err := LoadLog(path)
	require.NoError(t, err)
	assert.Equal(t, log.Attempts, loaded.Attempts)
}

func TestHasConsecutiveIdenticalFailures(t *testing.T) {
	log := NewLog("job", "mod", "t")
	log.AddAttempt(Record{AttemptNumber: 1, Status: AttemptFailed, FailureFingerprint: "fp_1"})
	assert.False(t, log.HasConsecutiveIdenticalFailures())

	log.AddAttempt(Record{AttemptNumber: 2, Status: AttemptFailed, FailureFingerprint: "fp_1"})
	assert.True(t, log.HasConsecutiveIdenticalFailures())
}

func TestHasConsecutiveIdenticalFailures_DifferentFingerprints(t *testing.T) {
	log := NewLog("job", "mod", "t")
	log.AddAttempt(Record{AttemptNumber: 1, Status: AttemptFailed, FailureFingerprint: "fp_1"})
	log.AddAttempt(Record{AttemptNumber: 2, Status: AttemptFailed, FailureFingerprint: "fp_2"})
	assert.False(t, log.HasConsecutiveIdenticalFailures())
}

func TestHasConsecutiveIdenticalFailures_SuccessBreaksStreak(t *testing.T) {
	log := NewLog("job", "mod", "t")
	log.AddAttempt(Record{AttemptNumber: 1, Status: AttemptFailed, FailureFingerprint: "fp_1"})
	log.AddAttempt(Record{AttemptNumber: 2, Status: AttemptSuccess})
	assert.False(t, log.HasConsecutiveIdenticalFailures())
}

func TestFingerprintHash_OrderIndependent(t *testing.T) {
	a := Fingerprint{ErrorTypes: []string{"b", "a"}, FixHintCategories: []string{"y", "x"}}
	b := Fingerprint{ErrorTypes: []string{"a", "b"}, FixHintCategories: []string{"x", "y"}}

	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 16)
}

func TestClassifyFailureType_TerminalTakesPrecedence(t *testing.T) {
	report := Report{FixHints: []FixHint{
		{Category: CategoryTestFailure},
		{Category: CategoryPolicyViolation},
	}}
	ft := ClassifyFailureType(report)
	assert.Equal(t, FailurePolicyViolation, ft)
	assert.True(t, ft.IsTerminal())
}

func TestClassifyFailureType_RetryableDefault(t *testing.T) {
	report := Report{}
	ft := ClassifyFailureType(report)
	assert.Equal(t, FailureTestFailure, ft)
	assert.False(t, ft.IsTerminal())
}
