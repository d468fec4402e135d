package pipeline

import (
	"testing"

	"hiring-agent-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{models.StatusApplied, models.StatusResumeShortlisted, true},
		{models.StatusApplied, models.StatusResumeRejected, true},
		{models.StatusResumeShortlisted, models.StatusOACleared, true},
		{models.StatusResumeShortlisted, models.StatusOARejected, true},
		{models.StatusOACleared, models.StatusFinalSelected, true},
		{models.StatusOACleared, models.StatusFinalRejected, true},

		// 跨阶段跳转不允许
		{models.StatusApplied, models.StatusOACleared, false},
		{models.StatusApplied, models.StatusFinalSelected, false},
		// 终态不允许再转移
		{models.StatusResumeRejected, models.StatusOACleared, false},
		{models.StatusOARejected, models.StatusFinalSelected, false},
		{models.StatusFinalSelected, models.StatusFinalRejected, false},
		// 不允许回退
		{models.StatusOACleared, models.StatusResumeShortlisted, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminalStatusesHaveNoOutgoingTransitions(t *testing.T) {
	all := []string{
		models.StatusApplied,
		models.StatusResumeShortlisted,
		models.StatusResumeRejected,
		models.StatusOACleared,
		models.StatusOARejected,
		models.StatusFinalSelected,
		models.StatusFinalRejected,
	}

	for _, from := range all {
		if !models.IsTerminal(from) {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(models.StatusApplied, models.StatusResumeShortlisted))
	assert.Error(t, ValidateTransition(models.StatusFinalRejected, models.StatusApplied))
}

func TestExpectedStatusForStage(t *testing.T) {
	assert.Equal(t, models.StatusApplied, ExpectedStatusForStage("resume"))
	assert.Equal(t, models.StatusResumeShortlisted, ExpectedStatusForStage("oa"))
	assert.Equal(t, models.StatusOACleared, ExpectedStatusForStage("interview"))
	assert.Equal(t, "", ExpectedStatusForStage("unknown"))
}
