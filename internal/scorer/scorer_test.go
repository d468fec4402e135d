package scorer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hiring-agent-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScorerConfig() *config.ScorerConfig {
	return &config.ScorerConfig{
		ScoreTimeout:  "3s",
		FallbackScore: 50,
		QPM:           1200,
	}
}

func TestScoreParsesJSON(t *testing.T) {
	mock := NewMockChatClient(`{"match_score": 85}`, nil)
	s := NewResumeScorerWithModel(mock, testScorerConfig())

	score, degraded := s.Score(context.Background(), "后端工程师", "五年Go开发经验")
	assert.Equal(t, 85, score)
	assert.False(t, degraded)
}

func TestScoreHandlesMarkdownFences(t *testing.T) {
	mock := NewMockChatClient("```json\n{\"match_score\": 42}\n```", nil)
	s := NewResumeScorerWithModel(mock, testScorerConfig())

	score, degraded := s.Score(context.Background(), "jd", "resume")
	assert.Equal(t, 42, score)
	assert.False(t, degraded)
}

func TestScoreFallbackOnError(t *testing.T) {
	mock := NewMockChatClient("", errors.New("provider unavailable"))
	s := NewResumeScorerWithModel(mock, testScorerConfig())

	score, degraded := s.Score(context.Background(), "jd", "resume")
	assert.Equal(t, 50, score)
	assert.True(t, degraded)
}

func TestScoreFallbackOnGarbageOutput(t *testing.T) {
	mock := NewMockChatClient("我认为这个候选人很不错", nil)
	s := NewResumeScorerWithModel(mock, testScorerConfig())

	score, degraded := s.Score(context.Background(), "jd", "resume")
	assert.Equal(t, 50, score)
	assert.True(t, degraded)
}

func TestScoreClampsOutOfRange(t *testing.T) {
	mock := NewMockChatClient(`{"match_score": 250}`, nil)
	s := NewResumeScorerWithModel(mock, testScorerConfig())

	score, degraded := s.Score(context.Background(), "jd", "resume")
	assert.Equal(t, 100, score)
	assert.False(t, degraded)
}

func TestScoreFallbackOnCancelledContext(t *testing.T) {
	mock := NewMockChatClient(`{"match_score": 85}`, nil)
	s := NewResumeScorerWithModel(mock, testScorerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	score, degraded := s.Score(ctx, "jd", "resume")
	assert.Equal(t, 50, score)
	assert.True(t, degraded)
}

func TestScoreSendsJobDescriptionAndResume(t *testing.T) {
	mock := NewMockChatClient(`{"match_score": 60}`, nil)
	s := NewResumeScorerWithModel(mock, testScorerConfig())

	_, _ = s.Score(context.Background(), "资深Go工程师", "简历正文")

	require.NotEmpty(t, mock.ReceivedMessages)
	var foundJD, foundResume bool
	for _, msg := range mock.ReceivedMessages {
		if strings.Contains(msg.Content, "资深Go工程师") {
			foundJD = true
		}
		if strings.Contains(msg.Content, "简历正文") {
			foundResume = true
		}
	}
	assert.True(t, foundJD, "岗位描述应出现在提示词中")
	assert.True(t, foundResume, "简历文本应出现在提示词中")
}

func TestParseMatchScore(t *testing.T) {
	cases := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{`{"match_score": 77}`, 77, false},
		{"前缀 {\"match_score\": 5} 后缀", 5, false},
		{`{"match_score": 0}`, 0, false},
		{"", 0, true},
		{"not json", 0, true},
	}

	for _, c := range cases {
		got, err := parseMatchScore(c.input)
		if c.wantErr {
			assert.Error(t, err, "input=%q", c.input)
		} else {
			require.NoError(t, err, "input=%q", c.input)
			assert.Equal(t, c.want, got)
		}
	}
}
