package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/logger"
	"hiring-agent-go/internal/tracing"
	"hiring-agent-go/pkg/ratelimit"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var scorerTracer = otel.Tracer("hiring-agent-go/scorer")

const scoringSystemPrompt = `你是一个严格的技术招聘简历评估专家。根据给定的岗位描述评估候选人简历的匹配程度。
你必须只输出一个JSON对象，格式为 {"match_score": N}，其中N是0到100的整数，不要输出任何其他内容。`

// ResumeScorer 简历相关性评分器
// 包装LLM调用：限流、超时、解析，任何失败都以兜底分数吸收而不向上传播
type ResumeScorer struct {
	chatModel     model.ChatModel
	timeout       time.Duration
	fallbackScore int
	limiter       *ratelimit.TokenBucket
}

// NewResumeScorer 根据配置创建评分器，使用通义千问作为底层模型
func NewResumeScorer(cfg *config.ScorerConfig) (*ResumeScorer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("评分器配置不能为空")
	}

	chatModel, err := NewQwenChatModel(cfg.APIKey, cfg.Model, cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("创建评分模型失败: %w", err)
	}

	return NewResumeScorerWithModel(chatModel, cfg), nil
}

// NewResumeScorerWithModel 使用给定的ChatModel创建评分器，测试时注入MockChatClient
func NewResumeScorerWithModel(chatModel model.ChatModel, cfg *config.ScorerConfig) *ResumeScorer {
	timeout := config.GetDuration(cfg.ScoreTimeout, 3*time.Second)

	fallback := cfg.FallbackScore
	if fallback < 0 || fallback > 100 {
		fallback = 50
	}

	qpm := cfg.QPM
	if qpm <= 0 {
		qpm = 1200
	}

	return &ResumeScorer{
		chatModel:     chatModel,
		timeout:       timeout,
		fallbackScore: fallback,
		limiter:       ratelimit.NewTokenBucket(qpm, 0),
	}
}

// FallbackScore 返回配置的兜底分数
func (s *ResumeScorer) FallbackScore() int {
	return s.fallbackScore
}

// Score 计算简历与岗位描述的匹配分数，范围[0,100]
// 超时或任何调用/解析失败时返回兜底分数，degraded为true，
// 调用方据此统计评分服务的降级次数
func (s *ResumeScorer) Score(ctx context.Context, jobDescription, resumeText string) (int, bool) {
	ctx, span := scorerTracer.Start(ctx, "ResumeScorer.Score")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	score, err := s.scoreOnce(ctx, jobDescription, resumeText)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		logger.Warn().
			Err(err).
			Int("fallback_score", s.fallbackScore).
			Msg("简历评分失败，使用兜底分数")
		return s.fallbackScore, true
	}

	span.SetAttributes(attribute.Int("score.value", score))
	span.SetStatus(codes.Ok, "")
	return score, false
}

func (s *ResumeScorer) scoreOnce(ctx context.Context, jobDescription, resumeText string) (int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("等待限流令牌失败: %w", err)
	}

	messages := []*schema.Message{
		schema.SystemMessage(scoringSystemPrompt),
		schema.UserMessage(fmt.Sprintf("岗位描述:\n%s\n\n候选人简历:\n%s", jobDescription, resumeText)),
	}

	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return 0, fmt.Errorf("调用评分模型失败: %w", err)
	}

	score, err := parseMatchScore(resp.Content)
	if err != nil {
		return 0, err
	}
	return clampScore(score), nil
}

type matchScoreResponse struct {
	MatchScore int `json:"match_score"`
}

// parseMatchScore 从模型输出中解析 {"match_score": N}
// 容忍markdown代码块包裹和前后缀噪声
func parseMatchScore(content string) (int, error) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return 0, fmt.Errorf("模型输出中未找到JSON对象: %q", content)
	}

	var parsed matchScoreResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return 0, fmt.Errorf("解析评分JSON失败: %w。原始输出: %q", err, content)
	}
	return parsed.MatchScore, nil
}

// extractJSON 提取文本中第一个平衡的JSON对象
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return content[start : end+1]
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
