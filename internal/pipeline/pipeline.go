package pipeline

import (
	"context"

	"hiring-agent-go/internal/constants"
	"hiring-agent-go/internal/storage/models"
)

// Scorer 简历相关性评分器
// 实现方负责吸收底层错误：超时或调用失败时返回兜底分数并置degraded为true，
// 评分失败永远不会中断整批转移
type Scorer interface {
	Score(ctx context.Context, jobDescription, resumeText string) (score int, degraded bool)
}

// Transition 单个候选人的一次状态转移结果
type Transition struct {
	ApplicationID uint64
	CandidateID   string
	FromStatus    string
	ToStatus      string

	// 本次转移写入的分数，nil表示该字段不变
	ResumeMatchScore *int
	FinalScore       *float64

	// Degraded 标记简历分来自评分器的兜底值(超时/调用失败)
	Degraded bool
}

// ResumeStageResult 简历筛选阶段的批量评估结果
type ResumeStageResult struct {
	Transitions   []Transition
	DegradedCount int // 使用兜底分数的候选人数，用于暴露评分服务降级
}

// FinalStageResult 终选阶段的批量评估结果
type FinalStageResult struct {
	// Postponed 为true时表示HR面试分未录全，本次不执行任何转移
	Postponed      bool
	OAClearedCount int
	ScoredCount    int
	Transitions    []Transition
}

// EvaluateResumeStage 简历筛选：对每个Applied状态的投递计算匹配分并决定去留
// 空简历直接记0分淘汰，不调用评分器；其余调用评分器，50分及以上晋级
// 纯函数语义：除评分器调用外无副作用，相同输入产生相同转移
func EvaluateResumeStage(ctx context.Context, jobDescription string, apps []models.Application, scorer Scorer) ResumeStageResult {
	result := ResumeStageResult{
		Transitions: make([]Transition, 0, len(apps)),
	}

	for _, app := range apps {
		if app.Status != models.StatusApplied {
			continue
		}

		t := Transition{
			ApplicationID: app.ApplicationID,
			CandidateID:   app.CandidateID,
			FromStatus:    models.StatusApplied,
		}

		var score int
		if app.ResumeText == "" {
			score = 0
		} else {
			var degraded bool
			score, degraded = scorer.Score(ctx, jobDescription, app.ResumeText)
			score = clampScore(score)
			t.Degraded = degraded
			if degraded {
				result.DegradedCount++
			}
		}

		t.ResumeMatchScore = &score
		if score >= constants.ResumeShortlistThreshold {
			t.ToStatus = models.StatusResumeShortlisted
		} else {
			t.ToStatus = models.StatusResumeRejected
		}

		result.Transitions = append(result.Transitions, t)
	}

	return result
}

// EvaluateAssessmentStage 在线笔试：对简历晋级且已出笔试分的投递判定去留
// 未参加笔试(oa_score为NULL)的候选人默认跳过，保持Resume_shortlisted；
// absentCountsAsZero为true时按0分处理，即直接淘汰
func EvaluateAssessmentStage(apps []models.Application, absentCountsAsZero bool) []Transition {
	transitions := make([]Transition, 0, len(apps))

	for _, app := range apps {
		if app.Status != models.StatusResumeShortlisted {
			continue
		}

		var oaScore int
		if app.OAScore == nil {
			if !absentCountsAsZero {
				continue
			}
			oaScore = 0
		} else {
			oaScore = *app.OAScore
		}

		t := Transition{
			ApplicationID: app.ApplicationID,
			CandidateID:   app.CandidateID,
			FromStatus:    models.StatusResumeShortlisted,
		}
		if oaScore >= constants.OAClearThreshold {
			t.ToStatus = models.StatusOACleared
		} else {
			t.ToStatus = models.StatusOARejected
		}

		transitions = append(transitions, t)
	}

	return transitions
}

// EvaluateFinalStage 终选：对笔试晋级的投递计算加权综合分并判定录用
// 硬前置条件：所有OA_cleared投递的hr_score必须已录入，
// 否则整批推迟，不做任何部分转移
func EvaluateFinalStage(apps []models.Application) FinalStageResult {
	result := FinalStageResult{}

	cleared := make([]models.Application, 0, len(apps))
	for _, app := range apps {
		if app.Status != models.StatusOACleared {
			continue
		}
		cleared = append(cleared, app)
		if app.HRScore != nil {
			result.ScoredCount++
		}
	}
	result.OAClearedCount = len(cleared)

	if result.ScoredCount < result.OAClearedCount {
		result.Postponed = true
		return result
	}

	result.Transitions = make([]Transition, 0, len(cleared))
	for _, app := range cleared {
		combined := CombinedScore(app)

		t := Transition{
			ApplicationID: app.ApplicationID,
			CandidateID:   app.CandidateID,
			FromStatus:    models.StatusOACleared,
			FinalScore:    &combined,
		}
		if combined >= constants.FinalSelectThreshold {
			t.ToStatus = models.StatusFinalSelected
		} else {
			t.ToStatus = models.StatusFinalRejected
		}

		result.Transitions = append(result.Transitions, t)
	}

	return result
}

// CombinedScore 终选加权综合分: 0.4*oa + 0.3*tech + 0.3*hr
// 未录入的分量按0计
func CombinedScore(app models.Application) float64 {
	var oa, tech, hr float64
	if app.OAScore != nil {
		oa = float64(*app.OAScore)
	}
	if app.TechScore != nil {
		tech = float64(*app.TechScore)
	}
	if app.HRScore != nil {
		hr = float64(*app.HRScore)
	}
	return constants.FinalWeightOA*oa + constants.FinalWeightTech*tech + constants.FinalWeightHR*hr
}

// clampScore 将评分限制在[0,100]区间
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
