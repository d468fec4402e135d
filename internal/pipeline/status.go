package pipeline

import (
	"fmt"

	"hiring-agent-go/internal/storage/models"
)

// allowedTransitions 候选人状态机的合法转移表
// Applied → Resume_shortlisted | Resume_rejected
// Resume_shortlisted → OA_cleared | OA_rejected
// OA_cleared → Final_selected | Final_rejected
// 淘汰状态和终选状态均为终态
var allowedTransitions = map[string][]string{
	models.StatusApplied: {
		models.StatusResumeShortlisted,
		models.StatusResumeRejected,
	},
	models.StatusResumeShortlisted: {
		models.StatusOACleared,
		models.StatusOARejected,
	},
	models.StatusOACleared: {
		models.StatusFinalSelected,
		models.StatusFinalRejected,
	},
}

// CanTransition 判断一次状态转移是否合法，终态没有出边
func CanTransition(from, to string) bool {
	if models.IsTerminal(from) {
		return false
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition 校验转移合法性，非法时返回描述性错误
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("非法的状态转移: %s -> %s", from, to)
	}
	return nil
}

// ExpectedStatusForStage 返回各阶段处理的前置状态
// 阶段执行只选取处于该状态的投递，这是幂等重入的基础：
// 已转移过的候选人不会再次被选中
func ExpectedStatusForStage(stage string) string {
	switch stage {
	case "resume":
		return models.StatusApplied
	case "oa":
		return models.StatusResumeShortlisted
	case "interview":
		return models.StatusOACleared
	}
	return ""
}
