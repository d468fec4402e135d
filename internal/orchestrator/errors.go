package orchestrator

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrProcessNotFound     = errors.New("招聘流程不存在")
	ErrApplicationNotFound = errors.New("投递记录不存在")
	ErrProcessNotActive    = errors.New("招聘流程已结束或取消")
	ErrSubmissionClosed    = errors.New("简历投递已截止")
	ErrDeadlineNotReached  = errors.New("简历截止时间未到，不能手动触发筛选")
	ErrInvalidDeadlines    = errors.New("三个截止时间必须严格递增")
	ErrInvalidScore        = errors.New("分数必须在0到100之间")
	ErrUnknownStage        = errors.New("未知的流水线阶段")
	ErrStageNotApplicable  = errors.New("候选人当前状态不允许该操作")
	ErrStorageUnavailable  = errors.New("存储暂时不可用")
)

// StageError 包含详细上下文的自定义错误
type StageError struct {
	ProcessID string
	Stage     string
	Op        string
	BaseErr   error
	Detail    string
}

func (e *StageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 流程:%s, 阶段:%s): %s", e.BaseErr, e.Op, e.ProcessID, e.Stage, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 流程:%s, 阶段:%s)", e.BaseErr, e.Op, e.ProcessID, e.Stage)
}

func (e *StageError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *StageError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func newStageError(op, processID, stage string, base error, detail string) error {
	return &StageError{
		ProcessID: processID,
		Stage:     stage,
		Op:        op,
		BaseErr:   base,
		Detail:    detail,
	}
}
