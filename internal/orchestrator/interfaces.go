package orchestrator

import (
	"context"
	"time"

	"hiring-agent-go/internal/storage/models"
)

// ProcessStore 招聘流程的持久化存储
type ProcessStore interface {
	CreateHiringProcess(ctx context.Context, process *models.HiringProcess) error
	GetHiringProcess(ctx context.Context, processID string) (*models.HiringProcess, error)
	ListHiringProcesses(ctx context.Context, status string) ([]models.HiringProcess, error)
	UpdateProcessStatus(ctx context.Context, processID string, status string) error
	DeleteHiringProcess(ctx context.Context, processID string) error
}

// ApplicationStore 投递记录的持久化存储
// ApplyTransition/SetOAScore/SetInterviewScores 都是按当前状态过滤的守卫更新，
// 返回受影响行数，0行表示记录不存在或状态已变化
type ApplicationStore interface {
	UpsertApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, processID, candidateID string) (*models.Application, error)
	ListApplicationsByStatus(ctx context.Context, processID string, statuses ...string) ([]models.Application, error)
	ApplyTransition(ctx context.Context, applicationID uint64, expectedStatus string, updates map[string]interface{}) (int64, error)
	SetOAScore(ctx context.Context, processID, candidateID string, score int) (int64, error)
	SetInterviewScores(ctx context.Context, processID, candidateID string, techScore, hrScore int) (int64, error)
}

// DeadlineScheduler 截止时间任务的注册与取消
type DeadlineScheduler interface {
	Register(ctx context.Context, processID, stage string, fireAt time.Time) (bool, error)
	Cancel(ctx context.Context, processID, stage string) (bool, error)
	CancelAll(ctx context.Context, processID string) (int64, error)
}

// StageLocker 阶段执行锁
// 锁是尽力而为的：状态过滤的守卫更新已经保证并发执行安全，
// 锁只用来避免两个实例同时跑同一阶段造成重复的评分调用
type StageLocker interface {
	AcquireStageLock(ctx context.Context, processID, stage string, expiration time.Duration) (string, error)
	ReleaseStageLock(ctx context.Context, processID, stage string, lockValue string) (bool, error)
}

// NotifyMarkStore 通知去重标记的清理入口
type NotifyMarkStore interface {
	ClearNotifiedMarks(ctx context.Context, processID string) error
}

// ResumeObjectStore 候选人原始简历文件的清理入口
type ResumeObjectStore interface {
	DeleteProcessFiles(ctx context.Context, processID string) error
}
