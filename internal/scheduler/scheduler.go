package scheduler

import (
	"context"
	"sync"
	"time"

	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/logger"
	"hiring-agent-go/internal/storage"
	"hiring-agent-go/internal/storage/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var schedulerTracer = otel.Tracer("hiring-agent-go/scheduler")

// JobStore 待触发任务的持久化存储
// TakeDueScheduledJobs 必须原子地"取走"到期任务：同一任务在多实例下只会被一个调度器取到
type JobStore interface {
	UpsertScheduledJob(ctx context.Context, job *models.ScheduledJob) error
	DeleteScheduledJob(ctx context.Context, jobID string) (bool, error)
	DeleteScheduledJobsByProcess(ctx context.Context, processID string) (int64, error)
	ListScheduledJobs(ctx context.Context) ([]models.ScheduledJob, error)
	TakeDueScheduledJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error)
}

// FireFunc 任务到期时的回调
type FireFunc func(ctx context.Context, job models.ScheduledJob)

// Scheduler 截止时间调度器
// 任务持久化在数据库中，轮询到期触发，进程重启后任务不丢失
type Scheduler struct {
	store        JobStore
	fire         FireFunc
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time

	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New 创建调度器
func New(store JobStore, fire FireFunc, cfg *config.SchedulerConfig) *Scheduler {
	pollInterval := 5 * time.Second
	batchSize := 10
	if cfg != nil {
		pollInterval = config.GetDuration(cfg.PollInterval, pollInterval)
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
	}

	return &Scheduler{
		store:        store,
		fire:         fire,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

// WithNowFunc 注入时间源，测试用
func (s *Scheduler) WithNowFunc(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Register 注册一个(流程,阶段)的截止时间任务
// 触发时间已过的任务直接跳过不注册，返回false；
// 重复注册同一(流程,阶段)会刷新触发时间而不是新增任务
func (s *Scheduler) Register(ctx context.Context, processID, stage string, fireAt time.Time) (bool, error) {
	if !fireAt.After(s.now()) {
		logger.Warn().
			Str("process_id", processID).
			Str("stage", stage).
			Time("fire_at", fireAt).
			Msg("触发时间已过，跳过注册")
		return false, nil
	}

	job := &models.ScheduledJob{
		JobID:     storage.ScheduledJobID(stage, processID),
		ProcessID: processID,
		Stage:     stage,
		FireAt:    fireAt,
	}
	if err := s.store.UpsertScheduledJob(ctx, job); err != nil {
		return false, err
	}

	logger.Info().
		Str("job_id", job.JobID).
		Time("fire_at", fireAt).
		Msg("截止时间任务已注册")
	return true, nil
}

// Cancel 取消一个(流程,阶段)的待触发任务，返回是否实际取消
// 任务已触发或不存在时返回false，不是错误
func (s *Scheduler) Cancel(ctx context.Context, processID, stage string) (bool, error) {
	return s.store.DeleteScheduledJob(ctx, storage.ScheduledJobID(stage, processID))
}

// CancelAll 取消流程下所有待触发任务，返回取消的数量
func (s *Scheduler) CancelAll(ctx context.Context, processID string) (int64, error) {
	return s.store.DeleteScheduledJobsByProcess(ctx, processID)
}

// ListPending 列出所有待触发任务
func (s *Scheduler) ListPending(ctx context.Context) ([]models.ScheduledJob, error) {
	return s.store.ListScheduledJobs(ctx)
}

// Start 启动轮询循环
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		logger.Info().Dur("poll_interval", s.pollInterval).Msg("调度器已启动")
		for {
			select {
			case <-s.done:
				logger.Info().Msg("调度器已停止")
				return
			case <-ticker.C:
				s.Poll(context.Background())
			}
		}
	}()
}

// Stop 停止轮询并等待正在执行的触发完成
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
}

// Poll 取走并触发一批到期任务
// 导出以便启动时立即补触发重启期间错过的任务
func (s *Scheduler) Poll(ctx context.Context) {
	jobs, err := s.store.TakeDueScheduledJobs(ctx, s.now(), s.batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("获取到期任务失败")
		return
	}
	if len(jobs) == 0 {
		return
	}

	ctx, span := schedulerTracer.Start(ctx, "Scheduler.Poll")
	span.SetAttributes(attribute.Int("jobs.due", len(jobs)))
	defer span.End()

	for _, job := range jobs {
		logger.Info().
			Str("job_id", job.JobID).
			Str("stage", job.Stage).
			Time("fire_at", job.FireAt).
			Msg("触发到期任务")
		s.fire(ctx, job)
	}
}
