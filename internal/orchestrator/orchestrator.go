package orchestrator

import (
	"context"
	"errors"
	"time"

	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/constants"
	"hiring-agent-go/internal/logger"
	"hiring-agent-go/internal/notifier"
	"hiring-agent-go/internal/pipeline"
	"hiring-agent-go/internal/scheduler"
	"hiring-agent-go/internal/storage"
	"hiring-agent-go/internal/storage/models"
	"hiring-agent-go/internal/tracing"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var orchTracer = otel.Tracer("hiring-agent-go/orchestrator")

// TriggerSource 阶段执行的触发来源
type TriggerSource string

const (
	TriggerDeadline TriggerSource = "deadline" // 截止时间到期自动触发
	TriggerManual   TriggerSource = "manual"   // HR手动触发
)

const (
	defaultStoreRetries = 3
	defaultRetryBackoff = 100 * time.Millisecond
	stageLockExpiration = 5 * time.Minute
)

// StageReport 一次阶段执行的结果汇总
type StageReport struct {
	ProcessID string        `json:"process_id"`
	Stage     string        `json:"stage"`
	Trigger   TriggerSource `json:"trigger"`

	// Postponed 仅终选阶段：HR面试分未录全，整批推迟
	Postponed      bool `json:"postponed"`
	OAClearedCount int  `json:"oa_cleared_count,omitempty"`
	ScoredCount    int  `json:"scored_count,omitempty"`

	Transitioned     int `json:"transitioned"`
	AlreadyProcessed int `json:"already_processed"` // 守卫更新命中0行，说明之前的执行已处理过
	DegradedScores   int `json:"degraded_scores"`   // 使用兜底分数的候选人数
	StoreFailures    int `json:"store_failures"`    // 重试耗尽仍写入失败的候选人数

	NotificationsSent   int `json:"notifications_sent"`
	NotificationsFailed int `json:"notifications_failed"`
}

// Orchestrator 招聘流水线编排器
// 串起调度器、评分器、状态机和通知器：创建流程时注册截止任务，
// 任务到期或HR手动触发时执行对应阶段的批量评估与状态转移
type Orchestrator struct {
	processes ProcessStore
	apps      ApplicationStore
	sched     DeadlineScheduler
	scorer    pipeline.Scorer
	notifier  notifier.Notifier
	clock     Clock

	locker  StageLocker       // 可为nil，锁只是尽力而为
	marks   NotifyMarkStore   // 可为nil
	objects ResumeObjectStore // 可为nil

	absentOACountsAsZero bool
	storeRetries         int
	retryBackoff         time.Duration
}

// New 创建编排器
func New(processes ProcessStore, apps ApplicationStore, sched DeadlineScheduler,
	scorer pipeline.Scorer, n notifier.Notifier, clock Clock, cfg *config.PipelineConfig) *Orchestrator {
	o := &Orchestrator{
		processes:    processes,
		apps:         apps,
		sched:        sched,
		scorer:       scorer,
		notifier:     n,
		clock:        clock,
		storeRetries: defaultStoreRetries,
		retryBackoff: defaultRetryBackoff,
	}
	if cfg != nil {
		o.absentOACountsAsZero = cfg.AbsentOACountsAsZero
	}
	return o
}

// WithStageLocker 注入阶段执行锁（通常是Redis）
func (o *Orchestrator) WithStageLocker(locker StageLocker) *Orchestrator {
	o.locker = locker
	return o
}

// WithNotifyMarkStore 注入通知去重标记清理入口
func (o *Orchestrator) WithNotifyMarkStore(marks NotifyMarkStore) *Orchestrator {
	o.marks = marks
	return o
}

// WithResumeObjectStore 注入简历文件清理入口（通常是MinIO）
func (o *Orchestrator) WithResumeObjectStore(objects ResumeObjectStore) *Orchestrator {
	o.objects = objects
	return o
}

// WithRetryBackoff 调整存储重试间隔，测试用
func (o *Orchestrator) WithRetryBackoff(d time.Duration) *Orchestrator {
	o.retryBackoff = d
	return o
}

// FireFunc 返回供调度器使用的到期回调
func (o *Orchestrator) FireFunc() scheduler.FireFunc {
	return func(ctx context.Context, job models.ScheduledJob) {
		if _, err := o.ExecuteStage(ctx, job.ProcessID, job.Stage, TriggerDeadline); err != nil {
			logger.Error().
				Err(err).
				Str("job_id", job.JobID).
				Msg("截止任务执行失败")
		}
	}
}

// CreateProcess 创建招聘流程并注册三个阶段的截止任务
// 截止时间必须严格递增：简历 < 笔试 < 面试
func (o *Orchestrator) CreateProcess(ctx context.Context, process *models.HiringProcess) error {
	if !process.ResumeDeadline.Before(process.OADeadline) ||
		!process.OADeadline.Before(process.InterviewDeadline) {
		return newStageError("create_process", process.ProcessID, "", ErrInvalidDeadlines, "")
	}

	if process.ProcessID == "" {
		process.ProcessID = uuid.Must(uuid.NewV7()).String()
	}
	if process.Status == "" {
		process.Status = models.ProcessStatusActive
	}

	if err := o.withStoreRetry(ctx, "create_process", func() error {
		return o.processes.CreateHiringProcess(ctx, process)
	}); err != nil {
		return err
	}

	return o.RegisterProcessDeadlines(ctx, process)
}

// RegisterProcessDeadlines 为流程的三个截止时间注册调度任务
// 已过去的截止时间由调度器直接跳过
func (o *Orchestrator) RegisterProcessDeadlines(ctx context.Context, process *models.HiringProcess) error {
	deadlines := []struct {
		stage  string
		fireAt time.Time
	}{
		{constants.StageResume, process.ResumeDeadline},
		{constants.StageOA, process.OADeadline},
		{constants.StageInterview, process.InterviewDeadline},
	}

	for _, d := range deadlines {
		if _, err := o.sched.Register(ctx, process.ProcessID, d.stage, d.fireAt); err != nil {
			return newStageError("register_deadline", process.ProcessID, d.stage, ErrStorageUnavailable, err.Error())
		}
	}
	return nil
}

// SubmitApplication 候选人投递简历
// 同一(流程,候选人)重复投递会覆盖简历内容但不回退状态；
// 简历截止后拒绝新投递
func (o *Orchestrator) SubmitApplication(ctx context.Context, app *models.Application) error {
	process, err := o.getProcess(ctx, "submit_application", app.ProcessID)
	if err != nil {
		return err
	}
	if process.Status != models.ProcessStatusActive {
		return newStageError("submit_application", app.ProcessID, "", ErrProcessNotActive, "")
	}
	if o.clock.Now().After(process.ResumeDeadline) {
		return newStageError("submit_application", app.ProcessID, "", ErrSubmissionClosed, "")
	}

	if app.CandidateID == "" {
		app.CandidateID = uuid.Must(uuid.NewV7()).String()
	}
	if app.Status == "" {
		app.Status = models.StatusApplied
	}

	return o.withStoreRetry(ctx, "upsert_application", func() error {
		return o.apps.UpsertApplication(ctx, app)
	})
}

// RecordOAScore 录入候选人的笔试成绩，只对Resume_shortlisted状态生效
func (o *Orchestrator) RecordOAScore(ctx context.Context, processID, candidateID string, score int) error {
	if score < 0 || score > 100 {
		return newStageError("record_oa_score", processID, constants.StageOA, ErrInvalidScore, "")
	}

	rows, err := o.apps.SetOAScore(ctx, processID, candidateID, score)
	if err != nil {
		return newStageError("record_oa_score", processID, constants.StageOA, ErrStorageUnavailable, err.Error())
	}
	if rows == 0 {
		return o.explainZeroRows(ctx, "record_oa_score", processID, candidateID, constants.StageOA)
	}
	return nil
}

// RecordInterviewScores 录入候选人的技术面与HR面成绩，只对OA_cleared状态生效
func (o *Orchestrator) RecordInterviewScores(ctx context.Context, processID, candidateID string, techScore, hrScore int) error {
	if techScore < 0 || techScore > 100 || hrScore < 0 || hrScore > 100 {
		return newStageError("record_interview_scores", processID, constants.StageInterview, ErrInvalidScore, "")
	}

	rows, err := o.apps.SetInterviewScores(ctx, processID, candidateID, techScore, hrScore)
	if err != nil {
		return newStageError("record_interview_scores", processID, constants.StageInterview, ErrStorageUnavailable, err.Error())
	}
	if rows == 0 {
		return o.explainZeroRows(ctx, "record_interview_scores", processID, candidateID, constants.StageInterview)
	}
	return nil
}

// explainZeroRows 守卫更新命中0行时区分"记录不存在"和"状态不允许"
func (o *Orchestrator) explainZeroRows(ctx context.Context, op, processID, candidateID, stage string) error {
	app, err := o.apps.GetApplication(ctx, processID, candidateID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return newStageError(op, processID, stage, ErrApplicationNotFound, "候选人:"+candidateID)
		}
		return newStageError(op, processID, stage, ErrStorageUnavailable, err.Error())
	}
	return newStageError(op, processID, stage, ErrStageNotApplicable, "当前状态:"+app.Status)
}

// ExecuteStage 执行流程的一个流水线阶段
// 手动触发简历筛选必须等到简历截止时间之后；笔试与终选允许提前手动触发。
// 执行前先取消同阶段的待触发任务，避免手动执行后截止任务再次触发。
// 整个执行是幂等的：状态过滤的守卫更新保证重复执行不产生重复转移或重复通知
func (o *Orchestrator) ExecuteStage(ctx context.Context, processID, stage string, trigger TriggerSource) (*StageReport, error) {
	if pipeline.ExpectedStatusForStage(stage) == "" {
		return nil, newStageError("execute_stage", processID, stage, ErrUnknownStage, "")
	}

	ctx, span := orchTracer.Start(ctx, "Orchestrator.ExecuteStage")
	defer span.End()
	span.SetAttributes(
		attribute.String("process.id", processID),
		attribute.String("pipeline.stage", stage),
		attribute.String("pipeline.trigger", string(trigger)),
	)

	process, err := o.getProcess(ctx, "execute_stage", processID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}
	if process.Status != models.ProcessStatusActive {
		return nil, newStageError("execute_stage", processID, stage, ErrProcessNotActive, "流程状态:"+process.Status)
	}

	if trigger == TriggerManual && stage == constants.StageResume && o.clock.Now().Before(process.ResumeDeadline) {
		return nil, newStageError("execute_stage", processID, stage, ErrDeadlineNotReached,
			"截止时间:"+process.ResumeDeadline.Format(time.RFC3339))
	}

	// 取消同阶段的待触发任务；任务已触发或不存在不算错误
	if _, err := o.sched.Cancel(ctx, processID, stage); err != nil {
		logger.Warn().Err(err).
			Str("process_id", processID).
			Str("stage", stage).
			Msg("取消待触发任务失败，继续执行")
	}

	if release := o.tryLockStage(ctx, processID, stage); release != nil {
		defer release()
	}

	report := &StageReport{ProcessID: processID, Stage: stage, Trigger: trigger}

	apps, err := o.apps.ListApplicationsByStatus(ctx, processID, pipeline.ExpectedStatusForStage(stage))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, newStageError("execute_stage", processID, stage, ErrStorageUnavailable, err.Error())
	}

	var transitions []pipeline.Transition
	switch stage {
	case constants.StageResume:
		res := pipeline.EvaluateResumeStage(ctx, process.JobDescriptionText, apps, o.scorer)
		transitions = res.Transitions
		report.DegradedScores = res.DegradedCount
	case constants.StageOA:
		transitions = pipeline.EvaluateAssessmentStage(apps, o.absentOACountsAsZero)
	case constants.StageInterview:
		res := pipeline.EvaluateFinalStage(apps)
		report.OAClearedCount = res.OAClearedCount
		report.ScoredCount = res.ScoredCount
		if res.Postponed {
			report.Postponed = true
			logger.Warn().
				Str("process_id", processID).
				Int("oa_cleared", res.OAClearedCount).
				Int("scored", res.ScoredCount).
				Msg("HR面试分未录全，终选推迟")
			return report, nil
		}
		transitions = res.Transitions
	}

	o.applyTransitions(ctx, process, stage, apps, transitions, report)

	// 终选执行完毕后整个流程结束
	if stage == constants.StageInterview && report.StoreFailures == 0 {
		if err := o.processes.UpdateProcessStatus(ctx, processID, models.ProcessStatusCompleted); err != nil {
			logger.Error().Err(err).Str("process_id", processID).Msg("标记流程完成失败")
		}
	}

	span.SetAttributes(
		attribute.Int("pipeline.transitioned", report.Transitioned),
		attribute.Int("pipeline.already_processed", report.AlreadyProcessed),
		attribute.Int("pipeline.notifications_failed", report.NotificationsFailed),
	)

	logger.Info().
		Str("process_id", processID).
		Str("stage", stage).
		Str("trigger", string(trigger)).
		Int("transitioned", report.Transitioned).
		Int("already_processed", report.AlreadyProcessed).
		Int("degraded_scores", report.DegradedScores).
		Int("notifications_failed", report.NotificationsFailed).
		Msg("阶段执行完成")

	if report.StoreFailures > 0 {
		return report, newStageError("execute_stage", processID, stage, ErrStorageUnavailable,
			"部分候选人状态写入失败")
	}
	return report, nil
}

// applyTransitions 逐候选人落库并发送通知
// 单个候选人的写入失败或通知失败只计数，不中断整批
func (o *Orchestrator) applyTransitions(ctx context.Context, process *models.HiringProcess, stage string,
	apps []models.Application, transitions []pipeline.Transition, report *StageReport) {

	appByID := make(map[uint64]models.Application, len(apps))
	for _, app := range apps {
		appByID[app.ApplicationID] = app
	}

	for _, t := range transitions {
		updates := map[string]interface{}{"status": t.ToStatus}
		if t.ResumeMatchScore != nil {
			updates["resume_match_score"] = *t.ResumeMatchScore
		}
		if t.FinalScore != nil {
			updates["final_score"] = *t.FinalScore
			if breakdown, err := finalScoreBreakdown(appByID[t.ApplicationID]); err == nil {
				updates["score_breakdown_json"] = breakdown
			}
		}

		var rows int64
		err := o.withStoreRetry(ctx, "apply_transition", func() error {
			var applyErr error
			rows, applyErr = o.apps.ApplyTransition(ctx, t.ApplicationID, t.FromStatus, updates)
			return applyErr
		})
		if err != nil {
			logger.Error().Err(err).
				Str("process_id", process.ProcessID).
				Str("candidate_id", t.CandidateID).
				Str("to_status", t.ToStatus).
				Msg("状态转移写入失败")
			report.StoreFailures++
			continue
		}
		if rows == 0 {
			// 之前的执行已经转移过该候选人
			report.AlreadyProcessed++
			continue
		}
		report.Transitioned++

		app := appByID[t.ApplicationID]
		if err := o.notifier.Notify(ctx, process, app, stage, t.ToStatus); err != nil {
			logger.Warn().Err(err).
				Str("process_id", process.ProcessID).
				Str("candidate_id", t.CandidateID).
				Msg("通知入队失败")
			report.NotificationsFailed++
			continue
		}
		report.NotificationsSent++
	}
}

// CancelProcess 取消流程：撤销所有待触发任务并标记CANCELLED
func (o *Orchestrator) CancelProcess(ctx context.Context, processID string) error {
	if _, err := o.getProcess(ctx, "cancel_process", processID); err != nil {
		return err
	}
	if _, err := o.sched.CancelAll(ctx, processID); err != nil {
		return newStageError("cancel_process", processID, "", ErrStorageUnavailable, err.Error())
	}
	if err := o.processes.UpdateProcessStatus(ctx, processID, models.ProcessStatusCancelled); err != nil {
		return newStageError("cancel_process", processID, "", ErrStorageUnavailable, err.Error())
	}
	return nil
}

// DeleteProcess 删除流程及其投递记录、待触发任务、通知去重标记和简历文件
func (o *Orchestrator) DeleteProcess(ctx context.Context, processID string) error {
	if _, err := o.getProcess(ctx, "delete_process", processID); err != nil {
		return err
	}
	if _, err := o.sched.CancelAll(ctx, processID); err != nil {
		return newStageError("delete_process", processID, "", ErrStorageUnavailable, err.Error())
	}
	if err := o.processes.DeleteHiringProcess(ctx, processID); err != nil {
		return newStageError("delete_process", processID, "", ErrStorageUnavailable, err.Error())
	}
	if o.marks != nil {
		if err := o.marks.ClearNotifiedMarks(ctx, processID); err != nil {
			logger.Warn().Err(err).Str("process_id", processID).Msg("清理通知去重标记失败")
		}
	}
	if o.objects != nil {
		if err := o.objects.DeleteProcessFiles(ctx, processID); err != nil {
			logger.Warn().Err(err).Str("process_id", processID).Msg("清理简历文件失败")
		}
	}
	return nil
}

func (o *Orchestrator) getProcess(ctx context.Context, op, processID string) (*models.HiringProcess, error) {
	process, err := o.processes.GetHiringProcess(ctx, processID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, newStageError(op, processID, "", ErrProcessNotFound, "")
		}
		return nil, newStageError(op, processID, "", ErrStorageUnavailable, err.Error())
	}
	return process, nil
}

// tryLockStage 尽力获取阶段执行锁，返回释放函数；未获取到锁时返回nil并继续执行
func (o *Orchestrator) tryLockStage(ctx context.Context, processID, stage string) func() {
	if o.locker == nil {
		return nil
	}
	lockValue, err := o.locker.AcquireStageLock(ctx, processID, stage, stageLockExpiration)
	if err != nil || lockValue == "" {
		logger.Warn().Err(err).
			Str("process_id", processID).
			Str("stage", stage).
			Msg("未获取到阶段执行锁，守卫更新保证幂等，继续执行")
		return nil
	}
	return func() {
		if _, err := o.locker.ReleaseStageLock(ctx, processID, stage, lockValue); err != nil {
			logger.Warn().Err(err).Str("process_id", processID).Msg("释放阶段执行锁失败")
		}
	}
}

// withStoreRetry 有限次重试的存储操作包装，记录不存在不重试
func (o *Orchestrator) withStoreRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= o.storeRetries; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, storage.ErrRecordNotFound) {
			return err
		}
		if attempt < o.storeRetries {
			logger.Warn().Err(err).
				Str("op", op).
				Int("attempt", attempt).
				Msg("存储操作失败，准备重试")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.retryBackoff * time.Duration(attempt)):
			}
		}
	}
	return &StageError{Op: op, BaseErr: ErrStorageUnavailable, Detail: err.Error()}
}

// finalScoreBreakdown 终选分数的构成明细，存入score_breakdown_json便于复盘
func finalScoreBreakdown(app models.Application) (interface{}, error) {
	breakdown := map[string]interface{}{
		"weights": map[string]float64{
			"oa":   constants.FinalWeightOA,
			"tech": constants.FinalWeightTech,
			"hr":   constants.FinalWeightHR,
		},
	}
	if app.OAScore != nil {
		breakdown["oa_score"] = *app.OAScore
	}
	if app.TechScore != nil {
		breakdown["tech_score"] = *app.TechScore
	}
	if app.HRScore != nil {
		breakdown["hr_score"] = *app.HRScore
	}
	return models.MapToJSON(breakdown)
}
