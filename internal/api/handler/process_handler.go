package handler

import (
	"context"
	"encoding/json"
	"time"

	"hiring-agent-go/internal/orchestrator"
	"hiring-agent-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// PipelineService 编排器提供的流程管理操作
type PipelineService interface {
	CreateProcess(ctx context.Context, process *models.HiringProcess) error
	CancelProcess(ctx context.Context, processID string) error
	DeleteProcess(ctx context.Context, processID string) error
	ExecuteStage(ctx context.Context, processID, stage string, trigger orchestrator.TriggerSource) (*orchestrator.StageReport, error)
	RecordOAScore(ctx context.Context, processID, candidateID string, score int) error
	RecordInterviewScores(ctx context.Context, processID, candidateID string, techScore, hrScore int) error
}

// ProcessReader 流程与投递的只读查询
type ProcessReader interface {
	GetHiringProcess(ctx context.Context, processID string) (*models.HiringProcess, error)
	ListHiringProcesses(ctx context.Context, status string) ([]models.HiringProcess, error)
	GetApplication(ctx context.Context, processID, candidateID string) (*models.Application, error)
	ListApplicationsByStatus(ctx context.Context, processID string, statuses ...string) ([]models.Application, error)
	CountApplicationsByStatus(ctx context.Context, processID string, status string) (int64, error)
	CountOAClearedWithHRScore(ctx context.Context, processID string) (int64, error)
}

// JobLister 待触发截止任务的只读查询
type JobLister interface {
	ListPending(ctx context.Context) ([]models.ScheduledJob, error)
}

// PresignedURLProvider 简历原始文件的预签名下载链接
type PresignedURLProvider interface {
	GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ProcessHandler HR侧的流程管理接口
type ProcessHandler struct {
	pipeline PipelineService
	store    ProcessReader
	jobs     JobLister
	objects  PresignedURLProvider
}

// NewProcessHandler 创建流程管理处理器
func NewProcessHandler(pipeline PipelineService, store ProcessReader, jobs JobLister, objects PresignedURLProvider) *ProcessHandler {
	return &ProcessHandler{
		pipeline: pipeline,
		store:    store,
		jobs:     jobs,
		objects:  objects,
	}
}

// CreateProcessRequest 创建招聘流程请求
type CreateProcessRequest struct {
	Title             string    `json:"title"`
	JobDescription    string    `json:"job_description"`
	ResumeDeadline    time.Time `json:"resume_deadline"`
	OADeadline        time.Time `json:"oa_deadline"`
	InterviewDeadline time.Time `json:"interview_deadline"`
	CreatedBy         string    `json:"created_by"`
}

// CreateProcess POST /api/v1/hr/processes
func (h *ProcessHandler) CreateProcess(c context.Context, ctx *app.RequestContext) {
	var req CreateProcessRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if req.Title == "" || req.JobDescription == "" {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "title和job_description不能为空"})
		return
	}
	if req.ResumeDeadline.IsZero() || req.OADeadline.IsZero() || req.InterviewDeadline.IsZero() {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "三个截止时间都必须提供"})
		return
	}

	process := &models.HiringProcess{
		Title:              req.Title,
		JobDescriptionText: req.JobDescription,
		ResumeDeadline:     req.ResumeDeadline,
		OADeadline:         req.OADeadline,
		InterviewDeadline:  req.InterviewDeadline,
		CreatedByUserID:    req.CreatedBy,
	}
	if err := h.pipeline.CreateProcess(c, process); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusCreated, process)
}

// ListProcesses GET /api/v1/hr/processes?status=ACTIVE
func (h *ProcessHandler) ListProcesses(c context.Context, ctx *app.RequestContext) {
	processes, err := h.store.ListHiringProcesses(c, ctx.Query("status"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"processes": processes})
}

// ProcessDetail 流程详情与各状态的人数汇总
type ProcessDetail struct {
	Process       *models.HiringProcess `json:"process"`
	StatusCounts  map[string]int64      `json:"status_counts"`
	HRScoredCount int64                 `json:"hr_scored_count"`
}

// GetProcess GET /api/v1/hr/processes/:process_id
func (h *ProcessHandler) GetProcess(c context.Context, ctx *app.RequestContext) {
	processID := ctx.Param("process_id")
	process, err := h.store.GetHiringProcess(c, processID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	detail := ProcessDetail{
		Process:      process,
		StatusCounts: make(map[string]int64),
	}
	for _, status := range []string{
		models.StatusApplied,
		models.StatusResumeShortlisted,
		models.StatusResumeRejected,
		models.StatusOACleared,
		models.StatusOARejected,
		models.StatusFinalSelected,
		models.StatusFinalRejected,
	} {
		count, err := h.store.CountApplicationsByStatus(c, processID, status)
		if err != nil {
			writeError(ctx, err)
			return
		}
		if count > 0 {
			detail.StatusCounts[status] = count
		}
	}
	if detail.HRScoredCount, err = h.store.CountOAClearedWithHRScore(c, processID); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, detail)
}

// CancelProcess POST /api/v1/hr/processes/:process_id/cancel
func (h *ProcessHandler) CancelProcess(c context.Context, ctx *app.RequestContext) {
	if err := h.pipeline.CancelProcess(c, ctx.Param("process_id")); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"status": models.ProcessStatusCancelled})
}

// DeleteProcess DELETE /api/v1/hr/processes/:process_id
func (h *ProcessHandler) DeleteProcess(c context.Context, ctx *app.RequestContext) {
	if err := h.pipeline.DeleteProcess(c, ctx.Param("process_id")); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"deleted": true})
}

// TriggerStage POST /api/v1/hr/processes/:process_id/stages/:stage/trigger
// 手动触发一个流水线阶段；简历筛选只能在截止时间之后触发，
// 笔试和终选允许提前。终选推迟不是错误，返回200与推迟详情
func (h *ProcessHandler) TriggerStage(c context.Context, ctx *app.RequestContext) {
	report, err := h.pipeline.ExecuteStage(c, ctx.Param("process_id"), ctx.Param("stage"), orchestrator.TriggerManual)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, report)
}

// ScoreRequest 笔试成绩录入请求
type ScoreRequest struct {
	Score int `json:"score"`
}

// RecordOAScore PUT /api/v1/hr/processes/:process_id/candidates/:candidate_id/oa-score
func (h *ProcessHandler) RecordOAScore(c context.Context, ctx *app.RequestContext) {
	var req ScoreRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	if err := h.pipeline.RecordOAScore(c, ctx.Param("process_id"), ctx.Param("candidate_id"), req.Score); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"recorded": true})
}

// InterviewScoresRequest 面试成绩录入请求
type InterviewScoresRequest struct {
	TechScore int `json:"tech_score"`
	HRScore   int `json:"hr_score"`
}

// RecordInterviewScores PUT /api/v1/hr/processes/:process_id/candidates/:candidate_id/interview-scores
func (h *ProcessHandler) RecordInterviewScores(c context.Context, ctx *app.RequestContext) {
	var req InterviewScoresRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
		return
	}
	err := h.pipeline.RecordInterviewScores(c, ctx.Param("process_id"), ctx.Param("candidate_id"), req.TechScore, req.HRScore)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"recorded": true})
}

// ListApplications GET /api/v1/hr/processes/:process_id/applications?status=OA_cleared
func (h *ProcessHandler) ListApplications(c context.Context, ctx *app.RequestContext) {
	processID := ctx.Param("process_id")
	statuses := []string{
		models.StatusApplied,
		models.StatusResumeShortlisted,
		models.StatusResumeRejected,
		models.StatusOACleared,
		models.StatusOARejected,
		models.StatusFinalSelected,
		models.StatusFinalRejected,
	}
	if status := ctx.Query("status"); status != "" {
		statuses = []string{status}
	}
	apps, err := h.store.ListApplicationsByStatus(c, processID, statuses...)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"applications": apps})
}

// GetResumeURL GET /api/v1/hr/processes/:process_id/candidates/:candidate_id/resume-url
// 返回简历原始文件的预签名下载链接，有效期15分钟
func (h *ProcessHandler) GetResumeURL(c context.Context, ctx *app.RequestContext) {
	application, err := h.store.GetApplication(c, ctx.Param("process_id"), ctx.Param("candidate_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	if application.ResumeObjectKey == "" {
		ctx.JSON(consts.StatusNotFound, utils.H{"error": "该候选人没有上传简历文件"})
		return
	}
	url, err := h.objects.GetPresignedURL(c, application.ResumeObjectKey, 15*time.Minute)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"url": url})
}

// ListScheduledJobs GET /api/v1/hr/jobs
func (h *ProcessHandler) ListScheduledJobs(c context.Context, ctx *app.RequestContext) {
	jobs, err := h.jobs.ListPending(c)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"jobs": jobs})
}
