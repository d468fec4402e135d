package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"testing"
	"time"

	"hiring-agent-go/internal/api/handler"
	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/orchestrator"
	"hiring-agent-go/internal/storage"
	"hiring-agent-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePipeline 可编程的编排器假实现
type fakePipeline struct {
	createErr error
	report    *orchestrator.StageReport
	execErr   error
	scoreErr  error

	lastStage   string
	lastTrigger orchestrator.TriggerSource
	lastScore   int
}

func (f *fakePipeline) CreateProcess(ctx context.Context, p *models.HiringProcess) error {
	if f.createErr != nil {
		return f.createErr
	}
	p.ProcessID = "p-created"
	p.Status = models.ProcessStatusActive
	return nil
}

func (f *fakePipeline) CancelProcess(ctx context.Context, processID string) error { return nil }
func (f *fakePipeline) DeleteProcess(ctx context.Context, processID string) error { return nil }

func (f *fakePipeline) ExecuteStage(ctx context.Context, processID, stage string, trigger orchestrator.TriggerSource) (*orchestrator.StageReport, error) {
	f.lastStage = stage
	f.lastTrigger = trigger
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.report != nil {
		return f.report, nil
	}
	return &orchestrator.StageReport{ProcessID: processID, Stage: stage, Trigger: trigger}, nil
}

func (f *fakePipeline) RecordOAScore(ctx context.Context, processID, candidateID string, score int) error {
	f.lastScore = score
	return f.scoreErr
}

func (f *fakePipeline) RecordInterviewScores(ctx context.Context, processID, candidateID string, techScore, hrScore int) error {
	return f.scoreErr
}

// fakeReader 返回预置数据的只读存储
type fakeReader struct {
	process *models.HiringProcess
	apps    []models.Application
}

func (f *fakeReader) GetHiringProcess(ctx context.Context, processID string) (*models.HiringProcess, error) {
	if f.process == nil || f.process.ProcessID != processID {
		return nil, storage.ErrRecordNotFound
	}
	return f.process, nil
}

func (f *fakeReader) ListHiringProcesses(ctx context.Context, status string) ([]models.HiringProcess, error) {
	if f.process == nil {
		return nil, nil
	}
	return []models.HiringProcess{*f.process}, nil
}

func (f *fakeReader) GetApplication(ctx context.Context, processID, candidateID string) (*models.Application, error) {
	for i := range f.apps {
		if f.apps[i].ProcessID == processID && f.apps[i].CandidateID == candidateID {
			return &f.apps[i], nil
		}
	}
	return nil, storage.ErrRecordNotFound
}

func (f *fakeReader) ListApplicationsByStatus(ctx context.Context, processID string, statuses ...string) ([]models.Application, error) {
	var out []models.Application
	for _, a := range f.apps {
		for _, s := range statuses {
			if a.ProcessID == processID && a.Status == s {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (f *fakeReader) CountApplicationsByStatus(ctx context.Context, processID string, status string) (int64, error) {
	apps, _ := f.ListApplicationsByStatus(ctx, processID, status)
	return int64(len(apps)), nil
}

func (f *fakeReader) CountOAClearedWithHRScore(ctx context.Context, processID string) (int64, error) {
	var n int64
	for _, a := range f.apps {
		if a.Status == models.StatusOACleared && a.HRScore != nil {
			n++
		}
	}
	return n, nil
}

type fakeJobs struct{}

func (fakeJobs) ListPending(ctx context.Context) ([]models.ScheduledJob, error) {
	return []models.ScheduledJob{{JobID: "resume_p1", ProcessID: "p1", Stage: "resume"}}, nil
}

type fakeURLProvider struct{}

func (fakeURLProvider) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "http://minio.local/" + objectName, nil
}

// fakeSubmitter 记录投递的假编排器
type fakeSubmitter struct {
	submitted []models.Application
	err       error
}

func (f *fakeSubmitter) SubmitApplication(ctx context.Context, app *models.Application) error {
	if f.err != nil {
		return f.err
	}
	app.Status = models.StatusApplied
	f.submitted = append(f.submitted, *app)
	return nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error) {
	return f.text, f.err
}

type fakeFileStore struct{}

func (fakeFileStore) UploadResumeFile(ctx context.Context, processID, candidateID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	return processID + "/" + candidateID + fileExt, nil
}

type testDeps struct {
	pipeline  *fakePipeline
	reader    *fakeReader
	submitter *fakeSubmitter
	extractor *fakeExtractor
}

func newTestServer(t *testing.T, apiKey string) (*server.Hertz, *testDeps) {
	t.Helper()
	deps := &testDeps{
		pipeline:  &fakePipeline{},
		reader:    &fakeReader{},
		submitter: &fakeSubmitter{},
		extractor: &fakeExtractor{text: "五年Go后端经验"},
	}
	processHandler := handler.NewProcessHandler(deps.pipeline, deps.reader, fakeJobs{}, fakeURLProvider{})
	applicationHandler := handler.NewApplicationHandler(deps.submitter, deps.extractor, fakeFileStore{})

	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	RegisterRoutes(h, &config.ServerConfig{APIKey: apiKey}, processHandler, applicationHandler)
	return h, deps
}

func performJSON(h *server.Hertz, method, url string, payload interface{}, headers ...ut.Header) *ut.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	return ut.PerformRequest(h.Engine, method, url, &ut.Body{Body: body, Len: body.Len()}, headers...)
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, "")
	resp := ut.PerformRequest(h.Engine, "GET", "/api/v1/health", nil)
	assert.Equal(t, 200, resp.Code)
}

func TestCreateProcess(t *testing.T) {
	h, _ := newTestServer(t, "")
	now := time.Now()

	resp := performJSON(h, "POST", "/api/v1/hr/processes", map[string]interface{}{
		"title":              "后端工程师",
		"job_description":    "负责后端开发",
		"resume_deadline":    now.Add(24 * time.Hour).Format(time.RFC3339),
		"oa_deadline":        now.Add(48 * time.Hour).Format(time.RFC3339),
		"interview_deadline": now.Add(72 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, 201, resp.Code, resp.Result().Body())

	var created models.HiringProcess
	require.NoError(t, json.Unmarshal(resp.Result().Body(), &created))
	assert.Equal(t, "p-created", created.ProcessID)
}

func TestCreateProcessValidation(t *testing.T) {
	h, deps := newTestServer(t, "")

	// 缺少必填字段
	resp := performJSON(h, "POST", "/api/v1/hr/processes", map[string]interface{}{"title": "只有标题"})
	assert.Equal(t, 400, resp.Code)

	// 编排器返回截止时间顺序错误
	deps.pipeline.createErr = orchestrator.ErrInvalidDeadlines
	now := time.Now()
	resp = performJSON(h, "POST", "/api/v1/hr/processes", map[string]interface{}{
		"title":              "顺序错误",
		"job_description":    "jd",
		"resume_deadline":    now.Add(48 * time.Hour).Format(time.RFC3339),
		"oa_deadline":        now.Add(24 * time.Hour).Format(time.RFC3339),
		"interview_deadline": now.Add(72 * time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, 400, resp.Code)
}

func TestGetProcessNotFound(t *testing.T) {
	h, _ := newTestServer(t, "")
	resp := ut.PerformRequest(h.Engine, "GET", "/api/v1/hr/processes/nope", nil)
	assert.Equal(t, 404, resp.Code)
}

func TestGetProcessDetail(t *testing.T) {
	h, deps := newTestServer(t, "")
	deps.reader.process = &models.HiringProcess{ProcessID: "p1", Title: "后端工程师"}
	hr := 80
	deps.reader.apps = []models.Application{
		{ProcessID: "p1", CandidateID: "c1", Status: models.StatusOACleared, HRScore: &hr},
		{ProcessID: "p1", CandidateID: "c2", Status: models.StatusResumeRejected},
	}

	resp := ut.PerformRequest(h.Engine, "GET", "/api/v1/hr/processes/p1", nil)
	require.Equal(t, 200, resp.Code)

	var detail struct {
		StatusCounts  map[string]int64 `json:"status_counts"`
		HRScoredCount int64            `json:"hr_scored_count"`
	}
	require.NoError(t, json.Unmarshal(resp.Result().Body(), &detail))
	assert.EqualValues(t, 1, detail.StatusCounts[models.StatusOACleared])
	assert.EqualValues(t, 1, detail.HRScoredCount)
}

func TestTriggerStage(t *testing.T) {
	h, deps := newTestServer(t, "")

	resp := performJSON(h, "POST", "/api/v1/hr/processes/p1/stages/oa/trigger", nil)
	require.Equal(t, 200, resp.Code)
	assert.Equal(t, "oa", deps.pipeline.lastStage)
	assert.Equal(t, orchestrator.TriggerManual, deps.pipeline.lastTrigger)
}

func TestTriggerStageBeforeDeadline(t *testing.T) {
	h, deps := newTestServer(t, "")
	deps.pipeline.execErr = orchestrator.ErrDeadlineNotReached

	resp := performJSON(h, "POST", "/api/v1/hr/processes/p1/stages/resume/trigger", nil)
	assert.Equal(t, 400, resp.Code)
}

func TestTriggerStagePostponed(t *testing.T) {
	h, deps := newTestServer(t, "")
	deps.pipeline.report = &orchestrator.StageReport{
		ProcessID: "p1", Stage: "interview",
		Postponed: true, OAClearedCount: 3, ScoredCount: 2,
	}

	// 推迟不是错误：200和推迟详情
	resp := performJSON(h, "POST", "/api/v1/hr/processes/p1/stages/interview/trigger", nil)
	require.Equal(t, 200, resp.Code)

	var report orchestrator.StageReport
	require.NoError(t, json.Unmarshal(resp.Result().Body(), &report))
	assert.True(t, report.Postponed)
	assert.Equal(t, 3, report.OAClearedCount)
}

func TestRecordOAScore(t *testing.T) {
	h, deps := newTestServer(t, "")

	resp := performJSON(h, "PUT", "/api/v1/hr/processes/p1/candidates/c1/oa-score", map[string]int{"score": 72})
	require.Equal(t, 200, resp.Code)
	assert.Equal(t, 72, deps.pipeline.lastScore)

	deps.pipeline.scoreErr = orchestrator.ErrApplicationNotFound
	resp = performJSON(h, "PUT", "/api/v1/hr/processes/p1/candidates/ghost/oa-score", map[string]int{"score": 72})
	assert.Equal(t, 404, resp.Code)
}

func TestStorageUnavailableMapsTo503(t *testing.T) {
	h, deps := newTestServer(t, "")
	deps.pipeline.execErr = orchestrator.ErrStorageUnavailable

	resp := performJSON(h, "POST", "/api/v1/hr/processes/p1/stages/oa/trigger", nil)
	assert.Equal(t, 503, resp.Code)
}

func TestResumeURL(t *testing.T) {
	h, deps := newTestServer(t, "")
	deps.reader.apps = []models.Application{
		{ProcessID: "p1", CandidateID: "c1", Status: models.StatusApplied, ResumeObjectKey: "p1/c1.pdf"},
	}

	resp := ut.PerformRequest(h.Engine, "GET", "/api/v1/hr/processes/p1/candidates/c1/resume-url", nil)
	require.Equal(t, 200, resp.Code)
	assert.Contains(t, string(resp.Result().Body()), "http://minio.local/p1/c1.pdf")
}

func multipartResume(t *testing.T, fields map[string]string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if withFile {
		fw, err := w.CreateFormFile("file", "resume.pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 fake"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestSubmitResume(t *testing.T) {
	h, deps := newTestServer(t, "")
	body, contentType := multipartResume(t, map[string]string{
		"candidate_name":  "张三",
		"candidate_email": "zhangsan@example.com",
	}, true)

	resp := ut.PerformRequest(h.Engine, "POST", "/api/v1/processes/p1/applications",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: contentType})
	require.Equal(t, 200, resp.Code, string(resp.Result().Body()))

	require.Len(t, deps.submitter.submitted, 1)
	submitted := deps.submitter.submitted[0]
	assert.Equal(t, "p1", submitted.ProcessID)
	assert.NotEmpty(t, submitted.CandidateID)
	assert.Equal(t, "五年Go后端经验", submitted.ResumeText)
	assert.Equal(t, "p1/"+submitted.CandidateID+".pdf", submitted.ResumeObjectKey)
}

func TestSubmitResumeMissingFile(t *testing.T) {
	h, _ := newTestServer(t, "")
	body, contentType := multipartResume(t, map[string]string{
		"candidate_name":  "张三",
		"candidate_email": "zhangsan@example.com",
	}, false)

	resp := ut.PerformRequest(h.Engine, "POST", "/api/v1/processes/p1/applications",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: contentType})
	assert.Equal(t, 400, resp.Code)
}

func TestSubmitResumeUnparsablePDF(t *testing.T) {
	h, deps := newTestServer(t, "")
	deps.extractor.err = context.DeadlineExceeded
	body, contentType := multipartResume(t, map[string]string{
		"candidate_name":  "张三",
		"candidate_email": "zhangsan@example.com",
	}, true)

	resp := ut.PerformRequest(h.Engine, "POST", "/api/v1/processes/p1/applications",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: contentType})
	assert.Equal(t, 400, resp.Code)
}

func TestSubmitResumeAfterDeadline(t *testing.T) {
	h, deps := newTestServer(t, "")
	deps.submitter.err = orchestrator.ErrSubmissionClosed
	body, contentType := multipartResume(t, map[string]string{
		"candidate_name":  "张三",
		"candidate_email": "zhangsan@example.com",
	}, true)

	resp := ut.PerformRequest(h.Engine, "POST", "/api/v1/processes/p1/applications",
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: contentType})
	assert.Equal(t, 400, resp.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	h, _ := newTestServer(t, "secret-key")

	// 无Key被拒绝
	resp := ut.PerformRequest(h.Engine, "GET", "/api/v1/hr/processes", nil)
	assert.Equal(t, 401, resp.Code)

	// 错误Key被拒绝
	resp = ut.PerformRequest(h.Engine, "GET", "/api/v1/hr/processes", nil,
		ut.Header{Key: "X-API-Key", Value: "wrong"})
	assert.Equal(t, 401, resp.Code)

	// 正确Key放行
	resp = ut.PerformRequest(h.Engine, "GET", "/api/v1/hr/processes", nil,
		ut.Header{Key: "X-API-Key", Value: "secret-key"})
	assert.Equal(t, 200, resp.Code)

	// 公开接口不需要Key
	resp = ut.PerformRequest(h.Engine, "GET", "/api/v1/health", nil)
	assert.Equal(t, 200, resp.Code)
}
