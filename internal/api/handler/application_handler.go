package handler

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"hiring-agent-go/internal/logger"
	"hiring-agent-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
)

// ApplicationSubmitter 编排器提供的投递操作
type ApplicationSubmitter interface {
	SubmitApplication(ctx context.Context, app *models.Application) error
}

// ResumeTextExtractor 从PDF字节提取简历文本
type ResumeTextExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error)
}

// ResumeFileStore 简历原始文件的对象存储
type ResumeFileStore interface {
	UploadResumeFile(ctx context.Context, processID, candidateID, fileExt string, reader io.Reader, fileSize int64) (string, error)
}

// ApplicationHandler 候选人侧的投递接口
type ApplicationHandler struct {
	submitter ApplicationSubmitter
	extractor ResumeTextExtractor
	objects   ResumeFileStore
}

// NewApplicationHandler 创建投递处理器
func NewApplicationHandler(submitter ApplicationSubmitter, extractor ResumeTextExtractor, objects ResumeFileStore) *ApplicationHandler {
	return &ApplicationHandler{
		submitter: submitter,
		extractor: extractor,
		objects:   objects,
	}
}

// SubmitResponse 投递响应
type SubmitResponse struct {
	ProcessID   string `json:"process_id"`
	CandidateID string `json:"candidate_id"`
	Status      string `json:"status"`
}

// SubmitResume POST /api/v1/processes/:process_id/applications
// multipart表单：file(PDF简历)、candidate_name、candidate_email、可选candidate_id
// 重复投递覆盖简历内容但不回退已有状态
func (h *ApplicationHandler) SubmitResume(c context.Context, ctx *app.RequestContext) {
	processID := ctx.Param("process_id")
	candidateName := ctx.PostForm("candidate_name")
	candidateEmail := ctx.PostForm("candidate_email")
	candidateID := ctx.PostForm("candidate_id")
	if candidateName == "" || candidateEmail == "" {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "candidate_name和candidate_email不能为空"})
		return
	}
	if !strings.Contains(candidateEmail, "@") {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "candidate_email格式非法"})
		return
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "简历文件未找到"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开上传文件失败"})
		return
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "读取上传文件失败"})
		return
	}

	resumeText, err := h.extractor.ExtractTextFromBytes(c, fileBytes, fileHeader.Filename)
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "简历PDF无法解析，请检查文件"})
		return
	}

	if candidateID == "" {
		candidateID = uuid.Must(uuid.NewV7()).String()
	}
	ext := filepath.Ext(fileHeader.Filename)
	if ext == "" {
		ext = ".pdf"
	}

	objectKey, err := h.objects.UploadResumeFile(c, processID, candidateID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		logger.Error().Err(err).
			Str("process_id", processID).
			Str("candidate_id", candidateID).
			Msg("上传简历到对象存储失败")
		ctx.JSON(consts.StatusServiceUnavailable, utils.H{"error": "简历文件存储失败，请稍后重试"})
		return
	}

	application := &models.Application{
		ProcessID:       processID,
		CandidateID:     candidateID,
		CandidateName:   candidateName,
		CandidateEmail:  candidateEmail,
		ResumeText:      resumeText,
		ResumeObjectKey: objectKey,
	}
	if err := h.submitter.SubmitApplication(c, application); err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(consts.StatusOK, SubmitResponse{
		ProcessID:   processID,
		CandidateID: candidateID,
		Status:      application.Status,
	})
}
