package handler

import (
	"errors"

	"hiring-agent-go/internal/orchestrator"
	"hiring-agent-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// writeError 将编排器错误映射为HTTP状态码
// 不存在->404，前置条件或参数问题->400，存储不可用->503，其余->500
func writeError(ctx *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrProcessNotFound),
		errors.Is(err, orchestrator.ErrApplicationNotFound),
		errors.Is(err, storage.ErrRecordNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidDeadlines),
		errors.Is(err, orchestrator.ErrInvalidScore),
		errors.Is(err, orchestrator.ErrUnknownStage),
		errors.Is(err, orchestrator.ErrDeadlineNotReached),
		errors.Is(err, orchestrator.ErrSubmissionClosed),
		errors.Is(err, orchestrator.ErrStageNotApplicable),
		errors.Is(err, orchestrator.ErrProcessNotActive):
		status = consts.StatusBadRequest
	case errors.Is(err, orchestrator.ErrStorageUnavailable):
		status = consts.StatusServiceUnavailable
	}
	ctx.JSON(status, utils.H{"error": err.Error()})
}
