package router

import (
	"context"

	"hiring-agent-go/internal/api/handler"
	"hiring-agent-go/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// RegisterRoutes 注册 API 路由
// 候选人投递是公开接口；/hr 分组在配置了API Key时启用鉴权
func RegisterRoutes(h *server.Hertz, cfg *config.ServerConfig,
	processHandler *handler.ProcessHandler, applicationHandler *handler.ApplicationHandler) {

	api := h.Group("/api/v1")

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	// 候选人投递简历
	api.POST("/processes/:process_id/applications", applicationHandler.SubmitResume)

	hr := api.Group("/hr")
	if cfg.APIKey != "" {
		hr.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:X-API-Key", ""),
			keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
				return key == cfg.APIKey, nil
			}),
		))
	}

	hr.POST("/processes", processHandler.CreateProcess)
	hr.GET("/processes", processHandler.ListProcesses)
	hr.GET("/processes/:process_id", processHandler.GetProcess)
	hr.DELETE("/processes/:process_id", processHandler.DeleteProcess)
	hr.POST("/processes/:process_id/cancel", processHandler.CancelProcess)
	hr.POST("/processes/:process_id/stages/:stage/trigger", processHandler.TriggerStage)
	hr.GET("/processes/:process_id/applications", processHandler.ListApplications)
	hr.PUT("/processes/:process_id/candidates/:candidate_id/oa-score", processHandler.RecordOAScore)
	hr.PUT("/processes/:process_id/candidates/:candidate_id/interview-scores", processHandler.RecordInterviewScores)
	hr.GET("/processes/:process_id/candidates/:candidate_id/resume-url", processHandler.GetResumeURL)
	hr.GET("/jobs", processHandler.ListScheduledJobs)
}
