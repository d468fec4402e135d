package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hiring-agent-go/internal/api/handler"
	"hiring-agent-go/internal/api/router"
	"hiring-agent-go/internal/config"
	appCoreLogger "hiring-agent-go/internal/logger"
	"hiring-agent-go/internal/notifier"
	"hiring-agent-go/internal/orchestrator"
	"hiring-agent-go/internal/outbox"
	"hiring-agent-go/internal/parser"
	"hiring-agent-go/internal/scheduler"
	"hiring-agent-go/internal/scorer"
	"hiring-agent-go/internal/storage"
	"hiring-agent-go/internal/storage/models"
	"hiring-agent-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/pflag"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			glog.Fatalf("初始化链路追踪失败: %v", err)
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdownTracing(shutdownCtx); err != nil {
				glog.Errorf("关闭链路追踪失败: %v", err)
			}
		}()
		glog.Info("链路追踪初始化成功")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	clock, err := orchestrator.NewSystemClock(cfg.Timezone)
	if err != nil {
		glog.Fatalf("初始化时钟失败: %v", err)
	}

	resumeScorer, err := scorer.NewResumeScorer(&cfg.Scorer)
	if err != nil {
		glog.Fatalf("初始化简历评分器失败: %v", err)
	}
	glog.Info("简历评分器初始化成功")

	outboxNotifier := notifier.NewOutboxNotifier(storageManager.Redis, storageManager.MySQL, &cfg.Notifier)

	// 调度器与编排器相互引用：到期回调在编排器就绪后注入
	var fire scheduler.FireFunc
	deadlineScheduler := scheduler.New(storageManager.MySQL, func(c context.Context, job models.ScheduledJob) {
		fire(c, job)
	}, &cfg.Scheduler)

	orch := orchestrator.New(
		storageManager.MySQL,
		storageManager.MySQL,
		deadlineScheduler,
		resumeScorer,
		outboxNotifier,
		clock,
		&cfg.Pipeline,
	).WithStageLocker(storageManager.Redis).
		WithNotifyMarkStore(storageManager.Redis).
		WithResumeObjectStore(storageManager.MinIO)
	fire = orch.FireFunc()
	glog.Info("流水线编排器初始化成功")

	relayLogger := log.New(appCoreLogger.Logger, "[MessageRelay] ", log.LstdFlags|log.Lshortfile)
	messageRelay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, &cfg.RabbitMQ, relayLogger)
	messageRelay.Start()
	glog.Info("邮件发件箱中继已启动")

	var emailConsumer *notifier.EmailConsumer
	smtpSender, err := notifier.NewSMTPSender(&cfg.Notifier)
	if err != nil {
		glog.Warnf("SMTP未配置，邮件消费者未启动: %v", err)
	} else {
		emailConsumer = notifier.NewEmailConsumer(storageManager.RabbitMQ, smtpSender, &cfg.RabbitMQ)
		if err := emailConsumer.Start(); err != nil {
			glog.Fatalf("启动邮件消费者失败: %v", err)
		}
		glog.Info("邮件消费者已启动")
	}

	// 先补触发停机期间错过的截止任务，再进入轮询
	deadlineScheduler.Poll(ctx)
	deadlineScheduler.Start()
	glog.Info("截止时间调度器已启动")

	pdfExtractor, err := parser.NewResumePDFExtractor(ctx)
	if err != nil {
		glog.Fatalf("创建PDF提取器失败: %v", err)
	}
	glog.Info("PDF提取器初始化成功")

	processHandler := handler.NewProcessHandler(orch, storageManager.MySQL, deadlineScheduler, storageManager.MinIO)
	applicationHandler := handler.NewApplicationHandler(orch, pdfExtractor, storageManager.MinIO)

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		ctx.Next(c)
		glog.CtxInfof(c, "%s %s -> %d", string(ctx.Method()), string(ctx.Path()), ctx.Response.StatusCode())
	})
	router.RegisterRoutes(h, &cfg.Server, processHandler, applicationHandler)
	glog.Info("HTTP路由注册成功")

	go func() {
		glog.Infof("HTTP服务器启动，监听地址: %s", cfg.Server.Address)
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	deadlineScheduler.Stop()
	messageRelay.Stop()
	if emailConsumer != nil {
		emailConsumer.Stop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
