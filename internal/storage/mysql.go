package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/storage/models"
	"hiring-agent-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("hiring-agent-go/storage/mysql")

// ErrRecordNotFound 查询不到记录时返回，供上层转换为业务NotFound错误
var ErrRecordNotFound = gorm.ErrRecordNotFound

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		if sql := db.Statement.SQL.String(); sql != "" {
			span.SetAttributes(attribute.String("db.statement", tracing.SafeSQL(sql)))
		}

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.SetAttributes(attribute.String("error.message", db.Error.Error()))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	tracingPlugin := NewGormTracingPlugin(cfg.Database)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 迁移时关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.HiringProcess{},
		&models.Application{},
		&models.ScheduledJob{},
		&models.EmailOutbox{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// ---------- 招聘流程 ----------

// CreateHiringProcess 创建招聘流程
func (m *MySQL) CreateHiringProcess(ctx context.Context, process *models.HiringProcess) error {
	return m.db.WithContext(ctx).Create(process).Error
}

// GetHiringProcess 通过ID获取招聘流程
func (m *MySQL) GetHiringProcess(ctx context.Context, processID string) (*models.HiringProcess, error) {
	var process models.HiringProcess
	if err := m.db.WithContext(ctx).Where("process_id = ?", processID).First(&process).Error; err != nil {
		return nil, err
	}
	return &process, nil
}

// ListHiringProcesses 列出指定状态的招聘流程
func (m *MySQL) ListHiringProcesses(ctx context.Context, status string) ([]models.HiringProcess, error) {
	var processes []models.HiringProcess
	query := m.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("created_at ASC").Find(&processes).Error; err != nil {
		return nil, err
	}
	return processes, nil
}

// UpdateProcessStatus 更新招聘流程状态
func (m *MySQL) UpdateProcessStatus(ctx context.Context, processID string, status string) error {
	result := m.db.WithContext(ctx).Model(&models.HiringProcess{}).
		Where("process_id = ?", processID).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteHiringProcess 删除招聘流程及其关联数据(投递记录、待触发任务)
func (m *MySQL) DeleteHiringProcess(ctx context.Context, processID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("process_id = ?", processID).Delete(&models.Application{}).Error; err != nil {
			return err
		}
		if err := tx.Where("process_id = ?", processID).Delete(&models.ScheduledJob{}).Error; err != nil {
			return err
		}
		result := tx.Where("process_id = ?", processID).Delete(&models.HiringProcess{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ---------- 候选人投递 ----------

// UpsertApplication 创建或更新投递记录
// 以(process_id, candidate_id)为幂等键：重复提交只刷新简历相关字段，不重置状态
func (m *MySQL) UpsertApplication(ctx context.Context, app *models.Application) error {
	return m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "process_id"}, {Name: "candidate_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"candidate_name", "candidate_email", "resume_text", "resume_object_key",
			}),
		}).Create(app).Error
}

// GetApplication 获取单个投递记录
func (m *MySQL) GetApplication(ctx context.Context, processID, candidateID string) (*models.Application, error) {
	var app models.Application
	err := m.db.WithContext(ctx).
		Where("process_id = ? AND candidate_id = ?", processID, candidateID).
		First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// ListApplicationsByStatus 按状态过滤列出流程下的投递记录
// statuses为空时返回流程下全部投递
func (m *MySQL) ListApplicationsByStatus(ctx context.Context, processID string, statuses ...string) ([]models.Application, error) {
	var apps []models.Application
	query := m.db.WithContext(ctx).Where("process_id = ?", processID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Order("application_id ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// CountApplicationsByStatus 统计流程下处于指定状态的投递数
func (m *MySQL) CountApplicationsByStatus(ctx context.Context, processID string, status string) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("process_id = ? AND status = ?", processID, status).
		Count(&count).Error
	return count, err
}

// CountOAClearedWithHRScore 统计已通过笔试且HR面试分已录入的投递数
// 终选阶段的硬前置条件: 该计数必须等于OA_cleared总数才允许执行
func (m *MySQL) CountOAClearedWithHRScore(ctx context.Context, processID string) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("process_id = ? AND status = ? AND hr_score IS NOT NULL", processID, models.StatusOACleared).
		Count(&count).Error
	return count, err
}

// ApplyTransition 在状态匹配预期时应用一次状态转移
// 返回实际生效的行数：0表示该投递已被并发执行转移过(自然幂等，不是错误)
func (m *MySQL) ApplyTransition(ctx context.Context, applicationID uint64, expectedStatus string, updates map[string]interface{}) (int64, error) {
	result := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ? AND status = ?", applicationID, expectedStatus).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// SetOAScore 录入在线笔试分数，仅允许对简历筛选通过的候选人录入
func (m *MySQL) SetOAScore(ctx context.Context, processID, candidateID string, score int) (int64, error) {
	result := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("process_id = ? AND candidate_id = ? AND status = ?",
			processID, candidateID, models.StatusResumeShortlisted).
		Update("oa_score", score)
	return result.RowsAffected, result.Error
}

// SetInterviewScores 录入技术面和HR面分数，仅允许对笔试通过的候选人录入
func (m *MySQL) SetInterviewScores(ctx context.Context, processID, candidateID string, techScore, hrScore int) (int64, error) {
	result := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("process_id = ? AND candidate_id = ? AND status = ?",
			processID, candidateID, models.StatusOACleared).
		Updates(map[string]interface{}{
			"tech_score": techScore,
			"hr_score":   hrScore,
		})
	return result.RowsAffected, result.Error
}

// ---------- 截止时间任务 ----------

// UpsertScheduledJob 注册或刷新一个待触发任务
// 主键冲突时刷新触发时间，保证每个(流程,阶段)至多一条记录
func (m *MySQL) UpsertScheduledJob(ctx context.Context, job *models.ScheduledJob) error {
	return m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"fire_at"}),
		}).Create(job).Error
}

// DeleteScheduledJob 删除指定任务，返回是否实际删除
func (m *MySQL) DeleteScheduledJob(ctx context.Context, jobID string) (bool, error) {
	result := m.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.ScheduledJob{})
	return result.RowsAffected > 0, result.Error
}

// DeleteScheduledJobsByProcess 删除流程下所有待触发任务
func (m *MySQL) DeleteScheduledJobsByProcess(ctx context.Context, processID string) (int64, error) {
	result := m.db.WithContext(ctx).Where("process_id = ?", processID).Delete(&models.ScheduledJob{})
	return result.RowsAffected, result.Error
}

// ListScheduledJobs 列出所有待触发任务，按触发时间升序
func (m *MySQL) ListScheduledJobs(ctx context.Context) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := m.db.WithContext(ctx).Order("fire_at ASC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// TakeDueScheduledJobs 原子地取走所有已到期的任务
// 使用 FOR UPDATE SKIP LOCKED 锁定后删除，保证多实例下每个任务只被一个调度器取到
func (m *MySQL) TakeDueScheduledJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.TakeDueScheduledJobs",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("db.sql.table", "scheduled_jobs"),
	)

	var jobs []models.ScheduledJob
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("fire_at <= ?", now).
			Order("fire_at ASC").
			Limit(limit).
			Find(&jobs).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		jobIDs := make([]string, len(jobs))
		for i, j := range jobs {
			jobIDs[i] = j.JobID
		}
		return tx.Where("job_id IN ?", jobIDs).Delete(&models.ScheduledJob{}).Error
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("jobs.taken", len(jobs)))
	span.SetStatus(codes.Ok, "")
	return jobs, nil
}

// ---------- 邮件发件箱 ----------

// EnqueueEmails 批量写入待发送邮件
// 在调用方事务内执行时传入tx，否则使用默认连接
func (m *MySQL) EnqueueEmails(ctx context.Context, emails []models.EmailOutbox) error {
	if len(emails) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Create(&emails).Error
}

// ScheduledJobID 构造任务主键，格式 {stage}_{processID}
func ScheduledJobID(stage, processID string) string {
	return fmt.Sprintf("%s_%s", stage, processID)
}

