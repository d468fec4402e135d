package outbox // 邮件发件箱模式（Outbox Pattern）的中继实现

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/storage"
	"hiring-agent-go/internal/storage/models"
	"hiring-agent-go/internal/tracing"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollingInterval = 5 * time.Second // 默认轮询 email_outbox 表的间隔
	defaultBatchSize       = 10              // 每次轮询处理的消息批量大小
	maxRetryCount          = 5               // 消息发布失败的最大重试次数
)

// MessageRelay 轮询 email_outbox 表并将待发送邮件发布到消息代理。
type MessageRelay struct {
	db              *gorm.DB
	publisher       *storage.RabbitMQ
	cfg             *config.RabbitMQConfig
	logger          *log.Logger
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	tracer          trace.Tracer
}

// NewMessageRelay 创建一个新的 MessageRelay 实例。
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ, cfg *config.RabbitMQConfig, logger *log.Logger) *MessageRelay {
	return &MessageRelay{
		db:              db,
		publisher:       publisher,
		cfg:             cfg,
		logger:          logger,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("email-outbox-relay"),
	}
}

// Start 开始消息中继的轮询过程。
func (r *MessageRelay) Start() {
	r.logger.Println("MessageRelay starting...")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.logger.Println("MessageRelay stopped.")
				return
			case <-ticker.C:
				if err := r.processPendingEmails(context.Background()); err != nil {
					r.logger.Printf("Error processing pending emails: %v", err)
				}
			}
		}
	}()
}

// Stop 优雅地停止消息中继服务。
func (r *MessageRelay) Stop() {
	r.logger.Println("MessageRelay stopping...")
	close(r.done)
}

// processPendingEmails 获取并处理一批待发送邮件。
func (r *MessageRelay) processPendingEmails(ctx context.Context) error {
	var emails []models.EmailOutbox

	// 获取和更新在同一事务内完成，保证原子性。
	// 空轮询不创建追踪Span。
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	// `FOR UPDATE SKIP LOCKED` 跳过已被其他实例锁定的行，支持水平扩展。
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&emails).Error

	if err != nil {
		r.logger.Printf("Failed to fetch pending outbox emails: %v", err)
		return err
	}

	if len(emails) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(emails)),
		),
	)
	defer span.End()

	r.logger.Printf("Fetched %d pending emails to publish.", len(emails))

	for _, email := range emails {
		payload, err := json.Marshal(storage.EmailMessage{
			MessageID:   uuid.NewString(),
			OutboxID:    email.ID,
			ProcessID:   email.ProcessID,
			Stage:       email.Stage,
			CandidateID: email.CandidateID,
			Recipient:   email.Recipient,
			Subject:     email.Subject,
			Body:        email.Body,
			EnqueuedAt:  email.CreatedAt,
		})
		if err != nil {
			// 序列化失败无法通过重试恢复，直接标记FAILED
			email.Status = models.OutboxStatusFailed
			email.ErrorMessage = err.Error()
			if err := tx.Save(&email).Error; err != nil {
				return err
			}
			continue
		}

		err = r.publisher.PublishMessage(
			ctx,
			r.cfg.EmailEventsExchange,
			r.cfg.EmailRoutingKey,
			payload,
			true, // 持久化消息
		)

		if err != nil {
			r.logger.Printf("Failed to publish email ID %d (ProcessID: %s): %v. Retries: %d", email.ID, email.ProcessID, err, email.RetryCount+1)
			tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeRabbitMQ,
				attribute.Int64("outbox.id", int64(email.ID)),
				attribute.String("messaging.recipient", tracing.MaskPII(email.Recipient)),
			)
			email.RetryCount++
			email.ErrorMessage = err.Error()
			if email.RetryCount >= maxRetryCount {
				email.Status = models.OutboxStatusFailed
			}
		} else {
			email.Status = models.OutboxStatusSent
			now := time.Now()
			email.ProcessedAt = &now
			email.ErrorMessage = ""
		}

		// 更新失败则整个事务回滚，这批邮件将在下一次轮询中被重新拾取
		if err := tx.Save(&email).Error; err != nil {
			r.logger.Printf("Failed to update outbox email ID %d: %v", email.ID, err)
			return err
		}
	}

	return tx.Commit().Error
}
