package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/logger"
	"hiring-agent-go/internal/storage"
	"hiring-agent-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var consumerTracer = otel.Tracer("hiring-agent-go/notifier/email-consumer")

// EmailConsumer 从RabbitMQ消费邮件消息并通过SMTP实际发送
// 发送失败时nack重新入队，配合发件箱中继实现至少一次投递
type EmailConsumer struct {
	mq     *storage.RabbitMQ
	sender Sender
	cfg    *config.RabbitMQConfig
	stopCh chan struct{}
}

// NewEmailConsumer 创建邮件消费者
func NewEmailConsumer(mq *storage.RabbitMQ, sender Sender, cfg *config.RabbitMQConfig) *EmailConsumer {
	return &EmailConsumer{
		mq:     mq,
		sender: sender,
		cfg:    cfg,
	}
}

// Start 声明拓扑并启动消费
func (c *EmailConsumer) Start() error {
	if err := c.mq.EnsureExchange(c.cfg.EmailEventsExchange, "direct", true); err != nil {
		return fmt.Errorf("声明邮件交换机失败: %w", err)
	}
	if err := c.mq.EnsureQueue(c.cfg.EmailQueue, true); err != nil {
		return fmt.Errorf("声明邮件队列失败: %w", err)
	}
	if err := c.mq.BindQueue(c.cfg.EmailQueue, c.cfg.EmailEventsExchange, c.cfg.EmailRoutingKey); err != nil {
		return fmt.Errorf("绑定邮件队列失败: %w", err)
	}

	stopCh, err := c.mq.StartConsumer(c.cfg.EmailQueue, c.cfg.PrefetchCount, c.handleMessage)
	if err != nil {
		return fmt.Errorf("启动邮件消费者失败: %w", err)
	}
	c.stopCh = stopCh
	return nil
}

// Stop 停止消费
func (c *EmailConsumer) Stop() {
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

// handleMessage 处理单条邮件消息，返回true表示ack，false表示nack重新入队
func (c *EmailConsumer) handleMessage(body []byte) bool {
	var msg storage.EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// 消息体损坏，重新入队只会无限失败，直接ack丢弃
		logger.Error().
			Err(err).
			Str("body", string(body)).
			Msg("邮件消息反序列化失败，丢弃")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 邮箱等个人信息在追踪属性中掩码存储
	ctx, span := consumerTracer.Start(ctx, "email.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.message_id", msg.MessageID),
		attribute.String("process.id", msg.ProcessID),
		attribute.String("email.recipient", tracing.SafeAttributeValue("email.recipient", msg.Recipient, tracing.DefaultMaxLength)),
		attribute.String("email.subject", tracing.SafeEmailBody(msg.Subject)),
	)

	if err := c.sender.Send(ctx, msg.Recipient, msg.Subject, msg.Body); err != nil {
		tracing.RecordRabbitMQNack(span, msg.MessageID, err.Error())
		logger.Error().
			Err(err).
			Str("message_id", msg.MessageID).
			Str("process_id", msg.ProcessID).
			Str("stage", msg.Stage).
			Msg("邮件发送失败，消息将重新入队")
		return false
	}

	logger.Info().
		Str("message_id", msg.MessageID).
		Str("process_id", msg.ProcessID).
		Str("stage", msg.Stage).
		Str("candidate_id", msg.CandidateID).
		Msg("邮件发送成功")
	return true
}
