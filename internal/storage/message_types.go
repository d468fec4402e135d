package storage

import "time"

// EmailMessage 经由RabbitMQ投递的邮件发送消息
// 由发件箱中继发布，邮件消费者接收后通过SMTP实际发送
type EmailMessage struct {
	MessageID   string    `json:"message_id"`   // 消息唯一ID，用于追踪
	OutboxID    uint64    `json:"outbox_id"`    // 对应email_outbox表的主键
	ProcessID   string    `json:"process_id"`   // 招聘流程ID
	Stage       string    `json:"stage"`        // 触发通知的阶段
	CandidateID string    `json:"candidate_id"` // 候选人ID
	Recipient   string    `json:"recipient"`    // 收件人邮箱
	Subject     string    `json:"subject"`      // 邮件主题
	Body        string    `json:"body"`         // 邮件正文
	EnqueuedAt  time.Time `json:"enqueued_at"`  // 入队时间
}
