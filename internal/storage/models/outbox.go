package models

import "time"

// 邮件发件箱状态常量
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// EmailOutbox represents an email to be dispatched asynchronously.
// 与业务状态写入同一数据库，保证"状态转移+通知"的原子落盘，
// 由中继轮询后发布到RabbitMQ，实现至少一次投递。
type EmailOutbox struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement"`
	ProcessID    string     `gorm:"type:char(36);not null;index"`
	Stage        string     `gorm:"type:varchar(20);not null"`
	CandidateID  string     `gorm:"type:char(36);not null"`
	Recipient    string     `gorm:"type:varchar(255);not null"`
	Subject      string     `gorm:"type:varchar(512);not null"`
	Body         string     `gorm:"type:text;not null"`
	Status       string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_email_outbox_status_created_at"`
	RetryCount   int        `gorm:"default:0"`
	CreatedAt    time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_email_outbox_status_created_at,sort:asc"`
	ProcessedAt  *time.Time `gorm:"type:datetime(6);null"`
	ErrorMessage string     `gorm:"type:text"`
}

// TableName specifies the table name for the EmailOutbox model.
func (EmailOutbox) TableName() string {
	return "email_outbox"
}
