package notifier

import (
	"context"
	"fmt"

	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/logger"
	"hiring-agent-go/internal/storage/models"
)

// DedupStore 通知去重标记存储
// 首次标记返回true，重复标记返回false
type DedupStore interface {
	CheckAndMarkNotified(ctx context.Context, processID, stage, candidateID string) (bool, error)
}

// EmailQueue 待发送邮件的持久化队列
type EmailQueue interface {
	EnqueueEmails(ctx context.Context, emails []models.EmailOutbox) error
}

// Notifier 阶段转移通知适配器
type Notifier interface {
	// Notify 为一次状态转移发出通知，幂等：同一(流程,阶段,候选人)只会实际入队一次
	Notify(ctx context.Context, process *models.HiringProcess, app models.Application, stage, newStatus string) error
}

// OutboxNotifier 基于发件箱模式的通知适配器
// Redis SETNX去重 + email_outbox落盘，由中继异步发布到RabbitMQ，
// 保证至少一次投递且同一事件不会重复入队
type OutboxNotifier struct {
	dedup     DedupStore
	queue     EmailQueue
	oaBaseURL string
}

// NewOutboxNotifier 创建发件箱通知适配器
func NewOutboxNotifier(dedup DedupStore, queue EmailQueue, cfg *config.NotifierConfig) *OutboxNotifier {
	oaBaseURL := ""
	if cfg != nil {
		oaBaseURL = cfg.OABaseURL
	}
	return &OutboxNotifier{
		dedup:     dedup,
		queue:     queue,
		oaBaseURL: oaBaseURL,
	}
}

var _ Notifier = (*OutboxNotifier)(nil)

// Notify 实现 Notifier 接口
func (n *OutboxNotifier) Notify(ctx context.Context, process *models.HiringProcess, app models.Application, stage, newStatus string) error {
	first, err := n.dedup.CheckAndMarkNotified(ctx, process.ProcessID, stage, app.CandidateID)
	if err != nil {
		return fmt.Errorf("检查通知去重标记失败: %w", err)
	}
	if !first {
		logger.Debug().
			Str("process_id", process.ProcessID).
			Str("stage", stage).
			Str("candidate_id", app.CandidateID).
			Msg("通知已发送过，跳过")
		return nil
	}

	subject, body, err := RenderNotification(newStatus, NotificationData{
		CandidateName: app.CandidateName,
		ProcessTitle:  process.Title,
		OALink:        n.oaLink(process.ProcessID),
	})
	if err != nil {
		return err
	}

	email := models.EmailOutbox{
		ProcessID:   process.ProcessID,
		Stage:       stage,
		CandidateID: app.CandidateID,
		Recipient:   app.CandidateEmail,
		Subject:     subject,
		Body:        body,
		Status:      models.OutboxStatusPending,
	}

	if err := n.queue.EnqueueEmails(ctx, []models.EmailOutbox{email}); err != nil {
		return fmt.Errorf("写入邮件发件箱失败: %w", err)
	}

	return nil
}

// oaLink 拼接候选人的在线笔试链接
func (n *OutboxNotifier) oaLink(processID string) string {
	if n.oaBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/oa/%s", n.oaBaseURL, processID)
}
