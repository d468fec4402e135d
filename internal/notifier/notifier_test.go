package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hiring-agent-go/internal/config"
	"hiring-agent-go/internal/constants"
	"hiring-agent-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDedup 内存实现的去重存储
type fakeDedup struct {
	marked map[string]bool
	err    error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{marked: make(map[string]bool)}
}

func (f *fakeDedup) CheckAndMarkNotified(ctx context.Context, processID, stage, candidateID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	key := processID + ":" + stage + ":" + candidateID
	if f.marked[key] {
		return false, nil
	}
	f.marked[key] = true
	return true, nil
}

// fakeQueue 内存实现的邮件队列
type fakeQueue struct {
	emails []models.EmailOutbox
	err    error
}

func (f *fakeQueue) EnqueueEmails(ctx context.Context, emails []models.EmailOutbox) error {
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, emails...)
	return nil
}

func testProcess() *models.HiringProcess {
	return &models.HiringProcess{
		ProcessID: "p1",
		Title:     "后端工程师-2026校招",
	}
}

func testApp() models.Application {
	return models.Application{
		CandidateID:    "c1",
		CandidateName:  "张三",
		CandidateEmail: "zhangsan@example.com",
	}
}

func TestNotifyEnqueuesEmail(t *testing.T) {
	dedup := newFakeDedup()
	queue := &fakeQueue{}
	n := NewOutboxNotifier(dedup, queue, &config.NotifierConfig{OABaseURL: "http://hiring.example.com"})

	err := n.Notify(context.Background(), testProcess(), testApp(), constants.StageResume, models.StatusResumeShortlisted)
	require.NoError(t, err)

	require.Len(t, queue.emails, 1)
	email := queue.emails[0]
	assert.Equal(t, "p1", email.ProcessID)
	assert.Equal(t, constants.StageResume, email.Stage)
	assert.Equal(t, "zhangsan@example.com", email.Recipient)
	assert.Equal(t, models.OutboxStatusPending, email.Status)
	assert.Contains(t, email.Subject, "简历筛选通过")
	assert.Contains(t, email.Body, "张三")
	// 晋级通知包含笔试链接
	assert.Contains(t, email.Body, "http://hiring.example.com/oa/p1")
}

func TestNotifyIsIdempotent(t *testing.T) {
	dedup := newFakeDedup()
	queue := &fakeQueue{}
	n := NewOutboxNotifier(dedup, queue, &config.NotifierConfig{})

	for i := 0; i < 3; i++ {
		err := n.Notify(context.Background(), testProcess(), testApp(), constants.StageOA, models.StatusOACleared)
		require.NoError(t, err)
	}

	// 同一(流程,阶段,候选人)只入队一次
	assert.Len(t, queue.emails, 1)
}

func TestNotifyDedupErrorPropagates(t *testing.T) {
	dedup := newFakeDedup()
	dedup.err = errors.New("redis down")
	queue := &fakeQueue{}
	n := NewOutboxNotifier(dedup, queue, &config.NotifierConfig{})

	err := n.Notify(context.Background(), testProcess(), testApp(), constants.StageResume, models.StatusResumeRejected)
	assert.Error(t, err)
	assert.Empty(t, queue.emails)
}

func TestNotifyEnqueueErrorPropagates(t *testing.T) {
	dedup := newFakeDedup()
	queue := &fakeQueue{err: errors.New("db down")}
	n := NewOutboxNotifier(dedup, queue, &config.NotifierConfig{})

	err := n.Notify(context.Background(), testProcess(), testApp(), constants.StageResume, models.StatusResumeRejected)
	assert.Error(t, err)
}

func TestRenderNotificationAllStatuses(t *testing.T) {
	data := NotificationData{CandidateName: "李四", ProcessTitle: "测试岗位", OALink: "http://x/oa/p1"}

	for _, status := range []string{
		models.StatusResumeShortlisted,
		models.StatusResumeRejected,
		models.StatusOACleared,
		models.StatusOARejected,
		models.StatusFinalSelected,
		models.StatusFinalRejected,
	} {
		subject, body, err := RenderNotification(status, data)
		require.NoError(t, err, "status=%s", status)
		assert.True(t, strings.Contains(subject, "测试岗位"), "status=%s", status)
		assert.True(t, strings.Contains(body, "李四"), "status=%s", status)
	}
}

func TestRenderNotificationUnknownStatus(t *testing.T) {
	_, _, err := RenderNotification("Applied", NotificationData{})
	assert.Error(t, err)
}

func TestSMTPSenderBuildMessage(t *testing.T) {
	sender, err := NewSMTPSender(&config.NotifierConfig{
		SMTPHost:    "smtp.example.com",
		SMTPPort:    587,
		FromAddress: "no-reply@example.com",
		FromName:    "招聘团队",
	})
	require.NoError(t, err)

	msg := string(sender.buildMessage("to@example.com", "测试主题", "正文内容"))
	assert.Contains(t, msg, "To: to@example.com")
	assert.Contains(t, msg, "no-reply@example.com")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, msg, "正文内容")
}

func TestNewSMTPSenderValidation(t *testing.T) {
	_, err := NewSMTPSender(nil)
	assert.Error(t, err)

	_, err = NewSMTPSender(&config.NotifierConfig{FromAddress: "a@b.c"})
	assert.Error(t, err, "缺少SMTP主机应报错")

	_, err = NewSMTPSender(&config.NotifierConfig{SMTPHost: "h"})
	assert.Error(t, err, "缺少发件人应报错")
}
