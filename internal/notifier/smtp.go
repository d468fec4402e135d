package notifier

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"hiring-agent-go/internal/config"
)

// Sender 实际投递单封邮件的发送器
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// SMTPSender 通过SMTP协议发送邮件
type SMTPSender struct {
	host        string
	port        int
	username    string
	password    string
	fromAddress string
	fromName    string
}

// NewSMTPSender 创建SMTP发送器
func NewSMTPSender(cfg *config.NotifierConfig) (*SMTPSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("通知配置不能为空")
	}
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP主机不能为空")
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("发件人地址不能为空")
	}

	port := cfg.SMTPPort
	if port <= 0 {
		port = 587
	}

	return &SMTPSender{
		host:        cfg.SMTPHost,
		port:        port,
		username:    cfg.SMTPUser,
		password:    cfg.SMTPPass,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
	}, nil
}

var _ Sender = (*SMTPSender)(nil)

// Send 发送单封邮件
// ctx已取消时直接返回，避免在批量发送中继续无谓的网络调用
func (s *SMTPSender) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if recipient == "" {
		return fmt.Errorf("收件人地址不能为空")
	}

	msg := s.buildMessage(recipient, subject, body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := smtp.SendMail(addr, auth, s.fromAddress, []string{recipient}, msg); err != nil {
		return fmt.Errorf("SMTP发送失败 (to=%s): %w", recipient, err)
	}
	return nil
}

// buildMessage 构造RFC 5322格式的邮件，主题使用Q编码以支持中文
func (s *SMTPSender) buildMessage(recipient, subject, body string) []byte {
	from := s.fromAddress
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.fromName), s.fromAddress)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
