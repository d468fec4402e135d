package notifier

import (
	"fmt"

	"hiring-agent-go/internal/storage/models"
)

// NotificationData 渲染邮件模板所需的数据
type NotificationData struct {
	CandidateName string
	ProcessTitle  string
	OALink        string // 在线笔试链接，仅简历晋级通知使用
}

// emailTemplate 一套状态对应的邮件主题和正文模板
type emailTemplate struct {
	subject string
	body    string
}

// statusTemplates 每个转移后状态对应一套通知模板
var statusTemplates = map[string]emailTemplate{
	models.StatusResumeShortlisted: {
		subject: "【%s】简历筛选通过通知",
		body: `%s，您好！

恭喜您通过了「%s」的简历筛选。

请在笔试截止时间前完成在线笔试：
%s

祝好！
招聘团队`,
	},
	models.StatusResumeRejected: {
		subject: "【%s】简历筛选结果通知",
		body: `%s，您好！

感谢您投递「%s」。很遗憾，经过评估，您的简历未能进入下一环节。

感谢您的关注，祝您求职顺利！
招聘团队`,
	},
	models.StatusOACleared: {
		subject: "【%s】在线笔试通过通知",
		body: `%s，您好！

恭喜您通过了「%s」的在线笔试，您已进入面试环节。

后续面试安排将另行通知，请保持联系方式畅通。

祝好！
招聘团队`,
	},
	models.StatusOARejected: {
		subject: "【%s】在线笔试结果通知",
		body: `%s，您好！

感谢您参加「%s」的在线笔试。很遗憾，您的笔试成绩未达到晋级要求。

感谢您的参与，祝您求职顺利！
招聘团队`,
	},
	models.StatusFinalSelected: {
		subject: "【%s】录用通知",
		body: `%s，您好！

恭喜您通过了「%s」的全部选拔环节，我们决定向您发出录用意向！

HR同事将尽快与您联系，沟通后续入职事宜。

祝好！
招聘团队`,
	},
	models.StatusFinalRejected: {
		subject: "【%s】终选结果通知",
		body: `%s，您好！

感谢您参加「%s」的完整选拔流程。很遗憾，综合评估后我们暂时无法向您发出录用。

期待未来有机会再次合作，祝您求职顺利！
招聘团队`,
	},
}

// RenderNotification 按转移后状态渲染邮件主题和正文
func RenderNotification(newStatus string, data NotificationData) (subject, body string, err error) {
	tmpl, ok := statusTemplates[newStatus]
	if !ok {
		return "", "", fmt.Errorf("状态 %q 没有对应的通知模板", newStatus)
	}

	subject = fmt.Sprintf(tmpl.subject, data.ProcessTitle)
	if newStatus == models.StatusResumeShortlisted {
		body = fmt.Sprintf(tmpl.body, data.CandidateName, data.ProcessTitle, data.OALink)
	} else {
		body = fmt.Sprintf(tmpl.body, data.CandidateName, data.ProcessTitle)
	}
	return subject, body, nil
}
