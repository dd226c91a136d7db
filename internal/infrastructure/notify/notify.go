// Package notify 交易通知，由 outbox 异步投递，发送失败不影响已提交的交易
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"banksystem/internal/config"
	"banksystem/internal/model"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Notification 一条账户变动通知，作为 outbox payload 以 JSON 存储
type Notification struct {
	Email         string          `json:"email"`
	DisplayName   string          `json:"display_name"`
	AccountNumber string          `json:"account_number"`
	Direction     model.Direction `json:"direction"`
	Amount        int64           `json:"amount"`
	Description   string          `json:"description"`
	Balance       int64           `json:"balance"`
	Reference     string          `json:"reference"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Notifier 通知发送方
type Notifier interface {
	NotifyTransaction(ctx context.Context, n Notification) error
}

// EmailNotifier 通过 SMTP 发送交易通知邮件
type EmailNotifier struct {
	cfg  *config.SMTPConfig
	send func(e *email.Email) error
}

func NewEmailNotifier(cfg *config.SMTPConfig) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg}
	n.send = n.sendSMTP
	return n
}

func (n *EmailNotifier) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	return e.Send(addr, auth)
}

func (n *EmailNotifier) NotifyTransaction(ctx context.Context, notification Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if notification.Email == "" {
		return fmt.Errorf("账户 %s 未登记邮箱", notification.AccountNumber)
	}

	e := BuildEmail(n.cfg.From, notification)
	if err := n.send(e); err != nil {
		return fmt.Errorf("发送交易通知邮件失败: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"to":        notification.Email,
		"reference": notification.Reference,
	}).Info("交易通知邮件已发送")
	return nil
}

// BuildEmail 组装通知邮件
func BuildEmail(from string, n Notification) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{n.Email}

	var action string
	if n.Direction == model.DirectionCredit {
		e.Subject = "Credit Alert"
		action = "credited with"
	} else {
		e.Subject = "Debit Alert"
		action = "debited by"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", n.DisplayName)
	fmt.Fprintf(&b, "Your account %s has been %s %d.\n", n.AccountNumber, action, n.Amount)
	if n.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", n.Description)
	}
	fmt.Fprintf(&b, "Reference: %s\n", n.Reference)
	fmt.Fprintf(&b, "Transaction time: %s\n", n.OccurredAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Available balance: %d\n", n.Balance)
	b.WriteString("\nBest regards,\nBank Service")
	e.Text = []byte(b.String())
	return e
}

// LogNotifier 未开启 SMTP 时只记日志
type LogNotifier struct{}

func (LogNotifier) NotifyTransaction(_ context.Context, n Notification) error {
	logrus.WithFields(logrus.Fields{
		"account":   n.AccountNumber,
		"direction": n.Direction,
		"amount":    n.Amount,
		"balance":   n.Balance,
		"reference": n.Reference,
	}).Info("交易通知（SMTP 未开启）")
	return nil
}

// New 按配置选择通知实现
func New(cfg *config.SMTPConfig) Notifier {
	if cfg.Enabled {
		return NewEmailNotifier(cfg)
	}
	return LogNotifier{}
}
