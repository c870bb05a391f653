package smtp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"outreach/backend/internal/domain"
)

// Sender 经配置好的 SMTP 中继发送外联邮件。
//
// 实现 service.MailSender。与 Gmail 发送不同，中继用固定的
// 中继账号鉴权，忽略逐调用传入的凭证；信头的 From 仍写
// Manager 的地址。
type Sender struct {
	addr     string
	username string
	password string
	log      *zap.Logger
}

// NewSender 创建 SMTP 中继发送器。addr 形如 host:587。
func NewSender(addr, username, password string, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
	}
}

// Send 经中继发送一封纯文本邮件。
func (s *Sender) Send(ctx context.Context, _ domain.Credential, from, to, subject, body string) error {
	encodedSubject := fmt.Sprintf("=?UTF-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(subject)))
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + encodedSubject,
		`Content-Type: text/plain; charset="UTF-8"`,
		"MIME-Version: 1.0",
		"",
		body,
	}, "\r\n")

	done := make(chan error, 1)
	go func() {
		auth := sasl.NewPlainClient("", s.username, s.password)
		done <- smtp.SendMail(s.addr, auth, s.username, []string{to}, strings.NewReader(msg))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("relay send to %s: %w", to, err)
		}
	}

	s.log.Debug("relay send ok", zap.String("to", to))
	return nil
}
