package notification

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/tendant/simple-idm-access/pkg/domain"
)

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	// SupportContact is shown in notices for changes the holder did not make.
	SupportContact string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailService struct {
	config   EmailConfig
	logger   *slog.Logger
	sendMail sendMailFunc
}

func NewEmailService(config EmailConfig, logger *slog.Logger) *EmailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailService{config: config, logger: logger, sendMail: smtp.SendMail}
}

// Enabled reports whether an SMTP host is configured. A disabled service
// logs notices instead of sending them.
func (s *EmailService) Enabled() bool {
	return s.config.Host != ""
}

// SendPasswordChanged tells the account holder their password changed.
func (s *EmailService) SendPasswordChanged(ctx context.Context, notice domain.PasswordChangedNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Enabled() {
		s.logger.Info("smtp disabled, password change notice not sent",
			"email", notice.Email, "changed_by", notice.ChangedBy)
		return nil
	}

	subject := "Your Password Was Changed"
	return s.sendEmail(notice.Email, subject, s.passwordChangedBody(notice))
}

func (s *EmailService) passwordChangedBody(notice domain.PasswordChangedNotice) string {
	greeting := "Hello,"
	if notice.Name != "" {
		greeting = fmt.Sprintf("Hello %s,", html.EscapeString(notice.Name))
	}

	what := "You changed the password for your account."
	if notice.ChangedBy == "admin" {
		what = "An administrator reset the password for your account."
	}

	contact := "your administrator"
	if s.config.SupportContact != "" {
		contact = html.EscapeString(s.config.SupportContact)
	}

	return fmt.Sprintf(`<html><body>
		<h2>Your Password Was Changed</h2>
		<p>%s</p>
		<p>%s This happened on %s.</p>
		<p>If you did not expect this change, contact %s immediately.</p>
	</body></html>`, greeting, what, notice.At.UTC().Format(time.RFC1123), contact)
}

func (s *EmailService) sendEmail(to, subject, body string) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body)

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.sendMail(addr, auth, s.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
