package notify

import (
	"fmt"
	"net/url"

	gomail "gopkg.in/gomail.v2"

	"account-service/internal/config"
	"account-service/internal/util"
)

// EmailSender delivers account emails over SMTP.
type EmailSender struct {
	dialer  *gomail.Dialer
	from    string
	baseURL string
}

func NewEmailSender(cfg *config.Config) *EmailSender {
	return &EmailSender{
		dialer:  gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password),
		from:    cfg.SMTP.From,
		baseURL: cfg.Server.BaseURL,
	}
}

// SendPasswordReset mails a reset link carrying the signed token.
func (s *EmailSender) SendPasswordReset(to, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, url.QueryEscape(token))

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Reset your password")
	m.SetBody("text/plain", fmt.Sprintf(
		"A password reset was requested for your account.\n\n"+
			"Open the link below to choose a new password. The link expires in 30 minutes.\n\n%s\n\n"+
			"If you did not request this, you can ignore this email.\n", link))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	util.Info("Password reset email sent", util.String("to", util.MaskEmail(to)))
	return nil
}
