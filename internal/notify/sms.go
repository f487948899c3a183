package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"account-service/internal/config"
	"account-service/internal/util"
)

// SMSSender delivers one-time codes through an HTTP SMS gateway. In
// dry-run mode the message is logged instead of dispatched, which is
// how development and test environments run.
type SMSSender struct {
	client   *http.Client
	apiKey   string
	apiURL   string
	senderID string
	dryRun   bool
}

func NewSMSSender(cfg *config.Config) *SMSSender {
	return &SMSSender{
		client:   &http.Client{Timeout: 10 * time.Second},
		apiKey:   cfg.SMS.APIKey,
		apiURL:   cfg.SMS.APIURL,
		senderID: cfg.SMS.SenderID,
		dryRun:   cfg.SMS.DryRun,
	}
}

// SendOTP dispatches a verification code to the given phone number.
func (s *SMSSender) SendOTP(ctx context.Context, phone, code string) error {
	text := fmt.Sprintf("Your verification code is %s. It expires in 30 minutes.", code)

	if s.dryRun {
		util.Info("SMS dry run",
			util.String("to", util.MaskPhone(phone)),
			util.String("text", text),
		)
		return nil
	}

	form := url.Values{}
	form.Set("apiKey", s.apiKey)
	form.Set("recipient", phone)
	form.Set("text", text)
	if s.senderID != "" {
		form.Set("from", s.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call sms gateway: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	util.Info("OTP sms sent", util.String("to", util.MaskPhone(phone)))
	return nil
}
