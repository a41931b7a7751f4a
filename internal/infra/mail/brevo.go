package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
)

const (
	defaultBrevoURL     = "https://api.brevo.com/v3/smtp/email"
	defaultBrevoTimeout = 30 * time.Second
	maxErrorBody        = 512
)

// BrevoSender delivers through the Brevo transactional email API.
type BrevoSender struct {
	apiKey string
	apiURL string
	sender Sender
	client *http.Client
}

// NewBrevoSender constructs the sender. A nil client gets one with the configured timeout.
func NewBrevoSender(cfg config.BrevoSettings, sender Sender, client *http.Client) (*BrevoSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("brevo api key is required")
	}
	if strings.TrimSpace(sender.Email) == "" {
		return nil, fmt.Errorf("brevo sender email is required")
	}
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		apiURL = defaultBrevoURL
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultBrevoTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &BrevoSender{apiKey: cfg.APIKey, apiURL: apiURL, sender: sender, client: client}, nil
}

// Name implements Provider.
func (s *BrevoSender) Name() string { return "brevo" }

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent,omitempty"`
	TextContent string         `json:"textContent,omitempty"`
}

// Send implements port.Mailer. Any non-2xx response is an error.
func (s *BrevoSender) Send(ctx context.Context, msg port.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	body, err := json.Marshal(brevoRequest{
		Sender:      brevoContact{Email: s.sender.Email, Name: s.sender.Name},
		To:          []brevoContact{{Email: msg.To, Name: msg.ToName}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTMLBody,
		TextContent: msg.PlainBody,
	})
	if err != nil {
		return fmt.Errorf("marshal brevo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create brevo request: %w", err)
	}
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("brevo http error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
