// Package telegram talks to the Telegram Bot API: outbound notifications
// and the inbound admin command loop.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"olxmonitor/internal/ports"
)

const apiBase = "https://api.telegram.org"

// APIError is a failed Bot API call. Status 0 means the request never
// reached Telegram (network fault).
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "telegram unreachable"
	}
	return fmt.Sprintf("telegram error %d: %s", e.Status, e.Body)
}

// Transient reports whether the call is worth retrying: network faults,
// rate limiting and server-side errors. Client errors (bad chat id,
// malformed markup) are permanent.
func (e *APIError) Transient() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsTransient classifies an arbitrary send error for retry decisions.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return false
}

// Sender implements ports.Sender over the Bot API.
type Sender struct {
	token   string
	baseURL string
	client  *http.Client
}

var _ ports.Sender = (*Sender)(nil)

// NewSender wires the bot token. baseURL overrides the API host in tests;
// empty means api.telegram.org.
func NewSender(token, baseURL string) *Sender {
	if baseURL == "" {
		baseURL = apiBase
	}
	return &Sender{
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SendMessage posts a Markdown text to the chat.
func (s *Sender) SendMessage(ctx context.Context, chatID, text string) error {
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")
	return s.post(ctx, "sendMessage", form)
}

// SendPhoto posts an image by URL with a Markdown caption.
func (s *Sender) SendPhoto(ctx context.Context, chatID, text, photoURL string) error {
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("photo", photoURL)
	form.Set("caption", text)
	form.Set("parse_mode", "Markdown")
	return s.post(ctx, "sendPhoto", form)
}

func (s *Sender) post(ctx context.Context, method string, form url.Values) error {
	if s.token == "" {
		return fmt.Errorf("telegram sender misconfigured: empty token")
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", s.baseURL, s.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return &APIError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
