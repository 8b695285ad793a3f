package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fb-promo-bot/internal/infra/metrics"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v18.0"

	// MessagingTypeTag — отправка вне 24-часового окна с тегом.
	MessagingTypeTag = "MESSAGE_TAG"
	// MessagingTypeUpdate — обычная отправка внутри окна.
	MessagingTypeUpdate = "UPDATE"
)

// Коды ошибок Graph API, влияющие на классификацию доставки.
const (
	codeInvalidParameter  = 100
	codePersonUnavailable = 551
	codePermission        = 10
	subcodeOutsideWindow  = 2018278
	subcodeNoMatchingUser = 2018001
)

// ErrNotConfigured возвращается, если не задан токен страницы.
var ErrNotConfigured = errors.New("messenger: page access token is empty")

// APIError описывает ошибку, которую вернул Graph API.
type APIError struct {
	Status    int    `json:"-"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messenger: graph error code=%d subcode=%d: %s", e.Code, e.Subcode, e.Message)
}

// InvalidRecipient сообщает, что получатель больше не существует или не принимает сообщения.
func (e *APIError) InvalidRecipient() bool {
	switch {
	case e.Code == codeInvalidParameter, e.Code == codePersonUnavailable:
		return true
	case e.Subcode == subcodeNoMatchingUser:
		return true
	}
	return false
}

// WindowExpired сообщает, что окно переписки закрыто.
func (e *APIError) WindowExpired() bool {
	return e.Code == codePermission && e.Subcode == subcodeOutsideWindow
}

// Config описывает подключение к Graph API.
type Config struct {
	BaseURL     string
	APIVersion  string
	AccessToken string
	Timeout     time.Duration
}

// Client работает с Messenger Send API и Conversations API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient создаёт клиента Graph API.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	version := strings.Trim(cfg.APIVersion, "/")
	if version == "" {
		version = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: base + "/" + version,
		token:   strings.TrimSpace(cfg.AccessToken),
	}
}

// SendRequest описывает тело запроса /me/messages.
type SendRequest struct {
	MessagingType string    `json:"messaging_type"`
	Tag           string    `json:"tag,omitempty"`
	Recipient     Recipient `json:"recipient"`
	Message       Message   `json:"message"`
}

// Recipient описывает получателя сообщения.
type Recipient struct {
	ID string `json:"id"`
}

// Message содержит текст сообщения.
type Message struct {
	Text string `json:"text"`
}

type sendResponse struct {
	RecipientID string    `json:"recipient_id"`
	MessageID   string    `json:"message_id"`
	Error       *APIError `json:"error,omitempty"`
}

// SendText отправляет текст получателю. Пустой tag означает отправку без тега.
func (c *Client) SendText(ctx context.Context, recipientID, text, tag string) (string, error) {
	req := SendRequest{
		MessagingType: MessagingTypeUpdate,
		Recipient:     Recipient{ID: recipientID},
		Message:       Message{Text: text},
	}
	if tag != "" {
		req.MessagingType = MessagingTypeTag
		req.Tag = tag
	}
	var resp sendResponse
	if err := c.do(ctx, http.MethodPost, "/me/messages", nil, req, &resp, "send"); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	return resp.MessageID, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any, operation string) error {
	if c.token == "" {
		return ErrNotConfigured
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", c.token)
	endpoint := c.baseURL + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("messenger: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("messenger: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("messenger", operation, "graph", start, err)
		return fmt.Errorf("messenger: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveNetworkRequest("messenger", operation, "graph", start, err)
		return fmt.Errorf("messenger: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			metrics.ObserveNetworkRequest("messenger", operation, "graph", start, envelope.Error)
			return envelope.Error
		}
		err = fmt.Errorf("messenger: unexpected status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("messenger", operation, "graph", start, err)
		return err
	}
	metrics.ObserveNetworkRequest("messenger", operation, "graph", start, nil)
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("messenger: decode response: %w", err)
	}
	return nil
}
