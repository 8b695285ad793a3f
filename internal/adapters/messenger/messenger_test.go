package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"fb-promo-bot/internal/domain"
)

type graphStub struct {
	mu       sync.Mutex
	requests []SendRequest
	reply    func(req SendRequest) (int, string)
}

func (g *graphStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v18.0/me/messages" {
			t.Fatalf("неожиданный путь %s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") != "token" {
			t.Fatalf("ожидали токен страницы в запросе")
		}
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("тело запроса: %v", err)
		}
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()
		status, body := g.reply(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func newTestGateway(t *testing.T, stub *graphStub, cfg GatewayConfig) *Gateway {
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "token"})
	return NewGateway(client, cfg, zerolog.Nop())
}

func TestDeliverSuccess(t *testing.T) {
	stub := &graphStub{reply: func(SendRequest) (int, string) {
		return http.StatusOK, `{"recipient_id":"42","message_id":"m_1"}`
	}}
	gw := newTestGateway(t, stub, GatewayConfig{Tag: "ACCOUNT_UPDATE"})
	if got := gw.Deliver(context.Background(), "42", "hello"); got != domain.Delivered {
		t.Fatalf("ожидали Delivered, получили %s", got)
	}
	req := stub.requests[0]
	if req.MessagingType != MessagingTypeTag || req.Tag != "ACCOUNT_UPDATE" || req.Recipient.ID != "42" || req.Message.Text != "hello" {
		t.Fatalf("неожиданный запрос %+v", req)
	}
}

func TestDeliverInvalidRecipient(t *testing.T) {
	stub := &graphStub{reply: func(SendRequest) (int, string) {
		return http.StatusBadRequest, `{"error":{"message":"No matching user found","type":"OAuthException","code":100,"error_subcode":2018001}}`
	}}
	gw := newTestGateway(t, stub, GatewayConfig{})
	if got := gw.Deliver(context.Background(), "42", "hello"); got != domain.PermanentlyInvalidRecipient {
		t.Fatalf("ожидали PermanentlyInvalidRecipient, получили %s", got)
	}
	if len(stub.requests) != 1 {
		t.Fatalf("повторов быть не должно")
	}
}

func TestDeliverTransientFailure(t *testing.T) {
	stub := &graphStub{reply: func(SendRequest) (int, string) {
		return http.StatusInternalServerError, `oops`
	}}
	gw := newTestGateway(t, stub, GatewayConfig{})
	if got := gw.Deliver(context.Background(), "42", "hello"); got != domain.TransientFailure {
		t.Fatalf("ожидали TransientFailure, получили %s", got)
	}
}

func TestDeliverNotConfigured(t *testing.T) {
	gw := NewGateway(NewClient(Config{}), GatewayConfig{}, zerolog.Nop())
	if got := gw.Deliver(context.Background(), "42", "hello"); got != domain.TransientFailure {
		t.Fatalf("без токена ожидали TransientFailure, получили %s", got)
	}
}

func TestDeliverWindowExpiredReengages(t *testing.T) {
	stub := &graphStub{reply: func(req SendRequest) (int, string) {
		if req.Tag == "CONFIRMED_EVENT_UPDATE" {
			return http.StatusOK, `{"recipient_id":"42","message_id":"m_2"}`
		}
		return http.StatusBadRequest, `{"error":{"message":"outside of allowed window","code":10,"error_subcode":2018278}}`
	}}
	gw := newTestGateway(t, stub, GatewayConfig{Tag: "ACCOUNT_UPDATE", ReengageTag: "CONFIRMED_EVENT_UPDATE", ReengageText: "We miss you!"})
	if got := gw.Deliver(context.Background(), "42", "hello"); got != domain.TransientFailure {
		t.Fatalf("исходная попытка должна считаться неудачной, получили %s", got)
	}
	if len(stub.requests) != 2 {
		t.Fatalf("ожидали сообщение повторного вовлечения, запросов: %d", len(stub.requests))
	}
	if stub.requests[1].Message.Text != "We miss you!" {
		t.Fatalf("неожиданный текст повторного вовлечения %q", stub.requests[1].Message.Text)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	var err error = &APIError{Code: 551}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.InvalidRecipient() {
		t.Fatalf("код 551 должен означать невалидного получателя")
	}
	if (&APIError{Code: 613}).InvalidRecipient() {
		t.Fatalf("лимит запросов не делает получателя невалидным")
	}
	if !(&APIError{Code: 10, Subcode: 2018278}).WindowExpired() {
		t.Fatalf("ожидали закрытое окно")
	}
}

func TestListParticipantsPaginates(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/v18.0/me/conversations" {
			t.Fatalf("неожиданный путь %s", r.URL.Path)
		}
		if r.URL.Query().Get("after") == "" {
			_, _ = w.Write([]byte(`{"data":[{"id":"t_1","updated_time":"2025-03-10T09:00:00+0000","messages":{"data":[{"from":{"id":"1"},"created_time":"2025-03-10T09:00:00+0000"}]},"participants":{"data":[{"id":"1","name":"Ali Khan"},{"id":"page","name":"Page"}]}}],"paging":{"cursors":{"after":"c1"},"next":"https://graph/next"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"t_2","updated_time":"2025-03-10T08:00:00+0000","messages":{"data":[{"from":{"id":"2"},"created_time":"2025-03-10T08:00:00+0000"}]},"participants":{"data":[{"id":"2","name":"Sara"}]}}],"paging":{"cursors":{"after":"c2"}}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "token"})
	var got []domain.User
	err := client.ListParticipants(context.Background(), "page", 0, func(users []domain.User) error {
		got = append(got, users...)
		return nil
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if calls != 2 || len(got) != 2 {
		t.Fatalf("ожидали 2 страницы и 2 собеседника, получили %d/%d", calls, len(got))
	}
	if got[0].ID != "1" || got[0].Name != "Ali Khan" || got[0].LastActive == 0 {
		t.Fatalf("неожиданный собеседник %+v", got[0])
	}
	if got[1].LastActive >= got[0].LastActive {
		t.Fatalf("ожидали время последнего сообщения собеседника")
	}
}

func TestListParticipantsIgnoresPageMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fields"); got != "participants,updated_time,messages.limit(1){from,created_time}" {
			t.Fatalf("неожиданные поля %q", got)
		}
		_, _ = w.Write([]byte(`{"data":[
			{"id":"t_1","updated_time":"2025-03-10T09:00:00+0000","messages":{"data":[{"from":{"id":"page"},"created_time":"2025-03-10T09:00:00+0000"}]},"participants":{"data":[{"id":"1","name":"Ali"},{"id":"page"}]}},
			{"id":"t_2","updated_time":"2025-03-10T09:00:00+0000","participants":{"data":[{"id":"2","name":"Sara"}]}}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "token"})
	var got []domain.User
	err := client.ListParticipants(context.Background(), "page", 0, func(users []domain.User) error {
		got = append(got, users...)
		return nil
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ожидали 2 собеседника, получили %+v", got)
	}
	for _, u := range got {
		if u.LastActive != 0 {
			t.Fatalf("наша отправка не должна считаться активностью %s: %d", u.ID, u.LastActive)
		}
	}
}
