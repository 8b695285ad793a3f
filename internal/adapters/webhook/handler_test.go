package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/usecase/roster"
)

type fakePromo struct {
	mu      sync.Mutex
	running bool
	paused  *bool
	runs    int
}

func (f *fakePromo) Run(context.Context) (domain.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return domain.RunSummary{RunID: "r1", Status: domain.RunCompleted, Sent: 3}, nil
}

func (f *fakePromo) Running() bool { return f.running }

func (f *fakePromo) SetPaused(_ context.Context, paused bool) error {
	f.paused = &paused
	return nil
}

func (f *fakePromo) LastSummary(context.Context) (domain.RunSummary, error) {
	return domain.RunSummary{RunID: "r0", Sent: 1}, nil
}

type fakeRoster struct {
	events []roster.Activity
	synced int
}

func (f *fakeRoster) Record(_ context.Context, events []roster.Activity) error {
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeRoster) Sync(context.Context) (int, error) {
	f.synced++
	return 7, nil
}

func newTestRouter(promo *fakePromo, rs *fakeRoster) http.Handler {
	r := chi.NewRouter()
	NewHandler(promo, rs, "verify-me", "s3cret", zerolog.Nop()).Mount(r)
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVerify(t *testing.T) {
	h := newTestRouter(&fakePromo{}, &fakeRoster{})
	rec := do(h, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("ожидали challenge, получили %d %q", rec.Code, rec.Body.String())
	}
	rec = do(h, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("ожидали 403, получили %d", rec.Code)
	}
}

func TestReceiveRecordsActivity(t *testing.T) {
	rs := &fakeRoster{}
	h := newTestRouter(&fakePromo{}, rs)
	body := `{"object":"page","entry":[{"id":"page","time":1,"messaging":[
		{"sender":{"id":"42"},"recipient":{"id":"page"},"timestamp":1700000000000,"message":{"text":"hi"}},
		{"sender":{"id":"page"},"recipient":{"id":"42"},"timestamp":1700000000001,"message":{"is_echo":true,"text":"promo"}}
	]}]}`
	rec := do(h, http.MethodPost, "/webhook", body)
	if rec.Code != http.StatusOK || rec.Body.String() != "EVENT_RECEIVED" {
		t.Fatalf("ожидали EVENT_RECEIVED, получили %d %q", rec.Code, rec.Body.String())
	}
	if len(rs.events) != 1 || rs.events[0].UserID != "42" || rs.events[0].At.UnixMilli() != 1700000000000 {
		t.Fatalf("ожидали одно событие от 42, получили %+v", rs.events)
	}
}

func TestReceiveNonPage(t *testing.T) {
	h := newTestRouter(&fakePromo{}, &fakeRoster{})
	if rec := do(h, http.MethodPost, "/webhook", `{"object":"instagram"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/webhook", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestOperatorEndpointsRequireSecret(t *testing.T) {
	promo := &fakePromo{}
	h := newTestRouter(promo, &fakeRoster{})
	if rec := do(h, http.MethodPost, "/promo/run?wait=1", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", rec.Code)
	}
	if promo.runs != 0 {
		t.Fatalf("без секрета прогон не запускается")
	}
}

func TestRunPromoWait(t *testing.T) {
	promo := &fakePromo{}
	h := newTestRouter(promo, &fakeRoster{})
	rec := do(h, http.MethodPost, "/promo/run?wait=1&secret=s3cret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var summary domain.RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("ответ: %v", err)
	}
	if summary.Sent != 3 || summary.RunID != "r1" {
		t.Fatalf("неожиданный итог %+v", summary)
	}
}

func TestRunPromoAlreadyRunning(t *testing.T) {
	promo := &fakePromo{running: true}
	h := newTestRouter(promo, &fakeRoster{})
	req := httptest.NewRequest(http.MethodPost, "/promo/run", nil)
	req.Header.Set("X-Send-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("ожидали 409, получили %d", rec.Code)
	}
	if promo.runs != 0 {
		t.Fatalf("второй прогон не должен стартовать")
	}
}

func TestPauseResumeAndStats(t *testing.T) {
	promo := &fakePromo{}
	rs := &fakeRoster{}
	h := newTestRouter(promo, rs)
	if rec := do(h, http.MethodPost, "/promo/pause?secret=s3cret", ""); rec.Code != http.StatusOK || promo.paused == nil || !*promo.paused {
		t.Fatalf("ожидали включение паузы")
	}
	if rec := do(h, http.MethodPost, "/promo/resume?secret=s3cret", ""); rec.Code != http.StatusOK || *promo.paused {
		t.Fatalf("ожидали снятие паузы")
	}
	rec := do(h, http.MethodGet, "/promo/stats?secret=s3cret", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"runId":"r0"`) {
		t.Fatalf("ожидали статистику, получили %d %s", rec.Code, rec.Body.String())
	}
	rec = do(h, http.MethodPost, "/roster/sync?secret=s3cret", "")
	if rec.Code != http.StatusOK || rs.synced != 1 || !strings.Contains(rec.Body.String(), `"synced":7`) {
		t.Fatalf("ожидали синхронизацию, получили %d %s", rec.Code, rec.Body.String())
	}
}
