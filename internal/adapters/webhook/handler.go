package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/metrics"
	"fb-promo-bot/internal/usecase/roster"
)

type promoRunner interface {
	Run(ctx context.Context) (domain.RunSummary, error)
	Running() bool
	SetPaused(ctx context.Context, paused bool) error
	LastSummary(ctx context.Context) (domain.RunSummary, error)
}

type rosterService interface {
	Record(ctx context.Context, events []roster.Activity) error
	Sync(ctx context.Context) (int, error)
}

// Handler обслуживает вебхук Messenger и операторские эндпоинты.
type Handler struct {
	promo       promoRunner
	roster      rosterService
	verifyToken string
	secret      string
	log         zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(promo promoRunner, rosterSvc rosterService, verifyToken, secret string, logger zerolog.Logger) *Handler {
	return &Handler{
		promo:       promo,
		roster:      rosterSvc,
		verifyToken: verifyToken,
		secret:      secret,
		log:         logger.With().Str("component", "webhook").Logger(),
	}
}

// Mount регистрирует маршруты.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/webhook", h.verify)
	r.Post("/webhook", h.receive)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(protected chi.Router) {
		protected.Use(h.requireSecret)
		protected.Post("/promo/run", h.runPromo)
		protected.Post("/promo/pause", h.setPaused(true))
		protected.Post("/promo/resume", h.setPaused(false))
		protected.Get("/promo/stats", h.stats)
		protected.Post("/roster/sync", h.syncRoster)
	})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		h.log.Info().Msg("вебхук подтверждён")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

type webhookBody struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string           `json:"id"`
		Time      int64            `json:"time"`
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		IsEcho bool   `json:"is_echo"`
		Text   string `json:"text"`
	} `json:"message,omitempty"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var body webhookBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	metrics.WebhookEventsTotal.WithLabelValues(body.Object).Inc()
	if body.Object != "page" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var events []roster.Activity
	for _, entry := range body.Entry {
		for _, ev := range entry.Messaging {
			if ev.Message != nil && ev.Message.IsEcho {
				continue
			}
			if ev.Sender.ID == "" || ev.Sender.ID == entry.ID {
				continue
			}
			events = append(events, roster.Activity{UserID: ev.Sender.ID, At: millisTime(ev.Timestamp)})
		}
	}
	if err := h.roster.Record(r.Context(), events); err != nil {
		h.log.Error().Err(err).Int("events", len(events)).Msg("не удалось записать активность")
	} else if len(events) > 0 {
		h.log.Debug().Int("events", len(events)).Msg("активность записана")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

func (h *Handler) runPromo(w http.ResponseWriter, r *http.Request) {
	if h.promo.Running() {
		writeError(w, http.StatusConflict, domain.ErrAlreadyRunning.Error())
		return
	}
	if r.URL.Query().Get("wait") == "1" {
		summary, err := h.promo.Run(r.Context())
		if errors.Is(err, domain.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("прогон завершился ошибкой")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "summary": summary})
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.promo.Run(ctx); err != nil && !errors.Is(err, domain.ErrAlreadyRunning) {
			h.log.Error().Err(err).Msg("прогон завершился ошибкой")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) setPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.promo.SetPaused(r.Context(), paused); err != nil {
			h.log.Error().Err(err).Bool("paused", paused).Msg("не удалось изменить паузу")
			writeError(w, http.StatusInternalServerError, "failed to update pause flag")
			return
		}
		h.log.Info().Bool("paused", paused).Msg("флаг паузы изменён")
		writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
	}
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.promo.LastSummary(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось прочитать статистику")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": h.promo.Running(), "last": summary})
}

func (h *Handler) syncRoster(w http.ResponseWriter, r *http.Request) {
	total, err := h.roster.Sync(r.Context())
	if err != nil {
		h.log.Error().Err(err).Int("synced", total).Msg("синхронизация ростера не удалась")
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": total})
}

func (h *Handler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Send-Secret")
		if got == "" {
			got = r.URL.Query().Get("secret")
		}
		if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func millisTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
