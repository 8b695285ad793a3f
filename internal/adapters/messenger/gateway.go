package messenger

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"fb-promo-bot/internal/domain"
)

type sender interface {
	SendText(ctx context.Context, recipientID, text, tag string) (string, error)
}

// GatewayConfig задаёт теги отправки и повторное вовлечение.
type GatewayConfig struct {
	Tag          string
	ReengageTag  string
	ReengageText string
}

// Gateway классифицирует результат отправки Send API.
type Gateway struct {
	client sender
	cfg    GatewayConfig
	log    zerolog.Logger
}

var _ domain.Gateway = (*Gateway)(nil)

// NewGateway создаёт шлюз доставки.
func NewGateway(client sender, cfg GatewayConfig, logger zerolog.Logger) *Gateway {
	return &Gateway{client: client, cfg: cfg, log: logger.With().Str("component", "messenger").Logger()}
}

// Deliver отправляет одно сообщение и никогда не повторяет попытку.
func (g *Gateway) Deliver(ctx context.Context, userID, text string) domain.Outcome {
	_, err := g.client.SendText(ctx, userID, text, g.cfg.Tag)
	if err == nil {
		return domain.Delivered
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.InvalidRecipient() {
			g.log.Warn().Str("user", userID).Int("code", apiErr.Code).Msg("пропускаем невалидного получателя")
			return domain.PermanentlyInvalidRecipient
		}
		if apiErr.WindowExpired() {
			g.reengage(ctx, userID)
			return domain.TransientFailure
		}
	}
	g.log.Error().Err(err).Str("user", userID).Msg("ошибка отправки")
	return domain.TransientFailure
}

func (g *Gateway) reengage(ctx context.Context, userID string) {
	if g.cfg.ReengageText == "" || g.cfg.ReengageTag == "" {
		g.log.Warn().Str("user", userID).Msg("окно переписки закрыто")
		return
	}
	if _, err := g.client.SendText(ctx, userID, g.cfg.ReengageText, g.cfg.ReengageTag); err != nil {
		g.log.Warn().Err(err).Str("user", userID).Msg("не удалось отправить сообщение повторного вовлечения")
		return
	}
	g.log.Info().Str("user", userID).Msg("окно закрыто, отправлено сообщение повторного вовлечения")
}
