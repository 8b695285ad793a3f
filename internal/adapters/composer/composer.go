package composer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/metrics"
)

// BonusLine содержит фиксированное описание бонусов.
const BonusLine = "Signup Bonus 150%-200% | Regular Bonus 80%-100%"

var (
	games = []string{
		"Vblink", "Orion Stars", "Fire Kirin", "Milky Way", "Panda Master",
		"Juwa City", "Game Vault", "Ultra Panda", "Cash Machine",
		"Big Winner", "Game Room", "River Sweeps", "Mafia", "Yolo",
	}
	emojis  = []string{"🎰", "🔥", "💎", "💰", "🎮", "⭐", "⚡", "🎯", "🏆", "💫"}
	urgency = []string{"Tonight only", "Ends soon", "Hurry up", "Don’t miss out", "Limited time"}
)

const (
	gamesPerMessage  = 5
	emojisPerMessage = 3
)

// Composer собирает промо-текст через LLM, а при любой ошибке по шаблону.
type Composer struct {
	gen     domain.TextGenerator
	timeout time.Duration
	log     zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ domain.Composer = (*Composer)(nil)

// New создаёт композер. gen == nil означает, что генератор не настроен и
// всегда используется шаблон.
func New(gen domain.TextGenerator, timeout time.Duration, logger zerolog.Logger) *Composer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Composer{
		gen:     gen,
		timeout: timeout,
		log:     logger.With().Str("component", "composer").Logger(),
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithSeed делает выбор игр и эмодзи воспроизводимым.
func (c *Composer) WithSeed(seed uint64) *Composer {
	c.mu.Lock()
	c.rnd = rand.New(rand.NewPCG(seed, seed))
	c.mu.Unlock()
	return c
}

// Compose возвращает непустой текст для пользователя.
func (c *Composer) Compose(ctx context.Context, firstName string) string {
	params := c.params(firstName)
	if c.gen == nil {
		metrics.ComposerFallbacksTotal.Inc()
		return Fallback(params.FirstName)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := c.gen.Generate(ctx, params)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err == nil {
			err = fmt.Errorf("пустой ответ генератора")
		}
		c.log.Warn().Err(err).Str("name", params.FirstName).Msg("генерация не удалась, используем шаблон")
		metrics.ComposerFallbacksTotal.Inc()
		return Fallback(params.FirstName)
	}
	return text
}

// Fallback собирает детерминированный шаблон сообщения.
func Fallback(firstName string) string {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		firstName = domain.DefaultName
	}
	return fmt.Sprintf("Hi %s 👋 %s 🎰 Message us to unlock your bonus 💳", firstName, BonusLine)
}

func (c *Composer) params(firstName string) domain.PromptParams {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		firstName = domain.DefaultName
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.PromptParams{
		FirstName: firstName,
		Games:     pick(c.rnd, games, gamesPerMessage),
		Emojis:    pick(c.rnd, emojis, emojisPerMessage),
		Urgency:   urgency[c.rnd.IntN(len(urgency))],
		BonusLine: BonusLine,
	}
}

// pick выбирает n различных элементов без повторов.
func pick(r *rand.Rand, values []string, n int) []string {
	if n > len(values) {
		n = len(values)
	}
	out := make([]string, 0, n)
	for _, idx := range r.Perm(len(values))[:n] {
		out = append(out, values[idx])
	}
	return out
}
