package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"fb-promo-bot/internal/domain"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Asia/Karachi"`
	Port   int    `envconfig:"PORT" default:"3000"`

	Messenger struct {
		PageAccessToken string        `envconfig:"PAGE_ACCESS_TOKEN"`
		PageID          string        `envconfig:"PAGE_ID"`
		VerifyToken     string        `envconfig:"VERIFY_TOKEN"`
		APIVersion      string        `envconfig:"GRAPH_API_VERSION" default:"v18.0"`
		BaseURL         string        `envconfig:"GRAPH_BASE_URL" default:"https://graph.facebook.com"`
		Tag             string        `envconfig:"MESSENGER_TAG" default:"ACCOUNT_UPDATE"`
		ReengageTag     string        `envconfig:"MESSENGER_REENGAGE_TAG" default:"CONFIRMED_EVENT_UPDATE"`
		ReengageText    string        `envconfig:"MESSENGER_REENGAGE_TEXT"`
		Timeout         time.Duration `envconfig:"MESSENGER_TIMEOUT" default:"15s"`
		SeedActive      bool          `envconfig:"ROSTER_SEED_ACTIVE" default:"false"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"20s"`
	} `envconfig:""`

	Storage struct {
		Driver    string `envconfig:"STORAGE_DRIVER" default:"file"`
		UsersFile string `envconfig:"USERS_FILE" default:"users.json"`
		StatsFile string `envconfig:"STATS_FILE" default:"stats.json"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Control struct {
		PauseFile   string        `envconfig:"PAUSE_FILE" default:"paused.flag"`
		PauseKey    string        `envconfig:"PAUSE_KEY" default:"promo:paused"`
		RunLockKey  string        `envconfig:"RUN_LOCK_KEY" default:"promo:run_lock"`
		RunLockTTL  time.Duration `envconfig:"RUN_LOCK_TTL" default:"30m"`
		SendSecret  string        `envconfig:"SEND_SECRET"`
		MetricsAddr string        `envconfig:"METRICS_ADDR" default:":9090"`
	} `envconfig:""`

	Promo struct {
		ActiveWindow     time.Duration `envconfig:"PROMO_ACTIVE_WINDOW" default:"10m"`
		InstantCooldown  time.Duration `envconfig:"PROMO_INSTANT_COOLDOWN" default:"3h"`
		FallbackCooldown time.Duration `envconfig:"PROMO_FALLBACK_COOLDOWN" default:"6h"`
		FallbackHours    []int         `envconfig:"PROMO_FALLBACK_HOURS" default:"11,16,21"`
		MaxLifetimeSends int           `envconfig:"PROMO_MAX_LIFETIME_SENDS" default:"0"`
		BatchCap         int           `envconfig:"PROMO_BATCH_CAP" default:"200"`
		FallbackCap      int           `envconfig:"PROMO_FALLBACK_CAP" default:"0"`
		Order            string        `envconfig:"PROMO_ORDER" default:"recency"`
		Pacing           time.Duration `envconfig:"PROMO_PACING" default:"400ms"`
	} `envconfig:""`

	Schedule struct {
		Interval time.Duration `envconfig:"SCHEDULE_INTERVAL" default:"10m"`
	} `envconfig:""`

	Reporting struct {
		RabbitURL     string `envconfig:"RABBIT_URL"`
		RunsQueue     string `envconfig:"RUNS_QUEUE" default:"promo_runs"`
		RunsRedisKey  string `envconfig:"RUNS_REDIS_KEY"`
		TGBotToken    string `envconfig:"TG_BOT_TOKEN"`
		TGAdminChatID int64  `envconfig:"TG_ADMIN_CHAT_ID"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Policy собирает политику рассылки из конфига.
func (c AppConfig) Policy() (domain.Policy, error) {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("часовой пояс %q: %w", c.TZ, err)
	}
	for _, h := range c.Promo.FallbackHours {
		if h < 0 || h > 23 {
			return domain.Policy{}, fmt.Errorf("некорректный час fallback: %d", h)
		}
	}
	order := domain.SelectionOrder(c.Promo.Order)
	switch order {
	case domain.OrderRecency, domain.OrderInsertion:
	default:
		return domain.Policy{}, fmt.Errorf("неизвестный порядок отбора %q", c.Promo.Order)
	}
	if c.Promo.ActiveWindow <= 0 {
		return domain.Policy{}, fmt.Errorf("окно активности должно быть положительным")
	}
	return domain.Policy{
		ActiveWindow:     c.Promo.ActiveWindow,
		InstantCooldown:  c.Promo.InstantCooldown,
		FallbackCooldown: c.Promo.FallbackCooldown,
		FallbackHours:    append([]int(nil), c.Promo.FallbackHours...),
		Location:         loc,
		MaxLifetimeSends: c.Promo.MaxLifetimeSends,
		BatchCap:         c.Promo.BatchCap,
		FallbackCap:      c.Promo.FallbackCap,
		Order:            order,
		Pacing:           c.Promo.Pacing,
	}, nil
}
