package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/metrics"
)

// Postgres хранит ростер и статистику прогонов на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.RosterStore      = (*Postgres)(nil)
	_ domain.ActivityRecorder = (*Postgres)(nil)
	_ domain.StatsRepo        = (*Postgres)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS promo_users (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	last_active BIGINT NOT NULL DEFAULT 0,
	last_sent   BIGINT NOT NULL DEFAULT 0,
	sent_count  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS promo_runs (
	run_id            TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	sent              INTEGER NOT NULL,
	skipped           INTEGER NOT NULL,
	failed            INTEGER NOT NULL,
	invalid           INTEGER NOT NULL,
	total_eligible    INTEGER NOT NULL,
	total_users       INTEGER NOT NULL,
	paused_during_run BOOLEAN NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	finished_at       TIMESTAMPTZ NOT NULL
);
`

// Слияние по максимуму: параллельный вебхук не откатывается сохранением ростера.
const upsertUser = `
INSERT INTO promo_users (id, name, last_active, last_sent, sent_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	name = COALESCE(NULLIF(EXCLUDED.name, ''), promo_users.name),
	last_active = GREATEST(promo_users.last_active, EXCLUDED.last_active),
	last_sent = GREATEST(promo_users.last_sent, EXCLUDED.last_sent),
	sent_count = GREATEST(promo_users.sent_count, EXCLUDED.sent_count),
	updated_at = now()
`

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы, если их нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "promo", start, err)
	return err
}

// LoadRoster возвращает ростер в порядке добавления пользователей.
func (p *Postgres) LoadRoster(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, last_active, last_sent, sent_count
FROM promo_users
ORDER BY created_at, id
`)
	metrics.ObserveNetworkRequest("postgres", "users_list", "promo_users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.LastActive, &u.LastSent, &u.SentCount); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveRoster сохраняет ростер целиком одной транзакцией.
func (p *Postgres) SaveRoster(ctx context.Context, users []domain.User) error {
	return p.upsertUsers(ctx, users, "users_save")
}

// RecordActivity фиксирует активность собеседников.
func (p *Postgres) RecordActivity(ctx context.Context, users []domain.User) error {
	return p.upsertUsers(ctx, users, "users_activity")
}

func (p *Postgres) upsertUsers(ctx context.Context, users []domain.User, operation string) error {
	if len(users) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "promo_users", start, err)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		batch.Queue(upsertUser, u.ID, u.Name, u.LastActive, u.LastSent, u.SentCount)
	}
	start = time.Now()
	err = tx.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", operation, "promo_users", start, err)
	if err != nil {
		return fmt.Errorf("upsert пользователей: %w", err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "promo_users", start, err)
	return err
}

// SaveRunSummary сохраняет итог прогона.
func (p *Postgres) SaveRunSummary(ctx context.Context, s domain.RunSummary) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO promo_runs (run_id, status, sent, skipped, failed, invalid, total_eligible, total_users, paused_during_run, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (run_id) DO NOTHING
`, s.RunID, string(s.Status), s.Sent, s.Skipped, s.Failed, s.Invalid, s.TotalEligible, s.TotalUsers, s.PausedDuringRun, s.StartedAt, s.FinishedAt)
	metrics.ObserveNetworkRequest("postgres", "runs_insert", "promo_runs", start, err)
	return err
}

// LastRunSummary возвращает последний итог; если прогонов не было — пустой итог.
func (p *Postgres) LastRunSummary(ctx context.Context) (domain.RunSummary, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		s      domain.RunSummary
		status string
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT run_id, status, sent, skipped, failed, invalid, total_eligible, total_users, paused_during_run, started_at, finished_at
FROM promo_runs
ORDER BY started_at DESC
LIMIT 1
`).Scan(&s.RunID, &status, &s.Sent, &s.Skipped, &s.Failed, &s.Invalid, &s.TotalEligible, &s.TotalUsers, &s.PausedDuringRun, &s.StartedAt, &s.FinishedAt)
	metrics.ObserveNetworkRequest("postgres", "runs_last", "promo_runs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunSummary{}, nil
	}
	if err != nil {
		return domain.RunSummary{}, err
	}
	s.Status = domain.RunStatus(status)
	return s, nil
}
