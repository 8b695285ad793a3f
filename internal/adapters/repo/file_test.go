package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fb-promo-bot/internal/domain"
)

func newFileStore(t *testing.T) *FileStore {
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, "users.json"), filepath.Join(dir, "stats.json"))
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := newFileStore(t)
	users, err := store.LoadRoster(context.Background())
	if err != nil || len(users) != 0 {
		t.Fatalf("ожидали пустой ростер, получили %v, %v", users, err)
	}
	summary, err := store.LastRunSummary(context.Background())
	if err != nil || summary.RunID != "" {
		t.Fatalf("ожидали пустую статистику, получили %+v, %v", summary, err)
	}
}

func TestFileStoreReadsOriginalFormat(t *testing.T) {
	store := newFileStore(t)
	raw := `[{"id":"1","name":"Ali Khan","lastActive":1700000000000,"lastSent":0},{"id":"2"}]`
	if err := os.WriteFile(store.usersPath, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	users, err := store.LoadRoster(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(users) != 2 || users[0].Name != "Ali Khan" || users[0].LastActive != 1700000000000 {
		t.Fatalf("неожиданный ростер %+v", users)
	}
}

func TestFileStoreSaveKeepsConcurrentActivity(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	if err := store.SaveRoster(ctx, []domain.User{{ID: "1", LastActive: 100}}); err != nil {
		t.Fatal(err)
	}
	loaded, _ := store.LoadRoster(ctx)

	if err := store.RecordActivity(ctx, []domain.User{{ID: "1", LastActive: 500}, {ID: "2", LastActive: 400}}); err != nil {
		t.Fatal(err)
	}

	loaded[0].LastSent = 300
	loaded[0].SentCount = 1
	if err := store.SaveRoster(ctx, loaded); err != nil {
		t.Fatal(err)
	}

	users, _ := store.LoadRoster(ctx)
	if len(users) != 2 {
		t.Fatalf("пользователь из вебхука не должен потеряться: %+v", users)
	}
	if users[0].LastActive != 500 || users[0].LastSent != 300 || users[0].SentCount != 1 {
		t.Fatalf("неожиданное состояние после слияния: %+v", users[0])
	}
}

func TestFileStoreRunSummary(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	want := domain.RunSummary{RunID: "r1", Status: domain.RunCompleted, Sent: 2, StartedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	if err := store.SaveRunSummary(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := store.LastRunSummary(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.RunID != "r1" || got.Sent != 2 || !got.StartedAt.Equal(want.StartedAt) {
		t.Fatalf("неожиданная статистика %+v", got)
	}
}

func TestFilePause(t *testing.T) {
	ctx := context.Background()
	pause := NewFilePause(filepath.Join(t.TempDir(), "paused.flag"))
	if paused, _ := pause.IsPaused(ctx); paused {
		t.Fatalf("по умолчанию пауза выключена")
	}
	if err := pause.SetPaused(ctx, true); err != nil {
		t.Fatal(err)
	}
	if paused, _ := pause.IsPaused(ctx); !paused {
		t.Fatalf("ожидали включённую паузу")
	}
	if err := pause.SetPaused(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := pause.SetPaused(ctx, false); err != nil {
		t.Fatalf("повторное снятие паузы не ошибка: %v", err)
	}
	if paused, _ := pause.IsPaused(ctx); paused {
		t.Fatalf("ожидали снятую паузу")
	}
}
