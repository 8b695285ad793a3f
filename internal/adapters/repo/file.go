package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"fb-promo-bot/internal/domain"
)

// FileStore хранит ростер в users.json и итог прогона в stats.json.
type FileStore struct {
	mu        sync.Mutex
	usersPath string
	statsPath string
}

var (
	_ domain.RosterStore      = (*FileStore)(nil)
	_ domain.ActivityRecorder = (*FileStore)(nil)
	_ domain.StatsRepo        = (*FileStore)(nil)
)

// NewFileStore создаёт файловое хранилище.
func NewFileStore(usersPath, statsPath string) *FileStore {
	return &FileStore{usersPath: usersPath, statsPath: statsPath}
}

// LoadRoster читает ростер; отсутствующий файл означает пустой ростер.
func (f *FileStore) LoadRoster(ctx context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readUsers()
}

// SaveRoster сливает ростер с текущим содержимым файла, чтобы не потерять
// активность, записанную вебхуком во время прогона.
func (f *FileStore) SaveRoster(ctx context.Context, users []domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, err := f.readUsers()
	if err != nil {
		return err
	}
	return writeJSON(f.usersPath, domain.MergeRoster(current, users))
}

// RecordActivity реализует domain.ActivityRecorder.
func (f *FileStore) RecordActivity(ctx context.Context, users []domain.User) error {
	return f.SaveRoster(ctx, users)
}

// SaveRunSummary перезаписывает stats.json.
func (f *FileStore) SaveRunSummary(ctx context.Context, summary domain.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSON(f.statsPath, summary)
}

// LastRunSummary читает stats.json.
func (f *FileStore) LastRunSummary(ctx context.Context) (domain.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var summary domain.RunSummary
	raw, err := os.ReadFile(f.statsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("чтение статистики: %w", err)
	}
	if err := json.Unmarshal(raw, &summary); err != nil {
		return summary, fmt.Errorf("разбор статистики: %w", err)
	}
	return summary, nil
}

func (f *FileStore) readUsers() ([]domain.User, error) {
	raw, err := os.ReadFile(f.usersPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение ростера: %w", err)
	}
	var users []domain.User
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("разбор ростера: %w", err)
	}
	return users, nil
}

// writeJSON пишет через временный файл и rename.
func writeJSON(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("временный файл: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FilePause считает паузу включённой, пока существует файл-флаг.
type FilePause struct {
	path string
}

var _ domain.PauseFlag = (*FilePause)(nil)

// NewFilePause создаёт файловый флаг паузы.
func NewFilePause(path string) *FilePause {
	return &FilePause{path: path}
}

// IsPaused реализует domain.PauseFlag.
func (p *FilePause) IsPaused(ctx context.Context) (bool, error) {
	_, err := os.Stat(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetPaused создаёт или удаляет файл-флаг.
func (p *FilePause) SetPaused(ctx context.Context, paused bool) error {
	if paused {
		return os.WriteFile(p.path, []byte("paused\n"), 0o644)
	}
	err := os.Remove(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
