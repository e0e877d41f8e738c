package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/supportchat/internal/identity"
)

// Store хранит идентификатор в JSON-файле в каталоге конфигурации пользователя.
// Переживает перезапуск клиента, как localStorage переживает перезагрузку страницы.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Close() error { return nil }

func (s *Store) Load(ctx context.Context) (*identity.Identity, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity read %s: %w", s.path, err)
	}
	var id identity.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("identity parse %s: %w", s.path, err)
	}
	if id.UserID == "" {
		return nil, nil
	}
	return &id, nil
}

func (s *Store) Save(ctx context.Context, id identity.Identity) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("identity mkdir: %w", err)
	}
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	// Запись через временный файл, чтобы обрыв не оставил битый JSON
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("identity write: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
