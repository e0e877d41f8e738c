package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/supportchat/internal/identity"
)

// Ключ общий для всех терминалов одной стойки: идентификатор разделяется между ними.
const identityKey = "supportchat:identity"

// Store хранит идентификатор в Redis (несколько терминалов с общей сессией клиента).
type Store struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{cli: cli}, nil
}

func (s *Store) Close() error {
	return s.cli.Close()
}

func (s *Store) Load(ctx context.Context) (*identity.Identity, error) {
	val, err := s.cli.Get(ctx, identityKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var id identity.Identity
	if err := json.Unmarshal([]byte(val), &id); err != nil {
		return nil, fmt.Errorf("identity parse: %w", err)
	}
	return &id, nil
}

// Save сохраняет идентификатор без TTL: сессия клиента живёт бессрочно.
func (s *Store) Save(ctx context.Context, id identity.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.cli.Set(ctx, identityKey, data, 0).Err()
}

func (s *Store) Clear(ctx context.Context) error {
	return s.cli.Del(ctx, identityKey).Err()
}
