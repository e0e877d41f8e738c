package identity

import (
	"context"
	"crypto/rand"
	"math/big"
	"regexp"
	"strconv"
	"time"
)

// Identity — сохранённая пара идентификатор/имя (аналог localStorage браузерного виджета).
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Store — долговременное хранилище идентификатора клиента.
// Реализации: file.Store (по умолчанию), redis.Store, memory.Store (тесты, -dev).
type Store interface {
	// Load возвращает (nil, nil), если идентификатор ещё не сохранён.
	Load(ctx context.Context) (*Identity, error)
	Save(ctx context.Context, id Identity) error
	Clear(ctx context.Context) error
	Close() error
}

// DefaultName используется, когда клиент не ввёл имя.
const DefaultName = "Anonim"

const (
	idPrefix     = "user_"
	suffixLen    = 9
	suffixDigits = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var idRegexp = regexp.MustCompile(`^user_\d+_[0-9a-z]{9}$`)

// Generate создаёт новый идентификатор: user_<unix millis>_<9 случайных base36>.
// Уникальность вероятностная, сервер дополнительно делает upsert при регистрации.
func Generate() string {
	b := make([]byte, suffixLen)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(suffixDigits))))
		b[i] = suffixDigits[n.Int64()]
	}
	return idPrefix + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + string(b)
}

// Valid проверяет формат идентификатора (тот же формат принимает сервер).
func Valid(id string) bool {
	return idRegexp.MatchString(id)
}
