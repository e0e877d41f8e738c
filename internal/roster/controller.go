// Package roster — список пользователей админ-консоли: множественный выбор,
// массовое удаление, периодическое обновление списка и статистики.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/supportchat/internal/logger"
	"github.com/supportchat/internal/model"
)

var (
	// ErrNoSelection — массовое удаление без выбранных пользователей.
	ErrNoSelection = errors.New("no users selected")
	// ErrNotConfirmed — оператор отказался от подтверждения удаления.
	ErrNotConfirmed = errors.New("deletion not confirmed")
)

// Backend — операции транспорта, нужные контроллеру (реализуется api.Client).
type Backend interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	FetchStats(ctx context.Context) (*model.Stats, error)
	DeleteUser(ctx context.Context, userID string) error
}

// Controller держит состояние списка явно (не в глобальных переменных):
// пользователей, множество выбранных id и фильтр поиска.
type Controller struct {
	backend       Backend
	rosterRefresh time.Duration
	statsRefresh  time.Duration
	onUsers       func(users []model.User)
	onStats       func(stats model.Stats)

	mu       sync.Mutex
	users    []model.User
	selected map[string]struct{}
	filter   string
}

func NewController(backend Backend, rosterRefresh, statsRefresh time.Duration, onUsers func([]model.User), onStats func(model.Stats)) *Controller {
	if rosterRefresh <= 0 {
		rosterRefresh = 60 * time.Second
	}
	if statsRefresh <= 0 {
		statsRefresh = 30 * time.Second
	}
	return &Controller{
		backend:       backend,
		rosterRefresh: rosterRefresh,
		statsRefresh:  statsRefresh,
		onUsers:       onUsers,
		onStats:       onStats,
		selected:      make(map[string]struct{}),
	}
}

// Run сразу загружает список и статистику, затем обновляет их по независимым
// интервалам до отмены контекста.
func (c *Controller) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		logger.Errorf("roster: initial refresh: %v", err)
	}
	if err := c.RefreshStats(ctx); err != nil {
		logger.Errorf("roster: initial stats: %v", err)
	}
	rosterTicker := time.NewTicker(c.rosterRefresh)
	statsTicker := time.NewTicker(c.statsRefresh)
	defer rosterTicker.Stop()
	defer statsTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rosterTicker.C:
			if err := c.Refresh(ctx); err != nil {
				logger.Errorf("roster: refresh: %v", err)
			}
		case <-statsTicker.C:
			if err := c.RefreshStats(ctx); err != nil {
				logger.Errorf("roster: stats: %v", err)
			}
		}
	}
}

// Refresh перечитывает список пользователей с сервера и перерисовывает его.
func (c *Controller) Refresh(ctx context.Context) error {
	users, err := c.backend.ListUsers(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.users = users
	c.mu.Unlock()
	c.notifyUsers()
	return nil
}

// RefreshStats перечитывает сводные счётчики.
func (c *Controller) RefreshStats(ctx context.Context) error {
	stats, err := c.backend.FetchStats(ctx)
	if err != nil {
		return err
	}
	if c.onStats != nil {
		c.onStats(*stats)
	}
	return nil
}

func (c *Controller) notifyUsers() {
	if c.onUsers == nil {
		return
	}
	c.onUsers(c.Visible())
}

// Users возвращает срез всех загруженных пользователей.
func (c *Controller) Users() []model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.User, len(c.users))
	copy(out, c.users)
	return out
}

// Filter задаёт строку поиска: фильтрация только по видимости, без запроса к серверу.
func (c *Controller) Filter(term string) {
	c.mu.Lock()
	c.filter = strings.ToLower(strings.TrimSpace(term))
	c.mu.Unlock()
	c.notifyUsers()
}

// Visible возвращает пользователей, чьё имя содержит строку поиска
// (без учёта регистра). Пустой фильтр показывает всех.
func (c *Controller) Visible() []model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filter == "" {
		out := make([]model.User, len(c.users))
		copy(out, c.users)
		return out
	}
	var out []model.User
	for _, u := range c.users {
		if strings.Contains(strings.ToLower(u.Name), c.filter) {
			out = append(out, u)
		}
	}
	return out
}

// ToggleSelection переключает выбор одного пользователя.
func (c *Controller) ToggleSelection(userID string) {
	c.mu.Lock()
	if _, ok := c.selected[userID]; ok {
		delete(c.selected, userID)
	} else {
		c.selected[userID] = struct{}{}
	}
	c.mu.Unlock()
	c.notifyUsers()
}

// SelectAll выбирает всех; если выбраны уже все — снимает выбор полностью.
func (c *Controller) SelectAll() {
	c.mu.Lock()
	if len(c.selected) == len(c.users) {
		c.selected = make(map[string]struct{})
	} else {
		for _, u := range c.users {
			c.selected[u.ID] = struct{}{}
		}
	}
	c.mu.Unlock()
	c.notifyUsers()
}

// IsSelected сообщает, выбран ли пользователь.
func (c *Controller) IsSelected(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[userID]
	return ok
}

// Selected возвращает выбранные id.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.selected))
	for id := range c.selected {
		out = append(out, id)
	}
	return out
}

// DeleteSelected удаляет выбранных пользователей: по одному запросу на id,
// конкурентно, без порядка завершения. Список перечитывается и выбор
// сбрасывается независимо от частных неудач; наружу уходит только итог.
func (c *Controller) DeleteSelected(ctx context.Context, confirm func(n int) bool) error {
	ids := c.Selected()
	if len(ids) == 0 {
		return ErrNoSelection
	}
	if confirm != nil && !confirm(len(ids)) {
		return ErrNotConfirmed
	}

	var wg sync.WaitGroup
	var failMu sync.Mutex
	failed := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := c.backend.DeleteUser(ctx, id); err != nil {
				logger.Errorf("roster: delete %s: %v", id, err)
				failMu.Lock()
				failed++
				failMu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	c.mu.Lock()
	c.selected = make(map[string]struct{})
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		logger.Errorf("roster: refresh after delete: %v", err)
	}
	if failed > 0 {
		return fmt.Errorf("удалено %d из %d пользователей", len(ids)-failed, len(ids))
	}
	return nil
}
