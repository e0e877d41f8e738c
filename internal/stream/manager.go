// Package stream — подписки на server-sent events бэкенда (/api/stream/{userId}).
// Инвариант: не больше одной живой подписки на user id; повторный Subscribe — no-op.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/supportchat/internal/model"
)

// Handler получает сообщения одной подписки в порядке отправки сервером.
// Служебные ping-события до обработчика не доходят.
type Handler func(msg model.Message)

type Manager struct {
	baseURL        string
	httpClient     *http.Client
	reconnectDelay time.Duration

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewManager создаёт менеджер подписок. У httpClient нет общего таймаута:
// соединение потока живёт, пока подписка не закрыта.
func NewManager(baseURL string, reconnectDelay time.Duration) *Manager {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &Manager{
		baseURL:        baseURL,
		httpClient:     &http.Client{},
		reconnectDelay: reconnectDelay,
		subs:           make(map[string]*Subscription),
	}
}

// Subscribe открывает поток для userID. Если подписка уже есть, ничего не
// делает и возвращает false (сообщения не дублируются).
func (m *Manager) Subscribe(userID string, h Handler) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.subs[userID]; ok {
		m.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		userID:         userID,
		url:            m.baseURL + "/api/stream/" + userID,
		httpClient:     m.httpClient,
		handler:        h,
		reconnectDelay: m.reconnectDelay,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	m.subs[userID] = sub
	m.mu.Unlock()

	go sub.run()
	return true
}

// Subscribed сообщает, открыта ли подписка для userID.
func (m *Manager) Subscribed(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[userID]
	return ok
}

// Active возвращает число открытых подписок.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Unsubscribe закрывает поток userID и ждёт завершения его горутины.
// Вызывается при выходе из чата или смене экрана — подписки не копятся.
func (m *Manager) Unsubscribe(userID string) {
	m.mu.Lock()
	sub, ok := m.subs[userID]
	if ok {
		delete(m.subs, userID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	<-sub.done
}

// CloseAll закрывает все подписки (выход из приложения).
func (m *Manager) CloseAll() {
	// Собираем под локом, сетевые операции — снаружи.
	m.mu.Lock()
	m.closed = true
	all := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		all = append(all, sub)
	}
	m.subs = make(map[string]*Subscription)
	m.mu.Unlock()

	for _, sub := range all {
		sub.cancel()
	}
	for _, sub := range all {
		<-sub.done
	}
}
