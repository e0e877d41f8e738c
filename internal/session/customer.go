// Package session — контроллеры сессий: клиентская (идентификатор, история,
// отправка с локальным статусом доставки) и админская (OTP-вход, открытый чат).
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/supportchat/internal/api"
	"github.com/supportchat/internal/identity"
	"github.com/supportchat/internal/logger"
	"github.com/supportchat/internal/model"
	"github.com/supportchat/internal/recorder"
	"github.com/supportchat/internal/render"
	"github.com/supportchat/internal/stream"
)

// Prompter запрашивает строку у человека (имя при первом запуске, код OTP).
type Prompter func(prompt string) (string, error)

// Outgoing — исходящее сообщение с локальным статусом: после неудачной отправки
// сообщение не убирается из вида, а помечается failed.
type Outgoing struct {
	Message model.Message
	Status  model.DeliveryStatus
}

// Customer — контроллер клиентской сессии. Всё состояние явное, без глобальных
// переменных: идентификатор, исходящие, подписка на поток.
type Customer struct {
	store             identity.Store
	client            *api.Client
	streams           *stream.Manager
	view              *render.View
	realtime          bool
	mediaRefreshDelay time.Duration

	mu     sync.Mutex
	id     *identity.Identity
	outbox []Outgoing
}

func NewCustomer(store identity.Store, client *api.Client, streams *stream.Manager, view *render.View, realtime bool, mediaRefreshDelay time.Duration) *Customer {
	return &Customer{
		store:             store,
		client:            client,
		streams:           streams,
		view:              view,
		realtime:          realtime,
		mediaRefreshDelay: mediaRefreshDelay,
	}
}

// Identity возвращает текущий идентификатор (nil до Start).
func (c *Customer) Identity() *identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Outbox возвращает снимок исходящих сообщений с их статусами.
func (c *Customer) Outbox() []Outgoing {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outgoing, len(c.outbox))
	copy(out, c.outbox)
	return out
}

// Start восстанавливает или создаёт идентификатор, регистрирует пользователя
// (только при первом запуске) и загружает историю. Неудачная регистрация не
// блокирует чат — только уведомление.
func (c *Customer) Start(ctx context.Context, prompt Prompter) error {
	id, err := c.store.Load(ctx)
	if err != nil {
		logger.Errorf("session: identity load: %v", err)
	}
	if id == nil {
		name := ""
		if prompt != nil {
			name, err = prompt("Как вас зовут?")
			if err != nil {
				return err
			}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = identity.DefaultName
		}
		id = &identity.Identity{UserID: identity.Generate(), Name: name}
		if err := c.store.Save(ctx, *id); err != nil {
			logger.Errorf("session: identity save: %v", err)
			c.view.Notice("Не удалось сохранить сессию")
		}
		if err := c.client.RegisterUser(ctx, id.UserID, id.Name); err != nil {
			logger.Errorf("session: register: %v", err)
			c.view.Notice("Регистрация не удалась")
		}
	}
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
	c.view.SetCustomerName(id.Name)

	if err := c.LoadHistory(ctx); err != nil {
		logger.Errorf("session: history: %v", err)
		c.view.Notice("Не удалось загрузить историю")
	}

	// Live-доставка для клиента включается явно (realtime в конфиге);
	// по умолчанию история загружается один раз, без push-обновлений.
	if c.realtime {
		c.streams.Subscribe(id.UserID, c.handleStreamEvent)
	}
	return nil
}

// LoadHistory перечитывает полную историю и перерисовывает список.
func (c *Customer) LoadHistory(ctx context.Context) error {
	id := c.Identity()
	if id == nil {
		return fmt.Errorf("session not started")
	}
	msgs, err := c.client.FetchMessages(ctx, id.UserID)
	if err != nil {
		return err
	}
	c.view.Reset(render.WelcomeBanner, msgs)
	return nil
}

// handleStreamEvent сверяет входящее событие с исходящими: эхо собственного
// сообщения подтверждает pending-запись и не рисуется второй раз.
func (c *Customer) handleStreamEvent(msg model.Message) {
	if msg.SenderType == model.SenderCustomer {
		c.mu.Lock()
		for i := range c.outbox {
			o := &c.outbox[i]
			if o.Status == model.DeliveryPending && o.Message.Content == msg.Content && o.Message.MessageType == msg.MessageType {
				o.Status = model.DeliveryConfirmed
				c.mu.Unlock()
				return
			}
		}
		c.mu.Unlock()
	}
	c.view.Append(msg)
}

// SendText рисует сообщение сразу (pending) и отправляет. При неудаче запись
// остаётся видимой и помечается failed — отката нет, только уведомление.
func (c *Customer) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	id := c.Identity()
	if id == nil {
		return fmt.Errorf("session not started")
	}
	msg := model.Message{
		UserID:      id.UserID,
		SenderType:  model.SenderCustomer,
		MessageType: model.MessageTypeText,
		Content:     text,
		CreatedAt:   time.Now(),
	}
	c.mu.Lock()
	c.outbox = append(c.outbox, Outgoing{Message: msg, Status: model.DeliveryPending})
	idx := len(c.outbox) - 1
	c.mu.Unlock()
	c.view.AppendPending(msg, model.DeliveryPending)

	err := c.client.SendMessage(ctx, id.UserID, model.SenderCustomer, model.MessageTypeText, text)
	c.mu.Lock()
	if err != nil {
		c.outbox[idx].Status = model.DeliveryFailed
	} else if c.outbox[idx].Status == model.DeliveryPending && !c.realtime {
		// без потока подтверждением служит сам ответ сервера
		c.outbox[idx].Status = model.DeliveryConfirmed
	}
	c.mu.Unlock()
	if err != nil {
		logger.Errorf("session: send: %v", err)
		c.view.Notice("Сообщение не доставлено")
		return err
	}
	return nil
}

// SendImage загружает изображение и через паузу перечитывает историю,
// чтобы увидеть сохранённую запись (ответ загрузки её не содержит).
func (c *Customer) SendImage(ctx context.Context, filename string, r io.Reader) error {
	id := c.Identity()
	if id == nil {
		return fmt.Errorf("session not started")
	}
	if err := c.client.UploadMedia(ctx, api.MediaImage, id.UserID, model.SenderCustomer, filename, r); err != nil {
		c.view.Notice("Не удалось отправить изображение")
		return err
	}
	c.view.Notice("Изображение отправлено")
	c.scheduleHistoryRefresh()
	return nil
}

// SendVoice загружает голосовую запись, собранную рекордером.
func (c *Customer) SendVoice(ctx context.Context, clip recorder.Clip) error {
	id := c.Identity()
	if id == nil {
		return fmt.Errorf("session not started")
	}
	name := "voice." + extByMIME(clip.MIME)
	if err := c.client.UploadMedia(ctx, api.MediaVoice, id.UserID, model.SenderCustomer, name, bytes.NewReader(clip.Data)); err != nil {
		c.view.Notice("Не удалось отправить запись")
		return err
	}
	c.view.Notice("Запись отправлена")
	c.scheduleHistoryRefresh()
	return nil
}

func (c *Customer) scheduleHistoryRefresh() {
	if c.realtime {
		// запись придёт событием из потока
		return
	}
	time.AfterFunc(c.mediaRefreshDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.LoadHistory(ctx); err != nil {
			logger.Errorf("session: refresh after upload: %v", err)
		}
	})
}

// Close закрывает подписки. Идентификатор НЕ очищается: клиентская сессия бессрочная.
func (c *Customer) Close() {
	c.streams.CloseAll()
	if err := c.store.Close(); err != nil {
		logger.Errorf("session: store close: %v", err)
	}
}

func extByMIME(mime string) string {
	switch mime {
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/mpeg":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	}
	return "bin"
}
