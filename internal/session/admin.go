package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/supportchat/internal/api"
	"github.com/supportchat/internal/logger"
	"github.com/supportchat/internal/model"
	"github.com/supportchat/internal/recorder"
	"github.com/supportchat/internal/render"
	"github.com/supportchat/internal/stream"
)

// Admin — контроллер админской сессии: OTP-вход, токен только в памяти,
// в любой момент открыт не больше одного чата (и одной подписки).
type Admin struct {
	client  *api.Client
	streams *stream.Manager

	mu         sync.Mutex
	activeChat string
	chatView   *render.View
}

func NewAdmin(client *api.Client, streams *stream.Manager) *Admin {
	return &Admin{client: client, streams: streams}
}

// Login проходит две ступени входа: запрос кода и его проверка.
// devNotice получает dev-эхо кода, если бэкенд его вернул (только разработка).
func (a *Admin) Login(ctx context.Context, promptOTP Prompter, devNotice func(otp string)) error {
	grant, err := a.client.RequestOTP(ctx)
	if err != nil {
		return fmt.Errorf("request otp: %w", err)
	}
	if grant.OTP != "" && devNotice != nil {
		devNotice(grant.OTP)
	}
	otp, err := promptOTP("Код подтверждения")
	if err != nil {
		return err
	}
	token, err := a.client.VerifyOTP(ctx, otp, grant.Token)
	if err != nil {
		return err
	}
	a.client.SetAdminToken(token)
	return nil
}

// Authenticated — есть ли действующий токен.
func (a *Admin) Authenticated() bool {
	return a.client.AdminToken() != ""
}

// Logout завершает сессию на сервере и сбрасывает токен и подписки.
// Токен инвалидируется даже при сетевой ошибке.
func (a *Admin) Logout(ctx context.Context) {
	if err := a.client.Logout(ctx); err != nil {
		logger.Errorf("admin: logout: %v", err)
	}
	a.client.SetAdminToken("")
	a.mu.Lock()
	a.activeChat = ""
	a.chatView = nil
	a.mu.Unlock()
	a.streams.CloseAll()
}

// OpenChat показывает историю пользователя и открывает подписку на его поток.
// Подписка предыдущего чата закрывается — потоки не накапливаются.
func (a *Admin) OpenChat(ctx context.Context, user model.User, view *render.View) error {
	a.mu.Lock()
	prev := a.activeChat
	a.activeChat = user.ID
	a.chatView = view
	a.mu.Unlock()
	if prev != "" && prev != user.ID {
		a.streams.Unsubscribe(prev)
	}

	view.SetCustomerName(user.Name)
	msgs, err := a.client.FetchMessages(ctx, user.ID)
	if err != nil {
		return err
	}
	view.Reset("", msgs)

	userID := user.ID
	a.streams.Subscribe(userID, func(msg model.Message) {
		a.mu.Lock()
		active := a.activeChat == userID
		v := a.chatView
		a.mu.Unlock()
		// события чужого экрана не рисуем
		if active && v != nil {
			v.Append(msg)
		}
	})
	return nil
}

// CloseChat закрывает текущий чат и его подписку.
func (a *Admin) CloseChat() {
	a.mu.Lock()
	id := a.activeChat
	a.activeChat = ""
	a.chatView = nil
	a.mu.Unlock()
	if id != "" {
		a.streams.Unsubscribe(id)
	}
}

// ActiveChat возвращает id пользователя открытого чата ("" — чат не открыт).
func (a *Admin) ActiveChat() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeChat
}

// SendText отправляет ответ оператора. Локального эха нет: сообщение придёт
// событием из открытой подписки.
func (a *Admin) SendText(ctx context.Context, text string) error {
	id := a.ActiveChat()
	if id == "" {
		return fmt.Errorf("chat is not open")
	}
	return a.client.SendMessage(ctx, id, model.SenderAdmin, model.MessageTypeText, text)
}

// SendImage загружает изображение в открытый чат.
func (a *Admin) SendImage(ctx context.Context, filename string, r io.Reader) error {
	id := a.ActiveChat()
	if id == "" {
		return fmt.Errorf("chat is not open")
	}
	return a.client.UploadMedia(ctx, api.MediaImage, id, model.SenderAdmin, filename, r)
}

// SendVoice загружает голосовое сообщение оператора в открытый чат.
func (a *Admin) SendVoice(ctx context.Context, clip recorder.Clip) error {
	id := a.ActiveChat()
	if id == "" {
		return fmt.Errorf("chat is not open")
	}
	name := "voice." + extByMIME(clip.MIME)
	return a.client.UploadMedia(ctx, api.MediaVoice, id, model.SenderAdmin, name, bytes.NewReader(clip.Data))
}
