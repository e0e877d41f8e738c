package api_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/supportchat/internal/api"
	"github.com/supportchat/internal/backendstub"
	"github.com/supportchat/internal/identity"
	"github.com/supportchat/internal/model"

	"net/http/httptest"
)

func newTestClient(t *testing.T) (*api.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(backendstub.New(backendstub.Options{PingInterval: time.Hour}).Router())
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL, 5*time.Second), srv
}

func TestRegisterAndMessageRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	userID := identity.Generate()

	if err := client.RegisterUser(ctx, userID, "Олег"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	// повторная регистрация идемпотентна
	if err := client.RegisterUser(ctx, userID, "Олег"); err != nil {
		t.Fatalf("повторный RegisterUser: %v", err)
	}

	if err := client.SendMessage(ctx, userID, model.SenderCustomer, model.MessageTypeText, "первое"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := client.SendMessage(ctx, userID, model.SenderAdmin, model.MessageTypeText, "второе"); err != nil {
		t.Fatalf("SendMessage от админа: %v", err)
	}

	msgs, err := client.FetchMessages(ctx, userID)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("ожидалось 2 сообщения, получено %d", len(msgs))
	}
	if msgs[0].Content != "первое" || msgs[0].SenderType != model.SenderCustomer {
		t.Errorf("первое сообщение искажено: %+v", msgs[0])
	}
	if msgs[1].Content != "второе" || msgs[1].SenderType != model.SenderAdmin {
		t.Errorf("второе сообщение искажено: %+v", msgs[1])
	}
	if msgs[0].ID >= msgs[1].ID {
		t.Errorf("история должна идти от старых к новым: id %d, %d", msgs[0].ID, msgs[1].ID)
	}
}

func TestRegisterRejectsBadID(t *testing.T) {
	client, _ := newTestClient(t)
	if err := client.RegisterUser(context.Background(), "not-an-id", "x"); err == nil {
		t.Fatal("ожидалась ошибка для некорректного идентификатора")
	}
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	userID := identity.Generate()
	if err := client.RegisterUser(ctx, userID, "x"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if err := client.SendMessage(ctx, userID, model.SenderCustomer, model.MessageTypeText, "   "); err == nil {
		t.Fatal("пустой текст должен отклоняться сервером")
	}
}

func TestUploadMedia(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	userID := identity.Generate()
	if err := client.RegisterUser(ctx, userID, "x"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	err := client.UploadMedia(ctx, api.MediaImage, userID, model.SenderCustomer, "photo.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("UploadMedia image: %v", err)
	}
	err = client.UploadMedia(ctx, api.MediaVoice, userID, model.SenderAdmin, "note.wav", strings.NewReader("wav-bytes"))
	if err != nil {
		t.Fatalf("UploadMedia voice: %v", err)
	}
	// недопустимое расширение
	err = client.UploadMedia(ctx, api.MediaImage, userID, model.SenderCustomer, "doc.pdf", strings.NewReader("pdf"))
	if err == nil {
		t.Fatal("pdf не должен приниматься как изображение")
	}

	msgs, err := client.FetchMessages(ctx, userID)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("ожидалось 2 медиасообщения, получено %d", len(msgs))
	}
	if msgs[0].MessageType != model.MessageTypeImage || !strings.HasPrefix(msgs[0].Content, "static/uploads/image/") {
		t.Errorf("изображение: %+v", msgs[0])
	}
	if msgs[1].MessageType != model.MessageTypeVoice || msgs[1].SenderType != model.SenderAdmin {
		t.Errorf("голосовое: %+v", msgs[1])
	}
}

func TestAdminAuthFlow(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	// без токена привилегированные вызовы закрыты
	if _, err := client.ListUsers(ctx); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("ожидался ErrUnauthorized, получено %v", err)
	}

	grant, err := client.RequestOTP(ctx)
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if grant.Token == "" || grant.OTP == "" {
		t.Fatalf("dev-заглушка должна вернуть токен и эхо кода: %+v", grant)
	}

	// неверный код отклоняется
	if _, err := client.VerifyOTP(ctx, "000000", grant.Token); err == nil {
		if grant.OTP != "000000" {
			t.Fatal("неверный код должен отклоняться")
		}
	}

	grant, err = client.RequestOTP(ctx)
	if err != nil {
		t.Fatalf("повторный RequestOTP: %v", err)
	}
	token, err := client.VerifyOTP(ctx, grant.OTP, grant.Token)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	client.SetAdminToken(token)

	if _, err := client.ListUsers(ctx); err != nil {
		t.Fatalf("ListUsers с токеном: %v", err)
	}
	stats, err := client.FetchStats(ctx)
	if err != nil {
		t.Fatalf("FetchStats: %v", err)
	}
	if stats.TotalUsers != 0 {
		t.Errorf("в чистой заглушке нет пользователей: %+v", stats)
	}

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	// серверная сессия закрыта, токен больше не действует
	if _, err := client.ListUsers(ctx); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("после logout ожидался ErrUnauthorized, получено %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	userID := identity.Generate()
	if err := client.RegisterUser(ctx, userID, "жертва"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if err := client.SendMessage(ctx, userID, model.SenderCustomer, model.MessageTypeText, "привет"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	grant, err := client.RequestOTP(ctx)
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	token, err := client.VerifyOTP(ctx, grant.OTP, grant.Token)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	client.SetAdminToken(token)

	users, err := client.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("ожидался один пользователь: %v, %v", users, err)
	}
	if users[0].UnreadCount != 1 || users[0].LastMessage == nil {
		t.Errorf("карточка пользователя: %+v", users[0])
	}

	if err := client.DeleteUser(ctx, userID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	users, err = client.ListUsers(ctx)
	if err != nil || len(users) != 0 {
		t.Fatalf("после удаления список должен быть пуст: %v, %v", users, err)
	}
}
