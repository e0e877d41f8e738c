package session_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/supportchat/internal/api"
	"github.com/supportchat/internal/backendstub"
	"github.com/supportchat/internal/identity"
	"github.com/supportchat/internal/identity/memory"
	"github.com/supportchat/internal/model"
	"github.com/supportchat/internal/recorder"
	"github.com/supportchat/internal/render"
	"github.com/supportchat/internal/session"
	"github.com/supportchat/internal/stream"
)

type customerFixture struct {
	sess   *session.Customer
	store  *memory.Store
	client *api.Client
	out    *bytes.Buffer
}

func newCustomerFixture(t *testing.T, realtime bool) *customerFixture {
	t.Helper()
	srv := httptest.NewServer(backendstub.New(backendstub.Options{PingInterval: time.Hour}).Router())
	t.Cleanup(srv.Close)

	store := memory.New()
	client := api.NewClient(srv.URL, 5*time.Second)
	streams := stream.NewManager(srv.URL, 100*time.Millisecond)
	out := &bytes.Buffer{}
	view := render.NewView(out)
	sess := session.NewCustomer(store, client, streams, view, realtime, 10*time.Millisecond)
	t.Cleanup(sess.Close)
	return &customerFixture{sess: sess, store: store, client: client, out: out}
}

func TestCustomerStartNewIdentity(t *testing.T) {
	f := newCustomerFixture(t, false)
	ctx := context.Background()

	err := f.sess.Start(ctx, func(string) (string, error) { return "Мария", nil })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := f.sess.Identity()
	if id == nil || !identity.Valid(id.UserID) || id.Name != "Мария" {
		t.Fatalf("идентификатор после первого запуска: %+v", id)
	}
	saved, err := f.store.Load(ctx)
	if err != nil || saved == nil || saved.UserID != id.UserID {
		t.Fatalf("идентификатор должен сохраниться: %+v, %v", saved, err)
	}
	if !strings.Contains(f.out.String(), render.WelcomeBanner) {
		t.Error("пустая история должна открываться приветствием")
	}
}

func TestCustomerStartDefaultName(t *testing.T) {
	f := newCustomerFixture(t, false)
	if err := f.sess.Start(context.Background(), func(string) (string, error) { return "   ", nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := f.sess.Identity().Name; got != identity.DefaultName {
		t.Fatalf("пустое имя заменяется на %q, получено %q", identity.DefaultName, got)
	}
}

func TestCustomerStartExistingIdentity(t *testing.T) {
	f := newCustomerFixture(t, false)
	ctx := context.Background()
	want := identity.Identity{UserID: identity.Generate(), Name: "Старожил"}
	if err := f.store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	err := f.sess.Start(ctx, func(string) (string, error) {
		t.Fatal("при сохранённом идентификаторе имя не запрашивается")
		return "", nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := f.sess.Identity(); got == nil || got.UserID != want.UserID {
		t.Fatalf("повторный запуск должен переиспользовать идентификатор: %+v", got)
	}
}

func TestCustomerSendTextConfirmed(t *testing.T) {
	f := newCustomerFixture(t, false)
	ctx := context.Background()
	if err := f.sess.Start(ctx, func(string) (string, error) { return "x", nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.sess.SendText(ctx, "первое сообщение"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	outbox := f.sess.Outbox()
	if len(outbox) != 1 {
		t.Fatalf("в исходящих одна запись: %d", len(outbox))
	}
	if outbox[0].Status != model.DeliveryConfirmed {
		t.Fatalf("без потока ответ сервера подтверждает доставку: %s", outbox[0].Status)
	}

	msgs, err := f.client.FetchMessages(ctx, f.sess.Identity().UserID)
	if err != nil || len(msgs) != 1 || msgs[0].Content != "первое сообщение" {
		t.Fatalf("сообщение должно дойти до сервера: %+v, %v", msgs, err)
	}
	if msgs[0].SenderType != model.SenderCustomer {
		t.Errorf("sender_type: %s", msgs[0].SenderType)
	}
}

func TestCustomerSendTextEmpty(t *testing.T) {
	f := newCustomerFixture(t, false)
	ctx := context.Background()
	if err := f.sess.Start(ctx, func(string) (string, error) { return "x", nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.sess.SendText(ctx, "   "); err != nil {
		t.Fatalf("пустой ввод — тихий no-op: %v", err)
	}
	if len(f.sess.Outbox()) != 0 {
		t.Fatal("пустой ввод не попадает в исходящие")
	}
}

func TestCustomerSendTextFailureKeepsMessage(t *testing.T) {
	srv := httptest.NewServer(backendstub.New(backendstub.Options{PingInterval: time.Hour}).Router())
	store := memory.New()
	client := api.NewClient(srv.URL, 2*time.Second)
	streams := stream.NewManager(srv.URL, 100*time.Millisecond)
	out := &bytes.Buffer{}
	sess := session.NewCustomer(store, client, streams, render.NewView(out), false, 10*time.Millisecond)
	defer sess.Close()

	ctx := context.Background()
	if err := sess.Start(ctx, func(string) (string, error) { return "x", nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// сервер падает между запуском и отправкой
	srv.Close()
	if err := sess.SendText(ctx, "в пустоту"); err == nil {
		t.Fatal("отправка на мёртвый сервер должна вернуть ошибку")
	}
	outbox := sess.Outbox()
	if len(outbox) != 1 {
		t.Fatalf("неудачное сообщение остаётся в исходящих: %d", len(outbox))
	}
	if outbox[0].Status != model.DeliveryFailed {
		t.Fatalf("ожидался статус failed, получено %s", outbox[0].Status)
	}
	// запись осталась на экране, отката нет
	if !strings.Contains(out.String(), "в пустоту") {
		t.Error("неудачное сообщение не должно исчезать из вида")
	}
}

func TestCustomerRealtimeEchoConfirms(t *testing.T) {
	f := newCustomerFixture(t, true)
	ctx := context.Background()
	if err := f.sess.Start(ctx, func(string) (string, error) { return "x", nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// подписка должна открыться автоматически
	time.Sleep(100 * time.Millisecond)

	if err := f.sess.SendText(ctx, "эхо-тест"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		outbox := f.sess.Outbox()
		if len(outbox) == 1 && outbox[0].Status == model.DeliveryConfirmed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	outbox := f.sess.Outbox()
	if len(outbox) != 1 || outbox[0].Status != model.DeliveryConfirmed {
		t.Fatalf("эхо из потока должно подтвердить запись: %+v", outbox)
	}
	// собственное эхо не рисуется второй раз
	if got := strings.Count(f.out.String(), "эхо-тест"); got != 1 {
		t.Fatalf("сообщение должно быть на экране ровно один раз, найдено %d", got)
	}
}

func TestCustomerSendVoice(t *testing.T) {
	f := newCustomerFixture(t, false)
	ctx := context.Background()
	if err := f.sess.Start(ctx, func(string) (string, error) { return "x", nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clip := recorder.Clip{Data: []byte("wav-data"), MIME: "audio/wav", Duration: time.Second}
	if err := f.sess.SendVoice(ctx, clip); err != nil {
		t.Fatalf("SendVoice: %v", err)
	}
	msgs, err := f.client.FetchMessages(ctx, f.sess.Identity().UserID)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("голосовое должно сохраниться: %+v, %v", msgs, err)
	}
	if msgs[0].MessageType != model.MessageTypeVoice {
		t.Errorf("message_type: %s", msgs[0].MessageType)
	}
}
