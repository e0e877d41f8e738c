package stream_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/supportchat/internal/api"
	"github.com/supportchat/internal/backendstub"
	"github.com/supportchat/internal/identity"
	"github.com/supportchat/internal/model"
	"github.com/supportchat/internal/stream"
)

// collector копит сообщения обработчика подписки.
type collector struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (c *collector) handle(msg model.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *collector) snapshot() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *collector) waitFor(t *testing.T, n int) []model.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("не дождались %d сообщений, получено %d", n, len(c.snapshot()))
	return nil
}

func newStreamFixture(t *testing.T, ping time.Duration) (*stream.Manager, *api.Client, string) {
	t.Helper()
	srv := httptest.NewServer(backendstub.New(backendstub.Options{PingInterval: ping}).Router())
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL, 5*time.Second)
	userID := identity.Generate()
	if err := client.RegisterUser(context.Background(), userID, "тест"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	m := stream.NewManager(srv.URL, 100*time.Millisecond)
	t.Cleanup(m.CloseAll)
	return m, client, userID
}

func TestSubscribeDeliversMessages(t *testing.T) {
	m, client, userID := newStreamFixture(t, time.Hour)
	c := &collector{}
	if !m.Subscribe(userID, c.handle) {
		t.Fatal("первый Subscribe должен вернуть true")
	}
	// даём соединению установиться до отправки
	time.Sleep(100 * time.Millisecond)

	ctx := context.Background()
	if err := client.SendMessage(ctx, userID, model.SenderAdmin, model.MessageTypeText, "из потока"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got := c.waitFor(t, 1)
	if got[0].Content != "из потока" || got[0].SenderType != model.SenderAdmin {
		t.Errorf("событие искажено: %+v", got[0])
	}
}

func TestPingFiltered(t *testing.T) {
	m, client, userID := newStreamFixture(t, 20*time.Millisecond)
	c := &collector{}
	m.Subscribe(userID, c.handle)

	// несколько пингов успевают прийти, обработчику они не видны
	time.Sleep(200 * time.Millisecond)
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("ping не должен доходить до обработчика: %+v", got)
	}

	if err := client.SendMessage(context.Background(), userID, model.SenderCustomer, model.MessageTypeText, "живое"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got := c.waitFor(t, 1)
	if got[0].Content != "живое" {
		t.Errorf("ожидалось только живое сообщение: %+v", got)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	m, client, userID := newStreamFixture(t, time.Hour)
	var first, second atomic.Int64
	if !m.Subscribe(userID, func(model.Message) { first.Add(1) }) {
		t.Fatal("первый Subscribe должен вернуть true")
	}
	if m.Subscribe(userID, func(model.Message) { second.Add(1) }) {
		t.Fatal("повторный Subscribe должен быть no-op")
	}
	if m.Active() != 1 {
		t.Fatalf("ожидалась одна подписка, Active() = %d", m.Active())
	}
	time.Sleep(100 * time.Millisecond)

	if err := client.SendMessage(context.Background(), userID, model.SenderAdmin, model.MessageTypeText, "раз"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for first.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if first.Load() != 1 {
		t.Fatalf("ровно одна доставка первому обработчику, получено %d", first.Load())
	}
	if second.Load() != 0 {
		t.Fatalf("второй обработчик не должен был подключиться, получено %d", second.Load())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m, client, userID := newStreamFixture(t, time.Hour)
	c := &collector{}
	m.Subscribe(userID, c.handle)
	time.Sleep(100 * time.Millisecond)

	m.Unsubscribe(userID)
	if m.Subscribed(userID) {
		t.Fatal("после Unsubscribe подписки быть не должно")
	}

	if err := client.SendMessage(context.Background(), userID, model.SenderAdmin, model.MessageTypeText, "мимо"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("после отписки сообщений быть не должно: %+v", got)
	}

	// повторная подписка снова работает
	if !m.Subscribe(userID, c.handle) {
		t.Fatal("повторная подписка после Unsubscribe должна открыться")
	}
}

func TestCloseAll(t *testing.T) {
	m, _, userID := newStreamFixture(t, time.Hour)
	m.Subscribe(userID, func(model.Message) {})
	m.CloseAll()
	if m.Active() != 0 {
		t.Fatalf("после CloseAll подписок быть не должно: %d", m.Active())
	}
	if m.Subscribe(userID, func(model.Message) {}) {
		t.Fatal("закрытый менеджер не должен открывать подписки")
	}
}
