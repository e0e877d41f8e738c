package render_test

import (
	"strings"
	"testing"
	"time"

	"github.com/supportchat/internal/model"
	"github.com/supportchat/internal/render"
)

func TestLastMessagePreviewNil(t *testing.T) {
	if got := render.LastMessagePreview(nil); got != "Сообщений пока нет" {
		t.Fatalf("превью без сообщений: %q", got)
	}
}

func TestLastMessagePreviewTruncation(t *testing.T) {
	exactly30 := strings.Repeat("п", 30)
	over := strings.Repeat("п", 31)

	msg := &model.Message{MessageType: model.MessageTypeText, Content: exactly30}
	if got := render.LastMessagePreview(msg); got != exactly30 {
		t.Errorf("строка ровно в 30 символов не должна обрезаться: %q", got)
	}

	msg.Content = over
	got := render.LastMessagePreview(msg)
	if got != exactly30+"..." {
		t.Errorf("31 символ должен обрезаться до 30 + многоточие, получено %q", got)
	}
}

func TestLastMessagePreviewMedia(t *testing.T) {
	img := &model.Message{MessageType: model.MessageTypeImage, Content: "static/uploads/image/a.png"}
	if got := render.LastMessagePreview(img); got != "📷 Прислал(а) фото" {
		t.Errorf("превью изображения: %q", got)
	}
	voice := &model.Message{MessageType: model.MessageTypeVoice, Content: "static/uploads/voice/a.wav"}
	if got := render.LastMessagePreview(voice); got != "🎤 Прислал(а) голосовое сообщение" {
		t.Errorf("превью голосового: %q", got)
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "сейчас"},
		{5 * time.Minute, "5м"},
		{59 * time.Minute, "59м"},
		{3 * time.Hour, "3ч"},
		{48 * time.Hour, "2д"},
	}
	for _, c := range cases {
		if got := render.RelativeTime(now.Add(-c.ago), now); got != c.want {
			t.Errorf("RelativeTime(-%v) = %q, ожидалось %q", c.ago, got, c.want)
		}
	}
}

func TestRosterLine(t *testing.T) {
	now := time.Now()
	u := model.User{
		ID:          "user_1_000000000",
		Name:        "Иван",
		LastSeen:    now.Add(-2 * time.Minute),
		UnreadCount: 3,
		LastMessage: &model.Message{MessageType: model.MessageTypeText, Content: "привет"},
	}
	line := render.RosterLine(u, true, now)
	for _, want := range []string{"[x]", "Иван", "(3)", "привет", "2м"} {
		if !strings.Contains(line, want) {
			t.Errorf("в строке %q нет %q", line, want)
		}
	}
	line = render.RosterLine(u, false, now)
	if !strings.Contains(line, "[ ]") {
		t.Errorf("невыбранный пользователь должен получить пустую пометку: %q", line)
	}
}
