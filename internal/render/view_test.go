package render_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/supportchat/internal/model"
	"github.com/supportchat/internal/render"
)

func TestFormatBody(t *testing.T) {
	text := model.Message{MessageType: model.MessageTypeText, Content: "просто текст"}
	if got := render.FormatBody(text); got != "просто текст" {
		t.Errorf("текст должен выводиться как есть: %q", got)
	}
	img := model.Message{MessageType: model.MessageTypeImage, Content: "static/uploads/image/a.png"}
	if got := render.FormatBody(img); got != "📷 /static/uploads/image/a.png" {
		t.Errorf("изображение: %q", got)
	}
	// уже абсолютный путь не должен задваивать слэш
	img.Content = "/static/uploads/image/a.png"
	if got := render.FormatBody(img); got != "📷 /static/uploads/image/a.png" {
		t.Errorf("изображение с абсолютным путём: %q", got)
	}
}

func TestViewAppendOrder(t *testing.T) {
	var buf bytes.Buffer
	v := render.NewView(&buf)
	v.SetCustomerName("maria")

	ts := time.Now()
	v.Reset(render.WelcomeBanner, []model.Message{
		{SenderType: model.SenderCustomer, MessageType: model.MessageTypeText, Content: "первое", CreatedAt: ts},
		{SenderType: model.SenderAdmin, MessageType: model.MessageTypeText, Content: "второе", CreatedAt: ts},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("ожидалось 3 строки (баннер + 2 сообщения), получено %d: %q", len(lines), lines)
	}
	if lines[0] != render.WelcomeBanner {
		t.Errorf("первая строка должна быть баннером: %q", lines[0])
	}
	if !strings.Contains(lines[1], "первое") || !strings.Contains(lines[2], "второе") {
		t.Errorf("сообщения не в хронологическом порядке: %q", lines)
	}
	if !strings.Contains(lines[1], "M") {
		t.Errorf("аватар клиента — первая буква имени в верхнем регистре: %q", lines[1])
	}
	if !strings.Contains(lines[2], "🛡️") {
		t.Errorf("сообщение админа должно нести значок поддержки: %q", lines[2])
	}
}

func TestViewPendingMarks(t *testing.T) {
	var buf bytes.Buffer
	v := render.NewView(&buf)

	msg := model.Message{SenderType: model.SenderCustomer, MessageType: model.MessageTypeText, Content: "оптимизм", CreatedAt: time.Now()}
	v.AppendPending(msg, model.DeliveryPending)
	v.AppendPending(msg, model.DeliveryFailed)

	out := buf.String()
	if !strings.Contains(out, "…") {
		t.Errorf("ожидалась пометка ожидания: %q", out)
	}
	if !strings.Contains(out, "не доставлено") {
		t.Errorf("ожидалась пометка сбоя: %q", out)
	}
}
