// Package render превращает записи сообщений в строки терминала.
// Преобразования чистые; View только дописывает и прокручивает вывод.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/supportchat/internal/model"
)

// FormatBody — чистое отображение содержимого: текст как есть, медиа —
// ссылка на относительный путь сервера.
func FormatBody(msg model.Message) string {
	switch msg.MessageType {
	case model.MessageTypeImage:
		return "📷 /" + strings.TrimPrefix(msg.Content, "/")
	case model.MessageTypeVoice:
		return "🎤 /" + strings.TrimPrefix(msg.Content, "/")
	default:
		return msg.Content
	}
}

// View — прокручиваемый список сообщений. Добавление всегда оставляет видимой
// новейшую запись (в терминале — пишет её последней строкой).
type View struct {
	mu           sync.Mutex
	w            io.Writer
	customerName string
}

func NewView(w io.Writer) *View {
	return &View{w: w, customerName: "A"}
}

// SetCustomerName задаёт имя клиента для подписи его сообщений.
func (v *View) SetCustomerName(name string) {
	v.mu.Lock()
	if name != "" {
		v.customerName = name
	}
	v.mu.Unlock()
}

func (v *View) avatar(sender model.SenderType) string {
	if sender == model.SenderAdmin {
		return "🛡️"
	}
	r := []rune(v.customerName)
	return strings.ToUpper(string(r[0]))
}

// Append дописывает одно сообщение в конец списка.
func (v *View) Append(msg model.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.w, "%s %s  %s\n", msg.CreatedAt.Local().Format("15:04"), v.avatar(msg.SenderType), FormatBody(msg))
}

// AppendPending дописывает своё сообщение с пометкой локального статуса доставки.
func (v *View) AppendPending(msg model.Message, status model.DeliveryStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	mark := ""
	switch status {
	case model.DeliveryPending:
		mark = " …"
	case model.DeliveryFailed:
		mark = " ⚠ не доставлено"
	}
	fmt.Fprintf(v.w, "%s %s  %s%s\n", msg.CreatedAt.Local().Format("15:04"), v.avatar(msg.SenderType), FormatBody(msg), mark)
}

// Reset перерисовывает список заново: баннер и вся история от старых к новым.
func (v *View) Reset(banner string, msgs []model.Message) {
	v.mu.Lock()
	if banner != "" {
		fmt.Fprintln(v.w, banner)
	}
	v.mu.Unlock()
	for _, m := range msgs {
		v.Append(m)
	}
}

// Notice печатает транзиентное уведомление (аналог toast).
func (v *View) Notice(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.w, "— %s —\n", s)
}

// WelcomeBanner — приветствие перед пустой историей клиента.
const WelcomeBanner = "👋 Добро пожаловать! Чем мы можем помочь?"
