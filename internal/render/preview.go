package render

import (
	"fmt"
	"time"

	"github.com/supportchat/internal/model"
)

// previewMaxChars — бюджет превью в списке пользователей.
const previewMaxChars = 30

// EmptyRosterNotice показывается вместо пустого списка (это не ошибка).
const EmptyRosterNotice = "Пока нет пользователей"

// LastMessagePreview — короткое превью последнего сообщения для карточки
// пользователя: текст обрезается до 30 символов с многоточием, медиа
// заменяется подписью с иконкой.
func LastMessagePreview(msg *model.Message) string {
	if msg == nil {
		return "Сообщений пока нет"
	}
	switch msg.MessageType {
	case model.MessageTypeImage:
		return "📷 Прислал(а) фото"
	case model.MessageTypeVoice:
		return "🎤 Прислал(а) голосовое сообщение"
	case model.MessageTypeText:
		r := []rune(msg.Content)
		if len(r) > previewMaxChars {
			return string(r[:previewMaxChars]) + "..."
		}
		return msg.Content
	}
	return "Сообщение"
}

// RelativeTime — возраст последней активности крупными шагами: сейчас/мин/ч/д.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "сейчас"
	case d < time.Hour:
		return fmt.Sprintf("%dм", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dч", int(d.Hours()))
	default:
		return fmt.Sprintf("%dд", int(d.Hours()/24))
	}
}

// RosterLine — одна карточка пользователя в списке админа.
func RosterLine(u model.User, selected bool, now time.Time) string {
	mark := "[ ]"
	if selected {
		mark = "[x]"
	}
	badge := ""
	if u.UnreadCount > 0 {
		badge = fmt.Sprintf(" (%d)", u.UnreadCount)
	}
	return fmt.Sprintf("%s %s%s — %s · %s", mark, u.Name, badge, LastMessagePreview(u.LastMessage), RelativeTime(u.LastSeen, now))
}
