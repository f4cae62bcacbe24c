// Package tg — канал уведомлений через Telegram Bot API.
package tg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/observability"
)

// Считаем системными: 5xx, 429, timeout. 400-ки и типичные телеграм-валидации в Sentry не шлём.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	if strings.Contains(s, "Bad Request") ||
		strings.Contains(s, "chat not found") ||
		strings.Contains(s, "bot was blocked") ||
		strings.Contains(s, "can't parse entities") {
		return false
	}
	return strings.Contains(s, "429") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "timeout")
}

// sender — то, что нужно от *tgbotapi.BotAPI.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Channel реализует notify.Channel: контакт родителя — его chat id.
type Channel struct {
	bot sender
}

func NewChannel(bot *tgbotapi.BotAPI) *Channel { return &Channel{bot: bot} }

func (c *Channel) Send(ctx context.Context, contact, text string) error {
	chatID, err := ParseChatID(contact)
	if err != nil {
		return err
	}
	// у клиента Bot API нет ctx: проверяем отмену до запроса
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = c.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		if isSystemErr(err) {
			observability.Capture(err, map[string]string{"channel": "telegram", "op": ctxutil.Op(ctx)})
		}
		return fmt.Errorf("telegram send chat=%d: %w", chatID, err)
	}
	return nil
}

// ParseChatID: "123456", "-100123" (группы); пробелы по краям допустимы.
func ParseChatID(contact string) (int64, error) {
	s := strings.TrimSpace(contact)
	if s == "" {
		return 0, apperr.ErrNoContact
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Invalid("contact", fmt.Sprintf("not a telegram chat id: %q", contact))
	}
	return id, nil
}
