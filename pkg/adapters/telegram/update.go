package telegram

import (
	"strconv"
	"strings"

	"github.com/aretw0/botflow/pkg/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Provider is the provider name Telegram sessions are keyed under.
const Provider = "telegram"

// ToContext converts a webhook update into the engine's inbound view. Only
// text messages and inline-button presses are understood; ok is false for
// anything else.
func ToContext(tenantID, botID, botToken string, update tgbotapi.Update) (uctx *domain.UniversalContext, ok bool) {
	var (
		from *tgbotapi.User
		chat *tgbotapi.Chat
		text string
	)
	switch {
	case update.Message != nil:
		from, chat, text = update.Message.From, update.Message.Chat, update.Message.Text
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		from, chat, text = update.CallbackQuery.From, update.CallbackQuery.Message.Chat, update.CallbackQuery.Data
	default:
		return nil, false
	}
	if from == nil || chat == nil {
		return nil, false
	}

	uctx = &domain.UniversalContext{
		TenantID: tenantID,
		Provider: Provider,
		UserID:   strconv.FormatInt(from.ID, 10),
		ChatID:   strconv.FormatInt(chat.ID, 10),
		BotID:    botID,
		BotToken: botToken,
		Metadata: domain.Metadata{
			LastInput: text,
			UserName:  displayName(from),
			Raw:       map[string]any{"update_id": update.UpdateID},
		},
	}
	if strings.HasPrefix(text, "/") {
		command, _, _ := strings.Cut(text, " ")
		command, _, _ = strings.Cut(command, "@")
		uctx.Metadata.Command = command
	}
	return uctx, true
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}
