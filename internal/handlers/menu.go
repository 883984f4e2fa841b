package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/okisilev/tg-askeza/internal/contextkeys"
	"github.com/okisilev/tg-askeza/internal/messages"
)

func pad(s string) string { return " " + s + " " }

// buildMainMenu shows the gated buttons only when the user actually has
// access; everyone sees FAQ and the pay button.
func (bh *Handlers) buildMainMenu(ctx context.Context, userID int64) models.InlineKeyboardMarkup {
	hasAccess := false
	if grants, err := bh.lifecycle.CheckAccess(ctx, userID); err == nil && len(grants) > 0 {
		hasAccess = true
	}

	rows := [][]models.InlineKeyboardButton{
		{{Text: pad("❓ Вопрос/Ответ"), CallbackData: "faq"}},
	}
	if hasAccess {
		rows = append(rows,
			[]models.InlineKeyboardButton{{Text: pad("📺 Закрытый канал"), CallbackData: "private_channel"}},
			[]models.InlineKeyboardButton{{Text: pad("💬 Закрытый чат"), CallbackData: "private_chat"}},
		)
	}
	rows = append(rows, []models.InlineKeyboardButton{{Text: pad("💳 Оплатить доступ"), CallbackData: "payment"}})
	return models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (bh *Handlers) buildPaymentMenu() models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, 4)
	for _, info := range bh.catalog.All() {
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         pad(fmt.Sprintf("🔸 %s - %d₽", info.Title, info.PriceKopeks/100)),
			CallbackData: "pay_" + string(info.Type),
		}})
	}
	rows = append(rows,
		[]models.InlineKeyboardButton{{Text: pad("📋 Проверить платежи"), CallbackData: "check_payments"}},
		[]models.InlineKeyboardButton{{Text: pad("🔙 Назад"), CallbackData: "back_to_main"}},
	)
	return models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (bh *Handlers) sendMainMenu(ctx context.Context, b *bot.Bot, chatID, userID int64) {
	keyboard := bh.buildMainMenu(ctx, userID)
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        messages.MainMenuText(),
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: &keyboard,
	})
}

func (bh *Handlers) HandleClickButton(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	data, _ := contextkeys.GetCallbackData(ctx)
	if data == "" {
		data = update.CallbackQuery.Data
	}

	chatID := getChatIDFromUpdate(update)
	userID := update.CallbackQuery.From.ID
	messageID := 0
	if update.CallbackQuery.Message.Message != nil {
		messageID = update.CallbackQuery.Message.Message.ID
	}

	switch data {
	case "faq":
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		bh.editOrSend(ctx, b, chatID, messageID, messages.FAQText(), backKeyboard())
	case "payment":
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		keyboard := bh.buildPaymentMenu()
		bh.editOrSend(ctx, b, chatID, messageID, messages.PaymentOptionsText(), keyboard)
	case "pay_askeza", "pay_numerology":
		bh.handlePurchase(ctx, b, update, data[len("pay_"):])
	case "check_access":
		bh.handleCheckAccess(ctx, b, update)
	case "check_payments":
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		bh.sendPaymentHistory(ctx, b, chatID, messageID, userID)
	case "private_channel":
		bh.handleInviteRequest(ctx, b, update, true)
	case "private_chat":
		bh.handleInviteRequest(ctx, b, update, false)
	case "back_to_main":
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		keyboard := bh.buildMainMenu(ctx, userID)
		bh.editOrSend(ctx, b, chatID, messageID, messages.MainMenuText(), keyboard)
	default:
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		log.Printf("Handlers: unknown callback %q from user %d", data, userID)
	}
}

func backKeyboard() models.InlineKeyboardMarkup {
	return models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: pad("🔙 Назад"), CallbackData: "back_to_main"}},
	}}
}

// editOrSend edits the menu message in place and falls back to a fresh
// message when the original is gone.
func (bh *Handlers) editOrSend(ctx context.Context, b *bot.Bot, chatID int64, messageID int, text string, keyboard models.InlineKeyboardMarkup) {
	if messageID > 0 {
		_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ParseMode:   messages.ParseModeHTML,
			ReplyMarkup: &keyboard,
		})
		if err == nil {
			return
		}
	}
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: &keyboard,
	})
}
