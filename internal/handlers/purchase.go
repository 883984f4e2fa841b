package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/okisilev/tg-askeza/internal/lifecycle"
	"github.com/okisilev/tg-askeza/internal/messages"
	"github.com/okisilev/tg-askeza/types"
)

func (bh *Handlers) handlePurchase(ctx context.Context, b *bot.Bot, update *models.Update, productStr string) {
	chatID := getChatIDFromUpdate(update)
	userID := update.CallbackQuery.From.ID
	messageID := 0
	if update.CallbackQuery.Message.Message != nil {
		messageID = update.CallbackQuery.Message.Message.ID
	}

	productType, ok := types.ParseProductType(productStr)
	if !ok {
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		return
	}
	info, err := bh.catalog.Get(productType)
	if err != nil {
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		return
	}

	checkout, err := bh.lifecycle.InitiatePurchase(ctx, userID, productType)
	if err != nil {
		log.Printf("Handlers: purchase %q for user %d failed: %v", productType, userID, err)
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
		bh.editOrSend(ctx, b, chatID, messageID, messages.PaymentCreateFailed(), backToPaymentKeyboard())
		return
	}

	bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
	keyboard := models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: pad("💳 Оплатить"), URL: checkout.ConfirmationURL}},
		{{Text: pad("🔍 Проверить статус"), CallbackData: "check_access"}},
		{{Text: pad("🔙 Назад"), CallbackData: "payment"}},
	}}
	bh.editOrSend(ctx, b, chatID, messageID, messages.PaymentCreated(info.Title, info.PriceKopeks), keyboard)
}

// handleCheckAccess is the "I paid" button: poll the cached checkout once
// and show where the payment landed.
func (bh *Handlers) handleCheckAccess(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := getChatIDFromUpdate(update)
	userID := update.CallbackQuery.From.ID
	messageID := 0
	if update.CallbackQuery.Message.Message != nil {
		messageID = update.CallbackQuery.Message.Message.ID
	}

	status, err := bh.lifecycle.CheckPendingCheckout(ctx, userID)
	bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
	switch {
	case errors.Is(err, lifecycle.ErrNoPendingCheckout):
		grants, gerr := bh.lifecycle.CheckAccess(ctx, userID)
		if gerr == nil && len(grants) > 0 {
			bh.editOrSend(ctx, b, chatID, messageID, messages.AccessStatusActive(grants), bh.buildMainMenu(ctx, userID))
			return
		}
		bh.editOrSend(ctx, b, chatID, messageID, messages.NoPendingPayment(), backToPaymentKeyboard())
	case err != nil:
		log.Printf("Handlers: checkout check for user %d failed: %v", userID, err)
		bh.editOrSend(ctx, b, chatID, messageID, messages.ErrorDefault(), backToPaymentKeyboard())
	case status == types.PaymentSucceeded:
		// The lifecycle already notified and sent invites; refresh the menu.
		bh.editOrSend(ctx, b, chatID, messageID, messages.MainMenuText(), bh.buildMainMenu(ctx, userID))
	case status == types.PaymentCanceled:
		bh.editOrSend(ctx, b, chatID, messageID, messages.PaymentCanceledNotice(), backToPaymentKeyboard())
	default:
		bh.editOrSend(ctx, b, chatID, messageID, messages.PaymentStillPending(), backToPaymentKeyboard())
	}
}

func (bh *Handlers) sendPaymentHistory(ctx context.Context, b *bot.Bot, chatID int64, messageID int, userID int64) {
	payments, err := bh.store.ListPaymentsByUser(ctx, userID)
	if err != nil {
		log.Printf("Handlers: payment history for user %d failed: %v", userID, err)
		bh.editOrSend(ctx, b, chatID, messageID, messages.ErrorDefault(), backToPaymentKeyboard())
		return
	}
	if len(payments) == 0 {
		bh.editOrSend(ctx, b, chatID, messageID, messages.PaymentHistoryEmpty(), backToPaymentKeyboard())
		return
	}
	lines := make([]string, 0, len(payments)+1)
	lines = append(lines, messages.PaymentHistoryHeader())
	for _, p := range payments {
		lines = append(lines, messages.PaymentHistoryLine(p))
	}
	bh.editOrSend(ctx, b, chatID, messageID, strings.Join(lines, "\n"), backToPaymentKeyboard())
}

// handleInviteRequest issues an invite link for the channel or chat,
// gated on an active grant covering that chat.
func (bh *Handlers) handleInviteRequest(ctx context.Context, b *bot.Bot, update *models.Update, channel bool) {
	chatID := getChatIDFromUpdate(update)
	userID := update.CallbackQuery.From.ID

	grants, err := bh.lifecycle.CheckAccess(ctx, userID)
	if err != nil || len(grants) == 0 {
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "Доступ не оформлен")
		return
	}

	targetChatID := int64(0)
	title := "Закрытый чат"
	if channel {
		title = "Закрытый канал"
	}
	for _, g := range grants {
		info, err := bh.catalog.Get(g.Product)
		if err != nil {
			continue
		}
		if channel && info.ChannelID != 0 {
			targetChatID = info.ChannelID
			break
		}
		if !channel && info.ChatID != 0 {
			targetChatID = info.ChatID
			break
		}
	}
	if targetChatID == 0 {
		bh.answerCallback(ctx, b, update.CallbackQuery.ID, "Доступ не оформлен")
		return
	}

	bh.answerCallback(ctx, b, update.CallbackQuery.ID, "")
	url, err := bh.messenger.CreateInviteLink(ctx, targetChatID)
	if err != nil {
		log.Printf("Handlers: invite link for user %d, chat %d failed: %v", userID, targetChatID, err)
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      messages.InviteUnavailable(),
			ParseMode: messages.ParseModeHTML,
		})
		return
	}
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      messages.InviteLinkMessage(title, url),
		ParseMode: messages.ParseModeHTML,
	})
}

func backToPaymentKeyboard() models.InlineKeyboardMarkup {
	return models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: pad("🔙 Назад"), CallbackData: "payment"}},
	}}
}
