package handlers

import (
	"context"
	"log"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/okisilev/tg-askeza/internal/contextkeys"
	"github.com/okisilev/tg-askeza/internal/lifecycle"
	"github.com/okisilev/tg-askeza/internal/messages"
	"github.com/okisilev/tg-askeza/internal/product"
	"github.com/okisilev/tg-askeza/types"
)

type Handlers struct {
	lifecycle *lifecycle.Lifecycle
	store     types.AccessStore
	messenger lifecycle.Messenger
	catalog   *product.Catalog
}

func NewHandlers(lc *lifecycle.Lifecycle, store types.AccessStore, messenger lifecycle.Messenger, catalog *product.Catalog) *Handlers {
	return &Handlers{
		lifecycle: lc,
		store:     store,
		messenger: messenger,
		catalog:   catalog,
	}
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := getChatIDFromUpdate(update)
	messageType, _ := contextkeys.GetMessageType(ctx)

	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, b, update)
	case contextkeys.MessageTypeClickButton:
		bh.HandleClickButton(ctx, b, update)
	case contextkeys.MessageTypeText:
		// Free text gets the menu; the bot is button-driven.
		bh.sendMainMenu(ctx, b, chatID, userIDFromUpdate(update))
	default:
		if chatID != 0 {
			b.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:    chatID,
				Text:      messages.ErrorDefault(),
				ParseMode: messages.ParseModeHTML,
			})
		}
	}
}

func (bh *Handlers) HandleCommand(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	fields := strings.Fields(strings.TrimSpace(update.Message.Text))
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.Contains(cmd, "@") {
		cmd = strings.SplitN(cmd, "@", 2)[0]
	}

	switch cmd {
	case "/start":
		firstName := ""
		if update.Message.From != nil {
			firstName = update.Message.From.FirstName
		}
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      messages.StartWelcome(firstName),
			ParseMode: messages.ParseModeHTML,
		})
		bh.sendMainMenu(ctx, b, chatID, userIDFromUpdate(update))
	case "/menu":
		bh.sendMainMenu(ctx, b, chatID, userIDFromUpdate(update))
	case "/status":
		bh.sendAccessStatus(ctx, b, chatID, userIDFromUpdate(update))
	default:
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      messages.ErrorUnknownCommand(),
			ParseMode: messages.ParseModeHTML,
		})
	}
}

func (bh *Handlers) sendAccessStatus(ctx context.Context, b *bot.Bot, chatID, userID int64) {
	grants, err := bh.lifecycle.CheckAccess(ctx, userID)
	if err != nil {
		log.Printf("Handlers: access check for user %d failed: %v", userID, err)
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      messages.ErrorDefault(),
			ParseMode: messages.ParseModeHTML,
		})
		return
	}
	text := messages.AccessStatusNone()
	if len(grants) > 0 {
		text = messages.AccessStatusActive(grants)
	}
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
}

func (bh *Handlers) answerCallback(ctx context.Context, b *bot.Bot, callbackID, text string) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		log.Printf("Handlers: answer callback failed: %v", err)
	}
}

func getChatIDFromUpdate(update *models.Update) int64 {
	if update == nil {
		return 0
	}
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil {
		if update.CallbackQuery.Message.Message != nil {
			return update.CallbackQuery.Message.Message.Chat.ID
		}
		if update.CallbackQuery.Message.InaccessibleMessage != nil {
			return update.CallbackQuery.Message.InaccessibleMessage.Chat.ID
		}
	}
	return 0
}

func userIDFromUpdate(update *models.Update) int64 {
	if update == nil {
		return 0
	}
	if update.Message != nil && update.Message.From != nil {
		return update.Message.From.ID
	}
	if update.CallbackQuery != nil {
		return update.CallbackQuery.From.ID
	}
	return 0
}
