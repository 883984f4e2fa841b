package middleware

import (
	"context"
	"log"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/okisilev/tg-askeza/internal/contextkeys"
	"github.com/okisilev/tg-askeza/types"
)

type Middlewares struct {
	store types.AccessStore
}

func NewMessageAnalyzer(store types.AccessStore) *Middlewares {
	return &Middlewares{
		store: store,
	}
}

// UpsertUserMiddleware records the user on every interaction, so a row
// exists before any payment references it.
func (m *Middlewares) UpsertUserMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		var from *models.User
		switch {
		case update.Message != nil && update.Message.From != nil:
			from = update.Message.From
		case update.CallbackQuery != nil:
			from = &update.CallbackQuery.From
		}
		if from != nil && from.ID != 0 {
			err := m.store.UpsertUser(ctx, types.User{
				UserID:    from.ID,
				Username:  from.Username,
				FirstName: from.FirstName,
				LastName:  from.LastName,
			})
			if err != nil {
				log.Printf("Middleware: upsert user %d failed: %v", from.ID, err)
			}
		}
		next(ctx, b, update)
	}
}

// AnalyzeMessageMiddleware classifies the update and stashes the result
// in the context for the handler dispatch.
func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		switch {
		case update.CallbackQuery != nil:
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
			ctx = contextkeys.WithCallbackData(ctx, strings.TrimSpace(update.CallbackQuery.Data))
		case update.Message != nil && strings.HasPrefix(strings.TrimSpace(update.Message.Text), "/"):
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
		case update.Message != nil && strings.TrimSpace(update.Message.Text) != "":
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeText)
		default:
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
		}
		next(ctx, b, update)
	}
}
