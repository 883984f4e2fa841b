package platform

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/okisilev/tg-askeza/internal/messages"
)

// Telegram wraps the bot client with the few chat-management calls the
// access lifecycle needs.
type Telegram struct {
	client *bot.Bot
}

func NewTelegram(client *bot.Bot) *Telegram {
	return &Telegram{client: client}
}

func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := t.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	})
	return err
}

func (t *Telegram) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := t.client.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		return false, err
	}
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true, nil
	case models.ChatMemberTypeRestricted:
		return member.Restricted != nil && member.Restricted.IsMember, nil
	default:
		return false, nil
	}
}

// CreateInviteLink issues a fresh single-use link with no expiry, the
// same way the bot always invited buyers: one link per grant, consumed
// on join.
func (t *Telegram) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	link, err := t.client.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
		ChatID:      chatID,
		MemberLimit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("create invite link for chat %d: %v", chatID, err)
	}
	return link.InviteLink, nil
}

// RemoveMember kicks the user and immediately lifts the ban so a future
// purchase can invite them back.
func (t *Telegram) RemoveMember(ctx context.Context, chatID, userID int64) error {
	_, err := t.client.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("remove user %d from chat %d: %v", userID, chatID, err)
	}
	_, err = t.client.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       chatID,
		UserID:       userID,
		OnlyIfBanned: true,
	})
	if err != nil {
		return fmt.Errorf("unban user %d in chat %d: %v", userID, chatID, err)
	}
	return nil
}
