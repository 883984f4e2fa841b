package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/okisilev/tg-askeza/internal/gateway"
	"github.com/okisilev/tg-askeza/internal/messages"
	"github.com/okisilev/tg-askeza/internal/product"
	"github.com/okisilev/tg-askeza/types"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrNoPendingCheckout  = errors.New("no pending checkout")
)

// PaymentGateway is the slice of the YooKassa client the lifecycle uses.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, amountKopeks int64, description, returnURL string, metadata map[string]interface{}) (*gateway.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
}

// Messenger is the slice of the Telegram client the lifecycle uses.
// Notifications and invites are advisory: their failures never roll back
// a grant or a revoke.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	RemoveMember(ctx context.Context, chatID, userID int64) error
}

// Lifecycle is the single authority for payment and access transitions.
// All writes to payments and access_grants go through it, from the
// interactive handlers, the webhook server and the background loops alike.
type Lifecycle struct {
	store     types.AccessStore
	checkouts types.CheckoutStore
	gateway   PaymentGateway
	messenger Messenger
	catalog   *product.Catalog
	returnURL string
}

func New(store types.AccessStore, checkouts types.CheckoutStore, gw PaymentGateway, messenger Messenger, catalog *product.Catalog, returnURL string) *Lifecycle {
	return &Lifecycle{
		store:     store,
		checkouts: checkouts,
		gateway:   gw,
		messenger: messenger,
		catalog:   catalog,
		returnURL: returnURL,
	}
}

// InitiatePurchase registers a payment with the gateway and records it as
// pending. The returned checkout carries the hosted confirmation URL for
// the pay button.
func (l *Lifecycle) InitiatePurchase(ctx context.Context, userID int64, p types.ProductType) (*types.Checkout, error) {
	info, err := l.catalog.Get(p)
	if err != nil {
		return nil, err
	}

	gwPayment, err := l.gateway.CreatePayment(ctx, info.PriceKopeks, info.Description, l.returnURL, map[string]interface{}{
		"user_id": fmt.Sprintf("%d", userID),
		"product": string(p),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	payment := &types.Payment{
		GatewayID: gwPayment.ID,
		UserID:    userID,
		Product:   p,
		Amount:    info.PriceKopeks,
		Status:    types.PaymentPending,
	}
	if err := l.store.CreatePayment(ctx, payment); err != nil {
		// The gateway payment exists but we lost the local row, so no
		// reconciliation will ever pick it up. Surface loudly.
		return nil, fmt.Errorf("persist payment %s: %v", gwPayment.ID, err)
	}

	checkout := &types.Checkout{
		UserID:          userID,
		GatewayID:       gwPayment.ID,
		Product:         p,
		Amount:          info.PriceKopeks,
		ConfirmationURL: gwPayment.ConfirmationURL,
	}
	if err := l.checkouts.SaveCheckout(ctx, checkout); err != nil {
		log.Printf("Lifecycle: failed to cache checkout for user %d: %v", userID, err)
	}
	return checkout, nil
}

// ObservePaymentSucceeded settles a success signal, no matter where it
// came from (webhook, reconciliation poll or the user's "check status"
// button). Re-observing an already-settled payment is a no-op.
func (l *Lifecycle) ObservePaymentSucceeded(ctx context.Context, gatewayID string) error {
	payment, err := l.store.GetPaymentByGatewayID(ctx, gatewayID)
	if err != nil {
		return err
	}
	info, err := l.catalog.Get(payment.Product)
	if err != nil {
		return err
	}

	grant, settled, err := l.store.SettlePaymentSucceeded(ctx, gatewayID, time.Now().UTC(), info.AccessDuration)
	if err != nil {
		return fmt.Errorf("settle payment %s: %v", gatewayID, err)
	}
	if !settled {
		return nil
	}
	log.Printf("Lifecycle: payment %s settled, access %q for user %d until %s", gatewayID, grant.Product, grant.UserID, grant.ExpiresAt.Format(time.RFC3339))

	_ = l.checkouts.DeleteCheckout(ctx, payment.UserID)
	l.notifyGranted(ctx, grant, info)
	return nil
}

// notifyGranted sends the confirmation and invite links. Best effort: a
// paying user must never lose access because Telegram hiccuped.
func (l *Lifecycle) notifyGranted(ctx context.Context, grant *types.AccessGrant, info product.Info) {
	if err := l.messenger.SendMessage(ctx, grant.UserID, messages.AccessGranted(grant.Product, grant.ExpiresAt)); err != nil {
		log.Printf("Lifecycle: grant notification to user %d failed: %v", grant.UserID, err)
	}
	l.sendInvite(ctx, grant.UserID, info.ChannelID, "Закрытый канал")
	l.sendInvite(ctx, grant.UserID, info.ChatID, "Закрытый чат")
}

func (l *Lifecycle) sendInvite(ctx context.Context, userID, chatID int64, title string) {
	if chatID == 0 {
		return
	}
	url, err := l.messenger.CreateInviteLink(ctx, chatID)
	if err != nil {
		log.Printf("Lifecycle: invite link for user %d, chat %d failed: %v", userID, chatID, err)
		return
	}
	if err := l.messenger.SendMessage(ctx, userID, messages.InviteLinkMessage(title, url)); err != nil {
		log.Printf("Lifecycle: invite message to user %d failed: %v", userID, err)
	}
}

// ObservePaymentCanceled marks the payment canceled. Access is untouched.
func (l *Lifecycle) ObservePaymentCanceled(ctx context.Context, gatewayID string) error {
	changed, err := l.store.MarkPaymentCanceled(ctx, gatewayID)
	if err != nil {
		return err
	}
	if changed {
		log.Printf("Lifecycle: payment %s canceled", gatewayID)
		if payment, err := l.store.GetPaymentByGatewayID(ctx, gatewayID); err == nil {
			_ = l.checkouts.DeleteCheckout(ctx, payment.UserID)
		}
	}
	return nil
}

// CheckAccess returns the user's currently active grants. This is the
// query every privileged action (menu buttons, invite requests) gates on.
func (l *Lifecycle) CheckAccess(ctx context.Context, userID int64) ([]types.AccessGrant, error) {
	return l.store.ActiveGrants(ctx, userID)
}

// CheckPendingCheckout polls the gateway for the user's cached checkout
// and settles it if it has finished. The "I paid" button path.
func (l *Lifecycle) CheckPendingCheckout(ctx context.Context, userID int64) (types.PaymentStatus, error) {
	checkout, err := l.checkouts.GetCheckout(ctx, userID)
	if err != nil {
		return "", ErrNoPendingCheckout
	}

	gwPayment, err := l.gateway.GetPayment(ctx, checkout.GatewayID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	switch gwPayment.Status {
	case gateway.StatusSucceeded:
		if err := l.ObservePaymentSucceeded(ctx, checkout.GatewayID); err != nil {
			return "", err
		}
		return types.PaymentSucceeded, nil
	case gateway.StatusCanceled:
		if err := l.ObservePaymentCanceled(ctx, checkout.GatewayID); err != nil {
			return "", err
		}
		return types.PaymentCanceled, nil
	default:
		return types.PaymentPending, nil
	}
}

// Revoke deactivates an expired grant and, best effort, tells the user
// and removes them from the gated chats.
func (l *Lifecycle) Revoke(ctx context.Context, grant types.AccessGrant) error {
	changed, err := l.store.DeactivateGrant(ctx, grant.ID)
	if err != nil {
		return fmt.Errorf("deactivate grant %d: %v", grant.ID, err)
	}
	if !changed {
		return nil
	}
	log.Printf("Lifecycle: access %q revoked for user %d (expired %s)", grant.Product, grant.UserID, grant.ExpiresAt.Format(time.RFC3339))

	if err := l.messenger.SendMessage(ctx, grant.UserID, messages.AccessExpired(grant.Product)); err != nil {
		log.Printf("Lifecycle: expiry notification to user %d failed: %v", grant.UserID, err)
	}

	info, err := l.catalog.Get(grant.Product)
	if err != nil {
		return nil
	}
	// Only remove membership when no other active grant still covers the chat.
	remaining, err := l.store.ActiveGrants(ctx, grant.UserID)
	if err != nil {
		log.Printf("Lifecycle: active grants lookup for user %d failed: %v", grant.UserID, err)
		remaining = nil
	}
	l.removeMembership(ctx, grant.UserID, info.ChannelID, remaining)
	l.removeMembership(ctx, grant.UserID, info.ChatID, remaining)
	return nil
}

func (l *Lifecycle) removeMembership(ctx context.Context, userID, chatID int64, remaining []types.AccessGrant) {
	if chatID == 0 {
		return
	}
	for _, g := range remaining {
		info, err := l.catalog.Get(g.Product)
		if err != nil {
			continue
		}
		if info.ChannelID == chatID || info.ChatID == chatID {
			return
		}
	}
	if member, err := l.messenger.IsMember(ctx, chatID, userID); err == nil && !member {
		return
	}
	if err := l.messenger.RemoveMember(ctx, chatID, userID); err != nil {
		log.Printf("Lifecycle: membership removal for user %d in chat %d failed: %v", userID, chatID, err)
	}
}

// RemindExpiring notifies users whose access runs out within the window.
// Called once a day by the scheduler.
func (l *Lifecycle) RemindExpiring(ctx context.Context, window time.Duration) error {
	grants, err := l.store.ListGrantsExpiringWithin(ctx, window)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if err := l.messenger.SendMessage(ctx, g.UserID, messages.AccessExpiringSoon(g.Product, g.ExpiresAt)); err != nil {
			log.Printf("Lifecycle: expiry reminder to user %d failed: %v", g.UserID, err)
		}
	}
	return nil
}
