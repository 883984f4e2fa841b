package types

import (
	"context"
	"time"
)

type AccessStore interface {
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID int64) (*User, error)

	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByGatewayID(ctx context.Context, gatewayID string) (*Payment, error)
	ListPendingPayments(ctx context.Context) ([]Payment, error)
	ListPaymentsByUser(ctx context.Context, userID int64) ([]Payment, error)

	// SettlePaymentSucceeded flips the payment to succeeded and activates
	// (or extends) the access grant in one transaction. Returns settled=false
	// when the payment was not pending anymore, which makes re-observing the
	// same gateway event a no-op.
	SettlePaymentSucceeded(ctx context.Context, gatewayID string, paidAt time.Time, accessDuration time.Duration) (grant *AccessGrant, settled bool, err error)
	MarkPaymentCanceled(ctx context.Context, gatewayID string) (bool, error)

	ActiveGrants(ctx context.Context, userID int64) ([]AccessGrant, error)
	ListExpiredActiveGrants(ctx context.Context, limit int) ([]AccessGrant, error)
	ListGrantsExpiringWithin(ctx context.Context, window time.Duration) ([]AccessGrant, error)
	DeactivateGrant(ctx context.Context, grantID int64) (bool, error)
}

type CheckoutStore interface {
	SaveCheckout(ctx context.Context, c *Checkout) error
	GetCheckout(ctx context.Context, userID int64) (*Checkout, error)
	DeleteCheckout(ctx context.Context, userID int64) error
}
