package types

import "time"

type User struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	JoinedAt  time.Time
	UpdatedAt time.Time
}

type Payment struct {
	ID        int64
	GatewayID string
	UserID    int64
	Product   ProductType
	// Amount is in kopeks.
	Amount    int64
	Status    PaymentStatus
	CreatedAt time.Time
	PaidAt    *time.Time
}

type AccessGrant struct {
	ID        int64
	UserID    int64
	Product   ProductType
	GrantedAt time.Time
	ExpiresAt time.Time
	IsActive  bool
}

// Checkout is a short-lived record of a payment the user has been sent
// to the gateway's checkout page for. It lets the "check my payment"
// button find the gateway payment without a DB scan.
type Checkout struct {
	UserID          int64       `json:"user_id"`
	GatewayID       string      `json:"gateway_id"`
	Product         ProductType `json:"product"`
	Amount          int64       `json:"amount"`
	ConfirmationURL string      `json:"confirmation_url"`
	CreatedAt       time.Time   `json:"created_at"`
}
