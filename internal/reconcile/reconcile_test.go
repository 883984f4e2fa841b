package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okisilev/tg-askeza/internal/gateway"
	"github.com/okisilev/tg-askeza/internal/lifecycle"
	"github.com/okisilev/tg-askeza/internal/product"
	"github.com/okisilev/tg-askeza/types"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	payments map[string]*types.Payment
	grants   []*types.AccessGrant
}

func newMemStore() *memStore {
	return &memStore{payments: make(map[string]*types.Payment)}
}

func (m *memStore) addPending(gatewayID string, userID int64) {
	m.payments[gatewayID] = &types.Payment{
		GatewayID: gatewayID,
		UserID:    userID,
		Product:   types.ProductAskeza,
		Amount:    99000,
		Status:    types.PaymentPending,
	}
}

func (m *memStore) UpsertUser(context.Context, types.User) error { return nil }

func (m *memStore) GetUser(context.Context, int64) (*types.User, error) { return nil, nil }

func (m *memStore) CreatePayment(context.Context, *types.Payment) error { return nil }

func (m *memStore) GetPaymentByGatewayID(_ context.Context, gatewayID string) (*types.Payment, error) {
	p, ok := m.payments[gatewayID]
	if !ok {
		return nil, errors.New("payment not found")
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPendingPayments(context.Context) ([]types.Payment, error) {
	var out []types.Payment
	for _, p := range m.payments {
		if p.Status == types.PaymentPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) ListPaymentsByUser(context.Context, int64) ([]types.Payment, error) {
	return nil, nil
}

func (m *memStore) SettlePaymentSucceeded(_ context.Context, gatewayID string, paidAt time.Time, accessDuration time.Duration) (*types.AccessGrant, bool, error) {
	p, ok := m.payments[gatewayID]
	if !ok || p.Status != types.PaymentPending {
		return nil, false, nil
	}
	p.Status = types.PaymentSucceeded
	g := &types.AccessGrant{
		ID:        int64(len(m.grants) + 1),
		UserID:    p.UserID,
		Product:   p.Product,
		GrantedAt: paidAt,
		ExpiresAt: paidAt.Add(accessDuration),
		IsActive:  true,
	}
	m.grants = append(m.grants, g)
	cp := *g
	return &cp, true, nil
}

func (m *memStore) MarkPaymentCanceled(_ context.Context, gatewayID string) (bool, error) {
	p, ok := m.payments[gatewayID]
	if !ok || p.Status != types.PaymentPending {
		return false, nil
	}
	p.Status = types.PaymentCanceled
	return true, nil
}

func (m *memStore) ActiveGrants(context.Context, int64) ([]types.AccessGrant, error) {
	return nil, nil
}

func (m *memStore) ListExpiredActiveGrants(context.Context, int) ([]types.AccessGrant, error) {
	return nil, nil
}

func (m *memStore) ListGrantsExpiringWithin(context.Context, time.Duration) ([]types.AccessGrant, error) {
	return nil, nil
}

func (m *memStore) DeactivateGrant(context.Context, int64) (bool, error) { return false, nil }

type memCheckouts struct{}

func (memCheckouts) SaveCheckout(context.Context, *types.Checkout) error { return nil }
func (memCheckouts) GetCheckout(context.Context, int64) (*types.Checkout, error) {
	return nil, errors.New("checkout not found")
}
func (memCheckouts) DeleteCheckout(context.Context, int64) error { return nil }

type noopMessenger struct{}

func (noopMessenger) SendMessage(context.Context, int64, string) error { return nil }
func (noopMessenger) CreateInviteLink(context.Context, int64) (string, error) {
	return "https://t.me/+invite", nil
}
func (noopMessenger) IsMember(context.Context, int64, int64) (bool, error) { return true, nil }

func (noopMessenger) RemoveMember(context.Context, int64, int64) error { return nil }

// statusGateway answers GetPayment per payment id; unlisted ids fail.
type statusGateway struct {
	statuses map[string]string
}

func (g *statusGateway) CreatePayment(context.Context, int64, string, string, map[string]interface{}) (*gateway.Payment, error) {
	return nil, errors.New("not used")
}

func (g *statusGateway) GetPayment(_ context.Context, paymentID string) (*gateway.Payment, error) {
	status, ok := g.statuses[paymentID]
	if !ok {
		return nil, errors.New("lookup failed")
	}
	return &gateway.Payment{ID: paymentID, Status: status}, nil
}

func newReconciler(st *memStore, gw *statusGateway) *Reconciler {
	catalog := product.NewCatalog(-1001, -1002)
	lc := lifecycle.New(st, memCheckouts{}, gw, noopMessenger{}, catalog, "https://t.me/askeza_bot")
	return New(st, gw, lc)
}

func TestRun_SettlesSucceededPayments(t *testing.T) {
	st := newMemStore()
	st.addPending("p-1", 100)
	st.addPending("p-2", 200)

	gw := &statusGateway{statuses: map[string]string{
		"p-1": gateway.StatusSucceeded,
		"p-2": gateway.StatusPending,
	}}

	require.NoError(t, newReconciler(st, gw).Run(context.Background()))

	require.Equal(t, types.PaymentSucceeded, st.payments["p-1"].Status)
	require.Equal(t, types.PaymentPending, st.payments["p-2"].Status)
	require.Len(t, st.grants, 1)
	require.Equal(t, int64(100), st.grants[0].UserID)
}

func TestRun_CancelsCanceledPayments(t *testing.T) {
	st := newMemStore()
	st.addPending("p-1", 100)

	gw := &statusGateway{statuses: map[string]string{
		"p-1": gateway.StatusCanceled,
	}}

	require.NoError(t, newReconciler(st, gw).Run(context.Background()))

	require.Equal(t, types.PaymentCanceled, st.payments["p-1"].Status)
	require.Empty(t, st.grants)
}

func TestRun_LookupFailureSkipsOnlyThatPayment(t *testing.T) {
	st := newMemStore()
	st.addPending("p-bad", 100)
	st.addPending("p-good", 200)

	// p-bad is not in the map, so its lookup fails.
	gw := &statusGateway{statuses: map[string]string{
		"p-good": gateway.StatusSucceeded,
	}}

	require.NoError(t, newReconciler(st, gw).Run(context.Background()))

	require.Equal(t, types.PaymentPending, st.payments["p-bad"].Status)
	require.Equal(t, types.PaymentSucceeded, st.payments["p-good"].Status)
}

func TestRun_EmptyPendingIsNoop(t *testing.T) {
	st := newMemStore()
	gw := &statusGateway{}
	require.NoError(t, newReconciler(st, gw).Run(context.Background()))
}

func TestRun_CanceledContext(t *testing.T) {
	st := newMemStore()
	st.addPending("p-1", 100)
	gw := &statusGateway{statuses: map[string]string{"p-1": gateway.StatusSucceeded}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newReconciler(st, gw).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, types.PaymentPending, st.payments["p-1"].Status)
}
