package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okisilev/tg-askeza/internal/gateway"
	"github.com/okisilev/tg-askeza/internal/product"
	"github.com/okisilev/tg-askeza/types"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	users    map[int64]types.User
	payments map[string]*types.Payment
	grants   []*types.AccessGrant
	nextID   int64

	failCreatePayment bool
	failSettle        bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]types.User),
		payments: make(map[string]*types.Payment),
	}
}

func (f *fakeStore) UpsertUser(_ context.Context, u types.User) error {
	f.users[u.UserID] = u
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (*types.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("no user")
	}
	return &u, nil
}

func (f *fakeStore) CreatePayment(_ context.Context, p *types.Payment) error {
	if f.failCreatePayment {
		return errors.New("insert failed")
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now().UTC()
	f.payments[p.GatewayID] = p
	return nil
}

func (f *fakeStore) GetPaymentByGatewayID(_ context.Context, gatewayID string) (*types.Payment, error) {
	p, ok := f.payments[gatewayID]
	if !ok {
		return nil, errors.New("payment not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListPendingPayments(_ context.Context) ([]types.Payment, error) {
	var out []types.Payment
	for _, p := range f.payments {
		if p.Status == types.PaymentPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPaymentsByUser(_ context.Context, userID int64) ([]types.Payment, error) {
	var out []types.Payment
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) SettlePaymentSucceeded(_ context.Context, gatewayID string, paidAt time.Time, accessDuration time.Duration) (*types.AccessGrant, bool, error) {
	if f.failSettle {
		return nil, false, errors.New("settle failed")
	}
	p, ok := f.payments[gatewayID]
	if !ok || p.Status != types.PaymentPending {
		return nil, false, nil
	}
	p.Status = types.PaymentSucceeded
	t := paidAt
	p.PaidAt = &t

	for _, g := range f.grants {
		if g.UserID == p.UserID && g.Product == p.Product && g.IsActive {
			base := paidAt
			if g.ExpiresAt.After(base) {
				base = g.ExpiresAt
			}
			g.ExpiresAt = base.Add(accessDuration)
			cp := *g
			return &cp, true, nil
		}
	}
	f.nextID++
	g := &types.AccessGrant{
		ID:        f.nextID,
		UserID:    p.UserID,
		Product:   p.Product,
		GrantedAt: paidAt,
		ExpiresAt: paidAt.Add(accessDuration),
		IsActive:  true,
	}
	f.grants = append(f.grants, g)
	cp := *g
	return &cp, true, nil
}

func (f *fakeStore) MarkPaymentCanceled(_ context.Context, gatewayID string) (bool, error) {
	p, ok := f.payments[gatewayID]
	if !ok || p.Status != types.PaymentPending {
		return false, nil
	}
	p.Status = types.PaymentCanceled
	return true, nil
}

func (f *fakeStore) ActiveGrants(_ context.Context, userID int64) ([]types.AccessGrant, error) {
	now := time.Now()
	var out []types.AccessGrant
	for _, g := range f.grants {
		if g.UserID == userID && g.IsActive && g.ExpiresAt.After(now) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeStore) ListExpiredActiveGrants(_ context.Context, limit int) ([]types.AccessGrant, error) {
	now := time.Now()
	var out []types.AccessGrant
	for _, g := range f.grants {
		if g.IsActive && !g.ExpiresAt.After(now) {
			out = append(out, *g)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListGrantsExpiringWithin(_ context.Context, window time.Duration) ([]types.AccessGrant, error) {
	now := time.Now()
	var out []types.AccessGrant
	for _, g := range f.grants {
		if g.IsActive && g.ExpiresAt.After(now) && !g.ExpiresAt.After(now.Add(window)) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeStore) DeactivateGrant(_ context.Context, grantID int64) (bool, error) {
	for _, g := range f.grants {
		if g.ID == grantID && g.IsActive {
			g.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

type fakeCheckouts struct {
	byUser map[int64]*types.Checkout
}

func newFakeCheckouts() *fakeCheckouts {
	return &fakeCheckouts{byUser: make(map[int64]*types.Checkout)}
}

func (f *fakeCheckouts) SaveCheckout(_ context.Context, c *types.Checkout) error {
	cp := *c
	f.byUser[c.UserID] = &cp
	return nil
}

func (f *fakeCheckouts) GetCheckout(_ context.Context, userID int64) (*types.Checkout, error) {
	c, ok := f.byUser[userID]
	if !ok {
		return nil, errors.New("checkout not found")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCheckouts) DeleteCheckout(_ context.Context, userID int64) error {
	delete(f.byUser, userID)
	return nil
}

type fakeGateway struct {
	createErr error
	status    string
	nextID    string
}

func (f *fakeGateway) CreatePayment(_ context.Context, amountKopeks int64, description, returnURL string, _ map[string]interface{}) (*gateway.Payment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := f.nextID
	if id == "" {
		id = "gw-1"
	}
	return &gateway.Payment{
		ID:              id,
		Status:          gateway.StatusPending,
		ConfirmationURL: "https://checkout.example/" + id,
		AmountKopeks:    amountKopeks,
	}, nil
}

func (f *fakeGateway) GetPayment(_ context.Context, paymentID string) (*gateway.Payment, error) {
	status := f.status
	if status == "" {
		status = gateway.StatusPending
	}
	return &gateway.Payment{ID: paymentID, Status: status}, nil
}

type fakeMessenger struct {
	sent       []string
	sendErr    error
	inviteErr  error
	invites    int
	removed    []int64
	removeErr  error
	inviteURLs []string
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeMessenger) CreateInviteLink(_ context.Context, chatID int64) (string, error) {
	if f.inviteErr != nil {
		return "", f.inviteErr
	}
	f.invites++
	url := "https://t.me/+invite"
	f.inviteURLs = append(f.inviteURLs, url)
	return url, nil
}

func (f *fakeMessenger) IsMember(context.Context, int64, int64) (bool, error) {
	return true, nil
}

func (f *fakeMessenger) RemoveMember(_ context.Context, chatID, userID int64) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, userID)
	return nil
}

const (
	testChannelID = int64(-1001)
	testChatID    = int64(-1002)
	testUserID    = int64(760111270)
)

func newTestLifecycle(st *fakeStore, co *fakeCheckouts, gw *fakeGateway, m *fakeMessenger) *Lifecycle {
	catalog := product.NewCatalog(testChannelID, testChatID)
	return New(st, co, gw, m, catalog, "https://t.me/askeza_bot")
}

func TestInitiatePurchase_CreatesPendingPayment(t *testing.T) {
	st := newFakeStore()
	co := newFakeCheckouts()
	gw := &fakeGateway{nextID: "gw-42"}
	m := &fakeMessenger{}
	lc := newTestLifecycle(st, co, gw, m)

	checkout, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)
	require.Equal(t, "gw-42", checkout.GatewayID)
	require.Equal(t, int64(99000), checkout.Amount)
	require.NotEmpty(t, checkout.ConfirmationURL)

	p, err := st.GetPaymentByGatewayID(context.Background(), "gw-42")
	require.NoError(t, err)
	require.Equal(t, types.PaymentPending, p.Status)
	require.Nil(t, p.PaidAt)

	// No grant until the payment succeeds.
	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Empty(t, grants)
}

func TestInitiatePurchase_GatewayDown(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{createErr: errors.New("timeout")}
	lc := newTestLifecycle(st, newFakeCheckouts(), gw, &fakeMessenger{})

	_, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	require.Empty(t, st.payments)
}

func TestObservePaymentSucceeded_GrantsAccess(t *testing.T) {
	st := newFakeStore()
	co := newFakeCheckouts()
	gw := &fakeGateway{nextID: "p1"}
	m := &fakeMessenger{}
	lc := newTestLifecycle(st, co, gw, m)

	_, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)

	require.NoError(t, lc.ObservePaymentSucceeded(context.Background(), "p1"))

	p, err := st.GetPaymentByGatewayID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, types.PaymentSucceeded, p.Status)
	require.NotNil(t, p.PaidAt)

	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Equal(t, types.ProductAskeza, grants[0].Product)
	require.WithinDuration(t, time.Now().Add(30*24*time.Hour), grants[0].ExpiresAt, time.Minute)

	// Grant message plus two invite links (channel + chat).
	require.Len(t, m.sent, 3)
	require.Equal(t, 2, m.invites)

	// Checkout is consumed.
	_, err = co.GetCheckout(context.Background(), testUserID)
	require.Error(t, err)
}

func TestObservePaymentSucceeded_Idempotent(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{nextID: "p1"}
	m := &fakeMessenger{}
	lc := newTestLifecycle(st, newFakeCheckouts(), gw, m)

	_, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)

	require.NoError(t, lc.ObservePaymentSucceeded(context.Background(), "p1"))
	p, err := st.GetPaymentByGatewayID(context.Background(), "p1")
	require.NoError(t, err)
	firstPaidAt := *p.PaidAt
	firstSent := len(m.sent)

	// Second observation (webhook + poll race) is a no-op.
	require.NoError(t, lc.ObservePaymentSucceeded(context.Background(), "p1"))

	p, err = st.GetPaymentByGatewayID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, firstPaidAt, *p.PaidAt)

	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Len(t, m.sent, firstSent)
}

func TestObservePaymentSucceeded_NotifyFailureKeepsGrant(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{nextID: "p1"}
	m := &fakeMessenger{sendErr: errors.New("blocked by user")}
	lc := newTestLifecycle(st, newFakeCheckouts(), gw, m)

	_, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)

	require.NoError(t, lc.ObservePaymentSucceeded(context.Background(), "p1"))

	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.True(t, grants[0].IsActive)
}

func TestObservePaymentSucceeded_RepurchaseExtends(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{}
	lc := newTestLifecycle(st, newFakeCheckouts(), gw, &fakeMessenger{})

	gw.nextID = "p1"
	_, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)
	require.NoError(t, lc.ObservePaymentSucceeded(context.Background(), "p1"))

	gw.nextID = "p2"
	_, err = lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)
	require.NoError(t, lc.ObservePaymentSucceeded(context.Background(), "p2"))

	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, grants, 1, "re-purchase must extend, not duplicate")
	require.WithinDuration(t, time.Now().Add(60*24*time.Hour), grants[0].ExpiresAt, time.Minute)
}

func TestObservePaymentCanceled_NoAccessSideEffect(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{nextID: "p1"}
	m := &fakeMessenger{}
	lc := newTestLifecycle(st, newFakeCheckouts(), gw, m)

	_, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)

	require.NoError(t, lc.ObservePaymentCanceled(context.Background(), "p1"))

	p, err := st.GetPaymentByGatewayID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, types.PaymentCanceled, p.Status)
	require.Nil(t, p.PaidAt)

	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Empty(t, grants)
}

func TestCheckAccess_EmptyWithoutPayment(t *testing.T) {
	lc := newTestLifecycle(newFakeStore(), newFakeCheckouts(), &fakeGateway{}, &fakeMessenger{})
	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Empty(t, grants)
}

func TestRevoke_DeactivatesAndNotifies(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{nextID: "p1"}
	m := &fakeMessenger{}
	lc := newTestLifecycle(st, newFakeCheckouts(), gw, m)

	_, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)
	require.NoError(t, lc.ObservePaymentSucceeded(context.Background(), "p1"))

	// Force the grant into the past.
	st.grants[0].ExpiresAt = time.Now().Add(-time.Second)
	sentBefore := len(m.sent)

	require.NoError(t, lc.Revoke(context.Background(), *st.grants[0]))

	require.False(t, st.grants[0].IsActive)
	require.Len(t, m.sent, sentBefore+1)
	require.Contains(t, m.removed, testUserID)

	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Empty(t, grants)
}

func TestRevoke_AlreadyInactiveIsNoop(t *testing.T) {
	st := newFakeStore()
	m := &fakeMessenger{}
	lc := newTestLifecycle(st, newFakeCheckouts(), &fakeGateway{}, m)

	grant := &types.AccessGrant{ID: 7, UserID: testUserID, Product: types.ProductAskeza, IsActive: false}
	st.grants = append(st.grants, grant)

	require.NoError(t, lc.Revoke(context.Background(), *grant))
	require.Empty(t, m.sent)
	require.Empty(t, m.removed)
}

func TestCheckPendingCheckout_Succeeded(t *testing.T) {
	st := newFakeStore()
	co := newFakeCheckouts()
	gw := &fakeGateway{nextID: "p1"}
	lc := newTestLifecycle(st, co, gw, &fakeMessenger{})

	_, err := lc.InitiatePurchase(context.Background(), testUserID, types.ProductAskeza)
	require.NoError(t, err)

	gw.status = gateway.StatusSucceeded
	status, err := lc.CheckPendingCheckout(context.Background(), testUserID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentSucceeded, status)

	grants, err := lc.CheckAccess(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
}

func TestCheckPendingCheckout_NoCheckout(t *testing.T) {
	lc := newTestLifecycle(newFakeStore(), newFakeCheckouts(), &fakeGateway{}, &fakeMessenger{})
	_, err := lc.CheckPendingCheckout(context.Background(), testUserID)
	require.ErrorIs(t, err, ErrNoPendingCheckout)
}

func TestRemindExpiring_SendsOnlyWithinWindow(t *testing.T) {
	st := newFakeStore()
	m := &fakeMessenger{}
	lc := newTestLifecycle(st, newFakeCheckouts(), &fakeGateway{}, m)

	st.grants = append(st.grants,
		&types.AccessGrant{ID: 1, UserID: 1, Product: types.ProductAskeza, ExpiresAt: time.Now().Add(24 * time.Hour), IsActive: true},
		&types.AccessGrant{ID: 2, UserID: 2, Product: types.ProductAskeza, ExpiresAt: time.Now().Add(20 * 24 * time.Hour), IsActive: true},
	)

	require.NoError(t, lc.RemindExpiring(context.Background(), 3*24*time.Hour))
	require.Len(t, m.sent, 1)
}
