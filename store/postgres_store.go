package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/okisilev/tg-askeza/types"
	"github.com/pressly/goose/v3"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

var ErrPaymentNotFound = errors.New("payment not found")

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "askeza_bot"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "askeza_bot"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *PostgresStore) UpsertUser(ctx context.Context, user types.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (user_id, username, first_name, last_name)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
  username = EXCLUDED.username,
  first_name = EXCLUDED.first_name,
  last_name = EXCLUDED.last_name,
  updated_at = NOW();
`, user.UserID, strings.TrimSpace(user.Username), strings.TrimSpace(user.FirstName), strings.TrimSpace(user.LastName))
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var u types.User
	err := s.pool.QueryRow(ctx, `
SELECT user_id, username, first_name, last_name, joined_at, updated_at
FROM users
WHERE user_id = $1
`, userID).Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.JoinedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreatePayment(ctx context.Context, p *types.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.QueryRow(ctx, `
INSERT INTO payments (gateway_id, user_id, product, amount, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at
`, strings.TrimSpace(p.GatewayID), p.UserID, string(p.Product), p.Amount, string(types.PaymentPending)).Scan(&p.ID, &p.CreatedAt)
}

func (s *PostgresStore) GetPaymentByGatewayID(ctx context.Context, gatewayID string) (*types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	p, err := scanPayment(s.pool.QueryRow(ctx, `
SELECT id, gateway_id, user_id, product, amount, status, created_at, paid_at
FROM payments
WHERE gateway_id = $1
`, strings.TrimSpace(gatewayID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListPendingPayments(ctx context.Context) ([]types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, gateway_id, user_id, product, amount, status, created_at, paid_at
FROM payments
WHERE status = 'pending'
ORDER BY created_at
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (s *PostgresStore) ListPaymentsByUser(ctx context.Context, userID int64) ([]types.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, gateway_id, user_id, product, amount, status, created_at, paid_at
FROM payments
WHERE user_id = $1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

// SettlePaymentSucceeded is the only path that grants access. The status
// flip is a check-and-set on status='pending', so a webhook and the
// reconciliation poll observing the same payment cannot both grant. The
// grant upsert rides in the same transaction: a payment is never left
// succeeded without its grant.
func (s *PostgresStore) SettlePaymentSucceeded(ctx context.Context, gatewayID string, paidAt time.Time, accessDuration time.Duration) (*types.AccessGrant, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID int64
	var productStr string
	err = tx.QueryRow(ctx, `
UPDATE payments
SET status = 'succeeded', paid_at = $2
WHERE gateway_id = $1 AND status = 'pending'
RETURNING user_id, product
`, strings.TrimSpace(gatewayID), paidAt.UTC()).Scan(&userID, &productStr)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already settled or unknown: the other observer won.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	grant, err := activateOrExtendGrantTx(ctx, tx, userID, types.ProductType(productStr), paidAt.UTC(), accessDuration)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return grant, true, nil
}

func activateOrExtendGrantTx(ctx context.Context, tx pgx.Tx, userID int64, product types.ProductType, now time.Time, duration time.Duration) (*types.AccessGrant, error) {
	var grantID int64
	var currentExpires time.Time
	err := tx.QueryRow(ctx, `
SELECT id, expires_at
FROM access_grants
WHERE user_id = $1 AND product = $2 AND is_active
FOR UPDATE
`, userID, string(product)).Scan(&grantID, &currentExpires)

	switch {
	case err == nil:
		// Re-purchase while active extends from the current expiry.
		base := now
		if currentExpires.After(base) {
			base = currentExpires
		}
		newExpires := base.Add(duration)
		_, err = tx.Exec(ctx, `
UPDATE access_grants
SET expires_at = $2
WHERE id = $1
`, grantID, newExpires)
		if err != nil {
			return nil, err
		}
		return &types.AccessGrant{
			ID:        grantID,
			UserID:    userID,
			Product:   product,
			ExpiresAt: newExpires,
			IsActive:  true,
		}, nil
	case errors.Is(err, pgx.ErrNoRows):
		grant := &types.AccessGrant{
			UserID:    userID,
			Product:   product,
			GrantedAt: now,
			ExpiresAt: now.Add(duration),
			IsActive:  true,
		}
		err = tx.QueryRow(ctx, `
INSERT INTO access_grants (user_id, product, granted_at, expires_at, is_active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING id
`, userID, string(product), grant.GrantedAt, grant.ExpiresAt).Scan(&grant.ID)
		if err != nil {
			return nil, err
		}
		return grant, nil
	default:
		return nil, err
	}
}

func (s *PostgresStore) MarkPaymentCanceled(ctx context.Context, gatewayID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
UPDATE payments
SET status = 'canceled'
WHERE gateway_id = $1 AND status = 'pending'
`, strings.TrimSpace(gatewayID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ActiveGrants(ctx context.Context, userID int64) ([]types.AccessGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, product, granted_at, expires_at, is_active
FROM access_grants
WHERE user_id = $1 AND is_active AND expires_at > NOW()
ORDER BY expires_at DESC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (s *PostgresStore) ListExpiredActiveGrants(ctx context.Context, limit int) ([]types.AccessGrant, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, product, granted_at, expires_at, is_active
FROM access_grants
WHERE is_active AND expires_at <= NOW()
ORDER BY expires_at
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (s *PostgresStore) ListGrantsExpiringWithin(ctx context.Context, window time.Duration) ([]types.AccessGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, product, granted_at, expires_at, is_active
FROM access_grants
WHERE is_active AND expires_at > NOW() AND expires_at <= NOW() + $1
ORDER BY expires_at
`, window)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (s *PostgresStore) DeactivateGrant(ctx context.Context, grantID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
UPDATE access_grants
SET is_active = FALSE
WHERE id = $1 AND is_active
`, grantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanPayment(row pgx.Row) (*types.Payment, error) {
	var p types.Payment
	var product, status string
	err := row.Scan(&p.ID, &p.GatewayID, &p.UserID, &product, &p.Amount, &status, &p.CreatedAt, &p.PaidAt)
	if err != nil {
		return nil, err
	}
	p.Product = types.ProductType(product)
	p.Status = types.PaymentStatus(status)
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]types.Payment, error) {
	var out []types.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func collectGrants(rows pgx.Rows) ([]types.AccessGrant, error) {
	var out []types.AccessGrant
	for rows.Next() {
		var g types.AccessGrant
		var product string
		if err := rows.Scan(&g.ID, &g.UserID, &product, &g.GrantedAt, &g.ExpiresAt, &g.IsActive); err != nil {
			return nil, err
		}
		g.Product = types.ProductType(product)
		out = append(out, g)
	}
	return out, rows.Err()
}
