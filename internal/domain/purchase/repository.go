package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

const purchaseColumns = `
	id, user_id, session_id, provider, tier_id, entitlements, amount, currency,
	status, payment_ref, fail_reason, entitlement_expires_at, completed_at,
	failed_at, metadata, created_at, updated_at`

type Repository interface {
	BeginTxx(ctx context.Context) (*sqlx.Tx, error)
	CreateIdempotent(ctx context.Context, p *Purchase) (*Purchase, bool, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, p *Purchase) error
	GetByID(ctx context.Context, id uuid.UUID) (*Purchase, error)
	GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Purchase, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Purchase, error)
	ClaimCompletionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, paymentRef string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ListStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]Purchase, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]PurchaseWithCounts, error)
	ListTiers(ctx context.Context, activeOnly bool) ([]Tier, error)
	GetTier(ctx context.Context, id string) (*Tier, error)
}

// PurchaseRepository provides purchase and tier catalog storage.
type PurchaseRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	return tx, nil
}

// CreateIdempotent inserts a purchase unless its session id is already
// recorded. The unique index on session_id makes the insert-if-absent
// structural; the second return value reports whether a row was created.
func (r *PurchaseRepository) CreateIdempotent(ctx context.Context, p *Purchase) (*Purchase, bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx2, `
		INSERT INTO purchases (
			id, user_id, session_id, provider, tier_id, entitlements, amount,
			currency, status, entitlement_expires_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO NOTHING
	`, p.ID, p.UserID, p.SessionID, p.Provider, p.TierID, p.Entitlements,
		p.Amount, p.Currency, p.Status, p.EntitlementExpiresAt, p.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("%w: create purchase", ErrInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("%w: rows affected", ErrInternal)
	}

	existing, err := r.GetBySessionID(ctx, p.SessionID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("%w: purchase vanished after insert", ErrInternal)
	}

	return existing, rows > 0, nil
}

// CreateTx inserts a purchase within the caller's transaction. Used by
// manual grants which are created already completed.
func (r *PurchaseRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, p *Purchase) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO purchases (
			id, user_id, session_id, provider, tier_id, entitlements, amount,
			currency, status, payment_ref, entitlement_expires_at, completed_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.UserID, p.SessionID, p.Provider, p.TierID, p.Entitlements,
		p.Amount, p.Currency, p.Status, p.PaymentRef, p.EntitlementExpiresAt,
		p.CompletedAt, p.Metadata)
	if err != nil {
		return fmt.Errorf("%w: create purchase in tx", ErrInternal)
	}
	return nil
}

func (r *PurchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*Purchase, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Purchase
	err := r.db.GetContext(ctx2, &p, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get purchase by id", ErrInternal)
	}

	return &p, nil
}

func (r *PurchaseRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Purchase, error) {
	var p Purchase
	err := tx.GetContext(ctx, &p, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get purchase by id in tx", ErrInternal)
	}

	return &p, nil
}

func (r *PurchaseRepository) GetBySessionID(ctx context.Context, sessionID string) (*Purchase, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Purchase
	err := r.db.GetContext(ctx2, &p, `SELECT `+purchaseColumns+` FROM purchases WHERE session_id = $1`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get purchase by session id", ErrInternal)
	}

	return &p, nil
}

// ClaimCompletionTx atomically claims the pending -> completed transition.
// Exactly one concurrent caller observes true; everyone else sees the row
// already claimed once the winner commits.
func (r *PurchaseRepository) ClaimCompletionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, paymentRef string) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE purchases
		SET status = $2, payment_ref = $3, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, StatusCompleted, sql.NullString{String: paymentRef, Valid: paymentRef != ""}, StatusPending)
	if err != nil {
		return false, fmt.Errorf("%w: claim completion", ErrInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected", ErrInternal)
	}

	return rows > 0, nil
}

// MarkFailed moves a pending purchase to failed. Returns false without error
// when the purchase was not pending; the caller decides whether that is a
// duplicate or an integrity violation.
func (r *PurchaseRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx2, `
		UPDATE purchases
		SET status = $2, fail_reason = $3, failed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, StatusFailed, sql.NullString{String: reason, Valid: reason != ""}, StatusPending)
	if err != nil {
		return false, fmt.Errorf("%w: mark failed", ErrInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected", ErrInternal)
	}

	return rows > 0, nil
}

// ListStuckPending returns purchases pending longer than the threshold,
// oldest first, for the reconciliation sweep.
func (r *PurchaseRepository) ListStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]Purchase, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	cutoff := time.Now().Add(-olderThan)

	purchases := make([]Purchase, 0)
	err := r.db.SelectContext(ctx2, &purchases, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE status = $1 AND provider = $2 AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`, StatusPending, ProviderCheckout, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list stuck pending", ErrInternal)
	}

	return purchases, nil
}

// ListByUser returns the user's purchases with derived used/total credit
// counts, most recent first.
func (r *PurchaseRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]PurchaseWithCounts, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	purchases := make([]PurchaseWithCounts, 0)
	err := r.db.SelectContext(ctx2, &purchases, `
		SELECT p.id, p.user_id, p.session_id, p.provider, p.tier_id,
			p.entitlements, p.amount, p.currency, p.status, p.payment_ref,
			p.fail_reason, p.entitlement_expires_at, p.completed_at, p.failed_at,
			p.metadata, p.created_at, p.updated_at,
			COUNT(c.id) AS credits_total,
			COUNT(c.id) FILTER (WHERE c.used) AS credits_used
		FROM purchases p
		LEFT JOIN credits c ON c.purchase_id = p.id
		WHERE p.user_id = $1
		GROUP BY p.id
		ORDER BY p.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list purchases by user", ErrInternal)
	}

	return purchases, nil
}

func (r *PurchaseRepository) ListTiers(ctx context.Context, activeOnly bool) ([]Tier, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, name, description, entitlements, expires_in_days, price, currency, active, created_at
		FROM credit_tiers`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY price ASC`

	tiers := make([]Tier, 0)
	if err := r.db.SelectContext(ctx2, &tiers, query); err != nil {
		return nil, fmt.Errorf("%w: list tiers", ErrInternal)
	}

	return tiers, nil
}

func (r *PurchaseRepository) GetTier(ctx context.Context, id string) (*Tier, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var tier Tier
	err := r.db.GetContext(ctx2, &tier, `
		SELECT id, name, description, entitlements, expires_in_days, price, currency, active, created_at
		FROM credit_tiers
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get tier", ErrInternal)
	}

	return &tier, nil
}
