package credit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	CountByPurchaseTx(ctx context.Context, tx *sqlx.Tx, purchaseID uuid.UUID) (int, error)
	MintBatchTx(ctx context.Context, tx *sqlx.Tx, credits []Credit) error
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)
	ListExpiring(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]Credit, error)
	LockAvailableTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, t Type, limit int) ([]uuid.UUID, error)
	MarkUsedTx(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID, actionID string, usedAt time.Time) error
}

// CreditRepository provides credit row storage and balance queries.
type CreditRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// CountByPurchaseTx counts credits already minted for a purchase within the
// caller's transaction.
func (r *CreditRepository) CountByPurchaseTx(ctx context.Context, tx *sqlx.Tx, purchaseID uuid.UUID) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM credits WHERE purchase_id = $1`, purchaseID)
	if err != nil {
		return 0, fmt.Errorf("%w: count by purchase", ErrInternal)
	}
	return count, nil
}

// MintBatchTx inserts all credits in a single statement within the caller's
// transaction. The batch either lands whole or not at all.
func (r *CreditRepository) MintBatchTx(ctx context.Context, tx *sqlx.Tx, credits []Credit) error {
	if len(credits) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]interface{}, 0, len(credits)*5)
	sb.WriteString(`INSERT INTO credits (id, user_id, purchase_id, type, expires_at) VALUES `)
	for i, c := range credits {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, c.ID, c.UserID, c.PurchaseID, c.Type, c.ExpiresAt)
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("%w: mint batch insert", ErrInternal)
	}

	return nil
}

// GetBalance counts unused, unexpired credits per type. Expiry is evaluated
// here, at read time; nothing is written.
func (r *CreditRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := []struct {
		Type  Type `db:"type"`
		Count int  `db:"count"`
	}{}

	err := r.db.SelectContext(ctx2, &rows, `
		SELECT type, COUNT(*) AS count
		FROM credits
		WHERE user_id = $1 AND used = false AND expires_at > now()
		GROUP BY type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: get balance", ErrInternal)
	}

	balance := &Balance{}
	for _, row := range rows {
		balance.Add(row.Type, row.Count)
	}

	return balance, nil
}

// ListExpiring returns unused credits expiring before cutoff, soonest first
func (r *CreditRepository) ListExpiring(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]Credit, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	credits := make([]Credit, 0)
	err := r.db.SelectContext(ctx2, &credits, `
		SELECT id, user_id, purchase_id, type, used, used_at, action_id, expires_at, created_at
		FROM credits
		WHERE user_id = $1 AND used = false AND expires_at > now() AND expires_at <= $2
		ORDER BY expires_at ASC
	`, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: list expiring", ErrInternal)
	}

	return credits, nil
}

// LockAvailableTx selects up to limit unused, unexpired credits of one type
// and locks them for the duration of the transaction. Soonest expiry first so
// consumption minimizes value lost to expiry. Rows this transaction already
// marked used are naturally skipped.
func (r *CreditRepository) LockAvailableTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, t Type, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, limit)
	err := tx.SelectContext(ctx, &ids, `
		SELECT id
		FROM credits
		WHERE user_id = $1 AND type = $2 AND used = false AND expires_at > now()
		ORDER BY expires_at ASC
		LIMIT $3
		FOR UPDATE
	`, userID, t, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: lock available credits", ErrInternal)
	}

	return ids, nil
}

// MarkUsedTx flips the locked credits to used. The used flag is monotonic:
// the WHERE clause refuses rows somebody already spent, and a short count
// means the caller must abort the transaction.
func (r *CreditRepository) MarkUsedTx(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID, actionID string, usedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE credits
		SET used = true, used_at = $2, action_id = $3
		WHERE id = ANY($1) AND used = false
	`, pq.Array(ids), usedAt, actionID)
	if err != nil {
		return fmt.Errorf("%w: mark credits used", ErrInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows != int64(len(ids)) {
		return fmt.Errorf("%w: concurrent modification of locked credits", ErrInternal)
	}

	return nil
}
