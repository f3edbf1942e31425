package credit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Service defines the credit ledger operations
type Service interface {
	// MintTx materializes a completed purchase's entitlement as credit rows
	// within the caller's transaction. Exactly-once: if credits already
	// reference the purchase the call is a no-op success. Returns the number
	// of credits minted.
	MintTx(ctx context.Context, tx *sqlx.Tx, order MintOrder) (int, error)

	// GetBalance returns per-type counts of unused, unexpired credits
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)

	// GetExpiringSoon returns unused credits expiring within the window
	GetExpiringSoon(ctx context.Context, userID uuid.UUID, withinDays int) ([]Credit, error)

	// UseCredits atomically debits credits for one gated action. Either every
	// requested count is satisfied and debited, or nothing changes and an
	// *InsufficientCreditsError reports the exact shortfall. Type-specific
	// credits are consumed before universal ones; within a pool the credit
	// expiring soonest is consumed first. On success the returned balance may
	// be nil if the follow-up read fails; the debit itself is committed.
	UseCredits(ctx context.Context, userID uuid.UUID, actionID string, requested map[Type]int) (*Balance, error)
}

type service struct {
	db   *sqlx.DB
	repo Repository
}

// NewService creates a new credit service
func NewService(db *sqlx.DB) Service {
	return &service{db: db, repo: NewRepository(db)}
}

// NewServiceWithRepository creates a credit service with an explicit repository
func NewServiceWithRepository(db *sqlx.DB, repo Repository) Service {
	return &service{db: db, repo: repo}
}

func (s *service) MintTx(ctx context.Context, tx *sqlx.Tx, order MintOrder) (int, error) {
	if order.PurchaseID == uuid.Nil || order.UserID == uuid.Nil {
		return 0, fmt.Errorf("%w: mint order missing ids", ErrInternal)
	}
	for t, n := range order.Entitlements {
		if !t.Valid() {
			return 0, ErrInvalidType
		}
		if n <= 0 {
			return 0, ErrInvalidAmount
		}
	}
	if order.Total() == 0 {
		return 0, ErrInvalidAmount
	}

	// Race defense: the purchase-status claim upstream is the structural
	// guard, this keeps a replayed transaction from inserting twice.
	existing, err := s.repo.CountByPurchaseTx(ctx, tx, order.PurchaseID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		log.Debug().
			Str("purchase_id", order.PurchaseID.String()).
			Int("existing", existing).
			Msg("Credits already minted for purchase, skipping")
		return 0, nil
	}

	credits := make([]Credit, 0, order.Total())
	for _, t := range AllTypes {
		n, ok := order.Entitlements[t]
		if !ok {
			continue
		}
		for i := 0; i < n; i++ {
			credits = append(credits, Credit{
				ID:         uuid.New(),
				UserID:     order.UserID,
				PurchaseID: order.PurchaseID,
				Type:       t,
				ExpiresAt:  order.ExpiresAt,
			})
		}
	}

	if err := s.repo.MintBatchTx(ctx, tx, credits); err != nil {
		return 0, err
	}

	return len(credits), nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	return s.repo.GetBalance(ctx, userID)
}

func (s *service) GetExpiringSoon(ctx context.Context, userID uuid.UUID, withinDays int) ([]Credit, error) {
	if withinDays <= 0 {
		withinDays = 7
	}
	cutoff := time.Now().AddDate(0, 0, withinDays)
	return s.repo.ListExpiring(ctx, userID, cutoff)
}

func (s *service) UseCredits(ctx context.Context, userID uuid.UUID, actionID string, requested map[Type]int) (*Balance, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", ErrInternal)
	}
	if len(requested) == 0 {
		return nil, ErrInvalidAmount
	}
	for t, n := range requested {
		if !t.Valid() {
			return nil, ErrInvalidType
		}
		if n <= 0 {
			return nil, ErrInvalidAmount
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	usedAt := time.Now()
	shortfall := make(map[Type]int)
	debited := 0

	// Iterate types in the fixed global order so concurrent consumers lock
	// rows in a consistent sequence.
	for _, t := range AllTypes {
		need, ok := requested[t]
		if !ok {
			continue
		}
		for _, pool := range FallbackPools(t) {
			if need == 0 {
				break
			}
			ids, err := s.repo.LockAvailableTx(ctx2, tx, userID, pool, need)
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				continue
			}
			// Mark immediately so a later fallback pass over the same
			// universal pool does not re-select these rows.
			if err := s.repo.MarkUsedTx(ctx2, tx, ids, actionID, usedAt); err != nil {
				return nil, err
			}
			debited += len(ids)
			need -= len(ids)
		}
		if need > 0 {
			shortfall[t] = need
		}
	}

	if len(shortfall) > 0 {
		// Rollback via defer: no partial debit survives.
		return nil, &InsufficientCreditsError{Shortfall: shortfall}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("action_id", actionID).
		Int("debited", debited).
		Msg("Credits consumed")

	// The debit is committed; a failed balance read must not turn the
	// success into a denial for the caller.
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		log.Warn().Err(err).
			Str("user_id", userID.String()).
			Str("action_id", actionID).
			Msg("Balance read after debit failed")
		return nil, nil
	}

	return balance, nil
}
