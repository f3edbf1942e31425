package purchase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jobdesk/jobdesk-api/internal/domain/credit"
	"github.com/jobdesk/jobdesk-api/internal/pkg/checkout"
)

// Sessions creates and inspects provider checkout sessions
type Sessions interface {
	CreateSession(ctx context.Context, req checkout.CreateSessionRequest) (*checkout.Session, error)
	GetSession(ctx context.Context, sessionID string) (*checkout.Session, error)
}

// Service drives the purchase lifecycle: idempotent creation, event
// reconciliation, exactly-once minting, and manual compensating grants.
type Service struct {
	repo      Repository
	creditSvc credit.Service
	sessions  Sessions

	returnURL   string
	callbackURL string
}

// NewService creates a purchase service
func NewService(repo Repository, creditSvc credit.Service, sessions Sessions, returnURL, callbackURL string) *Service {
	return &Service{
		repo:        repo,
		creditSvc:   creditSvc,
		sessions:    sessions,
		returnURL:   returnURL,
		callbackURL: callbackURL,
	}
}

// Tiers lists active catalog entries
func (s *Service) Tiers(ctx context.Context) ([]Tier, error) {
	return s.repo.ListTiers(ctx, true)
}

// StartCheckout opens a provider session for a catalog tier and records the
// pending purchase. Replays keyed on the same session id return the existing
// purchase instead of duplicating it.
func (s *Service) StartCheckout(ctx context.Context, userID uuid.UUID, tierID string) (*Purchase, string, error) {
	tier, err := s.repo.GetTier(ctx, tierID)
	if err != nil {
		return nil, "", err
	}
	if tier == nil || !tier.Active {
		return nil, "", ErrTierNotFound
	}
	if err := tier.Entitlements.Validate(); err != nil {
		return nil, "", err
	}

	purchaseID := uuid.New()
	session, err := s.sessions.CreateSession(ctx, checkout.CreateSessionRequest{
		Amount:      tier.Price,
		Currency:    tier.Currency,
		OrderID:     purchaseID.String(),
		Description: tier.Name,
		ReturnURL:   s.returnURL,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start checkout: %w", err)
	}

	p := &Purchase{
		ID:                   purchaseID,
		UserID:               userID,
		SessionID:            session.ID,
		Provider:             ProviderCheckout,
		TierID:               sql.NullString{String: tier.ID, Valid: true},
		Entitlements:         tier.Entitlements,
		Amount:               tier.Price,
		Currency:             tier.Currency,
		Status:               StatusPending,
		EntitlementExpiresAt: time.Now().AddDate(0, 0, tier.ExpiresInDays),
	}

	stored, created, err := s.repo.CreateIdempotent(ctx, p)
	if err != nil {
		return nil, "", err
	}
	if !created {
		log.Info().
			Str("session_id", session.ID).
			Str("purchase_id", stored.ID.String()).
			Msg("Checkout session already recorded, returning existing purchase")
	}

	return stored, session.PaymentURL, nil
}

// HandleEvent reconciles one provider notification. Delivery is
// at-least-once: duplicates are absorbed, unknown references and
// informational (non-terminal) events are logged and acknowledged, and only
// storage errors propagate so the provider retries.
func (s *Service) HandleEvent(ctx context.Context, event *checkout.WebhookEvent) error {
	p, err := s.repo.GetBySessionID(ctx, event.SessionID)
	if err != nil {
		return err
	}
	if p == nil {
		log.Warn().
			Str("session_id", event.SessionID).
			Str("event_type", event.EventType).
			Msg("Webhook references unknown purchase, acknowledging")
		return nil
	}

	if !event.Terminal() {
		log.Debug().
			Str("purchase_id", p.ID.String()).
			Str("event_type", event.EventType).
			Msg("Non-terminal checkout event, nothing to apply")
		return nil
	}

	if p.Status.Terminal() {
		if (p.Status == StatusCompleted) == event.Succeeded() {
			log.Debug().
				Str("purchase_id", p.ID.String()).
				Str("event_type", event.EventType).
				Msg("Duplicate webhook for terminal purchase, ignoring")
			return nil
		}
		log.Error().
			Str("purchase_id", p.ID.String()).
			Str("status", string(p.Status)).
			Str("event_type", event.EventType).
			Msg("Webhook conflicts with terminal purchase status")
		return nil
	}

	if !event.Succeeded() {
		reason := event.Reason
		if reason == "" {
			reason = event.EventType
		}
		return s.Fail(ctx, p.ID, reason)
	}

	if event.AmountPaid > 0 && event.AmountPaid != p.Amount {
		log.Warn().
			Str("purchase_id", p.ID.String()).
			Float64("expected", p.Amount).
			Float64("paid", event.AmountPaid).
			Msg("Webhook amount differs from purchase amount")
	}

	return s.Complete(ctx, p.ID, event.PaymentRef)
}

// Complete drives pending -> completed and mints the entitlement, all in one
// transaction. The conditional status update is the structural guard: of any
// number of concurrent callers exactly one claims the transition and mints,
// the rest observe a terminal row. Already completed is a no-op success;
// completed after failed is rejected.
func (s *Service) Complete(ctx context.Context, purchaseID uuid.UUID, paymentRef string) error {
	tx, err := s.repo.BeginTxx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	claimed, err := s.repo.ClaimCompletionTx(ctx, tx, purchaseID, paymentRef)
	if err != nil {
		return err
	}
	if !claimed {
		p, err := s.repo.GetByIDTx(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPurchaseNotFound
		}
		if p.Status == StatusCompleted {
			return nil
		}
		log.Error().
			Str("purchase_id", purchaseID.String()).
			Str("status", string(p.Status)).
			Msg("Refusing to complete purchase in terminal state")
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, purchaseID, p.Status)
	}

	p, err := s.repo.GetByIDTx(ctx, tx, purchaseID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPurchaseNotFound
	}

	minted, err := s.creditSvc.MintTx(ctx, tx, credit.MintOrder{
		PurchaseID:   p.ID,
		UserID:       p.UserID,
		Entitlements: p.Entitlements,
		ExpiresAt:    p.EntitlementExpiresAt,
	})
	if err != nil {
		// Rollback reverts the completion claim too, so a retry starts from
		// a clean pending purchase with no credits.
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit completion", ErrInternal)
	}

	log.Info().
		Str("purchase_id", p.ID.String()).
		Str("user_id", p.UserID.String()).
		Int("minted", minted).
		Msg("Purchase completed and credits minted")

	return nil
}

// Fail drives pending -> failed. Already failed is a no-op success; failing
// a completed purchase is rejected.
func (s *Service) Fail(ctx context.Context, purchaseID uuid.UUID, reason string) error {
	moved, err := s.repo.MarkFailed(ctx, purchaseID, reason)
	if err != nil {
		return err
	}
	if moved {
		log.Info().
			Str("purchase_id", purchaseID.String()).
			Str("reason", reason).
			Msg("Purchase marked failed")
		return nil
	}

	p, err := s.repo.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPurchaseNotFound
	}
	if p.Status == StatusFailed {
		return nil
	}

	log.Error().
		Str("purchase_id", purchaseID.String()).
		Str("status", string(p.Status)).
		Msg("Refusing to fail purchase in terminal state")
	return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, purchaseID, p.Status)
}

// GrantManual issues credits without a checkout: a completed manual-provider
// purchase is created and minted in one transaction. Corrections are always
// new compensating grants, never edits of existing history.
func (s *Service) GrantManual(ctx context.Context, adminID, userID uuid.UUID, entitlements EntitlementMap, expiresInDays int, reason string) (*Purchase, error) {
	if err := entitlements.Validate(); err != nil {
		return nil, err
	}
	if expiresInDays <= 0 {
		expiresInDays = 30
	}

	now := time.Now()
	metadata, _ := json.Marshal(map[string]string{
		"granted_by": adminID.String(),
		"reason":     strings.TrimSpace(reason),
	})

	p := &Purchase{
		ID:                   uuid.New(),
		UserID:               userID,
		SessionID:            "manual:" + uuid.NewString(),
		Provider:             ProviderManual,
		Entitlements:         entitlements,
		Amount:               0,
		Currency:             "KZT",
		Status:               StatusCompleted,
		CompletedAt:          sql.NullTime{Time: now, Valid: true},
		EntitlementExpiresAt: now.AddDate(0, 0, expiresInDays),
		Metadata:             metadata,
	}

	tx, err := s.repo.BeginTxx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.repo.CreateTx(ctx, tx, p); err != nil {
		return nil, err
	}

	minted, err := s.creditSvc.MintTx(ctx, tx, credit.MintOrder{
		PurchaseID:   p.ID,
		UserID:       p.UserID,
		Entitlements: p.Entitlements,
		ExpiresAt:    p.EntitlementExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit manual grant", ErrInternal)
	}

	log.Info().
		Str("purchase_id", p.ID.String()).
		Str("user_id", userID.String()).
		Str("admin_id", adminID.String()).
		Int("minted", minted).
		Msg("Manual credit grant issued")

	return p, nil
}

// History returns the user's purchases annotated with credit usage
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]PurchaseWithCounts, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// StuckPending lists purchases pending past the threshold
func (s *Service) StuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]Purchase, error) {
	return s.repo.ListStuckPending(ctx, olderThan, limit)
}
