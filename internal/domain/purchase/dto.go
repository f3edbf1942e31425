package purchase

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutRequest starts a checkout for a catalog tier or credit pack
type CheckoutRequest struct {
	TierID string `json:"tier_id" validate:"required,min=1,max=64"`
}

// CheckoutResponse returns the pending purchase and the provider redirect
type CheckoutResponse struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	SessionID  string    `json:"session_id"`
	PaymentURL string    `json:"payment_url"`
	Status     Status    `json:"status"`
}

// GrantRequest issues a manual compensating credit grant
type GrantRequest struct {
	Credits       map[string]int `json:"credits" validate:"required,min=1"`
	ExpiresInDays int            `json:"expires_in_days" validate:"omitempty,min=1,max=730"`
	Reason        string         `json:"reason" validate:"required,min=3,max=500"`
}

// HistoryItemResponse is one purchase with derived credit usage
type HistoryItemResponse struct {
	ID                   uuid.UUID      `json:"id"`
	TierID               string         `json:"tier_id,omitempty"`
	Provider             Provider       `json:"provider"`
	Entitlements         EntitlementMap `json:"entitlements"`
	Amount               float64        `json:"amount"`
	Currency             string         `json:"currency"`
	Status               Status         `json:"status"`
	CreditsTotal         int            `json:"credits_total"`
	CreditsUsed          int            `json:"credits_used"`
	EntitlementExpiresAt time.Time      `json:"entitlement_expires_at"`
	CreatedAt            time.Time      `json:"created_at"`
}

// HistoryItemFromEntity converts a purchase row to its API shape
func HistoryItemFromEntity(p *PurchaseWithCounts) *HistoryItemResponse {
	item := &HistoryItemResponse{
		ID:                   p.ID,
		Provider:             p.Provider,
		Entitlements:         p.Entitlements,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Status:               p.Status,
		CreditsTotal:         p.CreditsTotal,
		CreditsUsed:          p.CreditsUsed,
		EntitlementExpiresAt: p.EntitlementExpiresAt,
		CreatedAt:            p.CreatedAt,
	}
	if p.TierID.Valid {
		item.TierID = p.TierID.String
	}
	return item
}
