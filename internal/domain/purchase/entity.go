package purchase

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jobdesk/jobdesk-api/internal/domain/credit"
)

// Status represents the purchase lifecycle. pending is the only non-terminal
// state; completed and failed are final.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Provider identifies where the money came from
type Provider string

const (
	ProviderCheckout Provider = "checkout"
	ProviderManual   Provider = "manual"
)

// EntitlementMap maps credit types to counts. Stored as JSONB on the
// purchase row so completion never depends on catalog state at event time.
type EntitlementMap map[credit.Type]int

// Value implements driver.Valuer
func (m EntitlementMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *EntitlementMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type for entitlement map: %T", src)
	}
}

// Total sums entitlement counts across types
func (m EntitlementMap) Total() int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}

// Validate checks every type is known and every count positive
func (m EntitlementMap) Validate() error {
	if len(m) == 0 {
		return ErrEmptyEntitlement
	}
	for t, n := range m {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", credit.ErrInvalidType, t)
		}
		if n <= 0 {
			return credit.ErrInvalidAmount
		}
	}
	return nil
}

// JSONRawMessage handles NULL json fields from DB
type JSONRawMessage []byte

func (j *JSONRawMessage) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", src)
	}
	return nil
}

func (j JSONRawMessage) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

func (j JSONRawMessage) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// Purchase records one checkout attempt and its declared entitlement. The
// provider session id is unique: replayed creates return the existing row.
type Purchase struct {
	ID                   uuid.UUID      `db:"id" json:"id"`
	UserID               uuid.UUID      `db:"user_id" json:"user_id"`
	SessionID            string         `db:"session_id" json:"session_id"`
	Provider             Provider       `db:"provider" json:"provider"`
	TierID               sql.NullString `db:"tier_id" json:"tier_id,omitempty"`
	Entitlements         EntitlementMap `db:"entitlements" json:"entitlements"`
	Amount               float64        `db:"amount" json:"amount"`
	Currency             string         `db:"currency" json:"currency"`
	Status               Status         `db:"status" json:"status"`
	PaymentRef           sql.NullString `db:"payment_ref" json:"payment_ref,omitempty"`
	FailReason           sql.NullString `db:"fail_reason" json:"fail_reason,omitempty"`
	EntitlementExpiresAt time.Time      `db:"entitlement_expires_at" json:"entitlement_expires_at"`
	CompletedAt          sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt             sql.NullTime   `db:"failed_at" json:"failed_at,omitempty"`
	Metadata             JSONRawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// PurchaseWithCounts annotates a purchase with derived credit usage
type PurchaseWithCounts struct {
	Purchase
	CreditsTotal int `db:"credits_total" json:"credits_total"`
	CreditsUsed  int `db:"credits_used" json:"credits_used"`
}

// Tier is a catalog entry mapping a tier or credit-pack id to its
// entitlements and expiration policy.
type Tier struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Description   string         `db:"description" json:"description"`
	Entitlements  EntitlementMap `db:"entitlements" json:"entitlements"`
	ExpiresInDays int            `db:"expires_in_days" json:"expires_in_days"`
	Price         float64        `db:"price" json:"price"`
	Currency      string         `db:"currency" json:"currency"`
	Active        bool           `db:"active" json:"active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
