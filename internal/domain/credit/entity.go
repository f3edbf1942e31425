package credit

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of credit categories. Several types were introduced
// over the life of the platform; legacy type-specific credits stay spendable
// for their own category, universal credits satisfy any category.
type Type string

const (
	TypeUniversal     Type = "universal"
	TypeJobPost       Type = "job_post"
	TypeFeaturedPost  Type = "featured_post"
	TypeSocialGraphic Type = "social_graphic"
	TypeRepost        Type = "repost"
)

// AllTypes is the deterministic order used wherever credits are resolved,
// locked, or reported.
var AllTypes = []Type{TypeUniversal, TypeJobPost, TypeFeaturedPost, TypeSocialGraphic, TypeRepost}

// fallbackOrder maps a requested type to the pools that may satisfy it,
// drained left to right. Type-specific credits are consumed before
// universal ones.
var fallbackOrder = map[Type][]Type{
	TypeUniversal:     {TypeUniversal},
	TypeJobPost:       {TypeJobPost, TypeUniversal},
	TypeFeaturedPost:  {TypeFeaturedPost, TypeUniversal},
	TypeSocialGraphic: {TypeSocialGraphic, TypeUniversal},
	TypeRepost:        {TypeRepost, TypeUniversal},
}

// FallbackPools returns the pools that may satisfy a request for t
func FallbackPools(t Type) []Type {
	return fallbackOrder[t]
}

// Valid reports whether t is a known credit type
func (t Type) Valid() bool {
	_, ok := fallbackOrder[t]
	return ok
}

// Credit is a single consumable entitlement row. Rows are never deleted;
// the only mutation after minting is the monotonic unused -> used transition.
// Expiry is computed from expires_at at query time and never written back.
type Credit struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	UserID     uuid.UUID      `db:"user_id" json:"user_id"`
	PurchaseID uuid.UUID      `db:"purchase_id" json:"purchase_id"`
	Type       Type           `db:"type" json:"type"`
	Used       bool           `db:"used" json:"used"`
	UsedAt     sql.NullTime   `db:"used_at" json:"used_at,omitempty"`
	ActionID   sql.NullString `db:"action_id" json:"action_id,omitempty"`
	ExpiresAt  time.Time      `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Expired reports whether the credit is past its expiration at the given time
func (c *Credit) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Balance is the per-type count of unused, unexpired credits for one user.
// It is derived from credit rows on every read and never stored.
type Balance struct {
	Universal     int `json:"universal"`
	JobPost       int `json:"job_post"`
	FeaturedPost  int `json:"featured_post"`
	SocialGraphic int `json:"social_graphic"`
	Repost        int `json:"repost"`
	Total         int `json:"total"`
}

// Add increments the count for a type and the total
func (b *Balance) Add(t Type, n int) {
	switch t {
	case TypeUniversal:
		b.Universal += n
	case TypeJobPost:
		b.JobPost += n
	case TypeFeaturedPost:
		b.FeaturedPost += n
	case TypeSocialGraphic:
		b.SocialGraphic += n
	case TypeRepost:
		b.Repost += n
	default:
		return
	}
	b.Total += n
}

// Of returns the count for a single type
func (b *Balance) Of(t Type) int {
	switch t {
	case TypeUniversal:
		return b.Universal
	case TypeJobPost:
		return b.JobPost
	case TypeFeaturedPost:
		return b.FeaturedPost
	case TypeSocialGraphic:
		return b.SocialGraphic
	case TypeRepost:
		return b.Repost
	}
	return 0
}

// MintOrder describes the entitlement of a completed purchase to materialize
// as credit rows.
type MintOrder struct {
	PurchaseID   uuid.UUID
	UserID       uuid.UUID
	Entitlements map[Type]int
	ExpiresAt    time.Time
}

// Total sums entitlement counts across types
func (o MintOrder) Total() int {
	total := 0
	for _, n := range o.Entitlements {
		total += n
	}
	return total
}
