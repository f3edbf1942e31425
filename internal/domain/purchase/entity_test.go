package purchase_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jobdesk/jobdesk-api/internal/domain/credit"
	"github.com/jobdesk/jobdesk-api/internal/domain/purchase"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, purchase.StatusPending.Terminal())
	assert.True(t, purchase.StatusCompleted.Terminal())
	assert.True(t, purchase.StatusFailed.Terminal())
}

func TestEntitlementMapValidate(t *testing.T) {
	ok := purchase.EntitlementMap{
		credit.TypeJobPost:   3,
		credit.TypeUniversal: 1,
	}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, 4, ok.Total())

	empty := purchase.EntitlementMap{}
	assert.ErrorIs(t, empty.Validate(), purchase.ErrEmptyEntitlement)

	unknown := purchase.EntitlementMap{credit.Type("premium"): 1}
	assert.True(t, errors.Is(unknown.Validate(), credit.ErrInvalidType))

	negative := purchase.EntitlementMap{credit.TypeJobPost: -1}
	assert.ErrorIs(t, negative.Validate(), credit.ErrInvalidAmount)
}
