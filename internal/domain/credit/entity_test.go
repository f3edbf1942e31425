package credit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jobdesk/jobdesk-api/internal/domain/credit"
)

func TestTypeValid(t *testing.T) {
	for _, typ := range credit.AllTypes {
		assert.True(t, typ.Valid(), "expected %s to be valid", typ)
	}

	assert.False(t, credit.Type("premium").Valid())
	assert.False(t, credit.Type("").Valid())
}

func TestFallbackPools(t *testing.T) {
	// Universal never falls back to anything else.
	assert.Equal(t, []credit.Type{credit.TypeUniversal}, credit.FallbackPools(credit.TypeUniversal))

	// Every specific type drains its own pool first, then universal.
	for _, typ := range credit.AllTypes {
		if typ == credit.TypeUniversal {
			continue
		}
		assert.Equal(t, []credit.Type{typ, credit.TypeUniversal}, credit.FallbackPools(typ))
	}
}

func TestBalanceAddAndOf(t *testing.T) {
	var b credit.Balance
	b.Add(credit.TypeJobPost, 3)
	b.Add(credit.TypeUniversal, 2)
	b.Add(credit.TypeJobPost, 1)

	assert.Equal(t, 4, b.Of(credit.TypeJobPost))
	assert.Equal(t, 2, b.Of(credit.TypeUniversal))
	assert.Equal(t, 0, b.Of(credit.TypeRepost))
	assert.Equal(t, 6, b.Total)

	// Unknown types do not disturb the total.
	b.Add(credit.Type("bogus"), 5)
	assert.Equal(t, 6, b.Total)
}

func TestCreditExpired(t *testing.T) {
	now := time.Now()
	c := credit.Credit{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, c.Expired(now))
	assert.True(t, c.Expired(now.Add(time.Hour)))
	assert.True(t, c.Expired(now.Add(2*time.Hour)))
}

func TestInsufficientCreditsErrorMessage(t *testing.T) {
	err := &credit.InsufficientCreditsError{
		Shortfall: map[credit.Type]int{
			credit.TypeJobPost:   2,
			credit.TypeUniversal: 1,
		},
	}

	// Types are reported in the fixed global order.
	assert.Equal(t, "insufficient credits: need 1 more universal, 2 more job_post", err.Error())

	shortage, ok := credit.IsInsufficientCredits(err)
	assert.True(t, ok)
	assert.Equal(t, 2, shortage.Shortfall[credit.TypeJobPost])

	_, ok = credit.IsInsufficientCredits(credit.ErrInvalidType)
	assert.False(t, ok)
}
