package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestNewEntitlement(t *testing.T) {
	productID := uuid.New()
	customerID := uuid.New()
	expiry := time.Now().Add(24 * time.Hour)

	ent := NewEntitlement("ent_abc", productID, &customerID, intPtr(3), &expiry)

	assert.NotEqual(t, uuid.Nil, ent.ID)
	assert.Equal(t, "ent_abc", ent.DownloadToken)
	assert.Equal(t, productID, ent.ProductID)
	require.NotNil(t, ent.CustomerID)
	assert.Equal(t, customerID, *ent.CustomerID)
	assert.Equal(t, EntitlementStatusActive, ent.Status)
	assert.Equal(t, 0, ent.DownloadCount)
	assert.Nil(t, ent.FirstDownloadAt)
	assert.Nil(t, ent.LastDownloadAt)
}

func TestEntitlementStatusIsValid(t *testing.T) {
	for _, s := range []EntitlementStatus{
		EntitlementStatusActive,
		EntitlementStatusExpired,
		EntitlementStatusSuspended,
		EntitlementStatusExhausted,
	} {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, EntitlementStatus("frozen").IsValid())
	assert.False(t, EntitlementStatus("").IsValid())
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	t.Run("nil expiry never expires", func(t *testing.T) {
		ent := NewEntitlement("ent_a", uuid.New(), nil, nil, nil)
		assert.False(t, ent.IsExpired(now.Add(100*365*24*time.Hour)))
	})

	t.Run("before expiry", func(t *testing.T) {
		exp := now.Add(time.Hour)
		ent := NewEntitlement("ent_b", uuid.New(), nil, nil, &exp)
		assert.False(t, ent.IsExpired(now))
	})

	t.Run("expiry instant counts as expired", func(t *testing.T) {
		exp := now
		ent := NewEntitlement("ent_c", uuid.New(), nil, nil, &exp)
		assert.True(t, ent.IsExpired(now))
	})

	t.Run("after expiry", func(t *testing.T) {
		exp := now.Add(-time.Second)
		ent := NewEntitlement("ent_d", uuid.New(), nil, nil, &exp)
		assert.True(t, ent.IsExpired(now))
	})
}

func TestIsExhausted(t *testing.T) {
	t.Run("nil limit never exhausts", func(t *testing.T) {
		ent := NewEntitlement("ent_a", uuid.New(), nil, nil, nil)
		ent.DownloadCount = 1 << 20
		assert.False(t, ent.IsExhausted())
	})

	t.Run("below limit", func(t *testing.T) {
		ent := NewEntitlement("ent_b", uuid.New(), nil, intPtr(3), nil)
		ent.DownloadCount = 2
		assert.False(t, ent.IsExhausted())
	})

	t.Run("at limit", func(t *testing.T) {
		ent := NewEntitlement("ent_c", uuid.New(), nil, intPtr(3), nil)
		ent.DownloadCount = 3
		assert.True(t, ent.IsExhausted())
	})
}

func TestRemainingDownloads(t *testing.T) {
	t.Run("unlimited is nil", func(t *testing.T) {
		ent := NewEntitlement("ent_a", uuid.New(), nil, nil, nil)
		assert.Nil(t, ent.RemainingDownloads())
	})

	t.Run("counts down", func(t *testing.T) {
		ent := NewEntitlement("ent_b", uuid.New(), nil, intPtr(5), nil)
		ent.DownloadCount = 2
		rem := ent.RemainingDownloads()
		require.NotNil(t, rem)
		assert.Equal(t, 3, *rem)
	})

	t.Run("never negative", func(t *testing.T) {
		ent := NewEntitlement("ent_c", uuid.New(), nil, intPtr(2), nil)
		ent.DownloadCount = 5
		rem := ent.RemainingDownloads()
		require.NotNil(t, rem)
		assert.Equal(t, 0, *rem)
	})
}

func TestDeriveStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	t.Run("fresh is active", func(t *testing.T) {
		ent := NewEntitlement("ent_a", uuid.New(), nil, intPtr(3), nil)
		assert.Equal(t, EntitlementStatusActive, ent.DeriveStatus(now))
	})

	t.Run("suspension wins over everything", func(t *testing.T) {
		ent := NewEntitlement("ent_b", uuid.New(), nil, intPtr(1), &past)
		ent.Status = EntitlementStatusSuspended
		ent.DownloadCount = 1
		assert.Equal(t, EntitlementStatusSuspended, ent.DeriveStatus(now))
	})

	t.Run("expiry before exhaustion", func(t *testing.T) {
		ent := NewEntitlement("ent_c", uuid.New(), nil, intPtr(1), &past)
		ent.DownloadCount = 1
		assert.Equal(t, EntitlementStatusExpired, ent.DeriveStatus(now))
	})

	t.Run("exhausted", func(t *testing.T) {
		ent := NewEntitlement("ent_d", uuid.New(), nil, intPtr(2), nil)
		ent.DownloadCount = 2
		assert.Equal(t, EntitlementStatusExhausted, ent.DeriveStatus(now))
	})

	t.Run("stale stored status is ignored", func(t *testing.T) {
		exp := now.Add(time.Hour)
		ent := NewEntitlement("ent_e", uuid.New(), nil, nil, &exp)
		ent.Status = EntitlementStatusExpired
		assert.Equal(t, EntitlementStatusActive, ent.DeriveStatus(now))
	})
}
