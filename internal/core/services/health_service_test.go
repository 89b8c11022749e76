package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/services"
)

func TestHealthService_Check(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		svc := services.NewHealthService(fixedClock(now), true, "", nil)
		h := svc.Check(context.Background())
		assert.Equal(t, domain.StatusUp, h.Status)
		assert.Equal(t, now, h.Timestamp)
		assert.True(t, h.TLSEnabled)
		assert.Equal(t, "root -> intermediate -> server", h.ChainDescription)
	})

	t.Run("failing check reports down", func(t *testing.T) {
		t.Parallel()
		svc := services.NewHealthService(fixedClock(now), true, "a -> b", nil)
		require.NoError(t, svc.RegisterCheck("ok", func(context.Context) error { return nil }))
		require.NoError(t, svc.RegisterCheck("keystore", func(context.Context) error { return errors.New("expired") }))

		h := svc.Check(context.Background())
		assert.Equal(t, domain.StatusDown, h.Status)
		assert.Equal(t, "a -> b", h.ChainDescription)
	})

	t.Run("invalid registration", func(t *testing.T) {
		t.Parallel()
		svc := services.NewHealthService(nil, false, "", nil)
		assert.Error(t, svc.RegisterCheck("", func(context.Context) error { return nil }))
		assert.Error(t, svc.RegisterCheck("nil", nil))
	})
}

func TestHealthService_TimestampTracksClock(t *testing.T) {
	t.Parallel()

	svc := services.NewHealthService(nil, true, "", nil)
	first := svc.Check(context.Background())
	second := svc.Check(context.Background())
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}
