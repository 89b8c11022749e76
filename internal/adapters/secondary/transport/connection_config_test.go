package transport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sufield/securechain/internal/adapters/secondary/transport"
)

func TestDefaultConnectionConfig(t *testing.T) {
	t.Parallel()

	config := transport.DefaultConnectionConfig()

	assert.NotNil(t, config)
	assert.Equal(t, 10*time.Second, config.DialTimeout)
	assert.Equal(t, 10*time.Second, config.TLSHandshakeTimeout)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, 90*time.Second, config.IdleConnTimeout)
	assert.Equal(t, int64(1<<20), config.MaxResponseBytes)
}

func TestDevelopmentConnectionConfig(t *testing.T) {
	t.Parallel()

	config := transport.DevelopmentConnectionConfig()

	assert.Equal(t, 2*time.Second, config.DialTimeout)
	assert.Equal(t, 5*time.Second, config.RequestTimeout)
	assert.Equal(t, 10*time.Second, config.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, config.TLSHandshakeTimeout)
}
