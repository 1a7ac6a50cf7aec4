package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ORDERS_TABLE", "orders")
	t.Setenv("ORDER_TIMEOUTS_TABLE", "order-timeouts")
	t.Setenv("IDEMPOTENCY_TABLE", "idempotency")
	t.Setenv("POINT_LEDGER_TABLE", "point-ledger")
	t.Setenv("CUSTOMERS_TABLE", "customers")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, BackendRedis, cfg.Reservation.Backend)
	assert.Equal(t, PolicyFailOpen, cfg.Reservation.FailurePolicy)
	assert.Equal(t, 15*time.Minute, cfg.Reservation.TTL)
	assert.Equal(t, "paid", cfg.Loyalty.TriggerStatus)
	assert.Equal(t, 48*time.Hour, cfg.Idempotency.TTL)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RESERVATION_BACKEND", "dynamodb")
	t.Setenv("RESERVATION_FAILURE_POLICY", "fail-closed")
	t.Setenv("LOYALTY_TRIGGER_STATUS", "delivered")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendDynamoDB, cfg.Reservation.Backend)
	assert.Equal(t, PolicyFailClosed, cfg.Reservation.FailurePolicy)
	assert.Equal(t, "delivered", cfg.Loyalty.TriggerStatus)
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("RESERVATION_BACKEND", "memcached")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memcached")
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	setRequired(t)
	// t.Setenv restores the variable after the test
	require.NoError(t, os.Unsetenv("ORDERS_TABLE"))

	_, err := LoadConfig()
	require.Error(t, err)
}
