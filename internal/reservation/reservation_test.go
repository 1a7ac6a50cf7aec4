package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

type brokenStore struct{ err error }

func (b brokenStore) SetIfAbsent(context.Context, string, int, time.Duration) (bool, error) {
	return false, b.err
}
func (b brokenStore) Delete(context.Context, string) error { return b.err }
func (b brokenStore) Name() string                         { return "broken" }

type countRecorder struct {
	names []string
	dims  []map[string]string
}

func (c *countRecorder) Count(_ context.Context, name string, dims map[string]string) {
	c.names = append(c.names, name)
	c.dims = append(c.dims, dims)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "inventory:lock:p1:v1", Key("p1", "v1"))
	assert.Equal(t, "inventory:lock:p1", Key("p1", ""))
}

func TestClient_NoStoreFailOpenLogsWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	metrics := &countRecorder{}
	c := NewClient(nil, ClientConfig{Logger: zap.New(core), Metrics: metrics})

	ok, err := c.Acquire(context.Background(), Key("p1", "v1"), 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.Degraded())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "degraded", entry.ContextMap()["reservation_store"])
	assert.Equal(t, []string{aws.MetricReservationDegraded}, metrics.names)
	assert.Equal(t, "none", metrics.dims[0]["backend"])

	// release without a store is a silent no-op
	require.NoError(t, c.Release(context.Background(), Key("p1", "v1")))
}

func TestClient_StoreErrorFailOpen(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := NewClient(brokenStore{err: errors.New("dial tcp: connection refused")}, ClientConfig{Logger: zap.New(core)})

	ok, err := c.Acquire(context.Background(), "inventory:lock:p1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, logs.FilterField(zap.String("op", "acquire")).Len())

	// release errors are logged, not returned
	require.NoError(t, c.Release(context.Background(), "inventory:lock:p1"))
	assert.Equal(t, 2, logs.Len())
}

func TestClient_StoreErrorFailClosed(t *testing.T) {
	c := NewClient(brokenStore{err: errors.New("timeout")}, ClientConfig{Policy: FailClosed})

	ok, err := c.Acquire(context.Background(), "inventory:lock:p1", 1)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errs.Is(err, errs.ErrDownstream))

	err = c.Release(context.Background(), "inventory:lock:p1")
	assert.True(t, errs.Is(err, errs.ErrDownstream))
}

func TestClient_DefaultTTL(t *testing.T) {
	c := NewClient(nil, ClientConfig{})
	assert.Equal(t, 900*time.Second, c.TTL())
}
