package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws/dynamotest"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
)

func TestDynamoStore_AcquireReleaseCycle(t *testing.T) {
	fake := dynamotest.New().CreateTable("inventory-reservations", "lock_key")
	clk := clock.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewDynamoStore(fake, "inventory-reservations", clk)
	ctx := context.Background()
	key := Key("p1", "v1")

	ok, err := store.SetIfAbsent(ctx, key, 2, DefaultTTL)
	require.NoError(t, err)
	assert.True(t, ok)

	item := fake.Item("inventory-reservations", key)
	require.NotNil(t, item)
	exp := item["expires_at"].(*types.AttributeValueMemberN).Value
	assert.Equal(t, "1772360100", exp) // 10:15 UTC

	ok, err = store.SetIfAbsent(ctx, key, 1, DefaultTTL)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	assert.Equal(t, 0, fake.Len("inventory-reservations"))
}

func TestDynamoStore_UnevictedEntryStillHeld(t *testing.T) {
	fake := dynamotest.New().CreateTable("inventory-reservations", "lock_key")
	clk := clock.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewDynamoStore(fake, "inventory-reservations", clk)
	ctx := context.Background()

	ok, err := store.SetIfAbsent(ctx, "inventory:lock:p1", 1, DefaultTTL)
	require.NoError(t, err)
	require.True(t, ok)

	// TTL eviction has not run yet, but the lock is past its expiry
	clk.Add(16 * time.Minute)
	ok, err = store.SetIfAbsent(ctx, "inventory:lock:p1", 1, DefaultTTL)
	require.NoError(t, err)
	assert.False(t, ok)

	c := NewClient(store, ClientConfig{Policy: FailClosed})
	ok, err = c.Acquire(ctx, "inventory:lock:p1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// once evicted the key is free again
	require.NoError(t, store.Delete(ctx, "inventory:lock:p1"))
	ok, err = c.Acquire(ctx, "inventory:lock:p1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDynamoStore_ErrorsPropagate(t *testing.T) {
	fake := dynamotest.New().CreateTable("inventory-reservations", "lock_key")
	fake.FailOn("PutItem", "", errors.New("ProvisionedThroughputExceeded"))
	c := NewClient(NewDynamoStore(fake, "inventory-reservations", nil), ClientConfig{})

	// default policy is fail-open
	ok, err := c.Acquire(context.Background(), "inventory:lock:p1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
