// Package reservation acquires and releases short-lived inventory locks in a
// shared key-value store. Keys are "inventory:lock:{productId}:{variantId}".
package reservation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// DefaultTTL bounds how long a crashed caller can keep inventory locked.
const DefaultTTL = 900 * time.Second

const keyPrefix = "inventory:lock:"

// Key builds the reservation key for a product variant. Products without
// variants use the product id alone.
func Key(productID, variantID string) string {
	if variantID == "" {
		return keyPrefix + productID
	}
	return keyPrefix + productID + ":" + variantID
}

// Store is a backend that supports an atomic set-if-absent with expiry.
type Store interface {
	// SetIfAbsent stores value under key for ttl. It reports false when key is already held.
	SetIfAbsent(ctx context.Context, key string, value int, ttl time.Duration) (bool, error)
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Name() string
}

// Policy decides what Acquire reports when the store is missing or failing.
type Policy string

const (
	// FailOpen treats the store as advisory: reservations succeed and a warning is logged.
	FailOpen Policy = "fail-open"
	// FailClosed refuses reservations while the store is unavailable.
	FailClosed Policy = "fail-closed"
)

// Counter receives degraded-mode counts. *aws.Metrics satisfies it.
type Counter interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

type ClientConfig struct {
	Policy  Policy
	TTL     time.Duration
	Logger  *zap.Logger
	Metrics Counter
}

// Client is the reservation entry point used by the order manager. A nil
// store is allowed and means the deployment runs without coordination.
type Client struct {
	store   Store
	policy  Policy
	ttl     time.Duration
	logger  *zap.Logger
	metrics Counter
}

func NewClient(store Store, cfg ClientConfig) *Client {
	c := &Client{
		store:   store,
		policy:  cfg.Policy,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if c.policy == "" {
		c.policy = FailOpen
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Degraded reports whether the client runs without a backing store.
func (c *Client) Degraded() bool { return c.store == nil }

// TTL is the expiry applied to every reservation.
func (c *Client) TTL() time.Duration { return c.ttl }

// Acquire reserves quantity units under key. It returns false without error
// when another holder owns the key. Store failures follow the client policy.
func (c *Client) Acquire(ctx context.Context, key string, quantity int) (bool, error) {
	if c.store == nil {
		return c.degraded(ctx, "acquire", key, errs.New("reservation store not configured"))
	}

	ok, err := c.store.SetIfAbsent(ctx, key, quantity, c.ttl)
	if err != nil {
		return c.degraded(ctx, "acquire", key, err)
	}
	if !ok {
		c.logger.Debug("reservation held elsewhere", zap.String("key", key))
	}
	return ok, nil
}

// Release drops the reservation under key. It is idempotent.
func (c *Client) Release(ctx context.Context, key string) error {
	if c.store == nil {
		c.logger.Debug("release skipped, no reservation store", zap.String("key", key))
		return nil
	}
	if err := c.store.Delete(ctx, key); err != nil {
		if c.policy == FailClosed {
			return errs.Downstream(err, "release reservation")
		}
		c.logger.Warn("reservation release failed",
			zap.String("key", key),
			zap.String("backend", c.store.Name()),
			zap.Error(err))
		c.count(ctx, "release")
	}
	return nil
}

func (c *Client) degraded(ctx context.Context, op, key string, cause error) (bool, error) {
	if c.policy == FailClosed {
		return false, errs.Downstream(cause, "reservation store unavailable")
	}
	c.logger.Warn("reservation store degraded, proceeding without lock",
		zap.String("reservation_store", "degraded"),
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(cause))
	c.count(ctx, op)
	return true, nil
}

func (c *Client) count(ctx context.Context, op string) {
	if c.metrics == nil {
		return
	}
	backend := "none"
	if c.store != nil {
		backend = c.store.Name()
	}
	c.metrics.Count(ctx, aws.MetricReservationDegraded, map[string]string{"op": op, "backend": backend})
}
