package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws/dynamotest"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestStore() (*Store, *dynamotest.Fake) {
	fake := dynamotest.New().CreateTable("idempotency", "idempotency_key")
	return NewStore(fake, "idempotency", 48*time.Hour, clock.NewMockClock(testNow)), fake
}

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()
	key := "test-key-1"

	created, err := s.CreateIfNotExists(ctx, key)
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key)
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if want := testNow.Add(48 * time.Hour).Unix(); rec.ExpiresAt != want {
		t.Fatalf("expires_at = %d, want %d", rec.ExpiresAt, want)
	}

	if err := s.MarkDone(ctx, key, "order-123", `{"ok":true}`, 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	item := fake.Item("idempotency", key)
	if item == nil {
		t.Fatalf("item missing")
	}
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != `{"ok":true}` {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	done, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after done: %v", err)
	}
	if done.OrderID != "order-123" || done.ResponseStatus != 201 {
		t.Fatalf("unexpected done record: %+v", done)
	}

	// MarkFailed overwrites status
	if err := s.MarkFailed(ctx, key, "failed-reason"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item2 := fake.Item("idempotency", key)
	if st, ok := item2["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusFailed {
		t.Fatalf("status not updated to FAILED, got %+v", item2["status"])
	}
	if n, ok := item2["note"].(*types.AttributeValueMemberS); !ok || n.Value != "failed-reason" {
		t.Fatalf("note not set, got %+v", item2["note"])
	}
}

func TestReclaim(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, "k1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// only FAILED records can be reclaimed
	ok, err := s.Reclaim(ctx, "k1")
	if err != nil {
		t.Fatalf("reclaim in-progress: %v", err)
	}
	if ok {
		t.Fatalf("reclaimed an in-progress record")
	}

	if err := s.MarkFailed(ctx, "k1", "out of stock"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	ok, err = s.Reclaim(ctx, "k1")
	if err != nil {
		t.Fatalf("reclaim failed record: %v", err)
	}
	if !ok {
		t.Fatalf("expected reclaim to succeed")
	}

	item := fake.Item("idempotency", "k1")
	if st := item["status"].(*types.AttributeValueMemberS).Value; st != StatusInProgress {
		t.Fatalf("status after reclaim = %s", st)
	}
	if _, has := item["note"]; has {
		t.Fatalf("note should be cleared on reclaim")
	}

	// a second concurrent reclaim loses
	ok, err = s.Reclaim(ctx, "k1")
	if err != nil || ok {
		t.Fatalf("second reclaim = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestGet_Missing(t *testing.T) {
	s, _ := newTestStore()
	rec, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestStore_DownstreamErrors(t *testing.T) {
	s, fake := newTestStore()
	fake.FailOn("PutItem", "idempotency", errors.New("throttled"))

	_, err := s.CreateIfNotExists(context.Background(), "k1")
	if !errs.Is(err, errs.ErrDownstream) {
		t.Fatalf("expected downstream error, got %v", err)
	}
}
