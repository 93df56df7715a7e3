//go:build !integration

package redis

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"coolpay-gateway/internal/domain/model"
)

func cachedTransaction() *model.Transaction {
	return &model.Transaction{
		ID:       1001,
		Type:     "Payment",
		OrderID:  "0042",
		Accepted: true,
		TestMode: true,
		State:    model.TransactionStateProcessed,
		Currency: "DKK",
		Balance:  5000,
		Fee:      125,
		Metadata: model.Metadata{Brand: "visa", Last4: "4242"},
		Link:     &model.Link{URL: "https://payment.coolpay.test/p/1001", Amount: 10000},
		Variables: model.Variables{
			"order_post_id": "42",
		},
		Operations: []model.Operation{
			{Type: model.OperationAuthorize, Amount: 10000, QPStatusCode: model.StatusApproved, AQStatusCode: model.StatusApproved},
			{Type: model.OperationCapture, Amount: 5000, QPStatusCode: model.StatusApproved, AQStatusCode: model.StatusApproved},
		},
	}
}

func TestTransactionCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newMockRedis()
	cache := NewTransactionCache(client, time.Hour, true)

	in := cachedTransaction()
	if err := cache.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := client.ttl["wccp_transaction_1001"]; got != time.Hour {
		t.Fatalf("ttl = %v, want 1h", got)
	}

	out, hit, err := cache.Get(ctx, "1001")
	if err != nil || !hit {
		t.Fatalf("Get: hit=%v err=%v", hit, err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}

	// cached accessors agree with a fresh resource
	inRemaining, _ := in.RemainingBalance()
	outRemaining, _ := out.RemainingBalance()
	inType, _ := in.CurrentType()
	outType, _ := out.CurrentType()
	if inRemaining != outRemaining || inType != outType {
		t.Fatalf("accessors differ after cache round trip")
	}
}

func TestTransactionCache_MissAndInvalidate(t *testing.T) {
	ctx := context.Background()
	client := newMockRedis()
	cache := NewTransactionCache(client, 0, true)

	if _, hit, err := cache.Get(ctx, "1001"); err != nil || hit {
		t.Fatalf("expected clean miss, got hit=%v err=%v", hit, err)
	}

	_ = cache.Put(ctx, cachedTransaction())
	if got := client.ttl["wccp_transaction_1001"]; got != 7*24*time.Hour {
		t.Fatalf("default ttl = %v", got)
	}
	if err := cache.Invalidate(ctx, "1001"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := cache.Get(ctx, "1001"); hit {
		t.Fatalf("entry should be gone after Invalidate")
	}
}

func TestTransactionCache_Disabled(t *testing.T) {
	ctx := context.Background()
	client := newMockRedis()
	cache := NewTransactionCache(client, time.Hour, false)

	if err := cache.Put(ctx, cachedTransaction()); err != nil {
		t.Fatal(err)
	}
	if len(client.data) != 0 {
		t.Fatalf("disabled cache must not write")
	}
	if _, hit, _ := cache.Get(ctx, "1001"); hit {
		t.Fatalf("disabled cache must not hit")
	}
}

func TestTransactionCache_RedisErrorSurfaces(t *testing.T) {
	client := newMockRedis()
	client.GetFunc = func(ctx context.Context, key string) (string, error) {
		return "", errors.New("connection reset")
	}
	cache := NewTransactionCache(client, time.Hour, true)

	if _, _, err := cache.Get(context.Background(), "1001"); err == nil {
		t.Fatalf("expected redis error")
	}
}

func TestTransactionCache_CorruptEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	client := newMockRedis()
	client.data["wccp_transaction_5"] = "{not json"
	cache := NewTransactionCache(client, time.Hour, true)

	if _, hit, err := cache.Get(ctx, "5"); hit || err != nil {
		t.Fatalf("corrupt entry should be a miss, got hit=%v err=%v", hit, err)
	}
	if _, ok := client.data["wccp_transaction_5"]; ok {
		t.Fatalf("corrupt entry should be deleted")
	}
}
