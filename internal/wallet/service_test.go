package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
)

func TestServiceBalance(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory(time.Second)
	engine := ledger.NewEngine(store, logging.Discard(), nil)
	svc := NewService(store, "NGN")

	ownerID := uuid.NewString()
	w, err := ledger.Provision(ctx, store, ownerID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := ledger.Fund(ctx, engine, ownerID, 123456); err != nil {
		t.Fatalf("fund: %v", err)
	}

	b, err := svc.Balance(ctx, ownerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Balance != 123456 || b.WalletNumber != w.Number || b.Display != "NGN 1234.56" {
		t.Fatalf("unexpected balance %+v", b)
	}

	if _, err := svc.Balance(ctx, uuid.NewString()); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected not found for unknown owner, got %v", err)
	}
}

func TestServiceTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory(time.Second)
	engine := ledger.NewEngine(store, logging.Discard(), nil)
	svc := NewService(store, "NGN")

	ownerID := uuid.NewString()
	if _, err := ledger.Provision(ctx, store, ownerID); err != nil {
		t.Fatalf("provision: %v", err)
	}
	for _, amount := range []int64{100, 200, 300} {
		if err := ledger.Fund(ctx, engine, ownerID, amount); err != nil {
			t.Fatalf("fund: %v", err)
		}
	}

	entries, err := svc.Transactions(ctx, ownerID, 0)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Amount != 300 || entries[2].Amount != 100 {
		t.Fatalf("expected newest first, got %d..%d", entries[0].Amount, entries[2].Amount)
	}

	limited, err := svc.Transactions(ctx, ownerID, 2)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}
