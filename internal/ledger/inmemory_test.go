package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

func TestMemoryStoreRollbackDiscardsWrites(t *testing.T) {
	s := NewInMemory(time.Second)
	ctx := context.Background()
	w, err := Provision(ctx, s, uuid.NewString())
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	boom := errors.New("boom")
	err = s.Within(ctx, func(ctx context.Context, u Unit) error {
		locked, err := u.LockWallet(ctx, w.ID)
		if err != nil {
			return err
		}
		if err := u.SetBalance(ctx, locked.ID, 9_999, time.Now()); err != nil {
			return err
		}
		if err := u.InsertTransaction(ctx, Transaction{ID: uuid.NewString(), WalletID: w.ID, Reference: "dep_rollback"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.WalletByID(ctx, w.ID)
	if got.Balance != 0 {
		t.Fatalf("expected balance 0 after rollback, got %d", got.Balance)
	}
	if _, err := s.TransactionByReference(ctx, "dep_rollback"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected rolled back transaction to be absent, got %v", err)
	}
}

func TestMemoryStoreLockIsExclusiveAndBounded(t *testing.T) {
	s := NewInMemory(50 * time.Millisecond)
	ctx := context.Background()
	w, _ := Provision(ctx, s, uuid.NewString())

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Within(ctx, func(ctx context.Context, u Unit) error {
			if _, err := u.LockWallet(ctx, w.ID); err != nil {
				return err
			}
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	err := s.Within(ctx, func(ctx context.Context, u Unit) error {
		_, err := u.LockWalletByNumber(ctx, w.Number)
		return err
	})
	if !apperr.Is(err, apperr.Transient) {
		t.Fatalf("expected transient lock timeout, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder unit: %v", err)
	}

	// Released at unit end, so the owner lookup now succeeds.
	err = s.Within(ctx, func(ctx context.Context, u Unit) error {
		_, err := u.LockWalletByOwner(ctx, w.OwnerID)
		return err
	})
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
}

func TestMemoryStoreDuplicateReferenceConflicts(t *testing.T) {
	s := NewInMemory(time.Second)
	ctx := context.Background()
	w, _ := Provision(ctx, s, uuid.NewString())

	insert := func() error {
		return s.Within(ctx, func(ctx context.Context, u Unit) error {
			return u.InsertTransaction(ctx, Transaction{ID: uuid.NewString(), WalletID: w.ID, Reference: "xfer_same", CreatedAt: time.Now()})
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert(); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMemoryStoreLockMissingWallet(t *testing.T) {
	s := NewInMemory(time.Second)
	err := s.Within(context.Background(), func(ctx context.Context, u Unit) error {
		_, err := u.LockWallet(ctx, uuid.NewString())
		return err
	})
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestMemoryStoreCreateWalletEnforcesOneWalletPerOwner(t *testing.T) {
	s := NewInMemory(time.Second)
	ctx := context.Background()
	owner := uuid.NewString()
	if _, err := Provision(ctx, s, owner); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := Provision(ctx, s, owner); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected conflict for second wallet, got %v", err)
	}
}

func TestMemoryStoreListPendingDepositsPagesByCursor(t *testing.T) {
	s := NewInMemory(time.Second)
	ctx := context.Background()
	w, err := Provision(ctx, s, uuid.NewString())
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err = s.Within(ctx, func(ctx context.Context, u Unit) error {
		for i := 0; i < 5; i++ {
			tx := Transaction{
				ID:               uuid.NewString(),
				WalletID:         w.ID,
				UserID:           w.OwnerID,
				Type:             TypeDeposit,
				Amount:           int64(100 * (i + 1)),
				Status:           StatusPending,
				Reference:        NewReference(DepositPrefix),
				AuthorizationURL: "https://checkout.invalid/x",
				CreatedAt:        base.Add(time.Duration(i) * time.Minute),
			}
			if err := u.InsertTransaction(ctx, tx); err != nil {
				return err
			}
		}
		return u.InsertTransaction(ctx, Transaction{
			ID: uuid.NewString(), WalletID: w.ID, Type: TypeDeposit, Amount: 1,
			Status: StatusPending, Reference: NewReference(DepositPrefix), CreatedAt: base,
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	cutoff := base.Add(time.Hour)
	first, err := s.ListPendingDeposits(ctx, cutoff, PendingCursor{}, 3)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 3 || first[0].Amount != 100 || first[2].Amount != 300 {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := s.ListPendingDeposits(ctx, cutoff, CursorAfter(first[2]), 3)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 2 || second[0].Amount != 400 || second[1].Amount != 500 {
		t.Fatalf("unexpected second page %+v", second)
	}

	early, err := s.ListPendingDeposits(ctx, base.Add(90*time.Second), PendingCursor{}, 10)
	if err != nil {
		t.Fatalf("cutoff page: %v", err)
	}
	if len(early) != 2 {
		t.Fatalf("expected only deposits created before the cutoff, got %d", len(early))
	}
}
