package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provision creates an empty wallet for ownerID. Intended for tests and local
// development against the in-memory store.
func Provision(ctx context.Context, s Store, ownerID string) (Wallet, error) {
	now := time.Now().UTC()
	number, err := NewWalletNumber(now)
	if err != nil {
		return Wallet{}, err
	}
	w := Wallet{ID: uuid.NewString(), OwnerID: ownerID, Number: number, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateWallet(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Fund credits ownerID's wallet through the deposit path so balances stay
// equal to the sum of settled transactions.
func Fund(ctx context.Context, e *Engine, ownerID string, amount int64) error {
	tx, err := e.OpenDeposit(ctx, ownerID, amount)
	if err != nil {
		return err
	}
	res, err := e.ConfirmDeposit(ctx, Confirmation{Reference: tx.Reference, Amount: amount})
	if err != nil {
		return err
	}
	if res.Outcome != OutcomeCredited {
		return fmt.Errorf("fund %s: unexpected outcome %s", ownerID, res.Outcome)
	}
	return nil
}
