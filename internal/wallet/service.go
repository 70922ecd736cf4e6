package wallet

import (
	"context"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Service exposes read-only wallet views backed by the ledger store.
type Service struct {
	store    ledger.Store
	currency string
}

func NewService(store ledger.Store, currency string) *Service {
	if currency == "" {
		currency = "NGN"
	}
	return &Service{store: store, currency: currency}
}

// Wallet returns the caller's wallet.
func (s *Service) Wallet(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	return s.store.WalletByOwner(ctx, ownerID)
}

// Balance returns the caller's balance with a display rendering.
func (s *Service) Balance(ctx context.Context, ownerID string) (Balance, error) {
	w, err := s.store.WalletByOwner(ctx, ownerID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		WalletNumber: w.Number,
		Balance:      w.Balance,
		Display:      money.Format(w.Balance, s.currency),
		Currency:     s.currency,
		AsOf:         time.Now().UTC(),
	}, nil
}

// Transactions lists the caller's history, newest first.
func (s *Service) Transactions(ctx context.Context, ownerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	w, err := s.store.WalletByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, w.ID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(txs))
	for _, tx := range txs {
		out = append(out, Entry{
			ID:          tx.ID,
			Type:        string(tx.Type),
			Amount:      tx.Amount,
			Status:      string(tx.Status),
			Reference:   tx.Reference,
			Description: tx.Description,
			PaidAt:      tx.PaidAt,
			CreatedAt:   tx.CreatedAt,
		})
	}
	return out, nil
}
