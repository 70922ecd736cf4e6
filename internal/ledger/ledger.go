package ledger

import (
	"context"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

var (
	// ErrInsufficientFunds occurs when the sender balance, read under lock,
	// does not cover the requested amount.
	ErrInsufficientFunds = apperr.New(apperr.InsufficientFunds, "insufficient funds")

	// ErrInvalidAmount rejects non-positive amounts before any lock is taken.
	ErrInvalidAmount = apperr.New(apperr.InvalidAmount, "amount must be greater than 0")

	// ErrSameWallet rejects transfers whose sender and recipient resolve to one wallet.
	ErrSameWallet = apperr.New(apperr.InvalidOperation, "cannot transfer to the same wallet")

	ErrWalletNotFound      = apperr.New(apperr.NotFound, "wallet not found")
	ErrTransactionNotFound = apperr.New(apperr.NotFound, "transaction not found")
	ErrSenderNotFound      = apperr.New(apperr.NotFound, "sender wallet not found")
	ErrRecipientNotFound   = apperr.New(apperr.NotFound, "recipient wallet not found")
)

// TransactionType tags what produced a transaction row.
type TransactionType string

const (
	TypeDeposit  TransactionType = "DEPOSIT"
	TypeTransfer TransactionType = "TRANSFER"
)

// TransactionStatus tracks settlement. SUCCESS and FAILED are terminal.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

// Wallet is a principal's single balance-holding account.
type Wallet struct {
	ID        string
	OwnerID   string
	Number    string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction records one balance change. Amount is signed for transfer legs
// and always positive for deposits.
type Transaction struct {
	ID               string
	WalletID         string
	UserID           string
	Type             TransactionType
	Amount           int64
	Status           TransactionStatus
	Reference        string
	Description      string
	AuthorizationURL string
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store is the durable home of wallets and transactions. Reads outside a unit
// are snapshot reads and are never used to decide a mutation.
type Store interface {
	// Within runs fn as one atomic unit of work: commit when fn returns nil,
	// roll back otherwise. Locks taken through the Unit are released on exit.
	Within(ctx context.Context, fn func(ctx context.Context, u Unit) error) error

	CreateWallet(ctx context.Context, w Wallet) error
	WalletByID(ctx context.Context, id string) (Wallet, error)
	WalletByOwner(ctx context.Context, ownerID string) (Wallet, error)
	WalletByNumber(ctx context.Context, number string) (Wallet, error)
	TransactionByReference(ctx context.Context, reference string) (Transaction, error)
	ListTransactions(ctx context.Context, walletID string, limit int) ([]Transaction, error)
	// ListPendingDeposits pages through PENDING deposits that carry an
	// authorization URL, ordered by (created_at, id) and starting after the cursor.
	ListPendingDeposits(ctx context.Context, createdBefore time.Time, after PendingCursor, limit int) ([]Transaction, error)
}

// PendingCursor is a position in the pending-deposit ordering. The zero value
// starts from the oldest deposit.
type PendingCursor struct {
	CreatedAt time.Time
	ID        string
}

func (c PendingCursor) IsZero() bool { return c.ID == "" }

// CursorAfter returns the cursor positioned on tx.
func CursorAfter(tx Transaction) PendingCursor {
	return PendingCursor{CreatedAt: tx.CreatedAt, ID: tx.ID}
}

// before reports whether c sorts strictly before tx.
func (c PendingCursor) before(tx Transaction) bool {
	if c.IsZero() {
		return true
	}
	if !tx.CreatedAt.Equal(c.CreatedAt) {
		return tx.CreatedAt.After(c.CreatedAt)
	}
	return tx.ID > c.ID
}

// Unit exposes the exclusive row locks and writes available inside Store.Within.
type Unit interface {
	LockWallet(ctx context.Context, id string) (Wallet, error)
	LockWalletByOwner(ctx context.Context, ownerID string) (Wallet, error)
	LockWalletByNumber(ctx context.Context, number string) (Wallet, error)
	LockTransaction(ctx context.Context, reference string) (Transaction, error)

	SetBalance(ctx context.Context, walletID string, balance int64, at time.Time) error
	InsertTransaction(ctx context.Context, tx Transaction) error
	UpdateTransaction(ctx context.Context, tx Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
}
