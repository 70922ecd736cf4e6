package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
)

// Engine is the only component that mutates wallet balances or transaction
// status. Every mutation re-reads the rows it changes under lock.
type Engine struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEngine builds an Engine over store. metrics may be nil.
func NewEngine(store Store, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

// Store exposes the underlying store for read paths.
func (e *Engine) Store() Store { return e.store }

// Outcome describes what a deposit confirmation did.
type Outcome string

const (
	OutcomeCredited         Outcome = "credited"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeWalletMissing    Outcome = "wallet_missing"
)

// Confirmation is a gateway-confirmed payment event. Amount is informational;
// the pending transaction's own amount is credited.
type Confirmation struct {
	Reference   string
	Amount      int64
	ConfirmedAt time.Time
}

// Settlement reports the result of ConfirmDeposit.
type Settlement struct {
	Outcome     Outcome
	Transaction Transaction
	Balance     int64
}

// OpenDeposit records a PENDING deposit against the owner's wallet.
func (e *Engine) OpenDeposit(ctx context.Context, ownerID string, amount int64) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	w, err := e.store.WalletByOwner(ctx, ownerID)
	if err != nil {
		return Transaction{}, err
	}

	now := e.now()
	tx := Transaction{
		ID:          uuid.NewString(),
		WalletID:    w.ID,
		UserID:      ownerID,
		Type:        TypeDeposit,
		Amount:      amount,
		Status:      StatusPending,
		Reference:   NewReference(DepositPrefix),
		Description: "Wallet deposit",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Within(ctx, func(ctx context.Context, u Unit) error {
		return u.InsertTransaction(ctx, tx)
	}); err != nil {
		e.metrics.LedgerOp("open_deposit", string(apperr.KindOf(err)))
		return Transaction{}, err
	}
	e.metrics.LedgerOp("open_deposit", "ok")
	return tx, nil
}

// AttachAuthorization stores the gateway redirect URL on a pending deposit.
func (e *Engine) AttachAuthorization(ctx context.Context, reference, authorizationURL string) (Transaction, error) {
	var out Transaction
	err := e.store.Within(ctx, func(ctx context.Context, u Unit) error {
		tx, err := u.LockTransaction(ctx, reference)
		if err != nil {
			return err
		}
		if tx.Type != TypeDeposit || tx.Status != StatusPending {
			return apperr.Newf(apperr.InvalidOperation, "deposit %s is not pending", reference)
		}
		tx.AuthorizationURL = authorizationURL
		tx.UpdatedAt = e.now()
		out = tx
		return u.UpdateTransaction(ctx, tx)
	})
	return out, err
}

// AbortDeposit deletes a pending deposit whose gateway initialization failed.
// Settled deposits are never deleted.
func (e *Engine) AbortDeposit(ctx context.Context, reference string) error {
	err := e.store.Within(ctx, func(ctx context.Context, u Unit) error {
		tx, err := u.LockTransaction(ctx, reference)
		if err != nil {
			return err
		}
		if tx.Type != TypeDeposit || tx.Status != StatusPending {
			return apperr.Newf(apperr.InvalidOperation, "deposit %s is not pending", reference)
		}
		return u.DeleteTransaction(ctx, tx.ID)
	})
	if errors.Is(err, ErrTransactionNotFound) {
		return nil
	}
	if err == nil {
		e.metrics.LedgerOp("abort_deposit", "ok")
	}
	return err
}

// ConfirmDeposit applies a confirmed payment to its pending deposit exactly
// once. Repeats, unknown references and missing wallets are reported through
// the Settlement outcome, not as errors; only store failures return an error.
func (e *Engine) ConfirmDeposit(ctx context.Context, c Confirmation) (Settlement, error) {
	var res Settlement
	err := e.store.Within(ctx, func(ctx context.Context, u Unit) error {
		res = Settlement{}
		tx, err := u.LockTransaction(ctx, c.Reference)
		if errors.Is(err, ErrTransactionNotFound) {
			res.Outcome = OutcomeUnknownReference
			return nil
		}
		if err != nil {
			return err
		}
		res.Transaction = tx
		if tx.Type != TypeDeposit {
			res.Outcome = OutcomeUnknownReference
			return nil
		}
		if tx.Status != StatusPending {
			res.Outcome = OutcomeDuplicate
			return nil
		}

		now := e.now()
		w, err := u.LockWallet(ctx, tx.WalletID)
		if errors.Is(err, ErrWalletNotFound) {
			tx.Status = StatusFailed
			tx.Description = "Wallet not found for pending deposit; credit not applied"
			tx.UpdatedAt = now
			res.Outcome = OutcomeWalletMissing
			res.Transaction = tx
			return u.UpdateTransaction(ctx, tx)
		}
		if err != nil {
			return err
		}

		balance := w.Balance + tx.Amount
		if err := u.SetBalance(ctx, w.ID, balance, now); err != nil {
			return err
		}
		paidAt := c.ConfirmedAt.UTC()
		if c.ConfirmedAt.IsZero() {
			paidAt = now
		}
		tx.Status = StatusSuccess
		tx.PaidAt = &paidAt
		tx.UpdatedAt = now
		if err := u.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		res.Outcome = OutcomeCredited
		res.Transaction = tx
		res.Balance = balance
		return nil
	})
	if err != nil {
		e.metrics.LedgerOp("confirm_deposit", string(apperr.KindOf(err)))
		e.logger.Warn("deposit confirmation aborted", slog.String("reference", c.Reference), slog.Any("error", err))
		return Settlement{}, err
	}

	e.metrics.LedgerOp("confirm_deposit", string(res.Outcome))
	switch res.Outcome {
	case OutcomeCredited:
		e.metrics.Deposited(res.Transaction.Amount)
		if c.Amount != 0 && c.Amount != res.Transaction.Amount {
			e.logger.Warn("confirmed amount differs from deposit amount",
				slog.String("reference", c.Reference),
				slog.Int64("confirmed_amount", c.Amount),
				slog.Int64("deposit_amount", res.Transaction.Amount))
		}
		e.logger.Info("deposit credited",
			slog.String("reference", c.Reference),
			slog.String("wallet_id", res.Transaction.WalletID),
			slog.Int64("amount", res.Transaction.Amount))
	case OutcomeWalletMissing:
		e.metrics.IntegrityAlarm()
		e.logger.Error("pending deposit has no wallet",
			slog.String("alarm", "ledger_integrity"),
			slog.String("reference", c.Reference),
			slog.String("wallet_id", res.Transaction.WalletID))
	default:
		e.logger.Info("deposit confirmation ignored",
			slog.String("reference", c.Reference),
			slog.String("outcome", string(res.Outcome)))
	}
	return res, nil
}

// FailDeposit moves a pending deposit to FAILED. It reports false when the
// deposit was already settled.
func (e *Engine) FailDeposit(ctx context.Context, reference, reason string) (bool, error) {
	failed := false
	err := e.store.Within(ctx, func(ctx context.Context, u Unit) error {
		tx, err := u.LockTransaction(ctx, reference)
		if err != nil {
			return err
		}
		if tx.Type != TypeDeposit || tx.Status != StatusPending {
			return nil
		}
		tx.Status = StatusFailed
		tx.Description = reason
		tx.UpdatedAt = e.now()
		failed = true
		return u.UpdateTransaction(ctx, tx)
	})
	if err != nil {
		return false, err
	}
	if failed {
		e.metrics.LedgerOp("fail_deposit", "ok")
	}
	return failed, nil
}

// TransferRequest moves Amount from SenderID's wallet to the wallet numbered
// RecipientNumber.
type TransferRequest struct {
	SenderID        string
	RecipientNumber string
	Amount          int64
}

// TransferResult holds both legs and the post-transfer balances.
type TransferResult struct {
	Debit            Transaction
	Credit           Transaction
	SenderBalance    int64
	RecipientBalance int64
}

// Transfer atomically debits the sender and credits the recipient, writing
// one TRANSFER row per side. Wallet rows are locked in ascending id order.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	res, err := e.transfer(ctx, req)
	if err != nil {
		e.metrics.LedgerOp("transfer", string(apperr.KindOf(err)))
		return TransferResult{}, err
	}
	e.metrics.LedgerOp("transfer", "ok")
	e.metrics.Transferred(req.Amount)
	e.logger.Info("transfer completed",
		slog.String("sender_wallet_id", res.Debit.WalletID),
		slog.String("recipient_wallet_id", res.Credit.WalletID),
		slog.Int64("amount", req.Amount))
	return res, nil
}

func (e *Engine) transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.Amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	sender, err := e.store.WalletByOwner(ctx, req.SenderID)
	if errors.Is(err, ErrWalletNotFound) {
		return TransferResult{}, ErrSenderNotFound
	}
	if err != nil {
		return TransferResult{}, err
	}
	recipient, err := e.store.WalletByNumber(ctx, req.RecipientNumber)
	if errors.Is(err, ErrWalletNotFound) {
		return TransferResult{}, ErrRecipientNotFound
	}
	if err != nil {
		return TransferResult{}, err
	}
	if sender.ID == recipient.ID {
		return TransferResult{}, ErrSameWallet
	}

	var res TransferResult
	err = e.store.Within(ctx, func(ctx context.Context, u Unit) error {
		first, second := sender.ID, recipient.ID
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]Wallet, 2)
		for _, id := range []string{first, second} {
			w, err := u.LockWallet(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = w
		}
		from, to := locked[sender.ID], locked[recipient.ID]

		if from.Balance < req.Amount {
			return ErrInsufficientFunds
		}

		now := e.now()
		fromBalance := from.Balance - req.Amount
		toBalance := to.Balance + req.Amount
		if err := u.SetBalance(ctx, from.ID, fromBalance, now); err != nil {
			return err
		}
		if err := u.SetBalance(ctx, to.ID, toBalance, now); err != nil {
			return err
		}

		paidAt := now
		debit := Transaction{
			ID:          uuid.NewString(),
			WalletID:    from.ID,
			UserID:      from.OwnerID,
			Type:        TypeTransfer,
			Amount:      -req.Amount,
			Status:      StatusSuccess,
			Reference:   NewReference(TransferPrefix),
			Description: "Transfer to wallet " + to.Number,
			PaidAt:      &paidAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		credit := Transaction{
			ID:          uuid.NewString(),
			WalletID:    to.ID,
			UserID:      to.OwnerID,
			Type:        TypeTransfer,
			Amount:      req.Amount,
			Status:      StatusSuccess,
			Reference:   NewReference(TransferPrefix),
			Description: "Transfer from wallet " + from.Number,
			PaidAt:      &paidAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := u.InsertTransaction(ctx, debit); err != nil {
			return err
		}
		if err := u.InsertTransaction(ctx, credit); err != nil {
			return err
		}

		res = TransferResult{Debit: debit, Credit: credit, SenderBalance: fromBalance, RecipientBalance: toBalance}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return res, nil
}
