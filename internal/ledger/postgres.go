package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// PostgresStore persists wallets and transactions in PostgreSQL. Each unit of
// work is one explicit pgx transaction; row locks are SELECT ... FOR UPDATE.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed store. lockTimeout bounds how
// long a unit waits for any row lock.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

func (s *PostgresStore) Within(ctx context.Context, fn func(ctx context.Context, u Unit) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storeError("begin unit", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.lockTimeout > 0 {
		// SET does not take bind parameters.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())); err != nil {
			return storeError("set lock timeout", err)
		}
	}

	if err := fn(ctx, &pgUnit{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storeError("commit unit", err)
	}
	return nil
}

func (s *PostgresStore) CreateWallet(ctx context.Context, w Wallet) error {
	return InsertWallet(ctx, s.db, w)
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx so wallet creation can join
// a caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InsertWallet writes a new wallet row through db.
func InsertWallet(ctx context.Context, db Execer, w Wallet) error {
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return apperr.Wrap(apperr.InvalidOperation, "invalid wallet id", err)
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return apperr.Wrap(apperr.InvalidOperation, "invalid owner id", err)
	}
	_, err = db.Exec(ctx, `INSERT INTO wallets (id, owner_id, number, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, id, ownerID, w.Number, w.Balance, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if err != nil {
		return storeError("insert wallet", err)
	}
	return nil
}

const walletColumns = `id, owner_id, number, balance, created_at, updated_at`

const transactionColumns = `id, wallet_id, user_id, type, amount, status, reference,
        description, authorization_url, paid_at, created_at, updated_at`

func (s *PostgresStore) WalletByID(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	return scanWallet(s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID))
}

func (s *PostgresStore) WalletByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	return scanWallet(s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, owner))
}

func (s *PostgresStore) WalletByNumber(ctx context.Context, number string) (Wallet, error) {
	return scanWallet(s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE number = $1`, number))
}

func (s *PostgresStore) TransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	return scanTransaction(s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
}

func (s *PostgresStore) ListTransactions(ctx context.Context, walletID string, limit int) ([]Transaction, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, ErrWalletNotFound
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE wallet_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`, id, limit)
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	return collectTransactions(rows)
}

func (s *PostgresStore) ListPendingDeposits(ctx context.Context, createdBefore time.Time, after PendingCursor, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions
        WHERE type = $1 AND status = $2 AND authorization_url IS NOT NULL AND created_at < $3`
	args := []any{string(TypeDeposit), string(StatusPending), createdBefore.UTC()}
	if !after.IsZero() {
		afterID, err := uuid.Parse(after.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidOperation, "invalid pending cursor", err)
		}
		query += ` AND (created_at, id) > ($4, $5)`
		args = append(args, after.CreatedAt.UTC(), afterID)
	}
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("list pending deposits", err)
	}
	return collectTransactions(rows)
}

type pgUnit struct {
	tx pgx.Tx
}

func (u *pgUnit) LockWallet(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	return scanWallet(u.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID))
}

func (u *pgUnit) LockWalletByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	return scanWallet(u.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 FOR UPDATE`, owner))
}

func (u *pgUnit) LockWalletByNumber(ctx context.Context, number string) (Wallet, error) {
	return scanWallet(u.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE number = $1 FOR UPDATE`, number))
}

func (u *pgUnit) LockTransaction(ctx context.Context, reference string) (Transaction, error) {
	return scanTransaction(u.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference))
}

func (u *pgUnit) SetBalance(ctx context.Context, walletID string, balance int64, at time.Time) error {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ErrWalletNotFound
	}
	cmd, err := u.tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`, balance, at.UTC(), id)
	if err != nil {
		return storeError("update balance", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (u *pgUnit) InsertTransaction(ctx context.Context, t Transaction) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return apperr.Wrap(apperr.InvalidOperation, "invalid transaction id", err)
	}
	walletID, err := uuid.Parse(t.WalletID)
	if err != nil {
		return ErrWalletNotFound
	}
	userID, err := uuid.Parse(t.UserID)
	if err != nil {
		return apperr.Wrap(apperr.InvalidOperation, "invalid user id", err)
	}
	_, err = u.tx.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, walletID, userID, string(t.Type), t.Amount, string(t.Status), t.Reference,
		nullable(t.Description), nullable(t.AuthorizationURL), utcPtr(t.PaidAt), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return storeError("insert transaction", err)
	}
	return nil
}

func (u *pgUnit) UpdateTransaction(ctx context.Context, t Transaction) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return ErrTransactionNotFound
	}
	cmd, err := u.tx.Exec(ctx, `UPDATE transactions
        SET status = $1, description = $2, authorization_url = $3, paid_at = $4, updated_at = $5
        WHERE id = $6`,
		string(t.Status), nullable(t.Description), nullable(t.AuthorizationURL), utcPtr(t.PaidAt), t.UpdatedAt.UTC(), id)
	if err != nil {
		return storeError("update transaction", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (u *pgUnit) DeleteTransaction(ctx context.Context, id string) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return ErrTransactionNotFound
	}
	if _, err := u.tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, txID); err != nil {
		return storeError("delete transaction", err)
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		id      uuid.UUID
		ownerID uuid.UUID
	)
	if err := row.Scan(&id, &ownerID, &w.Number, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, storeError("scan wallet", err)
	}
	w.ID = id.String()
	w.OwnerID = ownerID.String()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t                  Transaction
		id, walletID, user uuid.UUID
		typ, status        string
		description, url   *string
	)
	if err := row.Scan(&id, &walletID, &user, &typ, &t.Amount, &status, &t.Reference,
		&description, &url, &t.PaidAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, storeError("scan transaction", err)
	}
	t.ID = id.String()
	t.WalletID = walletID.String()
	t.UserID = user.String()
	t.Type = TransactionType(typ)
	t.Status = TransactionStatus(status)
	if description != nil {
		t.Description = *description
	}
	if url != nil {
		t.AuthorizationURL = *url
	}
	t.PaidAt = utcPtr(t.PaidAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	out := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate transactions", err)
	}
	return out, nil
}

// storeError classifies a driver error into the ledger taxonomy. Errors that
// already carry a kind pass through untouched.
func storeError(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return apperr.Wrap(apperr.Transient, op, err)
		case pgUniqueViolation:
			return apperr.Wrap(apperr.Conflict, op+": "+pgErr.ConstraintName, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.Transient, op, err)
	}
	return apperr.Wrap(apperr.StoreUnavailable, op, err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
