package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/auth"
)

// Repository persists API keys. Issuance and rollover serialize per user so
// the active-key ceiling cannot be overrun by concurrent requests.
type Repository interface {
	// CreateWithLimit inserts key unless the user already holds limit usable keys.
	CreateWithLimit(ctx context.Context, key Key, limit int, now time.Time) error
	// Rollover locks the user's key oldID, lets next validate it and build its
	// successor, then deactivates the old key and inserts the new one atomically.
	Rollover(ctx context.Context, userID, oldID string, limit int, now time.Time, next func(old Key) (Key, error)) error
	ListByUser(ctx context.Context, userID string) ([]Key, error)
	FindByPrefix(ctx context.Context, prefix string) ([]Key, error)
	Deactivate(ctx context.Context, userID, id string, now time.Time) error
}

func limitReached(limit int) error {
	return apperr.Newf(apperr.InvalidOperation, "maximum of %d active API keys allowed", limit)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) within(ctx context.Context, userID string, fn func(pgx.Tx, uuid.UUID) error) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return apperr.New(apperr.Unauthenticated, "unknown user")
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// The user row is the per-user mutex for key issuance.
	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, uid).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.Unauthenticated, "unknown user")
		}
		return classify("lock user", err)
	}
	if err := fn(tx, uid); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

func countUsable(ctx context.Context, tx pgx.Tx, uid uuid.UUID, now time.Time) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND is_active AND expires_at > $2`, uid, now.UTC()).Scan(&n)
	if err != nil {
		return 0, classify("count keys", err)
	}
	return n, nil
}

func insertKey(ctx context.Context, tx pgx.Tx, uid uuid.UUID, k Key) error {
	id, err := uuid.Parse(k.ID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "key id", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO api_keys (id, user_id, name, key_prefix, key_hash, permissions, expires_at, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, uid, k.Name, k.Prefix, k.Hash, k.Permissions.Strings(), k.ExpiresAt.UTC(), k.Active, k.CreatedAt.UTC(), k.UpdatedAt.UTC())
	if err != nil {
		return classify("insert key", err)
	}
	return nil
}

func (r *PostgresRepository) CreateWithLimit(ctx context.Context, key Key, limit int, now time.Time) error {
	return r.within(ctx, key.UserID, func(tx pgx.Tx, uid uuid.UUID) error {
		n, err := countUsable(ctx, tx, uid, now)
		if err != nil {
			return err
		}
		if n >= limit {
			return limitReached(limit)
		}
		return insertKey(ctx, tx, uid, key)
	})
}

func (r *PostgresRepository) Rollover(ctx context.Context, userID, oldID string, limit int, now time.Time, next func(old Key) (Key, error)) error {
	kid, err := uuid.Parse(oldID)
	if err != nil {
		return ErrKeyNotFound
	}
	return r.within(ctx, userID, func(tx pgx.Tx, uid uuid.UUID) error {
		old, err := scanKey(tx.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1 AND user_id = $2 FOR UPDATE`, kid, uid))
		if err != nil {
			return err
		}
		successor, err := next(old)
		if err != nil {
			return err
		}
		n, err := countUsable(ctx, tx, uid, now)
		if err != nil {
			return err
		}
		if n >= limit {
			return limitReached(limit)
		}
		if _, err := tx.Exec(ctx, `UPDATE api_keys SET is_active = FALSE, updated_at = $2 WHERE id = $1`, kid, now.UTC()); err != nil {
			return classify("deactivate key", err)
		}
		return insertKey(ctx, tx, uid, successor)
	})
}

const keyColumns = `id, user_id, name, key_prefix, key_hash, permissions, expires_at, is_active, created_at, updated_at`

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Key, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return []Key{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, uid)
	if err != nil {
		return nil, classify("list keys", err)
	}
	return collectKeys(rows)
}

func (r *PostgresRepository) FindByPrefix(ctx context.Context, prefix string) ([]Key, error) {
	rows, err := r.db.Query(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, classify("find keys", err)
	}
	return collectKeys(rows)
}

func (r *PostgresRepository) Deactivate(ctx context.Context, userID, id string, now time.Time) error {
	kid, err := uuid.Parse(id)
	if err != nil {
		return ErrKeyNotFound
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return ErrKeyNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE api_keys SET is_active = FALSE, updated_at = $3 WHERE id = $1 AND user_id = $2`, kid, uid, now.UTC())
	if err != nil {
		return classify("revoke key", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func collectKeys(rows pgx.Rows) ([]Key, error) {
	defer rows.Close()
	out := make([]Key, 0)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("read keys", err)
	}
	return out, nil
}

func scanKey(row pgx.Row) (Key, error) {
	var (
		k          Key
		id, userID uuid.UUID
		perms      []string
	)
	err := row.Scan(&id, &userID, &k.Name, &k.Prefix, &k.Hash, &perms, &k.ExpiresAt, &k.Active, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Key{}, ErrKeyNotFound
		}
		return Key{}, classify("scan key", err)
	}
	k.ID = id.String()
	k.UserID = userID.String()
	for _, p := range perms {
		k.Permissions |= auth.NewPermissionSet(auth.Permission(p))
	}
	return k, nil
}

func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", "40001", "55P03":
			return apperr.Wrap(apperr.Transient, op, err)
		case "23505":
			return apperr.Wrap(apperr.Conflict, op, err)
		}
	}
	return apperr.Wrap(apperr.StoreUnavailable, op, err)
}
