package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Repository persists users.
type Repository interface {
	// CreateWithWallet stores a user and its wallet in one atomic unit.
	CreateWithWallet(ctx context.Context, user User, wallet ledger.Wallet) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByGoogleID(ctx context.Context, googleID string) (User, error)
	UpdateProfile(ctx context.Context, user User) error
	// BumpTokenVersion increments the version and returns the new value.
	BumpTokenVersion(ctx context.Context, id string) (int, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateWithWallet(ctx context.Context, user User, wallet ledger.Wallet) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin provisioning", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	_, err = tx.Exec(ctx, `INSERT INTO users (id, email, name, picture, google_id, token_version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, user.Email, user.Name, user.Picture, nullable(user.GoogleID), user.TokenVersion, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		return classify("insert user", err)
	}
	if err := ledger.InsertWallet(ctx, tx, wallet); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit provisioning", err)
	}
	return nil
}

const userColumns = `id, email, COALESCE(name, ''), COALESCE(picture, ''), COALESCE(google_id, ''), token_version, created_at, updated_at`

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *PostgresRepository) FindByGoogleID(ctx context.Context, googleID string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID))
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET email = $1, name = $2, picture = $3, google_id = $4, updated_at = $5 WHERE id = $6`,
		user.Email, user.Name, user.Picture, nullable(user.GoogleID), user.UpdatedAt.UTC(), userID)
	if err != nil {
		return classify("update user", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return 0, ErrUserNotFound
	}
	var version int
	err = r.db.QueryRow(ctx, `UPDATE users SET token_version = token_version + 1, updated_at = now()
        WHERE id = $1 RETURNING token_version`, userID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, classify("bump token version", err)
	}
	return version, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u  User
		id uuid.UUID
	)
	if err := row.Scan(&id, &u.Email, &u.Name, &u.Picture, &u.GoogleID, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, classify("scan user", err)
	}
	u.ID = id.String()
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Wrap(apperr.Conflict, op+": "+pgErr.ConstraintName, err)
	}
	return apperr.Wrap(apperr.StoreUnavailable, op, err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
