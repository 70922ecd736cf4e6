package identity

import (
	"context"
	"sync"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// WalletCreator is the slice of ledger.Store the memory repository needs.
type WalletCreator interface {
	CreateWallet(ctx context.Context, w ledger.Wallet) error
}

type memoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	wallets WalletCreator
}

// NewMemoryRepository builds an in-memory user store whose wallets land in
// the given ledger store.
func NewMemoryRepository(wallets WalletCreator) Repository {
	return &memoryRepository{users: make(map[string]User), wallets: wallets}
}

func (r *memoryRepository) CreateWithWallet(ctx context.Context, user User, wallet ledger.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.ID]; exists {
		return apperr.New(apperr.Conflict, "user exists")
	}
	for _, u := range r.users {
		if u.Email == user.Email || (user.GoogleID != "" && u.GoogleID == user.GoogleID) {
			return apperr.New(apperr.Conflict, "user exists")
		}
	}
	if err := r.wallets.CreateWallet(ctx, wallet); err != nil {
		return err
	}
	r.users[user.ID] = user
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	return r.find(func(u User) bool { return u.Email == email })
}

func (r *memoryRepository) FindByGoogleID(_ context.Context, googleID string) (User, error) {
	return r.find(func(u User) bool { return u.GoogleID == googleID })
}

func (r *memoryRepository) find(match func(User) bool) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *memoryRepository) UpdateProfile(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	user.TokenVersion = existing.TokenVersion
	user.CreatedAt = existing.CreatedAt
	r.users[user.ID] = user
	return nil
}

func (r *memoryRepository) BumpTokenVersion(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return 0, ErrUserNotFound
	}
	user.TokenVersion++
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return user.TokenVersion, nil
}
