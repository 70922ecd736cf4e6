package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
)

// MemoryStore is a process-local Store. Row locks are real and exclusive, so
// it exercises the same interleavings as the Postgres store in tests.
type MemoryStore struct {
	mu       sync.Mutex
	wallets  map[string]Wallet
	byOwner  map[string]string
	byNumber map[string]string
	txs      map[string]Transaction
	byRef    map[string]string
	seq      map[string]uint64
	nextSeq  uint64

	locks       *lockTable
	lockTimeout time.Duration
}

// NewInMemory constructs an empty MemoryStore. A zero lockTimeout waits until
// the context is done.
func NewInMemory(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		wallets:     make(map[string]Wallet),
		byOwner:     make(map[string]string),
		byNumber:    make(map[string]string),
		txs:         make(map[string]Transaction),
		byRef:       make(map[string]string),
		seq:         make(map[string]uint64),
		locks:       &lockTable{rows: make(map[string]chan struct{})},
		lockTimeout: lockTimeout,
	}
}

func (s *MemoryStore) Within(ctx context.Context, fn func(ctx context.Context, u Unit) error) error {
	u := &memUnit{
		store:    s,
		held:     make(map[string]bool),
		wallets:  make(map[string]Wallet),
		inserted: make(map[string]Transaction),
		updated:  make(map[string]Transaction),
		deleted:  make(map[string]bool),
	}
	defer u.release()

	if err := fn(ctx, u); err != nil {
		return err
	}
	return u.commit()
}

func (s *MemoryStore) CreateWallet(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[w.ID]; exists {
		return apperr.New(apperr.Conflict, "wallet exists")
	}
	if _, exists := s.byOwner[w.OwnerID]; exists {
		return apperr.New(apperr.Conflict, "owner already has a wallet")
	}
	if _, exists := s.byNumber[w.Number]; exists {
		return apperr.New(apperr.Conflict, "wallet number taken")
	}
	s.wallets[w.ID] = w
	s.byOwner[w.OwnerID] = w.ID
	s.byNumber[w.Number] = w.ID
	return nil
}

func (s *MemoryStore) WalletByID(_ context.Context, id string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *MemoryStore) WalletByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	s.mu.Lock()
	id, ok := s.byOwner[ownerID]
	s.mu.Unlock()
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.WalletByID(ctx, id)
}

func (s *MemoryStore) WalletByNumber(ctx context.Context, number string) (Wallet, error) {
	s.mu.Lock()
	id, ok := s.byNumber[number]
	s.mu.Unlock()
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.WalletByID(ctx, id)
}

func (s *MemoryStore) TransactionByReference(_ context.Context, reference string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRef[reference]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return s.txs[id], nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, walletID string, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transaction, 0)
	for _, tx := range s.txs {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListPendingDeposits(_ context.Context, createdBefore time.Time, after PendingCursor, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transaction, 0)
	for _, tx := range s.txs {
		if tx.Type == TypeDeposit && tx.Status == StatusPending && tx.AuthorizationURL != "" &&
			tx.CreatedAt.Before(createdBefore) && after.before(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// lockTable hands out one exclusive slot per row key.
type lockTable struct {
	mu   sync.Mutex
	rows map[string]chan struct{}
}

func (l *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	l.mu.Lock()
	slot, ok := l.rows[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.rows[key] = slot
	}
	l.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case slot <- struct{}{}:
		return nil
	case <-expired:
		return apperr.Newf(apperr.Transient, "lock wait timeout on %s", key)
	case <-ctx.Done():
		return apperr.Wrap(apperr.Transient, "lock wait cancelled", ctx.Err())
	}
}

func (l *lockTable) release(key string) {
	l.mu.Lock()
	slot := l.rows[key]
	l.mu.Unlock()
	<-slot
}

type memUnit struct {
	store    *MemoryStore
	held     map[string]bool
	order    []string
	wallets  map[string]Wallet
	inserted map[string]Transaction
	updated  map[string]Transaction
	deleted  map[string]bool
}

func walletKey(id string) string { return "wallet:" + id }
func txKey(id string) string     { return "txn:" + id }

func (u *memUnit) lock(ctx context.Context, key string) error {
	if u.held[key] {
		return nil
	}
	if err := u.store.locks.acquire(ctx, key, u.store.lockTimeout); err != nil {
		return err
	}
	u.held[key] = true
	u.order = append(u.order, key)
	return nil
}

func (u *memUnit) release() {
	for i := len(u.order) - 1; i >= 0; i-- {
		u.store.locks.release(u.order[i])
	}
	u.order = nil
	u.held = map[string]bool{}
}

func (u *memUnit) LockWallet(ctx context.Context, id string) (Wallet, error) {
	if _, err := u.store.WalletByID(ctx, id); err != nil {
		return Wallet{}, err
	}
	if err := u.lock(ctx, walletKey(id)); err != nil {
		return Wallet{}, err
	}
	if w, ok := u.wallets[id]; ok {
		return w, nil
	}
	return u.store.WalletByID(ctx, id)
}

func (u *memUnit) LockWalletByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	w, err := u.store.WalletByOwner(ctx, ownerID)
	if err != nil {
		return Wallet{}, err
	}
	return u.LockWallet(ctx, w.ID)
}

func (u *memUnit) LockWalletByNumber(ctx context.Context, number string) (Wallet, error) {
	w, err := u.store.WalletByNumber(ctx, number)
	if err != nil {
		return Wallet{}, err
	}
	return u.LockWallet(ctx, w.ID)
}

func (u *memUnit) LockTransaction(ctx context.Context, reference string) (Transaction, error) {
	for _, tx := range u.inserted {
		if tx.Reference == reference {
			return tx, nil
		}
	}
	tx, err := u.store.TransactionByReference(ctx, reference)
	if err != nil {
		return Transaction{}, err
	}
	if err := u.lock(ctx, txKey(tx.ID)); err != nil {
		return Transaction{}, err
	}
	if u.deleted[tx.ID] {
		return Transaction{}, ErrTransactionNotFound
	}
	if staged, ok := u.updated[tx.ID]; ok {
		return staged, nil
	}
	// Re-read: the row may have changed or been deleted while we waited.
	return u.store.TransactionByReference(ctx, reference)
}

func (u *memUnit) SetBalance(_ context.Context, walletID string, balance int64, at time.Time) error {
	if !u.held[walletKey(walletID)] {
		return apperr.Newf(apperr.Internal, "wallet %s written without lock", walletID)
	}
	w, ok := u.wallets[walletID]
	if !ok {
		u.store.mu.Lock()
		w, ok = u.store.wallets[walletID]
		u.store.mu.Unlock()
		if !ok {
			return ErrWalletNotFound
		}
	}
	w.Balance = balance
	w.UpdatedAt = at
	u.wallets[walletID] = w
	return nil
}

func (u *memUnit) InsertTransaction(_ context.Context, tx Transaction) error {
	u.store.mu.Lock()
	_, taken := u.store.byRef[tx.Reference]
	u.store.mu.Unlock()
	if taken {
		return apperr.Newf(apperr.Conflict, "reference %s already exists", tx.Reference)
	}
	for _, staged := range u.inserted {
		if staged.Reference == tx.Reference {
			return apperr.Newf(apperr.Conflict, "reference %s already exists", tx.Reference)
		}
	}
	u.inserted[tx.ID] = tx
	return nil
}

func (u *memUnit) UpdateTransaction(_ context.Context, tx Transaction) error {
	if _, ok := u.inserted[tx.ID]; ok {
		u.inserted[tx.ID] = tx
		return nil
	}
	if !u.held[txKey(tx.ID)] {
		return apperr.Newf(apperr.Internal, "transaction %s written without lock", tx.ID)
	}
	u.updated[tx.ID] = tx
	return nil
}

func (u *memUnit) DeleteTransaction(_ context.Context, id string) error {
	if _, ok := u.inserted[id]; ok {
		delete(u.inserted, id)
		return nil
	}
	if !u.held[txKey(id)] {
		return apperr.Newf(apperr.Internal, "transaction %s deleted without lock", id)
	}
	delete(u.updated, id)
	u.deleted[id] = true
	return nil
}

func (u *memUnit) commit() error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range u.inserted {
		if _, taken := s.byRef[tx.Reference]; taken {
			return apperr.Newf(apperr.Conflict, "reference %s already exists", tx.Reference)
		}
	}
	for _, w := range u.wallets {
		if w.Balance < 0 {
			return apperr.Newf(apperr.StoreUnavailable, "wallet %s balance would be negative", w.ID)
		}
	}

	for id, w := range u.wallets {
		s.wallets[id] = w
	}
	// Insert in a stable order so listing ties break deterministically.
	ids := make([]string, 0, len(u.inserted))
	for id := range u.inserted {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := u.inserted[ids[i]], u.inserted[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Amount < b.Amount
	})
	for _, id := range ids {
		tx := u.inserted[id]
		s.nextSeq++
		s.seq[id] = s.nextSeq
		s.txs[id] = tx
		s.byRef[tx.Reference] = id
	}
	for id, tx := range u.updated {
		s.txs[id] = tx
	}
	for id := range u.deleted {
		if tx, ok := s.txs[id]; ok {
			delete(s.byRef, tx.Reference)
			delete(s.txs, id)
			delete(s.seq, id)
		}
	}
	return nil
}
