// Package memory keeps wallets and variants in process memory. It honours
// the same atomicity contract as the postgres package and backs tests and
// STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rahil234/SnapCart-sub000/internal/core/models"
	"github.com/rahil234/SnapCart-sub000/internal/core/repository"
)

type walletRepo struct {
	mu      sync.RWMutex
	owners  map[string]uuid.UUID
	wallets map[uuid.UUID]models.Wallet
	txs     map[uuid.UUID][]models.Transaction // per wallet, oldest first
	txIndex map[uuid.UUID]uuid.UUID            // transaction -> wallet

	// locks serialize mutations per wallet; mu only guards the maps.
	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func NewWalletRepo() repository.WalletRepository {
	return &walletRepo{
		owners:  make(map[string]uuid.UUID),
		wallets: make(map[uuid.UUID]models.Wallet),
		txs:     make(map[uuid.UUID][]models.Transaction),
		txIndex: make(map[uuid.UUID]uuid.UUID),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (r *walletRepo) walletLock(id uuid.UUID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

func (r *walletRepo) GetByOwnerID(_ context.Context, ownerID string) (*models.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[ownerID]
	if !ok {
		return nil, fmt.Errorf("%w: wallet for owner %s", repository.ErrNotFound, ownerID)
	}
	w := r.wallets[id]
	return &w, nil
}

func (r *walletRepo) Create(_ context.Context, wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[wallet.OwnerID]; ok {
		return fmt.Errorf("%w: wallet for owner %s", repository.ErrAlreadyExists, wallet.OwnerID)
	}
	r.owners[wallet.OwnerID] = wallet.ID
	r.wallets[wallet.ID] = *wallet
	return nil
}

func (r *walletRepo) SetActive(ctx context.Context, ownerID string, active bool) (*models.Wallet, error) {
	w, err := r.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	lock := r.walletLock(w.ID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.wallets[w.ID]
	current.IsActive = active
	current.UpdatedAt = time.Now().UTC()
	r.wallets[w.ID] = current
	return &current, nil
}

func (r *walletRepo) ExecuteTxWithRetry(ctx context.Context, ownerID string, entry models.LedgerEntry) (*repository.LedgerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := r.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	lock := r.walletLock(w.ID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	current := r.wallets[w.ID]
	existing, found := r.findByOrder(current.ID, entry)
	r.mu.RUnlock()

	if found {
		if err := models.ReplayOf(existing, entry); err != nil {
			return nil, err
		}
		return &repository.LedgerResult{Wallet: current, Transaction: existing, Replayed: true}, nil
	}

	next, tx, err := models.ApplyEntry(current, entry, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.wallets[next.ID] = next
	r.txs[next.ID] = append(r.txs[next.ID], tx)
	r.txIndex[tx.ID] = next.ID
	r.mu.Unlock()

	return &repository.LedgerResult{Wallet: next, Transaction: tx}, nil
}

// findByOrder must be called with mu held.
func (r *walletRepo) findByOrder(walletID uuid.UUID, entry models.LedgerEntry) (models.Transaction, bool) {
	for _, t := range r.txs[walletID] {
		if t.MatchesOrderKey(entry) {
			return t, true
		}
	}
	return models.Transaction{}, false
}

func (r *walletRepo) ReverseTxWithRetry(ctx context.Context, transactionID uuid.UUID) (*repository.LedgerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	walletID, ok := r.txIndex[transactionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, transactionID)
	}

	lock := r.walletLock(walletID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	current := r.wallets[walletID]
	idx := -1
	for i, t := range r.txs[walletID] {
		if t.ID == transactionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.RUnlock()
		return nil, errors.New("transaction index out of sync")
	}
	tx := r.txs[walletID][idx]
	r.mu.RUnlock()

	next, reversed, err := models.ApplyReversal(current, tx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.wallets[walletID] = next
	r.txs[walletID][idx] = reversed
	r.mu.Unlock()

	return &repository.LedgerResult{Wallet: next, Transaction: reversed}, nil
}

func (r *walletRepo) ListTransactions(_ context.Context, walletID uuid.UUID, limit, offset int) ([]models.Transaction, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.txs[walletID]
	total := len(all)

	out := make([]models.Transaction, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, total, nil
}

func (r *walletRepo) LedgerSum(_ context.Context, walletID uuid.UUID) (*models.Reconciliation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("%w: wallet %s", repository.ErrNotFound, walletID)
	}
	sum := models.LedgerSum(r.txs[walletID])
	return &models.Reconciliation{
		WalletID:  walletID,
		Balance:   w.Balance,
		LedgerSum: sum,
		Balanced:  sum.Equal(w.Balance),
	}, nil
}
