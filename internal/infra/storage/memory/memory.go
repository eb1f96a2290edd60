package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/infra/storage"
)

type guardianKey struct {
	owner    domain.Principal
	guardian domain.Principal
}

// MemoryStorage keeps committed state in maps. Writers are serialized by a
// single lock and stage their changes until fn succeeds.
type MemoryStorage struct {
	wallets    map[domain.Principal]*domain.WalletAccount
	txs        map[domain.TxID]*domain.PendingTransaction
	guardians  map[guardianKey]*domain.Guardian
	configs    map[domain.Principal]*domain.GuardianConfig
	recoveries map[domain.Principal]*domain.RecoveryRequest
	transfers  []*domain.Transfer
	nextTxID   domain.TxID
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		wallets:    make(map[domain.Principal]*domain.WalletAccount),
		txs:        make(map[domain.TxID]*domain.PendingTransaction),
		guardians:  make(map[guardianKey]*domain.Guardian),
		configs:    make(map[domain.Principal]*domain.GuardianConfig),
		recoveries: make(map[domain.Principal]*domain.RecoveryRequest),
	}
}

var _ storage.Store = (*MemoryStorage)(nil)

// Atomic runs fn with the writer lock held and commits staged writes only
// when fn returns nil.
func (s *MemoryStorage) Atomic(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s, false)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn against committed state.
func (s *MemoryStorage) View(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, newTx(s, true))
}

func (s *MemoryStorage) Health(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// -----------------------------------------------------------------------------
// Transaction overlay
// -----------------------------------------------------------------------------

type memTx struct {
	store    *MemoryStorage
	readOnly bool

	wallets    map[domain.Principal]*domain.WalletAccount
	txs        map[domain.TxID]*domain.PendingTransaction
	guardians  map[guardianKey]*domain.Guardian
	configs    map[domain.Principal]*domain.GuardianConfig
	recoveries map[domain.Principal]*domain.RecoveryRequest
	transfers  []*domain.Transfer
	nextTxID   domain.TxID
}

func newTx(s *MemoryStorage, readOnly bool) *memTx {
	return &memTx{
		store:      s,
		readOnly:   readOnly,
		wallets:    make(map[domain.Principal]*domain.WalletAccount),
		txs:        make(map[domain.TxID]*domain.PendingTransaction),
		guardians:  make(map[guardianKey]*domain.Guardian),
		configs:    make(map[domain.Principal]*domain.GuardianConfig),
		recoveries: make(map[domain.Principal]*domain.RecoveryRequest),
		nextTxID:   s.nextTxID,
	}
}

func (t *memTx) commit() {
	s := t.store
	for k, v := range t.wallets {
		s.wallets[k] = v
	}
	for k, v := range t.txs {
		s.txs[k] = v
	}
	for k, v := range t.guardians {
		s.guardians[k] = v
	}
	for k, v := range t.configs {
		s.configs[k] = v
	}
	for k, v := range t.recoveries {
		s.recoveries[k] = v
	}
	s.transfers = append(s.transfers, t.transfers...)
	s.nextTxID = t.nextTxID
}

func (t *memTx) writable() error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

// Lock is a no-op: the store-wide writer lock is already held.
func (t *memTx) Lock(ctx context.Context, key string) error {
	return nil
}

func (t *memTx) Wallets() storage.WalletRepository { return &WalletRepo{tx: t} }
func (t *memTx) Transactions() storage.TransactionRepository { return &TxRepo{tx: t} }
func (t *memTx) Guardians() storage.GuardianRepository { return &GuardianRepo{tx: t} }
func (t *memTx) Recoveries() storage.RecoveryRepository { return &RecoveryRepo{tx: t} }
func (t *memTx) Transfers() storage.TransferRepository { return &TransferRepo{tx: t} }

// -----------------------------------------------------------------------------
// Wallet Repository
// -----------------------------------------------------------------------------

type WalletRepo struct {
	tx *memTx
}

func (r *WalletRepo) Get(ctx context.Context, owner domain.Principal) (*domain.WalletAccount, error) {
	if w, ok := r.tx.wallets[owner]; ok {
		return w.Clone(), nil
	}
	if w, ok := r.tx.store.wallets[owner]; ok {
		return w.Clone(), nil
	}
	return nil, storage.ErrNotFound
}

func (r *WalletRepo) Create(ctx context.Context, w *domain.WalletAccount) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	r.tx.wallets[w.Owner] = w.Clone()
	return nil
}

func (r *WalletRepo) Update(ctx context.Context, w *domain.WalletAccount) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, err := r.Get(ctx, w.Owner); err != nil {
		return err
	}
	r.tx.wallets[w.Owner] = w.Clone()
	return nil
}

// -----------------------------------------------------------------------------
// Transaction Repository
// -----------------------------------------------------------------------------

type TxRepo struct {
	tx *memTx
}

func (r *TxRepo) NextID(ctx context.Context) (domain.TxID, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	id := r.tx.nextTxID
	r.tx.nextTxID++
	return id, nil
}

func (r *TxRepo) Get(ctx context.Context, id domain.TxID) (*domain.PendingTransaction, error) {
	if t, ok := r.tx.txs[id]; ok {
		return t.Clone(), nil
	}
	if t, ok := r.tx.store.txs[id]; ok {
		return t.Clone(), nil
	}
	return nil, storage.ErrNotFound
}

func (r *TxRepo) Save(ctx context.Context, t *domain.PendingTransaction) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	r.tx.txs[t.ID] = t.Clone()
	return nil
}

// -----------------------------------------------------------------------------
// Guardian Repository
// -----------------------------------------------------------------------------

type GuardianRepo struct {
	tx *memTx
}

func (r *GuardianRepo) Get(ctx context.Context, owner, guardian domain.Principal) (*domain.Guardian, error) {
	key := guardianKey{owner: owner, guardian: guardian}
	if g, ok := r.tx.guardians[key]; ok {
		c := *g
		return &c, nil
	}
	if g, ok := r.tx.store.guardians[key]; ok {
		c := *g
		return &c, nil
	}
	return nil, storage.ErrNotFound
}

func (r *GuardianRepo) Save(ctx context.Context, g *domain.Guardian) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	c := *g
	r.tx.guardians[guardianKey{owner: g.Owner, guardian: g.Guardian}] = &c
	return nil
}

func (r *GuardianRepo) GetConfig(ctx context.Context, owner domain.Principal) (*domain.GuardianConfig, error) {
	if c, ok := r.tx.configs[owner]; ok {
		return c.Clone(), nil
	}
	if c, ok := r.tx.store.configs[owner]; ok {
		return c.Clone(), nil
	}
	return nil, storage.ErrNotFound
}

func (r *GuardianRepo) SaveConfig(ctx context.Context, cfg *domain.GuardianConfig) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	r.tx.configs[cfg.Owner] = cfg.Clone()
	return nil
}

// -----------------------------------------------------------------------------
// Recovery Repository
// -----------------------------------------------------------------------------

type RecoveryRepo struct {
	tx *memTx
}

func (r *RecoveryRepo) Get(ctx context.Context, owner domain.Principal) (*domain.RecoveryRequest, error) {
	if req, ok := r.tx.recoveries[owner]; ok {
		return req.Clone(), nil
	}
	if req, ok := r.tx.store.recoveries[owner]; ok {
		return req.Clone(), nil
	}
	return nil, storage.ErrNotFound
}

func (r *RecoveryRepo) Save(ctx context.Context, req *domain.RecoveryRequest) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	r.tx.recoveries[req.Owner] = req.Clone()
	return nil
}

// -----------------------------------------------------------------------------
// Transfer Repository (outbox)
// -----------------------------------------------------------------------------

type TransferRepo struct {
	tx *memTx
}

func (r *TransferRepo) Append(ctx context.Context, t *domain.Transfer) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	t.Seq = uint64(len(r.tx.store.transfers)+len(r.tx.transfers)) + 1
	c := *t
	r.tx.transfers = append(r.tx.transfers, &c)
	return nil
}

func (r *TransferRepo) all() []*domain.Transfer {
	out := make([]*domain.Transfer, 0, len(r.tx.store.transfers)+len(r.tx.transfers))
	out = append(out, r.tx.store.transfers...)
	return append(out, r.tx.transfers...)
}

func (r *TransferRepo) ListAfter(ctx context.Context, after uint64, limit int) ([]*domain.Transfer, error) {
	all := r.all()
	// Seq starts at 1 and equals position+1.
	start := sort.Search(len(all), func(i int) bool { return all[i].Seq > after })
	var out []*domain.Transfer
	for _, t := range all[start:] {
		if limit > 0 && len(out) >= limit {
			break
		}
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (r *TransferRepo) SumTo(ctx context.Context, to domain.Principal, kinds ...domain.TransferKind) (uint64, error) {
	var total uint64
	for _, t := range r.all() {
		if t.To != to {
			continue
		}
		if len(kinds) > 0 && !containsKind(kinds, t.Kind) {
			continue
		}
		total += t.Amount
	}
	return total, nil
}

func containsKind(kinds []domain.TransferKind, k domain.TransferKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
