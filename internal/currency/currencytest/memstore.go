package currencytest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"gridbank.ai/internal/currency"
)

// MemStore is an in-memory currency.Store for tests. It follows the same
// rules as the sqlite ledger: replay by ID, Banker may go negative, other
// accounts may not.
type MemStore struct {
	mu       sync.Mutex
	cfg      *currency.Config
	accounts map[uuid.UUID]*currency.Account
	txs      []currency.Transaction
	seen     map[uuid.UUID]currency.Transaction

	// Calls counts Transfer invocations, replays included.
	Calls int
	// FailNext makes the next Transfer return this error.
	FailNext error
}

func NewMemStore(cfg *currency.Config) *MemStore {
	return &MemStore{
		cfg:      cfg,
		accounts: map[uuid.UUID]*currency.Account{},
		seen:     map[uuid.UUID]currency.Transaction{},
	}
}

// NewMemStoreT returns a MemStore with the system accounts provisioned.
func NewMemStoreT(t *testing.T, cfg *currency.Config) *MemStore {
	t.Helper()
	s := NewMemStore(cfg)
	if err := currency.EnsureSystemAccounts(context.Background(), s); err != nil {
		t.Fatalf("EnsureSystemAccounts: %v", err)
	}
	return s
}

// Fund creates id if needed and sets its balance.
func (s *MemStore) Fund(id uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[id]
	if a == nil {
		a = &currency.Account{ID: id, Name: id.String(), CreatedAt: time.Now().UTC()}
		s.accounts[id] = a
	}
	a.Balance = balance
}

func (s *MemStore) Config() *currency.Config { return s.cfg }

func (s *MemStore) Transfer(_ context.Context, tx currency.Transaction) (currency.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if err := s.FailNext; err != nil {
		s.FailNext = nil
		return currency.Receipt{}, err
	}
	if tx.Deduplicated() {
		if prev, ok := s.seen[tx.ID]; ok {
			return currency.Receipt{
				Transaction: prev,
				Replayed:    true,
				FromBalance: s.balanceLocked(prev.From),
				ToBalance:   s.balanceLocked(prev.To),
			}, nil
		}
	}
	from, to := s.accounts[tx.From], s.accounts[tx.To]
	if from == nil || to == nil {
		return currency.Receipt{}, currency.ErrUnknownAccount
	}
	if tx.From != currency.BankerID && from.Balance < tx.Amount {
		return currency.Receipt{}, currency.ErrInsufficientFunds
	}
	from.Balance -= tx.Amount
	to.Balance += tx.Amount
	s.txs = append(s.txs, tx)
	if tx.Deduplicated() {
		s.seen[tx.ID] = tx
	}
	return currency.Receipt{Transaction: tx, FromBalance: from.Balance, ToBalance: to.Balance}, nil
}

func (s *MemStore) balanceLocked(id uuid.UUID) int64 {
	if a := s.accounts[id]; a != nil {
		return a.Balance
	}
	return 0
}

func (s *MemStore) Balance(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[id]
	if a == nil {
		return 0, currency.ErrUnknownAccount
	}
	return a.Balance, nil
}

func (s *MemStore) EnsureAccount(_ context.Context, id uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		s.accounts[id] = &currency.Account{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (s *MemStore) Accounts(context.Context) ([]currency.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]currency.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *MemStore) History(_ context.Context, q currency.HistoryQuery) ([]currency.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []currency.Transaction
	skipped := 0
	for i := len(s.txs) - 1; i >= 0; i-- {
		tx := s.txs[i]
		if !q.Match(tx) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, tx)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) CountTransactions(_ context.Context, q currency.HistoryQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tx := range s.txs {
		if q.Match(tx) {
			n++
		}
	}
	return n, nil
}

// Notifications records every BalanceUpdate it is handed.
type Notifications struct {
	mu      sync.Mutex
	Updates []currency.BalanceUpdate
}

func (n *Notifications) NotifyBalance(_ context.Context, u currency.BalanceUpdate) {
	n.mu.Lock()
	n.Updates = append(n.Updates, u)
	n.mu.Unlock()
}

// For returns the updates addressed to agent, oldest first.
func (n *Notifications) For(agent uuid.UUID) []currency.BalanceUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []currency.BalanceUpdate
	for _, u := range n.Updates {
		if u.AgentID == agent {
			out = append(out, u)
		}
	}
	return out
}
