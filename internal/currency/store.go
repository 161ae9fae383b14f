package currency

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrInvalidKind       = errors.New("unrecognized transaction kind")
)

// Store is the backing ledger. It owns atomicity and replay protection:
// a second Transfer with an already committed non-nil ID must return a
// Replayed receipt without touching balances.
type Store interface {
	Transfer(ctx context.Context, tx Transaction) (Receipt, error)
	Balance(ctx context.Context, id uuid.UUID) (int64, error)
	EnsureAccount(ctx context.Context, id uuid.UUID, name string) error
	Accounts(ctx context.Context) ([]Account, error)
	History(ctx context.Context, q HistoryQuery) ([]Transaction, error)
	CountTransactions(ctx context.Context, q HistoryQuery) (int, error)
	// Config returns the active currency configuration, or nil when none
	// is loaded.
	Config() *Config
}

// EnsureSystemAccounts provisions the Banker and the Marketplace.
func EnsureSystemAccounts(ctx context.Context, st Store) error {
	banker, market := "Banker", "Marketplace"
	if cfg := st.Config(); cfg != nil {
		banker, market = cfg.BankerName, cfg.MarketplaceName
	}
	if err := st.EnsureAccount(ctx, BankerID, banker); err != nil {
		return err
	}
	return st.EnsureAccount(ctx, MarketplaceID, market)
}
