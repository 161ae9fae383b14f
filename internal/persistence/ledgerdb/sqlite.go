package ledgerdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"gridbank.ai/internal/currency"
)

// Ledger is the sqlite backed currency.Store. Transfers are written
// synchronously; escrow audit rows go through a background writer.
type Ledger struct {
	db  *sql.DB
	cfg *currency.Config

	// mu guards sends on audit against Close.
	mu    sync.RWMutex
	audit chan auditReq
	wg    sync.WaitGroup
	once  sync.Once

	closed      atomic.Bool
	dropped     atomic.Uint64
	auditFailed atomic.Uint64
}

type auditReq struct {
	rec  currency.EscrowRecord
	done chan struct{}
}

var _ currency.Store = (*Ledger)(nil)

// OpenSQLite opens (or creates) the ledger at path. cfg may be nil when no
// currency configuration is active.
func OpenSQLite(path string, cfg *currency.Config) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &Ledger{
		db:    db,
		cfg:   cfg,
		audit: make(chan auditReq, 4096),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.loop()
	}()
	return l, nil
}

func initPragmas(db *sql.DB) error {
	// The ledger is the source of truth, so keep FULL sync.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tx_id TEXT UNIQUE,
			from_id TEXT NOT NULL REFERENCES accounts(id),
			to_id TEXT NOT NULL REFERENCES accounts(id),
			from_object TEXT NOT NULL DEFAULT '',
			from_object_name TEXT NOT NULL DEFAULT '',
			to_object TEXT NOT NULL DEFAULT '',
			to_object_name TEXT NOT NULL DEFAULT '',
			amount INTEGER NOT NULL CHECK (amount >= 0),
			description TEXT NOT NULL DEFAULT '',
			kind INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS transactions_to ON transactions(to_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS transactions_from ON transactions(from_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS escrow_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			buyer_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			parcel_local_id INTEGER NOT NULL,
			price INTEGER NOT NULL,
			state TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			tx_id TEXT NOT NULL DEFAULT '',
			recorded_at INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) Close() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed.Store(true)
		close(l.audit)
		l.mu.Unlock()
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}

func (l *Ledger) Config() *currency.Config { return l.cfg }

// DB exposes the handle for read-only tooling.
func (l *Ledger) DB() *sql.DB { return l.db }

func nullableID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func objectID(o currency.ObjectRef) string {
	if o.IsZero() {
		return ""
	}
	return o.ID.String()
}

func (l *Ledger) Transfer(ctx context.Context, t currency.Transaction) (currency.Receipt, error) {
	if l.closed.Load() {
		return currency.Receipt{}, fmt.Errorf("ledger closed")
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return currency.Receipt{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if t.Deduplicated() {
		prev, err := scanTransaction(tx.QueryRowContext(ctx, selectTx+` WHERE tx_id = ?`, t.ID.String()))
		switch {
		case err == nil:
			fromBal, _ := balanceTx(ctx, tx, prev.From)
			toBal, _ := balanceTx(ctx, tx, prev.To)
			return currency.Receipt{Transaction: prev, Replayed: true, FromBalance: fromBal, ToBalance: toBal}, nil
		case !errors.Is(err, sql.ErrNoRows):
			return currency.Receipt{}, err
		}
	}

	fromBal, err := balanceTx(ctx, tx, t.From)
	if err != nil {
		return currency.Receipt{}, fmt.Errorf("from %s: %w", t.From, err)
	}
	if _, err := balanceTx(ctx, tx, t.To); err != nil {
		return currency.Receipt{}, fmt.Errorf("to %s: %w", t.To, err)
	}
	if t.From != currency.BankerID && fromBal < t.Amount {
		return currency.Receipt{}, fmt.Errorf("%w: have %d, need %d", currency.ErrInsufficientFunds, fromBal, t.Amount)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = balance - ? WHERE id = ?`, t.Amount, t.From.String()); err != nil {
		return currency.Receipt{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = balance + ? WHERE id = ?`, t.Amount, t.To.String()); err != nil {
		return currency.Receipt{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO transactions
		(tx_id, from_id, to_id, from_object, from_object_name, to_object, to_object_name, amount, description, kind, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		nullableID(t.ID), t.From.String(), t.To.String(),
		objectID(t.FromObject), t.FromObject.Name,
		objectID(t.ToObject), t.ToObject.Name,
		t.Amount, t.Description, int32(t.Kind), t.CreatedAt.UnixNano())
	if err != nil {
		return currency.Receipt{}, err
	}

	r := currency.Receipt{Transaction: t}
	if r.FromBalance, err = balanceTx(ctx, tx, t.From); err != nil {
		return currency.Receipt{}, err
	}
	if r.ToBalance, err = balanceTx(ctx, tx, t.To); err != nil {
		return currency.Receipt{}, err
	}
	if err := tx.Commit(); err != nil {
		return currency.Receipt{}, err
	}
	return r, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func balanceTx(ctx context.Context, q queryRower, id uuid.UUID) (int64, error) {
	var bal int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id.String()).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, currency.ErrUnknownAccount
	}
	return bal, err
}

func (l *Ledger) Balance(ctx context.Context, id uuid.UUID) (int64, error) {
	return balanceTx(ctx, l.db, id)
}

func (l *Ledger) EnsureAccount(ctx context.Context, id uuid.UUID, name string) error {
	if id == uuid.Nil {
		return fmt.Errorf("account id must not be nil")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts(id, name, balance, created_at) VALUES(?,?,0,?)`,
		id.String(), name, time.Now().UTC().UnixNano())
	return err
}

func (l *Ledger) Accounts(ctx context.Context) ([]currency.Account, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, name, balance, created_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []currency.Account
	for rows.Next() {
		var (
			id      string
			a       currency.Account
			created int64
		)
		if err := rows.Scan(&id, &a.Name, &a.Balance, &created); err != nil {
			return nil, err
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		a.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

const selectTx = `SELECT tx_id, from_id, to_id, from_object, from_object_name, to_object, to_object_name,
	amount, description, kind, created_at FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(r rowScanner) (currency.Transaction, error) {
	var (
		t                    currency.Transaction
		txID                 sql.NullString
		from, to, fromO, toO string
		kind                 int32
		created              int64
	)
	if err := r.Scan(&txID, &from, &to, &fromO, &t.FromObject.Name, &toO, &t.ToObject.Name,
		&t.Amount, &t.Description, &kind, &created); err != nil {
		return t, err
	}
	var err error
	if txID.Valid {
		if t.ID, err = uuid.Parse(txID.String); err != nil {
			return t, err
		}
	}
	if t.From, err = uuid.Parse(from); err != nil {
		return t, err
	}
	if t.To, err = uuid.Parse(to); err != nil {
		return t, err
	}
	if fromO != "" {
		if t.FromObject.ID, err = uuid.Parse(fromO); err != nil {
			return t, err
		}
	}
	if toO != "" {
		if t.ToObject.ID, err = uuid.Parse(toO); err != nil {
			return t, err
		}
	}
	t.Kind = currency.Kind(kind)
	t.CreatedAt = time.Unix(0, created).UTC()
	return t, nil
}

func where(q currency.HistoryQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.To != uuid.Nil {
		conds = append(conds, "to_id = ?")
		args = append(args, q.To.String())
	}
	if q.From != uuid.Nil {
		conds = append(conds, "from_id = ?")
		args = append(args, q.From.String())
	}
	if !q.Start.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, q.End.UnixNano())
	}
	if len(q.Kinds) > 0 {
		ph := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			ph[i] = "?"
			args = append(args, int32(k))
		}
		conds = append(conds, "kind IN ("+strings.Join(ph, ",")+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// History returns matching transactions, newest first.
func (l *Ledger) History(ctx context.Context, q currency.HistoryQuery) ([]currency.Transaction, error) {
	w, args := where(q)
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, q.Offset)
	rows, err := l.db.QueryContext(ctx, selectTx+w+` ORDER BY seq DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []currency.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (l *Ledger) CountTransactions(ctx context.Context, q currency.HistoryQuery) (int, error) {
	w, args := where(q)
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+w, args...).Scan(&n)
	return n, err
}

// RecordEscrow queues an escrow audit row. It drops the row when the
// writer is behind or the ledger is closed.
func (l *Ledger) RecordEscrow(rec currency.EscrowRecord) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed.Load() {
		return
	}
	select {
	case l.audit <- auditReq{rec: rec}:
	default:
		l.dropped.Add(1)
	}
}

// DroppedAudit is the number of escrow audit rows discarded.
func (l *Ledger) DroppedAudit() uint64 { return l.dropped.Load() }

// AuditErrors is the number of escrow audit rows the database refused.
func (l *Ledger) AuditErrors() uint64 { return l.auditFailed.Load() }

func (l *Ledger) loop() {
	for req := range l.audit {
		if req.done != nil {
			close(req.done)
			continue
		}
		rec := req.rec
		_, err := l.db.Exec(`INSERT INTO escrow_audit
			(buyer_id, owner_id, parcel_local_id, price, state, reason, tx_id, recorded_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			rec.BuyerID.String(), rec.OwnerID.String(), rec.ParcelLocalID, rec.Price,
			rec.State.String(), string(rec.Reason), txText(rec.TransactionID), rec.At.UnixNano())
		if err != nil {
			l.auditFailed.Add(1)
		}
	}
}

func txText(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// Flush waits until audit rows queued before the call are written.
func (l *Ledger) Flush(ctx context.Context) error {
	done := make(chan struct{})
	l.mu.RLock()
	if l.closed.Load() {
		l.mu.RUnlock()
		return nil
	}
	select {
	case l.audit <- auditReq{done: done}:
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}
	l.mu.RUnlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EscrowAuditCount returns the number of audit rows for buyer.
func (l *Ledger) EscrowAuditCount(ctx context.Context, buyer uuid.UUID) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escrow_audit WHERE buyer_id = ?`, buyer.String()).Scan(&n)
	return n, err
}
