package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/persistence/journal"
	"gridbank.ai/internal/persistence/ledgerdb"
)

type ledgerFlags struct {
	dataDir string
	dbPath  string
}

func (f *ledgerFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.dataDir, "data", "./data", "runtime data directory")
	fs.StringVar(&f.dbPath, "db", "", "ledger sqlite path (default: <data>/ledger.sqlite)")
}

func (f *ledgerFlags) open() (*ledgerdb.Ledger, error) {
	path := strings.TrimSpace(f.dbPath)
	if path == "" {
		path = filepath.Join(f.dataDir, "ledger.sqlite")
	}
	l, err := ledgerdb.OpenSQLite(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return l, nil
}

func parseAgent(s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func accountsCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("accounts", pflag.ContinueOnError)
	var lf ledgerFlags
	lf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := lf.open()
	if err != nil {
		return err
	}
	defer l.Close()

	accts, err := l.Accounts(context.Background())
	if err != nil {
		return err
	}
	for _, a := range accts {
		printJSON(out, a)
	}
	return nil
}

func balanceCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("balance", pflag.ContinueOnError)
	var lf ledgerFlags
	lf.register(fs)
	agentS := fs.String("agent", "", "agent uuid (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	agent, err := parseAgent(*agentS)
	if err != nil || agent == uuid.Nil {
		return fmt.Errorf("missing or bad --agent")
	}
	l, err := lf.open()
	if err != nil {
		return err
	}
	defer l.Close()

	bal, err := l.Balance(context.Background(), agent)
	if err != nil {
		return err
	}
	printJSON(out, map[string]any{"agent": agent, "balance": bal})
	return nil
}

func historyCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	var lf ledgerFlags
	lf.register(fs)
	toS := fs.String("to", "", "receiving account")
	fromS := fs.String("from", "", "paying account")
	kinds := fs.StringSlice("kind", nil, "transaction kinds (e.g. gift,land_sale)")
	purchases := fs.Bool("purchases", false, "only purchase kinds")
	period := fs.Int("period", 0, "window length, counted back from now")
	periodType := fs.String("period-type", "day", "hour, day, week, month or year")
	offset := fs.Int("offset", 0, "rows to skip")
	limit := fs.Int("limit", 20, "result limit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := currency.HistoryQuery{Offset: *offset, Limit: *limit}
	var err error
	if q.To, err = parseAgent(*toS); err != nil {
		return fmt.Errorf("bad --to: %w", err)
	}
	if q.From, err = parseAgent(*fromS); err != nil {
		return fmt.Errorf("bad --from: %w", err)
	}
	for _, k := range *kinds {
		kind, ok := currency.ParseKind(k)
		if !ok {
			return fmt.Errorf("unknown kind %q", k)
		}
		q.Kinds = append(q.Kinds, kind)
	}
	if *purchases {
		q.Kinds = append(q.Kinds, currency.PurchaseKinds...)
	}
	if *period > 0 {
		if q.Start, q.End, err = currency.PeriodRange(*period, *periodType, time.Now()); err != nil {
			return err
		}
	}

	l, err := lf.open()
	if err != nil {
		return err
	}
	defer l.Close()

	txs, err := l.History(context.Background(), q)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		printJSON(out, tx)
	}
	return nil
}

func escrowCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("escrow", pflag.ContinueOnError)
	var lf ledgerFlags
	lf.register(fs)
	buyerS := fs.String("buyer", "", "buyer uuid (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	buyer, err := parseAgent(*buyerS)
	if err != nil || buyer == uuid.Nil {
		return fmt.Errorf("missing or bad --buyer")
	}
	l, err := lf.open()
	if err != nil {
		return err
	}
	defer l.Close()

	n, err := l.EscrowAuditCount(context.Background(), buyer)
	if err != nil {
		return err
	}
	printJSON(out, map[string]any{"buyer": buyer, "escrows": n})
	return nil
}

// journalCmd prints journal entries, optionally only those touching one
// account.
func journalCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("journal", pflag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dir := fs.String("dir", "", "journal directory (default: <data>/journal)")
	agentS := fs.String("agent", "", "only entries paid by or to this account")
	files := fs.Bool("files", false, "list journal files with their hour instead of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	jdir := strings.TrimSpace(*dir)
	if jdir == "" {
		jdir = filepath.Join(*dataDir, "journal")
	}

	if *files {
		paths, err := journal.Files(jdir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			hour, err := journal.HourOf(p)
			if err != nil {
				return err
			}
			printJSON(out, map[string]any{"file": filepath.Base(p), "hour": hour})
		}
		return nil
	}

	agent, err := parseAgent(*agentS)
	if err != nil {
		return fmt.Errorf("bad --agent: %w", err)
	}
	entries, err := journal.ReadDir(jdir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if agent != uuid.Nil && e.From != agent && e.To != agent {
			continue
		}
		printJSON(out, e)
	}
	return nil
}
