package currency_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/currency/currencytest"
)

func TestStipends_RunOncePaysEachPeriodOnce(t *testing.T) {
	st := currencytest.NewMemStoreT(t, nil)
	u1, u2 := uuid.New(), uuid.New()
	st.Fund(u1, 0)
	st.Fund(u2, 5)
	svc := currency.NewService(st, currency.Options{Logger: zaptest.NewLogger(t)})
	p := currency.NewStipends(svc, currency.StipendConfig{Enabled: true, Amount: 300, Every: 24 * time.Hour}, zaptest.NewLogger(t))

	ctx := context.Background()
	day := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n, err := p.RunOnce(ctx, day)
	if err != nil || n != 2 {
		t.Fatalf("first run: n=%d err=%v", n, err)
	}
	// same period again, e.g. after a restart
	if _, err := p.RunOnce(ctx, day.Add(time.Hour)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if b, _ := st.Balance(ctx, u1); b != 300 {
		t.Fatalf("u1 balance: got %d want 300", b)
	}
	if b, _ := st.Balance(ctx, u2); b != 305 {
		t.Fatalf("u2 balance: got %d want 305", b)
	}

	if _, err := p.RunOnce(ctx, day.Add(24*time.Hour)); err != nil {
		t.Fatalf("next period: %v", err)
	}
	if b, _ := st.Balance(ctx, u1); b != 600 {
		t.Fatalf("u1 balance after next period: got %d want 600", b)
	}
	if b, _ := st.Balance(ctx, currency.MarketplaceID); b != 0 {
		t.Fatalf("system accounts must not receive stipends")
	}
}

func TestStipends_Disabled(t *testing.T) {
	st := currencytest.NewMemStoreT(t, nil)
	st.Fund(uuid.New(), 0)
	svc := currency.NewService(st, currency.Options{})
	for _, cfg := range []currency.StipendConfig{
		{Enabled: false, Amount: 10, Every: time.Hour},
		{Enabled: true, Amount: 0, Every: time.Hour},
	} {
		n, err := currency.NewStipends(svc, cfg, nil).RunOnce(context.Background(), time.Now())
		if err != nil || n != 0 || st.Calls != 0 {
			t.Fatalf("cfg %+v: n=%d err=%v calls=%d", cfg, n, err, st.Calls)
		}
	}
}

func TestStipendID_Deterministic(t *testing.T) {
	a := uuid.New()
	if currency.StipendID(a, 7) != currency.StipendID(a, 7) {
		t.Fatalf("same inputs gave different ids")
	}
	if currency.StipendID(a, 7) == currency.StipendID(a, 8) {
		t.Fatalf("different periods share an id")
	}
}
