package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/region"
	"gridbank.ai/internal/region/regiontest"
	"gridbank.ai/internal/syncmsg"
)

func newRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func startBus(t *testing.T, rdb redis.UniversalClient, process string, h Handler) *Bus {
	t.Helper()
	b, err := New(Options{Client: rdb, Process: process, Handler: h, RequestTimeout: 2 * time.Second, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-b.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("bus %s never subscribed", process)
	}
	return b
}

func hostRegion(t *testing.T) (*region.Registry, *region.Scene, *syncmsg.Handler) {
	t.Helper()
	reg := region.NewRegistry()
	s := region.NewScene("harbor", 15000, nil)
	reg.Attach(s)
	return reg, s, syncmsg.NewHandler(reg, zaptest.NewLogger(t))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestBus_SendUpdateMoneyBalance(t *testing.T) {
	rdb := newRedis(t)
	_, s, h := hostRegion(t)
	c := regiontest.NewClient()
	s.AddClient(context.Background(), c, region.Vec3{})
	if err := s.MakeRoot(context.Background(), c.Agent); err != nil {
		t.Fatalf("MakeRoot: %v", err)
	}

	b := startBus(t, rdb, "proc-b", h)
	a := startBus(t, rdb, "proc-a", nil)

	tx := uuid.New()
	msg := syncmsg.UpdateMoneyBalance(currency.BalanceUpdate{AgentID: c.Agent, Balance: 75, Text: "paid", TransactionID: tx})
	if err := a.Send(context.Background(), "proc-b", msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, func() bool { _, ok := c.LastBalance(); return ok })
	got, _ := c.LastBalance()
	if got.Balance != 75 || got.TransactionID != tx {
		t.Fatalf("delivered balance: %+v", got)
	}
	if alerts := c.Alerts(); len(alerts) != 1 || alerts[0] != "paid" {
		t.Fatalf("alerts: %v", alerts)
	}
	if a.Stats().Sent.Load() != 1 || b.Stats().Received.Load() != 1 {
		t.Fatalf("stats sent=%d received=%d", a.Stats().Sent.Load(), b.Stats().Received.Load())
	}
}

func TestBus_RequestLandData(t *testing.T) {
	rdb := newRedis(t)
	_, s, h := hostRegion(t)
	seller := uuid.New()
	s.SetParcel(region.Parcel{LocalID: 2, Name: "Dockside Lot", OwnerID: seller, SalePrice: 1000, Flags: currency.ParcelForSale, MinX: 0, MinY: 0, MaxX: 64, MaxY: 64})
	c := regiontest.NewClient()
	s.AddClient(context.Background(), c, region.Vec3{X: 10, Y: 10})
	if err := s.MakeRoot(context.Background(), c.Agent); err != nil {
		t.Fatalf("MakeRoot: %v", err)
	}

	startBus(t, rdb, "proc-b", h)
	a := startBus(t, rdb, "proc-a", nil)

	resp, err := a.Request(context.Background(), "proc-b", syncmsg.GetLandData(c.Agent))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !resp.Success || resp.RegionID != "harbor" || resp.Land == nil || resp.Land.OwnerID != seller || resp.Land.SalePrice != 1000 {
		t.Fatalf("land response: %+v", resp)
	}
}

func TestBus_RequestNoRegion(t *testing.T) {
	rdb := newRedis(t)
	startBus(t, rdb, "empty", syncmsg.NewHandler(region.NewRegistry(), nil))
	a := startBus(t, rdb, "proc-a", nil)

	_, err := a.Request(context.Background(), "empty", syncmsg.GetLandData(uuid.New()))
	if !errors.Is(err, syncmsg.ErrNoRegion) {
		t.Fatalf("expected ErrNoRegion, got %v", err)
	}
}

func TestBus_NoReceiver(t *testing.T) {
	rdb := newRedis(t)
	a := startBus(t, rdb, "proc-a", nil)
	err := a.Send(context.Background(), "gone", syncmsg.GetLandData(uuid.New()))
	if !errors.Is(err, ErrNoReceiver) {
		t.Fatalf("expected ErrNoReceiver, got %v", err)
	}
	if _, err := a.Request(context.Background(), "gone", syncmsg.GetLandData(uuid.New())); !errors.Is(err, ErrNoReceiver) {
		t.Fatalf("request: expected ErrNoReceiver, got %v", err)
	}
}

func TestNew_Validates(t *testing.T) {
	if _, err := New(Options{Process: "x"}); err == nil {
		t.Fatalf("nil client accepted")
	}
	if _, err := New(Options{Client: newRedis(t)}); err == nil {
		t.Fatalf("empty process accepted")
	}
}

func TestCodec_EnvelopeRoundTrip(t *testing.T) {
	in := envelope{ID: "1", From: "a", ReplyTo: "r", Message: syncmsg.UpdateMoneyBalance(currency.BalanceUpdate{AgentID: uuid.New(), Balance: -5, TransactionID: uuid.New()})}
	data, err := marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out envelope
	if err := unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip: %+v != %+v", out, in)
	}
	again, _ := marshal(out)
	if string(again) != string(data) {
		t.Fatalf("encoding not deterministic")
	}
}
