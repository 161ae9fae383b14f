package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gridbank.ai/internal/bridge"
	"gridbank.ai/internal/currency"
	"gridbank.ai/internal/persistence/journal"
	"gridbank.ai/internal/persistence/ledgerdb"
	"gridbank.ai/internal/region"
	"gridbank.ai/internal/syncmsg"
	"gridbank.ai/internal/transport/bus"
	"gridbank.ai/internal/transport/ws"
)

func main() {
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
	cfg, err := parseConfig(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.DevLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	a.start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("process", cfg.ProcessID))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("ListenAndServe", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// app holds the wired process. Everything optional is nil when disabled.
type app struct {
	cfg serverConfig
	log *zap.Logger

	ledger   *ledgerdb.Ledger
	journal  *journal.Writer
	svc      *currency.Service
	escrow   *currency.Escrow
	regions  *region.Registry
	scenes   map[string]*region.Scene
	handler  *syncmsg.Handler
	delivery *syncmsg.Delivery
	bridge   *bridge.Bridge
	stipends *currency.Stipends
	ws       *ws.Server

	rdb      *redis.Client
	bus      *bus.Bus
	sessions *bus.Sessions
}

func newApp(ctx context.Context, cfg serverConfig, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger, scenes: map[string]*region.Scene{}}

	curCfg, err := loadCurrencyConfig(cfg.currencyPath())
	if err != nil {
		return nil, err
	}
	if curCfg == nil {
		logger.Warn("no currency config; all fees are zero", zap.String("path", cfg.currencyPath()))
	}
	regCfg, err := region.LoadConfig(existing(cfg.regionsPath()))
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}

	a.ledger, err = ledgerdb.OpenSQLite(cfg.DBPath, curCfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := currency.EnsureSystemAccounts(ctx, a.ledger); err != nil {
		_ = a.ledger.Close()
		return nil, fmt.Errorf("provision system accounts: %w", err)
	}

	a.regions = region.NewRegistry()
	a.handler = syncmsg.NewHandler(a.regions, logger.Named("sync"))

	var (
		dir    syncmsg.Directory
		sender syncmsg.Sender
		claims bridge.SessionClaims
	)
	if cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.bus, err = bus.New(bus.Options{
			Client:         a.rdb,
			Process:        cfg.ProcessID,
			Handler:        a.handler,
			RequestTimeout: cfg.RequestTimeout,
			Logger:         logger.Named("bus"),
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sessions = bus.NewSessions(a.rdb, cfg.ProcessID, cfg.SessionTTL)
		dir, sender, claims = a.sessions, a.bus, a.sessions
	}
	a.delivery = syncmsg.NewDelivery(a.regions, a.handler, dir, sender, cfg.ProcessID, logger.Named("delivery"))

	opts := currency.Options{Logger: logger.Named("currency"), Notifier: a.delivery}
	if !cfg.DisableJournal {
		a.journal = journal.NewWriter(cfg.journalDir())
		opts.Journal = a.journal
	}
	a.svc = currency.NewService(a.ledger, opts)
	a.escrow = currency.NewEscrow(a.svc)
	a.escrow.SetRecorder(a.ledger)

	a.bridge = bridge.New(bridge.Options{
		Service: a.svc,
		Escrow:  a.escrow,
		Regions: a.regions,
		Claims:  claims,
		Logger:  logger.Named("bridge"),
	})
	a.bridge.Start()
	for _, owner := range regCfg.Owners() {
		if err := a.ledger.EnsureAccount(ctx, owner, owner.String()); err != nil {
			a.Close()
			return nil, fmt.Errorf("provision owner %s: %w", owner, err)
		}
	}
	for _, s := range regCfg.Build(logger.Named("region")) {
		a.scenes[s.ID()] = s
		a.regions.Attach(s)
	}

	if curCfg != nil && curCfg.Stipend.Active() {
		a.stipends = currency.NewStipends(a.svc, curCfg.Stipend, logger.Named("stipend"))
	}
	a.ws = ws.NewServer(a.regions, logger.Named("ws"))
	return a, nil
}

func loadCurrencyConfig(path string) (*currency.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	c, err := currency.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load currency config: %w", err)
	}
	return &c, nil
}

// existing returns path when the file exists and "" otherwise.
func existing(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (a *app) start(ctx context.Context) {
	if a.bus != nil {
		go func() {
			if err := a.bus.Run(ctx); err != nil {
				a.log.Error("bus stopped", zap.Error(err))
			}
		}()
		go a.refreshSessions(ctx)
	}
	if a.stipends != nil {
		go a.stipends.Run(ctx)
	}
}

// refreshSessions keeps this process's session claims alive.
func (a *app) refreshSessions(ctx context.Context) {
	if a.cfg.SessionTTL <= 0 {
		return
	}
	t := time.NewTicker(a.cfg.SessionTTL / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.sessions.Refresh(ctx, a.rootAgents()); err != nil && ctx.Err() == nil {
				a.log.Warn("session refresh failed", zap.Error(err))
			}
		}
	}
}

func (a *app) rootAgents() []uuid.UUID {
	var out []uuid.UUID
	for _, s := range a.scenes {
		for _, p := range s.Presences() {
			if p.Root {
				out = append(out, p.AgentID)
			}
		}
	}
	return out
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("close journal", zap.Error(err))
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn("close ledger", zap.Error(err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.metricsHandler)
	mux.HandleFunc("/v1/ws", a.ws.Handler())

	if a.cfg.AdminHTTP {
		a.adminRoutes(mux)
	} else {
		a.log.Info("admin endpoints disabled")
	}
	if a.cfg.PprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
