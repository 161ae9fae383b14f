package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

type serverConfig struct {
	Addr           string        `env:"GRIDBANK_ADDR" envDefault:":8080"`
	ConfigDir      string        `env:"GRIDBANK_CONFIG_DIR" envDefault:"./configs"`
	DataDir        string        `env:"GRIDBANK_DATA_DIR" envDefault:"./data"`
	DBPath         string        `env:"GRIDBANK_DB_PATH"`
	ProcessID      string        `env:"GRIDBANK_PROCESS_ID"`
	RedisAddr      string        `env:"GRIDBANK_REDIS_ADDR"`
	RedisPassword  string        `env:"GRIDBANK_REDIS_PASSWORD"`
	SessionTTL     time.Duration `env:"GRIDBANK_SESSION_TTL" envDefault:"10m"`
	RequestTimeout time.Duration `env:"GRIDBANK_REQUEST_TIMEOUT" envDefault:"5s"`
	DisableJournal bool          `env:"GRIDBANK_DISABLE_JOURNAL"`
	AdminHTTP      bool          `env:"GRIDBANK_ENABLE_ADMIN_HTTP"`
	PprofHTTP      bool          `env:"GRIDBANK_ENABLE_PPROF_HTTP"`
	DevLog         bool          `env:"GRIDBANK_DEV_LOG"`
}

func (c serverConfig) currencyPath() string { return filepath.Join(c.ConfigDir, "currency.yaml") }
func (c serverConfig) regionsPath() string  { return filepath.Join(c.ConfigDir, "regions.yaml") }
func (c serverConfig) journalDir() string   { return filepath.Join(c.DataDir, "journal") }

// parseConfig reads GRIDBANK_* variables first; flags override them.
func parseConfig(fs *pflag.FlagSet, args []string) (serverConfig, error) {
	cfg := serverConfig{AdminHTTP: defaultEnableAdminHTTP()}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.ConfigDir, "configs", cfg.ConfigDir, "config directory (currency.yaml, regions.yaml)")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "ledger sqlite path (default: <data>/ledger.sqlite)")
	fs.StringVar(&cfg.ProcessID, "process-id", cfg.ProcessID, "id of this process on the bus (default: hostname)")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address for the cross-process bus (empty disables it)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "lifetime of a session claim between refreshes")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "bus request timeout")
	fs.BoolVar(&cfg.DisableJournal, "disable-journal", cfg.DisableJournal, "do not write the transaction journal")
	fs.BoolVar(&cfg.AdminHTTP, "admin-http", cfg.AdminHTTP, "serve loopback-only admin endpoints")
	fs.BoolVar(&cfg.PprofHTTP, "pprof-http", cfg.PprofHTTP, "serve /debug/pprof")
	fs.BoolVar(&cfg.DevLog, "dev-log", cfg.DevLog, "human readable development logging")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "ledger.sqlite")
	}
	if strings.TrimSpace(cfg.ProcessID) == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "gridbank"
		}
		cfg.ProcessID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("request-timeout must be > 0")
	}
	return cfg, nil
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
