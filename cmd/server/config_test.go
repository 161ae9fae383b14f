package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestParseConfig_EnvThenFlags(t *testing.T) {
	t.Setenv("GRIDBANK_DATA_DIR", "/var/gridbank")
	t.Setenv("GRIDBANK_SESSION_TTL", "2m")
	t.Setenv("GRIDBANK_PROCESS_ID", "sim-7")
	t.Setenv("DEPLOY_ENV", "production")

	cfg, err := parseConfig(pflag.NewFlagSet("t", pflag.ContinueOnError), []string{"--addr", ":9999"})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr: %q", cfg.Addr)
	}
	if cfg.SessionTTL != 2*time.Minute || cfg.ProcessID != "sim-7" {
		t.Fatalf("env values: %+v", cfg)
	}
	if cfg.DBPath != filepath.Join("/var/gridbank", "ledger.sqlite") {
		t.Fatalf("db path: %q", cfg.DBPath)
	}
	if cfg.AdminHTTP {
		t.Fatalf("admin http enabled in production")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	t.Setenv("DEPLOY_ENV", "")
	cfg, err := parseConfig(pflag.NewFlagSet("t", pflag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.RequestTimeout != 5*time.Second || !cfg.AdminHTTP {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.ProcessID == "" {
		t.Fatalf("process id not derived")
	}
}

func TestParseConfig_RejectsZeroTimeout(t *testing.T) {
	if _, err := parseConfig(pflag.NewFlagSet("t", pflag.ContinueOnError), []string{"--request-timeout", "0s"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v", addr, got)
		}
	}
}
