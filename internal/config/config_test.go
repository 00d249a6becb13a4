package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() err = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"log level", cfg.Log.Level, "info"},
		{"database", cfg.Database.Path, "./padd.sqlite"},
		{"device address", cfg.Device.Address, "http://192.168.4.1"},
		{"slider delay", cfg.Coalescer.SliderDelay.Duration(), 120 * time.Millisecond},
		{"color delay", cfg.Coalescer.ColorDelay.Duration(), 90 * time.Millisecond},
		{"pad throttle", cfg.Session.PadThrottle.Duration(), 350 * time.Millisecond},
		{"toast ttl", cfg.Session.ToastTTL.Duration(), 1200 * time.Millisecond},
		{"mdns service", cfg.Discovery.MDNSService, "_wled._tcp"},
		{"api port", cfg.API.Port, 8080},
		{"health port", cfg.Healthcheck.Port, 9090},
		{"principal", cfg.Auth.Principal, "local"},
		{"shutdown", cfg.ShutdownTimeout.Duration(), 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestParse_EnvExpansionAndDurations(t *testing.T) {
	t.Setenv("PADD_DEVICE", "http://10.0.0.5")

	cfg, err := Parse([]byte(`
device:
  address: ${PADD_DEVICE}
database:
  path: ${PADD_DB:/tmp/padd.db}
coalescer:
  slider_delay: 200ms
discovery:
  sweep_workers: 4
  mdns: true
`))
	if err != nil {
		t.Fatalf("Parse() err = %v", err)
	}
	if cfg.Device.Address != "http://10.0.0.5" {
		t.Errorf("address = %q", cfg.Device.Address)
	}
	if cfg.Database.Path != "/tmp/padd.db" {
		t.Errorf("database = %q, want the inline default", cfg.Database.Path)
	}
	if cfg.Coalescer.SliderDelay.Duration() != 200*time.Millisecond {
		t.Errorf("slider delay = %v", cfg.Coalescer.SliderDelay.Duration())
	}
	if cfg.Discovery.SweepWorkers != 4 || !cfg.Discovery.MDNS {
		t.Errorf("discovery = %+v", cfg.Discovery)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad duration", "coalescer:\n  slider_delay: soon\n"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n"},
		{"mqtt qos", "mqtt:\n  qos: 3\n"},
		{"bad expiry", "auth:\n  expires_at: tomorrow\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  principal: alice\n  active: true\n  expires_at: 2030-01-01T00:00:00Z\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	exp, _ := cfg.Auth.ExpiresAtTime()
	if cfg.Auth.Principal != "alice" || !cfg.Auth.Active || exp.Year() != 2030 {
		t.Errorf("auth = %+v", cfg.Auth)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}
