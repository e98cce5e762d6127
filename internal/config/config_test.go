package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Cache.Freshness.Std() != 5*time.Second {
		t.Fatalf("expected 5s freshness, got %v", cfg.Cache.Freshness.Std())
	}
	if cfg.Store.Timeout.Std() != 10*time.Second {
		t.Fatalf("expected 10s store timeout, got %v", cfg.Store.Timeout.Std())
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
cache:
  freshness: 1m
sync:
  strategy: poll
webhooks:
  - url: http://127.0.0.1:9/hook
    events: [task.created]
    enabled: false
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Cache.Freshness.Std() != time.Minute {
		t.Fatalf("freshness not overridden: %v", cfg.Cache.Freshness.Std())
	}
	if cfg.Sync.Strategy != "poll" {
		t.Fatalf("strategy not overridden: %s", cfg.Sync.Strategy)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("defaults lost: %+v", cfg.Store)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].IsEnabled() {
		t.Fatalf("unexpected webhooks: %+v", cfg.Webhooks)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":  "store:\n  backend: postgres\n",
		"mongo":    "store:\n  backend: mongo\n",
		"strategy": "sync:\n  strategy: push\n",
		"duration": "cache:\n  freshness: soon\n",
		"webhook":  "webhooks:\n  - events: [task.created]\n",
		"basepath": "server:\n  base_path: v1\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("expected defaults for missing file, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "studyplan.yml"), []byte("sync:\n  strategy: poll\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sync.Strategy != "poll" {
		t.Fatalf("expected poll, got %s", cfg.Sync.Strategy)
	}
}
