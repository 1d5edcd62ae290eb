package config

import (
	"log/slog"
	"testing"
	"time"
)

var allEnvVars = []string{
	"CROSSING_NATS_URL", "CROSSING_NATS_EMBEDDED", "CROSSING_NATS_PORT",
	"CROSSING_SUBJECT_PREFIX", "CROSSING_GRPC_ADDR", "CROSSING_ZONE_FILE",
	"CROSSING_DATABASE_URL", "CROSSING_REAP_INTERVAL", "CROSSING_PRESENCE_LOST_AFTER", "CROSSING_LOG_LEVEL",
	"CROSSING_SNAPSHOT_INTERVAL", "CROSSING_SNAPSHOT_S3_BUCKET", "CROSSING_SNAPSHOT_S3_ENDPOINT",
	"CROSSING_SNAPSHOT_S3_REGION", "CROSSING_SNAPSHOT_S3_KEY", "CROSSING_SNAPSHOT_S3_HISTORY",
	"CROSSING_SNAPSHOT_GIT_REPO", "CROSSING_SNAPSHOT_GIT_FILE", "CROSSING_SNAPSHOT_GIT_BRANCH",
	"CROSSING_SNAPSHOT_GIT_REMOTE",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATSURL != "nats://127.0.0.1:4222" {
		t.Errorf("NATSURL = %q", cfg.NATSURL)
	}
	if cfg.NATSEmbedded {
		t.Error("NATSEmbedded should default to false")
	}
	if cfg.NATSPort != 4222 {
		t.Errorf("NATSPort = %d", cfg.NATSPort)
	}
	if cfg.SubjectPrefix != "crossing" || cfg.GRPCAddr != ":9090" {
		t.Errorf("prefix/addr = %q/%q", cfg.SubjectPrefix, cfg.GRPCAddr)
	}
	if cfg.ReapInterval != 2*time.Second {
		t.Errorf("ReapInterval = %s, want 2s", cfg.ReapInterval)
	}
	if cfg.PresenceLostAfter != 5*time.Second {
		t.Errorf("PresenceLostAfter = %s, want 5s", cfg.PresenceLostAfter)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %s", cfg.LogLevel)
	}
	if cfg.SnapshotInterval != time.Minute {
		t.Errorf("SnapshotInterval = %s, want 1m", cfg.SnapshotInterval)
	}
	if cfg.SnapshotEnabled() {
		t.Error("snapshots enabled without a destination")
	}
	if cfg.SnapshotGitRemote != "origin" {
		t.Errorf("SnapshotGitRemote = %q, want origin", cfg.SnapshotGitRemote)
	}
	if cfg.DatabaseURL != "" || cfg.ZoneFile != "" {
		t.Errorf("optional settings not empty: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearAllEnv(t)
	for k, v := range map[string]string{
		"CROSSING_NATS_URL":            "nats://broker:4222",
		"CROSSING_NATS_EMBEDDED":       "true",
		"CROSSING_NATS_PORT":           "14222",
		"CROSSING_SUBJECT_PREFIX":      "lab",
		"CROSSING_GRPC_ADDR":           ":5050",
		"CROSSING_ZONE_FILE":           "/etc/crossing/zone.toml",
		"CROSSING_DATABASE_URL":        "postgres://db/crossing",
		"CROSSING_REAP_INTERVAL":       "500ms",
		"CROSSING_LOG_LEVEL":           "debug",
		"CROSSING_SNAPSHOT_INTERVAL":   "30s",
		"CROSSING_SNAPSHOT_S3_BUCKET":  "snaps",
		"CROSSING_SNAPSHOT_S3_HISTORY": "1",
	} {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.NATSEmbedded || cfg.NATSPort != 14222 || cfg.NATSURL != "nats://broker:4222" {
		t.Errorf("nats settings = %v/%d/%q", cfg.NATSEmbedded, cfg.NATSPort, cfg.NATSURL)
	}
	if cfg.SubjectPrefix != "lab" || cfg.GRPCAddr != ":5050" {
		t.Errorf("prefix/addr = %q/%q", cfg.SubjectPrefix, cfg.GRPCAddr)
	}
	if cfg.ReapInterval != 500*time.Millisecond {
		t.Errorf("ReapInterval = %s", cfg.ReapInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %s", cfg.LogLevel)
	}
	if !cfg.SnapshotEnabled() || !cfg.SnapshotS3History || cfg.SnapshotInterval != 30*time.Second {
		t.Errorf("snapshot settings = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		key  string
		val  string
	}{
		{"BadReapInterval", "CROSSING_REAP_INTERVAL", "soon"},
		{"ZeroReapInterval", "CROSSING_REAP_INTERVAL", "0s"},
		{"NegativeLostAfter", "CROSSING_PRESENCE_LOST_AFTER", "-1s"},
		{"BadSnapshotInterval", "CROSSING_SNAPSHOT_INTERVAL", "hourly"},
		{"BadEmbedded", "CROSSING_NATS_EMBEDDED", "maybe"},
		{"BadPort", "CROSSING_NATS_PORT", "70000"},
		{"BadLogLevel", "CROSSING_LOG_LEVEL", "chatty"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestSnapshotDisabledByZeroInterval(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("CROSSING_SNAPSHOT_INTERVAL", "0")
	t.Setenv("CROSSING_SNAPSHOT_GIT_REPO", "/srv/snapshots")
	t.Setenv("CROSSING_SNAPSHOT_GIT_REMOTE", "-")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SnapshotGitRemote != "" {
		t.Errorf("SnapshotGitRemote = %q, want local-only", cfg.SnapshotGitRemote)
	}
	if cfg.SnapshotEnabled() {
		t.Error("zero interval should disable snapshots")
	}
}
