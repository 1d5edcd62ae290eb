package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	NATSURL       string // CROSSING_NATS_URL (default "nats://127.0.0.1:4222")
	NATSEmbedded  bool   // CROSSING_NATS_EMBEDDED (run an in-process broker; default false)
	NATSPort      int    // CROSSING_NATS_PORT (embedded broker port; default 4222)
	SubjectPrefix string // CROSSING_SUBJECT_PREFIX (default "crossing")
	GRPCAddr      string // CROSSING_GRPC_ADDR (default ":9090")
	ZoneFile      string // CROSSING_ZONE_FILE (optional, empty = built-in zone)
	DatabaseURL   string // CROSSING_DATABASE_URL (optional, empty = journal disabled)

	ReapInterval      time.Duration // CROSSING_REAP_INTERVAL (default 2s)
	PresenceLostAfter time.Duration // CROSSING_PRESENCE_LOST_AFTER (default 5s)
	LogLevel          slog.Level    // CROSSING_LOG_LEVEL (default "info")

	// Snapshot settings
	SnapshotInterval   time.Duration // CROSSING_SNAPSHOT_INTERVAL (default 1m; 0 = disabled)
	SnapshotS3Bucket   string        // CROSSING_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Endpoint string        // CROSSING_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
	SnapshotS3Region   string        // CROSSING_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Key      string        // CROSSING_SNAPSHOT_S3_KEY (default "crossing/sessions.jsonl")
	SnapshotS3History  bool          // CROSSING_SNAPSHOT_S3_HISTORY (keep timestamped copies)
	SnapshotGitRepo    string        // CROSSING_SNAPSHOT_GIT_REPO (enables git when set; path to clone)
	SnapshotGitFile    string        // CROSSING_SNAPSHOT_GIT_FILE (default "sessions.jsonl")
	SnapshotGitBranch  string        // CROSSING_SNAPSHOT_GIT_BRANCH (default "main")
	SnapshotGitRemote  string        // CROSSING_SNAPSHOT_GIT_REMOTE (default "origin"; "-" = no push)
}

func Load() (*Config, error) {
	c := &Config{
		NATSURL:            envOrDefault("CROSSING_NATS_URL", "nats://127.0.0.1:4222"),
		SubjectPrefix:      envOrDefault("CROSSING_SUBJECT_PREFIX", "crossing"),
		GRPCAddr:           envOrDefault("CROSSING_GRPC_ADDR", ":9090"),
		ZoneFile:           os.Getenv("CROSSING_ZONE_FILE"),
		DatabaseURL:        os.Getenv("CROSSING_DATABASE_URL"),
		SnapshotS3Bucket:   os.Getenv("CROSSING_SNAPSHOT_S3_BUCKET"),
		SnapshotS3Endpoint: os.Getenv("CROSSING_SNAPSHOT_S3_ENDPOINT"),
		SnapshotS3Region:   envOrDefault("CROSSING_SNAPSHOT_S3_REGION", "us-east-1"),
		SnapshotS3Key:      envOrDefault("CROSSING_SNAPSHOT_S3_KEY", "crossing/sessions.jsonl"),
		SnapshotGitRepo:    os.Getenv("CROSSING_SNAPSHOT_GIT_REPO"),
		SnapshotGitFile:    envOrDefault("CROSSING_SNAPSHOT_GIT_FILE", "sessions.jsonl"),
		SnapshotGitBranch:  envOrDefault("CROSSING_SNAPSHOT_GIT_BRANCH", "main"),
		SnapshotGitRemote:  envOrDefault("CROSSING_SNAPSHOT_GIT_REMOTE", "origin"),
	}

	if c.SnapshotGitRemote == "-" {
		c.SnapshotGitRemote = ""
	}

	var err error
	if c.NATSEmbedded, err = envBool("CROSSING_NATS_EMBEDDED"); err != nil {
		return nil, err
	}
	if c.SnapshotS3History, err = envBool("CROSSING_SNAPSHOT_S3_HISTORY"); err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(envOrDefault("CROSSING_NATS_PORT", "4222"))
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("CROSSING_NATS_PORT: invalid port %q", os.Getenv("CROSSING_NATS_PORT"))
	}
	c.NATSPort = port

	if c.ReapInterval, err = envDuration("CROSSING_REAP_INTERVAL", "2s"); err != nil {
		return nil, err
	}
	if c.ReapInterval <= 0 {
		return nil, fmt.Errorf("CROSSING_REAP_INTERVAL must be positive")
	}
	if c.PresenceLostAfter, err = envDuration("CROSSING_PRESENCE_LOST_AFTER", "5s"); err != nil {
		return nil, err
	}
	if c.PresenceLostAfter <= 0 {
		return nil, fmt.Errorf("CROSSING_PRESENCE_LOST_AFTER must be positive")
	}
	if c.SnapshotInterval, err = envDuration("CROSSING_SNAPSHOT_INTERVAL", "1m"); err != nil {
		return nil, err
	}

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("CROSSING_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("CROSSING_LOG_LEVEL: %w", err)
	}

	return c, nil
}

// SnapshotEnabled reports whether any snapshot destination is configured.
func (c *Config) SnapshotEnabled() bool {
	return c.SnapshotInterval > 0 && (c.SnapshotS3Bucket != "" || c.SnapshotGitRepo != "")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
