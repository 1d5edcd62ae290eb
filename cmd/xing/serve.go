package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/health"

	"github.com/alfredjeanlab/crossing/internal/config"
	"github.com/alfredjeanlab/crossing/internal/events"
	"github.com/alfredjeanlab/crossing/internal/journal"
	"github.com/alfredjeanlab/crossing/internal/journal/postgres"
	"github.com/alfredjeanlab/crossing/internal/presence"
	"github.com/alfredjeanlab/crossing/internal/safety"
	"github.com/alfredjeanlab/crossing/internal/scheduler"
	"github.com/alfredjeanlab/crossing/internal/server"
	"github.com/alfredjeanlab/crossing/internal/session"
	"github.com/alfredjeanlab/crossing/internal/snapshot"
	"github.com/alfredjeanlab/crossing/internal/zone"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the scheduler",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Override PersistentPreRunE so we don't open a client connection.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if embedded, _ := cmd.Flags().GetBool("embedded-nats"); embedded {
			cfg.NATSEmbedded = true
		}
		if f, _ := cmd.Flags().GetString("zone"); f != "" {
			cfg.ZoneFile = f
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

		// Zone and safety engine.
		z, err := loadZone(cfg.ZoneFile)
		if err != nil {
			return err
		}
		engine, err := safety.NewOccupancy(z.OccupancyConfig())
		if err != nil {
			return fmt.Errorf("safety engine: %w", err)
		}
		logger.Info("zone loaded", "file", cfg.ZoneFile, "routes", z.Routes(), "steps", z.Steps())

		// Broker.
		if cfg.NATSEmbedded {
			ns, err := startEmbeddedNATS(cfg.NATSPort)
			if err != nil {
				return err
			}
			defer ns.Shutdown()
			cfg.NATSURL = ns.ClientURL()
			logger.Info("embedded NATS started", "url", cfg.NATSURL)
		}

		hs := health.NewServer()
		server.SetServing(hs, false)
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("crossing-scheduler"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("NATS disconnected", "err", err)
				server.SetServing(hs, false)
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("NATS reconnected", "url", c.ConnectedUrl())
				server.SetServing(hs, true)
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS at %s: %w", cfg.NATSURL, err)
		}
		defer nc.Close()
		server.SetServing(hs, true)
		publisher := events.NewNATSPublisherConn(nc)

		// Journal.
		var j journal.Journal = journal.Noop{}
		if cfg.DatabaseURL != "" {
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			j = pg
			logger.Info("journal enabled")
		} else {
			logger.Info("journal disabled (CROSSING_DATABASE_URL not set)")
		}
		defer j.Close()

		// Scheduler and transport.
		store := session.NewStore()
		sched := scheduler.New(store, scheduler.Config{Zone: z, Engine: engine, Logger: logger})
		roster := presence.New(nil, logger)
		srv := server.New(server.Config{
			Scheduler: sched,
			Publisher: publisher,
			Journal:   j,
			Presence:  roster,
			Prefix:    cfg.SubjectPrefix,
			Logger:    logger,
		})
		if err := srv.Serve(nc); err != nil {
			return err
		}

		reaper := session.NewReaper(store, session.ReaperConfig{
			SweepInterval: cfg.ReapInterval,
			OnEvict:       srv.OnEvict,
		}, logger)
		reaper.Start()
		roster.StartReaper(presence.ReaperConfig{
			LostAfter: cfg.PresenceLostAfter,
			OnLost:    srv.OnVehicleLost,
		})

		stateSub, err := events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			roster.Stop()
			reaper.Stop()
			srv.Shutdown()
			return fmt.Errorf("state subscriber: %w", err)
		}
		stateCtx, stateCancel := context.WithCancel(context.Background())
		stateDone := make(chan struct{})
		go func() {
			defer close(stateDone)
			if err := srv.RunStateSubscriber(stateCtx, stateSub); err != nil {
				logger.Error("state subscriber error", "err", err)
			}
		}()

		exporter := startExporter(cfg, store, logger)

		// gRPC health.
		grpcServer := server.NewGRPCServer(hs, logger)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			stateCancel()
			<-stateDone
			stateSub.Close()
			if exporter != nil {
				exporter.Stop()
			}
			roster.Stop()
			reaper.Stop()
			srv.Shutdown()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		logger.Info("crossing scheduler started",
			"nats_url", cfg.NATSURL,
			"prefix", cfg.SubjectPrefix,
			"grpc_addr", cfg.GRPCAddr,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		server.SetServing(hs, false)
		srv.Shutdown()
		logger.Info("request services stopped")

		stateCancel()
		<-stateDone
		stateSub.Close()
		logger.Info("state subscriber stopped")

		reaper.Stop()
		roster.Stop()
		if exporter != nil {
			exporter.Stop()
			exporter.ExportOnce(context.Background())
			logger.Info("snapshot exporter stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func loadZone(path string) (*zone.Zone, error) {
	if path == "" {
		return zone.Default()
	}
	return zone.Load(path)
}

func startEmbeddedNATS(port int) (*natsserver.Server, error) {
	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: port})
	if err != nil {
		return nil, fmt.Errorf("embedded NATS: %w", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS not ready on port %d", port)
	}
	return ns, nil
}

// startExporter starts the snapshot exporter when a destination is
// configured. It returns nil otherwise.
func startExporter(cfg *config.Config, store *session.Store, logger *slog.Logger) *snapshot.Exporter {
	if !cfg.SnapshotEnabled() {
		return nil
	}
	var dests []snapshot.Destination

	if cfg.SnapshotS3Bucket != "" {
		s3Dest, err := snapshot.NewS3Destination(context.Background(), snapshot.S3Config{
			Bucket:   cfg.SnapshotS3Bucket,
			Key:      cfg.SnapshotS3Key,
			Region:   cfg.SnapshotS3Region,
			Endpoint: cfg.SnapshotS3Endpoint,
			History:  cfg.SnapshotS3History,
		})
		if err != nil {
			logger.Error("failed to create S3 snapshot destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("snapshot S3 destination enabled", "bucket", cfg.SnapshotS3Bucket, "key", cfg.SnapshotS3Key)
		}
	}
	if cfg.SnapshotGitRepo != "" {
		dests = append(dests, snapshot.NewGitDestination(snapshot.GitConfig{
			Repo:   cfg.SnapshotGitRepo,
			File:   cfg.SnapshotGitFile,
			Branch: cfg.SnapshotGitBranch,
			Remote: cfg.SnapshotGitRemote,
		}))
		logger.Info("snapshot git destination enabled", "repo", cfg.SnapshotGitRepo, "file", cfg.SnapshotGitFile)
	}
	if len(dests) == 0 {
		return nil
	}

	exp := snapshot.NewExporter(store, dests, cfg.SnapshotInterval, logger)
	exp.Start()
	logger.Info("snapshot exporter started", "interval", cfg.SnapshotInterval)
	return exp
}

func init() {
	serveCmd.Flags().Bool("embedded-nats", false, "run an in-process NATS broker (CROSSING_NATS_EMBEDDED)")
	serveCmd.Flags().String("zone", "", "zone TOML file (CROSSING_ZONE_FILE; default built-in)")
}
