package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/nainya/hsplines/internal/config"
	"github.com/nainya/hsplines/internal/logger"
	"github.com/nainya/hsplines/internal/metrics"
	"github.com/nainya/hsplines/internal/server"
	"github.com/nainya/hsplines/pkg/hbasis"
	"github.com/nainya/hsplines/pkg/journal"
)

// loadConfig reads --config, applies the global overrides and initializes
// the global logger
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	logger.InitGlobalLogger(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: os.Stderr})
	return cfg, nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefault(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if metricsPort >= 0 {
		cfg.Server.MetricsPort = metricsPort
	}
	if journalPath != "" {
		cfg.Journal.Path = journalPath
	}

	log := logger.GetGlobalLogger()
	log.LogServerStart(cfg.Server.Port, cfg.Journal.Path)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	var j *journal.Journal
	if cfg.Journal.Path != "" {
		j = &journal.Journal{
			Path:        cfg.Journal.Path,
			MaxFileSize: cfg.Journal.MaxFileSize,
			SyncWrites:  cfg.Journal.SyncWrites,
		}
		if err := j.Open(); err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
	}

	srv := server.NewServer(j, m, log, cfg.Basis)
	obs := server.NewObservabilityServer(cfg.Server.MetricsPort, reg, srv.NumSessions, log)

	jlog := log.WithFields(map[string]any{"component": "journal", "path": cfg.Journal.Path})

	// Restore sessions before accepting requests
	if j != nil {
		start := time.Now()
		bases, stats, err := journal.NewRecovery(j).Rebuild(hbasis.WithObserver(m))
		if err != nil {
			log.LogJournalReplay(cfg.Journal.Path, 0, 0, time.Since(start), err)
			return fmt.Errorf("failed to replay journal: %w", err)
		}
		log.LogJournalReplay(cfg.Journal.Path, stats.TotalEntries, stats.Sessions, time.Since(start), nil)
		if stats.SkippedFiles > 0 {
			jlog.Warn("Journal files ended in damaged entries").Int("files", stats.SkippedFiles).Send()
		}
		srv.Restore(bases)
	}
	obs.SetReady()

	var checkpointer *journal.Checkpointer
	if j != nil && cfg.Journal.CheckpointInterval > 0 {
		checkpointer = journal.NewCheckpointer(j, srv.VisitSessions, log.JournalLogger())
		checkpointer.SetInterval(cfg.Journal.CheckpointInterval)
		checkpointer.Start()
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	maxMsg := cfg.Server.MaxMessageMB << 20
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsg),
		grpc.MaxSendMsgSize(maxMsg),
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, log)),
	)
	server.RegisterHBasisServer(grpcServer, srv)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsPort > 0 {
		g.Go(obs.Start)
	}
	g.Go(func() error {
		log.LogServerReady(cfg.Server.Port)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.LogServerShutdown()
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return obs.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if checkpointer != nil {
		checkpointer.Stop()
		// compact the journal before exit
		if cerr := checkpointer.Checkpoint(); cerr != nil {
			jlog.Error("Final checkpoint failed").Err(cerr).Send()
		}
	}
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}
