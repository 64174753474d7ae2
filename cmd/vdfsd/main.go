package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/librorum/vdfs/internal/config"
	"github.com/librorum/vdfs/internal/node"
	"github.com/librorum/vdfs/internal/observability"
	"github.com/librorum/vdfs/pkg/vdfsapi"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	controlAddr := flag.String("control-addr", "", "control-plane HTTP address (overrides config)")
	observAddr := flag.String("observ-addr", "127.0.0.1:9091", "observability server address (metrics, health, pprof)")
	nodeID := flag.String("node-id", "", "this node's id (defaults to hostname)")
	advertisePort := flag.Int("advertise-port", 9090, "port advertised over mDNS for peer transport")
	flag.Parse()

	logger := observability.NewLogger("vdfsd", "0.1.0", os.Stdout)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker("0.1.0")

	if shutdown, err := observability.InitTracing(context.Background(), "vdfsd"); err == nil {
		defer shutdown(context.Background())
	}

	logger.Info("vdfs daemon starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err, "failed to load config")
	}
	if *controlAddr != "" {
		cfg.ControlAddress = *controlAddr
	}

	id := *nodeID
	if id == "" {
		if host, err := os.Hostname(); err == nil {
			id = host
		} else {
			id = "vdfs-node"
		}
	}

	n, err := node.New(id, cfg, logger, metrics)
	if err != nil {
		logger.Fatal(err, "failed to wire node")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx, *advertisePort, "0.1.0", "vdfs"); err != nil {
		logger.Fatal(err, "failed to start node")
	}
	logger.Info("node started: " + id)

	healthChecker.RegisterCheck("control_plane", observability.ControlPlaneCheck(cfg.ControlAddress))
	healthChecker.RegisterCheck("chunk_store", observability.ChunkStoreCheck(func() error {
		_, err := n.Store().DiskUsage()
		return err
	}))
	healthChecker.RegisterCheck("disk_space", observability.DiskSpaceCheck(cfg.DataDir, 1))

	gcScheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal(err, "failed to create gc scheduler")
	}
	if _, err := gcScheduler.NewJob(
		gocron.DurationJob(cfg.GCInterval),
		gocron.NewTask(func() {
			removed, err := n.Store().GC(cfg.GCRetention)
			if err != nil {
				logger.Error(err, "chunk store gc failed")
				return
			}
			metrics.RecordChunkStoreGC(removed)
		}),
	); err != nil {
		logger.Fatal(err, "failed to register gc job")
	}
	if _, err := gcScheduler.NewJob(
		gocron.DurationJob(cfg.HeartbeatInterval*5),
		gocron.NewTask(func() {
			issues := n.Checker().CheckAll("/", nil)
			for _, issue := range issues {
				metrics.RecordConsistencyIssue(string(issue.Type))
				repaired, err := n.Checker().Repair(issue)
				if err != nil {
					logger.Error(err, "consistency repair failed for "+issue.Path)
					continue
				}
				if repaired {
					metrics.RecordConsistencyRepair(true)
				}
			}
		}),
	); err != nil {
		logger.Fatal(err, "failed to register consistency sweep job")
	}
	gcScheduler.Start()

	go startObservabilityServer(*observAddr, metrics, healthChecker, logger)

	api := vdfsapi.NewServer(n, cfg, logger, metrics)
	go func() {
		if err := api.ListenAndServe(cfg.ControlAddress); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "control-plane server error")
		}
	}()
	logger.Info("control-plane listening on " + cfg.ControlAddress)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "control-plane shutdown error")
	}
	if err := gcScheduler.Shutdown(); err != nil {
		logger.Error(err, "gc scheduler shutdown error")
	}
	if err := n.Stop(shutdownCtx); err != nil {
		logger.Error(err, "node shutdown error")
	}

	logger.Info("vdfs daemon stopped")
}

func startObservabilityServer(addr string, metrics *observability.Metrics, health *observability.HealthChecker, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", health.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{Addr: addr, Handler: mux}
	logger.Info("observability server listening on " + addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(err, "observability server error")
	}
}
