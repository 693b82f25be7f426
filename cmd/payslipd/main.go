package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/payslip-extractor/internal/batch"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
	"github.com/joseph-ayodele/payslip-extractor/internal/ingest"
	"github.com/joseph-ayodele/payslip-extractor/internal/server"
	"github.com/joseph-ayodele/payslip-extractor/internal/services/extraction"
	"github.com/joseph-ayodele/payslip-extractor/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		configPath = flag.String("config", os.Getenv("PAYSLIP_CONFIG"), "YAML profile overlaid on the environment configuration")
		addrFlag   = flag.String("addr", "", "gRPC listen address (overrides GRPC_ADDR)")
		watchDir   = flag.String("watch", os.Getenv("WATCH_DIR"), "optional directory whose new files are processed in the background")
		seed       = flag.Bool("seed", false, "load the sample expected records on startup")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfigFile(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if *addrFlag != "" {
		addr = *addrFlag
	}
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "payslipd", version)
	if err != nil {
		logger.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	svc, err := extraction.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire extraction service", "error", err, "kind", common.KindOf(err))
		os.Exit(1)
	}
	defer svc.Close()

	if *seed {
		if err := svc.Employees.Seed(ctx); err != nil {
			logger.Error("failed to seed expected records", "error", err)
			os.Exit(1)
		}
	}
	svc.Probe(ctx)
	if err := svc.Health(ctx); err != nil {
		// the backend may still be starting; requests fail until it is ready
		logger.Warn("startup health check failed", "error", err)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer, healthServer := server.NewGRPCServer(svc.GRPCService(), logger)

	var queue *batch.Queue
	if *watchDir != "" {
		queue, err = startWatch(ctx, svc, *watchDir, logger)
		if err != nil {
			logger.Error("failed to start directory watch", "dir", *watchDir, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("payslipd listening", "addr", addr, "backend", cfg.Inference.Backend, "isolation", cfg.Pipeline.Isolation)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	if queue != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		queue.Shutdown(shutdownCtx)
		cancel()
	}
	grpcServer.GracefulStop()
}

// startWatch feeds files appearing under dir into a background queue whose
// outcomes are only logged.
func startWatch(ctx context.Context, svc *extraction.Service, dir string, logger *slog.Logger) (*batch.Queue, error) {
	proc, err := svc.Processor(svc.Config)
	if err != nil {
		return nil, err
	}
	queue := batch.NewQueue(svc.Orchestrator(proc), func(o entity.FileOutcome) {
		if !o.Success {
			logger.Warn("watch.file.failed", "path", o.Path, "error", o.Error)
			return
		}
		matched := 0
		for _, c := range o.Comparisons {
			if c.AllMatch {
				matched++
			}
		}
		logger.Info("watch.file.ok", "path", o.Path, "pages", len(o.Pages), "matched", matched, "elapsed_ms", o.ElapsedMs)
	}, logger)

	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		SkipHidden:  true,
		InitialScan: true,
		Debounce:    500 * time.Millisecond,
	}, logger)
	if err != nil {
		queue.Shutdown(context.Background())
		return nil, err
	}
	go func() {
		for paths != nil || errs != nil {
			select {
			case p, ok := <-paths:
				if !ok {
					paths = nil
					continue
				}
				if err := queue.Enqueue(ctx, p); err != nil {
					logger.Warn("watch.enqueue_failed", "path", p, "error", err)
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Error("watch.error", "error", err)
			}
		}
	}()
	return queue, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
