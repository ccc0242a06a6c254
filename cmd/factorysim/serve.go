package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"factorysim.ai/internal/metrics"
	"factorysim.ai/internal/persistence/indexdb"
	persistlog "factorysim.ai/internal/persistence/log"
	"factorysim.ai/internal/sim/world"
	"factorysim.ai/internal/transport/observer"
)

type serveOptions struct {
	addr        string
	worldID     string
	dataDir     string
	disableDB   bool
	allowRemote bool
	cmdRate     float64
	cmdBurst    int
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the world loop with the observer and metrics endpoints",
		Long: `Run the world at the configured tick rate. Every tick is appended to a
zstd-compressed JSONL log under <data>/runs/<run-id>/ and mirrored into a
SQLite index. Observers connect on /v1/observer/ws; Prometheus scrapes /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().StringVar(&opts.worldID, "world", "world_1", "World id")
	cmd.Flags().StringVar(&opts.dataDir, "data", "./data", "Runtime data directory")
	cmd.Flags().BoolVar(&opts.disableDB, "disable-db", false, "Disable the SQLite tick index")
	cmd.Flags().BoolVar(&opts.allowRemote, "allow-remote", false, "Accept observers from non-loopback addresses")
	cmd.Flags().Float64Var(&opts.cmdRate, "observer-commands-per-second", 5, "Per-connection observer command rate")
	cmd.Flags().IntVar(&opts.cmdBurst, "observer-command-burst", 10, "Per-connection observer command burst")

	return cmd
}

func runServe(opts serveOptions) error {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, tune, err := loadConfig()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	runDir := filepath.Join(opts.dataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	logger.Printf("run=%s world=%s dir=%s", runID, opts.worldID, runDir)

	w, err := world.New(world.ConfigFromTuning(opts.worldID, tune), cats)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	w.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	tickLog := persistlog.NewTickLogger(runDir)
	defer tickLog.Close()
	w.AddTickSink(tickLog)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(w)
	if err := collector.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	w.AddTickSink(collector)

	if !opts.disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(runDir, "index", "world.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for k, v := range map[string]string{
			"run_id":     runID,
			"world_id":   opts.worldID,
			"started_at": time.Now().UTC().Format(time.RFC3339),
		} {
			if err := idx.SetMeta(ctx, k, v); err != nil {
				logger.Printf("index: set meta %s: %v", k, err)
			}
		}
		cancel()
		if err := reg.Register(indexDropsCollector(idx)); err != nil {
			return fmt.Errorf("register index metrics: %w", err)
		}
		w.AddTickSink(idx)
	}

	obs := observer.NewServer(w, logger, observer.Options{
		CommandsPerSecond: opts.cmdRate,
		CommandBurst:      opts.cmdBurst,
		AllowRemote:       opts.allowRemote,
	})
	w.AddTickSink(obs)

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	obs.Register(mux)

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", opts.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		cancel()
		<-worldDone
		return fmt.Errorf("listen: %w", err)
	}
	// Sinks close after the loop has delivered its last tick.
	cancel()
	<-worldDone
	return nil
}

func indexDropsCollector(idx *indexdb.SQLiteIndex) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "factorysim",
		Subsystem: "index",
		Name:      "dropped_ticks_total",
		Help:      "Ticks dropped because the index queue was full",
	}, func() float64 { return float64(idx.Stats().DropTickTotal) })
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
