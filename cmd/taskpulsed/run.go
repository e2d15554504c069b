package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/taskpulse/pkg/aggregator"
	"github.com/cuemby/taskpulse/pkg/events"
	"github.com/cuemby/taskpulse/pkg/log"
	"github.com/cuemby/taskpulse/pkg/metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the aggregator",
	Long: `Run starts the aggregator loop, reading lifecycle events from an
in-process channel and publishing instrument/task-detail snapshots to
whatever subscribes via the embedding program's own RPC layer.

With --simulate, a synthetic workload generator feeds the aggregator
instead of a real instrumented program, for local demos.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("config", "", "Path to a YAML config file (optional)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics, /health, /ready, /live HTTP endpoints")
	runCmd.Flags().Duration("publish-interval", aggregator.DefaultConfig().PublishInterval, "How often to publish a snapshot (an early flush drains events but does not publish)")
	runCmd.Flags().Duration("retention", aggregator.DefaultConfig().Retention, "How long closed entities survive before eviction")
	runCmd.Flags().Int("events-buffer", 1024, "Size of the inbound event channel")
	runCmd.Flags().Bool("simulate", false, "Drive the aggregator with a synthetic workload generator instead of a real producer")
	runCmd.Flags().Duration("simulate-rate", 20*time.Millisecond, "Synthetic workload tick interval (hot-reloadable via the config file)")
	runCmd.Flags().Int64("simulate-seed", time.Now().UnixNano(), "Synthetic workload RNG seed")
	runCmd.Flags().Float64("simulate-high-water", 0.8, "Fraction of the event buffer's capacity at which the simulator triggers an early flush")

	for _, name := range []string{"metrics-addr", "publish-interval", "retention", "events-buffer", "simulate", "simulate-rate", "simulate-seed", "simulate-high-water"} {
		_ = viper.BindPFlag(name, runCmd.Flags().Lookup(name))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("taskpulsed")

	if err := loadConfig(cmd); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg := aggregator.Config{
		PublishInterval: viper.GetDuration("publish-interval"),
		Retention:       viper.GetDuration("retention"),
	}

	eventsCh := make(chan aggregator.Event, viper.GetInt("events-buffer"))
	rpcsCh := make(chan aggregator.SubscriptionRequest, 16)
	agg := aggregator.New(eventsCh, rpcsCh, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rec *events.Recorder
	if viper.GetBool("simulate") {
		rec = events.NewRecorder(eventsCh, viper.GetInt64("simulate-seed"))
		rec.SetFlushSignal(agg.Flush(), viper.GetFloat64("simulate-high-water"))
		rate := viper.GetDuration("simulate-rate")
		go func() {
			if err := rec.Run(ctx, rate); err != nil && err != context.Canceled {
				logger.Warn().Err(err).Msg("taskpulsed: simulate producer stopped")
			}
		}()
		logger.Info().Dur("rate", rate).Msg("taskpulsed: simulate mode enabled")
	}

	// fsnotify-backed hot reload of the synthetic-load tick rate only;
	// the aggregator's own publish-interval/retention are
	// construction-time only and are not re-read here.
	viper.OnConfigChange(func(in fsnotify.Event) {
		logger.Info().Str("file", in.Name).Msg("taskpulsed: config file changed, reloading simulate parameters")
		if rec != nil {
			rec.SetRate(viper.GetDuration("simulate-rate"))
		}
	})
	viper.WatchConfig()

	metricsAddr := viper.GetString("metrics-addr")
	metrics.SetVersion(Version)
	metrics.RegisterComponent("aggregator", false, "starting")
	metrics.RegisterComponent("config", true, "loaded")

	srv := &http.Server{Addr: metricsAddr}
	http.Handle("/metrics", metrics.Handler())
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())
	http.Handle("/live", metrics.LivenessHandler())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("taskpulsed: metrics server error")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("taskpulsed: metrics/health endpoints listening")

	metrics.RegisterComponent("aggregator", true, "running")

	runErr := make(chan error, 1)
	go func() { runErr <- agg.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("taskpulsed: shutting down on signal")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != context.Canceled {
			logger.Error().Err(err).Msg("taskpulsed: aggregator stopped")
		}
	}

	_ = srv.Close()
	return nil
}

// loadConfig loads an optional YAML config file via viper. A missing
// file is not an error — every tunable has a flag-backed default.
func loadConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("taskpulsed")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/taskpulsed")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return err
		}
	}
	return nil
}
