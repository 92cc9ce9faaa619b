// Command pnt-server runs the navigation engine and serves the tracking
// state over HTTP, websocket, and optionally MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/signalsfoundry/mission-pnt/core"
	"github.com/signalsfoundry/mission-pnt/internal/catalog"
	"github.com/signalsfoundry/mission-pnt/internal/logging"
	"github.com/signalsfoundry/mission-pnt/internal/nav"
	"github.com/signalsfoundry/mission-pnt/internal/observability"
	"github.com/signalsfoundry/mission-pnt/internal/server"
	"github.com/signalsfoundry/mission-pnt/internal/sink"
	"github.com/signalsfoundry/mission-pnt/internal/spectrum"
	"github.com/signalsfoundry/mission-pnt/internal/state"
	"github.com/signalsfoundry/mission-pnt/timectrl"
)

// Config carries everything main reads from flags.
type Config struct {
	ListenAddress string

	CachePath       string
	CacheMaxAge     time.Duration
	RefreshInterval time.Duration
	FetchTimeout    time.Duration

	TickInterval time.Duration
	TimeMode     string
	Duration     time.Duration

	BrokerURL      string
	BrokerClientID string
	BrokerTopic    string

	TruthLatDeg float64
	TruthLonDeg float64
	TruthAltM   float64
	MaskDeg     float64

	MaxSatellites int
	DisplayCount  int

	LogLevel  string
	LogFormat string
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ListenAddress, "listen-addr", ":8080", "HTTP address for /data, /stream, /healthz, /metrics")
	flag.StringVar(&cfg.CachePath, "tle-cache", catalog.DefaultCachePath, "Path to the on-disk TLE cache")
	flag.DurationVar(&cfg.CacheMaxAge, "tle-max-age", catalog.DefaultCacheMaxAge, "Age beyond which the TLE cache is considered stale")
	flag.DurationVar(&cfg.RefreshInterval, "refresh-interval", catalog.DefaultCacheMaxAge, "How often the catalog is reloaded")
	flag.DurationVar(&cfg.FetchTimeout, "fetch-timeout", 30*time.Second, "Per-request timeout for catalog downloads")
	flag.DurationVar(&cfg.TickInterval, "tick", time.Second, "Navigation cycle cadence in simulated time")
	flag.StringVar(&cfg.TimeMode, "time-mode", "realtime", "Clock mode: realtime or accelerated")
	flag.DurationVar(&cfg.Duration, "duration", 0, "Simulated run duration; 0 runs until interrupted")
	flag.StringVar(&cfg.BrokerURL, "broker-url", "", "MQTT broker URL, e.g. tcp://localhost:1883; empty disables the sink")
	flag.StringVar(&cfg.BrokerClientID, "broker-client-id", sink.DefaultClientID, "MQTT client identifier")
	flag.StringVar(&cfg.BrokerTopic, "broker-topic", sink.DefaultTopic, "MQTT topic for fix publications")
	flag.Float64Var(&cfg.TruthLatDeg, "truth-lat", 12.9706089, "Ground-truth observer latitude in degrees")
	flag.Float64Var(&cfg.TruthLonDeg, "truth-lon", 80.0431389, "Ground-truth observer longitude in degrees")
	flag.Float64Var(&cfg.TruthAltM, "truth-alt-m", 45.0, "Ground-truth observer altitude in metres")
	flag.Float64Var(&cfg.MaskDeg, "mask-deg", 10.0, "Elevation mask in degrees")
	flag.IntVar(&cfg.MaxSatellites, "max-satellites", 400, "Cap on catalog entries propagated per cycle")
	flag.IntVar(&cfg.DisplayCount, "display-count", 6, "Satellites shown in views and ground tracks")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", "json", "Log format: json or text")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen", logging.String("addr", cfg.ListenAddress), logging.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited", logging.String("error", err.Error()))
		os.Exit(1)
	}
}

// run wires the engine, catalog refresher, read surface, and optional sink,
// then blocks until ctx is cancelled, the simulated duration elapses, or the
// HTTP server fails.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewPNTCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	catalogCollector, err := observability.NewCatalogCollector(nil)
	if err != nil {
		return fmt.Errorf("init catalog metrics: %w", err)
	}

	mode, err := timectrl.ParseMode(cfg.TimeMode)
	if err != nil {
		return err
	}

	tracking := state.New(state.WithMetricsRecorder(collector))
	store := catalog.NewStore(catalog.WithMetricsRecorder(catalogCollector))
	loader := catalog.NewLoader(log,
		catalog.WithFetcher(catalog.NewFetcher(catalog.WithTimeout(cfg.FetchTimeout))),
		catalog.WithCachePath(cfg.CachePath),
		catalog.WithCacheMaxAge(cfg.CacheMaxAge),
		catalog.WithFetchMetrics(catalogCollector),
	)
	refresher := catalog.NewRefresher(loader, store, cfg.RefreshInterval, log)

	engine, err := nav.New(nav.Config{
		TickInterval:  cfg.TickInterval,
		MaxSatellites: cfg.MaxSatellites,
		DisplayCount:  cfg.DisplayCount,
		Truth: core.GeodeticCoordinate{
			LatDeg: cfg.TruthLatDeg,
			LonDeg: cfg.TruthLonDeg,
			AltM:   cfg.TruthAltM,
		},
		Mask: core.ElevationMask{MinElevationDeg: cfg.MaskDeg},
	}, nav.Deps{
		Catalog:  store,
		State:    tracking,
		Spectrum: spectrum.NewSynthetic(spectrum.DefaultBins, 0),
		Log:      log,
		Metrics:  collector,
		Tracer:   otel.Tracer("pnt-engine"),
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	clock := timectrl.NewTimeController(time.Now().UTC(), cfg.TickInterval, mode)

	var publisher *sink.Publisher
	if cfg.BrokerURL != "" {
		publisher = sink.New(cfg.BrokerURL, cfg.BrokerClientID,
			sink.WithTopic(cfg.BrokerTopic),
			sink.WithLogger(log),
			sink.WithFailureRecorder(collector),
		)
		if err := publisher.Connect(ctx); err != nil {
			log.Warn(ctx, "mqtt sink disabled", logging.String("error", err.Error()))
			publisher = nil
		}
	}

	httpServer := &http.Server{
		Handler:           server.New(tracking, server.WithLogger(log), server.WithMetrics(collector)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		refresher.Run(runCtx)
	}()

	engineDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(runCtx, clock, cfg.Duration)
		close(engineDone)
	}()

	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(runCtx, tracking)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(lis)
	}()

	log.Info(ctx, "pnt server started",
		logging.String("addr", lis.Addr().String()),
		logging.String("time_mode", cfg.TimeMode),
		logging.Duration("tick", cfg.TickInterval))

	var failure error
	select {
	case <-ctx.Done():
	case <-engineDone:
		log.Info(ctx, "simulated duration complete")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			failure = fmt.Errorf("http server: %w", err)
		}
	}

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "http shutdown incomplete", logging.String("error", err.Error()))
	}
	wg.Wait()

	log.Info(ctx, "pnt server stopped")
	return failure
}
