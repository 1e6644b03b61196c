//go:build linux

// nqptp daemon -- PTP network bootstrap: clock identity and timestamping
// sockets on the PTP event and general ports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/klemensn/nqptp/internal/clockid"
	"github.com/klemensn/nqptp/internal/config"
	"github.com/klemensn/nqptp/internal/framedump"
	ptpmetrics "github.com/klemensn/nqptp/internal/metrics"
	"github.com/klemensn/nqptp/internal/netio"
	appversion "github.com/klemensn/nqptp/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

var (
	_ netio.OpenerMetrics   = (*ptpmetrics.Collector)(nil)
	_ netio.ReceiverMetrics = (*ptpmetrics.Collector)(nil)
	_ framedump.Metrics     = (*ptpmetrics.Collector)(nil)
)

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	// 2. Load config.
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("nqptp starting",
		slog.String("version", appversion.Version),
		slog.Any("ports", cfg.Network.Ports),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	fr := startFlightRecorder(logger)
	defer stopFlightRecorder(fr, logger)

	// 4. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := ptpmetrics.NewCollector(reg)

	// 5. Derive the clock identity. Without one the daemon cannot run.
	src, err := deriveIdentity(ctx, cfg.Identity, logger)
	if err != nil {
		logger.Error("unable to derive clock identity",
			slog.String("error", err.Error()),
		)
		return 1
	}
	id, _ := src.Identity()

	// 6. Open the event and general ports.
	bundle := netio.NewSocketBundle(cfg.Network.BundleCapacity)
	defer closeBundle(bundle, collector, logger)

	if err := openSockets(ctx, cfg.Network, bundle, collector, logger); err != nil {
		logger.Error("unable to open PTP sockets",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("network initialised",
		slog.String("clock_identity", id.String()),
		slog.Int("sockets", bundle.Len()),
	)

	// 7. Run until signalled.
	d := &daemonState{
		cfg:        cfg,
		configPath: *configPath,
		logLevel:   logLevel,
		logger:     logger,
	}
	d.debugLevel.Store(int64(cfg.Log.DebugLevel))

	if err := d.runServers(ctx, reg, collector, bundle); err != nil {
		logger.Error("nqptp exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("nqptp stopped")
	return 0
}

// daemonState is the reloadable runtime state shared by the daemon
// goroutines.
type daemonState struct {
	cfg        *config.Config
	configPath string
	logLevel   *slog.LevelVar
	debugLevel atomic.Int64
	logger     *slog.Logger
}

// runServers runs the metrics server, the optional frame capture and the
// systemd and SIGHUP goroutines in an errgroup until ctx is cancelled.
func (d *daemonState) runServers(
	ctx context.Context,
	reg *prometheus.Registry,
	collector *ptpmetrics.Collector,
	bundle *netio.SocketBundle,
) error {
	g, gCtx := errgroup.WithContext(ctx)

	var servers []*http.Server
	if d.cfg.Metrics.Addr != "" {
		metricsSrv := newMetricsServer(d.cfg.Metrics, reg)
		servers = append(servers, metricsSrv)
		startMetricsServer(gCtx, g, d.cfg.Metrics, metricsSrv, d.logger)
	}

	if d.cfg.Capture.Enabled {
		recv := netio.NewReceiver(d.frameHandler(collector), d.logger,
			netio.WithReadBuffer(d.cfg.Capture.ReadBuffer),
			netio.WithReceiverMetrics(collector),
		)
		records := bundle.Records()
		g.Go(func() error {
			return recv.Run(gCtx, records...)
		})
		d.logger.Info("frame capture enabled",
			slog.Int("debug_level", d.cfg.Log.DebugLevel),
		)
	}

	d.startDaemonGoroutines(gCtx, g)

	notifyReady(d.logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, d.logger, servers...)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// frameHandler dumps every received frame at the current debug level.
func (d *daemonState) frameHandler(m framedump.Metrics) netio.Handler {
	dumper := framedump.New(d.logger, framedump.WithMetrics(m))
	return netio.HandlerFunc(func(ctx context.Context, f netio.Frame) {
		dumper.Dump(ctx, int(d.debugLevel.Load()), f.Data)
	})
}

// -------------------------------------------------------------------------
// Startup -- identity and sockets
// -------------------------------------------------------------------------

// deriveIdentity initialises the clock identity source.
func deriveIdentity(ctx context.Context, cfg config.IdentityConfig, logger *slog.Logger) (*clockid.Source, error) {
	lister, err := clockid.NewLister(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("identity source: %w", err)
	}

	src := clockid.NewSource(lister, cfg.Interface, logger)
	if err := src.Init(ctx); err != nil {
		return nil, fmt.Errorf("init identity source: %w", err)
	}
	return src, nil
}

// openSockets opens every configured port into bundle.
func openSockets(
	ctx context.Context,
	cfg config.NetworkConfig,
	bundle *netio.SocketBundle,
	collector *ptpmetrics.Collector,
	logger *slog.Logger,
) error {
	opener := netio.NewOpener(logger,
		netio.WithResolver(netio.PassiveResolver{Host: cfg.BindHost}),
		netio.WithMulticast(cfg.Multicast),
		netio.WithOpenerMetrics(collector),
	)

	if err := opener.OpenPorts(ctx, cfg.PortNumbers(), bundle); err != nil {
		return fmt.Errorf("open ports: %w", err)
	}
	return nil
}

// closeBundle closes all sockets and resets their gauges.
func closeBundle(bundle *netio.SocketBundle, collector *ptpmetrics.Collector, logger *slog.Logger) {
	records := bundle.Records()
	if err := bundle.Close(); err != nil {
		logger.Warn("failed to close sockets",
			slog.String("error", err.Error()),
		)
	}
	for _, rec := range records {
		collector.SocketClosed(rec.Family.String(), rec.Port)
	}
}

// -------------------------------------------------------------------------
// Daemon goroutines -- watchdog + SIGHUP
// -------------------------------------------------------------------------

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func (d *daemonState) startDaemonGoroutines(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		return runWatchdog(ctx, d.logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		d.handleSIGHUP(ctx, sigHUP)
		return nil
	})
}

// handleSIGHUP reloads the configuration on every SIGHUP until ctx is
// cancelled.
func (d *daemonState) handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			d.logger.Info("received SIGHUP, reloading configuration")
			d.reloadConfig()
		}
	}
}

// reloadConfig applies the log level and frame debug level from a fresh
// configuration. Sockets and the clock identity are fixed for the lifetime
// of the process. Errors keep the previous settings.
func (d *daemonState) reloadConfig() {
	newCfg, err := config.Load(d.configPath)
	if err != nil {
		d.logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := d.logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	d.logLevel.Set(newLevel)

	oldDebug := d.debugLevel.Swap(int64(newCfg.Log.DebugLevel))

	d.logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
		slog.Int64("old_debug_level", oldDebug),
		slog.Int("new_debug_level", newCfg.Log.DebugLevel),
	)
}

// -------------------------------------------------------------------------
// Systemd Integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd once the sockets are open.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured WatchdogSec. Returns immediately if no watchdog is configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown notifies systemd and shuts down the HTTP servers. The
// parent context is already cancelled; a detached timeout context bounds
// the drain.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder -- runtime/trace
// -------------------------------------------------------------------------

// startFlightRecorder keeps a rolling execution trace window for
// post-mortem debugging of socket setup and receive stalls.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder",
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Debug("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

func stopFlightRecorder(fr *trace.FlightRecorder, logger *slog.Logger) {
	if fr == nil {
		return
	}
	fr.Stop()
	logger.Debug("flight recorder stopped")
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// startMetricsServer registers the metrics HTTP server goroutine.
func startMetricsServer(
	ctx context.Context,
	g *errgroup.Group,
	cfg config.MetricsConfig,
	srv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Addr),
			slog.String("path", cfg.Path),
		)
		return listenAndServe(ctx, &lc, srv, cfg.Addr)
	})
}

// listenAndServe creates a TCP listener using the ListenConfig and serves
// HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
