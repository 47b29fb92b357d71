// steerd -- a hostapd net_steering companion daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cococomm/steerd/internal/config"
	"github.com/cococomm/steerd/internal/hostapd"
	steeringmetrics "github.com/cococomm/steerd/internal/metrics"
	"github.com/cococomm/steerd/internal/netio"
	"github.com/cococomm/steerd/internal/server"
	"github.com/cococomm/steerd/internal/steering"
	appversion "github.com/cococomm/steerd/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

// hostapdCtrlDir is the default hostapd control interface directory; the
// socket for the configured interface's BSS is hostapdCtrlDir/<interface>,
// following hostapd's own per-interface socket naming convention.
const hostapdCtrlDir = "/var/run/hostapd"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("steerd starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("interface", cfg.Steering.Interface),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := steeringmetrics.NewCollector(reg)

	if err := runDaemon(cfg, collector, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("steerd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("steerd stopped")
	return 0
}

// runDaemon wires up the raw L2 transport, the hostapd control
// interface actuator, the steering Context, and the admin/metrics HTTP
// servers, then runs them all under an errgroup with signal-aware
// cancellation.
func runDaemon(
	cfg *config.Config,
	collector *steeringmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	bssid, err := resolveBSSID(cfg.Steering)
	if err != nil {
		return fmt.Errorf("resolve local bssid: %w", err)
	}

	localPeers, err := cfg.Steering.ParsePeers()
	if err != nil {
		return fmt.Errorf("parse peers: %w", err)
	}

	overlayEntries, err := cfg.Steering.ParseOverlayPeers()
	if err != nil {
		return fmt.Errorf("parse overlay peers: %w", err)
	}

	sender, err := netio.NewFrameSender(cfg.Steering.Interface, logger)
	if err != nil {
		return fmt.Errorf("create frame sender on %s: %w", cfg.Steering.Interface, err)
	}
	defer closeLogged(sender, logger, "frame sender")

	transport, overlayConn, peers, err := buildTransport(cfg.Steering, sender, localPeers, overlayEntries, logger)
	if err != nil {
		return fmt.Errorf("build steering transport: %w", err)
	}
	if overlayConn != nil {
		defer closeLogged(overlayConn, logger, "overlay tunnel connection")
	}

	// Two separate control connections: one for synchronous command/reply
	// actuator calls, one dedicated to the unsolicited event stream
	// (ATTACH). hostapd_cli itself keeps these split for the same
	// reason -- a single connection can't tell an event datagram apart
	// from a command's reply datagram.
	ctrlPath := fmt.Sprintf("%s/%s", hostapdCtrlDir, cfg.Steering.Interface)
	ctrl, err := hostapd.Dial(ctrlPath, logger)
	if err != nil {
		return fmt.Errorf("dial hostapd control socket: %w", err)
	}
	defer closeLogged(ctrl, logger, "hostapd control connection")

	eventCtrl, err := hostapd.Dial(ctrlPath, logger)
	if err != nil {
		return fmt.Errorf("dial hostapd event socket: %w", err)
	}
	defer closeLogged(eventCtrl, logger, "hostapd event connection")

	admin := server.New(nil, logger)

	sc := steering.NewContext(steering.Config{
		BSSID:   bssid,
		Channel: cfg.Steering.Channel,
		Mode:    parseConfigMode(cfg.Steering.Mode),
		Peers:   peers,
	}, transport, ctrl,
		steering.WithLogger(logger),
		steering.WithMetrics(collector),
		steering.WithStateCallback(admin.OnStateChange),
	)
	admin.SetContext(sc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sc.Run(gCtx)
	})

	if frameConn := mustFrameConn(cfg.Steering.Interface, logger); frameConn != nil {
		recv := netio.NewReceiver(sc, logger)
		ln := netio.NewListener(frameConn)
		defer closeLogged(ln, logger, "frame listener")
		g.Go(func() error {
			return recv.Run(gCtx, ln)
		})
	}

	if overlayConn != nil {
		overlayRecv := netio.NewOverlayReceiver(overlayConn, sc, logger)
		g.Go(func() error {
			return overlayRecv.Run(gCtx)
		})
	}

	g.Go(func() error {
		return eventCtrl.RunEvents(gCtx, sc)
	})

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	adminSrv := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           admin.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("admin API listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(gCtx, &lc, adminSrv, cfg.Admin.Addr)
	})
	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	ifmon := netio.NewStubInterfaceMonitor(logger)
	g.Go(func() error {
		return ifmon.Run(gCtx)
	})
	g.Go(func() error {
		for ev := range ifmon.Events() {
			logger.Info("interface state changed",
				slog.String("interface", ev.IfName),
				slog.Int("if_index", ev.IfIndex),
				slog.Bool("up", ev.Up),
			)
		}
		return nil
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, fr, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// buildTransport assembles the steering.FrameTransport used to reach
// peer access points: bridge-local only when no overlay peers are
// configured, or a MultiTransport that falls back to a Geneve tunnel
// for peers ParsePeers can't reach on the shared L2 segment. The
// returned peers list merges localPeers with the BSSIDs named in
// overlayEntries for steering.Config.Peers. overlayConn is nil (and
// the returned transport is localSender unchanged) when overlayEntries
// is empty.
func buildTransport(
	cfg config.SteeringConfig,
	localSender steering.FrameTransport,
	localPeers []net.HardwareAddr,
	overlayEntries []config.OverlayPeerEntry,
	logger *slog.Logger,
) (steering.FrameTransport, netio.OverlayConn, []net.HardwareAddr, error) {
	peers := make([]net.HardwareAddr, len(localPeers))
	copy(peers, localPeers)

	if len(overlayEntries) == 0 {
		return localSender, nil, peers, nil
	}

	if cfg.OverlayLocalAddr == "" {
		return nil, nil, nil, fmt.Errorf("overlay peers configured but overlay_local_addr is empty: %w",
			config.ErrOverlayMissingLocalAddr)
	}
	localAddr, err := netip.ParseAddr(cfg.OverlayLocalAddr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse overlay local address %q: %w", cfg.OverlayLocalAddr, err)
	}

	resolverEntries := make(map[string]netip.Addr, len(overlayEntries))
	for _, e := range overlayEntries {
		addr, err := netip.ParseAddr(e.Addr)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse overlay peer address %q for bssid %s: %w", e.Addr, e.BSSID, err)
		}
		resolverEntries[e.BSSID.String()] = addr
		peers = append(peers, e.BSSID)
	}
	resolver, err := netio.NewStaticPeerResolver(resolverEntries)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build overlay peer resolver: %w", err)
	}

	conn, err := netio.NewGeneveConn(localAddr, cfg.OverlayVNI, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create geneve tunnel endpoint on %s: %w", localAddr, err)
	}

	overlaySender := netio.NewOverlaySender(conn, resolver)
	transport := netio.NewMultiTransport(localSender, overlaySender, resolver)

	return transport, conn, peers, nil
}

func mustFrameConn(ifName string, logger *slog.Logger) *netio.LinuxFrameConn {
	conn, err := netio.NewFrameConn(ifName)
	if err != nil {
		logger.Error("failed to open raw frame listener socket, receive path disabled",
			slog.String("interface", ifName),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return conn
}

func resolveBSSID(sc config.SteeringConfig) (net.HardwareAddr, error) {
	if bssid, err := sc.ParseBSSID(); err != nil {
		return nil, err
	} else if bssid != nil {
		return bssid, nil
	}

	iface, err := net.InterfaceByName(sc.Interface)
	if err != nil {
		return nil, fmt.Errorf("resolve bssid from interface %s: %w", sc.Interface, err)
	}
	return iface.HardwareAddr, nil
}

func parseConfigMode(mode string) steering.Mode {
	switch mode {
	case "off":
		return steering.ModeOff
	case "force":
		return steering.ModeForce
	default:
		return steering.ModeSuggest
	}
}

func closeLogged(c interface{ Close() error }, logger *slog.Logger, what string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("failed to close "+what, slog.String("error", err.Error()))
	}
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
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
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level only; steering config is otherwise static
// for the lifetime of the Context (peers/mode changes go through the
// admin API's SetMode instead of a file reload).
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading log level")
			reloadLogLevel(configPath, logLevel, logger)
		}
	}
}

func reloadLogLevel(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, fr *trace.FlightRecorder, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

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
// Flight Recorder — Go 1.26 runtime/trace
// -------------------------------------------------------------------------

func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

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

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

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
