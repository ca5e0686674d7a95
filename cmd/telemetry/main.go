// Command telemetry receives simulator telemetry over UDP and keeps six JSON
// snapshot files per session up to date.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/telemetry.report/internal/api"
	"github.com/banshee-data/telemetry.report/internal/config"
	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
	"github.com/banshee-data/telemetry.report/internal/telemetry/extract"
	"github.com/banshee-data/telemetry.report/internal/telemetry/network"
	"github.com/banshee-data/telemetry.report/internal/telemetry/session"
	"github.com/banshee-data/telemetry.report/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON config file (built-in defaults when empty)")
	listen      = flag.String("listen", "", "UDP listen address, overrides listen_address")
	console     = flag.String("console", "", "Console address to send heartbeats to, overrides console_address")
	output      = flag.String("output", "", "Root directory for session folders, overrides output_dir")
	pcapFile    = flag.String("pcap", "", "Replay a pcap capture instead of listening (needs -tags=pcap)")
	httpAddr    = flag.String("http", "", "Status API address, overrides http_address")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// *db.DB is the session catalog.
var _ session.Catalog = (*db.DB)(nil)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, overrides{
		listen:  *listen,
		console: *console,
		output:  *output,
		http:    *httpAddr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting %s", version.String())
	if err := run(ctx, cfg, *pcapFile); err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// overrides holds command-line values that take precedence over the config
// file. Empty values leave the config untouched.
type overrides struct {
	listen, console, output, http string
}

func loadConfig(path string) (*config.TelemetryConfig, error) {
	if path == "" {
		return config.DefaultTelemetryConfig(), nil
	}
	return config.LoadTelemetryConfig(path)
}

func applyFlags(cfg *config.TelemetryConfig, o overrides) {
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&cfg.ListenAddress, o.listen)
	set(&cfg.ConsoleAddress, o.console)
	set(&cfg.OutputDir, o.output)
	set(&cfg.HTTPAddress, o.http)
}

// sessionConfig maps the config onto a session. catalog may be nil.
func sessionConfig(cfg *config.TelemetryConfig, cars extract.CarTable, downforce extract.DownforceTable,
	stats *telemetry.PacketStats, catalog *db.DB) session.Config {
	// The getters already resolve defaults, so a configured zero is kept.
	opts := extract.DefaultOptions()
	opts.WindowSize = cfg.GetWindowSize()
	opts.BottomingThresholdMM = cfg.GetBottomingThresholdMM()
	opts.SlipThreshold = cfg.GetSlipThreshold()
	opts.MovingFloorKPH = cfg.GetMovingFloorKPH()
	opts.HighSpeedThresholdKPH = cfg.GetHighSpeedThresholdKPH()
	opts.HighSpeedWindow = cfg.GetHighSpeedWindow()
	opts.SpinThrottlePct = cfg.GetSpinThrottlePct()
	opts.TimeSource = extract.TimeSource(cfg.GetBalanceTimeSource())
	// Session.New supplies its own clock.
	opts.Clock = nil

	sc := session.Config{
		OutputRoot:     cfg.GetOutputDir(),
		Cars:           cars,
		Downforce:      downforce,
		Options:        opts,
		BufferSize:     cfg.GetBufferSize(),
		RequireMagic:   cfg.GetRequireMagic(),
		AsyncFlush:     cfg.GetAsyncFlush(),
		FlushQueueSize: cfg.GetFlushQueueSize(),
		Stats:          stats,
	}
	if catalog != nil {
		sc.Catalog = catalog
	}
	return sc
}

// consoleTarget resolves the heartbeat destination. A bare host gets port.
func consoleTarget(address string, port int) (*net.UDPAddr, error) {
	if address == "" {
		return nil, nil
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(port))
	}
	return network.ResolveConsole(address)
}

// listenPort extracts the UDP port used to filter pcap replays.
func listenPort(address string) int {
	_, p, err := net.SplitHostPort(address)
	if err != nil {
		return network.DEFAULT_LISTEN_PORT
	}
	port, err := strconv.Atoi(p)
	if err != nil || port == 0 {
		return network.DEFAULT_LISTEN_PORT
	}
	return port
}

func run(ctx context.Context, cfg *config.TelemetryConfig, pcapPath string) error {
	cars, err := config.LoadCarTable(cfg.GetCarTablePath())
	if err != nil {
		return err
	}
	downforce, err := config.LoadDownforceTable(cfg.GetDownforceTablePath())
	if err != nil {
		return err
	}

	var catalog *db.DB
	if path := cfg.GetCatalogPath(); path != "" {
		catalog, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("failed to open session catalog: %w", err)
		}
		defer catalog.Close()
		if n, err := catalog.CloseAbandoned(); err != nil {
			log.Printf("Failed to close abandoned sessions: %v", err)
		} else if n > 0 {
			log.Printf("Closed %d abandoned sessions", n)
		}
	}

	stats := telemetry.NewPacketStats()
	sess, err := session.New(sessionConfig(cfg, cars, downforce, stats, catalog))
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("Session close error: %v", err)
		}
	}()

	var forwarder *network.PacketForwarder
	if addr := cfg.GetForwardAddress(); addr != "" {
		forwarder, err = network.NewPacketForwarder(addr, stats, cfg.GetLogInterval())
		if err != nil {
			return err
		}
		defer forwarder.Close()
	}

	// The status API stops with the capture, including when a replay ends.
	var wg sync.WaitGroup
	httpCtx, stopHTTP := context.WithCancel(ctx)
	defer func() {
		stopHTTP()
		wg.Wait()
	}()
	if addr := cfg.GetHTTPAddress(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(httpCtx, addr, cfg, catalog, sess, stats)
		}()
	}

	if pcapPath != "" {
		if forwarder != nil {
			forwarder.Start(ctx)
		}
		err := network.ReadPCAPFile(ctx, pcapPath, listenPort(cfg.GetListenAddress()), sess, forwarder)
		stats.LogStats()
		return err
	}

	target, err := consoleTarget(cfg.GetConsoleAddress(), cfg.GetHeartbeatPort())
	if err != nil {
		return err
	}
	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:           cfg.GetListenAddress(),
		RcvBuf:            cfg.GetRcvBuf(),
		LogInterval:       cfg.GetLogInterval(),
		Stats:             stats,
		Forwarder:         forwarder,
		Handler:           sess,
		Console:           target,
		HeartbeatInterval: cfg.GetHeartbeatInterval(),
	})
	if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveHTTP runs the status API until ctx is done.
func serveHTTP(ctx context.Context, addr string, cfg *config.TelemetryConfig, catalog *db.DB,
	sess *session.Session, stats *telemetry.PacketStats) {
	mux := http.NewServeMux()

	registry := prometheus.NewRegistry()
	registry.MustRegister(telemetry.NewCollector(stats))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	var lister api.SessionLister
	if catalog != nil {
		lister = catalog
		// Admin routes are reachable only from localhost or over Tailscale.
		if err := catalog.AttachAdminRoutes(mux); err != nil {
			log.Printf("Admin routes disabled: %v", err)
		}
	}
	srv := api.NewServer(lister, sess, cfg)
	srv.SetArchiveRoot(cfg.GetOutputDir())
	srv.Register(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	log.Printf("Status API listening on %s", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("HTTP server routine stopped")
}
