// wallctl is the controller daemon for a remote video wall processor.
// It maintains a persistent JSON-RPC session with the device, mirrors
// the wall's displays, layouts and snapshots into a local cache, and
// exposes that view over an HTTP/WebSocket gateway plus a Prometheus
// metrics endpoint.
//
// Usage:
//
//	wallctl -config wallctl.yaml [options]
//
// Options:
//
//	-config string   Configuration file (YAML)
//	-host string     Device host (overrides config)
//	-port int        Device port (overrides config)
//	-gateway string  Gateway listen address (overrides config)
//	-metrics string  Metrics listen address (overrides config)
//	-trace           Enable debug logging
//	-logfile string  Log file path (default: stdout)
//
// Examples:
//
//	# Connect using a config file
//	wallctl -config /etc/wallctl.yaml
//
//	# Connect ad hoc, no config file
//	wallctl -host wall.example.net -port 9923 -gateway :7020
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallctl-go/pkg/config"
	"wallctl-go/pkg/conn"
	"wallctl-go/pkg/device"
	"wallctl-go/pkg/errors"
	"wallctl-go/pkg/gateway"
	"wallctl-go/pkg/log"
	"wallctl-go/pkg/metrics"
)

func main() {
	configFile := flag.String("config", "", "Configuration file (YAML)")
	host := flag.String("host", "", "Device host (overrides config)")
	port := flag.Int("port", 0, "Device port (overrides config)")
	gatewayAddr := flag.String("gateway", "", "Gateway listen address (overrides config)")
	metricsAddr := flag.String("metrics", "", "Metrics listen address (overrides config)")
	trace := flag.Bool("trace", false, "Enable debug logging")
	logFile := flag.String("logfile", "", "Log file path (default: stdout)")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *host, *port, *gatewayAddr, *metricsAddr, *trace, *logFile)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	logger.WithFields(log.Fields{
		"host": cfg.Device.Host,
		"port": cfg.Device.Port,
	}).Info("wallctl starting")

	client := device.New(conn.Config{
		Host:              cfg.Device.Host,
		Port:              cfg.Device.Port,
		DialTimeout:       cfg.Device.DialTimeout.Std(),
		HandshakeTimeout:  cfg.Device.HandshakeTimeout.Std(),
		UserTimeout:       cfg.Device.UserTimeout.Std(),
		SupportedVersions: cfg.Device.SupportedVersions,
	}, device.Options{
		RequestTimeout: cfg.Device.RequestTimeout.Std(),
		RefreshTimeout: cfg.Device.RefreshTimeout.Std(),
		Logger:         logger.WithPrefix("device"),
	})

	// Metrics endpoint
	var metricsServer *metrics.Server
	if cfg.Metrics.Addr != "" {
		metricsServer = metrics.NewServer(metrics.Global().Registry(), cfg.Metrics.Addr)
		if cfg.Metrics.Username != "" {
			metricsServer.SetBasicAuth(cfg.Metrics.Username, cfg.Metrics.Password)
		}
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
		logger.WithField("addr", cfg.Metrics.Addr).Info("metrics endpoint enabled")
	}

	// Gateway
	var gw *gateway.Server
	if cfg.Gateway.Addr != "" {
		gw = gateway.New(gateway.Config{
			Addr:   cfg.Gateway.Addr,
			Device: client,
			Logger: logger.WithPrefix("gateway"),
		})
		go func() {
			if err := gw.Start(); err != nil {
				logger.WithError(err).Error("gateway failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	runReconnectLoop(ctx, client, cfg, logger)

	client.Close()
	if gw != nil {
		gw.Stop()
	}
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		metricsServer.Shutdown(shutdownCtx)
		done()
	}
	logger.Info("wallctl stopped")
}

// runReconnectLoop keeps one session alive, redialing after drops. A
// handshake-level failure earns the longer delay since the server is
// up but refusing us.
func runReconnectLoop(ctx context.Context, client *device.Client, cfg *config.Config, logger *log.Logger) {
	downCh := make(chan error, 1)
	client.SetDownHandler(func(err error) {
		select {
		case downCh <- err:
		default:
		}
	})

	delay := time.Duration(0)
	for {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		if err := client.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("dial failed")
			delay = cfg.Reconnect.Delay.Std()
			continue
		}

		select {
		case err := <-downCh:
			if errors.Is(err, errors.ErrHandshake) {
				logger.WithError(err).Error("handshake rejected; backing off")
				delay = cfg.Reconnect.FailureDelay.Std()
			} else {
				logger.WithError(err).Warn("connection lost; reconnecting")
				delay = cfg.Reconnect.Delay.Std()
			}
		case <-ctx.Done():
			return
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func applyOverrides(cfg *config.Config, host string, port int, gatewayAddr, metricsAddr string, trace bool, logFile string) {
	if host != "" {
		cfg.Device.Host = host
	}
	if port != 0 {
		cfg.Device.Port = port
	}
	if gatewayAddr != "" {
		cfg.Gateway.Addr = gatewayAddr
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if trace {
		cfg.Log.Level = "debug"
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
}

func setupLogging(cfg *config.Config) (*log.Logger, func(), error) {
	logger := log.New("wallctl")
	cleanup := func() {}

	logger.SetLevel(log.ParseLevel(cfg.Log.Level))
	logger.SetFormat(log.ParseFormat(cfg.Log.Format))

	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		logger.SetWriter(f)
		logger.SetColorize(false)
		cleanup = func() { f.Close() }
	}

	log.SetDefaultLogger(logger)
	return logger, cleanup, nil
}
