package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltlabs/volt/internal/api"
	"github.com/voltlabs/volt/internal/config"
	"github.com/voltlabs/volt/internal/diagnostics"
	"github.com/voltlabs/volt/internal/discovery"
	"github.com/voltlabs/volt/internal/logging"
	"github.com/voltlabs/volt/internal/monitor"
	"github.com/voltlabs/volt/internal/netinfo"
	"github.com/voltlabs/volt/internal/version"
	"github.com/voltlabs/volt/internal/web"
	"github.com/voltlabs/volt/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

var (
	configPath string
	host       string
	httpPort   int
	wsPort     int
	logLevel   string
	logFile    string
	recordDir  string
	uploadDir  string
	showUI     bool
	advertise  bool
	strict     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket servers",
	Long: `Start the volt front-ends using the configuration file, overridden by
any flags given on the command line.

Every request is published as a call record. Use --record-dir to append
them to a JSON-lines file and --monitor to watch them live in the
terminal. With --monitor the log is written to --log-file instead of
stdout.`,
	Example: `  # Start with the configuration file defaults
  volt-server serve

  # Custom ports with debug logging
  volt-server serve --http-port 9000 --ws-port 9001 --log-level debug

  # Watch requests live and keep a capture
  volt-server serve --monitor --record-dir ./captures

  # Announce the server over mDNS
  volt-server serve --advertise`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&configPath, "config", "", "Configuration file (default: user config directory)")
	f.StringVar(&host, "host", "", "Interface to listen on (empty = all interfaces)")
	f.IntVar(&httpPort, "http-port", 0, "HTTP port (0 with the flag set = ephemeral)")
	f.IntVar(&wsPort, "ws-port", 0, "WebSocket port (0 with the flag set = ephemeral)")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&logFile, "log-file", filepath.Join(os.TempDir(), "volt-server.log"), "Log file used with --monitor")
	f.StringVar(&recordDir, "record-dir", "", "Directory to write call records to (disabled if not specified)")
	f.StringVar(&uploadDir, "upload-dir", "", "Directory for files posted to /upload")
	f.BoolVar(&showUI, "monitor", false, "Show a live view of incoming calls")
	f.BoolVar(&advertise, "advertise", false, "Advertise the server over mDNS")
	f.BoolVar(&strict, "strict-framing", false, "Decode inbound WebSocket frames fully")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("http-port") {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Port = httpPort
	}
	if f.Changed("ws-port") {
		cfg.WebSocket.Enabled = true
		cfg.WebSocket.Port = wsPort
	}
	if f.Changed("strict-framing") {
		cfg.WebSocket.StrictFraming = strict
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if f.Changed("record-dir") {
		cfg.Diagnostics.RecordDir = recordDir
	}
	if f.Changed("advertise") {
		cfg.Discovery.Advertise = advertise
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.HTTP.Enabled && !cfg.WebSocket.Enabled {
		return errors.New("both front-ends are disabled")
	}

	if showUI {
		err = logging.InitializeToFile(cfg.LogLevel, logFile)
	} else {
		err = logging.Initialize(cfg.LogLevel)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hubs []*diagnostics.Hub

	var wsSrv *websocket.Server
	if cfg.WebSocket.Enabled {
		wsSrv = websocket.NewServer(&websocket.Config{
			Host:          host,
			BufferSize:    cfg.Reader.BufferSize,
			LineTimeout:   cfg.Reader.LineTimeout,
			HistorySize:   cfg.Diagnostics.History,
			StrictFraming: cfg.WebSocket.StrictFraming,
			OnStarted: func(port int) {
				logging.Info("WebSocket server listening",
					zap.String("url", "ws://"+netinfo.ListenAddress(port)+"/"))
			},
			OnStopped: func() { logging.Info("WebSocket server stopped") },
		})
		hubs = append(hubs, wsSrv.Calls())
	}

	var httpSrv *web.HTTPServer
	if cfg.HTTP.Enabled {
		opts := api.Options{UploadDir: uploadDir}
		if wsSrv != nil {
			opts.Broadcaster = wsSrv
		}
		router := web.NewRouter()
		api.New(opts).Register(router)

		httpSrv = web.NewHTTPServer(router, &web.Config{
			Host:        host,
			BufferSize:  cfg.Reader.BufferSize,
			LineTimeout: cfg.Reader.LineTimeout,
			HistorySize: cfg.Diagnostics.History,
			OnStarted: func(port int) {
				logging.Info("HTTP server listening",
					zap.String("url", "http://"+netinfo.ListenAddress(port)+"/"))
			},
			OnStopped: func() { logging.Info("HTTP server stopped") },
		})
		hubs = append([]*diagnostics.Hub{httpSrv.Calls()}, hubs...)
	}

	if cfg.Diagnostics.RecordDir != "" {
		rec, err := diagnostics.NewRecorder(cfg.Diagnostics.RecordDir)
		if err != nil {
			return err
		}
		defer rec.Close()
		for _, hub := range hubs {
			rec.Attach(hub)
		}
		logging.Info("Recording call records", zap.String("path", rec.Path()))
	}

	if httpSrv != nil {
		if err := httpSrv.Start(cfg.HTTP.Port); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		defer shutdown("HTTP", httpSrv.Stop)
	}
	if wsSrv != nil {
		if err := wsSrv.Start(cfg.WebSocket.Port); err != nil {
			return fmt.Errorf("failed to start WebSocket server: %w", err)
		}
		defer shutdown("WebSocket", func(ctx context.Context) error {
			wsSrv.Disconnect()
			return wsSrv.Stop(ctx)
		})
	}

	if cfg.Discovery.Advertise {
		var hp, wp int
		if httpSrv != nil {
			hp = httpSrv.Port()
		}
		if wsSrv != nil {
			wp = wsSrv.Port()
		}
		ad, err := discovery.Advertise(cfg.Discovery.Instance, hp, wp, version.Version)
		if err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			defer ad.Shutdown()
		}
	}

	if showUI {
		if err := monitor.Run(ctx, hubs...); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		logging.Info("Monitor closed, shutting down")
		return nil
	}

	<-ctx.Done()
	logging.Info("Shutdown signal received, stopping servers...")
	return nil
}

func shutdown(name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logging.Warn("Server did not stop cleanly", zap.String("server", name), zap.Error(err))
	}
}
