package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/camnode/cmd"
	"github.com/smazurov/camnode/internal/advertise"
	"github.com/smazurov/camnode/internal/api"
	"github.com/smazurov/camnode/internal/config"
	"github.com/smazurov/camnode/internal/discovery"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/led"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/metrics/exporters"
	"github.com/smazurov/camnode/internal/node"
	"github.com/smazurov/camnode/internal/stream"
	"github.com/smazurov/camnode/internal/systemd"
	"github.com/smazurov/camnode/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Camera settings
	CameraID             string  `help:"Camera node identifier" default:"cam0" toml:"camera.id" env:"CAMERA_ID"`
	CameraAutostart      bool    `help:"Start and stop acquisition with image subscribers" default:"true" toml:"camera.autostart" env:"CAMERA_AUTOSTART"`
	CameraPixelFormat    string  `help:"Initial pixel format (empty keeps the device default)" default:"" toml:"camera.pixel_format" env:"CAMERA_PIXEL_FORMAT"`
	CameraWidth          int     `help:"Image width" default:"640" toml:"camera.width" env:"CAMERA_WIDTH"`
	CameraHeight         int     `help:"Image height" default:"480" toml:"camera.height" env:"CAMERA_HEIGHT"`
	CameraFrameRate      float64 `help:"Frames per second" default:"15" toml:"camera.frame_rate" env:"CAMERA_FRAME_RATE"`
	CameraCommandTimeout string  `help:"Bound on every command" default:"5s" toml:"camera.command_timeout" env:"CAMERA_COMMAND_TIMEOUT"`
	CameraBackendTimeout string  `help:"Bound on subscriber-driven and shutdown backend calls" default:"10s" toml:"camera.backend_timeout" env:"CAMERA_BACKEND_TIMEOUT"`

	// Discovery settings
	DiscoverySettleDelay  string `help:"Wait before acting on the last subscriber leaving" default:"500ms" toml:"discovery.settle_delay" env:"DISCOVERY_SETTLE_DELAY"`
	DiscoveryPollInterval string `help:"Re-count subscribers periodically (0 disables)" default:"0s" toml:"discovery.poll_interval" env:"DISCOVERY_POLL_INTERVAL"`

	// Advertisement settings
	AdvertiseEnabled   bool   `help:"Advertise the node over mDNS" default:"false" toml:"advertise.enabled" env:"ADVERTISE_ENABLED"`
	AdvertiseInstance  string `help:"mDNS instance name (default camnode-<camera id>)" default:"" toml:"advertise.instance" env:"ADVERTISE_INSTANCE"`
	AdvertiseInterface string `help:"Network interface to advertise on (default all)" default:"" toml:"advertise.interface" env:"ADVERTISE_INTERFACE"`

	// Tally settings
	TallyEnabled bool   `help:"Drive a board LED as streaming tally" default:"false" toml:"tally.enabled" env:"TALLY_ENABLED"`
	TallyLED     string `help:"sysfs LED name (default detected from the board)" default:"" toml:"tally.led" env:"TALLY_LED"`

	// Observability settings
	MetricsEnabled  bool   `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsInterval string `help:"Camera metrics SSE interval" default:"1s" toml:"metrics.sse_interval" env:"METRICS_SSE_INTERVAL"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingStream      string `help:"Stream controller logging level" default:"info" toml:"logging.stream" env:"LOGGING_STREAM"`
	LoggingDiscovery   string `help:"Discovery monitor logging level" default:"info" toml:"logging.discovery" env:"LOGGING_DISCOVERY"`
	LoggingFeatures    string `help:"Feature store logging level" default:"info" toml:"logging.features" env:"LOGGING_FEATURES"`
	LoggingGateway     string `help:"Command gateway logging level" default:"info" toml:"logging.gateway" env:"LOGGING_GATEWAY"`
	LoggingAcquisition string `help:"Acquisition backend logging level" default:"info" toml:"logging.acquisition" env:"LOGGING_ACQUISITION"`
	LoggingAPI         string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP        string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"stream":      o.LoggingStream,
			"discovery":   o.LoggingDiscovery,
			"features":    o.LoggingFeatures,
			"gateway":     o.LoggingGateway,
			"acquisition": o.LoggingAcquisition,
			"api":         o.LoggingAPI,
			"http":        o.LoggingHTTP,
		},
	}
}

func (o *Options) nodeConfig(logger *slog.Logger) node.Config {
	return node.Config{
		CameraID:       o.CameraID,
		Autostart:      o.CameraAutostart,
		PixelFormat:    o.CameraPixelFormat,
		Width:          o.CameraWidth,
		Height:         o.CameraHeight,
		FrameRate:      o.CameraFrameRate,
		CommandTimeout: parseDuration(logger, "camera.command_timeout", o.CameraCommandTimeout, 5*time.Second),
		BackendTimeout: parseDuration(logger, "camera.backend_timeout", o.CameraBackendTimeout, stream.DefaultBackendTimeout),
		SettleDelay:    parseDuration(logger, "discovery.settle_delay", o.DiscoverySettleDelay, discovery.DefaultSettleDelay),
		PollInterval:   parseDuration(logger, "discovery.poll_interval", o.DiscoveryPollInterval, 0),
	}
}

func parseDuration(logger *slog.Logger, key, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		logger.Warn("Invalid duration, using default", "key", key, "value", value, "default", def)
		return def
	}
	return d
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEntryEvent(entry))
		})

		camera, err := node.New(context.Background(), opts.nodeConfig(logger), eventBus)
		if err != nil {
			logger.Error("Failed to create camera node", "error", err)
			os.Exit(1)
		}

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Node:         camera,
			EventBus:     eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		metricsExporter := exporters.NewSSEExporter(eventBus,
			parseDuration(logger, "metrics.sse_interval", opts.MetricsInterval, exporters.DefaultInterval))

		var tally *led.Manager
		if opts.TallyEnabled {
			ledLogger := logging.GetLogger("led")
			tally = led.NewManager(led.New(led.Config{LED: opts.TallyLED}, ledLogger), eventBus, ledLogger)
		}

		var advertiser *advertise.Advertiser
		if opts.AdvertiseEnabled {
			advertiser = advertise.New(logging.GetLogger("advertise"))
		}

		// Logging levels are reloadable; camera settings are fixed at start.
		configWatcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logging.GetLogger("config"))
		configWatcher.OnReload(func(cfg logging.Config) {
			logging.ApplyLevels(cfg)
			logger.Info("Logging levels reloaded", "level", cfg.Level)
		})

		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		ctx, cancel := context.WithCancel(context.Background())
		nodeDone := make(chan error, 1)

		hooks.OnStart(func() {
			go func() {
				nodeDone <- camera.Run(ctx)
			}()
			metricsExporter.Start(ctx)
			go notifier.RunWatchdog(ctx)

			if tally != nil {
				tally.Start()
			}

			if watchErr := configWatcher.Start(); watchErr != nil {
				logger.Warn("Config hot reload disabled", "path", opts.Config, "error", watchErr)
			}

			ln, listenErr := net.Listen("tcp", opts.Port)
			if listenErr != nil {
				logger.Error("Failed to listen", "port", opts.Port, "error", listenErr)
				os.Exit(1)
			}

			if advertiser != nil {
				info := advertise.Info{
					Instance:  opts.AdvertiseInstance,
					Port:      ln.Addr().(*net.TCPAddr).Port,
					CameraID:  camera.ID(),
					Autostart: camera.Autostart(),
					Topic:     camera.Topic().Name(),
					Version:   version.String(),
					Interface: opts.AdvertiseInterface,
				}
				if advErr := advertiser.Start(info); advErr != nil {
					logger.Warn("mDNS advertisement disabled", "error", advErr)
				} else {
					advertiser.Follow(eventBus)
				}
			}

			notifier.Ready("serving camera " + camera.ID())
			if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", serveErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stop the node after the HTTP server so no command races shutdown
			cancel()
			select {
			case runErr := <-nodeDone:
				if runErr != nil {
					logger.Error("Camera node stopped with error", "error", runErr)
				}
			case <-time.After(15 * time.Second):
				logger.Error("Timed out waiting for camera node to stop")
			}

			metricsExporter.Stop()
			if advertiser != nil {
				advertiser.Stop()
			}
			if tally != nil {
				tally.Stop()
			}
			if stopErr := configWatcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}
		})
	})

	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateEncodingsCmd())

	// Run the CLI
	cli.Run()
}
