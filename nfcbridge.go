package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nfcbridge/bridge"
	"nfcbridge/broadcast"
	"nfcbridge/debounce"
	"nfcbridge/indicator"
	"nfcbridge/logging"
	"nfcbridge/mqtt"
	"nfcbridge/reader"
	"nfcbridge/statusapi"
)

var myBuild string

const (
	shutdownTimeout = 5 * time.Second
	pingInterval    = 120 * time.Second
)

// App holds the application state and dependencies.
type App struct {
	cfg       Config
	log       zerolog.Logger
	src       reader.Source
	hub       *broadcast.Hub
	bridge    *bridge.Bridge
	sup       *bridge.Supervisor
	mqtt      *mqtt.Client
	indicator indicator.Indicator

	eventAddr, statusAddr, metricsAddr string

	eventLn, statusLn, metricsLn    net.Listener
	eventSrv, statusSrv, metricsSrv *http.Server
}

func main() {
	if err := newRootCmd(runService).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(run func(ctx context.Context, cfg Config) error) *cobra.Command {
	var (
		cfgFile    string
		bind       string
		eventPort  int
		statusPort int
		readerType string
		device     string
		logLevel   string
	)
	root := &cobra.Command{
		Use:           "nfcbridge",
		Short:         "Bridge a contactless card reader to WebSocket subscribers",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cfgFile, cmd.Flags().Changed("cfg"))
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("bind") {
				cfg.Bind = bind
			}
			if flags.Changed("event-port") {
				cfg.EventPort = eventPort
			}
			if flags.Changed("status-port") {
				cfg.StatusPort = statusPort
			}
			if flags.Changed("reader") {
				cfg.Reader.Type = readerType
			}
			if flags.Changed("device") {
				cfg.Reader.Device = device
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := root.Flags()
	f.StringVar(&cfgFile, "cfg", defaultConfigFile, "Config file (.cfg/.yaml/.toml/.json)")
	f.StringVar(&bind, "bind", "", "Listen address for both ports")
	f.IntVar(&eventPort, "event-port", 0, "WebSocket event channel port")
	f.IntVar(&statusPort, "status-port", 0, "HTTP status probe port")
	f.StringVar(&readerType, "reader", "", "Reader driver: serial|wiegand|keyboard|pipe|none")
	f.StringVar(&device, "device", "", "Reader device or pipe path")
	f.StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build string",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nfcbridge build %s\n", myBuild)
		},
	})
	return root
}

func runService(ctx context.Context, cfg Config) error {
	app, err := NewApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	if err := app.Listen(ctx); err != nil {
		app.release()
		return err
	}
	return app.Serve(ctx)
}

// NewApp builds every component. It fails if the reader driver cannot be
// loaded.
func NewApp(cfg Config, logw io.Writer) (*App, error) {
	log := logging.New(cfg.Log, logw)
	zlog.Logger = log
	log.Info().Str("build", myBuild).Msg("nfcbridge starting")

	app := &App{
		cfg:         cfg,
		log:         log,
		eventAddr:   cfg.eventAddr(),
		statusAddr:  cfg.statusAddr(),
		metricsAddr: cfg.MetricsAddr,
	}

	var err error
	app.src, err = reader.New(cfg.Reader)
	if err != nil {
		return nil, fmt.Errorf("load reader driver: %w", err)
	}
	if app.src == nil {
		log.Warn().Msg("no reader driver configured")
	}

	app.indicator, err = indicator.New(cfg.Indicator)
	if err != nil {
		app.closeReader()
		return nil, fmt.Errorf("init indicator: %w", err)
	}

	app.mqtt, err = mqtt.New(cfg.MQTT, logging.Component(log, "mqtt"))
	if err != nil {
		app.closeReader()
		app.indicator.Release()
		return nil, fmt.Errorf("init MQTT: %w", err)
	}

	app.sup = bridge.NewSupervisor(logging.Component(log, "supervisor"))
	app.hub = broadcast.New(broadcast.Options{
		QueueSize:    cfg.SubscriberQueue,
		WriteTimeout: cfg.writeTimeout(),
		State:        func() reader.State { return app.bridge.ReaderState() },
		Logger:       logging.Component(log, "broadcast"),
	})
	app.bridge = bridge.New(bridge.Options{
		Hub:       app.hub,
		Debounce:  debounce.New(cfg.debounce()),
		Sup:       app.sup,
		Mirror:    app.mqtt,
		Indicator: app.indicator,
		Available: app.src != nil,
		Logger:    logging.Component(log, "bridge"),
	})
	return app, nil
}

// Listen binds every listener. Failures wrap bridge.ErrBind and leave
// nothing bound.
func (app *App) Listen(ctx context.Context) error {
	var err error
	if app.eventLn, err = bridge.Listen(ctx, app.eventAddr); err != nil {
		return err
	}
	if app.statusLn, err = bridge.Listen(ctx, app.statusAddr); err != nil {
		app.eventLn.Close()
		return err
	}
	if app.metricsAddr != "" {
		if app.metricsLn, err = bridge.Listen(ctx, app.metricsAddr); err != nil {
			app.eventLn.Close()
			app.statusLn.Close()
			return err
		}
	}
	return nil
}

// Serve runs until ctx is done or a listener fails, then shuts down.
func (app *App) Serve(ctx context.Context) error {
	app.eventSrv = &http.Server{
		Handler:           broadcast.Handler(app.hub, logging.Component(app.log, "events")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	app.statusSrv = &http.Server{
		Handler:           statusapi.NewMux(app.bridge, app.hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if app.metricsLn != nil {
		app.metricsSrv = &http.Server{Handler: statusapi.MetricsMux(), ReadHeaderTimeout: 5 * time.Second}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.registerShutdown(cancel)

	serveErr := make(chan error, 3)
	app.serveHTTP("event", app.eventSrv, app.eventLn, serveErr)
	app.serveHTTP("status", app.statusSrv, app.statusLn, serveErr)
	if app.metricsSrv != nil {
		app.serveHTTP("metrics", app.metricsSrv, app.metricsLn, serveErr)
	}
	app.sup.Serving()

	go func() {
		if err := app.mqtt.Connect(); err != nil {
			app.log.Warn().Err(err).Msg("MQTT connect")
		}
	}()

	var wg sync.WaitGroup
	events := make(chan reader.Event, 16)
	if app.src != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.src.Run(runCtx, events); err != nil {
				app.log.Error().Err(err).Msg("reader stopped")
			}
		}()
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		app.bridge.Run(runCtx, events)
	}()
	go func() {
		defer wg.Done()
		app.pingSender(runCtx)
	}()

	app.log.Info().
		Str("events", app.eventLn.Addr().String()).
		Str("status", app.statusLn.Addr().String()).
		Msg("nfcbridge listening")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	sdCtx, sdCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer sdCancel()
	if err := app.sup.Shutdown(sdCtx); err != nil {
		app.log.Warn().Err(err).Msg("shutdown completed with errors")
	}
	wg.Wait()
	return runErr
}

// registerShutdown orders teardown: subscribers first, then the event
// listener, then the status listener.
func (app *App) registerShutdown(stopWorkers context.CancelFunc) {
	app.sup.OnShutdown("subscribers", func(context.Context) error {
		app.hub.Close()
		return nil
	})
	app.sup.OnShutdown("event listener", app.eventSrv.Shutdown)
	app.sup.OnShutdown("status listener", app.statusSrv.Shutdown)
	if app.metricsSrv != nil {
		app.sup.OnShutdown("metrics listener", app.metricsSrv.Shutdown)
	}
	app.sup.OnShutdown("reader", func(context.Context) error {
		stopWorkers()
		return app.closeReader()
	})
	app.sup.OnShutdown("mqtt", func(context.Context) error {
		app.mqtt.Disconnect()
		return nil
	})
	app.sup.OnShutdown("indicator", func(context.Context) error {
		app.indicator.Shutdown()
		return app.indicator.Release()
	})
}

func (app *App) serveHTTP(name string, srv *http.Server, ln net.Listener, errs chan<- error) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error().Err(err).Str("listener", name).Msg("server error")
			errs <- fmt.Errorf("%s listener: %w", name, err)
		}
	}()
}

// pingSender publishes a periodic heartbeat to the MQTT mirror.
func (app *App) pingSender(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := app.bridge.ReaderState()
			err := app.mqtt.Publish("ping", map[string]any{
				"status":           "ok",
				"phase":            app.sup.Phase().String(),
				"reader_connected": st.Attached,
				"subscribers":      app.hub.Count(),
			})
			if err != nil {
				app.log.Debug().Err(err).Msg("ping publish")
			}
		}
	}
}

func (app *App) closeReader() error {
	if app.src == nil {
		return nil
	}
	return app.src.Close()
}

// release frees what NewApp acquired when serving never starts.
func (app *App) release() {
	app.hub.Close()
	app.closeReader()
	app.indicator.Release()
}
