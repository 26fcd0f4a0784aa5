// Command server runs the pet robot: the control channel, the REST API, the
// autonomous play engine that takes over when nobody is connected, and the
// feeding scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/api"
	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/config"
	"github.com/konkon3660/graduationP/internal/crypto"
	"github.com/konkon3660/graduationP/internal/database"
	"github.com/konkon3660/graduationP/internal/feed"
	"github.com/konkon3660/graduationP/internal/logger"
	"github.com/konkon3660/graduationP/internal/mqttbus"
	"github.com/konkon3660/graduationP/internal/patterns"
	"github.com/konkon3660/graduationP/internal/telemetry"
	"github.com/konkon3660/graduationP/internal/websocket"
)

const (
	shutdownTimeout = 10 * time.Second
	// QoS 0 acks once the frame is written; a stuck socket must not hold
	// up a preempted session for long.
	mqttPublishTimeout = 200 * time.Millisecond
)

func main() {
	if err := run(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		addr       string
		dbPath     string
		debug      bool
		logLevel   string
		printToken string
		envFile    string
	)
	flagSet := pflag.NewFlagSet("petbot", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (env PETBOT_CONFIG)")
	flagSet.StringVar(&addr, "addr", "", "listen address, e.g. :8000 (env PORT)")
	flagSet.StringVar(&dbPath, "db", "", "sqlite database path (env DATABASE_PATH)")
	flagSet.BoolVar(&debug, "debug", false, "debug logging and gin debug mode (env DEBUG)")
	flagSet.StringVar(&logLevel, "log-level", "", "trace|debug|info|warn|error (env LOG_LEVEL)")
	flagSet.StringVar(&printToken, "print-token", "", "print a control token for the named controller and exit")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	var overrides config.Overrides
	if flagSet.Changed("config") {
		overrides.ConfigPath = &configPath
	}
	if flagSet.Changed("addr") {
		overrides.Addr = &addr
	}
	if flagSet.Changed("db") {
		overrides.DatabasePath = &dbPath
	}
	if flagSet.Changed("debug") {
		overrides.Debug = &debug
	}
	if flagSet.Changed("log-level") {
		overrides.LogLevel = &logLevel
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogging(cfg)

	var jwtManager *crypto.JWTManager
	if cfg.Auth.ControlSecret != "" {
		jwtManager, err = crypto.NewJWTManager(cfg.Auth.ControlSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("failed to create JWT manager: %w", err)
		}
	}
	if flagSet.Changed("print-token") {
		if jwtManager == nil {
			return errors.New("--print-token needs auth.control_secret or PETBOT_CONTROL_SECRET")
		}
		tok, err := jwtManager.CreateToken(printToken)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Opening database: %s", cfg.Database.Path)
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := applyStoredSettings(ctx, db, cfg); err != nil {
		return err
	}

	var bus *mqttbus.Bus
	if cfg.MQTT.Enabled() {
		bus = mqttbus.New(mqttbus.Options{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			PublishTimeout: mqttPublishTimeout,
		})
		if err := bus.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer bus.Disconnect()
	}

	hw, err := newHardware(cfg, bus)
	if err != nil {
		return err
	}

	lib, err := patterns.Build(cfg.Autoplay.Routines)
	if err != nil {
		return err
	}

	changes := &statusFanout{}
	engine, err := autoplay.New(autoplay.Options{
		Actuator:      hw,
		Library:       lib,
		DebounceDelay: cfg.Autoplay.Delay,
		DriveSpeed:    cfg.Autoplay.DriveSpeed,
		Seed:          cfg.Autoplay.Seed,
		OnChange:      changes.emit,
	})
	if err != nil {
		return fmt.Errorf("failed to start autoplay engine: %w", err)
	}
	defer engine.Close()
	logger.Infof("Autoplay: delay=%s speed=%d routines=%v", cfg.Autoplay.Delay, cfg.Autoplay.DriveSpeed, lib.Names())

	scheduler, err := feed.NewScheduler(hw, nil, cfg.Feed)
	if err != nil {
		return err
	}
	scheduler.OnFeeding(func(f feed.Feeding) {
		if err := db.LogFeeding(context.Background(), f.Source, f.Portions, f.Err); err != nil {
			logger.Warnf("%v", err)
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	reportCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	if bus != nil {
		reporter, err := telemetry.NewReporter(bus, cfg.MQTT.StatusTopic(), cfg.MQTT.StatusInterval, nil,
			func() telemetry.Snapshot {
				fs := scheduler.Status()
				return telemetry.Snapshot{Autoplay: engine.Status(), Feed: &fs}
			})
		if err != nil {
			return err
		}
		changes.add(func(autoplay.Status) { reporter.Notify() })
		wg.Add(1)
		go func() {
			defer wg.Done()
			reporter.Run(reportCtx)
		}()
	}

	control, err := websocket.NewServer(websocket.Options{
		Engine:   engine,
		Actuator: hw,
		Feed:     scheduler,
		Store:    db,
	})
	if err != nil {
		return err
	}
	changes.add(control.BroadcastStatus)

	deps := api.Deps{
		Engine:         engine,
		Feed:           scheduler,
		Store:          db,
		Control:        control,
		JWT:            jwtManager,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if bus != nil {
		deps.Bus = bus
	}
	router := api.NewRouter(deps)

	if cfg.Path != "" {
		watcher, err := config.Watch(cfg.Path, overrides, func(next *config.Config) {
			applyReload(engine, next)
		})
		if err != nil {
			logger.Warnf("Config hot reload disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	// Nobody is connected at boot: start the countdown right away.
	if err := engine.ArmIfIdle(); err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			logger.Infof("Server starting on https://localhost%s", cfg.Server.Addr)
			serveErr <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		logger.Infof("Server starting on http://localhost%s", cfg.Server.Addr)
		serveErr <- srv.ListenAndServe()
	}()
	if jwtManager != nil {
		logger.Infof("Control auth enabled")
	}

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Infof("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}
	// Stop autoplay first: the read loops unregister as their connections
	// close, and the last one would otherwise arm the trigger.
	engine.Shutdown()
	// Hijacked WebSocket connections outlive Shutdown.
	control.Manager().CloseAll()
	return nil
}

func applyLogging(cfg *config.Config) {
	format, _ := logger.ParseFormat(cfg.Log.Format)
	logger.SetFormat(format)
	level, _ := logger.ParseLevel(cfg.Log.Level)
	if cfg.Debug && level > logger.LevelDebug {
		level = logger.LevelDebug
	}
	logger.SetLevel(level)
}

// applyStoredSettings lets values saved through the API win over the config
// file, so changes made from the app survive restarts.
func applyStoredSettings(ctx context.Context, db *database.DB, cfg *config.Config) error {
	ap, ok, err := db.LoadAutoplay(ctx)
	if err != nil {
		return err
	}
	if ok {
		if ap.DelaySeconds >= 0 && actuator.ValidateSpeed(ap.DriveSpeed) == nil {
			cfg.Autoplay.Delay = ap.Delay()
			cfg.Autoplay.DriveSpeed = ap.DriveSpeed
			logger.Infof("Using stored autoplay settings: delay=%s speed=%d", cfg.Autoplay.Delay, ap.DriveSpeed)
		} else {
			logger.Warnf("Ignoring invalid stored autoplay settings: %+v", ap)
		}
	}

	fs, ok, err := db.LoadFeed(ctx)
	if err != nil {
		logger.Warnf("Ignoring stored feed settings: %v", err)
		return nil
	}
	if ok {
		cfg.Feed = fs
	}
	return nil
}

func newHardware(cfg *config.Config, bus *mqttbus.Bus) (actuator.Hardware, error) {
	switch cfg.Actuator.Backend {
	case config.BackendMQTT:
		if bus == nil {
			return nil, errors.New("mqtt actuator backend needs a broker")
		}
		logger.Infof("Actuator: MQTT bridge on %s", cfg.MQTT.ActuatorTopic())
		return actuator.NewMQTTFacade(bus, cfg.MQTT.ActuatorTopic(), cfg.Drive), nil
	default:
		logger.Infof("Actuator: simulator (drive table %s)", cfg.Drive)
		return actuator.NewSim(cfg.Drive), nil
	}
}

func applyReload(engine *autoplay.Engine, next *config.Config) {
	if err := engine.SetDebounceDelay(next.Autoplay.Delay); err != nil {
		logger.Warnf("Reload: autoplay delay: %v", err)
	}
	if err := engine.SetDriveSpeed(next.Autoplay.DriveSpeed); err != nil {
		logger.Warnf("Reload: drive speed: %v", err)
	}
	applyLogging(next)
}

// statusFanout forwards engine changes to listeners added after the engine
// started. Listeners must not block.
type statusFanout struct {
	mu        sync.RWMutex
	listeners []func(autoplay.Status)
}

func (f *statusFanout) add(fn func(autoplay.Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *statusFanout) emit(st autoplay.Status) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, fn := range f.listeners {
		fn(st)
	}
}
