package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amou/memorymap/internal/config"
	"github.com/amou/memorymap/internal/database"
	"github.com/amou/memorymap/internal/geocode"
	"github.com/amou/memorymap/internal/httpapi"
	"github.com/amou/memorymap/internal/influx"
	"github.com/amou/memorymap/internal/logging"
	"github.com/amou/memorymap/internal/monitor"
	"github.com/amou/memorymap/internal/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// version info - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ServiceName string = "memorymapd"
)

var (
	SessionStartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	LogFilePath string
	LogFile     *os.File
)

func main() {
	configDir := flag.String("config", ".", "directory containing memorymap.cfg.json")
	flag.Parse()

	// Initial logging to stdout only, until the config tells us where the
	// log file lives.
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, viper.GetString("logLevel"), nil)
	Logger = SlogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	setupLogging()
	Logger.Info("Starting up...", "version", CurrentVersion, "build", BuildDate)

	// storage
	storageCfg, err := config.Storage()
	if err != nil {
		Logger.Error("Failed to parse storage config", "error", err)
		os.Exit(1)
	}

	dbLog := zerolog.New(os.Stdout).With().Timestamp().Str("component", "database").Logger()
	dbManager := database.NewManager(dbLog)

	backend, err := store.NewBackend(storageCfg, func() (*gorm.DB, error) {
		return openDB(dbManager, storageCfg.Type)
	})
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		os.Exit(1)
	}
	if err := backend.Open(); err != nil {
		Logger.Error("Failed to open storage backend", "error", err)
		os.Exit(1)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	// geocoding
	geocoder := geocode.NewClient(
		viper.GetString("geocoder.url"),
		viper.GetString("geocoder.userAgent"),
	)

	// metrics
	var influxManager *influx.Manager
	if viper.GetBool("influx.enabled") {
		influxLog := zerolog.New(os.Stdout).With().Timestamp().Str("component", "influx").Logger()
		backupPath := filepath.Join(viper.GetString("logsDir"), "influx_backup.gz")
		influxManager = influx.NewManager(influxLog, backupPath)
		if err := influxManager.Connect(); err != nil {
			Logger.Warn("InfluxDB unavailable, metrics disabled", "error", err)
			influxManager = nil
		}
	}

	eventLog := logging.NewDispatcherLogger(zerolog.New(os.Stdout).With().Timestamp().Logger())

	server, err := httpapi.NewServer(httpapi.Dependencies{
		Store:      backend,
		Searcher:   geocoder,
		LogManager: SlogManager,
		EventLog:   eventLog,
		Influx:     influxManager,
	}, httpapi.Config{
		Addr:        viper.GetString("server.addr"),
		JWTSecret:   jwtSecret(),
		CORSOrigins: viper.GetStringSlice("server.corsOrigins"),
	})
	if err != nil {
		Logger.Error("Failed to create API server", "error", err)
		os.Exit(1)
	}

	monitorService := monitor.NewService(monitor.Dependencies{
		LogManager: SlogManager,
		Influx:     influxManager,
		Interval:   viper.GetDuration("monitor.interval"),
		Stats: func() monitor.Stats {
			markers, lastReconcile := server.SessionStats()
			stored, err := backend.CountMemories()
			if err != nil {
				Logger.Error("Failed to count stored memories", "error", err)
			}
			return monitor.Stats{
				Sessions:      server.SessionCount(),
				Markers:       markers,
				StoredRecords: stored,
				LastReconcile: lastReconcile,
			}
		},
	})
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}

	httpServer := &http.Server{
		Addr:              viper.GetString("server.addr"),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		Logger.Info("Listening", "addr", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		Logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		Logger.Error("HTTP shutdown error", "error", err)
	}

	monitorService.Stop()

	if err := backend.Close(); err != nil {
		Logger.Error("Error closing storage backend", "error", err)
	}
	if influxManager != nil {
		influxManager.Close()
	}
	if err := dbManager.Close(); err != nil {
		Logger.Error("Error closing database", "error", err)
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
	Logger.Info("Shutdown complete")
}

// setupLogging re-initializes the slog fan-out with the session log file and
// an optional GELF handler once the config is loaded.
func setupLogging() {
	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		_ = os.MkdirAll(logsDir, 0755)
	}

	LogFilePath = logging.LogFilePath(logsDir, ServiceName, SessionStartTime)

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	var extra slog.Handler
	if viper.GetBool("graylog.enabled") {
		gelfHandler, err := logging.NewGelfHandler(
			viper.GetString("graylog.address"), ServiceName, slog.LevelInfo,
		)
		if err != nil {
			Logger.Warn("Failed to connect to Graylog", "error", err)
		} else {
			extra = gelfHandler
		}
	}

	var fileWriter *os.File
	if LogFile != nil {
		fileWriter = LogFile
	}
	if fileWriter != nil {
		SlogManager.Setup(fileWriter, viper.GetString("logLevel"), extra)
	} else {
		SlogManager.Setup(nil, viper.GetString("logLevel"), extra)
	}
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath)
}

// openDB supplies the gorm connection for the configured storage type. The
// postgres path falls back to SQLite when the server is unreachable.
func openDB(m *database.Manager, storageType string) (*gorm.DB, error) {
	if storageType == "sqlite" {
		return m.GetSqliteDB(viper.GetString("db.sqlitePath"))
	}
	if err := m.Connect(); err != nil {
		return nil, err
	}
	return m.DB, nil
}

// jwtSecret returns the configured signing secret, generating an ephemeral
// one when unset. Ephemeral secrets invalidate all tokens on restart.
func jwtSecret() string {
	secret := viper.GetString("server.jwtSecret")
	if secret != "" {
		return secret
	}
	generated, err := gonanoid.New(32)
	if err != nil {
		Logger.Error("Failed to generate JWT secret", "error", err)
		os.Exit(1)
	}
	Logger.Warn("server.jwtSecret not set, using an ephemeral secret; sessions will not survive restarts")
	return generated
}
