// -----------------------------------------------------------------------
// Conveyor - batch media-processing job engine
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/batch"
	"github.com/ternarybob/conveyor/internal/common"
	"github.com/ternarybob/conveyor/internal/events"
	"github.com/ternarybob/conveyor/internal/handlers"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"github.com/ternarybob/conveyor/internal/processor"
	"github.com/ternarybob/conveyor/internal/scheduler"
	"github.com/ternarybob/conveyor/internal/server"
	storagebadger "github.com/ternarybob/conveyor/internal/storage/badger"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Conveyor version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Merge port flags (shorthand takes precedence)
	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("conveyor.toml"); err == nil {
			configFiles = append(configFiles, "conveyor.toml")
		}
	}

	// Load configuration (default -> file1 -> file2 -> ... -> env)
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// Command-line flag overrides (highest priority)
	if finalPort != 0 {
		config.Server.Port = finalPort
	}
	if *serverHost != "" {
		config.Server.Host = *serverHost
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Int("max_concurrent_items", config.Batch.MaxConcurrentItems).
		Msg("Application configuration loaded")

	// Run history store (optional)
	var history interfaces.HistoryStorage
	var db *storagebadger.BadgerDB
	if config.History.Enabled {
		db, err = storagebadger.NewBadgerDB(logger, &config.Storage.Badger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open history database")
			os.Exit(1)
		}
		history = storagebadger.NewHistoryStorage(db, logger)
	}

	// Engine assembly: event bus, registry, executor, manager
	eventService := events.NewService(logger)
	registry := batch.NewRegistry(config.CleanupDelayDuration(), logger)
	copyProcessor := processor.NewCopyProcessor(logger)
	executor := batch.NewExecutor(copyProcessor, eventService, logger, config.Batch.MaxConcurrentItems)
	manager := batch.NewManager(registry, executor, eventService, history, logger)

	// History prune schedule
	var pruner *scheduler.Service
	if history != nil {
		pruner = scheduler.NewService(history, config.RetentionDuration(), logger)
		if err := pruner.Start(config.History.PruneSchedule); err != nil {
			logger.Warn().Err(err).Msg("Failed to start history prune schedule")
		}
	}

	// HTTP surface
	jobHandler := handlers.NewJobHandler(manager, history, logger)
	statusHandler := handlers.NewStatusHandler(manager, logger)
	wsHandler := handlers.NewWebSocketHandler(eventService, logger, &config.WebSocket)

	srv := server.New(config, logger, jobHandler, statusHandler, wsHandler)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Wait for shutdown signal or server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	// Graceful shutdown: HTTP first, then the engine periphery
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	wsHandler.Close()
	if pruner != nil {
		pruner.Stop()
	}
	registry.Close()
	if err := eventService.Close(); err != nil {
		logger.Warn().Err(err).Msg("Event service close error")
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("History database close error")
		}
	}

	logger.Info().Msg("Conveyor stopped")
}
