// File: cmd/monitor/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/backfill"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/connection"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/copytrade"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/ledger"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metadata"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/monitor"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/server"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config     *config.Config
	logger     *logrus.Logger
	manager    *connection.EndpointManager
	client     *connection.PolygonClient
	storage    storage.Storage
	metrics    *metrics.Manager
	ledger     *ledger.Ledger
	metadata   *metadata.Manager
	planner    *copytrade.Planner
	monitor    *monitor.TradeMonitor
	reconciler *backfill.Reconciler
	server     *server.HTTPServer
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize logger
	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize components
	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	// Initialize metrics manager
	app.metrics = metrics.NewManager()

	// Initialize RPC connections
	if err := app.initializeConnection(); err != nil {
		return fmt.Errorf("failed to initialize connection: %w", err)
	}

	// Initialize storage
	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize position ledger
	if err := app.initializeLedger(); err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	// Initialize market metadata manager
	if err := app.initializeMetadata(); err != nil {
		return fmt.Errorf("failed to initialize metadata: %w", err)
	}

	// Initialize copy order planner
	if err := app.initializePlanner(); err != nil {
		return fmt.Errorf("failed to initialize planner: %w", err)
	}

	// Initialize trade monitor
	if err := app.initializeMonitor(); err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}

	// Initialize backfill reconciler
	if err := app.initializeReconciler(); err != nil {
		return fmt.Errorf("failed to initialize reconciler: %w", err)
	}

	// Initialize HTTP server
	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeConnection initializes the RPC endpoint manager and client
func (app *Application) initializeConnection() error {
	app.logger.WithFields(logrus.Fields{
		"endpoints": len(app.config.RPC.Endpoints),
	}).Info("Initializing RPC endpoint manager")

	var err error
	app.manager, err = connection.NewEndpointManager(&app.config.RPC)
	if err != nil {
		return fmt.Errorf("failed to create endpoint manager: %w", err)
	}
	app.manager.SetMetricsManager(app.metrics)

	// Test connection
	if err := app.manager.Connect(app.ctx); err != nil {
		return fmt.Errorf("failed to connect to Polygon RPC: %w", err)
	}

	app.client = connection.NewPolygonClient(app.manager)

	app.logger.Info("RPC endpoint manager initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.WithFields(logrus.Fields{
		"type": app.config.Storage.Type,
	}).Info("Initializing storage layer")

	var err error
	app.storage, err = storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	// Connect to storage
	if err := app.storage.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	// Run migrations
	if err := app.storage.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeLedger initializes the position ledger
func (app *Application) initializeLedger() error {
	app.logger.Info("Initializing position ledger")

	app.ledger = ledger.NewLedger(app.storage, &app.config.Ledger)
	app.ledger.SetMetricsManager(app.metrics)

	app.logger.Info("Position ledger initialized successfully")
	return nil
}

// initializeMetadata initializes the Gamma market metadata manager
func (app *Application) initializeMetadata() error {
	app.logger.WithFields(logrus.Fields{
		"enabled":  app.config.Metadata.Enabled,
		"base_url": app.config.Metadata.BaseURL,
	}).Info("Initializing market metadata manager")

	client := metadata.NewGammaClient(&app.config.Metadata)
	app.metadata = metadata.NewManager(client, app.storage, &app.config.Metadata)
	app.metadata.SetMetricsManager(app.metrics)

	app.logger.Info("Market metadata manager initialized successfully")
	return nil
}

// initializePlanner initializes the copy order planner
func (app *Application) initializePlanner() error {
	app.logger.WithFields(logrus.Fields{
		"enabled":     app.config.CopyTrade.Enabled,
		"size_factor": app.config.CopyTrade.SizeFactor,
	}).Info("Initializing copy order planner")

	app.planner = copytrade.NewPlanner(app.storage, &app.config.CopyTrade)

	app.logger.Info("Copy order planner initialized successfully")
	return nil
}

// initializeMonitor initializes the trade monitor
func (app *Application) initializeMonitor() error {
	app.logger.WithFields(logrus.Fields{
		"addresses":     len(app.config.Monitor.Addresses),
		"poll_interval": app.config.Monitor.PollInterval,
	}).Info("Initializing trade monitor")

	var err error
	app.monitor, err = monitor.NewTradeMonitor(app.client, app.storage, app.ledger, &app.config.Monitor)
	if err != nil {
		return fmt.Errorf("failed to create trade monitor: %w", err)
	}

	app.monitor.SetMetricsManager(app.metrics)
	app.monitor.Scanner().SetMetadataManager(app.metadata)
	app.monitor.Scanner().SetPlanner(app.planner)

	app.logger.Info("Trade monitor initialized successfully")
	return nil
}

// initializeReconciler initializes the backfill reconciler
func (app *Application) initializeReconciler() error {
	app.logger.WithFields(logrus.Fields{
		"enabled":       app.config.Backfill.Enabled,
		"lookback_days": app.config.Backfill.LookbackDays,
	}).Info("Initializing backfill reconciler")

	app.reconciler = backfill.NewReconciler(app.monitor.Scanner(), app.client, app.storage, &app.config.Backfill)
	app.reconciler.SetMetricsManager(app.metrics)

	app.logger.Info("Backfill reconciler initialized successfully")
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.WithFields(logrus.Fields{
		"host": app.config.Server.Host,
		"port": app.config.Server.Port,
	}).Info("Initializing HTTP server")

	var err error
	app.server, err = server.NewHTTPServer(&app.config.Server, app.config.App.Version, app.storage, app.monitor, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     app.config.App.Version,
		"environment": app.config.App.Environment,
	}).Info("Starting Polymarket trade monitor")

	// Start HTTP server
	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Reconcile incomplete position histories before the live loop starts
	if err := app.reconciler.Run(app.ctx); err != nil {
		return fmt.Errorf("backfill reconciliation failed: %w", err)
	}

	// Start trade monitor
	if err := app.monitor.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start trade monitor: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"rpc_endpoints":  len(app.config.RPC.Endpoints),
		"addresses":      len(app.config.Monitor.Addresses),
	}).Info("Polymarket trade monitor started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping Polymarket trade monitor")

	// Cancel context to stop all components
	app.cancel()

	// Stop components in reverse order
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.monitor != nil {
		if err := app.monitor.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop trade monitor")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	if app.manager != nil {
		if err := app.manager.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close RPC connections")
		}
	}

	app.logger.Info("Polymarket trade monitor stopped")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "polymarket-trade-monitor",
	Short:   "Polymarket wallet trade monitor",
	Long:    `A fault-tolerant monitor that follows Polymarket CTF Exchange fills for a set of wallets on Polygon, maintains per-position cost basis and realized P&L, and records copy order intents for an external executor.`,
	Version: AppVersion,
	RunE:    runMonitor,
}

// runMonitor is the main command to run the trade monitor
func runMonitor(cmd *cobra.Command, args []string) error {
	// Load configuration
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Apply CLI overrides
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = viper.GetString("log-level")
	}
	if viper.GetBool("debug") {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create application
	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	// Start application
	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown signal
	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	// Stop application
	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Polymarket Trade Monitor %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Storage: %s\n", cfg.Storage.Type)
		fmt.Printf("RPC endpoints: %d\n", len(cfg.RPC.Endpoints))
		fmt.Printf("Monitored addresses: %d\n", len(cfg.Monitor.Addresses))

		return nil
	},
}

// backfillCmd runs the position history reconciler once and exits
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Reconcile incomplete position histories and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// A one-shot run reconciles even when the startup sweep is disabled
		cfg.Backfill.Enabled = true

		app, err := NewApplication(cfg)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		defer app.Stop()

		return app.reconciler.Run(app.ctx)
	},
}

// statusCmd prints the persisted scan cursor and storage statistics
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print scan cursor and storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("failed to run storage migrations: %w", err)
		}

		cursor, err := store.GetLastScannedBlock()
		if err != nil {
			return fmt.Errorf("failed to read scan cursor: %w", err)
		}
		stats, err := store.GetStorageStats()
		if err != nil {
			return fmt.Errorf("failed to read storage stats: %w", err)
		}

		fmt.Printf("Last scanned block: %d\n", cursor)
		fmt.Printf("Trades recorded:    %d\n", stats.TotalTrades)
		fmt.Printf("Positions tracked:  %d (%d active)\n", stats.TotalPositions, stats.ActivePositions)
		fmt.Printf("Markets cached:     %d\n", stats.TotalMarkets)
		fmt.Printf("Copy orders:        %d\n", stats.TotalCopyOrders)
		fmt.Printf("Realized PnL:       %.2f USDC\n", stats.TotalRealizedPnL)
		if stats.LatestTrade != nil {
			fmt.Printf("Latest trade:       %s\n", stats.LatestTrade.Format(time.RFC3339))
		}
		if done, err := store.GetState(storage.StateBackfillDone); err == nil && done != "" {
			fmt.Printf("Last backfill:      %s\n", done)
		}
		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing Polymarket trade monitor connectivity...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Test RPC connectivity
		fmt.Printf("Testing Polygon RPC (%d endpoints)...\n", len(cfg.RPC.Endpoints))
		manager, err := connection.NewEndpointManager(&cfg.RPC)
		if err != nil {
			return fmt.Errorf("failed to create endpoint manager: %w", err)
		}
		if err := manager.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to Polygon RPC: %w", err)
		}
		client := connection.NewPolygonClient(manager)
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch chain head: %w", err)
		}
		fmt.Printf("✓ Polygon RPC reachable, head block %d\n", head)
		manager.Close()

		// Test storage
		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		fmt.Println("✓ Storage connection successful")
		store.Close()

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	// Add persistent flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
