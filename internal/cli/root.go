package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"boursicotor/internal/catalog"
	"boursicotor/internal/config"
	"boursicotor/internal/gateway"
	"boursicotor/internal/lifecycle"
	"boursicotor/internal/logging"
	"boursicotor/internal/models"
	"boursicotor/internal/reconcile"
	"boursicotor/internal/stats"
	"boursicotor/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      store.OrderStore
	Gateway    gateway.Gateway
	Catalog    catalog.Catalog
	Manager    *lifecycle.Manager
	Reconciler *reconcile.Reconciler
	Stats      *stats.Aggregator
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	orderStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize order store, commands will fail")
	} else {
		app.Store = orderStore
		logger.Debug().Str("path", cfg.Store.Path).Msg("Order store initialized")
	}

	if cfg.IsPaperMode() {
		app.Gateway = gateway.NewPaperGateway(gateway.PaperGatewayConfig{
			InitialBalance: cfg.Gateway.InitialBalance,
		})
		logger.Debug().Msg("Paper gateway initialized")
	} else if cfg.Credentials.Kite.APIKey != "" {
		app.Gateway = gateway.NewKiteGateway(gateway.KiteConfig{
			APIKey:    cfg.Credentials.Kite.APIKey,
			APISecret: cfg.Credentials.Kite.APISecret,
			UserID:    cfg.Credentials.Kite.UserID,
			Exchange:  cfg.Trading.DefaultExchange,
		})
		logger.Debug().Msg("Kite gateway initialized")
	} else {
		logger.Warn().Msg("Live mode without Kite credentials, broker commands unavailable")
	}

	app.Catalog = catalog.NewStatic(defaultInstruments())

	if app.Store != nil && app.Gateway != nil {
		app.Manager = lifecycle.NewManager(lifecycle.ManagerConfig{
			Store:       app.Store,
			Gateway:     app.Gateway,
			Catalog:     app.Catalog,
			Logger:      logger,
			CallTimeout: cfg.Gateway.CallTimeout,
			MaxOrderQty: cfg.Trading.MaxOrderQty,
			PaperMode:   cfg.IsPaperMode(),
		})
		app.Reconciler = reconcile.New(reconcile.Config{
			Store:       app.Store,
			Gateway:     app.Gateway,
			Manager:     app.Manager,
			Logger:      logger,
			Interval:    cfg.Reconcile.Interval,
			MaxAttempts: cfg.Reconcile.MaxAttempts,
		})
	}
	if app.Store != nil {
		app.Stats = stats.NewAggregator(app.Store)
	}

	rootCmd := &cobra.Command{
		Use:   "boursicotor",
		Short: "Boursicotor - order lifecycle and broker reconciliation engine",
		Long: `Boursicotor tracks every order through its full lifecycle, absorbs
asynchronous fill events from the broker, and periodically reconciles its
local records against the broker's view. The local database is the source
of truth for order state.

Use 'boursicotor help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/boursicotor)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newOrderCmd(app))
	rootCmd.AddCommand(newReconcileCmd(app))
	rootCmd.AddCommand(newStatsCmd(app))
	rootCmd.AddCommand(newStrategyCmd(app))
	rootCmd.AddCommand(newAnomaliesCmd(app))
	rootCmd.AddCommand(newRunCmd(app))

	return rootCmd
}

// defaultInstruments seeds the catalog with liquid NSE names. A production
// deployment refreshes this from the broker's instrument dump.
func defaultInstruments() []models.Instrument {
	symbols := []struct {
		token  uint32
		symbol string
		name   string
	}{
		{738561, "RELIANCE", "Reliance Industries"},
		{2953217, "TCS", "Tata Consultancy Services"},
		{341249, "HDFCBANK", "HDFC Bank"},
		{408065, "INFY", "Infosys"},
		{1270529, "ICICIBANK", "ICICI Bank"},
		{2815745, "SBIN", "State Bank of India"},
		{895745, "TATAMOTORS", "Tata Motors"},
		{2939649, "TATASTEEL", "Tata Steel"},
		{779521, "WIPRO", "Wipro"},
		{60417, "AXISBANK", "Axis Bank"},
	}

	instruments := make([]models.Instrument, 0, len(symbols))
	for _, s := range symbols {
		instruments = append(instruments, models.Instrument{
			Token:    s.token,
			Symbol:   s.symbol,
			Name:     s.name,
			Exchange: models.NSE,
			LotSize:  1,
			TickSize: 0.05,
		})
	}
	return instruments
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Boursicotor v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Trading Configuration")
	output.Printf("  Mode:             %s\n", cfg.Trading.Mode)
	output.Printf("  Default Exchange: %s\n", cfg.Trading.DefaultExchange)
	output.Printf("  Max Order Qty:    %d\n", cfg.Trading.MaxOrderQty)
	output.Printf("  Auto Submit:      %v\n", cfg.Trading.AutoSubmit)
	output.Println()

	output.Bold("Reconciliation")
	output.Printf("  Interval:     %s\n", cfg.Reconcile.Interval)
	output.Printf("  Max Attempts: %d\n", cfg.Reconcile.MaxAttempts)
	output.Println()

	output.Bold("Gateway")
	output.Printf("  Call Timeout:    %s\n", cfg.Gateway.CallTimeout)
	output.Printf("  Initial Balance: %.2f\n", cfg.Gateway.InitialBalance)
	output.Println()

	output.Bold("Store")
	output.Printf("  Path: %s\n", cfg.Store.Path)
}
