package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/minibank/middleware/internal/audit"
	"github.com/minibank/middleware/internal/auth"
	"github.com/minibank/middleware/internal/bank"
	"github.com/minibank/middleware/internal/breaker"
	"github.com/minibank/middleware/internal/config"
	"github.com/minibank/middleware/internal/database"
	"github.com/minibank/middleware/internal/healthcheck"
	"github.com/minibank/middleware/internal/logging"
	"github.com/minibank/middleware/internal/serviceclient"
	"github.com/minibank/middleware/internal/web"
	"github.com/minibank/middleware/internal/web/handlers"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "middleware",
		Short: "MiniBank Middleware - Banking API gateway",
		Long:  `Middleware is the MiniBank API gateway: it routes transfers between the internal core bank and partner banks, tracks partner health, and keeps an audit trail of every transaction.`,
		RunE:  run,
	}

	rootCmd.AddCommand(bootstrapCmd(), migrateCmd(), credentialsCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("middleware %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.LogLevel, logging.DefaultLogFilePath)
	handlers.Version = version

	log.Info().
		Str("version", version).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("core_url", cfg.CoreURL).
		Msg("Starting middleware gateway")

	db, err := openDatabase(cmd, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	br := breaker.New(cfg.BreakerThreshold, cfg.BreakerTimeout)
	txnRouter := bank.NewRouter(cfg, br)
	core := bank.NewCoreClient(cfg.CoreURL, cfg.Timeout)

	service, err := serviceclient.New(cfg, db)
	if err != nil {
		return err
	}

	poller := healthcheck.New(cfg, db)
	if started, err := poller.Start(); err != nil {
		return fmt.Errorf("failed to start health poller: %w", err)
	} else if !started {
		log.Info().Msg("Health poller not started (no partner banks enabled)")
	} else {
		defer poller.Stop()
	}

	server := web.NewServer(cfg, db, txnRouter, core, service, audit.NewRecorder(db), br)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx)
}

// openDatabase creates the database if missing, connects, and applies
// pending migrations.
func openDatabase(cmd *cobra.Command, cfg *config.Config) (*database.DB, error) {
	opts := dbOptions(cfg)

	if _, err := database.Bootstrap(cmd.Context(), opts); err != nil {
		return nil, fmt.Errorf("failed to bootstrap database: %w", err)
	}

	db, err := database.New(opts)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the gateway database if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, logging.DefaultLogFilePath)

			status, err := database.Bootstrap(cmd.Context(), dbOptions(cfg))
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, logging.DefaultLogFilePath)

			db, err := openDatabase(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			log.Info().Str("database", cfg.DBName).Msg("Migrations applied")
			return nil
		},
	}
}

func credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage stored service-layer credentials",
	}

	var password, description string
	setCmd := &cobra.Command{
		Use:   "set <service> <username>",
		Short: "Store encrypted credentials for an upstream service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, logging.DefaultLogFilePath)

			db, err := openDatabase(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			encrypted, err := auth.EncryptCredential(cfg.SecretKey, password)
			if err != nil {
				return fmt.Errorf("failed to encrypt password: %w", err)
			}
			if err := db.UpsertServiceCredential(args[0], args[1], encrypted, description); err != nil {
				return err
			}
			log.Info().Str("service", args[0]).Str("username", args[1]).Msg("Credential stored")
			return nil
		},
	}
	setCmd.Flags().StringVar(&password, "password", "", "Password to encrypt and store")
	setCmd.Flags().StringVar(&description, "description", "", "Optional credential description")

	disableCmd := &cobra.Command{
		Use:   "disable <service>",
		Short: "Deactivate stored credentials for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, logging.DefaultLogFilePath)

			db, err := openDatabase(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			found, err := db.DeactivateServiceCredential(args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no active credential for service %q", args[0])
			}
			log.Info().Str("service", args[0]).Msg("Credential deactivated")
			return nil
		},
	}

	cmd.AddCommand(setCmd, disableCmd)
	return cmd
}

func dbOptions(cfg *config.Config) database.Options {
	return database.Options{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
	}
}
