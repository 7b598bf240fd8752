package main // Entry point package

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/app"
	"github.com/iliyamo/trainer-slot-booking/internal/config"
	"github.com/iliyamo/trainer-slot-booking/internal/database"
	"github.com/iliyamo/trainer-slot-booking/internal/logger"
	"github.com/iliyamo/trainer-slot-booking/internal/policy"
	"github.com/iliyamo/trainer-slot-booking/internal/queue"
	"github.com/iliyamo/trainer-slot-booking/internal/utils"
)

var envFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	serve := serveCmd()
	root := &cobra.Command{
		Use:           "server",
		Short:         "Trainer slot booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		// serve is the default command
		RunE: serve.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the environment")
	root.AddCommand(serve, migrateCmd(), consumeAuditCmd(), tokenCmd())
	return root
}

// setup loads the configuration and builds the logger every command uses.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				log.Error("startup failed", zap.Error(err))
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, dialect, err := database.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := database.Migrate(cmd.Context(), db, dialect)
			if err != nil {
				return err
			}
			log.Info("migrations applied", zap.String("dialect", string(dialect)), zap.Strings("applied", applied))
			return nil
		},
	}
}

func consumeAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume-audit",
		Short: "Append session lifecycle events from RabbitMQ to the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			c := &queue.AuditConsumer{
				URL:     cfg.Events.RabbitMQURL,
				Queue:   cfg.Events.Queue,
				LogPath: cfg.Events.AuditLog,
				Log:     log,
			}
			if err := c.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
				return err
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		id   uint64
		role string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == 0 {
				return fmt.Errorf("--id is required")
			}
			if !policy.Role(role).Valid() {
				return fmt.Errorf("unknown role %q (want one of %v)", role, policy.Roles)
			}
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, id, role, cfg.AccessTTLMin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&id, "id", 0, "caller user id")
	cmd.Flags().StringVar(&role, "role", string(policy.Client), "caller role")
	return cmd
}
