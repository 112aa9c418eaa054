package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/whisperhq/whisper/backend/internal/config"
	"github.com/whisperhq/whisper/backend/internal/database"
	"github.com/whisperhq/whisper/backend/internal/ledger"
	"github.com/whisperhq/whisper/backend/internal/middleware"
	"github.com/whisperhq/whisper/backend/internal/server"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	shutdownTimeout time.Duration
	tokenTTL        time.Duration
	tokenUsername   string
)

var rootCmd = &cobra.Command{
	Use:   "whisper",
	Short: "Whisper discussion backend",
	Long: `Whisper serves zones, points and comments over HTTP. Members boost or
reduce points and comments; a reduce never pushes a fresh tally below zero.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if cfg.Debug {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if logger, err = zapCfg.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the schema and start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Database.Validate(); err != nil {
			return err
		}
		db, err := database.New(cfg.Database.DSN(), cfg.Debug, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(db.GetDB()); err != nil {
			return err
		}
		logger.Info("Schema migrated")
		return nil
	},
}

// tokenCmd mints a bearer token for local testing
var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Print a signed bearer token for a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateAuth(); err != nil {
			return err
		}
		var userID int
		if _, err := fmt.Sscan(args[0], &userID); err != nil || userID <= 0 {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		token, err := middleware.GenerateToken([]byte(cfg.JWTSecret), userID, tokenUsername, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "Grace period for in-flight requests")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "Username claim")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.DSN(), cfg.Debug, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db.GetDB()); err != nil {
		return err
	}

	votes := ledger.New(
		database.NewBoostStore(db.GetDB(), logger),
		ledger.WithLogger(logger),
		ledger.WithStrictFloor(cfg.StrictFloor),
	)
	srv := server.New(cfg, db, votes, logger).HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", srv.Addr), zap.Bool("strict_floor", cfg.StrictFloor))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
