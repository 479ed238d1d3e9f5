// Command tokenauth serves the dual-token session endpoints over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/revocation"
	"github.com/MrEthical07/tokenauth/throttle"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:           "tokenauth",
		Short:         "Dual-token session authentication server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return readConfigFile(v)
		},
	}
	if err := bindFlags(v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQLite revocation ledger schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), v)
		},
	}

	root.AddCommand(serve, migrate)
	root.RunE = serve.RunE
	return root
}

func runMigrate(ctx context.Context, v *viper.Viper) error {
	file := v.GetString("database_file")
	db, err := revocation.OpenSQLite(ctx, file)
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Fprintf(os.Stdout, "migrated %s\n", file)
	return nil
}

func runServe(ctx context.Context, v *viper.Viper) error {

	s, err := loadSettings(v)
	if err != nil {
		return err
	}

	logger, err := newLogger(s.Env, s.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gw, err := openGateway(ctx, s, logger)
	if err != nil {
		return err
	}
	defer gw.close()

	provider, err := newIdentityProvider(s)
	if err != nil {
		return err
	}

	builder := tokenauth.New().
		WithConfig(s.engineConfig()).
		WithIdentityProvider(provider).
		WithRevocationGateway(gw.gateway).
		WithLogger(logger)
	if gw.redis != nil && s.LoginThrottleMax > 0 {
		builder.WithLoginThrottle(throttle.NewRedis(gw.redis, throttle.Config{
			MaxAttempts: s.LoginThrottleMax,
			Window:      s.LoginThrottleWindow,
			PerIP:       true,
			Prefix:      s.RedisPrefix,
		}))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if gw.housekeeper != nil {
		gw.housekeeper.Start()
		defer gw.housekeeper.Stop()
	}

	if s.OTLPEndpoint != "" {
		shutdown, err := startOTLP(ctx, s, engine)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("otlp shutdown failed", zap.Error(err))
			}
		}()
		logger.Info("otlp metrics enabled", zap.String("endpoint", s.OTLPEndpoint))
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Handler:           newHandler(engine, s, gw.ping, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("gateway", s.Gateway))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("grace_period", s.ShutdownGracePeriod))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
