package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"userService/internal/config"
	"userService/internal/db"
	"userService/internal/executor"
	grpcserver "userService/internal/grpc"
	"userService/internal/handler"
	"userService/internal/httpserver"
	"userService/internal/logging"
	"userService/internal/metrics"
	"userService/internal/middleware"
	"userService/internal/pool"
	"userService/internal/service"
	"userService/repository"
)

var version = "dev"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the users endpoint over HTTP (and gRPC when GRPC_ADDRESS is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root := &cobra.Command{
		Use:          "user-service",
		Short:        "Serves the users table as JSON",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}
	root.AddCommand(serveCmd)

	var down bool
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), down)
		},
	}
	migrateCmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration instead")
	root.AddCommand(migrateCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("user-service %s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("configuration loaded", zap.Stringer("config", cfg))
	return cfg, logger, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fatal := func(msg string, err error) error {
		logger.Error(msg, zap.Error(err))
		return fmt.Errorf("%s: %w", msg, err)
	}

	target, err := db.ParseTarget(cfg.Database.URL, cfg.Database.Driver)
	if err != nil {
		return fatal("resolve database", err)
	}
	manager, err := db.NewManager(target, logger)
	if err != nil {
		return fatal("database manager", err)
	}
	defer func() { _ = manager.Shutdown() }()

	p, err := pool.New[db.Conn](ctx, manager, cfg.Pool.Options(), logger)
	if err != nil {
		return fatal("open pool", err)
	}
	defer p.Close()

	exec := executor.New(cfg.Executor.Options(), logger)
	defer exec.Close()

	reg := metrics.NewRegistry()
	reg.ObservePool(p)
	reg.ObserveExecutor(exec)

	mws := []service.Middleware{middleware.WithLog(logger), middleware.WithMetrics(reg)}
	users := service.Chain(handler.NewUsersEndpoint(repository.NewUserRepository(p), exec, logger), mws...)
	health := service.Chain(handler.NewHealth(p, exec), mws...)

	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Address != "" {
		grpcSrv, err = grpcserver.Listen(cfg.GRPC.Address, users, logger)
		if err != nil {
			return fatal("start grpc", err)
		}
	}
	httpSrv, err := httpserver.Listen(cfg.HTTP.Addr(),
		httpserver.NewHandler(httpserver.Routes{Users: users, Health: health, Metrics: reg.Handler()}, logger),
		logger)
	if err != nil {
		return fatal("start http", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpSrv.Serve)
	if grpcSrv != nil {
		g.Go(grpcSrv.Serve)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		var shutdownErr error
		if err := httpSrv.Shutdown(sctx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("http shutdown: %w", err))
		}
		if grpcSrv != nil {
			if err := grpcSrv.Shutdown(sctx); err != nil {
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("grpc shutdown: %w", err))
			}
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func migrate(ctx context.Context, down bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	target, err := db.ParseTarget(cfg.Database.URL, cfg.Database.Driver)
	if err != nil {
		return err
	}
	manager, err := db.NewManager(target, logger)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Shutdown() }()

	conn, err := manager.Connect(ctx)
	if err != nil {
		logger.Error("connect", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	if down {
		v, err := db.RollbackLast(ctx, conn)
		if err != nil {
			logger.Error("rollback failed", zap.Error(err))
			return err
		}
		logger.Info("rolled back", zap.Int("version", v))
		return nil
	}
	n, err := db.Migrate(ctx, conn)
	if err != nil {
		logger.Error("migration failed", zap.Error(err))
		return err
	}
	logger.Info("migrations applied", zap.Int("count", n))
	return nil
}
