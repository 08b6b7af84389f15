package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magefree/mage-combat-go/internal/config"
	"github.com/magefree/mage-combat-go/internal/game"
	"github.com/magefree/mage-combat-go/internal/repository"
	"github.com/magefree/mage-combat-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting combat server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := game.NewEngine(logger, game.Options{
		VerifyBlockerIndex: cfg.Combat.VerifyBlockerIndex,
		RecordReplays:      cfg.Combat.RecordReplays,
		ReplayDir:          cfg.Combat.ReplayDir,
	})
	logger.Info("combat engine initialized",
		zap.Bool("verify_blocker_index", cfg.Combat.VerifyBlockerIndex),
		zap.Bool("record_replays", cfg.Combat.RecordReplays))

	// Damage log is optional
	if cfg.Database.Enabled() {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		damageRepo := repository.NewDamageRepository(db, logger)
		if err := damageRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare damage log", zap.Error(err))
		}
		engine.SetDamageSink(damageRepo)

		stats := db.Stat()
		logger.Info("damage log enabled",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
	} else {
		logger.Warn("database not configured; combat damage is not persisted")
	}

	hub := server.NewHub(cfg.Server.SpectatorBuffer, logger)
	go hub.Run(ctx)

	spectators := server.New(engine, hub, logger)
	engine.SetNotificationHandler(spectators.HandleNotification)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddress,
		Handler: spectators,
	}
	go func() {
		logger.Info("starting spectator server", zap.String("address", cfg.Server.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("spectator server error", zap.Error(err))
			stop()
		}
	}()

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCHealthAddress)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}
	go func() {
		logger.Info("starting gRPC health server", zap.String("address", cfg.Server.GRPCHealthAddress))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	logger.Info("combat server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTPAddress),
		zap.String("grpc_health_address", cfg.Server.GRPCHealthAddress),
	)

	// Wait for termination signal
	<-ctx.Done()
	logger.Info("shutting down gracefully...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("spectator server shutdown", zap.Error(err))
	}

	for _, gameID := range engine.GameIDs() {
		if err := engine.EndGame(gameID, ""); err != nil {
			logger.Warn("failed to end game", zap.String("game_id", gameID), zap.Error(err))
		}
	}

	grpcServer.GracefulStop()

	logger.Info("combat server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
