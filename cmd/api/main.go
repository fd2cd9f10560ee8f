package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/jobify-assessment-api/internal/config"
	"github.com/noah-isme/jobify-assessment-api/internal/database"
	"github.com/noah-isme/jobify-assessment-api/internal/handler"
	"github.com/noah-isme/jobify-assessment-api/internal/middleware"
	"github.com/noah-isme/jobify-assessment-api/internal/observability"
	"github.com/noah-isme/jobify-assessment-api/internal/repository"
	"github.com/noah-isme/jobify-assessment-api/internal/router"
	"github.com/noah-isme/jobify-assessment-api/internal/service"
	cloud "github.com/noah-isme/jobify-assessment-api/pkg/cloudinary"
	"github.com/noah-isme/jobify-assessment-api/pkg/sandbox"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level).With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PostgresOptions{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using process-local submit lock")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, events go to redis only")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	executor, closeExecutor, err := buildSandbox(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create code sandbox")
	}
	defer closeExecutor()

	var uploader service.FileUploader
	if cfg.CloudinaryEnabled() {
		store, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.SnapshotFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		uploader = store
	} else {
		logger.Warn().Msg("cloudinary not configured, webcam snapshots will be rejected")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	applicationRepo := repository.NewApplicationRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)

	runner := service.NewCodeRunner(executor, logger)
	events := service.NewEventPublisher(redisClient, natsConn, cfg.EventChannelBase, logger)
	locker := service.NewSubmitLocker(redisClient, cfg.EventChannelBase, logger)

	attemptService := service.NewAttemptService(applicationRepo, attemptRepo, runner, nil, uploader, validate, logger)
	proctorService := service.NewProctorService(applicationRepo, attemptRepo, events, validate, logger)
	gradingService := service.NewGradingService(applicationRepo, attemptRepo, runner, locker, events, service.GradingConfig{
		Workers:       cfg.GradingWorkers,
		SubmitTimeout: cfg.SubmitTimeout,
	}, logger)

	assessmentHandler := handler.NewAssessmentHandler(attemptService, proctorService, gradingService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    4 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler: assessmentHandler,
		HealthChecks:      healthChecks(db, redisClient),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("sandbox", cfg.SandboxDriver).Msg("starting http server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func buildSandbox(cfg config.Config, logger zerolog.Logger) (sandbox.Sandbox, func(), error) {
	switch cfg.SandboxDriver {
	case config.SandboxDriverDocker:
		sb, err := sandbox.NewDockerSandbox(sandbox.DockerConfig{
			Host:          cfg.DockerHost,
			Timeout:       cfg.SandboxTimeout,
			MemoryLimitMB: cfg.DockerMemoryMB,
			CPUShares:     cfg.DockerCPUShares,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return sb, func() { _ = sb.Close() }, nil
	default:
		client, err := sandbox.NewJudge0Client(sandbox.Judge0Config{
			BaseURL:   cfg.SandboxURL,
			AuthToken: cfg.SandboxAuthToken,
			Timeout:   cfg.SandboxTimeout,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}

func healthChecks(db *gorm.DB, redisClient *redis.Client) []handler.DependencyCheck {
	checks := []handler.DependencyCheck{{
		Name: "database",
		Check: func(ctx context.Context) error {
			conn, err := db.DB()
			if err != nil {
				return err
			}
			return conn.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return checks
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
