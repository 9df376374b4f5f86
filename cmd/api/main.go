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

	"github.com/noah-isme/campusdesk-api/internal/config"
	"github.com/noah-isme/campusdesk-api/internal/database"
	"github.com/noah-isme/campusdesk-api/internal/handler"
	"github.com/noah-isme/campusdesk-api/internal/middleware"
	"github.com/noah-isme/campusdesk-api/internal/policy"
	"github.com/noah-isme/campusdesk-api/internal/repository"
	"github.com/noah-isme/campusdesk-api/internal/router"
	"github.com/noah-isme/campusdesk-api/internal/service"
	cloud "github.com/noah-isme/campusdesk-api/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	healthChecks := map[string]handler.HealthCheckFunc{
		"database": databaseCheck(db),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
		healthChecks["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}

	var storage service.FileStorage
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		photos, err := cloud.New(cloudCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		storage = photos
	} else {
		logger.Warn().Msg("cloudinary not configured, photo uploads disabled")
	}

	events := service.NewEventBus(redisClient, natsConn, cfg.EventsChannel, logger)
	events.Start(ctx)

	validate := validator.New(validator.WithRequiredStructEnabled())

	window := policy.SignInWindow{
		Lead:          cfg.Attendance.SignInLead,
		Grace:         cfg.Attendance.SignInGrace,
		DefaultLength: cfg.Attendance.DefaultSessionLength,
	}
	due := policy.DuePolicy{
		Days:              cfg.Loan.DueDays,
		ExtendForWeekends: cfg.Loan.ExtendForWeekends,
		DueTime:           cfg.Loan.DueTime,
		Location:          cfg.Location,
	}
	if err := due.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid loan due policy")
	}
	rate := policy.RatePolicy{
		PerDayCents: cfg.Penalty.RatePerDayCents,
		Grace:       cfg.Penalty.Grace,
		MaxCents:    cfg.Penalty.MaxCents,
	}

	activityRepo := repository.NewActivityLogRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	equipmentRepo := repository.NewEquipmentRepository(db)
	kitRepo := repository.NewKitRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	reportRepo := repository.NewReportRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	photoUploader := service.NewPhotoUploader(storage, cfg.PhotoMaxSizeMB, logger)
	studentService := service.NewStudentService(studentRepo, photoUploader, validate, activityService, cfg.Location, logger)
	courseService := service.NewCourseService(courseRepo, sessionRepo, studentRepo, window, cfg.Location, validate, activityService, logger)
	attendanceService := service.NewAttendanceService(studentService, courseRepo, sessionRepo, attendanceRepo, window, validate, events, activityService, logger)
	equipmentService := service.NewEquipmentService(equipmentRepo, kitRepo, loanRepo, validate, activityService, logger)
	loanService := service.NewLoanService(studentService, equipmentRepo, kitRepo, loanRepo, due, rate, validate, events, activityService, logger)
	reportService := service.NewReportService(reportRepo, sessionRepo, courseRepo, attendanceRepo, window, rate, logger)
	importService := service.NewImportService(courseService, equipmentService, cfg.Location, validate, activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    8 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{
		Logger:    &logger,
		AccessLog: cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		StudentHandler:    handler.NewStudentHandler(studentService, logger),
		CourseHandler:     handler.NewCourseHandler(courseService, cfg.Location, logger),
		AttendanceHandler: handler.NewAttendanceHandler(attendanceService, cfg.Location, logger),
		KioskHandler:      handler.NewKioskHandler(attendanceService, courseService, logger),
		EquipmentHandler:  handler.NewEquipmentHandler(equipmentService, logger),
		LoanHandler:       handler.NewLoanHandler(loanService, logger),
		ReportHandler:     handler.NewReportHandler(reportService, cfg.Location, logger),
		ImportHandler:     handler.NewImportHandler(importService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		LiveHandler:       handler.NewLiveHandler(events, logger),
		HealthChecks:      healthChecks,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		KioskMiddleware:   middleware.KioskKey(cfg.KioskKeys),
		LiveMiddleware:    middleware.LiveAccess(cfg.JWTSecret, cfg.KioskKeys, "staff", "admin"),
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Str("timezone", cfg.Location.String()).Msg("campusdesk api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func databaseCheck(db *gorm.DB) handler.HealthCheckFunc {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
