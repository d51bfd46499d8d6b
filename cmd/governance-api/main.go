package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/educhain-labs/governance-api/api/swagger"
	"github.com/educhain-labs/governance-api/internal/handler"
	"github.com/educhain-labs/governance-api/internal/middleware"
	"github.com/educhain-labs/governance-api/internal/models"
	"github.com/educhain-labs/governance-api/internal/repository"
	"github.com/educhain-labs/governance-api/internal/service"
	"github.com/educhain-labs/governance-api/pkg/cache"
	"github.com/educhain-labs/governance-api/pkg/config"
	"github.com/educhain-labs/governance-api/pkg/database"
	"github.com/educhain-labs/governance-api/pkg/lock"
	"github.com/educhain-labs/governance-api/pkg/logger"
	corsmiddleware "github.com/educhain-labs/governance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/educhain-labs/governance-api/pkg/middleware/requestid"
)

// @title EduChain Governance API
// @version 0.1.0
// @description Schedule governance engine with an append-only audit ledger
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, ledger query cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	coordinator := lock.New(cfg.Coordinator.LockTimeout)
	metrics := service.NewMetricsService()

	roomRepo := repository.NewRoomRepository(db)
	classRepo := repository.NewClassRepository(db)
	lecturerRepo := repository.NewLecturerRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	changeRequestRepo := repository.NewChangeRequestRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	accountRepo := repository.NewAccountRepository(db)

	ledgerSvc := service.NewLedgerService(ledgerRepo, redisClient, cfg.Ledger, cfg.Cache, metrics, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, roomRepo, classRepo, lecturerRepo, ledgerSvc, coordinator, validate, metrics, logr)
	roomSvc := service.NewRoomService(roomRepo, ledgerSvc, validate, logr)
	classSvc := service.NewClassService(classRepo, ledgerSvc, validate, logr)
	lecturerSvc := service.NewLecturerService(lecturerRepo, ledgerSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classRepo, ledgerSvc, coordinator, logr)
	changeRequestSvc := service.NewChangeRequestService(changeRequestRepo, scheduleSvc, ledgerSvc, logr,
		service.WithChangeAppliers(service.NewScheduleChangeAppliers(scheduleSvc)),
	)
	exportSvc := service.NewLedgerExportService(ledgerSvc, cfg.Exports, logr)
	authSvc := service.NewAuthService(accountRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		SingleSession:      cfg.JWT.SingleSession,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerSvc.Start(rootCtx)
	defer ledgerSvc.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, handlers{
		auth:           handler.NewAuthHandler(authSvc),
		rooms:          handler.NewRoomHandler(roomSvc),
		classes:        handler.NewClassHandler(classSvc),
		lecturers:      handler.NewLecturerHandler(lecturerSvc),
		schedules:      handler.NewScheduleHandler(scheduleSvc),
		enrollments:    handler.NewEnrollmentHandler(enrollmentSvc),
		changeRequests: handler.NewChangeRequestHandler(changeRequestSvc),
		ledger:         handler.NewLedgerHandler(ledgerSvc, exportSvc),
		metrics:        metricsHandler,
	}, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

type handlers struct {
	auth           *handler.AuthHandler
	rooms          *handler.RoomHandler
	classes        *handler.ClassHandler
	lecturers      *handler.LecturerHandler
	schedules      *handler.ScheduleHandler
	enrollments    *handler.EnrollmentHandler
	changeRequests *handler.ChangeRequestHandler
	ledger         *handler.LedgerHandler
	metrics        *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h handlers, authSvc *service.AuthService) {
	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.POST("/refresh", h.auth.Refresh)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.POST("/auth/logout", h.auth.Logout)
	protected.GET("/auth/me", h.auth.Me)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer)

	protected.GET("/rooms", h.rooms.List)
	protected.GET("/rooms/:id", h.rooms.Get)
	protected.POST("/rooms", adminOnly, h.rooms.Create)
	protected.PUT("/rooms/:id", adminOnly, h.rooms.Update)
	protected.PUT("/rooms/:id/availability", adminOnly, h.rooms.SetAvailability)

	protected.GET("/classes", h.classes.List)
	protected.GET("/classes/:id", h.classes.Get)
	protected.POST("/classes", adminOnly, h.classes.Create)
	protected.PUT("/classes/:id", adminOnly, h.classes.Update)

	protected.GET("/lecturers", h.lecturers.List)
	protected.GET("/lecturers/:id", h.lecturers.Get)
	protected.POST("/lecturers", adminOnly, h.lecturers.Create)
	protected.PUT("/lecturers/:id", adminOnly, h.lecturers.Update)

	protected.GET("/schedules", h.schedules.List)
	protected.GET("/schedules/:id", h.schedules.Get)
	protected.POST("/schedules", staff, h.schedules.Propose)
	protected.POST("/schedules/:id/validate", adminOnly, h.schedules.Validate)
	protected.POST("/schedules/:id/archive", adminOnly, h.schedules.Archive)

	protected.GET("/change-requests", staff, h.changeRequests.List)
	protected.GET("/change-requests/:id", staff, h.changeRequests.Get)
	protected.POST("/change-requests", staff, h.changeRequests.Submit)
	protected.POST("/change-requests/:id/resolve", adminOnly, h.changeRequests.Resolve)

	protected.GET("/enrollments", h.enrollments.List)
	protected.POST("/enrollments", h.enrollments.Enroll)
	protected.POST("/enrollments/:id/withdraw", h.enrollments.Withdraw)

	protected.GET("/ledger", h.ledger.Query)
	protected.GET("/ledger/export", adminOnly, h.ledger.Export)
	protected.GET("/ledger/:id", h.ledger.Get)

	protected.GET("/metrics/snapshot", adminOnly, h.metrics.Snapshot)
}
