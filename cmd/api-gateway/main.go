package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/tutorbase/schedule-api/api/swagger"
	"github.com/tutorbase/schedule-api/internal/handler"
	"github.com/tutorbase/schedule-api/internal/middleware"
	"github.com/tutorbase/schedule-api/internal/repository"
	"github.com/tutorbase/schedule-api/internal/service"
	"github.com/tutorbase/schedule-api/pkg/cache"
	"github.com/tutorbase/schedule-api/pkg/config"
	"github.com/tutorbase/schedule-api/pkg/database"
	"github.com/tutorbase/schedule-api/pkg/logger"
	corsmiddleware "github.com/tutorbase/schedule-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tutorbase/schedule-api/pkg/middleware/requestid"
)

// @title TutorBase Schedule API
// @version 0.1.0
// @description Lesson scheduling core: availability, bookings and group enrollments
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := database.Migrate(ctx, db); err != nil {
			cancel()
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
		cancel()
	}

	loc, err := time.LoadLocation(cfg.Grid.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid grid timezone", "timezone", cfg.Grid.Timezone, "error", err)
	}

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Cache.TTL, logr, false)
	}

	notifier := service.NewNotificationService(cfg.Notifications, logr)
	notifyCtx, notifyCancel := context.WithCancel(context.Background())
	notifier.Start(notifyCtx)
	defer func() {
		notifyCancel()
		notifier.Stop()
	}()

	availabilityRepo := repository.NewAvailabilityRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	listingRepo := repository.NewListingRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	validate := validator.New()

	availabilitySvc := service.NewAvailabilityService(availabilityRepo, bookingRepo, cacheSvc, logr)
	bookingSvc := service.NewBookingService(bookingRepo, listingRepo, notifier, cacheSvc, metricsSvc, validate, logr, loc)
	scheduleSvc, err := service.NewScheduleService(bookingRepo, availabilityRepo, availabilitySvc, cacheSvc, metricsSvc, cfg.Grid, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build schedule service", "error", err)
	}
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, listingRepo, notifier, validate, logr)

	var exportSvc *service.ExportService
	if cfg.Export.Enabled {
		exportSvc = service.NewExportService(scheduleSvc, logr)
	}

	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, exportSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		teachers := api.Group("/teachers/:teacherId")
		{
			teachers.POST("/availability/toggle", availabilityHandler.Toggle)
			teachers.GET("/availability", availabilityHandler.List)
			teachers.GET("/schedule/week", scheduleHandler.Week)
			teachers.POST("/schedule/gesture", scheduleHandler.Gesture)
			teachers.GET("/schedule/export", scheduleHandler.Export)
		}

		bookings := api.Group("/bookings")
		{
			bookings.POST("", bookingHandler.Create)
			bookings.GET("", bookingHandler.List)
			bookings.GET("/:id", bookingHandler.Get)
			bookings.PUT("/:id", bookingHandler.Update)
			bookings.POST("/:id/approve", bookingHandler.Approve)
			bookings.POST("/:id/decline", bookingHandler.Decline)
			bookings.POST("/:id/cancel", bookingHandler.Cancel)
			bookings.POST("/:id/reschedule", bookingHandler.Reschedule)
		}

		enrollments := api.Group("/listings/:listingId/enrollments")
		{
			enrollments.GET("", enrollmentHandler.Roster)
			enrollments.POST("", enrollmentHandler.Enroll)
			enrollments.DELETE("/:studentId", enrollmentHandler.Withdraw)
			enrollments.POST("/:studentId/attendance", enrollmentHandler.Attendance)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
