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

	_ "github.com/openuni/registrar-api/api/swagger"
	"github.com/openuni/registrar-api/internal/handler"
	"github.com/openuni/registrar-api/internal/middleware"
	"github.com/openuni/registrar-api/internal/models"
	"github.com/openuni/registrar-api/internal/repository"
	"github.com/openuni/registrar-api/internal/service"
	"github.com/openuni/registrar-api/pkg/cache"
	"github.com/openuni/registrar-api/pkg/config"
	"github.com/openuni/registrar-api/pkg/database"
	"github.com/openuni/registrar-api/pkg/logger"
	corsmiddleware "github.com/openuni/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openuni/registrar-api/pkg/middleware/requestid"
)

// @title OpenUni Registrar API
// @version 1.0.0
// @description University enrollment, grading and transcript backend
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, transcript caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	scale := models.DefaultGradeScale()
	calc := service.NewGPACalculator(scale)

	// Repositories.
	enrollmentRepo := repository.NewEnrollmentRepository(db, calc)
	gradeChangeRepo := repository.NewGradeChangeRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	termRepo := repository.NewTermRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	notifier := service.NewNotificationService(cfg.Notifications.Workers, cfg.Notifications.BufferSize, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "registrar-api",
	})
	authzSvc := service.NewAuthzService(sectionRepo)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, sectionRepo, termRepo, notifier, metricsSvc, validate, logr)
	gradeSvc := service.NewGradeService(enrollmentRepo, gradeChangeRepo, termRepo, authzSvc, notifier, cacheRepo, userRepo, metricsSvc, scale, validate, logr)
	gpaSvc := service.NewGPAService(enrollmentRepo, studentRepo, calc, logr)
	transcriptSvc := service.NewTranscriptService(enrollmentRepo, studentRepo, cacheRepo, cfg.Transcripts.CacheTTL, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, enrollmentRepo, enrollmentSvc, userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	termSvc := service.NewTermService(termRepo, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, logr)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, transcriptSvc, gpaSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc, enrollmentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	termHandler := handler.NewTermHandler(termSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	anyStaff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleInstructor)

	students := protected.Group("/students")
	{
		students.GET("", anyStaff, studentHandler.List)
		students.POST("", staff, studentHandler.Create)
		students.GET("/:id", middleware.RBAC("ADMIN", "REGISTRAR", "INSTRUCTOR", "SELF"), studentHandler.Get)
		students.PUT("/:id", staff, studentHandler.Update)
		students.GET("/:id/transcript", middleware.RBAC("ADMIN", "REGISTRAR", "SELF"), studentHandler.Transcript)
		students.POST("/:id/gpa/recalculate", staff, studentHandler.RecalculateGPA)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", staff, courseHandler.Create)
	}

	terms := protected.Group("/terms")
	{
		terms.GET("", termHandler.List)
		terms.GET("/:id", termHandler.Get)
		terms.POST("", staff, termHandler.Create)
		terms.PUT("/:id", staff, termHandler.Update)
	}

	sections := protected.Group("/sections")
	{
		sections.GET("", sectionHandler.List)
		sections.GET("/:id", sectionHandler.Get)
		sections.POST("", staff, sectionHandler.Create)
		sections.PUT("/:id/capacity", staff, sectionHandler.UpdateCapacity)
		sections.GET("/:id/waitlist", anyStaff, sectionHandler.Waitlist)
		sections.POST("/:id/promote", staff, sectionHandler.Promote)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", anyStaff, enrollmentHandler.List)
		enrollments.POST("", staff, middleware.Audit(userRepo, models.AuditActionEnrollmentCreate, "enrollments"), enrollmentHandler.Create)
		enrollments.GET("/:id", anyStaff, enrollmentHandler.Get)
		enrollments.DELETE("/:id", staff, middleware.Audit(userRepo, models.AuditActionEnrollmentWithdraw, "enrollments"), enrollmentHandler.Withdraw)
		enrollments.GET("/:id/grade-changes", anyStaff, gradeHandler.ListChanges)
	}

	grades := protected.Group("/grades")
	{
		grades.POST("", anyStaff, gradeHandler.Submit)
		grades.POST("/bulk", anyStaff, gradeHandler.BulkSubmit)
	}

	gradeChanges := protected.Group("/grade-changes")
	{
		gradeChanges.POST("", anyStaff, gradeHandler.RequestChange)
		gradeChanges.PUT("/:id/approve", staff, gradeHandler.ApproveChange)
		gradeChanges.PUT("/:id/deny", staff, gradeHandler.DenyChange)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
