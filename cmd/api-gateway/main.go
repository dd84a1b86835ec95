package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/mentorlink/mentorlink-api/api/swagger"
	"github.com/mentorlink/mentorlink-api/internal/handler"
	"github.com/mentorlink/mentorlink-api/internal/middleware"
	"github.com/mentorlink/mentorlink-api/internal/models"
	"github.com/mentorlink/mentorlink-api/internal/repository"
	"github.com/mentorlink/mentorlink-api/internal/service"
	"github.com/mentorlink/mentorlink-api/pkg/cache"
	"github.com/mentorlink/mentorlink-api/pkg/config"
	"github.com/mentorlink/mentorlink-api/pkg/database"
	"github.com/mentorlink/mentorlink-api/pkg/logger"
	corsmiddleware "github.com/mentorlink/mentorlink-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mentorlink/mentorlink-api/pkg/middleware/requestid"
	"github.com/mentorlink/mentorlink-api/pkg/storage"
)

// @title MentorLink API
// @version 0.1.0
// @description Mentor assignment and progress lifecycle service
// @BasePath /
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
	defer db.Close() //nolint:errcheck

	// Redis is optional: the history cache degrades to direct reads.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, history caching disabled", zap.Error(err))
		redisClient = nil
	}

	resumeStorage, err := storage.NewLocalStorage(cfg.Resumes.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init resume storage", "error", err)
	}
	resumeSigner := storage.NewSignedURLSigner(cfg.Resumes.SignedURLSecret, cfg.Resumes.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "mentorlink-api",
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, resumeStorage, resumeSigner, cfg.Resumes, nil, logr)
	assignmentSvc := service.NewAssignmentService(userRepo, submissionRepo, assignmentRepo, cacheRepo, nil, logr)
	progressSvc := service.NewProgressService(submissionRepo, assignmentRepo, sessionRepo, nil, logr)
	sessionSvc := service.NewSessionService(sessionRepo, assignmentRepo, submissionRepo, nil, logr)
	historySvc := service.NewHistoryService(assignmentRepo, sessionRepo, cacheRepo, cfg.History.CacheTTL, metricsSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc, cfg.Resumes.MaxFileSizeBytes)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc, progressSvc, metricsSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, progressSvc)
	historyHandler := handler.NewHistoryHandler(historySvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

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

	submissions := api.Group("/submissions")
	{
		// Intake is open: anonymous students may submit, logged-in ones get
		// bound to their account.
		submissions.POST("", middleware.OptionalJWT(authSvc), submissionHandler.Create)
		submissions.GET("/resume/download", submissionHandler.DownloadResume)

		authed := submissions.Group("", middleware.JWT(authSvc))
		authed.GET("", submissionHandler.List)
		authed.GET("/:id", submissionHandler.Get)
		authed.PUT("/:id", submissionHandler.Update)
		authed.POST("/:id/resume", submissionHandler.UploadResume)
		authed.GET("/:id/resume-link", submissionHandler.ResumeLink)
		authed.PATCH("/:id/status",
			middleware.RequireRoles(models.RoleAdmin, models.RoleMentor),
			assignmentHandler.UpdateStatus)
	}

	assignments := api.Group("/assignments", middleware.JWT(authSvc))
	{
		assignments.POST("",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionAssign, "assignment"),
			assignmentHandler.Assign)
		assignments.DELETE("/:submissionId",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionUnassign, "assignment"),
			assignmentHandler.Unassign)
		assignments.PUT("/notes",
			middleware.RequireRoles(models.RoleAdmin, models.RoleMentor),
			assignmentHandler.RecordNote)
	}

	sessions := api.Group("/sessions", middleware.JWT(authSvc))
	{
		sessions.POST("", middleware.RequireRoles(models.RoleMentor), sessionHandler.Schedule)
		sessions.GET("", sessionHandler.List)
		sessions.PATCH("/:id/status", middleware.RequireRoles(models.RoleMentor), sessionHandler.Close)
	}

	history := api.Group("/history", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		history.GET("", historyHandler.List)
		history.GET("/export/csv", historyHandler.ExportCSV)
		history.GET("/export/pdf", historyHandler.ExportPDF)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Deactivate)
	}

	api.GET("/mentors", middleware.JWT(authSvc), userHandler.ListMentors)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
