// Package main runs the event registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventflow/backend/config"
	"github.com/eventflow/backend/internal/attendance"
	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/auth"
	"github.com/eventflow/backend/internal/certificates"
	"github.com/eventflow/backend/internal/events"
	"github.com/eventflow/backend/internal/mailer"
	"github.com/eventflow/backend/internal/middleware"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/internal/realtime"
	"github.com/eventflow/backend/internal/registrations"
	"github.com/eventflow/backend/internal/reports"
	"github.com/eventflow/backend/internal/users"
	"github.com/eventflow/backend/pkg/clock"
	"github.com/eventflow/backend/pkg/database"
	"github.com/eventflow/backend/pkg/pdf"
	"github.com/eventflow/backend/pkg/qr"
	"github.com/eventflow/backend/pkg/queue"
	"github.com/eventflow/backend/pkg/redis"
	"github.com/eventflow/backend/pkg/response"
	"github.com/eventflow/backend/pkg/storage"
	"github.com/eventflow/backend/pkg/tracing"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	files, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.LocalDir, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Bucket:          cfg.AWS.CertificatesBucket,
	}, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	clk := clock.System{}
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	audit := auditlog.NewRepository(pool, clk, logger)

	// Outbound email is staged in the outbox and relayed from the email queue.
	emailRepo := mailer.NewRepository(pool)
	outbox := mailer.NewOutbox(emailRepo, jobQueue, files, mailer.Sender{
		Address: cfg.Email.FromAddress,
		Name:    cfg.Email.FromName,
	}, logger)
	emailHandler := mailer.NewHandler(emailRepo)

	// Users
	userHandler := users.NewHandler(users.NewRepository(pool), logger)

	// Events
	eventHandler := events.NewHandler(events.NewRepository(pool), logger)

	// Registrations
	registrationSvc := registrations.NewService(registrations.NewRepository(pool), qr.NewEncoder(qr.DefaultSize),
		audit, clk, cfg.Server.PublicBaseURL, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, logger)

	// Attendance
	attendanceSvc := attendance.NewService(attendance.NewRepository(pool), audit, clk, logger)
	attendanceHandler := attendance.NewHandler(attendanceSvc, logger)

	// Live attendance feed, fanned out across instances through Redis pub/sub
	feed := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, feed, feed, func(ctx context.Context, eventID uuid.UUID) (attendance.Counts, error) {
		return attendanceSvc.Counts(ctx, &eventID)
	})
	attendanceSvc.SetNotifier(hub)
	validateToken := func(token string) (uuid.UUID, string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", err
		}
		return claims.UserID, claims.Role, nil
	}

	// Certificates
	certificateSvc := certificates.NewService(certificates.NewRepository(pool), pdf.NewRenderer(cfg.Certificates.IssuerName),
		files, outbox, audit, clk, certificates.Options{
			EligibleAfterCheckout: cfg.Certificates.EligibleAfterCheckout,
			SenderName:            cfg.Email.FromName,
		}, logger)
	certificateHandler := certificates.NewHandler(certificateSvc, jobQueue, logger)

	// Reports and audit log
	reportSvc := reports.NewService(reports.NewRepository(pool), reports.NewRedisCache(rdb.Client, cfg.Dashboard.CacheTTL), clk,
		reports.Options{TopEvents: cfg.Dashboard.TopEvents, TrendDays: cfg.Dashboard.TrendDays}, logger)
	reportHandler := reports.NewHandler(reportSvc, logger)
	auditHandler := auditlog.NewHandler(audit, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// WebSocket authenticates with ?token= since browsers cannot set headers on upgrade
	router.GET("/ws/events/:id/attendance", realtime.ServeWs(hub, validateToken,
		middleware.OriginAllowed(cfg.Server.CORSAllowedOrigins), logger))

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.AuditContext())
	{
		api.GET("/me", userHandler.Me)
		api.GET("/me/registrations", registrationHandler.Mine)
		api.GET("/me/certificates", certificateHandler.Mine)
		api.GET("/me/summary", reportHandler.MySummary)

		api.GET("/events", eventHandler.List)
		api.GET("/events/:id", eventHandler.GetByID)
		api.POST("/events/:id/register", registrationHandler.Register)

		api.GET("/registrations/:id", registrationHandler.Get)
		api.GET("/registrations/:id/qr", registrationHandler.QRCode)
		api.GET("/certificates/:id/download", certificateHandler.Download)
	}

	// Staff console: check-in desk and QR scanning
	staff := api.Group("")
	staff.Use(middleware.RequireRole(models.RoleAdmin, models.RoleStaff))
	{
		staff.POST("/registrations/:id/check-in", attendanceHandler.CheckIn)
		staff.POST("/registrations/:id/check-out", attendanceHandler.CheckOut)
		staff.POST("/registrations/:id/toggle-check-in", attendanceHandler.Toggle)
		staff.GET("/staff/scan/:id", attendanceHandler.Scan)
		staff.POST("/staff/scan/:id", attendanceHandler.Scan)
		staff.GET("/attendance/counts", attendanceHandler.Counts)
	}

	// Admin
	admin := api.Group("")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/events", eventHandler.Create)
		admin.PUT("/events/:id/publish", eventHandler.SetPublished)
		admin.DELETE("/events/:id", eventHandler.Delete)
		admin.DELETE("/registrations/:id", registrationHandler.Delete)

		admin.GET("/admin/dashboard", reportHandler.Dashboard)
		admin.GET("/admin/users", userHandler.List)
		admin.GET("/admin/registrations", reportHandler.Registrations)
		admin.GET("/admin/registrations/export", reportHandler.Export)
		admin.GET("/admin/attendance", reportHandler.Attendance)
		admin.GET("/admin/certificates", reportHandler.Certificates)
		admin.GET("/admin/audit-logs", auditHandler.List)
		admin.GET("/admin/audit-logs/actions", auditHandler.Actions)

		admin.POST("/admin/certificates", certificateHandler.Generate)
		admin.POST("/admin/certificates/generate-pending", certificateHandler.GeneratePending)
		admin.POST("/admin/certificates/:id/approve", certificateHandler.Approve)
		admin.DELETE("/admin/certificates/:id", certificateHandler.Revoke)
		admin.POST("/admin/registrations/:id/send-certificate", certificateHandler.Send)

		admin.GET("/admin/events/:id/participants", reportHandler.Participants)
		admin.GET("/admin/events/:id/emails", emailHandler.ListByEvent)
		admin.GET("/admin/events/:id/certificates/pending", certificateHandler.Pending)
		admin.POST("/admin/events/:id/certificates/approve-all", certificateHandler.ApproveAll)
		admin.POST("/admin/events/:id/certificates/send-bulk", certificateHandler.SendBulk)
		admin.PUT("/admin/events/:id/certificate-template", certificateHandler.UploadTemplate)
		admin.GET("/admin/events/:id/certificate-template", certificateHandler.GetTemplate)
		admin.DELETE("/admin/events/:id/certificate-template", certificateHandler.DeleteTemplate)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, cfg.Tracing.ServiceName),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
