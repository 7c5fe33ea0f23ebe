// Package main runs the background certificate approval worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventflow/backend/config"
	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/certificates"
	"github.com/eventflow/backend/internal/mailer"
	"github.com/eventflow/backend/internal/worker"
	"github.com/eventflow/backend/pkg/clock"
	"github.com/eventflow/backend/pkg/database"
	"github.com/eventflow/backend/pkg/pdf"
	"github.com/eventflow/backend/pkg/queue"
	"github.com/eventflow/backend/pkg/redis"
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
		ServiceName: cfg.Tracing.ServiceName + "-worker",
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
	jobQueue := queue.NewQueue(rdb.Client, logger)
	outbox := mailer.NewOutbox(mailer.NewRepository(pool), jobQueue, files, mailer.Sender{
		Address: cfg.Email.FromAddress,
		Name:    cfg.Email.FromName,
	}, logger)
	certificateSvc := certificates.NewService(certificates.NewRepository(pool), pdf.NewRenderer(cfg.Certificates.IssuerName),
		files, outbox, auditlog.NewRepository(pool, clk, logger), clk, certificates.Options{
			EligibleAfterCheckout: cfg.Certificates.EligibleAfterCheckout,
			SenderName:            cfg.Email.FromName,
		}, logger)
	processor := worker.NewCertificateProcessor(certificateSvc, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started", zap.String("queue", queue.QueueCertificates))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(queue.PollTimeout + 2*time.Second):
		logger.Warn("worker did not stop in time")
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
