package cmd

import (
	"fmt"

	"loan-submission-queue/internal/adapter/connectivity"
	"loan-submission-queue/internal/adapter/notifier"
	"loan-submission-queue/internal/adapter/remote"
	"loan-submission-queue/internal/adapter/repository/gormrepo"
	"loan-submission-queue/internal/adapter/scheduler"
	"loan-submission-queue/internal/adapter/session"
	"loan-submission-queue/internal/config"
	"loan-submission-queue/internal/domain/job"
	"loan-submission-queue/internal/infrastructure/cache"
	"loan-submission-queue/internal/infrastructure/db"
	"loan-submission-queue/internal/usecase/netsync"
	subuc "loan-submission-queue/internal/usecase/submission"
	uploaduc "loan-submission-queue/internal/usecase/upload"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app is the object graph shared by every subcommand.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
	rdb *redis.Client

	queue   *scheduler.RedisQueue
	session *session.RedisProvider
	sink    *notifier.RedisSink
	manager *subuc.Manager
	uploads *uploaduc.Orchestrator
	trigger *netsync.Trigger
	prober  *connectivity.Prober
}

func openDB(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gdb, err := db.Open(cfg.DBDriver, cfg.DSN(), log)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := gormrepo.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	gdb, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}
	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("open redis: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: gdb, rdb: rdb}
	a.queue = scheduler.NewRedisQueue(rdb, scheduler.Options{
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
		Interval:    cfg.DispatchInterval,
		Concurrency: cfg.WorkerConcurrency,
	}, log.Named("scheduler"))
	a.session = session.NewRedisProvider(rdb, log)
	a.sink = notifier.NewRedisSink(rdb, log)

	api := remote.NewClient(cfg.LoanAPIBaseURL, cfg.LoanAPIToken, cfg.HTTPTimeout)
	submissions := gormrepo.NewSubmissionRepository(gdb)
	uploads := gormrepo.NewUploadRepository(gdb)
	tx := gormrepo.NewGormUoW(gdb)

	a.uploads = uploaduc.NewOrchestrator(uploads, tx, remote.NewDocumentClient(api), a.queue, a.session,
		uploaduc.Options{TempDir: cfg.UploadTempDir, CompressTargetBytes: cfg.CompressTargetBytes},
		log.Named("upload"))
	a.manager = subuc.NewManager(submissions, tx, a.queue, a.session, 0, log.Named("submission"))

	submitWorker := subuc.NewWorker(submissions, remote.NewLoanClient(api), a.uploads, a.sink,
		cfg.MaxRetryCount, log.Named("submission"))
	uploadWorker := uploaduc.NewWorker(a.uploads, log.Named("upload"))
	a.queue.Register(job.KindSubmitLoan, job.HandlerFunc(submitWorker.Run))
	a.queue.Register(job.KindUploadDocuments, job.HandlerFunc(uploadWorker.Run))

	a.trigger = netsync.NewTrigger(a.manager, remote.NewNotificationClient(api), log.Named("netsync"))
	a.prober = connectivity.NewProber(cfg.ConnectivityProbeURL, cfg.ConnectivityInterval, cfg.HTTPTimeout, log.Named("connectivity"))
	return a, nil
}

func (a *app) Close() {
	_ = a.rdb.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
