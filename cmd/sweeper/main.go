// sweeperはAPIとは別プロセスで定期処理を回す。
// 予約注文の通知判定、通知アウトボックスの送信、発送済み注文の自動受取。
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farmmarket/internal/config"
	"farmmarket/internal/infra/cache"
	"farmmarket/internal/infra/db"
	"farmmarket/internal/infra/lock"
	infraRepo "farmmarket/internal/infra/repository"
	"farmmarket/internal/logging"
	"farmmarket/internal/notify"
	"farmmarket/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const autoConfirmBatch = 100

type sweeper struct {
	scheduler  *usecase.PreOrderScheduler
	dispatcher *usecase.OutboxDispatcher
	orders     *usecase.OrderUsecase
	logger     *zap.Logger
}

// 1回分。どれかが失敗しても残りは走らせる。
func (s *sweeper) tick(ctx context.Context, now time.Time) {
	ctx = logging.WithLogger(ctx, s.logger)

	if res, err := s.scheduler.Sweep(ctx, now); err != nil {
		s.logger.Error("preorder sweep failed", zap.Error(err))
	} else if res.Enqueued > 0 {
		s.logger.Info("preorder sweep", zap.Int("checked", res.Checked), zap.Int("enqueued", res.Enqueued))
	}

	if n, err := s.orders.AutoConfirmDue(ctx, now, autoConfirmBatch); err != nil {
		s.logger.Error("auto confirm failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("auto confirmed deliveries", zap.Int("count", n))
	}

	//通知はsweepと自動受取で積んだ分まで送る
	if res, err := s.dispatcher.Dispatch(ctx); err != nil {
		s.logger.Error("notification dispatch failed", zap.Error(err))
	} else if res.Delivered+res.Failed+res.Skipped > 0 {
		s.logger.Info("notifications dispatched",
			zap.Int("delivered", res.Delivered),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}
}

func main() {
	once := flag.Bool("once", false, "run one sweep and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.GoEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("sweeper")

	gormDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	var gateway notify.Gateway
	switch cfg.NotifyBackend {
	case "kafka":
		kg := notify.NewKafkaGateway(cfg.KafkaBrokers, cfg.NotifyTopic)
		defer func() { _ = kg.Close() }()
		gateway = kg
	default:
		gateway = notify.NewLogGateway(logger.Named("notify"))
	}

	//APIと同じロック・キャッシュを使う
	var rdb *redis.Client
	if cfg.LockBackend == "redis" || cfg.StatsCacheTTL > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
	}
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.LockBackend == "redis" {
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
	}

	tm := infraRepo.NewTxManagerGorm(gormDB)
	guard := usecase.NewReservationGuard(tm, locker, cfg.LockTimeout, cfg.LockRetries)
	orders := usecase.NewOrderUsecase(tm, guard, cfg.AutoConfirmAfter, cfg.Location)
	if cfg.StatsCacheTTL > 0 {
		orders.WithStatsCache(cache.NewStatsCache(rdb, cfg.StatsCacheTTL))
	}
	s := &sweeper{
		scheduler:  usecase.NewPreOrderScheduler(tm, cfg.Location),
		dispatcher: usecase.NewOutboxDispatcher(tm, gateway, cfg.NotifyMaxAttempts),
		orders:     orders,
		logger:     logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		s.tick(ctx, time.Now())
		return
	}

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	logger.Info("sweeper started", zap.Duration("interval", cfg.SweepInterval))

	s.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}
