package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"farmmarket/internal/config"
	"farmmarket/internal/infra/cache"
	"farmmarket/internal/infra/db"
	"farmmarket/internal/infra/lock"
	"farmmarket/internal/logging"
	"farmmarket/internal/server"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	//.envは無くてもよい（本番は環境変数で渡す）
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

	//DB接続
	gormDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	deps := server.Deps{DB: gormDB}

	//redisはロックか集計キャッシュで使うときだけ繋ぐ
	var rdb *redis.Client
	if cfg.LockBackend == "redis" || cfg.StatsCacheTTL > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
	}
	if cfg.LockBackend == "redis" {
		deps.Locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
	} else {
		deps.Locker = lock.NewKeyedMutex()
	}
	if cfg.StatsCacheTTL > 0 {
		deps.StatsCache = cache.NewStatsCache(rdb, cfg.StatsCacheTTL)
	}

	e := server.Build(cfg, logger, deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := cfg.Port
	if addr == "" || addr[0] != ':' {
		addr = ":" + addr
	}
	if err := server.Run(ctx, e, addr, logger.Named("http")); err != nil {
		logger.Error("http server stopped", zap.Error(err))
	}
}
