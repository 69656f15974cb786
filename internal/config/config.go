package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "dev_secret_change_me"

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	DatabaseURL string // あればPOSTGRES_*より優先

	JWTSecret      string        // JWT署名シークレット
	AccessTokenTTL time.Duration // アクセストークンの有効期限

	LogLevel       string
	RequestTimeout time.Duration

	LockBackend string        // memory / redis
	LockTimeout time.Duration // 1回の取得待ち上限
	LockRetries int           // タイムアウト時の再試行回数
	LockTTL     time.Duration // redisロックの自動失効

	RedisAddr     string
	StatsCacheTTL time.Duration // 0なら集計キャッシュなし

	NotifyBackend     string // log / kafka
	KafkaBrokers      []string
	NotifyTopic       string
	NotifyMaxAttempts int

	AutoConfirmAfter time.Duration // 発送後の自動受取までの期間
	SweepInterval    time.Duration
	Location         *time.Location // 日付比較に使うタイムゾーン
}

func (c Config) IsProd() bool { return c.GoEnv == "prod" }

// Loadは環境変数から設定を読む
func Load() (Config, error) {
	var err error
	cfg := Config{
		Port:          getenv("PORT", "8080"),
		GoEnv:         getenv("GO_ENV", "dev"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LockBackend:   getenv("LOCK_BACKEND", "memory"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		NotifyBackend: getenv("NOTIFY_BACKEND", "log"),
		KafkaBrokers:  splitCSV(os.Getenv("KAFKA_BROKERS")),
		NotifyTopic:   getenv("NOTIFY_TOPIC", "marketplace.notifications"),
	}

	if cfg.AccessTokenTTL, err = durationOr("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = durationOr("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout, err = durationOr("LOCK_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = durationOr("LOCK_TTL", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.StatsCacheTTL, err = durationOr("STATS_CACHE_TTL", 0); err != nil {
		return Config{}, err
	}
	if cfg.AutoConfirmAfter, err = durationOr("AUTO_CONFIRM_AFTER", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationOr("SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.LockRetries, err = atoiOr("LOCK_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if cfg.NotifyMaxAttempts, err = atoiOr("NOTIFY_MAX_ATTEMPTS", 1); err != nil {
		return Config{}, err
	}

	tz := getenv("TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	//必須チェック
	if cfg.GoEnv != "dev" && cfg.GoEnv != "prod" {
		return Config{}, fmt.Errorf("GO_ENV must be dev or prod")
	}
	if cfg.JWTSecret == "" {
		if cfg.IsProd() {
			return Config{}, fmt.Errorf("JWT_SECRET is required")
		}
		cfg.JWTSecret = devJWTSecret
	}
	switch cfg.LockBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("REDIS_ADDR is required when LOCK_BACKEND=redis")
		}
	default:
		return Config{}, fmt.Errorf("LOCK_BACKEND must be memory or redis")
	}
	if cfg.StatsCacheTTL > 0 && cfg.RedisAddr == "" {
		return Config{}, fmt.Errorf("REDIS_ADDR is required when STATS_CACHE_TTL is set")
	}
	switch cfg.NotifyBackend {
	case "log":
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_BACKEND=kafka")
		}
	default:
		return Config{}, fmt.Errorf("NOTIFY_BACKEND must be log or kafka")
	}
	if cfg.LockRetries < 0 {
		return Config{}, fmt.Errorf("LOCK_RETRIES must be >= 0")
	}
	if cfg.NotifyMaxAttempts < 1 {
		return Config{}, fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be >= 1")
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func atoiOr(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return d, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
