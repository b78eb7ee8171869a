package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"opsline/pkg/client"
	"opsline/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr string
	RedisDB   int

	KafkaBrokers     []string
	KafkaEventsTopic string

	Port string

	AuthSecret string

	LockStoreBackend string
	LeaseDuration    time.Duration
	RenewInterval    time.Duration
	SweepInterval    time.Duration

	LockServiceURL string

	WSWriteWait      time.Duration
	WSPongWait       time.Duration
	WSSendBufferSize int
	WSMaxMessageSize int64

	BroadcastThrottleWindow time.Duration

	RequestTimeout time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr: getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisDB:   getEnvNum(EnvRedisDB, DefaultRedisDB),

		KafkaBrokers:     getEnvList(EnvKafkaBrokers, nil),
		KafkaEventsTopic: getEnvStr(EnvKafkaEventsTopic, DefaultKafkaEventsTopic),

		Port: getEnvStr(EnvPort, DefaultPort),

		AuthSecret: getEnvStr(EnvAuthSecret, ""),

		LockStoreBackend: getEnvStr(EnvLockStoreBackend, DefaultLockStoreBackend),
		LeaseDuration:    getEnvDuration(EnvLeaseDuration, DefaultLeaseDuration),
		RenewInterval:    getEnvDuration(EnvRenewInterval, DefaultRenewInterval),
		SweepInterval:    getEnvDuration(EnvSweepInterval, DefaultSweepInterval),

		LockServiceURL: getEnvStr(EnvLockServiceURL, DefaultLockServiceURL),

		WSWriteWait:      getEnvDuration(EnvWSWriteWait, DefaultWSWriteWait),
		WSPongWait:       getEnvDuration(EnvWSPongWait, DefaultWSPongWait),
		WSSendBufferSize: getEnvNum(EnvWSSendBufferSize, DefaultWSSendBufferSize),
		WSMaxMessageSize: int64(getEnvNum(EnvWSMaxMessageSize, DefaultWSMaxMessageSize)),

		BroadcastThrottleWindow: getEnvDuration(EnvBroadcastThrottleWindow, DefaultBroadcastThrottleWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisDB)
}

func (cfg *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errs = append(errs, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errs = append(errs, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}
	if cfg.MongoDatabaseName == "" {
		errs = append(errs, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	// An empty secret would let anyone mint valid identities.
	if cfg.AuthSecret == "" {
		errs = append(errs, "AuthSecret cannot be empty")
	}

	switch cfg.LockStoreBackend {
	case StoreBackendMemory, StoreBackendRedis, StoreBackendMongo:
	default:
		errs = append(errs, fmt.Sprintf("LockStoreBackend must be one of memory, redis, mongo, got: %s", cfg.LockStoreBackend))
	}

	if cfg.LeaseDuration <= 0 {
		errs = append(errs, fmt.Sprintf("LeaseDuration must be positive, got: %s", cfg.LeaseDuration))
	}
	if cfg.RenewInterval <= 0 {
		errs = append(errs, fmt.Sprintf("RenewInterval must be positive, got: %s", cfg.RenewInterval))
	}
	// A client must survive one missed renewal, so the lease has to cover at
	// least two renew intervals.
	if cfg.LeaseDuration > 0 && cfg.RenewInterval > 0 && cfg.LeaseDuration < 2*cfg.RenewInterval {
		errs = append(errs, fmt.Sprintf("LeaseDuration (%s) must be at least twice RenewInterval (%s)", cfg.LeaseDuration, cfg.RenewInterval))
	}
	if cfg.SweepInterval <= 0 {
		errs = append(errs, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}

	if cfg.WSWriteWait <= 0 {
		errs = append(errs, fmt.Sprintf("WSWriteWait must be positive, got: %s", cfg.WSWriteWait))
	}
	if cfg.WSPongWait <= 0 {
		errs = append(errs, fmt.Sprintf("WSPongWait must be positive, got: %s", cfg.WSPongWait))
	}
	if cfg.WSSendBufferSize <= 0 {
		errs = append(errs, fmt.Sprintf("WSSendBufferSize must be positive, got: %d", cfg.WSSendBufferSize))
	}
	if cfg.WSMaxMessageSize <= 0 {
		errs = append(errs, fmt.Sprintf("WSMaxMessageSize must be positive, got: %d", cfg.WSMaxMessageSize))
	}
	if cfg.BroadcastThrottleWindow <= 0 {
		errs = append(errs, fmt.Sprintf("BroadcastThrottleWindow must be positive, got: %s", cfg.BroadcastThrottleWindow))
	}

	if cfg.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.MaxRequestSize <= 0 {
		errs = append(errs, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(errs) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, e := range errs {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, e)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_events_topic", cfg.KafkaEventsTopic,
		"port", cfg.Port,
		"auth_secret_set", cfg.AuthSecret != "",
		"lock_store_backend", cfg.LockStoreBackend,
		"lease_duration", cfg.LeaseDuration,
		"renew_interval", cfg.RenewInterval,
		"sweep_interval", cfg.SweepInterval,
		"lock_service_url", cfg.LockServiceURL,
		"ws_write_wait", cfg.WSWriteWait,
		"ws_pong_wait", cfg.WSPongWait,
		"ws_send_buffer_size", cfg.WSSendBufferSize,
		"broadcast_throttle_window", cfg.BroadcastThrottleWindow,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
