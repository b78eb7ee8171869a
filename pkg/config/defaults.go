package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "opsline"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0

	DefaultKafkaEventsTopic = "opsline.lock-events"

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	// The renew interval must stay well under the lease duration so a client
	// can miss one renewal without losing its lock.
	DefaultLockStoreBackend = StoreBackendMemory
	DefaultLeaseDuration    = 90 * time.Second
	DefaultRenewInterval    = 30 * time.Second
	DefaultSweepInterval    = 2 * time.Minute

	DefaultLockServiceURL = "http://localhost:8080"

	DefaultWSWriteWait      = 10 * time.Second
	DefaultWSPongWait       = 60 * time.Second
	DefaultWSSendBufferSize = 64
	DefaultWSMaxMessageSize = 4096

	DefaultBroadcastThrottleWindow = 2 * time.Second

	DefaultRequestTimeout = 15 * time.Second
	DefaultMaxRequestSize = 1 << 20 // 1 MiB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100
)

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
	StoreBackendMongo  = "mongo"
)
