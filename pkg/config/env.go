package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr = "REDIS_ADDR"
	EnvRedisDB   = "REDIS_DB"

	EnvKafkaBrokers     = "KAFKA_BROKERS"
	EnvKafkaEventsTopic = "KAFKA_EVENTS_TOPIC"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvAuthSecret = "AUTH_SECRET"

	EnvLockStoreBackend = "LOCK_STORE_BACKEND"
	EnvLeaseDuration    = "LEASE_DURATION"
	EnvRenewInterval    = "RENEW_INTERVAL"
	EnvSweepInterval    = "SWEEP_INTERVAL"

	EnvLockServiceURL = "LOCK_SERVICE_URL"

	EnvWSWriteWait      = "WS_WRITE_WAIT"
	EnvWSPongWait       = "WS_PONG_WAIT"
	EnvWSSendBufferSize = "WS_SEND_BUFFER_SIZE"
	EnvWSMaxMessageSize = "WS_MAX_MESSAGE_SIZE"

	EnvBroadcastThrottleWindow = "BROADCAST_THROTTLE_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
