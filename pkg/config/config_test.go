package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabaseName: "opsline",
		MongoConnTimeout:  5 * time.Second,

		Port: "8080",

		AuthSecret: "test-secret",

		LockStoreBackend: StoreBackendMemory,
		LeaseDuration:    90 * time.Second,
		RenewInterval:    30 * time.Second,
		SweepInterval:    2 * time.Minute,

		WSWriteWait:      10 * time.Second,
		WSPongWait:       60 * time.Second,
		WSSendBufferSize: 64,
		WSMaxMessageSize: 4096,

		BroadcastThrottleWindow: 2 * time.Second,

		RequestTimeout: 30 * time.Second,
		MaxRequestSize: 1 << 20,

		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid configuration, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantError string
	}{
		{
			name:      "empty auth secret",
			mutate:    func(cfg *Config) { cfg.AuthSecret = "" },
			wantError: "AuthSecret",
		},
		{
			name:      "unknown store backend",
			mutate:    func(cfg *Config) { cfg.LockStoreBackend = "etcd" },
			wantError: "LockStoreBackend",
		},
		{
			name:      "lease shorter than two renew intervals",
			mutate:    func(cfg *Config) { cfg.RenewInterval = 50 * time.Second },
			wantError: "twice RenewInterval",
		},
		{
			name:      "bad port",
			mutate:    func(cfg *Config) { cfg.Port = "http" },
			wantError: "Port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("expected error containing %q, got %q", tt.wantError, err.Error())
			}
		})
	}
}
