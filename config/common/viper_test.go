package common

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestConfig(values map[string]any) *Config {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return &Config{Viper: v}
}

func TestMessagingDefaults(t *testing.T) {
	cfg := newTestConfig(nil)

	pageSize, window := cfg.GetMessagingConfig()
	if pageSize != 20 {
		t.Errorf("expected default page size 20, got %d", pageSize)
	}
	if window != 15*time.Minute {
		t.Errorf("expected default window 15m, got %s", window)
	}
	if cfg.GetListenAddr() != ":7720" {
		t.Errorf("unexpected listen addr %q", cfg.GetListenAddr())
	}
}

func TestMessagingOverrides(t *testing.T) {
	cfg := newTestConfig(map[string]any{
		"MESSAGE_PAGE_SIZE": 50,
		"MUTABILITY_WINDOW": "5m",
		"APP_PORT":          ":9000",
	})

	pageSize, window := cfg.GetMessagingConfig()
	if pageSize != 50 || window != 5*time.Minute {
		t.Errorf("overrides not applied: pageSize=%d window=%s", pageSize, window)
	}
	if cfg.GetListenAddr() != ":9000" {
		t.Errorf("unexpected listen addr %q", cfg.GetListenAddr())
	}
}

func TestRedisAndS3Config(t *testing.T) {
	cfg := newTestConfig(map[string]any{
		"REDIS_ADDR":  "redis:6379",
		"REDIS_DB":    2,
		"S3_ENDPOINT": "http://minio:9000",
		"S3_USE_SSL":  true,
	})

	addr, _, db := cfg.GetRedisConfig()
	if addr != "redis:6379" || db != 2 {
		t.Errorf("unexpected redis config %s/%d", addr, db)
	}
	s3 := cfg.GetS3Config()
	if s3.Endpoint != "http://minio:9000" || !s3.UseSSL || s3.Bucket != "chat-attachments" {
		t.Errorf("unexpected s3 config %+v", s3)
	}
}
