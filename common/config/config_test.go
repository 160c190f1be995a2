package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "ops")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "fieldops")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg := DatabaseConfig{Port: 5432, SSLMode: "disable", MaxConns: 10}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "host=db.internal port=6543 user=ops password=secret dbname=fieldops sslmode=disable", cfg.GetDSN())
	assert.Equal(t, 10, cfg.MaxConns)
	assert.Equal(t, "postgres://ops@db.internal:6543/fieldops", cfg.Redacted())
	assert.NotContains(t, cfg.Redacted(), "secret")
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "3")
	t.Setenv("MQTT_TOPIC_PREFIX", "ops")

	cfg := MQTTConfig{QoS: 1}
	cfg.LoadFromEnv("MQTT")

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(1), cfg.QoS)
	assert.Equal(t, "ops", cfg.TopicPrefix)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_POOL_SIZE", "0")
	t.Setenv("REDIS_TIMEOUT_MS", "750")

	cfg := RedisConfig{PoolSize: 8}
	cfg.LoadFromEnv("REDIS")

	assert.Equal(t, "cache:6379", cfg.Addr)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, 750*time.Millisecond, cfg.OpTimeout)
}
