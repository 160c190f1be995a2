package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "fieldops/common/config"
	"fieldops/internal/domain"
	"fieldops/internal/scheduling"
)

// Config fieldops（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled   bool
	AutoMigrate bool
	Database    commoncfg.DatabaseConfig

	RedisEnabled bool
	Redis        commoncfg.RedisConfig
	// AuditStream Redis Stream 名称（审计事件）
	AuditStream string

	MQTTEnabled bool
	MQTT        commoncfg.MQTTConfig

	Log struct {
		Level  string
		Format string
	}

	Scheduling scheduling.ThresholdPolicy
}

// Load 从环境变量加载配置；排班策略参数非法时返回错误
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// DB 不可用时回退到内存仓库
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.AutoMigrate = getEnv("DB_AUTO_MIGRATE", "false") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "fieldops")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Redis.PoolSize = parseInt(getEnv("REDIS_POOL_SIZE", "0"), 0)
	cfg.Redis.OpTimeout = time.Duration(parseInt(getEnv("REDIS_TIMEOUT_MS", "2000"), 2000)) * time.Millisecond
	cfg.AuditStream = getEnv("AUDIT_STREAM", "fieldops:audit")

	cfg.MQTTEnabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "fieldops")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "fieldops")
	cfg.MQTT.QoS = 1

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	policy := scheduling.DefaultThresholdPolicy()
	if v := os.Getenv("SCHEDULING_CRITICAL_OVERLAP_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULING_CRITICAL_OVERLAP_RATIO %q: %w", v, err)
		}
		policy.CriticalOverlapRatio = ratio
	}
	if v := os.Getenv("SCHEDULING_MINOR_OVERLAP_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULING_MINOR_OVERLAP_MINUTES %q: %w", v, err)
		}
		policy.MinorOverlapMinutes = minutes
	}
	if v := os.Getenv("SCHEDULING_LOCATION_SEVERITY"); v != "" {
		sev, ok := domain.ParseSeverity(v)
		if !ok {
			return nil, fmt.Errorf("invalid SCHEDULING_LOCATION_SEVERITY %q", v)
		}
		policy.LocationSeverity = sev
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduling policy: %w", err)
	}
	cfg.Scheduling = policy

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
