package redis

import (
	"context"
	"time"

	"fieldops/common/config"

	"github.com/go-redis/redis/v8"
)

// Client Redis客户端类型别名
type Client = redis.Client

// DefaultOpTimeout 审计发布在请求路径上同步执行，命令超时保持在秒级
const DefaultOpTimeout = 2 * time.Second

// NewRedisClient 创建Redis客户端（超时与重试按审计流发布设置）
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		// 发布失败只记录日志，不做多次重试
		MaxRetries: 1,
	})
}

// Ping 测试Redis连接
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
