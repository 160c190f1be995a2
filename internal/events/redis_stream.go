package events

import (
	"context"
	"encoding/json"
	"fmt"

	commonredis "fieldops/common/redis"

	"github.com/go-redis/redis/v8"
)

// defaultStreamMaxLen 审计流近似保留条数
const defaultStreamMaxLen = 100000

// RedisStreamPublisher 将事件写入 Redis Stream（审计日志）
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher 创建 Redis Stream 发布器
func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: defaultStreamMaxLen}
}

var _ Publisher = (*RedisStreamPublisher)(nil)

func (p *RedisStreamPublisher) Publish(ctx context.Context, e Event) error {
	if _, err := commonredis.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, string(e.Type), e); err != nil {
		return fmt.Errorf("failed to publish %s to stream %s: %w", e.Type, p.stream, err)
	}
	return nil
}

const (
	// auditPageSize 反向分页读取审计流的每页条数
	auditPageSize = 500
	// defaultAuditLimit limit <= 0 时返回的条数
	defaultAuditLimit = 50
)

// Events 返回租户最近的 limit 条审计事件（按写入顺序）
// 从流的最新一端向前分页扫描，最多扫描 maxLen 条
func (p *RedisStreamPublisher) Events(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	newest := make([]Event, 0, limit)
	end := "+"
	var scanned int64
	for len(newest) < limit && scanned < p.maxLen {
		page, err := commonredis.ReadStreamReverse(ctx, p.client, p.stream, end, auditPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read stream %s: %w", p.stream, err)
		}
		fetched := len(page)
		// end 本身已在上一页处理过
		if end != "+" && fetched > 0 && page[0].ID == end {
			page = page[1:]
		}
		for _, m := range page {
			data, ok := m.Values["data"].(string)
			if !ok {
				continue
			}
			var e Event
			if err := json.Unmarshal([]byte(data), &e); err != nil {
				return nil, fmt.Errorf("failed to decode stream entry %s: %w", m.ID, err)
			}
			if e.TenantID != tenantID {
				continue
			}
			newest = append(newest, e)
			if len(newest) == limit {
				break
			}
		}
		scanned += int64(fetched)
		if fetched < auditPageSize || len(page) == 0 {
			break
		}
		end = page[len(page)-1].ID
	}

	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest, nil
}
