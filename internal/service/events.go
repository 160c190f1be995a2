package service

import (
	"context"

	"fieldops/internal/events"

	"go.uber.org/zap"
)

// publish 写入已提交后发布事件；失败只记录警告，不影响结果
func publish(ctx context.Context, p events.Publisher, logger *zap.Logger, e events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("Failed to publish event",
			zap.String("event_type", string(e.Type)),
			zap.String("tenant_id", e.TenantID),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}
