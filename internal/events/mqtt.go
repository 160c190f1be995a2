package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MQTTClient 发布所需的最小接口（common/mqtt.Client 满足）
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher 推送布局变更通知，供前端刷新仪表盘
// 主题: <prefix>/<tenant_id>/layouts/<layout_id>
type MQTTPublisher struct {
	client MQTTClient
	prefix string
	qos    byte
}

// NewMQTTPublisher 创建 MQTT 发布器
func NewMQTTPublisher(client MQTTClient, prefix string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

var _ Publisher = (*MQTTPublisher)(nil)

// Publish ignores events that do not change a layout.
func (p *MQTTPublisher) Publish(_ context.Context, e Event) error {
	if !e.Type.IsLayoutChange() {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", e.Type, err)
	}
	return p.client.Publish(p.Topic(e), p.qos, false, payload)
}

// Topic returns the topic a layout event is published on.
func (p *MQTTPublisher) Topic(e Event) string {
	return fmt.Sprintf("%s/%s/layouts/%s", p.prefix, e.TenantID, e.Scope)
}
