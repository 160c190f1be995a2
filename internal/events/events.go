// Package events publishes domain events after a write has committed.
//
// Publishing is best effort: callers log a failed publish and keep the committed result.
package events

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Type 事件类型
type Type string

const (
	RegionPlaced        Type = "region.placed"
	RegionUpdated       Type = "region.updated"
	RegionRemoved       Type = "region.removed"
	JobCreated          Type = "job.created"
	AssignmentCommitted Type = "assignment.committed"
	// AssignmentOverride 非 critical 冲突被显式跳过（审计）
	AssignmentOverride Type = "assignment.override"
	AssignmentBlocked  Type = "assignment.blocked"
)

// IsLayoutChange reports whether the event changes a dashboard layout.
func (t Type) IsLayoutChange() bool {
	return t == RegionPlaced || t == RegionUpdated || t == RegionRemoved
}

// Event 领域事件
type Event struct {
	Type     Type   `json:"type"`
	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id,omitempty"`
	// EntityID 被修改的实体（region_id / job_id）
	EntityID string `json:"entity_id"`
	// Scope 事件所属的范围：区域事件为 layout_id，排班事件为 technician_id
	Scope      string    `json:"scope,omitempty"`
	Version    int       `json:"version,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// New stamps an event with the current time.
func New(t Type, tenantID, actorID, entityID, scope string, version int, payload any) Event {
	return Event{
		Type:       t,
		TenantID:   tenantID,
		ActorID:    actorID,
		EntityID:   entityID,
		Scope:      scope,
		Version:    version,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and combines their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, e))
	}
	return err
}
