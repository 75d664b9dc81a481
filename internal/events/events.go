// Package events publishes domain events after state has been committed.
package events

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/commissionhub/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
)

type Type string

const (
	TypeOrderIngested      Type = "order.ingested"
	TypeCommissionComputed Type = "commission.computed"
	TypeCommissionApproved Type = "commission.approved"
	TypeCommissionAdjusted Type = "commission.adjusted"
	TypeCommissionPaid     Type = "commission.paid"
	TypeCommissionDeleted  Type = "commission.deleted"
	TypeSyncRunFinished    Type = "sync_run.finished"
	defaultPublishTimeout       = 5 * time.Second
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Actor      string         `json:"actor,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events. Implementations must not block callers on
// broker availability.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// New stamps an event with a sortable id and the request correlation data
// carried on ctx.
func New(ctx context.Context, typ Type, key, actor string, payload map[string]any) Event {
	evt := Event{
		ID:         ulid.Make().String(),
		Type:       typ,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		RequestID:  obscontext.RequestIDFromContext(ctx),
		Payload:    payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		evt.TraceID = sc.TraceID().String()
	}
	return evt
}
