package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	obscontext "github.com/smallbiznis/commissionhub/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewStampsCorrelation(t *testing.T) {
	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	a := New(ctx, TypeCommissionApproved, "1001", "finance@example.com", nil)
	b := New(ctx, TypeCommissionApproved, "1001", "finance@example.com", nil)

	assert.Len(t, a.ID, 26)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "req-9", a.RequestID)
	assert.Empty(t, a.TraceID)
}

func TestKafkaPublisherKeysByAggregate(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, zap.NewNop(), nil)

	evt := New(context.Background(), TypeOrderIngested, "5001", "", map[string]any{"order_id": "5001"})
	require.NoError(t, p.Publish(context.Background(), evt))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, []byte("5001"), msg.Key)
	assert.Equal(t, string(TypeOrderIngested), headerValue(msg.Headers, "event_type"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, "5001", decoded.Payload["order_id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherReturnsWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w, zap.NewNop(), nil)

	err := p.Publish(context.Background(), New(context.Background(), TypeCommissionPaid, "1", "a", nil))
	assert.EqualError(t, err, "broker down")
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "events", zap.NewNop(), nil)
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestLogPublisherNeverFails(t *testing.T) {
	p := NewLogPublisher(zap.NewNop(), nil)
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeSyncRunFinished}))
}
