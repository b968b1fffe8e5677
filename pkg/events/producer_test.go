package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_Created(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "records", testLogger())

	ctx := appctx.WithRequest(context.Background(), appctx.Request{ID: "req-42"})
	err := p.Created(ctx, "user", "id", []query.Record{
		{"id": int64(1), "name": "ann"},
		{"id": int64(2), "name": "bob"},
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 2)

	msg := w.messages[0]
	assert.Equal(t, "records", msg.Topic)
	assert.Equal(t, "user:1", string(msg.Key))
	assert.Equal(t, string(RecordCreated), header(msg, "event_type"))
	assert.Equal(t, "user", header(msg, "entity"))
	assert.Equal(t, SchemaVersion, header(msg, "schema_version"))
	assert.Equal(t, "req-42", header(msg, "request_id"))

	var event RecordEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "1", event.RecordID)
	assert.JSONEq(t, `{"id":1,"name":"ann"}`, string(event.Data))
	assert.False(t, event.Timestamp.IsZero())
}

func TestProducer_IDEvents(t *testing.T) {
	tests := []struct {
		name    string
		publish func(p *Producer) error
		want    EventType
	}{
		{
			name:    "updated",
			publish: func(p *Producer) error { return p.Updated(context.Background(), "order", []any{int64(7), "8"}) },
			want:    RecordUpdated,
		},
		{
			name:    "deleted",
			publish: func(p *Producer) error { return p.Deleted(context.Background(), "order", []any{int64(7), "8"}) },
			want:    RecordDeleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			require.NoError(t, tt.publish(newProducer(w, "records", testLogger())))
			require.Len(t, w.messages, 2)
			assert.Equal(t, "order:7", string(w.messages[0].Key))
			assert.Equal(t, "order:8", string(w.messages[1].Key))
			assert.Equal(t, string(tt.want), header(w.messages[1], "event_type"))
		})
	}
}

func TestProducer_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, "records", testLogger())

	err := p.Deleted(context.Background(), "user", []any{1})
	assert.ErrorContains(t, err, "broker down")

	assert.NoError(t, p.Deleted(context.Background(), "user", nil), "empty batches are not written")
}
