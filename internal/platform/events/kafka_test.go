package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishWrapsPayloadInEnvelope(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(fw, nil)
	p.now = func() time.Time { return time.Date(2024, 1, 2, 0, 5, 0, 0, time.UTC) }

	err := p.Publish(context.Background(), InvoiceCreated, "42", map[string]int64{"invoice_id": 42})
	require.NoError(t, err)
	require.Len(t, fw.msgs, 1)
	require.Equal(t, "42", string(fw.msgs[0].Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &env))
	require.Equal(t, InvoiceCreated, env.Kind)
	require.JSONEq(t, `{"invoice_id":42}`, string(env.Data))
	require.Equal(t, "kind", fw.msgs[0].Headers[0].Key)
}

func TestPublishReturnsWriterError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaPublisherWithWriter(fw, nil)

	err := p.Publish(context.Background(), InvoiceVerified, "1", struct{}{})
	require.ErrorContains(t, err, "broker down")
}
