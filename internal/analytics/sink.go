package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ec-storefront-client/internal/apiclient"
	"github.com/example/ec-storefront-client/internal/money"
	"github.com/segmentio/kafka-go"
)

// Sink delivers batches of events.
type Sink interface {
	Send(ctx context.Context, events []Event) error
	Close() error
}

// BatchResult is the backend's answer to a batch upload.
type BatchResult struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

type poster interface {
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
}

// HTTPSink posts batches to /events/batch through the API client.
type HTTPSink struct {
	api poster
}

func NewHTTPSink(api poster) *HTTPSink {
	return &HTTPSink{api: api}
}

func (s *HTTPSink) Send(ctx context.Context, events []Event) error {
	_, err := s.SendBatch(ctx, events)
	return err
}

// SendBatch uploads events and reports how the backend counted them.
func (s *HTTPSink) SendBatch(ctx context.Context, events []Event) (BatchResult, error) {
	body := map[string]any{"events": events}
	var res BatchResult
	if err := s.api.Post(ctx, "/events/batch", body, &res, apiclient.SendDollars()); err != nil {
		return BatchResult{}, fmt.Errorf("send %d events: %w", len(events), err)
	}
	return res, nil
}

func (s *HTTPSink) Close() error { return nil }

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each event as a message keyed by session id, so one
// session's events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Send(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		e.Metadata = dollarsMetadata(e.Metadata)
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.SessionID),
			Value: data,
			Time:  e.EventTime,
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func dollarsMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out, _ := money.ConvertMoneyFieldsToDollars(md).(map[string]any)
	return out
}

// DiscardSink drops every batch. Used when analytics is switched off.
type DiscardSink struct{}

func (DiscardSink) Send(context.Context, []Event) error { return nil }
func (DiscardSink) Close() error                        { return nil }
