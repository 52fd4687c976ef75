// Package kafka mirrors persisted audit records onto a Kafka topic for SIEM
// and long-term retention pipelines. Delivery is asynchronous; failures are
// logged and counted but never reach the request path.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "mediconnect/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Metrics counts sink outcomes.
type Metrics struct {
	Published prometheus.Counter
	Failed    prometheus.Counter
}

// NewMetrics registers sink metrics with reg; nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "mediconnect_audit_kafka_published_total",
			Help: "Audit records acknowledged by Kafka",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "mediconnect_audit_kafka_failed_total",
			Help: "Audit records Kafka failed to accept",
		}),
	}
}

// Sink implements audit.Sink.
type Sink struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets a logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

func New(producer Producer, topic string, opts ...Option) *Sink {
	s := &Sink{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish serializes record with its wire field names and produces it keyed
// by record id.
func (s *Sink) Publish(ctx context.Context, record audit.Record) {
	payload, err := json.Marshal(record)
	if err != nil {
		s.fail(ctx, record, err)
		return
	}

	msg := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(strconv.FormatInt(int64(record.ID), 10)),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(record.Action)},
			{Key: "resource_type", Value: []byte(record.ResourceType)},
		},
		Timestamp: record.Timestamp,
	}
	s.producer.Produce(context.WithoutCancel(ctx), msg, func(_ *kgo.Record, err error) {
		if err != nil {
			s.fail(ctx, record, err)
			return
		}
		if s.metrics != nil {
			s.metrics.Published.Inc()
		}
	})
}

func (s *Sink) fail(ctx context.Context, record audit.Record, err error) {
	if s.metrics != nil {
		s.metrics.Failed.Inc()
	}
	s.logger.ErrorContext(ctx, "audit kafka publish failed",
		"record_id", record.ID,
		"topic", s.topic,
		"error", err,
	)
}

// NewClient builds a franz-go producer client for the audit topic.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10*time.Millisecond),
	)
}
