package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"

	"fraud_scoring/internal/config"
	"fraud_scoring/internal/domain"
)

// ErrNotConnected is returned when Run is called before a successful
// Connect. A connection failure at startup is fatal; mid-run failures are
// logged and the loop drains cleanly.
var ErrNotConnected = errors.New("stream processor is not connected")

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRunning
	StateStopped
)

// Publisher abstracts the outbound transport. Publish failures are logged
// by the caller and never halt the consume loop.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type kafkaPublisher struct {
	producer *kafka.Producer
}

func (p *kafkaPublisher) Publish(topic string, payload []byte) error {
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          payload,
	}, nil)
}

// inboundTransaction is the raw message shape. Optional fields deserialize
// defensively; only unparseable payloads count as errors.
type inboundTransaction struct {
	TransactionID string `json:"transaction_id"`
	CustomerID    string `json:"cst_dim_id"`
	domain.TransactionFeatures
}

// Processor is the consume-score-publish loop: it polls raw transactions,
// scores them against the scoring service, publishes scored results and
// fraud alerts, and emits aggregate metrics periodically and on shutdown.
type Processor struct {
	cfg      *config.Config
	consumer *kafka.Consumer
	producer *kafka.Producer
	pub      Publisher
	client   *ScoringClient
	state    atomic.Int32
	stopCh   chan struct{}

	processed atomic.Int64
	blocked   atomic.Int64
	errCount  atomic.Int64

	logger *slog.Logger
}

func NewProcessor(cfg *config.Config, client *ScoringClient, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:    cfg,
		client: client,
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

func (p *Processor) State() State {
	return State(p.state.Load())
}

// Connect establishes the consumer and producer. It must succeed before Run.
func (p *Processor) Connect() error {
	p.state.Store(int32(StateConnecting))

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  p.cfg.KafkaBrokers,
		"group.id":           p.cfg.KafkaGroupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
	})
	if err != nil {
		p.state.Store(int32(StateDisconnected))
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if err := consumer.SubscribeTopics([]string{p.cfg.TopicRaw}, nil); err != nil {
		consumer.Close()
		p.state.Store(int32(StateDisconnected))
		return fmt.Errorf("failed to subscribe to %s: %w", p.cfg.TopicRaw, err)
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": p.cfg.KafkaBrokers,
		"acks":              "all",
		"retries":           3,
	})
	if err != nil {
		consumer.Close()
		p.state.Store(int32(StateDisconnected))
		return fmt.Errorf("failed to create producer: %w", err)
	}

	p.consumer = consumer
	p.producer = producer
	p.pub = &kafkaPublisher{producer: producer}

	p.logger.Info("Connected to Kafka",
		slog.String("brokers", p.cfg.KafkaBrokers),
		slog.String("inbound_topic", p.cfg.TopicRaw))
	return nil
}

// Run consumes until Stop is called or a fatal transport error occurs. The
// stop signal is checked once per iteration; on stop the final metrics are
// flushed and the connection released before returning.
func (p *Processor) Run(ctx context.Context) error {
	if p.consumer == nil {
		return ErrNotConnected
	}

	p.state.Store(int32(StateRunning))
	p.logger.Info("Starting stream processor")

	pollMs := int(p.cfg.PollTimeout.Milliseconds())

loop:
	for {
		select {
		case <-p.stopCh:
			p.logger.Info("Stop signal received, draining")
			break loop
		case <-ctx.Done():
			p.logger.Info("Context cancelled, draining")
			break loop
		default:
		}

		ev := p.consumer.Poll(pollMs)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			p.handleMessage(ctx, e.Value)
			if _, err := p.consumer.CommitMessage(e); err != nil {
				p.logger.Error("Offset commit failed", slog.String("error", err.Error()))
			}
		case kafka.Error:
			if e.IsFatal() {
				p.logger.Error("Fatal transport error, draining", slog.String("error", e.Error()))
				break loop
			}
			p.logger.Warn("Transport error", slog.String("error", e.Error()))
		}
	}

	p.publishMetrics()
	p.disconnect()
	p.state.Store(int32(StateStopped))
	p.logger.Info("Stream processor stopped",
		slog.Int64("processed", p.processed.Load()),
		slog.Int64("blocked", p.blocked.Load()),
		slog.Int64("errors", p.errCount.Load()))
	return nil
}

// Stop requests a cooperative shutdown.
func (p *Processor) Stop() {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
}

func (p *Processor) handleMessage(ctx context.Context, payload []byte) {
	inbound, err := decodeInbound(payload)
	if err != nil {
		p.errCount.Add(1)
		p.logger.Error("Failed to decode message", slog.String("error", err.Error()))
		return
	}

	outcome := p.client.Score(ctx, &inbound.TransactionFeatures)

	scored := domain.ScoredTransaction{
		TransactionID:    inbound.TransactionID,
		CustomerID:       inbound.CustomerID,
		Amount:           inbound.Amount,
		FraudProbability: outcome.FraudProbability,
		FraudScore:       outcome.FraudScore,
		RiskLevel:        outcome.RiskLevel,
		ShouldBlock:      outcome.ShouldBlock,
		TopRiskFactors:   outcome.TopRiskFactors,
		ProcessedAt:      time.Now(),
		ProcessingTimeMs: outcome.ProcessingTimeMs,
	}

	p.publish(p.cfg.TopicScored, scored)

	if scored.RiskLevel == domain.RiskHigh || scored.RiskLevel == domain.RiskCritical {
		p.publishAlert(&scored)
	}

	p.processed.Add(1)
	if scored.ShouldBlock {
		p.blocked.Add(1)
	}
	if !outcome.Success {
		p.errCount.Add(1)
	}

	p.logger.Info("Transaction processed",
		slog.String("transaction_id", scored.TransactionID),
		slog.Float64("fraud_score", scored.FraudScore),
		slog.String("risk_level", string(scored.RiskLevel)),
		slog.Float64("processing_time_ms", scored.ProcessingTimeMs))

	if processed := p.processed.Load(); processed > 0 && processed%int64(p.cfg.MetricsInterval) == 0 {
		p.publishMetrics()
	}
}

func (p *Processor) publishAlert(scored *domain.ScoredTransaction) {
	action := "FLAGGED"
	if scored.ShouldBlock {
		action = "BLOCKED"
	}

	topFactors := scored.TopRiskFactors
	if len(topFactors) > 3 {
		topFactors = topFactors[:3]
	}

	now := time.Now()
	alert := domain.FraudAlert{
		AlertID:        fmt.Sprintf("ALERT_%s_%s", scored.TransactionID, now.Format("20060102150405")),
		TransactionID:  scored.TransactionID,
		CustomerID:     scored.CustomerID,
		Amount:         scored.Amount,
		FraudScore:     scored.FraudScore,
		RiskLevel:      scored.RiskLevel,
		TopFactors:     topFactors,
		Action:         action,
		Timestamp:      now,
		RequiresReview: true,
	}

	p.publish(p.cfg.TopicAlerts, alert)
	p.logger.Warn("Fraud alert published",
		slog.String("alert_id", alert.AlertID),
		slog.Float64("fraud_score", alert.FraudScore))
}

func (p *Processor) publishMetrics() {
	processed := p.processed.Load()
	blocked := p.blocked.Load()

	denominator := processed
	if denominator == 0 {
		denominator = 1
	}

	p.publish(p.cfg.TopicMetrics, domain.StreamMetrics{
		Timestamp:      time.Now(),
		ProcessedCount: processed,
		BlockedCount:   blocked,
		ErrorCount:     p.errCount.Load(),
		BlockRate:      float64(blocked) / float64(denominator) * 100,
	})
}

// publish marshals and sends one message. A publish failure is logged and
// dropped: losing an outbound message is preferable to stalling ingestion.
func (p *Processor) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("Failed to marshal outbound message",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
		return
	}
	if err := p.pub.Publish(topic, payload); err != nil {
		p.logger.Error("Failed to publish message",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
	}
}

func (p *Processor) disconnect() {
	if p.consumer != nil {
		if err := p.consumer.Close(); err != nil {
			p.logger.Error("Consumer close failed", slog.String("error", err.Error()))
		}
	}
	if p.producer != nil {
		p.producer.Flush(int(p.cfg.ScoreTimeout.Milliseconds()))
		p.producer.Close()
	}
	p.logger.Info("Disconnected from Kafka")
}

func decodeInbound(payload []byte) (*inboundTransaction, error) {
	var inbound inboundTransaction
	if err := json.Unmarshal(payload, &inbound); err != nil {
		return nil, err
	}

	if inbound.TransactionID == "" {
		inbound.TransactionID = "TXN_" + uuid.NewString()
	}
	if inbound.CustomerID == "" {
		inbound.CustomerID = "unknown"
	}
	if inbound.Direction == "" {
		inbound.Direction = "unknown"
	}
	return &inbound, nil
}
