package shipper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/hydrowatch/hydrowatch/agent/internal/config"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// SummaryMessage is the Kafka value published per location and run.
type SummaryMessage struct {
	RunID             string                `json:"run_id"`
	AsOf              types.Date            `json:"as_of"`
	LocationCode      string                `json:"location_code"`
	Summary           types.LocationSummary `json:"summary"`
	CurrentlyDiverted bool                  `json:"currently_diverted"`
	RecentPoorDays    int                   `json:"recent_poor_days"`
	DaysSinceLastData int                   `json:"days_since_last_data"`
	MissingChannels   []string              `json:"missing_channels,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one summary message per location, keyed by location
// code so a location's history stays on one partition.
type KafkaSink struct {
	w messageWriter
}

// NewKafkaSink returns a sink writing to cfg.Topic on cfg.Brokers.
func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	return &KafkaSink{w: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

// Publish writes the report's location summaries in one batch.
func (k *KafkaSink) Publish(ctx context.Context, r *types.Report) error {
	msgs, err := summaryMessages(r)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write summaries: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaSink) Close() error { return k.w.Close() }

func summaryMessages(r *types.Report) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(r.Locations))
	for _, loc := range r.Locations {
		value, err := json.Marshal(SummaryMessage{
			RunID:             r.RunID,
			AsOf:              r.AsOf,
			LocationCode:      loc.LocationCode,
			Summary:           loc.Summary,
			CurrentlyDiverted: loc.CurrentlyDiverted,
			RecentPoorDays:    loc.RecentPoorDays,
			DaysSinceLastData: loc.DaysSinceLastData,
			MissingChannels:   loc.MissingChannels,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka: encode %s: %w", loc.LocationCode, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(loc.LocationCode),
			Value: value,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(r.RunID)},
			},
		})
	}
	return msgs, nil
}
