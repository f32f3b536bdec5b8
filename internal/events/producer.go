package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"pledgeball_sync/internal/metrics"
	"pledgeball_sync/internal/models"
)

// DeliveryEvent is published for every pledge confirmed delivered to
// Pledgeball, whether on first attempt or via the queue runner. Downstream
// consumers (CRM sync and the like) feed off this stream.
type DeliveryEvent struct {
	EventID           int64                 `json:"eo_event_id"`
	PledgeballEventID int64                 `json:"pledgeball_event_id"`
	Email             string                `json:"email"`
	Pledges           []models.PledgeChoice `json:"pledges"`
	PledgeIDs         []int64               `json:"pledge_ids"`
	Source            string                `json:"source"`
	DeliveredAt       time.Time             `json:"delivered_at"`
}

type Producer struct {
	topic    string
	producer sarama.SyncProducer
}

func NewSyncProducer(brokers []string, topic string) (*Producer, error) {
	cfg := sarama.NewConfig()

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 500 * time.Millisecond

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create sarama sync producer: %w", err)
	}

	return &Producer{
		topic:    topic,
		producer: prod,
	}, nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

// PublishDelivery sends a delivery event, keyed by the local event id so all
// deliveries for one event land on the same partition.
func (p *Producer) PublishDelivery(sub *models.Submission, resp *models.RemoteResponse, source string) error {
	if sub == nil {
		return fmt.Errorf("submission is nil")
	}
	if source == "" {
		source = "dispatch"
	}

	ev := DeliveryEvent{
		EventID:           sub.EventID,
		PledgeballEventID: sub.PledgeballEventID,
		Email:             sub.Email,
		Pledges:           sub.Pledges,
		Source:            source,
		DeliveredAt:       time.Now().UTC(),
	}
	if resp != nil {
		ev.PledgeIDs = resp.PledgeIDs
	}

	b, err := json.Marshal(ev)
	if err != nil {
		metrics.IncDeliveryEventError()
		return fmt.Errorf("marshal delivery event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(strconv.FormatInt(sub.EventID, 10)),
		Value:     sarama.ByteEncoder(b),
		Timestamp: time.Now(),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		metrics.IncDeliveryEventError()
		return fmt.Errorf("send delivery event: %w", err)
	}

	metrics.IncDeliveryEventPublished()
	return nil
}
