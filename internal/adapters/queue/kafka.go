package queue

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
	"hermes/pkg/menu"
)

// KafkaDriver implements the update-queue transport on kafka. Each instance
// consumes with its own group id so every instance sees every message, mirroring
// the fan-out semantics of the pub/sub drivers.
type KafkaDriver struct {
	brokers []string
	groupID string
	log     *logger.Logger

	writers map[string]*kafka.Writer
	readers []*kafka.Reader
	cancel  []context.CancelFunc
}

var _ menu.Driver = (*KafkaDriver)(nil)

// NewKafkaDriver creates a kafka-backed queue driver. groupID is a prefix; the
// actual consumer group is unique per instance, so two processes sharing a
// prefix never split a topic's messages between them.
func NewKafkaDriver(brokers []string, groupID string, log *logger.Logger) *KafkaDriver {
	return &KafkaDriver{
		brokers: brokers,
		groupID: groupID + "-" + uuid.NewString(),
		log:     log.With("component", "queue_kafka"),
		writers: make(map[string]*kafka.Writer),
	}
}

// kafkaTopic rewrites logical topic names into kafka-legal ones. Logical names
// use ':' as a namespace separator, which kafka rejects.
func kafkaTopic(topic string) string {
	return strings.ReplaceAll(topic, ":", ".")
}

func (d *KafkaDriver) Publish(ctx context.Context, topic string, payload []byte) error {
	err := d.writer(kafkaTopic(topic)).WriteMessages(ctx, kafka.Message{Value: payload})
	metrics.RecordQueueMessage(topic, "published", err)
	if err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

// Subscribe starts a consume loop for the topic on a dedicated goroutine.
func (d *KafkaDriver) Subscribe(_ context.Context, topic string, handler func(ctx context.Context, payload []byte)) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     d.brokers,
		GroupID:     d.groupID,
		Topic:       kafkaTopic(topic),
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	d.readers = append(d.readers, reader)
	d.cancel = append(d.cancel, cancel)

	go func() {
		for {
			msg, err := reader.ReadMessage(runCtx)
			if err != nil {
				if runCtx.Err() != nil {
					return
				}
				d.log.Errorw("Failed to read message", "topic", topic, "error", err)
				continue
			}
			metrics.RecordQueueMessage(topic, "consumed", nil)
			handler(runCtx, msg.Value)
		}
	}()

	d.log.Infow("Subscribed to topic", "topic", kafkaTopic(topic), "group_id", d.groupID)
	return nil
}

func (d *KafkaDriver) writer(topic string) *kafka.Writer {
	if w, ok := d.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(d.brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	d.writers[topic] = w
	return w
}

func (d *KafkaDriver) Close() error {
	for _, cancel := range d.cancel {
		cancel()
	}
	merr := &errors.MultiError{}
	for _, w := range d.writers {
		merr.Add(w.Close())
	}
	for _, r := range d.readers {
		merr.Add(r.Close())
	}
	return merr.ToError()
}
