package queue

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"hermes/internal/adapters/redis"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
	"hermes/pkg/menu"
)

// RedisDriver implements the update-queue transport on redis pub/sub. Every
// running instance receives every message, which is exactly what the queue
// wants: only the instance holding a session acts on it.
type RedisDriver struct {
	client *redis.Client
	log    *logger.Logger

	subs   []*goredis.PubSub
	cancel []context.CancelFunc
}

var _ menu.Driver = (*RedisDriver)(nil)

// NewRedisDriver creates a pub/sub driver on an established redis client.
func NewRedisDriver(client *redis.Client, log *logger.Logger) *RedisDriver {
	return &RedisDriver{
		client: client,
		log:    log.With("component", "queue_redis"),
	}
}

func (d *RedisDriver) Publish(ctx context.Context, topic string, payload []byte) error {
	err := d.client.Raw().Publish(ctx, topic, payload).Err()
	metrics.RecordQueueMessage(topic, "published", err)
	if err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

// Subscribe starts a delivery goroutine for the topic. It returns after the
// subscription is confirmed, so a publish immediately after Subscribe is not
// lost.
func (d *RedisDriver) Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte)) error {
	sub := d.client.Raw().Subscribe(ctx, topic)

	// Receive forces the SUBSCRIBE round trip before we return.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errors.Wrapf(err, "subscribe to %s", topic)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d.subs = append(d.subs, sub)
	d.cancel = append(d.cancel, cancel)

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				metrics.RecordQueueMessage(topic, "consumed", nil)
				handler(runCtx, []byte(msg.Payload))
			}
		}
	}()

	d.log.Infow("Subscribed to topic", "topic", topic)
	return nil
}

func (d *RedisDriver) Close() error {
	for _, cancel := range d.cancel {
		cancel()
	}
	merr := &errors.MultiError{}
	for _, sub := range d.subs {
		merr.Add(sub.Close())
	}
	return merr.ToError()
}
