// Package broker is an in-process messaging fabric: work queues with
// competing consumers and at-least-once delivery, plus fan-out topics with
// at-most-once delivery. It is the only shared mutable resource between the
// gateway and the workers; swapping in a networked broker later should not
// leak past this package.
package broker

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arcadelab/pusher/internal/core"
)

var ErrStopped = errors.New("broker stopped")

const (
	queueDepth      = 256
	subscriberDepth = 64
	maxAttempts     = 2
)

type delivery struct {
	payload  []byte
	attempts int
}

type Broker struct {
	mu      sync.Mutex
	queues  map[string]chan delivery
	topics  map[string]map[chan []byte]struct{}
	claims  *claimTable
	done    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

func New() *Broker {
	return &Broker{
		queues: make(map[string]chan delivery),
		topics: make(map[string]map[chan []byte]struct{}),
		claims: newClaimTable(),
		done:   make(chan struct{}),
	}
}

func (b *Broker) queue(name string) (chan delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, ErrStopped
	}
	q, ok := b.queues[name]
	if !ok {
		q = make(chan delivery, queueDepth)
		b.queues[name] = q
	}
	return q, nil
}

// PublishWork appends a message to the named queue. The error path matters:
// a caller that cannot enqueue must fail its request now, not register a
// pending call doomed to time out.
func (b *Broker) PublishWork(queue string, payload []byte) error {
	q, err := b.queue(queue)
	if err != nil {
		return err
	}
	select {
	case q <- delivery{payload: payload, attempts: 1}:
		return nil
	case <-b.done:
		return ErrStopped
	}
}

// ConsumeWork registers a competing consumer. Each message goes to exactly
// one of the queue's consumers. A handler error or panic requeues the
// message once, so duplicate delivery is possible and expected.
func (b *Broker) ConsumeWork(queue string, h core.WorkHandler) {
	q, err := b.queue(queue)
	if err != nil {
		log.Warn().Str("module", "broker").Str("queue", queue).Msg("consume on stopped broker")
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.done:
				return
			case d := <-q:
				if err := b.deliver(h, d.payload); err != nil {
					if d.attempts >= maxAttempts {
						log.Error().Err(err).Str("module", "broker").Str("queue", queue).Msg("dropping poisoned message")
						continue
					}
					d.attempts++
					// Never block a consumer on its own full queue;
					// losing the redelivery beats wedging the consumer.
					select {
					case q <- d:
					default:
						log.Error().Err(err).Str("module", "broker").Str("queue", queue).Msg("dropping redelivery, queue full")
					}
				}
			}
		}
	}()
}

func (b *Broker) deliver(h core.WorkHandler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("handler panic")
			log.Error().Str("module", "broker").Any("panic", r).Msg("work handler panicked")
		}
	}()
	return h(payload)
}

// PublishTopic fans the message out to every active subscriber. Slow
// subscribers drop the message rather than stall the publisher.
func (b *Broker) PublishTopic(topic string, payload []byte) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrStopped
	}
	subs := make([]chan []byte, 0, len(b.topics[topic]))
	for ch := range b.topics[topic] {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *Broker) SubscribeTopic(topic string, h core.TopicHandler) {
	ch := make(chan []byte, subscriberDepth)
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[chan []byte]struct{})
	}
	b.topics[topic][ch] = struct{}{}
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.done:
				return
			case payload := <-ch:
				h(payload)
			}
		}
	}()
}

func (b *Broker) Claims() core.ClaimRegistry { return b.claims }

// Stop releases all consumers and subscribers. Idempotent.
func (b *Broker) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	log.Info().Str("module", "broker").Msg("stopped")
}
