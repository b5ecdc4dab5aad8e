// README: Publishes booking status changes to the RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tripease/internal/modules/booking"
)

const (
	publishTimeout = 2 * time.Second
	queueSize      = 256
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type StatusChanged struct {
	BookingID         int64          `json:"bookingId"`
	From              booking.Status `json:"from"`
	To                booking.Status `json:"to"`
	CustomerID        int64          `json:"customerId"`
	DriverID          *int64         `json:"driverId,omitempty"`
	RideType          string         `json:"rideType"`
	SourceSystem      string         `json:"sourceSystem,omitempty"`
	ExternalBookingID int64          `json:"externalBookingId,omitempty"`
	OccurredAt        time.Time      `json:"occurredAt"`
}

type outgoing struct {
	bookingID int64
	key       string
	msg       amqp.Publishing
}

// Publisher hands events to a single background sender so callers never wait
// on the broker. Events are sent in the order they were enqueued.
type Publisher struct {
	ch       Channel
	exchange string
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan outgoing
	done   chan struct{}
}

func NewPublisher(ch Channel, exchange string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Publisher{
		ch:       ch,
		exchange: exchange,
		log:      log,
		queue:    make(chan outgoing, queueSize),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// RoutingKey is booking.status.<status>, e.g. booking.status.in_progress.
func RoutingKey(s booking.Status) string {
	return "booking.status." + strings.ToLower(string(s))
}

// BookingStatusChanged enqueues the event and returns immediately. When the
// queue is full or the publisher is closed the event is dropped and logged.
func (p *Publisher) BookingStatusChanged(_ context.Context, b *booking.Booking, from booking.Status) {
	msg := StatusChanged{
		BookingID:  b.ID,
		From:       from,
		To:         b.Status,
		CustomerID: b.CustomerID,
		DriverID:   b.DriverID,
		RideType:   string(b.RideType),
		OccurredAt: b.UpdatedAt,
	}
	if b.External != nil {
		msg.SourceSystem = b.External.SourceSystem
		msg.ExternalBookingID = b.External.ExternalBookingID
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("encode status event", zap.Error(err))
		return
	}
	out := outgoing{
		bookingID: b.ID,
		key:       RoutingKey(b.Status),
		msg: amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    msg.OccurredAt,
			Body:         body,
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("publisher closed, dropping status event", zap.Int64("booking_id", b.ID))
		return
	}
	select {
	case p.queue <- out:
	default:
		p.log.Warn("status event queue full, dropping",
			zap.Int64("booking_id", b.ID),
			zap.String("status", string(b.Status)),
		)
	}
}

// Close stops accepting events and waits for queued ones to be sent.
func (p *Publisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)
	for out := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.ch.PublishWithContext(ctx, p.exchange, out.key, false, false, out.msg)
		cancel()
		if err != nil {
			p.log.Warn("publish status event failed",
				zap.Int64("booking_id", out.bookingID),
				zap.String("routing_key", out.key),
				zap.Error(err),
			)
		}
	}
}
