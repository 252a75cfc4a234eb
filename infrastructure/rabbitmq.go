package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"review-workflow/domain"
)

// RabbitMQ publishes and consumes workflow events on a durable queue.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	log     logrus.FieldLogger
}

func NewRabbitMQ(url, queue string, log logrus.FieldLogger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	log.WithField("queue", q.Name).Info("✅ Connected to RabbitMQ and declared queue")
	return &RabbitMQ{conn: conn, channel: ch, queue: q, log: log}, nil
}

// Publish sends e as a persistent JSON message.
func (r *RabbitMQ) Publish(ctx context.Context, e domain.WorkflowEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.channel.PublishWithContext(
		ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Type:         string(e.Operation),
			Timestamp:    e.OccurredAt,
			Body:         body,
		},
	)
}

// ConsumeEvents delivers queued events to handler until the channel closes.
// A handler error requeues nothing; the message is dropped after logging.
func (r *RabbitMQ) ConsumeEvents(handler func(domain.WorkflowEvent) error) error {
	msgs, err := r.channel.Consume(
		r.queue.Name,
		"",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			e, err := DecodeEvent(d.Body)
			if err != nil {
				r.log.WithError(err).Warn("invalid event format")
				_ = d.Nack(false, false)
				continue
			}
			if err := handler(e); err != nil {
				r.log.WithError(err).WithField("event_id", e.ID).Error("event handler failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}()
	return nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// DecodeEvent parses a message body into a workflow event.
func DecodeEvent(body []byte) (domain.WorkflowEvent, error) {
	var e domain.WorkflowEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return domain.WorkflowEvent{}, err
	}
	if e.AssignmentID == "" || e.Operation == "" {
		return domain.WorkflowEvent{}, fmt.Errorf("event without assignment or operation")
	}
	return e, nil
}

// LogPublisher writes events to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e domain.WorkflowEvent) error {
	p.log.WithFields(EventFields(e)).Info("workflow event")
	return nil
}

// EventFields renders e as log fields.
func EventFields(e domain.WorkflowEvent) logrus.Fields {
	f := logrus.Fields{
		"event_id":      e.ID,
		"assignment_id": e.AssignmentID,
		"employee_id":   e.EmployeeID,
		"operation":     e.Operation,
		"to":            e.ToState,
	}
	if e.FromState != "" {
		f["from"] = e.FromState
	}
	if e.ActorID != "" {
		f["actor"] = e.ActorID
	}
	if e.Reason != "" {
		f["reason"] = e.Reason
	}
	return f
}
