// Package queue carries background work over RabbitMQ: analysis runs
// dispatched by the API and asynchronous file ingestion.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	AnalysisQueue = "analysis_queue"
	IngestQueue   = "ingest_queue"

	// MaxRetries is the number of redeliveries through the retry queue
	// before a message is parked in the dead-letter queue.
	MaxRetries = 10
	// RetryDelay is the time a message waits in the retry queue.
	RetryDelay = 10 * time.Second

	retryHeader = "x-retries"
)

// Queues lists every work queue the worker consumes.
var Queues = []string{AnalysisQueue, IngestQueue}

type Config struct {
	User     string
	Password string
	Host     string
	Port     string
}

func (c Config) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

func Dial(cfg Config) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	return conn, nil
}

// Declarer is the part of *amqp091.Channel used to declare queues.
type Declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
}

// Publisher is the part of *amqp091.Channel used to publish.
type Publisher interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp091.Publishing,
	) error
}

// SetupQueues declares every queue together with its _dlq and its _retry
// queue. The retry queue dead-letters back into the work queue after
// RetryDelay.
func SetupQueues(ch Declarer, queueNames []string) error {
	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err := ch.QueueDeclare(retryName, true, false, false, false, amqp091.Table{
			"x-message-ttl":             int32(RetryDelay.Milliseconds()),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": name,
		})
		if err != nil {
			return fmt.Errorf("declare %s: %w", retryName, err)
		}
	}
	return nil
}

// PublishFIFO publishes a persistent message to the default exchange.
func PublishFIFO(ctx context.Context, ch Publisher, queueName string, data []byte, headers amqp091.Table) error {
	return ch.PublishWithContext(ctx, "", queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}
