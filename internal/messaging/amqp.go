// Package messaging publishes live affect updates to an AMQP exchange.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"stresscam/internal/metrics"
	"stresscam/internal/monitor"
)

// ErrNotConfigured is returned when the URL or exchange is missing
var ErrNotConfigured = errors.New("AMQP URL or exchange not configured")

// DefaultRoutingKey is used for affect updates when none is configured
const DefaultRoutingKey = "affect.update"

// Config holds publisher settings
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// channel is the subset of *amqp.Channel the publisher uses
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a connection and a channel on it
type dialFunc func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to AMQP server: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	return ch, conn, nil
}

// Publisher sends each affect update as JSON to a topic exchange. It connects
// lazily and reconnects on the next publish after a failure.
type Publisher struct {
	config Config
	dial   dialFunc
	logger *logrus.Entry

	mu      sync.Mutex
	channel channel
	conn    io.Closer
}

// NewPublisher creates a publisher; no connection is made until the first publish
func NewPublisher(config Config, logger *logrus.Logger) *Publisher {
	if config.RoutingKey == "" {
		config.RoutingKey = DefaultRoutingKey
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Publisher{
		config: config,
		dial:   dialAMQP,
		logger: logger.WithFields(logrus.Fields{"component": "amqp", "exchange": config.Exchange}),
	}
}

// connect must be called with mu held
func (p *Publisher) connect() error {
	if p.channel != nil {
		return nil
	}
	if p.config.URL == "" || p.config.Exchange == "" {
		return ErrNotConfigured
	}

	ch, conn, err := p.dial(p.config.URL)
	if err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(
		p.config.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.config.Exchange, err)
	}

	p.channel = ch
	p.conn = conn
	p.logger.Info("Connected to AMQP server")
	return nil
}

// disconnect must be called with mu held
func (p *Publisher) disconnect() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.channel = nil
	p.conn = nil
}

// Publish sends one update
func (p *Publisher) Publish(update *monitor.Update) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(); err != nil {
		return err
	}

	err = p.channel.Publish(
		p.config.Exchange,
		p.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    update.Timestamp,
			Type:         DefaultRoutingKey,
			AppId:        "stresscam",
			Headers: amqp.Table{
				"session_id":    update.SessionID,
				"face_detected": update.FaceDetected,
				"high_stress":   update.HighStress,
			},
			Body: body,
		},
	)
	if err != nil {
		p.disconnect()
		return fmt.Errorf("failed to publish update: %w", err)
	}
	return nil
}

// OnUpdate implements monitor.UpdateHandler. Failures are logged and counted.
func (p *Publisher) OnUpdate(update *monitor.Update) {
	if err := p.Publish(update); err != nil {
		metrics.RecordAMQPPublish("error")
		p.logger.WithError(err).Warn("AMQP publish failed")
		return
	}
	metrics.RecordAMQPPublish("ok")
}

// Close drops the connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnect()
	return nil
}
