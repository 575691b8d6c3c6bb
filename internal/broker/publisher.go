package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"fleet-tracking/internal/domain"
)

const (
	trackingExchange = "tracking_fanout"
	syncExchange     = "sync_topic"
	syncQueueName    = "sync_enqueued"
	syncRoutingBase  = "sync.enqueued."
)

// Publisher pushes projection updates to external dispatch consumers and
// wake-up messages to the sync worker.
type Publisher struct {
	logger    *slog.Logger
	conn      *amqp091.Connection
	connClose chan *amqp091.Error
	ch        *amqp091.Channel
	isClosed  atomic.Bool
}

func NewPublisher(dsn string, slogger *slog.Logger) (*Publisher, error) {
	p := &Publisher{logger: slogger}
	if err := p.createChannel(dsn); err != nil {
		return nil, err
	}
	go p.reconnectConn(dsn)
	return p, nil
}

func (p *Publisher) createChannel(dsn string) error {
	conn, err := amqp091.Dial(dsn)
	if err != nil {
		return err
	}
	p.conn = conn
	p.connClose = make(chan *amqp091.Error)
	p.conn.NotifyClose(p.connClose)

	ch, err := conn.Channel()
	if err != nil {
		return errors.Join(conn.Close(), err)
	}
	p.ch = ch

	err = ch.ExchangeDeclare(
		trackingExchange, // name
		"fanout",         // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return errors.Join(conn.Close(), err)
	}

	err = ch.ExchangeDeclare(
		syncExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Join(conn.Close(), err)
	}
	return nil
}

func (p *Publisher) reconnectConn(dsn string) {
	for {
		<-p.connClose
		if p.isClosed.Load() {
			return
		}
		p.logger.Warn("rabbitMQ not working")
		for {
			if p.isClosed.Load() {
				return
			}
			p.logger.Info("trying to connect to rabbitmq")
			err := p.createChannel(dsn)
			if err != nil {
				time.Sleep(3 * time.Second)
				continue
			}
			p.logger.Info("connected to rabbitmq")
			break
		}
	}
}

// PublishView fans a driver view out to dispatch consumers.
func (p *Publisher) PublishView(view domain.DriverView) {
	body, err := json.Marshal(view)
	if err != nil {
		p.logger.Error("cannot marshal driver view", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, trackingExchange, "", false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("cannot publish driver view", "driver_id", view.DriverID, "error", err)
	}
}

func (p *Publisher) PublishSyncEnqueued(ctx context.Context, deviceID uuid.UUID) error {
	return p.ch.PublishWithContext(ctx, syncExchange, syncRoutingBase+deviceID.String(), false, false, amqp091.Publishing{
		ContentType: "text/plain",
		Body:        []byte(deviceID.String()),
	})
}

func (p *Publisher) CloseRabbit() error {
	p.isClosed.Store(true)
	defer p.logger.Info("rabbit closed")
	return p.conn.Close()
}
