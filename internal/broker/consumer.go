package broker

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// SyncConsumer receives enqueue wake-ups for the sync worker. One consumer
// per worker process; the queue is durable so wake-ups survive restarts.
type SyncConsumer struct {
	logger    *slog.Logger
	conn      *amqp091.Connection
	connClose chan *amqp091.Error
	wake      chan string
	isClosed  atomic.Bool
}

func NewSyncConsumer(dsn string, slogger *slog.Logger) (*SyncConsumer, error) {
	c := &SyncConsumer{
		logger: slogger,
		wake:   make(chan string),
	}
	if err := c.createChannel(dsn); err != nil {
		return nil, err
	}
	go c.reconnectConn(dsn)
	return c, nil
}

// WakeUps yields device ids whose queue just received a batch.
func (c *SyncConsumer) WakeUps() <-chan string {
	return c.wake
}

func (c *SyncConsumer) createChannel(dsn string) error {
	conn, err := amqp091.Dial(dsn)
	if err != nil {
		return err
	}
	c.conn = conn
	c.connClose = make(chan *amqp091.Error)
	c.conn.NotifyClose(c.connClose)

	ch, err := conn.Channel()
	if err != nil {
		return errors.Join(conn.Close(), err)
	}

	err = ch.ExchangeDeclare(
		syncExchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return errors.Join(conn.Close(), err)
	}

	que, err := ch.QueueDeclare(syncQueueName, true, false, false, false, nil)
	if err != nil {
		return errors.Join(conn.Close(), err)
	}
	err = ch.QueueBind(que.Name, syncRoutingBase+"*", syncExchange, false, nil)
	if err != nil {
		return errors.Join(conn.Close(), err)
	}

	deliveries, err := ch.Consume(
		que.Name,
		"",    // consumer tag
		true,  // auto-ack: the wake-up is only a hint, the db queue is the record
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return errors.Join(conn.Close(), err)
	}

	go func() {
		for d := range deliveries {
			if c.isClosed.Load() {
				return
			}
			c.wake <- string(d.Body)
		}
	}()
	return nil
}

func (c *SyncConsumer) reconnectConn(dsn string) {
	for {
		<-c.connClose
		if c.isClosed.Load() {
			return
		}
		c.logger.Warn("rabbitMQ not working")
		for {
			if c.isClosed.Load() {
				return
			}
			c.logger.Info("trying to connect to rabbitmq")
			err := c.createChannel(dsn)
			if err != nil {
				time.Sleep(3 * time.Second)
				continue
			}
			c.logger.Info("connected to rabbitmq")
			break
		}
	}
}

func (c *SyncConsumer) CloseRabbit() error {
	c.isClosed.Store(true)
	defer c.logger.Info("rabbit closed")
	return c.conn.Close()
}
