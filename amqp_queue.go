package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AMPQClient keeps a confirmed publishing channel open, reconnecting when the broker drops it.
type AMPQClient struct {
	m               *sync.Mutex
	confirmM        sync.Mutex
	queues          []string
	logManager      *LogManager
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan bool
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	isReady         bool
}

const (
	reconnectDelay = 5 * time.Second
	reInitDelay    = 2 * time.Second
	resendDelay    = 2 * time.Second
)

// Close will cleanly shut down the channel and connection.
func (client *AMPQClient) Close() error {
	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady {
		return fmt.Errorf("connection already closed")
	}
	close(client.done)
	if err := client.channel.Close(); err != nil {
		return err
	}
	if err := client.connection.Close(); err != nil {
		return err
	}

	client.isReady = false
	return nil
}

// NewMsgQueueClient creates a new AMPQClient and connects in the background.
func NewMsgQueueClient(addr string, queues []string, lm *LogManager) *AMPQClient {
	client := newAMPQClient(queues, lm)
	go client.handleReconnect(addr)
	return client
}

func newAMPQClient(queues []string, lm *LogManager) *AMPQClient {
	return &AMPQClient{
		m:          &sync.Mutex{},
		queues:     queues,
		logManager: lm,
		done:       make(chan bool),
	}
}

func (client *AMPQClient) log(event string, level logrus.Level, err error) {
	client.logManager.SendLog(client.logManager.BuildLog("AMQP", event, level, nil, err))
}

func (client *AMPQClient) handleReconnect(addr string) {
	for {
		client.m.Lock()
		client.isReady = false
		client.m.Unlock()

		conn, err := client.connect(addr)
		if err != nil {
			client.log("ConnectFailed", logrus.WarnLevel, err)
			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			break
		}
	}
}

func (client *AMPQClient) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, err
	}
	client.changeConnection(conn)
	client.log("Connected", logrus.InfoLevel, nil)
	return conn, nil
}

func (client *AMPQClient) handleReInit(conn *amqp.Connection) bool {
	for {
		client.m.Lock()
		client.isReady = false
		client.m.Unlock()

		err := client.init(conn)
		if err != nil {
			client.log("ChannelInitFailed", logrus.WarnLevel, err)
			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.log("ConnectionClosed", logrus.WarnLevel, nil)
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.log("ConnectionClosed", logrus.WarnLevel, nil)
			return false
		case <-client.notifyChanClose:
			client.log("ChannelClosed", logrus.WarnLevel, nil)
		}
	}
}

// init opens a confirming channel and declares all queues.
func (client *AMPQClient) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	for _, queue := range client.queues {
		_, err := ch.QueueDeclare(
			queue,
			true,  // Durable
			false, // Delete when unused
			false, // Exclusive
			false, // No-wait
			nil,   // Arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue '%s': %w", queue, err)
		}
	}

	client.m.Lock()
	client.changeChannel(ch)
	client.isReady = true
	client.m.Unlock()
	client.log("ChannelReady", logrus.InfoLevel, nil)
	return nil
}

func (client *AMPQClient) changeConnection(conn *amqp.Connection) {
	client.connection = conn
	client.notifyConnClose = make(chan *amqp.Error, 1)
	client.connection.NotifyClose(client.notifyConnClose)
}

// changeChannel must be called with client.m held.
func (client *AMPQClient) changeChannel(ch *amqp.Channel) {
	client.channel = ch
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	client.channel.NotifyClose(client.notifyChanClose)
	client.channel.NotifyPublish(client.notifyConfirm)
}

// ErrQueueNotReady is returned while the client has no open confirming channel.
var ErrQueueNotReady = errors.New("message queue not ready")

// Ready reports whether a confirming channel is open.
func (client *AMPQClient) Ready() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

// Publish sends data to queueName and waits for the broker's confirm. It retries until the
// message is acked or ctx is done. Publishes are serialized so each caller reads its own confirm.
func (client *AMPQClient) Publish(ctx context.Context, queueName string, data []byte) error {
	client.confirmM.Lock()
	defer client.confirmM.Unlock()

	for {
		confirms, err := client.publish(ctx, queueName, data)
		if err == nil {
			select {
			case confirm := <-confirms:
				if confirm.Ack {
					return nil
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resendDelay):
		}
	}
}

// UnsafePublish publishes a message without waiting for confirmation.
func (client *AMPQClient) UnsafePublish(ctx context.Context, queueName string, data []byte) error {
	_, err := client.publish(ctx, queueName, data)
	return err
}

// publish returns the confirm channel of the channel the message went out on.
func (client *AMPQClient) publish(ctx context.Context, queueName string, data []byte) (<-chan amqp.Confirmation, error) {
	client.m.Lock()
	defer client.m.Unlock()

	if client.channel == nil {
		return nil, fmt.Errorf("not connected")
	}
	if !client.isReady {
		return nil, fmt.Errorf("not ready")
	}

	err := client.channel.PublishWithContext(
		ctx,
		"",        // Exchange
		queueName, // Routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         data,
		},
	)
	if err != nil {
		return nil, err
	}
	return client.notifyConfirm, nil
}

type queuePublisher interface {
	Ready() bool
	Publish(ctx context.Context, queueName string, data []byte) error
}

// MessageEvent is the JSON body published for every message record.
type MessageEvent struct {
	Event string `json:"event"`
	MessageRecord
}

// EventPublisher is a Recorder that publishes message records to a queue for downstream consumers.
type EventPublisher struct {
	publisher queuePublisher
	queue     string
	timeout   time.Duration
}

func NewEventPublisher(publisher queuePublisher, queue string, timeout time.Duration) *EventPublisher {
	return &EventPublisher{publisher: publisher, queue: queue, timeout: timeout}
}

func (p *EventPublisher) Record(ctx context.Context, rec MessageRecord) error {
	if !p.publisher.Ready() {
		return fmt.Errorf("publish %s event: %w", rec.Direction, ErrQueueNotReady)
	}

	rec.Body = PartiallyRedactMessage(rec.Body)
	data, err := json.Marshal(MessageEvent{Event: "message." + rec.Direction, MessageRecord: rec})
	if err != nil {
		return err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.publisher.Publish(ctx, p.queue, data); err != nil {
		return fmt.Errorf("publish %s event: %w", rec.Direction, err)
	}
	return nil
}
