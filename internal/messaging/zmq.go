package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	zmq "github.com/pebbe/zmq4"

	"github.com/bardlex/ducominer/internal/stats"
	"github.com/bardlex/ducominer/pkg/log"
)

// ZMQPublisher broadcasts share events and snapshots as two-frame
// messages: topic, then a JSON body.
type ZMQPublisher struct {
	socket   *zmq.Socket
	endpoint string
	logger   *log.Logger

	// zmq sockets are not safe for concurrent use
	mu sync.Mutex
}

// NewZMQPublisher creates a PUB socket bound to endpoint
func NewZMQPublisher(endpoint string, logger *log.Logger) (*ZMQPublisher, error) {
	socket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("failed to set ZMQ linger: %w", err)
	}

	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("failed to bind ZMQ endpoint %s: %w", endpoint, err)
	}

	logger = logger.WithComponent("zmq")
	logger.Info("bound ZMQ publisher", "endpoint", endpoint)

	return &ZMQPublisher{
		socket:   socket,
		endpoint: endpoint,
		logger:   logger,
	}, nil
}

// Name identifies the publisher as a sink
func (z *ZMQPublisher) Name() string {
	return "zmq"
}

// WriteShare publishes ev on the share topic
func (z *ZMQPublisher) WriteShare(_ context.Context, ev stats.ShareEvent) error {
	return z.publish(ZMQTopicShare, ev)
}

// WriteSnapshot publishes snap on the stats topic
func (z *ZMQPublisher) WriteSnapshot(_ context.Context, snap stats.Snapshot) error {
	return z.publish(ZMQTopicStats, snap)
}

func (z *ZMQPublisher) publish(topic string, v any) error {
	data, err := sonic.ConfigDefault.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", topic, err)
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if z.socket == nil {
		return fmt.Errorf("ZMQ publisher is closed")
	}

	if _, err := z.socket.SendMessage(topic, data); err != nil {
		return fmt.Errorf("failed to publish ZMQ %s message: %w", topic, err)
	}

	z.logger.Debug("published ZMQ message", "topic", topic, "size", len(data))
	return nil
}

// Close closes the ZMQ socket
func (z *ZMQPublisher) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.socket == nil {
		return nil
	}
	err := z.socket.Close()
	z.socket = nil
	return err
}
