package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"

	"github.com/bardlex/noso2m/pkg/errors"
	"github.com/bardlex/noso2m/pkg/log"
)

// frameSender is the part of a zmq socket the publisher needs
type frameSender interface {
	SendMessage(parts ...interface{}) (int, error)
	Close() error
}

// ZMQPublisher broadcasts events on a PUB socket as two frames: the event
// type as topic and the JSON body.
type ZMQPublisher struct {
	mu       sync.Mutex
	socket   frameSender
	endpoint string
	logger   *log.Logger
}

// NewZMQPublisher creates a PUB socket bound to endpoint
func NewZMQPublisher(endpoint string, logger *log.Logger) (*ZMQPublisher, error) {
	socket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMessaging, "zmq_socket", "failed to create ZMQ socket")
	}
	if err := socket.Bind(endpoint); err != nil {
		socket.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeMessaging, "zmq_bind", fmt.Sprintf("failed to bind ZMQ endpoint %s", endpoint))
	}

	logger = logger.WithComponent("zmq")
	logger.Info("publishing events on ZMQ endpoint", "endpoint", endpoint)

	return &ZMQPublisher{socket: socket, endpoint: endpoint, logger: logger}, nil
}

// Name implements Handler
func (z *ZMQPublisher) Name() string { return "zmq" }

// Handle implements Handler
func (z *ZMQPublisher) Handle(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "zmq_send", "failed to encode event")
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if _, err := z.socket.SendMessage(e.EventType(), data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeMessaging, "zmq_send", "failed to send ZMQ message")
	}
	z.logger.Debug("sent ZMQ message", "topic", e.EventType(), "size", len(data))
	return nil
}

// Close closes the socket
func (z *ZMQPublisher) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.socket != nil {
		return z.socket.Close()
	}
	return nil
}
