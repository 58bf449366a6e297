package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/config"
)

// Client is the service's connection to the lab broker.
//
// It announces store updates and sidecar edits, and queues aggregate commands
// for a worker. paho reconnects on its own; the command subscription is
// renewed on every reconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected atomic.Bool

	// commands is non-nil once AggregateCommands was called.
	commands   chan AggregateCommand
	commandsMu sync.Mutex

	onDisconnect atomic.Pointer[func(error)]
	logger       atomic.Pointer[Logger]
}

// Logger is the logging subset used by Client. Satisfied by logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect connects to the broker configured in cfg.
//
// The broker is told to publish a retained offline status (the will) when
// the service drops without Close. The online status is published from the
// connect handler, so it is repeated after every reconnect.
//
// Returns ErrConnectionFailed when the broker cannot be reached in time.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, topics: Topics{Prefix: cfg.TopicPrefix}}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.warn("MQTT reconnecting", "broker", cfg.Broker.Host)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		// Stop the background connect retries.
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously.
	c.connected.Store(true)
	return c, nil
}

// handleConnect runs on paho's goroutine and must not wait on tokens.
func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.commandsMu.Lock()
	subscribed := c.commands != nil
	c.commandsMu.Unlock()
	if subscribed {
		c.client.Subscribe(c.topics.AggregateCommand(), c.qos(), c.handleCommand) //nolint:errcheck // Failures surface on the next reconnect
	}

	payload := statusPayload(c.cfg.Broker.ClientID, statusOnline, "")
	c.client.Publish(c.topics.Status(), c.qos(), true, payload) //nolint:errcheck // Best effort; the will covers crashes
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)
	if cb := c.onDisconnect.Load(); cb != nil {
		(*cb)(err)
	}
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// Close publishes a graceful offline status and disconnects. Closing a nil or
// closed client is not an error.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := statusPayload(c.cfg.Broker.ClientID, statusOffline, reasonGraceful)
		c.client.Publish(c.topics.Status(), c.qos(), true, payload).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state. A nil client is
// never connected.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	return c.connected.Load() && c.client.IsConnected()
}

// SetOnDisconnect sets a callback for connection loss.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.onDisconnect.Store(&callback)
}

// SetLogger sets the logger for dropped commands and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.logger.Store(&logger)
}

func (c *Client) warn(msg string, args ...any) {
	if l := c.logger.Load(); l != nil && *l != nil {
		(*l).Warn(msg, args...)
	}
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS)
}
