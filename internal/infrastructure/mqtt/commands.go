package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// commandQueueSize bounds the aggregate commands waiting for the worker.
const commandQueueSize = 8

// AggregateCommands subscribes to the aggregate command topic and returns the
// queue the commands arrive on. Calling it again returns the same queue.
//
// paho delivers messages on its router goroutine, which must not block, so
// the handler only decodes and enqueues. A command arriving while the queue
// is full is dropped with a warning; the queued runs will pick up the same
// files. The queue is never closed: readers stop when their context ends.
//
// Returns ErrNotConnected or ErrSubscribeFailed when the subscription fails.
func (c *Client) AggregateCommands() (<-chan AggregateCommand, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	c.commandsMu.Lock()
	if c.commands != nil {
		defer c.commandsMu.Unlock()
		return c.commands, nil
	}
	c.commands = make(chan AggregateCommand, commandQueueSize)
	queue := c.commands
	c.commandsMu.Unlock()

	token := c.client.Subscribe(c.topics.AggregateCommand(), c.qos(), c.handleCommand)
	var err error
	if token.WaitTimeout(defaultPublishTimeout) {
		err = token.Error()
	} else {
		err = fmt.Errorf("timeout after %v", defaultPublishTimeout)
	}
	if err != nil {
		c.commandsMu.Lock()
		c.commands = nil
		c.commandsMu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return queue, nil
}

// handleCommand decodes a command message and enqueues it without blocking.
func (c *Client) handleCommand(_ pahomqtt.Client, msg pahomqtt.Message) {
	cmd, err := DecodeAggregateCommand(msg.Payload())
	if err != nil {
		c.warn("malformed aggregate command dropped", "topic", msg.Topic(), "error", err)
		return
	}

	c.commandsMu.Lock()
	queue := c.commands
	c.commandsMu.Unlock()

	select {
	case queue <- cmd:
	default:
		c.warn("aggregate command dropped, queue full", "request_id", cmd.RequestID, "queued", len(queue))
	}
}
