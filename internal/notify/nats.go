package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/metrics"
)

const (
	notifyStreamName  = "NOTIFY"
	notifySubjects    = "notify.*"
	messageSubject    = "notify.message"
	actionStreamName  = "ACTIONS"
	actionSubjects    = "action.*"
	invocationSubject = "action.invoked"
)

// NATSChannel is a JetStream-backed notification channel. Outbound messages
// are published on notify.message for the bot gateway to render; inbound
// button presses arrive on action.invoked and are surfaced through Events.
type NATSChannel struct {
	logger *zap.Logger
	js     nats.JetStreamContext
	sub    *nats.Subscription
	events chan string
}

// NewNATSChannel sets up the streams and the invocation subscription.
func NewNATSChannel(js nats.JetStreamContext, logger *zap.Logger) (*NATSChannel, error) {
	c := &NATSChannel{
		logger: logger.Named("notify"),
		js:     js,
		events: make(chan string, 64),
	}

	streams := []struct {
		name     string
		subjects []string
	}{
		{name: notifyStreamName, subjects: []string{notifySubjects}},
		{name: actionStreamName, subjects: []string{actionSubjects}},
	}

	for _, stream := range streams {
		info, err := c.js.StreamInfo(stream.name)
		if err != nil && err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}
		if info == nil {
			_, err = c.js.AddStream(&nats.StreamConfig{
				Name:     stream.name,
				Subjects: stream.subjects,
				Storage:  nats.FileStorage,
				MaxAge:   24 * time.Hour,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create stream %s: %w", stream.name, err)
			}
			c.logger.Info("Created stream", zap.String("name", stream.name))
		}
	}

	sub, err := c.js.Subscribe(invocationSubject, c.handleInvocation)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to invocations: %w", err)
	}
	c.sub = sub

	return c, nil
}

// Send publishes a plain text notification.
func (c *NATSChannel) Send(ctx context.Context, text string) error {
	return c.publish(Message{Text: text, SentAt: time.Now()})
}

// SendWithActions publishes a notification with inline buttons.
func (c *NATSChannel) SendWithActions(ctx context.Context, text string, actions []Action) error {
	return c.publish(Message{Text: text, Actions: actions, SentAt: time.Now()})
}

func (c *NATSChannel) publish(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := c.js.Publish(messageSubject, data); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		c.logger.Error("Failed to publish notification", zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	return nil
}

// Events yields the tokens of pressed buttons.
func (c *NATSChannel) Events() <-chan string {
	return c.events
}

func (c *NATSChannel) handleInvocation(msg *nats.Msg) {
	var inv Invocation
	if err := json.Unmarshal(msg.Data, &inv); err != nil {
		c.logger.Error("Failed to unmarshal invocation", zap.Error(err))
		return
	}

	select {
	case c.events <- inv.Token:
	default:
		// The dispatcher is not keeping up; dropping is preferable to
		// stalling the subscription. The operator can press again.
		c.logger.Warn("Dropped invocation event", zap.String("token", inv.Token))
	}
	msg.Ack()
}

// Close stops the invocation subscription and closes the event stream.
func (c *NATSChannel) Close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	close(c.events)
}
