package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// SubjectPipelineProgress carries upload/analysis progress for each run.
const SubjectPipelineProgress = "rehearse.pipeline.progress"

// Publisher sends a JSON payload to a subject.
type Publisher interface {
	Publish(subject string, data any) error
}

type NATSClient struct {
	conn   *nats.Conn
	logger logrus.FieldLogger
}

func NewNATSClient(url, token string, logger logrus.FieldLogger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name("rehearse"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSClient{conn: nc, logger: logger}, nil
}

func (c *NATSClient) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Subscribe attaches a raw handler to subject. Unsubscribe on the result
// detaches it.
func (c *NATSClient) Subscribe(subject string, handler func(subject string, data []byte)) (Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.logger.WithField("subject", subject).Debug("subscribed")
	return natsSubscription{sub: sub, logger: c.logger}, nil
}

func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

type natsSubscription struct {
	sub    *nats.Subscription
	logger logrus.FieldLogger
}

func (s natsSubscription) Unsubscribe() {
	if err := s.sub.Unsubscribe(); err != nil {
		s.logger.WithError(err).Debug("nats unsubscribe")
	}
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(string, any) error { return nil }
