package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"
)

const (
	publishTimeout  = 5 * time.Second
	connectWaitStep = 2 * time.Second
	disconnectQuiet = 1000 // ms

	// breakerFailures consecutive publish failures open the breaker.
	breakerFailures = 3
	breakerOpenTime = 30 * time.Second
)

var errNotConnected = errors.New("not connected yet")

// ClientConfig configures RealClient.
type ClientConfig struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	TopicRoot       string
	ConnectAttempts int

	// OnCommand receives every raw payload arriving on the control topic.
	// It is called from paho's goroutine.
	OnCommand func(payload []byte)
}

// RealClient publishes to an actual MQTT broker and listens for commands.
type RealClient struct {
	client  paho.Client
	topics  Topics
	breaker *gobreaker.CircuitBreaker
	log     logr.Logger
	now     func() time.Time
}

// NewRealClient connects to the broker.
//
// paho keeps retrying in the background, so a broker that is unreachable
// within the connect budget is logged and the client is returned anyway;
// publishes report ErrTransportUnavailable until the link comes up.
func NewRealClient(ctx context.Context, cfg ClientConfig, log logr.Logger) (*RealClient, error) {
	if cfg.TopicRoot == "" {
		cfg.TopicRoot = DefaultTopicRoot
	}
	if cfg.ConnectAttempts < 1 {
		cfg.ConnectAttempts = 1
	}

	c := &RealClient{
		topics: NewTopics(cfg.TopicRoot),
		log:    log.WithName("mqtt"),
		now:    time.Now,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: breakerOpenTime,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Info("breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	will, err := json.Marshal(StatusPayload{Status: StatusOffline, Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("encode last will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(c.topics.Status, will, 1, true).
		SetOnConnectHandler(func(client paho.Client) {
			c.onConnect(client, cfg.OnCommand)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Error(err, "connection lost")
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	var fatal error
	err = backoff.Retry(func() error {
		if !token.WaitTimeout(connectWaitStep) {
			return errNotConnected
		}
		if err := token.Error(); err != nil {
			fatal = err
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.ConnectAttempts-1)), ctx))

	switch {
	case err == nil:
		c.log.Info("connected", "broker", cfg.Broker, "clientID", cfg.ClientID)
	case fatal != nil || ctx.Err() != nil:
		c.client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker: %w", err)
	default:
		c.log.Info("broker unreachable, continuing offline", "broker", cfg.Broker, "attempts", cfg.ConnectAttempts)
	}
	return c, nil
}

// onConnect runs after every successful (re)connect: resubscribe and announce.
func (c *RealClient) onConnect(client paho.Client, onCommand func([]byte)) {
	if onCommand != nil {
		token := client.Subscribe(c.topics.Control, 1, func(_ paho.Client, msg paho.Message) {
			onCommand(msg.Payload())
		})
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			c.log.Error(token.Error(), "subscribe failed", "topic", c.topics.Control)
		}
	}

	// Not routed through the breaker.
	payload, err := json.Marshal(NewStatusPayload(StatusOnline, "", c.now()))
	if err != nil {
		c.log.Error(err, "encode online status")
		return
	}
	token := client.Publish(c.topics.Status, 1, true, payload)
	go func() {
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			c.log.Error(token.Error(), "publish online status failed")
		}
	}()
}

// PublishTelemetry sends temperature then humidity. Both are attempted.
func (c *RealClient) PublishTelemetry(temp TemperaturePayload, hum HumidityPayload) error {
	return errors.Join(
		c.publishJSON(c.topics.Temperature, 0, false, temp),
		c.publishJSON(c.topics.Humidity, 0, false, hum),
	)
}

// PublishAlert sends the alert with QoS 1.
func (c *RealClient) PublishAlert(alert AlertPayload) error {
	return c.publishJSON(c.topics.Status, 1, false, alert)
}

// PublishStatus sends a retained lifecycle message.
func (c *RealClient) PublishStatus(status StatusPayload) error {
	return c.publishJSON(c.topics.Status, 1, true, status)
}

// IsConnected reports whether the connection is currently open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(disconnectQuiet)
	return nil
}

func (c *RealClient) publishJSON(topic string, qos byte, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	if !c.client.IsConnectionOpen() {
		return ErrTransportUnavailable
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		token := c.client.Publish(topic, qos, retained, payload)
		if !token.WaitTimeout(publishTimeout) {
			return nil, fmt.Errorf("publish timeout")
		}
		return nil, token.Error()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
