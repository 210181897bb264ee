package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const publishTimeout = 5 * time.Second

// Settings describes the broker connection.
type Settings struct {
	Broker      string
	Port        int
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher mirrors snapshots to retained topics:
//
//	{prefix}/status          online|offline (last will)
//	{prefix}/state           snapshot JSON
//	{prefix}/obis/{code}     scaled value or text
type Publisher struct {
	client      client
	topicPrefix string
	logger      *zap.Logger
}

func NewPublisher(settings Settings, logger *zap.Logger) (*Publisher, error) {
	span := tracer.StartSpan("mqtt.new_publisher")
	defer span.Finish()

	if logger == nil {
		logger = zap.NewNop()
	}
	statusTopic := settings.TopicPrefix + "/status"

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", settings.Broker, settings.Port))
	opts.SetClientID(settings.ClientID)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
	}
	if settings.Password != "" {
		opts.SetPassword(settings.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetWill(statusTopic, "offline", 0, true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("MQTT connected to broker", zap.String("broker", settings.Broker))
		c.Publish(statusTopic, 0, true, "online")
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		span.SetTag("error", token.Error())
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newPublisher(c, settings.TopicPrefix, logger), nil
}

func newPublisher(c client, topicPrefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:      c,
		topicPrefix: topicPrefix,
		logger:      logger.Named("mqtt"),
	}
}

// PublishSnapshot publishes every entry and the JSON state. The first failed
// publish aborts the rest.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap *obis.Snapshot) (err error) {
	span, _ := tracer.StartSpanFromContext(ctx, "mqtt.publish_snapshot")
	span.SetTag("entries", snap.Len())
	defer func() { span.Finish(tracer.WithError(err)) }()

	if snap.Len() == 0 {
		return nil
	}

	for _, entry := range snap.Entries() {
		topic := fmt.Sprintf("%s/obis/%s", p.topicPrefix, entry.Code)
		if err := p.publish(topic, entryPayload(entry)); err != nil {
			return err
		}
	}
	return p.publish(p.topicPrefix+"/state", snap.ToJsonBytes())
}

func entryPayload(entry obis.Entry) []byte {
	if scaled, ok := entry.Scaled(1); ok {
		return []byte(strconv.FormatFloat(scaled, 'f', -1, 64))
	}
	return []byte(entry.Value.String())
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, true, payload) // QoS 0, retained
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		p.logger.Error("Failed to publish MQTT message", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.publish(p.topicPrefix+"/status", []byte("offline"))
		p.client.Disconnect(250)
		p.logger.Info("MQTT publisher closed")
	}
}
