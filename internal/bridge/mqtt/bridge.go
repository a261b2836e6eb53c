// internal/bridge/mqtt/bridge.go
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/hws-coordinator/internal/config"
	"github.com/tamzrod/hws-coordinator/internal/entity"
	"github.com/tamzrod/hws-coordinator/internal/status"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	commandTimeout    = 30 * time.Second
	disconnectQuiesce = 250 // milliseconds
	keepAlive         = 60 * time.Second
)

// client is the part of paho's Client the bridge uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Bridge publishes device snapshots to MQTT and routes command topics to
// the entity adapters of each device.
//
// Write publishes state, WriteStatus publishes availability; wrap the
// latter with writer.NewStatusWriter so it fires on change only.
type Bridge struct {
	cli    client
	topics Topics
	qos    byte
	log    zerolog.Logger

	mu      sync.RWMutex
	devices map[string]*entity.Set
}

// Connect dials the broker. The client id gets a random suffix so that two
// processes with the same config do not kick each other off the broker.
func Connect(c cfg.MQTTConfig, log zerolog.Logger) (*Bridge, error) {
	topics := Topics{Prefix: c.TopicPrefix}

	clientID := c.ClientID
	if clientID == "" {
		clientID = "hws"
	}
	clientID = clientID + "-" + uuid.NewString()[:8]

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.Broker)
	opts.SetClientID(clientID)
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	// commands block until the device cycle completes
	opts.SetOrderMatters(false)
	opts.SetWill(topics.BridgeStatus(), PayloadOffline, 1, true)

	b := newBridge(nil, topics, c.QoS, log)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		b.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.log.Warn().Err(err).Msg("mqtt connection lost")
	})

	pc := pahomqtt.NewClient(opts)
	b.cli = pc

	token := pc.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	b.log.Info().Str("broker", c.Broker).Str("client_id", clientID).Msg("mqtt connected")
	return b, nil
}

func newBridge(cli client, topics Topics, qos byte, log zerolog.Logger) *Bridge {
	return &Bridge{
		cli:     cli,
		topics:  topics,
		qos:     qos,
		log:     log,
		devices: make(map[string]*entity.Set),
	}
}

// handleConnect runs on every (re)connect: clean sessions lose their
// subscriptions.
func (b *Bridge) handleConnect() {
	if err := b.publish(b.topics.BridgeStatus(), PayloadOnline, true); err != nil {
		b.log.Error().Err(err).Msg("publish bridge status")
	}

	b.mu.RLock()
	ids := make([]string, 0, len(b.devices))
	for id := range b.devices {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	for _, id := range ids {
		if err := b.subscribe(id); err != nil {
			b.log.Error().Err(err).Str("device_id", id).Msg("resubscribe")
		}
	}
}

// AddDevice registers the entities of a device and subscribes to its
// command topics.
func (b *Bridge) AddDevice(id string, set *entity.Set) error {
	b.mu.Lock()
	b.devices[id] = set
	b.mu.Unlock()

	return b.subscribe(id)
}

func (b *Bridge) subscribe(id string) error {
	token := b.cli.Subscribe(b.topics.CommandFilter(id), b.qos, b.onMessage)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (b *Bridge) onMessage(_ pahomqtt.Client, m pahomqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.handleCommand(ctx, m.Topic(), m.Payload()); err != nil {
		b.log.Error().Err(err).Str("topic", m.Topic()).Msg("command failed")
		return
	}
	b.log.Debug().Str("topic", m.Topic()).Msg("command applied")
}

// Write publishes the snapshot document as retained state.
func (b *Bridge) Write(s status.Snapshot) error {
	payload, err := json.Marshal(status.Encode(s))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return b.publish(b.topics.State(s.DeviceID), payload, true)
}

// WriteStatus publishes the device availability.
func (b *Bridge) WriteStatus(s status.Snapshot) error {
	payload := PayloadOffline
	if s.Available {
		payload = PayloadOnline
	}
	return b.publish(b.topics.Availability(s.DeviceID), payload, true)
}

func (b *Bridge) publish(topic string, payload any, retained bool) error {
	token := b.cli.Publish(topic, b.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Close marks the bridge offline and disconnects.
func (b *Bridge) Close() error {
	err := b.publish(b.topics.BridgeStatus(), PayloadOffline, true)
	b.cli.Disconnect(disconnectQuiesce)
	return err
}
