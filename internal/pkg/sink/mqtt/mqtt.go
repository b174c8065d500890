// Package mqtt republishes stream events to an MQTT broker as msgpack payloads.
package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

var ErrNotConnected = errors.New("mqtt not connected")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Publisher is the part of paho Client the emitter needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// paho Client implements it, publishing while it reconnects only queues the message.
type connectionChecker interface {
	IsConnectionOpen() bool
}

func (e *Emitter) connected() bool {
	if e.client == nil {
		return false
	}
	if c, ok := e.client.(connectionChecker); ok {
		return c.IsConnectionOpen()
	}
	return true
}

// SamplePayload is published on "<prefix>/<stream-id>".
type SamplePayload struct {
	Stream    string    `msgpack:"stream"`
	Timestamp int64     `msgpack:"ts"` // unix nanoseconds
	Values    []float64 `msgpack:"values"`
}

// ErrorPayload is published on "<prefix>/<stream-id>/error".
type ErrorPayload struct {
	Stream    string `msgpack:"stream"`
	Timestamp int64  `msgpack:"ts"`
	Class     string `msgpack:"class"`
	Code      string `msgpack:"code"`
	Message   string `msgpack:"message"`
	Details   string `msgpack:"details"`
}

type Emitter struct {
	cfg    Config
	client Publisher
	now    func() time.Time

	mu        sync.Mutex
	published map[string]uint64
	errors    uint64
}

func NewEmitter(cfg Config, client Publisher) *Emitter {
	return &Emitter{
		cfg:       cfg,
		client:    client,
		now:       time.Now,
		published: make(map[string]uint64),
	}
}

// Connect dials the broker, the client reconnects on its own afterwards.
func Connect(cfg Config) (*Emitter, paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c paho.Client) {
		log.Info("mqtt connection established", zap.String("broker", cfg.Broker), logger.Info)
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		log.Info(fmt.Sprintf("mqtt connection lost, will auto-reconnect: %v", err), zap.String("broker", cfg.Broker), logger.Warning)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return NewEmitter(cfg, client), client, nil
}

func (e *Emitter) Topic(kind sensor.Kind) string {
	return fmt.Sprintf("%s/%s", e.cfg.TopicPrefix, kind.StreamID())
}

func (e *Emitter) ErrorTopic(kind sensor.Kind) string {
	return e.Topic(kind) + "/error"
}

// Publish sends one stream event and waits for the broker acknowledgement.
// Without an open connection the event is dropped with ErrNotConnected.
func (e *Emitter) Publish(ev sensor.StreamEvent) error {
	if !e.connected() {
		e.fault()
		return ErrNotConnected
	}

	var (
		topic string
		v     interface{}
		ts    = e.now().UnixNano()
	)

	if ev.Err != nil {
		topic = e.ErrorTopic(ev.Kind)
		v = ErrorPayload{
			Stream:    ev.Kind.StreamID(),
			Timestamp: ts,
			Class:     ev.Err.Class.String(),
			Code:      ev.Err.Code,
			Message:   ev.Err.Message,
			Details:   ev.Err.Details,
		}
	} else {
		topic = e.Topic(ev.Kind)
		v = SamplePayload{
			Stream:    ev.Kind.StreamID(),
			Timestamp: ts,
			Values:    ev.Sample,
		}
	}

	payload, err := msgpack.Marshal(v)
	if err != nil {
		e.fault()
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.fault()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.fault()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	log.Info("event published", zap.String("topic", topic), zap.Int("size", len(payload)), logger.Samples)
	return nil
}

func (e *Emitter) fault() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

type Stats struct {
	Published map[string]uint64
	Errors    uint64
}

func (e *Emitter) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Published: published, Errors: e.errors}
}

// Run publishes events until the channel is closed, failures are logged and skipped.
func (e *Emitter) Run(events <-chan sensor.StreamEvent) {
	for ev := range events {
		err := e.Publish(ev)
		if err != nil {
			log.Info(fmt.Sprintf("mqtt publish failed: %v", err), zap.String("stream", ev.Kind.StreamID()), logger.Warning)
		}
	}
	log.Info("mqtt emitter finished", logger.Debug)
}
