package tuya

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/mqtt"
)

// ProtocolName is the protocol segment of every bridge topic.
const ProtocolName = mqtt.Protocol

const (
	// commandTimeout bounds one MQTT command including the settle delay.
	commandTimeout = 10 * time.Second

	// DefaultPollInterval is used when BridgeOptions.PollInterval is zero.
	DefaultPollInterval = 30 * time.Second
)

// Bridge connects the Service to MQTT. It:
//   - applies commands received on the command topic and acknowledges them
//   - publishes the retained state whenever the device status changes
//   - polls the device and feeds each status to the metrics sink
//   - reports health
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	id       string
	service  *Service
	mqtt     MQTTClient
	metrics  MetricsWriter
	topics   mqtt.Topics
	health   *HealthReporter
	interval time.Duration

	// unobserve detaches publishState from the service on Stop.
	unobserve func()

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the part of *mqtt.Client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// MetricsWriter receives every polled status. It must not block; the
// InfluxDB client satisfies it via an adapter in main.go.
type MetricsWriter interface {
	WriteClimate(deviceID string, st CanonicalStatus)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// ID names this bridge instance in topics. Defaults to the device ID.
	ID string

	Service    *Service
	MQTTClient MQTTClient

	// Topics builds topic names. The zero value uses the default prefix.
	Topics mqtt.Topics

	// Metrics is optional.
	Metrics MetricsWriter

	// PollInterval is how often the device is read. Default: 30 seconds.
	PollInterval time.Duration

	HealthInterval time.Duration
	Version        string
	Logger         Logger
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	id := opts.ID
	if id == "" {
		id = opts.Service.Identity().DeviceID
	}
	if id == "" {
		return nil, fmt.Errorf("bridge ID is required")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		id:        id,
		service:   opts.Service,
		mqtt:      opts.MQTTClient,
		metrics:   opts.Metrics,
		topics:    opts.Topics,
		interval:  interval,
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  id,
		Version:   opts.Version,
		Topic:     b.topics.Health(ProtocolName),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Device:    opts.Service,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// ID returns the bridge instance name used in topics.
func (b *Bridge) ID() string { return b.id }

// Start subscribes to commands, starts polling and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.unobserve = b.service.OnStatus(b.publishState)

	commandTopic := b.topics.Command(ProtocolName, b.id)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.wg.Add(1)
	go b.pollLoop(ctx)

	b.health.Start(ctx)

	b.logInfo("bridge started", "bridge_id", b.id, "poll_interval", b.interval.String())
	return nil
}

// Stop shuts the bridge down. In-flight commands are cancelled.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.unobserve != nil {
			b.unobserve()
		}
		close(b.done)
		b.ctxCancel()
		b.wg.Wait()
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// Poll reads the device once, publishes state on change and records metrics.
func (b *Bridge) Poll(ctx context.Context) CanonicalStatus {
	st := b.service.QueryStatus(ctx, false)
	if st.Online && b.metrics != nil {
		b.metrics.WriteClimate(b.service.Identity().DeviceID, st)
	}
	return st
}

func (b *Bridge) pollLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.Poll(b.ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.Poll(b.ctx)
		}
	}
}

// handleMQTTMessage routes messages on the command topic.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	if !strings.HasSuffix(topic, "/"+b.id) {
		return fmt.Errorf("unexpected topic %s", topic)
	}
	b.handleCommand(payload)
	return nil
}

// handleCommand applies one command and publishes its acknowledgment.
func (b *Bridge) handleCommand(payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		b.publishAck(NewAckError(cmd, b.deviceID(),
			fmt.Errorf("%w: malformed command payload", ErrInvalidValue)))
		return
	}

	b.logInfo("received command", "command_id", cmd.ID, "command", cmd.Command, "dp", cmd.Index)

	value, err := cmd.DecodeValue()
	if err != nil {
		b.publishAck(NewAckError(cmd, b.deviceID(), fmt.Errorf("%w: %v", ErrInvalidValue, err)))
		return
	}

	source := cmd.Source
	if source == "" {
		source = SourceMQTT
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	var res *CommandResult
	if cmd.Index > 0 {
		res, err = b.service.WriteRaw(ctx, source, cmd.Index, value)
	} else {
		res, err = b.service.Apply(ctx, source, cmd.Command, value)
	}
	if err != nil {
		b.logError("command failed", err)
		b.publishAck(NewAckError(cmd, b.deviceID(), err))
		return
	}
	b.publishAck(NewAckMessage(cmd, b.deviceID(), res))
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(ProtocolName, b.id), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishState is registered with Service.OnStatus.
func (b *Bridge) publishState(st CanonicalStatus) {
	msg := NewStateMessage(b.deviceID(), b.service.DisplayUnit(), st)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(ProtocolName, b.id), payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
		return
	}
	b.logDebug("published state", "online", st.Online)
}

func (b *Bridge) deviceID() string {
	return b.service.Identity().DeviceID
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
