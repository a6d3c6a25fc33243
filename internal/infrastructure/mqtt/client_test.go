package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration. Broker tests live in
// integration_test.go behind the integration build tag.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "minisplit-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "graylogic",
	}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors), len(l.warns)
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("graylogic")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Command", topics.Command(Protocol, "minisplit"), "graylogic/command/tuya/minisplit"},
		{"Ack", topics.Ack(Protocol, "minisplit"), "graylogic/ack/tuya/minisplit"},
		{"State", topics.State(Protocol, "minisplit"), "graylogic/state/tuya/minisplit"},
		{"Health", topics.Health(Protocol), "graylogic/health/tuya"},
		{"SystemStatus", topics.SystemStatus(), "graylogic/system/status"},
		{"AllStates", topics.AllStates(), "graylogic/state/+/+"},
		{"AllCommands", topics.AllCommands(), "graylogic/command/+/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestNewTopics_Prefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "graylogic/health/tuya"},
		{"home/", "home/health/tuya"},
		{"/site/a/", "site/a/health/tuya"},
	}
	for _, tt := range tests {
		if got := NewTopics(tt.prefix).Health(Protocol); got != tt.want {
			t.Errorf("NewTopics(%q).Health() = %q, want %q", tt.prefix, got, tt.want)
		}
	}

	// The zero value falls back to the default prefix.
	if got := (Topics{}).State(Protocol, "x"); got != "graylogic/state/tuya/x" {
		t.Errorf("Topics{}.State() = %q", got)
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "minisplit-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("AutoReconnect and CleanSession should be enabled")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without TLS enabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers = %v, want ssl://", opts.Servers)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS 1.2 minimum not configured")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("site"), "minisplit-test")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Error("LWT should be enabled and retained")
	}
	if opts.WillTopic != "site/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("WillPayload is not JSON: %v", err)
	}
	if p.Status != "offline" || p.ClientID != "minisplit-test" || p.Reason != "unexpected_disconnect" {
		t.Errorf("WillPayload = %+v", p)
	}
}

func TestBuildStatusPayload_OmitsEmptyReason(t *testing.T) {
	b := buildStatusPayload("c1", "online", "")
	if strings.Contains(string(b), "reason") {
		t.Errorf("payload = %s, want no reason field", b)
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	if (&Client{}).IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "a/b", nil, 3, ErrInvalidQoS},
		{"oversized payload", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPayloadTooLarge},
		{"disconnected", "a/b", []byte("{}"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := &Client{cfg: testConfig()}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"invalid qos", "a/b", 5, handler, ErrInvalidQoS},
		{"nil handler", "a/b", 1, nil, ErrSubscribeFailed},
		{"disconnected", "a/b", 1, handler, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(client.subscriptions) != 0 {
		t.Error("failed subscriptions must not be tracked")
	}
}

// =============================================================================
// Handler Dispatch Tests
// =============================================================================

func TestDispatch_RecoversPanic(t *testing.T) {
	client := &Client{}
	logger := &mockLogger{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error { panic("boom") }, "a/b", nil)

	if errs, _ := logger.counts(); errs != 1 {
		t.Errorf("logged %d errors, want 1 for recovered panic", errs)
	}
}

func TestDispatch_LogsHandlerError(t *testing.T) {
	client := &Client{}
	logger := &mockLogger{}
	client.SetLogger(logger)

	var got string
	client.dispatch(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return errors.New("handler error")
	}, "a/b", []byte("x"))

	if got != "a/b=x" {
		t.Errorf("handler saw %q", got)
	}
	if _, warns := logger.counts(); warns != 1 {
		t.Errorf("logged %d warnings, want 1", warns)
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	client := &Client{}
	// Must not panic without a logger.
	client.dispatch(func(string, []byte) error { panic("boom") }, "a/b", nil)
	client.dispatch(func(string, []byte) error { return errors.New("x") }, "a/b", nil)
}

func TestCallbacks_Set(t *testing.T) {
	client := &Client{}
	var disconnected error
	client.SetOnDisconnect(func(err error) { disconnected = err })

	lost := errors.New("broker gone")
	client.handleDisconnect(lost)

	if !errors.Is(disconnected, lost) {
		t.Errorf("onDisconnect got %v, want %v", disconnected, lost)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}
