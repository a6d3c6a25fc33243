//go:build integration

package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func TestIntegration_Connect(t *testing.T) {
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "minisplit-int-subs"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := client.Topics()
	handler := func(string, []byte) error { return nil }
	for _, topic := range []string{topics.Command(Protocol, "a"), topics.Command(Protocol, "b")} {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	client.subMu.RLock()
	tracked := len(client.subscriptions)
	client.subMu.RUnlock()
	if tracked != 2 {
		t.Errorf("tracked subscriptions = %d, want 2", tracked)
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	cfg := testConfig()

	cfg.Broker.ClientID = "minisplit-int-pub"
	pub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	cfg.Broker.ClientID = "minisplit-int-sub"
	sub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	topic := sub.Topics().Ack(Protocol, "roundtrip")
	expected := `{"success":true}`

	received := make(chan string, 1)
	var once sync.Once
	err = sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("received %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestIntegration_PublishRetainedState(t *testing.T) {
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.Publish(client.Topics().State(Protocol, "int-test"), []byte(`{"online":true}`), 1, true); err != nil {
		t.Errorf("Publish(retained) error = %v", err)
	}
}
