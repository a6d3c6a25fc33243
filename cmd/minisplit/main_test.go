package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/logging"
)

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// writeTestConfig writes a config pointing at an unreachable device with
// every optional integration disabled.
func writeTestConfig(t *testing.T, apiPort int, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`
device:
  id: "bf0123456789abcdef"
  address: "127.0.0.1"
  local_key: "0123456789abcdef"
  port: %d
  connect_timeout: 500ms
  io_timeout: 500ms
bridge:
  settle_delay: 0s
api:
  host: "127.0.0.1"
  port: %d
  token: "test-token"
logging:
  level: error
  output: stderr
%s`, closedPort(t), apiPort, extra)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// TestRun_InvalidConfig verifies run fails with an explicit missing config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MINISPLIT_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, &options{}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingCredentials verifies validation errors stop startup.
func TestRun_MissingCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api:\n  token: x\n"), 0600); err != nil {
		t.Fatal(err)
	}

	err := run(context.Background(), &options{configPath: path})
	if err == nil || !strings.Contains(err.Error(), "device.id is required") {
		t.Fatalf("run() error = %v, want device.id validation error", err)
	}
}

// TestRun_ServesUntilCancelled starts the bridge with an offline device and
// checks the API answers until the context is cancelled.
func TestRun_ServesUntilCancelled(t *testing.T) {
	apiPort := closedPort(t)
	path := writeTestConfig(t, apiPort, "database:\n  enabled: true\n  path: "+filepath.Join(t.TempDir(), "log.db")+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, &options{configPath: path}) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", apiPort)
	deadline := time.Now().Add(5 * time.Second)
	var status int
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			status = resp.StatusCode
			resp.Body.Close()
			break
		}
		select {
		case err := <-done:
			t.Fatalf("run() exited early: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	}
	if status != http.StatusOK {
		t.Fatalf("health status = %d, want 200", status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestGetConfigPath(t *testing.T) {
	tests := []struct {
		name         string
		flag         string
		env          string
		want         string
		wantExplicit bool
	}{
		{"default", "", "", defaultConfigPath, false},
		{"env", "", "/etc/minisplit.yaml", "/etc/minisplit.yaml", true},
		{"flag wins", "/tmp/flag.yaml", "/etc/minisplit.yaml", "/tmp/flag.yaml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MINISPLIT_CONFIG", tt.env)
			got, explicit := (&options{configPath: tt.flag}).getConfigPath()
			if got != tt.want || explicit != tt.wantExplicit {
				t.Errorf("getConfigPath() = (%q, %v), want (%q, %v)", got, explicit, tt.want, tt.wantExplicit)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"72", float64(72)},
		{"true", true},
		{"heat", "heat"},
		{`"heat"`, "heat"},
		{"medium-low", "medium-low"},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); got != tt.want {
			t.Errorf("parseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestDatapointsCmd(t *testing.T) {
	t.Setenv("MINISPLIT_DATAPOINTS_FILE", "")

	out, err := execute(t, "datapoints")
	if err != nil {
		t.Fatalf("datapoints error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != tuya.DefaultTable().Len()+1 {
		t.Fatalf("got %d lines, want header + %d rows", len(lines), tuya.DefaultTable().Len())
	}
	if !strings.HasPrefix(lines[0], "DP") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(out, "target_temp") || !strings.Contains(out, "unit=F scale=10 range=61..86") {
		t.Errorf("target_temp row missing details:\n%s", out)
	}
}

func TestDatapointsCmd_BadFile(t *testing.T) {
	if _, err := execute(t, "datapoints", "--file", "/nonexistent/datapoints.yaml"); err == nil {
		t.Error("datapoints with missing file should fail")
	}
}

func TestSendCmd_RejectsBeforeDevice(t *testing.T) {
	path := writeTestConfig(t, 8000, "")

	_, err := execute(t, "--config", path, "send", "mode", "banana")
	if err == nil {
		t.Fatal("send with invalid mode should fail")
	}
	if !errors.Is(err, tuya.ErrInvalidValue) || !strings.Contains(err.Error(), "valid: ") {
		t.Errorf("error = %v, want invalid value listing valid modes", err)
	}
}

func TestSendCmd_Unreachable(t *testing.T) {
	path := writeTestConfig(t, 8000, "")

	_, err := execute(t, "--config", path, "send", "power", "true")
	if !errors.Is(err, tuya.ErrWriteFailed) {
		t.Errorf("error = %v, want ErrWriteFailed", err)
	}
}

func TestStatusCmd_Unreachable(t *testing.T) {
	path := writeTestConfig(t, 8000, "")

	out, err := execute(t, "--config", path, "status", "--refresh")
	if !errors.Is(err, errDeviceUnreachable) {
		t.Errorf("error = %v, want errDeviceUnreachable", err)
	}
	if !strings.Contains(out, `"online": false`) {
		t.Errorf("output = %q, want offline status", out)
	}
}

func TestRawCmd_BadIndex(t *testing.T) {
	if _, err := execute(t, "raw", "power", "true"); err == nil || !strings.Contains(err.Error(), "dp must be an integer") {
		t.Errorf("error = %v", err)
	}
}

type mockSink struct {
	mu      sync.Mutex
	samples []influxdb.ClimateSample
	devices []string
}

func (m *mockSink) WriteClimateSample(deviceID string, s influxdb.ClimateSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, deviceID)
	m.samples = append(m.samples, s)
}

func TestClimateMetrics(t *testing.T) {
	sink := &mockSink{}
	m := &climateMetrics{client: sink, unit: "F"}

	on, mode, fan, target := true, "heat", "auto", 72.0
	m.WriteClimate("bf01", tuya.CanonicalStatus{Online: true, Power: &on, Mode: &mode, Fan: &fan, TargetTemp: &target})
	m.WriteClimate("bf01", tuya.CanonicalStatus{Online: false})

	if len(sink.samples) != 1 {
		t.Fatalf("got %d samples, want 1 (offline skipped)", len(sink.samples))
	}
	s := sink.samples[0]
	if sink.devices[0] != "bf01" || s.Mode != "heat" || s.Fan != "auto" || s.Unit != "F" {
		t.Errorf("sample = %+v", s)
	}
	if s.TargetTemp == nil || *s.TargetTemp != 72.0 || s.Power == nil || !*s.Power {
		t.Errorf("sample readings = %+v", s)
	}
	if s.CurrentTemp != nil || s.Humidity != nil {
		t.Error("absent readings should stay nil")
	}
}

func TestConnectDevice(t *testing.T) {
	cfg, _, err := (&options{configPath: writeTestConfig(t, 8000, "")}).loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	dev, err := newDevice(cfg, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("newDevice() error = %v", err)
	}
	if connectDevice(context.Background(), dev, logging.Discard()) {
		t.Error("connectDevice() = true with nothing listening")
	}
	if got := dev.manager.Stats().ConnectAttempts; got != 1 {
		t.Errorf("ConnectAttempts = %d, want 1", got)
	}
	dev.manager.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		var held []net.Conn
		defer func() {
			for _, c := range held {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()

	cfg.Device.Port = ln.Addr().(*net.TCPAddr).Port
	dev, err = newDevice(cfg, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("newDevice() error = %v", err)
	}
	defer dev.manager.Close()

	if !connectDevice(context.Background(), dev, logging.Discard()) {
		t.Fatal("connectDevice() = false with a listening device")
	}
	if !dev.manager.Connected() {
		t.Error("manager not connected after startup connect")
	}
}
