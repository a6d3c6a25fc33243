package tuyalink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
)

// SupportedVersion is the only protocol version this client speaks.
const SupportedVersion = "3.3"

// Default connection settings.
const (
	DefaultPort           = 6668
	defaultConnectTimeout = 5 * time.Second
	defaultIOTimeout      = 5 * time.Second

	// maxSkippedFrames bounds how many unrelated frames are discarded while
	// waiting for a reply.
	maxSkippedFrames = 8
)

// Config holds link settings shared by every session.
type Config struct {
	// Port is used when the identity's address has no port. Default: 6668.
	Port int

	// ConnectTimeout bounds the TCP dial. Default: 5 seconds.
	ConnectTimeout time.Duration

	// IOTimeout bounds each request/response round trip. Default: 5 seconds.
	IOTimeout time.Duration
}

// Link dials Tuya devices. It implements tuya.DeviceLink.
type Link struct {
	cfg    Config
	logger tuya.Logger
	now    func() time.Time // payload timestamps
}

var _ tuya.DeviceLink = (*Link)(nil)

// New creates a Link, applying defaults for zero fields.
func New(cfg Config) *Link {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	return &Link{cfg: cfg, now: time.Now}
}

// SetLogger sets an optional logger.
func (l *Link) SetLogger(logger tuya.Logger) {
	l.logger = logger
}

// Connect dials the device and returns a session.
//
// The local key and protocol version are checked before dialling; a
// session is returned only once the TCP connection is established.
func (l *Link) Connect(ctx context.Context, id tuya.Identity) (tuya.Handle, error) {
	if id.ProtocolVersion != "" && id.ProtocolVersion != SupportedVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, id.ProtocolVersion)
	}
	c, err := newECB([]byte(id.LocalKey))
	if err != nil {
		return nil, err
	}

	address := id.Address
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(l.cfg.Port))
	}

	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}

	if l.logger != nil {
		l.logger.Debug("tuya session opened", "address", address)
	}
	return &Session{
		conn:      conn,
		cipher:    c,
		id:        id,
		ioTimeout: l.cfg.IOTimeout,
		now:       l.now,
	}, nil
}

// Session is one TCP connection to a device.
type Session struct {
	conn      net.Conn
	cipher    *ecb
	id        tuya.Identity
	ioTimeout time.Duration
	now       func() time.Time

	seq       uint32
	closeOnce sync.Once
	closed    bool
}

var _ tuya.Handle = (*Session)(nil)

type queryPayload struct {
	GwID  string `json:"gwId"`
	DevID string `json:"devId"`
	UID   string `json:"uid"`
	T     string `json:"t"`
}

type controlPayload struct {
	DevID string         `json:"devId"`
	UID   string         `json:"uid"`
	T     string         `json:"t"`
	DPS   map[string]any `json:"dps"`
}

type statusPayload struct {
	DPS tuya.RawDatapoints `json:"dps"`
}

// Status queries every datapoint with DP_QUERY.
func (s *Session) Status(ctx context.Context) (tuya.RawDatapoints, error) {
	req, err := json.Marshal(queryPayload{
		GwID:  s.id.DeviceID,
		DevID: s.id.DeviceID,
		UID:   s.id.DeviceID,
		T:     s.timestamp(),
	})
	if err != nil {
		return nil, err
	}

	f, err := s.roundTrip(ctx, CmdDPQuery, s.cipher.encrypt(req))
	if err != nil {
		return nil, err
	}
	plain, err := s.open(f.Payload)
	if err != nil {
		return nil, err
	}

	var resp statusPayload
	if err := json.Unmarshal(plain, &resp); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceError, truncate(plain))
	}
	if resp.DPS == nil {
		return tuya.RawDatapoints{}, nil
	}
	return resp.DPS, nil
}

// SetValue writes one datapoint with CONTROL.
func (s *Session) SetValue(ctx context.Context, index int, value any) error {
	req, err := json.Marshal(controlPayload{
		DevID: s.id.DeviceID,
		UID:   s.id.DeviceID,
		T:     s.timestamp(),
		DPS:   map[string]any{strconv.Itoa(index): value},
	})
	if err != nil {
		return err
	}

	payload := append(append([]byte{}, versionHeader...), s.cipher.encrypt(req)...)
	f, err := s.roundTrip(ctx, CmdControl, payload)
	if err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		// Some firmware answers a rejected write with an encrypted error text.
		if plain, err := s.open(f.Payload); err == nil && len(plain) > 0 && !json.Valid(plain) {
			return fmt.Errorf("%w: %q", ErrDeviceError, truncate(plain))
		}
	}
	return nil
}

// Heartbeat sends a keepalive and waits for the echo.
func (s *Session) Heartbeat(ctx context.Context) error {
	_, err := s.roundTrip(ctx, CmdHeartbeat, nil)
	return err
}

// Close closes the TCP connection. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed = true
		err = s.conn.Close()
	})
	return err
}

// roundTrip writes one frame and reads until the reply for cmd arrives.
func (s *Session) roundTrip(ctx context.Context, cmd uint32, payload []byte) (Frame, error) {
	if s.closed {
		return Frame{}, ErrClosed
	}

	deadline := time.Now().Add(s.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return Frame{}, fmt.Errorf("set deadline: %w", err)
	}

	s.seq++
	if _, err := s.conn.Write(encodeFrame(s.seq, cmd, payload)); err != nil {
		return Frame{}, fmt.Errorf("write: %w", err)
	}

	for i := 0; i < maxSkippedFrames; i++ {
		f, err := readFrame(s.conn, true)
		if err != nil {
			return Frame{}, fmt.Errorf("read: %w", err)
		}
		if f.Cmd != cmd {
			continue
		}
		if f.HasReturnCode && f.ReturnCode != 0 {
			return Frame{}, fmt.Errorf("%w: return code %d", ErrDeviceError, f.ReturnCode)
		}
		return f, nil
	}
	return Frame{}, fmt.Errorf("%w: no reply to command %d", ErrInvalidFrame, cmd)
}

// open strips the version header and decrypts a device payload. Plain-text
// device errors (which are not block aligned) surface as ErrDeviceError.
func (s *Session) open(payload []byte) ([]byte, error) {
	payload = stripVersionHeader(payload)
	if len(payload)%16 != 0 {
		return nil, fmt.Errorf("%w: %q", ErrDeviceError, truncate(payload))
	}
	return s.cipher.decrypt(payload)
}

func (s *Session) timestamp() string {
	return strconv.FormatInt(s.now().Unix(), 10)
}

func truncate(b []byte) string {
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
