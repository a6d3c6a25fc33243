package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// One climate point per poll: at the default 30s poll a batch of 20
	// is ten minutes of samples, so the flush interval does the work.
	defaultBatchSize     = 20
	defaultFlushInterval = 10 * time.Second
)

// Client writes climate telemetry to InfluxDB v2.
//
// Writes are batched and never block the poll loop. Asynchronous write
// failures go to the SetOnError callback. All methods are safe for
// concurrent use, and a zero Client behaves as already closed.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	open     atomic.Bool

	errMu   sync.Mutex
	onError func(err error)
}

// Connect pings the server and prepares a batched writer for cfg.Bucket.
// It returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.open.Store(true)
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	// #nosec G115 -- flush is a positive number of seconds
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("server not ready")
	}
	return nil
}

// forwardErrors drains the write API's error channel until Close.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.Lock()
		fn := c.onError
		c.errMu.Unlock()
		if fn != nil {
			fn(err)
		}
	}
}

// SetOnError sets a callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.errMu.Lock()
	c.onError = fn
	c.errMu.Unlock()
}

// IsConnected reports whether the client is open. HealthCheck pings.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Close writes any buffered samples and releases the client. Later writes
// are dropped.
func (c *Client) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
