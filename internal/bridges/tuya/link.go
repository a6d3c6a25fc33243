package tuya

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Identity is the fixed set of credentials for one device.
type Identity struct {
	DeviceID        string
	Address         string
	LocalKey        string
	ProtocolVersion string
}

// Complete reports whether every credential needed to connect is present.
func (id Identity) Complete() bool {
	return id.DeviceID != "" && id.Address != "" && id.LocalKey != ""
}

// RawDatapoints maps datapoint indices to device-native values as decoded
// from the device's JSON (bool, float64, string, or nested JSON).
type RawDatapoints map[int]any

// Clone returns a shallow, non-nil copy.
func (r RawDatapoints) Clone() RawDatapoints {
	out := make(RawDatapoints, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes indices as the string keys the device uses: {"1": true}.
func (r RawDatapoints) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r))
	for k, v := range r {
		m[strconv.Itoa(k)] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts string-keyed maps and skips non-numeric keys.
func (r *RawDatapoints) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(RawDatapoints, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[i] = v
	}
	*r = out
	return nil
}

// Indices returns the datapoint indices in ascending order.
func (r RawDatapoints) Indices() []int {
	out := make([]int, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// DeviceLink opens sessions to a device. Implementations hide the wire protocol.
type DeviceLink interface {
	// Connect opens a session. An error leaves nothing to close.
	Connect(ctx context.Context, id Identity) (Handle, error)
}

// Handle is one live device session. It is not safe for concurrent use;
// ConnectionManager guarantees a single caller at a time.
type Handle interface {
	// Status returns every datapoint the device reports.
	Status(ctx context.Context) (RawDatapoints, error)

	// SetValue writes one datapoint.
	SetValue(ctx context.Context, index int, value any) error

	// Close releases the session.
	Close() error
}

// Clock supplies the current time. Tests inject a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Logger is the logging interface used by this package. *logging.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
