package tuya

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultSettleDelay is how long Apply waits after a write before reading
// back the confirmed state. The unit needs a moment to report a change.
const DefaultSettleDelay = 500 * time.Millisecond

// Command sources recorded in the command log.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
	SourceCLI  = "cli"
)

// CommandRecord is one entry for the command log.
type CommandRecord struct {
	Command  string
	Value    any
	Index    int
	RawValue any
	Source   string
	Success  bool
	Error    string
	At       time.Time
}

// CommandRecorder persists applied commands. Implementations must be safe
// for concurrent use.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}

// CommandResult is the outcome of Apply.
type CommandResult struct {
	Success bool            `json:"success"`
	Command string          `json:"command"`
	Value   any             `json:"value"`
	Index   int             `json:"dp"`
	Status  CanonicalStatus `json:"status"`
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Manager     *ConnectionManager
	Table       *Table
	DisplayUnit TemperatureUnit

	// SettleDelay defaults to DefaultSettleDelay; negative disables it.
	SettleDelay time.Duration

	// Recorder is optional.
	Recorder CommandRecorder

	Clock  Clock
	Logger Logger
}

// Service is the calling layer's view of the device: status queries,
// validated commands and reconnects. It is safe for concurrent use.
type Service struct {
	manager  *ConnectionManager
	table    *Table
	unit     TemperatureUnit
	status   *StatusTranslator
	commands *CommandTranslator
	settle   time.Duration
	recorder CommandRecorder
	clock    Clock
	logger   Logger

	obsMu     sync.Mutex
	observers []observer
	nextObs   uint64
	lastRaw   RawDatapoints
}

// NewService wires the translators to the manager.
func NewService(opts ServiceOptions) *Service {
	s := &Service{
		manager:  opts.Manager,
		table:    opts.Table,
		unit:     opts.DisplayUnit,
		settle:   opts.SettleDelay,
		recorder: opts.Recorder,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if s.unit == "" {
		s.unit = Fahrenheit
	}
	if s.settle == 0 {
		s.settle = DefaultSettleDelay
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	s.status = NewStatusTranslator(s.table, s.unit)
	s.commands = NewCommandTranslator(s.table, s.unit)
	return s
}

// QueryStatus returns the canonical status, from cache when fresh.
func (s *Service) QueryStatus(ctx context.Context, forceRefresh bool) CanonicalStatus {
	raw := s.manager.Status(ctx, forceRefresh)
	st := s.status.Translate(raw)
	s.notify(raw, st)
	return st
}

// ExecuteCommand validates and translates a command without writing it.
func (s *Service) ExecuteCommand(name string, value any) (Command, error) {
	return s.commands.Translate(name, value)
}

// Reconnect drops the current session and opens a new one.
func (s *Service) Reconnect(ctx context.Context) bool {
	return s.manager.Connect(ctx)
}

// Apply validates a command, writes it, waits for the device to settle and
// returns the refreshed status.
//
// Returns a *ValidationError for rejected commands and ErrWriteFailed when
// the device could not be reached or refused the write.
func (s *Service) Apply(ctx context.Context, source, name string, value any) (*CommandResult, error) {
	cmd, err := s.commands.Translate(name, value)
	if err != nil {
		s.record(ctx, CommandRecord{
			Command: strings.ToLower(strings.TrimSpace(name)),
			Value:   value,
			Source:  source,
			Error:   err.Error(),
		})
		return nil, err
	}
	return s.write(ctx, source, cmd, value)
}

// WriteRaw writes a device-native value to any datapoint, bypassing
// translation. It exists for probing undocumented datapoints.
func (s *Service) WriteRaw(ctx context.Context, source string, index int, value any) (*CommandResult, error) {
	if index <= 0 {
		return nil, fmt.Errorf("%w: dp must be positive, got %d", ErrInvalidValue, index)
	}
	name := fmt.Sprintf("dp%d", index)
	if d, ok := s.table.ByIndex(index); ok {
		name = d.Name
	}
	return s.write(ctx, source, Command{Name: name, Index: index, Value: value}, value)
}

func (s *Service) write(ctx context.Context, source string, cmd Command, input any) (*CommandResult, error) {
	rec := CommandRecord{
		Command:  cmd.Name,
		Value:    input,
		Index:    cmd.Index,
		RawValue: cmd.Value,
		Source:   source,
	}

	if !s.manager.SetValue(ctx, cmd.Index, cmd.Value) {
		rec.Error = ErrWriteFailed.Error()
		s.record(ctx, rec)
		return nil, fmt.Errorf("%w: %s (dp %d)", ErrWriteFailed, cmd.Name, cmd.Index)
	}

	s.wait(ctx)
	st := s.QueryStatus(ctx, true)

	rec.Success = true
	s.record(ctx, rec)
	s.logger.Info("command applied", "command", cmd.Name, "dp", cmd.Index, "source", source)

	return &CommandResult{
		Success: true,
		Command: cmd.Name,
		Value:   cmd.Value,
		Index:   cmd.Index,
		Status:  st,
	}, nil
}

func (s *Service) wait(ctx context.Context) {
	if s.settle <= 0 {
		return
	}
	t := time.NewTimer(s.settle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *Service) record(ctx context.Context, rec CommandRecord) {
	if s.recorder == nil {
		return
	}
	rec.At = s.clock.Now()
	if err := s.recorder.RecordCommand(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("recording command failed", "command", rec.Command, "error", err)
	}
}

type observer struct {
	id uint64
	fn func(CanonicalStatus)
}

// OnStatus registers fn to be called whenever a queried status differs from
// the previous one. fn runs on the querying goroutine and must not block.
// The returned func removes fn; calling it more than once is harmless.
func (s *Service) OnStatus(fn func(CanonicalStatus)) (unregister func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, observer{id: id, fn: fn})

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		s.observers = slices.DeleteFunc(s.observers, func(o observer) bool { return o.id == id })
	}
}

func (s *Service) notify(raw RawDatapoints, st CanonicalStatus) {
	s.obsMu.Lock()
	if s.lastRaw != nil && reflect.DeepEqual(s.lastRaw, raw) {
		s.obsMu.Unlock()
		return
	}
	s.lastRaw = raw.Clone()
	observers := slices.Clone(s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(st)
	}
}

// Table returns the datapoint table.
func (s *Service) Table() *Table { return s.table }

// DisplayUnit returns the unit temperatures are reported in.
func (s *Service) DisplayUnit() TemperatureUnit { return s.unit }

// Identity returns the device credentials in use.
func (s *Service) Identity() Identity { return s.manager.Identity() }

// Connected reports whether the manager holds a session.
func (s *Service) Connected() bool { return s.manager.Connected() }

// Stats returns the manager's activity counters.
func (s *Service) Stats() ManagerStats { return s.manager.Stats() }

// IsValidation reports whether err is a command rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
