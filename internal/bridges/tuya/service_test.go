package tuya_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya/tuyatest"
)

type mockRecorder struct {
	mu      sync.Mutex
	records []tuya.CommandRecord
	err     error
}

func (r *mockRecorder) RecordCommand(_ context.Context, rec tuya.CommandRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

func (r *mockRecorder) all() []tuya.CommandRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tuya.CommandRecord(nil), r.records...)
}

func newService(t *testing.T, link *tuyatest.Link, rec tuya.CommandRecorder) *tuya.Service {
	t.Helper()
	m, clock := newManager(t, link)
	return tuya.NewService(tuya.ServiceOptions{
		Manager:     m,
		Table:       tuya.DefaultTable(),
		DisplayUnit: tuya.Fahrenheit,
		SettleDelay: -1,
		Recorder:    rec,
		Clock:       clock,
	})
}

func TestService_QueryStatus(t *testing.T) {
	svc := newService(t, tuyatest.NewLink(deviceState()), nil)

	st := svc.QueryStatus(context.Background(), false)
	if !st.Online {
		t.Fatal("Online = false")
	}
	if st.TargetTemp == nil || *st.TargetTemp != 74.0 {
		t.Errorf("TargetTemp = %v, want 74.0", st.TargetTemp)
	}
	if st.Mode == nil || *st.Mode != "cool" {
		t.Errorf("Mode = %v, want cool", st.Mode)
	}
}

func TestService_QueryStatusOffline(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	link.SetConnectError(errLinkDown)
	svc := newService(t, link, nil)

	st := svc.QueryStatus(context.Background(), false)
	if st.Online || st.Power != nil {
		t.Errorf("offline status = %+v", st)
	}
}

func TestService_ExecuteCommandDoesNotWrite(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	svc := newService(t, link, nil)

	cmd, err := svc.ExecuteCommand("target_temp", 74)
	if err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if cmd.Index != 2 || cmd.Value != 740 {
		t.Errorf("ExecuteCommand() = %+v, want dp 2 value 740", cmd)
	}
	if link.SetCalls() != 0 || link.Connects() != 0 {
		t.Error("ExecuteCommand touched the device")
	}
}

func TestService_Apply(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	rec := &mockRecorder{}
	svc := newService(t, link, rec)
	ctx := context.Background()

	svc.QueryStatus(ctx, false)
	res, err := svc.Apply(ctx, tuya.SourceAPI, "Target_Temp", 70)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.Success || res.Command != "target_temp" || res.Index != 2 || res.Value != 700 {
		t.Errorf("Apply() = %+v", res)
	}
	if res.Status.TargetTemp == nil || *res.Status.TargetTemp != 70.0 {
		t.Errorf("refreshed TargetTemp = %v, want 70.0", res.Status.TargetTemp)
	}
	if link.StatusCalls() != 2 {
		t.Errorf("StatusCalls() = %d, want forced refresh after write", link.StatusCalls())
	}

	records := rec.all()
	if len(records) != 1 {
		t.Fatalf("recorded %d commands, want 1", len(records))
	}
	r := records[0]
	if !r.Success || r.Command != "target_temp" || r.Source != tuya.SourceAPI || r.RawValue != 700 || r.At != epoch {
		t.Errorf("record = %+v", r)
	}
}

func TestService_ApplyValidationError(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	rec := &mockRecorder{}
	svc := newService(t, link, rec)

	_, err := svc.Apply(context.Background(), tuya.SourceMQTT, "mode", "invalid_mode")
	var ve *tuya.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Apply() error = %v, want *ValidationError", err)
	}
	if len(ve.Valid) == 0 {
		t.Error("ValidationError.Valid is empty")
	}
	if link.SetCalls() != 0 {
		t.Error("rejected command reached the device")
	}
	if records := rec.all(); len(records) != 1 || records[0].Success || records[0].Command != "mode" {
		t.Errorf("records = %+v", records)
	}
}

func TestService_ApplyWriteFailure(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	link.SetSetError(errLinkDown)
	rec := &mockRecorder{err: errors.New("disk full")}
	svc := newService(t, link, rec)

	_, err := svc.Apply(context.Background(), tuya.SourceAPI, "power", false)
	if !errors.Is(err, tuya.ErrWriteFailed) {
		t.Fatalf("Apply() error = %v, want ErrWriteFailed", err)
	}
	if tuya.IsValidation(err) {
		t.Error("write failure reported as validation error")
	}
	if records := rec.all(); len(records) != 1 || records[0].Success {
		t.Errorf("records = %+v", records)
	}
}

func TestService_WriteRaw(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	svc := newService(t, link, nil)
	ctx := context.Background()

	res, err := svc.WriteRaw(ctx, tuya.SourceCLI, 140, "sample")
	if err != nil {
		t.Fatalf("WriteRaw() error = %v", err)
	}
	if res.Command != "dp140" || res.Index != 140 {
		t.Errorf("WriteRaw() = %+v", res)
	}
	if link.Datapoints()[140] != "sample" {
		t.Error("raw write did not reach the device")
	}

	res, err = svc.WriteRaw(ctx, tuya.SourceCLI, 4, "hot")
	if err != nil || res.Command != "mode" {
		t.Errorf("WriteRaw(4) = %+v, %v; want named mode", res, err)
	}

	if _, err := svc.WriteRaw(ctx, tuya.SourceCLI, 0, 1); !errors.Is(err, tuya.ErrInvalidValue) {
		t.Errorf("WriteRaw(0) error = %v, want ErrInvalidValue", err)
	}
}

func TestService_Reconnect(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	svc := newService(t, link, nil)
	ctx := context.Background()

	if !svc.Reconnect(ctx) {
		t.Fatal("Reconnect() = false")
	}
	link.SetConnectError(errLinkDown)
	if svc.Reconnect(ctx) {
		t.Error("Reconnect() = true while device unreachable")
	}
	if svc.Connected() {
		t.Error("Connected() = true after failed reconnect")
	}
}

func TestService_OnStatusFiresOnChange(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	svc := newService(t, link, nil)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen []tuya.CanonicalStatus
	)
	svc.OnStatus(func(st tuya.CanonicalStatus) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	svc.QueryStatus(ctx, true)
	svc.QueryStatus(ctx, true)
	link.SetDatapoint(1, false)
	svc.QueryStatus(ctx, true)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("observer called %d times, want 2", len(seen))
	}
	if seen[1].Power == nil || *seen[1].Power {
		t.Errorf("second notification Power = %v, want false", seen[1].Power)
	}
}

func TestService_OnStatusUnregister(t *testing.T) {
	link := tuyatest.NewLink(deviceState())
	svc := newService(t, link, nil)
	ctx := context.Background()

	var kept, removed int
	svc.OnStatus(func(tuya.CanonicalStatus) { kept++ })
	unregister := svc.OnStatus(func(tuya.CanonicalStatus) { removed++ })

	svc.QueryStatus(ctx, true)
	unregister()
	unregister()
	link.SetDatapoint(1, false)
	svc.QueryStatus(ctx, true)

	if kept != 2 {
		t.Errorf("remaining observer called %d times, want 2", kept)
	}
	if removed != 1 {
		t.Errorf("removed observer called %d times, want 1", removed)
	}
}

func TestService_Accessors(t *testing.T) {
	svc := newService(t, tuyatest.NewLink(deviceState()), nil)

	if svc.DisplayUnit() != tuya.Fahrenheit {
		t.Errorf("DisplayUnit() = %q", svc.DisplayUnit())
	}
	if svc.Identity() != testIdentity {
		t.Errorf("Identity() = %+v", svc.Identity())
	}
	if svc.Table().Len() == 0 {
		t.Error("Table() is empty")
	}
	svc.QueryStatus(context.Background(), false)
	if st := svc.Stats(); !st.Connected || st.DeviceReads != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}
