package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-minisplit/internal/audit"
	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-minisplit/migrations"
)

func newRepo(t *testing.T) *audit.SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath, Migrations: migrations.FS})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return audit.NewSQLiteRepository(db.DB)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := newRepo(t)
	e := &audit.Entry{Command: "power", Value: true, Index: 1, RawValue: true, Source: tuya.SourceAPI, Success: true}

	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(e.ID) != len("cmd-")+16 || e.ID[:4] != "cmd-" {
		t.Errorf("ID = %q, want cmd- plus 16 characters", e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestCreate_IDsAreDistinct(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		e := &audit.Entry{Command: "power", Value: true, Index: 1, RawValue: true, Source: tuya.SourceMQTT, Success: true}
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[e.ID] {
			t.Fatalf("duplicate ID %q", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestList_RoundTripsValues(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, &audit.Entry{
		Command: "target_temp", Value: 72.5, Index: 2, RawValue: 725,
		Source: tuya.SourceMQTT, Success: true, CreatedAt: at,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, &audit.Entry{
		Command: "mode", Value: "invalid_mode", Source: tuya.SourceAPI,
		Error: "invalid value", CreatedAt: at.Add(time.Second),
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := repo.List(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 || len(res.Entries) != 2 || res.Limit != audit.DefaultLimit {
		t.Fatalf("List() = %+v", res)
	}

	newest, oldest := res.Entries[0], res.Entries[1]
	if newest.Command != "mode" || newest.Success || newest.Error != "invalid value" || newest.RawValue != nil {
		t.Errorf("newest = %+v", newest)
	}
	if oldest.Value != 72.5 || oldest.RawValue != float64(725) || oldest.Index != 2 || !oldest.Success {
		t.Errorf("oldest = %+v", oldest)
	}
	if !oldest.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", oldest.CreatedAt, at)
	}
}

func TestList_FiltersAndPagination(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		source := tuya.SourceAPI
		if i%2 == 1 {
			source = tuya.SourceCLI
		}
		if err := repo.Create(ctx, &audit.Entry{
			Command: "power", Value: i, Source: source, Success: i != 4,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	failed := false
	tests := []struct {
		name      string
		filter    audit.Filter
		wantTotal int
		wantLen   int
		wantFirst float64
	}{
		{"page", audit.Filter{Limit: 2, Offset: 1}, 5, 2, 3},
		{"source", audit.Filter{Source: tuya.SourceCLI}, 2, 2, 3},
		{"failures", audit.Filter{Success: &failed}, 1, 1, 4},
		{"command miss", audit.Filter{Command: "mode"}, 0, 0, -1},
		{"limit capped", audit.Filter{Limit: 1000}, 5, 5, 4},
		{"negative offset", audit.Filter{Offset: -3, Limit: 1}, 5, 1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Entries) != tt.wantLen {
				t.Fatalf("Total=%d len=%d, want %d and %d", res.Total, len(res.Entries), tt.wantTotal, tt.wantLen)
			}
			if tt.wantLen > 0 && res.Entries[0].Value != tt.wantFirst {
				t.Errorf("first Value = %v, want %v", res.Entries[0].Value, tt.wantFirst)
			}
			if res.Limit > audit.MaxLimit || res.Offset < 0 {
				t.Errorf("Limit=%d Offset=%d out of bounds", res.Limit, res.Offset)
			}
		})
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	res, err := newRepo(t).List(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Entries == nil {
		t.Error("Entries = nil, want empty slice for JSON")
	}
}

func TestRecorder_RecordCommand(t *testing.T) {
	repo := newRepo(t)
	rec := audit.NewRecorder(repo)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := rec.RecordCommand(context.Background(), tuya.CommandRecord{
		Command: "fan_speed", Value: "turbo", Index: 5, RawValue: "strong",
		Source: tuya.SourceCLI, Success: true, At: at,
	})
	if err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}

	res, err := repo.List(context.Background(), audit.Filter{Command: "fan_speed"})
	if err != nil || len(res.Entries) != 1 {
		t.Fatalf("List() = %+v, %v", res, err)
	}
	e := res.Entries[0]
	if e.Value != "turbo" || e.RawValue != "strong" || e.Index != 5 || e.Source != tuya.SourceCLI || !e.CreatedAt.Equal(at) {
		t.Errorf("entry = %+v", e)
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	repo := newRepo(t)
	rec := audit.NewRecorder(repo)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.RecordCommand(context.Background(), tuya.CommandRecord{Command: "power", Source: tuya.SourceAPI}); err != nil {
				t.Errorf("RecordCommand() error = %v", err)
			}
		}()
	}
	wg.Wait()

	res, err := repo.List(context.Background(), audit.Filter{})
	if err != nil || res.Total != 10 {
		t.Errorf("Total = %v, %v; want 10", res, err)
	}
}
