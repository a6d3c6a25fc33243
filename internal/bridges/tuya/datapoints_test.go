package tuya

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name     string
		index    int
		typ      SemanticType
		readOnly bool
	}{
		{"power", 1, TypeBoolean, false},
		{"target_temp", 2, TypeInteger, false},
		{"current_temp", 3, TypeInteger, true},
		{"mode", 4, TypeEnumeration, false},
		{"fan", 5, TypeEnumeration, false},
		{"humidity", 18, TypeInteger, true},
		{"vert_swing", 113, TypeEnumeration, false},
		{"horiz_swing", 114, TypeEnumeration, false},
		{"display_beep", 123, TypeRawHex, false},
		{"filter_dirty", 131, TypeBoolean, true},
		{"stats", 134, TypeStructured, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := table.Lookup(tt.name)
			if !ok {
				t.Fatalf("Lookup(%q) not found", tt.name)
			}
			if d.Index != tt.index || d.Type != tt.typ || d.ReadOnly != tt.readOnly {
				t.Errorf("Lookup(%q) = %+v, want dp %d type %s readonly %v",
					tt.name, d, tt.index, tt.typ, tt.readOnly)
			}
		})
	}

	target, _ := table.Lookup("target_temp")
	if target.Unit != Fahrenheit || target.Factor() != 10 {
		t.Errorf("target_temp unit/scale = %s/%d, want F/10", target.Unit, target.Factor())
	}
	if target.Range == nil || target.Range.Min != 61 || target.Range.Max != 86 {
		t.Errorf("target_temp range = %+v, want 61-86", target.Range)
	}
	current, _ := table.Lookup("current_temp")
	if current.Unit != Celsius || current.Factor() != 1 {
		t.Errorf("current_temp unit/scale = %s/%d, want C/1", current.Unit, current.Factor())
	}

	mode, _ := table.Lookup("mode")
	if mode.Vocabulary != "mode" {
		t.Errorf("mode vocabulary = %q, want mode", mode.Vocabulary)
	}
	if got := table.Vocabulary(mode).ToCanonical("cold"); got != "cool" {
		t.Errorf("mode cold -> %q, want cool", got)
	}
}

func TestDefaultTable_MatchesShippedConfig(t *testing.T) {
	path := filepath.Join("..", "..", "..", "configs", "datapoints.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Skipf("shipped config not found: %v", err)
	}
	shipped, err := ParseTable(data)
	if err != nil {
		t.Fatalf("ParseTable(configs/datapoints.yaml) error = %v", err)
	}
	if shipped.Len() != DefaultTable().Len() {
		t.Errorf("shipped table has %d datapoints, built-in has %d", shipped.Len(), DefaultTable().Len())
	}
}

func TestTable_ByIndexAndOrder(t *testing.T) {
	table := DefaultTable()

	d, ok := table.ByIndex(5)
	if !ok || d.Name != "fan" {
		t.Errorf("ByIndex(5) = %+v, %v; want fan", d, ok)
	}
	if _, ok := table.ByIndex(999); ok {
		t.Error("ByIndex(999) should not be found")
	}
	if _, ok := table.Lookup("nonexistent"); ok {
		t.Error("Lookup(nonexistent) should not be found")
	}

	descs := table.Descriptors()
	for i := 1; i < len(descs); i++ {
		if descs[i-1].Index >= descs[i].Index {
			t.Fatalf("Descriptors() not ordered by index at %d: %d >= %d", i, descs[i-1].Index, descs[i].Index)
		}
	}
}

func TestParseSemanticType(t *testing.T) {
	tests := []struct {
		in   string
		want SemanticType
	}{
		{"bool", TypeBoolean},
		{"Boolean", TypeBoolean},
		{"int", TypeInteger},
		{"enum", TypeEnumeration},
		{"string", TypeString},
		{"hex", TypeRawHex},
		{"rawHex", TypeRawHex},
		{"json", TypeStructured},
	}
	for _, tt := range tests {
		got, err := ParseSemanticType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseSemanticType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseSemanticType("bitmap"); err == nil {
		t.Error("ParseSemanticType(bitmap) expected error")
	}
}

func TestParseTable_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "no datapoints",
			yaml:    "mode_map: {}",
			wantMsg: "no datapoints",
		},
		{
			name: "duplicate index",
			yaml: `
datapoints:
  power: {dp: 1, type: bool}
  light: {dp: 1, type: bool}
`,
			wantMsg: "already used",
		},
		{
			name: "non-positive index",
			yaml: `
datapoints:
  power: {dp: 0, type: bool}
`,
			wantMsg: "positive",
		},
		{
			name: "unknown type",
			yaml: `
datapoints:
  power: {dp: 1, type: bitmap}
`,
			wantMsg: "unknown datapoint type",
		},
		{
			name: "empty enum set",
			yaml: `
datapoints:
  mode: {dp: 4, type: enum, values: []}
`,
			wantMsg: "value set is empty",
		},
		{
			name: "inverted range",
			yaml: `
datapoints:
  target_temp: {dp: 2, type: int, min: 90, max: 60}
`,
			wantMsg: "exceeds max",
		},
		{
			name: "half range",
			yaml: `
datapoints:
  target_temp: {dp: 2, type: int, min: 60}
`,
			wantMsg: "declared together",
		},
		{
			name: "unit on enum",
			yaml: `
datapoints:
  mode: {dp: 4, type: enum, unit: F, values: [a]}
`,
			wantMsg: "unit is only valid",
		},
		{
			name: "undefined vocabulary",
			yaml: `
datapoints:
  mode: {dp: 4, type: enum, values: [a], vocabulary: modes}
`,
			wantMsg: "not defined",
		},
		{
			name:    "malformed yaml",
			yaml:    "datapoints: [",
			wantMsg: "parsing yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable([]byte(tt.yaml))
			if err == nil {
				t.Fatal("ParseTable() expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidTable) {
				t.Errorf("error %v does not wrap ErrInvalidTable", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParseTable_UndeclaredEnumSet(t *testing.T) {
	table, err := ParseTable([]byte(`
datapoints:
  preset: {dp: 9, type: enum}
vocabularies:
  preset:
    hubitat_to_tuya: {away: eco}
`))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	d, _ := table.Lookup("preset")
	if d.Values != nil {
		t.Errorf("Values = %v, want nil for an undeclared set", d.Values)
	}
	if d.Vocabulary != "preset" {
		t.Errorf("Vocabulary = %q, want preset picked up by name", d.Vocabulary)
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dps.yaml")
	content := "datapoints:\n  power: {dp: 1, type: bool}\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}

	if _, err := LoadTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadTable(missing) expected error")
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		v        float64
		from, to TemperatureUnit
		want     float64
	}{
		{0, Celsius, Fahrenheit, 32},
		{100, Celsius, Fahrenheit, 212},
		{212, Fahrenheit, Celsius, 100},
		{74, Fahrenheit, Fahrenheit, 74},
		{21, "", Fahrenheit, 21},
	}
	for _, tt := range tests {
		if got := Convert(tt.v, tt.from, tt.to); got != tt.want {
			t.Errorf("Convert(%v, %s, %s) = %v, want %v", tt.v, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseTemperatureUnit(t *testing.T) {
	for in, want := range map[string]TemperatureUnit{"f": Fahrenheit, "C": Celsius, "celsius": Celsius} {
		got, err := ParseTemperatureUnit(in)
		if err != nil || got != want {
			t.Errorf("ParseTemperatureUnit(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseTemperatureUnit("K"); err == nil {
		t.Error("ParseTemperatureUnit(K) expected error")
	}
}
