package tuya

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SemanticType is the value class of a datapoint.
type SemanticType string

// Datapoint value classes.
const (
	TypeBoolean     SemanticType = "boolean"
	TypeInteger     SemanticType = "integer"
	TypeEnumeration SemanticType = "enumeration"
	TypeString      SemanticType = "string"
	TypeRawHex      SemanticType = "rawHex"
	TypeStructured  SemanticType = "structured"
)

// ParseSemanticType accepts the canonical names and the short spellings
// used in datapoint files (bool, int, enum, hex, json).
func ParseSemanticType(s string) (SemanticType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return TypeBoolean, nil
	case "int", "integer", "value":
		return TypeInteger, nil
	case "enum", "enumeration":
		return TypeEnumeration, nil
	case "string", "str":
		return TypeString, nil
	case "hex", "rawhex", "raw":
		return TypeRawHex, nil
	case "json", "structured":
		return TypeStructured, nil
	default:
		return "", fmt.Errorf("unknown datapoint type %q", s)
	}
}

// Default clamp bounds for temperature datapoints without a declared range,
// in the datapoint's native unit before scaling.
const (
	DefaultTempMin = 61
	DefaultTempMax = 86
)

// Range is an inclusive bound in the datapoint's unscaled native unit.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Descriptor describes one device datapoint.
type Descriptor struct {
	Name        string          `json:"name"`
	Index       int             `json:"dp"`
	Type        SemanticType    `json:"type"`
	Scale       int             `json:"scale,omitempty"`
	Range       *Range          `json:"range,omitempty"`
	Values      []string        `json:"values,omitempty"`
	ReadOnly    bool            `json:"readonly,omitempty"`
	Unit        TemperatureUnit `json:"unit,omitempty"`
	Vocabulary  string          `json:"vocabulary,omitempty"`
	Description string          `json:"description,omitempty"`
}

// IsTemperature reports whether the datapoint carries a temperature.
func (d Descriptor) IsTemperature() bool {
	return d.Unit != ""
}

// Factor returns the fixed-point multiplier; an unset scale is 1.
func (d Descriptor) Factor() int {
	if d.Scale <= 0 {
		return 1
	}
	return d.Scale
}

// VocabularyMap translates enumeration values between device and canonical
// spellings. Values without an entry pass through unchanged.
type VocabularyMap struct {
	DeviceToCanonical map[string]string `json:"device_to_canonical,omitempty"`
	CanonicalToDevice map[string]string `json:"canonical_to_device,omitempty"`
}

// ToCanonical maps a device value to its canonical spelling.
func (v VocabularyMap) ToCanonical(s string) string {
	if c, ok := v.DeviceToCanonical[s]; ok {
		return c
	}
	return s
}

// ToDevice maps a canonical value to the device's spelling.
func (v VocabularyMap) ToDevice(s string) string {
	if d, ok := v.CanonicalToDevice[s]; ok {
		return d
	}
	return s
}

// Table is a validated, immutable set of datapoint descriptors.
type Table struct {
	byName  map[string]Descriptor
	byIndex map[int]string
	vocab   map[string]VocabularyMap
}

// NewTable validates descriptors and vocabularies and builds a Table.
//
// Validation rejects empty names, non-positive or duplicate indices, unknown
// types, declared-but-empty enumeration sets, inverted ranges, units on
// non-integer datapoints and references to undefined vocabularies. All
// problems are reported together.
func NewTable(descriptors []Descriptor, vocabularies map[string]VocabularyMap) (*Table, error) {
	t := &Table{
		byName:  make(map[string]Descriptor, len(descriptors)),
		byIndex: make(map[int]string, len(descriptors)),
		vocab:   make(map[string]VocabularyMap, len(vocabularies)),
	}
	for name, v := range vocabularies {
		t.vocab[name] = v
	}

	var errs []string
	for _, d := range descriptors {
		errs = append(errs, t.validateDescriptor(d)...)

		if _, dup := t.byName[d.Name]; dup {
			errs = append(errs, fmt.Sprintf("%s: duplicate name", d.Name))
			continue
		}
		if other, dup := t.byIndex[d.Index]; dup && d.Index > 0 {
			errs = append(errs, fmt.Sprintf("%s: dp %d already used by %s", d.Name, d.Index, other))
			continue
		}
		if d.Vocabulary == "" {
			if _, ok := t.vocab[d.Name]; ok && d.Type == TypeEnumeration {
				d.Vocabulary = d.Name
			}
		}
		t.byName[d.Name] = d
		t.byIndex[d.Index] = d.Name
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(errs, "; "))
	}
	return t, nil
}

func (t *Table) validateDescriptor(d Descriptor) []string {
	var errs []string
	if d.Name == "" {
		errs = append(errs, fmt.Sprintf("dp %d: name is required", d.Index))
	}
	if d.Index <= 0 {
		errs = append(errs, fmt.Sprintf("%s: dp must be a positive integer", d.Name))
	}
	switch d.Type {
	case TypeBoolean, TypeInteger, TypeEnumeration, TypeString, TypeRawHex, TypeStructured:
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown type %q", d.Name, d.Type))
	}
	if d.Values != nil && len(d.Values) == 0 {
		errs = append(errs, fmt.Sprintf("%s: declared value set is empty", d.Name))
	}
	if d.Range != nil && d.Range.Min > d.Range.Max {
		errs = append(errs, fmt.Sprintf("%s: min %d exceeds max %d", d.Name, d.Range.Min, d.Range.Max))
	}
	if d.Scale < 0 {
		errs = append(errs, fmt.Sprintf("%s: scale must not be negative", d.Name))
	}
	if d.Unit != "" && d.Type != TypeInteger {
		errs = append(errs, fmt.Sprintf("%s: unit is only valid on integer datapoints", d.Name))
	}
	if d.Vocabulary != "" {
		if _, ok := t.vocab[d.Vocabulary]; !ok {
			errs = append(errs, fmt.Sprintf("%s: vocabulary %q is not defined", d.Name, d.Vocabulary))
		}
	}
	return errs
}

// Lookup returns the descriptor for a canonical name.
func (t *Table) Lookup(name string) (Descriptor, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// ByIndex returns the descriptor for a datapoint index.
func (t *Table) ByIndex(index int) (Descriptor, bool) {
	name, ok := t.byIndex[index]
	if !ok {
		return Descriptor{}, false
	}
	return t.byName[name], true
}

// Vocabulary returns the vocabulary attached to d. A descriptor without one
// gets the empty, pass-through vocabulary.
func (t *Table) Vocabulary(d Descriptor) VocabularyMap {
	return t.vocab[d.Vocabulary]
}

// Descriptors returns every descriptor ordered by index.
func (t *Table) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(t.byName))
	for _, d := range t.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Len returns the number of descriptors.
func (t *Table) Len() int {
	return len(t.byName)
}

// tableFile is the YAML layout of a datapoint file.
type tableFile struct {
	Datapoints   map[string]datapointEntry  `yaml:"datapoints"`
	ModeMap      *vocabularyEntry           `yaml:"mode_map"`
	FanMap       *vocabularyEntry           `yaml:"fan_map"`
	Vocabularies map[string]vocabularyEntry `yaml:"vocabularies"`
}

type datapointEntry struct {
	DP          int       `yaml:"dp"`
	Type        string    `yaml:"type"`
	Scale       int       `yaml:"scale"`
	Min         *int      `yaml:"min"`
	Max         *int      `yaml:"max"`
	Values      *[]string `yaml:"values"`
	ReadOnly    bool      `yaml:"readonly"`
	Unit        string    `yaml:"unit"`
	Vocabulary  string    `yaml:"vocabulary"`
	Description string    `yaml:"description"`
}

type vocabularyEntry struct {
	TuyaToHubitat map[string]string `yaml:"tuya_to_hubitat"`
	HubitatToTuya map[string]string `yaml:"hubitat_to_tuya"`
}

func (v vocabularyEntry) toMap() VocabularyMap {
	return VocabularyMap{DeviceToCanonical: v.TuyaToHubitat, CanonicalToDevice: v.HubitatToTuya}
}

// ParseTable decodes and validates a datapoint table from YAML.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", ErrInvalidTable, err)
	}
	if len(f.Datapoints) == 0 {
		return nil, fmt.Errorf("%w: no datapoints defined", ErrInvalidTable)
	}

	vocab := make(map[string]VocabularyMap, len(f.Vocabularies)+2)
	for name, v := range f.Vocabularies {
		vocab[name] = v.toMap()
	}
	if f.ModeMap != nil {
		vocab["mode"] = f.ModeMap.toMap()
	}
	if f.FanMap != nil {
		vocab["fan"] = f.FanMap.toMap()
	}

	var errs []string
	descriptors := make([]Descriptor, 0, len(f.Datapoints))
	for name, e := range f.Datapoints {
		d, err := e.toDescriptor(name)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		descriptors = append(descriptors, d)
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(errs, "; "))
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
	return NewTable(descriptors, vocab)
}

func (e datapointEntry) toDescriptor(name string) (Descriptor, error) {
	typ, err := ParseSemanticType(e.Type)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%s: %v", name, err)
	}
	d := Descriptor{
		Name:        name,
		Index:       e.DP,
		Type:        typ,
		Scale:       e.Scale,
		ReadOnly:    e.ReadOnly,
		Vocabulary:  e.Vocabulary,
		Description: e.Description,
	}
	if e.Values != nil {
		d.Values = append([]string{}, *e.Values...)
	}
	switch {
	case e.Min != nil && e.Max != nil:
		d.Range = &Range{Min: *e.Min, Max: *e.Max}
	case e.Min != nil || e.Max != nil:
		return Descriptor{}, fmt.Errorf("%s: min and max must be declared together", name)
	}
	if e.Unit != "" {
		if d.Unit, err = ParseTemperatureUnit(e.Unit); err != nil {
			return Descriptor{}, fmt.Errorf("%s: unknown unit %q", name, e.Unit)
		}
	}
	return d, nil
}

// LoadTable reads and validates a datapoint table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading datapoint table: %w", err)
	}
	return ParseTable(data)
}

//go:embed datapoints.yaml
var defaultTableYAML []byte

// DefaultTable returns the built-in table for the Pioneer WYT mini-split.
// It panics if the embedded file is invalid, which the package tests rule out.
func DefaultTable() *Table {
	t, err := ParseTable(defaultTableYAML)
	if err != nil {
		panic(err)
	}
	return t
}
