package tuya

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Command is a validated write: the datapoint index and its device-native value.
type Command struct {
	Name  string `json:"command"`
	Index int    `json:"dp"`
	Value any    `json:"value"`
}

// CommandTranslator validates canonical commands and converts them to raw
// datapoint writes. It performs no I/O.
type CommandTranslator struct {
	table   *Table
	display TemperatureUnit
}

// NewCommandTranslator creates a translator that reads temperatures in display.
func NewCommandTranslator(table *Table, display TemperatureUnit) *CommandTranslator {
	return &CommandTranslator{table: table, display: display}
}

var truthyTokens = []string{"true", "1", "on", "yes"}

// Translate resolves name (case-insensitive) and converts value to the
// datapoint's native form. Rejections are *ValidationError.
//
// Temperatures out of range are clamped; enumeration values outside the
// declared set are rejected.
func (c *CommandTranslator) Translate(name string, value any) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	d, ok := c.table.Lookup(name)
	if !ok {
		return Command{}, unknownCommand(name, value)
	}
	if d.ReadOnly {
		return Command{}, readOnly(name, value)
	}

	var (
		raw any
		err error
	)
	switch d.Type {
	case TypeBoolean:
		raw, err = c.boolean(d, value)
	case TypeInteger:
		if d.IsTemperature() {
			raw, err = c.temperature(d, value)
		} else {
			raw, err = c.integer(d, value)
		}
	case TypeEnumeration:
		raw, err = c.enumeration(d, value)
	case TypeString:
		raw, err = c.str(d, value)
	case TypeRawHex:
		raw, err = c.rawHex(d, value)
	case TypeStructured:
		raw, err = c.structured(d, value)
	default:
		err = invalidValue(name, value, fmt.Sprintf("unsupported type %q", d.Type))
	}
	if err != nil {
		return Command{}, err
	}
	return Command{Name: name, Index: d.Index, Value: raw}, nil
}

func (c *CommandTranslator) boolean(d Descriptor, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return slices.Contains(truthyTokens, strings.ToLower(strings.TrimSpace(v))), nil
	case nil:
		return false, nil
	}
	if n, ok := toFloat(value); ok {
		return n != 0, nil
	}
	return false, invalidValue(d.Name, value, "expected a boolean")
}

func (c *CommandTranslator) integer(d Descriptor, value any) (int, error) {
	n, ok := coerceNumber(value)
	if !ok {
		return 0, invalidValue(d.Name, value, "expected a number")
	}
	n = math.Trunc(n)
	if d.Range != nil {
		return int(clampFloat(n, d.Range.Min, d.Range.Max)) * d.Factor(), nil
	}
	scaled := n * float64(d.Factor())
	if scaled < math.MinInt32 || scaled > math.MaxInt32 {
		return 0, invalidValue(d.Name, value, "out of integer range")
	}
	return int(scaled), nil
}

func (c *CommandTranslator) temperature(d Descriptor, value any) (int, error) {
	n, ok := coerceNumber(value)
	if !ok {
		return 0, invalidValue(d.Name, value, "expected a temperature")
	}
	lo, hi := DefaultTempMin, DefaultTempMax
	if d.Range != nil {
		lo, hi = d.Range.Min, d.Range.Max
	}
	factor := d.Factor()
	raw := math.Round(Convert(n, c.display, d.Unit) * float64(factor))
	return int(clampFloat(raw, lo*factor, hi*factor)), nil
}

func (c *CommandTranslator) enumeration(d Descriptor, value any) (string, error) {
	if value == nil {
		return "", c.enumError(d, value)
	}
	token, ok := value.(string)
	if !ok {
		token = fmt.Sprint(value)
	}
	token = c.table.Vocabulary(d).ToDevice(token)
	if d.Values != nil && !slices.Contains(d.Values, token) {
		return "", c.enumError(d, value)
	}
	return token, nil
}

func (c *CommandTranslator) enumError(d Descriptor, value any) error {
	if d.Values == nil {
		return invalidValue(d.Name, value, "expected a string")
	}
	return notInEnum(d.Name, value, d.Values)
}

func (c *CommandTranslator) str(d Descriptor, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", invalidValue(d.Name, value, "expected a string")
	case string:
		return v, nil
	case map[string]any, []any:
		return "", invalidValue(d.Name, value, "expected a scalar")
	default:
		return fmt.Sprint(v), nil
	}
}

func (c *CommandTranslator) rawHex(d Descriptor, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", invalidValue(d.Name, value, "expected a hex string")
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if _, err := hex.DecodeString(s); err != nil || s == "" {
		return "", invalidValue(d.Name, value, "expected an even-length hex string")
	}
	return s, nil
}

func (c *CommandTranslator) structured(d Descriptor, value any) (string, error) {
	if s, ok := value.(string); ok {
		if !json.Valid([]byte(s)) {
			return "", invalidValue(d.Name, value, "expected JSON")
		}
		return s, nil
	}
	if value == nil {
		return "", invalidValue(d.Name, value, "expected JSON")
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", invalidValue(d.Name, value, err.Error())
	}
	return string(b), nil
}

// coerceNumber accepts numbers, numeric strings and booleans (as 0/1).
func coerceNumber(value any) (float64, bool) {
	if b, ok := value.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	n, ok := toFloat(value)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// clampFloat bounds v before any float to int conversion, which would
// overflow for huge inputs.
func clampFloat(v float64, lo, hi int) float64 {
	return max(float64(lo), min(v, float64(hi)))
}
