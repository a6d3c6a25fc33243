package tuya

import (
	"encoding/json"
	"math"
	"strconv"
)

// CanonicalStatus is the device state in the bridge's vocabulary and display
// unit. Nil fields mean the device did not report the datapoint.
type CanonicalStatus struct {
	Online      bool          `json:"online"`
	Power       *bool         `json:"power,omitempty"`
	Mode        *string       `json:"mode,omitempty"`
	TargetTemp  *float64      `json:"target_temp,omitempty"`
	CurrentTemp *float64      `json:"current_temp,omitempty"`
	Fan         *string       `json:"fan,omitempty"`
	Humidity    *int          `json:"humidity,omitempty"`
	VertSwing   *string       `json:"vert_swing,omitempty"`
	HorizSwing  *string       `json:"horiz_swing,omitempty"`
	FilterDirty *bool         `json:"filter_dirty,omitempty"`
	RawDPs      RawDatapoints `json:"raw_dps"`
}

// StatusTranslator maps raw datapoints to a CanonicalStatus.
type StatusTranslator struct {
	table   *Table
	display TemperatureUnit
}

// NewStatusTranslator creates a translator reporting temperatures in display.
func NewStatusTranslator(table *Table, display TemperatureUnit) *StatusTranslator {
	return &StatusTranslator{table: table, display: display}
}

// Translate builds the canonical view of raw. The raw mapping is echoed
// in RawDPs; an empty mapping yields an offline status.
func (s *StatusTranslator) Translate(raw RawDatapoints) CanonicalStatus {
	st := CanonicalStatus{RawDPs: raw.Clone()}
	if len(raw) == 0 {
		return st
	}
	st.Online = true

	st.Power = s.boolField(raw, "power")
	st.TargetTemp = s.temperatureField(raw, "target_temp")
	st.CurrentTemp = s.temperatureField(raw, "current_temp")
	st.Mode = s.enumField(raw, "mode")
	st.Fan = s.enumField(raw, "fan")
	st.Humidity = s.intField(raw, "humidity")
	st.VertSwing = s.enumField(raw, "vert_swing")
	st.HorizSwing = s.enumField(raw, "horiz_swing")
	st.FilterDirty = s.boolField(raw, "filter_dirty")
	return st
}

// Temperature converts a raw temperature datapoint to the display unit.
func (s *StatusTranslator) Temperature(d Descriptor, v any) (float64, bool) {
	n, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	native := n / float64(d.Factor())
	return round1(Convert(native, d.Unit, s.display)), true
}

func (s *StatusTranslator) lookup(raw RawDatapoints, name string) (Descriptor, any, bool) {
	d, ok := s.table.Lookup(name)
	if !ok {
		return Descriptor{}, nil, false
	}
	v, ok := raw[d.Index]
	if !ok || v == nil {
		return Descriptor{}, nil, false
	}
	return d, v, true
}

func (s *StatusTranslator) boolField(raw RawDatapoints, name string) *bool {
	_, v, ok := s.lookup(raw, name)
	if !ok {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func (s *StatusTranslator) temperatureField(raw RawDatapoints, name string) *float64 {
	d, v, ok := s.lookup(raw, name)
	if !ok {
		return nil
	}
	t, ok := s.Temperature(d, v)
	if !ok {
		return nil
	}
	return &t
}

func (s *StatusTranslator) enumField(raw RawDatapoints, name string) *string {
	d, v, ok := s.lookup(raw, name)
	if !ok {
		return nil
	}
	str, ok := v.(string)
	if !ok {
		return nil
	}
	c := s.table.Vocabulary(d).ToCanonical(str)
	return &c
}

func (s *StatusTranslator) intField(raw RawDatapoints, name string) *int {
	d, v, ok := s.lookup(raw, name)
	if !ok {
		return nil
	}
	n, ok := toFloat(v)
	if !ok {
		return nil
	}
	i := int(math.Round(n / float64(d.Factor())))
	return &i
}

// toFloat accepts the numeric shapes a decoded datapoint can take.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
