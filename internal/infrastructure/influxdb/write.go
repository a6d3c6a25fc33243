package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementClimate is the measurement name for mini-split samples.
const MeasurementClimate = "climate"

// ClimateSample is one snapshot of a unit's state. Nil fields are the
// datapoints the device did not report and are left out of the point.
type ClimateSample struct {
	Power       *bool
	Mode        string
	Fan         string
	TargetTemp  *float64
	CurrentTemp *float64
	Humidity    *int
	FilterDirty *bool

	// Unit is the display unit of both temperatures ("F" or "C").
	Unit string

	// At is the sample time. Zero means now.
	At time.Time
}

// WriteClimateSample records a climate point tagged with deviceID. A sample
// with no fields is dropped, as is any write while disconnected.
//
//	client.WriteClimateSample("bf0123", influxdb.ClimateSample{TargetTemp: &t, Unit: "F"})
func (c *Client) WriteClimateSample(deviceID string, s ClimateSample) {
	if !c.IsConnected() {
		return
	}
	if p := climatePoint(deviceID, s); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

func climatePoint(deviceID string, s ClimateSample) *write.Point {
	fields := make(map[string]any)
	if s.Power != nil {
		fields["power"] = *s.Power
	}
	if s.TargetTemp != nil {
		fields["target_temp"] = *s.TargetTemp
	}
	if s.CurrentTemp != nil {
		fields["current_temp"] = *s.CurrentTemp
	}
	if s.Humidity != nil {
		fields["humidity"] = int64(*s.Humidity)
	}
	if s.FilterDirty != nil {
		fields["filter_dirty"] = *s.FilterDirty
	}
	if len(fields) == 0 {
		return nil
	}

	tags := map[string]string{"device_id": deviceID}
	if s.Mode != "" {
		tags["mode"] = s.Mode
	}
	if s.Fan != "" {
		tags["fan"] = s.Fan
	}
	if s.Unit != "" {
		tags["unit"] = s.Unit
	}

	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(MeasurementClimate, tags, fields, at)
}
