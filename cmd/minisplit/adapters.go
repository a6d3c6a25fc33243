package main

import (
	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/influxdb"
)

// climateSink is the part of *influxdb.Client the metrics adapter needs.
type climateSink interface {
	WriteClimateSample(deviceID string, s influxdb.ClimateSample)
}

// climateMetrics adapts the InfluxDB client to tuya.MetricsWriter.
// Offline statuses carry no readings and are skipped.
type climateMetrics struct {
	client climateSink
	unit   string
}

// WriteClimate implements tuya.MetricsWriter.
func (m *climateMetrics) WriteClimate(deviceID string, st tuya.CanonicalStatus) {
	if !st.Online {
		return
	}
	m.client.WriteClimateSample(deviceID, climateSample(st, m.unit))
}

func climateSample(st tuya.CanonicalStatus, unit string) influxdb.ClimateSample {
	s := influxdb.ClimateSample{
		Power:       st.Power,
		TargetTemp:  st.TargetTemp,
		CurrentTemp: st.CurrentTemp,
		Humidity:    st.Humidity,
		FilterDirty: st.FilterDirty,
		Unit:        unit,
	}
	if st.Mode != nil {
		s.Mode = *st.Mode
	}
	if st.Fan != nil {
		s.Fan = *st.Fan
	}
	return s
}
