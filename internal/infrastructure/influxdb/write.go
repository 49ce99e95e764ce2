package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	MeasurementSensorReading = "sensor_reading"
	MeasurementDeviceState   = "device_state"
)

// WriteSensorReading queues one sensor value, tagged with its unit when
// known.
func (c *Client) WriteSensorReading(sensorID, unit string, value float64, at time.Time) {
	p := write.NewPointWithMeasurement(MeasurementSensorReading).
		AddTag("sensor_id", sensorID).
		AddField("value", value).
		SetTime(at)
	if unit != "" {
		p.AddTag("unit", unit)
	}
	c.queue(p)
}

// WriteDeviceState queues an on/off change tagged with what caused it
// (manual, schedule or automation).
func (c *Client) WriteDeviceState(deviceID string, on bool, source string, at time.Time) {
	p := write.NewPointWithMeasurement(MeasurementDeviceState).
		AddTag("device_id", deviceID).
		AddField("on", on).
		SetTime(at)
	if source != "" {
		p.AddTag("source", source)
	}
	c.queue(p)
}

// RecordReading lets the client act as an automation reading sink.
func (c *Client) RecordReading(_ context.Context, sensorID, unit string, value float64, at time.Time) {
	c.WriteSensorReading(sensorID, unit, value, at)
}

// queue drops points once the client is closed.
func (c *Client) queue(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(p)
}
