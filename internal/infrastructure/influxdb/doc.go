// Package influxdb records sensor readings and device state changes in
// InfluxDB v2.
//
// Writes go through the client library's batching WriteAPI and never block
// the caller.
//
// # Measurements
//
//   - sensor_reading: tags sensor_id, unit; field value (float)
//   - device_state: tags device_id, source; field on (bool)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	engine.AddReadingSink(client)
//	notifiers = append(notifiers, notify.StateNotifier{Writer: client})
//
// Batch failures reach the SetOnError callback wrapped in ErrWriteFailed.
package influxdb
