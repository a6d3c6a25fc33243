// Package influxdb records mini-split telemetry in InfluxDB v2.
//
// It wraps influxdb-client-go v2 with connection management, a batched
// non-blocking write API and health checks. The bridge writes one
// "climate" point per poll:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteClimateSample(deviceID, sample)
//
// Batching follows batch_size and flush_interval from config.yaml. Write
// errors are asynchronous and delivered to the SetOnError callback;
// connection and health check errors are returned directly.
package influxdb
