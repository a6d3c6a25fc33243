// Package tuya translates between the bridge's canonical climate vocabulary
// and a Tuya device's indexed datapoints (DPs).
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────────────┐  DeviceLink
//	│  HTTP / MQTT /  │ Service  │ CommandTranslator        │◄──────────► Device
//	│      CLI        │◄────────►│ ConnectionManager (lock) │
//	└─────────────────┘          │ StatusTranslator         │
//	                             └─────────────────────────┘
//
// # Key Responsibilities
//
//   - Serialise every call into the single, non-reentrant device handle
//   - Serve status from a short-lived cache and invalidate it on writes
//   - Reconnect lazily, once per call, when the handle is lost
//   - Convert units, enumerations and fixed-point scaling in both directions
//   - Reject invalid commands with a ValidationError before any I/O
//
// # Datapoint Table
//
// The table maps canonical names to DP indices and semantic types. It is
// loaded from YAML (see configs/datapoints.yaml) or taken from DefaultTable.
//
//	table, err := tuya.LoadTable("configs/datapoints.yaml")
//	d, ok := table.Lookup("target_temp") // Index 2, integer, scale 10
//
// # Thread Safety
//
// ConnectionManager, Service and Bridge are safe for concurrent use. The
// translators are immutable after construction.
package tuya
