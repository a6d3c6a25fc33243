// Package api implements the HTTP REST API and WebSocket status stream for
// the mini-split bridge.
//
// This package provides:
//   - REST endpoints for status, commands, raw datapoint writes and reconnects
//   - The datapoint table and the command log
//   - A WebSocket hub that relays every status change
//   - Bearer token authentication (401 for a missing or malformed header,
//     403 for a wrong token)
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// All routes live under /api/v1. Only /api/v1/health is unauthenticated.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
