// Package gateway exposes the wizard service over HTTP.
//
// REST endpoints manage sessions, models, and purges; wizard turns run
// over a websocket at /ws?sessionId=<id>, where each client frame
// carries one user message and every turn event comes back as one JSON
// frame. Prometheus metrics are served at /metrics.
package gateway
