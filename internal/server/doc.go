// Package server exposes the bridge over HTTP: the /media WebSocket endpoint
// where telephony streams arrive, the /twiml call webhook, and monitoring
// endpoints for health, sessions, and Prometheus metrics.
package server
