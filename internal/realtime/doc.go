// Package realtime implements the WebSocket client for the upstream speech
// service. It configures the session, streams base64 PCM16 audio in, and
// normalizes the several historical event spellings the service has used
// into a small set of event kinds.
package realtime
