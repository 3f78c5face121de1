// Package telephony implements the JSON envelope protocol spoken by the
// media-streaming leg of a phone call: start, media, mark, and stop events
// with base64 mu-law audio payloads, plus a connection wrapper that keeps
// a misbehaving frame from killing the stream.
package telephony
