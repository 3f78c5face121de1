// Package audio converts call audio between the telephony leg (G.711 mu-law
// at 8kHz) and the upstream speech service (little-endian PCM16 at 16kHz).
// Transcoders carry resampling state across calls so audio can be fed in
// arbitrary frame sizes.
package audio
