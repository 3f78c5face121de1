// Package session bridges individual phone calls to the realtime speech
// service. Each session pumps caller audio upstream on fixed append and
// commit cadences, relays synthesized speech back as telephony media frames,
// and tears both legs down exactly once when either side ends.
package session
