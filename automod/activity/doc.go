// Automod component for tracking recent message activity per subject (usually a guild member).
//
// Each subject gets a fixed-capacity ring buffer of message fingerprints. Old entries are dropped on overflow, and a periodic sweep removes entries older than a maximum age, so memory use is bounded independent of message volume.
//
// Raw message content is never retained; only a fingerprint of the normalized text is kept.
package activity
