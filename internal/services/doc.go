// Package services defines shared utilities consumed by the sync engine and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers and phase names for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into device, storage, media, transcode, and transfer kinds.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the run.
package services
