// Package config loads, normalizes, and validates musicsync configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AWS_ACCESS_KEY_ID for the S3 target. The Config type centralizes every knob
// the CLI and the sync session need: the source library, the target device or
// bucket, the encoder invocation, and worker sizing.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
