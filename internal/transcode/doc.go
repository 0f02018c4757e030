// Package transcode decides which source files are re-encoded before transfer
// and runs the external encoder that does it.
//
// BitrateDecider probes the source with ffprobe and flags files whose audio
// bitrate meets the configured threshold. Encoder runs a single configurable
// executable whose argument template carries {input} and {output}
// placeholders. Both report failures through the services error markers so the
// reconciler and pipeline can classify them.
package transcode
