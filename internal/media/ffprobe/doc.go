// Package ffprobe wraps the ffprobe binary and decodes its JSON report into
// the stream and container fields the transcode decision needs.
package ffprobe
