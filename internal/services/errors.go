package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDevice marks a missing or ambiguous target device.
	ErrDevice = errors.New("device error")
	// ErrStorage marks an unavailable, closed, or corrupt catalog.
	ErrStorage = errors.New("storage error")
	// ErrMedia marks an unreadable or corrupt source file.
	ErrMedia = errors.New("media error")
	// ErrTranscode marks an encoder failure or non-zero exit.
	ErrTranscode = errors.New("transcode error")
	// ErrTransfer marks a failed target store call.
	ErrTransfer = errors.New("transfer error")
	// ErrConfiguration marks unusable settings discovered at wiring time.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransfer
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify returns a short label naming the failure kind of err.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDevice):
		return "device"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrMedia):
		return "media"
	case errors.Is(err, ErrTranscode):
		return "transcode"
	case errors.Is(err, ErrTransfer):
		return "transfer"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "unknown"
	}
}

// Hint returns an operator-facing next step for a classified failure.
func Hint(err error) string {
	switch Classify(err) {
	case "device":
		return "connect exactly one removable device or set target.mount_point"
	case "storage":
		return "inspect the local catalog snapshot; the .bak file holds the previous copy"
	case "media":
		return "check that the source file is readable and not corrupt"
	case "transcode":
		return "verify transcode.encoder_path and transcode.encoder_args"
	case "transfer":
		return "check the target connection and free space, then rerun"
	case "configuration":
		return "run 'musicsync config validate'"
	default:
		return "check logs for details"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "sync failure"
	}
	return strings.Join(parts, ": ")
}
