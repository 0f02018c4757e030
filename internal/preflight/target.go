package preflight

import (
	"fmt"
	"strings"

	"musicsync/internal/config"
)

// CheckTarget summarizes the configured destination. A device with an explicit
// mount point must be writable; without one the device is discovered at sync
// time and the check only reports that.
func CheckTarget(cfg *config.Config) Result {
	const name = "Target"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	switch cfg.Target.Kind {
	case config.TargetKindS3:
		s3 := cfg.Target.S3
		if strings.TrimSpace(s3.Bucket) == "" {
			return Result{Name: name, Detail: "s3 (error: missing bucket)"}
		}
		location := "s3://" + s3.Bucket
		if prefix := strings.Trim(s3.Prefix, "/"); prefix != "" {
			location += "/" + prefix
		}
		if s3.Endpoint != "" {
			location += " via " + s3.Endpoint
		}
		return Result{Name: name, Passed: true, Detail: location}
	case config.TargetKindDevice:
		if strings.TrimSpace(cfg.Target.MountPoint) == "" {
			return Result{Name: name, Passed: true, Detail: "removable device (discovered at sync time)"}
		}
		return CheckDirectoryAccess(name, cfg.Target.MountPoint)
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown target kind %q", cfg.Target.Kind)}
	}
}
