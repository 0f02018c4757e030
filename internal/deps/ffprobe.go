package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const defaultFFprobe = "ffprobe"

// ResolveFFprobe reports the ffprobe binary used for bitrate inspection.
//
// An explicitly configured binary wins. Otherwise an ffprobe sitting next to
// the resolved encoder is preferred, since static ffmpeg builds ship both
// together, and PATH is the fallback.
func ResolveFFprobe(configured, encoderCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Required for bitrate inspection",
	}

	configured = strings.TrimSpace(configured)
	if configured != "" && configured != defaultFFprobe {
		result.Command = configured
		if resolved, err := exec.LookPath(configured); err == nil {
			result.Command = resolved
			result.Available = true
			return result
		}
		result.Detail = fmt.Sprintf("binary %q not found", configured)
		return result
	}

	if encoder := strings.TrimSpace(encoderCommand); encoder != "" {
		if resolved, err := exec.LookPath(encoder); err == nil {
			candidate := filepath.Join(filepath.Dir(resolved), executableName(defaultFFprobe))
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		}
	}

	if resolved, err := exec.LookPath(defaultFFprobe); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	result.Command = defaultFFprobe
	result.Detail = fmt.Sprintf("binary %q not found", defaultFFprobe)
	return result
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
