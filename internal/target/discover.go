package target

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"musicsync/internal/logging"
	"musicsync/internal/services"
)

var (
	// ErrNoDevice means no removable, mounted partition was found.
	ErrNoDevice = errors.New("no removable device mounted")
	// ErrAmbiguousDevice means more than one candidate was found.
	ErrAmbiguousDevice = errors.New("more than one removable device mounted")
)

var runLSBLK = func(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "lsblk", "-P", "-o", "NAME,RM,HOTPLUG,TYPE,MOUNTPOINT,LABEL,SIZE").Output()
}

// Candidate is a mounted removable block device.
type Candidate struct {
	Name       string
	Label      string
	MountPoint string
	Size       string
}

func (c Candidate) String() string {
	label := c.Label
	if label == "" {
		label = c.Name
	}
	return fmt.Sprintf("%s at %s", label, c.MountPoint)
}

// Discover returns the mount point to sync to. A configured mountPoint must
// exist and is used as is; otherwise exactly one removable, mounted partition
// must be present.
func Discover(ctx context.Context, mountPoint string, logger *slog.Logger) (string, error) {
	logger = logging.NewComponentLogger(logger, "discover")
	if mountPoint = strings.TrimSpace(mountPoint); mountPoint != "" {
		info, err := os.Stat(mountPoint)
		if err != nil {
			return "", services.Wrap(services.ErrDevice, component, "discover", mountPoint, err)
		}
		if !info.IsDir() {
			return "", services.Wrap(services.ErrDevice, component, "discover", mountPoint, errors.New("not a directory"))
		}
		return mountPoint, nil
	}

	output, err := runLSBLK(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrDevice, component, "discover", "run lsblk", err)
	}
	candidates := ParseCandidates(string(output))
	switch len(candidates) {
	case 0:
		return "", services.Wrap(services.ErrDevice, component, "discover", "", ErrNoDevice)
	case 1:
		logger.Info("removable device found",
			logging.String(logging.FieldEventType, "device_discovered"),
			logging.String("device", candidates[0].Name),
			logging.String("label", candidates[0].Label),
			logging.String("mount_point", candidates[0].MountPoint),
			logging.String("size", candidates[0].Size),
		)
		return candidates[0].MountPoint, nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.String()
		}
		return "", services.Wrap(services.ErrDevice, component, "discover", strings.Join(names, ", "), ErrAmbiguousDevice)
	}
}

// ParseCandidates extracts removable, mounted partitions from lsblk -P output.
func ParseCandidates(output string) []Candidate {
	var candidates []Candidate
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data := parseLSBLKKeyValueLine(line)
		if data["RM"] != "1" && data["HOTPLUG"] != "1" {
			continue
		}
		if kind := data["TYPE"]; kind != "part" && kind != "disk" {
			continue
		}
		mount := data["MOUNTPOINT"]
		if mount == "" || strings.HasPrefix(mount, "[") {
			continue
		}
		candidates = append(candidates, Candidate{
			Name:       data["NAME"],
			Label:      data["LABEL"],
			MountPoint: mount,
			Size:       data["SIZE"],
		})
	}
	return candidates
}

// parseLSBLKKeyValueLine reads KEY="value" pairs. Values may contain spaces
// and lsblk's \xNN escapes.
func parseLSBLKKeyValueLine(line string) map[string]string {
	result := make(map[string]string)
	for len(line) > 0 {
		line = strings.TrimLeft(line, " \t")
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			break
		}
		key := line[:eq]
		rest := line[eq+1:]
		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				value, line = rest[1:], ""
			} else {
				value, line = rest[1:end+1], rest[end+2:]
			}
		} else {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				value, line = rest, ""
			} else {
				value, line = rest[:end], rest[end:]
			}
		}
		result[key] = unescapeLSBLK(value)
	}
	return result
}

func unescapeLSBLK(value string) string {
	if !strings.Contains(value, `\x`) {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+3 < len(value) && value[i+1] == 'x' {
			if n, err := strconv.ParseUint(value[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}
