package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	SourceDir string `toml:"source_dir"`
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	TempDir   string `toml:"temp_dir"`
}

// Library controls which source files are eligible for synchronization.
type Library struct {
	Extensions []string `toml:"extensions"`
	Exclude    []string `toml:"exclude"`
	IgnoreFile string   `toml:"ignore_file"`
}

// S3 contains settings for the object storage target.
type S3 struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// Target describes where synchronized files land.
type Target struct {
	Kind               string `toml:"kind"`
	MountPoint         string `toml:"mount_point"`
	MusicDir           string `toml:"music_dir"`
	CatalogName        string `toml:"catalog_name"`
	WaitTimeoutSeconds int    `toml:"wait_timeout_seconds"`
	S3                 S3     `toml:"s3"`
}

// Transcode contains the encoder invocation and the bitrate threshold that
// triggers it.
type Transcode struct {
	EncoderPath     string   `toml:"encoder_path"`
	EncoderArgs     []string `toml:"encoder_args"`
	OutputExtension string   `toml:"output_extension"`
	MinBitrateKbps  int      `toml:"min_bitrate_kbps"`
	FFprobeBinary   string   `toml:"ffprobe_binary"`
}

// Execution controls worker sizing and failure handling.
type Execution struct {
	// Workers bounds both the reconcile and execute pools. Zero selects the
	// number of available CPUs.
	Workers int `toml:"workers"`
	// IsolateFailures keeps executing the remaining operations after one fails
	// and reports every failure at the end of the run.
	IsolateFailures bool `toml:"isolate_failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for musicsync.
//
// Configuration sections by subsystem:
//   - Paths: source library, work directory, logs, and temp files
//   - Library: eligible extensions and ignore rules
//   - Target: device or S3 destination plus catalog naming
//   - Transcode: encoder invocation and bitrate threshold
//   - Execution: worker pool sizing and failure policy
//   - Logging: log format, level, and rotation
type Config struct {
	Paths     Paths     `toml:"paths"`
	Library   Library   `toml:"library"`
	Target    Target    `toml:"target"`
	Transcode Transcode `toml:"transcode"`
	Execution Execution `toml:"execution"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/musicsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("musicsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories a sync run writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.TempDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Workers returns the effective pool width for reconcile and execute.
func (c *Config) Workers() int {
	if c.Execution.Workers > 0 {
		return c.Execution.Workers
	}
	return runtime.NumCPU()
}

// CatalogPath returns the local snapshot location inside the work directory.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.WorkDir, c.Target.CatalogName)
}

// LockPath returns the session lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, "musicsync.lock")
}

// MinBitrate returns the transcode threshold in bits per second.
func (c *Config) MinBitrate() int64 {
	return int64(c.Transcode.MinBitrateKbps) * 1000
}

// Encode renders the config back to TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
