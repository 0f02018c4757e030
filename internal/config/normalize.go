package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLibrary()
	if err := c.normalizeTarget(); err != nil {
		return err
	}
	c.normalizeTranscode()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		c.Paths.SourceDir = defaultSourceDir
	}
	if c.Paths.SourceDir, err = expandPath(c.Paths.SourceDir); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) != "" {
		if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
			return fmt.Errorf("paths.log_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = filepath.Join(os.TempDir(), defaultTempDirName)
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLibrary() {
	if len(c.Library.Extensions) == 0 {
		c.Library.Extensions = defaultExtensions()
	}
	exts := make([]string, 0, len(c.Library.Extensions))
	seen := make(map[string]struct{}, len(c.Library.Extensions))
	for _, ext := range c.Library.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Library.Extensions = exts

	patterns := make([]string, 0, len(c.Library.Exclude))
	for _, pattern := range c.Library.Exclude {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, filepath.ToSlash(trimmed))
		}
	}
	c.Library.Exclude = patterns
	c.Library.IgnoreFile = strings.TrimSpace(c.Library.IgnoreFile)
}

func (c *Config) normalizeTarget() error {
	c.Target.Kind = strings.ToLower(strings.TrimSpace(c.Target.Kind))
	if c.Target.Kind == "" {
		c.Target.Kind = defaultTargetKind
	}
	if strings.TrimSpace(c.Target.MountPoint) != "" {
		var err error
		if c.Target.MountPoint, err = expandPath(c.Target.MountPoint); err != nil {
			return fmt.Errorf("target.mount_point: %w", err)
		}
	}
	c.Target.MusicDir = strings.Trim(filepath.ToSlash(strings.TrimSpace(c.Target.MusicDir)), "/")
	c.Target.CatalogName = strings.TrimSpace(c.Target.CatalogName)
	if c.Target.CatalogName == "" {
		c.Target.CatalogName = defaultCatalogName
	}
	if c.Target.WaitTimeoutSeconds <= 0 {
		c.Target.WaitTimeoutSeconds = defaultWaitTimeoutSeconds
	}

	s3 := &c.Target.S3
	s3.Bucket = strings.TrimSpace(s3.Bucket)
	s3.Prefix = strings.Trim(strings.TrimSpace(s3.Prefix), "/")
	s3.Endpoint = strings.TrimSpace(s3.Endpoint)
	s3.Region = strings.TrimSpace(s3.Region)
	if s3.Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok && strings.TrimSpace(value) != "" {
			s3.Region = strings.TrimSpace(value)
		} else {
			s3.Region = defaultS3Region
		}
	}
	s3.AccessKeyID = strings.TrimSpace(s3.AccessKeyID)
	if s3.AccessKeyID == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			s3.AccessKeyID = strings.TrimSpace(value)
		}
	}
	s3.SecretAccessKey = strings.TrimSpace(s3.SecretAccessKey)
	if s3.SecretAccessKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			s3.SecretAccessKey = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeTranscode() {
	c.Transcode.EncoderPath = strings.TrimSpace(c.Transcode.EncoderPath)
	if c.Transcode.EncoderPath == "" {
		c.Transcode.EncoderPath = defaultEncoderPath
	}
	if len(c.Transcode.EncoderArgs) == 0 {
		c.Transcode.EncoderArgs = defaultEncoderArgs()
	}
	c.Transcode.OutputExtension = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Transcode.OutputExtension)), ".")
	if c.Transcode.OutputExtension == "" {
		c.Transcode.OutputExtension = defaultOutputExtension
	}
	c.Transcode.FFprobeBinary = strings.TrimSpace(c.Transcode.FFprobeBinary)
	if c.Transcode.FFprobeBinary == "" {
		c.Transcode.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
}
