package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateTarget(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateExecution(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		return errors.New("paths.source_dir must be set")
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.WorkDir == c.Paths.SourceDir {
		return errors.New("paths.work_dir must differ from paths.source_dir")
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if len(c.Library.Extensions) == 0 {
		return errors.New("library.extensions must list at least one extension")
	}
	if strings.ContainsAny(c.Library.IgnoreFile, `/\`) {
		return errors.New("library.ignore_file must be a file name, not a path")
	}
	return nil
}

func (c *Config) validateTarget() error {
	switch c.Target.Kind {
	case TargetKindDevice:
	case TargetKindS3:
		if c.Target.S3.Bucket == "" {
			return errors.New("target.s3.bucket must be set when target.kind is s3")
		}
		if (c.Target.S3.AccessKeyID == "") != (c.Target.S3.SecretAccessKey == "") {
			return errors.New("target.s3.access_key_id and target.s3.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("target.kind must be %q or %q (got %q)", TargetKindDevice, TargetKindS3, c.Target.Kind)
	}
	if strings.ContainsAny(c.Target.CatalogName, `/\`) {
		return errors.New("target.catalog_name must be a file name, not a path")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.MinBitrateKbps <= 0 {
		return errors.New("transcode.min_bitrate_kbps must be positive")
	}
	var hasInput, hasOutput bool
	for _, arg := range c.Transcode.EncoderArgs {
		if strings.Contains(arg, "{input}") {
			hasInput = true
		}
		if strings.Contains(arg, "{output}") {
			hasOutput = true
		}
	}
	if !hasInput || !hasOutput {
		return errors.New("transcode.encoder_args must reference both {input} and {output}")
	}
	if strings.ContainsAny(c.Transcode.OutputExtension, `/\ `) {
		return errors.New("transcode.output_extension must be a bare extension such as m4a")
	}
	return nil
}

func (c *Config) validateExecution() error {
	if c.Execution.Workers < 0 {
		return errors.New("execution.workers must be zero (auto) or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}
