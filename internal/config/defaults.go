package config

const (
	defaultSourceDir          = "~/Music"
	defaultWorkDir            = "~/.local/share/musicsync"
	defaultLogDir             = "~/.local/share/musicsync/logs"
	defaultTempDirName        = "musicsync"
	defaultIgnoreFile         = ".musicsyncignore"
	defaultTargetKind         = TargetKindDevice
	defaultMusicDir           = "Music"
	defaultCatalogName        = "synchronized.sqlite"
	defaultWaitTimeoutSeconds = 120
	defaultS3Region           = "us-east-1"
	defaultEncoderPath        = "ffmpeg"
	defaultOutputExtension    = "m4a"
	defaultMinBitrateKbps     = 288
	defaultFFprobeBinary      = "ffprobe"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultLogMaxSizeMB       = 20
	defaultLogMaxBackups      = 5
)

// Target kinds understood by the session wiring.
const (
	TargetKindDevice = "device"
	TargetKindS3     = "s3"
)

func defaultExtensions() []string {
	return []string{".mp3", ".flac", ".m4a", ".ogg", ".wma"}
}

// defaultEncoderArgs re-encodes the first audio stream to AAC while keeping
// tags. {input} and {output} are substituted per file.
func defaultEncoderArgs() []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", "{input}",
		"-map", "0:a:0", "-map_metadata", "0",
		"-c:a", "aac", "-b:a", "256k",
		"{output}",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir: defaultSourceDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
		},
		Library: Library{
			Extensions: defaultExtensions(),
			IgnoreFile: defaultIgnoreFile,
		},
		Target: Target{
			Kind:               defaultTargetKind,
			MusicDir:           defaultMusicDir,
			CatalogName:        defaultCatalogName,
			WaitTimeoutSeconds: defaultWaitTimeoutSeconds,
			S3: S3{
				Region: defaultS3Region,
			},
		},
		Transcode: Transcode{
			EncoderPath:     defaultEncoderPath,
			EncoderArgs:     defaultEncoderArgs(),
			OutputExtension: defaultOutputExtension,
			MinBitrateKbps:  defaultMinBitrateKbps,
			FFprobeBinary:   defaultFFprobeBinary,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
		},
	}
}
