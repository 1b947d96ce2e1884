package config

const (
	defaultConfigPath              = "~/.config/convertbot/config.toml"
	defaultStagingDir              = "~/.local/share/convertbot/staging"
	defaultLogDir                  = "~/.local/share/convertbot/logs"
	defaultHistoryPath             = "~/.local/share/convertbot/history.db"
	defaultTelegramAPIBaseURL      = "https://api.telegram.org"
	defaultPollTimeoutSeconds      = 30
	defaultRequestTimeoutSeconds   = 60
	defaultWorkerQueueSize         = 16
	defaultWorkerIdleSeconds       = 600
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultTranscodeTimeoutSeconds = 300
	defaultStaleAfterMinutes       = 60
	defaultMinFreeMiB              = 64
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
)

// defaultEnabledPairs mirrors the image conversions offered out of the box.
// Video pairs exist in the catalog but are opt-in.
var defaultEnabledPairs = []string{"jpg_to_png", "png_to_jpg", "jpeg_to_png", "png_to_jpeg"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Telegram: Telegram{
			APIBaseURL:            defaultTelegramAPIBaseURL,
			PollTimeoutSeconds:    defaultPollTimeoutSeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			WorkerQueueSize:       defaultWorkerQueueSize,
			WorkerIdleSeconds:     defaultWorkerIdleSeconds,
		},
		Conversion: Conversion{
			EnabledPairs: append([]string(nil), defaultEnabledPairs...),
		},
		Transcoder: Transcoder{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			TimeoutSeconds: defaultTranscodeTimeoutSeconds,
		},
		Staging: Staging{
			StaleAfterMinutes: defaultStaleAfterMinutes,
			MinFreeMiB:        defaultMinFreeMiB,
		},
		History: History{
			Path: defaultHistoryPath,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
