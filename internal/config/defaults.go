package config

const (
	defaultStateDir          = "~/.local/share/vidshrink"
	defaultLogDir            = "~/.local/share/vidshrink/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultOutputSuffix      = "_comp"
	defaultVideoCodec        = "libx264"
	defaultAudioCodec        = "copy"
	defaultWatchdogSeconds   = 30
	defaultCoefficient       = 0.12
	defaultQualityCheck      = true
	defaultReplaceSource     = false
	defaultAPIBind           = ""
	recommendedCoefficientLo = 0.07
	recommendedCoefficientHi = 0.15
)

// DefaultSkipThreshold is the fraction of the current bit rate at or above
// which an estimated target is considered not worth re-encoding. Earlier
// releases used 0.95; 0.90 skips fewer files.
const DefaultSkipThreshold = 0.90

var defaultExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Encoding: Encoding{
			QuantizationCoefficient: defaultCoefficient,
			SkipThreshold:           DefaultSkipThreshold,
			WatchdogSeconds:         defaultWatchdogSeconds,
			ReplaceSource:           defaultReplaceSource,
			OutputSuffix:            defaultOutputSuffix,
			Extensions:              append([]string(nil), defaultExtensions...),
			VideoCodec:              defaultVideoCodec,
			AudioCodec:              defaultAudioCodec,
			QualityCheck:            defaultQualityCheck,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		API: API{
			Bind: defaultAPIBind,
		},
	}
}
