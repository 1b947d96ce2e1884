package deps

import (
	"os/exec"
	"strings"
)

const (
	defaultFFmpeg  = "ffmpeg"
	defaultFFprobe = "ffprobe"
)

// ResolveFFmpegPath returns the executable for the configured ffmpeg binary,
// falling back to "ffmpeg" on PATH. An unresolvable name is returned as-is so
// the eventual exec error names it.
func ResolveFFmpegPath(configured string) string {
	return resolveBinary(configured, defaultFFmpeg)
}

// ResolveFFprobePath is ResolveFFmpegPath for ffprobe.
func ResolveFFprobePath(configured string) string {
	return resolveBinary(configured, defaultFFprobe)
}

// TranscoderRequirements lists the binaries the transcoder needs. ffprobe is
// only required when output verification is enabled.
func TranscoderRequirements(ffmpegBinary, ffprobeBinary string, verifyOutput bool) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ResolveFFmpegPath(ffmpegBinary),
			Description: "Required for file conversion",
		},
		{
			Name:        "FFprobe",
			Command:     ResolveFFprobePath(ffprobeBinary),
			Description: "Verifies converted output",
			Optional:    !verifyOutput,
		},
	}
}

func resolveBinary(configured, fallback string) string {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = fallback
	}
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}
