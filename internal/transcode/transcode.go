// Package transcode converts a staged input file into the target format by
// shelling out to ffmpeg.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"convertbot/internal/logging"
	"convertbot/internal/media/ffprobe"
	"convertbot/internal/services"
)

// ErrTranscode reports that the external tool failed or timed out.
var ErrTranscode = fmt.Errorf("%w: transcode failed", services.ErrExternalTool)

// Transcoder produces outputPath from inputPath. On failure nothing is left at outputPath.
type Transcoder interface {
	Run(ctx context.Context, inputPath, outputPath string) error
}

type commandRunner func(ctx context.Context, name string, args ...string) error

type probeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// FFmpeg runs conversions through the ffmpeg CLI.
type FFmpeg struct {
	binary       string
	probeBinary  string
	timeout      time.Duration
	verifyOutput bool
	logger       *slog.Logger
	run          commandRunner
	probe        probeFunc
}

// Option customizes an FFmpeg transcoder.
type Option func(*FFmpeg)

// WithTimeout bounds each run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(f *FFmpeg) { f.timeout = d }
}

// WithVerification inspects outputs with the given ffprobe binary.
func WithVerification(probeBinary string) Option {
	return func(f *FFmpeg) {
		f.verifyOutput = true
		f.probeBinary = probeBinary
	}
}

// WithLogger sets the transcoder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) { f.logger = logging.NewComponentLogger(logger, "transcode") }
}

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r commandRunner) Option {
	return func(f *FFmpeg) {
		if r != nil {
			f.run = r
		}
	}
}

// WithProbe overrides the ffprobe inspection (used in tests).
func WithProbe(p probeFunc) Option {
	return func(f *FFmpeg) {
		if p != nil {
			f.probe = p
		}
	}
}

// NewFFmpeg returns an ffmpeg-backed transcoder using binary.
func NewFFmpeg(binary string, opts ...Option) *FFmpeg {
	f := &FFmpeg{
		binary: strings.TrimSpace(binary),
		logger: logging.NewComponentLogger(nil, "transcode"),
		run:    defaultCommandRunner,
		probe:  ffprobe.Inspect,
	}
	if f.binary == "" {
		f.binary = "ffmpeg"
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Args returns the ffmpeg arguments used to convert in to out.
func Args(inputPath, outputPath string) []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y", "-i", inputPath, outputPath}
}

// Run converts inputPath into outputPath. Any failure removes outputPath.
func (f *FFmpeg) Run(ctx context.Context, inputPath, outputPath string) error {
	runCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	started := time.Now()
	err := f.run(runCtx, f.binary, Args(inputPath, outputPath)...)
	if err != nil {
		removePartial(outputPath)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(ErrTranscode, "transcode", "ffmpeg",
				fmt.Sprintf("timed out after %s", f.timeout), fmt.Errorf("%w: %w", services.ErrTimeout, err))
		}
		return services.Wrap(ErrTranscode, "transcode", "ffmpeg", "", err)
	}

	info, statErr := os.Stat(outputPath)
	switch {
	case statErr != nil:
		removePartial(outputPath)
		return services.Wrap(ErrTranscode, "transcode", "ffmpeg", "no output produced", statErr)
	case info.Size() == 0:
		removePartial(outputPath)
		return services.Wrap(ErrTranscode, "transcode", "ffmpeg", "empty output produced", nil)
	}

	if f.verifyOutput {
		result, err := f.probe(runCtx, f.probeBinary, outputPath)
		if err != nil {
			removePartial(outputPath)
			return services.Wrap(ErrTranscode, "transcode", "verify", "ffprobe failed", err)
		}
		if result.StreamCount("") == 0 {
			removePartial(outputPath)
			return services.Wrap(ErrTranscode, "transcode", "verify", "output has no streams", nil)
		}
	}

	f.logger.Debug("ffmpeg finished",
		logging.String("input_path", inputPath),
		logging.String("output_path", outputPath),
		logging.Int64("output_bytes", info.Size()),
		logging.Duration("transcode_duration", time.Since(started)),
	)
	return nil
}

func removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.RemoveAll(path)
	}
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 500 {
			detail = detail[len(detail)-500:]
		}
		if detail == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, detail)
	}
	return nil
}
