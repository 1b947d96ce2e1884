package botrun

import (
	"fmt"
	"log/slog"

	"convertbot/internal/catalog"
	"convertbot/internal/config"
	"convertbot/internal/deps"
	"convertbot/internal/metrics"
	"convertbot/internal/session"
	"convertbot/internal/transcode"
	"convertbot/internal/validator"
	"convertbot/internal/workspace"
)

// Pipeline is the conversion machinery shared by the bot and the offline
// convert command.
type Pipeline struct {
	Catalog    *catalog.Catalog
	Workspaces *workspace.Manager
	Transcoder *transcode.FFmpeg
	Machine    *session.Machine
}

// PipelineDeps are the collaborators that differ between callers.
type PipelineDeps struct {
	Transport session.Transport
	Logger    *slog.Logger
	Metrics   metrics.Recorder
	History   session.AttemptRecorder
}

// BuildPipeline assembles catalog, workspace manager, transcoder and state
// machine from cfg.
func BuildPipeline(cfg *config.Config, d PipelineDeps) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cat, err := catalog.New(cfg.Conversion.EnabledPairs)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	recorder := metrics.OrNop(d.Metrics)
	manager := workspace.NewManager(cfg.Paths.StagingDir, cfg.MinFreeBytes(), d.Logger, recorder)

	opts := []transcode.Option{
		transcode.WithTimeout(cfg.TranscodeTimeout()),
		transcode.WithLogger(d.Logger),
	}
	if cfg.Transcoder.VerifyOutput {
		opts = append(opts, transcode.WithVerification(deps.ResolveFFprobePath(cfg.Transcoder.FFprobeBinary)))
	}
	transcoder := transcode.NewFFmpeg(deps.ResolveFFmpegPath(cfg.Transcoder.FFmpegBinary), opts...)

	machine, err := session.NewMachine(session.Deps{
		Catalog:    cat,
		Validator:  validator.New(cfg.Conversion.FoldExtensionCase),
		Workspaces: manager,
		Transcoder: transcoder,
		Transport:  d.Transport,
		Logger:     d.Logger,
		Metrics:    recorder,
		History:    d.History,
	})
	if err != nil {
		return nil, err
	}
	return &Pipeline{Catalog: cat, Workspaces: manager, Transcoder: transcoder, Machine: machine}, nil
}
