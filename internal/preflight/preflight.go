package preflight

import (
	"context"

	"convertbot/internal/config"
	"convertbot/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the readiness checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, cfg.MinFreeBytes()),
	}
	if cfg.History.Enabled {
		results = append(results, CheckDirectoryAccess("History directory", historyDir(cfg)))
	}
	if err := cfg.ValidateTelegram(); err != nil {
		results = append(results, Result{Name: "Telegram", Detail: err.Error()})
	} else {
		results = append(results, Result{Name: "Telegram", Passed: true, Detail: "token configured"})
	}
	return results
}

// CheckSystemDeps evaluates the external binaries required by the transcoder.
// Both the bot runtime and the CLI status command use this.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.TranscoderRequirements(
		cfg.Transcoder.FFmpegBinary,
		cfg.Transcoder.FFprobeBinary,
		cfg.Transcoder.VerifyOutput,
	))
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
