package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"convertbot/internal/botrun"
	"convertbot/internal/config"
	"convertbot/internal/deps"
	"convertbot/internal/preflight"
	"convertbot/internal/workspace"
)

type statusReport struct {
	Running      bool               `json:"running"`
	LockPath     string             `json:"lock_path"`
	EnabledPairs []string           `json:"enabled_pairs"`
	MetricsBind  string             `json:"metrics_bind"`
	Dependencies []deps.Status      `json:"dependencies"`
	Checks       []preflight.Result `json:"checks"`
	Workspaces   int                `json:"workspaces"`
	StagingBytes int64              `json:"staging_bytes"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show bot, dependency, and staging status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := collectStatus(cmd, cfg)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, report)
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(statusLines(report, colorize), "\n"))
			return nil
		},
	}
}

func collectStatus(cmd *cobra.Command, cfg *config.Config) (statusReport, error) {
	running, err := botrun.Locked(cfg.LockPath())
	if err != nil {
		return statusReport{}, fmt.Errorf("inspect lock: %w", err)
	}
	dirs, err := workspace.List(cfg.Paths.StagingDir)
	if err != nil {
		return statusReport{}, fmt.Errorf("list workspaces: %w", err)
	}
	var total int64
	for _, dir := range dirs {
		total += dir.Size
	}
	return statusReport{
		Running:      running,
		LockPath:     cfg.LockPath(),
		EnabledPairs: append([]string(nil), cfg.Conversion.EnabledPairs...),
		MetricsBind:  cfg.Metrics.Bind,
		Dependencies: preflight.CheckSystemDeps(cmd.Context(), cfg),
		Checks:       preflight.RunAll(cmd.Context(), cfg),
		Workspaces:   len(dirs),
		StagingBytes: total,
	}, nil
}

func statusLines(report statusReport, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("Bot", colorize)...)
	if report.Running {
		lines = append(lines, renderStatusLine("Bot", statusOK, "Running", colorize))
	} else {
		lines = append(lines, renderStatusLine("Bot", statusInfo, "Not running", colorize))
	}
	lines = append(lines, renderStatusLine("Pairs", statusInfo, fmt.Sprintf("%d enabled", len(report.EnabledPairs)), colorize))
	if strings.TrimSpace(report.MetricsBind) == "" {
		lines = append(lines, renderStatusLine("Metrics", statusInfo, "Disabled", colorize))
	} else {
		lines = append(lines, renderStatusLine("Metrics", statusInfo, report.MetricsBind, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	lines = append(lines, dependencyLines(report.Dependencies, colorize)...)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Checks", colorize)...)
	for _, check := range report.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	workspaces := fmt.Sprintf("%d present, %s", report.Workspaces, humanize.IBytes(uint64(report.StagingBytes)))
	lines = append(lines, renderStatusLine("Workspaces", statusInfo, workspaces, colorize))
	return lines
}
