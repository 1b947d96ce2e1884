package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"convertbot/internal/botrun"
	"convertbot/internal/config"
	"convertbot/internal/deps"
	"convertbot/internal/history"
	"convertbot/internal/logging"
	"convertbot/internal/preflight"
	"convertbot/internal/session"
)

const localConversationID = "local"

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var pairKey string
	var outDir string

	cmd := &cobra.Command{
		Use:   "convert --pair KEY FILE",
		Short: "Convert a local file through the bot's pipeline",
		Long: `Convert a local file exactly as the bot would for an upload: the file is
checked against the pair's source extension, staged in a fresh workspace,
transcoded with ffmpeg, and the result is copied to --out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(pairKey) == "" {
				return fmt.Errorf("--pair is required (see `convertbot pairs`)")
			}
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(source)
			if err != nil {
				return fmt.Errorf("inspect %q: %w", source, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", source)
			}
			if strings.TrimSpace(outDir) == "" {
				outDir = filepath.Dir(source)
			}
			target, err := config.ExpandPath(outDir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if missing := deps.MissingRequired(preflight.CheckSystemDeps(cmd.Context(), cfg)); len(missing) > 0 {
				return fmt.Errorf("%s is not available: %s", missing[0].Name, missing[0].Detail)
			}

			local := *cfg
			local.Logging.Level = ctx.resolvedLogLevel(cfg)
			logger, err := logging.NewFromConfig(&local)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			var attempts session.AttemptRecorder
			if cfg.History.Enabled {
				store, err := history.Open(cfg.History.Path)
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				defer store.Close()
				attempts = store
			}

			transport := newLocalTransport(cmd.OutOrStdout(), target)
			pipeline, err := botrun.BuildPipeline(cfg, botrun.PipelineDeps{
				Transport: transport,
				Logger:    logger,
				History:   attempts,
			})
			if err != nil {
				return err
			}
			pair, err := pipeline.Catalog.Lookup(strings.ToLower(strings.TrimSpace(pairKey)))
			if err != nil {
				return fmt.Errorf("%w (see `convertbot pairs`)", err)
			}

			s := &session.Session{ConversationID: localConversationID, State: session.AwaitingFile, Pair: &pair}
			outcome := pipeline.Machine.HandleConversion(cmd.Context(), s, session.Upload{
				FileName: filepath.Base(source),
				Kind:     session.KindDocument,
				Size:     info.Size(),
				Content:  fileContent(source),
			})
			if outcome != session.OutcomeConverted {
				return fmt.Errorf("conversion %s", outcome)
			}
			for _, path := range transport.Delivered() {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pairKey, "pair", "p", "", "Conversion pair key, e.g. jpg_to_png")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory for the converted file (default: next to the source)")
	return cmd
}

func fileContent(path string) func(context.Context, io.Writer) error {
	return func(ctx context.Context, w io.Writer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	}
}
