package botrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"convertbot/internal/config"
	"convertbot/internal/deps"
	"convertbot/internal/dispatch"
	"convertbot/internal/history"
	"convertbot/internal/logging"
	"convertbot/internal/metrics"
	"convertbot/internal/session"
	"convertbot/internal/telegram"
)

const shutdownGrace = 30 * time.Second

// Commands is the menu registered with Telegram at startup.
var Commands = []telegram.BotCommand{
	{Command: "start", Description: "Say hello"},
	{Command: "help", Description: "How to use this bot"},
	{Command: "file_conversion", Description: "Convert a file"},
}

// Options configures bot process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// HTTPClient overrides the Bot API transport (used in tests).
	HTTPClient telegram.HTTPDoer
	// Ready, when set, receives the metrics listener address once polling starts.
	Ready func(metricsAddr string)
}

// Run starts the bot and blocks until ctx is cancelled or a termination
// signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.ValidateTelegram(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("convertbot-%s.log", runID))
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update convertbot.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "convertbot-*.log", Exclude: []string{logPath}},
	)

	lock, err := acquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release bot lock", logging.Error(err))
		}
	}()

	if err := checkDependencies(logger, cfg); err != nil {
		return err
	}

	recorder := metrics.NewPrometheusRecorder()

	var attempts session.AttemptRecorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		attempts = store
	}

	clientOpts := []telegram.Option{}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, telegram.WithHTTPClient(opts.HTTPClient))
	} else {
		clientOpts = append(clientOpts, telegram.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}))
	}
	client := telegram.NewClient(cfg.Telegram.APIBaseURL, cfg.Telegram.BotToken, clientOpts...)

	pipeline, err := BuildPipeline(cfg, PipelineDeps{
		Transport: telegram.NewTransport(client),
		Logger:    logger,
		Metrics:   recorder,
		History:   attempts,
	})
	if err != nil {
		return err
	}

	if maxAge := cfg.StaleAfter(); maxAge > 0 {
		swept := pipeline.Workspaces.Sweep(signalCtx, maxAge)
		if len(swept.Removed) > 0 || len(swept.Errors) > 0 {
			logger.Info("stale workspaces swept",
				logging.String(logging.FieldEventType, "stale_workspaces_swept"),
				logging.Int("removed", len(swept.Removed)),
				logging.Int("errors", len(swept.Errors)),
			)
		}
	}

	me, err := client.GetMe(signalCtx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	if err := client.SetMyCommands(signalCtx, Commands); err != nil {
		logging.WarnWithContext(logger, "registering bot commands failed", "telegram_commands_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the command menu may be stale"),
		)
	}

	dispatcher := dispatch.New(pipeline.Machine, client, dispatch.Options{
		QueueSize:   cfg.Telegram.WorkerQueueSize,
		IdleTimeout: cfg.WorkerIdle(),
		Logger:      logger,
		Metrics:     recorder,
	})
	poller := telegram.NewPoller(client, cfg.PollTimeout(), cfg.Telegram.AllowedChatIDs, logger)

	server := newMetricsServer(cfg.Metrics.Bind, recorder.Handler(), func() Health {
		return Health{
			Status:           "ok",
			ActiveWorkspaces: pipeline.Workspaces.Active(),
			Sessions:         pipeline.Machine.Store().Len(),
			ChatWorkers:      dispatcher.Workers(),
			UpdateOffset:     poller.Offset(),
		}
	}, logger)
	if err := server.start(); err != nil {
		return err
	}
	defer server.stop()

	logger.Info("convertbot started",
		logging.String(logging.FieldEventType, "bot_started"),
		logging.String("bot_username", me.Username),
		logging.Int("pairs", len(pipeline.Catalog.All())),
		logging.String("staging_dir", cfg.Paths.StagingDir),
		logging.String("lock", cfg.LockPath()),
	)
	if opts.Ready != nil {
		opts.Ready(server.addr())
	}

	pollErr := poller.Run(signalCtx, func(update telegram.Update) {
		_ = dispatcher.Dispatch(update)
	})

	logger.Info("convertbot shutting down", logging.String(logging.FieldEventType, "bot_stopping"))
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logging.WarnWithContext(logger, "in-flight conversions did not finish", "shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some users may not have received their files"),
		)
	}
	return pollErr
}

func checkDependencies(logger *slog.Logger, cfg *config.Config) error {
	statuses := deps.CheckBinaries(deps.TranscoderRequirements(
		cfg.Transcoder.FFmpegBinary, cfg.Transcoder.FFprobeBinary, cfg.Transcoder.VerifyOutput))
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, status := range missing {
			names = append(names, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
		}
		return fmt.Errorf("missing required dependencies: %s", strings.Join(names, ", "))
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logging.LogFilePath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
