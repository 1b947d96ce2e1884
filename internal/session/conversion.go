package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"convertbot/internal/history"
	"convertbot/internal/logging"
	"convertbot/internal/services"
	"convertbot/internal/workspace"
)

// Outcome classifies how a conversion attempt ended.
type Outcome string

const (
	OutcomeConverted       Outcome = "converted"
	OutcomeNoPair          Outcome = "no_pair"
	OutcomeMismatch        Outcome = "mismatch"
	OutcomeStagingFailed   Outcome = "staging_failed"
	OutcomeTranscodeFailed Outcome = "transcode_failed"
	OutcomeDeliveryFailed  Outcome = "delivery_failed"
)

// attempt accumulates what HandleConversion learned for metrics and history.
type attempt struct {
	outcome     Outcome
	err         error
	inputBytes  int64
	outputBytes int64
}

// HandleConversion validates, stages, converts and delivers one upload for
// session s, then moves s to Terminal. A workspace is opened only after
// validation passes and is released exactly once before returning.
func (m *Machine) HandleConversion(ctx context.Context, s *Session, upload Upload) Outcome {
	if s == nil {
		m.logger.Warn("conversion requested without a session")
		return OutcomeNoPair
	}
	started := time.Now()
	ctx = services.WithConversationID(ctx, s.ConversationID)
	pairKey := "none"
	if s.Pair != nil {
		pairKey = string(s.Pair.Key)
		ctx = services.WithPair(ctx, pairKey)
	}
	logger := logging.WithContext(ctx, m.logger)
	if s.Pair != nil {
		upload = m.resolveUpload(ctx, logger, upload)
	}

	result := m.convert(ctx, logger, s, upload)
	s.State = Terminal

	elapsed := time.Since(started)
	m.metrics.ObserveConversion(pairKey, string(result.outcome), elapsed)
	m.recordAttempt(ctx, logger, s, upload, pairKey, result, elapsed)

	attrs := []logging.Attr{
		logging.String(logging.FieldOutcome, string(result.outcome)),
		logging.Duration("elapsed", elapsed),
		logging.String("file_name", upload.StageName()),
	}
	if result.outputBytes > 0 {
		attrs = append(attrs, logging.Int64("output_bytes", result.outputBytes))
	}
	if result.err != nil {
		attrs = append(attrs, logging.Error(result.err))
	}
	logger.Info("conversion attempt finished", logging.Args(attrs...)...)
	return result.outcome
}

func (m *Machine) convert(ctx context.Context, logger *slog.Logger, s *Session, upload Upload) attempt {
	chatID := s.ConversationID
	if s.Pair == nil {
		m.reply(ctx, logger, chatID, msgNoPair)
		return attempt{outcome: OutcomeNoPair, err: ErrNoPairSelected}
	}
	pair := *s.Pair

	check := m.validator.Check(pair, upload.ValidationPath())
	if !check.Accepted {
		m.reply(ctx, logger, chatID, mismatchReply(check.Expected, check.Observed))
		return attempt{
			outcome: OutcomeMismatch,
			err: services.Wrap(ErrValidationMismatch, "session", "validate",
				"expected "+check.Expected+", got "+quoteEmpty(check.Observed), nil),
		}
	}

	ws, err := m.workspaces.Open(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "workspace unavailable", "workspace_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging_dir permissions and free space"),
			logging.String(logging.FieldImpact, "upload rejected"),
		)
		m.reply(ctx, logger, chatID, msgStagingFailed)
		return attempt{outcome: OutcomeStagingFailed, err: err}
	}
	defer ws.Release()

	return m.runInWorkspace(ctx, logger, ws, chatID, upload, pair.TargetExt)
}

// resolveUpload fills in the server path when the transport deferred it. A
// failed lookup leaves the extension check to the file name.
func (m *Machine) resolveUpload(ctx context.Context, logger *slog.Logger, upload Upload) Upload {
	if upload.RemotePath != "" || upload.Resolve == nil {
		return upload
	}
	path, err := upload.Resolve(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "resolving uploaded file failed", "telegram_get_file_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "files over the Bot API download limit cannot be fetched"),
			logging.String(logging.FieldImpact, "extension checked against the file name only"),
		)
		return upload
	}
	upload.RemotePath = path
	return upload
}

func (m *Machine) runInWorkspace(ctx context.Context, logger *slog.Logger, ws *workspace.Workspace, chatID string, upload Upload, targetExt string) attempt {
	inputPath, err := ws.Stage(ctx, upload.StageName(), upload.Content)
	if err != nil {
		logging.WarnWithContext(logger, "staging upload failed", "workspace_stage_failed",
			logging.Error(err),
			logging.String("workspace_dir", ws.Root()),
			logging.String(logging.FieldImpact, "upload rejected"),
		)
		m.reply(ctx, logger, chatID, msgStagingFailed)
		return attempt{outcome: OutcomeStagingFailed, err: err}
	}
	result := attempt{inputBytes: fileSize(inputPath)}

	outputPath := ws.OutputPathFor(targetExt)
	if err := m.transcoder.Run(ctx, inputPath, outputPath); err != nil {
		logging.WarnWithContext(logger, "transcode failed", "transcode_failed",
			logging.Error(err),
			logging.String("input_path", inputPath),
			logging.String(logging.FieldErrorHint, "check the ffmpeg stderr in the error detail"),
			logging.String(logging.FieldImpact, "no file delivered"),
		)
		m.reply(ctx, logger, chatID, msgConversionFailed)
		result.outcome = OutcomeTranscodeFailed
		result.err = err
		return result
	}
	result.outputBytes = fileSize(outputPath)

	if _, err := m.transport.SendText(ctx, chatID, msgConverted); err != nil {
		result.outcome = OutcomeDeliveryFailed
		result.err = err
		return result
	}
	if err := m.transport.SendDocument(ctx, chatID, outputPath); err != nil {
		logging.WarnWithContext(logger, "delivering converted file failed", "delivery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "user did not receive the converted file"),
		)
		result.outcome = OutcomeDeliveryFailed
		result.err = err
		return result
	}
	result.outcome = OutcomeConverted
	return result
}

func (m *Machine) reply(ctx context.Context, logger *slog.Logger, chatID, text string) {
	if _, err := m.transport.SendText(ctx, chatID, text); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("reply failed", logging.Error(err))
	}
}

func (m *Machine) recordAttempt(ctx context.Context, logger *slog.Logger, s *Session, upload Upload, pairKey string, result attempt, elapsed time.Duration) {
	if m.history == nil {
		return
	}
	detail := ""
	if result.err != nil {
		detail = result.err.Error()
	}
	err := m.history.Record(context.WithoutCancel(ctx), history.Attempt{
		ConversationID: s.ConversationID,
		Pair:           pairKey,
		FileName:       upload.StageName(),
		Outcome:        string(result.outcome),
		Detail:         detail,
		InputBytes:     result.inputBytes,
		OutputBytes:    result.outputBytes,
		Duration:       elapsed,
		FinishedAt:     time.Now().UTC(),
	})
	if err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "attempt missing from history"),
		)
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func quoteEmpty(value string) string {
	if value == "" {
		return "no extension"
	}
	return value
}
