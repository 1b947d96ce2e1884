package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"convertbot/internal/catalog"
	"convertbot/internal/history"
	"convertbot/internal/logging"
	"convertbot/internal/metrics"
	"convertbot/internal/services"
	"convertbot/internal/transcode"
	"convertbot/internal/validator"
	"convertbot/internal/workspace"
)

// Transport is the set of chat capabilities the machine needs.
type Transport interface {
	SendText(ctx context.Context, chatID, text string) (int64, error)
	SendHTML(ctx context.Context, chatID, text string) (int64, error)
	SendChoices(ctx context.Context, chatID, text string, choices []Choice) (int64, error)
	EditText(ctx context.Context, chatID string, messageID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SendDocument(ctx context.Context, chatID, path string) error
	DeleteMessage(ctx context.Context, chatID string, messageID int64) error
}

// WorkspaceOpener creates per-request workspaces.
type WorkspaceOpener interface {
	Open(ctx context.Context) (*workspace.Workspace, error)
}

// AttemptRecorder persists finished attempts.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt history.Attempt) error
}

// Deps wires a Machine. Catalog, Workspaces, Transcoder and Transport are
// required; the rest default to no-ops.
type Deps struct {
	Catalog    *catalog.Catalog
	Validator  validator.Validator
	Workspaces WorkspaceOpener
	Transcoder transcode.Transcoder
	Transport  Transport
	Store      *Store
	Logger     *slog.Logger
	Metrics    metrics.Recorder
	History    AttemptRecorder
}

// Machine applies events to sessions.
type Machine struct {
	catalog    *catalog.Catalog
	validator  validator.Validator
	workspaces WorkspaceOpener
	transcoder transcode.Transcoder
	transport  Transport
	store      *Store
	logger     *slog.Logger
	metrics    metrics.Recorder
	history    AttemptRecorder
}

// NewMachine validates deps and returns a Machine.
func NewMachine(deps Deps) (*Machine, error) {
	switch {
	case deps.Catalog == nil:
		return nil, services.Wrap(services.ErrConfiguration, "session", "init", "catalog is required", nil)
	case deps.Workspaces == nil:
		return nil, services.Wrap(services.ErrConfiguration, "session", "init", "workspace opener is required", nil)
	case deps.Transcoder == nil:
		return nil, services.Wrap(services.ErrConfiguration, "session", "init", "transcoder is required", nil)
	case deps.Transport == nil:
		return nil, services.Wrap(services.ErrConfiguration, "session", "init", "transport is required", nil)
	}
	store := deps.Store
	if store == nil {
		store = NewStore()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Machine{
		catalog:    deps.Catalog,
		validator:  deps.Validator,
		workspaces: deps.Workspaces,
		transcoder: deps.Transcoder,
		transport:  deps.Transport,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "session"),
		metrics:    metrics.OrNop(deps.Metrics),
		history:    deps.History,
	}, nil
}

// Store exposes the machine's session store.
func (m *Machine) Store() *Store {
	return m.store
}

// Handle applies one event. Events for the same conversation are applied
// one at a time; the returned error reports transport failures only.
func (m *Machine) Handle(ctx context.Context, ev Event) error {
	if ev.ConversationID == "" {
		return services.Wrap(services.ErrValidation, "session", "handle", "event without conversation", nil)
	}
	ctx = services.WithConversationID(ctx, ev.ConversationID)

	switch ev.Kind {
	case EventStart:
		_, err := m.transport.SendHTML(ctx, ev.ConversationID, greeting(ev.From))
		return wrapTransport("start", err)
	case EventHelp:
		_, err := m.transport.SendText(ctx, ev.ConversationID, msgHelp)
		return wrapTransport("help", err)
	}

	var err error
	m.store.Do(ev.ConversationID, func(current *Session) *Session {
		var next *Session
		next, err = m.apply(ctx, current, ev)
		return next
	})
	return err
}

func (m *Machine) apply(ctx context.Context, current *Session, ev Event) (*Session, error) {
	logger := logging.WithContext(ctx, m.logger)

	if ev.Kind == EventEntry {
		return m.begin(ctx, ev)
	}
	if current == nil {
		logger.Debug("event ignored; no active session", logging.String("event", string(ev.Kind)))
		m.dismissCallback(ctx, ev)
		return nil, nil
	}

	switch {
	case current.State == SelectingPair && ev.Kind == EventPairChosen:
		return m.choosePair(ctx, current, ev)
	case current.State == SelectingPair && ev.Kind == EventUpload:
		m.HandleConversion(ctx, current, ev.Upload)
		return current, nil
	case current.State == AwaitingFile && ev.Kind == EventUpload:
		return m.receiveUpload(ctx, current, ev.Upload)
	default:
		logger.Debug("event ignored",
			logging.String("event", string(ev.Kind)),
			logging.String(logging.FieldState, string(current.State)),
		)
		m.dismissCallback(ctx, ev)
		return current, nil
	}
}

// dismissCallback clears the client's spinner for a button press that
// no longer applies, such as a stale keyboard or a double tap.
func (m *Machine) dismissCallback(ctx context.Context, ev Event) {
	if ev.Kind != EventPairChosen || ev.CallbackID == "" {
		return
	}
	if err := m.transport.AnswerCallback(ctx, ev.CallbackID, ""); err != nil {
		logging.WithContext(ctx, m.logger).Debug("callback answer failed", logging.Error(err))
	}
}

// begin starts a fresh selection, replacing any session in progress.
func (m *Machine) begin(ctx context.Context, ev Event) (*Session, error) {
	pairs := m.catalog.All()
	choices := make([]Choice, 0, len(pairs))
	for _, pair := range pairs {
		choices = append(choices, Choice{Label: pair.Label(), Data: string(pair.Key)})
	}
	msgID, err := m.transport.SendChoices(ctx, ev.ConversationID, msgChoosePair, choices)
	if err != nil {
		return nil, wrapTransport("file_conversion", err)
	}
	logging.WithContext(ctx, m.logger).Debug("pair selection offered", logging.Int("pairs", len(choices)))
	return &Session{
		ConversationID:  ev.ConversationID,
		State:           SelectingPair,
		PromptMessageID: msgID,
	}, nil
}

func (m *Machine) choosePair(ctx context.Context, current *Session, ev Event) (*Session, error) {
	logger := logging.WithContext(ctx, m.logger)
	pair, err := m.catalog.Lookup(ev.Data)
	if err != nil {
		logger.Info("pair selection rejected",
			logging.String("pair_key", ev.Data),
			logging.Error(err),
		)
		if answerErr := m.transport.AnswerCallback(ctx, ev.CallbackID, unknownPairReply(ev.Data)); answerErr != nil {
			return current, wrapTransport("answer_callback", answerErr)
		}
		return current, nil
	}

	next := current.clone()
	next.State = AwaitingFile
	next.Pair = &pair

	ctx = services.WithPair(ctx, string(pair.Key))
	logger = logging.WithContext(ctx, m.logger)
	if err := m.transport.AnswerCallback(ctx, ev.CallbackID, ""); err != nil {
		logger.Debug("callback answer failed", logging.Error(err))
	}
	promptID := ev.MessageID
	if promptID == 0 {
		promptID = current.PromptMessageID
	}
	if err := m.transport.EditText(ctx, ev.ConversationID, promptID, sendFilePrompt(pair.SourceExt)); err != nil {
		return next, wrapTransport("edit_prompt", err)
	}
	logger.Info("conversion pair selected", logging.String(logging.FieldState, string(next.State)))
	return next, nil
}

func (m *Machine) receiveUpload(ctx context.Context, current *Session, upload Upload) (*Session, error) {
	next := current.clone()
	chatID := current.ConversationID
	if !upload.IsFile() {
		next.State = Terminal
		_, err := m.transport.SendText(ctx, chatID, msgExpectedFile)
		return next, wrapTransport("expected_file", err)
	}

	loadingID, err := m.transport.SendText(ctx, chatID, msgLoading)
	if err != nil {
		logging.WithContext(ctx, m.logger).Debug("loading message failed", logging.Error(err))
	}
	m.HandleConversion(ctx, next, upload)
	if loadingID != 0 {
		m.deleteQuietly(ctx, chatID, loadingID)
	}
	if upload.MessageID != 0 {
		m.deleteQuietly(ctx, chatID, upload.MessageID)
	}
	return next, nil
}

func (m *Machine) deleteQuietly(ctx context.Context, chatID string, messageID int64) {
	if err := m.transport.DeleteMessage(ctx, chatID, messageID); err != nil {
		logging.WithContext(ctx, m.logger).Debug("delete message failed",
			logging.Int64("message_id", messageID),
			logging.Error(err),
		)
	}
}

func wrapTransport(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrTransient, "session", operation, fmt.Sprintf("%s reply failed", operation), err)
}
