package session

import (
	"context"
	"fmt"

	"convertbot/internal/catalog"
	"convertbot/internal/services"
	"convertbot/internal/workspace"
)

var (
	// ErrNoPairSelected reports a file that arrived before a pair was bound.
	ErrNoPairSelected = fmt.Errorf("%w: no conversion pair selected", services.ErrValidation)
	// ErrValidationMismatch reports an upload whose extension differs from the pair's source.
	ErrValidationMismatch = fmt.Errorf("%w: file extension mismatch", services.ErrValidation)
)

// State is a session's position in the conversation.
type State string

const (
	SelectingPair State = "selecting_pair"
	AwaitingFile  State = "awaiting_file"
	Terminal      State = "terminal"
)

// Session is the per-conversation state. Pair is set exactly when State is
// AwaitingFile, and stays set on a Terminal reached from AwaitingFile.
type Session struct {
	ConversationID string
	State          State
	Pair           *catalog.Pair
	// PromptMessageID is the keyboard message edited once a pair is chosen.
	PromptMessageID int64
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Pair != nil {
		pair := *s.Pair
		out.Pair = &pair
	}
	return &out
}

// UploadKind classifies an inbound attachment.
type UploadKind string

const (
	KindDocument UploadKind = "document"
	KindPhoto    UploadKind = "photo"
	KindOther    UploadKind = "other"
)

// Upload is an inbound file. RemotePath is the transport's server path and
// carries the extension hint; FileName is the user-visible name if any.
// When RemotePath is empty, Resolve (if set) looks it up on demand.
type Upload struct {
	MessageID  int64
	FileName   string
	RemotePath string
	Kind       UploadKind
	Size       int64
	Resolve    func(ctx context.Context) (string, error)
	Content    workspace.Content
}

// ValidationPath is the path whose extension is checked.
func (u Upload) ValidationPath() string {
	if u.RemotePath != "" {
		return u.RemotePath
	}
	return u.FileName
}

// StageName is the file name used inside the workspace.
func (u Upload) StageName() string {
	if u.FileName != "" {
		return u.FileName
	}
	return u.RemotePath
}

// IsFile reports whether the upload carries a convertible file.
func (u Upload) IsFile() bool {
	return u.Kind == KindDocument || u.Kind == KindPhoto
}

// EventKind names an inbound event.
type EventKind string

const (
	EventStart      EventKind = "start"
	EventHelp       EventKind = "help"
	EventEntry      EventKind = "file_conversion"
	EventPairChosen EventKind = "pair_chosen"
	EventUpload     EventKind = "upload"
	EventText       EventKind = "text"
)

// User identifies the sender for greetings.
type User struct {
	ID   int64
	Name string
}

// Event is one transport update addressed to a conversation.
type Event struct {
	Kind           EventKind
	ConversationID string
	MessageID      int64
	CallbackID     string
	Data           string
	From           User
	Upload         Upload
}

// Choice is one button of a selection keyboard.
type Choice struct {
	Label string
	Data  string
}
