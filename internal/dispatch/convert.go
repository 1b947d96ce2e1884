package dispatch

import (
	"context"
	"io"

	"convertbot/internal/session"
	"convertbot/internal/telegram"
)

// FileSource resolves and downloads uploaded files.
type FileSource interface {
	GetFile(ctx context.Context, fileID string) (telegram.File, error)
	Download(ctx context.Context, filePath string, w io.Writer) error
}

// toEvent maps an update onto a session event. ok is false for updates the
// bot has no use for. It makes no Bot API calls; uploads resolve their server
// path only when the session asks for it.
func toEvent(update telegram.Update, files FileSource) (session.Event, bool) {
	chatID := update.ChatID()
	if chatID == 0 {
		return session.Event{}, false
	}
	ev := session.Event{ConversationID: telegram.FormatChatID(chatID)}

	if cq := update.CallbackQuery; cq != nil {
		ev.Kind = session.EventPairChosen
		ev.CallbackID = cq.ID
		ev.Data = cq.Data
		if cq.Message != nil {
			ev.MessageID = cq.Message.MessageID
		}
		return ev, true
	}

	msg := update.Message
	if msg == nil {
		return session.Event{}, false
	}
	ev.MessageID = msg.MessageID
	if msg.From != nil {
		ev.From = session.User{ID: msg.From.ID, Name: msg.From.DisplayName()}
	}

	switch cmd := msg.Command(); cmd {
	case "start":
		ev.Kind = session.EventStart
		return ev, true
	case "help":
		ev.Kind = session.EventHelp
		return ev, true
	case "file_conversion":
		ev.Kind = session.EventEntry
		return ev, true
	case "":
	default:
		ev.Kind = session.EventText
		ev.Data = msg.Text
		return ev, true
	}

	if upload, ok := uploadFrom(msg, files); ok {
		ev.Kind = session.EventUpload
		ev.Upload = upload
		return ev, true
	}
	if msg.Text != "" {
		ev.Kind = session.EventText
		ev.Data = msg.Text
		return ev, true
	}
	ev.Kind = session.EventUpload
	ev.Upload = session.Upload{MessageID: msg.MessageID, Kind: session.KindOther}
	return ev, true
}

func uploadFrom(msg *telegram.Message, files FileSource) (session.Upload, bool) {
	var (
		fileID string
		upload = session.Upload{MessageID: msg.MessageID}
	)
	switch {
	case msg.Document != nil:
		fileID, upload.FileName, upload.Size = msg.Document.FileID, msg.Document.FileName, msg.Document.FileSize
		upload.Kind = session.KindDocument
	case len(msg.Photo) > 0:
		photo, _ := telegram.LargestPhoto(msg.Photo)
		fileID, upload.Size = photo.FileID, photo.FileSize
		upload.Kind = session.KindPhoto
	case msg.Video != nil:
		fileID, upload.FileName, upload.Size = msg.Video.FileID, msg.Video.FileName, msg.Video.FileSize
		upload.Kind = session.KindDocument
	case msg.Animation != nil:
		fileID, upload.FileName, upload.Size = msg.Animation.FileID, msg.Animation.FileName, msg.Animation.FileSize
		upload.Kind = session.KindDocument
	case msg.Audio != nil:
		fileID, upload.FileName, upload.Size = msg.Audio.FileID, msg.Audio.FileName, msg.Audio.FileSize
		upload.Kind = session.KindDocument
	case msg.Sticker != nil || msg.Voice != nil || msg.VideoNote != nil:
		upload.Kind = session.KindOther
		return upload, true
	default:
		return session.Upload{}, false
	}

	remote := &remoteFile{files: files, fileID: fileID}
	upload.Resolve = remote.path
	upload.Content = remote.download
	return upload, true
}

// remoteFile looks the server path up once and reuses it for the download.
// One upload is only ever handled by its chat's worker.
type remoteFile struct {
	files    FileSource
	fileID   string
	filePath string
}

func (r *remoteFile) path(ctx context.Context) (string, error) {
	if r.filePath != "" {
		return r.filePath, nil
	}
	file, err := r.files.GetFile(ctx, r.fileID)
	if err != nil {
		return "", err
	}
	r.filePath = file.FilePath
	return r.filePath, nil
}

func (r *remoteFile) download(ctx context.Context, w io.Writer) error {
	path, err := r.path(ctx)
	if err != nil {
		return err
	}
	return r.files.Download(ctx, path, w)
}
