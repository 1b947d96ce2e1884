package telegram

import (
	"encoding/json"
	"unicode/utf16"
)

// Update is one entry returned by getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// ChatID returns the chat an update belongs to, or zero.
func (u Update) ChatID() int64 {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		return u.CallbackQuery.Message.Chat.ID
	}
	return 0
}

// Kind names the update for metrics and logs.
func (u Update) Kind() string {
	switch {
	case u.CallbackQuery != nil:
		return "callback"
	case u.Message == nil:
		return "unsupported"
	case u.Message.Command() != "":
		return "command"
	case u.Message.Document != nil || len(u.Message.Photo) > 0 || u.Message.Video != nil ||
		u.Message.Animation != nil || u.Message.Audio != nil:
		return "file"
	case u.Message.Text != "":
		return "text"
	default:
		return "attachment"
	}
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName is the user's full name, falling back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

// Message is the subset of the Bot API message object the bot reads.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      *Chat           `json:"chat"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`
	Document  *Document       `json:"document,omitempty"`
	Photo     []PhotoSize     `json:"photo,omitempty"`
	Video     *Document       `json:"video,omitempty"`
	Animation *Document       `json:"animation,omitempty"`
	Audio     *Document       `json:"audio,omitempty"`
	Sticker   *FileRef        `json:"sticker,omitempty"`
	Voice     *FileRef        `json:"voice,omitempty"`
	VideoNote *FileRef        `json:"video_note,omitempty"`
}

// Command returns the bot command at the start of the text without the
// slash or an @botname suffix, or "" when the message is not a command.
func (m *Message) Command() string {
	if m == nil {
		return ""
	}
	for _, entity := range m.Entities {
		if entity.Type != "bot_command" || entity.Offset != 0 {
			continue
		}
		// Entity offsets and lengths count UTF-16 code units.
		units := utf16.Encode([]rune(m.Text))
		if entity.Length > len(units) || entity.Length < 2 {
			return ""
		}
		cmd := string(utf16.Decode(units[1:entity.Length]))
		for i, r := range cmd {
			if r == '@' {
				return cmd[:i]
			}
		}
		return cmd
	}
	return ""
}

type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Document covers documents, videos, animations and audio files, which
// share the fields the bot uses.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// LargestPhoto returns the highest-resolution variant.
func LargestPhoto(sizes []PhotoSize) (PhotoSize, bool) {
	if len(sizes) == 0 {
		return PhotoSize{}, false
	}
	best := sizes[0]
	for _, size := range sizes[1:] {
		if size.Width*size.Height > best.Width*best.Height {
			best = size
		}
	}
	return best, true
}

// FileRef is an attachment the bot does not convert.
type FileRef struct {
	FileID string `json:"file_id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// File is the result of getFile. FilePath is relative to the file endpoint.
type File struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

type apiResponse struct {
	OK          bool               `json:"ok"`
	Result      json.RawMessage    `json:"result"`
	ErrorCode   int                `json:"error_code"`
	Description string             `json:"description"`
	Parameters  *responseParameter `json:"parameters,omitempty"`
}

type responseParameter struct {
	RetryAfter int `json:"retry_after"`
}
