package telegram

import (
	"context"
	"fmt"
	"strconv"

	"convertbot/internal/services"
	"convertbot/internal/session"
)

// Transport adapts a Client to session.Transport. Conversation ids are
// decimal chat ids.
type Transport struct {
	client *Client
}

// NewTransport wraps client.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

var _ session.Transport = (*Transport)(nil)

func (t *Transport) SendText(ctx context.Context, chatID, text string) (int64, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	msg, err := t.client.SendMessage(ctx, id, text, "", nil)
	return msg.MessageID, err
}

func (t *Transport) SendHTML(ctx context.Context, chatID, text string) (int64, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	msg, err := t.client.SendMessage(ctx, id, text, "HTML", nil)
	return msg.MessageID, err
}

// SendChoices sends text with one keyboard row per choice.
func (t *Transport) SendChoices(ctx context.Context, chatID, text string, choices []session.Choice) (int64, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	markup := &InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, 0, len(choices))}
	for _, choice := range choices {
		markup.InlineKeyboard = append(markup.InlineKeyboard, []InlineKeyboardButton{{
			Text:         choice.Label,
			CallbackData: choice.Data,
		}})
	}
	msg, err := t.client.SendMessage(ctx, id, text, "", markup)
	return msg.MessageID, err
}

func (t *Transport) EditText(ctx context.Context, chatID string, messageID int64, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return t.client.EditMessageText(ctx, id, messageID, text)
}

func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return t.client.AnswerCallbackQuery(ctx, callbackID, text)
}

func (t *Transport) SendDocument(ctx context.Context, chatID, path string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = t.client.SendDocument(ctx, id, path)
	return err
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID string, messageID int64) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return t.client.DeleteMessage(ctx, id, messageID)
}

// FormatChatID renders a chat id as a conversation id.
func FormatChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "telegram", "parse chat id", fmt.Sprintf("invalid chat id %q", chatID), err)
	}
	return id, nil
}
