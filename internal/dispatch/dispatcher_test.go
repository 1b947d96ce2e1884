package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"convertbot/internal/logging"
	"convertbot/internal/services"
	"convertbot/internal/session"
	"convertbot/internal/telegram"
)

type recordingHandler struct {
	mu     sync.Mutex
	events map[string][]session.Event
	hook   func(session.Event)
}

func (h *recordingHandler) Handle(ctx context.Context, ev session.Event) error {
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		return errors.New("missing request id")
	}
	if h.hook != nil {
		h.hook(ev)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events == nil {
		h.events = make(map[string][]session.Event)
	}
	h.events[ev.ConversationID] = append(h.events[ev.ConversationID], ev)
	return nil
}

func (h *recordingHandler) forChat(chat string) []session.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]session.Event(nil), h.events[chat]...)
}

type stubFiles struct {
	paths   map[string]string
	content map[string]string
	failOne bool
	calls   int
}

func (s *stubFiles) GetFile(_ context.Context, fileID string) (telegram.File, error) {
	s.calls++
	if s.failOne && s.calls == 1 {
		return telegram.File{}, errors.New("temporary failure")
	}
	path, ok := s.paths[fileID]
	if !ok {
		return telegram.File{}, fmt.Errorf("unknown file %s", fileID)
	}
	return telegram.File{FileID: fileID, FilePath: path}, nil
}

func (s *stubFiles) Download(_ context.Context, filePath string, w io.Writer) error {
	_, err := io.WriteString(w, s.content[filePath])
	return err
}

func textUpdate(id, chat int64, text string) telegram.Update {
	return telegram.Update{UpdateID: id, Message: &telegram.Message{
		MessageID: id, Chat: &telegram.Chat{ID: chat}, Text: text,
	}}
}

func TestEventsForAChatStayInOrder(t *testing.T) {
	handler := &recordingHandler{}
	d := New(handler, &stubFiles{}, Options{QueueSize: 64, Logger: logging.NewNop()})
	for i := range 30 {
		if err := d.Dispatch(textUpdate(int64(i+1), 1, fmt.Sprint(i))); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	events := handler.forChat("1")
	if len(events) != 30 {
		t.Fatalf("got %d events", len(events))
	}
	for i, ev := range events {
		if ev.Data != fmt.Sprint(i) || ev.Kind != session.EventText {
			t.Fatalf("event %d out of order: %+v", i, ev)
		}
	}
}

func TestChatsRunInParallel(t *testing.T) {
	release := make(chan struct{})
	handler := &recordingHandler{hook: func(ev session.Event) {
		switch ev.ConversationID {
		case "1":
			select {
			case <-release:
			case <-time.After(5 * time.Second):
			}
		case "2":
			close(release)
		}
	}}
	d := New(handler, &stubFiles{}, Options{Logger: logging.NewNop()})
	start := time.Now()
	_ = d.Dispatch(textUpdate(1, 1, "slow"))
	_ = d.Dispatch(textUpdate(2, 2, "fast"))
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatal("chat 1 blocked chat 2")
	}
	if len(handler.forChat("1")) != 1 || len(handler.forChat("2")) != 1 {
		t.Fatal("expected one event per chat")
	}
}

func TestIdleWorkerExits(t *testing.T) {
	d := New(&recordingHandler{}, &stubFiles{}, Options{IdleTimeout: 20 * time.Millisecond, Logger: logging.NewNop()})
	_ = d.Dispatch(textUpdate(1, 1, "x"))
	deadline := time.Now().Add(2 * time.Second)
	for d.Workers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("worker still alive")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := d.Dispatch(textUpdate(2, 1, "y")); err != nil {
		t.Fatalf("Dispatch after idle exit: %v", err)
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestQueueFullDropsUpdate(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	handler := &recordingHandler{hook: func(session.Event) {
		once.Do(func() { close(started) })
		<-release
	}}
	d := New(handler, &stubFiles{}, Options{QueueSize: 1, Logger: logging.NewNop()})
	_ = d.Dispatch(textUpdate(1, 1, "a"))
	<-started
	if err := d.Dispatch(textUpdate(2, 1, "b")); err != nil {
		t.Fatalf("second update should queue: %v", err)
	}
	if err := d.Dispatch(textUpdate(3, 1, "c")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(release)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := len(handler.forChat("1")); n != 2 {
		t.Fatalf("handled %d events", n)
	}
}

func TestShutdownRejectsNewUpdates(t *testing.T) {
	d := New(&recordingHandler{}, &stubFiles{}, Options{Logger: logging.NewNop()})
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := d.Dispatch(textUpdate(1, 1, "x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestShutdownDeadlineCancelsWork(t *testing.T) {
	cancelled := make(chan struct{})
	handler := handlerFunc(func(ctx context.Context, _ session.Event) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	d := New(handler, &stubFiles{}, Options{Logger: logging.NewNop()})
	_ = d.Dispatch(textUpdate(1, 1, "x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Fatal("in-flight handler was not cancelled")
	}
}

type handlerFunc func(ctx context.Context, ev session.Event) error

func (f handlerFunc) Handle(ctx context.Context, ev session.Event) error { return f(ctx, ev) }

func TestToEvent(t *testing.T) {
	files := &stubFiles{
		paths:   map[string]string{"doc": "documents/file_1.jpg", "big": "photos/file_2.jpg"},
		content: map[string]string{"documents/file_1.jpg": "doc bytes", "photos/file_2.jpg": "photo bytes"},
	}
	chat := &telegram.Chat{ID: 77}
	from := &telegram.User{ID: 5, FirstName: "Ann", LastName: "Lee"}

	cases := []struct {
		name   string
		update telegram.Update
		check  func(t *testing.T, ev session.Event)
	}{
		{"start", telegram.Update{Message: &telegram.Message{MessageID: 1, Chat: chat, From: from, Text: "/start",
			Entities: []telegram.MessageEntity{{Type: "bot_command", Length: 6}}}},
			func(t *testing.T, ev session.Event) {
				if ev.Kind != session.EventStart || ev.From.Name != "Ann Lee" || ev.From.ID != 5 {
					t.Fatalf("unexpected %+v", ev)
				}
			}},
		{"entry", telegram.Update{Message: &telegram.Message{MessageID: 1, Chat: chat, Text: "/file_conversion",
			Entities: []telegram.MessageEntity{{Type: "bot_command", Length: 16}}}},
			func(t *testing.T, ev session.Event) {
				if ev.Kind != session.EventEntry || ev.ConversationID != "77" {
					t.Fatalf("unexpected %+v", ev)
				}
			}},
		{"unknown command", telegram.Update{Message: &telegram.Message{MessageID: 1, Chat: chat, Text: "/stop",
			Entities: []telegram.MessageEntity{{Type: "bot_command", Length: 5}}}},
			func(t *testing.T, ev session.Event) {
				if ev.Kind != session.EventText {
					t.Fatalf("unexpected %+v", ev)
				}
			}},
		{"callback", telegram.Update{CallbackQuery: &telegram.CallbackQuery{ID: "cb1", Data: "jpg_to_png",
			Message: &telegram.Message{MessageID: 9, Chat: chat}}},
			func(t *testing.T, ev session.Event) {
				if ev.Kind != session.EventPairChosen || ev.CallbackID != "cb1" || ev.Data != "jpg_to_png" || ev.MessageID != 9 {
					t.Fatalf("unexpected %+v", ev)
				}
			}},
		{"document", telegram.Update{Message: &telegram.Message{MessageID: 3, Chat: chat,
			Document: &telegram.Document{FileID: "doc", FileName: "holiday.jpg"}}},
			func(t *testing.T, ev session.Event) {
				u := ev.Upload
				if ev.Kind != session.EventUpload || u.Kind != session.KindDocument || u.FileName != "holiday.jpg" ||
					u.RemotePath != "" || u.MessageID != 3 {
					t.Fatalf("unexpected %+v", ev)
				}
				if path, err := u.Resolve(context.Background()); err != nil || path != "documents/file_1.jpg" {
					t.Fatalf("resolve = %q, %v", path, err)
				}
				var buf bytes.Buffer
				if err := u.Content(context.Background(), &buf); err != nil || buf.String() != "doc bytes" {
					t.Fatalf("content = %q, %v", buf.String(), err)
				}
			}},
		{"photo", telegram.Update{Message: &telegram.Message{MessageID: 4, Chat: chat, Photo: []telegram.PhotoSize{
			{FileID: "small", Width: 90, Height: 90}, {FileID: "big", Width: 800, Height: 600}}}},
			func(t *testing.T, ev session.Event) {
				if ev.Upload.Kind != session.KindPhoto || ev.Upload.Resolve == nil {
					t.Fatalf("unexpected %+v", ev.Upload)
				}
				if path, err := ev.Upload.Resolve(context.Background()); err != nil || path != "photos/file_2.jpg" {
					t.Fatalf("resolve = %q, %v", path, err)
				}
			}},
		{"sticker", telegram.Update{Message: &telegram.Message{MessageID: 5, Chat: chat, Sticker: &telegram.FileRef{FileID: "s"}}},
			func(t *testing.T, ev session.Event) {
				if ev.Kind != session.EventUpload || ev.Upload.Kind != session.KindOther {
					t.Fatalf("unexpected %+v", ev)
				}
			}},
		{"plain text", textUpdate(6, 77, "hello"),
			func(t *testing.T, ev session.Event) {
				if ev.Kind != session.EventText || ev.Data != "hello" {
					t.Fatalf("unexpected %+v", ev)
				}
			}},
		{"location", telegram.Update{Message: &telegram.Message{MessageID: 7, Chat: chat}},
			func(t *testing.T, ev session.Event) {
				if ev.Kind != session.EventUpload || ev.Upload.Kind != session.KindOther {
					t.Fatalf("unexpected %+v", ev)
				}
			}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := toEvent(tc.update, files)
			if !ok {
				t.Fatal("update unexpectedly ignored")
			}
			tc.check(t, ev)
		})
	}
}

func TestToEventRetriesFileResolution(t *testing.T) {
	files := &stubFiles{
		paths:   map[string]string{"doc": "documents/file_1.png"},
		content: map[string]string{"documents/file_1.png": "png"},
		failOne: true,
	}
	update := telegram.Update{Message: &telegram.Message{MessageID: 1, Chat: &telegram.Chat{ID: 1},
		Document: &telegram.Document{FileID: "doc", FileName: "a.png"}}}
	ev, ok := toEvent(update, files)
	if !ok {
		t.Fatal("update unexpectedly ignored")
	}
	if _, err := ev.Upload.Resolve(context.Background()); err == nil {
		t.Fatal("expected first lookup to fail")
	}
	if ev.Upload.ValidationPath() != "a.png" {
		t.Fatalf("validation path %q", ev.Upload.ValidationPath())
	}
	var buf bytes.Buffer
	if err := ev.Upload.Content(context.Background(), &buf); err != nil || buf.String() != "png" {
		t.Fatalf("content = %q, %v", buf.String(), err)
	}
}

func TestToEventSkipsChatless(t *testing.T) {
	if _, ok := toEvent(telegram.Update{UpdateID: 1}, &stubFiles{}); ok {
		t.Fatal("expected update without chat to be skipped")
	}
}

func TestToEventDefersFileLookup(t *testing.T) {
	files := &stubFiles{
		paths:   map[string]string{"doc": "documents/file_1.jpg"},
		content: map[string]string{"documents/file_1.jpg": "jpg"},
	}
	update := telegram.Update{Message: &telegram.Message{MessageID: 1, Chat: &telegram.Chat{ID: 1},
		Document: &telegram.Document{FileID: "doc", FileName: "a.jpg"}}}
	ev, ok := toEvent(update, files)
	if !ok {
		t.Fatal("update unexpectedly ignored")
	}
	if files.calls != 0 {
		t.Fatalf("GetFile called %d times before the upload was needed", files.calls)
	}
	if _, err := ev.Upload.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var buf bytes.Buffer
	if err := ev.Upload.Content(context.Background(), &buf); err != nil || buf.String() != "jpg" {
		t.Fatalf("content = %q, %v", buf.String(), err)
	}
	if files.calls != 1 {
		t.Fatalf("GetFile called %d times, want 1", files.calls)
	}
}
