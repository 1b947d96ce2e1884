package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"convertbot/internal/catalog"
	"convertbot/internal/history"
	"convertbot/internal/logging"
	"convertbot/internal/services"
	"convertbot/internal/transcode"
	"convertbot/internal/validator"
	"convertbot/internal/workspace"
)

type call struct {
	Method    string
	ChatID    string
	Text      string
	MessageID int64
	Choices   []Choice
}

type fakeTransport struct {
	mu        sync.Mutex
	calls     []call
	nextID    int64
	delivered map[string][]byte
	sendErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextID: 100, delivered: make(map[string][]byte)}
}

func (f *fakeTransport) record(c call) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.MessageID = f.nextID
	f.calls = append(f.calls, c)
	return f.nextID
}

func (f *fakeTransport) SendText(_ context.Context, chatID, text string) (int64, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	return f.record(call{Method: "SendText", ChatID: chatID, Text: text}), nil
}

func (f *fakeTransport) SendHTML(_ context.Context, chatID, text string) (int64, error) {
	return f.record(call{Method: "SendHTML", ChatID: chatID, Text: text}), nil
}

func (f *fakeTransport) SendChoices(_ context.Context, chatID, text string, choices []Choice) (int64, error) {
	return f.record(call{Method: "SendChoices", ChatID: chatID, Text: text, Choices: choices}), nil
}

func (f *fakeTransport) EditText(_ context.Context, chatID string, messageID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "EditText", ChatID: chatID, Text: text, MessageID: messageID})
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "AnswerCallback", ChatID: callbackID, Text: text})
	return nil
}

func (f *fakeTransport) SendDocument(_ context.Context, chatID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[filepath.Base(path)] = data
	f.calls = append(f.calls, call{Method: "SendDocument", ChatID: chatID, Text: filepath.Base(path)})
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, chatID string, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: "DeleteMessage", ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *fakeTransport) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeTransport) texts(chatID string) []string {
	var out []string
	for _, c := range f.snapshot() {
		if c.Method == "SendText" && c.ChatID == chatID {
			out = append(out, c.Text)
		}
	}
	return out
}

func (f *fakeTransport) count(method string) int {
	n := 0
	for _, c := range f.snapshot() {
		if c.Method == method {
			n++
		}
	}
	return n
}

type transcodeFunc func(ctx context.Context, in, out string) error

func (fn transcodeFunc) Run(ctx context.Context, in, out string) error { return fn(ctx, in, out) }

func copyingTranscoder() transcode.Transcoder {
	return transcodeFunc(func(_ context.Context, in, out string) error {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		return os.WriteFile(out, append([]byte("converted:"), data...), 0o600)
	})
}

type countingRecorder struct {
	mu       sync.Mutex
	opened   int
	released int
	outcomes map[string]int
}

func (c *countingRecorder) ObserveConversion(_ string, outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}
func (c *countingRecorder) WorkspaceOpened()   { c.mu.Lock(); c.opened++; c.mu.Unlock() }
func (c *countingRecorder) WorkspaceReleased() { c.mu.Lock(); c.released++; c.mu.Unlock() }
func (c *countingRecorder) IncCleanupFailure() {}
func (c *countingRecorder) AddStaleSwept(int)  {}
func (c *countingRecorder) IncUpdate(string)   {}

type memoryHistory struct {
	mu       sync.Mutex
	attempts []history.Attempt
}

func (h *memoryHistory) Record(_ context.Context, attempt history.Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, attempt)
	return nil
}

type harness struct {
	machine   *Machine
	transport *fakeTransport
	manager   *workspace.Manager
	recorder  *countingRecorder
	history   *memoryHistory
	root      string
}

func newHarness(t *testing.T, tc transcode.Transcoder) *harness {
	t.Helper()
	cat, err := catalog.New([]string{"jpg_to_png", "png_to_jpg", "jpeg_to_png", "png_to_jpeg"})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	root := filepath.Join(t.TempDir(), "staging")
	rec := &countingRecorder{}
	mgr := workspace.NewManager(root, 0, logging.NewNop(), rec)
	transport := newFakeTransport()
	hist := &memoryHistory{}
	machine, err := NewMachine(Deps{
		Catalog:    cat,
		Validator:  validator.New(false),
		Workspaces: mgr,
		Transcoder: tc,
		Transport:  transport,
		Logger:     logging.NewNop(),
		Metrics:    rec,
		History:    hist,
	})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return &harness{machine: machine, transport: transport, manager: mgr, recorder: rec, history: hist, root: root}
}

func (h *harness) handle(t *testing.T, ev Event) {
	t.Helper()
	if err := h.machine.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle(%s) returned error: %v", ev.Kind, err)
	}
}

func (h *harness) selectPair(t *testing.T, chatID, key string) {
	t.Helper()
	h.handle(t, Event{Kind: EventEntry, ConversationID: chatID})
	h.handle(t, Event{Kind: EventPairChosen, ConversationID: chatID, CallbackID: "cb-" + chatID, Data: key, MessageID: 7})
}

func (h *harness) stagingEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read staging root: %v", err)
	}
	return entries
}

func fileUpload(name, remote, data string) Upload {
	return Upload{
		MessageID:  55,
		FileName:   name,
		RemotePath: remote,
		Kind:       KindDocument,
		Content: func(_ context.Context, w io.Writer) error {
			_, err := io.WriteString(w, data)
			return err
		},
	}
}

func TestEntryOffersEnabledPairs(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.handle(t, Event{Kind: EventEntry, ConversationID: "1"})

	calls := h.transport.snapshot()
	if len(calls) != 1 || calls[0].Method != "SendChoices" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if calls[0].Text != "Choose available conversion pairs" {
		t.Fatalf("unexpected prompt %q", calls[0].Text)
	}
	want := []Choice{
		{Label: "jpg -> png", Data: "jpg_to_png"},
		{Label: "png -> jpg", Data: "png_to_jpg"},
		{Label: "jpeg -> png", Data: "jpeg_to_png"},
		{Label: "png -> jpeg", Data: "png_to_jpeg"},
	}
	if fmt.Sprint(calls[0].Choices) != fmt.Sprint(want) {
		t.Fatalf("choices = %v, want %v", calls[0].Choices, want)
	}
	got, ok := h.machine.Store().Get("1")
	if !ok || got.State != SelectingPair || got.Pair != nil {
		t.Fatalf("unexpected session %+v ok=%v", got, ok)
	}
	if got.PromptMessageID != calls[0].MessageID {
		t.Fatalf("prompt id = %d, want %d", got.PromptMessageID, calls[0].MessageID)
	}
}

func TestConvertDeliversAndReleasesWorkspace(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.selectPair(t, "1", "jpg_to_png")

	edits := 0
	for _, c := range h.transport.snapshot() {
		if c.Method == "EditText" {
			edits++
			if c.Text != "Send file with extension '.jpg'" || c.MessageID != 7 {
				t.Fatalf("unexpected edit %+v", c)
			}
		}
	}
	if edits != 1 {
		t.Fatalf("expected one prompt edit, got %d", edits)
	}
	got, _ := h.machine.Store().Get("1")
	if got.State != AwaitingFile || got.Pair == nil || got.Pair.Key != catalog.JPGToPNG {
		t.Fatalf("unexpected session after selection: %+v", got)
	}

	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: fileUpload("photo.jpg", "documents/file_1.jpg", "jpeg")})

	if data := h.transport.delivered["photo.png"]; string(data) != "converted:jpeg" {
		t.Fatalf("delivered photo.png = %q", data)
	}
	texts := h.transport.texts("1")
	if strings.Join(texts, "|") != "Loading ⏳|Converted file:" {
		t.Fatalf("unexpected texts %q", texts)
	}
	if n := h.transport.count("DeleteMessage"); n != 2 {
		t.Fatalf("expected loading and upload messages deleted, got %d deletes", n)
	}
	if entries := h.stagingEntries(t); len(entries) != 0 {
		t.Fatalf("workspace not removed: %v", entries)
	}
	if h.recorder.opened != 1 || h.recorder.released != 1 {
		t.Fatalf("opened=%d released=%d", h.recorder.opened, h.recorder.released)
	}
	if _, ok := h.machine.Store().Get("1"); ok {
		t.Fatal("session should be gone after the conversion")
	}
	if len(h.history.attempts) != 1 || h.history.attempts[0].Outcome != string(OutcomeConverted) {
		t.Fatalf("unexpected history %+v", h.history.attempts)
	}
	if h.history.attempts[0].OutputBytes != int64(len("converted:jpeg")) {
		t.Fatalf("output bytes = %d", h.history.attempts[0].OutputBytes)
	}
}

func TestUploadPathResolvedOnlyForLiveSession(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	lookups := 0
	photo := Upload{
		MessageID: 56,
		Kind:      KindPhoto,
		Resolve: func(context.Context) (string, error) {
			lookups++
			return "photos/file_3.jpg", nil
		},
		Content: func(_ context.Context, w io.Writer) error {
			_, err := io.WriteString(w, "jpeg")
			return err
		},
	}

	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: photo})
	if lookups != 0 {
		t.Fatalf("upload without a session looked up %d times", lookups)
	}

	h.selectPair(t, "1", "jpg_to_png")
	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: photo})
	if lookups != 1 {
		t.Fatalf("lookups = %d, want 1", lookups)
	}
	if data := h.transport.delivered["file_3.png"]; string(data) != "converted:jpeg" {
		t.Fatalf("delivered = %v", h.transport.delivered)
	}
}

func TestMismatchNeverOpensWorkspace(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.selectPair(t, "1", "jpg_to_png")
	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: fileUpload("photo.png", "documents/file_2.png", "png")})

	texts := h.transport.texts("1")
	if len(texts) != 2 || texts[1] != "Wrong file extension. Expected '.jpg', got '.png'" {
		t.Fatalf("unexpected texts %q", texts)
	}
	if h.recorder.opened != 0 {
		t.Fatalf("workspace opened %d times on mismatch", h.recorder.opened)
	}
	if entries := h.stagingEntries(t); len(entries) != 0 {
		t.Fatalf("staging root has entries: %v", entries)
	}
	if _, ok := h.machine.Store().Get("1"); ok {
		t.Fatal("session should be terminal")
	}
	if h.recorder.outcomes[string(OutcomeMismatch)] != 1 {
		t.Fatalf("unexpected outcomes %v", h.recorder.outcomes)
	}
}

func TestTranscodeFailureReleasesWorkspace(t *testing.T) {
	var seenRoot string
	failing := transcodeFunc(func(_ context.Context, in, _ string) error {
		seenRoot = filepath.Dir(in)
		if _, err := os.Stat(in); err != nil {
			t.Errorf("input not staged: %v", err)
		}
		return fmt.Errorf("%w: ffmpeg exited 1", transcode.ErrTranscode)
	})
	h := newHarness(t, failing)
	h.selectPair(t, "1", "jpg_to_png")
	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: fileUpload("photo.jpg", "", "jpeg")})

	texts := h.transport.texts("1")
	if texts[len(texts)-1] != "Conversion failed" {
		t.Fatalf("unexpected texts %q", texts)
	}
	if h.transport.count("SendDocument") != 0 {
		t.Fatal("no document should be delivered")
	}
	if seenRoot == "" {
		t.Fatal("transcoder never ran")
	}
	if _, err := os.Stat(seenRoot); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("workspace %s still exists: %v", seenRoot, err)
	}
	if h.recorder.opened != 1 || h.recorder.released != 1 {
		t.Fatalf("opened=%d released=%d", h.recorder.opened, h.recorder.released)
	}
	if !strings.Contains(h.history.attempts[0].Detail, "ffmpeg exited 1") {
		t.Fatalf("history detail = %q", h.history.attempts[0].Detail)
	}
}

func TestUnknownPairKeepsSelecting(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.handle(t, Event{Kind: EventEntry, ConversationID: "1"})
	before, _ := h.machine.Store().Get("1")

	h.handle(t, Event{Kind: EventPairChosen, ConversationID: "1", CallbackID: "cb", Data: "gif_to_bmp"})

	var answer *call
	for _, c := range h.transport.snapshot() {
		if c.Method == "AnswerCallback" {
			answer = &c
		}
	}
	if answer == nil || answer.Text != "Unknown conversion pair 'gif_to_bmp'" {
		t.Fatalf("unexpected callback answer %+v", answer)
	}
	after, ok := h.machine.Store().Get("1")
	if !ok || after != before {
		t.Fatalf("session changed: before=%+v after=%+v", before, after)
	}
	if h.transport.count("EditText") != 0 {
		t.Fatal("prompt should not be edited")
	}
}

func TestDisabledPairIsRejected(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.handle(t, Event{Kind: EventEntry, ConversationID: "1"})
	h.handle(t, Event{Kind: EventPairChosen, ConversationID: "1", CallbackID: "cb", Data: string(catalog.WebMToMP4)})

	got, _ := h.machine.Store().Get("1")
	if got.State != SelectingPair {
		t.Fatalf("disabled pair was bound: %+v", got)
	}
}

func TestUploadBeforePairSelected(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.handle(t, Event{Kind: EventEntry, ConversationID: "1"})
	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: fileUpload("photo.jpg", "", "jpeg")})

	texts := h.transport.texts("1")
	if len(texts) != 1 || texts[0] != "Something went wrong, stopping conversation" {
		t.Fatalf("unexpected texts %q", texts)
	}
	if h.recorder.opened != 0 {
		t.Fatal("no workspace expected")
	}
	if _, ok := h.machine.Store().Get("1"); ok {
		t.Fatal("session should be terminal")
	}
	if h.history.attempts[0].Outcome != string(OutcomeNoPair) || h.history.attempts[0].Pair != "none" {
		t.Fatalf("unexpected history %+v", h.history.attempts[0])
	}
}

func TestNonFileAttachmentEndsConversation(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.selectPair(t, "1", "jpg_to_png")
	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: Upload{Kind: KindOther, MessageID: 3}})

	texts := h.transport.texts("1")
	if len(texts) != 1 || texts[0] != "Expected file" {
		t.Fatalf("unexpected texts %q", texts)
	}
	if _, ok := h.machine.Store().Get("1"); ok {
		t.Fatal("session should be terminal")
	}
	if h.recorder.opened != 0 {
		t.Fatal("no workspace expected")
	}
}

func TestSecondUploadRequiresNewEntry(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.selectPair(t, "1", "jpg_to_png")
	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: fileUpload("a.jpg", "", "a")})
	before := len(h.transport.snapshot())

	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: fileUpload("b.jpg", "", "b")})
	if after := len(h.transport.snapshot()); after != before {
		t.Fatalf("upload after terminal produced %d calls", after-before)
	}
	if h.recorder.opened != 1 {
		t.Fatalf("opened = %d", h.recorder.opened)
	}
}

func TestTextAndStrayEventsAreIgnored(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.handle(t, Event{Kind: EventText, ConversationID: "1", Data: "hello"})
	h.handle(t, Event{Kind: EventPairChosen, ConversationID: "1", Data: "jpg_to_png"})
	if calls := h.transport.snapshot(); len(calls) != 0 {
		t.Fatalf("expected silence, got %+v", calls)
	}

	h.selectPair(t, "1", "jpg_to_png")
	before := len(h.transport.snapshot())
	h.handle(t, Event{Kind: EventText, ConversationID: "1", Data: "hello"})
	h.handle(t, Event{Kind: EventPairChosen, ConversationID: "1", Data: "png_to_jpg"})
	if after := len(h.transport.snapshot()); after != before {
		t.Fatalf("stray events produced %d calls", after-before)
	}
	got, _ := h.machine.Store().Get("1")
	if got.Pair == nil || got.Pair.Key != catalog.JPGToPNG {
		t.Fatalf("pair changed: %+v", got)
	}
}

func TestStaleButtonPressIsAnswered(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.handle(t, Event{Kind: EventPairChosen, ConversationID: "1", CallbackID: "cb-none", Data: "jpg_to_png"})

	h.selectPair(t, "1", "jpg_to_png")
	before := len(h.transport.snapshot())
	h.handle(t, Event{Kind: EventPairChosen, ConversationID: "1", CallbackID: "cb-again", Data: "png_to_jpg"})

	calls := h.transport.snapshot()
	if len(calls) == 0 || calls[0].Method != "AnswerCallback" || calls[0].ChatID != "cb-none" || calls[0].Text != "" {
		t.Fatalf("press without a session not answered: %+v", calls)
	}
	stray := calls[before:]
	if len(stray) != 1 || stray[0].Method != "AnswerCallback" || stray[0].ChatID != "cb-again" || stray[0].Text != "" {
		t.Fatalf("press while awaiting file not answered quietly: %+v", stray)
	}
	got, _ := h.machine.Store().Get("1")
	if got.State != AwaitingFile || got.Pair == nil || got.Pair.Key != catalog.JPGToPNG {
		t.Fatalf("stale press changed the session: %+v", got)
	}
}

func TestEntryRestartsFlow(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.selectPair(t, "1", "jpg_to_png")
	h.handle(t, Event{Kind: EventEntry, ConversationID: "1"})

	got, ok := h.machine.Store().Get("1")
	if !ok || got.State != SelectingPair || got.Pair != nil {
		t.Fatalf("entry did not restart the session: %+v", got)
	}
}

func TestStartAndHelp(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.handle(t, Event{Kind: EventStart, ConversationID: "1", From: User{ID: 42, Name: "Ann <b>"}})
	h.handle(t, Event{Kind: EventHelp, ConversationID: "1"})

	calls := h.transport.snapshot()
	if calls[0].Method != "SendHTML" || calls[0].Text != `Hi <a href="tg://user?id=42">Ann &lt;b&gt;</a>!` {
		t.Fatalf("unexpected greeting %+v", calls[0])
	}
	if calls[1].Text != "Press menu -> file_conversion to start using this bot" {
		t.Fatalf("unexpected help %+v", calls[1])
	}
	if h.machine.Store().Len() != 0 {
		t.Fatal("start/help must not create sessions")
	}
}

type failingOpener struct{}

func (failingOpener) Open(context.Context) (*workspace.Workspace, error) {
	return nil, fmt.Errorf("%w: disk full", workspace.ErrStagingUnavailable)
}

func TestStagingFailureReplies(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.machine.workspaces = failingOpener{}
	h.selectPair(t, "1", "jpg_to_png")
	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: fileUpload("photo.jpg", "", "jpeg")})

	texts := h.transport.texts("1")
	if texts[len(texts)-1] != msgStagingFailed {
		t.Fatalf("unexpected texts %q", texts)
	}
	if h.recorder.outcomes[string(OutcomeStagingFailed)] != 1 {
		t.Fatalf("unexpected outcomes %v", h.recorder.outcomes)
	}
}

func TestStageWriteFailureReleasesWorkspace(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	h.selectPair(t, "1", "jpg_to_png")
	upload := fileUpload("photo.jpg", "", "")
	upload.Content = func(context.Context, io.Writer) error { return errors.New("download interrupted") }
	h.handle(t, Event{Kind: EventUpload, ConversationID: "1", Upload: upload})

	if h.recorder.opened != 1 || h.recorder.released != 1 {
		t.Fatalf("opened=%d released=%d", h.recorder.opened, h.recorder.released)
	}
	if entries := h.stagingEntries(t); len(entries) != 0 {
		t.Fatalf("workspace not removed: %v", entries)
	}
	if !strings.Contains(h.history.attempts[0].Detail, "download interrupted") {
		t.Fatalf("unexpected detail %q", h.history.attempts[0].Detail)
	}
}

func TestHandleConversionWithoutPair(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	s := &Session{ConversationID: "9", State: SelectingPair}
	if got := h.machine.HandleConversion(context.Background(), s, fileUpload("x.jpg", "", "x")); got != OutcomeNoPair {
		t.Fatalf("outcome = %s", got)
	}
	if s.State != Terminal {
		t.Fatalf("state = %s", s.State)
	}
}

func TestConcurrentSessionsUseDistinctWorkspaces(t *testing.T) {
	var mu sync.Mutex
	roots := make(map[string]string)
	gate := make(chan struct{})
	tc := transcodeFunc(func(ctx context.Context, in, out string) error {
		mu.Lock()
		roots[filepath.Base(in)] = filepath.Dir(in)
		ready := len(roots) == 2
		mu.Unlock()
		if ready {
			close(gate)
		}
		select {
		case <-gate:
		case <-time.After(5 * time.Second):
			return errors.New("peer never started")
		}
		return os.WriteFile(out, []byte("ok"), 0o600)
	})
	h := newHarness(t, tc)
	h.selectPair(t, "1", "jpg_to_png")
	h.selectPair(t, "2", "jpg_to_png")

	var wg sync.WaitGroup
	for _, id := range []string{"1", "2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.machine.Handle(context.Background(), Event{Kind: EventUpload, ConversationID: id, Upload: fileUpload("chat"+id+".jpg", "", id)})
		}()
	}
	wg.Wait()

	if len(roots) != 2 || roots["chat1.jpg"] == roots["chat2.jpg"] {
		t.Fatalf("expected distinct workspaces, got %v", roots)
	}
	if h.recorder.outcomes[string(OutcomeConverted)] != 2 {
		t.Fatalf("unexpected outcomes %v", h.recorder.outcomes)
	}
	if h.manager.Active() != 0 {
		t.Fatalf("active workspaces = %d", h.manager.Active())
	}
}

func TestPairBoundOnlyWhileAwaitingFile(t *testing.T) {
	h := newHarness(t, copyingTranscoder())
	check := func(step string) {
		t.Helper()
		s, ok := h.machine.Store().Get("1")
		if !ok {
			return
		}
		if (s.State == AwaitingFile) != (s.Pair != nil) {
			t.Fatalf("%s: pair/state mismatch %+v", step, s)
		}
	}
	events := []Event{
		{Kind: EventEntry, ConversationID: "1"},
		{Kind: EventPairChosen, ConversationID: "1", Data: "nope"},
		{Kind: EventText, ConversationID: "1"},
		{Kind: EventPairChosen, ConversationID: "1", Data: "png_to_jpg"},
		{Kind: EventEntry, ConversationID: "1"},
		{Kind: EventPairChosen, ConversationID: "1", Data: "png_to_jpeg"},
		{Kind: EventUpload, ConversationID: "1", Upload: fileUpload("p.png", "", "p")},
	}
	for _, ev := range events {
		h.handle(t, ev)
		check(string(ev.Kind))
	}
	if h.recorder.opened != h.recorder.released {
		t.Fatalf("opened=%d released=%d", h.recorder.opened, h.recorder.released)
	}
}

func TestNewMachineRequiresDeps(t *testing.T) {
	if _, err := NewMachine(Deps{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
