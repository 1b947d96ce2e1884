package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"convertbot/internal/fileutil"
	"convertbot/internal/session"
)

// localTransport plays the chat side of a conversion on the terminal:
// replies are printed and delivered documents are copied into outDir.
type localTransport struct {
	out    io.Writer
	outDir string

	mu        sync.Mutex
	nextID    int64
	delivered []string
}

func newLocalTransport(out io.Writer, outDir string) *localTransport {
	return &localTransport{out: out, outDir: outDir}
}

func (t *localTransport) SendText(_ context.Context, _ string, text string) (int64, error) {
	fmt.Fprintln(t.out, text)
	return t.id(), nil
}

func (t *localTransport) SendHTML(ctx context.Context, chatID, text string) (int64, error) {
	return t.SendText(ctx, chatID, text)
}

func (t *localTransport) SendChoices(_ context.Context, _ string, text string, choices []session.Choice) (int64, error) {
	fmt.Fprintln(t.out, text)
	for _, choice := range choices {
		fmt.Fprintf(t.out, "  %s (%s)\n", choice.Label, choice.Data)
	}
	return t.id(), nil
}

func (t *localTransport) EditText(_ context.Context, _ string, _ int64, text string) error {
	fmt.Fprintln(t.out, text)
	return nil
}

func (t *localTransport) AnswerCallback(context.Context, string, string) error { return nil }

func (t *localTransport) DeleteMessage(context.Context, string, int64) error { return nil }

func (t *localTransport) SendDocument(ctx context.Context, _ string, path string) error {
	target := filepath.Join(t.outDir, filepath.Base(path))
	if _, err := fileutil.CopyVerified(ctx, path, target); err != nil {
		return fmt.Errorf("deliver %s: %w", filepath.Base(path), err)
	}
	t.mu.Lock()
	t.delivered = append(t.delivered, target)
	t.mu.Unlock()
	return nil
}

// Delivered lists the files copied out so far.
func (t *localTransport) Delivered() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.delivered...)
}

func (t *localTransport) id() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return t.nextID
}
