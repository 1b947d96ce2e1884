package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"convertbot/internal/logging"
	"convertbot/internal/metrics"
	"convertbot/internal/preflight"
	"convertbot/internal/services"
	"convertbot/internal/textutil"
)

var (
	// ErrStagingUnavailable reports that no workspace could be created.
	ErrStagingUnavailable = fmt.Errorf("%w: staging unavailable", services.ErrTransient)
	// ErrStagingWrite reports that the upload could not be written into a workspace.
	ErrStagingWrite = fmt.Errorf("%w: staging write failed", services.ErrTransient)
)

const nameTimeLayout = "20060102T150405Z"

// Content streams an upload's bytes into w.
type Content func(ctx context.Context, w io.Writer) error

// Manager creates workspaces under a staging root.
type Manager struct {
	root      string
	minFree   uint64
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
	removeAll func(string) error

	mu     sync.Mutex
	active map[string]struct{}
}

// NewManager returns a manager rooted at root. minFree is the free-space
// floor checked before each Open; zero disables the check.
func NewManager(root string, minFree uint64, logger *slog.Logger, recorder metrics.Recorder) *Manager {
	return &Manager{
		root:      root,
		minFree:   minFree,
		logger:    logging.NewComponentLogger(logger, "workspace"),
		metrics:   metrics.OrNop(recorder),
		now:       time.Now,
		removeAll: os.RemoveAll,
		active:    make(map[string]struct{}),
	}
}

// Root returns the staging root.
func (m *Manager) Root() string {
	return m.root
}

// Open verifies the staging root and creates a fresh workspace directory.
func (m *Manager) Open(ctx context.Context) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(ErrStagingUnavailable, "workspace", "open", "context done", err)
	}
	if strings.TrimSpace(m.root) == "" {
		return nil, services.Wrap(ErrStagingUnavailable, "workspace", "open", "staging root not configured", nil)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, services.Wrap(ErrStagingUnavailable, "workspace", "open", "create staging root", err)
	}
	if err := preflight.DirectoryWritable(m.root); err != nil {
		return nil, services.Wrap(ErrStagingUnavailable, "workspace", "open", "staging root not writable", err)
	}
	if m.minFree > 0 {
		free, err := preflight.FreeBytes(m.root)
		if err != nil {
			return nil, services.Wrap(ErrStagingUnavailable, "workspace", "open", "inspect free space", err)
		}
		if free < m.minFree {
			return nil, services.Wrap(ErrStagingUnavailable, "workspace", "open",
				fmt.Sprintf("only %d bytes free, need %d", free, m.minFree), nil)
		}
	}

	name := m.now().UTC().Format(nameTimeLayout) + "-" + uuid.NewString()
	dir := filepath.Join(m.root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, services.Wrap(ErrStagingUnavailable, "workspace", "open", "create workspace", err)
	}

	m.mu.Lock()
	m.active[dir] = struct{}{}
	m.mu.Unlock()
	m.metrics.WorkspaceOpened()
	m.logger.Debug("workspace opened",
		logging.String("workspace_dir", dir),
		logging.String(logging.FieldEventType, "workspace_opened"),
	)
	return &Workspace{root: dir, manager: m}, nil
}

// Active reports the number of open, unreleased workspaces.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Sweep removes stale workspaces under the manager's root, skipping any
// that are currently open.
func (m *Manager) Sweep(ctx context.Context, maxAge time.Duration) SweepResult {
	result := sweep(ctx, m.root, maxAge, m.logger, m.isActive)
	m.metrics.AddStaleSwept(len(result.Removed))
	return result
}

func (m *Manager) isActive(dir string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[dir]
	return ok
}

func (m *Manager) release(dir string) {
	m.mu.Lock()
	delete(m.active, dir)
	m.mu.Unlock()
	m.metrics.WorkspaceReleased()

	if err := m.removeAll(dir); err != nil {
		m.metrics.IncCleanupFailure()
		logging.WarnWithContext(m.logger, "workspace cleanup failed; files remain on disk", "workspace_cleanup_failed",
			logging.String("workspace_dir", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging_dir permissions; run convertbot staging clean"),
			logging.String(logging.FieldImpact, "disk space not reclaimed until the next sweep"),
		)
		return
	}
	m.logger.Debug("workspace released",
		logging.String("workspace_dir", dir),
		logging.String(logging.FieldEventType, "workspace_released"),
	)
}

// Workspace is one request's staging directory. It is not safe to share
// across requests.
type Workspace struct {
	root    string
	input   string
	output  string
	manager *Manager
	once    sync.Once
}

// Root returns the workspace directory.
func (w *Workspace) Root() string {
	if w == nil {
		return ""
	}
	return w.root
}

// InputPath returns the staged upload path, empty until Stage succeeds.
func (w *Workspace) InputPath() string {
	if w == nil {
		return ""
	}
	return w.input
}

// Stage writes content under the workspace as name's base name and returns
// the resulting path.
func (w *Workspace) Stage(ctx context.Context, name string, content Content) (string, error) {
	if w == nil {
		return "", services.Wrap(ErrStagingWrite, "workspace", "stage", "workspace not open", nil)
	}
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	base = textutil.SanitizeFileName(base)
	if base == "" {
		return "", services.Wrap(ErrStagingWrite, "workspace", "stage", fmt.Sprintf("unusable file name %q", name), nil)
	}
	if content == nil {
		return "", services.Wrap(ErrStagingWrite, "workspace", "stage", "no content provider", nil)
	}

	path := filepath.Join(w.root, base)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", services.Wrap(ErrStagingWrite, "workspace", "stage", "create input file", err)
	}
	writeErr := content(ctx, file)
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", services.Wrap(ErrStagingWrite, "workspace", "stage", "write input file", err)
	}
	w.input = path
	return path, nil
}

// OutputPathFor returns the sibling path of the staged input with its
// extension replaced by targetExt. Before staging it names "output<ext>".
func (w *Workspace) OutputPathFor(targetExt string) string {
	if w == nil {
		return ""
	}
	stem := "output"
	if w.input != "" {
		base := filepath.Base(w.input)
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}
	candidate := filepath.Join(w.root, stem+targetExt)
	if candidate == w.input {
		candidate = filepath.Join(w.root, stem+".converted"+targetExt)
	}
	w.output = candidate
	return candidate
}

// OutputPath returns the last path handed out by OutputPathFor.
func (w *Workspace) OutputPath() string {
	if w == nil {
		return ""
	}
	return w.output
}

// Release removes the workspace directory. Only the first call does work;
// it is safe on a nil workspace.
func (w *Workspace) Release() {
	if w == nil || w.manager == nil {
		return
	}
	w.once.Do(func() {
		w.manager.release(w.root)
	})
}
