package gamepad

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/groutine"
	"github.com/srg/trackctl/internal/input"
)

// DefaultPattern matches the Linux joystick device nodes.
const DefaultPattern = "/dev/input/js*"

// Presence receives controller hotplug notifications. Calls come from the
// watcher goroutine.
type Presence interface {
	ControllerConnected()
	ControllerDisconnected()
}

// Watcher follows the joystick device nodes matching a glob pattern and
// keeps a Reader attached to the first one present. It implements
// input.PadSource; the snapshot is empty while no controller is attached.
type Watcher struct {
	pattern  string
	mapping  Mapping
	presence Presence
	logger   *logrus.Logger
	openFn   func(ctx context.Context, path string) (io.ReadCloser, error)

	lost  chan string
	group groutine.Group

	mu     sync.Mutex
	active string
	reader *Reader
	stream io.ReadCloser
	cancel context.CancelFunc
}

var _ input.PadSource = (*Watcher)(nil)

// NewWatcher creates a Watcher. An empty pattern selects DefaultPattern.
func NewWatcher(pattern string, mapping Mapping, presence Presence, logger *logrus.Logger) *Watcher {
	if logger == nil {
		logger = logrus.New()
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Watcher{
		pattern:  pattern,
		mapping:  mapping,
		presence: presence,
		logger:   logger,
		openFn:   openDevice,
		lost:     make(chan string, 1),
	}
}

// State returns the attached controller's snapshot.
func (w *Watcher) State() input.PadState {
	w.mu.Lock()
	r := w.reader
	w.mu.Unlock()

	if r == nil {
		return input.PadState{}
	}
	return r.State()
}

// Attached returns the device path in use, or "".
func (w *Watcher) Attached() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Run watches the device directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create device watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.pattern)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.WithField("pattern", w.pattern).Info("Watching for game controllers")
	w.rescan(ctx)

	for {
		select {
		case <-ctx.Done():
			w.detach()
			w.group.Wait()
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				w.detach()
				w.group.Wait()
				return nil
			}
			w.handle(ctx, ev)

		case err, ok := <-fsw.Errors:
			if ok {
				w.logger.WithField("error", err).Warn("Device watcher error")
			}

		case path := <-w.lost:
			if path == w.Attached() {
				w.logger.WithField("device", path).Info("Game controller stream ended")
				w.detach()
				w.rescan(ctx)
			}
		}
	}
}

func (w *Watcher) matches(path string) bool {
	ok, err := filepath.Match(w.pattern, path)
	return err == nil && ok
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !w.matches(ev.Name) {
		return
	}

	w.logger.WithFields(logrus.Fields{
		"device": ev.Name,
		"op":     ev.Op.String(),
	}).Debug("Device node event")

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if ev.Name == w.Attached() {
			w.detach()
			w.rescan(ctx)
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Chmod):
		if w.Attached() == "" {
			w.attach(ctx, ev.Name)
		}
	}
}

// rescan attaches the first matching device if none is attached.
func (w *Watcher) rescan(ctx context.Context) {
	if w.Attached() != "" {
		return
	}
	paths, err := filepath.Glob(w.pattern)
	if err != nil {
		w.logger.WithField("error", err).Warn("Invalid controller device pattern")
		return
	}
	sort.Strings(paths)
	for _, p := range paths {
		if w.attach(ctx, p) {
			return
		}
	}
}

func (w *Watcher) attach(ctx context.Context, path string) bool {
	readerCtx, cancel := context.WithCancel(ctx)
	stream, err := w.openFn(readerCtx, path)
	if err != nil {
		cancel()
		w.logger.WithFields(logrus.Fields{
			"device": path,
			"error":  err,
		}).Warn("Cannot open game controller")
		return false
	}

	reader := NewReader(w.mapping, w.logger)

	w.mu.Lock()
	w.active = path
	w.reader = reader
	w.stream = stream
	w.cancel = cancel
	w.mu.Unlock()

	w.group.Go(readerCtx, "gamepad-reader", func(readerCtx context.Context) {
		err := reader.Run(readerCtx, stream)
		_ = stream.Close()
		if readerCtx.Err() != nil {
			return
		}
		w.logger.WithFields(logrus.Fields{
			"device": path,
			"error":  err,
		}).Debug("Game controller reader stopped")
		select {
		case w.lost <- path:
		case <-readerCtx.Done():
		}
	})

	w.logger.WithField("device", path).Info("Game controller attached")
	if w.presence != nil {
		w.presence.ControllerConnected()
	}
	return true
}

func (w *Watcher) detach() {
	w.mu.Lock()
	path := w.active
	stream, cancel, reader := w.stream, w.cancel, w.reader
	w.active, w.stream, w.cancel, w.reader = "", nil, nil, nil
	w.mu.Unlock()

	if path == "" {
		return
	}
	cancel()
	_ = stream.Close()
	reader.Clear()

	w.logger.WithField("device", path).Info("Game controller detached")
	if w.presence != nil {
		w.presence.ControllerDisconnected()
	}
}
