package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
)

// reloadDebounce absorbs the burst of write events most editors and
// atomic-rename config writers produce for a single logical save.
const reloadDebounce = 500 * time.Millisecond

// Watcher watches a config file for changes and re-loads/validates it,
// delivering each successfully parsed Config on Changes. A config file
// that fails to parse or validate is logged and skipped — the previous
// good Config keeps running, mirroring §7's ConfigInvalid handling
// ("surfaced, does not crash the process").
type Watcher struct {
	path    string
	logger  obs.Logger
	watcher *fsnotify.Watcher
	changes chan *Config
	done    chan struct{}
}

// NewWatcher starts watching path's parent directory (so it survives
// editors that replace the file via rename rather than in-place write)
// and returns a Watcher whose Changes channel delivers each reload.
func NewWatcher(path string, logger obs.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := parentDir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		logger:  logger,
		watcher: fw,
		changes: make(chan *Config, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Changes delivers a reloaded Config each time the watched file changes
// and successfully re-validates.
func (w *Watcher) Changes() <-chan *Config {
	return w.changes
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	var debounce *time.Timer

	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.logger.WithFields(obs.Fields{"path": w.path, "error": err}).Warn("config reload failed, keeping previous config")
			return
		}
		select {
		case w.changes <- cfg:
		default:
			// drop the stale pending reload in favor of this one
			select {
			case <-w.changes:
			default:
			}
			w.changes <- cfg
		}
	}

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
