package sync

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher is a ChangeSource backed by filesystem notifications on
// the file holding the durable key. It watches the parent directory so
// that atomic renames and SQLite's -wal/-shm side files are seen too.
type FileWatcher struct {
	path     string
	debounce time.Duration
	logger   *log.Logger
}

// NewFileWatcher creates a FileWatcher for path. Bursts of events closer
// together than debounce produce a single signal.
func NewFileWatcher(path string, debounce time.Duration, logger *log.Logger) *FileWatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &FileWatcher{path: path, debounce: debounce, logger: logger}
}

// OnExternalChange starts watching and calls callback after each burst
// of writes to the watched file.
func (w *FileWatcher) OnExternalChange(callback func()) (func(), error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	doneCh := make(chan struct{})
	go w.watch(fw, callback, doneCh)

	var once gosync.Once
	return func() {
		once.Do(func() {
			fw.Close()
			<-doneCh
		})
	}, nil
}

func (w *FileWatcher) watch(fw *fsnotify.Watcher, callback func(), doneCh chan<- struct{}) {
	defer close(doneCh)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !w.matches(ev) {
				continue
			}
			if w.debounce <= 0 {
				callback()
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, callback)
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("failed to watch %s: %v", w.path, err)
		}
	}
}

// matches reports whether ev touches the watched file or one of its
// SQLite side files.
func (w *FileWatcher) matches(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}

	base := filepath.Base(w.path)
	name := filepath.Base(ev.Name)
	return name == base || strings.HasPrefix(name, base+"-")
}
