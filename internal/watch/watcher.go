// Package watch re-runs the analysis when source files change and reports
// how the relationship set moved between runs.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/classmap/internal/discover"
	"github.com/phobologic/classmap/internal/lang"
)

// ChangeEvent is a batch of changed source files.
type ChangeEvent struct {
	Paths     []string
	Timestamp time.Time
}

// SourceFilter reports whether a changed path is an analyzable source file.
// overrides maps extensions to languages like discover.Options.Extensions.
func SourceFilter(overrides map[string]string) func(string) bool {
	return func(path string) bool {
		name := filepath.Base(path)
		if strings.HasPrefix(name, ".") {
			return false
		}
		ext := filepath.Ext(name)
		if _, ok := overrides[ext]; ok {
			return true
		}
		return lang.ForExtension(ext) != ""
	}
}

// FileWatcher watches every scannable directory under a root and emits one
// event per source file change. Directories created later are added as
// they appear.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	isSource func(string) bool
	events   chan ChangeEvent
	log      *slog.Logger
}

// NewFileWatcher creates a watcher for root.
func NewFileWatcher(root string, isSource func(string) bool, log *slog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher:  watcher,
		root:     root,
		isSource: isSource,
		events:   make(chan ChangeEvent, 100),
		log:      log,
	}, nil
}

// Start registers the directory tree and begins processing events. The
// events channel is closed when ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	n, err := fw.addTree(fw.root)
	if err != nil {
		fw.watcher.Close()
		return err
	}
	fw.log.Info("watching directories", "root", fw.root, "count", n)

	go fw.processEvents(ctx)
	return nil
}

func (fw *FileWatcher) addTree(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			fw.log.Warn("skipping directory", "path", path, "error", err)
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.root && discover.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			fw.log.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return count, nil
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if !discover.SkipDir(filepath.Base(event.Name)) {
					if _, err := fw.addTree(event.Name); err != nil {
						fw.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
				continue
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if !fw.isSource(event.Name) {
				continue
			}
			fw.log.Debug("source changed", "path", event.Name, "op", event.Op.String())
			select {
			case fw.events <- ChangeEvent{Paths: []string{event.Name}, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}
