package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/phobologic/classmap/internal/analyze"
	"github.com/phobologic/classmap/internal/logging"
	"github.com/phobologic/classmap/internal/model"
	"github.com/phobologic/classmap/internal/snapshot"
)

// Session analyzes Root once, then again after every debounced batch of
// source changes, printing the relationship diff against the previous run.
type Session struct {
	Root     string
	Analyzer *analyze.Analyzer
	Debounce time.Duration
	// Filter selects the paths that trigger a run. Nil means SourceFilter(nil).
	Filter func(string) bool
	Out    io.Writer
	Log    *slog.Logger
	// OnRun, when set, is called after every analysis with its result.
	OnRun func(*model.Analysis, *snapshot.Report)
}

// Run blocks until ctx is done. Only the initial analysis is fatal; later
// failures are logged and the session keeps watching.
func (s *Session) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = logging.Discard()
	}
	filter := s.Filter
	if filter == nil {
		filter = SourceFilter(nil)
	}

	result, err := s.Analyzer.Run(ctx, s.Root)
	if err != nil {
		return err
	}
	prev := snapshot.Take(result.Root, result.Relationships)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fw, err := NewFileWatcher(result.Root, filter, log)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	debouncer := NewDebouncer(fw.Events(), s.Debounce, 0)
	debouncer.Start(ctx)

	fmt.Fprintf(s.Out, "Watching %s: %d classes, %d relationships\n",
		result.Root, len(result.Classes), len(result.Relationships))
	if s.OnRun != nil {
		s.OnRun(result, &snapshot.Report{})
	}

	for event := range debouncer.Output() {
		log.Info("re-analyzing", "changed", len(event.Paths))
		result, err := s.Analyzer.Run(ctx, s.Root)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("analysis failed", "error", err)
			continue
		}

		cur := snapshot.Take(result.Root, result.Relationships)
		report := snapshot.Diff(prev, cur)
		prev = cur

		fmt.Fprintln(s.Out)
		for _, p := range event.Paths {
			if rel, err := filepath.Rel(result.Root, p); err == nil {
				p = rel
			}
			fmt.Fprintf(s.Out, "changed: %s\n", p)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(s.Out, "error: %s\n", e)
		}
		if err := snapshot.WriteReport(s.Out, report); err != nil {
			return err
		}
		if s.OnRun != nil {
			s.OnRun(result, report)
		}
	}
	return nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
