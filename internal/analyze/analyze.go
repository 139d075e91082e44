// Package analyze runs the full extraction pipeline over a source tree:
// discovery, per-file parsing on a worker pool, and relationship
// classification against an index of every declared type.
package analyze

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/classmap/internal/classify"
	"github.com/phobologic/classmap/internal/discover"
	"github.com/phobologic/classmap/internal/lang"
	"github.com/phobologic/classmap/internal/logging"
	"github.com/phobologic/classmap/internal/model"
	"github.com/phobologic/classmap/internal/parse"
)

const (
	DefaultMaxFileSize = 1_000_000 // 1 MB
	DefaultCacheSize   = 4096
)

// Options configures an Analyzer.
type Options struct {
	Discover discover.Options
	Classify classify.Options
	// Markers adds abstract-interface markers per language on top of each
	// language's defaults.
	Markers map[string][]string
	// Workers is the number of parsing goroutines. Zero means GOMAXPROCS;
	// one parses strictly in scan order.
	Workers int
	// MaxFiles keeps only the first N scanned files. Zero means no limit.
	MaxFiles int
	// MaxFileSize skips larger files with a warning. Zero means
	// DefaultMaxFileSize, negative means no limit.
	MaxFileSize int64
	// CacheSize bounds the parsed-file cache. Zero means DefaultCacheSize,
	// negative disables caching.
	CacheSize int
	Logger    *slog.Logger
}

// Stats describes the most recent run.
type Stats struct {
	Files    int
	Parsed   int
	Cached   int
	Failed   int
	Duration time.Duration
}

// Analyzer accumulates per-file results across runs. It is safe to call Run
// from one goroutine at a time.
type Analyzer struct {
	opts  Options
	log   *slog.Logger
	cache *lru.Cache[string, []model.DeclaredType]

	mu    sync.Mutex
	stats Stats
}

// New creates an Analyzer.
func New(opts Options) (*Analyzer, error) {
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Classify.PrivatePrefixes == nil {
		opts.Classify.PrivatePrefixes = classify.DefaultOptions().PrivatePrefixes
	}
	a := &Analyzer{opts: opts, log: opts.Logger}
	if a.log == nil {
		a.log = logging.Discard()
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		cache, err := lru.New[string, []model.DeclaredType](size)
		if err != nil {
			return nil, fmt.Errorf("create parse cache: %w", err)
		}
		a.cache = cache
	}
	return a, nil
}

// Stats returns the counters of the most recent Run.
func (a *Analyzer) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// fileResult is the outcome of reading and parsing one file.
type fileResult struct {
	index  int
	types  []model.DeclaredType
	err    error
	cached bool
}

// Run analyzes every source file under root. Per-file failures are recorded
// in Analysis.Errors and scan problems in Analysis.Warnings; the remaining
// files are still analyzed. When ctx is canceled, Run stops dispatching
// files and returns the partial analysis together with ctx's error.
func (a *Analyzer) Run(ctx context.Context, root string) (*model.Analysis, error) {
	start := time.Now()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	files, scanWarnings, err := discover.Files(abs, a.opts.Discover)
	if err != nil {
		return nil, err
	}

	result := &model.Analysis{
		Root:          abs,
		Classes:       []model.ClassRecord{},
		Relationships: []model.Relationship{},
		Errors:        []string{},
		Warnings:      []string{},
	}
	for _, w := range scanWarnings {
		a.log.Warn("skipping directory", "error", w)
		result.Warnings = append(result.Warnings, w.Error())
	}

	if a.opts.MaxFiles > 0 && len(files) > a.opts.MaxFiles {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("file limit reached: analyzed %d of %d files", a.opts.MaxFiles, len(files)))
		files = files[:a.opts.MaxFiles]
	}

	files = a.filterBySize(abs, files, result)
	a.log.Debug("discovered files", "root", abs, "files", len(files))

	results, parsed, cached := a.parseFilesConcurrent(ctx, abs, files)

	var fileTypes [][]model.DeclaredType
	var fileEntries []discover.FileEntry
	failed := 0
	for i, r := range results {
		if r == nil {
			continue
		}
		if r.err != nil {
			failed++
			a.log.Warn("file skipped", "error", r.err)
			result.Errors = append(result.Errors, r.err.Error())
			continue
		}
		fileTypes = append(fileTypes, r.types)
		fileEntries = append(fileEntries, files[i])
		for _, t := range r.types {
			result.Classes = append(result.Classes, t.ClassRecord)
		}
	}

	ix := classify.NewIndex(result.Classes)
	seen := make(map[model.Relationship]struct{})
	for i, types := range fileTypes {
		f := fileEntries[i]
		for _, rel := range classify.Types(types, f.Path, f.Language, ix, a.opts.Classify) {
			if rel.Source == "" || rel.Target == "" {
				continue
			}
			if _, dup := seen[rel]; dup {
				continue
			}
			seen[rel] = struct{}{}
			result.Relationships = append(result.Relationships, rel)
		}
	}

	stats := Stats{
		Files:    len(files),
		Parsed:   parsed,
		Cached:   cached,
		Failed:   failed,
		Duration: time.Since(start),
	}
	a.mu.Lock()
	a.stats = stats
	a.mu.Unlock()

	a.log.Info("analysis complete",
		"files", stats.Files,
		"classes", len(result.Classes),
		"relationships", len(result.Relationships),
		"errors", len(result.Errors),
		"cached", stats.Cached,
		"duration", stats.Duration)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (a *Analyzer) filterBySize(root string, files []discover.FileEntry, result *model.Analysis) []discover.FileEntry {
	if a.opts.MaxFileSize < 0 {
		return files
	}
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			kept = append(kept, f) // reported when read
			continue
		}
		if fi.Size() > a.opts.MaxFileSize {
			msg := fmt.Sprintf("%s: skipped (>%d bytes)", f.Path, a.opts.MaxFileSize)
			a.log.Warn("file too large", "path", f.Path, "size", fi.Size())
			result.Warnings = append(result.Warnings, msg)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// parseFilesConcurrent parses files on a pool of workers. The returned slice
// is indexed like files; entries for files never dispatched are nil.
func (a *Analyzer) parseFilesConcurrent(ctx context.Context, root string, files []discover.FileEntry) ([]*fileResult, int, int) {
	out := make([]*fileResult, len(files))
	if len(files) == 0 {
		return out, 0, 0
	}

	numWorkers := a.opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int)
	results := make(chan *fileResult, len(files))
	var parsed, cached atomic.Int64

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parsers
			parsers := make(map[string]*sitter.Parser)
			defer func() {
				for _, p := range parsers {
					p.Close()
				}
			}()

			for idx := range work {
				r := a.parseFile(ctx, root, files[idx], parsers)
				r.index = idx
				if r.err == nil {
					if r.cached {
						cached.Add(1)
					} else {
						parsed.Add(1)
					}
				}
				results <- r
			}
		}()
	}

dispatch:
	for i := range files {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case work <- i:
		}
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	for r := range results {
		out[r.index] = r
	}
	return out, int(parsed.Load()), int(cached.Load())
}

func (a *Analyzer) parseFile(ctx context.Context, root string, f discover.FileEntry, parsers map[string]*sitter.Parser) *fileResult {
	l := lang.Languages[f.Language]
	if l == nil {
		return &fileResult{err: fmt.Errorf("%s: unsupported language %q", f.Path, f.Language)}
	}

	source, err := os.ReadFile(filepath.Join(root, f.Path))
	if err != nil {
		return &fileResult{err: fmt.Errorf("%s: %w", f.Path, unwrapPath(err))}
	}

	key := cacheKey(f.Path, source)
	if a.cache != nil {
		if types, ok := a.cache.Get(key); ok {
			a.log.Debug("cache hit", "path", f.Path)
			return &fileResult{types: types, cached: true}
		}
	}

	parser, ok := parsers[f.Language]
	if !ok && l.HasGrammar() {
		parser = l.NewParser()
		parsers[f.Language] = parser
	}

	types, err := parse.File(ctx, l, parser, source, f.Path)
	if err != nil {
		return &fileResult{err: err}
	}
	lang.ApplyMarkers(types, a.opts.Markers[f.Language])
	a.log.Debug("parsed file", "path", f.Path, "language", f.Language, "types", len(types))

	if a.cache != nil {
		a.cache.Add(key, types)
	}
	return &fileResult{types: types}
}

// cacheKey identifies a file's content at a path. Markers are fixed for the
// lifetime of an Analyzer, so they are not part of the key.
func cacheKey(path string, source []byte) string {
	sum := sha256.Sum256(source)
	return path + "\x00" + hex.EncodeToString(sum[:])
}

// unwrapPath drops the absolute path os.ReadFile puts in its error.
func unwrapPath(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
