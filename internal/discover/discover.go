// Package discover finds analyzable source files under a root directory.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/classmap/internal/lang"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to root
	Language string
}

// Options narrows discovery.
type Options struct {
	// Languages limits results to the named languages. Empty means all.
	Languages []string
	// Extensions maps file extensions (".gvy") to language names and takes
	// precedence over the registry.
	Extensions map[string]string
	// Exclude holds glob patterns matched against the slash-separated
	// relative path and against the base name.
	Exclude []string
	// SkipTests drops files that look like tests.
	SkipTests bool
}

// ScanError reports a directory that could not be read. The walk continues
// past it.
type ScanError struct {
	Dir string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Dir, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	"venv":          {},
	"env":           {},
	"build":         {},
	"dist":          {},
	"target":        {},
	"out":           {},
	"egg-info":      {},
	"site-packages": {},
}

// SkipDir reports whether a directory with this base name is never scanned:
// hidden directories and tool or build output directories.
func SkipDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	_, skip := skipDirs[name]
	return skip || strings.HasSuffix(name, ".egg-info")
}

// Files discovers source files under root, sorted by relative path.
// Unreadable subdirectories are returned as *ScanError warnings; the error
// result is non-nil only when root itself cannot be walked.
func Files(root string, opts Options) ([]FileEntry, []error, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("discover: %s is not a directory", root)
	}

	langSet := make(map[string]struct{}, len(opts.Languages))
	for _, l := range opts.Languages {
		langSet[l] = struct{}{}
	}
	excludes, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, nil, err
	}

	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []FileEntry
	var warnings []error

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			warnings = append(warnings, &ScanError{Dir: rel, Err: err})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if SkipDir(name) {
				return filepath.SkipDir
			}
			rel, err := filepath.Rel(root, path)
			if err == nil && matchAny(excludes, filepath.ToSlash(rel), name) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		slashRel := filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[slashRel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(slashRel) {
			return nil
		}

		if matchAny(excludes, slashRel, name) {
			return nil
		}
		if opts.SkipTests && IsTestFile(slashRel) {
			return nil
		}

		langName := languageFor(filepath.Ext(name), opts.Extensions)
		if langName == "" {
			return nil
		}

		if len(langSet) > 0 {
			if _, ok := langSet[langName]; !ok {
				return nil
			}
		}

		results = append(results, FileEntry{Path: rel, Language: langName})
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("discover %s: %w", root, err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, warnings, nil
}

func languageFor(ext string, overrides map[string]string) string {
	if name, ok := overrides[ext]; ok {
		if _, known := lang.Languages[name]; known {
			return name
		}
		return ""
	}
	return lang.ForExtension(ext)
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	var globs []glob.Glob
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("discover: exclude pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchAny(globs []glob.Glob, rel, name string) bool {
	for _, g := range globs {
		if g.Match(rel) || g.Match(name) {
			return true
		}
	}
	return false
}

var testDirs = map[string]struct{}{
	"test":      {},
	"tests":     {},
	"__tests__": {},
	"testing":   {},
}

// IsTestFile reports whether a slash-separated relative path looks like a
// test source: it sits under a test directory or its name follows a test
// naming convention.
func IsTestFile(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := testDirs[dir]; ok {
			return true
		}
	}
	name := parts[len(parts)-1]
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	switch {
	case strings.HasPrefix(stem, "test_"), strings.HasSuffix(stem, "_test"):
		return true
	case strings.HasSuffix(stem, "Test"), strings.HasSuffix(stem, "Tests"), strings.HasSuffix(stem, "Spec"):
		return true
	}
	return false
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
