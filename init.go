package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/classmap/internal/config"
)

const (
	sentinelStart = "# classmap:start"
	sentinelEnd   = "# classmap:end"
)

// newInitCmd implements `classmap init`, which writes (or updates) a
// commented settings section in a .classmap.toml file.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter " + config.FileName,
		Long: `Write a commented classmap settings section to dir/` + config.FileName + `.
The section is wrapped in sentinel comments so it can be updated in place on
subsequent runs without touching surrounding settings. Creates the file if it
does not exist. dir defaults to the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section := generateSection()

			// --dry-run with no dir: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(stdout, section)
				return nil
			}

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			path := filepath.Join(dir, config.FileName)

			existing, _ := os.ReadFile(path)
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(stdout, updated)
				return nil
			}

			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			_, _ = fmt.Fprintf(stderr, "wrote classmap section to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// generateSection returns the sentinel-wrapped settings block. Every setting
// is commented out at its default, so the block alone changes nothing.
func generateSection() string {
	body := `# classmap settings. Uncomment to change a default.
# Precedence: flags > CLASSMAP_* environment > this file > defaults.

# languages = ["python", "java", "groovy"]   # empty means all
# exclude = ["generated/**", "*_pb2.py"]
# skip_tests = false
# max_files = 0                 # 0 means no limit
# max_file_size = 1000000       # bytes
# workers = 0                   # 0 means one per CPU
# format = "toon"               # or "json"
# max_nodes = 0                 # keep the top-ranked nodes only
# dependency_mode = false       # typed parameters as dependency
# snapshot = ".classmap-snapshot.json"   # .json, .yaml or .db
# log_level = "warn"
# debounce = "500ms"            # watch mode

# [extensions]
# gvy = "groovy"

# [private_prefixes]
# python = ["__"]
# java = ["_"]

# [abstract_markers]
# python = ["Interface"]`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
