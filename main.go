// classmap extracts object-oriented class relationships from Python, Java
// and Groovy sources and prints them as a ranked graph.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/classmap/internal/analyze"
	"github.com/phobologic/classmap/internal/config"
	"github.com/phobologic/classmap/internal/graph"
	"github.com/phobologic/classmap/internal/logging"
	"github.com/phobologic/classmap/internal/model"
	"github.com/phobologic/classmap/internal/ranking"
	"github.com/phobologic/classmap/internal/toon"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var classFilter, fileFilter string

	cmd := &cobra.Command{
		Use:   "classmap [path]",
		Short: "Map class relationships in Python, Java and Groovy sources",
		Long: `classmap scans a source tree, extracts every top-level class and interface,
and classifies the relationships between them: inheritance, interface
implementation, composition, strong composition, aggregation, association
and dependency. The result is printed as TOON (default) or JSON.

Examples:
  classmap                          # current directory
  classmap ./src -n 30              # top 30 classes by PageRank
  classmap --class Order            # Order and its direct neighbors
  classmap --format json > map.json`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepare(cmd, args, stderr)
			if err != nil {
				return err
			}
			result, err := env.analyzer.Run(cmd.Context(), env.root)
			if err != nil {
				return err
			}
			cm := buildClassMap(result, env.cfg.MaxNodes, classFilter, fileFilter)
			return writeClassMap(stdout, cm, env.cfg.Format)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("classmap {{.Version}}\n")

	config.RegisterFlags(cmd.PersistentFlags())
	cmd.Flags().StringVar(&classFilter, "class", "", "show only classes whose name contains this (case-insensitive) and their neighbors")
	cmd.Flags().StringVar(&fileFilter, "file", "", "show only classes declared in paths containing this and their neighbors")

	cmd.AddCommand(
		newSnapshotCmd(stdout, stderr),
		newCompareCmd(stdout, stderr),
		newWatchCmd(stdout, stderr),
		newInitCmd(stdout, stderr),
	)
	return cmd
}

// environment is the resolved setup shared by every command.
type environment struct {
	root     string
	cfg      *config.Config
	log      *slog.Logger
	analyzer *analyze.Analyzer
}

func prepare(cmd *cobra.Command, args []string, stderr io.Writer) (*environment, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(root, configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	log := logging.New(stderr, cfg.Level())
	analyzer, err := analyze.New(cfg.AnalyzeOptions(log))
	if err != nil {
		return nil, err
	}
	return &environment{root: root, cfg: cfg, log: log, analyzer: analyzer}, nil
}

// buildClassMap assembles and ranks the graph, then applies the class and
// file filters and the node limit, in that order.
func buildClassMap(result *model.Analysis, maxNodes int, classFilter, fileFilter string) *model.ClassMap {
	g := graph.Assemble(result.Classes, result.Relationships)
	graph.Rank(g)
	cycles := graph.Cycles(g)

	if classFilter != "" {
		g = ranking.FilterByClass(g, classFilter)
	}
	if fileFilter != "" {
		g = ranking.FilterByFile(g, fileFilter)
	}
	g = ranking.SelectNodes(g, maxNodes)

	cm := &model.ClassMap{
		Root:          filepath.Base(result.Root),
		Classes:       result.Classes,
		Relationships: result.Relationships,
		Graph:         *g,
		Cycles:        cycles,
		Duplicates:    graph.Duplicates(result.Classes),
		Errors:        result.Errors,
		Warnings:      result.Warnings,
	}
	if cm.Graph.Nodes == nil {
		cm.Graph.Nodes = []model.Node{}
	}
	if cm.Graph.Edges == nil {
		cm.Graph.Edges = []model.Edge{}
	}
	if cm.Cycles == nil {
		cm.Cycles = [][]string{}
	}
	if cm.Duplicates == nil {
		cm.Duplicates = []model.Duplicate{}
	}
	return cm
}

func writeClassMap(w io.Writer, cm *model.ClassMap, format string) error {
	if format == config.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cm)
	}
	_, err := fmt.Fprintln(w, toon.Encode(cm))
	return err
}
