// Package lang provides a language registry mapping file extensions to
// tree-sitter grammars and the adapters that turn a parsed file into
// language-neutral declared types.
package lang

import (
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/classmap/internal/model"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds the grammar and extraction hooks for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// Markers are base names used purely as an abstract-interface convention
	// (ABC, Protocol). A class whose only bases are markers is an interface.
	Markers []string

	// PluralAggregation treats a singular field whose name ends in "s" as an
	// aggregation. Approximation carried by the regex-era Java/Groovy analysis.
	PluralAggregation bool

	// ExtractTypes converts a parsed tree into the file's top-level types.
	// Set for grammar-backed languages.
	ExtractTypes func(root *sitter.Node, source []byte) []model.DeclaredType

	// ScanTypes approximates the file's top-level types from raw text.
	// Set for languages without a grammar; best-effort.
	ScanTypes func(source []byte) []model.DeclaredType
}

// GetLanguage returns the tree-sitter Language pointer, or nil when the
// language is scanned with regular expressions.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// HasGrammar reports whether files of this language are parsed into a tree.
func (l *Language) HasGrammar() bool {
	return l.lang != nil
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
// Returns nil for languages without a grammar.
func (l *Language) NewParser() *sitter.Parser {
	if l.lang == nil {
		return nil
	}
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// ApplyMarkers removes abstract-interface markers from the bases of each
// type and tags types that inherited only from markers as interfaces.
func ApplyMarkers(types []model.DeclaredType, markers []string) {
	if len(markers) == 0 {
		return
	}
	set := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		set[m] = struct{}{}
	}
	for i := range types {
		t := &types[i]
		var kept []string
		sawMarker := false
		for _, b := range t.Bases {
			if _, ok := set[b]; ok {
				sawMarker = true
				continue
			}
			kept = append(kept, b)
		}
		t.Bases = kept
		if sawMarker && len(kept) == 0 {
			t.Kind = model.KindInterface
		}
	}
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// fieldText returns the text of a named field child, or "".
func fieldText(node *sitter.Node, field string, source []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return NodeText(child, source)
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// lastSegment returns the part of a dotted name after the final dot.
func lastSegment(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
