// Package parse turns source files into declared types, using tree-sitter
// where a grammar is available and the language's scanner otherwise.
package parse

import (
	"bytes"
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/classmap/internal/lang"
	"github.com/phobologic/classmap/internal/model"
)

const snippetLen = 40

// ParseError reports a file whose syntax tree contains an error or a
// missing node. Line and Column are 1-based.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Msg)
}

// Tree parses source and returns its syntax tree. The caller must Close the
// tree. A tree containing ERROR or MISSING nodes is closed and reported as a
// *ParseError. The parser must be created for l and must not be shared
// between goroutines.
func Tree(ctx context.Context, l *lang.Language, parser *sitter.Parser, source []byte, path string) (*sitter.Tree, error) {
	if parser == nil {
		return nil, fmt.Errorf("parse %s: no %s grammar", path, l.Name)
	}
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	root := tree.RootNode()
	if root.HasError() {
		perr := syntaxError(root, source, path)
		tree.Close()
		return nil, perr
	}
	return tree, nil
}

// File extracts the top-level types declared in one source file. path is
// recorded as the File of every returned type and should be relative to the
// analysis root. Empty sources yield no types.
func File(ctx context.Context, l *lang.Language, parser *sitter.Parser, source []byte, path string) ([]model.DeclaredType, error) {
	if len(bytes.TrimSpace(source)) == 0 {
		return nil, nil
	}

	var types []model.DeclaredType
	if l.HasGrammar() {
		tree, err := Tree(ctx, l, parser, source, path)
		if err != nil {
			return nil, err
		}
		types = l.ExtractTypes(tree.RootNode(), source)
		tree.Close()
	} else if l.ScanTypes != nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		types = l.ScanTypes(source)
	} else {
		return nil, fmt.Errorf("parse %s: %s has no extractor", path, l.Name)
	}

	for i := range types {
		types[i].File = path
		types[i].Language = l.Name
	}
	lang.ApplyMarkers(types, l.Markers)
	return types, nil
}

func syntaxError(root *sitter.Node, source []byte, path string) *ParseError {
	node := firstErrorNode(root)
	if node == nil {
		node = root
	}
	pos := node.StartPoint()
	perr := &ParseError{
		Path:   path,
		Line:   int(pos.Row) + 1,
		Column: int(pos.Column) + 1,
		Msg:    "syntax error",
	}
	switch {
	case node.IsMissing():
		perr.Msg = "missing " + node.Type()
	case node.EndByte() > node.StartByte():
		snippet := lang.CollapseWhitespace(lang.NodeText(node, source))
		if len(snippet) > snippetLen {
			snippet = snippet[:snippetLen] + "..."
		}
		if snippet != "" {
			perr.Msg = fmt.Sprintf("syntax error near %q", snippet)
		}
	}
	return perr
}

// firstErrorNode returns the first ERROR or MISSING node in document order.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !child.HasError() && !child.IsMissing() {
			continue
		}
		if found := firstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}
