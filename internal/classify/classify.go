// Package classify derives typed relationships from declared types.
//
// Classification is purely syntactic. A name counts as a type when it is
// declared somewhere in the analyzed sources or looks like a class name
// (capitalized, not a builtin); names that are never declared still produce
// relationships and later become external placeholders in the graph.
package classify

import (
	"strings"

	"github.com/phobologic/classmap/internal/lang"
	"github.com/phobologic/classmap/internal/model"
)

// Index records what the whole run knows about declared type names.
type Index struct {
	declared   map[string]struct{}
	interfaces map[string]struct{}
}

// NewIndex builds an index from every class record of a run.
func NewIndex(classes []model.ClassRecord) *Index {
	ix := &Index{
		declared:   make(map[string]struct{}, len(classes)),
		interfaces: make(map[string]struct{}),
	}
	for _, c := range classes {
		ix.declared[c.Name] = struct{}{}
		if c.Kind == model.KindInterface {
			ix.interfaces[c.Name] = struct{}{}
		}
	}
	return ix
}

// Declared reports whether name is declared in the analyzed sources.
func (ix *Index) Declared(name string) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.declared[name]
	return ok
}

// IsInterface reports whether name is declared as an interface. A name
// declared both as a class and an interface counts as an interface.
func (ix *Index) IsInterface(name string) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.interfaces[name]
	return ok
}

// IsType reports whether name denotes a class for classification purposes.
// A declared name always does, even when it shadows a builtin such as Stack.
func (ix *Index) IsType(name string) bool {
	if name == "" {
		return false
	}
	if ix.Declared(name) {
		return true
	}
	return !lang.IsBuiltin(name) && lang.LooksLikeType(name)
}

// Options tunes classification.
type Options struct {
	// PrivatePrefixes maps a language to the member-name prefixes that mark
	// a strongly owned (private) field.
	PrivatePrefixes map[string][]string
	// ParamsAsDependency reports typed parameters as dependency instead of
	// association.
	ParamsAsDependency bool
}

// DefaultOptions returns the options used when nothing is configured:
// double-underscore names are private in Python, no other language has a
// private naming convention.
func DefaultOptions() Options {
	return Options{
		PrivatePrefixes: map[string][]string{
			"python": {"__"},
		},
	}
}

// IsPrivate reports whether a member name is private under the configured
// prefixes. Dunder names such as __dict__ are never private.
func (o Options) IsPrivate(language, member string) bool {
	if len(member) > 4 && strings.HasPrefix(member, "__") && strings.HasSuffix(member, "__") {
		return false
	}
	for _, p := range o.PrivatePrefixes[language] {
		if p != "" && strings.HasPrefix(member, p) && len(member) > len(p) {
			return true
		}
	}
	return false
}

type relKey struct {
	source, target string
	category       model.Category
	member         string
	context        string
}

type classifier struct {
	ix       *Index
	opts     Options
	language string
	file     string
	plural   bool

	rels []model.Relationship
	seen map[relKey]struct{}
}

// Types classifies the relationships of every type declared in one file.
// The result is ordered by type, then by rule: bases, interfaces, fields,
// constructor assignments, then member parameters and locals.
func Types(types []model.DeclaredType, file, language string, ix *Index, opts Options) []model.Relationship {
	c := &classifier{
		ix:       ix,
		opts:     opts,
		language: language,
		file:     file,
		seen:     make(map[relKey]struct{}),
	}
	if l := lang.Languages[language]; l != nil {
		c.plural = l.PluralAggregation
	}
	for i := range types {
		c.declared(&types[i])
	}
	return c.rels
}

func (c *classifier) declared(t *model.DeclaredType) {
	if t.Name == "" {
		return
	}

	for _, base := range t.Bases {
		if base == "" || base == t.Name {
			continue
		}
		if t.Kind != model.KindInterface && c.ix.IsInterface(base) {
			c.add(t.Name, base, model.InterfaceImplementation, "", "")
			continue
		}
		c.add(t.Name, base, model.Inheritance, "", "")
	}
	for _, iface := range t.Interfaces {
		if iface == "" || iface == t.Name {
			continue
		}
		c.add(t.Name, iface, model.InterfaceImplementation, "", "")
	}

	for _, f := range t.Fields {
		c.structural(t.Name, f.Name, f.Type, f.Constructed, "")
	}
	for _, m := range t.Members {
		if !m.Constructor {
			continue
		}
		for _, a := range m.Assignments {
			c.structural(t.Name, a.Field, a.Type, a.Constructed, m.Name)
		}
	}

	for _, m := range t.Members {
		for _, p := range m.Params {
			c.param(t.Name, m.Name, p)
		}
		for _, l := range m.Locals {
			if l.Constructed == t.Name || !c.ix.IsType(l.Constructed) {
				continue
			}
			c.add(t.Name, l.Constructed, model.Association, l.Name, m.Name)
		}
	}
}

// structural classifies one owned field as composition, strong composition
// or aggregation.
func (c *classifier) structural(owner, member string, ref model.TypeRef, constructed, context string) {
	if member == "" {
		return
	}
	target, collection := "", false
	if c.ix.IsType(ref.Name) {
		target, collection = ref.Name, ref.Collection
	}
	explicit := false
	if constructed != "" && c.ix.IsType(constructed) {
		if target == "" {
			target = constructed
		}
		explicit = constructed == target
	}
	if target == "" {
		return
	}
	if target == owner && !explicit {
		return
	}

	switch {
	case collection:
		c.add(owner, target, model.Aggregation, member, context)
	case c.plural && strings.HasSuffix(member, "s"):
		c.add(owner, target, model.Aggregation, member, context)
	default:
		c.add(owner, target, model.Composition, member, context)
		if c.opts.IsPrivate(c.language, member) {
			c.add(owner, target, model.StrongComposition, member, context)
		}
	}
}

func (c *classifier) param(owner, member string, p model.Param) {
	target := p.Type.Name
	if target == "" || target == owner || p.Name == "" {
		return
	}
	if c.opts.ParamsAsDependency {
		if lang.IsBuiltin(target) && !c.ix.Declared(target) {
			return
		}
		c.add(owner, target, model.Dependency, p.Name, member)
		return
	}
	if !c.ix.IsType(target) {
		return
	}
	c.add(owner, target, model.Association, p.Name, member)
}

func (c *classifier) add(source, target string, category model.Category, member, context string) {
	key := relKey{source: source, target: target, category: category, member: member, context: context}
	switch category {
	case model.Composition, model.StrongComposition, model.Aggregation:
		key.context = ""
	}
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.rels = append(c.rels, model.Relationship{
		Source:   source,
		Target:   target,
		Category: category,
		Member:   member,
		Context:  context,
		File:     c.file,
	})
}
