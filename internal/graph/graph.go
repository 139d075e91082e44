// Package graph assembles classes and relationships into a node/edge graph
// and computes PageRank, cycles and duplicate declarations over it.
package graph

import (
	"math"
	"path"
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/phobologic/classmap/internal/model"
)

const (
	damping   = 0.85
	tolerance = 1e-10
	// PageRank starts from a random vector; rounding keeps ranks, and so
	// rank order, stable across runs.
	rankScale = 1e8
)

// NodeID returns the graph identity of a class: its name plus the basename
// of its defining file.
func NodeID(name, file string) string {
	return name + "::" + path.Base(file)
}

// Assemble builds the graph for one analysis. Nodes keep discovery order;
// every relationship endpoint with no declaring class gets one external
// placeholder node. An edge connects to the first node whose label matches
// its endpoint name, so same-named classes in different files all receive
// their edges on the first one scanned. Edges are unique per
// (source, target, category).
func Assemble(classes []model.ClassRecord, rels []model.Relationship) *model.Graph {
	g := &model.Graph{}
	ids := make(map[string]struct{}, len(classes))
	byLabel := make(map[string]string, len(classes))

	for i := range classes {
		c := &classes[i]
		if c.Name == "" {
			continue
		}
		id := NodeID(c.Name, c.File)
		if _, dup := ids[id]; dup {
			continue
		}
		ids[id] = struct{}{}
		if _, ok := byLabel[c.Name]; !ok {
			byLabel[c.Name] = id
		}
		kind := c.Kind
		if kind == "" {
			kind = model.KindClass
		}
		g.Nodes = append(g.Nodes, model.Node{
			ID:         id,
			Label:      c.Name,
			File:       c.File,
			Kind:       kind,
			Language:   c.Language,
			Methods:    len(c.Methods),
			Attributes: len(c.Attributes),
		})
	}

	placeholder := func(name string) {
		if name == "" {
			return
		}
		if _, ok := byLabel[name]; ok {
			return
		}
		id := NodeID(name, model.ExternalFile)
		byLabel[name] = id
		g.Nodes = append(g.Nodes, model.Node{
			ID:       id,
			Label:    name,
			File:     model.ExternalFile,
			Kind:     model.KindClass,
			Language: model.UnknownLanguage,
			External: true,
		})
	}

	type edgeKey struct {
		src, tgt string
		cat      model.Category
	}
	seen := make(map[edgeKey]struct{}, len(rels))

	for i := range rels {
		r := &rels[i]
		placeholder(r.Source)
		placeholder(r.Target)
		src, srcOK := byLabel[r.Source]
		tgt, tgtOK := byLabel[r.Target]
		if !srcOK || !tgtOK {
			continue
		}
		key := edgeKey{src, tgt, r.Category}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		g.Edges = append(g.Edges, model.Edge{
			Source:   src,
			Target:   tgt,
			Category: r.Category,
			Member:   r.Member,
			Context:  r.Context,
		})
	}

	return g
}

// directed converts g into a gonum graph. Parallel edges between the same
// pair collapse to one and self-loops are dropped.
func directed(g *model.Graph) (*simple.DirectedGraph, map[string]int64) {
	dg := simple.NewDirectedGraph()
	ids := make(map[string]int64, len(g.Nodes))
	for i := range g.Nodes {
		id := int64(i)
		ids[g.Nodes[i].ID] = id
		dg.AddNode(simple.Node(id))
	}
	for _, e := range g.Edges {
		src, ok1 := ids[e.Source]
		tgt, ok2 := ids[e.Target]
		if !ok1 || !ok2 || src == tgt {
			continue
		}
		if !dg.HasEdgeFromTo(src, tgt) {
			dg.SetEdge(dg.NewEdge(dg.Node(src), dg.Node(tgt)))
		}
	}
	return dg, ids
}

// Rank sets every node's PageRank. An edge from A to B means A depends on
// B, so heavily used classes rank highest. Without edges every node gets
// the same rank.
func Rank(g *model.Graph) {
	n := len(g.Nodes)
	if n == 0 {
		return
	}
	dg, ids := directed(g)
	if dg.Edges().Len() == 0 {
		uniform := 1.0 / float64(n)
		for i := range g.Nodes {
			g.Nodes[i].Rank = uniform
		}
		return
	}

	ranks := network.PageRank(dg, damping, tolerance)
	for i := range g.Nodes {
		g.Nodes[i].Rank = math.Round(ranks[ids[g.Nodes[i].ID]]*rankScale) / rankScale
	}
}

// Cycles returns the strongly connected components with more than one
// node, as sorted node IDs. Components are ordered by their first ID.
func Cycles(g *model.Graph) [][]string {
	dg, _ := directed(g)
	var cycles [][]string
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			continue
		}
		cycle := make([]string, len(scc))
		for i, node := range scc {
			cycle[i] = nodeID(g, node)
		}
		sort.Strings(cycle)
		cycles = append(cycles, cycle)
	}
	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i][0] < cycles[j][0]
	})
	return cycles
}

func nodeID(g *model.Graph, node gonum.Node) string {
	return g.Nodes[node.ID()].ID
}

// Duplicates lists class names declared in more than one file, sorted by
// name. Files keep discovery order.
func Duplicates(classes []model.ClassRecord) []model.Duplicate {
	files := make(map[string][]string)
	for i := range classes {
		c := &classes[i]
		if !contains(files[c.Name], c.File) {
			files[c.Name] = append(files[c.Name], c.File)
		}
	}

	var dups []model.Duplicate
	for name, fs := range files {
		if len(fs) > 1 {
			dups = append(dups, model.Duplicate{Name: name, Files: fs})
		}
	}
	sort.Slice(dups, func(i, j int) bool {
		return dups[i].Name < dups[j].Name
	})
	return dups
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
