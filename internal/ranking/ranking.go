// Package ranking narrows an assembled graph to the nodes worth showing.
package ranking

import (
	"sort"
	"strings"

	"github.com/phobologic/classmap/internal/model"
)

// SelectNodes returns a new Graph with only the maxNodes highest-ranked
// nodes and the edges between them. Ties keep discovery order, and the
// selected nodes keep their original order.
// If maxNodes is <= 0 or >= len(g.Nodes), g is returned unchanged.
func SelectNodes(g *model.Graph, maxNodes int) *model.Graph {
	if maxNodes <= 0 || maxNodes >= len(g.Nodes) {
		return g
	}

	order := make([]int, len(g.Nodes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return g.Nodes[order[i]].Rank > g.Nodes[order[j]].Rank
	})

	keep := make(map[int]struct{}, maxNodes)
	for _, idx := range order[:maxNodes] {
		keep[idx] = struct{}{}
	}

	selected := make(map[string]struct{}, maxNodes)
	var nodes []model.Node
	for i := range g.Nodes {
		if _, ok := keep[i]; ok {
			nodes = append(nodes, g.Nodes[i])
			selected[g.Nodes[i].ID] = struct{}{}
		}
	}

	var edges []model.Edge
	for i := range g.Edges {
		e := &g.Edges[i]
		_, srcOK := selected[e.Source]
		_, tgtOK := selected[e.Target]
		if srcOK && tgtOK {
			edges = append(edges, *e)
		}
	}

	return &model.Graph{Nodes: nodes, Edges: edges}
}

// FilterByClass returns a new Graph containing the nodes whose label
// contains substr (case-insensitive), their direct neighbors, and every
// edge touching a matched node.
func FilterByClass(g *model.Graph, substr string) *model.Graph {
	lower := strings.ToLower(substr)
	matched := make(map[string]struct{})
	for i := range g.Nodes {
		if strings.Contains(strings.ToLower(g.Nodes[i].Label), lower) {
			matched[g.Nodes[i].ID] = struct{}{}
		}
	}
	return touching(g, matched)
}

// FilterByFile returns a new Graph containing the nodes declared in files
// whose path contains substr (case-insensitive), their direct neighbors,
// and every edge touching a matched node.
func FilterByFile(g *model.Graph, substr string) *model.Graph {
	lower := strings.ToLower(substr)
	matched := make(map[string]struct{})
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !n.External && strings.Contains(strings.ToLower(n.File), lower) {
			matched[n.ID] = struct{}{}
		}
	}
	return touching(g, matched)
}

func touching(g *model.Graph, matched map[string]struct{}) *model.Graph {
	related := make(map[string]struct{}, len(matched))
	var edges []model.Edge
	for i := range g.Edges {
		e := &g.Edges[i]
		_, srcOK := matched[e.Source]
		_, tgtOK := matched[e.Target]
		if srcOK || tgtOK {
			edges = append(edges, *e)
			related[e.Source] = struct{}{}
			related[e.Target] = struct{}{}
		}
	}

	var nodes []model.Node
	for i := range g.Nodes {
		id := g.Nodes[i].ID
		_, isMatched := matched[id]
		_, isRelated := related[id]
		if isMatched || isRelated {
			nodes = append(nodes, g.Nodes[i])
		}
	}

	return &model.Graph{Nodes: nodes, Edges: edges}
}
