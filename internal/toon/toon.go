// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/classmap/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a class map into TOON format. Annotation, injection,
// cycle, duplicate and warning sections appear only when non-empty.
func Encode(cm *model.ClassMap) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(cm.Root)))

	var classRows [][]string
	for i := range cm.Classes {
		c := &cm.Classes[i]
		classRows = append(classRows, []string{
			c.Name,
			c.File,
			c.Language,
			string(c.Kind),
			strings.Join(c.Methods, " "),
			strings.Join(c.Attributes, " "),
			strings.Join(c.Bases, " "),
			strings.Join(c.Interfaces, " "),
		})
	}
	parts = append(parts, formatTabular("classes",
		[]string{"name", "file", "language", "kind", "methods", "attributes", "bases", "interfaces"}, classRows))

	var relRows [][]string
	for i := range cm.Relationships {
		r := &cm.Relationships[i]
		relRows = append(relRows, []string{
			r.Source,
			r.Target,
			string(r.Category),
			r.Member,
			r.Context,
			r.File,
		})
	}
	parts = append(parts, formatTabular("relationships",
		[]string{"source", "target", "category", "member", "context", "file"}, relRows))

	var nodeRows [][]string
	for i := range cm.Graph.Nodes {
		n := &cm.Graph.Nodes[i]
		nodeRows = append(nodeRows, []string{
			n.ID,
			n.Label,
			n.File,
			string(n.Kind),
			n.Language,
			fmt.Sprintf("%d", n.Methods),
			fmt.Sprintf("%d", n.Attributes),
			fmt.Sprintf("%.4f", n.Rank),
		})
	}
	parts = append(parts, formatTabular("nodes",
		[]string{"id", "label", "file", "kind", "language", "methods", "attributes", "rank"}, nodeRows))

	var edgeRows [][]string
	for i := range cm.Graph.Edges {
		e := &cm.Graph.Edges[i]
		edgeRows = append(edgeRows, []string{e.Source, e.Target, string(e.Category), e.Member})
	}
	parts = append(parts, formatTabular("edges", []string{"source", "target", "category", "member"}, edgeRows))

	var annotationRows, injectionRows [][]string
	for i := range cm.Classes {
		c := &cm.Classes[i]
		for _, a := range c.Annotations {
			annotationRows = append(annotationRows, []string{c.Name, c.File, a})
		}
		for _, in := range c.Injections {
			injectionRows = append(injectionRows, []string{c.Name, in.Kind, in.Member, in.Type})
		}
	}
	if len(annotationRows) > 0 {
		parts = append(parts, formatTabular("annotations", []string{"class", "file", "annotation"}, annotationRows))
	}
	if len(injectionRows) > 0 {
		parts = append(parts, formatTabular("injections", []string{"class", "kind", "member", "type"}, injectionRows))
	}

	if len(cm.Cycles) > 0 {
		var cycleRows [][]string
		for _, cycle := range cm.Cycles {
			cycleRows = append(cycleRows, []string{strings.Join(cycle, " ")})
		}
		parts = append(parts, formatTabular("cycles", []string{"nodes"}, cycleRows))
	}

	if len(cm.Duplicates) > 0 {
		var dupRows [][]string
		for i := range cm.Duplicates {
			d := &cm.Duplicates[i]
			dupRows = append(dupRows, []string{d.Name, strings.Join(d.Files, " ")})
		}
		parts = append(parts, formatTabular("duplicates", []string{"name", "files"}, dupRows))
	}

	parts = append(parts, formatList("errors", cm.Errors))
	if len(cm.Warnings) > 0 {
		parts = append(parts, formatList("warnings", cm.Warnings))
	}

	return strings.Join(parts, "\n")
}

func formatList(name string, values []string) string {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{v}
	}
	return formatTabular(name, []string{"message"}, rows)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
