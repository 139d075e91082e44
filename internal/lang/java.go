package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/phobologic/classmap/internal/model"
)

func init() {
	Languages["java"] = &Language{
		Name:              "java",
		Extensions:        []string{".java"},
		lang:              java.GetLanguage(),
		PluralAggregation: true,
		ExtractTypes:      javaExtractTypes,
	}
}

var javaScopes = map[string]struct{}{
	"class_body":            {},
	"class_declaration":     {},
	"interface_declaration": {},
	"lambda_expression":     {},
}

func javaExtractTypes(root *sitter.Node, source []byte) []model.DeclaredType {
	var types []model.DeclaredType
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "class_declaration", "interface_declaration":
			if dt, ok := javaType(node, source); ok {
				types = append(types, dt)
			}
		}
	}
	return types
}

func javaType(node *sitter.Node, source []byte) (model.DeclaredType, bool) {
	name := fieldText(node, "name", source)
	if name == "" {
		return model.DeclaredType{}, false
	}
	dt := model.DeclaredType{ClassRecord: model.ClassRecord{
		Name:     name,
		Language: "java",
		Kind:     model.KindClass,
		Doc:      javaDoc(node, source),
	}}
	dt.Annotations = javaAnnotations(node, source)

	if node.Type() == "interface_declaration" {
		dt.Kind = model.KindInterface
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "extends_interfaces" {
				dt.Bases = javaTypeList(child, source)
			}
		}
	} else {
		if super := node.ChildByFieldName("superclass"); super != nil && super.NamedChildCount() > 0 {
			dt.Bases = appendUnique(dt.Bases, BaseName(NodeText(super.NamedChild(0), source)))
		}
		if ifaces := node.ChildByFieldName("interfaces"); ifaces != nil {
			dt.Interfaces = javaTypeList(ifaces, source)
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return dt, true
	}

	fieldNames := make(map[string]struct{})
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() != "field_declaration" {
			continue
		}
		typ := ParseTypeRef(fieldText(member, "type", source))
		injected := javaInjected(member, source)
		for j := 0; j < int(member.NamedChildCount()); j++ {
			decl := member.NamedChild(j)
			if decl.Type() != "variable_declarator" {
				continue
			}
			f := model.FieldDecl{
				Name:        fieldText(decl, "name", source),
				Type:        typ,
				Constructed: javaConstructed(decl.ChildByFieldName("value"), source),
			}
			if f.Name == "" {
				continue
			}
			dt.Fields = append(dt.Fields, f)
			dt.Attributes = appendUnique(dt.Attributes, f.Name)
			fieldNames[f.Name] = struct{}{}
			if injected {
				dt.Injections = append(dt.Injections, model.Injection{Kind: "field", Member: f.Name, Type: typ.Raw})
			}
		}
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_declaration", "constructor_declaration":
			m := javaMethod(member, source, fieldNames)
			if m.Name == "" {
				continue
			}
			dt.Methods = appendUnique(dt.Methods, m.Name)
			dt.Members = append(dt.Members, m)
			if javaInjected(member, source) {
				dt.Injections = append(dt.Injections, javaCallableInjection(m))
			}
		}
	}
	return dt, true
}

// javaTypeList returns the base names of a super_interfaces or
// extends_interfaces node.
func javaTypeList(node *sitter.Node, source []byte) []string {
	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "type_list" {
			for j := 0; j < int(child.NamedChildCount()); j++ {
				names = appendUnique(names, BaseName(NodeText(child.NamedChild(j), source)))
			}
			continue
		}
		names = appendUnique(names, BaseName(NodeText(child, source)))
	}
	return names
}

func javaMethod(node *sitter.Node, source []byte, fields map[string]struct{}) model.Method {
	m := model.Method{
		Name:        fieldText(node, "name", source),
		Constructor: node.Type() == "constructor_declaration",
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() != "formal_parameter" {
				continue
			}
			m.Params = append(m.Params, model.Param{
				Name: fieldText(p, "name", source),
				Type: ParseTypeRef(fieldText(p, "type", source)),
			})
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return m
	}
	walkScope(body, javaScopes, func(n *sitter.Node) {
		switch n.Type() {
		case "assignment_expression":
			left := n.ChildByFieldName("left")
			ctor := javaConstructed(n.ChildByFieldName("right"), source)
			if left == nil {
				return
			}
			var field string
			switch left.Type() {
			case "field_access":
				if fieldText(left, "object", source) != "this" {
					return
				}
				field = fieldText(left, "field", source)
			case "identifier":
				name := NodeText(left, source)
				if _, ok := fields[name]; !ok {
					return
				}
				field = name
			default:
				return
			}
			m.Assignments = append(m.Assignments, model.Assignment{Field: field, Constructed: ctor})
		case "local_variable_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				decl := n.NamedChild(i)
				if decl.Type() != "variable_declarator" {
					continue
				}
				if ctor := javaConstructed(decl.ChildByFieldName("value"), source); ctor != "" {
					m.Locals = append(m.Locals, model.LocalVar{
						Name:        fieldText(decl, "name", source),
						Constructed: ctor,
					})
				}
			}
		}
	})
	return m
}

// javaInjectionAnnotations mark members wired by a dependency-injection
// container.
var javaInjectionAnnotations = map[string]struct{}{
	"Autowired": {},
	"Inject":    {},
}

// javaAnnotations returns the annotation names in the modifiers of a
// declaration. Qualified names keep their last segment.
func javaAnnotations(node *sitter.Node, source []byte) []string {
	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		mods := node.NamedChild(i)
		if mods.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(mods.NamedChildCount()); j++ {
			a := mods.NamedChild(j)
			switch a.Type() {
			case "marker_annotation", "annotation":
				if name := lastSegment(fieldText(a, "name", source)); name != "" {
					names = appendUnique(names, name)
				}
			}
		}
	}
	return names
}

func javaInjected(node *sitter.Node, source []byte) bool {
	for _, a := range javaAnnotations(node, source) {
		if _, ok := javaInjectionAnnotations[a]; ok {
			return true
		}
	}
	return false
}

func javaCallableInjection(m model.Method) model.Injection {
	kind := "method"
	if m.Constructor {
		kind = "constructor"
	}
	types := make([]string, 0, len(m.Params))
	for _, p := range m.Params {
		types = append(types, p.Type.Raw)
	}
	return model.Injection{Kind: kind, Member: m.Name, Type: strings.Join(types, ", ")}
}

// javaConstructed returns the type name of a "new T(...)" expression, or "".
func javaConstructed(node *sitter.Node, source []byte) string {
	if node == nil || node.Type() != "object_creation_expression" {
		return ""
	}
	return BaseName(fieldText(node, "type", source))
}

// javaDoc returns the text of a /** */ comment directly preceding node.
func javaDoc(node *sitter.Node, source []byte) string {
	prev := node.PrevNamedSibling()
	if prev == nil || !strings.Contains(prev.Type(), "comment") {
		return ""
	}
	text := NodeText(prev, source)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	text = strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
