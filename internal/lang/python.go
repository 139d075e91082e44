package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/classmap/internal/model"
)

func init() {
	Languages["python"] = &Language{
		Name:         "python",
		Extensions:   []string{".py"},
		lang:         python.GetLanguage(),
		Markers:      []string{"ABC", "ABCMeta", "Protocol"},
		ExtractTypes: pythonExtractTypes,
	}
}

// pythonScopes are not descended into when walking a method body.
var pythonScopes = map[string]struct{}{
	"function_definition":  {},
	"class_definition":     {},
	"decorated_definition": {},
	"lambda":               {},
}

// pythonImplicitBases carry no class relationship.
var pythonImplicitBases = map[string]struct{}{
	"object":  {},
	"Generic": {},
}

// pythonFile carries per-file state while extracting.
type pythonFile struct {
	source  []byte
	aliases map[string]string // local name -> imported name
}

func pythonExtractTypes(root *sitter.Node, source []byte) []model.DeclaredType {
	pf := &pythonFile{source: source, aliases: pythonImportAliases(root, source)}

	var types []model.DeclaredType
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node.Type() == "decorated_definition" {
			node = node.ChildByFieldName("definition")
		}
		if node == nil || node.Type() != "class_definition" {
			continue
		}
		if dt, ok := pf.class(node); ok {
			types = append(types, dt)
		}
	}
	return types
}

// pythonImportAliases maps names bound by "from m import A as B" to A.
func pythonImportAliases(root *sitter.Node, source []byte) map[string]string {
	aliases := make(map[string]string)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "import_from_statement" {
			continue
		}
		for j := 0; j < int(stmt.NamedChildCount()); j++ {
			child := stmt.NamedChild(j)
			if child.Type() != "aliased_import" {
				continue
			}
			name := fieldText(child, "name", source)
			alias := fieldText(child, "alias", source)
			if name != "" && alias != "" {
				aliases[alias] = lastSegment(name)
			}
		}
	}
	return aliases
}

func (pf *pythonFile) resolve(name string) string {
	name = lastSegment(name)
	if orig, ok := pf.aliases[name]; ok {
		return orig
	}
	return name
}

func (pf *pythonFile) typeRef(node *sitter.Node) model.TypeRef {
	if node == nil {
		return model.TypeRef{}
	}
	ref := ParseTypeRef(NodeText(node, pf.source))
	if ref.Name != "" {
		ref.Name = pf.resolve(ref.Name)
	}
	return ref
}

// callee returns the constructed name when node is a call such as Engine()
// or models.Engine(), or "".
func (pf *pythonFile) callee(node *sitter.Node) string {
	if node == nil || node.Type() != "call" {
		return ""
	}
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return pf.resolve(NodeText(fn, pf.source))
	case "attribute":
		return pf.resolve(fieldText(fn, "attribute", pf.source))
	}
	return ""
}

func (pf *pythonFile) class(node *sitter.Node) (model.DeclaredType, bool) {
	name := fieldText(node, "name", pf.source)
	if name == "" {
		return model.DeclaredType{}, false
	}
	dt := model.DeclaredType{ClassRecord: model.ClassRecord{
		Name:     name,
		Language: "python",
		Kind:     model.KindClass,
	}}

	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			switch arg.Type() {
			case "identifier", "attribute":
				dt.Bases = pf.addBase(dt.Bases, NodeText(arg, pf.source))
			case "subscript":
				if value := arg.ChildByFieldName("value"); value != nil {
					dt.Bases = pf.addBase(dt.Bases, NodeText(value, pf.source))
				}
			case "keyword_argument":
				if fieldText(arg, "name", pf.source) == "metaclass" &&
					lastSegment(fieldText(arg, "value", pf.source)) == "ABCMeta" {
					dt.Bases = appendUnique(dt.Bases, "ABCMeta")
				}
			}
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return dt, true
	}
	first := true
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		leading := first
		first = false
		switch stmt.Type() {
		case "expression_statement":
			if stmt.NamedChildCount() == 0 {
				continue
			}
			inner := stmt.NamedChild(0)
			if leading && inner.Type() == "string" {
				dt.Doc = pythonDocstring(NodeText(inner, pf.source))
				continue
			}
			if inner.Type() == "assignment" {
				if f, ok := pf.classField(inner); ok {
					dt.Fields = append(dt.Fields, f)
					dt.Attributes = appendUnique(dt.Attributes, f.Name)
				}
			}
		case "function_definition":
			pf.addMethod(&dt, stmt)
		case "decorated_definition":
			if def := stmt.ChildByFieldName("definition"); def != nil && def.Type() == "function_definition" {
				pf.addMethod(&dt, def)
			}
		}
	}
	return dt, true
}

// addBase appends a superclass unless it is an implicit base.
func (pf *pythonFile) addBase(bases []string, raw string) []string {
	name := pf.resolve(raw)
	if _, ok := pythonImplicitBases[name]; ok {
		return bases
	}
	return appendUnique(bases, name)
}

// classField handles class-level "name: Type = value" and "name = Ctor()".
func (pf *pythonFile) classField(assign *sitter.Node) (model.FieldDecl, bool) {
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return model.FieldDecl{}, false
	}
	return model.FieldDecl{
		Name:        NodeText(left, pf.source),
		Type:        pf.typeRef(assign.ChildByFieldName("type")),
		Constructed: pf.callee(assign.ChildByFieldName("right")),
	}, true
}

func (pf *pythonFile) addMethod(dt *model.DeclaredType, fn *sitter.Node) {
	name := fieldText(fn, "name", pf.source)
	if name == "" {
		return
	}
	m := model.Method{
		Name:        name,
		Constructor: name == "__init__",
		Params:      pf.params(fn.ChildByFieldName("parameters")),
	}

	if body := fn.ChildByFieldName("body"); body != nil {
		walkScope(body, pythonScopes, func(node *sitter.Node) {
			if node.Type() != "assignment" {
				return
			}
			left := node.ChildByFieldName("left")
			right := node.ChildByFieldName("right")
			if left == nil {
				return
			}
			switch left.Type() {
			case "attribute":
				obj := left.ChildByFieldName("object")
				if obj == nil || NodeText(obj, pf.source) != "self" {
					return
				}
				field := fieldText(left, "attribute", pf.source)
				m.Assignments = append(m.Assignments, model.Assignment{
					Field:       field,
					Type:        pf.typeRef(node.ChildByFieldName("type")),
					Constructed: pf.callee(right),
				})
				dt.Attributes = appendUnique(dt.Attributes, field)
			case "identifier":
				if ctor := pf.callee(right); ctor != "" {
					m.Locals = append(m.Locals, model.LocalVar{
						Name:        NodeText(left, pf.source),
						Constructed: ctor,
					})
				}
			}
		})
	}

	dt.Methods = appendUnique(dt.Methods, name)
	dt.Members = append(dt.Members, m)
}

func (pf *pythonFile) params(list *sitter.Node) []model.Param {
	if list == nil {
		return nil
	}
	var params []model.Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		var param model.Param
		switch p.Type() {
		case "identifier":
			param.Name = NodeText(p, pf.source)
		case "typed_parameter":
			for j := 0; j < int(p.NamedChildCount()); j++ {
				c := p.NamedChild(j)
				if c.Type() == "identifier" {
					param.Name = NodeText(c, pf.source)
					break
				}
			}
			param.Type = pf.typeRef(p.ChildByFieldName("type"))
		case "default_parameter":
			param.Name = fieldText(p, "name", pf.source)
		case "typed_default_parameter":
			param.Name = fieldText(p, "name", pf.source)
			param.Type = pf.typeRef(p.ChildByFieldName("type"))
		default:
			continue
		}
		if param.Name == "" || param.Name == "self" || param.Name == "cls" {
			continue
		}
		params = append(params, param)
	}
	return params
}

func pythonDocstring(raw string) string {
	s := strings.TrimLeft(raw, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}
	return strings.TrimSpace(s)
}

// walkScope visits every named descendant of node, not descending into
// node types listed in stop.
func walkScope(node *sitter.Node, stop map[string]struct{}, visit func(*sitter.Node)) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if _, skip := stop[child.Type()]; skip {
			continue
		}
		visit(child)
		walkScope(child, stop, visit)
	}
}
