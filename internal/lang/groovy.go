package lang

import (
	"regexp"
	"strings"

	"github.com/phobologic/classmap/internal/model"
)

func init() {
	Languages["groovy"] = &Language{
		Name:              "groovy",
		Extensions:        []string{".groovy"},
		PluralAggregation: true,
		ScanTypes:         groovyScanTypes,
	}
}

// Groovy has no bundled grammar, so types are recovered with regular
// expressions over a copy of the source in which comments and string
// contents are blanked out. Offsets in the blanked copy match the original.
var (
	groovyHeaderRe = regexp.MustCompile(`\b(class|interface|trait)\s+(\w+)`)
	groovyExtendsRe = regexp.MustCompile(`\bextends\s+(.+?)(?:\s+implements\b|$)`)
	groovyImplementsRe = regexp.MustCompile(`\bimplements\s+(.+)$`)

	groovyModifiers = `(?:(?:public|private|protected|static|final|abstract|synchronized|transient|volatile)\s+)*`
	groovyTypeExpr  = `[\w.]+(?:\s*<[^=;(){}]*>)?(?:\[\])*`

	groovyMethodRe = regexp.MustCompile(`(?m)^[ \t]*` + groovyModifiers + `(?:def\s+)?(?:(` + groovyTypeExpr + `)\s+)?(\w+)\s*\(([^)]*)\)[^{;=]*\{`)
	groovyFieldRe  = regexp.MustCompile(`(?m)^[ \t]*` + groovyModifiers + `(` + groovyTypeExpr + `)\s+(\w+)[ \t]*(?:=[ \t]*([^;\n]*))?;?[ \t]*$`)
	groovyAssignRe = regexp.MustCompile(`(?m)^[ \t]*(this\.)?(\w+)\s*=\s*new\s+([\w.]+)`)
	groovyLocalRe  = regexp.MustCompile(`(?m)^[ \t]*(?:final\s+)?(?:def|` + groovyTypeExpr + `)\s+(\w+)\s*=\s*new\s+([\w.]+)`)
	groovyNewRe    = regexp.MustCompile(`^new\s+([\w.]+)`)
)

var groovyKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {}, "return": {},
	"new": {}, "throw": {}, "else": {}, "import": {}, "package": {}, "assert": {},
	"class": {}, "interface": {}, "trait": {}, "enum": {},
}

func groovyScanTypes(source []byte) []model.DeclaredType {
	text := string(source)
	clean := blankGroovy(text)
	depth := braceDepths(clean)

	var types []model.DeclaredType
	for _, loc := range groovyHeaderRe.FindAllStringSubmatchIndex(clean, -1) {
		start := loc[0]
		if depth[start] != 0 || (start > 0 && clean[start-1] == '.') {
			continue
		}
		open := strings.IndexByte(clean[loc[1]:], '{')
		if open < 0 {
			continue
		}
		open += loc[1]
		closing := matchBrace(clean, open)
		if closing < 0 {
			closing = len(clean)
		}

		dt := model.DeclaredType{ClassRecord: model.ClassRecord{
			Name:     clean[loc[4]:loc[5]],
			Language: "groovy",
			Kind:     model.KindClass,
			Doc:      groovyDoc(text[:start]),
		}}
		interfaceDecl := clean[loc[2]:loc[3]] != "class"
		if interfaceDecl {
			dt.Kind = model.KindInterface
		}

		header := CollapseWhitespace(stripGenerics(clean[loc[5]:open]))
		if m := groovyExtendsRe.FindStringSubmatch(header); m != nil {
			names := splitNames(m[1])
			if !interfaceDecl && len(names) > 1 {
				names = names[:1]
			}
			dt.Bases = names
		}
		if m := groovyImplementsRe.FindStringSubmatch(header); m != nil {
			dt.Interfaces = splitNames(m[1])
		}

		groovyBody(&dt, clean[open+1:closing])
		types = append(types, dt)
	}
	return types
}

// groovyBody fills fields and members from a class body.
func groovyBody(dt *model.DeclaredType, body string) {
	shallow := shallowBody(body)

	fields := make(map[string]struct{})
	for _, m := range groovyFieldRe.FindAllStringSubmatch(shallow, -1) {
		typ, name := m[1], m[2]
		if _, kw := groovyKeywords[BaseName(typ)]; kw {
			continue
		}
		f := model.FieldDecl{Name: name, Type: ParseTypeRef(typ)}
		if nm := groovyNewRe.FindStringSubmatch(strings.TrimSpace(m[3])); nm != nil {
			f.Constructed = BaseName(nm[1])
		}
		dt.Fields = append(dt.Fields, f)
		dt.Attributes = appendUnique(dt.Attributes, name)
		fields[name] = struct{}{}
	}

	for _, loc := range groovyMethodRe.FindAllStringSubmatchIndex(shallow, -1) {
		name := shallow[loc[4]:loc[5]]
		if _, kw := groovyKeywords[name]; kw {
			continue
		}
		m := model.Method{
			Name:        name,
			Constructor: name == dt.Name,
			Params:      groovyParams(shallow[loc[6]:loc[7]]),
		}
		open := loc[1] - 1
		if closing := matchBrace(body, open); closing > open {
			groovyMethodBody(&m, body[open+1:closing], fields)
		}
		dt.Methods = appendUnique(dt.Methods, name)
		dt.Members = append(dt.Members, m)
	}
}

func groovyMethodBody(m *model.Method, body string, fields map[string]struct{}) {
	for _, a := range groovyAssignRe.FindAllStringSubmatch(body, -1) {
		if a[1] == "" {
			if _, ok := fields[a[2]]; !ok {
				continue
			}
		}
		m.Assignments = append(m.Assignments, model.Assignment{Field: a[2], Constructed: BaseName(a[3])})
	}
	for _, l := range groovyLocalRe.FindAllStringSubmatch(body, -1) {
		m.Locals = append(m.Locals, model.LocalVar{Name: l[1], Constructed: BaseName(l[2])})
	}
}

func groovyParams(list string) []model.Param {
	var params []model.Param
	for _, raw := range splitTop(list, ',') {
		if i := strings.Index(raw, "="); i >= 0 {
			raw = raw[:i]
		}
		fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(raw), "final "))
		switch len(fields) {
		case 0:
			continue
		case 1:
			params = append(params, model.Param{Name: fields[0]})
		default:
			name := fields[len(fields)-1]
			typ := strings.Join(fields[:len(fields)-1], " ")
			params = append(params, model.Param{Name: name, Type: ParseTypeRef(typ)})
		}
	}
	return params
}

// groovyDoc returns the /** */ comment ending right before a declaration.
func groovyDoc(before string) string {
	trimmed := strings.TrimRight(before, " \t\r\n")
	for _, mod := range []string{"public", "abstract", "final", "static"} {
		trimmed = strings.TrimRight(strings.TrimSuffix(trimmed, mod), " \t\r\n")
	}
	if !strings.HasSuffix(trimmed, "*/") {
		return ""
	}
	start := strings.LastIndex(trimmed, "/**")
	if start < 0 {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(trimmed[start+3:len(trimmed)-2], "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// blankGroovy replaces comments and string contents with spaces, keeping
// newlines and string delimiters so offsets and line numbers are preserved.
func blankGroovy(src string) string {
	out := []byte(src)
	blank := func(from, to int) {
		for i := from; i < to && i < len(out); i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
	}
	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			blank(i, i+end)
			i += end
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				blank(i, len(src))
				return string(out)
			}
			blank(i, i+end+4)
			i += end + 4
		case strings.HasPrefix(src[i:], `"""`), strings.HasPrefix(src[i:], `'''`):
			q := src[i : i+3]
			end := strings.Index(src[i+3:], q)
			if end < 0 {
				blank(i+3, len(src))
				return string(out)
			}
			blank(i+3, i+3+end)
			i += end + 6
		case src[i] == '"' || src[i] == '\'':
			q := src[i]
			j := i + 1
			for j < len(src) && src[j] != q && src[j] != '\n' {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			blank(i+1, j)
			i = j + 1
		default:
			i++
		}
	}
	return string(out)
}

// braceDepths returns the brace nesting depth at every offset of s.
func braceDepths(s string) []int {
	depths := make([]int, len(s)+1)
	d := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '}' && d > 0 {
			d--
		}
		depths[i] = d
		if s[i] == '{' {
			d++
		}
	}
	depths[len(s)] = d
	return depths
}

// matchBrace returns the offset of the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	if open < 0 || open >= len(s) || s[open] != '{' {
		return -1
	}
	d := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			d++
		case '}':
			d--
			if d == 0 {
				return i
			}
		}
	}
	return -1
}

// shallowBody blanks everything nested inside braces so that only
// member-level declarations remain visible.
func shallowBody(body string) string {
	out := []byte(body)
	d := 0
	for i := 0; i < len(out); i++ {
		switch out[i] {
		case '{':
			if d > 0 {
				out[i] = ' '
			}
			d++
		case '}':
			if d > 0 {
				d--
			}
			if d > 0 {
				out[i] = ' '
			}
		case '\n':
		default:
			if d > 0 {
				out[i] = ' '
			}
		}
	}
	return string(out)
}

// stripGenerics removes <...> type parameter lists from a header.
func stripGenerics(s string) string {
	var b strings.Builder
	d := 0
	for _, r := range s {
		switch {
		case r == '<':
			d++
		case r == '>' && d > 0:
			d--
		case d == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func splitNames(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		if name := BaseName(part); name != "" {
			names = appendUnique(names, name)
		}
	}
	return names
}
