package lang

import (
	"strings"
	"unicode"

	"github.com/phobologic/classmap/internal/model"
)

// wrapperTypes unwrap to their first type argument.
var wrapperTypes = map[string]struct{}{
	"Optional": {}, "Final": {}, "ClassVar": {}, "Annotated": {},
	"Required": {}, "NotRequired": {}, "ReadOnly": {}, "Type": {}, "type": {},
	"Supplier": {}, "Provider": {},
}

// sequenceTypes hold zero or more elements of their first type argument.
var sequenceTypes = map[string]struct{}{
	"List": {}, "list": {}, "Set": {}, "set": {}, "FrozenSet": {}, "frozenset": {},
	"Sequence": {}, "MutableSequence": {}, "Iterable": {}, "Iterator": {},
	"Collection": {}, "Tuple": {}, "tuple": {}, "Deque": {}, "deque": {},
	"AbstractSet": {}, "MutableSet": {},
	"ArrayList": {}, "LinkedList": {}, "HashSet": {}, "TreeSet": {}, "LinkedHashSet": {},
	"Queue": {}, "Stack": {}, "Vector": {}, "SortedSet": {}, "ArrayDeque": {},
}

// mappingTypes hold zero or more elements of their last type argument.
var mappingTypes = map[string]struct{}{
	"Dict": {}, "dict": {}, "Mapping": {}, "MutableMapping": {}, "DefaultDict": {},
	"defaultdict": {}, "OrderedDict": {}, "Map": {}, "HashMap": {}, "TreeMap": {},
	"LinkedHashMap": {}, "SortedMap": {}, "ConcurrentHashMap": {},
}

var builtinTypes = map[string]struct{}{
	// Python
	"str": {}, "int": {}, "float": {}, "bool": {}, "bytes": {}, "bytearray": {},
	"complex": {}, "object": {}, "None": {}, "NoneType": {}, "Any": {},
	"Callable": {}, "Generator": {}, "Self": {}, "TypeVar": {}, "Union": {},
	"Literal": {}, "Protocol": {}, "Generic": {},
	// Java and Groovy
	"String": {}, "Object": {}, "Integer": {}, "Long": {}, "Short": {}, "Byte": {},
	"Double": {}, "Float": {}, "Boolean": {}, "Character": {}, "Void": {},
	"Number": {}, "BigDecimal": {}, "BigInteger": {}, "void": {},
	"long": {}, "short": {}, "byte": {}, "double": {}, "char": {}, "boolean": {},
	"var": {}, "def": {}, "null": {}, "Optional": {}, "Date": {}, "UUID": {},
}

func init() {
	for _, set := range []map[string]struct{}{wrapperTypes, sequenceTypes, mappingTypes} {
		for name := range set {
			builtinTypes[name] = struct{}{}
		}
	}
}

// IsBuiltin reports whether name is a primitive, standard-library value type
// or container name that never denotes a user-defined class.
func IsBuiltin(name string) bool {
	_, ok := builtinTypes[name]
	return ok
}

// LooksLikeType reports whether an identifier is syntactically a class name:
// a capitalized identifier that is not a builtin.
func LooksLikeType(name string) bool {
	if name == "" || IsBuiltin(name) {
		return false
	}
	for i, r := range name {
		if i == 0 && !unicode.IsUpper(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// ParseTypeRef parses a type annotation or declared type such as
// "Optional[Engine]", "List[Room]", "Map<String, Order>" or "Room[]".
// Collection containers resolve to their element type.
func ParseTypeRef(raw string) model.TypeRef {
	ref := parseType(raw)
	ref.Raw = strings.TrimSpace(raw)
	return ref
}

// BaseName strips generic arguments and qualifiers from a base-type
// expression: "java.util.AbstractList<Foo>" becomes "AbstractList".
func BaseName(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "<["); i >= 0 {
		s = s[:i]
	}
	return lastSegment(strings.TrimSpace(s))
}

func parseType(s string) model.TypeRef {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.Trim(s, `"'`))
	s = stripTypeNoise(s)
	if s == "" {
		return model.TypeRef{}
	}

	if parts := splitTop(s, '|'); len(parts) > 1 {
		return firstNonNone(parts)
	}

	if strings.HasSuffix(s, "...") {
		return asCollection(parseType(strings.TrimSuffix(s, "...")))
	}
	if strings.HasSuffix(s, "[]") {
		return asCollection(parseType(strings.TrimSuffix(s, "[]")))
	}

	base, args, ok := splitGeneric(s)
	if !ok {
		return model.TypeRef{Name: lastSegment(s)}
	}
	name := lastSegment(strings.TrimSpace(base))

	if len(args) == 0 {
		return model.TypeRef{Name: name}
	}
	if name == "Union" {
		return firstNonNone(args)
	}
	if _, ok := wrapperTypes[name]; ok {
		return parseType(args[0])
	}
	if _, ok := sequenceTypes[name]; ok {
		return asCollection(parseType(args[0]))
	}
	if _, ok := mappingTypes[name]; ok {
		return asCollection(parseType(args[len(args)-1]))
	}
	return model.TypeRef{Name: name}
}

// stripTypeNoise drops Java wildcards, type annotations and modifiers.
func stripTypeNoise(s string) string {
	for {
		switch {
		case strings.HasPrefix(s, "?"):
			s = strings.TrimSpace(s[1:])
			s = strings.TrimSpace(strings.TrimPrefix(s, "extends"))
			s = strings.TrimSpace(strings.TrimPrefix(s, "super"))
		case strings.HasPrefix(s, "@"):
			end := strings.IndexAny(s, " \t\n")
			if end < 0 {
				return ""
			}
			s = strings.TrimSpace(s[end:])
		case strings.HasPrefix(s, "final "):
			s = strings.TrimSpace(s[len("final "):])
		default:
			return s
		}
	}
}

func asCollection(inner model.TypeRef) model.TypeRef {
	if inner.Name == "" {
		return model.TypeRef{}
	}
	return model.TypeRef{Name: inner.Name, Collection: true}
}

func firstNonNone(parts []string) model.TypeRef {
	for _, p := range parts {
		ref := parseType(p)
		if ref.Name != "" && ref.Name != "None" && ref.Name != "null" {
			return ref
		}
	}
	return model.TypeRef{}
}

// splitGeneric splits "Base[A, B]" or "Base<A, B>" into its base and
// top-level arguments.
func splitGeneric(s string) (string, []string, bool) {
	open := strings.IndexAny(s, "[<")
	if open <= 0 {
		return "", nil, false
	}
	closer := byte(']')
	if s[open] == '<' {
		closer = '>'
	}
	if s[len(s)-1] != closer {
		return "", nil, false
	}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" {
		return s[:open], nil, true
	}
	return s[:open], splitTop(inner, ','), true
}

// splitTop splits s on sep at bracket depth zero.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '<', '(':
			depth++
		case ']', '>', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}
