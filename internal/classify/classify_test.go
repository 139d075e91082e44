package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/classmap/internal/lang"
	"github.com/phobologic/classmap/internal/model"
)

func class(name string, bases ...string) model.DeclaredType {
	return model.DeclaredType{ClassRecord: model.ClassRecord{
		Name:  name,
		File:  "test.py",
		Kind:  model.KindClass,
		Bases: bases,
	}}
}

func ctor(name string, assignments ...model.Assignment) model.Method {
	return model.Method{Name: name, Constructor: true, Assignments: assignments}
}

func records(types ...model.DeclaredType) []model.ClassRecord {
	out := make([]model.ClassRecord, len(types))
	for i, t := range types {
		out[i] = t.ClassRecord
	}
	return out
}

func run(t *testing.T, language string, opts Options, types ...model.DeclaredType) []model.Relationship {
	t.Helper()
	return Types(types, "test.py", language, NewIndex(records(types...)), opts)
}

func find(rels []model.Relationship, source, target string, category model.Category) []model.Relationship {
	var out []model.Relationship
	for _, r := range rels {
		if r.Source == source && r.Target == target && r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

func TestInheritanceVersusImplementation(t *testing.T) {
	t.Parallel()

	drivable := class("Drivable")
	drivable.Kind = model.KindInterface
	vehicle := class("Vehicle")
	car := class("Car", "Vehicle", "Drivable")

	rels := run(t, "python", DefaultOptions(), drivable, vehicle, car)

	require.Len(t, rels, 2)
	assert.Len(t, find(rels, "Car", "Vehicle", model.Inheritance), 1)
	assert.Len(t, find(rels, "Car", "Drivable", model.InterfaceImplementation), 1)
	assert.Empty(t, find(rels, "Car", "Drivable", model.Inheritance))
	for _, r := range rels {
		assert.Equal(t, "test.py", r.File)
		assert.Empty(t, r.Member)
	}
}

func TestInterfaceExtendsInterface(t *testing.T) {
	t.Parallel()

	movable := class("Movable")
	movable.Kind = model.KindInterface
	drivable := class("Drivable", "Movable")
	drivable.Kind = model.KindInterface

	rels := run(t, "java", DefaultOptions(), movable, drivable)
	require.Len(t, rels, 1)
	assert.Equal(t, model.Inheritance, rels[0].Category)
}

func TestDeclaredInterfaces(t *testing.T) {
	t.Parallel()

	order := class("Order", "Document")
	order.Interfaces = []string{"Payable", "Auditable"}

	rels := run(t, "java", DefaultOptions(), order)
	assert.Len(t, find(rels, "Order", "Document", model.Inheritance), 1)
	assert.Len(t, find(rels, "Order", "Payable", model.InterfaceImplementation), 1)
	assert.Len(t, find(rels, "Order", "Auditable", model.InterfaceImplementation), 1)
}

func TestPrivateFieldIsStrongComposition(t *testing.T) {
	t.Parallel()

	car := class("Car")
	car.Members = []model.Method{ctor("__init__",
		model.Assignment{Field: "__engine", Constructed: "Engine"},
		model.Assignment{Field: "engine", Constructed: "Engine"},
	)}

	rels := run(t, "python", DefaultOptions(), car, class("Engine"))

	comp := find(rels, "Car", "Engine", model.Composition)
	require.Len(t, comp, 2)
	assert.Equal(t, "__engine", comp[0].Member)
	assert.Equal(t, "__init__", comp[0].Context)
	assert.Equal(t, "engine", comp[1].Member)

	strong := find(rels, "Car", "Engine", model.StrongComposition)
	require.Len(t, strong, 1)
	assert.Equal(t, "__engine", strong[0].Member)
}

func TestAnnotatedAssignment(t *testing.T) {
	t.Parallel()

	car := class("Car")
	car.Members = []model.Method{ctor("__init__",
		model.Assignment{Field: "motor", Type: lang.ParseTypeRef("Optional[Engine]")},
		model.Assignment{Field: "name", Type: lang.ParseTypeRef("str")},
	)}

	rels := run(t, "python", DefaultOptions(), car)
	require.Len(t, rels, 1)
	assert.Equal(t, model.Composition, rels[0].Category)
	assert.Equal(t, "Engine", rels[0].Target)
}

func TestCollectionFieldIsAggregation(t *testing.T) {
	t.Parallel()

	house := class("House")
	house.Fields = []model.FieldDecl{
		{Name: "rooms", Type: lang.ParseTypeRef("List[Room]")},
	}
	house.Members = []model.Method{ctor("__init__",
		model.Assignment{Field: "__doors", Type: lang.ParseTypeRef("list[Door]")},
	)}

	rels := run(t, "python", DefaultOptions(), house, class("Room"), class("Door"))

	require.Len(t, rels, 2)
	rooms := find(rels, "House", "Room", model.Aggregation)
	require.Len(t, rooms, 1)
	assert.Equal(t, "rooms", rooms[0].Member)
	assert.Empty(t, find(rels, "House", "Room", model.Composition))

	// Collections win over the private rule.
	assert.Len(t, find(rels, "House", "Door", model.Aggregation), 1)
	assert.Empty(t, find(rels, "House", "Door", model.StrongComposition))
}

func TestPluralHeuristic(t *testing.T) {
	t.Parallel()

	library := class("Library")
	library.Fields = []model.FieldDecl{
		{Name: "books", Type: lang.ParseTypeRef("Book")},
		{Name: "catalog", Type: lang.ParseTypeRef("Catalog")},
		{Name: "status", Type: lang.ParseTypeRef("Status")},
	}

	java := run(t, "java", DefaultOptions(), library)
	assert.Len(t, find(java, "Library", "Book", model.Aggregation), 1)
	assert.Len(t, find(java, "Library", "Catalog", model.Composition), 1)
	// Known misclassification carried by the heuristic.
	assert.Len(t, find(java, "Library", "Status", model.Aggregation), 1)

	python := run(t, "python", DefaultOptions(), library)
	assert.Len(t, find(python, "Library", "Book", model.Composition), 1)
	assert.Empty(t, find(python, "Library", "Book", model.Aggregation))
}

func TestAssociationFromParamsAndLocals(t *testing.T) {
	t.Parallel()

	student := class("Student")
	student.Members = []model.Method{
		{
			Name:   "enroll",
			Params: []model.Param{{Name: "course", Type: lang.ParseTypeRef("Course")}, {Name: "term", Type: lang.ParseTypeRef("int")}, {Name: "note"}},
			Locals: []model.LocalVar{{Name: "receipt", Constructed: "Receipt"}, {Name: "items", Constructed: "list"}},
		},
	}

	rels := run(t, "python", DefaultOptions(), student, class("Course"))

	require.Len(t, rels, 2)
	course := find(rels, "Student", "Course", model.Association)
	require.Len(t, course, 1)
	assert.Equal(t, "course", course[0].Member)
	assert.Equal(t, "enroll", course[0].Context)

	receipt := find(rels, "Student", "Receipt", model.Association)
	require.Len(t, receipt, 1)
	assert.Equal(t, "receipt", receipt[0].Member)
}

func TestDependencyMode(t *testing.T) {
	t.Parallel()

	student := class("Student")
	student.Members = []model.Method{
		{
			Name:   "enroll",
			Params: []model.Param{{Name: "course", Type: lang.ParseTypeRef("Course")}, {Name: "clock", Type: lang.ParseTypeRef("clock_t")}},
			Locals: []model.LocalVar{{Name: "receipt", Constructed: "Receipt"}},
		},
	}

	opts := DefaultOptions()
	opts.ParamsAsDependency = true
	rels := run(t, "python", opts, student)

	assert.Len(t, find(rels, "Student", "Course", model.Dependency), 1)
	assert.Len(t, find(rels, "Student", "clock_t", model.Dependency), 1)
	assert.Empty(t, find(rels, "Student", "Course", model.Association))
	assert.Len(t, find(rels, "Student", "Receipt", model.Association), 1)
}

func TestSelfReferences(t *testing.T) {
	t.Parallel()

	node := class("Node")
	node.Fields = []model.FieldDecl{
		{Name: "parent", Type: lang.ParseTypeRef("Node")},
		{Name: "sentinel", Type: lang.ParseTypeRef("Node"), Constructed: "Node"},
	}
	node.Members = []model.Method{
		{Name: "link", Params: []model.Param{{Name: "other", Type: lang.ParseTypeRef("Node")}}},
		{Name: "clone", Locals: []model.LocalVar{{Name: "copy", Constructed: "Node"}}},
	}

	rels := run(t, "python", DefaultOptions(), node)
	require.Len(t, rels, 1)
	assert.Equal(t, model.Composition, rels[0].Category)
	assert.Equal(t, "sentinel", rels[0].Member)
}

func TestFieldAndConstructorDeduplicated(t *testing.T) {
	t.Parallel()

	car := class("Car")
	car.Fields = []model.FieldDecl{{Name: "engine", Type: lang.ParseTypeRef("Engine")}}
	car.Members = []model.Method{ctor("Car", model.Assignment{Field: "engine", Constructed: "Engine"})}

	rels := run(t, "java", DefaultOptions(), car)
	require.Len(t, rels, 1)
	assert.Equal(t, model.Composition, rels[0].Category)
	assert.Empty(t, rels[0].Context)
}

func TestUndeclaredTypesStillEmitted(t *testing.T) {
	t.Parallel()

	car := class("Car", "Vehicle")
	car.Fields = []model.FieldDecl{{Name: "wheel", Type: lang.ParseTypeRef("Wheel")}}

	rels := run(t, "python", DefaultOptions(), car)
	assert.Len(t, find(rels, "Car", "Vehicle", model.Inheritance), 1)
	assert.Len(t, find(rels, "Car", "Wheel", model.Composition), 1)
}

func TestRelationshipEndpointsNonEmpty(t *testing.T) {
	t.Parallel()

	odd := class("Odd", "", "Base")
	odd.Interfaces = []string{""}
	odd.Fields = []model.FieldDecl{{Name: "", Type: lang.ParseTypeRef("Thing")}, {Name: "x"}}
	odd.Members = []model.Method{{Name: "m", Params: []model.Param{{Name: "p", Type: model.TypeRef{}}}}}

	rels := run(t, "python", DefaultOptions(), odd, model.DeclaredType{})
	for _, r := range rels {
		assert.NotEmpty(t, r.Source)
		assert.NotEmpty(t, r.Target)
		assert.True(t, r.Category.Valid())
	}
	assert.Len(t, rels, 1)
}

func TestIsPrivate(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.True(t, opts.IsPrivate("python", "__engine"))
	assert.False(t, opts.IsPrivate("python", "_engine"))
	assert.False(t, opts.IsPrivate("python", "__dict__"))
	assert.False(t, opts.IsPrivate("python", "__"))
	assert.False(t, opts.IsPrivate("java", "__engine"))

	opts.PrivatePrefixes["java"] = []string{"m_"}
	assert.True(t, opts.IsPrivate("java", "m_engine"))
}

func TestDeclaredNamesShadowBuiltins(t *testing.T) {
	t.Parallel()

	parser := class("Parser")
	parser.Fields = []model.FieldDecl{
		{Name: "stack", Type: lang.ParseTypeRef("Stack"), Constructed: "Stack"},
		{Name: "scratch", Type: lang.ParseTypeRef("Vector")},
	}
	parser.Members = []model.Method{
		{Name: "run", Params: []model.Param{{Name: "queue", Type: lang.ParseTypeRef("Queue")}}},
	}

	rels := run(t, "java", DefaultOptions(), parser, class("Stack"), class("Queue"))

	assert.Len(t, find(rels, "Parser", "Stack", model.Composition), 1)
	assert.Len(t, find(rels, "Parser", "Queue", model.Association), 1)
	// Vector is not declared, so it stays a builtin.
	assert.Empty(t, find(rels, "Parser", "Vector", model.Composition))

	opts := DefaultOptions()
	opts.ParamsAsDependency = true
	deps := run(t, "java", opts, parser, class("Stack"), class("Queue"))
	assert.Len(t, find(deps, "Parser", "Queue", model.Dependency), 1)
}

func TestIndex(t *testing.T) {
	t.Parallel()

	iface := class("Drivable")
	iface.Kind = model.KindInterface
	ix := NewIndex(records(class("engine"), iface))

	assert.True(t, ix.Declared("engine"))
	assert.True(t, ix.IsType("engine"))
	assert.True(t, ix.IsType("Wheel"))
	assert.False(t, ix.IsType("str"))
	assert.False(t, ix.IsType("Date"))
	assert.True(t, NewIndex(records(class("Date"))).IsType("Date"))
	assert.True(t, ix.IsInterface("Drivable"))
	assert.False(t, ix.IsInterface("engine"))

	var empty *Index
	assert.False(t, empty.Declared("Car"))
	assert.True(t, empty.IsType("Car"))
}
