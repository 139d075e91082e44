// Package model defines core data structures for classmap.
package model

// Kind is the declared kind of a type.
type Kind string

const (
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
)

// Category classifies a relationship between two types.
type Category string

const (
	Inheritance             Category = "inheritance"
	InterfaceImplementation Category = "interface_implementation"
	Composition             Category = "composition"
	StrongComposition       Category = "strong_composition"
	Aggregation             Category = "aggregation"
	Association             Category = "association"
	Dependency              Category = "dependency"
)

// Categories lists every relationship category in canonical order.
var Categories = []Category{
	Aggregation,
	Composition,
	StrongComposition,
	Association,
	Inheritance,
	InterfaceImplementation,
	Dependency,
}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ExternalFile is the File of placeholder nodes for types never declared in
// the scanned sources.
const ExternalFile = "external"

// UnknownLanguage is the Language of placeholder nodes.
const UnknownLanguage = "unknown"

// ClassRecord describes one type declaration. Identity is (Name, File).
type ClassRecord struct {
	Name        string      `json:"name"`
	File        string      `json:"file"` // Relative to the analysis root
	Language    string      `json:"language"`
	Kind        Kind        `json:"kind"`
	Methods     []string    `json:"methods"`
	Attributes  []string    `json:"attributes"`
	Bases       []string    `json:"bases"` // Abstract-interface markers already removed
	Interfaces  []string    `json:"interfaces"`
	Doc         string      `json:"doc,omitempty"`
	Annotations []string    `json:"annotations,omitempty"` // Type-level annotation names, such as Service
	Injections  []Injection `json:"injections,omitempty"`
}

// Injection is a member wired by a dependency-injection annotation such as
// @Autowired.
type Injection struct {
	Kind   string `json:"kind"` // field, constructor or method
	Member string `json:"member"`
	Type   string `json:"type"` // Field type, or the parameter types of a callable
}

// TypeRef is a parsed type expression such as "Engine", "List[Room]" or
// "Map<String, Order>".
type TypeRef struct {
	Raw        string
	Name       string // Element name when Collection is set
	Collection bool
}

// IsZero reports whether the reference carries no type name.
func (t TypeRef) IsZero() bool {
	return t.Name == ""
}

// Param is a member parameter. Type is zero when the parameter is unannotated.
type Param struct {
	Name string
	Type TypeRef
}

// FieldDecl is a field declared directly in a type body (dataclass field,
// Java field, class-level assignment).
type FieldDecl struct {
	Name        string
	Type        TypeRef
	Constructed string // Type name when the initializer is a direct construction
}

// Assignment is an instance-field assignment inside a member body
// (self.x = ..., this.x = ...).
type Assignment struct {
	Field       string
	Type        TypeRef
	Constructed string
}

// LocalVar is a local variable bound to a direct construction result.
type LocalVar struct {
	Name        string
	Constructed string
}

// Method is a first-level callable member of a declared type.
type Method struct {
	Name        string
	Constructor bool
	Params      []Param
	Assignments []Assignment
	Locals      []LocalVar
}

// DeclaredType is the language-neutral shape every language adapter
// produces. The classifier only ever sees this type.
type DeclaredType struct {
	ClassRecord
	Fields  []FieldDecl
	Members []Method
}

// Relationship is a typed edge between two type names.
type Relationship struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Category Category `json:"category"`
	Member   string   `json:"member,omitempty"`  // Field, parameter or variable that introduced the edge
	Context  string   `json:"context,omitempty"` // Enclosing member name
	File     string   `json:"file"`
}

// Analysis is the result of one analysis run.
type Analysis struct {
	Root          string         `json:"root"`
	Classes       []ClassRecord  `json:"classes"`
	Relationships []Relationship `json:"relationships"`
	Errors        []string       `json:"errors"`   // One per file-level failure
	Warnings      []string       `json:"warnings"` // Unreadable directories, skipped files
}

// Node is a graph vertex. ID combines the class name and the basename of the
// defining file, so same-named classes from different files stay distinct.
type Node struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	File       string  `json:"file"`
	Kind       Kind    `json:"kind"`
	Language   string  `json:"language"`
	Methods    int     `json:"methods"`
	Attributes int     `json:"attributes"`
	External   bool    `json:"external"`
	Rank       float64 `json:"rank"`
}

// Edge is a graph edge. Identity is (Source, Target, Category).
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Category Category `json:"category"`
	Member   string   `json:"member,omitempty"`
	Context  string   `json:"context,omitempty"`
}

// Graph is the assembled node and edge set, ready for serialization.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Duplicate is a class name declared in more than one file.
type Duplicate struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// ClassMap is everything one run prints: the extraction result, the
// assembled graph and its diagnostics.
type ClassMap struct {
	Root          string         `json:"root"`
	Classes       []ClassRecord  `json:"classes"`
	Relationships []Relationship `json:"relationships"`
	Graph         Graph          `json:"graph"`
	Cycles        [][]string     `json:"cycles"`
	Duplicates    []Duplicate    `json:"duplicates"`
	Errors        []string       `json:"errors"`
	Warnings      []string       `json:"warnings"`
}
