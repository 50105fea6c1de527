package registry

// FieldKind enumerates the primitive shapes a schema Field can take,
// matched exhaustively wherever schemas are rendered or validated.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldNumber
	FieldBoolean
	FieldArray
	FieldObject
	FieldLiteral
	FieldAny
)

// Field describes one field of a tool's input shape. Optional and
// default wrapping is expressed via the Optional/Default members
// rather than as additional FieldKind variants, since both apply
// orthogonally to any of the kinds above.
type Field struct {
	Kind FieldKind

	// String constraints.
	MinLen int
	MaxLen int
	Enum   []string
	Format string

	// Number constraints.
	Min     float64
	Max     float64
	IsInt   bool
	HasMin  bool
	HasMax  bool

	// Array element type (Kind == FieldArray).
	Elem *Field

	// Object shape (Kind == FieldObject).
	Shape *ObjectShape

	// Literal value (Kind == FieldLiteral).
	Literal interface{}

	Optional     bool
	HasDefault   bool
	DefaultValue interface{}
}

// ObjectShape is an object-shaped input description: named fields, a
// required set, and an additional-properties policy.
type ObjectShape struct {
	Fields     map[string]Field
	Required   []string
	Additional AdditionalPolicy
}

// AdditionalPolicy controls whether unknown top-level properties are
// tolerated.
type AdditionalPolicy int

const (
	AdditionalDeny AdditionalPolicy = iota
	AdditionalAllow
)

// SchemaShape tags an ObjectShape as Simple or Complex. Complex is
// the variant carrying array-valued top-level fields. The tag is
// recorded with the tool only: no transport or dispatcher code
// branches on Kind, and both kinds render the same way (see
// ToJSONSchema).
type SchemaShape struct {
	Kind  ShapeKind
	Shape ObjectShape
}

type ShapeKind int

const (
	ShapeSimple ShapeKind = iota
	ShapeComplex
)

// Simple constructs a SchemaShape for an object shape with no
// array-valued top-level fields.
func Simple(shape ObjectShape) SchemaShape {
	return SchemaShape{Kind: ShapeSimple, Shape: shape}
}

// Complex constructs a SchemaShape for an object shape that contains
// at least one array-valued top-level field.
func Complex(shape ObjectShape) SchemaShape {
	return SchemaShape{Kind: ShapeComplex, Shape: shape}
}

// InferShape classifies an ObjectShape as Simple or Complex by scanning
// its top-level fields for an array kind. Callers that already know
// which constructor applies may call Simple/Complex directly; InferShape
// exists so code paths that only have a raw ObjectShape (for example
// schemas loaded from a plugin manifest) get the classification applied
// consistently rather than reimplementing the scan.
func InferShape(shape ObjectShape) SchemaShape {
	for _, f := range shape.Fields {
		if f.Kind == FieldArray {
			return Complex(shape)
		}
	}
	return Simple(shape)
}

// Validate reports ErrInvalidSchema if the shape is not a valid
// object-shaped description: every field referenced by Required must
// exist, and array fields must declare an element type.
func (s ObjectShape) Validate() error {
	for _, name := range s.Required {
		if _, ok := s.Fields[name]; !ok {
			return ErrInvalidSchema
		}
	}
	for _, f := range s.Fields {
		if f.Kind == FieldArray && f.Elem == nil {
			return ErrInvalidSchema
		}
		if f.Kind == FieldObject && f.Shape == nil {
			return ErrInvalidSchema
		}
	}
	return nil
}
