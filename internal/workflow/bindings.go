package workflow

// Ref addresses one declared output of one node.
type Ref struct {
	Node   string
	Output string
}

// R is shorthand for building a Ref.
func R(node, output string) Ref { return Ref{Node: node, Output: output} }

// Binding describes where a task input comes from: either a literal value or
// a selection over node outputs. A multi-ref binding resolves to the first
// present value among its refs, which is how consumers pick a value out of
// several branches that declare the same output.
//
// A required binding with no present value is a contract violation and fails
// the consumer before dispatch. An optional binding with no present value
// makes the consumer itself resolve absent: the task never runs and every
// output it declares becomes absent in turn.
type Binding struct {
	literal    any
	hasLiteral bool
	refs       []Ref
	required   bool
}

// Lit binds a literal value.
func Lit(v any) Binding {
	return Binding{literal: v, hasLiteral: true, required: true}
}

// From binds a required single node output.
func From(node, output string) Binding {
	return Binding{refs: []Ref{{Node: node, Output: output}}, required: true}
}

// FirstOf binds the first present value among refs; at least one must be
// present.
func FirstOf(refs ...Ref) Binding {
	return Binding{refs: refs, required: true}
}

// OptionalFrom binds a single node output whose absence propagates.
func OptionalFrom(node, output string) Binding {
	return Binding{refs: []Ref{{Node: node, Output: output}}}
}

// OptionalFirstOf binds the first present value among refs; absence of all of
// them propagates.
func OptionalFirstOf(refs ...Ref) Binding {
	return Binding{refs: refs}
}

// Literal returns the literal value, if this is a literal binding.
func (b Binding) Literal() (any, bool) { return b.literal, b.hasLiteral }

// Refs returns the output references this binding selects over.
func (b Binding) Refs() []Ref { return b.refs }

// Required reports whether an unresolvable binding is an error rather than a
// propagated absence.
func (b Binding) Required() bool { return b.required }
