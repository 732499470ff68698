package expr

// Node is a tagged-variant AST node produced by the parser. Each
// concrete type below implements Node as a marker; the compiler
// switches on the concrete type.
type Node interface {
	node()
}

// Program is the top-level sequence of statements, one per
// ';'-separated clause.
type Program struct {
	Statements []Node
}

func (*Program) node() {}

// Literal is a number, string, boolean, null or undefined constant.
type Literal struct {
	Value interface{}
}

func (*Literal) node() {}

// Identifier is a bare name reference, resolved against locals then
// scope.
type Identifier struct {
	Name string
}

func (*Identifier) node() {}

// This is the 'this' language constant.
type This struct{}

func (*This) node() {}

// ArrayLit is an array literal; trailing commas are permitted by the
// grammar but never retained as elements.
type ArrayLit struct {
	Elements []Node
}

func (*ArrayLit) node() {}

// ObjectLit is an object literal built from key/value Property pairs.
type ObjectLit struct {
	Properties []*Property
}

func (*ObjectLit) node() {}

// Property is one key: value pair inside an ObjectLit. Key is always
// a string - the parser accepts identifier, string or numeric keys
// and normalizes all three to their string form.
type Property struct {
	Key   string
	Value Node
}

// Member is a '.'-access or '[...]'-access on Object. Computed is
// true for the bracket form, where Property is an expression rather
// than a fixed name.
type Member struct {
	Object   Node
	Property Node // *Literal{string} for '.', arbitrary Node for '[...]'
	Computed bool
}

func (*Member) node() {}

// Call is a function or filter invocation. Filter is non-empty when
// this call was written as '| name : a : b'; in that case Callee is
// nil and Args[0] is the piped input.
type Call struct {
	Callee Node
	Args   []Node
	Filter string
}

func (*Call) node() {}

// Assign is 'target = value'.
type Assign struct {
	Target Node
	Value  Node
}

func (*Assign) node() {}

// Unary is a prefix +, - or ! applied to Operand.
type Unary struct {
	Op      string
	Operand Node
}

func (*Unary) node() {}

// Binary is an arithmetic, equality or relational infix operator.
type Binary struct {
	Op          string
	Left, Right Node
}

func (*Binary) node() {}

// Logical is && or ||, kept distinct from Binary so the compiler can
// short-circuit instead of evaluating both sides.
type Logical struct {
	Op          string
	Left, Right Node
}

func (*Logical) node() {}

// Conditional is 'cond ? then : otherwise'.
type Conditional struct {
	Cond, Then, Else Node
}

func (*Conditional) node() {}
