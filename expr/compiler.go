package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/ajihyf/scopeql/scopeerr"
	"github.com/ajihyf/scopeql/values"
)

// Locals is the per-call local variable overlay. It is never
// auto-vivified by assignment.
type Locals map[string]interface{}

// Env is the scope-shaped environment a compiled Accessor reads and
// writes through. scope.Scope implements this interface; the expr
// package never imports scope directly so the dependency runs one
// way (scope -> expr), keeping the compiler layered beneath the
// scope/digest engine.
type Env interface {
	// Get resolves name, delegating to a parent environment the way
	// a non-isolated child scope delegates to its parent.
	Get(name string) (interface{}, bool)
	// GetOwn resolves name against this environment's own properties
	// only, with no delegation.
	GetOwn(name string) (interface{}, bool)
	// Set assigns name on this environment's own properties.
	Set(name string, value interface{})
	// Container returns the existing dict stored at name, or
	// allocates and stores a fresh one if absent or not a dict -
	// the auto-vivification primitive nested assignment paths use.
	Container(name string) *ordereddict.Dict
}

// Filter is the shape the filter registry exposes to the compiler.
// Kept as an interface here (rather than importing package filters)
// so filters can in turn depend on expr, aliasing this type, without
// a cycle.
type Filter interface {
	Call(input interface{}, args []interface{}) (interface{}, error)
	Stateful() bool
}

// FilterResolver looks up a named filter at compile and call time.
type FilterResolver interface {
	Lookup(name string) (Filter, bool)
}

// Accessor is a compiled, callable read expression.
type Accessor func(s Env, l Locals) (interface{}, error)

// Assignor is a compiled, callable write expression.
type Assignor func(s Env, l Locals, value interface{}) error

// Compiled bundles an expression's read/write closures with the
// classification flags the digest engine needs to optimise watches.
type Compiled struct {
	Source   string
	Eval     Accessor
	Assign   Assignor // nil if the expression is not an assignable target
	Constant bool
	OneTime  bool
	// Literal is true when the whole expression is a bare array or
	// object literal; it changes the one-time "defined" test.
	Literal bool
}

// Compile parses and compiles src into a Compiled expression. resolver
// may be nil, in which case any use of the filter pipe fails with a
// RegistrationError.
func Compile(src string, resolver FilterResolver) (*Compiled, error) {
	oneTime := false
	text := src
	if strings.HasPrefix(text, "::") {
		oneTime = true
		text = text[2:]
	}

	prog, err := Parse(text)
	if err != nil {
		return nil, scopeerr.Wrapf(err, "compiling %q", src)
	}

	c := &compiler{resolver: resolver}
	var root Node
	var evalFn Accessor
	if len(prog.Statements) == 1 {
		root = prog.Statements[0]
		evalFn, err = c.compileNode(root)
	} else {
		evalFn, err = c.compileProgram(prog)
	}
	if err != nil {
		return nil, err
	}

	result := &Compiled{
		Source:   src,
		Eval:     evalFn,
		OneTime:  oneTime,
		Constant: len(prog.Statements) == 1 && c.isConstant(root),
	}

	if len(prog.Statements) == 1 {
		switch root.(type) {
		case *ArrayLit, *ObjectLit:
			result.Literal = true
		}
		if assign, err := c.compileAssign(root); err == nil {
			result.Assign = assign
		}
	}

	return result, nil
}

type compiler struct {
	resolver FilterResolver
}

func (c *compiler) compileProgram(prog *Program) (Accessor, error) {
	fns := make([]Accessor, 0, len(prog.Statements))
	for _, stmt := range prog.Statements {
		fn, err := c.compileNode(stmt)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return func(s Env, l Locals) (interface{}, error) {
		var result interface{} = values.UndefinedValue
		for _, fn := range fns {
			v, err := fn(s, l)
			if err != nil {
				return nil, err
			}
			result = v
		}
		return result, nil
	}, nil
}

func (c *compiler) compileNode(n Node) (Accessor, error) {
	switch t := n.(type) {
	case *Literal:
		v := t.Value
		return func(Env, Locals) (interface{}, error) { return v, nil }, nil

	case *This:
		return func(s Env, l Locals) (interface{}, error) { return s, nil }, nil

	case *Identifier:
		name := t.Name
		return func(s Env, l Locals) (interface{}, error) {
			var v interface{}
			var ok bool
			if v, ok = l[name]; !ok {
				v, ok = s.Get(name)
			}
			if !ok || v == nil {
				return values.UndefinedValue, nil
			}
			if err := checkDereference(v); err != nil {
				return nil, err
			}
			return v, nil
		}, nil

	case *ArrayLit:
		elemFns := make([]Accessor, len(t.Elements))
		for i, el := range t.Elements {
			fn, err := c.compileNode(el)
			if err != nil {
				return nil, err
			}
			elemFns[i] = fn
		}
		return func(s Env, l Locals) (interface{}, error) {
			result := make([]interface{}, len(elemFns))
			for i, fn := range elemFns {
				v, err := fn(s, l)
				if err != nil {
					return nil, err
				}
				result[i] = v
			}
			return result, nil
		}, nil

	case *ObjectLit:
		type prop struct {
			key string
			fn  Accessor
		}
		props := make([]prop, len(t.Properties))
		for i, p := range t.Properties {
			fn, err := c.compileNode(p.Value)
			if err != nil {
				return nil, err
			}
			props[i] = prop{key: p.Key, fn: fn}
		}
		return func(s Env, l Locals) (interface{}, error) {
			result := ordereddict.NewDict()
			for _, p := range props {
				v, err := p.fn(s, l)
				if err != nil {
					return nil, err
				}
				result.Set(p.key, v)
			}
			return result, nil
		}, nil

	case *Member:
		return c.compileMember(t)

	case *Call:
		return c.compileCall(t)

	case *Assign:
		return c.compileAssignExpr(t)

	case *Unary:
		return c.compileUnary(t)

	case *Binary:
		return c.compileBinary(t)

	case *Logical:
		return c.compileLogical(t)

	case *Conditional:
		return c.compileConditional(t)
	}

	return nil, scopeerr.NewParseError(0, fmt.Sprintf("%T", n), "expression")
}

func (c *compiler) compileMember(t *Member) (Accessor, error) {
	objFn, err := c.compileNode(t.Object)
	if err != nil {
		return nil, err
	}

	if !t.Computed {
		key := t.Property.(*Literal).Value.(string)
		if err := checkIdentifier(key); err != nil {
			return nil, err
		}
		return func(s Env, l Locals) (interface{}, error) {
			obj, err := objFn(s, l)
			if err != nil {
				return nil, err
			}
			return getProperty(obj, key)
		}, nil
	}

	keyFn, err := c.compileNode(t.Property)
	if err != nil {
		return nil, err
	}
	return func(s Env, l Locals) (interface{}, error) {
		obj, err := objFn(s, l)
		if err != nil {
			return nil, err
		}
		keyVal, err := keyFn(s, l)
		if err != nil {
			return nil, err
		}
		key := toPropertyKey(keyVal)
		if err := checkIdentifier(key); err != nil {
			return nil, err
		}
		return getProperty(obj, key)
	}, nil
}

// getProperty implements "member access on nil short-circuits to nil"
// and enforces the dereference sandbox on the result.
func getProperty(obj interface{}, key string) (interface{}, error) {
	if values.IsNullOrUndefined(obj) {
		return values.UndefinedValue, nil
	}

	var result interface{}
	var present bool

	switch t := obj.(type) {
	case Env:
		result, present = t.Get(key)
	case *ordereddict.Dict:
		result, present = t.Get(key)
	case []interface{}:
		if idx, err := strconv.Atoi(key); err == nil && idx >= 0 && idx < len(t) {
			result, present = t[idx], true
		}
		if key == "length" {
			result, present = float64(len(t)), true
		}
	case map[string]interface{}:
		result, present = t[key]
	}

	if !present || result == nil {
		return values.UndefinedValue, nil
	}
	if err := checkDereference(result); err != nil {
		return nil, err
	}
	return result, nil
}

func toPropertyKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

func formatNumber(f float64) string {
	return values.FormatNumber(f)
}

func (c *compiler) compileCall(t *Call) (Accessor, error) {
	if t.Filter != "" {
		return c.compileFilterCall(t)
	}

	argFns := make([]Accessor, len(t.Args))
	for i, a := range t.Args {
		fn, err := c.compileNode(a)
		if err != nil {
			return nil, err
		}
		argFns[i] = fn
	}

	switch callee := t.Callee.(type) {
	case *Member:
		objFn, err := c.compileNode(callee.Object)
		if err != nil {
			return nil, err
		}
		var keyFn Accessor
		var fixedKey string
		if callee.Computed {
			keyFn, err = c.compileNode(callee.Property)
			if err != nil {
				return nil, err
			}
		} else {
			fixedKey = callee.Property.(*Literal).Value.(string)
			if err := checkIdentifier(fixedKey); err != nil {
				return nil, err
			}
		}
		return func(s Env, l Locals) (interface{}, error) {
			receiver, err := objFn(s, l)
			if err != nil {
				return nil, err
			}
			key := fixedKey
			if keyFn != nil {
				keyVal, err := keyFn(s, l)
				if err != nil {
					return nil, err
				}
				key = toPropertyKey(keyVal)
				if err := checkIdentifier(key); err != nil {
					return nil, err
				}
			}
			if err := checkInvocationName(key); err != nil {
				return nil, err
			}
			fn, err := getProperty(receiver, key)
			if err != nil {
				return nil, err
			}
			return invoke(fn, receiver, argFns, s, l)
		}, nil

	case *Identifier:
		name := callee.Name
		if err := checkInvocationName(name); err != nil {
			return nil, err
		}
		return func(s Env, l Locals) (interface{}, error) {
			var fn interface{}
			var receiver interface{}
			if v, ok := l[name]; ok {
				fn, receiver = v, Locals(l)
			} else if v, ok := s.Get(name); ok {
				fn, receiver = v, s
			} else {
				fn = values.UndefinedValue
			}
			return invoke(fn, receiver, argFns, s, l)
		}, nil

	default:
		calleeFn, err := c.compileNode(t.Callee)
		if err != nil {
			return nil, err
		}
		return func(s Env, l Locals) (interface{}, error) {
			fn, err := calleeFn(s, l)
			if err != nil {
				return nil, err
			}
			return invoke(fn, nil, argFns, s, l)
		}, nil
	}
}

func invoke(fn interface{}, receiver interface{}, argFns []Accessor, s Env, l Locals) (interface{}, error) {
	if values.IsNullOrUndefined(fn) {
		return values.UndefinedValue, nil
	}
	if err := checkCallable(fn); err != nil {
		return nil, err
	}
	callable, ok := fn.(values.Func)
	if !ok {
		return nil, scopeerr.NewSecurityError("value is not callable")
	}
	args := make([]interface{}, len(argFns))
	for i, fn := range argFns {
		v, err := fn(s, l)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return callable(receiver, args)
}

func (c *compiler) compileFilterCall(t *Call) (Accessor, error) {
	name := t.Filter
	argFns := make([]Accessor, len(t.Args))
	for i, a := range t.Args {
		fn, err := c.compileNode(a)
		if err != nil {
			return nil, err
		}
		argFns[i] = fn
	}
	resolver := c.resolver
	return func(s Env, l Locals) (interface{}, error) {
		if resolver == nil {
			return nil, scopeerr.NewRegistrationError("no filter registry configured")
		}
		filter, ok := resolver.Lookup(name)
		if !ok {
			return nil, scopeerr.NewRegistrationError("unknown filter %q", name)
		}
		input, err := argFns[0](s, l)
		if err != nil {
			return nil, err
		}
		rest := make([]interface{}, len(argFns)-1)
		for i, fn := range argFns[1:] {
			v, err := fn(s, l)
			if err != nil {
				return nil, err
			}
			rest[i] = v
		}
		return filter.Call(input, rest)
	}, nil
}

func (c *compiler) compileUnary(t *Unary) (Accessor, error) {
	operandFn, err := c.compileNode(t.Operand)
	if err != nil {
		return nil, err
	}
	op := t.Op
	return func(s Env, l Locals) (interface{}, error) {
		v, err := operandFn(s, l)
		if err != nil {
			return nil, err
		}
		switch op {
		case "!":
			return !values.Truthy(v), nil
		case "-":
			n, _ := values.AsNumber(v)
			return -n, nil
		case "+":
			n, _ := values.AsNumber(v)
			return n, nil
		}
		return values.UndefinedValue, nil
	}, nil
}

func (c *compiler) compileBinary(t *Binary) (Accessor, error) {
	leftFn, err := c.compileNode(t.Left)
	if err != nil {
		return nil, err
	}
	rightFn, err := c.compileNode(t.Right)
	if err != nil {
		return nil, err
	}
	op := t.Op
	return func(s Env, l Locals) (interface{}, error) {
		left, err := leftFn(s, l)
		if err != nil {
			return nil, err
		}
		right, err := rightFn(s, l)
		if err != nil {
			return nil, err
		}
		return evalBinary(op, left, right)
	}, nil
}

func evalBinary(op string, left, right interface{}) (interface{}, error) {
	switch op {
	case "+":
		if isStringLike(left) || isStringLike(right) {
			return toDisplayString(left) + toDisplayString(right), nil
		}
		ln, _ := values.AsNumber(left)
		rn, _ := values.AsNumber(right)
		return ln + rn, nil

	case "-":
		ln, _ := values.AsNumber(left)
		rn, _ := values.AsNumber(right)
		return ln - rn, nil

	case "*":
		ln, _ := values.AsNumber(left)
		rn, _ := values.AsNumber(right)
		return ln * rn, nil

	case "/":
		ln, _ := values.AsNumber(left)
		rn, _ := values.AsNumber(right)
		return ln / rn, nil

	case "%":
		ln, _ := values.AsNumber(left)
		rn, _ := values.AsNumber(right)
		return math.Mod(ln, rn), nil

	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "===":
		return strictEqual(left, right), nil
	case "!==":
		return !strictEqual(left, right), nil

	case "<", ">", "<=", ">=":
		return compareRelational(op, left, right), nil
	}
	return values.UndefinedValue, nil
}

func isStringLike(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func toDisplayString(v interface{}) string {
	return values.ToDisplayString(v)
}

func strictEqual(a, b interface{}) bool {
	return values.Identical(a, b)
}

func looseEqual(a, b interface{}) bool {
	aNull := values.IsNullOrUndefined(a)
	bNull := values.IsNullOrUndefined(b)
	if aNull || bNull {
		return aNull && bNull
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return as == bs
	}
	an, aok := values.AsNumber(a)
	bn, bok := values.AsNumber(b)
	if aok && bok {
		return an == bn
	}
	if aIsStr {
		if n, err := strconv.ParseFloat(as, 64); err == nil {
			an = n
			aok = true
		}
	}
	if bIsStr {
		if n, err := strconv.ParseFloat(bs, 64); err == nil {
			bn = n
			bok = true
		}
	}
	if aok && bok {
		return an == bn
	}
	return values.Identical(a, b)
}

func compareRelational(op string, a, b interface{}) bool {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch op {
		case "<":
			return as < bs
		case ">":
			return as > bs
		case "<=":
			return as <= bs
		case ">=":
			return as >= bs
		}
	}
	an, _ := values.AsNumber(a)
	bn, _ := values.AsNumber(b)
	switch op {
	case "<":
		return an < bn
	case ">":
		return an > bn
	case "<=":
		return an <= bn
	case ">=":
		return an >= bn
	}
	return false
}

func (c *compiler) compileLogical(t *Logical) (Accessor, error) {
	leftFn, err := c.compileNode(t.Left)
	if err != nil {
		return nil, err
	}
	rightFn, err := c.compileNode(t.Right)
	if err != nil {
		return nil, err
	}
	isOr := t.Op == "||"
	return func(s Env, l Locals) (interface{}, error) {
		left, err := leftFn(s, l)
		if err != nil {
			return nil, err
		}
		if isOr && values.Truthy(left) {
			return left, nil
		}
		if !isOr && !values.Truthy(left) {
			return left, nil
		}
		return rightFn(s, l)
	}, nil
}

func (c *compiler) compileConditional(t *Conditional) (Accessor, error) {
	condFn, err := c.compileNode(t.Cond)
	if err != nil {
		return nil, err
	}
	thenFn, err := c.compileNode(t.Then)
	if err != nil {
		return nil, err
	}
	elseFn, err := c.compileNode(t.Else)
	if err != nil {
		return nil, err
	}
	return func(s Env, l Locals) (interface{}, error) {
		cond, err := condFn(s, l)
		if err != nil {
			return nil, err
		}
		if values.Truthy(cond) {
			return thenFn(s, l)
		}
		return elseFn(s, l)
	}, nil
}

func (c *compiler) compileAssignExpr(t *Assign) (Accessor, error) {
	assign, err := c.compileAssign(t.Target)
	if err != nil {
		return nil, err
	}
	valueFn, err := c.compileNode(t.Value)
	if err != nil {
		return nil, err
	}
	return func(s Env, l Locals) (interface{}, error) {
		v, err := valueFn(s, l)
		if err != nil {
			return nil, err
		}
		if err := assign(s, l, v); err != nil {
			return nil, err
		}
		return v, nil
	}, nil
}

// compileAssign builds the write path for an assignable target.
// Intermediate containers are auto-vivified on s only; a bare
// identifier target always writes through to the scope, since
// locals are an immutable overlay supplied per-call, not an
// assignment destination.
func (c *compiler) compileAssign(target Node) (Assignor, error) {
	switch t := target.(type) {
	case *Identifier:
		name := t.Name
		if err := checkIdentifier(name); err != nil {
			return nil, err
		}
		return func(s Env, l Locals, value interface{}) error {
			s.Set(name, value)
			return nil
		}, nil

	case *Member:
		containerFn, err := c.compileContainerPath(t.Object)
		if err != nil {
			return nil, err
		}
		if !t.Computed {
			key := t.Property.(*Literal).Value.(string)
			if err := checkIdentifier(key); err != nil {
				return nil, err
			}
			return func(s Env, l Locals, value interface{}) error {
				container, err := containerFn(s, l)
				if err != nil {
					return err
				}
				container.Set(key, value)
				return nil
			}, nil
		}
		keyFn, err := c.compileNode(t.Property)
		if err != nil {
			return nil, err
		}
		return func(s Env, l Locals, value interface{}) error {
			container, err := containerFn(s, l)
			if err != nil {
				return err
			}
			keyVal, err := keyFn(s, l)
			if err != nil {
				return err
			}
			key := toPropertyKey(keyVal)
			if err := checkIdentifier(key); err != nil {
				return err
			}
			container.Set(key, value)
			return nil
		}, nil
	}

	return nil, fmt.Errorf("expression is not assignable")
}

// compileContainerPath returns a function that resolves (auto-
// vivifying as needed, always on s) the container object that an
// assignment's final key will be set on.
func (c *compiler) compileContainerPath(node Node) (func(s Env, l Locals) (*ordereddict.Dict, error), error) {
	switch t := node.(type) {
	case *Identifier:
		name := t.Name
		if err := checkIdentifier(name); err != nil {
			return nil, err
		}
		return func(s Env, l Locals) (*ordereddict.Dict, error) {
			return s.Container(name), nil
		}, nil

	case *Member:
		parentFn, err := c.compileContainerPath(t.Object)
		if err != nil {
			return nil, err
		}
		if !t.Computed {
			key := t.Property.(*Literal).Value.(string)
			if err := checkIdentifier(key); err != nil {
				return nil, err
			}
			return func(s Env, l Locals) (*ordereddict.Dict, error) {
				parent, err := parentFn(s, l)
				if err != nil {
					return nil, err
				}
				return containerAt(parent, key), nil
			}, nil
		}
		keyFn, err := c.compileNode(t.Property)
		if err != nil {
			return nil, err
		}
		return func(s Env, l Locals) (*ordereddict.Dict, error) {
			parent, err := parentFn(s, l)
			if err != nil {
				return nil, err
			}
			keyVal, err := keyFn(s, l)
			if err != nil {
				return nil, err
			}
			key := toPropertyKey(keyVal)
			if err := checkIdentifier(key); err != nil {
				return nil, err
			}
			return containerAt(parent, key), nil
		}, nil
	}
	return nil, fmt.Errorf("invalid assignment path")
}

func containerAt(parent *ordereddict.Dict, key string) *ordereddict.Dict {
	existing, pres := parent.Get(key)
	if pres {
		if dict, ok := existing.(*ordereddict.Dict); ok {
			return dict
		}
	}
	fresh := ordereddict.NewDict()
	parent.Set(key, fresh)
	return fresh
}

// isConstant reports whether n can be fully folded at compile time:
// literals, and compound expressions built only from constant
// sub-expressions and non-stateful filter calls.
func (c *compiler) isConstant(n Node) bool {
	switch t := n.(type) {
	case *Literal:
		return true
	case *ArrayLit:
		for _, el := range t.Elements {
			if !c.isConstant(el) {
				return false
			}
		}
		return true
	case *ObjectLit:
		for _, p := range t.Properties {
			if !c.isConstant(p.Value) {
				return false
			}
		}
		return true
	case *Unary:
		return c.isConstant(t.Operand)
	case *Binary:
		return c.isConstant(t.Left) && c.isConstant(t.Right)
	case *Logical:
		return c.isConstant(t.Left) && c.isConstant(t.Right)
	case *Conditional:
		return c.isConstant(t.Cond) && c.isConstant(t.Then) && c.isConstant(t.Else)
	case *Call:
		if t.Filter == "" {
			return false
		}
		if c.resolver == nil {
			return false
		}
		filter, ok := c.resolver.Lookup(t.Filter)
		if !ok || filter.Stateful() {
			return false
		}
		for _, a := range t.Args {
			if !c.isConstant(a) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsDefined implements the one-time watch "stabilised" test: for a
// literal array/object, every element must be defined; otherwise the
// value itself must not be undefined.
func IsDefined(v interface{}, literal bool) bool {
	if !literal {
		return !values.IsUndefined(v)
	}
	switch t := v.(type) {
	case []interface{}:
		for _, el := range t {
			if values.IsUndefined(el) {
				return false
			}
		}
		return true
	case *ordereddict.Dict:
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			if values.IsUndefined(val) {
				return false
			}
		}
		return true
	default:
		return !values.IsUndefined(v)
	}
}
