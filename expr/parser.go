package expr

import (
	"fmt"
	"strings"

	"github.com/alecthomas/repr"
	"github.com/ajihyf/scopeql/scopeerr"
	"github.com/ajihyf/scopeql/values"
)

// Parse tokenizes and parses src into a Program. It is the entry
// point the compiler (and the expression facade) calls.
func Parse(src string) (*Program, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	prog, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != TokEOF {
		return nil, p.errorf("end of expression", p.peek())
	}
	return prog, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(expected string, got Token) error {
	return scopeerr.NewParseError(got.Pos, got.String(), expected)
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return (t.Kind == TokOperator || t.Kind == TokPunct) && t.Text == text
}

func (p *parser) expectPunct(text string) error {
	if !p.isOp(text) {
		return p.errorf(fmt.Sprintf("%q", text), p.peek())
	}
	p.advance()
	return nil
}

// parseProgram := filter (';' filter)* ';'?
func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{}
	node, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	prog.Statements = append(prog.Statements, node)

	for p.isOp(";") {
		p.advance()
		if p.peek().Kind == TokEOF {
			break
		}
		node, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, node)
	}
	return prog, nil
}

// parseFilter := assignment ('|' identifier (':' assignment)*)*
func (p *parser) parseFilter() (Node, error) {
	node, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	for p.isOp("|") {
		p.advance()
		nameTok := p.peek()
		if nameTok.Kind != TokIdentifier {
			return nil, p.errorf("filter name", nameTok)
		}
		p.advance()

		call := &Call{Filter: nameTok.Text, Args: []Node{node}}
		for p.isOp(":") {
			p.advance()
			arg, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		node = call
	}
	return node, nil
}

// parseAssignment := ternary ('=' ternary)?
func (p *parser) parseAssignment() (Node, error) {
	left, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.isOp("=") {
		p.advance()
		right, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &Assign{Target: left, Value: right}, nil
	}
	return left, nil
}

// parseTernary := logicalOr ('?' assignment ':' assignment)?
func (p *parser) parseTernary() (Node, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.isOp("?") {
		p.advance()
		thenNode, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		elseNode, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return &Conditional{Cond: cond, Then: thenNode, Else: elseNode}, nil
	}
	return cond, nil
}

func (p *parser) parseLogicalOr() (Node, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") {
		p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseLogicalAnd() (Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

var equalityOps = []string{"===", "!==", "==", "!="}

func (p *parser) parseEquality() (Node, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchAnyOp(equalityOps)
		if !ok {
			return left, nil
		}
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

var relationalOps = []string{"<=", ">=", "<", ">"}

func (p *parser) parseRelational() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchAnyOp(relationalOps)
		if !ok {
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchAnyOp([]string{"+", "-"})
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchAnyOp([]string{"*", "/", "%"})
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) matchAnyOp(ops []string) (string, bool) {
	t := p.peek()
	if t.Kind != TokOperator {
		return "", false
	}
	for _, op := range ops {
		if t.Text == op {
			p.advance()
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().Kind == TokOperator && (p.peek().Text == "+" || p.peek().Text == "-" || p.peek().Text == "!") {
		op := p.advance().Text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Operand: operand}, nil
	}
	return p.parsePrimary()
}

var languageConstants = map[string]interface{}{
	"null":      values.NullValue,
	"true":      true,
	"false":     false,
	"undefined": values.UndefinedValue,
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()

	switch {
	case p.isOp("("):
		p.advance()
		inner, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return p.parseSuffixes(inner)

	case p.isOp("["):
		p.advance()
		elements, err := p.parseArrayLit()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return p.parseSuffixes(&ArrayLit{Elements: elements})

	case p.isOp("{"):
		p.advance()
		props, err := p.parseObjectLit()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return p.parseSuffixes(&ObjectLit{Properties: props})

	case t.Kind == TokIdentifier:
		p.advance()
		var node Node
		switch t.Text {
		case "this":
			node = &This{}
		case "null", "true", "false", "undefined":
			node = &Literal{Value: languageConstants[t.Text]}
		default:
			node = &Identifier{Name: t.Text}
		}
		return p.parseSuffixes(node)

	case t.Kind == TokNumber || t.Kind == TokString:
		p.advance()
		return p.parseSuffixes(&Literal{Value: t.Value})
	}

	return nil, p.errorf("expression", t)
}

// parseSuffixes := ('.' identifier | '[' filter ']' | '(' args? ')')*
func (p *parser) parseSuffixes(node Node) (Node, error) {
	for {
		switch {
		case p.isOp("."):
			p.advance()
			nameTok := p.peek()
			if nameTok.Kind != TokIdentifier {
				return nil, p.errorf("property name", nameTok)
			}
			p.advance()
			node = &Member{Object: node, Property: &Literal{Value: nameTok.Text}, Computed: false}

		case p.isOp("["):
			p.advance()
			index, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			node = &Member{Object: node, Property: index, Computed: true}

		case p.isOp("("):
			p.advance()
			var args []Node
			if !p.isOp(")") {
				for {
					arg, err := p.parseAssignment()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if !p.isOp(",") {
						break
					}
					p.advance()
				}
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			node = &Call{Callee: node, Args: args}

		default:
			return node, nil
		}
	}
}

// parseArrayLit := (assignment (',' assignment)* ','?)?
func (p *parser) parseArrayLit() ([]Node, error) {
	var elements []Node
	if p.isOp("]") {
		return elements, nil
	}
	for {
		if p.isOp("]") {
			break // trailing comma
		}
		el, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	return elements, nil
}

// parseObjectLit := (property (',' property)* ','?)?
// property := (identifier | string | number) ':' assignment
func (p *parser) parseObjectLit() ([]*Property, error) {
	var props []*Property
	if p.isOp("}") {
		return props, nil
	}
	for {
		if p.isOp("}") {
			break // trailing comma
		}
		keyTok := p.peek()
		var key string
		switch keyTok.Kind {
		case TokIdentifier:
			key = keyTok.Text
		case TokString:
			key = keyTok.Value.(string)
		case TokNumber:
			key = keyTok.Text
		default:
			return nil, p.errorf("object key", keyTok)
		}
		p.advance()
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		value, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		props = append(props, &Property{Key: key, Value: value})
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	return props, nil
}

// explain renders a Node using alecthomas/repr, for ad hoc debugging.
// ParseError messages and the snapshot tests do not use it.
func explain(n Node) string {
	return repr.String(n, repr.Indent("  "))
}

// Dump renders a Node as a stable, hand-formatted s-expression. Unlike
// explain (which leans on alecthomas/repr's Go-literal dump), Dump's
// format is owned by this package so the goldie-backed compiler
// snapshot tests do not depend on another module's output format.
func Dump(n Node) string {
	var b strings.Builder
	dumpNode(&b, n)
	return b.String()
}

func dumpNode(b *strings.Builder, n Node) {
	switch t := n.(type) {
	case nil:
		b.WriteString("nil")
	case *Program:
		b.WriteString("(Program")
		for _, s := range t.Statements {
			b.WriteString(" ")
			dumpNode(b, s)
		}
		b.WriteString(")")
	case *Literal:
		fmt.Fprintf(b, "(Literal %v)", t.Value)
	case *Identifier:
		fmt.Fprintf(b, "(Identifier %s)", t.Name)
	case *This:
		b.WriteString("(This)")
	case *ArrayLit:
		b.WriteString("(Array")
		for _, e := range t.Elements {
			b.WriteString(" ")
			dumpNode(b, e)
		}
		b.WriteString(")")
	case *ObjectLit:
		b.WriteString("(Object")
		for _, p := range t.Properties {
			fmt.Fprintf(b, " (%s ", p.Key)
			dumpNode(b, p.Value)
			b.WriteString(")")
		}
		b.WriteString(")")
	case *Member:
		b.WriteString("(Member ")
		dumpNode(b, t.Object)
		b.WriteString(" ")
		dumpNode(b, t.Property)
		if t.Computed {
			b.WriteString(" computed")
		}
		b.WriteString(")")
	case *Call:
		if t.Filter != "" {
			fmt.Fprintf(b, "(Filter %s", t.Filter)
		} else {
			b.WriteString("(Call ")
			dumpNode(b, t.Callee)
		}
		for _, a := range t.Args {
			b.WriteString(" ")
			dumpNode(b, a)
		}
		b.WriteString(")")
	case *Assign:
		b.WriteString("(Assign ")
		dumpNode(b, t.Target)
		b.WriteString(" ")
		dumpNode(b, t.Value)
		b.WriteString(")")
	case *Unary:
		fmt.Fprintf(b, "(Unary %s ", t.Op)
		dumpNode(b, t.Operand)
		b.WriteString(")")
	case *Binary:
		fmt.Fprintf(b, "(Binary %s ", t.Op)
		dumpNode(b, t.Left)
		b.WriteString(" ")
		dumpNode(b, t.Right)
		b.WriteString(")")
	case *Logical:
		fmt.Fprintf(b, "(Logical %s ", t.Op)
		dumpNode(b, t.Left)
		b.WriteString(" ")
		dumpNode(b, t.Right)
		b.WriteString(")")
	case *Conditional:
		b.WriteString("(Conditional ")
		dumpNode(b, t.Cond)
		b.WriteString(" ")
		dumpNode(b, t.Then)
		b.WriteString(" ")
		dumpNode(b, t.Else)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "(? %T)", n)
	}
}
