// File: internal/xacro/eval.go
// Description: The ${...} expression language. A small recursive-descent
// evaluator over numbers, strings and booleans with Python-like formatting,
// enough for the arithmetic and conditions found in robot descriptions.

package xacro

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var ErrExpression = errors.New("invalid expression")

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
)

type value struct {
	kind valueKind
	s    string
	i    int64
	f    float64
	b    bool
}

func stringValue(s string) value { return value{kind: kindString, s: s} }
func intValue(i int64) value     { return value{kind: kindInt, i: i} }
func floatValue(f float64) value { return value{kind: kindFloat, f: f} }
func boolValue(b bool) value     { return value{kind: kindBool, b: b} }

// String formats a value the way the text ends up in the document.
func (v value) String() string {
	switch v.kind {
	case kindInt:
		return strconv.FormatInt(v.i, 10)
	case kindFloat:
		return formatFloat(v.f)
	case kindBool:
		if v.b {
			return "True"
		}
		return "False"
	default:
		return v.s
	}
}

func (v value) isNumber() bool { return v.kind == kindInt || v.kind == kindFloat }

// numeric returns booleans as the ints 0 and 1 and leaves other values alone.
func (v value) numeric() value {
	if v.kind != kindBool {
		return v
	}
	if v.b {
		return intValue(1)
	}
	return intValue(0)
}

func (v value) float() float64 {
	switch v.kind {
	case kindInt:
		return float64(v.i)
	case kindBool:
		if v.b {
			return 1
		}
		return 0
	default:
		return v.f
	}
}

// truthy interprets a value as a condition.
func (v value) truthy() (bool, error) {
	switch v.kind {
	case kindBool:
		return v.b, nil
	case kindInt:
		return v.i != 0, nil
	case kindFloat:
		return v.f != 0, nil
	}
	switch strings.TrimSpace(strings.ToLower(v.s)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrExpression, v.s)
}

// formatFloat mirrors Python's repr(float): the shortest round-tripping
// digits, positional for decimal exponents in [-4, 16) and scientific
// otherwise. Positional integral values keep a trailing ".0".
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err == nil && (exp < -4 || exp >= 16) {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// literalValue turns substituted property text into a typed value.
func literalValue(s string) value {
	t := strings.TrimSpace(s)
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return intValue(i)
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !strings.ContainsAny(strings.ToLower(t), "nix") {
		return floatValue(f)
	}
	return stringValue(s)
}

// -- Tokenizer --

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var out []token
	rs := []rune(expr)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				i++
				if i < len(rs) && (rs[i] == '+' || rs[i] == '-') {
					i++
				}
				for i < len(rs) && unicode.IsDigit(rs[i]) {
					i++
				}
			}
			out = append(out, token{tokNumber, string(rs[start:i])})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			out = append(out, token{tokIdent, string(rs[start:i])})
		case r == '\'' || r == '"':
			quote := r
			i++
			start := i
			for i < len(rs) && rs[i] != quote {
				i++
			}
			if i >= len(rs) {
				return nil, fmt.Errorf("%w: unterminated string in %q", ErrExpression, expr)
			}
			out = append(out, token{tokString, string(rs[start:i])})
			i++
		default:
			if i+1 < len(rs) {
				two := string(rs[i : i+2])
				switch two {
				case "==", "!=", "<=", ">=", "**":
					out = append(out, token{tokOp, two})
					i += 2
					continue
				}
			}
			if strings.ContainsRune("+-*/%()<>,", r) {
				out = append(out, token{tokOp, string(r)})
				i++
				continue
			}
			return nil, fmt.Errorf("%w: unexpected %q in %q", ErrExpression, r, expr)
		}
	}
	return append(out, token{kind: tokEOF}), nil
}

// -- Parser / evaluator --

// lookupFunc resolves a bare identifier to a value.
type lookupFunc func(name string) (value, error)

type parser struct {
	toks   []token
	pos    int
	expr   string
	lookup lookupFunc
}

// evalExpression evaluates one ${...} body.
func evalExpression(expr string, lookup lookupFunc) (value, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return value{}, err
	}
	p := &parser{toks: toks, expr: expr, lookup: lookup}
	v, err := p.parseOr()
	if err != nil {
		return value{}, err
	}
	if p.peek().kind != tokEOF {
		return value{}, fmt.Errorf("%w: trailing %q in %q", ErrExpression, p.peek().text, expr)
	}
	return v, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (value, error) {
	left, err := p.parseAnd()
	if err != nil {
		return value{}, err
	}
	for p.isKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return value{}, err
		}
		l, err := left.truthy()
		if err != nil {
			return value{}, err
		}
		r, err := right.truthy()
		if err != nil {
			return value{}, err
		}
		left = boolValue(l || r)
	}
	return left, nil
}

func (p *parser) parseAnd() (value, error) {
	left, err := p.parseNot()
	if err != nil {
		return value{}, err
	}
	for p.isKeyword("and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return value{}, err
		}
		l, err := left.truthy()
		if err != nil {
			return value{}, err
		}
		r, err := right.truthy()
		if err != nil {
			return value{}, err
		}
		left = boolValue(l && r)
	}
	return left, nil
}

func (p *parser) parseNot() (value, error) {
	if p.isKeyword("not") {
		p.next()
		v, err := p.parseNot()
		if err != nil {
			return value{}, err
		}
		b, err := v.truthy()
		if err != nil {
			return value{}, err
		}
		return boolValue(!b), nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (value, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return value{}, err
	}
	if !p.isOp("==", "!=", "<", ">", "<=", ">=") {
		return left, nil
	}
	op := p.next().text
	right, err := p.parseAdditive()
	if err != nil {
		return value{}, err
	}
	return compare(op, left, right)
}

func compare(op string, l, r value) (value, error) {
	l, r = l.numeric(), r.numeric()
	if l.isNumber() && r.isNumber() {
		a, b := l.float(), r.float()
		switch op {
		case "==":
			return boolValue(a == b), nil
		case "!=":
			return boolValue(a != b), nil
		case "<":
			return boolValue(a < b), nil
		case ">":
			return boolValue(a > b), nil
		case "<=":
			return boolValue(a <= b), nil
		default:
			return boolValue(a >= b), nil
		}
	}
	a, b := l.String(), r.String()
	switch op {
	case "==":
		return boolValue(a == b), nil
	case "!=":
		return boolValue(a != b), nil
	case "<":
		return boolValue(a < b), nil
	case ">":
		return boolValue(a > b), nil
	case "<=":
		return boolValue(a <= b), nil
	default:
		return boolValue(a >= b), nil
	}
}

func (p *parser) parseAdditive() (value, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return value{}, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return value{}, err
		}
		if left, err = arith(op, left, right); err != nil {
			return value{}, err
		}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (value, error) {
	left, err := p.parseUnary()
	if err != nil {
		return value{}, err
	}
	for p.isOp("*", "/", "%") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return value{}, err
		}
		if left, err = arith(op, left, right); err != nil {
			return value{}, err
		}
	}
	return left, nil
}

func (p *parser) parseUnary() (value, error) {
	if p.isOp("-", "+") {
		op := p.next().text
		v, err := p.parseUnary()
		if err != nil {
			return value{}, err
		}
		v = v.numeric()
		if !v.isNumber() {
			return value{}, fmt.Errorf("%w: unary %s on %q", ErrExpression, op, v.String())
		}
		if op == "+" {
			return v, nil
		}
		if v.kind == kindInt {
			return intValue(-v.i), nil
		}
		return floatValue(-v.f), nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (value, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return value{}, err
	}
	if p.isOp("**") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return value{}, err
		}
		return arith("**", base, exp)
	}
	return base, nil
}

func arith(op string, l, r value) (value, error) {
	if op == "+" && l.kind == kindString && r.kind == kindString {
		return stringValue(l.s + r.s), nil
	}
	l, r = l.numeric(), r.numeric()
	if !l.isNumber() || !r.isNumber() {
		return value{}, fmt.Errorf("%w: cannot apply %s to %q and %q", ErrExpression, op, l.String(), r.String())
	}
	if l.kind == kindInt && r.kind == kindInt {
		switch op {
		case "+":
			return intValue(l.i + r.i), nil
		case "-":
			return intValue(l.i - r.i), nil
		case "*":
			return intValue(l.i * r.i), nil
		case "%":
			if r.i == 0 {
				return value{}, fmt.Errorf("%w: modulo by zero", ErrExpression)
			}
			m := l.i % r.i
			if m != 0 && (m < 0) != (r.i < 0) {
				m += r.i
			}
			return intValue(m), nil
		case "**":
			if r.i >= 0 {
				return intValue(int64(math.Pow(float64(l.i), float64(r.i)))), nil
			}
		}
	}
	a, b := l.float(), r.float()
	switch op {
	case "+":
		return floatValue(a + b), nil
	case "-":
		return floatValue(a - b), nil
	case "*":
		return floatValue(a * b), nil
	case "/":
		if b == 0 {
			return value{}, fmt.Errorf("%w: division by zero", ErrExpression)
		}
		return floatValue(a / b), nil
	case "%":
		if b == 0 {
			return value{}, fmt.Errorf("%w: modulo by zero", ErrExpression)
		}
		// The result takes the sign of the divisor.
		m := math.Mod(a, b)
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return floatValue(m), nil
	default:
		return floatValue(math.Pow(a, b)), nil
	}
}

var functions = map[string]func(float64) float64{
	"radians": func(x float64) float64 { return x * math.Pi / 180 },
	"degrees": func(x float64) float64 { return x * 180 / math.Pi },
	"sin":     math.Sin,
	"cos":     math.Cos,
	"tan":     math.Tan,
	"asin":    math.Asin,
	"acos":    math.Acos,
	"atan":    math.Atan,
	"sqrt":    math.Sqrt,
	"fabs":    math.Abs,
	"abs":     math.Abs,
	"float":   func(x float64) float64 { return x },
}

func (p *parser) parsePrimary() (value, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		if !strings.ContainsAny(t.text, ".eE") {
			i, err := strconv.ParseInt(t.text, 10, 64)
			if err == nil {
				return intValue(i), nil
			}
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return value{}, fmt.Errorf("%w: bad number %q", ErrExpression, t.text)
		}
		return floatValue(f), nil
	case tokString:
		return stringValue(t.text), nil
	case tokOp:
		if t.text == "(" {
			v, err := p.parseOr()
			if err != nil {
				return value{}, err
			}
			if !p.isOp(")") {
				return value{}, fmt.Errorf("%w: missing ')' in %q", ErrExpression, p.expr)
			}
			p.next()
			return v, nil
		}
	case tokIdent:
		switch t.text {
		case "True", "true":
			return boolValue(true), nil
		case "False", "false":
			return boolValue(false), nil
		case "pi":
			return floatValue(math.Pi), nil
		}
		if p.isOp("(") {
			return p.parseCall(t.text)
		}
		return p.lookup(t.text)
	}
	return value{}, fmt.Errorf("%w: unexpected %q in %q", ErrExpression, t.text, p.expr)
}

func (p *parser) parseCall(name string) (value, error) {
	p.next() // (
	arg, err := p.parseOr()
	if err != nil {
		return value{}, err
	}
	if !p.isOp(")") {
		return value{}, fmt.Errorf("%w: %s() takes exactly one argument", ErrExpression, name)
	}
	p.next()

	if name != "str" {
		arg = arg.numeric()
	}
	switch name {
	case "int":
		if arg.kind == kindString {
			arg = literalValue(arg.s)
		}
		if !arg.isNumber() {
			return value{}, fmt.Errorf("%w: int(%q)", ErrExpression, arg.String())
		}
		return intValue(int64(arg.float())), nil
	case "str":
		return stringValue(arg.String()), nil
	case "abs":
		if arg.kind == kindInt {
			if arg.i < 0 {
				return intValue(-arg.i), nil
			}
			return arg, nil
		}
	}
	fn, ok := functions[name]
	if !ok {
		return value{}, fmt.Errorf("%w: unknown function %q", ErrExpression, name)
	}
	if arg.kind == kindString {
		arg = literalValue(arg.s)
	}
	if !arg.isNumber() {
		return value{}, fmt.Errorf("%w: %s(%q)", ErrExpression, name, arg.String())
	}
	return floatValue(fn(arg.float())), nil
}
