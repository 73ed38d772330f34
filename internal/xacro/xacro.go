// File: internal/xacro/xacro.go
// Description: Expands parametric robot descriptions (*.urdf.xacro) into
// plain URDF documents. The native engine walks the etree document in order,
// handling properties, args, macros, includes and conditionals, and
// substituting ${...} expressions and $(...) arguments in text and attributes.

package xacro

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// Namespace is the xacro XML namespace URI.
const Namespace = "http://www.ros.org/wiki/xacro"

var (
	ErrUndefinedProperty = errors.New("undefined property")
	ErrUndefinedMacro    = errors.New("undefined macro")
	ErrUndefinedArg      = errors.New("undefined substitution argument")
	ErrIncludeCycle      = errors.New("include cycle")
	ErrMalformed         = errors.New("malformed xacro document")
)

// Expander turns a template file into a description document.
type Expander interface {
	ExpandFile(ctx context.Context, path string, args map[string]string) (string, error)
}

// PackageFinder resolves $(find pkg).
type PackageFinder interface {
	ShareDirectory(pkg string) (string, error)
}

// Engine is the native etree-backed Expander. It is safe for concurrent use;
// every ExpandFile call works on its own state.
type Engine struct {
	finder PackageFinder
	logger *zap.Logger
}

// NewEngine creates a native engine. finder may be nil, in which case
// $(find ...) fails.
func NewEngine(finder PackageFinder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{finder: finder, logger: logger.Named("xacro")}
}

// ExpandFile expands the template at path. args override xacro:arg defaults.
func (e *Engine) ExpandFile(ctx context.Context, path string, args map[string]string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	doc, err := readDocument(abs)
	if err != nil {
		return "", err
	}

	run := &expansion{
		ctx:    ctx,
		engine: e,
		args:   make(map[string]string, len(args)),
		files:  []string{abs},
	}
	for k, v := range args {
		run.args[k] = v
	}

	root, global := doc.Root(), newScope(nil)
	if err := run.processChildren(root, global); err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	if err := run.processAttributes(root, global); err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	stripNamespace(root)

	e.logger.Debug("Expanded description", zap.String("path", abs), zap.Int("includes", run.includes))
	return serialize(doc)
}

func readDocument(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s has no root element", ErrMalformed, path)
	}
	return doc, nil
}

// serialize writes the document with a fresh XML declaration in place of
// whatever the template carried.
func serialize(doc *etree.Document) (string, error) {
	for _, tok := range append([]etree.Token(nil), doc.Child...) {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			doc.RemoveChild(pi)
		}
	}
	doc.InsertChildAt(0, &etree.ProcInst{Target: "xml", Inst: `version="1.0"`})
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize description: %w", err)
	}
	return out, nil
}

func stripNamespace(root *etree.Element) {
	for _, a := range append([]etree.Attr(nil), root.Attr...) {
		if a.Space == "xmlns" && a.Value == Namespace {
			root.RemoveAttr(a.FullKey())
		}
	}
}

func isXacro(el *etree.Element) bool {
	if el.Space == "xacro" {
		return true
	}
	return el.Space != "" && el.NamespaceURI() == Namespace
}

// -- Scopes --

type property struct {
	raw        string
	value      *value
	block      []*etree.Element
	evaluating bool
}

type macro struct {
	name   string
	params []macroParam
	body   *etree.Element
}

type macroParam struct {
	name       string
	block      bool
	hasDefault bool
	def        string
	fromParent bool
}

type scope struct {
	parent *scope
	props  map[string]*property
	macros map[string]*macro
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, props: map[string]*property{}, macros: map[string]*macro{}}
}

func (s *scope) root() *scope {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

func (s *scope) findProperty(name string) (*property, *scope) {
	for cur := s; cur != nil; cur = cur.parent {
		if p, ok := cur.props[name]; ok {
			return p, cur
		}
	}
	return nil, nil
}

func (s *scope) findMacro(name string) *macro {
	for cur := s; cur != nil; cur = cur.parent {
		if m, ok := cur.macros[name]; ok {
			return m
		}
	}
	return nil
}

// -- Expansion state --

type expansion struct {
	ctx      context.Context
	engine   *Engine
	args     map[string]string
	files    []string
	includes int
	depth    int
}

const maxMacroDepth = 100

func (x *expansion) currentDir() string {
	return filepath.Dir(x.files[len(x.files)-1])
}

// processChildren walks parent's children in order. Each handler reports how
// many tokens now sit at the position it was given, already processed.
func (x *expansion) processChildren(parent *etree.Element, sc *scope) error {
	for i := 0; i < len(parent.Child); {
		if err := x.ctx.Err(); err != nil {
			return err
		}
		var (
			n   int
			err error
		)
		switch tok := parent.Child[i].(type) {
		case *etree.Element:
			n, err = x.processElement(parent, i, tok, sc)
		case *etree.CharData:
			if !tok.IsWhitespace() {
				var text string
				if text, err = x.substitute(tok.Data, sc); err == nil {
					tok.Data = text
				}
			}
			n = 1
		default:
			n = 1
		}
		if err != nil {
			return err
		}
		i += n
	}
	return nil
}

func (x *expansion) processAttributes(el *etree.Element, sc *scope) error {
	for i := range el.Attr {
		a := &el.Attr[i]
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		v, err := x.substitute(a.Value, sc)
		if err != nil {
			return fmt.Errorf("<%s %s>: %w", el.FullTag(), a.FullKey(), err)
		}
		a.Value = v
	}
	return nil
}

func (x *expansion) processElement(parent *etree.Element, i int, el *etree.Element, sc *scope) (int, error) {
	if !isXacro(el) {
		if err := x.processAttributes(el, sc); err != nil {
			return 0, err
		}
		return 1, x.processChildren(el, sc)
	}

	switch el.Tag {
	case "property":
		return 0, x.defineProperty(parent, el, sc)
	case "arg":
		return 0, x.defineArg(parent, el, sc)
	case "macro":
		return 0, x.defineMacro(parent, el, sc)
	case "include":
		return x.include(parent, i, el, sc)
	case "if", "unless":
		return x.conditional(parent, i, el, sc)
	case "insert_block":
		return x.insertBlock(parent, i, el, sc)
	case "call":
		name, err := x.substitute(el.SelectAttrValue("macro", ""), sc)
		if err != nil {
			return 0, err
		}
		return x.callMacro(parent, i, el, name, sc)
	case "element", "attribute":
		return 0, fmt.Errorf("%w: xacro:%s is not supported", ErrMalformed, el.Tag)
	default:
		return x.callMacro(parent, i, el, el.Tag, sc)
	}
}

func (x *expansion) defineProperty(parent *etree.Element, el *etree.Element, sc *scope) error {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		return fmt.Errorf("%w: xacro:property without name", ErrMalformed)
	}
	target := sc
	switch el.SelectAttrValue("scope", "") {
	case "parent":
		if sc.parent != nil {
			target = sc.parent
		}
	case "global":
		target = sc.root()
	}

	p := &property{}
	if attr := el.SelectAttr("value"); attr != nil {
		p.raw = attr.Value
		// Properties leaving their scope must not depend on it.
		if target != sc || el.SelectAttrValue("lazy_eval", "true") == "false" {
			v, err := x.evalText(attr.Value, sc)
			if err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
			if v.kind == kindString {
				v = literalValue(v.s)
			}
			p.value = &v
		}
	} else {
		for _, child := range el.ChildElements() {
			p.block = append(p.block, child.Copy())
		}
	}
	target.props[name] = p
	parent.RemoveChild(el)
	return nil
}

func (x *expansion) defineArg(parent *etree.Element, el *etree.Element, sc *scope) error {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		return fmt.Errorf("%w: xacro:arg without name", ErrMalformed)
	}
	if _, ok := x.args[name]; !ok {
		if def := el.SelectAttr("default"); def != nil {
			v, err := x.substitute(def.Value, sc)
			if err != nil {
				return fmt.Errorf("arg %q default: %w", name, err)
			}
			x.args[name] = v
		}
	}
	parent.RemoveChild(el)
	return nil
}

func (x *expansion) defineMacro(parent *etree.Element, el *etree.Element, sc *scope) error {
	name := strings.TrimPrefix(el.SelectAttrValue("name", ""), "xacro:")
	if name == "" {
		return fmt.Errorf("%w: xacro:macro without name", ErrMalformed)
	}
	params, err := parseParams(el.SelectAttrValue("params", ""))
	if err != nil {
		return fmt.Errorf("macro %q: %w", name, err)
	}
	parent.RemoveChild(el)
	sc.macros[name] = &macro{name: name, params: params, body: el}
	return nil
}

func parseParams(spec string) ([]macroParam, error) {
	var out []macroParam
	for _, field := range strings.Fields(spec) {
		var p macroParam
		switch {
		case strings.HasPrefix(field, "**"):
			p.block, p.name = true, field[2:]
		case strings.HasPrefix(field, "*"):
			p.block, p.name = true, field[1:]
		default:
			p.name = field
			if name, def, ok := strings.Cut(field, ":="); ok {
				p.name, p.hasDefault = name, true
				switch {
				case def == "^":
					p.fromParent = true
					p.hasDefault = false
				case strings.HasPrefix(def, "^|"):
					p.fromParent = true
					p.def = def[2:]
				default:
					p.def = def
				}
			} else if name, def, ok := strings.Cut(field, "="); ok {
				p.name, p.hasDefault, p.def = name, true, def
			}
		}
		if p.name == "" {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrMalformed, field)
		}
		out = append(out, p)
	}
	return out, nil
}

func (x *expansion) callMacro(parent *etree.Element, i int, call *etree.Element, name string, sc *scope) (int, error) {
	m := sc.findMacro(name)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrUndefinedMacro, name)
	}
	if x.depth >= maxMacroDepth {
		return 0, fmt.Errorf("%w: macro recursion deeper than %d at %q", ErrMalformed, maxMacroDepth, name)
	}

	local := newScope(sc)
	given := make(map[string]string, len(call.Attr))
	for _, a := range call.Attr {
		if a.Space == "xmlns" || (call.Tag == "call" && a.Key == "macro") {
			continue
		}
		v, err := x.substitute(a.Value, sc)
		if err != nil {
			return 0, fmt.Errorf("macro %q param %q: %w", name, a.Key, err)
		}
		given[a.Key] = v
	}

	blocks := call.ChildElements()
	for _, p := range m.params {
		if p.block {
			if len(blocks) == 0 {
				return 0, fmt.Errorf("%w: macro %q missing block parameter %q", ErrMalformed, name, p.name)
			}
			local.props[p.name] = &property{block: []*etree.Element{blocks[0].Copy()}}
			blocks = blocks[1:]
			continue
		}
		if v, ok := given[p.name]; ok {
			lv := literalValue(v)
			local.props[p.name] = &property{raw: v, value: &lv}
			delete(given, p.name)
			continue
		}
		if p.fromParent {
			if prop, _ := sc.findProperty(p.name); prop != nil {
				local.props[p.name] = prop
				continue
			}
		}
		if p.hasDefault {
			local.props[p.name] = &property{raw: p.def}
			continue
		}
		return 0, fmt.Errorf("%w: macro %q missing parameter %q", ErrMalformed, name, p.name)
	}
	if len(given) > 0 {
		extra := make([]string, 0, len(given))
		for k := range given {
			extra = append(extra, k)
		}
		sort.Strings(extra)
		return 0, fmt.Errorf("%w: macro %q has no parameter %q", ErrMalformed, name, extra[0])
	}

	body := m.body.Copy()
	x.depth++
	err := x.processChildren(body, local)
	x.depth--
	if err != nil {
		return 0, fmt.Errorf("in macro %q: %w", name, err)
	}
	return replaceWithChildren(parent, i, body), nil
}

func (x *expansion) include(parent *etree.Element, i int, el *etree.Element, sc *scope) (int, error) {
	filename, err := x.substitute(el.SelectAttrValue("filename", ""), sc)
	if err != nil {
		return 0, err
	}
	if filename == "" {
		return 0, fmt.Errorf("%w: xacro:include without filename", ErrMalformed)
	}
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(x.currentDir(), filename)
	}
	for _, f := range x.files {
		if f == filename {
			return 0, fmt.Errorf("%w: %s", ErrIncludeCycle, strings.Join(append(x.files, filename), " -> "))
		}
	}

	doc, err := readDocument(filename)
	if err != nil {
		return 0, err
	}
	x.includes++
	x.files = append(x.files, filename)
	err = x.processChildren(doc.Root(), sc)
	x.files = x.files[:len(x.files)-1]
	if err != nil {
		return 0, fmt.Errorf("in %s: %w", filename, err)
	}
	return replaceWithChildren(parent, i, doc.Root()), nil
}

func (x *expansion) conditional(parent *etree.Element, i int, el *etree.Element, sc *scope) (int, error) {
	v, err := x.evalText(el.SelectAttrValue("value", ""), sc)
	if err != nil {
		return 0, fmt.Errorf("xacro:%s: %w", el.Tag, err)
	}
	keep, err := v.truthy()
	if err != nil {
		return 0, fmt.Errorf("xacro:%s: %w", el.Tag, err)
	}
	if el.Tag == "unless" {
		keep = !keep
	}
	if !keep {
		parent.RemoveChildAt(i)
		return 0, nil
	}
	if err := x.processChildren(el, sc); err != nil {
		return 0, err
	}
	return replaceWithChildren(parent, i, el), nil
}

func (x *expansion) insertBlock(parent *etree.Element, i int, el *etree.Element, sc *scope) (int, error) {
	name, err := x.substitute(el.SelectAttrValue("name", ""), sc)
	if err != nil {
		return 0, err
	}
	p, _ := sc.findProperty(name)
	if p == nil || p.block == nil {
		return 0, fmt.Errorf("%w: block %q", ErrUndefinedProperty, name)
	}
	holder := etree.NewElement("block")
	for _, b := range p.block {
		holder.AddChild(b.Copy())
	}
	if err := x.processChildren(holder, sc); err != nil {
		return 0, err
	}
	return replaceWithChildren(parent, i, holder), nil
}

// replaceWithChildren swaps the token at parent.Child[i] for the children of
// holder and returns how many tokens were inserted.
func replaceWithChildren(parent *etree.Element, i int, holder *etree.Element) int {
	children := append([]etree.Token(nil), holder.Child...)
	parent.RemoveChildAt(i)
	for j, c := range children {
		if c.Parent() != nil {
			c.Parent().RemoveChild(c)
		}
		parent.InsertChildAt(i+j, c)
	}
	return len(children)
}

// -- Substitution --

// substitute replaces every ${...} and $(...) in s and returns the text.
func (x *expansion) substitute(s string, sc *scope) (string, error) {
	v, err := x.evalText(s, sc)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// evalText evaluates s. A string that is exactly one ${expr} keeps the
// expression's type; anything else becomes concatenated text.
func (x *expansion) evalText(s string, sc *scope) (value, error) {
	if !strings.Contains(s, "$") {
		return stringValue(s), nil
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		if end := matchBrace(trimmed, 1, '{', '}'); end == len(trimmed)-1 {
			return x.evalExpr(trimmed[2:end], sc)
		}
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}
		switch s[i+1] {
		case '$':
			// $${ and $$( escape a literal dollar expression.
			b.WriteByte('$')
			i += 2
		case '{':
			end := matchBrace(s, i+1, '{', '}')
			if end < 0 {
				return value{}, fmt.Errorf("%w: unbalanced ${ in %q", ErrExpression, s)
			}
			v, err := x.evalExpr(s[i+2:end], sc)
			if err != nil {
				return value{}, err
			}
			b.WriteString(v.String())
			i = end + 1
		case '(':
			end := matchBrace(s, i+1, '(', ')')
			if end < 0 {
				return value{}, fmt.Errorf("%w: unbalanced $( in %q", ErrExpression, s)
			}
			v, err := x.evalSubstitutionArg(s[i+2:end], sc)
			if err != nil {
				return value{}, err
			}
			b.WriteString(v)
			i = end + 1
		default:
			b.WriteByte('$')
			i++
		}
	}
	return stringValue(b.String()), nil
}

func matchBrace(s string, open int, l, r byte) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case l:
			depth++
		case r:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (x *expansion) evalExpr(expr string, sc *scope) (value, error) {
	return evalExpression(expr, func(name string) (value, error) {
		return x.lookupProperty(name, sc)
	})
}

func (x *expansion) lookupProperty(name string, sc *scope) (value, error) {
	p, owner := sc.findProperty(name)
	if p == nil {
		return value{}, fmt.Errorf("%w: %q", ErrUndefinedProperty, name)
	}
	if p.value != nil {
		return *p.value, nil
	}
	if p.block != nil {
		return value{}, fmt.Errorf("%w: %q is a block, not a value", ErrExpression, name)
	}
	if p.evaluating {
		return value{}, fmt.Errorf("%w: property %q refers to itself", ErrExpression, name)
	}
	p.evaluating = true
	v, err := x.evalText(p.raw, owner)
	p.evaluating = false
	if err != nil {
		return value{}, fmt.Errorf("property %q: %w", name, err)
	}
	if v.kind == kindString {
		v = literalValue(v.s)
	}
	p.value = &v
	return v, nil
}

// evalSubstitutionArg handles $(find pkg), $(arg name), $(env VAR) and
// $(optenv VAR default).
func (x *expansion) evalSubstitutionArg(body string, sc *scope) (string, error) {
	inner, err := x.substitute(body, sc)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(inner)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty $()", ErrUndefinedArg)
	}
	switch fields[0] {
	case "find":
		if len(fields) != 2 {
			return "", fmt.Errorf("%w: $(find) takes one package", ErrUndefinedArg)
		}
		if x.engine.finder == nil {
			return "", fmt.Errorf("%w: no package index for $(find %s)", ErrUndefinedArg, fields[1])
		}
		return x.engine.finder.ShareDirectory(fields[1])
	case "arg":
		if len(fields) != 2 {
			return "", fmt.Errorf("%w: $(arg) takes one name", ErrUndefinedArg)
		}
		v, ok := x.args[fields[1]]
		if !ok {
			return "", fmt.Errorf("%w: arg %q", ErrUndefinedArg, fields[1])
		}
		return v, nil
	case "env":
		if len(fields) != 2 {
			return "", fmt.Errorf("%w: $(env) takes one variable", ErrUndefinedArg)
		}
		v, ok := os.LookupEnv(fields[1])
		if !ok {
			return "", fmt.Errorf("%w: environment variable %q", ErrUndefinedArg, fields[1])
		}
		return v, nil
	case "optenv":
		if len(fields) < 2 {
			return "", fmt.Errorf("%w: $(optenv) needs a variable", ErrUndefinedArg)
		}
		if v, ok := os.LookupEnv(fields[1]); ok {
			return v, nil
		}
		return strings.Join(fields[2:], " "), nil
	}
	return "", fmt.Errorf("%w: unknown $(%s)", ErrUndefinedArg, fields[0])
}
