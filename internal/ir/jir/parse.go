package jir

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/kolkov/dryrun/internal/ir"
)

// SyntaxError reports malformed jir input.
type SyntaxError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteByte(':')
	}
	b.WriteString(strconv.Itoa(e.Line))
	if e.Col > 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(e.Col))
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

// File is one parsed jir document.
type File struct {
	Version string
	Classes []*ir.Class
}

// AddTo registers the file's classes with p.
func (f *File) AddTo(p *ir.Program) error {
	for _, c := range f.Classes {
		if err := p.AddClass(c); err != nil {
			return err
		}
	}
	return nil
}

// Parse reads a jir document. name is used in error messages only.
func Parse(name string, src []byte) (*File, error) {
	p := &parser{file: name}
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		p.line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "//") || strings.HasPrefix(text, "#") {
			continue
		}
		if err := p.parseLine(text); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if p.out.Version == "" {
		return nil, p.errorf("missing jir header")
	}
	if p.method != nil {
		return nil, p.errorf("unterminated method %s", p.method.Name)
	}
	if p.class != nil {
		return nil, p.errorf("unterminated class %s", p.class.Name)
	}
	return &p.out, nil
}

type fixup struct {
	stmt  ir.Stmt
	label string
}

type trapDecl struct {
	exception           string
	begin, end, handler string
	line                int
}

type parser struct {
	file string
	line int
	out  File

	class  *ir.Class
	method *ir.Method
	body   *ir.Body

	locals  map[string]*ir.Local
	labels  map[string]ir.Stmt
	pending []string
	fixups  []fixup
	traps   []trapDecl
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{File: p.file, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseLine(text string) error {
	toks, err := tokenize(text)
	if err != nil {
		return p.errorf("%v", err)
	}
	switch {
	case p.out.Version == "":
		return p.parseHeader(toks)
	case p.method != nil:
		return p.parseBodyLine(toks)
	case p.class != nil:
		return p.parseMember(toks)
	default:
		return p.parseClassHeader(toks)
	}
}

func (p *parser) parseHeader(toks []token) error {
	if len(toks) != 2 || !toks[0].is(tokIdent, "jir") || toks[1].kind != tokNumber {
		return p.errorf("expected header \"jir <version>\"")
	}
	v := "v" + toks[1].text
	if !semver.IsValid(v) {
		return p.errorf("invalid format version %q", toks[1].text)
	}
	if semver.Major(v) != "v1" {
		return p.errorf("unsupported format version %s, want 1.x", toks[1].text)
	}
	p.out.Version = toks[1].text
	return nil
}

// [phantom] [mods] (class|interface) NAME [extends A[, B]] [implements X, Y] {
func (p *parser) parseClassHeader(toks []token) error {
	c := &ir.Class{}
	i := 0
	if i < len(toks) && toks[i].is(tokIdent, "phantom") {
		c.Phantom = true
		i++
	}
	for ; i < len(toks) && toks[i].kind == tokIdent; i++ {
		if toks[i].text == "class" || toks[i].text == "interface" {
			break
		}
		mod, ok := ir.ParseModifier(toks[i].text)
		if !ok {
			return p.errorf("unknown class modifier %q", toks[i].text)
		}
		c.Mods |= mod
	}
	if i >= len(toks) || toks[i].kind != tokIdent {
		return p.errorf("expected class or interface declaration")
	}
	if toks[i].text == "interface" {
		c.Mods |= ir.ModInterface
	}
	i++
	if i >= len(toks) || toks[i].kind != tokIdent {
		return p.errorf("expected class name")
	}
	c.Name = toks[i].text
	i++

	for i < len(toks) && toks[i].kind == tokIdent {
		kw := toks[i].text
		if kw != "extends" && kw != "implements" {
			return p.errorf("unexpected %q in class header", kw)
		}
		i++
		var names []string
		for i < len(toks) && toks[i].kind == tokIdent {
			names = append(names, toks[i].text)
			i++
			if i < len(toks) && toks[i].is(tokPunct, ",") {
				i++
				continue
			}
			break
		}
		if len(names) == 0 {
			return p.errorf("%s without a type", kw)
		}
		switch {
		case kw == "implements" || c.IsInterface():
			c.Interfaces = append(c.Interfaces, names...)
		case len(names) > 1:
			return p.errorf("class %s extends more than one class", c.Name)
		default:
			c.Super = names[0]
		}
	}
	if i != len(toks)-1 || !toks[i].is(tokPunct, "{") {
		return p.errorf("class header must end with {")
	}
	p.class = c
	return nil
}

func (p *parser) parseMember(toks []token) error {
	switch {
	case len(toks) == 1 && toks[0].is(tokPunct, "}"):
		p.out.Classes = append(p.out.Classes, p.class)
		p.class = nil
		return nil
	case toks[0].is(tokIdent, "field"):
		return p.parseField(toks[1:])
	case toks[0].is(tokIdent, "method"):
		return p.parseMethodHeader(toks[1:])
	}
	return p.errorf("expected field, method or }")
}

// field [mods] TYPE NAME
func (p *parser) parseField(toks []token) error {
	if len(toks) < 2 {
		return p.errorf("field needs a type and a name")
	}
	f := &ir.Field{}
	for _, t := range toks[:len(toks)-2] {
		mod, ok := ir.ParseModifier(t.text)
		if t.kind != tokIdent || !ok {
			return p.errorf("unknown field modifier %q", t.text)
		}
		f.Mods |= mod
	}
	typ, name := toks[len(toks)-2], toks[len(toks)-1]
	if typ.kind != tokIdent || name.kind != tokIdent {
		return p.errorf("malformed field declaration")
	}
	f.Type = ir.ParseType(typ.text)
	f.Name = name.text
	if err := p.class.AddField(f); err != nil {
		return p.errorf("%v", err)
	}
	return nil
}

// method [mods] RET NAME(P1, P2) [{]
func (p *parser) parseMethodHeader(toks []token) error {
	open := -1
	for i, t := range toks {
		if t.is(tokPunct, "(") {
			open = i
			break
		}
	}
	if open < 2 {
		return p.errorf("method header needs a return type, a name and parameters")
	}
	m := &ir.Method{}
	for _, t := range toks[:open-2] {
		mod, ok := ir.ParseModifier(t.text)
		if t.kind != tokIdent || !ok {
			return p.errorf("unknown method modifier %q", t.text)
		}
		m.Mods |= mod
	}
	if toks[open-2].kind != tokIdent {
		return p.errorf("malformed return type")
	}
	m.Return = ir.ParseType(toks[open-2].text)
	switch name := toks[open-1]; {
	case name.kind == tokIdent:
		m.Name = name.text
	case name.kind == tokSig && (name.text == ir.ConstructorName || name.text == ir.StaticInitName):
		m.Name = name.text
	default:
		return p.errorf("malformed method name %q", name.text)
	}

	i := open + 1
	for i < len(toks) && !toks[i].is(tokPunct, ")") {
		if toks[i].kind != tokIdent {
			return p.errorf("malformed parameter list")
		}
		m.Params = append(m.Params, ir.ParseType(toks[i].text))
		i++
		if i < len(toks) && toks[i].is(tokPunct, ",") {
			i++
		}
	}
	if i >= len(toks) {
		return p.errorf("unterminated parameter list")
	}
	i++
	hasBody := false
	if i < len(toks) && toks[i].is(tokPunct, "{") {
		hasBody = true
		i++
	}
	if i != len(toks) {
		return p.errorf("unexpected tokens after method header")
	}
	if err := p.class.AddMethod(m); err != nil {
		return p.errorf("%v", err)
	}
	if hasBody {
		p.method = m
		p.body = &ir.Body{}
		p.locals = make(map[string]*ir.Local)
		p.labels = make(map[string]ir.Stmt)
		p.pending, p.fixups, p.traps = nil, nil, nil
	}
	return nil
}

func (p *parser) parseBodyLine(toks []token) error {
	switch {
	case len(toks) == 1 && toks[0].is(tokPunct, "}"):
		return p.finishMethod()
	case len(toks) == 2 && toks[0].kind == tokIdent && toks[1].is(tokPunct, ":"):
		if _, dup := p.labels[toks[0].text]; dup {
			return p.errorf("label %s defined twice", toks[0].text)
		}
		p.pending = append(p.pending, toks[0].text)
		return nil
	case toks[0].is(tokIdent, "local"):
		if len(toks) != 3 || toks[1].kind != tokIdent || toks[2].kind != tokIdent {
			return p.errorf("expected \"local NAME TYPE\"")
		}
		if _, dup := p.locals[toks[1].text]; dup {
			return p.errorf("local %s declared twice", toks[1].text)
		}
		l := p.body.AddLocal(ir.NewLocal(toks[1].text, ir.ParseType(toks[2].text)))
		p.locals[l.Name] = l
		return nil
	case toks[0].is(tokIdent, "catch"):
		// catch EXC from L1 to L2 with L3
		if len(toks) != 8 || !toks[2].is(tokIdent, "from") || !toks[4].is(tokIdent, "to") || !toks[6].is(tokIdent, "with") {
			return p.errorf("expected \"catch TYPE from LABEL to LABEL with LABEL\"")
		}
		p.traps = append(p.traps, trapDecl{
			exception: toks[1].text, begin: toks[3].text, end: toks[5].text, handler: toks[7].text, line: p.line,
		})
		return nil
	}

	c := &cursor{toks: toks}
	s, err := p.parseStmt(c)
	if err != nil {
		return err
	}
	if !c.done() {
		return p.errorf("unexpected %q after statement", c.peek().text)
	}
	setLine(s, p.line)
	for _, l := range p.pending {
		p.labels[l] = s
	}
	p.pending = nil
	p.body.Append(s)
	return nil
}

func (p *parser) finishMethod() error {
	if len(p.pending) > 0 {
		return p.errorf("label %s does not precede a statement", p.pending[0])
	}
	for _, f := range p.fixups {
		target, ok := p.labels[f.label]
		if !ok {
			return p.errorf("undefined label %s", f.label)
		}
		switch st := f.stmt.(type) {
		case *ir.IfStmt:
			st.Target = target
		case *ir.GotoStmt:
			st.Target = target
		}
	}
	for _, td := range p.traps {
		t := &ir.Trap{Exception: td.exception}
		for _, e := range []struct {
			dst   *ir.Stmt
			label string
		}{{&t.Begin, td.begin}, {&t.End, td.end}, {&t.Handler, td.handler}} {
			s, ok := p.labels[e.label]
			if !ok {
				return &SyntaxError{File: p.file, Line: td.line, Msg: "undefined label " + e.label}
			}
			*e.dst = s
		}
		p.body.Traps = append(p.body.Traps, t)
	}
	p.method.Body = p.body
	p.method, p.body = nil, nil
	return nil
}

func setLine(s ir.Stmt, line int) {
	switch st := s.(type) {
	case *ir.IdentityStmt:
		st.Line = line
	case *ir.AssignStmt:
		st.Line = line
	case *ir.InvokeStmt:
		st.Line = line
	case *ir.IfStmt:
		st.Line = line
	case *ir.GotoStmt:
		st.Line = line
	case *ir.NopStmt:
		st.Line = line
	case *ir.ReturnStmt:
		st.Line = line
	case *ir.ReturnVoidStmt:
		st.Line = line
	case *ir.ThrowStmt:
		st.Line = line
	}
}

type cursor struct {
	toks []token
	pos  int
}

func (c *cursor) done() bool { return c.pos >= len(c.toks) }

func (c *cursor) peek() token {
	if c.done() {
		return token{kind: tokPunct, text: "end of line"}
	}
	return c.toks[c.pos]
}

func (c *cursor) peekAt(n int) token {
	if c.pos+n >= len(c.toks) {
		return token{kind: tokPunct, text: "end of line"}
	}
	return c.toks[c.pos+n]
}

func (c *cursor) next() token {
	t := c.peek()
	c.pos++
	return t
}

func (c *cursor) accept(kind tokenKind, text string) bool {
	if c.peek().is(kind, text) {
		c.pos++
		return true
	}
	return false
}

func (p *parser) expect(c *cursor, kind tokenKind, text string) error {
	if !c.accept(kind, text) {
		return p.errorf("expected %q, found %q", text, c.peek().text)
	}
	return nil
}

func (p *parser) parseStmt(c *cursor) (ir.Stmt, error) {
	first := c.peek()
	if first.kind == tokIdent && c.peekAt(1).is(tokPunct, ":=") {
		return p.parseIdentity(c)
	}
	if first.kind == tokIdent {
		switch first.text {
		case "if":
			c.next()
			x, err := p.parseImmediate(c)
			if err != nil {
				return nil, err
			}
			op, ok := ir.ParseOp(c.next().text)
			if !ok || !op.IsComparison() {
				return nil, p.errorf("if needs a comparison")
			}
			y, err := p.parseImmediate(c)
			if err != nil {
				return nil, err
			}
			if err := p.expect(c, tokIdent, "goto"); err != nil {
				return nil, err
			}
			s := ir.NewIf(&ir.BinopExpr{Op: op, X: x, Y: y}, nil)
			return s, p.label(c, s)
		case "goto":
			c.next()
			s := ir.NewGoto(nil)
			return s, p.label(c, s)
		case "nop":
			c.next()
			return ir.NewNop(), nil
		case "return":
			c.next()
			if c.done() {
				return ir.NewReturnVoid(), nil
			}
			v, err := p.parseImmediate(c)
			if err != nil {
				return nil, err
			}
			return ir.NewReturn(v), nil
		case "throw":
			c.next()
			v, err := p.parseImmediate(c)
			if err != nil {
				return nil, err
			}
			return ir.NewThrow(v), nil
		}
		if _, ok := ir.ParseInvokeKind(first.text); ok {
			inv, err := p.parseInvoke(c)
			if err != nil {
				return nil, err
			}
			return ir.NewInvokeStmt(inv), nil
		}
	}

	lhs, err := p.parseLHS(c)
	if err != nil {
		return nil, err
	}
	if err := p.expect(c, tokPunct, "="); err != nil {
		return nil, err
	}
	rhs, err := p.parseRHS(c)
	if err != nil {
		return nil, err
	}
	return ir.NewAssign(lhs, rhs), nil
}

func (p *parser) label(c *cursor, s ir.Stmt) error {
	t := c.next()
	if t.kind != tokIdent {
		return p.errorf("expected label, found %q", t.text)
	}
	p.fixups = append(p.fixups, fixup{stmt: s, label: t.text})
	return nil
}

func (p *parser) parseIdentity(c *cursor) (ir.Stmt, error) {
	l, err := p.local(c.next().text)
	if err != nil {
		return nil, err
	}
	c.next() // :=
	at := c.next()
	if at.kind != tokAt {
		return nil, p.errorf("expected @this, @parameterN or @caughtexception")
	}
	if at.text == "caughtexception" {
		return ir.NewIdentity(l, ir.NewCaughtExceptionRef()), nil
	}
	if err := p.expect(c, tokPunct, ":"); err != nil {
		return nil, err
	}
	typ := c.next()
	if typ.kind != tokIdent {
		return nil, p.errorf("expected type after %s", at.text)
	}
	t := ir.ParseType(typ.text)
	switch {
	case at.text == "this":
		return ir.NewIdentity(l, ir.NewThisRef(t)), nil
	case strings.HasPrefix(at.text, "parameter"):
		n, err := strconv.Atoi(strings.TrimPrefix(at.text, "parameter"))
		if err != nil {
			return nil, p.errorf("malformed parameter reference @%s", at.text)
		}
		return ir.NewIdentity(l, ir.NewParamRef(n, t)), nil
	}
	return nil, p.errorf("unknown identity reference @%s", at.text)
}

func (p *parser) local(name string) (*ir.Local, error) {
	l, ok := p.locals[name]
	if !ok {
		return nil, p.errorf("undeclared local %s", name)
	}
	return l, nil
}

func (p *parser) parseLHS(c *cursor) (ir.Value, error) {
	t := c.peek()
	switch {
	case t.kind == tokSig:
		return p.parseFieldRef(c, nil)
	case t.kind == tokIdent && c.peekAt(1).is(tokPunct, "."):
		base, err := p.local(c.next().text)
		if err != nil {
			return nil, err
		}
		c.next()
		return p.parseFieldRef(c, base)
	case t.kind == tokIdent:
		return p.local(c.next().text)
	}
	return nil, p.errorf("malformed assignment target %q", t.text)
}

func (p *parser) parseFieldRef(c *cursor, base *ir.Local) (ir.Value, error) {
	t := c.next()
	if t.kind != tokSig || ir.IsMethodSignature(t.text) {
		return nil, p.errorf("expected field signature, found %q", t.text)
	}
	ref, err := ir.ParseFieldSignature(t.text)
	if err != nil {
		return nil, p.errorf("%v", err)
	}
	if base == nil {
		ref.Static = true
		return &ir.StaticFieldRef{Field: ref}, nil
	}
	return &ir.InstanceFieldRef{Base: base, Field: ref}, nil
}

func (p *parser) parseRHS(c *cursor) (ir.Value, error) {
	t := c.peek()
	switch {
	case t.is(tokIdent, "new") && c.peekAt(1).kind == tokIdent:
		c.next()
		return &ir.NewExpr{Class: c.next().text}, nil
	case t.is(tokPunct, "("):
		c.next()
		typ := c.next()
		if typ.kind != tokIdent {
			return nil, p.errorf("expected cast type")
		}
		if err := p.expect(c, tokPunct, ")"); err != nil {
			return nil, err
		}
		x, err := p.parseImmediate(c)
		if err != nil {
			return nil, err
		}
		return &ir.CastExpr{To: ir.ParseType(typ.text), X: x}, nil
	case t.kind == tokSig:
		return p.parseFieldRef(c, nil)
	case t.kind == tokIdent && c.peekAt(1).is(tokPunct, "."):
		base, err := p.local(c.next().text)
		if err != nil {
			return nil, err
		}
		c.next()
		return p.parseFieldRef(c, base)
	case t.kind == tokIdent:
		if _, ok := ir.ParseInvokeKind(t.text); ok {
			return p.parseInvoke(c)
		}
	}
	x, err := p.parseImmediate(c)
	if err != nil {
		return nil, err
	}
	if c.done() {
		return x, nil
	}
	op, ok := ir.ParseOp(c.peek().text)
	if !ok {
		return nil, p.errorf("expected operator, found %q", c.peek().text)
	}
	c.next()
	y, err := p.parseImmediate(c)
	if err != nil {
		return nil, err
	}
	return &ir.BinopExpr{Op: op, X: x, Y: y}, nil
}

// kind [base.]<sig>(args)
func (p *parser) parseInvoke(c *cursor) (*ir.InvokeExpr, error) {
	kind, _ := ir.ParseInvokeKind(c.next().text)
	var base *ir.Local
	if kind != ir.InvokeStatic {
		b, err := p.local(c.next().text)
		if err != nil {
			return nil, err
		}
		if err := p.expect(c, tokPunct, "."); err != nil {
			return nil, err
		}
		base = b
	}
	sig := c.next()
	if sig.kind != tokSig || !ir.IsMethodSignature(sig.text) {
		return nil, p.errorf("expected method signature, found %q", sig.text)
	}
	ref, err := ir.ParseMethodSignature(sig.text)
	if err != nil {
		return nil, p.errorf("%v", err)
	}
	if err := p.expect(c, tokPunct, "("); err != nil {
		return nil, err
	}
	var args []ir.Value
	for !c.accept(tokPunct, ")") {
		if c.done() {
			return nil, p.errorf("unterminated argument list")
		}
		a, err := p.parseImmediate(c)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		c.accept(tokPunct, ",")
	}
	if len(args) != len(ref.Params) {
		return nil, p.errorf("%s takes %d arguments, got %d", ref.Name, len(ref.Params), len(args))
	}
	if kind == ir.InvokeStatic {
		return ir.NewStaticInvoke(ref, args...), nil
	}
	return ir.NewInstanceInvoke(kind, base, ref, args...), nil
}

func (p *parser) parseImmediate(c *cursor) (ir.Value, error) {
	t := c.next()
	switch t.kind {
	case tokIdent:
		switch t.text {
		case "true":
			return ir.Bool(true), nil
		case "false":
			return ir.Bool(false), nil
		case "null":
			return ir.Null(ir.ObjectType), nil
		}
		return p.local(t.text)
	case tokNumber:
		v, err := parseNumber(t.text)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		return v, nil
	case tokString:
		s, err := strconv.Unquote(t.text)
		if err != nil {
			return nil, p.errorf("malformed string literal %s", t.text)
		}
		return ir.StringConst(s), nil
	case tokChar:
		s, err := strconv.Unquote(t.text)
		r := []rune(s)
		if err != nil || len(r) != 1 || r[0] > 0xFFFF {
			return nil, p.errorf("malformed char literal %s", t.text)
		}
		return ir.CharConst(uint16(r[0])), nil
	}
	return nil, p.errorf("expected operand, found %q", t.text)
}

func parseNumber(text string) (*ir.Constant, error) {
	suffix := text[len(text)-1]
	body := text
	if strings.IndexByte("LFDSB", suffix) >= 0 {
		body = text[:len(text)-1]
	} else {
		suffix = 0
	}
	switch suffix {
	case 'L':
		v, err := strconv.ParseInt(body, 10, 64)
		return ir.LongConst(v), err
	case 'S':
		v, err := strconv.ParseInt(body, 10, 16)
		return ir.ShortConst(int16(v)), err
	case 'B':
		v, err := strconv.ParseInt(body, 10, 8)
		return ir.ByteConst(int8(v)), err
	case 'F':
		v, err := strconv.ParseFloat(body, 32)
		return ir.FloatConst(float32(v)), err
	case 'D':
		v, err := strconv.ParseFloat(body, 64)
		return ir.DoubleConst(v), err
	}
	if strings.ContainsAny(body, ".eE") {
		v, err := strconv.ParseFloat(body, 64)
		return ir.DoubleConst(v), err
	}
	v, err := strconv.ParseInt(body, 10, 32)
	return ir.IntConst(int32(v)), err
}
