package backend

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Criteria is a parsed search criteria expression.
type Criteria struct {
	root  expr
	props []string
}

// ParseCriteria parses a search criteria string such as
//
//	upnp:class derivedfrom "object.item.audioItem" and dc:title contains "blue"
//
// "*" and the empty string match every object. Errors wrap
// ErrInvalidCriteria.
func ParseCriteria(s string) (*Criteria, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return &Criteria{}, nil
	}
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidCriteria, p.toks[p.pos].text)
	}
	return &Criteria{root: root, props: p.props}, nil
}

// Match reports whether item satisfies the criteria.
func (c *Criteria) Match(item *Item) bool {
	if c.root == nil {
		return true
	}
	return c.root.match(item)
}

// Properties lists the properties the criteria refer to, in order of first
// use.
func (c *Criteria) Properties() []string {
	return c.props
}

// Supported reports whether every referenced property is in caps. A "*"
// capability allows all.
func (c *Criteria) Supported(caps []string) error {
	for _, p := range c.props {
		ok := false
		for _, cp := range caps {
			if cp == "*" || cp == p {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: property %s not searchable", ErrInvalidCriteria, p)
		}
	}
	return nil
}

type expr interface {
	match(item *Item) bool
}

type andExpr struct{ l, r expr }

func (e andExpr) match(item *Item) bool { return e.l.match(item) && e.r.match(item) }

type orExpr struct{ l, r expr }

func (e orExpr) match(item *Item) bool { return e.l.match(item) || e.r.match(item) }

type relExpr struct {
	prop  string
	op    string
	value string
}

func (e relExpr) match(item *Item) bool {
	v, ok := Property(item, e.prop)
	switch e.op {
	case "exists":
		return ok == (e.value == "true")
	case "derivedfrom":
		return ok && (strings.EqualFold(v, e.value) || strings.HasPrefix(strings.ToLower(v), strings.ToLower(e.value)+"."))
	case "contains":
		return ok && strings.Contains(strings.ToLower(v), strings.ToLower(e.value))
	case "doesNotContain":
		return !strings.Contains(strings.ToLower(v), strings.ToLower(e.value))
	case "=":
		return ok && strings.EqualFold(v, e.value)
	case "!=":
		return !strings.EqualFold(v, e.value)
	}
	if !ok {
		return false
	}

	var c int
	if numericProps[e.prop] {
		a, err1 := strconv.ParseInt(v, 10, 64)
		b, err2 := strconv.ParseInt(e.value, 10, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		switch {
		case a < b:
			c = -1
		case a > b:
			c = 1
		}
	} else {
		c = strings.Compare(strings.ToLower(v), strings.ToLower(e.value))
	}
	switch e.op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

type tokenKind uint8

const (
	tokWord tokenKind = iota
	tokQuoted
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '"':
			var b strings.Builder
			i++
			closed := false
			for i < len(s) {
				if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
					b.WriteByte(s[i+1])
					i += 2
					continue
				}
				if s[i] == '"' {
					closed = true
					i++
					break
				}
				b.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated string", ErrInvalidCriteria)
			}
			toks = append(toks, token{tokQuoted, b.String()})
		case c == '=' || c == '!' || c == '<' || c == '>':
			op := string(c)
			if i+1 < len(s) && s[i+1] == '=' {
				op += "="
			}
			if op == "!" {
				return nil, fmt.Errorf("%w: stray '!'", ErrInvalidCriteria)
			}
			toks = append(toks, token{tokOp, op})
			i += len(op)
		default:
			j := i
			for j < len(s) && !unicode.IsSpace(rune(s[j])) && !strings.ContainsRune(`()"=!<>`, rune(s[j])) {
				j++
			}
			toks = append(toks, token{tokWord, s[i:j]})
			i = j
		}
	}
	return toks, nil
}

type parser struct {
	toks  []token
	pos   int
	props []string
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, error) {
	t, ok := p.peek()
	if !ok {
		return token{}, fmt.Errorf("%w: unexpected end", ErrInvalidCriteria)
	}
	p.pos++
	return t, nil
}

func (p *parser) keyword(word string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokWord && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

// or binds looser than and.
func (p *parser) or() (expr, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = orExpr{l, r}
	}
	return l, nil
}

func (p *parser) and() (expr, error) {
	l, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		r, err := p.primary()
		if err != nil {
			return nil, err
		}
		l = andExpr{l, r}
	}
	return l, nil
}

func (p *parser) primary() (expr, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}
	if t.kind == tokLParen {
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		if t, err := p.next(); err != nil || t.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')'", ErrInvalidCriteria)
		}
		return e, nil
	}
	if t.kind != tokWord {
		return nil, fmt.Errorf("%w: expected property, got %q", ErrInvalidCriteria, t.text)
	}
	prop := t.text

	opTok, err := p.next()
	if err != nil {
		return nil, err
	}
	var op string
	switch {
	case opTok.kind == tokOp:
		op = opTok.text
	case opTok.kind == tokWord && isStringOp(opTok.text):
		op = opTok.text
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidCriteria, opTok.text)
	}

	val, err := p.next()
	if err != nil {
		return nil, err
	}
	if op == "exists" {
		if val.kind != tokWord || (val.text != "true" && val.text != "false") {
			return nil, fmt.Errorf("%w: exists needs true or false", ErrInvalidCriteria)
		}
	} else if val.kind != tokQuoted {
		return nil, fmt.Errorf("%w: %s needs a quoted value", ErrInvalidCriteria, op)
	}

	p.addProp(prop)
	return relExpr{prop: prop, op: op, value: val.text}, nil
}

func isStringOp(s string) bool {
	switch s {
	case "contains", "doesNotContain", "derivedfrom", "exists":
		return true
	}
	return false
}

func (p *parser) addProp(prop string) {
	for _, existing := range p.props {
		if existing == prop {
			return
		}
	}
	p.props = append(p.props, prop)
}
