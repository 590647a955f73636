package sttpl

import (
	"fmt"
)

// ----------------------------- Parser ---------------------------------------

type stopKind int

const (
	stopEOF   stopKind = iota // end of the template
	stopCurly                 // '}' closing a subtemplate body
	stopIf                    // <elseif>, <else> or <endif>
)

// parser turns the token stream of one template into a render tree.
type parser struct {
	tokens    []Token
	pos       int
	tmpl      *Template
	src       []rune
	lineStart bool
	subCount  int
	eof       Token
}

func newParser(tokens []Token, t *Template) *parser {
	p := &parser{
		tokens:    tokens,
		tmpl:      t,
		lineStart: true,
		eof:       Token{Kind: TokenEOF, Line: 1},
	}
	if n := len(tokens); n > 0 {
		last := tokens[n-1]
		p.eof = Token{Kind: TokenEOF, Start: last.Stop + 1, Stop: last.Stop, Line: last.Line, Column: last.Column}
	}
	return p
}

func (p *parser) peek(k int) Token {
	if i := p.pos + k; i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.eof
}

func (p *parser) next() Token {
	t := p.peek(0)
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	t := p.next()
	if t.Kind != kind {
		return t, p.errorf(t, "expecting %s, found %s", kind, describe(t))
	}
	return t, nil
}

func (p *parser) errorf(t Token, format string, args ...any) error {
	return &ParseError{Line: t.Line, Column: t.Column, Msg: fmt.Sprintf(format, args...)}
}

func describe(t Token) string {
	if t.Kind == TokenEOF {
		return "end of template"
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text())
}

func isBranchEnd(k TokenKind) bool {
	return k == TokenElseIf || k == TokenElse || k == TokenEndIf
}

func (p *parser) parseTemplate() (node, error) {
	nodes, err := p.parseElements(stopEOF)
	if err != nil {
		return nil, err
	}
	return sequence(nodes), nil
}

func (p *parser) parseElements(stop stopKind) ([]node, error) {
	nodes := make([]node, 0, 8)
	for {
		t := p.peek(0)
		switch t.Kind {
		case TokenEOF:
			switch stop {
			case stopCurly:
				return nil, p.errorf(t, "missing '}' at %s", describe(t))
			case stopIf:
				return nil, p.errorf(t, "missing <endif> at %s", describe(t))
			}
			return nodes, nil
		case TokenRCurly:
			if stop == stopCurly {
				return nodes, nil
			}
			return nil, p.errorf(t, "unexpected %s", describe(t))
		case TokenText:
			p.next()
			nodes = append(nodes, textNode{text: t.Text()})
			p.lineStart = false
		case TokenNewline:
			p.next()
			nodes = append(nodes, newlineNode{})
			p.lineStart = true
		case TokenIndent:
			n, err := p.parseIndent()
			if err != nil {
				return nil, err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
		case TokenLDelim:
			if k := p.peek(1); isBranchEnd(k.Kind) {
				if stop == stopIf {
					return nodes, nil
				}
				return nil, p.errorf(k, "unexpected %s", describe(k))
			}
			n, err := p.parseTag()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		default:
			return nil, p.errorf(t, "unexpected %s", describe(t))
		}
	}
}

// parseIndent handles leading whitespace. Before an expression it becomes
// indentation for everything the expression writes; before a conditional tag
// alone on its line it is dropped; anywhere else it is literal text.
func (p *parser) parseIndent() (node, error) {
	ind := p.next()
	if p.peek(0).Kind != TokenLDelim {
		p.lineStart = false
		return textNode{text: ind.Text()}, nil
	}
	solo := p.lineStart && p.tagAloneOnLine(p.pos)
	switch k := p.peek(1).Kind; {
	case isBranchEnd(k):
		if solo {
			return nil, nil
		}
		p.lineStart = false
		return textNode{text: ind.Text()}, nil
	case k == TokenIf && solo:
		return p.parseTag()
	}
	n, err := p.parseTag()
	if err != nil {
		return nil, err
	}
	return indentNode{indent: ind.Text(), body: n}, nil
}

// tagAloneOnLine reports whether the tag opening at tokens[at] is directly
// followed by a line break.
func (p *parser) tagAloneOnLine(at int) bool {
	depth := 0
	for i := at; i < len(p.tokens); i++ {
		switch p.tokens[i].Kind {
		case TokenLDelim:
			depth++
		case TokenRDelim:
			depth--
			if depth == 0 {
				return i+1 < len(p.tokens) && p.tokens[i+1].Kind == TokenNewline
			}
		}
	}
	return false
}

func (p *parser) endTagLine(solo bool) {
	if solo && p.peek(0).Kind == TokenNewline {
		p.next()
		p.lineStart = true
		return
	}
	p.lineStart = false
}

func (p *parser) parseTag() (node, error) {
	solo := p.lineStart && p.tagAloneOnLine(p.pos)
	if _, err := p.expect(TokenLDelim); err != nil {
		return nil, err
	}
	t := p.peek(0)
	switch t.Kind {
	case TokenIf:
		return p.parseIf(solo)
	case TokenSuper, TokenAt, TokenRegionEnd:
		return nil, p.errorf(t, "%s: regions and template inheritance are not supported", describe(t))
	case TokenRDelim:
		return nil, p.errorf(t, "empty expression")
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	opts, err := p.parseOptions()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRDelim); err != nil {
		return nil, err
	}
	var n node = exprNode{expr: e, opts: opts}
	if solo && p.peek(0).Kind == TokenNewline {
		p.next()
		p.lineStart = true
		return soloNode{body: n}, nil
	}
	p.lineStart = false
	return n, nil
}

func (p *parser) parseIf(solo bool) (node, error) {
	p.next() // if
	cond, err := p.parseParenCond()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRDelim); err != nil {
		return nil, err
	}
	p.endTagLine(solo)

	var n ifNode
	inElse := false
	for {
		body, err := p.parseElements(stopIf)
		if err != nil {
			return nil, err
		}
		if inElse {
			n.els = sequence(body)
		} else {
			n.branches = append(n.branches, ifBranch{cond: cond, body: sequence(body)})
		}

		solo := p.lineStart && p.tagAloneOnLine(p.pos)
		p.next() // left delimiter
		kw := p.next()
		switch kw.Kind {
		case TokenElseIf:
			if inElse {
				return nil, p.errorf(kw, "elseif after else")
			}
			if cond, err = p.parseParenCond(); err != nil {
				return nil, err
			}
		case TokenElse:
			if inElse {
				return nil, p.errorf(kw, "duplicate else")
			}
			inElse = true
		}
		if _, err := p.expect(TokenRDelim); err != nil {
			return nil, err
		}
		p.endTagLine(solo)
		if kw.Kind == TokenEndIf {
			return n, nil
		}
	}
}

func (p *parser) parseParenCond() (expr, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	c, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek(0).Kind == TokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek(0).Kind == TokenAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (expr, error) {
	switch p.peek(0).Kind {
	case TokenBang:
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notExpr{x: x}, nil
	case TokenLParen:
		return p.parseParenCond()
	}
	return p.parseExpr()
}

func (p *parser) parseExpr() (expr, error) {
	e, err := p.parseMember()
	if err != nil {
		return nil, err
	}
	for p.peek(0).Kind == TokenColon {
		p.next()
		refs, err := p.parseTemplateRefs()
		if err != nil {
			return nil, err
		}
		e = mapExpr{obj: e, templates: refs}
	}
	return e, nil
}

func (p *parser) parseTemplateRefs() ([]templateRef, error) {
	refs := make([]templateRef, 0, 2)
	for {
		t := p.peek(0)
		switch {
		case t.Kind == TokenLCurly:
			sub, err := p.parseSubtemplate()
			if err != nil {
				return nil, err
			}
			refs = append(refs, templateRef{sub: sub})
		case t.Kind == TokenID && p.peek(1).Kind == TokenLParen:
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			refs = append(refs, templateRef{name: t.Text(), args: args, line: t.Line, col: t.Column})
		default:
			return nil, p.errorf(t, "expecting template after ':', found %s", describe(t))
		}
		if p.peek(0).Kind != TokenComma || !p.startsTemplateRef(1) {
			return refs, nil
		}
		p.next()
	}
}

func (p *parser) startsTemplateRef(k int) bool {
	t := p.peek(k)
	return t.Kind == TokenLCurly || t.Kind == TokenID && p.peek(k+1).Kind == TokenLParen
}

func (p *parser) parseMember() (expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek(0).Kind == TokenDot {
		p.next()
		t := p.next()
		switch t.Kind {
		case TokenID:
			e = propExpr{obj: e, name: t.Text()}
		case TokenLParen:
			d, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			e = propExpr{obj: e, dynamic: d}
		default:
			return nil, p.errorf(t, "expecting property name, found %s", describe(t))
		}
	}
	return e, nil
}

func (p *parser) parsePrimary() (expr, error) {
	t := p.peek(0)
	switch t.Kind {
	case TokenID:
		p.next()
		if p.peek(0).Kind == TokenLParen {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return callExpr{name: t.Text(), args: args, line: t.Line, col: t.Column}, nil
		}
		return attrExpr{name: t.Text()}, nil
	case TokenString:
		p.next()
		return stringExpr{s: unquote(t.Text())}, nil
	case TokenLCurly:
		sub, err := p.parseSubtemplate()
		if err != nil {
			return nil, err
		}
		return subtemplateExpr{tmpl: sub}, nil
	case TokenLBrack:
		p.next()
		var elems []expr
		for p.peek(0).Kind != TokenRBrack {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.peek(0).Kind != TokenComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(TokenRBrack); err != nil {
			return nil, err
		}
		return listExpr{elems: elems}, nil
	case TokenLParen:
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, p.errorf(t, "unexpected %s in expression", describe(t))
}

func (p *parser) parseArgs() ([]expr, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var args []expr
	if p.peek(0).Kind == TokenRParen {
		p.next()
		return nil, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.peek(0).Kind != TokenComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

// parseSubtemplate parses '{' [ID (',' ID)* '|'] body '}'.
func (p *parser) parseSubtemplate() (*Template, error) {
	lc, err := p.expect(TokenLCurly)
	if err != nil {
		return nil, err
	}
	var params []string
	if p.peek(0).Kind == TokenID {
		for {
			id, err := p.expect(TokenID)
			if err != nil {
				return nil, err
			}
			params = append(params, id.Text())
			if p.peek(0).Kind != TokenComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(TokenPipe); err != nil {
			return nil, err
		}
	}
	saved := p.lineStart
	p.lineStart = false
	body, err := p.parseElements(stopCurly)
	if err != nil {
		return nil, err
	}
	rc, err := p.expect(TokenRCurly)
	if err != nil {
		return nil, err
	}
	p.lineStart = saved

	p.subCount++
	opts := p.tmpl.opts
	opts.params = params
	return &Template{
		name:   fmt.Sprintf("%s_sub%d", p.tmpl.name, p.subCount),
		src:    p.span(lc.Start, rc.Stop),
		root:   sequence(body),
		params: params,
		group:  p.tmpl.group,
		opts:   opts,
	}, nil
}

func (p *parser) span(start, stop int) string {
	if p.src == nil {
		p.src = []rune(p.tmpl.src)
	}
	if start < 0 || stop >= len(p.src) || start > stop {
		return ""
	}
	return string(p.src[start : stop+1])
}

// parseOptions parses "; name[=expr] (, name[=expr])*".
func (p *parser) parseOptions() (*exprOptions, error) {
	if p.peek(0).Kind != TokenSemi {
		return nil, nil
	}
	p.next()
	o := &exprOptions{}
	for {
		id, err := p.expect(TokenID)
		if err != nil {
			return nil, err
		}
		var val expr
		if p.peek(0).Kind == TokenEquals {
			p.next()
			if val, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		switch id.Text() {
		case "separator":
			if val == nil {
				return nil, p.errorf(id, "option separator requires a value")
			}
			o.separator = val
		case "wrap":
			o.wrapSet, o.wrap = true, val
		case "anchor":
			o.anchorSet, o.anchor = true, val
		case "null":
			if val == nil {
				return nil, p.errorf(id, "option null requires a value")
			}
			o.null = val
		default:
			return nil, p.errorf(id, "unknown option %q", id.Text())
		}
		if p.peek(0).Kind != TokenComma {
			return o, nil
		}
		p.next()
	}
}
