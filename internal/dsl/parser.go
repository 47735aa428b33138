package dsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tordrt/reintrospect/internal/catalog"
)

// ErrSyntax is wrapped by every *ParseError.
var ErrSyntax = errors.New("invalid schema document")

// ParseError is a positioned structural error.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Msg)
}

// Unwrap makes errors.Is(err, ErrSyntax) hold for parse errors.
func (e *ParseError) Unwrap() error {
	return ErrSyntax
}

type position struct {
	line int
	col  int
}

// Parse turns source text into a Document. It never returns a partial
// document: any lexical, grammatical or structural problem is an error.
func Parse(src []byte) (*Document, error) {
	p := &parser{
		lex: newLexer(string(src)),
		pos: make(map[interface{}]position),
	}
	doc, err := p.parseDocument()
	if err != nil {
		return nil, err
	}
	if err := p.resolve(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type parser struct {
	lex *lexer
	buf []token
	doc []string
	pos map[interface{}]position
}

// peek returns the n-th upcoming token without consuming it.
// Documentation comments are collected on the way and never returned.
func (p *parser) peek(n int) (token, error) {
	for len(p.buf) <= n {
		tok, err := p.lex.next()
		if err != nil {
			return token{}, err
		}
		if tok.kind == tokDocComment {
			if len(p.buf) == 0 {
				p.doc = append(p.doc, tok.text)
			}
			continue
		}
		p.buf = append(p.buf, tok)
		if tok.kind == tokEOF {
			for len(p.buf) <= n {
				p.buf = append(p.buf, tok)
			}
		}
	}
	return p.buf[n], nil
}

func (p *parser) next() (token, error) {
	tok, err := p.peek(0)
	if err != nil {
		return token{}, err
	}
	p.buf = p.buf[1:]
	return tok, nil
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok, err := p.next()
	if err != nil {
		return token{}, err
	}
	if tok.kind != kind {
		return token{}, p.unexpected(tok, kind.String())
	}
	return tok, nil
}

func (p *parser) unexpected(tok token, want string) error {
	return &ParseError{Line: tok.line, Column: tok.col, Msg: fmt.Sprintf("unexpected %s, expected %s", tok.describe(), want)}
}

// takeDoc returns the pending documentation comment and clears it.
func (p *parser) takeDoc() string {
	doc := strings.Join(p.doc, "\n")
	p.doc = nil
	return doc
}

func (p *parser) parseDocument() (*Document, error) {
	doc := &Document{}
	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok.kind == tokEOF {
			return doc, nil
		}
		if tok.kind != tokIdent {
			return nil, p.unexpected(tok, "a block (datasource, generator, model or enum)")
		}

		var block Block
		switch tok.text {
		case "datasource":
			block, err = p.parseDatasource()
		case "generator":
			block, err = p.parseGenerator()
		case "model":
			block, err = p.parseModel()
		case "enum":
			block, err = p.parseEnum()
		default:
			return nil, p.unexpected(tok, "a block (datasource, generator, model or enum)")
		}
		if err != nil {
			return nil, err
		}
		doc.Blocks = append(doc.Blocks, block)
	}
}

func (p *parser) parseBlockHeader() (token, error) {
	if _, err := p.expect(tokIdent); err != nil {
		return token{}, err
	}
	name, err := p.expect(tokIdent)
	if err != nil {
		return token{}, err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return token{}, err
	}
	return name, nil
}

func (p *parser) parseProperties() ([]*Property, error) {
	var props []*Property
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokRBrace {
			p.takeDoc()
			return props, nil
		}
		if tok.kind != tokIdent {
			return nil, p.unexpected(tok, "a property name or '}'")
		}
		if _, err := p.expect(tokEquals); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		prop := &Property{Key: tok.text, Value: value}
		p.pos[prop] = position{tok.line, tok.col}
		props = append(props, prop)
	}
}

func (p *parser) parseDatasource() (*Datasource, error) {
	p.takeDoc()
	name, err := p.parseBlockHeader()
	if err != nil {
		return nil, err
	}
	props, err := p.parseProperties()
	if err != nil {
		return nil, err
	}
	ds := &Datasource{Name: name.text, Properties: props}
	p.pos[ds] = position{name.line, name.col}
	return ds, nil
}

func (p *parser) parseGenerator() (*Generator, error) {
	p.takeDoc()
	name, err := p.parseBlockHeader()
	if err != nil {
		return nil, err
	}
	props, err := p.parseProperties()
	if err != nil {
		return nil, err
	}
	return &Generator{Name: name.text, Properties: props}, nil
}

func (p *parser) parseModel() (*Model, error) {
	doc := p.takeDoc()
	name, err := p.parseBlockHeader()
	if err != nil {
		return nil, err
	}
	m := &Model{Name: name.text, Documentation: doc}
	p.pos[m] = position{name.line, name.col}

	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokRBrace:
			p.next()
			p.takeDoc()
			return m, nil
		case tokAtAt:
			p.takeDoc()
			p.next()
			attr, err := p.parseAttribute()
			if err != nil {
				return nil, err
			}
			p.pos[attr] = position{tok.line, tok.col}
			m.Attributes = append(m.Attributes, attr)
		case tokIdent:
			f, err := p.parseField()
			if err != nil {
				return nil, err
			}
			m.Fields = append(m.Fields, f)
		default:
			p.next()
			return nil, p.unexpected(tok, "a field, a block attribute or '}'")
		}
	}
}

func (p *parser) parseField() (*Field, error) {
	doc := p.takeDoc()
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	typ, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	f := &Field{Name: name.text, Documentation: doc, Type: FieldType{Name: typ.text}}
	p.pos[f] = position{name.line, name.col}

	if typ.text == "Unsupported" {
		if _, err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		native, err := p.expect(tokString)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		f.Type.Unsupported = native.text
	}

	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokQuestion:
		p.next()
		f.Type.Arity = Optional
	case tokLBracket:
		p.next()
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		f.Type.Arity = List
	}

	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok.kind != tokAt {
			return f, nil
		}
		p.next()
		attr, err := p.parseAttribute()
		if err != nil {
			return nil, err
		}
		p.pos[attr] = position{tok.line, tok.col}
		f.Attributes = append(f.Attributes, attr)
	}
}

func (p *parser) parseEnum() (*Enum, error) {
	doc := p.takeDoc()
	name, err := p.parseBlockHeader()
	if err != nil {
		return nil, err
	}
	e := &Enum{Name: name.text, Documentation: doc}
	p.pos[e] = position{name.line, name.col}

	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokRBrace:
			p.takeDoc()
			return e, nil
		case tokAtAt:
			attr, err := p.parseAttribute()
			if err != nil {
				return nil, err
			}
			p.pos[attr] = position{tok.line, tok.col}
			e.Attributes = append(e.Attributes, attr)
		case tokIdent:
			p.takeDoc()
			v := &EnumValue{Name: tok.text}
			for {
				at, err := p.peek(0)
				if err != nil {
					return nil, err
				}
				if at.kind != tokAt {
					break
				}
				p.next()
				attr, err := p.parseAttribute()
				if err != nil {
					return nil, err
				}
				v.Attributes = append(v.Attributes, attr)
			}
			e.Values = append(e.Values, v)
		default:
			return nil, p.unexpected(tok, "an enum value, a block attribute or '}'")
		}
	}
}

// parseAttribute parses the part after @ or @@: a dotted name and optional arguments.
func (p *parser) parseAttribute() (*Attribute, error) {
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	attr := &Attribute{Name: name.text}
	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok.kind != tokDot {
			break
		}
		p.next()
		part, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		attr.Name += "." + part.text
	}

	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if tok.kind == tokLParen {
		if attr.Args, err = p.parseArgs(); err != nil {
			return nil, err
		}
	}
	return attr, nil
}

func (p *parser) parseArgs() ([]*Arg, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	args := []*Arg{}
	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok.kind == tokRParen {
			p.next()
			return args, nil
		}

		arg := &Arg{}
		after, err := p.peek(1)
		if err != nil {
			return nil, err
		}
		if tok.kind == tokIdent && after.kind == tokColon {
			p.next()
			p.next()
			arg.Name = tok.text
		}
		if arg.Value, err = p.parseExpr(); err != nil {
			return nil, err
		}
		args = append(args, arg)

		sep, err := p.next()
		if err != nil {
			return nil, err
		}
		switch sep.kind {
		case tokComma:
		case tokRParen:
			return args, nil
		default:
			return nil, p.unexpected(sep, "',' or ')'")
		}
	}
}

func (p *parser) parseExpr() (Expr, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokString:
		return &StringExpr{Value: tok.text}, nil
	case tokNumber:
		return &NumberExpr{Text: tok.text}, nil
	case tokLBracket:
		arr := &ArrayExpr{}
		for {
			next, err := p.peek(0)
			if err != nil {
				return nil, err
			}
			if next.kind == tokRBracket {
				p.next()
				return arr, nil
			}
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, item)
			sep, err := p.next()
			if err != nil {
				return nil, err
			}
			switch sep.kind {
			case tokComma:
			case tokRBracket:
				return arr, nil
			default:
				return nil, p.unexpected(sep, "',' or ']'")
			}
		}
	case tokIdent:
		next, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if next.kind == tokLParen {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &FuncExpr{Name: tok.text, Args: args}, nil
		}
		return &ConstExpr{Name: tok.text}, nil
	}
	return nil, p.unexpected(tok, "a value")
}

func (p *parser) errorAt(node interface{}, format string, args ...interface{}) error {
	pos := p.pos[node]
	return &ParseError{Line: pos.line, Column: pos.col, Msg: fmt.Sprintf(format, args...)}
}

// resolve validates cross references, classifies fields and extracts the
// rename and relation-mode directives.
func (p *parser) resolve(doc *Document) error {
	types := make(map[string]Block)
	for _, b := range doc.Blocks {
		switch b.(type) {
		case *Model, *Enum:
			if _, dup := types[b.BlockName()]; dup {
				return p.errorAt(b, "%q is defined more than once", b.BlockName())
			}
			types[b.BlockName()] = b
		}
	}

	datasources := 0
	for _, b := range doc.Blocks {
		switch v := b.(type) {
		case *Datasource:
			datasources++
			if datasources > 1 {
				return p.errorAt(v, "only one datasource block is allowed")
			}
			if err := p.resolveDatasource(v); err != nil {
				return err
			}
		case *Model:
			if err := p.resolveMap(v, &v.Attributes, &v.DBName); err != nil {
				return err
			}
		case *Enum:
			if err := p.resolveMap(v, &v.Attributes, &v.DBName); err != nil {
				return err
			}
		}
	}

	for _, m := range doc.Models() {
		seen := make(map[string]bool, len(m.Fields))
		for _, f := range m.Fields {
			if seen[f.Name] {
				return p.errorAt(f, "field %s is defined more than once in model %s", f.Name, m.Name)
			}
			seen[f.Name] = true
			if err := p.classify(f, types); err != nil {
				return err
			}
		}
		for _, f := range m.Fields {
			if f.Kind != RelationField {
				continue
			}
			for _, name := range f.Relation.Fields {
				local := m.Field(name)
				if local == nil || local.Kind != ScalarField {
					return p.errorAt(f, "relation field %s.%s refers to %q, which is not a scalar field of %s",
						m.Name, f.Name, name, m.Name)
				}
			}
			target := doc.Model(f.Type.Name)
			for _, name := range f.Relation.References {
				remote := target.Field(name)
				if remote == nil || remote.Kind != ScalarField {
					return p.errorAt(f, "relation field %s.%s references %q, which is not a scalar field of %s",
						m.Name, f.Name, name, target.Name)
				}
			}
		}
	}
	return nil
}

func (p *parser) resolveDatasource(ds *Datasource) error {
	kept := ds.Properties[:0:0]
	for _, prop := range ds.Properties {
		if prop.Key != RelationModeKey && prop.Key != ReferentialIntegrityKey {
			kept = append(kept, prop)
			continue
		}
		if ds.RelationMode != nil {
			return p.errorAt(prop, "%s and %s cannot both be set", RelationModeKey, ReferentialIntegrityKey)
		}
		s, ok := prop.Value.(*StringExpr)
		if !ok {
			return p.errorAt(prop, "%s must be a string", prop.Key)
		}
		mode, err := ParseRelationMode(s.Value)
		if err != nil {
			return p.errorAt(prop, "%v", err)
		}
		ds.RelationMode = &RelationModeSetting{Mode: mode, Legacy: prop.Key == ReferentialIntegrityKey, Position: len(kept) + 1}
	}
	if ds.RelationMode != nil && ds.RelationMode.Position > len(kept) {
		ds.RelationMode.Position = 0
	}
	ds.Properties = kept
	return nil
}

func (p *parser) resolveMap(block Block, attrs *[]*Attribute, dbName *string) error {
	kept := (*attrs)[:0:0]
	for _, a := range *attrs {
		if a.Name != "map" {
			kept = append(kept, a)
			continue
		}
		s, ok := a.Arg("name", 0).(*StringExpr)
		if !ok {
			return p.errorAt(a, "@@map on %s needs a string argument", block.BlockName())
		}
		*dbName = s.Value
	}
	*attrs = kept
	return nil
}

func (p *parser) classify(f *Field, types map[string]Block) error {
	if f.Type.IsUnsupported() || catalog.IsScalar(f.Type.Name) {
		f.Kind = ScalarField
		return nil
	}
	switch types[f.Type.Name].(type) {
	case *Enum:
		f.Kind = ScalarField
		return nil
	case *Model:
	default:
		return p.errorAt(f, "type %q of field %s is neither a built-in type nor a model or enum", f.Type.Name, f.Name)
	}

	rel := &Relation{}
	attr := f.Attribute("relation")
	if attr != nil {
		if s, ok := attr.Arg("name", 0).(*StringExpr); ok {
			rel.Name = s.Value
		}
	}
	f.Relation = rel

	if attr == nil || attr.Arg("fields", -1) == nil {
		f.Kind = BackrefField
		return nil
	}

	fields, ok := Identifiers(attr.Arg("fields", -1))
	if !ok || len(fields) == 0 {
		return p.errorAt(f, "fields of relation %s must be a non-empty list of field names", f.Name)
	}
	refs, ok := Identifiers(attr.Arg("references", -1))
	if !ok || len(refs) == 0 {
		return p.errorAt(f, "references of relation %s must be a non-empty list of field names", f.Name)
	}
	if len(fields) != len(refs) {
		return p.errorAt(f, "relation %s has %d fields but %d references", f.Name, len(fields), len(refs))
	}
	if f.Type.Arity == List {
		return p.errorAt(f, "relation %s declares fields but is a list", f.Name)
	}
	rel.Fields = fields
	rel.References = refs
	f.Kind = RelationField
	return nil
}
