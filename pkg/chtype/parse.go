package chtype

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

var scalarByName = map[string]Type{
	"Int8":    Int8,
	"Int16":   Int16,
	"Int32":   Int32,
	"Int64":   Int64,
	"UInt8":   UInt8,
	"UInt16":  UInt16,
	"UInt32":  UInt32,
	"UInt64":  UInt64,
	"Float32": Float32,
	"Float64": Float64,
	"Bool":    Bool,
	"Boolean": Bool,
	"String":  String,
	"UUID":    UUID,
}

// Parse reads a ClickHouse type spelling such as
// "LowCardinality(Nullable(String))" or "Array(Tuple(a Int32, b String))".
// Well-formed types without a mapping are returned as KindUnsupported;
// malformed text and nestings ClickHouse rejects yield a decoding error.
func Parse(s string) (Type, error) {
	p := &parser{src: s}
	t, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Type{}, p.errorf("unexpected trailing input %q", p.src[p.pos:])
	}
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level tables.
func MustParse(s string) Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeDecoding, format, args...).
		WithDataType(p.src).
		WithDetail("offset", p.pos)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) parseType() (Type, error) {
	start := p.pos
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return Type{}, p.errorf("expected type name")
	}
	p.skipSpace()
	hasArgs := p.peek() == '('

	if t, ok := scalarByName[name]; ok && !hasArgs {
		return t, nil
	}

	switch name {
	case "Nullable", "LowCardinality", "Array":
		if !hasArgs {
			return Type{}, p.errorf("%s requires an argument", name)
		}
		p.pos++
		elem, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(')'); err != nil {
			return Type{}, err
		}
		return p.wrap(name, elem)
	case "FixedString":
		if !hasArgs {
			return Type{}, p.errorf("FixedString requires a length")
		}
		p.pos++
		p.skipSpace()
		digitsStart := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		n, err := strconv.Atoi(p.src[digitsStart:p.pos])
		if err != nil || n <= 0 {
			return Type{}, p.errorf("invalid FixedString length")
		}
		if err := p.expect(')'); err != nil {
			return Type{}, err
		}
		return Type{Kind: KindFixedString, Length: n}, nil
	case "Tuple":
		if !hasArgs {
			return Type{}, p.errorf("Tuple requires elements")
		}
		return p.parseTuple(start)
	}

	if hasArgs {
		if err := p.skipArgs(); err != nil {
			return Type{}, err
		}
	}
	return Unsupported(strings.TrimSpace(p.src[start:p.pos])), nil
}

func (p *parser) wrap(name string, elem Type) (Type, error) {
	var (
		t   Type
		err error
	)
	switch name {
	case "Nullable":
		if elem.Kind == KindUnsupported {
			// Nullable(Date) and friends are valid server types we do not map.
			return Unsupported("Nullable(" + elem.Spelling + ")"), nil
		}
		t, err = Nullable(elem)
	case "LowCardinality":
		if elem.Base().Kind == KindUnsupported {
			return Unsupported("LowCardinality(" + elem.String() + ")"), nil
		}
		t, err = LowCardinality(elem)
	default:
		t = Array(elem)
	}
	if err != nil {
		return Type{}, errors.Wrap(err, errors.ErrorTypeDecoding, "invalid type nesting").WithDataType(p.src)
	}
	return t, nil
}

// parseTuple reads the element list after "Tuple". A tuple with any
// unnamed element is returned as KindUnsupported.
func (p *parser) parseTuple(start int) (Type, error) {
	p.pos++ // (
	var fields []Field
	named := true
	for {
		p.skipSpace()
		name, isName, err := p.tupleElementName()
		if err != nil {
			return Type{}, err
		}
		if !isName {
			named = false
		}
		elem, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		fields = append(fields, Field{Name: name, Type: elem})

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			continue
		case ')':
			p.pos++
		default:
			return Type{}, p.errorf("expected ',' or ')' in Tuple")
		}
		break
	}

	if !named {
		return Unsupported(strings.TrimSpace(p.src[start:p.pos])), nil
	}
	t, err := Tuple(fields...)
	if err != nil {
		return Type{}, errors.Wrap(err, errors.ErrorTypeDecoding, "invalid Tuple").WithDataType(p.src)
	}
	return t, nil
}

// tupleElementName consumes an element name if one precedes the element
// type. It leaves the position untouched for unnamed elements.
func (p *parser) tupleElementName() (string, bool, error) {
	save := p.pos
	if p.peek() == '`' {
		p.pos++
		var sb strings.Builder
		for p.pos < len(p.src) {
			c := p.src[p.pos]
			switch {
			case c == '\\' && p.pos+1 < len(p.src):
				sb.WriteByte(p.src[p.pos+1])
				p.pos += 2
				continue
			case c == '`':
				p.pos++
				return sb.String(), true, nil
			}
			sb.WriteByte(c)
			p.pos++
		}
		return "", false, p.errorf("unterminated quoted identifier")
	}

	name := p.ident()
	p.skipSpace()
	switch p.peek() {
	case ',', ')', '(', 0:
		p.pos = save
		return "", false, nil
	}
	return name, name != "", nil
}

// skipArgs consumes a balanced parenthesised argument list, honouring
// quoted literals.
func (p *parser) skipArgs() error {
	depth := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				p.pos++
				return nil
			}
		case '\'', '`', '"':
			if err := p.skipQuoted(c); err != nil {
				return err
			}
			continue
		}
		p.pos++
	}
	return p.errorf("unbalanced parentheses")
}

func (p *parser) skipQuoted(q byte) error {
	p.pos++
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case q:
			p.pos++
			return nil
		}
		p.pos++
	}
	return p.errorf("unterminated quoted literal")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
