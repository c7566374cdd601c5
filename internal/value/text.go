package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedText is returned for any textual document that does not match
// the tolerant JSON grammar this parser accepts.
var ErrMalformedText = errors.New("value: malformed text")

// Parse runs a recursive-descent parse over the tolerant JSON grammar
// described by the data model: whitespace between tokens is ignored,
// numbers are integers unless they contain a decimal point (no exponent
// support), string escapes are not interpreted, and duplicate object keys
// are tolerated with last-write-wins semantics.
func Parse(source string) (Value, error) {
	p := &textParser{src: source}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return Value{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Value{}, fmt.Errorf("%w: trailing data at offset %d", ErrMalformedText, p.pos)
	}
	return v, nil
}

// ParseDocument parses source and requires the top-level Value to be an
// object, as the data model mandates for documents.
func ParseDocument(source string) (Value, error) {
	v, err := Parse(source)
	if err != nil {
		return Value{}, err
	}
	if !v.IsObject() {
		return Value{}, fmt.Errorf("%w: document must be a JSON object", ErrMalformedText)
	}
	return v, nil
}

type textParser struct {
	src string
	pos int
}

func (p *textParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *textParser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *textParser) parseValue() (Value, error) {
	c, ok := p.peek()
	if !ok {
		return Value{}, fmt.Errorf("%w: unexpected end of input", ErrMalformedText)
	}
	switch {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		s, err := p.parseString()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case c == 't':
		return p.parseLiteral("true", Bool(true))
	case c == 'f':
		return p.parseLiteral("false", Bool(false))
	case c == 'n':
		return p.parseLiteral("null", Null())
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return Value{}, fmt.Errorf("%w: unexpected character %q at offset %d", ErrMalformedText, c, p.pos)
	}
}

func (p *textParser) parseLiteral(lit string, v Value) (Value, error) {
	if !strings.HasPrefix(p.src[p.pos:], lit) {
		return Value{}, fmt.Errorf("%w: expected %q at offset %d", ErrMalformedText, lit, p.pos)
	}
	p.pos += len(lit)
	return v, nil
}

func (p *textParser) parseNumber() (Value, error) {
	start := p.pos
	if c, ok := p.peek(); ok && c == '-' {
		p.pos++
	}
	digits := 0
	for {
		c, ok := p.peek()
		if !ok || c < '0' || c > '9' {
			break
		}
		p.pos++
		digits++
	}
	if digits == 0 {
		return Value{}, fmt.Errorf("%w: invalid number at offset %d", ErrMalformedText, start)
	}
	isFloat := false
	if c, ok := p.peek(); ok && c == '.' {
		isFloat = true
		p.pos++
		fracDigits := 0
		for {
			c, ok := p.peek()
			if !ok || c < '0' || c > '9' {
				break
			}
			p.pos++
			fracDigits++
		}
		if fracDigits == 0 {
			return Value{}, fmt.Errorf("%w: invalid number at offset %d", ErrMalformedText, start)
		}
	}
	text := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedText, err)
		}
		return Float(f), nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedText, err)
	}
	return Int(i), nil
}

// parseString consumes a double-quoted slice. Backslashes are not treated
// as escape introducers; the string ends at the next double quote.
func (p *textParser) parseString() (string, error) {
	if c, ok := p.peek(); !ok || c != '"' {
		return "", fmt.Errorf("%w: expected string at offset %d", ErrMalformedText, p.pos)
	}
	p.pos++
	start := p.pos
	for {
		c, ok := p.peek()
		if !ok {
			return "", fmt.Errorf("%w: unterminated string starting at offset %d", ErrMalformedText, start)
		}
		if c == '"' {
			s := p.src[start:p.pos]
			p.pos++
			return s, nil
		}
		p.pos++
	}
}

func (p *textParser) expect(c byte) error {
	got, ok := p.peek()
	if !ok || got != c {
		return fmt.Errorf("%w: expected %q at offset %d", ErrMalformedText, c, p.pos)
	}
	p.pos++
	return nil
}

func (p *textParser) parseObject() (Value, error) {
	if err := p.expect('{'); err != nil {
		return Value{}, err
	}
	fields := make(map[string]Value)
	p.skipSpace()
	if c, ok := p.peek(); ok && c == '}' {
		p.pos++
		return Value{kind: KindObject, obj: fields}, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseString()
		if err != nil {
			return Value{}, err
		}
		p.skipSpace()
		if err := p.expect(':'); err != nil {
			return Value{}, err
		}
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		// Last-write-wins: a document with duplicate keys is tolerated on
		// parse even though construction via the API disallows it.
		fields[key] = val
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return Value{}, fmt.Errorf("%w: unterminated object", ErrMalformedText)
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == '}' {
			p.pos++
			return Value{kind: KindObject, obj: fields}, nil
		}
		return Value{}, fmt.Errorf("%w: expected ',' or '}' at offset %d", ErrMalformedText, p.pos)
	}
}

func (p *textParser) parseArray() (Value, error) {
	if err := p.expect('['); err != nil {
		return Value{}, err
	}
	items := make([]Value, 0)
	p.skipSpace()
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return Value{kind: KindArray, arr: items}, nil
	}
	for {
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		items = append(items, val)
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return Value{}, fmt.Errorf("%w: unterminated array", ErrMalformedText)
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == ']' {
			p.pos++
			return Value{kind: KindArray, arr: items}, nil
		}
		return Value{}, fmt.Errorf("%w: expected ',' or ']' at offset %d", ErrMalformedText, p.pos)
	}
}

// Emit renders v in the textual form. Objects/arrays/strings/booleans/null
// are emitted exactly as JSON; integers as decimal; floats as fixed-point.
// The emitter does not guarantee bitwise float round-tripping; it only
// guarantees Parse(Emit(v)) == v for values this emitter itself
// produces.
func Emit(v Value) string {
	var b strings.Builder
	emitInto(&b, v)
	return b.String()
}

func emitInto(b *strings.Builder, v Value) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		if v.b {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindInt:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		b.WriteString(strconv.FormatFloat(v.f, 'f', 6, 64))
	case KindString:
		b.WriteByte('"')
		b.WriteString(v.s)
		b.WriteByte('"')
	case KindObject:
		b.WriteByte('{')
		first := true
		for k, f := range v.obj {
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteByte('"')
			b.WriteString(k)
			b.WriteString("\":")
			emitInto(b, f)
		}
		b.WriteByte('}')
	case KindArray:
		b.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				b.WriteByte(',')
			}
			emitInto(b, e)
		}
		b.WriteByte(']')
	}
}
