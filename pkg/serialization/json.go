package serialization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"
)

// NamingPolicy controls how property names are emitted.
type NamingPolicy int

const (
	// NamingDefault emits property names unchanged.
	NamingDefault NamingPolicy = iota
	// NamingCamelCase lower-cases the first character of every property name.
	NamingCamelCase
)

func (p NamingPolicy) String() string {
	if p == NamingCamelCase {
		return "CamelCase"
	}
	return "Default"
}

// Options parameterizes the built-in JSON serializer. The zero value is the default behaviour.
type Options struct {
	IgnoreNullValues     bool
	Indented             bool
	PropertyNamingPolicy NamingPolicy
}

// IsDefault reports whether every option is at its default.
func (o Options) IsDefault() bool {
	return o == Options{}
}

// JSONSerializer is the built-in RawSerializer.
type JSONSerializer struct {
	opts Options
}

// NewJSONSerializer creates a JSON serializer honouring opts.
func NewJSONSerializer(opts Options) *JSONSerializer {
	return &JSONSerializer{opts: opts}
}

// Options returns the options the serializer was built with.
func (s *JSONSerializer) Options() Options {
	return s.opts
}

// ToStream encodes v as JSON.
func (s *JSONSerializer) ToStream(v any) (io.Reader, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if s.opts.IsDefault() {
		return bytes.NewReader(raw), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tree, err := readValue(dec)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	tree = s.reshape(tree)

	var buf bytes.Buffer
	w := &writer{buf: &buf, indented: s.opts.Indented}
	if err := w.write(tree, 0); err != nil {
		return nil, err
	}
	return &buf, nil
}

// FromStream decodes JSON from r into v. Property matching is case-insensitive,
// so camel-cased payloads decode into exported Go fields.
func (s *JSONSerializer) FromStream(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// member is one property of an object, in emission order.
type member struct {
	name  string
	value any
}

// object keeps property order from the encoder (struct field order, sorted map keys).
type object []member

func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := object{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}
			val, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, member{name: key, value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

func (s *JSONSerializer) reshape(v any) any {
	switch t := v.(type) {
	case object:
		out := make(object, 0, len(t))
		for _, m := range t {
			if m.value == nil && s.opts.IgnoreNullValues {
				continue
			}
			name := m.name
			if s.opts.PropertyNamingPolicy == NamingCamelCase {
				name = camelCase(name)
			}
			out = append(out, member{name: name, value: s.reshape(m.value)})
		}
		return out
	case []any:
		for i := range t {
			t[i] = s.reshape(t[i])
		}
		return t
	default:
		return v
	}
}

func camelCase(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

const (
	indentUnit = "  "
	newline    = "\r\n"
)

type writer struct {
	buf      *bytes.Buffer
	indented bool
}

func (w *writer) write(v any, depth int) error {
	switch t := v.(type) {
	case nil:
		w.buf.WriteString("null")
	case bool:
		if t {
			w.buf.WriteString("true")
		} else {
			w.buf.WriteString("false")
		}
	case json.Number:
		w.buf.WriteString(t.String())
	case string:
		return w.writeString(t)
	case object:
		if len(t) == 0 {
			w.buf.WriteString("{}")
			return nil
		}
		w.buf.WriteByte('{')
		for i, m := range t {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			w.breakLine(depth + 1)
			if err := w.writeString(m.name); err != nil {
				return err
			}
			w.buf.WriteByte(':')
			if w.indented {
				w.buf.WriteByte(' ')
			}
			if err := w.write(m.value, depth+1); err != nil {
				return err
			}
		}
		w.breakLine(depth)
		w.buf.WriteByte('}')
	case []any:
		if len(t) == 0 {
			w.buf.WriteString("[]")
			return nil
		}
		w.buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			w.breakLine(depth + 1)
			if err := w.write(elem, depth+1); err != nil {
				return err
			}
		}
		w.breakLine(depth)
		w.buf.WriteByte(']')
	default:
		return fmt.Errorf("unsupported token type %T", v)
	}
	return nil
}

func (w *writer) writeString(s string) error {
	quoted, err := json.Marshal(s)
	if err != nil {
		return err
	}
	w.buf.Write(quoted)
	return nil
}

func (w *writer) breakLine(depth int) {
	if !w.indented {
		return
	}
	w.buf.WriteString(newline)
	for range depth {
		w.buf.WriteString(indentUnit)
	}
}
