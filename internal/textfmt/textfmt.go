// Package textfmt implements the text grammar shared by serialized networks and pipelines.
//
// A record is a sequence of semicolon-terminated keyed fields:
//
//	key:value;key:value;
//
// A value is either a scalar (anything up to the next ';'), a comma list (or "none" when
// empty), or a nested item list introduced by a newline, whose items are joined by ",\n":
//
//	layers:
//	neurons:
//	AF:ReLU;...;inputs:none;,
//	AF:ReLU;...;inputs:none;;
//
// Item lists carry no length prefix: after each item the scanner looks at the key that
// follows ",\n" to decide whether another item of the same kind starts there.
package textfmt

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// None is written in place of an empty list.
const None = "none"

// SyntaxError is a malformed-input error at a byte offset.
type SyntaxError struct {
	Offset int
	Field  string
	Msg    string
}

func (e *SyntaxError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("offset %d (%s): %s", e.Offset, e.Field, e.Msg)
	}
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

// FormatFloat formats v so that ParseFloat returns exactly v.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatFloats formats vs as a comma list, or None if it is empty.
func FormatFloats(vs []float64) string {
	if len(vs) == 0 {
		return None
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = FormatFloat(v)
	}
	return strings.Join(parts, ",")
}

// SplitList splits a comma list, returning nil for None.
func SplitList(s string) []string {
	if s == None || s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// EncodeDigits writes every value as one decimal digit character.
// Values that are not integers in [0, 9] cannot be represented and return an error.
func EncodeDigits(vs []float64) (string, error) {
	var b strings.Builder
	b.Grow(len(vs))
	for i, v := range vs {
		if v < 0 || v > 9 || v != math.Trunc(v) {
			return "", fmt.Errorf("value %s at index %d is not a single decimal digit", FormatFloat(v), i)
		}
		b.WriteByte('0' + byte(v))
	}
	return b.String(), nil
}

// DecodeDigits reverses EncodeDigits.
func DecodeDigits(s string) ([]float64, error) {
	vs := make([]float64, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("character %q at index %d is not a decimal digit", c, i)
		}
		vs[i] = float64(c - '0')
	}
	return vs, nil
}

// Writer builds text in the grammar.
type Writer struct {
	b strings.Builder
}

// Key writes "key:".
func (w *Writer) Key(key string) {
	w.b.WriteString(key)
	w.b.WriteByte(':')
}

// End terminates the current field.
func (w *Writer) End() {
	w.b.WriteByte(';')
}

// Raw writes s unchanged.
func (w *Writer) Raw(s string) {
	w.b.WriteString(s)
}

// Field writes a complete scalar field.
func (w *Writer) Field(key, value string) {
	w.Key(key)
	w.b.WriteString(value)
	w.End()
}

// Int writes an integer field.
func (w *Writer) Int(key string, v int) {
	w.Field(key, strconv.Itoa(v))
}

// Float writes a float field.
func (w *Writer) Float(key string, v float64) {
	w.Field(key, FormatFloat(v))
}

// Bool writes a boolean field.
func (w *Writer) Bool(key string, v bool) {
	w.Field(key, strconv.FormatBool(v))
}

// Floats writes a comma list field.
func (w *Writer) Floats(key string, vs []float64) {
	w.Field(key, FormatFloats(vs))
}

// Items writes "key:\n" followed by n items joined by ",\n". It does not terminate the field.
func (w *Writer) Items(key string, n int, item func(i int)) {
	w.Key(key)
	w.b.WriteByte('\n')
	for i := 0; i < n; i++ {
		if i > 0 {
			w.b.WriteString(",\n")
		}
		item(i)
	}
}

// String returns the text written so far.
func (w *Writer) String() string {
	return w.b.String()
}

// Scanner reads text in the grammar.
type Scanner struct {
	s   string
	pos int
}

// NewScanner returns a Scanner positioned at the start of s.
func NewScanner(s string) *Scanner {
	return &Scanner{s: s}
}

// Offset returns the current byte offset.
func (sc *Scanner) Offset() int {
	return sc.pos
}

// Done reports whether all input has been consumed.
func (sc *Scanner) Done() bool {
	return sc.pos >= len(sc.s)
}

func (sc *Scanner) errorAt(offset int, format string, args ...any) error {
	return &SyntaxError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Errorf returns a *SyntaxError at the current offset.
func (sc *Scanner) Errorf(format string, args ...any) error {
	return sc.errorAt(sc.pos, format, args...)
}

func (sc *Scanner) scanKey() (string, int, error) {
	for i := sc.pos; i < len(sc.s); i++ {
		switch sc.s[i] {
		case ':':
			if i == sc.pos {
				return "", 0, sc.Errorf("empty field key")
			}
			return sc.s[sc.pos:i], i + 1, nil
		case ';', ',', '\n':
			return "", 0, sc.errorAt(i, "unexpected %q in field key", sc.s[i])
		}
	}
	return "", 0, sc.errorAt(len(sc.s), "unexpected end of input in field key")
}

// Key reads a field key and its ':' separator.
func (sc *Scanner) Key() (string, error) {
	key, next, err := sc.scanKey()
	if err != nil {
		return "", err
	}
	sc.pos = next
	return key, nil
}

// PeekKey returns the next field key without consuming it.
func (sc *Scanner) PeekKey() (string, bool) {
	key, _, err := sc.scanKey()
	return key, err == nil
}

// Value reads a scalar value up to and including its terminating ';'.
func (sc *Scanner) Value() (string, error) {
	i := strings.IndexByte(sc.s[sc.pos:], ';')
	if i < 0 {
		return "", sc.errorAt(len(sc.s), "unexpected end of input: missing ';'")
	}
	v := sc.s[sc.pos : sc.pos+i]
	sc.pos += i + 1
	return v, nil
}

// Accept consumes lit if the input continues with it.
func (sc *Scanner) Accept(lit string) bool {
	if strings.HasPrefix(sc.s[sc.pos:], lit) {
		sc.pos += len(lit)
		return true
	}
	return false
}

// Expect consumes lit or fails.
func (sc *Scanner) Expect(lit string) error {
	if !sc.Accept(lit) {
		return sc.Errorf("expected %q", lit)
	}
	return nil
}

// Int reads an integer value.
func (sc *Scanner) Int() (int, error) {
	start := sc.pos
	v, err := sc.Value()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, sc.errorAt(start, "%q is not an integer", v)
	}
	return n, nil
}

// Float reads a float value.
func (sc *Scanner) Float() (float64, error) {
	start := sc.pos
	v, err := sc.Value()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, sc.errorAt(start, "%q is not a number", v)
	}
	return f, nil
}

// Bool reads a boolean value. "True" and "true" are both accepted.
func (sc *Scanner) Bool() (bool, error) {
	start := sc.pos
	v, err := sc.Value()
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, sc.errorAt(start, "%q is not a boolean", v)
	}
	return b, nil
}

// Floats reads a comma list of floats, or None.
func (sc *Scanner) Floats() ([]float64, error) {
	start := sc.pos
	v, err := sc.Value()
	if err != nil {
		return nil, err
	}
	parts := SplitList(v)
	if parts == nil {
		return nil, nil
	}
	fs := make([]float64, len(parts))
	for i, p := range parts {
		fs[i], err = strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, sc.errorAt(start, "list element %d (%q) is not a number", i, p)
		}
	}
	return fs, nil
}

// Record parses keyed fields in any order until every key in handlers has been seen exactly
// once. Each handler consumes its own value.
func (sc *Scanner) Record(handlers map[string]func() error) error {
	seen := make(map[string]bool, len(handlers))
	for len(seen) < len(handlers) {
		if sc.Done() {
			var missing []string
			for k := range handlers {
				if !seen[k] {
					missing = append(missing, k)
				}
			}
			sort.Strings(missing)
			return sc.Errorf("truncated input: missing field(s) %s", strings.Join(missing, ", "))
		}
		start := sc.pos
		key, err := sc.Key()
		if err != nil {
			return err
		}
		h, ok := handlers[key]
		if !ok {
			return sc.errorAt(start, "unknown field %q", key)
		}
		if seen[key] {
			return sc.errorAt(start, "duplicate field %q", key)
		}
		seen[key] = true
		if err := h(); err != nil {
			if se, ok := err.(*SyntaxError); ok && se.Field == "" {
				se.Field = key
			}
			return err
		}
	}
	return nil
}

// Items reads "\n" followed by one or more items joined by ",\n". After each item, another
// one is read only if the key following ",\n" satisfies continues; otherwise the ",\n" is
// left unread for the enclosing list.
func (sc *Scanner) Items(continues func(key string) bool, item func() error) error {
	if err := sc.Expect("\n"); err != nil {
		return err
	}
	for {
		if err := item(); err != nil {
			return err
		}
		mark := sc.pos
		if !sc.Accept(",\n") {
			return nil
		}
		if key, ok := sc.PeekKey(); ok && continues(key) {
			continue
		}
		sc.pos = mark
		return nil
	}
}
