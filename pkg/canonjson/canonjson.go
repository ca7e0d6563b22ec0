// Package canonjson writes JSON in the canonical text form used for request
// payloads and result lines: input key order is kept, items are separated by
// ", " and keys by ": ", and all output is ASCII.
package canonjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
)

const hexDigits = "0123456789abcdef"

// Reformat rewrites a single JSON value into canonical form.
func Reformat(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var buf bytes.Buffer
	if err := writeValue(&buf, dec); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}

	return buf.Bytes(), nil
}

// Marshal encodes v with encoding/json and returns the canonical form.
// Struct fields keep their declaration order.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}

	return Reformat(raw)
}

func writeValue(buf *bytes.Buffer, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return writeObject(buf, dec)
		case '[':
			return writeArray(buf, dec)
		default:
			return fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		writeString(buf, t)
	case json.Number:
		buf.WriteString(t.String())
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("unexpected token %v", tok)
	}

	return nil
}

func writeObject(buf *bytes.Buffer, dec *json.Decoder) error {
	buf.WriteByte('{')

	for first := true; dec.More(); first = false {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading object key: %w", err)
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("object key is %T, not string", tok)
		}

		if !first {
			buf.WriteString(", ")
		}

		writeString(buf, key)
		buf.WriteString(": ")

		if err := writeValue(buf, dec); err != nil {
			return err
		}
	}

	// Closing '}'.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading object end: %w", err)
	}

	buf.WriteByte('}')

	return nil
}

func writeArray(buf *bytes.Buffer, dec *json.Decoder) error {
	buf.WriteByte('[')

	for first := true; dec.More(); first = false {
		if !first {
			buf.WriteString(", ")
		}

		if err := writeValue(buf, dec); err != nil {
			return err
		}
	}

	// Closing ']'.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading array end: %w", err)
	}

	buf.WriteByte(']')

	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')

	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				buf.WriteRune(r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				writeUnicodeEscape(buf, hi)
				writeUnicodeEscape(buf, lo)
			default:
				writeUnicodeEscape(buf, r)
			}
		}
	}

	buf.WriteByte('"')
}

func writeUnicodeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xf])
	buf.WriteByte(hexDigits[(r>>8)&0xf])
	buf.WriteByte(hexDigits[(r>>4)&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}
