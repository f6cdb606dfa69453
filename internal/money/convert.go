package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// moneyKeyParts are substrings that mark a numeric field as monetary.
var moneyKeyParts = []string{"price", "total", "cost", "tax"}

// IsMoneyKey reports whether a field name looks monetary: it contains price,
// total, cost or tax, or is exactly subtotal. Names such as
// "item_total_count" match as well; use a strict Converter where that matters.
func IsMoneyKey(key string) bool {
	if key == "subtotal" {
		return true
	}
	for _, part := range moneyKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

// Schema is an allowlist of monetary field paths within one response shape.
// Object keys are joined with '.', array elements add "[]":
//
//	"total", "items[].unit_price", "items[].product.price"
type Schema map[string]struct{}

// NewSchema builds a Schema from field paths.
func NewSchema(paths ...string) Schema {
	s := make(Schema, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether path is listed.
func (s Schema) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Converter walks JSON-shaped values and converts monetary numeric leaves.
// A leaf is monetary when its path is in Schema, or, with Fallback set, when
// its key passes IsMoneyKey.
type Converter struct {
	Schema   Schema
	Fallback bool
}

// DefaultConverter matches purely on key names.
var DefaultConverter = Converter{Fallback: true}

// Strict returns a converter that only converts the listed paths.
func Strict(paths ...string) Converter {
	return Converter{Schema: NewSchema(paths...)}
}

func (c Converter) isMoney(path, key string) bool {
	if c.Schema.Has(path) {
		return true
	}
	return c.Fallback && IsMoneyKey(key)
}

// ToCents returns a copy of v with every monetary field converted from
// dollars to cents (int64).
func (c Converter) ToCents(v any) any {
	return c.walk(v, "", func(f float64) any { return DollarsToCents(f) })
}

// ToDollars returns a copy of v with every monetary field converted from
// cents to dollars (float64).
func (c Converter) ToDollars(v any) any {
	return c.walk(v, "", func(f float64) any { return f / 100 })
}

func (c Converter) walk(v any, path string, conv func(float64) any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			p := joinPath(path, k)
			if n, ok := toFloat(val); ok && c.isMoney(p, k) {
				out[k] = conv(n)
				continue
			}
			out[k] = c.walk(val, p, conv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = c.walk(val, path+"[]", conv)
		}
		return out
	default:
		return v
	}
}

// ToCentsJSON decodes a JSON document, converts it with ToCents and encodes
// it again. Non-monetary numbers keep their original text.
func (c Converter) ToCentsJSON(data []byte) ([]byte, error) {
	return c.transcode(data, c.ToCents)
}

// ToDollarsJSON is the inverse of ToCentsJSON.
func (c Converter) ToDollarsJSON(data []byte) ([]byte, error) {
	return c.transcode(data, c.ToDollars)
}

func (c Converter) transcode(data []byte, fn func(any) any) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return data, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode money document: %w", err)
	}

	out, err := json.Marshal(fn(v))
	if err != nil {
		return nil, fmt.Errorf("encode money document: %w", err)
	}
	return out, nil
}

// ConvertMoneyFieldsToCents converts monetary fields of v using key names.
func ConvertMoneyFieldsToCents(v any) any {
	return DefaultConverter.ToCents(v)
}

// ConvertMoneyFieldsToDollars converts monetary fields of v back to dollars
// using key names. Only for request bodies that carry client-held cents.
func ConvertMoneyFieldsToDollars(v any) any {
	return DefaultConverter.ToDollars(v)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
