package graphml

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ScalarType is one of the attribute value types a GraphML key can declare.
type ScalarType int

const (
	TypeString ScalarType = iota
	TypeBoolean
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
)

var scalarNames = map[string]ScalarType{
	"string":  TypeString,
	"boolean": TypeBoolean,
	"int":     TypeInt,
	"long":    TypeLong,
	"float":   TypeFloat,
	"double":  TypeDouble,
}

func (t ScalarType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	default:
		return "string"
	}
}

// ScalarTypeFor resolves an attr.type name, case-insensitively. The empty
// string stands for an undeclared type and resolves to TypeString.
func ScalarTypeFor(name string) (ScalarType, error) {
	if name == "" {
		return TypeString, nil
	}
	t, ok := scalarNames[strings.ToLower(name)]
	if !ok {
		return TypeString, fmt.Errorf("graphml: unknown attr.type %q", name)
	}
	return t, nil
}

// Parse converts raw text to the typed value. Numeric text is handed to
// strconv exactly as read, so padded numerics fail rather than silently
// parse. Boolean accepts any casing of "true" and treats everything else as
// false.
func (t ScalarType) Parse(text string) (any, error) {
	switch t {
	case TypeBoolean:
		return strings.EqualFold(text, "true"), nil
	case TypeInt:
		v, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case TypeLong:
		return strconv.ParseInt(text, 10, 64)
	case TypeFloat:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, err
		}
		return float32(v), nil
	case TypeDouble:
		return strconv.ParseFloat(text, 64)
	default:
		return text, nil
	}
}

// listSeparator splits list bodies on commas with optional trailing
// whitespace.
var listSeparator = regexp.MustCompile(`,\s*`)

// ParseList parses the bracketed list form "[v1, v2, ...]", optionally with
// double-quoted elements, into a slice of t's value type. Order and
// duplicates are preserved; empty tokens are dropped.
func (t ScalarType) ParseList(text string) (any, error) {
	open := strings.IndexByte(text, '[')
	if open < 0 {
		return nil, fmt.Errorf("graphml: list value %q has no opening bracket", text)
	}
	length := strings.IndexByte(text[open+1:], ']')
	if length < 0 {
		return nil, fmt.Errorf("graphml: list value %q has no closing bracket", text)
	}
	body := strings.ReplaceAll(text[open+1:open+1+length], `"`, "")
	tokens := listSeparator.Split(body, -1)

	switch t {
	case TypeBoolean:
		return parseSlice[bool](t, tokens)
	case TypeInt:
		return parseSlice[int32](t, tokens)
	case TypeLong:
		return parseSlice[int64](t, tokens)
	case TypeFloat:
		return parseSlice[float32](t, tokens)
	case TypeDouble:
		return parseSlice[float64](t, tokens)
	default:
		return parseSlice[string](t, tokens)
	}
}

func parseSlice[T any](t ScalarType, tokens []string) ([]T, error) {
	out := make([]T, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		v, err := t.Parse(token)
		if err != nil {
			return nil, err
		}
		out = append(out, v.(T))
	}
	return out, nil
}
