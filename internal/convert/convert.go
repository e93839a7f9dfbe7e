// Package convert holds the closed set of per-value conversions a mapping can
// attach to a column.
//
// A conversion is named by a (source_type, target_type) pair in the mapping.
// The pair resolves to a Kind at mapping-load time; unknown pairs and missing
// required arguments are rejected there, never at transfer time.
package convert

import (
	"fmt"
	"sort"
	"strings"
)

// Kind enumerates the supported conversions.
type Kind int

const (
	Identity Kind = iota
	StringToDate
	StringToTimestamp
	StringToInteger
	StringToFloat
	StringToBoolean
	StringToText
	HTMLToText
	IntegerToTimestamp
	AnyToString
)

type pair struct{ source, target string }

var pairs = map[pair]Kind{
	{"string", "date"}:       StringToDate,
	{"string", "timestamp"}:  StringToTimestamp,
	{"string", "integer"}:    StringToInteger,
	{"string", "float"}:      StringToFloat,
	{"string", "boolean"}:    StringToBoolean,
	{"string", "text"}:       StringToText,
	{"html", "text"}:         HTMLToText,
	{"integer", "timestamp"}: IntegerToTimestamp,
	{"any", "string"}:        AnyToString,
}

var kindNames = map[Kind]string{
	Identity:           "identity",
	StringToDate:       "string->date",
	StringToTimestamp:  "string->timestamp",
	StringToInteger:    "string->integer",
	StringToFloat:      "string->float",
	StringToBoolean:    "string->boolean",
	StringToText:       "string->text",
	HTMLToText:         "html->text",
	IntegerToTimestamp: "integer->timestamp",
	AnyToString:        "any->string",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Args are the free-form arguments from the mapping's "args" object.
type Args map[string]any

// String returns the trimmed string argument under key.
func (a Args) String(key string) (string, bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return strings.TrimSpace(s), true, nil
}

// Conversion is a resolved conversion ready to apply. The zero value is the identity.
type Conversion struct {
	Kind Kind
	Args Args

	layout string
	fn     func(c *Conversion, v any) (any, error)
}

// Pairs lists the supported "source->target" pairs, sorted.
func Pairs() []string {
	out := make([]string, 0, len(pairs))
	for p := range pairs {
		out = append(out, p.source+"->"+p.target)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a (source, target) pair. Type names are case-insensitive.
func Lookup(source, target string) (Kind, error) {
	p := pair{strings.ToLower(strings.TrimSpace(source)), strings.ToLower(strings.TrimSpace(target))}
	k, ok := pairs[p]
	if !ok {
		return Identity, fmt.Errorf("conversion %s->%s is not supported (supported: %s)",
			p.source, p.target, strings.Join(Pairs(), ", "))
	}
	return k, nil
}

// New resolves the pair and validates args for it.
func New(source, target string, args Args) (Conversion, error) {
	k, err := Lookup(source, target)
	if err != nil {
		return Conversion{}, err
	}
	return Of(k, args)
}

// Of builds a conversion of kind k, validating args.
func Of(k Kind, args Args) (Conversion, error) {
	c := Conversion{Kind: k, Args: args}
	if c.Args == nil {
		c.Args = Args{}
	}

	switch k {
	case Identity:
		c.fn = nil
	case StringToDate:
		f, ok, err := c.Args.String("format")
		if err != nil {
			return Conversion{}, err
		}
		if ok && f != "" {
			if c.layout, err = layoutOf(f); err != nil {
				return Conversion{}, err
			}
		}
		c.fn = stringToDate
	case StringToTimestamp:
		f, ok, err := c.Args.String("format")
		if err != nil {
			return Conversion{}, err
		}
		if !ok || f == "" {
			return Conversion{}, fmt.Errorf("%s requires argument %q", k, "format")
		}
		if c.layout, err = layoutOf(f); err != nil {
			return Conversion{}, err
		}
		c.fn = stringToTimestamp
	case StringToInteger:
		c.fn = stringToInteger
	case StringToFloat:
		c.fn = stringToFloat
	case StringToBoolean:
		c.fn = stringToBoolean
	case StringToText:
		mode, _, err := c.Args.String("case")
		if err != nil {
			return Conversion{}, err
		}
		switch strings.ToLower(mode) {
		case "", "lower", "upper", "title":
		default:
			return Conversion{}, fmt.Errorf("%s: unknown case %q (want lower, upper or title)", k, mode)
		}
		c.layout = strings.ToLower(mode)
		c.fn = stringToText
	case HTMLToText:
		c.fn = htmlToText
	case IntegerToTimestamp:
		unit, _, err := c.Args.String("unit")
		if err != nil {
			return Conversion{}, err
		}
		switch unit {
		case "", "s", "ms":
		default:
			return Conversion{}, fmt.Errorf("%s: unknown unit %q (want s or ms)", k, unit)
		}
		c.layout = unit
		c.fn = integerToTimestamp
	case AnyToString:
		c.fn = anyToString
	default:
		return Conversion{}, fmt.Errorf("unknown conversion kind %d", int(k))
	}
	return c, nil
}

// Apply converts v. Nil passes through unchanged for every kind.
func (c *Conversion) Apply(v any) (any, error) {
	if v == nil || c.fn == nil {
		return v, nil
	}
	out, err := c.fn(c, v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Kind, err)
	}
	return out, nil
}

// IsIdentity reports whether Apply returns its input unchanged.
func (c *Conversion) IsIdentity() bool { return c.fn == nil }
