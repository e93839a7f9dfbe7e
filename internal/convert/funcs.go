package convert

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"mongrel/internal/document"
)

const dateLayout = time.DateOnly

func asString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", fmt.Errorf("want string, got %T", v)
	}
}

// stringToDate accepts bare years ("2004") and year-months ("2004-07") as
// well as full dates in the configured layout, and renders YYYY-MM-DD.
func stringToDate(c *Conversion, v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(dateLayout), nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	layout := c.layout
	switch len(s) {
	case 4:
		layout = "2006"
	case 7:
		layout = "2006-01"
	}
	if layout == "" {
		layout = dateLayout
	}

	parsed, err := time.Parse(layout, s)
	if err != nil {
		return nil, err
	}
	return parsed.Format(dateLayout), nil
}

func stringToTimestamp(c *Conversion, v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parsed, err := time.Parse(c.layout, s)
	if err != nil {
		return nil, err
	}
	return parsed.UTC(), nil
}

func stringToInteger(_ *Conversion, v any) (any, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		if t != math.Trunc(t) {
			return nil, fmt.Errorf("%v is not a whole number", t)
		}
		return int64(t), nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func stringToFloat(_ *Conversion, v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return strconv.ParseFloat(s, 64)
}

func stringToBoolean(_ *Conversion, v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return nil, nil
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func stringToText(c *Conversion, v any) (any, error) {
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	s = norm.NFC.String(s)
	switch c.layout {
	case "lower":
		s = cases.Lower(language.Und).String(s)
	case "upper":
		s = cases.Upper(language.Und).String(s)
	case "title":
		s = cases.Title(language.Und).String(s)
	}
	return s, nil
}

func htmlToText(_ *Conversion, v any) (any, error) {
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return nil, err
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

func integerToTimestamp(c *Conversion, v any) (any, error) {
	var n int64
	switch t := v.(type) {
	case int64:
		n = t
	case float64:
		n = int64(t)
	default:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		n, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, err
		}
	}
	if c.layout == "ms" {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}

func anyToString(_ *Conversion, v any) (any, error) {
	return document.String(v), nil
}

var strftime = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'f': "000000",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// layoutOf turns a strftime-style format into a Go time layout. Formats
// without '%' are taken to be Go layouts already.
func layoutOf(format string) (string, error) {
	if !strings.Contains(format, "%") {
		return format, nil
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("format %q ends with a bare %%", format)
		}
		i++
		rep, ok := strftime[format[i]]
		if !ok {
			return "", fmt.Errorf("format %q: unsupported directive %%%c", format, format[i])
		}
		b.WriteString(rep)
	}
	return b.String(), nil
}
