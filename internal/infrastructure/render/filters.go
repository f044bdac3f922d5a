package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// filterFunc matches the signature expr.Function expects.
type filterFunc func(params ...any) (any, error)

// filters is the fixed filter set of the expression engine.
var filters = map[string]filterFunc{
	"upper":      stringFilter("upper", strings.ToUpper),
	"lower":      stringFilter("lower", strings.ToLower),
	"title":      stringFilter("title", titleCase),
	"capitalize": stringFilter("capitalize", capitalize),
	"snake":      stringFilter("snake", func(s string) string { return joinWords(s, "_", strings.ToLower) }),
	"kebab":      stringFilter("kebab", func(s string) string { return joinWords(s, "-", strings.ToLower) }),
	"camel":      stringFilter("camel", camelCase),
	"trim":       stringFilter("trim", strings.TrimSpace),
	"truncate":   truncateFilter,
	"join":       joinFilter,
	"replace":    replaceFilter,
}

// FilterNames returns the expression engine's filter names, sorted.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// A Caser keeps state between calls, so each call gets its own.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func camelCase(s string) string {
	var b strings.Builder
	for i, w := range words(s) {
		w = strings.ToLower(w)
		if i > 0 {
			w = capitalize(w)
		}
		b.WriteString(w)
	}
	return b.String()
}

func joinWords(s, sep string, transform func(string) string) string {
	ws := words(s)
	for i := range ws {
		ws[i] = transform(ws[i])
	}
	return strings.Join(ws, sep)
}

// words splits on non-alphanumerics and on lower-to-upper case changes,
// so "userID", "user_id" and "User Id" split alike.
func words(s string) []string {
	var out []string
	var cur []rune
	runes := []rune(s)

	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()

	return out
}

func stringFilter(name string, fn func(string) string) filterFunc {
	return func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s: expected 1 argument, got %d", name, len(params))
		}
		s, err := toText(params[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return fn(s), nil
	}
}

func truncateFilter(params ...any) (any, error) {
	if len(params) < 2 || len(params) > 3 {
		return nil, fmt.Errorf("truncate: expected 2 or 3 arguments, got %d", len(params))
	}
	s, err := toText(params[0])
	if err != nil {
		return nil, fmt.Errorf("truncate: %w", err)
	}
	n, err := toInt(params[1])
	if err != nil {
		return nil, fmt.Errorf("truncate: %w", err)
	}
	if n < 0 {
		return nil, fmt.Errorf("truncate: negative length %d", n)
	}
	suffix := ""
	if len(params) == 3 {
		if suffix, err = toText(params[2]); err != nil {
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s, nil
	}
	return string(runes[:n]) + suffix, nil
}

func joinFilter(params ...any) (any, error) {
	if len(params) < 1 || len(params) > 2 {
		return nil, fmt.Errorf("join: expected 1 or 2 arguments, got %d", len(params))
	}
	sep := ", "
	if len(params) == 2 {
		var err error
		if sep, err = toText(params[1]); err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
	}

	switch v := params[0].(type) {
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			s, err := toText(item)
			if err != nil {
				return nil, fmt.Errorf("join: [%d]: %w", i, err)
			}
			parts[i] = s
		}
		return strings.Join(parts, sep), nil
	case []string:
		return strings.Join(v, sep), nil
	case string:
		// A delimited string is already joined.
		return v, nil
	default:
		return nil, fmt.Errorf("join: expected a list, got %T", params[0])
	}
}

func replaceFilter(params ...any) (any, error) {
	if len(params) != 3 {
		return nil, fmt.Errorf("replace: expected 3 arguments, got %d", len(params))
	}
	args := make([]string, 3)
	for i, p := range params {
		s, err := toText(p)
		if err != nil {
			return nil, fmt.Errorf("replace: %w", err)
		}
		args[i] = s
	}
	return strings.ReplaceAll(args[0], args[1], args[2]), nil
}

// toText formats scalars the way the engines print them.
func toText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case nil:
		return "", nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			s, err := toText(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", fmt.Errorf("expected text, got %T", v)
	}
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
