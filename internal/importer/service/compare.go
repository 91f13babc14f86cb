package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/password"
)

// textOf renders a scalar the way the comparison and identifiers see it.
// nil renders as the empty string.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return canonicalNumber(t.String())
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case bool:
		return strconv.FormatBool(t)
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// canonicalNumber keeps integers exact and normalizes floats.
func canonicalNumber(s string) string {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return formatFloat(f)
	}
	return s
}

func boolText(v any) string {
	switch strings.ToLower(strings.TrimSpace(textOf(v))) {
	case "true", "1", "yes", "y":
		return "true"
	case "", "false", "0", "no", "n":
		return "false"
	default:
		return strings.ToLower(textOf(v))
	}
}

func dateText(v any, formats []string) string {
	s := strings.TrimSpace(textOf(v))
	if s == "" {
		return ""
	}
	if d, err := catalog.ParseDate(s, formats...); err == nil {
		return d.String()
	}
	return s
}

// jsonText renders structured values canonically. JSON null and empty
// strings both render empty.
func jsonText(v any) string {
	var decoded any
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return ""
		}
		if err := decodeJSON([]byte(trimmed), &decoded); err != nil {
			return trimmed
		}
	case json.RawMessage:
		if err := decodeJSON(t, &decoded); err != nil {
			return string(t)
		}
	case []byte:
		if err := decodeJSON(t, &decoded); err != nil {
			return string(t)
		}
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		if err := decodeJSON(raw, &decoded); err != nil {
			return string(raw)
		}
	}
	if decoded == nil {
		return ""
	}
	out, err := json.Marshal(canonicalize(decoded))
	if err != nil {
		return fmt.Sprint(decoded)
	}
	return string(out)
}

func decodeJSON(raw []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dest)
}

// canonicalize rewrites numbers so 1 and 1.0 compare equal. Maps are
// already emitted with sorted keys by encoding/json.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = canonicalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = canonicalize(item)
		}
		return out
	case json.Number:
		return json.Number(canonicalNumber(t.String()))
	default:
		return t
	}
}

func normalized(kind fieldKind, v any, formats []string) string {
	switch kind {
	case kindNumber:
		return canonicalNumber(textOf(v))
	case kindBool:
		return boolText(v)
	case kindDate:
		return dateText(v, formats)
	case kindJSON:
		return jsonText(v)
	default:
		return strings.TrimSpace(textOf(v))
	}
}

// sameValue reports whether a stored value and an incoming value are equal
// under the import comparison rules.
func sameValue(kind fieldKind, stored, incoming any, formats []string) bool {
	return normalized(kind, stored, formats) == normalized(kind, incoming, formats)
}

// samePassword compares an incoming password, plain or hashed, with the
// stored hash.
func samePassword(stored, incoming any) bool {
	hash := textOf(stored)
	plain := textOf(incoming)
	if plain == "" {
		return true
	}
	if password.IsHashed(plain) {
		return plain == hash
	}
	return password.Verify(plain, hash)
}

// coerce shapes an incoming value so it decodes into a model field of kind.
func coerce(kind fieldKind, v any, formats []string) (any, error) {
	switch kind {
	case kindNumber:
		switch t := v.(type) {
		case nil, json.Number, float64, int, int64:
			return t, nil
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				return nil, nil
			}
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%q is not a number", t)
			}
			return json.Number(canonicalNumber(s)), nil
		default:
			return nil, fmt.Errorf("%v is not a number", t)
		}

	case kindBool:
		switch t := v.(type) {
		case nil:
			return nil, nil
		case bool:
			return t, nil
		default:
			switch boolText(t) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return nil, fmt.Errorf("%v is not a boolean", t)
		}

	case kindDate:
		s := strings.TrimSpace(textOf(v))
		if s == "" {
			return nil, nil
		}
		d, err := catalog.ParseDate(s, formats...)
		if err != nil {
			return nil, err
		}
		return d.String(), nil

	case kindJSON:
		if s, ok := v.(string); ok {
			trimmed := strings.TrimSpace(s)
			if trimmed == "" {
				return nil, nil
			}
			if (strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")) && json.Valid([]byte(trimmed)) {
				return json.RawMessage(trimmed), nil
			}
		}
		return v, nil

	default:
		switch t := v.(type) {
		case nil:
			return nil, nil
		case string:
			if strings.TrimSpace(t) == "" {
				return nil, nil
			}
			return t, nil
		case map[string]any, []any:
			return nil, fmt.Errorf("expected text, got a structured value")
		default:
			return textOf(t), nil
		}
	}
}
