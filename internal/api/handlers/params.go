package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var errParamsBody = errors.New("invalid params body")

// reservedKeys never become positional parameters.
var reservedKeys = map[string]bool{"rptCd": true, "jobGb": true, "empNo": true}

type paramsBody struct {
	JobGb  string
	Params []string
}

// readParams accepts {"jobGb":..., "params":[...]} or a flat object whose
// values become parameters in key order.
func readParams(r io.Reader) (paramsBody, error) {
	var out paramsBody

	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return out, fmt.Errorf("%w: %v", errParamsBody, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return out, fmt.Errorf("%w: expected object", errParamsBody)
	}

	var (
		named   []string
		list    []string
		hasList bool
	)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return out, fmt.Errorf("%w: %v", errParamsBody, err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return out, fmt.Errorf("%w: %v", errParamsBody, err)
		}

		switch {
		case key == "jobGb":
			if out.JobGb, err = paramString(raw); err != nil {
				return out, err
			}
		case reservedKeys[key]:
		case key == "params" && isArray(raw):
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return out, fmt.Errorf("%w: %v", errParamsBody, err)
			}
			list = make([]string, 0, len(items))
			for _, item := range items {
				s, err := paramString(item)
				if err != nil {
					return out, err
				}
				list = append(list, s)
			}
			hasList = true
		default:
			s, err := paramString(raw)
			if err != nil {
				return out, err
			}
			named = append(named, s)
		}
	}
	if _, err := dec.Token(); err != nil {
		return out, fmt.Errorf("%w: %v", errParamsBody, err)
	}
	if err := ensureEOF(dec); err != nil {
		return out, fmt.Errorf("%w: %v", errParamsBody, err)
	}

	if hasList && len(named) > 0 {
		return out, fmt.Errorf("%w: params array cannot be mixed with named values", errParamsBody)
	}
	if hasList {
		out.Params = list
	} else {
		out.Params = named
	}
	if out.Params == nil {
		out.Params = []string{}
	}
	return out, nil
}

// paramString renders a JSON value as procedure text. Strings are
// unquoted, null is empty, anything else keeps its compact JSON form.
func paramString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return "", nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("%w: %v", errParamsBody, err)
		}
		return s, nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", fmt.Errorf("%w: %v", errParamsBody, err)
		}
		return buf.String(), nil
	}
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
