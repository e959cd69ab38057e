// Package payload turns a payment webhook body into one nested map,
// regardless of the wire encoding the gateway picked for the request.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

var (
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrEmptyBody              = errors.New("empty body")
)

const maxMultipartMemory = 10 << 20

// Decode parses body according to contentType. Form encodings get PHP-style
// bracket keys expanded (products[0][name] → products → "0" → name); JSON is
// taken as is, with numbers kept verbatim as json.Number.
func Decode(body []byte, contentType string) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "multipart/form-data":
		return decodeMultipart(body, params["boundary"])
	case "application/x-www-form-urlencoded":
		return decodeURLEncoded(string(body))
	case "application/json":
		return decodeJSON(body)
	case "", "text/plain":
		trimmed := bytes.TrimSpace(body)
		if trimmed[0] == '{' {
			return decodeJSON(body)
		}
		if bytes.Contains(trimmed, []byte("=")) {
			return decodeURLEncoded(string(trimmed))
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
}

func decodeJSON(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func decodeURLEncoded(body string) (map[string]any, error) {
	out := map[string]any{}
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decode value for %q: %w", key, err)
		}
		SetBracketKey(out, key, value)
	}
	return out, nil
}

func decodeMultipart(body []byte, boundary string) (map[string]any, error) {
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart without boundary", ErrUnsupportedContentType)
	}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	out := map[string]any{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		name := part.FormName()
		if name == "" || part.FileName() != "" {
			part.Close()
			continue
		}

		value, err := io.ReadAll(io.LimitReader(part, maxMultipartMemory))
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("read field %q: %w", name, err)
		}
		SetBracketKey(out, name, string(value))
	}
	return out, nil
}

// SplitBracketKey splits "a[0][b]" into ["a", "0", "b"], dropping empty tokens.
func SplitBracketKey(key string) []string {
	return strings.FieldsFunc(key, func(r rune) bool {
		return r == '[' || r == ']'
	})
}

// SetBracketKey assigns value at the nested path described by key, creating
// intermediate maps as needed. A scalar sitting where a map is required is
// replaced by the map.
func SetBracketKey(dst map[string]any, key, value string) {
	parts := SplitBracketKey(key)
	if len(parts) == 0 {
		return
	}

	current := dst
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}

	last := parts[len(parts)-1]
	if _, isMap := current[last].(map[string]any); isMap {
		return
	}
	current[last] = value
}

// String returns the value at a top-level key as a string. Numbers decoded
// from JSON are rendered verbatim.
func String(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// FirstString returns the first non-empty value among keys.
func FirstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(String(m, key)); v != "" {
			return v
		}
	}
	return ""
}

// Lookup walks a nested path such as ("products", "0", "name").
func Lookup(m map[string]any, path ...string) (any, bool) {
	var current any = m
	for _, p := range path {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[p]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx := -1
			if _, err := fmt.Sscanf(p, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
