package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Body is a decoded JSON response. The API's shapes are never validated,
// so bodies stay untyped and are only probed for the few fields flows need.
type Body = interface{}

// ExtractIDs returns up to max ids from a paginated envelope
// ({"data": {"data": [{"id": ...}, ...]}}). Items without an id are skipped.
func ExtractIDs(body Body, max int) []string {
	if max <= 0 {
		return nil
	}
	root, ok := body.(map[string]interface{})
	if !ok {
		return nil
	}
	page, ok := root["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := page["data"].([]interface{})
	if !ok {
		return nil
	}

	ids := make([]string, 0, max)
	for _, item := range items {
		if len(ids) >= max {
			break
		}
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		raw, exists := obj["id"]
		if !exists || raw == nil {
			continue
		}
		ids = append(ids, FormatID(raw))
	}
	return ids
}

// FormatID renders an id value for use in a URL path.
func FormatID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// LabelValues returns the non-empty "value" fields of a label list
// ({"data": [{"value": ..., "label": ...}, ...]}).
func LabelValues(body Body) []string {
	root, ok := body.(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := root["data"].([]interface{})
	if !ok {
		return nil
	}

	var values []string
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		s, ok := obj["value"].(string)
		if !ok || s == "" {
			continue
		}
		values = append(values, s)
	}
	return values
}

// PreviewJSON trims a raw JSON object to its first n keys in document order.
// Other JSON values come back compacted. ok is false when raw is not valid JSON.
func PreviewJSON(raw []byte, n int) (preview string, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}

	var buf bytes.Buffer
	if delim, isDelim := tok.(json.Delim); !isDelim || delim != '{' {
		if err := json.Compact(&buf, bytes.TrimSpace(raw)); err != nil {
			return "", false
		}
		return buf.String(), true
	}

	buf.WriteByte('{')
	for i := 0; i < n && dec.More(); i++ {
		keyTok, err := dec.Token()
		if err != nil {
			return "", false
		}
		key, _ := json.Marshal(keyTok)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return "", false
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := json.Compact(&buf, value); err != nil {
			return "", false
		}
	}
	buf.WriteByte('}')
	return buf.String(), true
}

// Preview trims a decoded body to its first n keys. Decoded objects lose key
// order, so keys are taken in sorted order; PreviewJSON keeps response order.
func Preview(body Body, n int) Body {
	obj, ok := body.(map[string]interface{})
	if !ok {
		return body
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		out[k] = obj[k]
	}
	return out
}

// StringAt walks nested objects along path and returns the string found there.
func StringAt(body Body, path ...string) (string, bool) {
	cur := body
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = obj[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok && s != ""
}
