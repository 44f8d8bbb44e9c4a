package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var ErrExternalIDNotFound = errors.New("external id not found in provider response")

// Known response shapes, checked in order:
// {"id"}, {"data":{"id"}}, {"server_id"}, {"server":{"id"}}, {"attributes":{"id"}}
var externalIDPaths = [][]string{
	{"id"},
	{"data", "id"},
	{"server_id"},
	{"server", "id"},
	{"attributes", "id"},
}

// ExtractExternalID finds the provider-assigned id in a create response and returns it as a string.
// Numbers and numeric strings are accepted; zero is treated as absent.
func ExtractExternalID(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return "", ErrExternalIDNotFound
	}

	for _, path := range externalIDPaths {
		if id, ok := lookupID(root, path); ok {
			return id, nil
		}
	}
	return "", ErrExternalIDNotFound
}

func lookupID(node map[string]any, path []string) (string, bool) {
	for i, key := range path {
		v, ok := node[key]
		if !ok {
			return "", false
		}
		if i == len(path)-1 {
			return normalizeID(v)
		}
		next, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		node = next
	}
	return "", false
}

func normalizeID(v any) (string, bool) {
	var s string
	switch id := v.(type) {
	case json.Number:
		s = id.String()
	case string:
		s = strings.TrimSpace(id)
	default:
		return "", false
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n == 0 {
		return "", false
	}
	return strconv.FormatInt(n, 10), true
}
