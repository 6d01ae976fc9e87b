package ocpi

import (
	"encoding/json"
	"strings"
)

// JoinURL joins a base URL with path segments, tolerating stray slashes on
// either side.
func JoinURL(base string, parts ...string) string {
	url := strings.TrimRight(base, "/")
	for _, p := range parts {
		url += "/" + strings.Trim(p, "/")
	}
	return url
}

// ToDocument converts a typed wire object into its generic JSON document
// form, dropping empty optional fields the same way the wire encoding does.
func ToDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDocument decodes a generic JSON document into a typed wire object.
func FromDocument(doc map[string]any, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// MergeDocument applies patch onto doc key by key, last write wins. Only the
// top level is merged; nested objects are replaced wholesale.
func MergeDocument(doc, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(doc)+len(patch))
	for k, v := range doc {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
