// Package credentials merges API keys from the request, the per-user store
// and the operator environment into one key per model.
package credentials

import "strings"

var placeholders = map[string]struct{}{
	"undefined":    {},
	"null":         {},
	"none":         {},
	"your-api-key": {},
	"your_api_key": {},
	"changeme":     {},
}

// IsPlaceholder reports whether key is a masked or dummy value a client may
// echo back instead of a real secret.
func IsPlaceholder(key string) bool {
	if _, ok := placeholders[strings.ToLower(key)]; ok {
		return true
	}
	if strings.Contains(key, "••") || strings.Contains(key, "****") {
		return true
	}
	return strings.HasPrefix(key, "<") && strings.HasSuffix(key, ">")
}

// Sanitize trims key and returns "" for blank or placeholder values.
func Sanitize(key string) string {
	key = strings.TrimSpace(key)
	if key == "" || IsPlaceholder(key) {
		return ""
	}
	return key
}

// Resolve returns one key per model ID. For each model the request key wins
// over the stored key, which wins over the operator key. Any source may be nil.
func Resolve(request, stored, operator map[string]string) map[string]string {
	out := make(map[string]string)
	for _, source := range []map[string]string{operator, stored, request} {
		for model, key := range source {
			if key = Sanitize(key); key != "" {
				out[model] = key
			}
		}
	}
	return out
}
