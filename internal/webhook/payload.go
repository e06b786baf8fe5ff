// Package webhook normalizes and routes inbound Cursor agent callbacks.
package webhook

import "errors"

// ErrMissingStatus is returned when no status token can be extracted from a
// payload. The HTTP layer maps it to a 400 response.
var ErrMissingStatus = errors.New("webhook: missing status in payload")

// Known payload shapes, tried in order; first non-empty match wins. Adding a
// newly observed shape is a one-line change here.
var (
	statusPaths = [][]string{
		{"status"},
		{"data", "status"},
		{"event"},
	}
	prURLPaths = [][]string{
		{"target", "prUrl"},
		{"target", "pr_url"},
		{"pr_url"},
		{"prUrl"},
		{"data", "pr_url"},
		{"data", "prUrl"},
	}
	errorPaths = [][]string{
		{"error_message"},
		{"error"},
		{"data", "error"},
		{"message"},
	}
)

// ExtractStatus pulls the status token out of a payload, case preserved.
func ExtractStatus(payload map[string]any) (string, error) {
	if s := firstMatch(payload, statusPaths); s != "" {
		return s, nil
	}
	return "", ErrMissingStatus
}

// ExtractPRURL pulls the pull-request URL out of a payload. An empty result
// is not an error; Cursor does not always report one.
func ExtractPRURL(payload map[string]any) string {
	return firstMatch(payload, prURLPaths)
}

// ExtractErrorMessage pulls the agent's error text out of a payload.
// Returns empty when none of the known shapes match.
func ExtractErrorMessage(payload map[string]any) string {
	return firstMatch(payload, errorPaths)
}

// firstMatch returns the first non-empty string found at any of the paths.
func firstMatch(payload map[string]any, paths [][]string) string {
	for _, path := range paths {
		if s := lookup(payload, path); s != "" {
			return s
		}
	}
	return ""
}

// lookup walks a key path through nested maps, returning the string value at
// the leaf. Missing keys, non-map intermediates, and non-string leaves all
// yield empty.
func lookup(payload map[string]any, path []string) string {
	current := any(payload)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[key]
		if !ok {
			return ""
		}
	}
	s, _ := current.(string)
	return s
}
