package oracle

import "strings"

// ExtractJSON strips any prose or code fencing around a model reply and
// returns the outermost JSON object. Returns ErrMalformedResponse when
// no object delimiters are found.
func ExtractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", ErrMalformedResponse
	}
	return raw[start : end+1], nil
}
