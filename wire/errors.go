package wire

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type errorBody struct {
	Errors map[string]string `json:"errors"`
	Error  string            `json:"error"`
	Reason string            `json:"reason"`
}

// ParseErrorBody extracts an error type and reason from a failed HTTP
// response payload. The server reports either a per-node "errors" map,
// joined here into one reason, or a flat "error"/"reason" pair. A body
// that is not valid JSON degrades to an untyped error rather than
// failing error reporting itself.
func ParseErrorBody(b []byte) (errType, reason string) {
	var body errorBody
	if err := json.Unmarshal(b, &body); err != nil {
		return "", ""
	}
	if len(body.Errors) > 0 {
		parts := make([]string, 0, len(body.Errors))
		for node, r := range body.Errors {
			parts = append(parts, fmt.Sprintf("%s: %s", node, r))
		}
		sort.Strings(parts)
		return "node_errors", strings.Join(parts, "; ")
	}
	return body.Error, body.Reason
}
