package bunview

import "strings"

// Identity names one view inside a design document. It is parsed once
// from an endpoint path and never changes afterwards.
type Identity struct {
	DesignDoc string
	Name      string
}

// ParseIdentity derives the design document and view names from a
// slash-delimited endpoint. Two shapes are accepted:
//
//	_design/blog/_view/recent  -> ("blog", "recent")
//	blog/_view/recent          -> ("blog", "recent")
func ParseIdentity(endpoint string) (Identity, error) {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	if parts[0] == "_design" {
		if len(parts) < 4 || parts[1] == "" || parts[3] == "" {
			return Identity{}, &ConfigError{Reason: "endpoint " + endpoint + ": want _design/<ddoc>/_view/<view>"}
		}
		return Identity{DesignDoc: parts[1], Name: parts[3]}, nil
	}
	if len(parts) < 3 || parts[0] == "" || parts[2] == "" {
		return Identity{}, &ConfigError{Reason: "endpoint " + endpoint + ": want <ddoc>/_view/<view>"}
	}
	return Identity{DesignDoc: parts[0], Name: parts[2]}, nil
}
