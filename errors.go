package bunview

import "fmt"

// ConfigError reports invalid executor construction or query input. It is
// always surfaced before any network activity.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "view config: " + e.Reason }

// ViewError is an error object one of the index nodes embedded in a result
// stream. It aborts iteration only when no error observer is registered;
// From and Reason are taken verbatim from the stream.
type ViewError struct {
	From   string
	Reason string
}

func (e *ViewError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("view error from %s: %s", e.From, e.Reason)
	}
	return "view error: " + e.Reason
}
