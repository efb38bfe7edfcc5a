package domain

import (
	"fmt"
	"net/http"
)

// FetchError reports a failed request to the observation source. It is
// surfaced to users as "data unavailable".
type FetchError struct {
	Op         string // e.g. "sites", "observation results"
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s: status %d %s", e.Op, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFound reports whether the source answered 404, e.g. for an unknown typeID.
func (e *FetchError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// MalformedInputError reports a feature that cannot be placed on a map.
// The feature is skipped.
type MalformedInputError struct {
	FeatureID string
	Reason    string
}

func (e *MalformedInputError) Error() string {
	if e.FeatureID == "" {
		return "malformed feature: " + e.Reason
	}
	return fmt.Sprintf("malformed feature %s: %s", e.FeatureID, e.Reason)
}
