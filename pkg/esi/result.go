package esi

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// Result is the outcome of one logical ESI request. It is built once per
// call and never mutated.
//
// Status is the last HTTP status observed; before any response arrives
// it defaults to 404. Data is the decoded response body, or nil when the
// call failed. Callers must treat nil Data as failure regardless of the
// status code.
type Result struct {
	Status int
	Data   json.RawMessage
}

// Ok reports whether the call produced data.
func (r Result) Ok() bool {
	return r.Data != nil
}

// fresh reports whether a page fetch may contribute to a paginated
// collection: success or not-modified, with data present.
func (r Result) fresh() bool {
	return (r.Status == http.StatusOK || r.Status == http.StatusNotModified) && r.Data != nil
}
