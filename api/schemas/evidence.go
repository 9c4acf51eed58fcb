// File: api/schemas/evidence.go

// Package schemas defines the JSON wire types shared between the taint
// engine and the reporting systems that consume its output.
package schemas

import (
	json "github.com/json-iterator/go"
)

// SourceRef describes one untrusted input cited by a piece of evidence.
type SourceRef struct {
	// Name is the input's name, e.g. the parameter or header name.
	Name string `json:"name"`
	// Origin is the input category, e.g. "http.request.parameter".
	Origin string `json:"origin"`
	// Value is the original untrusted value as it entered the system.
	Value string `json:"value"`
}

// ValuePart is one contiguous segment of a tracked value. Source indexes
// into Evidence.Sources for tainted segments and is omitted for untainted
// ones.
type ValuePart struct {
	Value  string `json:"value"`
	Source *int   `json:"source,omitempty"`
}

// Evidence is the provenance breakdown of a single value: the full value,
// its segments in order, and the deduplicated table of sources the tainted
// segments cite.
type Evidence struct {
	Value   string      `json:"value"`
	Parts   []ValuePart `json:"value_parts"`
	Sources []SourceRef `json:"sources,omitempty"`
}

// Tainted reports whether any part of the value carries provenance.
func (e Evidence) Tainted() bool {
	for _, p := range e.Parts {
		if p.Source != nil {
			return true
		}
	}
	return false
}

// MarshalJSONBytes renders the evidence with the engine's standard encoder.
func (e Evidence) MarshalJSONBytes() ([]byte, error) {
	return json.Marshal(e)
}
