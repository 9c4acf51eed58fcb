// File: internal/taint/origin.go

// Package taint implements the runtime taint metadata engine: sources,
// provenance ranges, the range combination algebra, and the identity ledger
// that binds range sets to live values. Instrumentation layers call into a
// Tracker when they observe untrusted inputs or derived string operations;
// sink checks later read the recorded ranges back out.
package taint

// Origin categorizes where an untrusted input entered the application.
// The set mirrors the HTTP request surface; OriginUnknown is the escape
// value for categories defined by future instrumentation layers.
type Origin string

const (
	OriginParameter     Origin = "http.request.parameter"
	OriginParameterName Origin = "http.request.parameter.name"
	OriginHeader        Origin = "http.request.header"
	OriginHeaderName    Origin = "http.request.header.name"
	OriginCookie        Origin = "http.request.cookie.value"
	OriginCookieName    Origin = "http.request.cookie.name"
	OriginBody          Origin = "http.request.body"
	OriginPath          Origin = "http.request.path"
	OriginQuery         Origin = "http.request.query"
	OriginURI           Origin = "http.request.uri"
	OriginUnknown       Origin = "unknown"
)

// knownOrigins indexes every declared category for ParseOrigin.
var knownOrigins = map[string]Origin{
	string(OriginParameter):     OriginParameter,
	string(OriginParameterName): OriginParameterName,
	string(OriginHeader):        OriginHeader,
	string(OriginHeaderName):    OriginHeaderName,
	string(OriginCookie):        OriginCookie,
	string(OriginCookieName):    OriginCookieName,
	string(OriginBody):          OriginBody,
	string(OriginPath):          OriginPath,
	string(OriginQuery):         OriginQuery,
	string(OriginURI):           OriginURI,
}

// ParseOrigin maps free-form category text to an Origin. Unrecognized text
// maps to OriginUnknown rather than failing, so instrumentation built
// against a newer category set degrades gracefully.
func ParseOrigin(s string) Origin {
	if o, ok := knownOrigins[s]; ok {
		return o
	}
	return OriginUnknown
}

// String returns the wire form of the category.
func (o Origin) String() string { return string(o) }
