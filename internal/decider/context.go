// Package decider implements the request-scoped experimentation client:
// one Context Snapshot plus one engine handle per inbound request, no
// shared mutable state. The decision engine itself (hashing, range
// assignment, config evaluation) lives behind the engine.Engine seam.
package decider

import (
	"log/slog"
)

// bucketingIdentifiers are the context attributes an experiment may hash
// on directly from the snapshot. They are reset before an identifier
// override is applied so a stale identifier never leaks into an
// identifier-targeted call.
var bucketingIdentifiers = []string{"user_id", "device_id", "canonical_url"}

// Identifiers is the closed whitelist of identifier types accepted by the
// *ForIdentifier operations. Anything else fails fast and never reaches
// the engine.
var Identifiers = []string{
	"user_id",
	"device_id",
	"canonical_url",
	"subreddit_id",
	"ad_account_id",
	"business_id",
}

func validIdentifierType(t string) bool {
	for _, id := range Identifiers {
		if id == t {
			return true
		}
	}
	return false
}

// Attributes holds the request-derived targeting attributes used to build
// a Snapshot. Every field is independently optional: empty strings and
// nil pointers render as null in the engine context, never as errors.
type Attributes struct {
	UserID        string
	DeviceID      string
	CanonicalURL  string
	CountryCode   string
	Locale        string
	OriginService string
	OAuthClientID string

	LoggedIn       *bool
	UserIsEmployee *bool

	CookieCreatedTimestamp *float64
	LoidCreatedTimestamp   *float64
}

// Snapshot is the immutable set of targeting attributes for one request.
// Built once by NewSnapshot and never mutated; every Map / EventFields
// call returns a fresh map, so callers can decorate results freely.
type Snapshot struct {
	attrs     Attributes
	extracted map[string]any
}

// NewSnapshot builds a snapshot from attributes plus an open-ended
// extracted-fields bag supplied by the caller's field extractor. The bag
// is pruned on entry: values must be one of nil, bool, int, float or
// string; anything else is logged and dropped, never raised. Pruning is
// pure -- feeding the same bag twice yields the same result and the same
// diagnostics.
func NewSnapshot(attrs Attributes, extracted map[string]any, log *slog.Logger) Snapshot {
	if log == nil {
		log = slog.Default()
	}
	return Snapshot{
		attrs:     attrs,
		extracted: pruneExtracted(extracted, log),
	}
}

// pruneExtracted copies the allowed entries of the bag. The source map is
// never modified.
func pruneExtracted(extracted map[string]any, log *slog.Logger) map[string]any {
	if len(extracted) == 0 {
		return map[string]any{}
	}

	pruned := make(map[string]any, len(extracted))
	for k, v := range extracted {
		if k == "" {
			log.Info("empty key in extracted fields removed")
			continue
		}
		switch v.(type) {
		case nil, bool, string,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			pruned[k] = v
		default:
			log.Info("extracted field value is not one of [nil, bool, int, float, string] and is removed",
				slog.String("key", k))
		}
	}
	return pruned
}

// Map renders the flat context dictionary sent to the decision engine.
// The extracted bag appears both splatted at top level and nested under
// "other_fields".
func (s Snapshot) Map() map[string]any {
	m := map[string]any{
		"user_id":                  nullable(s.attrs.UserID),
		"device_id":                nullable(s.attrs.DeviceID),
		"canonical_url":            nullable(s.attrs.CanonicalURL),
		"country_code":             nullable(s.attrs.CountryCode),
		"locale":                   nullable(s.attrs.Locale),
		"origin_service":           nullable(s.attrs.OriginService),
		"oauth_client_id":          nullable(s.attrs.OAuthClientID),
		"logged_in":                deref(s.attrs.LoggedIn),
		"user_is_employee":         deref(s.attrs.UserIsEmployee),
		"cookie_created_timestamp": deref(s.attrs.CookieCreatedTimestamp),
		"loid_created_timestamp":   deref(s.attrs.LoidCreatedTimestamp),
	}

	other := make(map[string]any, len(s.extracted))
	for k, v := range s.extracted {
		other[k] = v
		m[k] = v
	}
	m["other_fields"] = other

	return m
}

// MapWithIdentifier renders the flat context for an identifier-targeted
// call. The three recognized bucketing identifiers are nulled first so
// the override is the only identifier the engine can bucket on; a
// bucket-field mismatch then surfaces as a typed engine error instead of
// a silent bucket on a stale field. The snapshot itself is untouched.
func (s Snapshot) MapWithIdentifier(identifierType, identifier string) map[string]any {
	m := s.Map()
	for _, id := range bucketingIdentifiers {
		m[id] = nil
	}
	m[identifierType] = identifier
	return m
}

// EventFields renders the nested view used only for telemetry: the same
// data grouped under user/app/geo/request/platform, plus the flat fields
// the v2 event schema still reads.
func (s Snapshot) EventFields() map[string]any {
	user := map[string]any{
		"id":                       nullable(s.attrs.UserID),
		"logged_in":                deref(s.attrs.LoggedIn),
		"cookie_created_timestamp": deref(s.attrs.CookieCreatedTimestamp),
		"is_employee":              deref(s.attrs.UserIsEmployee),
	}

	app := map[string]any{}
	if v, ok := s.extracted["app_name"]; ok && v != nil {
		app["name"] = v
	}
	if v, ok := s.extracted["app_version"]; ok && v != nil {
		app["version"] = v
	}
	if v, ok := s.extracted["build_number"]; ok && v != nil {
		app["build_number"] = v
	}
	if s.attrs.Locale != "" {
		app["relevant_locale"] = s.attrs.Locale
	}

	geo := map[string]any{}
	if s.attrs.CountryCode != "" {
		geo["country_code"] = s.attrs.CountryCode
	}

	request := map[string]any{}
	if v, ok := s.extracted["canonical_url"]; ok && v != nil {
		request["canonical_url"] = v
	} else if s.attrs.CanonicalURL != "" {
		request["canonical_url"] = s.attrs.CanonicalURL
	}

	platform := map[string]any{}
	if s.attrs.DeviceID != "" {
		platform["device_id"] = s.attrs.DeviceID
	}

	m := map[string]any{
		"user_id":                  nullable(s.attrs.UserID),
		"country_code":             nullable(s.attrs.CountryCode),
		"locale":                   nullable(s.attrs.Locale),
		"user_is_employee":         deref(s.attrs.UserIsEmployee),
		"logged_in":                deref(s.attrs.LoggedIn),
		"device_id":                nullable(s.attrs.DeviceID),
		"origin_service":           nullable(s.attrs.OriginService),
		"cookie_created_timestamp": deref(s.attrs.CookieCreatedTimestamp),
		"user":                     user,
		"app":                      app,
		"geo":                      geo,
		"request":                  request,
		"platform":                 platform,
	}
	for k, v := range s.extracted {
		m[k] = v
	}
	return m
}

// nullable maps the empty string to nil so absent attributes render as
// null in the engine context rather than as "".
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
