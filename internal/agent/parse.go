package agent

import (
	"bytes"
	"encoding/json"
	"math"
	"net/url"
	"strings"
)

// searchHit is one result from the search provider, whatever envelope it
// arrived in.
type searchHit struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Markdown    string `json:"markdown"`
}

// parseSearchResults extracts hits from any of the shapes the provider has
// been observed to return: a bare array, {data: [...]}, {results: [...]},
// {web: {results|data: [...]}}, or a JSON string wrapping one of those.
// Unknown shapes yield no hits rather than an error.
func parseSearchResults(raw json.RawMessage) []searchHit {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil
		}
		return parseSearchResults(json.RawMessage(inner))
	}
	if raw[0] == '[' {
		var hits []searchHit
		if err := json.Unmarshal(raw, &hits); err != nil {
			return nil
		}
		return hits
	}
	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Results json.RawMessage `json:"results"`
		Web     struct {
			Results json.RawMessage `json:"results"`
			Data    json.RawMessage `json:"data"`
		} `json:"web"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	for _, inner := range []json.RawMessage{envelope.Data, envelope.Results, envelope.Web.Results, envelope.Web.Data} {
		if len(bytes.TrimSpace(inner)) == 0 {
			continue
		}
		if hits := parseSearchResults(inner); len(hits) > 0 {
			return hits
		}
	}
	return nil
}

// normalizeURL lowers scheme and host, drops fragments and trailing slashes.
// Seed dedup keys on this, so the same page under cosmetic URL variants
// counts once.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	return u.String()
}

// MathDensity scores how formula-heavy a text is from LaTeX delimiters,
// clamped to [0,1].
func MathDensity(content string) float64 {
	matches := strings.Count(content, "$") + strings.Count(content, `\begin`)
	return math.Min(1, float64(matches)/50)
}

func containsMath(s string) bool {
	return strings.Contains(s, "$") || strings.Contains(s, `\begin`)
}
